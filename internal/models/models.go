package models

// MessageEntry is one translation message: a dotted key, its text in some
// locale, and an optional description for translators.
type MessageEntry struct {
	Key         string `json:"key"`
	Message     string `json:"message"`
	Description string `json:"description,omitempty"`
}

// MessagePayload is what the duplicate finder stores next to each message
// vector in the vector store.
type MessagePayload struct {
	Locale      string `json:"locale"`
	Key         string `json:"key"`
	Message     string `json:"message"`
	Description string `json:"description"`
	MessageHash string `json:"message_hash"`
}

// DuplicateGroup is a set of keys whose messages say the same thing
type DuplicateGroup struct {
	Messages []MessagePayload `json:"messages"`
	AvgScore float64          `json:"avg_score"`
	Reason   string           `json:"reason"`
}

type PairCandidate struct {
	A      MessagePayload
	B      MessagePayload
	Score  float64
	Reason string
}

// TranslationRequest is one message sent to the model for translation
type TranslationRequest struct {
	Key         string `json:"key"`
	Source      string `json:"source"`
	Description string `json:"description,omitempty"`
}

// SimilarMessage is a stored message ranked against a query text
type SimilarMessage struct {
	MessagePayload
	Score float64 `json:"score"`
}
