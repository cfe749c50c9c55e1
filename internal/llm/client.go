package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"globekeys/internal/config"
	"globekeys/internal/models"
	"os"
	"strings"

	"github.com/sashabaranov/go-openai"
)

type Client struct {
	client *openai.Client
	model  string
}

func NewClient() *Client {
	apiKey := config.Get("OPENAI_API_KEY", "openai_key")
	if apiKey == "" {
		fmt.Fprintf(os.Stderr, "⚠ Warning: OPENAI_API_KEY is not set\n")
	}

	cfg := openai.DefaultConfig(apiKey)
	if baseURL := config.Get("OPENAI_BASE_URL", "openai_base_url"); baseURL != "" {
		cfg.BaseURL = baseURL
	}

	model := openai.GPT4oMini
	if name := config.Get("OPENAI_CHAT_MODEL", "openai_chat_model"); name != "" {
		model = name
	}

	return &Client{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

const translateSystemPrompt = `You translate UI messages of a web application. Only output JSON, no other text.
Keep placeholders such as {name}, ICU plural/select syntax and HTML-like tags exactly as they are.
Use the description of a message, when given, as context for tone and meaning.

Output JSON format:
{
  "translations": {
    "<key>": "<translated message>"
  }
}`

// TranslateBatch translates the source messages of reqs from sourceLocale to
// targetLocale. Keys the model leaves out or answers with an empty string are
// absent from the result.
func (c *Client) TranslateBatch(ctx context.Context, sourceLocale, targetLocale string, reqs []models.TranslationRequest) (map[string]string, error) {
	if len(reqs) == 0 {
		return map[string]string{}, nil
	}
	prompt, err := buildTranslatePrompt(sourceLocale, targetLocale, reqs)
	if err != nil {
		return nil, err
	}
	content, err := c.complete(ctx, translateSystemPrompt, prompt)
	if err != nil {
		return nil, err
	}
	return parseTranslations(content, reqs)
}

// ClassifyDuplicatePair asks the model whether two messages say the same
// thing and could share one key.
func (c *Client) ClassifyDuplicatePair(ctx context.Context, a, b models.MessagePayload, score float64) (bool, string, error) {
	content, err := c.complete(ctx, "", buildClassifyPrompt(a, b, score))
	if err != nil {
		return false, "", err
	}
	return parseClassification(content)
}

func (c *Client) complete(ctx context.Context, system, user string) (string, error) {
	var msgs []openai.ChatCompletionMessage
	if system != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: user})

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: msgs,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no completion choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}

type translateItem struct {
	Key         string `json:"key"`
	Message     string `json:"message"`
	Description string `json:"description,omitempty"`
}

func buildTranslatePrompt(sourceLocale, targetLocale string, reqs []models.TranslationRequest) (string, error) {
	items := make([]translateItem, 0, len(reqs))
	for _, r := range reqs {
		items = append(items, translateItem{Key: r.Key, Message: r.Source, Description: r.Description})
	}
	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode messages: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Translate the following messages from %q to %q.\n\n", sourceLocale, targetLocale)
	b.Write(data)
	b.WriteString("\n")
	return b.String(), nil
}

func parseTranslations(content string, reqs []models.TranslationRequest) (map[string]string, error) {
	var resp struct {
		Translations map[string]string `json:"translations"`
	}
	if err := json.Unmarshal([]byte(content), &resp); err != nil {
		return nil, fmt.Errorf("failed to parse translations: %w", err)
	}

	out := make(map[string]string, len(reqs))
	for _, r := range reqs {
		if msg := strings.TrimSpace(resp.Translations[r.Key]); msg != "" {
			out[r.Key] = resp.Translations[r.Key]
		}
	}
	return out, nil
}

func buildClassifyPrompt(a, b models.MessagePayload, score float64) string {
	var sb strings.Builder
	sb.WriteString("Decide whether the following two UI messages mean the same thing and could be served by one translation key. Only return JSON.\n\n")
	writeMessage(&sb, "A", a)
	writeMessage(&sb, "B", b)
	fmt.Fprintf(&sb, "Similarity score: %.0f%%\n\n", score*100)
	sb.WriteString(`Output JSON format:
{
  "classification": "DUPLICATE" or "NOT_DUPLICATE",
  "reason": "short explanation"
}`)
	return sb.String()
}

func writeMessage(sb *strings.Builder, label string, m models.MessagePayload) {
	fmt.Fprintf(sb, "Message %s (%s, key %s):\n%s\n", label, m.Locale, m.Key, m.Message)
	if m.Description != "" {
		fmt.Fprintf(sb, "Description: %s\n", m.Description)
	}
	sb.WriteString("\n")
}

func parseClassification(content string) (bool, string, error) {
	var result struct {
		Classification string `json:"classification"`
		Reason         string `json:"reason"`
	}
	if err := json.Unmarshal([]byte(content), &result); err != nil {
		return false, "", err
	}
	return strings.EqualFold(strings.TrimSpace(result.Classification), "DUPLICATE"), result.Reason, nil
}
