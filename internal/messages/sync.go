package messages

import (
	"encoding/json"
	"fmt"
	"globekeys/internal/config"
	"globekeys/internal/models"
	"sort"
	"sync"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// LocaleResult summarizes what Sync did to one locale's catalog
type LocaleResult struct {
	Locale  string   `json:"locale"`
	Total   int      `json:"total"`
	Added   []string `json:"added,omitempty"`
	Pruned  []string `json:"pruned,omitempty"`
	Dropped []string `json:"dropped,omitempty"`
	Written bool     `json:"written"`
}

// Syncer merges extracted keys into the catalogs of every configured locale.
// It remembers what it last wrote per locale so unchanged catalogs are not
// rewritten; keep one Syncer per process.
type Syncer struct {
	cfg *config.Config

	mu   sync.Mutex
	prev map[string]string
}

func NewSyncer(cfg *config.Config) *Syncer {
	return &Syncer{cfg: cfg, prev: make(map[string]string)}
}

// Sync updates every locale's catalog so it holds exactly the extracted keys
// plus, unless pruning applies, the keys it already had.
//
// For each locale an existing message is kept for an extracted key, and the
// existing description fills in when the source has none. Keys only in the
// catalog survive unless prune_unused_keys is set and no whitelisted_keys
// pattern matches. New keys get an empty message.
func (s *Syncer) Sync(extracted []models.MessageEntry) ([]LocaleResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	originDir := s.cfg.OriginDir()
	collator := collate.New(languageTag(s.cfg.DefaultLocale))

	var results []LocaleResult
	for _, locale := range s.cfg.GetLocales() {
		existing, err := LoadMessageEntries(originDir, locale)
		if err != nil {
			return results, fmt.Errorf("failed to load %s messages: %w", locale, err)
		}

		merged, result := mergeCatalog(extracted, existing, &s.cfg.Messages)
		result.Locale = locale
		sortEntries(merged, collator)
		result.Total = len(merged)

		serialized, err := json.Marshal(merged)
		if err != nil {
			return results, err
		}
		if s.prev[locale] == string(serialized) {
			results = append(results, result)
			continue
		}

		dropped, err := WriteMessageEntries(originDir, locale, merged)
		result.Dropped = dropped
		if err != nil {
			return results, fmt.Errorf("failed to write %s messages: %w", locale, err)
		}
		s.prev[locale] = string(serialized)
		result.Written = true
		results = append(results, result)
	}
	return results, nil
}

// mergeCatalog combines one locale's existing entries with a private copy of
// the extracted entries.
func mergeCatalog(extracted, existing []models.MessageEntry, cfg *config.MessagesConfig) ([]models.MessageEntry, LocaleResult) {
	var result LocaleResult

	merged := make([]models.MessageEntry, len(extracted))
	copy(merged, extracted)
	index := make(map[string]int, len(merged))
	for i, e := range merged {
		index[e.Key] = i
	}

	known := make(map[string]bool, len(existing))
	for _, old := range existing {
		known[old.Key] = true
		if i, ok := index[old.Key]; ok {
			merged[i].Message = old.Message
			if merged[i].Description == "" {
				merged[i].Description = old.Description
			}
			continue
		}
		if cfg.PruneUnusedKeys && !cfg.IsWhitelisted(old.Key) {
			result.Pruned = append(result.Pruned, old.Key)
			continue
		}
		index[old.Key] = len(merged)
		merged = append(merged, old)
	}

	for _, e := range extracted {
		if !known[e.Key] {
			result.Added = append(result.Added, e.Key)
		}
	}
	return merged, result
}

func sortEntries(entries []models.MessageEntry, collator *collate.Collator) {
	sort.SliceStable(entries, func(i, j int) bool {
		return collator.CompareString(entries[i].Key, entries[j].Key) < 0
	})
}

func languageTag(locale string) language.Tag {
	tag, err := language.Parse(locale)
	if err != nil {
		return language.Und
	}
	return tag
}
