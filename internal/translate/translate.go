package translate

import (
	"context"
	"fmt"
	"globekeys/internal/config"
	"globekeys/internal/messages"
	"globekeys/internal/models"
)

// DefaultBatchSize is how many messages go into one model request unless
// GLOBEKEYS_TRANSLATE_BATCH overrides it
const DefaultBatchSize = 20

// Translator turns source messages into another locale
type Translator interface {
	TranslateBatch(ctx context.Context, sourceLocale, targetLocale string, reqs []models.TranslationRequest) (map[string]string, error)
}

// Options selects what Run translates
type Options struct {
	// Locales limits the run; empty means every non-default locale
	Locales []string
	DryRun  bool
}

// Result reports one locale
type Result struct {
	Locale     string            `json:"locale"`
	Missing    int               `json:"missing"`
	Translated map[string]string `json:"translated,omitempty"`
	Written    bool              `json:"written"`
}

type Service struct {
	cfg       *config.Config
	tr        Translator
	batchSize int
	quiet     bool
}

func NewService(cfg *config.Config, tr Translator) *Service {
	batch := config.GetInt(DefaultBatchSize, "GLOBEKEYS_TRANSLATE_BATCH", "translate_batch_size")
	if batch <= 0 {
		batch = DefaultBatchSize
	}
	return &Service{cfg: cfg, tr: tr, batchSize: batch}
}

// SetQuiet suppresses progress output
func (s *Service) SetQuiet(quiet bool) {
	s.quiet = quiet
}

func (s *Service) logf(format string, args ...interface{}) {
	if s.quiet {
		return
	}
	fmt.Printf(format, args...)
}

// Run fills the messages a locale lacks, or has empty, from the default
// locale's catalog. Keys without a default-locale message are left alone.
func (s *Service) Run(ctx context.Context, opts Options) ([]Result, error) {
	originDir := s.cfg.OriginDir()
	source, err := messages.LoadMessageEntries(originDir, s.cfg.DefaultLocale)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s messages: %w", s.cfg.DefaultLocale, err)
	}

	locales := opts.Locales
	if len(locales) == 0 {
		for _, l := range s.cfg.GetLocales() {
			if l != s.cfg.DefaultLocale {
				locales = append(locales, l)
			}
		}
	}

	var results []Result
	for _, locale := range locales {
		if locale == s.cfg.DefaultLocale {
			continue
		}
		result, err := s.translateLocale(ctx, locale, source, opts.DryRun)
		if err != nil {
			return results, err
		}
		results = append(results, result)
	}
	return results, nil
}

func (s *Service) translateLocale(ctx context.Context, locale string, source []models.MessageEntry, dryRun bool) (Result, error) {
	result := Result{Locale: locale}
	originDir := s.cfg.OriginDir()

	entries, err := messages.LoadMessageEntries(originDir, locale)
	if err != nil {
		return result, fmt.Errorf("failed to load %s messages: %w", locale, err)
	}
	reqs, entries := missingRequests(source, entries)
	result.Missing = len(reqs)
	if len(reqs) == 0 {
		s.logf("✓ %s: nothing to translate\n", locale)
		return result, nil
	}

	s.logf("→ %s: translating %d messages\n", locale, len(reqs))
	translated := make(map[string]string, len(reqs))
	for start := 0; start < len(reqs); start += s.batchSize {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		end := start + s.batchSize
		if end > len(reqs) {
			end = len(reqs)
		}
		out, err := s.tr.TranslateBatch(ctx, s.cfg.DefaultLocale, locale, reqs[start:end])
		if err != nil {
			return result, fmt.Errorf("failed to translate %s batch %d-%d: %w", locale, start, end, err)
		}
		for k, v := range out {
			translated[k] = v
		}
	}
	result.Translated = translated

	if len(translated) < len(reqs) {
		s.logf("⚠ %s: %d of %d messages came back untranslated\n", locale, len(reqs)-len(translated), len(reqs))
	}
	if dryRun || len(translated) == 0 {
		return result, nil
	}

	for i := range entries {
		if msg, ok := translated[entries[i].Key]; ok {
			entries[i].Message = msg
		}
	}
	dropped, err := messages.WriteMessageEntries(originDir, locale, entries)
	if err != nil {
		return result, fmt.Errorf("failed to write %s messages: %w", locale, err)
	}
	for _, key := range dropped {
		s.logf("⚠ %s: could not write %s\n", locale, key)
	}
	result.Written = true
	s.logf("✓ %s: translated %d messages\n", locale, len(translated))
	return result, nil
}

// missingRequests lists the source messages locale still needs. Keys absent
// from the locale are appended to its entries with an empty message.
func missingRequests(source, entries []models.MessageEntry) ([]models.TranslationRequest, []models.MessageEntry) {
	index := make(map[string]int, len(entries))
	for i, e := range entries {
		index[e.Key] = i
	}

	var reqs []models.TranslationRequest
	for _, src := range source {
		if src.Message == "" {
			continue
		}
		i, ok := index[src.Key]
		if !ok {
			index[src.Key] = len(entries)
			i = len(entries)
			entries = append(entries, models.MessageEntry{Key: src.Key})
		}
		if entries[i].Message != "" {
			continue
		}
		description := entries[i].Description
		if description == "" {
			description = src.Description
		}
		reqs = append(reqs, models.TranslationRequest{
			Key:         src.Key,
			Source:      src.Message,
			Description: description,
		})
	}
	return reqs, entries
}
