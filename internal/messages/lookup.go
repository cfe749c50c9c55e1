package messages

import (
	"errors"
	"fmt"
	"globekeys/internal/config"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

// ErrMessageNotFound is returned by Resolve when no locale has the key
var ErrMessageNotFound = errors.New("message not found")

// Resolver answers "what does this key say in that locale" over the project
// catalogs, falling back to the default locale the way the runtime does.
type Resolver struct {
	bundle        *i18n.Bundle
	defaultLocale string
	descriptions  map[language.Tag]map[string]string
}

// Resolution is one resolved message
type Resolution struct {
	Key         string `json:"key"`
	Locale      string `json:"locale"`
	Message     string `json:"message"`
	Description string `json:"description,omitempty"`
	Fallback    bool   `json:"fallback"`
}

// NewResolver loads every locale's catalog. Empty messages count as missing
// so that untranslated keys fall back.
func NewResolver(cfg *config.Config) (*Resolver, error) {
	defaultTag, err := language.Parse(cfg.DefaultLocale)
	if err != nil {
		return nil, fmt.Errorf("invalid default locale %q: %w", cfg.DefaultLocale, err)
	}
	bundle := i18n.NewBundle(defaultTag)
	descriptions := make(map[language.Tag]map[string]string)

	for _, locale := range cfg.GetLocales() {
		tag, err := language.Parse(locale)
		if err != nil {
			return nil, fmt.Errorf("invalid locale %q: %w", locale, err)
		}
		entries, err := LoadMessageEntries(cfg.OriginDir(), locale)
		if err != nil {
			return nil, err
		}

		msgs := make([]*i18n.Message, 0, len(entries))
		descriptions[tag] = make(map[string]string)
		for _, e := range entries {
			if e.Message == "" {
				continue
			}
			if e.Description != "" {
				descriptions[tag][e.Key] = e.Description
			}
			msgs = append(msgs, &i18n.Message{
				ID:          e.Key,
				Description: e.Description,
				Other:       e.Message,
			})
		}
		if err := bundle.AddMessages(tag, msgs...); err != nil {
			return nil, fmt.Errorf("failed to add %s messages: %w", locale, err)
		}
	}

	return &Resolver{bundle: bundle, defaultLocale: cfg.DefaultLocale, descriptions: descriptions}, nil
}

// Resolve looks key up in locale, then in the default locale
func (r *Resolver) Resolve(locale, key string) (*Resolution, error) {
	localizer := i18n.NewLocalizer(r.bundle, locale, r.defaultLocale)
	msg, tag, err := localizer.LocalizeWithTag(&i18n.LocalizeConfig{MessageID: key})
	if err != nil {
		var notFound *i18n.MessageNotFoundErr
		if errors.As(err, &notFound) && msg == "" {
			return nil, fmt.Errorf("%w: %s", ErrMessageNotFound, key)
		}
		if msg == "" {
			return nil, fmt.Errorf("failed to resolve %s: %w", key, err)
		}
	}

	resolved := tag.String()
	return &Resolution{
		Key:         key,
		Locale:      resolved,
		Message:     msg,
		Description: r.descriptions[tag][key],
		Fallback:    !sameLocale(resolved, locale),
	}, nil
}

func sameLocale(a, b string) bool {
	ta, errA := language.Parse(a)
	tb, errB := language.Parse(b)
	if errA != nil || errB != nil {
		return a == b
	}
	return ta == tb
}
