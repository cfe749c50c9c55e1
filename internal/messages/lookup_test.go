package messages

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestResolver(t *testing.T) {
	t.Parallel()

	cfg := newTestConfig(t, `
locales = ["en", "fi"]
default_locale = "en"

[messages]
origin_dir = "./messages"
`)
	writeFile(t, filepath.Join(cfg.OriginDir(), "en.yml"), "title: Home\n# Shown alone\nonly: Only English\n")
	writeFile(t, filepath.Join(cfg.OriginDir(), "fi.json"), `{"title": "Koti", "only": ""}`)

	r, err := NewResolver(cfg)
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}

	tests := []struct {
		name   string
		locale string
		key    string
		want   *Resolution
	}{
		{
			name:   "translated",
			locale: "fi",
			key:    "title",
			want:   &Resolution{Key: "title", Locale: "fi", Message: "Koti"},
		},
		{
			name:   "empty falls back",
			locale: "fi",
			key:    "only",
			want:   &Resolution{Key: "only", Locale: "en", Message: "Only English", Description: "Shown alone", Fallback: true},
		},
		{
			name:   "default locale",
			locale: "en",
			key:    "title",
			want:   &Resolution{Key: "title", Locale: "en", Message: "Home"},
		},
		{
			name:   "unknown locale uses default",
			locale: "sv",
			key:    "title",
			want:   &Resolution{Key: "title", Locale: "en", Message: "Home", Fallback: true},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Resolve(tt.locale, tt.key)
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatalf("Resolve mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestResolverNotFound(t *testing.T) {
	t.Parallel()

	cfg := newTestConfig(t, `
locales = ["en", "fi"]
default_locale = "en"

[messages]
origin_dir = "./messages"
`)
	writeFile(t, filepath.Join(cfg.OriginDir(), "en.json"), `{"title": "Home"}`)

	r, err := NewResolver(cfg)
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	if _, err := r.Resolve("fi", "missing"); !errors.Is(err, ErrMessageNotFound) {
		t.Fatalf("Resolve err=%v, want ErrMessageNotFound", err)
	}
}

func TestSameLocale(t *testing.T) {
	t.Parallel()

	if !sameLocale("en-US", "en-us") {
		t.Fatalf("sameLocale(en-US, en-us)=false, want true")
	}
	if sameLocale("en", "en-US") {
		t.Fatalf("sameLocale(en, en-US)=true, want false")
	}
}
