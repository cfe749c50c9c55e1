package translate

import (
	"context"
	"errors"
	"globekeys/internal/config"
	"globekeys/internal/messages"
	"globekeys/internal/models"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
)

type fakeTranslator struct {
	mu      sync.Mutex
	batches [][]models.TranslationRequest
	err     error
}

func (f *fakeTranslator) TranslateBatch(_ context.Context, source, target string, reqs []models.TranslationRequest) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.batches = append(f.batches, reqs)
	out := make(map[string]string)
	for _, r := range reqs {
		if strings.HasPrefix(r.Key, "skip") {
			continue
		}
		out[r.Key] = target + ":" + r.Source
	}
	return out, nil
}

func setup(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	write := func(rel, content string) {
		path := filepath.Join(dir, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	write("globekeys.toml", `
locales = ["en", "fi", "sv"]
default_locale = "en"

[messages]
origin_dir = "./messages"
`)
	write("messages/en.yml", "title: Home\n# Checkout button\ncta: Buy\nempty: \"\"\nskip_me: Skip\n")
	write("messages/fi.json", `{"title": "Koti", "cta": "", "empty": ""}`)

	cfg, err := config.Load(filepath.Join(dir, "globekeys.toml"))
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}
	return cfg
}

func TestRun(t *testing.T) {
	t.Parallel()

	cfg := setup(t)
	fake := &fakeTranslator{}
	svc := NewService(cfg, fake)
	svc.SetQuiet(true)

	results, err := svc.Run(context.Background(), Options{Locales: []string{"fi"}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := []Result{{
		Locale:     "fi",
		Missing:    2,
		Translated: map[string]string{"cta": "fi:Buy"},
		Written:    true,
	}}
	if diff := cmp.Diff(want, results); diff != "" {
		t.Fatalf("results mismatch (-want +got):\n%s", diff)
	}

	wantReqs := [][]models.TranslationRequest{{
		{Key: "cta", Source: "Buy", Description: "Checkout button"},
		{Key: "skip_me", Source: "Skip"},
	}}
	if diff := cmp.Diff(wantReqs, fake.batches); diff != "" {
		t.Fatalf("requests mismatch (-want +got):\n%s", diff)
	}

	got, err := messages.LoadMessageEntries(cfg.OriginDir(), "fi")
	if err != nil {
		t.Fatalf("LoadMessageEntries: %v", err)
	}
	wantEntries := []models.MessageEntry{
		{Key: "title", Message: "Koti"},
		{Key: "cta", Message: "fi:Buy"},
		{Key: "empty", Message: ""},
		{Key: "skip_me", Message: ""},
	}
	if diff := cmp.Diff(wantEntries, got); diff != "" {
		t.Fatalf("fi mismatch (-want +got):\n%s", diff)
	}
}

func TestRunDryRun(t *testing.T) {
	t.Parallel()

	cfg := setup(t)
	svc := NewService(cfg, &fakeTranslator{})
	svc.SetQuiet(true)

	results, err := svc.Run(context.Background(), Options{DryRun: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("len(results)=%d, want 2", len(results))
	}
	for _, r := range results {
		if r.Written {
			t.Fatalf("%s: Written=true in dry run", r.Locale)
		}
	}
	if results[1].Locale != "sv" || results[1].Missing != 3 {
		t.Fatalf("sv result=%+v, want 3 missing", results[1])
	}
	if _, err := os.Stat(filepath.Join(cfg.OriginDir(), "sv.json")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("sv.json should not exist after dry run, stat err=%v", err)
	}
}

func TestRunBatches(t *testing.T) {
	t.Parallel()

	cfg := setup(t)
	fake := &fakeTranslator{}
	svc := NewService(cfg, fake)
	svc.SetQuiet(true)
	svc.batchSize = 2

	if _, err := svc.Run(context.Background(), Options{Locales: []string{"sv"}, DryRun: true}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	var sizes []int
	for _, b := range fake.batches {
		sizes = append(sizes, len(b))
	}
	if diff := cmp.Diff([]int{2, 1}, sizes); diff != "" {
		t.Fatalf("batch sizes mismatch (-want +got):\n%s", diff)
	}
}

func TestRunError(t *testing.T) {
	t.Parallel()

	cfg := setup(t)
	boom := errors.New("rate limited")
	svc := NewService(cfg, &fakeTranslator{err: boom})
	svc.SetQuiet(true)

	if _, err := svc.Run(context.Background(), Options{Locales: []string{"fi"}}); !errors.Is(err, boom) {
		t.Fatalf("Run err=%v, want %v", err, boom)
	}
}

func TestRunCanceled(t *testing.T) {
	t.Parallel()

	cfg := setup(t)
	svc := NewService(cfg, &fakeTranslator{})
	svc.SetQuiet(true)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := svc.Run(ctx, Options{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run err=%v, want context.Canceled", err)
	}
}

func TestMissingRequests(t *testing.T) {
	t.Parallel()

	source := []models.MessageEntry{
		{Key: "a", Message: "A", Description: "source note"},
		{Key: "b", Message: "B"},
		{Key: "c", Message: ""},
		{Key: "d", Message: "D"},
	}
	entries := []models.MessageEntry{
		{Key: "a", Message: "", Description: "local note"},
		{Key: "b", Message: "Bee"},
		{Key: "z", Message: "Zed"},
	}
	reqs, merged := missingRequests(source, entries)

	wantReqs := []models.TranslationRequest{
		{Key: "a", Source: "A", Description: "local note"},
		{Key: "d", Source: "D"},
	}
	if diff := cmp.Diff(wantReqs, reqs); diff != "" {
		t.Fatalf("requests mismatch (-want +got):\n%s", diff)
	}
	wantMerged := []models.MessageEntry{
		{Key: "a", Message: "", Description: "local note"},
		{Key: "b", Message: "Bee"},
		{Key: "z", Message: "Zed"},
		{Key: "d"},
	}
	if diff := cmp.Diff(wantMerged, merged); diff != "" {
		t.Fatalf("entries mismatch (-want +got):\n%s", diff)
	}
}
