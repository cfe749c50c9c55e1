package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"globekeys/internal/analyzer"
	"globekeys/internal/config"
	"globekeys/internal/messages"
	"globekeys/internal/models"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const pageSource = `import { useTranslations } from "next-globe-gen";

export default function Page() {
  const t = useTranslations("home");
  return <h1>{t("title", { _description: "Page heading" })}</h1>;
}
`

type fakeFinder struct {
	indexed  []models.MessageEntry
	groups   []models.DuplicateGroup
	similar  []models.SimilarMessage
	lastText string
}

func (f *fakeFinder) IndexMessages(_ context.Context, _, _ string, entries []models.MessageEntry) (analyzer.IndexStats, error) {
	f.indexed = entries
	return analyzer.IndexStats{Total: len(entries)}, nil
}

func (f *fakeFinder) FindDuplicates(_ context.Context, _ string, _ float64, _ bool) ([]models.DuplicateGroup, error) {
	return f.groups, nil
}

func (f *fakeFinder) FindSimilar(_ context.Context, _, text string, _ uint64) ([]models.SimilarMessage, error) {
	f.lastText = text
	return f.similar, nil
}

type rpcReply struct {
	ID     interface{}     `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

type toolResult struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

func newTestServer(t *testing.T) (*Server, *config.Config, *fakeFinder) {
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
locales = ["en", "fi"]
default_locale = "en"

[messages]
origin_dir = "./messages"
key_extraction_dirs = ["./src"]
`)
	write("src/page.tsx", pageSource)
	write("messages/en.json", `{"home": {"title": "Welcome"}}`)

	cfg, err := config.Load(filepath.Join(dir, "globekeys.toml"))
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}

	finder := &fakeFinder{}
	s := NewServer(cfg, "test", "v0.0.0-test")
	s.connect = func() (DuplicateFinder, func() error, error) {
		return finder, func() error { return nil }, nil
	}
	return s, cfg, finder
}

func run(t *testing.T, s *Server, requests ...string) []rpcReply {
	t.Helper()
	var out bytes.Buffer
	in := strings.NewReader(strings.Join(requests, "\n"))
	if err := s.Run(context.Background(), in, &out); err != nil {
		t.Fatalf("Run: %v", err)
	}

	var replies []rpcReply
	for _, line := range strings.Split(strings.TrimSpace(out.String()), "\n") {
		if line == "" {
			continue
		}
		var r rpcReply
		if err := json.Unmarshal([]byte(line), &r); err != nil {
			t.Fatalf("invalid reply %q: %v", line, err)
		}
		replies = append(replies, r)
	}
	return replies
}

func toolText(t *testing.T, r rpcReply) string {
	t.Helper()
	if r.Error != nil {
		t.Fatalf("unexpected error reply: %+v", r.Error)
	}
	var res toolResult
	if err := json.Unmarshal(r.Result, &res); err != nil {
		t.Fatalf("invalid tool result: %v", err)
	}
	if len(res.Content) != 1 || res.Content[0].Type != "text" {
		t.Fatalf("unexpected content: %+v", res.Content)
	}
	return res.Content[0].Text
}

func TestProtocol(t *testing.T) {
	t.Parallel()

	s, _, _ := newTestServer(t)
	replies := run(t, s,
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/list"}`,
		`not json`,
		`{"jsonrpc":"2.0","id":3,"method":"resources/list"}`,
		`{"jsonrpc":"2.0","id":4,"method":"tools/call","params":{"name":"nope","arguments":{}}}`,
		`{"jsonrpc":"2.0","id":5,"method":"ping"}`,
	)
	if len(replies) != 6 {
		t.Fatalf("len(replies)=%d, want 6", len(replies))
	}

	var init struct {
		ProtocolVersion string            `json:"protocolVersion"`
		ServerInfo      map[string]string `json:"serverInfo"`
	}
	if err := json.Unmarshal(replies[0].Result, &init); err != nil {
		t.Fatalf("initialize result: %v", err)
	}
	if init.ProtocolVersion != protocolVersion || init.ServerInfo["version"] != "v0.0.0-test" {
		t.Fatalf("initialize=%+v", init)
	}

	var list struct {
		Tools []struct {
			Name string `json:"name"`
		} `json:"tools"`
	}
	if err := json.Unmarshal(replies[1].Result, &list); err != nil {
		t.Fatalf("tools/list result: %v", err)
	}
	var names []string
	for _, tool := range list.Tools {
		names = append(names, tool.Name)
	}
	wantNames := []string{"extract_keys", "sync_messages", "lookup_message", "find_duplicate_messages", "find_similar_messages"}
	if diff := cmp.Diff(wantNames, names); diff != "" {
		t.Fatalf("tools mismatch (-want +got):\n%s", diff)
	}

	wantCodes := []int{-32700, -32601, -32602}
	for i, code := range wantCodes {
		r := replies[2+i]
		if r.Error == nil || r.Error.Code != code {
			t.Fatalf("reply %d error=%+v, want code %d", 2+i, r.Error, code)
		}
	}
	if replies[5].Error != nil || replies[5].ID != float64(5) {
		t.Fatalf("ping reply=%+v", replies[5])
	}
}

func TestExtractKeys(t *testing.T) {
	t.Parallel()

	s, _, _ := newTestServer(t)
	replies := run(t, s,
		`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"extract_keys"}}`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"extract_keys","arguments":{"path":"src/page.tsx"}}}`,
		`{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"extract_keys","arguments":{"path":"missing"}}}`,
	)
	want := []models.MessageEntry{{Key: "home.title", Description: "Page heading"}}
	for _, r := range replies[:2] {
		var got []models.MessageEntry
		if err := json.Unmarshal([]byte(toolText(t, r)), &got); err != nil {
			t.Fatalf("entries: %v", err)
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("entries mismatch (-want +got):\n%s", diff)
		}
	}
	if replies[2].Error == nil || replies[2].Error.Code != -32603 {
		t.Fatalf("missing path reply=%+v, want internal error", replies[2])
	}
}

func TestSyncAndLookup(t *testing.T) {
	t.Parallel()

	s, cfg, _ := newTestServer(t)
	replies := run(t, s,
		`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"sync_messages","arguments":{}}}`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"lookup_message","arguments":{"key":"home.title","locale":"fi"}}}`,
		`{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"lookup_message","arguments":{"key":"home.nope"}}}`,
	)

	var results []messages.LocaleResult
	if err := json.Unmarshal([]byte(toolText(t, replies[0])), &results); err != nil {
		t.Fatalf("sync results: %v", err)
	}
	if len(results) != 2 || results[1].Locale != "fi" || !results[1].Written {
		t.Fatalf("sync results=%+v", results)
	}
	fi, err := messages.LoadMessageEntries(cfg.OriginDir(), "fi")
	if err != nil {
		t.Fatalf("LoadMessageEntries: %v", err)
	}
	if diff := cmp.Diff([]models.MessageEntry{{Key: "home.title"}}, fi); diff != "" {
		t.Fatalf("fi mismatch (-want +got):\n%s", diff)
	}

	var res messages.Resolution
	if err := json.Unmarshal([]byte(toolText(t, replies[1])), &res); err != nil {
		t.Fatalf("resolution: %v", err)
	}
	want := messages.Resolution{Key: "home.title", Locale: "en", Message: "Welcome", Fallback: true}
	if diff := cmp.Diff(want, res); diff != "" {
		t.Fatalf("resolution mismatch (-want +got):\n%s", diff)
	}

	if replies[2].Error == nil || !strings.Contains(replies[2].Error.Message, "message not found") {
		t.Fatalf("lookup of unknown key=%+v, want not found error", replies[2])
	}
}

func TestFindDuplicateMessages(t *testing.T) {
	t.Parallel()

	s, _, finder := newTestServer(t)
	finder.groups = []models.DuplicateGroup{{
		Messages: []models.MessagePayload{{Locale: "en", Key: "a"}, {Locale: "en", Key: "b"}},
		AvgScore: 0.97,
	}}
	finder.similar = []models.SimilarMessage{{MessagePayload: models.MessagePayload{Key: "home.title"}, Score: 0.8}}

	replies := run(t, s,
		`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"find_duplicate_messages","arguments":{"threshold":0.95}}}`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"find_similar_messages","arguments":{"text":"Hello there"}}}`,
		`{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"find_similar_messages","arguments":{"text":" "}}}`,
	)

	var groups []models.DuplicateGroup
	if err := json.Unmarshal([]byte(toolText(t, replies[0])), &groups); err != nil {
		t.Fatalf("groups: %v", err)
	}
	if diff := cmp.Diff(finder.groups, groups); diff != "" {
		t.Fatalf("groups mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]models.MessageEntry{{Key: "home.title", Message: "Welcome"}}, finder.indexed); diff != "" {
		t.Fatalf("indexed mismatch (-want +got):\n%s", diff)
	}

	var similar []models.SimilarMessage
	if err := json.Unmarshal([]byte(toolText(t, replies[1])), &similar); err != nil {
		t.Fatalf("similar: %v", err)
	}
	if len(similar) != 1 || finder.lastText != "Hello there" {
		t.Fatalf("similar=%+v text=%q", similar, finder.lastText)
	}
	if replies[2].Error == nil {
		t.Fatalf("blank text should fail")
	}
}

func TestConnectFailure(t *testing.T) {
	t.Parallel()

	s, _, _ := newTestServer(t)
	s.connect = func() (DuplicateFinder, func() error, error) {
		return nil, nil, errors.New("qdrant unreachable")
	}
	replies := run(t, s,
		`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"find_duplicate_messages"}}`,
	)
	if replies[0].Error == nil || !strings.Contains(replies[0].Error.Message, "qdrant unreachable") {
		t.Fatalf("reply=%+v, want connect error", replies[0])
	}
}

func TestExtractKeysSubdirKeepsProjectCache(t *testing.T) {
	t.Parallel()

	s, cfg, _ := newTestServer(t)
	sub := filepath.Join(cfg.Dir, "src", "widgets")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(sub, "button.tsx"), []byte(pageSource), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	replies := run(t, s,
		`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"sync_messages","arguments":{}}}`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"extract_keys","arguments":{"path":"src/widgets"}}}`,
	)
	toolText(t, replies[0])
	toolText(t, replies[1])

	if got := len(s.indexer.CachedFiles()); got != 2 {
		t.Fatalf("project cache holds %d files after subdir extract, want 2", got)
	}
	if got := len(s.adhoc.CachedFiles()); got != 1 {
		t.Fatalf("adhoc cache holds %d files, want 1", got)
	}
}
