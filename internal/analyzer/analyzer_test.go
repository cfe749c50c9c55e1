package analyzer

import (
	"context"
	"errors"
	"globekeys/internal/models"
	"globekeys/internal/utils"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	qdrantpb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type storedPoint struct {
	payload map[string]*qdrantpb.Value
	vector  []float32
}

type fakeStore struct {
	mu      sync.Mutex
	exists  bool
	size    uint64
	points  map[uint64]storedPoint
	upserts int
}

func newFakeStore() *fakeStore {
	return &fakeStore{points: make(map[uint64]storedPoint)}
}

func (s *fakeStore) EnsureCollection(_ context.Context, _ string, size uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exists = true
	s.size = size
	return nil
}

func (s *fakeStore) Upsert(_ context.Context, _ string, points []*qdrantpb.PointStruct) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserts++
	for _, p := range points {
		s.points[p.GetId().GetNum()] = storedPoint{
			payload: p.GetPayload(),
			vector:  p.GetVectors().GetVector().GetData(),
		}
	}
	return nil
}

func (s *fakeStore) ids() []uint64 {
	ids := make([]uint64, 0, len(s.points))
	for id := range s.points {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Scroll pages two points at a time to exercise offsets.
func (s *fakeStore) Scroll(_ context.Context, _ string, _ uint32, offset *qdrantpb.PointId) ([]*qdrantpb.RetrievedPoint, *qdrantpb.PointId, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.exists {
		return nil, nil, status.Error(codes.NotFound, "collection not found")
	}
	ids := s.ids()
	start := 0
	if offset != nil {
		start = sort.Search(len(ids), func(i int) bool { return ids[i] >= offset.GetNum() })
	}
	end := start + 2
	if end > len(ids) {
		end = len(ids)
	}
	var out []*qdrantpb.RetrievedPoint
	for _, id := range ids[start:end] {
		p := s.points[id]
		out = append(out, &qdrantpb.RetrievedPoint{
			Id:      &qdrantpb.PointId{PointIdOptions: &qdrantpb.PointId_Num{Num: id}},
			Payload: p.payload,
			Vectors: &qdrantpb.VectorsOutput{
				VectorsOptions: &qdrantpb.VectorsOutput_Vector{
					Vector: &qdrantpb.VectorOutput{Data: p.vector},
				},
			},
		})
	}
	var next *qdrantpb.PointId
	if end < len(ids) {
		next = &qdrantpb.PointId{PointIdOptions: &qdrantpb.PointId_Num{Num: ids[end]}}
	}
	return out, next, nil
}

func (s *fakeStore) Search(_ context.Context, _ string, vector []float32, limit uint64) ([]*qdrantpb.ScoredPoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*qdrantpb.ScoredPoint
	for _, id := range s.ids() {
		p := s.points[id]
		out = append(out, &qdrantpb.ScoredPoint{
			Payload: p.payload,
			Score:   float32(utils.CosineSim(vector, p.vector)),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if uint64(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *fakeStore) DeleteByFilter(_ context.Context, _ string, filter *qdrantpb.Filter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	hashes := make(map[string]bool)
	for _, c := range filter.GetShould() {
		if c.GetField().GetKey() == "message_hash" {
			hashes[c.GetField().GetMatch().GetKeyword()] = true
		}
	}
	for id, p := range s.points {
		if hashes[p.payload["message_hash"].GetStringValue()] {
			delete(s.points, id)
		}
	}
	return nil
}

// fakeEmbedder maps a message to a vector by its first word, so messages
// sharing a first word are identical in vector space.
type fakeEmbedder struct {
	mu    sync.Mutex
	calls [][]string
}

func (e *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, texts)
	out := make([][]float32, len(texts))
	for i, text := range texts {
		word := strings.ToLower(strings.Fields(text)[0])
		switch word {
		case "save":
			out[i] = []float32{1, 0, 0}
		case "store":
			out[i] = []float32{0.95, 0.05, 0}
		case "delete":
			out[i] = []float32{0, 1, 0}
		default:
			out[i] = []float32{0, 0, 1}
		}
	}
	return out, nil
}

type fakeClassifier struct {
	reject map[string]bool
	err    error
}

func (c *fakeClassifier) ClassifyDuplicatePair(_ context.Context, a, b models.MessagePayload, _ float64) (bool, string, error) {
	if c.err != nil {
		return false, "", c.err
	}
	if c.reject[a.Key] || c.reject[b.Key] {
		return false, "different", nil
	}
	return true, "same action", nil
}

var testEntries = []models.MessageEntry{
	{Key: "form.save", Message: "Save"},
	{Key: "toolbar.save", Message: "Save changes"},
	{Key: "menu.store", Message: "Store it"},
	{Key: "form.delete", Message: "Delete"},
	{Key: "empty", Message: ""},
	{Key: "title", Message: "Welcome"},
}

func TestCollectionName(t *testing.T) {
	t.Parallel()

	if got := CollectionName("abc123"); got != "globekeys_abc123" {
		t.Fatalf("CollectionName=%q, want %q", got, "globekeys_abc123")
	}
	if got := CollectionName("  "); got != "globekeys_default" {
		t.Fatalf("CollectionName=%q, want %q", got, "globekeys_default")
	}
}

func TestIndexMessages(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	emb := &fakeEmbedder{}
	a := NewAnalyzer(store, emb, nil)
	a.SetQuiet(true)
	ctx := context.Background()

	stats, err := a.IndexMessages(ctx, "c", "en", testEntries)
	if err != nil {
		t.Fatalf("IndexMessages: %v", err)
	}
	if diff := cmp.Diff(IndexStats{Total: 5, Embedded: 5}, stats); diff != "" {
		t.Fatalf("stats mismatch (-want +got):\n%s", diff)
	}
	if store.size != 3 {
		t.Fatalf("collection size=%d, want 3", store.size)
	}
	if len(store.points) != 5 {
		t.Fatalf("len(points)=%d, want 5", len(store.points))
	}

	// Unchanged messages are not embedded again; removed ones are deleted.
	changed := []models.MessageEntry{
		{Key: "form.save", Message: "Save"},
		{Key: "toolbar.save", Message: "Save all changes"},
	}
	stats, err = a.IndexMessages(ctx, "c", "en", changed)
	if err != nil {
		t.Fatalf("IndexMessages: %v", err)
	}
	if diff := cmp.Diff(IndexStats{Total: 2, Embedded: 1, Removed: 4}, stats); diff != "" {
		t.Fatalf("stats mismatch (-want +got):\n%s", diff)
	}
	if len(store.points) != 2 {
		t.Fatalf("len(points)=%d, want 2", len(store.points))
	}
	if diff := cmp.Diff([]string{"Save all changes"}, emb.calls[len(emb.calls)-1]); diff != "" {
		t.Fatalf("embedded texts mismatch (-want +got):\n%s", diff)
	}

	stats, err = a.IndexMessages(ctx, "c", "en", changed)
	if err != nil {
		t.Fatalf("IndexMessages: %v", err)
	}
	if stats.Embedded != 0 || stats.Removed != 0 {
		t.Fatalf("stats=%+v, want nothing to do", stats)
	}
	if store.upserts != 2 {
		t.Fatalf("upserts=%d, want 2", store.upserts)
	}
}

func TestFindDuplicates(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	a := NewAnalyzer(store, &fakeEmbedder{}, nil)
	a.SetQuiet(true)
	ctx := context.Background()

	if _, err := a.IndexMessages(ctx, "c", "en", testEntries); err != nil {
		t.Fatalf("IndexMessages: %v", err)
	}
	groups, err := a.FindDuplicates(ctx, "c", 0.9, false)
	if err != nil {
		t.Fatalf("FindDuplicates: %v", err)
	}
	if len(groups) != 1 {
		t.Fatalf("len(groups)=%d, want 1: %+v", len(groups), groups)
	}

	var keys []string
	for _, m := range groups[0].Messages {
		keys = append(keys, m.Key)
	}
	if diff := cmp.Diff([]string{"form.save", "menu.store", "toolbar.save"}, keys); diff != "" {
		t.Fatalf("group keys mismatch (-want +got):\n%s", diff)
	}
	if groups[0].AvgScore < 0.9 || groups[0].AvgScore > 1.0001 {
		t.Fatalf("AvgScore=%v, want within [0.9, 1]", groups[0].AvgScore)
	}
}

func TestFindDuplicatesConfirm(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	classifier := &fakeClassifier{reject: map[string]bool{"menu.store": true}}
	a := NewAnalyzer(store, &fakeEmbedder{}, classifier)
	a.SetQuiet(true)
	ctx := context.Background()

	if _, err := a.IndexMessages(ctx, "c", "en", testEntries); err != nil {
		t.Fatalf("IndexMessages: %v", err)
	}
	groups, err := a.FindDuplicates(ctx, "c", 0.9, true)
	if err != nil {
		t.Fatalf("FindDuplicates: %v", err)
	}
	if len(groups) != 1 {
		t.Fatalf("len(groups)=%d, want 1", len(groups))
	}
	if len(groups[0].Messages) != 2 || groups[0].Reason != "same action" {
		t.Fatalf("group=%+v, want the two save messages with a reason", groups[0])
	}

	classifier.err = errors.New("model down")
	groups, err = a.FindDuplicates(ctx, "c", 0.9, true)
	if err != nil {
		t.Fatalf("FindDuplicates: %v", err)
	}
	if len(groups) != 0 {
		t.Fatalf("len(groups)=%d, want 0 when every classification fails", len(groups))
	}
}

func TestFindDuplicatesMissingCollection(t *testing.T) {
	t.Parallel()

	a := NewAnalyzer(newFakeStore(), &fakeEmbedder{}, nil)
	a.SetQuiet(true)
	if _, err := a.FindDuplicates(context.Background(), "c", 0.9, false); status.Code(errors.Unwrap(err)) != codes.NotFound {
		t.Fatalf("FindDuplicates err=%v, want NotFound", err)
	}
}

func TestFindSimilar(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	a := NewAnalyzer(store, &fakeEmbedder{}, nil)
	a.SetQuiet(true)
	ctx := context.Background()

	if _, err := a.IndexMessages(ctx, "c", "en", testEntries); err != nil {
		t.Fatalf("IndexMessages: %v", err)
	}
	got, err := a.FindSimilar(ctx, "c", "delete forever", 1)
	if err != nil {
		t.Fatalf("FindSimilar: %v", err)
	}
	if len(got) != 1 || got[0].Key != "form.delete" {
		t.Fatalf("FindSimilar=%+v, want form.delete", got)
	}
	if got[0].Score < 0.99 {
		t.Fatalf("Score=%v, want ~1", got[0].Score)
	}
}

func TestCandidatePairs(t *testing.T) {
	t.Parallel()

	payloads := []models.MessagePayload{
		{Locale: "en", Key: "a", MessageHash: "1"},
		{Locale: "en", Key: "b", MessageHash: "2"},
		{Locale: "fi", Key: "a", MessageHash: "3"},
		{Locale: "en", Key: "c", MessageHash: "4"},
	}
	vectors := [][]float32{{1, 0}, {1, 0}, {1, 0}, {0.6, 0.8}}

	got := candidatePairs(payloads, vectors, 0.9)
	if len(got) != 1 || got[0].A.Key != "a" || got[0].B.Key != "b" {
		t.Fatalf("candidatePairs=%+v, want only a/b in en", got)
	}
}

func TestBuildDuplicateGroups(t *testing.T) {
	t.Parallel()

	m := func(key string) models.MessagePayload {
		return models.MessagePayload{Locale: "en", Key: key, MessageHash: "h-" + key}
	}
	pairs := []models.PairCandidate{
		{A: m("x"), B: m("y"), Score: 0.9, Reason: "r1"},
		{A: m("y"), B: m("z"), Score: 1.0},
		{A: m("a"), B: m("b"), Score: 0.95},
	}
	got := buildDuplicateGroups(pairs)
	want := []models.DuplicateGroup{
		{Messages: []models.MessagePayload{m("a"), m("b")}, AvgScore: 0.95},
		{Messages: []models.MessagePayload{m("x"), m("y"), m("z")}, AvgScore: 0.95, Reason: "r1"},
	}
	if diff := cmp.Diff(want, got, cmpopts.EquateApprox(0, 1e-9)); diff != "" {
		t.Fatalf("groups mismatch (-want +got):\n%s", diff)
	}

	if got := buildDuplicateGroups(nil); got != nil {
		t.Fatalf("buildDuplicateGroups(nil)=%v, want nil", got)
	}
}

func TestMessagePayloads(t *testing.T) {
	t.Parallel()

	got := messagePayloads("en", []models.MessageEntry{
		{Key: "a", Message: "A"},
		{Key: "b", Message: "  "},
		{Key: "a", Message: "again"},
	})
	if len(got) != 1 || got[0].Key != "a" || got[0].Message != "A" {
		t.Fatalf("messagePayloads=%+v, want only the first a", got)
	}
	other := messagePayloads("fi", []models.MessageEntry{{Key: "a", Message: "A"}})
	if got[0].MessageHash == other[0].MessageHash {
		t.Fatalf("hash should differ between locales")
	}
}

func TestContentHashToPointID(t *testing.T) {
	t.Parallel()

	a := contentHashToPointID(utils.HashContent("a"))
	if a != contentHashToPointID(utils.HashContent("a")) {
		t.Fatalf("point id is not stable")
	}
	if a == contentHashToPointID(utils.HashContent("b")) {
		t.Fatalf("distinct hashes map to the same point id")
	}
}
