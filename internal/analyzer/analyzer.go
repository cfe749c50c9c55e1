package analyzer

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"globekeys/internal/embeddings"
	"globekeys/internal/llm"
	"globekeys/internal/models"
	"globekeys/internal/qdrant"
	"globekeys/internal/utils"
	"os"
	"sort"
	"strings"

	qdrantpb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	collectionPrefix = "globekeys_"
	scrollPageSize   = 100

	// DefaultThreshold is the cosine similarity above which two messages
	// are duplicate candidates
	DefaultThreshold = 0.92
)

// CollectionName returns the vector collection of a project
func CollectionName(projectID string) string {
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		projectID = "default"
	}
	return collectionPrefix + projectID
}

// VectorStore is the subset of the Qdrant client the analyzer needs
type VectorStore interface {
	EnsureCollection(ctx context.Context, name string, vectorSize uint64) error
	Upsert(ctx context.Context, collection string, points []*qdrantpb.PointStruct) error
	Scroll(ctx context.Context, collection string, limit uint32, offset *qdrantpb.PointId) ([]*qdrantpb.RetrievedPoint, *qdrantpb.PointId, error)
	Search(ctx context.Context, collection string, vector []float32, limit uint64) ([]*qdrantpb.ScoredPoint, error)
	DeleteByFilter(ctx context.Context, collection string, filter *qdrantpb.Filter) error
}

type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

type PairClassifier interface {
	ClassifyDuplicatePair(ctx context.Context, a, b models.MessagePayload, score float64) (bool, string, error)
}

type Analyzer struct {
	store      VectorStore
	embedder   Embedder
	classifier PairClassifier
	quiet      bool
}

// NewAnalyzer wires the analyzer. classifier may be nil when pairs are never
// confirmed.
func NewAnalyzer(store VectorStore, embedder Embedder, classifier PairClassifier) *Analyzer {
	return &Analyzer{
		store:      store,
		embedder:   embedder,
		classifier: classifier,
	}
}

// SetQuiet suppresses progress output
func (a *Analyzer) SetQuiet(quiet bool) {
	a.quiet = quiet
}

func (a *Analyzer) logf(format string, args ...interface{}) {
	if a.quiet {
		return
	}
	fmt.Printf(format, args...)
}

// IndexStats reports what IndexMessages changed
type IndexStats struct {
	Total    int `json:"total"`
	Embedded int `json:"embedded"`
	Removed  int `json:"removed"`
}

// IndexMessages makes the collection hold exactly the non-empty messages of
// entries for locale. Messages already stored with the same hash are not
// embedded again.
func (a *Analyzer) IndexMessages(ctx context.Context, collection, locale string, entries []models.MessageEntry) (IndexStats, error) {
	payloads := messagePayloads(locale, entries)
	stats := IndexStats{Total: len(payloads)}

	stored, _, err := a.fetchAll(ctx, collection)
	if err != nil && status.Code(err) != codes.NotFound {
		return stats, fmt.Errorf("failed to read collection %s: %w", collection, err)
	}
	known := make(map[string]bool, len(stored))
	for _, p := range stored {
		known[p.MessageHash] = true
	}

	current := make(map[string]bool, len(payloads))
	var todo []models.MessagePayload
	for _, p := range payloads {
		current[p.MessageHash] = true
		if !known[p.MessageHash] {
			todo = append(todo, p)
		}
	}

	if len(todo) > 0 {
		if err := a.embedAndUpsert(ctx, collection, todo); err != nil {
			return stats, err
		}
		stats.Embedded = len(todo)
	}

	var stale []string
	for _, p := range stored {
		if p.Locale == locale && !current[p.MessageHash] {
			stale = append(stale, p.MessageHash)
		}
	}
	if len(stale) > 0 {
		if err := a.store.DeleteByFilter(ctx, collection, qdrant.KeywordFilter("message_hash", stale)); err != nil {
			return stats, fmt.Errorf("failed to delete stale messages: %w", err)
		}
		stats.Removed = len(stale)
	}

	a.logf("✓ Indexed %d messages (%d embedded, %d removed)\n", stats.Total, stats.Embedded, stats.Removed)
	return stats, nil
}

func (a *Analyzer) embedAndUpsert(ctx context.Context, collection string, payloads []models.MessagePayload) error {
	texts := make([]string, len(payloads))
	for i, p := range payloads {
		texts[i] = p.Message
	}
	vectors, err := a.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("failed to embed messages: %w", err)
	}
	if len(vectors) != len(payloads) || len(vectors[0]) == 0 {
		return fmt.Errorf("got %d embedding vectors for %d messages", len(vectors), len(payloads))
	}

	// The collection is created lazily with the dimension the model returned.
	if err := a.store.EnsureCollection(ctx, collection, uint64(len(vectors[0]))); err != nil {
		return fmt.Errorf("failed to ensure collection %s: %w", collection, err)
	}

	points := make([]*qdrantpb.PointStruct, 0, len(payloads))
	for i, p := range payloads {
		points = append(points, &qdrantpb.PointStruct{
			Id: &qdrantpb.PointId{
				PointIdOptions: &qdrantpb.PointId_Num{
					Num: contentHashToPointID(p.MessageHash),
				},
			},
			Vectors: &qdrantpb.Vectors{
				VectorsOptions: &qdrantpb.Vectors_Vector{
					Vector: &qdrantpb.Vector{
						Data: vectors[i],
					},
				},
			},
			Payload: qdrant.MapToPayload(payloadMap(p)),
		})
	}
	if err := a.store.Upsert(ctx, collection, points); err != nil {
		return fmt.Errorf("failed to upsert messages: %w", err)
	}
	return nil
}

// FindDuplicates pairs stored messages of the same locale whose similarity
// reaches threshold and merges the pairs into groups. With confirm, every
// pair is first checked by the classifier.
func (a *Analyzer) FindDuplicates(ctx context.Context, collection string, threshold float64, confirm bool) ([]models.DuplicateGroup, error) {
	payloads, vectors, err := a.fetchAll(ctx, collection)
	if err != nil {
		return nil, fmt.Errorf("failed to read collection %s: %w", collection, err)
	}

	candidates := candidatePairs(payloads, vectors, threshold)
	a.logf("→ %d candidate pairs above %.2f\n", len(candidates), threshold)

	if confirm && a.classifier != nil {
		candidates, err = a.filterDuplicatePairs(ctx, candidates)
		if err != nil {
			return nil, err
		}
		a.logf("✓ %d pairs confirmed\n", len(candidates))
	}
	return buildDuplicateGroups(candidates), nil
}

// FindSimilar returns the stored messages closest to text
func (a *Analyzer) FindSimilar(ctx context.Context, collection, text string, limit uint64) ([]models.SimilarMessage, error) {
	vectors, err := a.embedder.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil, fmt.Errorf("no embedding returned for query")
	}

	points, err := a.store.Search(ctx, collection, vectors[0], limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search %s: %w", collection, err)
	}
	out := make([]models.SimilarMessage, 0, len(points))
	for _, p := range points {
		payload, err := payloadFromMap(qdrant.PayloadToMap(p.Payload))
		if err != nil {
			continue
		}
		out = append(out, models.SimilarMessage{MessagePayload: payload, Score: float64(p.Score)})
	}
	return out, nil
}

func (a *Analyzer) fetchAll(ctx context.Context, collection string) ([]models.MessagePayload, [][]float32, error) {
	var payloads []models.MessagePayload
	var vectors [][]float32

	var offset *qdrantpb.PointId
	for {
		points, nextOffset, err := a.store.Scroll(ctx, collection, scrollPageSize, offset)
		if err != nil {
			return nil, nil, err
		}

		for _, point := range points {
			vec := point.GetVectors().GetVector().GetData()
			if len(vec) == 0 {
				continue
			}
			payload, err := payloadFromMap(qdrant.PayloadToMap(point.Payload))
			if err != nil || payload.MessageHash == "" {
				continue
			}
			payloads = append(payloads, payload)
			vectors = append(vectors, vec)
		}

		if nextOffset == nil || len(points) == 0 {
			break
		}
		offset = nextOffset
	}
	return payloads, vectors, nil
}

func (a *Analyzer) filterDuplicatePairs(ctx context.Context, candidates []models.PairCandidate) ([]models.PairCandidate, error) {
	var confirmed []models.PairCandidate
	for _, candidate := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		isDup, reason, err := a.classifier.ClassifyDuplicatePair(ctx, candidate.A, candidate.B, candidate.Score)
		if err != nil {
			fmt.Fprintf(os.Stderr, "⚠ Could not classify %s / %s: %v\n", candidate.A.Key, candidate.B.Key, err)
			continue
		}
		if isDup {
			candidate.Reason = reason
			confirmed = append(confirmed, candidate)
		}
	}
	return confirmed, nil
}

func candidatePairs(payloads []models.MessagePayload, vectors [][]float32, threshold float64) []models.PairCandidate {
	var candidates []models.PairCandidate
	for i := 0; i < len(vectors); i++ {
		for j := i + 1; j < len(vectors); j++ {
			if isTrivialPair(payloads[i], payloads[j]) {
				continue
			}
			score := utils.CosineSim(vectors[i], vectors[j])
			if score >= threshold {
				candidates = append(candidates, models.PairCandidate{
					A:     payloads[i],
					B:     payloads[j],
					Score: score,
				})
			}
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
	return candidates
}

// isTrivialPair reports pairs that cannot be merged into one key
func isTrivialPair(a, b models.MessagePayload) bool {
	return a.Locale != b.Locale || a.Key == b.Key
}

func buildDuplicateGroups(pairs []models.PairCandidate) []models.DuplicateGroup {
	if len(pairs) == 0 {
		return nil
	}

	parent := make(map[string]string)
	rank := make(map[string]int)

	var find func(string) string
	find = func(x string) string {
		if parent[x] != x {
			parent[x] = find(parent[x])
		}
		return parent[x]
	}

	union := func(x, y string) {
		px, py := find(x), find(y)
		if px == py {
			return
		}
		if rank[px] < rank[py] {
			parent[px] = py
		} else if rank[px] > rank[py] {
			parent[py] = px
		} else {
			parent[py] = px
			rank[px]++
		}
	}

	messages := make(map[string]models.MessagePayload)
	for _, pair := range pairs {
		for _, m := range []models.MessagePayload{pair.A, pair.B} {
			if _, ok := parent[m.MessageHash]; !ok {
				parent[m.MessageHash] = m.MessageHash
			}
			messages[m.MessageHash] = m
		}
		union(pair.A.MessageHash, pair.B.MessageHash)
	}

	type acc struct {
		group models.DuplicateGroup
		sum   float64
		n     int
	}
	groups := make(map[string]*acc)
	for _, pair := range pairs {
		root := find(pair.A.MessageHash)
		g, ok := groups[root]
		if !ok {
			g = &acc{}
			groups[root] = g
		}
		g.sum += pair.Score
		g.n++
		if g.group.Reason == "" {
			g.group.Reason = pair.Reason
		}
	}
	for hash, m := range messages {
		if g, ok := groups[find(hash)]; ok {
			g.group.Messages = append(g.group.Messages, m)
		}
	}

	result := make([]models.DuplicateGroup, 0, len(groups))
	for _, g := range groups {
		sort.Slice(g.group.Messages, func(i, j int) bool {
			return g.group.Messages[i].Key < g.group.Messages[j].Key
		})
		g.group.AvgScore = g.sum / float64(g.n)
		result = append(result, g.group)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Messages[0].Key < result[j].Messages[0].Key
	})
	return result
}

func messagePayloads(locale string, entries []models.MessageEntry) []models.MessagePayload {
	out := make([]models.MessagePayload, 0, len(entries))
	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		if strings.TrimSpace(e.Message) == "" || seen[e.Key] {
			continue
		}
		seen[e.Key] = true
		out = append(out, models.MessagePayload{
			Locale:      locale,
			Key:         e.Key,
			Message:     e.Message,
			Description: e.Description,
			MessageHash: utils.HashContent(locale + "\x00" + e.Key + "\x00" + e.Message + "\x00" + e.Description),
		})
	}
	return out
}

func payloadMap(p models.MessagePayload) map[string]interface{} {
	return map[string]interface{}{
		"locale":       p.Locale,
		"key":          p.Key,
		"message":      p.Message,
		"description":  p.Description,
		"message_hash": p.MessageHash,
	}
}

func payloadFromMap(m map[string]interface{}) (models.MessagePayload, error) {
	var p models.MessagePayload
	data, err := json.Marshal(m)
	if err != nil {
		return p, err
	}
	err = json.Unmarshal(data, &p)
	return p, err
}

// contentHashToPointID maps a hex SHA-256 hash to the numeric point id Qdrant
// accepts: the first 8 bytes of the hash of the hash, big-endian.
func contentHashToPointID(hash string) uint64 {
	h := sha256.Sum256([]byte(hash))
	return binary.BigEndian.Uint64(h[:8])
}

// Connect builds an Analyzer on the configured Qdrant, embeddings and chat
// endpoints. The returned func closes the Qdrant connection.
func Connect() (*Analyzer, func() error, error) {
	qc, err := qdrant.NewClient()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to qdrant: %w", err)
	}
	qc.IndexKeywordFields("message_hash", "locale")
	return NewAnalyzer(qc, embeddings.NewClient(), llm.NewClient()), qc.Close, nil
}
