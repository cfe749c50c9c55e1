package embeddings

import (
	"context"
	"fmt"
	"globekeys/internal/config"
	"os"

	"github.com/sashabaranov/go-openai"
)

// MaxBatch caps the inputs of one embeddings request
const MaxBatch = 64

type Client struct {
	client *openai.Client
	model  openai.EmbeddingModel
}

func NewClient() *Client {
	apiKey := config.Get("OPENAI_API_KEY", "openai_key")
	if apiKey == "" {
		fmt.Fprintf(os.Stderr, "⚠ Warning: OPENAI_API_KEY is not set\n")
	}

	cfg := openai.DefaultConfig(apiKey)
	if baseURL := config.Get("OPENAI_BASE_URL", "openai_base_url"); baseURL != "" {
		cfg.BaseURL = baseURL
		fmt.Fprintf(os.Stderr, "→ Using custom API endpoint: %s\n", baseURL)
	}

	modelName := config.Get("OPENAI_EMBEDDING_MODEL", "openai_embedding_model")
	model := openai.SmallEmbedding3
	if modelName != "" {
		model = openai.EmbeddingModel(modelName)
		fmt.Fprintf(os.Stderr, "→ Using embedding model: %s\n", modelName)
	}

	return &Client{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 || vectors[0] == nil {
		return nil, fmt.Errorf("no embeddings returned")
	}
	return vectors[0], nil
}

// EmbedBatch embeds texts, splitting them into requests of at most MaxBatch
// inputs. The result is in input order.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	results := make([][]float32, len(texts))
	for _, r := range batchRanges(len(texts), MaxBatch) {
		resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Model: c.model,
			Input: texts[r[0]:r[1]],
		})
		if err != nil {
			return nil, err
		}
		for _, data := range resp.Data {
			if data.Index < 0 || r[0]+data.Index >= r[1] {
				return nil, fmt.Errorf("embedding index %d out of range", data.Index)
			}
			results[r[0]+data.Index] = data.Embedding
		}
	}
	for i, v := range results {
		if v == nil {
			return nil, fmt.Errorf("no embedding returned for input %d", i)
		}
	}
	return results, nil
}

// batchRanges splits [0, n) into half-open ranges of at most size
func batchRanges(n, size int) [][2]int {
	var out [][2]int
	for start := 0; start < n; start += size {
		end := start + size
		if end > n {
			end = n
		}
		out = append(out, [2]int{start, end})
	}
	return out
}
