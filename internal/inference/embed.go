package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/maauso/coachscribe/internal/embedding"
)

// DefaultEmbeddingDim is the ECAPA-TDNN embedding size.
const DefaultEmbeddingDim = 192

// EmbeddingClient calls a speaker-embedding server.
type EmbeddingClient struct {
	*client
	dim int
}

// NewEmbeddingClient creates a client for the server at baseURL.
// A non-positive dim means DefaultEmbeddingDim.
func NewEmbeddingClient(baseURL string, dim int, opts ...ClientOption) (*EmbeddingClient, error) {
	c, err := newClient(baseURL, 30*time.Second, opts...)
	if err != nil {
		return nil, err
	}
	if dim <= 0 {
		dim = DefaultEmbeddingDim
	}
	return &EmbeddingClient{client: c, dim: dim}, nil
}

// Dimension implements embedding.Embedder.
func (c *EmbeddingClient) Dimension() int {
	return c.dim
}

// Embed implements embedding.Embedder. An empty slice yields a zero vector
// without calling the server.
func (c *EmbeddingClient) Embed(ctx context.Context, samples []float32, sampleRate int) (embedding.Vector, error) {
	if len(samples) == 0 {
		return make(embedding.Vector, c.dim), nil
	}

	body, err := json.Marshal(embedRequest{Samples: samples, SampleRate: sampleRate})
	if err != nil {
		return nil, fmt.Errorf("inference: marshal embed request: %w", err)
	}

	url := c.baseURL + "/embed"
	build := func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	}

	var resp embedResponse
	if err := c.doWithRetry(ctx, build, &resp); err != nil {
		return nil, err
	}
	if len(resp.Embedding) != c.dim {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(resp.Embedding), c.dim)
	}
	return resp.Embedding, nil
}

// Verify interface implementation at compile time.
var _ embedding.Embedder = (*EmbeddingClient)(nil)
