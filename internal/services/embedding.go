package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/enliterate-io/enliterate/internal/config"
)

// EmbeddingService encodes text into fixed-dimension vectors.
type EmbeddingService interface {
	Encode(ctx context.Context, text string) ([]float64, error)
	Model() string
	Dimensions() int
}

type embeddingClient struct {
	*client
	model string
	dims  int
}

// NewEmbeddingService creates the HTTP embedding client.
func NewEmbeddingService(endpoint config.ServiceEndpoint, embedding config.EmbeddingConfig, logger *slog.Logger) EmbeddingService {
	return &embeddingClient{
		client: newClient(endpoint, logger.With(slog.String("service", "embedding"))),
		model:  embedding.Model,
		dims:   embedding.Dims,
	}
}

type embedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embedResponse struct {
	Vector []float64 `json:"vector"`
}

func (c *embeddingClient) Encode(ctx context.Context, text string) ([]float64, error) {
	var out embedResponse
	if err := c.postJSON(ctx, "/v1/embeddings", embedRequest{Model: c.model, Input: text}, &out); err != nil {
		return nil, fmt.Errorf("encoding text: %w", err)
	}
	if len(out.Vector) != c.dims {
		return nil, fmt.Errorf("%w: expected %d dimensions, got %d", ErrRejected, c.dims, len(out.Vector))
	}
	return out.Vector, nil
}

func (c *embeddingClient) Model() string { return c.model }

func (c *embeddingClient) Dimensions() int { return c.dims }
