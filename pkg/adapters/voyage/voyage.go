package voyage

import (
	"context"
	"errors"
	"fmt"

	"github.com/austinfhunter/voyageai"
)

const (
	DefaultDimensions = 1024
	DefaultModel      = "voyage-3.5-lite"

	// Voyage rejects inputs past the model context; documents are clipped first.
	maxInputChars = 16000
)

type EmbeddingType string

const (
	EmbeddingTypeDocument EmbeddingType = "document"
	EmbeddingTypeQuery    EmbeddingType = "query"
	EmbeddingTypeDefault  EmbeddingType = ""
)

type embedFunc func(texts []string, model string, opts *voyageai.EmbeddingRequestOpts) ([][]float32, error)

// Client generates document embeddings with VoyageAI
type Client struct {
	dimensions int
	model      string
	inputType  EmbeddingType
	embed      embedFunc
}

// NewClient creates a Voyage embedding client for apiKey
func NewClient(apiKey string) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("voyage: api key is required")
	}

	vc := voyageai.NewClient(&voyageai.VoyageClientOpts{Key: apiKey})
	return &Client{
		dimensions: DefaultDimensions,
		model:      DefaultModel,
		inputType:  EmbeddingTypeDocument,
		embed: func(texts []string, model string, opts *voyageai.EmbeddingRequestOpts) ([][]float32, error) {
			resp, err := vc.Embed(texts, model, opts)
			if err != nil {
				return nil, err
			}
			out := make([][]float32, len(resp.Data))
			for i, d := range resp.Data {
				out[i] = d.Embedding
			}
			return out, nil
		},
	}, nil
}

// SetDimensions sets the output dimensions
func (c *Client) SetDimensions(dimensions int) {
	if dimensions > 0 {
		c.dimensions = dimensions
	}
}

// SetModel sets the embedding model
func (c *Client) SetModel(model string) {
	if model != "" {
		c.model = model
	}
}

// SetInputType sets the Voyage input type hint
func (c *Client) SetInputType(t EmbeddingType) {
	c.inputType = t
}

// Dimensions returns the configured output dimensions
func (c *Client) Dimensions() int {
	return c.dimensions
}

// GenerateEmbedding embeds a single text
func (c *Client) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(text) > maxInputChars {
		text = text[:maxInputChars]
	}

	dims := c.dimensions
	vectors, err := c.embed([]string{text}, c.model, &voyageai.EmbeddingRequestOpts{
		InputType:       parseEmbeddingType(c.inputType),
		OutputDimension: &dims,
	})
	if err != nil {
		return nil, fmt.Errorf("could not get embedding: %w", err)
	}
	if len(vectors) == 0 {
		return nil, errors.New("could not get embedding: empty response")
	}
	return vectors[0], nil
}

func parseEmbeddingType(t EmbeddingType) *string {
	if t == EmbeddingTypeDefault {
		return nil
	}
	v := string(t)
	return &v
}
