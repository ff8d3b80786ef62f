package pinecone

import (
	"context"
	"errors"
	"fmt"

	"github.com/pinecone-io/go-pinecone/pinecone"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/FrenchMajesty/doc-classifier/pkg/types"
)

// Client searches and stores labelled document vectors in a Pinecone index
type Client struct {
	index indexOperations
}

// NewClient connects to the index at host, scoped to namespace
func NewClient(apiKey, host, namespace string) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("pinecone: api key is required")
	}
	if host == "" {
		return nil, errors.New("pinecone: index host is required")
	}

	pc, err := pinecone.NewClient(pinecone.NewClientParams{ApiKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("failed to create pinecone client: %w", err)
	}

	conn, err := pc.Index(pinecone.NewIndexConnParams{Host: host, Namespace: namespace})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to pinecone index: %w", err)
	}

	return &Client{index: conn}, nil
}

// Search returns the topK nearest neighbours of vector
func (c *Client) Search(ctx context.Context, vector []float32, topK int) ([]types.VectorMatch, error) {
	if topK <= 0 {
		topK = 1
	}

	resp, err := c.index.QueryByVectorValues(ctx, &pinecone.QueryByVectorValuesRequest{
		Vector:          vector,
		TopK:            uint32(topK),
		IncludeMetadata: true,
	})
	if err != nil {
		return nil, err
	}

	results := make([]types.VectorMatch, 0, len(resp.Matches))
	for _, match := range resp.Matches {
		if match == nil || match.Vector == nil {
			continue
		}
		metadata := make(map[string]any)
		if match.Vector.Metadata != nil {
			metadata = match.Vector.Metadata.AsMap()
		}
		results = append(results, types.VectorMatch{
			ID:       match.Vector.Id,
			Score:    match.Score,
			Metadata: metadata,
		})
	}

	return results, nil
}

// Upsert stores vector under id with metadata
func (c *Client) Upsert(ctx context.Context, id string, vector []float32, metadata map[string]any) error {
	metadataStruct, err := structpb.NewStruct(metadata)
	if err != nil {
		return fmt.Errorf("invalid vector metadata: %w", err)
	}

	_, err = c.index.UpsertVectors(ctx, []*pinecone.Vector{{
		Id:       id,
		Values:   vector,
		Metadata: &pinecone.Metadata{Fields: metadataStruct.Fields},
	}})
	return err
}
