package stages

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/FrenchMajesty/doc-classifier/pkg/extract"
	"github.com/FrenchMajesty/doc-classifier/pkg/types"
)

const (
	VectorStageName = "vector"

	// DefaultMinSimilarity is the default threshold for a neighbour to count
	DefaultMinSimilarity = 0.80

	vectorTextMetadataLen = 500
)

// EmbeddingClient generates vector embeddings for text
type EmbeddingClient interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// VectorClient performs vector similarity search and storage operations
type VectorClient interface {
	Search(ctx context.Context, vector []float32, topK int) ([]types.VectorMatch, error)
	Upsert(ctx context.Context, id string, vector []float32, metadata map[string]any) error
}

// VectorConfig configures the vector stage
type VectorConfig struct {
	Embedding EmbeddingClient
	Vectors   VectorClient

	// MinSimilarity is the score a neighbour needs. If 0, uses DefaultMinSimilarity.
	MinSimilarity float32

	Logger *slog.Logger
}

func (c *VectorConfig) applyDefaults() {
	if c.MinSimilarity == 0 {
		c.MinSimilarity = DefaultMinSimilarity
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// VectorStage labels a document after its nearest labelled neighbour.
// Confidence is the similarity score.
type VectorStage struct {
	embedding     EmbeddingClient
	vectors       VectorClient
	minSimilarity float32
	logger        *slog.Logger
}

var _ Learner = (*VectorStage)(nil)

func NewVector(cfg VectorConfig) (*VectorStage, error) {
	cfg.applyDefaults()

	if cfg.Embedding == nil {
		return nil, fmt.Errorf("EmbeddingClient is required")
	}
	if cfg.Vectors == nil {
		return nil, fmt.Errorf("VectorClient is required")
	}

	return &VectorStage{
		embedding:     cfg.Embedding,
		vectors:       cfg.Vectors,
		minSimilarity: cfg.MinSimilarity,
		logger:        cfg.Logger.With("stage", VectorStageName),
	}, nil
}

func (s *VectorStage) Name() string { return VectorStageName }

func (s *VectorStage) Classify(ctx context.Context, doc *Document) (Prediction, error) {
	text, err := doc.Text()
	if errors.Is(err, extract.ErrUnsupported) || (err == nil && strings.TrimSpace(text) == "") {
		return NoOpinion(), nil
	}
	if err != nil {
		s.logger.Warn("no text to embed", "filename", doc.Item.Filename, "error", err)
		return NoOpinion(), nil
	}

	embedding, err := s.embedding.GenerateEmbedding(ctx, text)
	if err != nil {
		return NoOpinion(), fmt.Errorf("failed to generate embedding: %w", err)
	}
	doc.embedding = embedding

	matches, err := s.vectors.Search(ctx, embedding, 1)
	if err != nil {
		return NoOpinion(), fmt.Errorf("failed to search vector index: %w", err)
	}

	if len(matches) == 0 || matches[0].Score < s.minSimilarity {
		return NoOpinion(), nil
	}

	label, ok := matches[0].Metadata["label"].(string)
	if !ok || label == "" {
		s.logger.Warn("neighbour missing label metadata", "id", matches[0].ID)
		return NoOpinion(), nil
	}

	score := float64(matches[0].Score)
	if score > 1 {
		score = 1
	}
	return Prediction{Label: label, Confidence: score}, nil
}

// Learn stores an accepted document so future near-duplicates resolve here.
// The fingerprint is the vector id, so relearning overwrites.
func (s *VectorStage) Learn(ctx context.Context, doc *Document, result types.ClassificationResult) error {
	if result.Decision != types.DecisionAccept || result.Label == "" {
		return nil
	}

	embedding := doc.embedding
	if embedding == nil {
		text, err := doc.Text()
		if err != nil || strings.TrimSpace(text) == "" {
			return nil
		}
		embedding, err = s.embedding.GenerateEmbedding(ctx, text)
		if err != nil {
			return fmt.Errorf("failed to generate embedding: %w", err)
		}
	}

	text, _ := doc.Text()
	metadata := map[string]any{
		"label":            result.Label,
		"filename":         doc.Item.Filename,
		"pipeline_version": result.PipelineVersion,
		"vector_text":      extract.Clip(text, vectorTextMetadataLen),
	}
	return s.vectors.Upsert(ctx, string(doc.Fingerprint), embedding, metadata)
}
