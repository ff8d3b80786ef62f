package stages

import (
	"context"
	"log/slog"
	"strings"

	"github.com/FrenchMajesty/doc-classifier/pkg/extract"
)

const (
	MetadataStageName  = "metadata"
	MetadataConfidence = 0.86
)

// MetadataStage classifies PDFs on their document-information dictionary
type MetadataStage struct {
	logger   *slog.Logger
	readInfo func(content []byte) (extract.Info, error)
}

func NewMetadata(logger *slog.Logger) *MetadataStage {
	if logger == nil {
		logger = slog.Default()
	}
	return &MetadataStage{
		logger:   logger.With("stage", MetadataStageName),
		readInfo: extract.PDFInfo,
	}
}

func (s *MetadataStage) Name() string { return MetadataStageName }

func (s *MetadataStage) Classify(ctx context.Context, doc *Document) (Prediction, error) {
	if doc.Ext() != "pdf" {
		return NoOpinion(), nil
	}

	info, err := s.readInfo(doc.Item.Content)
	if err != nil {
		s.logger.Warn("pdf metadata unreadable", "filename", doc.Item.Filename, "error", err)
		return NoOpinion(), nil
	}

	joined := strings.TrimSpace(strings.Join([]string{info.Title, info.Subject, info.Keywords}, " "))
	if joined == "" {
		return NoOpinion(), nil
	}

	if label, ok := dominantLabel(tokenize(joined)); ok {
		return Prediction{Label: label, Confidence: MetadataConfidence}, nil
	}
	return NoOpinion(), nil
}
