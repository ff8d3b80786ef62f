package stages

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/FrenchMajesty/doc-classifier/pkg/extract"
)

const (
	TextStageName = "text"

	// confidence of the keyword fallback when no model decides
	HeuristicTextConfidence = 0.75

	previewLen = 100
)

// ErrModelUnavailable is returned by a Model that cannot serve predictions
var ErrModelUnavailable = errors.New("text model unavailable")

// Model predicts a label from extracted text
type Model interface {
	Predict(ctx context.Context, text string) (Prediction, error)
}

// TextStage classifies on extracted text, through Model when one is
// configured and keyword heuristics otherwise.
type TextStage struct {
	model  Model
	logger *slog.Logger
}

// NewText creates the text stage. model may be nil.
func NewText(model Model, logger *slog.Logger) *TextStage {
	if logger == nil {
		logger = slog.Default()
	}
	return &TextStage{model: model, logger: logger.With("stage", TextStageName)}
}

func (s *TextStage) Name() string { return TextStageName }

func (s *TextStage) Classify(ctx context.Context, doc *Document) (Prediction, error) {
	text, err := doc.Text()
	if errors.Is(err, extract.ErrUnsupported) {
		return NoOpinion(), nil
	}
	if err != nil {
		s.logger.Error("text extraction failed", "filename", doc.Item.Filename, "extension", doc.Ext(), "error", err)
		return NoOpinion(), nil
	}
	if strings.TrimSpace(text) == "" {
		return NoOpinion(), nil
	}

	if s.model != nil {
		p, err := s.model.Predict(ctx, text)
		switch {
		case errors.Is(err, ErrModelUnavailable):
			s.logger.Warn("text model not available, using heuristics", "filename", doc.Item.Filename)
		case err != nil:
			if ctx.Err() != nil {
				return NoOpinion(), ctx.Err()
			}
			s.logger.Error("text model prediction failed", "filename", doc.Item.Filename, "error", err)
			return NoOpinion(), nil
		case p.HasOpinion():
			s.logger.Debug("text model prediction", "filename", doc.Item.Filename, "label", p.Label, "confidence", p.Confidence)
			return p, nil
		default:
			s.logger.Debug("text model had no prediction", "filename", doc.Item.Filename, "text_preview", preview(text))
		}
	}

	if label, ok := dominantLabel(tokenize(text)); ok {
		s.logger.Debug("text heuristic match", "filename", doc.Item.Filename, "label", label)
		return Prediction{Label: label, Confidence: HeuristicTextConfidence}, nil
	}

	s.logger.Debug("text had no match", "filename", doc.Item.Filename, "text_preview", preview(text))
	return NoOpinion(), nil
}

func preview(text string) string {
	return extract.Clip(text, previewLen)
}
