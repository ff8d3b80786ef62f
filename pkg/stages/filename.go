package stages

import (
	"context"
	"path"
	"strings"

	"github.com/FrenchMajesty/doc-classifier/pkg/labels"
)

const (
	FilenameStageName = "filename"

	// keyword at the start of the name, e.g. "invoice_123.pdf"
	FilenameStrongConfidence = 0.92
	FilenameConfidence       = 0.85
)

// FilenameStage classifies on keywords in the base filename
type FilenameStage struct{}

func NewFilename() *FilenameStage {
	return &FilenameStage{}
}

func (s *FilenameStage) Name() string { return FilenameStageName }

func (s *FilenameStage) Classify(ctx context.Context, doc *Document) (Prediction, error) {
	name := strings.ReplaceAll(doc.Item.Filename, `\`, "/")
	base := path.Base(name)
	if base == "." || base == "/" {
		return NoOpinion(), nil
	}
	base = strings.TrimSuffix(base, path.Ext(base))

	if m, ok := firstMatch(tokenize(base)); ok {
		conf := FilenameConfidence
		if m.position == 0 {
			conf = FilenameStrongConfidence
		}
		return Prediction{Label: m.label, Confidence: conf}, nil
	}

	if doc.Ext() == "eml" {
		return Prediction{Label: labels.Email, Confidence: FilenameConfidence}, nil
	}
	return NoOpinion(), nil
}
