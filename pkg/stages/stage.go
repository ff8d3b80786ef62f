// Package stages holds the pluggable classifier stages the pipeline runs in
// order, cheapest first.
package stages

import (
	"context"
	"sync"

	"github.com/FrenchMajesty/doc-classifier/pkg/extract"
	"github.com/FrenchMajesty/doc-classifier/pkg/types"
)

// Prediction is a stage's opinion about a document. An empty Label means
// the stage has no opinion.
type Prediction struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// NoOpinion is returned by stages that cannot say anything about a document
func NoOpinion() Prediction {
	return Prediction{}
}

// HasOpinion reports whether the prediction names a label
func (p Prediction) HasOpinion() bool {
	return p.Label != ""
}

// Stage classifies a document. Returning an error fails the item; stages
// that merely cannot decide return NoOpinion.
type Stage interface {
	Name() string
	Classify(ctx context.Context, doc *Document) (Prediction, error)
}

// Learner is implemented by stages that improve from accepted results
type Learner interface {
	Learn(ctx context.Context, doc *Document, result types.ClassificationResult) error
}

// Document is one submitted item as seen by the stages. Text is extracted
// at most once and shared by every stage that asks for it.
type Document struct {
	Item        types.SubmittedItem
	Fingerprint types.Fingerprint

	textOnce sync.Once
	text     string
	textErr  error

	extractText func(ext string, content []byte) (string, error)

	// set by the vector stage so Learn does not embed twice
	embedding []float32
}

// NewDocument wraps item for classification
func NewDocument(item types.SubmittedItem, fp types.Fingerprint) *Document {
	return &Document{
		Item:        item,
		Fingerprint: fp,
		extractText: extract.Text,
	}
}

// Ext returns the normalised extension
func (d *Document) Ext() string {
	return d.Item.Ext()
}

// Text returns the extracted text, or extract.ErrUnsupported for formats
// without a text layer.
func (d *Document) Text() (string, error) {
	d.textOnce.Do(func() {
		d.text, d.textErr = d.extractText(d.Ext(), d.Item.Content)
	})
	return d.text, d.textErr
}
