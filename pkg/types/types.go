package types

import (
	"fmt"
	"path/filepath"
	"strings"
)

// SubmittedItem is a single file handed to the pipeline by the upload boundary
type SubmittedItem struct {
	Filename  string
	Extension string
	Content   []byte
}

// Ext returns the declared extension, falling back to the filename suffix.
// The result is lower-cased and has no leading dot.
func (s SubmittedItem) Ext() string {
	ext := s.Extension
	if ext == "" {
		ext = filepath.Ext(s.Filename)
	}
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
}

// Fingerprint is the content+pipeline-version identity of an item, used as cache key
type Fingerprint string

// Source tells whether a result came out of the cache or was freshly computed
type Source string

const (
	SourceCache Source = "cache"
	SourceFresh Source = "fresh"
)

// Decision is the verdict of the early-exit gate
type Decision string

const (
	DecisionAccept   Decision = "accept"
	DecisionEscalate Decision = "escalate"
	DecisionReject   Decision = "reject"
)

// UnknownLabel is assigned when no stage produced an opinion
const UnknownLabel = "unknown"

// ClassificationResult represents the classification of one document
type ClassificationResult struct {
	Label           string   `json:"label"`
	Confidence      float64  `json:"confidence"`
	PipelineVersion string   `json:"pipeline_version"`
	Source          Source   `json:"source"`
	Decision        Decision `json:"decision"`

	// LowConfidence is set when the gate rejected the best label after the final stage
	LowConfidence bool `json:"low_confidence"`

	// Stage is the name of the stage whose prediction was kept
	Stage string `json:"stage,omitempty"`
}

// ValidationReason enumerates why an item was refused before classification
type ValidationReason string

const (
	ReasonUnsupportedExtension ValidationReason = "unsupported_extension"
	ReasonFileTooLarge         ValidationReason = "file_too_large"
)

// ValidationError is an item-level, non-fatal refusal
type ValidationError struct {
	Reason  ValidationReason `json:"reason"`
	Message string           `json:"message"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Reason, e.Message)
}

// ItemStatus is the terminal state of one batch item
type ItemStatus string

const (
	StatusClassified ItemStatus = "classified"
	StatusInvalid    ItemStatus = "invalid"
	StatusFailed     ItemStatus = "failed"
	StatusCancelled  ItemStatus = "cancelled"
)

// ItemOutcome is the per-item record of a batch, aligned with the input position
type ItemOutcome struct {
	Index           int                   `json:"index"`
	Filename        string                `json:"filename"`
	Fingerprint     Fingerprint           `json:"fingerprint,omitempty"`
	Status          ItemStatus            `json:"status"`
	Result          *ClassificationResult `json:"result,omitempty"`
	ValidationError *ValidationError      `json:"validation_error,omitempty"`
	Error           string                `json:"error,omitempty"`
}

// BatchOutcome holds one ItemOutcome per submitted item, in input order
type BatchOutcome struct {
	BatchID         string        `json:"batch_id"`
	PipelineVersion string        `json:"pipeline_version"`
	Items           []ItemOutcome `json:"items"`
}

// Thresholds are the two confidence bars consulted by the gate
type Thresholds struct {
	ConfidenceThreshold float64 `json:"confidence_threshold" yaml:"confidenceThreshold"`
	EarlyExitConfidence float64 `json:"early_exit_confidence" yaml:"earlyExitConfidence"`
}

// Validate checks range and ordering of the thresholds
func (t Thresholds) Validate() error {
	if !inUnitRange(t.ConfidenceThreshold) {
		return fmt.Errorf("confidence threshold %.3f outside [0,1]", t.ConfidenceThreshold)
	}
	if !inUnitRange(t.EarlyExitConfidence) {
		return fmt.Errorf("early exit confidence %.3f outside [0,1]", t.EarlyExitConfidence)
	}
	if t.EarlyExitConfidence < t.ConfidenceThreshold {
		return fmt.Errorf("early exit confidence %.3f below confidence threshold %.3f",
			t.EarlyExitConfidence, t.ConfidenceThreshold)
	}
	return nil
}

// inUnitRange is false for NaN
func inUnitRange(f float64) bool {
	return f >= 0 && f <= 1
}

// VectorMatch represents a single match from a vector search
type VectorMatch struct {
	ID       string
	Score    float32
	Metadata map[string]any
}
