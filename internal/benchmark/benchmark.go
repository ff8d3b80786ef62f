// Package benchmark measures the pipeline against a labelled dataset.
package benchmark

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/FrenchMajesty/doc-classifier/internal/source"
	"github.com/FrenchMajesty/doc-classifier/pkg/labels"
	"github.com/FrenchMajesty/doc-classifier/pkg/types"
)

const MaxDatasetSize = 500

// Classifier is anything that classifies an arbitrary number of items
type Classifier interface {
	Classify(ctx context.Context, items []types.SubmittedItem) ([]types.BatchOutcome, error)
}

type DatasetItem struct {
	Path          string
	ExpectedLabel string
}

type Result struct {
	Path          string           `json:"path"`
	ExpectedLabel string           `json:"expected_label"`
	Status        types.ItemStatus `json:"status"`
	Label         string           `json:"label,omitempty"`
	Confidence    float64          `json:"confidence,omitempty"`
	Stage         string           `json:"stage,omitempty"`
	Source        types.Source     `json:"source,omitempty"`
	Decision      types.Decision   `json:"decision,omitempty"`
	Correct       bool             `json:"correct"`
}

type Metrics struct {
	TotalDuration  time.Duration  `json:"total_duration"`
	TotalDocuments int            `json:"total_documents"`
	Classified     int            `json:"classified"`
	Correct        int            `json:"correct"`
	Accuracy       float64        `json:"accuracy"`
	LowConfidence  int            `json:"low_confidence"`
	Invalid        int            `json:"invalid"`
	Failed         int            `json:"failed"`
	CacheHits      int            `json:"cache_hits"`
	UniqueLabels   int            `json:"unique_labels"`
	DecidedByStage map[string]int `json:"decided_by_stage"`
}

// LoadDataset reads a CSV of path,label rows (with header). Relative paths
// are resolved against the CSV's directory.
func LoadDataset(path string, limit int) ([]DatasetItem, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset file: %w", err)
	}
	defer file.Close()

	records, err := csv.NewReader(file).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse CSV: %w", err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("dataset file must have at least a header and one row")
	}

	base := filepath.Dir(path)
	dataset := make([]DatasetItem, 0, len(records)-1)
	for _, record := range records[1:] {
		if len(record) < 2 || strings.TrimSpace(record[0]) == "" {
			continue // Skip malformed rows
		}
		p := strings.TrimSpace(record[0])
		if !filepath.IsAbs(p) {
			p = filepath.Join(base, p)
		}
		dataset = append(dataset, DatasetItem{Path: p, ExpectedLabel: strings.TrimSpace(record[1])})
	}

	return trimDataset(dataset, limit), nil
}

// trimDataset trims the dataset to the specified limit
func trimDataset(dataset []DatasetItem, limit int) []DatasetItem {
	if limit <= 0 {
		limit = MaxDatasetSize
	}
	if len(dataset) > limit {
		return dataset[:limit]
	}
	return dataset
}

// Run classifies the dataset and scores it. Expected and predicted labels are
// compared after canonicalisation through taxonomy.
func Run(ctx context.Context, c Classifier, dataset []DatasetItem, taxonomy *labels.Taxonomy) (Metrics, []Result, error) {
	if taxonomy == nil {
		taxonomy = labels.Default()
	}

	paths := make([]string, len(dataset))
	for i, item := range dataset {
		paths[i] = item.Path
	}
	items, err := source.Files(paths)
	if err != nil {
		return Metrics{}, nil, err
	}

	start := time.Now()
	batches, err := c.Classify(ctx, items)
	if err != nil {
		return Metrics{}, nil, err
	}

	m := Metrics{TotalDocuments: len(dataset), DecidedByStage: make(map[string]int)}
	results := make([]Result, 0, len(dataset))
	seen := make(map[string]bool)

	i := 0
	for _, batch := range batches {
		for _, outcome := range batch.Items {
			if i >= len(dataset) {
				break
			}
			r := score(dataset[i], outcome, taxonomy)
			results = append(results, r)
			i++

			switch outcome.Status {
			case types.StatusInvalid:
				m.Invalid++
				continue
			case types.StatusFailed, types.StatusCancelled:
				m.Failed++
				continue
			}

			m.Classified++
			seen[r.Label] = true
			if r.Correct {
				m.Correct++
			}
			if outcome.Result.LowConfidence {
				m.LowConfidence++
			}
			if r.Source == types.SourceCache {
				m.CacheHits++
			} else {
				m.DecidedByStage[r.Stage]++
			}
		}
	}

	m.TotalDuration = time.Since(start)
	m.UniqueLabels = len(seen)
	if m.TotalDocuments > 0 {
		m.Accuracy = float64(m.Correct) / float64(m.TotalDocuments)
	}
	return m, results, nil
}

func score(item DatasetItem, outcome types.ItemOutcome, taxonomy *labels.Taxonomy) Result {
	r := Result{Path: item.Path, ExpectedLabel: item.ExpectedLabel, Status: outcome.Status}
	if outcome.Result == nil {
		return r
	}
	res := outcome.Result
	r.Label = res.Label
	r.Confidence = res.Confidence
	r.Stage = res.Stage
	r.Source = res.Source
	r.Decision = res.Decision
	r.Correct = res.Decision == types.DecisionAccept &&
		taxonomy.Canonical(res.Label) == taxonomy.Canonical(item.ExpectedLabel)
	return r
}

// SaveMetricsToFile writes metrics under dir and returns the file name
func SaveMetricsToFile(dir string, metrics Metrics) (string, error) {
	return saveJSON(dir, "metrics", metrics)
}

// SaveResultsToFile writes per-document results under dir and returns the file name
func SaveResultsToFile(dir string, results []Result) (string, error) {
	return saveJSON(dir, "results", results)
}

func saveJSON(dir, kind string, v any) (string, error) {
	timestamp := time.Now().Format("20060102_150405")
	random := uuid.New().String()[:8]
	filename := filepath.Join(dir, fmt.Sprintf("%s_%s_%s.json", kind, timestamp, random))

	jsonData, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(filename, jsonData, 0o644); err != nil {
		return "", err
	}
	return filename, nil
}
