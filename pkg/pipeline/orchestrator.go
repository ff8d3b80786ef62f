// Package pipeline runs batches of submitted documents through validation,
// the result cache and the staged classifier, one outcome per item.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/FrenchMajesty/doc-classifier/pkg/cache"
	"github.com/FrenchMajesty/doc-classifier/pkg/fingerprint"
	"github.com/FrenchMajesty/doc-classifier/pkg/gate"
	"github.com/FrenchMajesty/doc-classifier/pkg/labels"
	"github.com/FrenchMajesty/doc-classifier/pkg/metrics"
	"github.com/FrenchMajesty/doc-classifier/pkg/stages"
	"github.com/FrenchMajesty/doc-classifier/pkg/types"
	"github.com/FrenchMajesty/doc-classifier/pkg/validator"
)

// History receives every freshly computed item outcome
type History interface {
	Record(ctx context.Context, batchID string, outcome types.ItemOutcome) error
}

// Deps wires the collaborators into the orchestrator
type Deps struct {
	Validator *validator.Validator
	Stages    []stages.Stage

	// Optional
	Cache      *cache.ResultCache
	Taxonomy   *labels.Taxonomy
	Metrics    metrics.Recorder
	History    History
	Logger     *slog.Logger
	NewBatchID func() string
}

// Orchestrator drives batches through the pipeline. Safe for concurrent Run calls.
type Orchestrator struct {
	cfg        Config
	validator  *validator.Validator
	stages     []stages.Stage
	learners   []stages.Learner
	gate       *gate.Gate
	cache      *cache.ResultCache
	taxonomy   *labels.Taxonomy
	metrics    metrics.Recorder
	history    History
	logger     *slog.Logger
	newBatchID func() string
}

// New creates an Orchestrator
func New(cfg Config, deps Deps) (*Orchestrator, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if deps.Validator == nil {
		return nil, fmt.Errorf("Validator is required")
	}
	if len(deps.Stages) == 0 {
		return nil, fmt.Errorf("at least one stage is required")
	}

	g, err := gate.New(cfg.Thresholds)
	if err != nil {
		return nil, err
	}

	o := &Orchestrator{
		cfg:        cfg,
		validator:  deps.Validator,
		stages:     deps.Stages,
		gate:       g,
		cache:      deps.Cache,
		taxonomy:   deps.Taxonomy,
		metrics:    deps.Metrics,
		history:    deps.History,
		logger:     deps.Logger,
		newBatchID: deps.NewBatchID,
	}
	if o.metrics == nil {
		o.metrics = metrics.Nop{}
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	o.logger = o.logger.With("component", "pipeline")
	if o.newBatchID == nil {
		o.newBatchID = uuid.NewString
	}

	for _, s := range deps.Stages {
		if s == nil {
			return nil, fmt.Errorf("nil stage in chain")
		}
		if l, ok := s.(stages.Learner); ok {
			o.learners = append(o.learners, l)
		}
	}

	return o, nil
}

// PipelineVersion returns the version mixed into fingerprints
func (o *Orchestrator) PipelineVersion() string { return o.cfg.PipelineVersion }

// MaxBatchSize returns the largest batch Run accepts
func (o *Orchestrator) MaxBatchSize() int { return o.cfg.MaxBatchSize }

// Run classifies items and returns one outcome per item, in input order.
// A batch over MaxBatchSize is refused with *BatchTooLargeError before any
// work. When ctx ends early the partial outcome is returned with ctx.Err();
// items that never finished are marked cancelled.
func (o *Orchestrator) Run(ctx context.Context, items []types.SubmittedItem) (types.BatchOutcome, error) {
	if len(items) > o.cfg.MaxBatchSize {
		return types.BatchOutcome{}, &BatchTooLargeError{Size: len(items), Max: o.cfg.MaxBatchSize}
	}

	out := types.BatchOutcome{
		BatchID:         o.newBatchID(),
		PipelineVersion: o.cfg.PipelineVersion,
		Items:           make([]types.ItemOutcome, len(items)),
	}
	o.metrics.BatchSize(len(items))
	if len(items) == 0 {
		return out, nil
	}

	for i, item := range items {
		out.Items[i] = types.ItemOutcome{
			Index:    i,
			Filename: item.Filename,
			Status:   types.StatusCancelled,
			Error:    "cancelled before completion",
		}
	}

	logger := o.logger.With("batch_id", out.BatchID)
	workers := o.cfg.workersFor(len(items))
	logger.Debug("batch started", "items", len(items), "workers", workers)

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				if ctx.Err() != nil {
					continue
				}
				out.Items[i] = o.processItem(ctx, logger, out.BatchID, i, items[i])
			}
		}()
	}

dispatch:
	for i := range items {
		if ctx.Err() != nil {
			break
		}
		select {
		case <-ctx.Done():
			break dispatch
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()

	cancelled := 0
	for _, item := range out.Items {
		o.metrics.ItemOutcome(string(item.Status))
		if item.Status == types.StatusCancelled {
			cancelled++
		}
	}

	if err := ctx.Err(); err != nil && cancelled > 0 {
		logger.Warn("batch interrupted", "cancelled", cancelled, "error", err)
		return out, err
	}
	logger.Debug("batch finished")
	return out, nil
}

// processItem never panics; a panic anywhere in the item becomes a failed outcome
func (o *Orchestrator) processItem(ctx context.Context, logger *slog.Logger, batchID string, idx int, item types.SubmittedItem) (outcome types.ItemOutcome) {
	outcome = types.ItemOutcome{Index: idx, Filename: item.Filename}
	defer func() {
		if r := recover(); r != nil {
			logger.Error("item panicked", "index", idx, "panic", r, "stack", string(debug.Stack()))
			outcome.Status = types.StatusFailed
			outcome.Result = nil
			outcome.Error = fmt.Sprintf("internal error: %v", r)
		}
	}()

	if err := o.validator.Validate(item); err != nil {
		var verr *types.ValidationError
		if !errors.As(err, &verr) {
			verr = &types.ValidationError{Message: err.Error()}
		}
		o.metrics.ItemRejected(string(verr.Reason))
		outcome.Status = types.StatusInvalid
		outcome.ValidationError = verr
		return outcome
	}
	o.metrics.ItemValidated()

	fp := fingerprint.Of(item.Content, o.cfg.PipelineVersion)
	outcome.Fingerprint = fp

	if cached, ok := o.cache.Get(ctx, fp); ok {
		o.metrics.CacheLookup(true)
		cached.Source = types.SourceCache
		outcome.Status = types.StatusClassified
		outcome.Result = &cached
		return outcome
	}
	o.metrics.CacheLookup(false)

	doc := stages.NewDocument(item, fp)
	result, err := o.classify(ctx, doc)
	if err != nil {
		if ctx.Err() != nil {
			outcome.Status = types.StatusCancelled
			outcome.Error = ctx.Err().Error()
			return outcome
		}
		logger.Warn("classification failed", "index", idx, "filename", item.Filename, "error", err)
		outcome.Status = types.StatusFailed
		outcome.Error = err.Error()
		return outcome
	}

	outcome.Status = types.StatusClassified
	outcome.Result = &result

	// the result is complete; persist it even if the request is going away
	bg := context.WithoutCancel(ctx)
	o.cache.Put(bg, fp, result)
	if result.Decision == types.DecisionAccept {
		for _, l := range o.learners {
			if err := l.Learn(bg, doc, result); err != nil {
				logger.Warn("learner failed", "fingerprint", fp, "error", err)
			}
		}
	}
	if o.history != nil {
		if err := o.history.Record(bg, batchID, outcome); err != nil {
			logger.Warn("history record failed", "fingerprint", fp, "error", err)
		}
	}

	return outcome
}

// classify runs the stages in order, carrying the most confident prediction
// so far and stopping as soon as the gate accepts or rejects it.
func (o *Orchestrator) classify(ctx context.Context, doc *stages.Document) (types.ClassificationResult, error) {
	var best stages.Prediction
	bestStage := ""

	for idx, st := range o.stages {
		if err := ctx.Err(); err != nil {
			return types.ClassificationResult{}, err
		}
		final := idx == len(o.stages)-1

		start := time.Now()
		p, err := o.runStage(ctx, st, doc)
		o.metrics.ClassificationLatency(st.Name(), time.Since(start))
		if err != nil {
			return types.ClassificationResult{}, fmt.Errorf("stage %s: %w", st.Name(), err)
		}

		if p = o.normalize(p); p.HasOpinion() && (!best.HasOpinion() || p.Confidence > best.Confidence) {
			best, bestStage = p, st.Name()
		}
		if !best.HasOpinion() {
			continue
		}

		switch o.gate.Evaluate(best.Confidence, final) {
		case types.DecisionAccept:
			if !final {
				o.metrics.EarlyExit(st.Name())
			}
			return o.result(best, bestStage, types.DecisionAccept), nil
		case types.DecisionReject:
			return o.result(best, bestStage, types.DecisionReject), nil
		}
	}

	// no stage had an opinion
	return o.result(stages.Prediction{Label: types.UnknownLabel}, "", types.DecisionReject), nil
}

func (o *Orchestrator) runStage(ctx context.Context, st stages.Stage, doc *stages.Document) (p stages.Prediction, err error) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("stage panicked", "stage", st.Name(), "panic", r, "stack", string(debug.Stack()))
			p, err = stages.NoOpinion(), &StagePanicError{Stage: st.Name(), Value: r}
		}
	}()
	return st.Classify(ctx, doc)
}

// normalize clamps confidence and maps the label onto the taxonomy
func (o *Orchestrator) normalize(p stages.Prediction) stages.Prediction {
	if !p.HasOpinion() {
		return stages.NoOpinion()
	}
	if o.taxonomy != nil {
		p.Label = o.taxonomy.Canonical(p.Label)
		if p.Label == "" {
			return stages.NoOpinion()
		}
	}
	p.Confidence = max(0, min(1, p.Confidence))
	return p
}

func (o *Orchestrator) result(p stages.Prediction, stage string, decision types.Decision) types.ClassificationResult {
	return types.ClassificationResult{
		Label:           p.Label,
		Confidence:      p.Confidence,
		PipelineVersion: o.cfg.PipelineVersion,
		Source:          types.SourceFresh,
		Decision:        decision,
		LowConfidence:   decision == types.DecisionReject,
		Stage:           stage,
	}
}
