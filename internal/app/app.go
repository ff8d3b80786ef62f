// Package app wires configuration into a runnable pipeline, HTTP server and CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/FrenchMajesty/doc-classifier/internal/api"
	"github.com/FrenchMajesty/doc-classifier/internal/config"
	"github.com/FrenchMajesty/doc-classifier/internal/history"
	"github.com/FrenchMajesty/doc-classifier/internal/source"
	"github.com/FrenchMajesty/doc-classifier/pkg/adapters/openai"
	"github.com/FrenchMajesty/doc-classifier/pkg/adapters/pinecone"
	"github.com/FrenchMajesty/doc-classifier/pkg/adapters/voyage"
	"github.com/FrenchMajesty/doc-classifier/pkg/cache"
	"github.com/FrenchMajesty/doc-classifier/pkg/labels"
	"github.com/FrenchMajesty/doc-classifier/pkg/metrics"
	"github.com/FrenchMajesty/doc-classifier/pkg/pipeline"
	"github.com/FrenchMajesty/doc-classifier/pkg/stages"
	"github.com/FrenchMajesty/doc-classifier/pkg/types"
	"github.com/FrenchMajesty/doc-classifier/pkg/validator"
)

const shutdownTimeout = 15 * time.Second

// Application owns every long-lived dependency
type Application struct {
	cfg          config.Config
	logger       *slog.Logger
	orchestrator *pipeline.Orchestrator
	taxonomy     *labels.Taxonomy
	prometheus   *metrics.Prometheus
	history      *history.Store
	closers      []func() error
}

// New builds the application. cfg must already be validated.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Application, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &Application{cfg: cfg, logger: logger}

	taxonomy, err := a.loadTaxonomy()
	if err != nil {
		return nil, err
	}
	a.taxonomy = taxonomy

	var recorder metrics.Recorder = metrics.Nop{}
	if cfg.Metrics.PrometheusEnabled {
		a.prometheus = metrics.NewPrometheus()
		recorder = a.prometheus
	}

	deps := pipeline.Deps{
		Validator: validator.New(cfg.Validation.AllowedExtensions, cfg.Validation.MaxFileSizeMB),
		Cache:     cache.New(a.buildStore(ctx), cache.WithLogger(logger.With("component", "cache"))),
		Taxonomy:  taxonomy,
		Metrics:   recorder,
		Logger:    logger,
	}

	if cfg.History.DSN != "" {
		store, err := history.Open(ctx, cfg.History.DSN)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.history = store
		a.closers = append(a.closers, store.Close)
		deps.History = store
	}

	registry, err := a.buildRegistry()
	if err != nil {
		a.Close()
		return nil, err
	}
	deps.Stages, err = registry.Chain(cfg.Pipeline.Stages...)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.orchestrator, err = pipeline.New(pipeline.Config{
		MaxBatchSize:    cfg.Pipeline.MaxBatchSize,
		PipelineVersion: cfg.Pipeline.Version,
		Thresholds:      cfg.Pipeline.Thresholds,
		Workers:         cfg.Pipeline.Workers,
	}, deps)
	if err != nil {
		a.Close()
		return nil, err
	}

	logger.Info("pipeline ready",
		"version", cfg.Pipeline.Version,
		"stages", cfg.Pipeline.Stages,
		"cache", cfg.Cache.Backend,
		"history", a.history != nil,
	)
	return a, nil
}

func (a *Application) loadTaxonomy() (*labels.Taxonomy, error) {
	if a.cfg.Labels.TaxonomyPath == "" {
		return labels.Default(), nil
	}
	persistence := labels.NewFilePersistence(a.cfg.Labels.TaxonomyPath)
	t, err := persistence.Load()
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() error { return persistence.Save(t) })
	return t, nil
}

func (a *Application) buildStore(ctx context.Context) cache.Store {
	if a.cfg.Cache.Backend == config.CacheBackendMemory {
		return cache.NewMemoryStore()
	}

	r := a.cfg.Cache.Redis
	store := cache.NewRedisStore(cache.RedisConfig{
		Host:     r.Host,
		Port:     r.Port,
		DB:       r.DB,
		Password: r.Password,
		TTL:      a.cfg.Cache.TTL,
	})
	if err := store.Ping(ctx); err != nil {
		a.logger.Warn("redis unreachable, cache lookups will miss until it recovers", "addr", fmt.Sprintf("%s:%d", r.Host, r.Port), "error", err)
	}
	a.closers = append(a.closers, store.Close)
	return store
}

// buildRegistry registers every stage whose credentials are configured
func (a *Application) buildRegistry() (*stages.Registry, error) {
	reg := stages.NewRegistry()
	stageLogger := a.logger.With("component", "stages")

	local := []stages.Stage{
		stages.NewFilename(),
		stages.NewMetadata(stageLogger),
		stages.NewText(nil, stageLogger),
	}
	for _, s := range local {
		if err := reg.Register(s); err != nil {
			return nil, err
		}
	}

	if a.cfg.Voyage.APIKey != "" && a.cfg.Pinecone.APIKey != "" && a.cfg.Pinecone.Host != "" {
		embed, err := voyage.NewClient(a.cfg.Voyage.APIKey)
		if err != nil {
			return nil, err
		}
		index, err := pinecone.NewClient(a.cfg.Pinecone.APIKey, a.cfg.Pinecone.Host, a.cfg.Pinecone.Namespace)
		if err != nil {
			return nil, err
		}
		vector, err := stages.NewVector(stages.VectorConfig{Embedding: embed, Vectors: index, Logger: stageLogger})
		if err != nil {
			return nil, err
		}
		if err := reg.Register(vector); err != nil {
			return nil, err
		}
	}

	if a.cfg.OpenAI.APIKey != "" {
		client := openai.NewClient(a.cfg.OpenAI.APIKey)
		client.SetBaseURL(a.cfg.OpenAI.BaseURL)
		client.Logger = a.logger.With("component", "openai")

		llm, err := stages.NewLLM(stages.LLMConfig{
			Client:        client,
			Model:         a.cfg.OpenAI.Model,
			RatePerMinute: a.cfg.OpenAI.RatePerMinute,
			Labels:        a.taxonomy.CanonicalLabels(),
			Logger:        stageLogger,
		})
		if err != nil {
			return nil, err
		}
		if err := reg.Register(llm); err != nil {
			return nil, err
		}
	}

	return reg, nil
}

// Handler builds the HTTP API
func (a *Application) Handler() (http.Handler, error) {
	cfg := api.Config{
		Classifier: a.orchestrator,
		APIKeys:    a.cfg.HTTP.APIKeys,
		BodyLimit:  a.cfg.BodyLimit(),
		Logger:     a.logger,
	}
	if a.prometheus != nil {
		cfg.MetricsHandler = a.prometheus.Handler()
	}
	if a.history != nil {
		cfg.History = a.history
	}
	srv, err := api.New(cfg)
	if err != nil {
		return nil, err
	}
	return srv, nil
}

// Serve runs the HTTP API until ctx is done, then drains in-flight requests
func (a *Application) Serve(ctx context.Context) error {
	handler, err := a.Handler()
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              a.cfg.HTTP.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server listening", "addr", a.cfg.HTTP.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	a.logger.Info("http server shutting down")
	return srv.Shutdown(shutdownCtx)
}

// Classify runs items in batches of at most MaxBatchSize and returns one outcome per batch
func (a *Application) Classify(ctx context.Context, items []types.SubmittedItem) ([]types.BatchOutcome, error) {
	var outcomes []types.BatchOutcome
	for _, chunk := range source.Chunk(items, a.orchestrator.MaxBatchSize()) {
		out, err := a.orchestrator.Run(ctx, chunk)
		if err != nil {
			return append(outcomes, out), err
		}
		outcomes = append(outcomes, out)
	}
	return outcomes, nil
}

// Taxonomy returns the label taxonomy shared by the stages
func (a *Application) Taxonomy() *labels.Taxonomy { return a.taxonomy }

// Bucket opens the configured S3 bucket
func (a *Application) Bucket() (*source.Bucket, error) {
	s3 := a.cfg.S3
	return source.NewBucket(source.BucketConfig{
		Endpoint:       s3.Endpoint,
		AccessKey:      s3.AccessKey,
		SecretKey:      s3.SecretKey,
		Bucket:         s3.Bucket,
		UseSSL:         s3.UseSSL,
		MaxObjectBytes: int64(a.cfg.Validation.MaxFileSizeMB * (1 << 20)),
	})
}

// Close releases resources in reverse order of acquisition
func (a *Application) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
