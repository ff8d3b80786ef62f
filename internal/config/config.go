package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/FrenchMajesty/doc-classifier/pkg/stages"
	"github.com/FrenchMajesty/doc-classifier/pkg/types"
	"github.com/FrenchMajesty/doc-classifier/pkg/validator"
)

const (
	configPathEnv = "DOCCLASS_CONFIG"

	DefaultMaxFileSizeMB       = 10
	DefaultMaxBatchSize        = 20
	DefaultConfidenceThreshold = 0.65
	DefaultEarlyExitConfidence = 0.95
	DefaultPipelineVersion     = "2025.1"
	DefaultHTTPAddr            = ":8080"
	DefaultRedisHost           = "localhost"
	DefaultRedisPort           = 6379
	DefaultCacheTTL            = 7 * 24 * time.Hour
	DefaultLLMRatePerMinute    = 60

	CacheBackendRedis  = "redis"
	CacheBackendMemory = "memory"
)

// Config holds every setting of the service and the CLI.
type Config struct {
	Validation ValidationConfig `yaml:"validation"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Cache      CacheConfig      `yaml:"cache"`
	HTTP       HTTPConfig       `yaml:"http"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Log        LogConfig        `yaml:"log"`
	History    HistoryConfig    `yaml:"history"`
	OpenAI     OpenAIConfig     `yaml:"openai"`
	Voyage     VoyageConfig     `yaml:"voyage"`
	Pinecone   PineconeConfig   `yaml:"pinecone"`
	S3         S3Config         `yaml:"s3"`
	Labels     LabelsConfig     `yaml:"labels"`
}

// ValidationConfig drives the upload validator.
type ValidationConfig struct {
	AllowedExtensions []string `yaml:"allowedExtensions"`
	MaxFileSizeMB     float64  `yaml:"maxFileSizeMb"`
}

// PipelineConfig drives the batch orchestrator and its stage chain.
type PipelineConfig struct {
	Version      string           `yaml:"version"`
	MaxBatchSize int              `yaml:"maxBatchSize"`
	Workers      int              `yaml:"workers"`
	Stages       []string         `yaml:"stages"`
	Thresholds   types.Thresholds `yaml:"thresholds"`
}

// CacheConfig selects and configures the result store.
type CacheConfig struct {
	Backend string        `yaml:"backend"`
	TTL     time.Duration `yaml:"ttl"`
	Redis   RedisConfig   `yaml:"redis"`
}

// RedisConfig describes the Redis connection.
type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	DB       int    `yaml:"db"`
	Password string `yaml:"password"`
}

// HTTPConfig configures the API server.
type HTTPConfig struct {
	Addr    string   `yaml:"addr"`
	APIKeys []string `yaml:"apiKeys"`
}

type MetricsConfig struct {
	PrometheusEnabled bool `yaml:"prometheusEnabled"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// HistoryConfig points at the SQLite audit database. Empty DSN disables it.
type HistoryConfig struct {
	DSN string `yaml:"dsn"`
}

type OpenAIConfig struct {
	APIKey        string `yaml:"apiKey"`
	Model         string `yaml:"model"`
	BaseURL       string `yaml:"baseUrl"`
	RatePerMinute int    `yaml:"ratePerMinute"`
}

type VoyageConfig struct {
	APIKey string `yaml:"apiKey"`
}

type PineconeConfig struct {
	APIKey    string `yaml:"apiKey"`
	Host      string `yaml:"host"`
	Namespace string `yaml:"namespace"`
}

// S3Config describes an S3-compatible bucket used as a document source.
type S3Config struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"accessKey"`
	SecretKey string `yaml:"secretKey"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"useSsl"`
}

type LabelsConfig struct {
	TaxonomyPath string `yaml:"taxonomyPath"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Validation: ValidationConfig{
			AllowedExtensions: slices.Clone(validator.DefaultAllowedExtensions),
			MaxFileSizeMB:     DefaultMaxFileSizeMB,
		},
		Pipeline: PipelineConfig{
			Version:      DefaultPipelineVersion,
			MaxBatchSize: DefaultMaxBatchSize,
			Stages:       slices.Clone(stages.DefaultChain),
			Thresholds: types.Thresholds{
				ConfidenceThreshold: DefaultConfidenceThreshold,
				EarlyExitConfidence: DefaultEarlyExitConfidence,
			},
		},
		Cache: CacheConfig{
			Backend: CacheBackendRedis,
			TTL:     DefaultCacheTTL,
			Redis:   RedisConfig{Host: DefaultRedisHost, Port: DefaultRedisPort},
		},
		HTTP:    HTTPConfig{Addr: DefaultHTTPAddr},
		Metrics: MetricsConfig{PrometheusEnabled: true},
		Log:     LogConfig{Level: "info", Format: "text"},
		OpenAI:  OpenAIConfig{RatePerMinute: DefaultLLMRatePerMinute},
	}
}

// Load reads the YAML file named by DOCCLASS_CONFIG (if set) over the
// defaults and then applies environment overrides. Unreadable files and
// malformed values are errors. The result is not validated.
func Load() (Config, error) {
	cfg := Default()

	if path := os.Getenv(configPathEnv); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnvOverrides(os.Getenv); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides(getenv func(string) string) error {
	e := envReader{getenv: getenv}

	e.list("ALLOWED_EXTENSIONS", &c.Validation.AllowedExtensions)
	e.float("MAX_FILE_SIZE_MB", &c.Validation.MaxFileSizeMB)

	e.int("MAX_BATCH_SIZE", &c.Pipeline.MaxBatchSize)
	e.float("CONFIDENCE_THRESHOLD", &c.Pipeline.Thresholds.ConfidenceThreshold)
	e.float("EARLY_EXIT_CONFIDENCE", &c.Pipeline.Thresholds.EarlyExitConfidence)
	e.str("PIPELINE_VERSION", &c.Pipeline.Version)
	e.list("PIPELINE_STAGES", &c.Pipeline.Stages)
	e.int("PIPELINE_WORKERS", &c.Pipeline.Workers)

	e.str("CACHE_BACKEND", &c.Cache.Backend)
	e.duration("CACHE_TTL", &c.Cache.TTL)
	e.str("REDIS_HOST", &c.Cache.Redis.Host)
	e.int("REDIS_PORT", &c.Cache.Redis.Port)
	e.int("REDIS_DB", &c.Cache.Redis.DB)
	e.str("REDIS_PASSWORD", &c.Cache.Redis.Password)

	e.str("HTTP_ADDR", &c.HTTP.Addr)
	e.list("API_KEYS", &c.HTTP.APIKeys)
	e.bool("PROMETHEUS_ENABLED", &c.Metrics.PrometheusEnabled)
	e.str("LOG_LEVEL", &c.Log.Level)
	e.str("LOG_FORMAT", &c.Log.Format)
	e.str("HISTORY_DSN", &c.History.DSN)

	e.str("OPENAI_API_KEY", &c.OpenAI.APIKey)
	e.str("OPENAI_MODEL", &c.OpenAI.Model)
	e.str("OPENAI_BASE_URL", &c.OpenAI.BaseURL)
	e.int("LLM_RATE_PER_MINUTE", &c.OpenAI.RatePerMinute)
	e.str("VOYAGEAI_API_KEY", &c.Voyage.APIKey)
	e.str("PINECONE_API_KEY", &c.Pinecone.APIKey)
	e.str("PINECONE_HOST", &c.Pinecone.Host)
	e.str("PINECONE_NAMESPACE", &c.Pinecone.Namespace)

	e.str("S3_ENDPOINT", &c.S3.Endpoint)
	e.str("S3_ACCESS_KEY", &c.S3.AccessKey)
	e.str("S3_SECRET_KEY", &c.S3.SecretKey)
	e.str("S3_BUCKET", &c.S3.Bucket)
	e.bool("S3_USE_SSL", &c.S3.UseSSL)

	e.str("LABEL_TAXONOMY_PATH", &c.Labels.TaxonomyPath)

	return errors.Join(e.errs...)
}

// Validate reports every problem at once.
func (c Config) Validate() error {
	var errs []error

	if err := c.Pipeline.Thresholds.Validate(); err != nil {
		errs = append(errs, err)
	}
	if mb := c.Validation.MaxFileSizeMB; !(mb > 0) || math.IsInf(mb, 1) {
		errs = append(errs, fmt.Errorf("MAX_FILE_SIZE_MB must be a positive finite number, got %v", mb))
	}
	if len(c.Validation.AllowedExtensions) == 0 {
		errs = append(errs, errors.New("ALLOWED_EXTENSIONS must not be empty"))
	}
	if c.Pipeline.MaxBatchSize <= 0 {
		errs = append(errs, fmt.Errorf("MAX_BATCH_SIZE must be positive, got %d", c.Pipeline.MaxBatchSize))
	}
	if c.Pipeline.Workers < 0 {
		errs = append(errs, fmt.Errorf("PIPELINE_WORKERS must not be negative, got %d", c.Pipeline.Workers))
	}
	if strings.TrimSpace(c.Pipeline.Version) == "" {
		errs = append(errs, errors.New("PIPELINE_VERSION must not be empty"))
	}
	if len(c.Pipeline.Stages) == 0 {
		errs = append(errs, errors.New("PIPELINE_STAGES must name at least one stage"))
	}
	for _, name := range c.Pipeline.Stages {
		if !slices.Contains(stages.BuiltinNames, name) {
			errs = append(errs, fmt.Errorf("PIPELINE_STAGES: %w %q", stages.ErrUnknownStage, name))
		}
	}
	if c.Cache.Backend != CacheBackendRedis && c.Cache.Backend != CacheBackendMemory {
		errs = append(errs, fmt.Errorf("CACHE_BACKEND must be %s or %s, got %q", CacheBackendRedis, CacheBackendMemory, c.Cache.Backend))
	}
	if c.Cache.TTL < 0 {
		errs = append(errs, fmt.Errorf("CACHE_TTL must not be negative, got %s", c.Cache.TTL))
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be text or json, got %q", c.Log.Format))
	}
	if slices.Contains(c.Pipeline.Stages, stages.LLMStageName) && c.OpenAI.APIKey == "" {
		errs = append(errs, errors.New("OPENAI_API_KEY is required by the llm stage"))
	}
	if slices.Contains(c.Pipeline.Stages, stages.VectorStageName) {
		if c.Voyage.APIKey == "" || c.Pinecone.APIKey == "" || c.Pinecone.Host == "" {
			errs = append(errs, errors.New("VOYAGEAI_API_KEY, PINECONE_API_KEY and PINECONE_HOST are required by the vector stage"))
		}
	}

	return errors.Join(errs...)
}

// BodyLimit is the largest request body the API accepts for one batch.
// Each file may be up to twice MAX_FILE_SIZE_MB so an oversized file still
// reaches validation and comes back as a file_too_large item.
func (c Config) BodyLimit() int64 {
	const (
		perFileFactor = 2
		slack         = 1 << 20
	)
	return int64(float64(c.Pipeline.MaxBatchSize)*c.Validation.MaxFileSizeMB*perFileFactor*(1<<20)) + slack
}

// envReader applies set variables and collects parse errors.
type envReader struct {
	getenv func(string) string
	errs   []error
}

func (e *envReader) lookup(key string) (string, bool) {
	v := strings.TrimSpace(e.getenv(key))
	return v, v != ""
}

func (e *envReader) fail(key, value string, err error) {
	e.errs = append(e.errs, fmt.Errorf("%s=%q: %w", key, value, err))
}

func (e *envReader) str(key string, dst *string) {
	if v, ok := e.lookup(key); ok {
		*dst = v
	}
}

func (e *envReader) list(key string, dst *[]string) {
	v, ok := e.lookup(key)
	if !ok {
		return
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	*dst = out
}

func (e *envReader) int(key string, dst *int) {
	v, ok := e.lookup(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail(key, v, err)
		return
	}
	*dst = n
}

func (e *envReader) float(key string, dst *float64) {
	v, ok := e.lookup(key)
	if !ok {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.fail(key, v, err)
		return
	}
	*dst = f
}

func (e *envReader) bool(key string, dst *bool) {
	v, ok := e.lookup(key)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.fail(key, v, err)
		return
	}
	*dst = b
}

// duration accepts Go durations ("24h") or a plain number of seconds
func (e *envReader) duration(key string, dst *time.Duration) {
	v, ok := e.lookup(key)
	if !ok {
		return
	}
	if secs, err := strconv.Atoi(v); err == nil {
		*dst = time.Duration(secs) * time.Second
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.fail(key, v, err)
		return
	}
	*dst = d
}
