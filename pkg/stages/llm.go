package stages

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"golang.org/x/time/rate"

	"github.com/FrenchMajesty/doc-classifier/pkg/adapters/openai"
	"github.com/FrenchMajesty/doc-classifier/pkg/extract"
	"github.com/FrenchMajesty/doc-classifier/pkg/labels"
)

const (
	LLMStageName = "llm"

	defaultLLMModel       = "gpt-4.1-mini"
	defaultRatePerMinute  = 60
	maxPromptTextChars    = 8000
	defaultLLMTokenBudget = 20
)

const defaultSystemPrompt = `You are a document classification assistant. Given a document's filename and text, pick its category.

Rules:
- Answer on a single line as: label|confidence
- label must be one of: %s, or "unknown"
- confidence is a number between 0 and 1
- Return nothing else`

// LLMConfig configures the LLM stage
type LLMConfig struct {
	Client openai.LanguageModelClient
	Model  string
	// Temperature is omitted from requests when nil
	Temperature *float32
	// RatePerMinute caps requests across all workers. If 0, uses 60.
	RatePerMinute int
	// Labels offered to the model. If empty, the built-in taxonomy.
	Labels []string
	Logger *slog.Logger
}

// LLMStage asks an OpenAI-compatible chat model for a label and confidence
type LLMStage struct {
	client       openai.LanguageModelClient
	model        string
	temperature  *float32
	systemPrompt string
	limiter      *rate.Limiter
	logger       *slog.Logger
}

func NewLLM(cfg LLMConfig) (*LLMStage, error) {
	if cfg.Client == nil {
		return nil, errors.New("LLM client is required")
	}
	if cfg.Model == "" {
		cfg.Model = defaultLLMModel
	}
	if cfg.RatePerMinute <= 0 {
		cfg.RatePerMinute = defaultRatePerMinute
	}
	if len(cfg.Labels) == 0 {
		cfg.Labels = labels.Default().CanonicalLabels()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	perSecond := rate.Limit(float64(cfg.RatePerMinute) / 60.0)
	return &LLMStage{
		client:       cfg.Client,
		model:        cfg.Model,
		temperature:  cfg.Temperature,
		systemPrompt: fmt.Sprintf(defaultSystemPrompt, strings.Join(cfg.Labels, ", ")),
		limiter:      rate.NewLimiter(perSecond, 1),
		logger:       cfg.Logger.With("stage", LLMStageName),
	}, nil
}

func (s *LLMStage) Name() string { return LLMStageName }

func (s *LLMStage) Classify(ctx context.Context, doc *Document) (Prediction, error) {
	text, err := doc.Text()
	if err != nil && !errors.Is(err, extract.ErrUnsupported) {
		s.logger.Warn("classifying on filename only", "filename", doc.Item.Filename, "error", err)
	}
	text = extract.Clip(text, maxPromptTextChars)

	user := "Filename: " + doc.Item.Filename
	if strings.TrimSpace(text) != "" {
		user += "\n\nText:\n" + text
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return NoOpinion(), err
	}

	req := openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatMessage{
			{Role: openai.MessageRoleSystem, Content: &s.systemPrompt},
			{Role: openai.MessageRoleUser, Content: &user},
		},
		MaxCompletionTokens: defaultLLMTokenBudget,
	}
	if s.temperature != nil {
		req.Temperature = *s.temperature
	}

	resp, err := s.client.ChatCompletion(ctx, req)
	if err != nil {
		return NoOpinion(), fmt.Errorf("failed to get LLM response: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == nil {
		return NoOpinion(), fmt.Errorf("no response from LLM")
	}

	p, ok := parseLabelResponse(*resp.Choices[0].Message.Content)
	if !ok {
		s.logger.Warn("unparseable LLM answer", "filename", doc.Item.Filename, "answer", *resp.Choices[0].Message.Content)
		return NoOpinion(), nil
	}
	return p, nil
}

// parseLabelResponse parses "label|confidence". "unknown" is no opinion.
func parseLabelResponse(answer string) (Prediction, bool) {
	answer = strings.TrimSpace(answer)
	if i := strings.IndexByte(answer, '\n'); i >= 0 {
		answer = answer[:i]
	}
	label, confStr, found := strings.Cut(answer, "|")
	if !found {
		return NoOpinion(), false
	}

	label = labels.Normalize(strings.Trim(label, "\"'` "))
	conf, err := strconv.ParseFloat(strings.TrimSpace(confStr), 64)
	if err != nil || conf < 0 || conf > 1 {
		return NoOpinion(), false
	}
	if label == "" || label == "unknown" || label == "none" {
		return NoOpinion(), true
	}
	return Prediction{Label: label, Confidence: conf}, true
}
