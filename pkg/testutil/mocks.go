package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/FrenchMajesty/doc-classifier/pkg/adapters/openai"
	"github.com/FrenchMajesty/doc-classifier/pkg/stages"
	"github.com/FrenchMajesty/doc-classifier/pkg/types"
)

// MockStage is a mock implementation of stages.Stage for testing
type MockStage struct {
	StageName    string
	ClassifyFunc func(ctx context.Context, doc *stages.Document) (stages.Prediction, error)

	mu        sync.Mutex
	CallCount int
	Seen      []string
}

func (m *MockStage) Name() string { return m.StageName }

func (m *MockStage) Classify(ctx context.Context, doc *stages.Document) (stages.Prediction, error) {
	m.mu.Lock()
	m.CallCount++
	m.Seen = append(m.Seen, doc.Item.Filename)
	m.mu.Unlock()

	if m.ClassifyFunc != nil {
		return m.ClassifyFunc(ctx, doc)
	}
	return stages.NoOpinion(), nil
}

// Calls returns the number of Classify calls
func (m *MockStage) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CallCount
}

// FixedStage returns a MockStage that always predicts label at confidence
func FixedStage(name, label string, confidence float64) *MockStage {
	return &MockStage{
		StageName: name,
		ClassifyFunc: func(ctx context.Context, doc *stages.Document) (stages.Prediction, error) {
			return stages.Prediction{Label: label, Confidence: confidence}, nil
		},
	}
}

// MockLearner is a MockStage that also records Learn calls
type MockLearner struct {
	MockStage
	LearnFunc func(ctx context.Context, doc *stages.Document, result types.ClassificationResult) error

	learnMu sync.Mutex
	Learned []types.ClassificationResult
}

func (m *MockLearner) Learn(ctx context.Context, doc *stages.Document, result types.ClassificationResult) error {
	m.learnMu.Lock()
	m.Learned = append(m.Learned, result)
	m.learnMu.Unlock()

	if m.LearnFunc != nil {
		return m.LearnFunc(ctx, doc, result)
	}
	return nil
}

// LearnCount returns the number of Learn calls
func (m *MockLearner) LearnCount() int {
	m.learnMu.Lock()
	defer m.learnMu.Unlock()
	return len(m.Learned)
}

// MockModel is a mock implementation of stages.Model for testing
type MockModel struct {
	PredictFunc func(ctx context.Context, text string) (stages.Prediction, error)

	mu        sync.Mutex
	CallCount int
	LastText  string
}

func (m *MockModel) Predict(ctx context.Context, text string) (stages.Prediction, error) {
	m.mu.Lock()
	m.CallCount++
	m.LastText = text
	m.mu.Unlock()

	if m.PredictFunc != nil {
		return m.PredictFunc(ctx, text)
	}
	return stages.NoOpinion(), nil
}

// MockEmbeddingClient is a mock implementation of EmbeddingClient for testing
type MockEmbeddingClient struct {
	GenerateEmbeddingFunc func(ctx context.Context, text string) ([]float32, error)
	mu                    sync.Mutex
	CallCount             int
	LastText              string
}

func (m *MockEmbeddingClient) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	m.mu.Lock()
	m.CallCount++
	m.LastText = text
	m.mu.Unlock()

	if m.GenerateEmbeddingFunc != nil {
		return m.GenerateEmbeddingFunc(ctx, text)
	}
	// Default: return a simple embedding based on text length
	embedding := make([]float32, 10)
	for i := range embedding {
		embedding[i] = float32(len(text)) / 100.0
	}
	return embedding, nil
}

// StoredVector is a vector captured by MockVectorClient
type StoredVector struct {
	Vector   []float32
	Metadata map[string]any
}

// MockVectorClient is a mock implementation of VectorClient for testing
type MockVectorClient struct {
	SearchFunc func(ctx context.Context, vector []float32, topK int) ([]types.VectorMatch, error)
	UpsertFunc func(ctx context.Context, id string, vector []float32, metadata map[string]any) error

	mu          sync.Mutex
	CallCount   int
	UpsertCount int
	Storage     map[string]StoredVector
}

func NewMockVectorClient() *MockVectorClient {
	return &MockVectorClient{Storage: make(map[string]StoredVector)}
}

func (m *MockVectorClient) Search(ctx context.Context, vector []float32, topK int) ([]types.VectorMatch, error) {
	m.mu.Lock()
	m.CallCount++
	m.mu.Unlock()

	if m.SearchFunc != nil {
		return m.SearchFunc(ctx, vector, topK)
	}

	// Default: return empty results (cache miss)
	return []types.VectorMatch{}, nil
}

func (m *MockVectorClient) Upsert(ctx context.Context, id string, vector []float32, metadata map[string]any) error {
	m.mu.Lock()
	m.UpsertCount++
	if m.Storage == nil {
		m.Storage = make(map[string]StoredVector)
	}
	m.Storage[id] = StoredVector{Vector: vector, Metadata: metadata}
	m.mu.Unlock()

	if m.UpsertFunc != nil {
		return m.UpsertFunc(ctx, id, vector, metadata)
	}
	return nil
}

// MockChatClient is a mock implementation of openai.LanguageModelClient
type MockChatClient struct {
	ChatCompletionFunc func(ctx context.Context, req openai.ChatCompletionRequest) (*openai.ChatCompletionResponse, error)

	mu          sync.Mutex
	CallCount   int
	LastRequest openai.ChatCompletionRequest
}

func (m *MockChatClient) ChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (*openai.ChatCompletionResponse, error) {
	m.mu.Lock()
	m.CallCount++
	m.LastRequest = req
	m.mu.Unlock()

	if m.ChatCompletionFunc != nil {
		return m.ChatCompletionFunc(ctx, req)
	}
	return ChatAnswer("unknown|0"), nil
}

// ChatAnswer builds a single-choice chat completion response
func ChatAnswer(content string) *openai.ChatCompletionResponse {
	return &openai.ChatCompletionResponse{
		ID: "mock",
		Choices: []openai.ChatCompletionChoice{{
			Message:      openai.ChatMessage{Role: openai.MessageRoleAssistant, Content: &content},
			FinishReason: "stop",
		}},
	}
}

// MockRecorder is a mock implementation of metrics.Recorder that counts events
type MockRecorder struct {
	mu         sync.Mutex
	Validated  int
	Rejected   map[string]int
	CacheHits  int
	CacheMiss  int
	Latencies  map[string]int
	EarlyExits map[string]int
	Outcomes   map[string]int
	Batches    []int
}

func NewMockRecorder() *MockRecorder {
	return &MockRecorder{
		Rejected:   make(map[string]int),
		Latencies:  make(map[string]int),
		EarlyExits: make(map[string]int),
		Outcomes:   make(map[string]int),
	}
}

func (m *MockRecorder) ItemValidated() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Validated++
}

func (m *MockRecorder) ItemRejected(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Rejected[reason]++
}

func (m *MockRecorder) CacheLookup(hit bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if hit {
		m.CacheHits++
	} else {
		m.CacheMiss++
	}
}

func (m *MockRecorder) ClassificationLatency(stage string, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Latencies[stage]++
}

func (m *MockRecorder) EarlyExit(stage string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.EarlyExits[stage]++
}

func (m *MockRecorder) ItemOutcome(status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Outcomes[status]++
}

func (m *MockRecorder) BatchSize(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Batches = append(m.Batches, n)
}

// MockHistory records every outcome handed to it
type MockHistory struct {
	RecordFunc func(ctx context.Context, batchID string, outcome types.ItemOutcome) error

	mu      sync.Mutex
	Entries []types.ItemOutcome
}

func (m *MockHistory) Record(ctx context.Context, batchID string, outcome types.ItemOutcome) error {
	m.mu.Lock()
	m.Entries = append(m.Entries, outcome)
	m.mu.Unlock()

	if m.RecordFunc != nil {
		return m.RecordFunc(ctx, batchID, outcome)
	}
	return nil
}

// Len returns the number of recorded outcomes
func (m *MockHistory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Entries)
}
