package stages_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/FrenchMajesty/doc-classifier/pkg/adapters/openai"
	"github.com/FrenchMajesty/doc-classifier/pkg/stages"
	"github.com/FrenchMajesty/doc-classifier/pkg/testutil"
	"github.com/FrenchMajesty/doc-classifier/pkg/types"
)

func doc(filename, content string) *stages.Document {
	return stages.NewDocument(types.SubmittedItem{Filename: filename, Content: []byte(content)}, types.Fingerprint("fp-"+filename))
}

func TestFilenameStage(t *testing.T) {
	tests := []struct {
		filename string
		label    string
	}{
		{"invoice_123.pdf", "invoice"},
		{"my_bank_statement.docx", "bank_statement"},
		{"financial_report_final.xlsx", "financial_report"},
		{"drivers_license_scan.jpg", "drivers_licence"},
		{"id_card_john_doe.png", "id_doc"},
		{"service_agreement.pdf", "contract"},
		{"important_email.eml", "email"},
		{"application_form_v2.pdf", "form"},
		{"unknown_document.dat", ""},
		{"", ""},
		{"path/to/invoice.pdf", "invoice"},
		{`C:\scans\invoice.pdf`, "invoice"},
		{"INV001.pdf", "invoice"},
		{"message.eml", "email"},
	}

	stage := stages.NewFilename()
	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			p, err := stage.Classify(context.Background(), doc(tt.filename, "dummy"))
			if err != nil {
				t.Fatalf("Expected no error, got %v", err)
			}
			if p.Label != tt.label {
				t.Errorf("Expected label %q, got %q", tt.label, p.Label)
			}
			if tt.label == "" {
				if p.HasOpinion() || p.Confidence != 0 {
					t.Errorf("Expected no opinion, got %+v", p)
				}
				return
			}
			if p.Confidence < 0.80 || p.Confidence > 0.95 {
				t.Errorf("Expected confidence in [0.80, 0.95], got %v", p.Confidence)
			}
		})
	}
}

func TestFilenameStage_StrongStart(t *testing.T) {
	stage := stages.NewFilename()
	strong, _ := stage.Classify(context.Background(), doc("invoice_march.pdf", ""))
	weak, _ := stage.Classify(context.Background(), doc("march_invoice.pdf", ""))

	if strong.Confidence != stages.FilenameStrongConfidence {
		t.Errorf("Expected %v, got %v", stages.FilenameStrongConfidence, strong.Confidence)
	}
	if weak.Confidence != stages.FilenameConfidence {
		t.Errorf("Expected %v, got %v", stages.FilenameConfidence, weak.Confidence)
	}
}

func TestMetadataStage_NonPDF(t *testing.T) {
	p, err := stages.NewMetadata(nil).Classify(context.Background(), doc("document.txt", "text_content"))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if p.HasOpinion() {
		t.Errorf("Expected no opinion, got %+v", p)
	}
}

func TestMetadataStage_CorruptPDF(t *testing.T) {
	p, err := stages.NewMetadata(nil).Classify(context.Background(), doc("corrupt.pdf", "bad_pdf"))
	if err != nil {
		t.Fatalf("Expected unreadable pdf to be no opinion, got error %v", err)
	}
	if p.HasOpinion() {
		t.Errorf("Expected no opinion, got %+v", p)
	}
}

func TestTextStage_Heuristic(t *testing.T) {
	stage := stages.NewText(nil, nil)

	p, err := stage.Classify(context.Background(), doc("statement.csv", "date,desc\n2024-01-01,bank statement keywords here\n"))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if p.Label != "bank_statement" || p.Confidence != stages.HeuristicTextConfidence {
		t.Errorf("Expected bank_statement@0.75, got %+v", p)
	}
}

func TestTextStage_WithModel(t *testing.T) {
	model := &testutil.MockModel{
		PredictFunc: func(ctx context.Context, text string) (stages.Prediction, error) {
			return stages.Prediction{Label: "invoice", Confidence: 0.88}, nil
		},
	}

	p, err := stages.NewText(model, nil).Classify(context.Background(), doc("scan.txt", "extracted invoice text"))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if p.Label != "invoice" || p.Confidence != 0.88 {
		t.Errorf("Expected model prediction, got %+v", p)
	}
	if model.LastText != "extracted invoice text" {
		t.Errorf("Expected model to see extracted text, got %q", model.LastText)
	}
}

func TestTextStage_ModelUnavailableFallsBack(t *testing.T) {
	model := &testutil.MockModel{
		PredictFunc: func(ctx context.Context, text string) (stages.Prediction, error) {
			return stages.Prediction{}, stages.ErrModelUnavailable
		},
	}

	p, _ := stages.NewText(model, nil).Classify(context.Background(), doc("a.txt", "some form application text"))
	if p.Label != "form" || p.Confidence != stages.HeuristicTextConfidence {
		t.Errorf("Expected heuristic form@0.75, got %+v", p)
	}
}

func TestTextStage_ModelErrorIsNoOpinion(t *testing.T) {
	model := &testutil.MockModel{
		PredictFunc: func(ctx context.Context, text string) (stages.Prediction, error) {
			return stages.Prediction{}, errors.New("simulated prediction error")
		},
	}

	p, err := stages.NewText(model, nil).Classify(context.Background(), doc("a.txt", "invoice text"))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if p.HasOpinion() {
		t.Errorf("Expected no opinion, got %+v", p)
	}
}

func TestTextStage_NoOpinionCases(t *testing.T) {
	stage := stages.NewText(&testutil.MockModel{}, nil)

	for name, d := range map[string]*stages.Document{
		"unsupported": doc("photo.png", "\x89PNG"),
		"blank":       doc("empty.txt", "  \n "),
		"no keywords": doc("nomatch.txt", "unique text no keywords"),
		"bad utf-8":   doc("bad.txt", "\xff\xfe"),
	} {
		p, err := stage.Classify(context.Background(), d)
		if err != nil {
			t.Errorf("%s: expected no error, got %v", name, err)
		}
		if p.HasOpinion() {
			t.Errorf("%s: expected no opinion, got %+v", name, p)
		}
	}
}

func TestVectorStage_NeighbourHit(t *testing.T) {
	vectors := testutil.NewMockVectorClient()
	vectors.SearchFunc = func(ctx context.Context, v []float32, topK int) ([]types.VectorMatch, error) {
		if topK != 1 {
			t.Errorf("Expected topK 1, got %d", topK)
		}
		return []types.VectorMatch{{ID: "fp-old", Score: 0.97, Metadata: map[string]any{"label": "contract"}}}, nil
	}
	embedding := &testutil.MockEmbeddingClient{}

	stage, err := stages.NewVector(stages.VectorConfig{Embedding: embedding, Vectors: vectors})
	if err != nil {
		t.Fatalf("Failed to create stage: %v", err)
	}

	d := doc("x.txt", "this agreement binds")
	p, err := stage.Classify(context.Background(), d)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if p.Label != "contract" || p.Confidence < 0.969 || p.Confidence > 0.971 {
		t.Errorf("Expected contract@0.97, got %+v", p)
	}

	// Learn reuses the embedding computed by Classify
	err = stage.Learn(context.Background(), d, types.ClassificationResult{Label: "contract", Decision: types.DecisionAccept, PipelineVersion: "v1"})
	if err != nil {
		t.Fatalf("Expected no learn error, got %v", err)
	}
	if embedding.CallCount != 1 {
		t.Errorf("Expected 1 embedding call, got %d", embedding.CallCount)
	}
	stored, ok := vectors.Storage["fp-x.txt"]
	if !ok {
		t.Fatal("Expected vector stored under fingerprint")
	}
	if stored.Metadata["label"] != "contract" || stored.Metadata["pipeline_version"] != "v1" {
		t.Errorf("Unexpected metadata %+v", stored.Metadata)
	}
}

func TestVectorStage_BelowThreshold(t *testing.T) {
	vectors := testutil.NewMockVectorClient()
	vectors.SearchFunc = func(ctx context.Context, v []float32, topK int) ([]types.VectorMatch, error) {
		return []types.VectorMatch{{ID: "a", Score: 0.5, Metadata: map[string]any{"label": "invoice"}}}, nil
	}
	stage, _ := stages.NewVector(stages.VectorConfig{Embedding: &testutil.MockEmbeddingClient{}, Vectors: vectors})

	p, _ := stage.Classify(context.Background(), doc("x.txt", "text"))
	if p.HasOpinion() {
		t.Errorf("Expected no opinion below similarity threshold, got %+v", p)
	}
}

func TestVectorStage_Errors(t *testing.T) {
	if _, err := stages.NewVector(stages.VectorConfig{}); err == nil {
		t.Error("Expected error without clients")
	}

	embedding := &testutil.MockEmbeddingClient{
		GenerateEmbeddingFunc: func(ctx context.Context, text string) ([]float32, error) {
			return nil, errors.New("quota exceeded")
		},
	}
	stage, _ := stages.NewVector(stages.VectorConfig{Embedding: embedding, Vectors: testutil.NewMockVectorClient()})
	if _, err := stage.Classify(context.Background(), doc("x.txt", "text")); err == nil {
		t.Error("Expected embedding error to fail the stage")
	}

	// images have nothing to embed
	p, err := stage.Classify(context.Background(), doc("x.png", "\x89PNG"))
	if err != nil || p.HasOpinion() {
		t.Errorf("Expected no opinion for image, got %+v / %v", p, err)
	}
}

func TestVectorStage_LearnSkipsRejected(t *testing.T) {
	vectors := testutil.NewMockVectorClient()
	stage, _ := stages.NewVector(stages.VectorConfig{Embedding: &testutil.MockEmbeddingClient{}, Vectors: vectors})

	_ = stage.Learn(context.Background(), doc("x.txt", "t"), types.ClassificationResult{Label: "invoice", Decision: types.DecisionReject})
	if vectors.UpsertCount != 0 {
		t.Errorf("Expected no upsert for rejected result, got %d", vectors.UpsertCount)
	}
}

func TestVectorStage_LearnAccentedText(t *testing.T) {
	vectors := testutil.NewMockVectorClient()
	stage, _ := stages.NewVector(stages.VectorConfig{Embedding: &testutil.MockEmbeddingClient{}, Vectors: vectors})

	d := doc("facture.txt", "a"+strings.Repeat("é", 800))
	err := stage.Learn(context.Background(), d, types.ClassificationResult{Label: "invoice", Decision: types.DecisionAccept})
	if err != nil {
		t.Fatalf("Expected no learn error, got %v", err)
	}

	text, _ := vectors.Storage["fp-facture.txt"].Metadata["vector_text"].(string)
	if !utf8.ValidString(text) {
		t.Errorf("Expected valid UTF-8 vector_text, got %q", text)
	}
	if n := utf8.RuneCountInString(text); n != 500 {
		t.Errorf("Expected 500 runes of vector_text, got %d", n)
	}
}

func TestLLMStage(t *testing.T) {
	client := &testutil.MockChatClient{
		ChatCompletionFunc: func(ctx context.Context, req openai.ChatCompletionRequest) (*openai.ChatCompletionResponse, error) {
			return testutil.ChatAnswer("Invoice|0.82"), nil
		},
	}
	stage, err := stages.NewLLM(stages.LLMConfig{Client: client, Model: "m", RatePerMinute: 6000})
	if err != nil {
		t.Fatalf("Failed to create stage: %v", err)
	}

	p, err := stage.Classify(context.Background(), doc("scan_0042.txt", "Amount due: 120 EUR"))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if p.Label != "invoice" || p.Confidence != 0.82 {
		t.Errorf("Expected invoice@0.82, got %+v", p)
	}

	req := client.LastRequest
	if req.Model != "m" || len(req.Messages) != 2 {
		t.Fatalf("Unexpected request %+v", req)
	}
	if !strings.Contains(*req.Messages[0].Content, "bank_statement") {
		t.Error("Expected system prompt to list the taxonomy labels")
	}
	if !strings.Contains(*req.Messages[1].Content, "scan_0042.txt") || !strings.Contains(*req.Messages[1].Content, "Amount due") {
		t.Errorf("Expected filename and text in user prompt, got %q", *req.Messages[1].Content)
	}
}

func TestLLMStage_LongAccentedText(t *testing.T) {
	client := &testutil.MockChatClient{}
	stage, _ := stages.NewLLM(stages.LLMConfig{Client: client, RatePerMinute: 6000})

	if _, err := stage.Classify(context.Background(), doc("reçu.txt", "a"+strings.Repeat("é", 9000))); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	user := *client.LastRequest.Messages[1].Content
	if !utf8.ValidString(user) {
		t.Error("Expected user prompt to be valid UTF-8")
	}
	if strings.Count(user, "é") != 7999 {
		t.Errorf("Expected prompt text clipped to 8000 runes, got %d accented runes", strings.Count(user, "é"))
	}
}

func TestLLMStage_FailuresAndGarbage(t *testing.T) {
	client := &testutil.MockChatClient{
		ChatCompletionFunc: func(ctx context.Context, req openai.ChatCompletionRequest) (*openai.ChatCompletionResponse, error) {
			return nil, &openai.ChatCompletionError{Message: "rate limited", StatusCode: 429}
		},
	}
	stage, _ := stages.NewLLM(stages.LLMConfig{Client: client, RatePerMinute: 6000})
	if _, err := stage.Classify(context.Background(), doc("a.txt", "x")); err == nil {
		t.Error("Expected client error to fail the stage")
	}

	client.ChatCompletionFunc = func(ctx context.Context, req openai.ChatCompletionRequest) (*openai.ChatCompletionResponse, error) {
		return testutil.ChatAnswer("I think it's an invoice"), nil
	}
	p, err := stage.Classify(context.Background(), doc("a.png", "\x89PNG"))
	if err != nil || p.HasOpinion() {
		t.Errorf("Expected unparseable answer to be no opinion, got %+v / %v", p, err)
	}

	if _, err := stages.NewLLM(stages.LLMConfig{}); err == nil {
		t.Error("Expected error without client")
	}
}

func TestLLMStage_RateLimitHonoursContext(t *testing.T) {
	stage, _ := stages.NewLLM(stages.LLMConfig{Client: &testutil.MockChatClient{}, RatePerMinute: 1})

	// first call consumes the burst
	_, _ = stage.Classify(context.Background(), doc("a.txt", "x"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := stage.Classify(ctx, doc("b.txt", "x")); err == nil {
		t.Error("Expected limiter wait to fail once the context expires")
	}
}

func TestRegistry(t *testing.T) {
	r := stages.NewRegistry()
	if err := r.Register(stages.NewFilename()); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if err := r.Register(stages.NewText(nil, nil)); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if err := r.Register(stages.NewFilename()); err == nil {
		t.Error("Expected duplicate registration to fail")
	}
	if err := r.Register(&testutil.MockStage{}); err == nil {
		t.Error("Expected unnamed stage to fail")
	}

	chain, err := r.Chain("filename", "text")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if chain[0].Name() != "filename" || chain[1].Name() != "text" {
		t.Errorf("Expected chain order preserved, got %s,%s", chain[0].Name(), chain[1].Name())
	}

	if _, err := r.Chain("filename", "vector"); !errors.Is(err, stages.ErrUnknownStage) {
		t.Errorf("Expected ErrUnknownStage, got %v", err)
	}
	if _, err := r.Chain("text", "text"); err == nil {
		t.Error("Expected duplicate chain entry to fail")
	}
	if _, err := r.Chain(); err == nil {
		t.Error("Expected empty chain to fail")
	}
	if names := r.Names(); len(names) != 2 || names[0] != "filename" {
		t.Errorf("Unexpected names %v", names)
	}
}
