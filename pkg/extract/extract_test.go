package extract

import (
	"archive/zip"
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestText_PlainFormats(t *testing.T) {
	tests := []struct {
		name    string
		ext     string
		content string
		want    string
	}{
		{"txt collapses whitespace", "txt", "Bank   statement\n\n\tfor March", "Bank statement for March"},
		{"markdown passthrough", "md", "# Invoice\nTotal due", "# Invoice Total due"},
		{"extension with dot", ".TXT", "hello", "hello"},
		{"csv cells joined", "csv", "date,amount\n2024-01-01, 12.50\n", "date amount 2024-01-01 12.50"},
		{"html body text", "html", "<html><head><title>Contract</title><style>p{}</style></head><body><p>Agreement between</p><script>x()</script></body></html>", "Contract Agreement between"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Text(tt.ext, []byte(tt.content))
			if err != nil {
				t.Fatalf("Expected no error, got %v", err)
			}
			if got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestText_Unsupported(t *testing.T) {
	for _, ext := range []string{"png", "jpg", "jpeg", "exe", ""} {
		if _, err := Text(ext, []byte{0x89, 'P', 'N', 'G'}); !errors.Is(err, ErrUnsupported) {
			t.Errorf("%s: expected ErrUnsupported, got %v", ext, err)
		}
	}
}

func TestText_InvalidUTF8(t *testing.T) {
	if _, err := Text("txt", []byte{0xff, 0xfe, 0xfd}); err == nil {
		t.Error("Expected error for invalid utf-8")
	}
}

func TestText_Clipped(t *testing.T) {
	got, err := Text("txt", []byte(strings.Repeat("é", MaxTextRunes+100)))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if n := len([]rune(got)); n != MaxTextRunes {
		t.Errorf("Expected %d runes, got %d", MaxTextRunes, n)
	}
}

func TestClip(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"hello", 10, "hello"},
		{"hello", 3, "hel"},
		{"aéé", 2, "aé"},
		{"日本語テキスト", 3, "日本語"},
		{"", 5, ""},
	}

	for _, tt := range tests {
		if got := Clip(tt.in, tt.max); got != tt.want {
			t.Errorf("Clip(%q, %d): expected %q, got %q", tt.in, tt.max, tt.want, got)
		}
	}
}

func TestText_Docx(t *testing.T) {
	xml := `<?xml version="1.0" encoding="UTF-8"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
<w:body>
<w:p><w:r><w:t>Employment</w:t></w:r><w:r><w:tab/><w:t>Contract</w:t></w:r></w:p>
<w:p><w:r><w:t>Signed by both parties</w:t></w:r></w:p>
</w:body></w:document>`

	got, err := Text("docx", buildDocx(t, xml))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if got != "Employment Contract Signed by both parties" {
		t.Errorf("Unexpected text %q", got)
	}
}

func TestText_DocxMissingDocument(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	_, _ = zw.Create("other.xml")
	_ = zw.Close()

	if _, err := Text("docx", buf.Bytes()); err == nil {
		t.Error("Expected error for archive without word/document.xml")
	}
	if _, err := Text("docx", []byte("not a zip")); err == nil {
		t.Error("Expected error for non-zip content")
	}
}

func TestText_PDF(t *testing.T) {
	got, err := Text("pdf", buildPDF("Invoice number 42", nil))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !strings.Contains(got, "Invoice number 42") {
		t.Errorf("Expected PDF text to contain 'Invoice number 42', got %q", got)
	}
}

func TestText_PDFCorrupt(t *testing.T) {
	if _, err := Text("pdf", []byte("definitely not a pdf")); err == nil {
		t.Error("Expected error for corrupt pdf")
	}
}

func TestPDFInfo(t *testing.T) {
	content := buildPDF("body", map[string]string{
		"Title":    "Quarterly Financial Report",
		"Keywords": "finance, q3",
	})

	info, err := PDFInfo(content)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if info.Title != "Quarterly Financial Report" {
		t.Errorf("Expected title, got %q", info.Title)
	}
	if info.Pages != 1 {
		t.Errorf("Expected 1 page, got %d", info.Pages)
	}
	if info.Empty() {
		t.Error("Expected non-empty info")
	}
}

func TestPDFInfo_NoDictionary(t *testing.T) {
	info, err := PDFInfo(buildPDF("body", nil))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !info.Empty() {
		t.Errorf("Expected empty info, got %+v", info)
	}
}

func TestTextFromStream(t *testing.T) {
	stream := []byte("BT\n/F1 12 Tf\n72 720 Td\n(Hello) Tj\n10 0 Td\n[(Wor) -20 (ld)] TJ\nT*\n(next\\040line) '\nET")
	got := normalizeWhitespace(textFromStream(stream))
	if got != "Hello World next line" {
		t.Errorf("Expected 'Hello World next line', got %q", got)
	}
}

func TestDecodePDFString(t *testing.T) {
	tests := map[string]string{
		`plain`:        "plain",
		`a\(b\)`:       "a(b)",
		`tab\there`:    "tab\there",
		`oct\101\102C`: "octABC",
		`back\\slash`:  `back\slash`,
		`unknown\q`:    "unknownq",
	}
	for in, want := range tests {
		if got := decodePDFString([]byte(in)); got != want {
			t.Errorf("decodePDFString(%q): expected %q, got %q", in, want, got)
		}
	}
}
