// Package extract turns raw document bytes into plain text for the
// text-based classifier stages.
package extract

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

// ErrUnsupported is returned for formats that carry no extractable text
var ErrUnsupported = errors.New("extract: format has no text layer")

// MaxTextRunes bounds the text handed to downstream stages
const MaxTextRunes = 64 * 1024

// Text extracts normalised plain text from content. ext is lower-case
// without a dot.
func Text(ext string, content []byte) (string, error) {
	var (
		text string
		err  error
	)

	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "pdf":
		text, err = pdfText(content)
	case "docx":
		text, err = docxText(content)
	case "csv":
		text, err = csvText(content)
	case "html", "htm":
		text, err = htmlText(content)
	case "txt", "md", "text":
		if !utf8.Valid(content) {
			return "", fmt.Errorf("extract %s: invalid utf-8", ext)
		}
		text = string(content)
	default:
		return "", ErrUnsupported
	}
	if err != nil {
		return "", fmt.Errorf("extract %s: %w", ext, err)
	}

	return Clip(normalizeWhitespace(text), MaxTextRunes), nil
}

func csvText(content []byte) (string, error) {
	r := csv.NewReader(bytes.NewReader(content))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var sb strings.Builder
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		for _, cell := range record {
			if cell = strings.TrimSpace(cell); cell != "" {
				sb.WriteString(cell)
				sb.WriteByte(' ')
			}
		}
		sb.WriteByte('\n')
	}
	return sb.String(), nil
}

func htmlText(content []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return "", err
	}
	doc.Find("script, style, noscript, template").Remove()

	title := strings.TrimSpace(doc.Find("title").First().Text())
	body := doc.Find("body").Text()
	if title != "" && !strings.Contains(body, title) {
		return title + "\n" + body, nil
	}
	return body, nil
}

// normalizeWhitespace collapses runs of whitespace and drops non-printables
func normalizeWhitespace(text string) string {
	var sb strings.Builder
	sb.Grow(len(text))
	prevSpace := false
	for _, r := range text {
		switch {
		case unicode.IsSpace(r):
			if !prevSpace && sb.Len() > 0 {
				sb.WriteByte(' ')
				prevSpace = true
			}
		case unicode.IsPrint(r):
			sb.WriteRune(r)
			prevSpace = false
		}
	}
	return strings.TrimSpace(sb.String())
}

// Clip cuts text to at most maxRunes runes
func Clip(text string, maxRunes int) string {
	if utf8.RuneCountInString(text) <= maxRunes {
		return text
	}
	n := 0
	for i := range text {
		if n == maxRunes {
			return text[:i]
		}
		n++
	}
	return text
}
