package extract

import (
	"archive/zip"
	"bytes"
	"strconv"
	"strings"
	"testing"
)

// buildPDF creates a single-page PDF with correct xref offsets. info, when
// non-empty, is written as the trailer's document-information dictionary.
func buildPDF(text string, info map[string]string) []byte {
	escaped := strings.NewReplacer(`\`, `\\`, "(", `\(`, ")", `\)`).Replace(text)
	stream := "BT\n/F1 12 Tf\n72 720 Td\n(" + escaped + ") Tj\nET"

	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents 4 0 R /Resources << /Font << /F1 5 0 R >> >> >>",
		"<< /Length " + strconv.Itoa(len(stream)) + " >>\nstream\n" + stream + "\nendstream",
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>",
	}
	if len(info) > 0 {
		var d strings.Builder
		d.WriteString("<<")
		for _, k := range []string{"Title", "Subject", "Keywords", "Author"} {
			if v, ok := info[k]; ok {
				d.WriteString(" /" + k + " (" + v + ")")
			}
		}
		d.WriteString(" >>")
		objects = append(objects, d.String())
	}

	var b strings.Builder
	b.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects)+1)
	for i, obj := range objects {
		offsets[i+1] = b.Len()
		b.WriteString(strconv.Itoa(i+1) + " 0 obj\n" + obj + "\nendobj\n")
	}

	size := len(objects) + 1
	xref := b.Len()
	b.WriteString("xref\n0 " + strconv.Itoa(size) + "\n")
	b.WriteString("0000000000 65535 f \n")
	for i := 1; i < size; i++ {
		off := strconv.Itoa(offsets[i])
		b.WriteString(strings.Repeat("0", 10-len(off)) + off + " 00000 n \n")
	}
	b.WriteString("trailer\n<< /Size " + strconv.Itoa(size) + " /Root 1 0 R")
	if len(info) > 0 {
		b.WriteString(" /Info " + strconv.Itoa(len(objects)) + " 0 R")
	}
	b.WriteString(" >>\nstartxref\n" + strconv.Itoa(xref) + "\n%%EOF\n")
	return []byte(b.String())
}

func buildDocx(t *testing.T, documentXML string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write([]byte(documentXML)); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}
