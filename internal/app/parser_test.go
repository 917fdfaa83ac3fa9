package app

import (
	"archive/zip"
	"bytes"
	"errors"
	"strings"
	"testing"
)

func buildDOCX(t *testing.T, paragraphs []string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	f, err := w.Create("word/document.xml")
	if err != nil {
		t.Fatalf("create document.xml: %v", err)
	}
	var body strings.Builder
	body.WriteString(`<?xml version="1.0"?><w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`)
	for _, p := range paragraphs {
		body.WriteString("<w:p><w:r><w:t>")
		body.WriteString(p)
		body.WriteString("</w:t></w:r></w:p>")
	}
	body.WriteString("</w:body></w:document>")
	if _, err := f.Write([]byte(body.String())); err != nil {
		t.Fatalf("write document.xml: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

func TestExtractDocumentTextDOCX(t *testing.T) {
	data := buildDOCX(t, []string{"Introduction générale", "Méthodologie de recherche"})

	text, err := extractDocumentText("memoire.docx", data)
	if err != nil {
		t.Fatalf("extractDocumentText: %v", err)
	}
	if !strings.Contains(text, "Introduction générale") {
		t.Errorf("missing first paragraph in %q", text)
	}
	if !strings.Contains(text, "Méthodologie de recherche") {
		t.Errorf("missing second paragraph in %q", text)
	}
}

func TestExtractDocumentTextDOCXEmptyArchive(t *testing.T) {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	if err := w.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}

	if _, err := extractDocumentText("vide.docx", buf.Bytes()); err == nil {
		t.Fatal("expected error for docx without word/document.xml")
	}
}

func TestExtractDocumentTextHTML(t *testing.T) {
	page := `<html><head><style>p { color: red }</style><script>alert(1)</script></head>` +
		`<body><p>Revue de littérature</p><div>Cadre théorique</div></body></html>`

	text, err := extractDocumentText("notes.html", []byte(page))
	if err != nil {
		t.Fatalf("extractDocumentText: %v", err)
	}
	if !strings.Contains(text, "Revue de littérature") || !strings.Contains(text, "Cadre théorique") {
		t.Errorf("unexpected text %q", text)
	}
	if strings.Contains(text, "alert") || strings.Contains(text, "color") {
		t.Errorf("script/style leaked into %q", text)
	}
}

func TestExtractDocumentTextPlain(t *testing.T) {
	text, err := extractDocumentText("notes.txt", []byte("  ligne une\n\nligne   deux  "))
	if err != nil {
		t.Fatalf("extractDocumentText: %v", err)
	}
	if text != "ligne une ligne deux" {
		t.Errorf("text = %q", text)
	}
}

func TestExtractDocumentTextUnsupported(t *testing.T) {
	_, err := extractDocumentText("image.png", []byte{0x89, 0x50})
	if !errors.Is(err, ErrUnsupportedFile) {
		t.Fatalf("err = %v, want ErrUnsupportedFile", err)
	}
}

func TestExtractDocumentTextBadPDF(t *testing.T) {
	if _, err := extractDocumentText("broken.pdf", []byte("not a pdf")); err == nil {
		t.Fatal("expected error for invalid pdf bytes")
	}
}
