package extract

import (
	"archive/zip"
	"bytes"
	"errors"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/hyperjump/kotae/internal/models"
)

func zipOf(t *testing.T, files map[string]string, order ...string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	if len(order) == 0 {
		for name := range files {
			order = append(order, name)
		}
	}
	for _, name := range order {
		fw, err := w.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := fw.Write([]byte(files[name])); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestExtract_plain(t *testing.T) {
	e := NewExtractor()
	got, err := e.Extract([]byte("Hello world\r\nLine 2"), "txt")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got.Text != "Hello world\nLine 2" {
		t.Errorf("got %q", got.Text)
	}
	if got.Format != "txt" || got.Empty {
		t.Errorf("unexpected result: %+v", got)
	}
}

func TestExtractBytes_plainInvalidUTF8(t *testing.T) {
	e := NewExtractor()
	content := []byte("hello\x80world")
	got, err := e.ExtractBytes(content, "md")
	if err != nil {
		t.Fatalf("ExtractBytes: %v", err)
	}
	if got != "hello\ufffdworld" {
		t.Errorf("got %q", got)
	}
	res, err := e.Extract(content, ".md")
	if err != nil {
		t.Fatal(err)
	}
	if res.Text != "helloworld" {
		t.Errorf("normalized: got %q", res.Text)
	}
}

func TestExtract_emptyIsFlagged(t *testing.T) {
	e := NewExtractor()
	got, err := e.Extract([]byte(" \n\t \x00 "), "txt")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !got.Empty || got.Text != "" {
		t.Errorf("expected empty flagged result, got %+v", got)
	}
}

func TestExtract_unsupportedFormat(t *testing.T) {
	e := NewExtractor()
	_, err := e.Extract([]byte("raw content"), ".xyz")
	if !errors.Is(err, models.ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestExtract_corruptPDF(t *testing.T) {
	e := NewExtractor()
	_, err := e.Extract([]byte("this is not a pdf"), "pdf")
	if !errors.Is(err, models.ErrExtractionFailure) {
		t.Fatalf("expected ErrExtractionFailure, got %v", err)
	}
}

func TestExtract_excel(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	_ = f.SetCellValue("Sheet1", "A1", "Title")
	_ = f.SetCellValue("Sheet1", "A2", "Value 1")
	_ = f.SetCellValue("Sheet1", "B2", "Value 2")
	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}

	raw, err := NewExtractor().ExtractBytes(buf.Bytes(), "xlsx")
	if err != nil {
		t.Fatalf("ExtractBytes: %v", err)
	}
	if raw != "Title\nValue 1\tValue 2\n\n" {
		t.Errorf("raw: got %q", raw)
	}
	got, err := NewExtractor().Extract(buf.Bytes(), "xlsx")
	if err != nil {
		t.Fatal(err)
	}
	if got.Text != "Title\nValue 1 Value 2" {
		t.Errorf("got %q", got.Text)
	}
}

const docxNS = `<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`

// minimalDocx returns a minimal .docx zip with word/document.xml holding the given body XML.
func minimalDocx(t *testing.T, body string) []byte {
	return zipOf(t, map[string]string{
		"word/document.xml": docxNS + body + `</w:body></w:document>`,
	})
}

func TestExtract_docx(t *testing.T) {
	content := minimalDocx(t, `<w:p><w:r><w:t>Searchable docx content</w:t></w:r></w:p>`)
	got, err := NewExtractor().Extract(content, "docx")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got.Text != "Searchable docx content" {
		t.Errorf("got %q", got.Text)
	}
}

func TestExtract_docxParagraphsAndRuns(t *testing.T) {
	content := minimalDocx(t,
		`<w:p w:rsidR="00A1"><w:pPr><w:jc w:val="center"/></w:pPr><w:r><w:t>Hel</w:t></w:r><w:r><w:t xml:space="preserve">lo world</w:t></w:r></w:p>`+
			`<w:p><w:r><w:t>Tom &amp; Jerry</w:t></w:r><w:r><w:tab/><w:t>tabbed</w:t></w:r></w:p>`+
			`<w:p></w:p>`)
	got, err := NewExtractor().Extract(content, "docx")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got.Text != "Hello world\nTom & Jerry tabbed" {
		t.Errorf("got %q", got.Text)
	}
}

func TestExtract_docxContentTypesPath(t *testing.T) {
	for name, override := range map[string]string{
		"partname first":   `<Override PartName="/word/document2.xml" ContentType="` + docxMainContentType + `"/>`,
		"contenttype first": `<Override ContentType="` + docxMainContentType + `" PartName="/word/document2.xml"/>`,
	} {
		t.Run(name, func(t *testing.T) {
			content := zipOf(t, map[string]string{
				contentTypesPath:     `<?xml version="1.0"?><Types>` + override + `</Types>`,
				"word/document2.xml": docxNS + `<w:p><w:r><w:t>Content from document2</w:t></w:r></w:p></w:body></w:document>`,
			})
			got, err := NewExtractor().Extract(content, "docx")
			if err != nil {
				t.Fatalf("Extract: %v", err)
			}
			if got.Text != "Content from document2" {
				t.Errorf("got %q", got.Text)
			}
		})
	}
}

func TestExtract_docxNotZip(t *testing.T) {
	_, err := NewExtractor().Extract([]byte("plain bytes"), "docx")
	if !errors.Is(err, models.ErrExtractionFailure) {
		t.Fatalf("expected ErrExtractionFailure, got %v", err)
	}
}

func TestExtract_docxMissingBody(t *testing.T) {
	content := zipOf(t, map[string]string{"other.xml": "<x/>"})
	_, err := NewExtractor().Extract(content, "docx")
	if !errors.Is(err, models.ErrExtractionFailure) {
		t.Fatalf("expected ErrExtractionFailure, got %v", err)
	}
}

func slideXML(texts ...string) string {
	var b bytes.Buffer
	b.WriteString(`<p:sld><p:cSld><p:spTree><p:sp><p:txBody>`)
	for _, s := range texts {
		b.WriteString(`<a:p><a:r><a:t>` + s + `</a:t></a:r></a:p>`)
	}
	b.WriteString(`</p:txBody></p:sp></p:spTree></p:cSld></p:sld>`)
	return b.String()
}

func TestExtract_pptxSlideOrder(t *testing.T) {
	content := zipOf(t, map[string]string{
		"ppt/slides/slide10.xml":            slideXML("Tenth slide"),
		"ppt/slides/slide2.xml":             slideXML("Second slide", "more"),
		"ppt/slides/_rels/slide2.xml.rels": "<Relationships/>",
	}, "ppt/slides/slide10.xml", "ppt/slides/slide2.xml", "ppt/slides/_rels/slide2.xml.rels")

	got, err := NewExtractor().Extract(content, "pptx")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got.Text != "Second slide\nmore\n\nTenth slide" {
		t.Errorf("got %q", got.Text)
	}
}

func TestExtract_pptxEmpty(t *testing.T) {
	content := zipOf(t, map[string]string{"ppt/slides/slide1.xml": `<p:sld><p:cSld/></p:sld>`})
	got, err := NewExtractor().Extract(content, "pptx")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !got.Empty {
		t.Errorf("expected empty result, got %q", got.Text)
	}
}

func TestExtract_openDocument(t *testing.T) {
	tests := []struct {
		format  string
		content string
		want    string
	}{
		{"odp", `<office:body><draw:page><draw:text-box><text:p>Searchable odp content</text:p></draw:text-box></draw:page></office:body>`, "Searchable odp content"},
		{"odt", `<office:text><text:h text:outline-level="1">Title</text:h><text:p text:style-name="P1">Body <text:span text:style-name="T1">bold</text:span><text:s/>text</text:p></office:text>`, "Title\nBody bold text"},
		{"ods", `<table:table-row><table:table-cell><text:p>Cell A</text:p></table:table-cell><table:table-cell><text:p>Cell B</text:p></table:table-cell></table:table-row>`, "Cell A\nCell B"},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			content := zipOf(t, map[string]string{"content.xml": `<office:document-content>` + tt.content + `</office:document-content>`})
			got, err := NewExtractor().Extract(content, tt.format)
			if err != nil {
				t.Fatalf("Extract: %v", err)
			}
			if got.Text != tt.want {
				t.Errorf("got %q, want %q", got.Text, tt.want)
			}
		})
	}
}

func TestExtract_openDocumentContentNotFound(t *testing.T) {
	content := zipOf(t, map[string]string{"other.xml": "<x/>"})
	_, err := NewExtractor().Extract(content, "ods")
	if !errors.Is(err, models.ErrExtractionFailure) {
		t.Fatalf("expected ErrExtractionFailure, got %v", err)
	}
}

func TestSupported(t *testing.T) {
	for _, f := range []string{"pdf", ".PDF", "docx", "txt", "rtf", "odt"} {
		if !Supported(f) {
			t.Errorf("%s should be supported", f)
		}
	}
	for _, f := range []string{"exe", "", "doc"} {
		if Supported(f) {
			t.Errorf("%q should not be supported", f)
		}
	}
	if got := FormatFromFilename("Report.Final.DOCX"); got != "docx" {
		t.Errorf("FormatFromFilename = %q", got)
	}
	formats := Formats()
	for i := 1; i < len(formats); i++ {
		if formats[i-1] > formats[i] {
			t.Fatalf("Formats not sorted: %v", formats)
		}
	}
}
