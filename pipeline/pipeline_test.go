package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/moduluz/pdf-redactor/catalog"
	"github.com/moduluz/pdf-redactor/contentstream"
	"github.com/moduluz/pdf-redactor/coords"
	"github.com/moduluz/pdf-redactor/document"
	"github.com/moduluz/pdf-redactor/extractor"
	"github.com/moduluz/pdf-redactor/ocr"
	"github.com/moduluz/pdf-redactor/parser"
	"github.com/moduluz/pdf-redactor/writer"
)

func buildPDF(t *testing.T, text string) []byte {
	t.Helper()
	ops, err := contentstream.Parse([]byte("BT /F1 10 Tf 72 700 Td (" + text + ") Tj ET"))
	if err != nil {
		t.Fatalf("content parse error = %v", err)
	}
	font := &document.Font{Name: "F1", Subtype: "Type1", BaseFont: "Courier", Widths: map[int]int{}}
	for c := 32; c < 127; c++ {
		font.Widths[c] = 600
	}
	doc := &document.Document{
		Version: "1.7",
		Pages: []*document.Page{{
			MediaBox:  coords.Rect{URX: 612, URY: 792},
			Resources: &document.Resources{Fonts: map[string]*document.Font{"F1": font}},
			Contents:  []document.ContentStream{{Operations: ops}},
		}},
	}
	data, err := writer.New().Write(doc)
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	return data
}

func extractText(t *testing.T, pdf []byte) string {
	t.Helper()
	doc, err := parser.New().Parse(context.Background(), pdf)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	var sb strings.Builder
	e := extractor.New()
	for _, p := range doc.Pages {
		frags, err := e.Fragments(p)
		if err != nil {
			t.Fatalf("Fragments() error = %v", err)
		}
		for _, f := range frags {
			sb.WriteString(f.Text)
			sb.WriteByte(' ')
		}
	}
	return sb.String()
}

func TestRunEndToEnd(t *testing.T) {
	input := buildPDF(t, "Call 555-123-4567 or email a@b.com")
	res, err := New().Run(context.Background(), input, Options{
		Categories: []catalog.Category{catalog.CategoryPhone, catalog.CategoryEmail},
		Language:   "en",
		Verify:     true,
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(res.Matches) != 2 || len(res.Redacted) != 2 {
		t.Fatalf("matches = %d, redacted = %d", len(res.Matches), len(res.Redacted))
	}
	if res.Verification == nil || !res.Verification.Passed {
		t.Fatalf("verification = %+v", res.Verification)
	}
	for _, c := range res.Verification.Categories {
		if !c.Passed {
			t.Fatalf("category %s failed verification", c.Category)
		}
	}
	out := extractText(t, res.Output)
	if strings.Contains(out, "555-123-4567") || strings.Contains(out, "a@b.com") {
		t.Fatalf("redacted output still contains secrets: %q", out)
	}
	if res.Degraded() {
		t.Fatalf("unexpected diagnostics: %+v", res.Diagnostics)
	}
}

func TestRunReportOnly(t *testing.T) {
	input := buildPDF(t, "Call 555-123-4567 or email a@b.com")
	res, err := New().Run(context.Background(), input, Options{
		Categories: []catalog.Category{catalog.CategoryPhone, catalog.CategoryEmail},
		Language:   "en",
		ReportOnly: true,
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Report == nil || len(res.Report.Entries) != 2 {
		t.Fatalf("report = %+v", res.Report)
	}
	out := extractText(t, res.Output)
	if !strings.Contains(out, "555-123-4567") {
		t.Fatalf("report-only run modified the document: %q", out)
	}
}

func TestRunZeroMatchesLeavesTextIntact(t *testing.T) {
	input := buildPDF(t, "nothing sensitive here")
	res, err := New().Run(context.Background(), input, Options{Language: "en"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(res.Matches) != 0 {
		t.Fatalf("matches = %+v", res.Matches)
	}
	if out := extractText(t, res.Output); !strings.Contains(out, "nothing sensitive here") {
		t.Fatalf("text lost: %q", out)
	}
}

func TestRunRejectsMalformedInput(t *testing.T) {
	_, err := New().Run(context.Background(), []byte("this is not a pdf"), Options{})
	var ie *InputError
	if !errors.As(err, &ie) {
		t.Fatalf("error = %v, want InputError", err)
	}
}

func TestRunRejectsBadCustomPattern(t *testing.T) {
	input := buildPDF(t, "text")
	_, err := New().Run(context.Background(), input, Options{CustomPatterns: []string{"("}})
	var ie *InputError
	if !errors.As(err, &ie) {
		t.Fatalf("error = %v, want InputError", err)
	}
}

func TestRunTimeout(t *testing.T) {
	input := buildPDF(t, "Call 555-123-4567")
	p := New()
	p.Timeout = time.Nanosecond
	_, err := p.Run(context.Background(), input, Options{Language: "en"})
	var te *TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("error = %v, want TimeoutError", err)
	}
}

func TestRunExplicitLanguage(t *testing.T) {
	input := buildPDF(t, "appelez le 01 23 45 67 89")
	res, err := New().Run(context.Background(), input, Options{Language: "fr-FR"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Language != "fr" {
		t.Fatalf("language = %q, want fr", res.Language)
	}
	if len(res.Matches) == 0 {
		t.Fatalf("french phone not matched")
	}
}

func TestRunCustomTextAndMask(t *testing.T) {
	input := buildPDF(t, "account holder Jane Doe")
	res, err := New().Run(context.Background(), input, Options{
		Language:   "en",
		CustomText: []string{"Jane Doe"},
		CustomMask: "REMOVED",
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(res.Redacted) != 1 || res.Redacted[0].Category != catalog.CategoryCustom {
		t.Fatalf("redacted = %+v", res.Redacted)
	}
	out := extractText(t, res.Output)
	if strings.Contains(out, "Jane Doe") {
		t.Fatalf("custom text survived: %q", out)
	}
	if !strings.Contains(out, "REMOVED") {
		t.Fatalf("mask text missing from output: %q", out)
	}
}

type stubOCREngine struct{}

func (stubOCREngine) Name() string { return "stub" }

func (stubOCREngine) Recognize(context.Context, ocr.Input) (ocr.Result, error) {
	return ocr.Result{Words: []ocr.TextWord{{
		Text:       "555-123-4567",
		Bounds:     ocr.Region{X: 10, Y: 10, Width: 100, Height: 20},
		Confidence: 0.9,
	}}}, nil
}

func TestOCRPageWithoutLogger(t *testing.T) {
	ops, err := contentstream.Parse([]byte("q 200 0 0 100 50 300 cm /Im1 Do Q"))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	page := &document.Page{
		Index:    1,
		MediaBox: coords.Rect{LLX: 0, LLY: 0, URX: 612, URY: 792},
		Resources: &document.Resources{XObjects: map[string]*document.XObject{
			"Im1": {Name: "Im1", Subtype: "Image", Width: 200, Height: 100, BitsPerComponent: 8, ColorSpace: "DeviceGray", Data: make([]byte, 200*100)},
		}},
		Contents: []document.ContentStream{{Operations: ops}},
	}
	// hand-built pipeline, Log deliberately left nil
	p := &Pipeline{Extractor: extractor.New(), OCR: ocr.NewAdapter(stubOCREngine{}, nil)}
	sem := make(chan struct{}, 1)
	frags := p.ocrPage(context.Background(), page, sem, func(Diagnostic) {})
	if len(frags) != 1 || frags[0].Text != "555-123-4567" {
		t.Fatalf("fragments = %+v", frags)
	}
}
