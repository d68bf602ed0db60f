package redact

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/moduluz/pdf-redactor/catalog"
	"github.com/moduluz/pdf-redactor/contentstream"
	"github.com/moduluz/pdf-redactor/coords"
	"github.com/moduluz/pdf-redactor/detect"
	"github.com/moduluz/pdf-redactor/document"
	"github.com/moduluz/pdf-redactor/extractor"
)

func testPage(t *testing.T, src string) *document.Page {
	t.Helper()
	ops, err := contentstream.Parse([]byte(src))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	font := &document.Font{Name: "F1", Subtype: "Type1", Widths: map[int]int{}}
	for c := 32; c < 127; c++ {
		font.Widths[c] = 500
	}
	return &document.Page{
		Index:     1,
		MediaBox:  coords.Rect{LLX: 0, LLY: 0, URX: 612, URY: 792},
		Resources: &document.Resources{Fonts: map[string]*document.Font{"F1": font}},
		Contents:  []document.ContentStream{{Operations: ops}},
	}
}

func pageText(t *testing.T, page *document.Page) string {
	t.Helper()
	trace, err := contentstream.TracePage(page)
	if err != nil {
		t.Fatalf("TracePage() error = %v", err)
	}
	var sb strings.Builder
	for _, run := range trace.TextRuns {
		sb.Write(run.Raw)
	}
	return sb.String()
}

func nativeMatch(box coords.Rect) detect.Match {
	return detect.Match{
		Category: catalog.CategoryCustom,
		Text:     "secret",
		Page:     1,
		Boxes:    []coords.Rect{box},
		Source:   extractor.SourceNative,
	}
}

func maskStream(t *testing.T, page *document.Page, wantStreams int) []document.Operation {
	t.Helper()
	if len(page.Contents) != wantStreams {
		t.Fatalf("page has %d streams, want %d", len(page.Contents), wantStreams)
	}
	return page.Contents[len(page.Contents)-1].Operations
}

func opsNamed(ops []document.Operation, operator string) []document.Operation {
	var out []document.Operation
	for _, o := range ops {
		if o.Operator == operator {
			out = append(out, o)
		}
	}
	return out
}

func TestApplyRemovesTextAndDrawsMask(t *testing.T) {
	page := testPage(t, "BT /F1 10 Tf 100 500 Td (secret) Tj ET")
	box := coords.Rect{LLX: 95, LLY: 495, URX: 135, URY: 515}
	if err := New().Apply(page, []detect.Match{nativeMatch(box)}, Options{Color: Black}); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if got := pageText(t, page); got != "" {
		t.Fatalf("text after redaction = %q, want empty", got)
	}
	ops := maskStream(t, page, 2)
	fills := opsNamed(ops, "re")
	if len(fills) != 1 {
		t.Fatalf("re ops = %d, want 1", len(fills))
	}
	if x := fills[0].Operands[0].(document.NumberOperand).Value; x != 95 {
		t.Fatalf("mask x = %v, want 95", x)
	}
	rg := opsNamed(ops, "rg")
	if len(rg) != 1 || rg[0].Operands[0].(document.NumberOperand).Value != 0 {
		t.Fatalf("fill color ops = %+v", rg)
	}
}

func TestApplyDedupsIdenticalBoxes(t *testing.T) {
	page := testPage(t, "BT /F1 10 Tf 100 500 Td (secret) Tj ET")
	box := coords.Rect{LLX: 95, LLY: 495, URX: 135, URY: 515}
	phone := nativeMatch(box)
	phone.Category = catalog.CategoryPhone
	if err := New().Apply(page, []detect.Match{nativeMatch(box), phone}, Options{Color: Black}); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	ops := maskStream(t, page, 2)
	if fills := opsNamed(ops, "re"); len(fills) != 1 {
		t.Fatalf("re ops = %d, want 1 after dedup", len(fills))
	}
}

func TestApplySkipsHeadingMatches(t *testing.T) {
	page := testPage(t, "BT /F1 10 Tf 100 500 Td (TITLE) Tj ET")
	m := nativeMatch(coords.Rect{LLX: 95, LLY: 495, URX: 135, URY: 515})
	m.Heading = true
	if err := New().Apply(page, []detect.Match{m}, Options{Color: Black}); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if got := pageText(t, page); got != "TITLE" {
		t.Fatalf("heading text modified: %q", got)
	}
	if len(page.Contents) != 1 {
		t.Fatalf("mask drawn for heading match")
	}
}

func TestApplyCustomMaskText(t *testing.T) {
	page := testPage(t, "BT /F1 10 Tf 100 500 Td (secret0123456789) Tj ET")
	box := coords.Rect{LLX: 95, LLY: 495, URX: 200, URY: 515}
	err := New().Apply(page, []detect.Match{nativeMatch(box)}, Options{Color: Black, CustomMask: "REDACTED"})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	ops := maskStream(t, page, 2)
	shows := opsNamed(ops, "Tj")
	if len(shows) != 1 {
		t.Fatalf("Tj ops = %d, want 1", len(shows))
	}
	if got := string(shows[0].Operands[0].(document.StringOperand).Value); got != "REDACTED" {
		t.Fatalf("mask text = %q", got)
	}
	found := false
	for _, f := range page.Resources.Fonts {
		if f.BaseFont == "Helvetica" {
			found = true
		}
	}
	if !found {
		t.Fatalf("mask font not registered")
	}
}

func TestApplyBlurDrawsAsterisks(t *testing.T) {
	page := testPage(t, "BT /F1 10 Tf 100 500 Td (secret) Tj ET")
	box := coords.Rect{LLX: 95, LLY: 495, URX: 135, URY: 515}
	err := New().Apply(page, []detect.Match{nativeMatch(box)}, Options{Color: Black, UseBlur: true})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	ops := maskStream(t, page, 2)
	shows := opsNamed(ops, "Tj")
	if len(shows) != 1 {
		t.Fatalf("Tj ops = %d, want 1", len(shows))
	}
	text := string(shows[0].Operands[0].(document.StringOperand).Value)
	if text == "" || strings.Trim(text, "*") != "" {
		t.Fatalf("blur overlay = %q, want asterisks", text)
	}
	rg := opsNamed(ops, "rg")
	if rg[0].Operands[0].(document.NumberOperand).Value == 0 {
		t.Fatalf("blur fill not lightened: %+v", rg[0])
	}
}

func TestApplyOverwritesImagePixels(t *testing.T) {
	page := testPage(t, "q 200 0 0 100 50 300 cm /Im1 Do Q")
	data := make([]byte, 200*100)
	for i := range data {
		data[i] = 255
	}
	xo := &document.XObject{
		Name: "Im1", Subtype: "Image",
		Width: 200, Height: 100, BitsPerComponent: 8, ColorSpace: "DeviceGray",
		Data: data,
	}
	page.Resources.XObjects = map[string]*document.XObject{"Im1": xo}

	m := detect.Match{
		Category: catalog.CategorySSN,
		Text:     "123-45-6789",
		Page:     1,
		Boxes:    []coords.Rect{{LLX: 70, LLY: 370, URX: 110, URY: 390}},
		Source:   extractor.SourceOCR,
	}
	if err := New().Apply(page, []detect.Match{m}, Options{Color: Black}); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if !xo.Dirty {
		t.Fatalf("xobject not marked dirty")
	}
	// box maps to pixels x 20..60, y 10..30 (top-down rows)
	if got := xo.Data[20*200+30]; got != 0 {
		t.Fatalf("pixel inside region = %d, want 0", got)
	}
	if got := xo.Data[50*200+100]; got != 255 {
		t.Fatalf("pixel outside region = %d, want 255", got)
	}
}

func TestApplyIdempotentMask(t *testing.T) {
	page := testPage(t, "BT /F1 10 Tf 100 500 Td (secret) Tj ET")
	box := coords.Rect{LLX: 95, LLY: 495, URX: 135, URY: 515}
	a := New()
	if err := a.Apply(page, []detect.Match{nativeMatch(box)}, Options{Color: Red}); err != nil {
		t.Fatalf("first Apply() error = %v", err)
	}
	first := page.Contents[1]
	if err := a.Apply(page, []detect.Match{nativeMatch(box)}, Options{Color: Red}); err != nil {
		t.Fatalf("second Apply() error = %v", err)
	}
	if len(page.Contents) != 3 {
		t.Fatalf("streams = %d, want 3", len(page.Contents))
	}
	// the first mask must survive the second pass untouched
	if fills := opsNamed(page.Contents[1].Operations, "re"); len(fills) != 1 {
		t.Fatalf("first mask fill ops = %d, want 1", len(fills))
	}
	if paints := opsNamed(page.Contents[1].Operations, "f"); len(paints) != 1 {
		t.Fatalf("first mask paint ops = %d, want 1", len(paints))
	}
	if diff := cmp.Diff(first, page.Contents[2]); diff != "" {
		t.Fatalf("re-applied mask differs (-first +second):\n%s", diff)
	}
	if got := pageText(t, page); got != "" {
		t.Fatalf("text reappeared: %q", got)
	}
}

func TestParseColor(t *testing.T) {
	if c, err := ParseColor(""); err != nil || c != Black {
		t.Fatalf("ParseColor(\"\") = %v, %v", c, err)
	}
	if _, err := ParseColor("magenta"); err == nil {
		t.Fatalf("unknown color accepted")
	}
	r, g, b := White.RGB()
	if r != 1 || g != 1 || b != 1 {
		t.Fatalf("White.RGB() = %v %v %v", r, g, b)
	}
}
