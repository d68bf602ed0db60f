package contentstream

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/moduluz/pdf-redactor/coords"
	"github.com/moduluz/pdf-redactor/document"
)

func TestParseBasicOperators(t *testing.T) {
	src := []byte("BT /F1 12 Tf 72 700 Td (Hello \\(world\\)) Tj ET\n10 20 100 50 re f")
	ops, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	var names []string
	for _, op := range ops {
		names = append(names, op.Operator)
	}
	want := []string{"BT", "Tf", "Td", "Tj", "ET", "re", "f"}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Fatalf("operators mismatch (-want +got):\n%s", diff)
	}
	str, ok := ops[3].Operands[0].(document.StringOperand)
	if !ok {
		t.Fatalf("Tj operand is %T", ops[3].Operands[0])
	}
	if got := string(str.Value); got != "Hello (world)" {
		t.Fatalf("string = %q", got)
	}
}

func TestParseTJArrayAndHex(t *testing.T) {
	ops, err := Parse([]byte("[(A) -120 (B)] TJ <48656C6C6F> Tj"))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	arr, ok := ops[0].Operands[0].(document.ArrayOperand)
	if !ok || len(arr.Values) != 3 {
		t.Fatalf("TJ operand = %#v", ops[0].Operands)
	}
	hex, ok := ops[1].Operands[0].(document.StringOperand)
	if !ok || string(hex.Value) != "Hello" {
		t.Fatalf("hex string = %#v", ops[1].Operands[0])
	}
}

func TestParseSkipsInlineImages(t *testing.T) {
	ops, err := Parse([]byte("q BI /W 2 /H 2 ID \x00\xff\x00\xff EI Q 1 0 0 1 0 0 cm"))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	var names []string
	for _, op := range ops {
		names = append(names, op.Operator)
	}
	if diff := cmp.Diff([]string{"q", "Q", "cm"}, names); diff != "" {
		t.Fatalf("operators mismatch (-want +got):\n%s", diff)
	}
}

func TestEncodeParseRoundTrip(t *testing.T) {
	src := []byte("BT /F1 12 Tf 72 700.5 Td (a\\\\b) Tj ET")
	ops, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	again, err := Parse(Encode(ops))
	if err != nil {
		t.Fatalf("reparse error = %v", err)
	}
	if diff := cmp.Diff(ops, again); diff != "" {
		t.Fatalf("round trip mismatch (-first +second):\n%s", diff)
	}
}

func testPage(ops []document.Operation) *document.Page {
	font := &document.Font{
		Name:    "F1",
		Subtype: "Type1",
		Widths:  map[int]int{},
	}
	for c := 32; c < 127; c++ {
		font.Widths[c] = 500
	}
	return &document.Page{
		MediaBox:  coords.Rect{LLX: 0, LLY: 0, URX: 612, URY: 792},
		Resources: &document.Resources{Fonts: map[string]*document.Font{"F1": font}},
		Contents:  []document.ContentStream{{Operations: ops}},
	}
}

func mustParse(t *testing.T, src string) []document.Operation {
	t.Helper()
	ops, err := Parse([]byte(src))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	return ops
}

func TestTracePageTextRun(t *testing.T) {
	page := testPage(mustParse(t, "BT /F1 10 Tf 100 500 Td (ABCD) Tj ET"))
	tr, err := TracePage(page)
	if err != nil {
		t.Fatalf("TracePage() error = %v", err)
	}
	if len(tr.TextRuns) != 1 {
		t.Fatalf("got %d text runs, want 1", len(tr.TextRuns))
	}
	run := tr.TextRuns[0]
	// 4 glyphs at 500/1000 * 10pt = 5pt each
	if got := run.Rect; math.Abs(got.LLX-100) > 1e-9 || math.Abs(got.URX-120) > 1e-9 || math.Abs(got.LLY-500) > 1e-9 {
		t.Fatalf("run rect = %+v", got)
	}
	sub := run.SubRect(1, 3)
	if math.Abs(sub.LLX-105) > 1e-9 || math.Abs(sub.URX-115) > 1e-9 {
		t.Fatalf("SubRect(1,3) = %+v", sub)
	}
}

func TestTracePageConsecutiveRunsAdvance(t *testing.T) {
	page := testPage(mustParse(t, "BT /F1 10 Tf 100 500 Td (AB) Tj (CD) Tj ET"))
	tr, err := TracePage(page)
	if err != nil {
		t.Fatalf("TracePage() error = %v", err)
	}
	if len(tr.TextRuns) != 2 {
		t.Fatalf("got %d text runs, want 2", len(tr.TextRuns))
	}
	if got := tr.TextRuns[1].Rect.LLX; math.Abs(got-110) > 1e-9 {
		t.Fatalf("second run starts at %v, want 110", got)
	}
}

func TestTracePageImageDraw(t *testing.T) {
	page := testPage(mustParse(t, "q 200 0 0 100 50 300 cm /Im1 Do Q"))
	page.Resources.XObjects = map[string]*document.XObject{
		"Im1": {Name: "Im1", Subtype: "Image", Width: 400, Height: 200},
	}
	tr, err := TracePage(page)
	if err != nil {
		t.Fatalf("TracePage() error = %v", err)
	}
	if len(tr.Images) != 1 {
		t.Fatalf("got %d image draws, want 1", len(tr.Images))
	}
	img := tr.Images[0]
	want := coords.Rect{LLX: 50, LLY: 300, URX: 250, URY: 400}
	if img.Rect != want {
		t.Fatalf("image rect = %+v, want %+v", img.Rect, want)
	}
}

func TestTracePageTJKerning(t *testing.T) {
	page := testPage(mustParse(t, "BT /F1 10 Tf 0 0 Td [(AB) -500 (CD)] TJ ET"))
	tr, err := TracePage(page)
	if err != nil {
		t.Fatalf("TracePage() error = %v", err)
	}
	run := tr.TextRuns[0]
	if len(run.Codes) != 4 {
		t.Fatalf("codes = %v", run.Codes)
	}
	// kern of -500 glyph units at 10pt adds 5pt before the C
	if got := run.Offsets[2]; math.Abs(got-15) > 1e-9 {
		t.Fatalf("offset after kern = %v, want 15", got)
	}
}

func TestEncodeDictOperandSortsKeys(t *testing.T) {
	ops := []document.Operation{{
		Operator: "BDC",
		Operands: []document.Operand{
			document.NameOperand{Value: "Span"},
			document.DictOperand{Values: map[string]document.Operand{
				"MCID":       document.NumberOperand{Value: 3},
				"ActualText": document.StringOperand{Value: []byte("hi")},
				"Lang":       document.NameOperand{Value: "en"},
			}},
		},
	}}
	want := "/Span <</ActualText (hi) /Lang /en /MCID 3 >> BDC\n"
	for i := 0; i < 8; i++ {
		if got := string(Encode(ops)); got != want {
			t.Fatalf("Encode() = %q, want %q", got, want)
		}
	}
}

func TestTracePageMarkedContentTag(t *testing.T) {
	page := testPage(mustParse(t,
		"10 20 30 40 re f /Redact BMC 95 495 40 20 re f BT /F1 10 Tf 100 500 Td (X) Tj ET EMC 50 60 30 40 re f"))
	tr, err := TracePage(page)
	if err != nil {
		t.Fatalf("TracePage() error = %v", err)
	}
	tags := map[string]int{}
	for _, b := range tr.Boxes {
		tags[b.Tag]++
	}
	if tags[RedactionTag] != 2 || tags[""] != 2 {
		t.Fatalf("tag counts = %v, want 2 tagged and 2 untagged", tags)
	}
}

func TestGraphicsStateRestoreEmpty(t *testing.T) {
	gs := &GraphicsState{CTM: coords.Identity()}
	if err := gs.Restore(); err == nil {
		t.Fatalf("expected error restoring empty stack")
	}
}
