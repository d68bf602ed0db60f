package extractor

import (
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/moduluz/pdf-redactor/contentstream"
	"github.com/moduluz/pdf-redactor/coords"
	"github.com/moduluz/pdf-redactor/document"
)

func asciiFont() *document.Font {
	font := &document.Font{Name: "F1", Subtype: "Type1", Widths: map[int]int{}}
	for c := 32; c < 127; c++ {
		font.Widths[c] = 500
	}
	return font
}

func pageWith(t *testing.T, src string, font *document.Font) *document.Page {
	t.Helper()
	ops, err := contentstream.Parse([]byte(src))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	return &document.Page{
		MediaBox:  coords.Rect{URX: 612, URY: 792},
		Resources: &document.Resources{Fonts: map[string]*document.Font{"F1": font}},
		Contents:  []document.ContentStream{{Operations: ops}},
	}
}

func TestFragmentsNativeText(t *testing.T) {
	page := pageWith(t, "BT /F1 10 Tf 100 500 Td (Card 4111) Tj ET", asciiFont())
	frags, err := New().Fragments(page)
	if err != nil {
		t.Fatalf("Fragments() error = %v", err)
	}
	if len(frags) != 1 {
		t.Fatalf("got %d fragments", len(frags))
	}
	f := frags[0]
	if f.Text != "Card 4111" {
		t.Fatalf("text = %q", f.Text)
	}
	if f.Source != SourceNative {
		t.Fatalf("source = %v", f.Source)
	}
	// "4111" is bytes 5..9: glyphs 5..9 at 5pt each starting at x=100
	box := f.BoxForRange(5, 9)
	if math.Abs(box.LLX-125) > 1e-9 || math.Abs(box.URX-145) > 1e-9 {
		t.Fatalf("box = %+v", box)
	}
}

func TestFragmentsSkipWhitespaceRuns(t *testing.T) {
	page := pageWith(t, "BT /F1 10 Tf 100 500 Td (   ) Tj (x) Tj ET", asciiFont())
	frags, err := New().Fragments(page)
	if err != nil {
		t.Fatalf("Fragments() error = %v", err)
	}
	if len(frags) != 1 || frags[0].Text != "x" {
		t.Fatalf("fragments = %+v", frags)
	}
}

func TestFragmentsTwoByteCMap(t *testing.T) {
	cmap := []byte(`
/CIDInit /ProcSet findresource begin
begincmap
1 begincodespacerange
<0000> <FFFF>
endcodespacerange
2 beginbfchar
<0041> <0048>
<0042> <0069>
endbfchar
endcmap
`)
	font := &document.Font{
		Name: "F1", Subtype: "Type0", TwoByte: true,
		DefaultWidth: 500, Widths: map[int]int{},
		ToUnicodeCMap: cmap,
	}
	// two 2-byte codes 0x0041 0x0042, mapped to "H" and "i"
	page := pageWith(t, "BT /F1 10 Tf 100 500 Td <00410042> Tj ET", font)
	frags, err := New().Fragments(page)
	if err != nil {
		t.Fatalf("Fragments() error = %v", err)
	}
	if len(frags) != 1 || frags[0].Text != "Hi" {
		t.Fatalf("fragments = %+v", frags)
	}
	// the "i" is byte 1..2 -> second code -> second 5pt cell
	box := frags[0].BoxForRange(1, 2)
	if math.Abs(box.LLX-105) > 1e-9 {
		t.Fatalf("box = %+v", box)
	}
}

func TestParseToUnicodeRanges(t *testing.T) {
	m := ParseToUnicode([]byte(`
2 beginbfrange
<20> <22> <0041>
<30> <32> [<00580059> <005A> <0030>]
endbfrange
`))
	cases := []struct {
		code int
		want string
	}{
		{0x20, "A"}, {0x21, "B"}, {0x22, "C"},
		{0x30, "XY"}, {0x31, "Z"}, {0x32, "0"},
	}
	for _, tc := range cases {
		got, ok := m.Decode(tc.code, 1)
		if !ok || got != tc.want {
			t.Fatalf("Decode(%#x) = %q, %v; want %q", tc.code, got, ok, tc.want)
		}
	}
	if _, ok := m.Decode(0x40, 1); ok {
		t.Fatalf("unexpected mapping for 0x40")
	}
}

func TestOCRFragmentProportionalBox(t *testing.T) {
	f := NewOCRFragment(0, "123456", coords.Rect{LLX: 10, LLY: 20, URX: 70, URY: 30}, 88)
	box := f.BoxForRange(2, 4) // middle third
	if math.Abs(box.LLX-30) > 1e-9 || math.Abs(box.URX-50) > 1e-9 {
		t.Fatalf("box = %+v", box)
	}
	if box.LLY != 20 || box.URY != 30 {
		t.Fatalf("box = %+v", box)
	}
}

func TestImagesPlacement(t *testing.T) {
	ops, err := contentstream.Parse([]byte("q 200 0 0 100 50 300 cm /Im1 Do Q"))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	xo := &document.XObject{Name: "Im1", Subtype: "Image", Width: 4, Height: 2}
	page := &document.Page{
		MediaBox:  coords.Rect{URX: 612, URY: 792},
		Resources: &document.Resources{XObjects: map[string]*document.XObject{"Im1": xo}},
		Contents:  []document.ContentStream{{Operations: ops}},
	}
	placements, err := New().Images(page)
	if err != nil {
		t.Fatalf("Images() error = %v", err)
	}
	if len(placements) != 1 || placements[0].XObject != xo {
		t.Fatalf("placements = %+v", placements)
	}
	want := coords.Rect{LLX: 50, LLY: 300, URX: 250, URY: 400}
	if placements[0].Rect != want {
		t.Fatalf("rect = %+v", placements[0].Rect)
	}
}

func TestImageRoundTripRGB(t *testing.T) {
	xo := &document.XObject{
		Name: "Im1", Subtype: "Image", Width: 2, Height: 2,
		BitsPerComponent: 8, ColorSpace: "DeviceRGB",
		Data: []byte{
			255, 0, 0, 0, 255, 0,
			0, 0, 255, 255, 255, 255,
		},
	}
	img, err := DecodeImage(xo)
	if err != nil {
		t.Fatalf("DecodeImage() error = %v", err)
	}
	if got := img.At(0, 0); !sameColor(got, color.RGBA{R: 255, A: 255}) {
		t.Fatalf("pixel (0,0) = %v", got)
	}

	over := image.NewRGBA(image.Rect(0, 0, 2, 2))
	for y := 0; y < 2; y++ {
		for x := 0; x < 2; x++ {
			over.Set(x, y, color.RGBA{R: 10, G: 20, B: 30, A: 255})
		}
	}
	if err := EncodeImage(xo, over); err != nil {
		t.Fatalf("EncodeImage() error = %v", err)
	}
	if !xo.Dirty {
		t.Fatalf("Dirty not set")
	}
	if xo.Data[0] != 10 || xo.Data[1] != 20 || xo.Data[2] != 30 {
		t.Fatalf("samples = %v", xo.Data[:3])
	}
}

func sameColor(a, b color.Color) bool {
	ar, ag, ab, aa := a.RGBA()
	br, bg, bb, ba := b.RGBA()
	return ar == br && ag == bg && ab == bb && aa == ba
}
