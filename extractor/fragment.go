// Package extractor produces page-space text fragments from the document
// model. Native fragments come from traced text runs and keep enough geometry
// to map any byte range of their decoded text back to a rectangle on the
// page; OCR fragments get the same interface with proportional geometry.
package extractor

import (
	"github.com/moduluz/pdf-redactor/contentstream"
	"github.com/moduluz/pdf-redactor/coords"
)

// Source identifies where a fragment's text came from.
type Source int

const (
	SourceNative Source = iota
	SourceOCR
)

func (s Source) String() string {
	if s == SourceOCR {
		return "ocr"
	}
	return "native"
}

// Fragment is one positioned piece of page text. Text is UTF-8; Rect is the
// page-space bounding box of the whole fragment.
type Fragment struct {
	Page       int
	Text       string
	Rect       coords.Rect
	Source     Source
	FontName   string
	FontSize   float64
	Confidence float64 // OCR word confidence 0..1, 0 for native text

	run     *contentstream.TextRun
	codeOff []int // byte offset into Text where code i's decoded text starts
}

// NewOCRFragment builds a fragment for one recognized word.
func NewOCRFragment(page int, text string, rect coords.Rect, confidence float64) Fragment {
	return Fragment{
		Page:       page,
		Text:       text,
		Rect:       rect,
		Source:     SourceOCR,
		Confidence: confidence,
	}
}

// BoxForRange maps the byte range [start, end) of Text to a page-space
// rectangle. Native fragments resolve through the glyph geometry of their
// text run; OCR fragments interpolate across the word box.
func (f *Fragment) BoxForRange(start, end int) coords.Rect {
	if start < 0 {
		start = 0
	}
	if end > len(f.Text) {
		end = len(f.Text)
	}
	if start >= end {
		return coords.Rect{}
	}
	if f.run != nil && len(f.codeOff) > 0 {
		i, j := f.codeRange(start, end)
		return f.run.SubRect(i, j)
	}
	if len(f.Text) == 0 {
		return f.Rect
	}
	w := f.Rect.Width()
	lo := f.Rect.LLX + w*float64(start)/float64(len(f.Text))
	hi := f.Rect.LLX + w*float64(end)/float64(len(f.Text))
	return coords.Rect{LLX: lo, LLY: f.Rect.LLY, URX: hi, URY: f.Rect.URY}
}

// codeRange converts a byte range of Text to the smallest covering code range.
func (f *Fragment) codeRange(start, end int) (int, int) {
	n := len(f.codeOff) - 1
	i := 0
	for i < n && f.codeOff[i+1] <= start {
		i++
	}
	j := i
	for j < n && f.codeOff[j] < end {
		j++
	}
	return i, j
}

// Run exposes the underlying text run for native fragments, nil otherwise.
// The redaction applier uses it to address the exact content stream op.
func (f *Fragment) Run() *contentstream.TextRun { return f.run }
