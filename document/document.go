// Package document holds the in-memory model of a parsed PDF that the
// redaction pipeline operates on. The model is deliberately narrow: pages,
// their content streams as operator sequences, and the resources (fonts,
// image XObjects) those operators reference.
package document

import "github.com/moduluz/pdf-redactor/coords"

// Document is the semantic representation of a PDF under redaction. It is
// exclusively owned by one job for the job's duration.
type Document struct {
	Pages    []*Page
	Info     Info
	Version  string
	Lang     string
	Metadata []byte // raw XMP, carried through untouched
}

// Info models the /Info dictionary values we preserve on write.
type Info struct {
	Title    string
	Author   string
	Subject  string
	Creator  string
	Producer string
}

// Page models a single PDF page.
type Page struct {
	Index     int
	MediaBox  coords.Rect
	CropBox   coords.Rect
	Rotate    int // degrees: 0/90/180/270
	Resources *Resources
	Contents  []ContentStream
}

// Bounds returns the effective page rectangle (CropBox if set, else MediaBox).
func (p *Page) Bounds() coords.Rect {
	if !p.CropBox.IsEmpty() {
		return p.CropBox
	}
	return p.MediaBox
}

// ContentStream is a sequence of operations on a page.
type ContentStream struct {
	Operations []Operation
}

// Operation represents a PDF operator and its operands.
type Operation struct {
	Operator string
	Operands []Operand
}

// Operand is a type-safe operand value.
type Operand interface {
	operand()
	Type() string
}

type NumberOperand struct{ Value float64 }

func (NumberOperand) operand()     {}
func (NumberOperand) Type() string { return "number" }

type NameOperand struct{ Value string }

func (NameOperand) operand()     {}
func (NameOperand) Type() string { return "name" }

type StringOperand struct{ Value []byte }

func (StringOperand) operand()     {}
func (StringOperand) Type() string { return "string" }

type ArrayOperand struct{ Values []Operand }

func (ArrayOperand) operand()     {}
func (ArrayOperand) Type() string { return "array" }

type DictOperand struct{ Values map[string]Operand }

func (DictOperand) operand()     {}
func (DictOperand) Type() string { return "dict" }

type BoolOperand struct{ Value bool }

func (BoolOperand) operand()     {}
func (BoolOperand) Type() string { return "bool" }

// Resources holds the per-page resources the pipeline needs.
type Resources struct {
	Fonts    map[string]*Font
	XObjects map[string]*XObject
}

// Font carries the metrics and text mapping needed to locate and decode
// shown text. Widths are in 1/1000 em, keyed by character code.
type Font struct {
	Name          string
	Subtype       string // Type1, TrueType, Type0
	BaseFont      string
	Widths        map[int]int
	DefaultWidth  int
	ToUnicodeCMap []byte // raw ToUnicode stream, parsed lazily by extractor
	TwoByte       bool   // Type0 with 2-byte codes
}

// WidthOf returns the glyph-space width of a character code.
func (f *Font) WidthOf(code int) int {
	if f == nil {
		return 500
	}
	if w, ok := f.Widths[code]; ok {
		return w
	}
	if f.DefaultWidth > 0 {
		return f.DefaultWidth
	}
	return 500
}

// XObject describes a referenced object; the pipeline only edits images.
type XObject struct {
	Name             string
	Subtype          string // Image or Form
	Width            int
	Height           int
	BitsPerComponent int
	ColorSpace       string
	Filters          []string
	Data             []byte // decoded samples (or raw DCT bytes, per Filters)
	Dirty            bool   // set when pixel data has been overwritten
}
