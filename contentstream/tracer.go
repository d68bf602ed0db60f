package contentstream

import (
	"errors"
	"math"

	"github.com/moduluz/pdf-redactor/coords"
	"github.com/moduluz/pdf-redactor/document"
)

// GraphicsState tracks the current transformation matrix across q/Q/cm.
type GraphicsState struct {
	CTM   coords.Matrix
	stack []coords.Matrix
}

func (gs *GraphicsState) Save()    { gs.stack = append(gs.stack, gs.CTM) }
func (gs *GraphicsState) Restore() error {
	n := len(gs.stack)
	if n == 0 {
		return errors.New("graphics state stack empty")
	}
	gs.CTM = gs.stack[n-1]
	gs.stack = gs.stack[:n-1]
	return nil
}

// TextState tracks the PDF text object state.
type TextState struct {
	Font           *document.Font
	FontName       string
	FontSize       float64
	CharSpacing    float64
	WordSpacing    float64
	Leading        float64
	TextMatrix     coords.Matrix
	TextLineMatrix coords.Matrix
}

// RedactionTag is the marked-content tag wrapped around the mask operations
// the redaction applier draws. Tagged operations are never removal targets,
// so re-applying a redaction leaves earlier masks intact.
const RedactionTag = "Redact"

// OpBBox is the page-space bounding box of one content-stream operation.
type OpBBox struct {
	StreamIndex int
	OpIndex     int
	Rect        coords.Rect
	Tag         string // innermost marked-content tag, "" when unmarked
}

// TextRun is one text-showing operation located on the page. Offsets holds
// len(Codes)+1 cumulative text-space x positions so that any code sub-range
// can be mapped back to a page-space rectangle.
type TextRun struct {
	StreamIndex int
	OpIndex     int
	Font        *document.Font
	FontName    string
	FontSize    float64
	Raw         []byte    // undecoded string bytes as shown
	Codes       []int     // character codes, one per glyph
	Offsets     []float64 // cumulative x in text space, len(Codes)+1
	Matrix      coords.Matrix
	Rect        coords.Rect
}

// SubRect returns the page-space rectangle covering codes [i, j).
func (r *TextRun) SubRect(i, j int) coords.Rect {
	if i < 0 {
		i = 0
	}
	if j > len(r.Codes) {
		j = len(r.Codes)
	}
	if i >= j {
		return coords.Rect{}
	}
	return r.Matrix.TransformRect(coords.Rect{
		LLX: r.Offsets[i],
		LLY: 0,
		URX: r.Offsets[j],
		URY: r.FontSize,
	})
}

// ImageDraw records an image XObject painted on the page together with the
// CTM in effect, which maps the image's unit square into page space.
type ImageDraw struct {
	StreamIndex int
	OpIndex     int
	Name        string
	CTM         coords.Matrix
	Rect        coords.Rect
}

// Trace is the result of virtually executing a page's content streams.
type Trace struct {
	Boxes    []OpBBox
	TextRuns []TextRun
	Images   []ImageDraw
}

// TracePage executes the page's operations virtually and records the
// geometry of everything that paints: text runs, rectangles, image draws.
func TracePage(page *document.Page) (*Trace, error) {
	out := &Trace{}
	for si := range page.Contents {
		if err := traceStream(page, si, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func traceStream(page *document.Page, si int, out *Trace) error {
	ops := page.Contents[si].Operations
	gs := &GraphicsState{CTM: coords.Identity()}
	ts := &TextState{TextMatrix: coords.Identity(), TextLineMatrix: coords.Identity()}

	var marks []string
	curTag := func() string {
		if len(marks) == 0 {
			return ""
		}
		return marks[len(marks)-1]
	}

	for i, op := range ops {
		switch op.Operator {
		case "q":
			gs.Save()
		case "Q":
			if err := gs.Restore(); err != nil {
				return err
			}
		case "cm":
			if len(op.Operands) == 6 {
				gs.CTM = operandMatrix(op.Operands).Multiply(gs.CTM)
			}

		case "BMC", "BDC":
			tag := ""
			if len(op.Operands) > 0 {
				if name, ok := op.Operands[0].(document.NameOperand); ok {
					tag = name.Value
				}
			}
			marks = append(marks, tag)
		case "EMC":
			if len(marks) > 0 {
				marks = marks[:len(marks)-1]
			}

		case "BT":
			ts.TextMatrix = coords.Identity()
			ts.TextLineMatrix = coords.Identity()
		case "ET":
			// end text object

		case "Tf":
			if len(op.Operands) == 2 {
				if name, ok := op.Operands[0].(document.NameOperand); ok {
					ts.FontName = name.Value
					if page.Resources != nil {
						ts.Font = page.Resources.Fonts[name.Value]
					}
				}
				ts.FontSize = operandFloat(op.Operands[1])
			}
		case "Tc":
			if len(op.Operands) == 1 {
				ts.CharSpacing = operandFloat(op.Operands[0])
			}
		case "Tw":
			if len(op.Operands) == 1 {
				ts.WordSpacing = operandFloat(op.Operands[0])
			}
		case "TL":
			if len(op.Operands) == 1 {
				ts.Leading = operandFloat(op.Operands[0])
			}
		case "Tm":
			if len(op.Operands) == 6 {
				ts.TextLineMatrix = operandMatrix(op.Operands)
				ts.TextMatrix = ts.TextLineMatrix
			}
		case "Td":
			if len(op.Operands) == 2 {
				translateLine(ts, operandFloat(op.Operands[0]), operandFloat(op.Operands[1]))
			}
		case "TD":
			if len(op.Operands) == 2 {
				ts.Leading = -operandFloat(op.Operands[1])
				translateLine(ts, operandFloat(op.Operands[0]), operandFloat(op.Operands[1]))
			}
		case "T*":
			translateLine(ts, 0, -ts.Leading)

		case "Tj":
			if len(op.Operands) == 1 {
				if str, ok := op.Operands[0].(document.StringOperand); ok {
					recordRun(out, gs, ts, si, i, curTag(), [][]byte{str.Value}, nil)
				}
			}
		case "'":
			translateLine(ts, 0, -ts.Leading)
			if len(op.Operands) == 1 {
				if str, ok := op.Operands[0].(document.StringOperand); ok {
					recordRun(out, gs, ts, si, i, curTag(), [][]byte{str.Value}, nil)
				}
			}
		case "\"":
			if len(op.Operands) == 3 {
				ts.WordSpacing = operandFloat(op.Operands[0])
				ts.CharSpacing = operandFloat(op.Operands[1])
				translateLine(ts, 0, -ts.Leading)
				if str, ok := op.Operands[2].(document.StringOperand); ok {
					recordRun(out, gs, ts, si, i, curTag(), [][]byte{str.Value}, nil)
				}
			}
		case "TJ":
			if len(op.Operands) == 1 {
				if arr, ok := op.Operands[0].(document.ArrayOperand); ok {
					var chunks [][]byte
					var kerns []float64
					for _, item := range arr.Values {
						switch v := item.(type) {
						case document.StringOperand:
							chunks = append(chunks, v.Value)
							kerns = append(kerns, 0)
						case document.NumberOperand:
							if n := len(kerns); n > 0 {
								kerns[n-1] -= v.Value
							} else {
								chunks = append(chunks, nil)
								kerns = append(kerns, -v.Value)
							}
						}
					}
					recordRun(out, gs, ts, si, i, curTag(), chunks, kerns)
				}
			}

		case "re":
			if len(op.Operands) == 4 {
				x := operandFloat(op.Operands[0])
				y := operandFloat(op.Operands[1])
				w := operandFloat(op.Operands[2])
				h := operandFloat(op.Operands[3])
				rect := gs.CTM.TransformRect(coords.Rect{LLX: x, LLY: y, URX: x + w, URY: y + h})
				out.Boxes = append(out.Boxes, OpBBox{StreamIndex: si, OpIndex: i, Rect: rect, Tag: curTag()})
			}

		case "Do":
			if len(op.Operands) == 1 {
				if name, ok := op.Operands[0].(document.NameOperand); ok {
					rect := gs.CTM.TransformRect(coords.Rect{LLX: 0, LLY: 0, URX: 1, URY: 1})
					out.Boxes = append(out.Boxes, OpBBox{StreamIndex: si, OpIndex: i, Rect: rect, Tag: curTag()})
					if isImage(page.Resources, name.Value) {
						out.Images = append(out.Images, ImageDraw{
							StreamIndex: si, OpIndex: i,
							Name: name.Value, CTM: gs.CTM, Rect: rect,
						})
					}
				}
			}
		}
	}
	return nil
}

func isImage(res *document.Resources, name string) bool {
	if res == nil {
		return false
	}
	xo := res.XObjects[name]
	return xo != nil && xo.Subtype == "Image"
}

func translateLine(ts *TextState, tx, ty float64) {
	ts.TextLineMatrix = coords.Translate(tx, ty).Multiply(ts.TextLineMatrix)
	ts.TextMatrix = ts.TextLineMatrix
}

// recordRun locates one text-showing op. chunks/kerns come from TJ arrays;
// kerns[k] is the text-space glyph-unit adjustment applied after chunk k.
func recordRun(out *Trace, gs *GraphicsState, ts *TextState, si, opIndex int, tag string, chunks [][]byte, kerns []float64) {
	m := ts.TextMatrix.Multiply(gs.CTM)

	var raw []byte
	var codes []int
	offsets := []float64{0}
	x := 0.0

	for k, chunk := range chunks {
		for _, code := range splitCodes(ts.Font, chunk) {
			adv := float64(ts.Font.WidthOf(code))/1000.0*ts.FontSize + ts.CharSpacing
			if code == 32 && (ts.Font == nil || !ts.Font.TwoByte) {
				adv += ts.WordSpacing
			}
			x += adv
			codes = append(codes, code)
			offsets = append(offsets, x)
		}
		raw = append(raw, chunk...)
		if kerns != nil && kerns[k] != 0 {
			x += kerns[k] / 1000.0 * ts.FontSize
			offsets[len(offsets)-1] = x
		}
	}
	if len(codes) == 0 {
		return
	}

	run := TextRun{
		StreamIndex: si,
		OpIndex:     opIndex,
		Font:        ts.Font,
		FontName:    ts.FontName,
		FontSize:    ts.FontSize,
		Raw:         raw,
		Codes:       codes,
		Offsets:     offsets,
		Matrix:      m,
	}
	run.Rect = m.TransformRect(coords.Rect{LLX: 0, LLY: 0, URX: x, URY: math.Max(ts.FontSize, 1e-6)})
	out.TextRuns = append(out.TextRuns, run)
	out.Boxes = append(out.Boxes, OpBBox{StreamIndex: si, OpIndex: opIndex, Rect: run.Rect, Tag: tag})

	// advance the text matrix so consecutive show ops line up
	ts.TextMatrix = coords.Translate(x, 0).Multiply(ts.TextMatrix)
}

// splitCodes slices string bytes into character codes (2-byte for CID fonts).
func splitCodes(font *document.Font, data []byte) []int {
	if font != nil && font.TwoByte {
		codes := make([]int, 0, len(data)/2)
		for i := 0; i+1 < len(data); i += 2 {
			codes = append(codes, int(data[i])<<8|int(data[i+1]))
		}
		return codes
	}
	codes := make([]int, len(data))
	for i, b := range data {
		codes[i] = int(b)
	}
	return codes
}

func operandMatrix(ops []document.Operand) coords.Matrix {
	return coords.Matrix{
		operandFloat(ops[0]), operandFloat(ops[1]),
		operandFloat(ops[2]), operandFloat(ops[3]),
		operandFloat(ops[4]), operandFloat(ops[5]),
	}
}

func operandFloat(op document.Operand) float64 {
	if n, ok := op.(document.NumberOperand); ok {
		return n.Value
	}
	return 0
}
