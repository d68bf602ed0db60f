// Package redact mutates pages so matched content is gone from the document
// itself: glyphs are removed from content streams, image pixels are
// overwritten in the XObject data, and a visual mask is drawn on top.
package redact

import (
	"fmt"
	"image"
	"image/color"
	stddraw "image/draw"
	"strings"

	xdraw "golang.org/x/image/draw"

	"github.com/moduluz/pdf-redactor/contentstream"
	"github.com/moduluz/pdf-redactor/contentstream/editor"
	"github.com/moduluz/pdf-redactor/coords"
	"github.com/moduluz/pdf-redactor/detect"
	"github.com/moduluz/pdf-redactor/document"
	"github.com/moduluz/pdf-redactor/extractor"
	"github.com/moduluz/pdf-redactor/observability"
)

// Options selects the mask style for one job.
type Options struct {
	Color      Color
	UseBlur    bool
	CustomMask string
}

// PageEditError marks a page that could not be edited. It isolates the
// failure: other pages keep processing.
type PageEditError struct {
	Page int
	Err  error
}

func (e *PageEditError) Error() string { return fmt.Sprintf("edit page %d: %v", e.Page, e.Err) }
func (e *PageEditError) Unwrap() error { return e.Err }

// Applier performs the destructive redaction pass on one page at a time.
// A single Applier is safe for concurrent use across distinct pages.
type Applier struct {
	Editor    *editor.Editor
	Extractor *extractor.Extractor
	Log       observability.Logger
}

func New() *Applier {
	return &Applier{
		Editor:    editor.New(),
		Extractor: extractor.New(),
		Log:       observability.NopLogger{},
	}
}

// Apply removes the content under every non-heading match on the page and
// draws the configured mask. Boxes shared by overlapping matches are
// deduplicated by exact coordinate equality, so each unique box is cleared
// and drawn once. Re-applying to already-redacted boxes removes nothing new
// and redraws the same mask.
func (a *Applier) Apply(page *document.Page, matches []detect.Match, opts Options) error {
	var native, raster []coords.Rect
	seen := map[[4]float64]bool{}
	for _, m := range matches {
		if m.Heading || m.Page != page.Index {
			continue
		}
		for _, box := range m.Boxes {
			key := [4]float64{box.LLX, box.LLY, box.URX, box.URY}
			if seen[key] || box.IsEmpty() {
				continue
			}
			seen[key] = true
			if m.Source == extractor.SourceOCR {
				raster = append(raster, box)
			} else {
				native = append(native, box)
			}
		}
	}
	if len(native) == 0 && len(raster) == 0 {
		return nil
	}

	for _, box := range native {
		if err := a.Editor.RemoveRect(page, box); err != nil {
			return &PageEditError{Page: page.Index, Err: err}
		}
	}
	if len(raster) > 0 {
		if err := a.overwriteImages(page, raster, opts); err != nil {
			return &PageEditError{Page: page.Index, Err: err}
		}
	}

	if ops := a.maskOps(page, native, raster, opts); len(ops) > 0 {
		page.Contents = append(page.Contents, document.ContentStream{Operations: ops})
	}
	a.Log.Debug("page redacted",
		observability.Int("page", page.Index),
		observability.Int("boxes", len(native)+len(raster)))
	return nil
}

// overwriteImages replaces the covered pixel region inside each image
// XObject the boxes touch. The overwrite happens in the sample data itself,
// not as an overlay, so re-extracting the image cannot recover the pixels.
func (a *Applier) overwriteImages(page *document.Page, boxes []coords.Rect, opts Options) error {
	placements, err := a.Extractor.Images(page)
	if err != nil {
		return err
	}
	for pi := range placements {
		pl := &placements[pi]
		var regions []image.Rectangle
		for _, box := range boxes {
			r, ok := pixelRegion(pl, box)
			if ok {
				regions = append(regions, r)
			}
		}
		if len(regions) == 0 {
			continue
		}
		img, err := extractor.DecodeImage(pl.XObject)
		if err != nil {
			return fmt.Errorf("decode image %s: %w", pl.XObject.Name, err)
		}
		rgba := image.NewRGBA(img.Bounds())
		stddraw.Draw(rgba, rgba.Bounds(), img, img.Bounds().Min, stddraw.Src)
		for _, region := range regions {
			if opts.UseBlur {
				pixelate(rgba, region)
			} else {
				cr, cg, cb := opts.Color.RGBA8()
				stddraw.Draw(rgba, region, image.NewUniform(color.RGBA{R: cr, G: cg, B: cb, A: 255}), image.Point{}, stddraw.Src)
			}
		}
		if err := extractor.EncodeImage(pl.XObject, rgba); err != nil {
			return fmt.Errorf("encode image %s: %w", pl.XObject.Name, err)
		}
	}
	return nil
}

// pixelRegion maps a page-space box into the pixel grid of one placed image.
func pixelRegion(pl *extractor.ImagePlacement, box coords.Rect) (image.Rectangle, bool) {
	clip := box.Intersect(pl.Rect)
	if clip.IsEmpty() {
		return image.Rectangle{}, false
	}
	inv, err := pl.CTM.Inverse()
	if err != nil {
		return image.Rectangle{}, false
	}
	corners := []coords.Point{
		{X: clip.LLX, Y: clip.LLY},
		{X: clip.URX, Y: clip.LLY},
		{X: clip.LLX, Y: clip.URY},
		{X: clip.URX, Y: clip.URY},
	}
	minU, minV := 1.0, 1.0
	maxU, maxV := 0.0, 0.0
	for _, c := range corners {
		p := inv.Transform(c)
		if p.X < minU {
			minU = p.X
		}
		if p.X > maxU {
			maxU = p.X
		}
		if p.Y < minV {
			minV = p.Y
		}
		if p.Y > maxV {
			maxV = p.Y
		}
	}
	w, h := pl.XObject.Width, pl.XObject.Height
	// image rows run top-down; unit space runs bottom-up
	r := image.Rect(
		int(minU*float64(w)),
		int((1-maxV)*float64(h)),
		int(maxU*float64(w)+0.5),
		int((1-minV)*float64(h)+0.5),
	).Intersect(image.Rect(0, 0, w, h))
	return r, !r.Empty()
}

// pixelate coarsens a region by downscaling and scaling back with nearest
// neighbor sampling.
func pixelate(dst *image.RGBA, region image.Rectangle) {
	const factor = 8
	w := region.Dx() / factor
	if w < 1 {
		w = 1
	}
	h := region.Dy() / factor
	if h < 1 {
		h = 1
	}
	small := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.ApproxBiLinear.Scale(small, small.Bounds(), dst, region, xdraw.Src, nil)
	xdraw.NearestNeighbor.Scale(dst, region, small, small.Bounds(), xdraw.Src, nil)
}

// maskOps builds the drawing operations for every box. Block mode fills the
// box in the configured color; blur mode uses a lightened fill with an
// asterisk overlay on native text and leaves pixelated image regions alone.
// The whole sequence is wrapped in a redaction marked-content section so a
// later removal pass recognizes the mask and leaves it in place.
func (a *Applier) maskOps(page *document.Page, native, raster []coords.Rect, opts Options) []document.Operation {
	var ops []document.Operation
	for _, box := range native {
		ops = append(ops, a.boxOps(page, box, opts, opts.UseBlur)...)
	}
	if !opts.UseBlur {
		for _, box := range raster {
			ops = append(ops, a.boxOps(page, box, opts, false)...)
		}
	}
	if len(ops) == 0 {
		return nil
	}
	wrapped := make([]document.Operation, 0, len(ops)+2)
	wrapped = append(wrapped, op("BMC", document.NameOperand{Value: contentstream.RedactionTag}))
	wrapped = append(wrapped, ops...)
	return append(wrapped, op("EMC"))
}

func (a *Applier) boxOps(page *document.Page, box coords.Rect, opts Options, blur bool) []document.Operation {
	var r, g, b float64
	if blur {
		r, g, b = opts.Color.Lightened()
	} else {
		r, g, b = opts.Color.RGB()
	}
	ops := []document.Operation{
		op("q"),
		op("rg", num(r), num(g), num(b)),
		op("re", num(box.LLX), num(box.LLY), num(box.Width()), num(box.Height())),
		op("f"),
	}

	text := opts.CustomMask
	if text == "" && blur {
		text = asterisksFor(box)
	}
	if text != "" {
		if textOps, ok := a.textOps(page, box, text, opts); ok {
			ops = append(ops, textOps...)
		}
	}
	return append(ops, op("Q"))
}

// textOps centers the mask text in the box using Helvetica metrics, shrinking
// the size until it fits. Boxes too small for legible text stay blank.
func (a *Applier) textOps(page *document.Page, box coords.Rect, text string, opts Options) ([]document.Operation, bool) {
	size := box.Height() * 0.7
	if size > 12 {
		size = 12
	}
	width := helveticaStringWidth(text, size)
	if avail := box.Width() * 0.95; width > avail && width > 0 {
		size *= avail / width
		width = helveticaStringWidth(text, size)
	}
	if size < 4 {
		return nil, false
	}
	tx := box.LLX + (box.Width()-width)/2
	ty := box.LLY + (box.Height()-size*0.72)/2
	tr, tg, tb := opts.Color.textRGB()
	fontName := ensureMaskFont(page)
	return []document.Operation{
		op("rg", num(tr), num(tg), num(tb)),
		op("BT"),
		op("Tf", document.NameOperand{Value: fontName}, num(size)),
		op("Td", num(tx), num(ty)),
		op("Tj", document.StringOperand{Value: []byte(text)}),
		op("ET"),
	}, true
}

// asterisksFor sizes an asterisk string to roughly span the box.
func asterisksFor(box coords.Rect) string {
	size := box.Height() * 0.7
	if size > 12 {
		size = 12
	}
	if size < 4 {
		return ""
	}
	starWidth := float64(helveticaWidth('*')) / 1000 * size
	n := int(box.Width() * 0.9 / starWidth)
	if n < 1 {
		n = 1
	}
	if n > 64 {
		n = 64
	}
	return strings.Repeat("*", n)
}

// ensureMaskFont returns the resource name of a Helvetica font on the page,
// registering one when the page has none. Helvetica needs no embedded font
// program.
func ensureMaskFont(page *document.Page) string {
	if page.Resources == nil {
		page.Resources = &document.Resources{}
	}
	if page.Resources.Fonts == nil {
		page.Resources.Fonts = map[string]*document.Font{}
	}
	for name, f := range page.Resources.Fonts {
		if f.BaseFont == "Helvetica" && !f.TwoByte {
			return name
		}
	}
	name := "FM0"
	for i := 0; ; i++ {
		name = fmt.Sprintf("FM%d", i)
		if _, taken := page.Resources.Fonts[name]; !taken {
			break
		}
	}
	widths := make(map[int]int, len(helveticaWidths))
	for c := 0x20; c <= 0x7e; c++ {
		widths[c] = helveticaWidths[c-0x20]
	}
	page.Resources.Fonts[name] = &document.Font{
		Name:         name,
		Subtype:      "Type1",
		BaseFont:     "Helvetica",
		Widths:       widths,
		DefaultWidth: 556,
	}
	return name
}

func op(operator string, operands ...document.Operand) document.Operation {
	return document.Operation{Operator: operator, Operands: operands}
}

func num(v float64) document.Operand { return document.NumberOperand{Value: v} }
