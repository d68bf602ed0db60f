package extractor

import (
	"fmt"
	"strings"
	"sync"

	"github.com/moduluz/pdf-redactor/contentstream"
	"github.com/moduluz/pdf-redactor/coords"
	"github.com/moduluz/pdf-redactor/document"
)

// Extractor turns pages into fragments and image placements. It caches parsed
// ToUnicode CMaps per font, so one Extractor may serve concurrent pages.
type Extractor struct {
	mu    sync.Mutex
	cmaps map[*document.Font]*ToUnicode
}

func New() *Extractor {
	return &Extractor{cmaps: map[*document.Font]*ToUnicode{}}
}

// Fragments extracts the native text of one page. Runs that decode to
// whitespace only are dropped.
func (e *Extractor) Fragments(page *document.Page) ([]Fragment, error) {
	trace, err := contentstream.TracePage(page)
	if err != nil {
		return nil, fmt.Errorf("trace page %d: %w", page.Index, err)
	}
	frags := make([]Fragment, 0, len(trace.TextRuns))
	for i := range trace.TextRuns {
		run := &trace.TextRuns[i]
		text, codeOff := e.decodeRun(run)
		if strings.TrimSpace(text) == "" {
			continue
		}
		frags = append(frags, Fragment{
			Page:     page.Index,
			Text:     text,
			Rect:     run.Rect,
			Source:   SourceNative,
			FontName: run.FontName,
			FontSize: run.FontSize,
			run:      run,
			codeOff:  codeOff,
		})
	}
	return frags, nil
}

// decodeRun maps each character code to Unicode text and records where each
// code's contribution starts in the output string.
func (e *Extractor) decodeRun(run *contentstream.TextRun) (string, []int) {
	cmap := e.cmapFor(run.Font)
	size := 1
	if run.Font != nil && run.Font.TwoByte {
		size = 2
	}

	var sb strings.Builder
	codeOff := make([]int, 0, len(run.Codes)+1)
	for _, code := range run.Codes {
		codeOff = append(codeOff, sb.Len())
		if s, ok := cmap.Decode(code, size); ok {
			sb.WriteString(s)
			continue
		}
		// no mapping: single-byte codes are close enough to Latin-1, and
		// two-byte codes are most often Identity-mapped Unicode
		sb.WriteRune(rune(code))
	}
	codeOff = append(codeOff, sb.Len())
	return sb.String(), codeOff
}

func (e *Extractor) cmapFor(font *document.Font) *ToUnicode {
	if font == nil || len(font.ToUnicodeCMap) == 0 {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if m, ok := e.cmaps[font]; ok {
		return m
	}
	m := ParseToUnicode(font.ToUnicodeCMap)
	e.cmaps[font] = m
	return m
}

// ImagePlacement is one image XObject painted on a page, with the transform
// that maps the image's unit square into page space.
type ImagePlacement struct {
	Page    int
	XObject *document.XObject
	CTM     coords.Matrix
	Rect    coords.Rect
}

// Images lists the image placements of one page.
func (e *Extractor) Images(page *document.Page) ([]ImagePlacement, error) {
	trace, err := contentstream.TracePage(page)
	if err != nil {
		return nil, fmt.Errorf("trace page %d: %w", page.Index, err)
	}
	var out []ImagePlacement
	for _, im := range trace.Images {
		xo := page.Resources.XObjects[im.Name]
		if xo == nil {
			continue
		}
		out = append(out, ImagePlacement{
			Page:    page.Index,
			XObject: xo,
			CTM:     im.CTM,
			Rect:    im.Rect,
		})
	}
	return out, nil
}
