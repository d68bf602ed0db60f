package ocr

import (
	"context"
	"fmt"

	"github.com/moduluz/pdf-redactor/coords"
	"github.com/moduluz/pdf-redactor/extractor"
	"github.com/moduluz/pdf-redactor/observability"
)

// DefaultMinConfidence drops words Tesseract itself is unsure about; below
// this the boxes are usually noise and would redact arbitrary image areas.
const DefaultMinConfidence = 0.40

// UnavailableError reports that recognition failed after the retry and the
// page was scanned with native text only.
type UnavailableError struct {
	Page int
	Err  error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("ocr unavailable on page %d: %v", e.Page, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// Adapter runs an engine over image placements and converts the recognized
// words into page-space fragments.
type Adapter struct {
	Engine        Engine
	MinConfidence float64  // words below this are dropped; 0 means default
	Languages     []string // engine language codes applied to every input
	Log           observability.Logger
}

func NewAdapter(engine Engine, log observability.Logger) *Adapter {
	if log == nil {
		log = observability.NopLogger{}
	}
	return &Adapter{Engine: engine, MinConfidence: DefaultMinConfidence, Log: log}
}

// InputFromPlacement encodes the placed image as a PNG input.
func InputFromPlacement(pl extractor.ImagePlacement, opts ...InputOption) (Input, error) {
	data, err := extractor.ToPNG(pl.XObject)
	if err != nil {
		return Input{}, fmt.Errorf("encode image %s: %w", pl.XObject.Name, err)
	}
	in := Input{
		ID:        fmt.Sprintf("page-%d-%s", pl.Page, pl.XObject.Name),
		Image:     data,
		Format:    ImageFormatPNG,
		PageIndex: pl.Page,
		Width:     pl.XObject.Width,
		Height:    pl.XObject.Height,
	}
	for _, opt := range opts {
		opt(&in)
	}
	return in, nil
}

// Fragments recognizes one placed image. A failed recognition is retried
// once; when the retry also fails the adapter degrades to no fragments and
// returns an UnavailableError for the caller to record.
func (a *Adapter) Fragments(ctx context.Context, pl extractor.ImagePlacement, opts ...InputOption) ([]extractor.Fragment, error) {
	if len(a.Languages) > 0 {
		opts = append([]InputOption{WithLanguages(a.Languages...)}, opts...)
	}
	in, err := InputFromPlacement(pl, opts...)
	if err != nil {
		return nil, &UnavailableError{Page: pl.Page, Err: err}
	}

	res, err := a.Engine.Recognize(ctx, in)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		a.Log.Warn("ocr failed, retrying",
			observability.Int("page", pl.Page),
			observability.String("image", pl.XObject.Name),
			observability.Error("error", err))
		res, err = a.Engine.Recognize(ctx, in)
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		a.Log.Warn("ocr unavailable, continuing with native text only",
			observability.Int("page", pl.Page),
			observability.String("image", pl.XObject.Name),
			observability.Error("error", err))
		return nil, &UnavailableError{Page: pl.Page, Err: err}
	}

	return a.wordFragments(pl, in, res), nil
}

// FragmentsBatch recognizes every placed image of one page. An engine that
// implements BatchEngine gets all inputs in a single call, retried once and
// then degraded like a failed single recognition; other engines are driven
// image by image, where one failed image degrades without discarding the
// fragments of its siblings.
func (a *Adapter) FragmentsBatch(ctx context.Context, placements []extractor.ImagePlacement, opts ...InputOption) ([]extractor.Fragment, error) {
	if len(placements) == 0 {
		return nil, nil
	}
	be, ok := a.Engine.(BatchEngine)
	if !ok || len(placements) == 1 {
		var frags []extractor.Fragment
		var firstErr error
		for _, pl := range placements {
			f, err := a.Fragments(ctx, pl, opts...)
			if err != nil {
				if ctx.Err() != nil {
					return frags, err
				}
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			frags = append(frags, f...)
		}
		return frags, firstErr
	}

	if len(a.Languages) > 0 {
		opts = append([]InputOption{WithLanguages(a.Languages...)}, opts...)
	}
	page := placements[0].Page
	inputs := make([]Input, 0, len(placements))
	for _, pl := range placements {
		in, err := InputFromPlacement(pl, opts...)
		if err != nil {
			return nil, &UnavailableError{Page: page, Err: err}
		}
		inputs = append(inputs, in)
	}

	results, err := be.RecognizeBatch(ctx, inputs)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		a.Log.Warn("ocr batch failed, retrying",
			observability.Int("page", page),
			observability.Int("images", len(inputs)),
			observability.Error("error", err))
		results, err = be.RecognizeBatch(ctx, inputs)
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		a.Log.Warn("ocr unavailable, continuing with native text only",
			observability.Int("page", page),
			observability.Int("images", len(inputs)),
			observability.Error("error", err))
		return nil, &UnavailableError{Page: page, Err: err}
	}

	var frags []extractor.Fragment
	for i, res := range results {
		if i >= len(placements) {
			break
		}
		frags = append(frags, a.wordFragments(placements[i], inputs[i], res)...)
	}
	return frags, nil
}

// wordFragments converts one recognition result into page-space fragments,
// dropping empty and low-confidence words.
func (a *Adapter) wordFragments(pl extractor.ImagePlacement, in Input, res Result) []extractor.Fragment {
	minConf := a.MinConfidence
	if minConf == 0 {
		minConf = DefaultMinConfidence
	}
	var frags []extractor.Fragment
	for _, word := range res.Words {
		if word.Text == "" || word.Confidence < minConf {
			continue
		}
		rect := a.wordRect(pl, in, word)
		if rect.IsEmpty() {
			continue
		}
		frags = append(frags, extractor.NewOCRFragment(pl.Page, word.Text, rect, word.Confidence))
	}
	return frags
}

// wordRect maps a pixel-space word box (top-left origin) into page space.
// The image's unit square maps through the placement CTM, so the pixel box
// is first normalized to [0,1] with the y axis flipped.
func (a *Adapter) wordRect(pl extractor.ImagePlacement, in Input, word TextWord) coords.Rect {
	w := float64(in.Width)
	h := float64(in.Height)
	if w <= 0 || h <= 0 {
		return coords.Rect{}
	}
	unit := coords.Rect{
		LLX: word.Bounds.X / w,
		LLY: 1 - (word.Bounds.Y+word.Bounds.Height)/h,
		URX: (word.Bounds.X + word.Bounds.Width) / w,
		URY: 1 - word.Bounds.Y/h,
	}
	return pl.CTM.TransformRect(unit)
}
