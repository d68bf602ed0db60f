package ocr

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/moduluz/pdf-redactor/coords"
	"github.com/moduluz/pdf-redactor/document"
	"github.com/moduluz/pdf-redactor/extractor"
)

type stubEngine struct {
	results []Result
	errs    []error
	calls   int
	lastIn  Input
}

func (s *stubEngine) Name() string { return "stub" }

func (s *stubEngine) Recognize(_ context.Context, in Input) (Result, error) {
	i := s.calls
	s.calls++
	s.lastIn = in
	if i < len(s.errs) && s.errs[i] != nil {
		return Result{}, s.errs[i]
	}
	if i < len(s.results) {
		return s.results[i], nil
	}
	return Result{}, nil
}

func testPlacement() extractor.ImagePlacement {
	// 200x100 px image placed at (50, 300) scaled to 200x100 points
	return extractor.ImagePlacement{
		Page: 1,
		XObject: &document.XObject{
			Name: "Im1", Subtype: "Image",
			Width: 200, Height: 100, BitsPerComponent: 8, ColorSpace: "DeviceGray",
			Data: make([]byte, 200*100),
		},
		CTM:  coords.Matrix{200, 0, 0, 100, 50, 300},
		Rect: coords.Rect{LLX: 50, LLY: 300, URX: 250, URY: 400},
	}
}

func TestAdapterMapsWordsToPageSpace(t *testing.T) {
	eng := &stubEngine{results: []Result{{
		Words: []TextWord{
			// pixel box x=20 y=10 w=40 h=20, top-left origin
			{Text: "4111111111111111", Bounds: Region{X: 20, Y: 10, Width: 40, Height: 20}, Confidence: 0.92},
		},
	}}}
	a := NewAdapter(eng, nil)
	frags, err := a.Fragments(context.Background(), testPlacement())
	if err != nil {
		t.Fatalf("Fragments() error = %v", err)
	}
	if len(frags) != 1 {
		t.Fatalf("got %d fragments", len(frags))
	}
	f := frags[0]
	if f.Source != extractor.SourceOCR || f.Page != 1 {
		t.Fatalf("fragment = %+v", f)
	}
	// u: 20/200..60/200 -> x 0.1..0.3 -> 70..110 page units
	// v: 1-(30/100)..1-(10/100) -> y 0.7..0.9 -> 370..390 page units
	want := coords.Rect{LLX: 70, LLY: 370, URX: 110, URY: 390}
	if math.Abs(f.Rect.LLX-want.LLX) > 1e-9 || math.Abs(f.Rect.URY-want.URY) > 1e-9 ||
		math.Abs(f.Rect.URX-want.URX) > 1e-9 || math.Abs(f.Rect.LLY-want.LLY) > 1e-9 {
		t.Fatalf("rect = %+v, want %+v", f.Rect, want)
	}
}

func TestAdapterDropsLowConfidenceWords(t *testing.T) {
	eng := &stubEngine{results: []Result{{
		Words: []TextWord{
			{Text: "noise", Bounds: Region{X: 0, Y: 0, Width: 10, Height: 10}, Confidence: 0.10},
			{Text: "clear", Bounds: Region{X: 0, Y: 20, Width: 10, Height: 10}, Confidence: 0.95},
		},
	}}}
	a := NewAdapter(eng, nil)
	frags, err := a.Fragments(context.Background(), testPlacement())
	if err != nil {
		t.Fatalf("Fragments() error = %v", err)
	}
	if len(frags) != 1 || frags[0].Text != "clear" {
		t.Fatalf("fragments = %+v", frags)
	}
}

func TestAdapterRetriesOnce(t *testing.T) {
	eng := &stubEngine{
		errs: []error{errors.New("transient")},
		results: []Result{{}, {
			Words: []TextWord{{Text: "ok", Bounds: Region{X: 0, Y: 0, Width: 10, Height: 10}, Confidence: 0.9}},
		}},
	}
	a := NewAdapter(eng, nil)
	frags, err := a.Fragments(context.Background(), testPlacement())
	if err != nil {
		t.Fatalf("Fragments() error = %v", err)
	}
	if eng.calls != 2 {
		t.Fatalf("engine called %d times, want 2", eng.calls)
	}
	if len(frags) != 1 {
		t.Fatalf("fragments = %+v", frags)
	}
}

func TestAdapterDegradesAfterSecondFailure(t *testing.T) {
	eng := &stubEngine{errs: []error{errors.New("down"), errors.New("down")}}
	a := NewAdapter(eng, nil)
	frags, err := a.Fragments(context.Background(), testPlacement())
	var ue *UnavailableError
	if !errors.As(err, &ue) {
		t.Fatalf("error = %v, want UnavailableError", err)
	}
	if ue.Page != 1 {
		t.Fatalf("page = %d", ue.Page)
	}
	if len(frags) != 0 {
		t.Fatalf("fragments = %+v", frags)
	}
	if eng.calls != 2 {
		t.Fatalf("engine called %d times, want 2", eng.calls)
	}
}

func TestAdapterHonorsContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	eng := &stubEngine{errs: []error{errors.New("down"), errors.New("down")}}
	a := NewAdapter(eng, nil)
	cancel()
	_, err := a.Fragments(ctx, testPlacement())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
}

type batchStubEngine struct {
	stubEngine
	batchCalls int
	batchSizes []int
	batchErrs  []error
	batchRes   [][]Result
}

func (s *batchStubEngine) RecognizeBatch(_ context.Context, inputs []Input) ([]Result, error) {
	i := s.batchCalls
	s.batchCalls++
	s.batchSizes = append(s.batchSizes, len(inputs))
	if i < len(s.batchErrs) && s.batchErrs[i] != nil {
		return nil, s.batchErrs[i]
	}
	if i < len(s.batchRes) {
		return s.batchRes[i], nil
	}
	return make([]Result, len(inputs)), nil
}

func secondPlacement() extractor.ImagePlacement {
	pl := testPlacement()
	pl.XObject = &document.XObject{
		Name: "Im2", Subtype: "Image",
		Width: 200, Height: 100, BitsPerComponent: 8, ColorSpace: "DeviceGray",
		Data: make([]byte, 200*100),
	}
	pl.CTM = coords.Matrix{200, 0, 0, 100, 50, 100}
	pl.Rect = coords.Rect{LLX: 50, LLY: 100, URX: 250, URY: 200}
	return pl
}

func TestFragmentsBatchUsesBatchEngine(t *testing.T) {
	word := TextWord{Text: "ok", Bounds: Region{X: 20, Y: 10, Width: 40, Height: 20}, Confidence: 0.9}
	eng := &batchStubEngine{batchRes: [][]Result{{
		{Words: []TextWord{word}},
		{Words: []TextWord{word}},
	}}}
	a := NewAdapter(eng, nil)
	frags, err := a.FragmentsBatch(context.Background(), []extractor.ImagePlacement{testPlacement(), secondPlacement()})
	if err != nil {
		t.Fatalf("FragmentsBatch() error = %v", err)
	}
	if eng.batchCalls != 1 || eng.calls != 0 {
		t.Fatalf("batch calls = %d, single calls = %d, want 1 and 0", eng.batchCalls, eng.calls)
	}
	if len(eng.batchSizes) != 1 || eng.batchSizes[0] != 2 {
		t.Fatalf("batch sizes = %v", eng.batchSizes)
	}
	if len(frags) != 2 {
		t.Fatalf("got %d fragments, want 2", len(frags))
	}
	// same pixel box, different placements: y differs by the CTM offset
	if math.Abs(frags[0].Rect.LLY-370) > 1e-9 || math.Abs(frags[1].Rect.LLY-170) > 1e-9 {
		t.Fatalf("rects = %+v / %+v", frags[0].Rect, frags[1].Rect)
	}
}

func TestFragmentsBatchRetriesOnce(t *testing.T) {
	eng := &batchStubEngine{
		batchErrs: []error{errors.New("transient")},
		batchRes: [][]Result{nil, {
			{Words: []TextWord{{Text: "ok", Bounds: Region{X: 0, Y: 0, Width: 10, Height: 10}, Confidence: 0.9}}},
			{},
		}},
	}
	a := NewAdapter(eng, nil)
	frags, err := a.FragmentsBatch(context.Background(), []extractor.ImagePlacement{testPlacement(), secondPlacement()})
	if err != nil {
		t.Fatalf("FragmentsBatch() error = %v", err)
	}
	if eng.batchCalls != 2 {
		t.Fatalf("batch called %d times, want 2", eng.batchCalls)
	}
	if len(frags) != 1 {
		t.Fatalf("fragments = %+v", frags)
	}
}

func TestFragmentsBatchDegradesAfterSecondFailure(t *testing.T) {
	eng := &batchStubEngine{batchErrs: []error{errors.New("down"), errors.New("down")}}
	a := NewAdapter(eng, nil)
	_, err := a.FragmentsBatch(context.Background(), []extractor.ImagePlacement{testPlacement(), secondPlacement()})
	var ue *UnavailableError
	if !errors.As(err, &ue) {
		t.Fatalf("error = %v, want UnavailableError", err)
	}
	if ue.Page != 1 {
		t.Fatalf("page = %d", ue.Page)
	}
}

func TestFragmentsBatchFallsBackPerImage(t *testing.T) {
	word := TextWord{Text: "ok", Bounds: Region{X: 0, Y: 0, Width: 10, Height: 10}, Confidence: 0.9}
	eng := &stubEngine{results: []Result{
		{Words: []TextWord{word}},
		{Words: []TextWord{word}},
	}}
	a := NewAdapter(eng, nil)
	frags, err := a.FragmentsBatch(context.Background(), []extractor.ImagePlacement{testPlacement(), secondPlacement()})
	if err != nil {
		t.Fatalf("FragmentsBatch() error = %v", err)
	}
	if eng.calls != 2 {
		t.Fatalf("engine called %d times, want 2", eng.calls)
	}
	if len(frags) != 2 {
		t.Fatalf("got %d fragments, want 2", len(frags))
	}
}

func TestFragmentsBatchKeepsSiblingsOnSingleFailure(t *testing.T) {
	word := TextWord{Text: "ok", Bounds: Region{X: 0, Y: 0, Width: 10, Height: 10}, Confidence: 0.9}
	// first image fails twice, second succeeds
	eng := &stubEngine{
		errs:    []error{errors.New("down"), errors.New("down")},
		results: []Result{{}, {}, {Words: []TextWord{word}}},
	}
	a := NewAdapter(eng, nil)
	frags, err := a.FragmentsBatch(context.Background(), []extractor.ImagePlacement{testPlacement(), secondPlacement()})
	var ue *UnavailableError
	if !errors.As(err, &ue) {
		t.Fatalf("error = %v, want UnavailableError", err)
	}
	if len(frags) != 1 {
		t.Fatalf("got %d fragments, want the surviving image's 1", len(frags))
	}
}

func TestInputOptions(t *testing.T) {
	in, err := InputFromPlacement(testPlacement(), WithLanguages("eng", "deu"), WithDPI(300), WithTesseractPSM(6))
	if err != nil {
		t.Fatalf("InputFromPlacement() error = %v", err)
	}
	if in.ID != "page-1-Im1" || in.Width != 200 || in.Height != 100 {
		t.Fatalf("input = %+v", in)
	}
	if len(in.Languages) != 2 || in.DPI != 300 {
		t.Fatalf("input = %+v", in)
	}
	if in.Variables["tessedit_pageseg_mode"] != "6" {
		t.Fatalf("variables = %+v", in.Variables)
	}
	if len(in.Image) == 0 {
		t.Fatalf("expected PNG payload")
	}
}
