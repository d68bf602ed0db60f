// Package verify re-scans a redacted document and checks that no original
// match survives at its location. Residuals are surfaced, never retried:
// re-redaction is the caller's decision.
package verify

import (
	"context"
	"fmt"

	"github.com/moduluz/pdf-redactor/catalog"
	"github.com/moduluz/pdf-redactor/detect"
	"github.com/moduluz/pdf-redactor/document"
	"github.com/moduluz/pdf-redactor/extractor"
	"github.com/moduluz/pdf-redactor/observability"
	"github.com/moduluz/pdf-redactor/ocr"
)

// CategoryResult is the pass/fail verdict for one category that had
// original matches.
type CategoryResult struct {
	Category catalog.Category
	Passed   bool
	Residual []detect.Match
}

// Result aggregates the verification outcome of one document.
type Result struct {
	Passed     bool
	Categories []CategoryResult
	Residual   []detect.Match
}

// Error marks a verification that found residual matches. Non-fatal: the job
// completes with a degraded-success status carrying this error.
type Error struct {
	Residual []detect.Match
}

func (e *Error) Error() string {
	return fmt.Sprintf("verification found %d residual matches", len(e.Residual))
}

// Verifier re-extracts and re-detects over redacted pages.
type Verifier struct {
	Extractor *extractor.Extractor
	OCR       *ocr.Adapter // nil skips the raster pass
	Log       observability.Logger
}

func New() *Verifier {
	return &Verifier{Extractor: extractor.New(), Log: observability.NopLogger{}}
}

// Verify runs the detector against the redacted document and reports, per
// category present in the original match list, whether any match recurs at
// the same or an overlapping location.
func (v *Verifier) Verify(ctx context.Context, doc *document.Document, original []detect.Match, det *detect.Detector) (Result, error) {
	var found []detect.Match
	for _, page := range doc.Pages {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		frags, err := v.Extractor.Fragments(page)
		if err != nil {
			return Result{}, fmt.Errorf("re-extract page %d: %w", page.Index, err)
		}
		if v.OCR != nil {
			placements, err := v.Extractor.Images(page)
			if err != nil {
				return Result{}, fmt.Errorf("re-extract page %d images: %w", page.Index, err)
			}
			ocrFrags, err := v.OCR.FragmentsBatch(ctx, placements)
			if err != nil {
				if ctx.Err() != nil {
					return Result{}, err
				}
				v.Log.Warn("ocr skipped during verification",
					observability.Int("page", page.Index),
					observability.Error("error", err))
			}
			frags = append(frags, ocrFrags...)
		}
		found = append(found, det.Detect(frags)...)
	}

	residual := residualsOf(found, original)
	byCat := map[catalog.Category][]detect.Match{}
	for _, m := range residual {
		byCat[m.Category] = append(byCat[m.Category], m)
	}

	res := Result{Passed: len(residual) == 0, Residual: residual}
	for _, cat := range categoriesOf(original) {
		res.Categories = append(res.Categories, CategoryResult{
			Category: cat,
			Passed:   len(byCat[cat]) == 0,
			Residual: byCat[cat],
		})
	}
	return res, nil
}

// residualsOf keeps the found matches that recur at an original match's
// location: same page, same category, overlapping boxes.
func residualsOf(found, original []detect.Match) []detect.Match {
	var out []detect.Match
	for _, f := range found {
		if recurs(f, original) {
			out = append(out, f)
		}
	}
	return out
}

func recurs(f detect.Match, original []detect.Match) bool {
	for _, o := range original {
		if o.Page != f.Page || o.Category != f.Category {
			continue
		}
		for _, ob := range o.Boxes {
			for _, fb := range f.Boxes {
				if ob.Intersects(fb) {
					return true
				}
			}
		}
	}
	return false
}

// categoriesOf lists the original categories in catalog order, customs last.
func categoriesOf(matches []detect.Match) []catalog.Category {
	present := map[catalog.Category]bool{}
	for _, m := range matches {
		present[m.Category] = true
	}
	var out []catalog.Category
	for _, c := range catalog.All() {
		if present[c] {
			out = append(out, c)
			delete(present, c)
		}
	}
	if present[catalog.CategoryCustom] {
		out = append(out, catalog.CategoryCustom)
	}
	return out
}
