// Package editor performs destructive edits on page content streams. Glyphs
// covered by a redaction rectangle are removed from the stream itself, never
// merely painted over, so re-extracting the document cannot recover them.
package editor

import (
	"fmt"
	"sort"

	"github.com/moduluz/pdf-redactor/contentstream"
	"github.com/moduluz/pdf-redactor/coords"
	"github.com/moduluz/pdf-redactor/document"
)

type Editor struct{}

func New() *Editor { return &Editor{} }

// RemoveRect deletes the glyphs of every text run that the rectangle covers.
// Runs partially covered are split: the covered codes are replaced by an
// equivalent TJ kerning adjustment so the layout of surviving glyphs does
// not shift. Vector paths fully inside the rectangle are dropped; image
// XObjects are left to the raster redaction path.
//
// Re-applying the same rectangle to an already-cleared region is a no-op.
func (e *Editor) RemoveRect(page *document.Page, rect coords.Rect) error {
	trace, err := contentstream.TracePage(page)
	if err != nil {
		return fmt.Errorf("trace page %d: %w", page.Index, err)
	}

	idx := newOpIndex(page.Bounds(), trace)
	hits := idx.Query(rect)
	if len(hits) == 0 {
		return nil
	}

	// one edit plan per stream: opIndex -> replacement ops (nil = delete)
	plans := make(map[int]map[int][]document.Operation)
	runs := make(map[[2]int]*contentstream.TextRun, len(trace.TextRuns))
	for i := range trace.TextRuns {
		r := &trace.TextRuns[i]
		runs[[2]int{r.StreamIndex, r.OpIndex}] = r
	}
	images := make(map[[2]int]bool, len(trace.Images))
	for _, im := range trace.Images {
		images[[2]int{im.StreamIndex, im.OpIndex}] = true
	}

	for _, h := range hits {
		box := trace.Boxes[h]
		if box.Tag == contentstream.RedactionTag {
			// masks drawn by an earlier redaction pass stay in place
			continue
		}
		key := [2]int{box.StreamIndex, box.OpIndex}
		if images[key] {
			continue
		}
		if run, ok := runs[key]; ok {
			replacement, changed := splitRun(run, rect)
			if !changed {
				continue
			}
			orig := page.Contents[box.StreamIndex].Operations[box.OpIndex]
			replacement = append(preserveLineOps(orig), replacement...)
			planFor(plans, box.StreamIndex)[box.OpIndex] = replacement
			continue
		}
		// non-text paint op: drop only when wholly covered
		if rect.Contains(box.Rect) {
			planFor(plans, box.StreamIndex)[box.OpIndex] = nil
		}
	}

	for si, plan := range plans {
		applyPlan(&page.Contents[si], plan)
	}
	return nil
}

func planFor(plans map[int]map[int][]document.Operation, si int) map[int][]document.Operation {
	if plans[si] == nil {
		plans[si] = make(map[int][]document.Operation)
	}
	return plans[si]
}

func applyPlan(stream *document.ContentStream, plan map[int][]document.Operation) {
	indices := make([]int, 0, len(plan))
	for i := range plan {
		indices = append(indices, i)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(indices)))
	for _, i := range indices {
		replacement := plan[i]
		// fresh slice: aliased copies of the stream must keep their ops
		out := make([]document.Operation, 0, len(stream.Operations)-1+len(replacement))
		out = append(out, stream.Operations[:i]...)
		out = append(out, replacement...)
		out = append(out, stream.Operations[i+1:]...)
		stream.Operations = out
	}
}

// preserveLineOps keeps the side effects of ' and " when the show op itself
// is rewritten to TJ: the line advance and, for ", the spacing operands.
func preserveLineOps(orig document.Operation) []document.Operation {
	switch orig.Operator {
	case "'":
		return []document.Operation{{Operator: "T*"}}
	case "\"":
		if len(orig.Operands) == 3 {
			return []document.Operation{
				{Operator: "Tw", Operands: orig.Operands[:1]},
				{Operator: "Tc", Operands: orig.Operands[1:2]},
				{Operator: "T*"},
			}
		}
		return []document.Operation{{Operator: "T*"}}
	}
	return nil
}

// splitRun rewrites one text-showing op so that the codes whose boxes the
// rectangle covers disappear. Returns the replacement operations and whether
// anything was removed.
func splitRun(run *contentstream.TextRun, rect coords.Rect) ([]document.Operation, bool) {
	covered := make([]bool, len(run.Codes))
	any := false
	for i := range run.Codes {
		if rect.Intersects(run.SubRect(i, i+1)) {
			covered[i] = true
			any = true
		}
	}
	if !any {
		return nil, false
	}

	unit := 1
	if run.Font != nil && run.Font.TwoByte {
		unit = 2
	}

	var items []document.Operand
	i := 0
	for i < len(run.Codes) {
		j := i
		for j < len(run.Codes) && covered[j] == covered[i] {
			j++
		}
		if covered[i] {
			// preserve the displacement of the removed span
			gap := run.Offsets[j] - run.Offsets[i]
			if run.FontSize > 0 && gap > 0 {
				items = append(items, document.NumberOperand{Value: -gap * 1000.0 / run.FontSize})
			}
		} else {
			items = append(items, document.StringOperand{Value: run.Raw[i*unit : j*unit]})
		}
		i = j
	}

	hasText := false
	for _, it := range items {
		if _, ok := it.(document.StringOperand); ok {
			hasText = true
			break
		}
	}
	if !hasText {
		return nil, true
	}
	return []document.Operation{{
		Operator: "TJ",
		Operands: []document.Operand{document.ArrayOperand{Values: items}},
	}}, true
}

type opIndex struct {
	tree  *QuadTree
	boxes []contentstream.OpBBox
}

func newOpIndex(bounds coords.Rect, trace *contentstream.Trace) *opIndex {
	idx := &opIndex{tree: NewQuadTree(bounds, 10), boxes: trace.Boxes}
	for i, b := range trace.Boxes {
		idx.tree.Insert(b.Rect, i)
	}
	return idx
}

// Query returns indices into the trace's box list, deduplicated.
func (idx *opIndex) Query(rect coords.Rect) []int {
	raw := idx.tree.Query(rect)
	seen := make(map[int]bool, len(raw))
	out := raw[:0]
	for _, i := range raw {
		if !seen[i] {
			seen[i] = true
			out = append(out, i)
		}
	}
	return out
}
