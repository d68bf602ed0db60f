// Package detect scans positioned text fragments with the pattern catalog
// and produces matches carrying page-space geometry.
package detect

import (
	"sort"

	"github.com/moduluz/pdf-redactor/catalog"
	"github.com/moduluz/pdf-redactor/coords"
	"github.com/moduluz/pdf-redactor/extractor"
	"github.com/moduluz/pdf-redactor/observability"
)

// Match is one detected occurrence of sensitive data. Boxes holds one
// rectangle per contributing fragment; a value split across text runs yields
// several. Matches are immutable once returned.
type Match struct {
	Category catalog.Category
	Text     string
	Page     int
	Boxes    []coords.Rect
	Source   extractor.Source
	Heading  bool
}

// Detector applies a catalog to fragment streams.
type Detector struct {
	Catalog          *catalog.Catalog
	PreserveHeadings bool
	Log              observability.Logger
}

// New returns a detector over the given catalog.
func New(cat *catalog.Catalog) *Detector {
	return &Detector{Catalog: cat, Log: observability.NopLogger{}}
}

// hit is a pre-geometry match inside one window.
type hit struct {
	ruleIdx    int
	start, end int
	text       string
}

// Detect scans the fragments and returns every accepted match. Fragments
// must already be in page space; the detector performs no coordinate
// transforms. Heading tagging happens only when PreserveHeadings is set;
// tagged matches are still returned so reports can show what was skipped.
func (d *Detector) Detect(frags []extractor.Fragment) []Match {
	log := d.Log
	if log == nil {
		log = observability.NopLogger{}
	}

	var out []Match
	stats := map[int]pageStats{}
	for _, w := range buildWindows(frags) {
		st, ok := stats[w.page]
		if !ok {
			st = statsFor(frags, w.page)
			stats[w.page] = st
		}
		for _, h := range d.scan(w) {
			m, ok := d.toMatch(w, h, st)
			if !ok {
				continue
			}
			out = append(out, m)
		}
	}
	log.Debug("detection complete",
		observability.Int("fragments", len(frags)),
		observability.Int("matches", len(out)))
	return out
}

// scan runs every rule over the window text and resolves same-category
// overlaps: the longer match wins, equal lengths prefer the rule declared
// earlier in the catalog.
func (d *Detector) scan(w *window) []hit {
	byCat := map[catalog.Category][]hit{}
	for ri, rule := range d.Catalog.Rules {
		for _, idx := range rule.Pattern.FindAllStringSubmatchIndex(w.text, -1) {
			s, e := idx[0], idx[1]
			if len(idx) >= 4 && idx[2] >= 0 {
				s, e = idx[2], idx[3]
			}
			if s >= e {
				continue
			}
			text := w.text[s:e]
			if rule.Validate != nil && !rule.Validate(text) {
				continue
			}
			byCat[rule.Category] = append(byCat[rule.Category], hit{ruleIdx: ri, start: s, end: e, text: text})
		}
	}

	var accepted []hit
	for _, hits := range byCat {
		accepted = append(accepted, resolveOverlaps(hits)...)
	}
	sort.Slice(accepted, func(i, j int) bool {
		a, b := accepted[i], accepted[j]
		if a.start != b.start {
			return a.start < b.start
		}
		if a.end != b.end {
			return a.end > b.end
		}
		return a.ruleIdx < b.ruleIdx
	})
	return accepted
}

// resolveOverlaps keeps, among overlapping same-category hits, the longest
// one; ties go to the earlier rule, then the earlier position.
func resolveOverlaps(hits []hit) []hit {
	sort.Slice(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if la, lb := a.end-a.start, b.end-b.start; la != lb {
			return la > lb
		}
		if a.ruleIdx != b.ruleIdx {
			return a.ruleIdx < b.ruleIdx
		}
		return a.start < b.start
	})
	var kept []hit
	for _, h := range hits {
		clash := false
		for _, k := range kept {
			if h.start < k.end && k.start < h.end {
				clash = true
				break
			}
		}
		if !clash {
			kept = append(kept, h)
		}
	}
	return kept
}

// toMatch maps a hit's byte offsets back to fragment geometry. Hits whose
// covered glyphs produce no usable rectangle are dropped.
func (d *Detector) toMatch(w *window, h hit, st pageStats) (Match, bool) {
	spans := w.covering(h.start, h.end)
	if len(spans) == 0 {
		return Match{}, false
	}
	var boxes []coords.Rect
	heading := d.PreserveHeadings
	for _, s := range spans {
		lo := h.start - s.start
		hi := h.end - s.start
		if lo < 0 {
			lo = 0
		}
		if n := s.end - s.start; hi > n {
			hi = n
		}
		box := s.frag.BoxForRange(lo, hi)
		if !box.IsEmpty() {
			boxes = append(boxes, box)
		}
		if !headingLike(s.frag, st) {
			heading = false
		}
	}
	if len(boxes) == 0 {
		return Match{}, false
	}
	cat := d.Catalog.Rules[h.ruleIdx].Category
	return Match{
		Category: cat,
		Text:     h.text,
		Page:     w.page,
		Boxes:    boxes,
		Source:   w.source,
		Heading:  heading,
	}, true
}
