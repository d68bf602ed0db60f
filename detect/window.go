package detect

import (
	"strings"
	"unicode"

	"github.com/moduluz/pdf-redactor/extractor"
)

// fragments closer than this many page units on the same baseline are
// concatenated without a separator, so values split across text runs
// ("555-" then "1234") stay matchable.
const joinGap = 1.0

type fragSpan struct {
	frag  *extractor.Fragment
	start int
	end   int
}

// window is the scan unit: the concatenated text of consecutive fragments
// from one page and one source, with the byte span each fragment occupies.
// Windows never cross a page boundary.
type window struct {
	page   int
	source extractor.Source
	text   string
	spans  []fragSpan
}

// buildWindows groups fragments by page and source, preserving input order.
// Same-line neighbors join directly or with a space depending on the gap;
// a line change inserts a newline.
func buildWindows(frags []extractor.Fragment) []*window {
	var out []*window
	byKey := map[[2]int]*window{}

	for i := range frags {
		f := &frags[i]
		key := [2]int{f.Page, int(f.Source)}
		w := byKey[key]
		if w == nil {
			w = &window{page: f.Page, source: f.Source}
			byKey[key] = w
			out = append(out, w)
		}
		sep := ""
		if n := len(w.spans); n > 0 {
			prev := w.spans[n-1].frag
			switch {
			case !sameLine(prev, f):
				sep = "\n"
			case f.Rect.LLX-prev.Rect.URX > joinGap:
				sep = " "
			}
		}
		start := len(w.text) + len(sep)
		w.text += sep + f.Text
		w.spans = append(w.spans, fragSpan{frag: f, start: start, end: start + len(f.Text)})
	}
	return out
}

func sameLine(a, b *extractor.Fragment) bool {
	lo := a.Rect.LLY
	if b.Rect.LLY > lo {
		lo = b.Rect.LLY
	}
	hi := a.Rect.URY
	if b.Rect.URY < hi {
		hi = b.Rect.URY
	}
	return hi > lo
}

// covering returns the spans that intersect the byte range [start, end).
func (w *window) covering(start, end int) []fragSpan {
	var out []fragSpan
	for _, s := range w.spans {
		if s.end <= start || s.start >= end {
			continue
		}
		out = append(out, s)
	}
	return out
}

// pageStats summarizes the native text of one page for the heading
// classifier.
type pageStats struct {
	medianSize float64
	topY       float64
	multiLine  bool
}

func statsFor(frags []extractor.Fragment, page int) pageStats {
	var sizes []float64
	var tops []float64
	st := pageStats{}
	for i := range frags {
		f := &frags[i]
		if f.Page != page || f.Source != extractor.SourceNative {
			continue
		}
		if f.FontSize > 0 {
			sizes = append(sizes, f.FontSize)
		}
		if f.Rect.URY > st.topY {
			st.topY = f.Rect.URY
		}
		tops = append(tops, f.Rect.URY)
	}
	for _, t := range tops {
		if st.topY-t > joinGap {
			st.multiLine = true
			break
		}
	}
	if len(sizes) > 0 {
		st.medianSize = median(sizes)
	}
	return st
}

func median(v []float64) float64 {
	s := append([]float64(nil), v...)
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j] < s[j-1]; j-- {
			s[j], s[j-1] = s[j-1], s[j]
		}
	}
	return s[len(s)/2]
}

// headingLike classifies a fragment as structural text: a font-size outlier,
// a short all-caps line, or the topmost line of the page. A fragment whose
// text carries a value-shaped token is never a heading, whatever its shape.
func headingLike(f *extractor.Fragment, st pageStats) bool {
	if f.Source != extractor.SourceNative {
		return false
	}
	if valueBearing(f.Text) {
		return false
	}
	if allCapsShort(f.Text) {
		return true
	}
	if st.medianSize > 0 && f.FontSize >= st.medianSize*1.25 {
		return true
	}
	if st.multiLine && f.Rect.URY >= st.topY-joinGap {
		return true
	}
	return false
}

// valueBearing reports whether the text holds something that reads as a
// data value rather than a label: a run of six or more digits, allowing
// space and dash separators.
func valueBearing(text string) bool {
	digits := 0
	for _, r := range text {
		switch {
		case r >= '0' && r <= '9':
			digits++
			if digits >= 6 {
				return true
			}
		case r == ' ' || r == '-' || r == '.' || r == '/':
			// separators do not break a digit run
		default:
			digits = 0
		}
	}
	return false
}

func allCapsShort(text string) bool {
	t := strings.TrimSpace(text)
	if t == "" || len(t) > 48 {
		return false
	}
	letters := 0
	for _, r := range t {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsLetter(r) {
			letters++
		}
	}
	return letters >= 2
}
