package report

import (
	"encoding/json"
	"sort"
	"strings"
	"testing"

	"github.com/moduluz/pdf-redactor/catalog"
	"github.com/moduluz/pdf-redactor/coords"
	"github.com/moduluz/pdf-redactor/detect"
	"github.com/moduluz/pdf-redactor/extractor"
	"github.com/moduluz/pdf-redactor/verify"
)

func match(page int, cat catalog.Category, text string, box coords.Rect) detect.Match {
	return detect.Match{
		Category: cat,
		Text:     text,
		Page:     page,
		Boxes:    []coords.Rect{box},
		Source:   extractor.SourceNative,
	}
}

func sampleMatches() []detect.Match {
	return []detect.Match{
		match(2, catalog.CategoryEmail, "a@b.com", coords.Rect{LLX: 72, LLY: 700, URX: 120, URY: 710}),
		match(1, catalog.CategoryPhone, "555-123-4567", coords.Rect{LLX: 72, LLY: 100, URX: 150, URY: 110}),
		match(1, catalog.CategoryPhone, "555-999-0000", coords.Rect{LLX: 72, LLY: 500, URX: 150, URY: 510}),
		match(1, catalog.CategoryCreditCard, "4111111111111111", coords.Rect{LLX: 72, LLY: 300, URX: 200, URY: 310}),
	}
}

func TestBuildOrdering(t *testing.T) {
	r := Build(sampleMatches(), nil, "en", 2)
	if len(r.Entries) != 4 {
		t.Fatalf("entries = %d", len(r.Entries))
	}
	// page 1 first; within it credit_card precedes phone; phones top-to-bottom
	want := []string{"4111111111111111", "555-999-0000", "555-123-4567", "a@b.com"}
	for i, e := range r.Entries {
		if e.Text != want[i] {
			t.Fatalf("entry %d = %q, want %q", i, e.Text, want[i])
		}
	}
}

func TestOrderingNonDecreasing(t *testing.T) {
	r := Build(sampleMatches(), nil, "en", 2)
	keys := make([][3]float64, 0, len(r.Entries))
	rank := map[string]int{}
	for i, c := range catalog.All() {
		rank[string(c)] = i
	}
	for _, e := range r.Entries {
		keys = append(keys, [3]float64{float64(e.Page), float64(rank[e.Category]), -e.Boxes[0].Y1})
	}
	if !sort.SliceIsSorted(keys, func(i, j int) bool {
		for k := 0; k < 3; k++ {
			if keys[i][k] != keys[j][k] {
				return keys[i][k] < keys[j][k]
			}
		}
		return false
	}) {
		t.Fatalf("entry keys not sorted: %v", keys)
	}
}

func TestDigestStableAcrossRuns(t *testing.T) {
	a := Build(sampleMatches(), nil, "en", 2)
	b := Build(sampleMatches(), nil, "en", 2)
	if a.Digest == "" || a.Digest != b.Digest {
		t.Fatalf("digests differ: %q vs %q", a.Digest, b.Digest)
	}
	c := Build(sampleMatches()[:2], nil, "en", 2)
	if c.Digest == a.Digest {
		t.Fatalf("digest ignores entries")
	}
}

func TestJSONRoundTrip(t *testing.T) {
	r := Build(sampleMatches(), nil, "en", 2)
	data, err := r.JSON()
	if err != nil {
		t.Fatalf("JSON() error = %v", err)
	}
	var back Report
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if len(back.Entries) != 4 || back.Digest != r.Digest {
		t.Fatalf("round trip lost data: %+v", back)
	}
}

func TestMarkdownHeadingEntry(t *testing.T) {
	m := match(1, catalog.CategoryCustom, "ACME", coords.Rect{LLX: 72, LLY: 740, URX: 130, URY: 756})
	m.Heading = true
	r := Build([]detect.Match{m}, nil, "en", 1)
	md := r.Markdown()
	if !strings.Contains(md, "no (heading)") {
		t.Fatalf("heading entry not marked:\n%s", md)
	}
	if r.Entries[0].Redacted {
		t.Fatalf("heading entry marked redacted")
	}
}

func TestMarkdownVerificationSection(t *testing.T) {
	v := &verify.Result{
		Passed: false,
		Categories: []verify.CategoryResult{
			{Category: catalog.CategoryPhone, Passed: true},
			{Category: catalog.CategoryEmail, Passed: false, Residual: []detect.Match{{}}},
		},
	}
	r := Build(sampleMatches(), v, "en", 2)
	md := r.Markdown()
	if !strings.Contains(md, "phone: pass") || !strings.Contains(md, "email: FAIL (1 residual)") {
		t.Fatalf("verification section wrong:\n%s", md)
	}
}

func TestHTMLRendersTable(t *testing.T) {
	r := Build(sampleMatches(), nil, "en", 2)
	html, err := r.HTML()
	if err != nil {
		t.Fatalf("HTML() error = %v", err)
	}
	s := string(html)
	if !strings.Contains(s, "<table>") || !strings.Contains(s, "<h1") {
		t.Fatalf("html missing structure:\n%s", s)
	}
}

func TestMarkdownEscapesPipes(t *testing.T) {
	m := match(1, catalog.CategoryCustom, "a|b", coords.Rect{LLX: 0, LLY: 0, URX: 10, URY: 10})
	r := Build([]detect.Match{m}, nil, "en", 1)
	if !strings.Contains(r.Markdown(), `a\|b`) {
		t.Fatalf("pipe not escaped:\n%s", r.Markdown())
	}
}
