// Package report renders detection and verification results for audit. The
// entry order is canonical: page, then category, then position top-to-bottom
// and left-to-right, so repeated runs over the same document produce
// byte-identical output.
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"golang.org/x/crypto/sha3"

	"github.com/moduluz/pdf-redactor/catalog"
	"github.com/moduluz/pdf-redactor/detect"
	"github.com/moduluz/pdf-redactor/verify"
)

// Box is one match rectangle in page units.
type Box struct {
	X0 float64 `json:"x0"`
	Y0 float64 `json:"y0"`
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
}

// Entry is one reported match.
type Entry struct {
	Page     int    `json:"page"`
	Category string `json:"category"`
	Label    string `json:"label"`
	Text     string `json:"text"`
	Source   string `json:"source"`
	Heading  bool   `json:"heading,omitempty"`
	Redacted bool   `json:"redacted"`
	Boxes    []Box  `json:"boxes"`
}

// CategoryOutcome is the verification verdict for one category.
type CategoryOutcome struct {
	Category string `json:"category"`
	Passed   bool   `json:"passed"`
	Residual int    `json:"residual"`
}

// Verification summarizes the post-redaction scan.
type Verification struct {
	Passed     bool              `json:"passed"`
	Categories []CategoryOutcome `json:"categories"`
}

// Report is the structured audit record of one job.
type Report struct {
	GeneratedAt  time.Time     `json:"generated_at"`
	Language     string        `json:"language"`
	Pages        int           `json:"pages"`
	Entries      []Entry       `json:"entries"`
	Verification *Verification `json:"verification,omitempty"`
	Digest       string        `json:"digest"`
}

// Build assembles a report from the match list. Heading-tagged matches are
// included but marked unredacted. The digest is a SHA3-256 over the
// canonical entry list, so it identifies the findings independently of the
// generation time.
func Build(matches []detect.Match, verification *verify.Result, language string, pages int) *Report {
	entries := make([]Entry, 0, len(matches))
	for _, m := range matches {
		e := Entry{
			Page:     m.Page,
			Category: string(m.Category),
			Label:    m.Category.Label(),
			Text:     m.Text,
			Source:   m.Source.String(),
			Heading:  m.Heading,
			Redacted: !m.Heading,
		}
		for _, b := range m.Boxes {
			e.Boxes = append(e.Boxes, Box{X0: b.LLX, Y0: b.LLY, X1: b.URX, Y1: b.URY})
		}
		entries = append(entries, e)
	}
	sortEntries(entries)

	r := &Report{
		GeneratedAt: time.Now().UTC(),
		Language:    language,
		Pages:       pages,
		Entries:     entries,
		Digest:      digestOf(entries),
	}
	if verification != nil {
		v := &Verification{Passed: verification.Passed}
		for _, c := range verification.Categories {
			v.Categories = append(v.Categories, CategoryOutcome{
				Category: string(c.Category),
				Passed:   c.Passed,
				Residual: len(c.Residual),
			})
		}
		r.Verification = v
	}
	return r
}

// sortEntries orders by page, category, then first box top-to-bottom and
// left-to-right. Page y grows upward, so top-to-bottom is descending y.
func sortEntries(entries []Entry) {
	rank := map[string]int{}
	for i, c := range catalog.All() {
		rank[string(c)] = i
	}
	rank[string(catalog.CategoryCustom)] = len(rank)
	order := func(cat string) int {
		if r, ok := rank[cat]; ok {
			return r
		}
		return len(rank)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Page != b.Page {
			return a.Page < b.Page
		}
		if oa, ob := order(a.Category), order(b.Category); oa != ob {
			return oa < ob
		}
		at, bt := firstBox(a), firstBox(b)
		if at.Y1 != bt.Y1 {
			return at.Y1 > bt.Y1
		}
		return at.X0 < bt.X0
	})
}

func firstBox(e Entry) Box {
	if len(e.Boxes) == 0 {
		return Box{}
	}
	return e.Boxes[0]
}

func digestOf(entries []Entry) string {
	canon, err := json.Marshal(entries)
	if err != nil {
		return ""
	}
	sum := sha3.Sum256(canon)
	return fmt.Sprintf("%x", sum)
}

// JSON renders the report as indented JSON.
func (r *Report) JSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// Markdown renders the report as a GFM document.
func (r *Report) Markdown() string {
	var sb strings.Builder
	sb.WriteString("# Redaction Report\n\n")
	fmt.Fprintf(&sb, "- Generated: %s\n", r.GeneratedAt.Format(time.RFC3339))
	fmt.Fprintf(&sb, "- Language: %s\n", r.Language)
	fmt.Fprintf(&sb, "- Pages scanned: %d\n", r.Pages)
	fmt.Fprintf(&sb, "- Findings: %d\n", len(r.Entries))
	fmt.Fprintf(&sb, "- Digest: `%s`\n\n", r.Digest)

	if len(r.Entries) == 0 {
		sb.WriteString("No sensitive data found.\n")
	} else {
		sb.WriteString("| Page | Category | Text | Source | Redacted |\n")
		sb.WriteString("|------|----------|------|--------|----------|\n")
		for _, e := range r.Entries {
			redacted := "yes"
			if !e.Redacted {
				redacted = "no (heading)"
			}
			fmt.Fprintf(&sb, "| %d | %s | `%s` | %s | %s |\n",
				e.Page, e.Label, mdEscape(e.Text), e.Source, redacted)
		}
	}

	if r.Verification != nil {
		sb.WriteString("\n## Verification\n\n")
		if r.Verification.Passed {
			sb.WriteString("All categories verified clean.\n")
		} else {
			sb.WriteString("Residual matches remain:\n\n")
		}
		for _, c := range r.Verification.Categories {
			status := "pass"
			if !c.Passed {
				status = fmt.Sprintf("FAIL (%d residual)", c.Residual)
			}
			fmt.Fprintf(&sb, "- %s: %s\n", c.Category, status)
		}
	}
	return sb.String()
}

// HTML renders the Markdown report through goldmark with GFM tables.
func (r *Report) HTML() ([]byte, error) {
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	var buf bytes.Buffer
	if err := md.Convert([]byte(r.Markdown()), &buf); err != nil {
		return nil, fmt.Errorf("render html: %w", err)
	}
	return buf.Bytes(), nil
}

func mdEscape(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	s = strings.ReplaceAll(s, "`", "'")
	return s
}
