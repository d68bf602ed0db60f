package pipeline

import (
	"github.com/moduluz/pdf-redactor/catalog"
	"github.com/moduluz/pdf-redactor/redact"
)

// Options configures one redaction job. The zero value scans every built-in
// category in auto-detected language and draws black block masks.
type Options struct {
	Categories       []catalog.Category
	Language         string // language code, or "auto"/"" for detection
	Color            redact.Color
	UseBlur          bool
	CustomMask       string
	CustomText       []string
	CustomPatterns   []string
	PreserveHeadings bool
	ReportOnly       bool
	Verify           bool
}

func (o *Options) catalogOptions() ([]catalog.Option, error) {
	var out []catalog.Option
	if len(o.Categories) > 0 {
		out = append(out, catalog.WithCategories(o.Categories...))
	}
	for _, t := range o.CustomText {
		out = append(out, catalog.WithCustomText(t))
	}
	for _, expr := range o.CustomPatterns {
		opt, err := catalog.WithCustomPattern(expr)
		if err != nil {
			return nil, err
		}
		out = append(out, opt)
	}
	return out, nil
}

func (o *Options) color() redact.Color {
	if o.Color == "" {
		return redact.Black
	}
	return o.Color
}
