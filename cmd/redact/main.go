// Command redact scans a PDF for sensitive data and writes a redacted copy
// plus an audit report. Options come from flags, environment variables
// (REDACTOR_*), or a config file, in that precedence.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/moduluz/pdf-redactor/catalog"
	"github.com/moduluz/pdf-redactor/observability"
	"github.com/moduluz/pdf-redactor/ocr"
	"github.com/moduluz/pdf-redactor/ocr/tesseract"
	"github.com/moduluz/pdf-redactor/pipeline"
	"github.com/moduluz/pdf-redactor/redact"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "redact:", err)
		os.Exit(1)
	}
}

func run() error {
	flags := pflag.NewFlagSet("redact", pflag.ContinueOnError)
	flags.String("config", "", "config file path")
	flags.StringP("input", "i", "", "input PDF path")
	flags.StringP("output", "o", "", "output PDF path (default: <input>.redacted.pdf)")
	flags.String("report", "", "report output path (default: <output>.report.<format>)")
	flags.String("report-format", "json", "report format: json, md, html")
	flags.StringSlice("categories", nil, "categories to scan (default: all)")
	flags.String("language", "auto", "document language code, or auto")
	flags.String("color", "black", "mask color: black, white, red, green, blue")
	flags.Bool("blur", false, "blur instead of solid block")
	flags.String("mask", "", "custom text drawn inside each mask")
	flags.StringSlice("custom-text", nil, "literal phrases to redact")
	flags.StringSlice("custom-pattern", nil, "regular expressions to redact")
	flags.Bool("preserve-headings", false, "skip matches classified as headings")
	flags.Bool("report-only", false, "report findings without modifying the document")
	flags.Bool("verify", true, "re-scan the output for residual matches")
	flags.Bool("ocr", false, "run OCR over embedded images")
	flags.StringSlice("ocr-languages", []string{"eng"}, "tesseract language codes")
	flags.Duration("timeout", 2*time.Minute, "job timeout")
	flags.Bool("verbose", false, "debug logging")
	if err := flags.Parse(os.Args[1:]); err != nil {
		return err
	}

	v := viper.New()
	if err := v.BindPFlags(flags); err != nil {
		return err
	}
	v.SetEnvPrefix("redactor")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if cfg := v.GetString("config"); cfg != "" {
		v.SetConfigFile(cfg)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config: %w", err)
		}
	}

	input := v.GetString("input")
	if input == "" {
		return fmt.Errorf("--input is required")
	}

	logger, err := buildLogger(v.GetBool("verbose"))
	if err != nil {
		return err
	}
	defer logger.Sync()

	opts, err := buildOptions(v)
	if err != nil {
		return err
	}

	p := pipeline.New()
	p.Log = observability.Zap(logger)
	p.Timeout = v.GetDuration("timeout")
	if v.GetBool("ocr") {
		adapter := ocr.NewAdapter(tesseract.New(), p.Log)
		adapter.Languages = v.GetStringSlice("ocr-languages")
		p.OCR = adapter
	}

	data, err := os.ReadFile(input)
	if err != nil {
		return err
	}
	res, err := p.Run(context.Background(), data, opts)
	if err != nil {
		return err
	}

	format := v.GetString("report-format")
	if !opts.ReportOnly {
		output := v.GetString("output")
		if output == "" {
			output = strings.TrimSuffix(input, filepath.Ext(input)) + ".redacted.pdf"
		}
		if err := os.WriteFile(output, res.Output, 0o644); err != nil {
			return err
		}
		logger.Info("wrote redacted document",
			zap.String("path", output),
			zap.Int("matches", len(res.Matches)),
			zap.Int("redacted", len(res.Redacted)))
	}

	reportPath := v.GetString("report")
	if reportPath == "" {
		reportPath = strings.TrimSuffix(input, filepath.Ext(input)) + ".report." + format
	}
	body, err := renderReport(res, format)
	if err != nil {
		return err
	}
	if err := os.WriteFile(reportPath, body, 0o644); err != nil {
		return err
	}
	logger.Info("wrote report", zap.String("path", reportPath), zap.String("format", format))

	for _, d := range res.Diagnostics {
		logger.Warn("job diagnostic", zap.String("detail", d.String()))
	}
	if res.Verification != nil && !res.Verification.Passed {
		return fmt.Errorf("verification failed: %d residual matches, see report", len(res.Verification.Residual))
	}
	return nil
}

func buildLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func buildOptions(v *viper.Viper) (pipeline.Options, error) {
	opts := pipeline.Options{
		Language:         v.GetString("language"),
		UseBlur:          v.GetBool("blur"),
		CustomMask:       v.GetString("mask"),
		CustomText:       v.GetStringSlice("custom-text"),
		CustomPatterns:   v.GetStringSlice("custom-pattern"),
		PreserveHeadings: v.GetBool("preserve-headings"),
		ReportOnly:       v.GetBool("report-only"),
		Verify:           v.GetBool("verify"),
	}
	color, err := redact.ParseColor(v.GetString("color"))
	if err != nil {
		return opts, err
	}
	opts.Color = color
	for _, c := range v.GetStringSlice("categories") {
		cat, err := catalog.Parse(c)
		if err != nil {
			return opts, err
		}
		opts.Categories = append(opts.Categories, cat)
	}
	return opts, nil
}

func renderReport(res *pipeline.Result, format string) ([]byte, error) {
	switch format {
	case "json":
		return res.Report.JSON()
	case "md", "markdown":
		return []byte(res.Report.Markdown()), nil
	case "html":
		return res.Report.HTML()
	}
	return nil, fmt.Errorf("unknown report format %q", format)
}
