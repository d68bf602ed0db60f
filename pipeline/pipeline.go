// Package pipeline orchestrates a redaction job end to end: parse, extract,
// detect, apply, verify, report, write. Pages are processed by a bounded
// worker pool; OCR runs on its own, smaller pool since one recognition costs
// an order of magnitude more than a regex scan.
package pipeline

import (
	"context"
	"errors"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/moduluz/pdf-redactor/catalog"
	"github.com/moduluz/pdf-redactor/detect"
	"github.com/moduluz/pdf-redactor/document"
	"github.com/moduluz/pdf-redactor/extractor"
	"github.com/moduluz/pdf-redactor/observability"
	"github.com/moduluz/pdf-redactor/ocr"
	"github.com/moduluz/pdf-redactor/parser"
	"github.com/moduluz/pdf-redactor/redact"
	"github.com/moduluz/pdf-redactor/report"
	"github.com/moduluz/pdf-redactor/verify"
	"github.com/moduluz/pdf-redactor/writer"
)

// Result is the outcome of one job. Diagnostics carries every non-fatal
// condition; a result with diagnostics is a degraded success, not a failure.
type Result struct {
	Output       []byte // produced PDF; unmodified re-serialization in report-only mode
	Language     string
	Matches      []detect.Match
	Redacted     []detect.Match
	Verification *verify.Result
	Report       *report.Report
	Diagnostics  []Diagnostic
}

// Degraded reports whether the job completed with non-fatal conditions.
func (r *Result) Degraded() bool { return len(r.Diagnostics) > 0 }

// Pipeline wires the components of a redaction job. A Pipeline is safe for
// concurrent Run calls; each job owns its document exclusively.
type Pipeline struct {
	Parser    *parser.Parser
	Writer    *writer.Writer
	Extractor *extractor.Extractor
	Applier   *redact.Applier
	Verifier  *verify.Verifier
	OCR       *ocr.Adapter // nil disables the raster path
	Log       observability.Logger
	Tracer    observability.Tracer

	PageWorkers int
	OCRWorkers  int
	Timeout     time.Duration
}

// New returns a pipeline with default components and pool sizes.
func New() *Pipeline {
	return &Pipeline{
		Parser:      parser.New(),
		Writer:      writer.New(),
		Extractor:   extractor.New(),
		Applier:     redact.New(),
		Verifier:    verify.New(),
		Log:         observability.NopLogger{},
		Tracer:      observability.NopTracer(),
		PageWorkers: runtime.GOMAXPROCS(0),
		OCRWorkers:  2,
	}
}

// Run executes one job over a raw PDF. Only malformed input and the job
// deadline abort the run; OCR loss, single-page edit failures, and
// verification residuals degrade into Result.Diagnostics.
func (p *Pipeline) Run(ctx context.Context, input []byte, opts Options) (*Result, error) {
	log := p.logger()
	tracer := p.Tracer
	if tracer == nil {
		tracer = observability.NopTracer()
	}
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}
	ctx, span := tracer.StartSpan(ctx, "redact.job")
	defer span.Finish()
	start := time.Now()

	catOpts, err := opts.catalogOptions()
	if err != nil {
		return nil, &InputError{Err: err}
	}

	doc, err := p.Parser.Parse(ctx, input)
	if err != nil {
		if jerr := p.jobErr(ctx); jerr != nil {
			return nil, jerr
		}
		span.SetError(err)
		return nil, &InputError{Err: err}
	}
	span.SetTag(observability.MetricPageCount, len(doc.Pages))

	res := &Result{}
	var mu sync.Mutex
	diag := func(d Diagnostic) {
		mu.Lock()
		res.Diagnostics = append(res.Diagnostics, d)
		mu.Unlock()
	}

	frags := p.extractAll(ctx, doc, diag)
	if jerr := p.jobErr(ctx); jerr != nil {
		return nil, jerr
	}

	res.Language = p.resolveLanguage(opts, doc, frags)
	det := &detect.Detector{
		Catalog:          catalog.ForLanguage(res.Language, catOpts...),
		PreserveHeadings: opts.PreserveHeadings,
		Log:              log,
	}
	for _, f := range frags {
		res.Matches = append(res.Matches, det.Detect(f)...)
	}
	for _, m := range res.Matches {
		if !m.Heading {
			res.Redacted = append(res.Redacted, m)
		}
	}
	span.SetTag(observability.MetricMatchCount, len(res.Matches))

	if !opts.ReportOnly && len(res.Redacted) > 0 {
		p.applyAll(ctx, doc, res.Redacted, opts, diag)
		if jerr := p.jobErr(ctx); jerr != nil {
			return nil, jerr
		}
	}

	if opts.Verify && !opts.ReportOnly {
		ver := *p.Verifier
		ver.OCR = p.OCR
		vres, verr := ver.Verify(ctx, doc, res.Redacted, det)
		switch {
		case verr != nil:
			if jerr := p.jobErr(ctx); jerr != nil {
				return nil, jerr
			}
			diag(Diagnostic{Kind: DiagVerification, Err: verr})
		case !vres.Passed:
			res.Verification = &vres
			span.SetTag(observability.MetricVerifyFailures, len(vres.Residual))
			diag(Diagnostic{Kind: DiagVerification, Err: &verify.Error{Residual: vres.Residual}})
		default:
			res.Verification = &vres
		}
	}

	res.Report = report.Build(res.Matches, res.Verification, res.Language, len(doc.Pages))

	wstart := time.Now()
	out, err := p.Writer.Write(doc)
	if err != nil {
		span.SetError(err)
		return nil, err
	}
	res.Output = out
	span.SetTag(observability.MetricWriteTime, time.Since(wstart).Seconds())
	span.SetTag(observability.MetricJobTime, time.Since(start).Seconds())

	log.Info("job complete",
		observability.String("language", res.Language),
		observability.Int("pages", len(doc.Pages)),
		observability.Int("matches", len(res.Matches)),
		observability.Int("diagnostics", len(res.Diagnostics)),
		observability.Float64("seconds", time.Since(start).Seconds()))
	return res, nil
}

// extractAll collects fragments for every page concurrently. OCR calls go
// through their own semaphore so page parallelism never floods the engine.
func (p *Pipeline) extractAll(ctx context.Context, doc *document.Document, diag func(Diagnostic)) [][]extractor.Fragment {
	workers := p.PageWorkers
	if workers < 1 {
		workers = 1
	}
	ocrWorkers := p.OCRWorkers
	if ocrWorkers < 1 {
		ocrWorkers = 1
	}
	pageSem := make(chan struct{}, workers)
	ocrSem := make(chan struct{}, ocrWorkers)

	frags := make([][]extractor.Fragment, len(doc.Pages))
	var wg sync.WaitGroup
	for i := range doc.Pages {
		wg.Add(1)
		go func(idx int, page *document.Page) {
			defer wg.Done()
			pageSem <- struct{}{}
			defer func() { <-pageSem }()
			if ctx.Err() != nil {
				return
			}

			f, err := p.Extractor.Fragments(page)
			if err != nil {
				diag(Diagnostic{Page: page.Index, Kind: DiagPageEdit, Err: err})
				return
			}
			if p.OCR != nil {
				f = append(f, p.ocrPage(ctx, page, ocrSem, diag)...)
			}
			frags[idx] = f
		}(i, doc.Pages[i])
	}
	wg.Wait()
	return frags
}

func (p *Pipeline) ocrPage(ctx context.Context, page *document.Page, sem chan struct{}, diag func(Diagnostic)) []extractor.Fragment {
	placements, err := p.Extractor.Images(page)
	if err != nil {
		diag(Diagnostic{Page: page.Index, Kind: DiagPageEdit, Err: err})
		return nil
	}
	if len(placements) == 0 {
		return nil
	}
	sem <- struct{}{}
	ostart := time.Now()
	frags, err := p.OCR.FragmentsBatch(ctx, placements)
	<-sem
	if err != nil {
		if ctx.Err() != nil {
			return frags
		}
		diag(Diagnostic{Page: page.Index, Kind: DiagOCRUnavailable, Err: err})
	}
	p.logger().Debug("ocr page",
		observability.Int("page", page.Index),
		observability.Int("images", len(placements)),
		observability.Int("words", len(frags)),
		observability.Float64("seconds", time.Since(ostart).Seconds()))
	return frags
}

// applyAll redacts pages concurrently; each worker owns its page object. A
// failed page is recorded and skipped, never aborting the rest.
func (p *Pipeline) applyAll(ctx context.Context, doc *document.Document, matches []detect.Match, opts Options, diag func(Diagnostic)) {
	perPage := map[int][]detect.Match{}
	for _, m := range matches {
		perPage[m.Page] = append(perPage[m.Page], m)
	}
	ropts := redact.Options{Color: opts.color(), UseBlur: opts.UseBlur, CustomMask: opts.CustomMask}

	workers := p.PageWorkers
	if workers < 1 {
		workers = 1
	}
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	for _, page := range doc.Pages {
		ms := perPage[page.Index]
		if len(ms) == 0 {
			continue
		}
		wg.Add(1)
		go func(page *document.Page, ms []detect.Match) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			if ctx.Err() != nil {
				return
			}
			if err := p.Applier.Apply(page, ms, ropts); err != nil {
				diag(Diagnostic{Page: page.Index, Kind: DiagPageEdit, Err: err})
			}
		}(page, ms)
	}
	wg.Wait()
}

// resolveLanguage picks the catalog language: an explicit option wins, then
// the document's /Lang entry, then stopword detection over the extracted
// text. Inconclusive detection lands on English; the shared numeric rules
// apply either way.
func (p *Pipeline) resolveLanguage(opts Options, doc *document.Document, frags [][]extractor.Fragment) string {
	if code, ok := catalog.ResolveLanguage(opts.Language); ok {
		return code
	}
	if opts.Language != "" && opts.Language != "auto" {
		return "en"
	}
	if code, ok := catalog.ResolveLanguage(doc.Lang); ok {
		return code
	}
	var sb strings.Builder
	for _, pf := range frags {
		for _, f := range pf {
			sb.WriteString(f.Text)
			sb.WriteByte(' ')
		}
	}
	return catalog.DetectLanguage(sb.String())
}

func (p *Pipeline) logger() observability.Logger {
	if p.Log == nil {
		return observability.NopLogger{}
	}
	return p.Log
}

func (p *Pipeline) jobErr(ctx context.Context) error {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return &TimeoutError{Limit: p.Timeout}
	case ctx.Err() != nil:
		return ctx.Err()
	}
	return nil
}
