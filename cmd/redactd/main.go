// Command redactd serves the redaction pipeline over HTTP. Clients upload a
// PDF with form-encoded options and receive the redacted document or a
// structured report.
package main

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
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

type server struct {
	pipeline  *pipeline.Pipeline
	log       *zap.Logger
	maxUpload int64
}

func main() {
	flags := pflag.NewFlagSet("redactd", pflag.ContinueOnError)
	flags.String("addr", ":8080", "listen address")
	flags.Int64("max-upload", 32<<20, "maximum upload size in bytes")
	flags.Duration("timeout", 2*time.Minute, "per-job timeout")
	flags.Bool("ocr", false, "run OCR over embedded images")
	flags.StringSlice("ocr-languages", []string{"eng"}, "tesseract language codes")
	flags.Bool("verbose", false, "debug logging")
	if err := flags.Parse(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "redactd:", err)
		os.Exit(1)
	}

	v := viper.New()
	if err := v.BindPFlags(flags); err != nil {
		fmt.Fprintln(os.Stderr, "redactd:", err)
		os.Exit(1)
	}
	v.SetEnvPrefix("redactd")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	logger, err := buildLogger(v.GetBool("verbose"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "redactd:", err)
		os.Exit(1)
	}
	defer logger.Sync()

	p := pipeline.New()
	p.Log = observability.Zap(logger)
	p.Timeout = v.GetDuration("timeout")
	if v.GetBool("ocr") {
		adapter := ocr.NewAdapter(tesseract.New(), p.Log)
		adapter.Languages = v.GetStringSlice("ocr-languages")
		p.OCR = adapter
	}

	s := &server{pipeline: p, log: logger, maxUpload: v.GetInt64("max-upload")}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/v1/redact", s.handleRedact).Methods(http.MethodPost)
	r.HandleFunc("/v1/report", s.handleReport).Methods(http.MethodPost)
	r.Use(s.logMiddleware)

	addr := v.GetString("addr")
	logger.Info("listening", zap.String("addr", addr))
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  v.GetDuration("timeout") + 30*time.Second,
		WriteTimeout: v.GetDuration("timeout") + 30*time.Second,
	}
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func buildLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func (s *server) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("duration", time.Since(start)))
	})
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, "ok\n")
}

func (s *server) handleRedact(w http.ResponseWriter, r *http.Request) {
	s.runJob(w, r, false)
}

func (s *server) handleReport(w http.ResponseWriter, r *http.Request) {
	s.runJob(w, r, true)
}

func (s *server) runJob(w http.ResponseWriter, r *http.Request, reportOnly bool) {
	data, opts, err := s.readUpload(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	opts.ReportOnly = reportOnly

	res, err := s.pipeline.Run(r.Context(), data, opts)
	if err != nil {
		var ie *pipeline.InputError
		var te *pipeline.TimeoutError
		switch {
		case errors.As(err, &ie):
			http.Error(w, ie.Error(), http.StatusUnprocessableEntity)
		case errors.As(err, &te):
			http.Error(w, te.Error(), http.StatusGatewayTimeout)
		default:
			s.log.Error("job failed", zap.Error(err))
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("X-Redactor-Matches", strconv.Itoa(len(res.Matches)))
	w.Header().Set("X-Redactor-Redacted", strconv.Itoa(len(res.Redacted)))
	w.Header().Set("X-Redactor-Language", res.Language)
	if res.Degraded() {
		w.Header().Set("X-Redactor-Degraded", strconv.Itoa(len(res.Diagnostics)))
	}
	if res.Verification != nil {
		w.Header().Set("X-Redactor-Verified", strconv.FormatBool(res.Verification.Passed))
	}

	if reportOnly {
		body, err := res.Report.JSON()
		if err != nil {
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(body)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="redacted.pdf"`)
	w.Write(res.Output)
}

// readUpload parses the multipart body: the "file" part plus option fields
// mirroring the CLI flags.
func (s *server) readUpload(r *http.Request) ([]byte, pipeline.Options, error) {
	var opts pipeline.Options
	r.Body = http.MaxBytesReader(nil, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(s.maxUpload); err != nil {
		return nil, opts, fmt.Errorf("parse upload: %w", err)
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		return nil, opts, fmt.Errorf("missing file part: %w", err)
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		return nil, opts, fmt.Errorf("read upload: %w", err)
	}

	opts.Language = r.FormValue("language")
	opts.CustomMask = r.FormValue("mask")
	opts.UseBlur = r.FormValue("blur") == "true"
	opts.PreserveHeadings = r.FormValue("preserve_headings") == "true"
	opts.Verify = r.FormValue("verify") != "false"
	opts.CustomText = r.Form["custom_text"]
	opts.CustomPatterns = r.Form["custom_pattern"]

	color, err := redact.ParseColor(r.FormValue("color"))
	if err != nil {
		return nil, opts, err
	}
	opts.Color = color

	for _, c := range r.Form["categories"] {
		for _, name := range strings.Split(c, ",") {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			cat, err := catalog.Parse(name)
			if err != nil {
				return nil, opts, err
			}
			opts.Categories = append(opts.Categories, cat)
		}
	}
	return data, opts, nil
}
