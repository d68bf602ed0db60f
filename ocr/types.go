// Package ocr plugs OCR engines into the redaction pipeline. Engines work in
// pixel space; the Adapter maps recognized words into page space through the
// transform of the image placement they came from, so downstream detection
// treats OCR text and native text identically.
package ocr

import "context"

// ImageFormat identifies the content type of an OCR input image.
type ImageFormat string

const (
	ImageFormatPNG  ImageFormat = "image/png"
	ImageFormatJPEG ImageFormat = "image/jpeg"
)

// Region is a rectangle in pixel coordinates, origin in the upper-left
// corner of the image.
type Region struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// IsEmpty reports whether the region has non-positive dimensions.
func (r Region) IsEmpty() bool { return r.Width <= 0 || r.Height <= 0 }

// Input is one image submitted for recognition.
type Input struct {
	// ID is echoed back in the Result for correlation.
	ID string
	// Image is the encoded payload in the format given by Format.
	Image []byte
	Format ImageFormat
	// PageIndex is the zero-based page the image was painted on.
	PageIndex int
	// Width and Height are the pixel dimensions of the payload.
	Width  int
	Height int
	// DPI hints the effective resolution; zero means unknown.
	DPI int
	// Languages lists tessdata-style language codes ("eng", "deu", "hin").
	Languages []string
	// Variables passes engine-specific knobs (e.g. page segmentation mode)
	// without widening the API.
	Variables map[string]string
}

// TextWord is one recognized token with its pixel-space box and a
// confidence in [0, 1].
type TextWord struct {
	Text       string
	Bounds     Region
	Confidence float64
}

// Result is the recognition output for one input image.
type Result struct {
	InputID   string
	PlainText string
	Words     []TextWord
	Language  string
}

// Engine is the provider contract: one image in, one result out.
type Engine interface {
	Name() string
	Recognize(ctx context.Context, input Input) (Result, error)
}

// BatchEngine recognizes several images in one call so providers can
// amortize client setup.
type BatchEngine interface {
	Engine
	RecognizeBatch(ctx context.Context, inputs []Input) ([]Result, error)
}
