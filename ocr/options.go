package ocr

import "strconv"

// InputOption mutates an OCR input built from an image placement.
type InputOption func(*Input)

// WithLanguages sets language hints on the OCR input.
func WithLanguages(langs ...string) InputOption {
	return func(in *Input) { in.Languages = append([]string(nil), langs...) }
}

// WithDPI overrides the DPI value on the OCR input.
func WithDPI(dpi int) InputOption {
	return func(in *Input) { in.DPI = dpi }
}

// WithVariable sets one engine-specific variable.
func WithVariable(key, value string) InputOption {
	return func(in *Input) {
		if in.Variables == nil {
			in.Variables = make(map[string]string)
		}
		in.Variables[key] = value
	}
}

// WithTesseractPSM sets Tesseract's page segmentation mode.
func WithTesseractPSM(mode int) InputOption {
	return WithVariable("tessedit_pageseg_mode", strconv.Itoa(mode))
}

// WithTesseractWhitelist restricts recognition to the given characters.
func WithTesseractWhitelist(chars string) InputOption {
	return WithVariable("tessedit_char_whitelist", chars)
}
