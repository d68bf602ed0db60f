package extractor

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"

	"github.com/moduluz/pdf-redactor/document"
)

// DecodeImage converts an image XObject's sample data into a Go image. Raw
// DCT data (per Filters) goes through the JPEG decoder; otherwise the sample
// layout is inferred from size and color space.
func DecodeImage(xo *document.XObject) (image.Image, error) {
	if xo == nil || len(xo.Data) == 0 {
		return nil, errors.New("image data is empty")
	}
	for _, f := range xo.Filters {
		if f == "DCTDecode" || f == "DCT" {
			img, err := jpeg.Decode(bytes.NewReader(xo.Data))
			if err != nil {
				return nil, fmt.Errorf("jpeg: %w", err)
			}
			return img, nil
		}
	}

	pixels := xo.Width * xo.Height
	if pixels == 0 {
		return nil, errors.New("invalid image dimensions")
	}
	rect := image.Rect(0, 0, xo.Width, xo.Height)

	switch len(xo.Data) {
	case pixels * 4:
		if xo.ColorSpace == "DeviceCMYK" {
			return &image.CMYK{Pix: xo.Data, Stride: xo.Width * 4, Rect: rect}, nil
		}
		return &image.RGBA{Pix: xo.Data, Stride: xo.Width * 4, Rect: rect}, nil
	case pixels * 3:
		return &rgbImage{Pix: xo.Data, Stride: xo.Width * 3, Rect: rect}, nil
	case pixels:
		return &image.Gray{Pix: xo.Data, Stride: xo.Width, Rect: rect}, nil
	}
	return nil, fmt.Errorf("unsupported sample layout: %d bytes for %dx%d", len(xo.Data), xo.Width, xo.Height)
}

// EncodeImage writes img back into the XObject's sample data, keeping the
// original codec: DCT-filtered images are re-encoded as JPEG, everything else
// as raw samples in the XObject's existing layout.
func EncodeImage(xo *document.XObject, img image.Image) error {
	b := img.Bounds()
	if b.Dx() != xo.Width || b.Dy() != xo.Height {
		return fmt.Errorf("image is %dx%d, xobject is %dx%d", b.Dx(), b.Dy(), xo.Width, xo.Height)
	}
	for _, f := range xo.Filters {
		if f == "DCTDecode" || f == "DCT" {
			var buf bytes.Buffer
			if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
				return fmt.Errorf("jpeg: %w", err)
			}
			xo.Data = buf.Bytes()
			xo.Dirty = true
			return nil
		}
	}

	pixels := xo.Width * xo.Height
	var out []byte
	switch len(xo.Data) {
	case pixels * 4:
		out = make([]byte, 0, pixels*4)
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				if xo.ColorSpace == "DeviceCMYK" {
					r, g, bb, _ := img.At(x, y).RGBA()
					c, m, ye, k := color.RGBToCMYK(uint8(r>>8), uint8(g>>8), uint8(bb>>8))
					out = append(out, c, m, ye, k)
				} else {
					r, g, bb, a := img.At(x, y).RGBA()
					out = append(out, uint8(r>>8), uint8(g>>8), uint8(bb>>8), uint8(a>>8))
				}
			}
		}
	case pixels * 3:
		out = make([]byte, 0, pixels*3)
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				r, g, bb, _ := img.At(x, y).RGBA()
				out = append(out, uint8(r>>8), uint8(g>>8), uint8(bb>>8))
			}
		}
	case pixels:
		out = make([]byte, 0, pixels)
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				out = append(out, color.GrayModel.Convert(img.At(x, y)).(color.Gray).Y)
			}
		}
	default:
		return fmt.Errorf("unsupported sample layout: %d bytes for %dx%d", len(xo.Data), xo.Width, xo.Height)
	}
	xo.Data = out
	xo.Dirty = true
	return nil
}

// ToPNG renders the XObject for OCR input.
func ToPNG(xo *document.XObject) ([]byte, error) {
	img, err := DecodeImage(xo)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// rgbImage adapts packed 24-bit RGB samples to image.Image.
type rgbImage struct {
	Pix    []byte
	Stride int
	Rect   image.Rectangle
}

func (p *rgbImage) ColorModel() color.Model { return color.RGBAModel }
func (p *rgbImage) Bounds() image.Rectangle { return p.Rect }
func (p *rgbImage) At(x, y int) color.Color {
	if !(image.Point{X: x, Y: y}.In(p.Rect)) {
		return color.RGBA{}
	}
	i := (y-p.Rect.Min.Y)*p.Stride + (x-p.Rect.Min.X)*3
	return color.RGBA{R: p.Pix[i], G: p.Pix[i+1], B: p.Pix[i+2], A: 255}
}
