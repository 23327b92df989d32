package imaging

import (
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"path/filepath"
	"strings"
)

const (
	FormatJPEG = "jpeg"
	FormatPNG  = "png"

	DefaultJPEGQuality = 95
)

// Decode reads an encoded image and returns its pixels and codec name.
func Decode(r io.Reader) (*Pixels, string, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, "", fmt.Errorf("decode image: %w", err)
	}
	return FromImage(img), format, nil
}

// Encode writes pixels in the given format. quality applies to JPEG only;
// values outside 1..100 fall back to DefaultJPEGQuality.
func Encode(w io.Writer, p *Pixels, format string, quality int) error {
	img, err := p.ToImage()
	if err != nil {
		return err
	}
	switch strings.ToLower(strings.TrimSpace(format)) {
	case FormatJPEG, "jpg", "":
		if quality < 1 || quality > 100 {
			quality = DefaultJPEGQuality
		}
		if err := jpeg.Encode(w, img, &jpeg.Options{Quality: quality}); err != nil {
			return fmt.Errorf("encode jpeg: %w", err)
		}
	case FormatPNG:
		if err := png.Encode(w, img); err != nil {
			return fmt.Errorf("encode png: %w", err)
		}
	default:
		return fmt.Errorf("encode image: unsupported format %q", format)
	}
	return nil
}

// FormatForName picks the output codec from a filename extension. Names
// without a recognised extension are written as JPEG.
func FormatForName(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png":
		return FormatPNG
	default:
		return FormatJPEG
	}
}
