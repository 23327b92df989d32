package imaging

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"
)

// Channels is the number of interleaved values per pixel (R, G, B).
const Channels = 3

// ErrInvalidPixels reports a pixel array whose dimensions and data disagree.
var ErrInvalidPixels = errors.New("invalid pixel array")

// Pixels is a row-major RGB image with nominal channel values in [0, 255].
type Pixels struct {
	Width  int
	Height int
	Data   []float32
}

// NewPixels allocates a zeroed array for the given dimensions.
func NewPixels(width, height int) *Pixels {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	return &Pixels{Width: width, Height: height, Data: make([]float32, width*height*Channels)}
}

// Validate checks that Data holds exactly Width*Height*Channels values.
func (p *Pixels) Validate() error {
	if p == nil {
		return fmt.Errorf("%w: nil", ErrInvalidPixels)
	}
	if p.Width <= 0 || p.Height <= 0 {
		return fmt.Errorf("%w: dimensions %dx%d", ErrInvalidPixels, p.Width, p.Height)
	}
	if want := p.Width * p.Height * Channels; len(p.Data) != want {
		return fmt.Errorf("%w: have %d values, want %d", ErrInvalidPixels, len(p.Data), want)
	}
	return nil
}

// At returns the channel values at (x, y).
func (p *Pixels) At(x, y int) (r, g, b float32) {
	i := (y*p.Width + x) * Channels
	return p.Data[i], p.Data[i+1], p.Data[i+2]
}

// Set stores the channel values at (x, y).
func (p *Pixels) Set(x, y int, r, g, b float32) {
	i := (y*p.Width + x) * Channels
	p.Data[i], p.Data[i+1], p.Data[i+2] = r, g, b
}

// Clone returns a deep copy.
func (p *Pixels) Clone() *Pixels {
	if p == nil {
		return nil
	}
	data := make([]float32, len(p.Data))
	copy(data, p.Data)
	return &Pixels{Width: p.Width, Height: p.Height, Data: data}
}

// FromImage converts any image to an RGB pixel array, discarding alpha.
func FromImage(img image.Image) *Pixels {
	bounds := img.Bounds()
	out := NewPixels(bounds.Dx(), bounds.Dy())
	for y := 0; y < out.Height; y++ {
		for x := 0; x < out.Width; x++ {
			r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			out.Set(x, y, float32(r>>8), float32(g>>8), float32(b>>8))
		}
	}
	return out
}

// ToImage converts the array to an opaque RGBA image, clamping and rounding
// every channel to the 8-bit range.
func (p *Pixels) ToImage() (*image.RGBA, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	img := image.NewRGBA(image.Rect(0, 0, p.Width, p.Height))
	for y := 0; y < p.Height; y++ {
		for x := 0; x < p.Width; x++ {
			r, g, b := p.At(x, y)
			img.SetRGBA(x, y, color.RGBA{R: toByte(r), G: toByte(g), B: toByte(b), A: 0xff})
		}
	}
	return img, nil
}

func toByte(v float32) uint8 {
	f := float64(v)
	switch {
	case math.IsNaN(f), f <= 0:
		return 0
	case f >= 255:
		return 255
	default:
		return uint8(math.Round(f))
	}
}
