package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/nfnt/resize"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Options controls the output tensor. Zero values mean 224x224 NHWC with
// the default pixel limit.
type Options struct {
	Size      int
	Layout    Layout
	MaxPixels int64
}

func (o Options) withDefaults() Options {
	if o.Size <= 0 {
		o.Size = DefaultSize
	}
	if o.Layout == "" {
		o.Layout = LayoutNHWC
	}
	if o.MaxPixels <= 0 {
		o.MaxPixels = DefaultMaxPixels
	}
	return o
}

// Preprocess decodes raw image bytes and converts them to the classifier's
// input format: RGB, bilinear resize to Size x Size, intensities / 255,
// leading batch dimension of one.
func Preprocess(raw []byte, opts Options) (*Tensor, error) {
	opts = opts.withDefaults()

	cfg, format, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return nil, &DecodeError{Err: err}
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, &UnsupportedFormatError{Format: format, Reason: "image has no pixels"}
	}
	if int64(cfg.Width)*int64(cfg.Height) > opts.MaxPixels {
		return nil, &UnsupportedFormatError{
			Format: format,
			Reason: fmt.Sprintf("%dx%d exceeds the %d pixel limit", cfg.Width, cfg.Height, opts.MaxPixels),
		}
	}

	img, format, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, &DecodeError{Err: err}
	}

	rgb, err := toRGB(img, format)
	if err != nil {
		return nil, err
	}

	target := uint(opts.Size)
	resized := resize.Resize(target, target, rgb, resize.Bilinear)

	t := newTensor(opts.Size, opts.Layout)
	fill(t, resized, opts.Size)
	return t, nil
}

// toRGB copies img into an opaque RGBA image, dropping alpha without
// premultiplying and expanding grayscale to three channels.
func toRGB(img image.Image, format string) (*image.RGBA, error) {
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, &UnsupportedFormatError{Format: format, Reason: "image has no pixels"}
	}
	if p, ok := img.(*image.Paletted); ok {
		if err := checkPalette(p, format); err != nil {
			return nil, err
		}
	}

	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	switch src := img.(type) {
	case *image.YCbCr:
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				yi := src.YOffset(x, y)
				ci := src.COffset(x, y)
				r, g, bl := color.YCbCrToRGB(src.Y[yi], src.Cb[ci], src.Cr[ci])
				setOpaque(dst, x-b.Min.X, y-b.Min.Y, r, g, bl)
			}
		}
	default:
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
				setOpaque(dst, x-b.Min.X, y-b.Min.Y, c.R, c.G, c.B)
			}
		}
	}
	return dst, nil
}

func checkPalette(p *image.Paletted, format string) error {
	if len(p.Palette) == 0 {
		return &UnsupportedFormatError{Format: format, Reason: "empty palette"}
	}
	for _, idx := range p.Pix {
		if int(idx) >= len(p.Palette) || p.Palette[idx] == nil {
			return &UnsupportedFormatError{Format: format, Reason: "palette index out of range"}
		}
	}
	return nil
}

func setOpaque(dst *image.RGBA, x, y int, r, g, b uint8) {
	i := dst.PixOffset(x, y)
	dst.Pix[i+0] = r
	dst.Pix[i+1] = g
	dst.Pix[i+2] = b
	dst.Pix[i+3] = 0xff
}

func fill(t *Tensor, img image.Image, size int) {
	b := img.Bounds()
	plane := size * size
	rgba, fast := img.(*image.RGBA)

	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			var r, g, bl uint8
			if fast {
				i := rgba.PixOffset(b.Min.X+x, b.Min.Y+y)
				r, g, bl = rgba.Pix[i], rgba.Pix[i+1], rgba.Pix[i+2]
			} else {
				c := color.RGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.RGBA)
				r, g, bl = c.R, c.G, c.B
			}

			rNorm := float32(r) / 255.0
			gNorm := float32(g) / 255.0
			bNorm := float32(bl) / 255.0

			pixelIndex := y*size + x
			if t.Layout == LayoutNCHW {
				t.data[pixelIndex] = rNorm
				t.data[plane+pixelIndex] = gNorm
				t.data[2*plane+pixelIndex] = bNorm
				continue
			}
			t.data[pixelIndex*Channels+0] = rNorm
			t.data[pixelIndex*Channels+1] = gNorm
			t.data[pixelIndex*Channels+2] = bNorm
		}
	}
}
