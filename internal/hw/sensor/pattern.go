package sensor

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	_ "image/png"
	"os"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
)

// Colour bars, left to right: white, yellow, cyan, green, magenta, red,
// blue, black.
var colorBars = []color.RGBA{
	{235, 235, 235, 255},
	{235, 235, 16, 255},
	{16, 235, 235, 255},
	{16, 235, 16, 255},
	{235, 16, 235, 255},
	{235, 16, 16, 255},
	{16, 16, 235, 255},
	{16, 16, 16, 255},
}

// LoadScene decodes a PNG, JPEG or BMP file used as the emulated
// sensor's view.
func LoadScene(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open scene: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode scene %s: %w", path, err)
	}
	return img, nil
}

// scaleScene resamples img to exactly width x height.
func scaleScene(img image.Image, width, height int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst
}

// renderBars draws the colour bars scrolled by shift pixels into dst.
func renderBars(dst *image.RGBA, shift int) {
	b := dst.Bounds()
	w := b.Dx()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			bar := ((x + shift) % w) * len(colorBars) / w
			dst.SetRGBA(x, y, colorBars[bar])
		}
	}
}

// jpegQuality maps the sensor scale (0 best, 63 worst) onto image/jpeg's
// 1-100 scale.
func jpegQuality(q int) int {
	return 100 - (q*99+31)/63
}

// encode writes img into b using the requested pixel format.
func encode(b *Buffer, img *image.RGBA, f PixelFormat, quality int) error {
	switch f {
	case FormatJPEG:
		return jpeg.Encode(b, img, &jpeg.Options{Quality: jpegQuality(quality)})
	case FormatGrayscale:
		return encodePixels(b, img, 1, func(c color.RGBA, out []byte) {
			out[0] = color.GrayModel.Convert(c).(color.Gray).Y
		})
	case FormatRAW:
		return encodePixels(b, img, 3, func(c color.RGBA, out []byte) {
			out[0], out[1], out[2] = c.R, c.G, c.B
		})
	case FormatRGB565:
		return encodePixels(b, img, 2, func(c color.RGBA, out []byte) {
			v := uint16(c.R>>3)<<11 | uint16(c.G>>2)<<5 | uint16(c.B>>3)
			out[0], out[1] = byte(v>>8), byte(v)
		})
	case FormatYUV422:
		return encodeYUYV(b, img)
	default:
		return fmt.Errorf("sensor: unsupported pixel format %v", f)
	}
}

func encodePixels(b *Buffer, img *image.RGBA, bpp int, px func(color.RGBA, []byte)) error {
	bounds := img.Bounds()
	n := bounds.Dx() * bounds.Dy() * bpp
	if n > cap(b.Data) {
		return ErrSlotOverflow
	}
	b.Data = b.Data[:n]
	i := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			px(img.RGBAAt(x, y), b.Data[i:i+bpp])
			i += bpp
		}
	}
	return nil
}

// encodeYUYV packs two pixels into Y0 U Y1 V, averaging chroma.
func encodeYUYV(b *Buffer, img *image.RGBA) error {
	bounds := img.Bounds()
	n := bounds.Dx() * bounds.Dy() * 2
	if n > cap(b.Data) {
		return ErrSlotOverflow
	}
	b.Data = b.Data[:n]
	i := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x += 2 {
			c0 := img.RGBAAt(x, y)
			c1 := c0
			if x+1 < bounds.Max.X {
				c1 = img.RGBAAt(x+1, y)
			}
			y0, u0, v0 := color.RGBToYCbCr(c0.R, c0.G, c0.B)
			y1, u1, v1 := color.RGBToYCbCr(c1.R, c1.G, c1.B)
			b.Data[i] = y0
			b.Data[i+1] = byte((int(u0) + int(u1)) / 2)
			b.Data[i+2] = y1
			b.Data[i+3] = byte((int(v0) + int(v1)) / 2)
			i += 4
		}
	}
	return nil
}
