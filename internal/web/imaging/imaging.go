// Package imaging turns an uploaded picture into the 28×28 grayscale
// intensities the model expects.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	"image/png"
	"io"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/dmitrijs2005/mnistlab/internal/mnist"
)

// MaxUploadBytes caps an uploaded file.
const MaxUploadBytes = 4 << 20

// padColor is the background used around an image whose aspect ratio is not square.
const padColor = 255

var ErrUnsupportedImage = errors.New("unsupported or corrupt image")

// Preprocess decodes png, jpeg, bmp or webp data, converts it to 8-bit
// grayscale, optionally inverts it, then scales it to fit 28×28 keeping the
// aspect ratio, centring it on a white canvas. The result holds 784 values in [0,255].
func Preprocess(r io.Reader, invert bool) ([]float64, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxUploadBytes+1))
	if err != nil {
		return nil, err
	}
	if len(data) > MaxUploadBytes {
		return nil, fmt.Errorf("%w: larger than %d bytes", ErrUnsupportedImage, MaxUploadBytes)
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
	}
	b := src.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, fmt.Errorf("%w: empty image", ErrUnsupportedImage)
	}

	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(gray, gray.Bounds(), src, b.Min, draw.Src)
	if invert {
		for i, v := range gray.Pix {
			gray.Pix[i] = 255 - v
		}
	}

	canvas := image.NewGray(image.Rect(0, 0, mnist.Cols, mnist.Rows))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(color.Gray{Y: padColor}), image.Point{}, draw.Src)
	draw.CatmullRom.Scale(canvas, fitRect(b.Dx(), b.Dy(), mnist.Cols, mnist.Rows), gray, gray.Bounds(), draw.Src, nil)

	out := make([]float64, mnist.Pixels)
	for i, v := range canvas.Pix {
		out[i] = float64(v)
	}
	return out, nil
}

// fitRect returns the largest w×h-proportioned rectangle centred in a dw×dh box.
func fitRect(w, h, dw, dh int) image.Rectangle {
	sw, sh := dw, dh
	if w*dh > h*dw {
		sh = max(1, (h*dw+w/2)/w)
	} else {
		sw = max(1, (w*dh+h/2)/h)
	}
	x0 := (dw - sw) / 2
	y0 := (dh - sh) / 2
	return image.Rect(x0, y0, x0+sw, y0+sh)
}

// EncodePNG renders [0,1] pixels as an 8-bit grayscale PNG.
func EncodePNG(w io.Writer, pixels []float32, rows, cols int) error {
	if rows <= 0 || cols <= 0 || len(pixels) != rows*cols {
		return fmt.Errorf("pixel count %d does not match %dx%d", len(pixels), rows, cols)
	}
	img := image.NewGray(image.Rect(0, 0, cols, rows))
	copy(img.Pix, mnist.ToGray8(pixels))
	return png.Encode(w, img)
}
