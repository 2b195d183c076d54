package imaging

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/mnistlab/internal/mnist"
)

func solidPNG(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestPreprocess_SquareFillsCanvas(t *testing.T) {
	data := solidPNG(t, 10, 10, color.Black)

	px, err := Preprocess(bytes.NewReader(data), false)
	require.NoError(t, err)
	require.Len(t, px, mnist.Pixels)
	for i, v := range px {
		require.InDelta(t, 0, v, 1, "pixel %d", i)
	}

	inv, err := Preprocess(bytes.NewReader(data), true)
	require.NoError(t, err)
	for i, v := range inv {
		require.InDelta(t, 255, v, 1, "pixel %d", i)
	}
}

func TestPreprocess_WideImageIsPaddedWhite(t *testing.T) {
	data := solidPNG(t, 56, 28, color.Black)

	px, err := Preprocess(bytes.NewReader(data), false)
	require.NoError(t, err)

	at := func(row, col int) float64 { return px[row*mnist.Cols+col] }
	assert.Equal(t, 255.0, at(0, 14))
	assert.Equal(t, 255.0, at(6, 0))
	assert.InDelta(t, 0, at(14, 14), 1)
	assert.Equal(t, 255.0, at(27, 27))
}

func TestPreprocess_JPEG(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 28, 28))
	for i := range img.Pix {
		img.Pix[i] = 200
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 100}))

	px, err := Preprocess(&buf, false)
	require.NoError(t, err)
	assert.InDelta(t, 200, px[400], 3)
}

func TestPreprocess_Rejects(t *testing.T) {
	_, err := Preprocess(strings.NewReader("not an image"), false)
	require.ErrorIs(t, err, ErrUnsupportedImage)

	big := bytes.Repeat([]byte{0}, MaxUploadBytes+1)
	_, err = Preprocess(bytes.NewReader(big), false)
	require.ErrorIs(t, err, ErrUnsupportedImage)
}

func TestFitRect(t *testing.T) {
	assert.Equal(t, image.Rect(0, 0, 28, 28), fitRect(5, 5, 28, 28))
	assert.Equal(t, image.Rect(0, 7, 28, 21), fitRect(56, 28, 28, 28))
	assert.Equal(t, image.Rect(7, 0, 21, 28), fitRect(28, 56, 28, 28))
	assert.Equal(t, 1, fitRect(1000, 1, 28, 28).Dy())
}

func TestEncodePNG(t *testing.T) {
	pixels := make([]float32, mnist.Pixels)
	pixels[0] = 1
	pixels[29] = 0.5

	var buf bytes.Buffer
	require.NoError(t, EncodePNG(&buf, pixels, mnist.Rows, mnist.Cols))

	img, err := png.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 28, 28), img.Bounds())

	g := color.GrayModel.Convert(img.At(0, 0)).(color.Gray)
	assert.Equal(t, uint8(255), g.Y)
	g = color.GrayModel.Convert(img.At(1, 1)).(color.Gray)
	assert.Equal(t, uint8(127), g.Y)

	require.Error(t, EncodePNG(&buf, pixels[:10], mnist.Rows, mnist.Cols))
}
