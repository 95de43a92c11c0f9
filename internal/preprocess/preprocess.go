// Package preprocess turns uploaded images into model input tensors.
package preprocess

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/phuslu/log"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
	"gorgonia.org/tensor"
)

// ErrPreprocess is returned when an upload cannot be turned into a tensor.
var ErrPreprocess = errors.New("image preprocessing failed")

// MaxPixels bounds the decoded size of an upload. Headers are checked before
// any pixel buffer is allocated.
const MaxPixels = 40_000_000

// Preprocess decodes r and converts it to a [1, H, W, C] float32 tensor for
// a model whose input shape is H×W×C.
func Preprocess(r io.Reader, shape []int) (*tensor.Dense, error) {
	if err := checkShape(shape); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: read upload: %w", ErrPreprocess, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty upload", ErrPreprocess)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: decode: %w", ErrPreprocess, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return nil, fmt.Errorf("%w: image is %dx%d, limit is %d pixels", ErrPreprocess, cfg.Width, cfg.Height, MaxPixels)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: decode: %w", ErrPreprocess, err)
	}
	log.Debug().Str("format", format).Int("width", img.Bounds().Dx()).Int("height", img.Bounds().Dy()).
		Msg("image decoded")

	return Image(img, shape)
}

// Image converts an already decoded image. Pixels are sampled with
// nearest-neighbour interpolation and kept as raw 0-255 values.
func Image(img image.Image, shape []int) (*tensor.Dense, error) {
	if err := checkShape(shape); err != nil {
		return nil, err
	}
	bounds := img.Bounds()
	if bounds.Empty() {
		return nil, fmt.Errorf("%w: image has no pixels", ErrPreprocess)
	}
	switch img.ColorModel() {
	case color.AlphaModel, color.Alpha16Model:
		return nil, fmt.Errorf("%w: image has no colour channels", ErrPreprocess)
	}

	height, width, channels := shape[0], shape[1], shape[2]
	backing := make([]float32, height*width*channels)
	for y := range height {
		srcY := bounds.Min.Y + y*bounds.Dy()/height
		for x := range width {
			srcX := bounds.Min.X + x*bounds.Dx()/width
			px := color.NRGBAModel.Convert(img.At(srcX, srcY)).(color.NRGBA)
			i := (y*width + x) * channels
			backing[i] = float32(px.R)
			backing[i+1] = float32(px.G)
			backing[i+2] = float32(px.B)
		}
	}

	return tensor.New(
		tensor.WithShape(1, height, width, channels),
		tensor.WithBacking(backing),
	), nil
}

func checkShape(shape []int) error {
	if len(shape) != 3 {
		return fmt.Errorf("%w: target shape %v is not H×W×C", ErrPreprocess, shape)
	}
	if shape[0] <= 0 || shape[1] <= 0 {
		return fmt.Errorf("%w: target shape %v has a non-positive edge", ErrPreprocess, shape)
	}
	if shape[2] != 3 {
		return fmt.Errorf("%w: target shape %v needs 3 channels", ErrPreprocess, shape)
	}
	return nil
}
