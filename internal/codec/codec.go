package codec

import (
	"fmt"

	"github.com/h2non/bimg"
)

// Codec resizes encoded image bytes to fit within a maxDim × maxDim box,
// preserving aspect ratio and format family.
type Codec interface {
	Resize(data []byte, maxDim int, format Format) ([]byte, error)
}

// VipsCodec implements Codec on top of libvips via bimg.
type VipsCodec struct {
	// JPEGQuality applies to JPEG output only.
	JPEGQuality int
}

// NewVipsCodec returns a VipsCodec with default output quality.
func NewVipsCodec() *VipsCodec {
	return &VipsCodec{JPEGQuality: 85}
}

// Resize bounds the image to maxDim on its longer side and re-encodes it.
func (c *VipsCodec) Resize(data []byte, maxDim int, format Format) ([]byte, error) {
	img := bimg.NewImage(data)

	size, err := img.Size()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	width, height := boundDimensions(size.Width, size.Height, maxDim)

	opts := bimg.Options{
		Width:  width,
		Height: height,
		Type:   bimgType(format),
	}
	if format == JPEG {
		opts.Quality = c.JPEGQuality
	}

	out, err := img.Process(opts)
	if err != nil {
		return nil, fmt.Errorf("resize to %d: %w", maxDim, err)
	}
	return out, nil
}

// boundDimensions scales (width, height) to fit within maxDim × maxDim,
// preserving aspect ratio. Images already within the box are left as-is.
func boundDimensions(width, height, maxDim int) (int, int) {
	if width <= maxDim && height <= maxDim {
		return width, height
	}
	if width > height {
		return maxDim, (height * maxDim) / width
	}
	return (width * maxDim) / height, maxDim
}

func bimgType(format Format) bimg.ImageType {
	if format == JPEG {
		return bimg.JPEG
	}
	return bimg.PNG
}
