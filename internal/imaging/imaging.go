// Package imaging validates and downscales uploaded entity images.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"

	"golang.org/x/image/draw"

	"github.com/erazemk/tracky/internal/model"
)

// MaxDimension is the maximum width or height for stored images.
const MaxDimension = 1024

// JPEGQuality is the compression quality for JPEG output.
const JPEGQuality = 85

// formats maps accepted sniffed MIME types to their file extension.
var formats = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
}

// Image is a processed upload ready for blob storage.
type Image struct {
	Data []byte
	MIME string
	Ext  string
}

// Process reads image data, validates the format by sniffing bytes,
// downscales if larger than MaxDimension and re-encodes it in the format it
// arrived in. Unsupported or corrupt input is model.ErrInvalidArgument.
func Process(r io.Reader) (*Image, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading image data: %w", err)
	}

	// Client headers are not trusted.
	detected := http.DetectContentType(data)
	ext, ok := formats[detected]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported image format %s (only JPEG and PNG accepted)", model.ErrInvalidArgument, detected)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: decoding image: %w", model.ErrInvalidArgument, err)
	}

	scaled, resized := downscale(img, MaxDimension)
	if !resized {
		return &Image{Data: data, MIME: detected, Ext: ext}, nil
	}

	var buf bytes.Buffer
	switch detected {
	case "image/png":
		err = png.Encode(&buf, scaled)
	default:
		err = jpeg.Encode(&buf, scaled, &jpeg.Options{Quality: JPEGQuality})
	}
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", ext, err)
	}

	return &Image{Data: buf.Bytes(), MIME: detected, Ext: ext}, nil
}

// downscale resizes the image so neither dimension exceeds maxDim using
// Catmull-Rom interpolation. It reports whether a resize happened.
func downscale(img image.Image, maxDim int) (image.Image, bool) {
	bounds := img.Bounds()
	w := bounds.Dx()
	h := bounds.Dy()

	if w <= maxDim && h <= maxDim {
		return img, false
	}

	newW, newH := w, h
	if w > h {
		newW = maxDim
		newH = int(float64(h) * float64(maxDim) / float64(w))
	} else {
		newH = maxDim
		newW = int(float64(w) * float64(maxDim) / float64(h))
	}

	if newW < 1 {
		newW = 1
	}
	if newH < 1 {
		newH = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
	return dst, true
}
