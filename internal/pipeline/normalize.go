// Package pipeline turns raw uploaded bytes into the canonical stored
// artifact: upright per EXIF orientation, bounded in size, re-encoded
// as JPEG at a fixed quality.
package pipeline

import (
	"bytes"
	"image"
	"image/jpeg"
	_ "image/png"
	"log/slog"

	"github.com/disintegration/imaging"
	"github.com/nfnt/resize"
	"github.com/rwcarlsen/goexif/exif"
)

// Pipeline normalizes uploaded images.
type Pipeline struct {
	quality  int
	maxWidth int
	log      *slog.Logger
}

func New(quality, maxWidth int, log *slog.Logger) *Pipeline {
	return &Pipeline{quality: quality, maxWidth: maxWidth, log: log}
}

// Normalize re-renders the image upright and re-encodes it. If the
// bytes cannot be decoded they are returned unchanged: an odd or
// corrupt image is still better shown un-rotated than dropped.
func (p *Pipeline) Normalize(raw []byte) []byte {
	img, format, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		p.log.Warn("could not decode upload, storing raw bytes", "error", err)
		return raw
	}

	img = applyOrientation(img, readOrientation(raw))

	bound := uint(p.maxWidth)
	img = resize.Thumbnail(bound, bound, img, resize.Lanczos3)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: p.quality}); err != nil {
		p.log.Warn("could not re-encode upload, storing raw bytes", "format", format, "error", err)
		return raw
	}
	return buf.Bytes()
}

// readOrientation extracts the EXIF orientation tag, defaulting to 1
// (upright) when there is no usable EXIF block.
func readOrientation(raw []byte) int {
	x, err := exif.Decode(bytes.NewReader(raw))
	if err != nil {
		return 1
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return 1
	}
	o, err := tag.Int(0)
	if err != nil || o < 1 || o > 8 {
		return 1
	}
	return o
}

// applyOrientation undoes the camera rotation recorded in EXIF
// orientation values 2 through 8.
func applyOrientation(img image.Image, orientation int) image.Image {
	switch orientation {
	case 2:
		return imaging.FlipH(img)
	case 3:
		return imaging.Rotate180(img)
	case 4:
		return imaging.FlipV(img)
	case 5:
		return imaging.Transpose(img)
	case 6:
		return imaging.Rotate270(img)
	case 7:
		return imaging.Transverse(img)
	case 8:
		return imaging.Rotate90(img)
	}
	return img
}
