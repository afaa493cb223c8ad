// Package imaging prepares debtor photos for inline storage.
//
// Photos are stored as base64 data URLs inside the debtor document, so they
// are downscaled and recompressed until they fit the document size limit.
package imaging

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"io"

	"golang.org/x/image/draw"
)

const (
	// MaxWidth is the widest a stored photo may be; wider inputs are
	// downscaled keeping aspect ratio.
	MaxWidth = 400
	// MaxEncodedBytes caps the base64 data URL so the debtor document stays
	// well under backend document limits.
	MaxEncodedBytes = 900_000

	startQuality = 40
	minQuality   = 5
)

var ErrPhotoTooLarge = errors.New("photo cannot be compressed under the size limit")

// EncodePhoto reads one JPEG or PNG image and returns it as a JPEG data URL
// no larger than MaxEncodedBytes.
func EncodePhoto(r io.Reader) (string, error) {
	src, _, err := image.Decode(r)
	if err != nil {
		return "", fmt.Errorf("decode photo: %w", err)
	}
	src = downscale(src)

	var buf bytes.Buffer
	for quality := startQuality; quality >= minQuality; quality -= 5 {
		buf.Reset()
		if err := jpeg.Encode(&buf, src, &jpeg.Options{Quality: quality}); err != nil {
			return "", fmt.Errorf("encode photo: %w", err)
		}
		url := dataURL(buf.Bytes())
		if len(url) <= MaxEncodedBytes {
			return url, nil
		}
	}
	return "", ErrPhotoTooLarge
}

func downscale(src image.Image) image.Image {
	b := src.Bounds()
	if b.Dx() <= MaxWidth {
		return src
	}
	h := b.Dy() * MaxWidth / b.Dx()
	if h < 1 {
		h = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, MaxWidth, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	return dst
}

func dataURL(jpegBytes []byte) string {
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(jpegBytes)
}
