package imagecache

import (
	"fmt"
	"image"

	"github.com/bbrks/go-blurhash"
	"github.com/disintegration/imaging"
)

// blurHashSize is the thumbnail edge used for hashing; placeholders need no detail.
const blurHashSize = 64

// ComputeBlurHash returns a 4x3 component BlurHash of img.
func ComputeBlurHash(img image.Image) (string, error) {
	thumb := img
	if b := img.Bounds(); b.Dx() > blurHashSize || b.Dy() > blurHashSize {
		thumb = imaging.Fit(img, blurHashSize, blurHashSize, imaging.Box)
	}

	hash, err := blurhash.Encode(4, 3, thumb)
	if err != nil {
		return "", fmt.Errorf("encode blurhash: %w", err)
	}
	return hash, nil
}
