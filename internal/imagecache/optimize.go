package imagecache

import (
	"bytes"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"strings"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp" // Register WebP decoder
)

const (
	defaultMaxWidth     = 1200
	defaultJPEGQuality  = 85
	defaultMaxFileSize  = 512 * 1024
	minJPEGQuality      = 60
	coverJPEGQuality    = 90
	defaultMaxPixels    = 100 * 1000 * 1000 // refuse to decode beyond 100 megapixels
	jpegQualityStepDown = 5
)

// Optimizer downscales and re-encodes images before they are cached.
type Optimizer struct {
	MaxWidth    int
	JPEGQuality int
	MaxFileSize int
	MaxPixels   int
}

// Optimized holds re-encoded image data.
// Warning is set when the input was kept as-is or a size target was missed;
// Data is usable either way.
type Optimized struct {
	Data    []byte
	Image   image.Image // decoded pixels after resizing, nil on passthrough
	Width   int
	Height  int
	Format  string // "jpeg", "png", "gif", "svg" or "" when unknown
	Warning string
}

// NewOptimizer creates an optimizer, filling zero fields with defaults.
func NewOptimizer(maxWidth, quality, maxFileSize int) *Optimizer {
	if maxWidth <= 0 {
		maxWidth = defaultMaxWidth
	}
	if quality <= 0 {
		quality = defaultJPEGQuality
	}
	if quality > 100 {
		quality = 100
	}
	if maxFileSize <= 0 {
		maxFileSize = defaultMaxFileSize
	}
	return &Optimizer{
		MaxWidth:    maxWidth,
		JPEGQuality: quality,
		MaxFileSize: maxFileSize,
		MaxPixels:   defaultMaxPixels,
	}
}

// Optimize decodes input and produces a display-sized copy.
// Undecodable input is passed through with a Warning; only encoder failures
// return an error.
func (o *Optimizer) Optimize(mediaType string, input []byte, isCover bool) (Optimized, error) {
	out := Optimized{
		Data:   input,
		Format: formatOf(mediaType),
	}
	if out.Format == "svg" {
		out.Warning = "vector image stored as-is"
		return out, nil
	}

	cfg, detected, err := image.DecodeConfig(bytes.NewReader(input))
	if err != nil {
		out.Warning = fmt.Sprintf("image header unreadable: %v", err)
		return out, nil
	}
	out.Width, out.Height = cfg.Width, cfg.Height
	if out.Format == "" {
		out.Format = strings.ToLower(detected)
	}
	if pixels := uint64(cfg.Width) * uint64(cfg.Height); o.MaxPixels > 0 && pixels > uint64(o.MaxPixels) {
		out.Warning = fmt.Sprintf("image too large to decode: %dx%d", cfg.Width, cfg.Height)
		return out, nil
	}

	if out.Format == "gif" && isAnimatedGIF(input) {
		return out, nil
	}

	src, _, err := image.Decode(bytes.NewReader(input))
	if err != nil {
		out.Warning = fmt.Sprintf("image decode failed: %v", err)
		return out, nil
	}

	img := src
	if !isCover && o.MaxWidth > 0 && src.Bounds().Dx() > o.MaxWidth {
		img = imaging.Resize(src, o.MaxWidth, 0, imaging.Lanczos)
	}
	out.Image = img
	out.Width = img.Bounds().Dx()
	out.Height = img.Bounds().Dy()

	if out.Format == "png" || out.Format == "webp" {
		if hasAlpha(img) {
			data, err := encodePNG(img)
			if err != nil {
				return out, fmt.Errorf("png encode failed: %w", err)
			}
			out.Data, out.Format = data, "png"
			o.checkSize(&out)
			return out, nil
		}
	}

	quality := o.JPEGQuality
	floor := minJPEGQuality
	if isCover {
		quality = max(quality, coverJPEGQuality)
		floor = coverJPEGQuality
	}
	data, used, err := o.encodeJPEGWithinLimit(img, quality, floor)
	if err != nil {
		return out, err
	}
	out.Data, out.Format = data, "jpeg"
	if o.MaxFileSize > 0 && len(data) > o.MaxFileSize {
		out.Warning = fmt.Sprintf("jpeg size %d exceeds limit %d bytes at quality %d", len(data), o.MaxFileSize, used)
	}
	return out, nil
}

func (o *Optimizer) checkSize(out *Optimized) {
	if o.MaxFileSize > 0 && len(out.Data) > o.MaxFileSize {
		out.Warning = fmt.Sprintf("image size %d exceeds limit %d bytes", len(out.Data), o.MaxFileSize)
	}
}

// encodeJPEGWithinLimit lowers the quality in steps until the output fits
// MaxFileSize or floor is reached, returning the last encoding and its quality.
func (o *Optimizer) encodeJPEGWithinLimit(img image.Image, quality, floor int) ([]byte, int, error) {
	quality = min(max(quality, floor), 100)
	for {
		data, err := encodeJPEG(img, quality)
		if err != nil {
			return nil, 0, fmt.Errorf("jpeg encode failed at quality %d: %w", quality, err)
		}
		if o.MaxFileSize <= 0 || len(data) <= o.MaxFileSize || quality-jpegQualityStepDown < floor {
			return data, quality, nil
		}
		quality -= jpegQualityStepDown
	}
}

func formatOf(mediaType string) string {
	switch strings.ToLower(mediaType) {
	case "image/jpeg", "image/jpg":
		return "jpeg"
	case "image/png":
		return "png"
	case "image/gif":
		return "gif"
	case "image/webp":
		return "webp"
	case "image/svg+xml":
		return "svg"
	default:
		return ""
	}
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestCompression}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func isAnimatedGIF(data []byte) bool {
	g, err := gif.DecodeAll(bytes.NewReader(data))
	return err == nil && len(g.Image) > 1
}

// hasAlpha reports whether any pixel is not fully opaque.
func hasAlpha(img image.Image) bool {
	if o, ok := img.(interface{ Opaque() bool }); ok {
		return !o.Opaque()
	}
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if _, _, _, a := img.At(x, y).RGBA(); a < 0xFFFF {
				return true
			}
		}
	}
	return false
}
