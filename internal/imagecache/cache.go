// Package imagecache stores book images on local disk, downscaled for display
// and annotated with their aspect ratio and a BlurHash placeholder.
package imagecache

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// ErrEmptyImage is returned by Put for zero-length input.
var ErrEmptyImage = errors.New("imagecache: empty image data")

// Options configures a Cache.
type Options struct {
	Dir         string // root directory; images live under Dir/images
	MaxWidth    int
	JPEGQuality int
	MaxFileSize int
	Logger      *slog.Logger
}

// Entry describes a cached image.
type Entry struct {
	Path        string
	Width       int
	Height      int
	AspectRatio float64 // width / height, 0 when unknown
	BlurHash    string
}

// Cache is a content-addressed on-disk image store. It is safe for
// concurrent use.
type Cache struct {
	dir       string
	optimizer *Optimizer
	logger    *slog.Logger

	mu sync.Mutex
}

// New creates the cache directory if needed.
func New(opts Options) (*Cache, error) {
	if opts.Dir == "" {
		return nil, errors.New("imagecache: directory is required")
	}
	dir := filepath.Join(opts.Dir, "images")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create image cache dir: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		dir:       dir,
		optimizer: NewOptimizer(opts.MaxWidth, opts.JPEGQuality, opts.MaxFileSize),
		logger:    logger,
	}, nil
}

// Dir returns the directory holding cached files.
func (c *Cache) Dir() string { return c.dir }

// Put stores data under key and returns its cache entry. A key that was
// stored before is not re-encoded; its metadata is read back from disk.
func (c *Cache) Put(key, mediaType string, data []byte, isCover bool) (Entry, error) {
	if len(data) == 0 {
		return Entry{}, ErrEmptyImage
	}
	base := c.baseName(key, isCover)

	c.mu.Lock()
	defer c.mu.Unlock()

	if path, ok := c.lookup(base); ok {
		return c.describe(path)
	}

	opt, err := c.optimizer.Optimize(mediaType, data, isCover)
	if err != nil {
		return Entry{}, fmt.Errorf("optimize %s: %w", key, err)
	}
	if opt.Warning != "" {
		c.logger.Debug("image optimization warning", "key", key, "warning", opt.Warning)
	}

	path := filepath.Join(c.dir, base+extension(opt.Format))
	if err := writeFileAtomic(path, opt.Data); err != nil {
		return Entry{}, err
	}

	entry := Entry{Path: path, Width: opt.Width, Height: opt.Height}
	entry.AspectRatio = aspectRatio(opt.Width, opt.Height)
	if opt.Image != nil {
		entry.BlurHash = c.blurHash(key, opt.Image)
	} else if img, _, err := image.Decode(bytes.NewReader(opt.Data)); err == nil {
		entry.BlurHash = c.blurHash(key, img)
	}
	return entry, nil
}

// Remove deletes every cached file stored under key.
func (c *Cache) Remove(key string, isCover bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	base := c.baseName(key, isCover)
	for _, ext := range knownExtensions {
		err := os.Remove(filepath.Join(c.dir, base+ext))
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove cached image: %w", err)
		}
	}
	return nil
}

func (c *Cache) baseName(key string, isCover bool) string {
	sum := sha256.Sum256([]byte(key))
	name := hex.EncodeToString(sum[:16])
	if isCover {
		name += "-cover"
	}
	return name
}

var knownExtensions = []string{".jpg", ".png", ".gif", ".webp", ".svg", ".bin"}

func (c *Cache) lookup(base string) (string, bool) {
	for _, ext := range knownExtensions {
		path := filepath.Join(c.dir, base+ext)
		if _, err := os.Stat(path); err == nil {
			return path, true
		}
	}
	return "", false
}

// describe rebuilds the entry of an already cached file.
func (c *Cache) describe(path string) (Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Entry{}, fmt.Errorf("read cached image: %w", err)
	}
	entry := Entry{Path: path}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		// Passthrough formats such as SVG have no raster metadata.
		return entry, nil
	}
	entry.Width = img.Bounds().Dx()
	entry.Height = img.Bounds().Dy()
	entry.AspectRatio = aspectRatio(entry.Width, entry.Height)
	entry.BlurHash = c.blurHash(path, img)
	return entry, nil
}

func (c *Cache) blurHash(key string, img image.Image) string {
	hash, err := ComputeBlurHash(img)
	if err != nil {
		c.logger.Debug("blurhash failed", "key", key, "error", err)
		return ""
	}
	return hash
}

func aspectRatio(w, h int) float64 {
	if w <= 0 || h <= 0 {
		return 0
	}
	return float64(w) / float64(h)
}

func extension(format string) string {
	switch format {
	case "jpeg":
		return ".jpg"
	case "png", "gif", "webp", "svg":
		return "." + format
	default:
		return ".bin"
	}
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".img-*")
	if err != nil {
		return fmt.Errorf("create temp image: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write image: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close image: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("store image: %w", err)
	}
	return nil
}
