// Package source provides the byte sources books are read from.
//
// A Source is opened anew for every pass over the data. Callers that need
// two passes (encoding sniffing, then the real read) open it twice instead of
// rewinding, so non-seekable sources work the same way as files.
package source

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Source is an opaque, re-openable document.
type Source interface {
	// Name identifies the source in logs and cache keys.
	Name() string
	// Open returns a fresh sequential stream positioned at byte 0.
	Open() (io.ReadCloser, error)
	// Size returns the total size in bytes.
	Size() (int64, error)
}

// File is a Source backed by a path on disk
type File struct {
	Path string
}

// NewFile returns a Source for the file at path.
func NewFile(path string) *File {
	return &File{Path: path}
}

// Name returns the base name of the file.
func (f *File) Name() string {
	return filepath.Base(f.Path)
}

// Open opens the file. The returned *os.File also implements io.ReaderAt.
func (f *File) Open() (io.ReadCloser, error) {
	file, err := os.Open(f.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", f.Path, err)
	}
	return file, nil
}

// Size returns the file size.
func (f *File) Size() (int64, error) {
	info, err := os.Stat(f.Path)
	if err != nil {
		return 0, fmt.Errorf("failed to stat %s: %w", f.Path, err)
	}
	return info.Size(), nil
}

// Bytes is an in-memory Source
type Bytes struct {
	ID   string
	Data []byte
}

// NewBytes returns a Source serving data.
func NewBytes(name string, data []byte) *Bytes {
	return &Bytes{ID: name, Data: data}
}

// Name returns the identifier given at construction.
func (b *Bytes) Name() string { return b.ID }

// Open returns a reader over the data. It implements io.ReaderAt.
func (b *Bytes) Open() (io.ReadCloser, error) {
	return bytesReadCloser{bytes.NewReader(b.Data)}, nil
}

// Size returns len(Data).
func (b *Bytes) Size() (int64, error) { return int64(len(b.Data)), nil }

type bytesReadCloser struct {
	*bytes.Reader
}

func (bytesReadCloser) Close() error { return nil }

// WithName returns src reporting name from Name. Readers opened through it
// are those of src.
func WithName(src Source, name string) Source {
	return named{Source: src, name: name}
}

type named struct {
	Source
	name string
}

func (n named) Name() string { return n.name }
