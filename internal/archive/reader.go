// Package archive reads ZIP containers (EPUB files) from a source.Source.
package archive

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/yuanying/readercore/internal/source"
)

// maxEntrySize bounds the decompressed size of a single entry read into memory.
const maxEntrySize int64 = 256 * 1024 * 1024

var (
	ErrEntryNotFound = errors.New("archive: entry not found")
	ErrEntryTooLarge = errors.New("archive: entry exceeds size limit")
	ErrUnsafePath    = errors.New("archive: unsafe entry path")

	// ErrStop may be returned from a ForEachEntry callback to end iteration early.
	ErrStop = errors.New("archive: stop iteration")
)

// Reader provides access to the entries of one opened archive.
// It must be closed before the call that opened it returns.
type Reader struct {
	zr     *zip.Reader
	closer io.Closer
}

// Entry is one archive member
type Entry struct {
	file *zip.File
}

// Name returns the entry path as stored in the archive.
func (e *Entry) Name() string { return e.file.Name }

// Size returns the uncompressed size.
func (e *Entry) Size() int64 { return int64(e.file.UncompressedSize64) }

// IsDir reports whether the entry is a directory.
func (e *Entry) IsDir() bool { return strings.HasSuffix(e.file.Name, "/") }

// Open opens the entry for reading.
func (e *Entry) Open() (io.ReadCloser, error) { return e.file.Open() }

// ReadAll reads the whole entry, bounded by the entry size limit.
func (e *Entry) ReadAll() ([]byte, error) {
	return readZipFile(e.file, maxEntrySize)
}

// Open opens src as a ZIP archive. Streams that support random access are used
// directly; others are buffered into memory first.
func Open(src source.Source) (*Reader, error) {
	rc, err := src.Open()
	if err != nil {
		return nil, err
	}

	var (
		ra   io.ReaderAt
		size int64
	)
	if at, ok := rc.(io.ReaderAt); ok {
		size, err = src.Size()
		if err != nil {
			rc.Close()
			return nil, err
		}
		ra = at
	} else {
		data, err := io.ReadAll(rc)
		if err != nil {
			rc.Close()
			return nil, fmt.Errorf("failed to read archive %s: %w", src.Name(), err)
		}
		ra = bytes.NewReader(data)
		size = int64(len(data))
	}

	zr, err := zip.NewReader(ra, size)
	if err != nil {
		rc.Close()
		return nil, fmt.Errorf("failed to open archive %s: %w", src.Name(), err)
	}

	return &Reader{zr: zr, closer: rc}, nil
}

// Close releases the underlying stream.
func (r *Reader) Close() error {
	return r.closer.Close()
}

// ForEachEntry calls fn for every entry in archive order. The callback decides
// whether to consume the entry. Returning ErrStop ends the walk without error.
func (r *Reader) ForEachEntry(fn func(e *Entry) error) error {
	for _, f := range r.zr.File {
		if err := fn(&Entry{file: f}); err != nil {
			if errors.Is(err, ErrStop) {
				return nil
			}
			return err
		}
	}
	return nil
}

// Find returns the entry whose name matches exactly (case-sensitive).
func (r *Reader) Find(name string) (*Entry, bool) {
	name = normalizePath(name)
	var found *Entry
	r.ForEachEntry(func(e *Entry) error {
		if normalizePath(e.Name()) == name {
			found = e
			return ErrStop
		}
		return nil
	})
	return found, found != nil
}

// FindFold returns the first entry whose name matches ignoring case.
func (r *Reader) FindFold(name string) (*Entry, bool) {
	if e, ok := r.Find(name); ok {
		return e, true
	}
	name = normalizePath(name)
	var found *Entry
	r.ForEachEntry(func(e *Entry) error {
		if strings.EqualFold(normalizePath(e.Name()), name) {
			found = e
			return ErrStop
		}
		return nil
	})
	return found, found != nil
}

// ReadFile reads the contents of the named entry.
func (r *Reader) ReadFile(name string) ([]byte, error) {
	e, ok := r.Find(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, name)
	}
	return e.ReadAll()
}

// ExtractEntry opens src, reads the named entry and closes the archive again.
func ExtractEntry(src source.Source, name string) ([]byte, error) {
	r, err := Open(src)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return r.ReadFile(name)
}

func readZipFile(f *zip.File, limit int64) ([]byte, error) {
	if !IsSafePath(f.Name) {
		return nil, fmt.Errorf("%w: %s", ErrUnsafePath, f.Name)
	}
	if f.UncompressedSize64 > uint64(limit) {
		return nil, fmt.Errorf("%w: %s is %d bytes", ErrEntryTooLarge, f.Name, f.UncompressedSize64)
	}

	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open entry %s: %w", f.Name, err)
	}
	defer rc.Close()

	// Read one byte past the limit so a forged header size is still caught.
	data, err := io.ReadAll(io.LimitReader(rc, limit+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read entry %s: %w", f.Name, err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: %s", ErrEntryTooLarge, f.Name)
	}
	return data, nil
}

// normalizePath removes a leading "./" from archive paths
func normalizePath(path string) string {
	return strings.TrimPrefix(path, "./")
}
