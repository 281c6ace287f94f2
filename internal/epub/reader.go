// Package epub resolves the structure of EPUB files and extracts chapter
// content as book.Block sequences.
package epub

import (
	"encoding/xml"
	"errors"
	"fmt"
	"strings"

	"github.com/yuanying/readercore/internal/archive"
	"github.com/yuanying/readercore/internal/source"
)

const containerPath = "META-INF/container.xml"

var (
	// ErrStructure is returned when neither container.xml nor an archive scan
	// yields a readable OPF package document.
	ErrStructure = errors.New("epub: package document not found")

	// parseContainer failures; locateOPF falls back to an archive scan on both.
	errContainerNotFound = errors.New("META-INF/container.xml not found")
	errOPFPathNotFound   = errors.New("OPF path not found in container.xml")
)

// container.xml structure
type container struct {
	Rootfiles struct {
		Rootfile []struct {
			FullPath  string `xml:"full-path,attr"`
			MediaType string `xml:"media-type,attr"`
		} `xml:"rootfile"`
	} `xml:"rootfiles"`
}

// Resolve opens src and resolves the package document: metadata, manifest,
// spine, table-of-contents titles and the cover reference.
// The archive is closed before Resolve returns.
func Resolve(src source.Source) (*Package, error) {
	r, err := archive.Open(src)
	if err != nil {
		return nil, fmt.Errorf("failed to open EPUB: %w", err)
	}
	defer r.Close()

	opfPath, err := locateOPF(r)
	if err != nil {
		return nil, err
	}

	entry, ok := r.Find(opfPath)
	if !ok {
		return nil, fmt.Errorf("%w: %s missing from archive", ErrStructure, opfPath)
	}
	rc, err := entry.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrStructure, opfPath, err)
	}
	pkg, err := parseOPF(rc, opfPath)
	rc.Close()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStructure, err)
	}

	pkg.sizes = make(map[string]int64)
	r.ForEachEntry(func(e *archive.Entry) error {
		pkg.sizes[e.Name()] = e.Size()
		return nil
	})

	pkg.titles = loadTOC(r, pkg)
	pkg.docTitles = loadDocTitles(r, pkg)
	pkg.CoverHref = pkg.detectCover()

	return pkg, nil
}

// locateOPF returns the OPF path from container.xml, falling back to the first
// ".opf" entry of the archive.
func locateOPF(r *archive.Reader) (string, error) {
	if p, err := parseContainer(r); err == nil {
		if _, ok := r.Find(p); ok {
			return p, nil
		}
	}

	if p := scanForOPF(r); p != "" {
		return p, nil
	}
	return "", ErrStructure
}

// parseContainer parses container.xml to extract OPF path
func parseContainer(r *archive.Reader) (string, error) {
	content, err := r.ReadFile(containerPath)
	if err != nil {
		return "", errContainerNotFound
	}

	var c container
	if err := xml.Unmarshal(content, &c); err != nil {
		return "", fmt.Errorf("failed to parse container.xml: %w", err)
	}

	// Find the OPF file path
	for _, rf := range c.Rootfiles.Rootfile {
		p := strings.TrimSpace(rf.FullPath)
		if p == "" {
			continue
		}
		if rf.MediaType == "application/oebps-package+xml" || rf.MediaType == "" {
			return normalizePath(p), nil
		}
	}

	// If no media-type match, use the first non-empty one
	for _, rf := range c.Rootfiles.Rootfile {
		if p := strings.TrimSpace(rf.FullPath); p != "" {
			return normalizePath(p), nil
		}
	}

	return "", errOPFPathNotFound
}

// scanForOPF walks the archive for the first entry ending in ".opf".
func scanForOPF(r *archive.Reader) string {
	var found string
	r.ForEachEntry(func(e *archive.Entry) error {
		if !e.IsDir() && strings.HasSuffix(strings.ToLower(e.Name()), ".opf") {
			found = e.Name()
			return archive.ErrStop
		}
		return nil
	})
	return found
}

// normalizePath normalizes file paths (removes ./ prefix)
func normalizePath(path string) string {
	return strings.TrimPrefix(path, "./")
}
