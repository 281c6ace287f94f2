// Package book defines the books, chapters, content blocks and reading
// progress shared by the parsers, the layout engine and the store.
package book

import "time"

// Format identifies the source file type of a book
type Format string

const (
	FormatEPUB Format = "epub"
	FormatTXT  Format = "txt"
)

// Book holds the metadata recorded at import time
type Book struct {
	ID          string    `json:"id"`
	Format      Format    `json:"format"`
	Path        string    `json:"path"`
	SizeBytes   int64     `json:"sizeBytes"`
	Title       string    `json:"title"`
	Authors     []string  `json:"authors,omitempty"`
	Language    string    `json:"language,omitempty"`
	Description string    `json:"description,omitempty"`
	Publisher   string    `json:"publisher,omitempty"`
	Subjects    []string  `json:"subjects,omitempty"`
	UniqueID    string    `json:"uniqueId,omitempty"`
	CoverPath   string    `json:"coverPath,omitempty"`
	Charset     string    `json:"charset,omitempty"` // TXT only, filled on first detection
	ImportedAt  time.Time `json:"importedAt"`
}

// ReadingProgress is the last settled reading position of a book
type ReadingProgress struct {
	BookID                 string            `json:"bookId"`
	ChapterIndex           int               `json:"chapterIndex"`
	ChapterOffsetCharIndex int               `json:"chapterOffsetCharIndex"`
	ProgressPercent        float64           `json:"progressPercent"`
	Hints                  map[string]string `json:"hints,omitempty"` // opaque UI restore data
	UpdatedAt              time.Time         `json:"updatedAt"`
}

// DefaultProgress returns the position of a freshly opened book.
func DefaultProgress(bookID string) *ReadingProgress {
	return &ReadingProgress{
		BookID:    bookID,
		UpdatedAt: time.Now(),
	}
}
