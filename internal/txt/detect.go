// Package txt splits plain-text books into virtual chapters and converts
// chapter byte ranges into content blocks.
package txt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/yuanying/readercore/internal/book"
	"github.com/yuanying/readercore/internal/charset"
	"github.com/yuanying/readercore/internal/source"
)

// DefaultTitle names a leading chapter that has no non-blank line to take a title from.
const DefaultTitle = "Beginning"

// headingPattern is matched against NFKC-normalised, trimmed lines. The
// first group holds the number following an English keyword.
var headingPattern = regexp.MustCompile(
	`^[\s\p{P}]*(?:` +
		`第\s*[0-9零〇一二两三四五六七八九十百千万]+\s*[章节卷回集部篇]` +
		`|(?i:chapter|section|part)\s+([0-9]+|[IVXLCDM]+|[零〇一二两三四五六七八九十百千万]+)(?:$|[\s\p{P}])` +
		`)`)

// romanNumeral accepts well-formed uppercase numerals up to MMMCMXCIX.
var romanNumeral = regexp.MustCompile(`^M{0,3}(?:CM|CD|D?C{0,3})(?:XC|XL|L?X{0,3})(?:IX|IV|V?I{0,3})$`)

// IsHeading reports whether line looks like a chapter heading.
func IsHeading(line string) bool {
	m := headingPattern.FindStringSubmatch(norm.NFKC.String(strings.TrimSpace(line)))
	if m == nil {
		return false
	}
	if num := m[1]; num != "" && strings.Trim(num, "IVXLCDM") == "" {
		return romanNumeral.MatchString(num)
	}
	return true
}

// Detection is the outcome of scanning one text file.
type Detection struct {
	Charset  string
	Size     int64
	Chapters []*book.TxtChapter
}

// Detector finds chapter boundaries in plain-text files.
type Detector struct {
	logger *slog.Logger
}

// NewDetector creates a Detector.
func NewDetector(logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{logger: logger}
}

// Detect scans src once and returns its chapters as contiguous byte ranges
// covering the whole file. The encoding is sniffed from a separate stream and
// only affects heading recognition, never the offsets.
func (d *Detector) Detect(ctx context.Context, src source.Source, bookID string) (*Detection, error) {
	size, err := src.Size()
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", src.Name(), err)
	}
	cs, err := SniffCharset(src)
	if err != nil {
		return nil, err
	}

	rc, err := src.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var (
		chapters     []*book.TxtChapter
		openStart    int64
		pendingTitle string
		havePending  bool
		offset       int64
		lines        int
	)
	closeChapter := func(end int64, title string) {
		chapters = append(chapters, &book.TxtChapter{
			ChapterInfo: book.ChapterInfo{
				BookID:        bookID,
				Index:         len(chapters),
				Title:         title,
				FileSizeBytes: end - openStart,
				RealCharCount: book.UnknownLength,
			},
			StartOffset: openStart,
			EndOffset:   end,
		})
	}

	sc := newLineScanner(rc)
	for sc.Scan() {
		start := offset
		offset += int64(sc.Advance())

		lines++
		if lines%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if sc.Continuation() {
			continue
		}

		text, _ := charset.DecodeOrFallback(cs, sc.Bytes())
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}

		if !IsHeading(text) {
			if !havePending {
				pendingTitle, havePending = text, true
			}
			continue
		}

		if havePending && start > openStart {
			closeChapter(start, pendingTitle)
			openStart = start
		}
		pendingTitle, havePending = text, true
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", src.Name(), err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if offset != size {
		d.logger.Warn("text size changed while scanning", "source", src.Name(), "size", size, "scanned", offset)
	}
	if openStart < size {
		if !havePending {
			pendingTitle = DefaultTitle
		}
		closeChapter(size, pendingTitle)
	}

	d.logger.Debug("detected text chapters", "source", src.Name(), "charset", cs, "chapters", len(chapters))
	return &Detection{Charset: cs, Size: size, Chapters: chapters}, nil
}

// SniffCharset detects the encoding of src from its first charset.SampleSize bytes.
func SniffCharset(src source.Source) (string, error) {
	rc, err := src.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()

	buf := make([]byte, charset.SampleSize)
	n, err := io.ReadFull(rc, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read %s: %w", src.Name(), err)
	}
	return charset.Detect(buf[:n]), nil
}
