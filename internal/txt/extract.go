package txt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/yuanying/readercore/internal/book"
	"github.com/yuanying/readercore/internal/charset"
	"github.com/yuanying/readercore/internal/source"
)

// ErrShortRead is returned when the source ends before a chapter's byte range does.
var ErrShortRead = errors.New("txt: source shorter than chapter range")

// Extractor converts text chapters into content blocks.
type Extractor struct {
	logger *slog.Logger
}

// NewExtractor creates an Extractor.
func NewExtractor(logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{logger: logger}
}

// ExtractChapter reads the byte range of ch, decodes it with the named
// charset and returns its blocks. An unusable charset falls back to UTF-8.
func (e *Extractor) ExtractChapter(ctx context.Context, src source.Source, ch *book.TxtChapter, cs string) ([]book.Block, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	text, err := e.ReadText(src, ch, cs)
	if err != nil {
		return nil, err
	}
	return Blocks(text), nil
}

// ReadText returns the decoded text of ch.
func (e *Extractor) ReadText(src source.Source, ch *book.TxtChapter, cs string) (string, error) {
	data, err := ReadRange(src, ch.StartOffset, ch.Len())
	if err != nil {
		return "", fmt.Errorf("chapter %d: %w", ch.Index, err)
	}
	text, err := charset.DecodeOrFallback(cs, data)
	if err != nil {
		e.logger.Warn("decode failed, falling back to UTF-8", "source", src.Name(), "charset", cs, "error", err)
	}
	return text, nil
}

// Blocks splits decoded chapter text into blocks. The first non-blank line
// is the title; every later non-blank line is a paragraph.
func Blocks(text string) []book.Block {
	blocks := []book.Block{}
	cursor := 0
	titled := false
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(strings.TrimRight(line, "\r"))
		if line == "" {
			continue
		}
		var b book.Block
		if !titled {
			b = book.Title{StartIndex: cursor, Text: line, Level: 1}
			titled = true
		} else {
			b = book.Paragraph{StartIndex: cursor, Text: strings.ReplaceAll(line, "\u3000", "  ")}
		}
		blocks = append(blocks, b)
		cursor += b.CharLen()
	}
	return blocks
}

// ReadRange reads exactly n bytes of src starting at offset.
func ReadRange(src source.Source, offset, n int64) ([]byte, error) {
	if offset < 0 || n < 0 {
		return nil, fmt.Errorf("invalid range [%d, %d)", offset, offset+n)
	}
	rc, err := src.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	if s, ok := rc.(io.Seeker); ok {
		if _, err := s.Seek(offset, io.SeekStart); err != nil {
			return nil, fmt.Errorf("failed to seek %s: %w", src.Name(), err)
		}
	} else if skipped, err := io.CopyN(io.Discard, rc, offset); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: skipped %d of %d bytes", ErrShortRead, skipped, offset)
		}
		return nil, err
	}

	buf := make([]byte, n)
	read, err := io.ReadFull(rc, buf)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: read %d of %d bytes at offset %d", ErrShortRead, read, n, offset)
		}
		return nil, err
	}
	return buf, nil
}
