// Package length replaces approximate chapter lengths with exact character
// counts.
package length

import (
	"context"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"github.com/yuanying/readercore/internal/archive"
	"github.com/yuanying/readercore/internal/book"
	"github.com/yuanying/readercore/internal/epub"
	"github.com/yuanying/readercore/internal/source"
	"github.com/yuanying/readercore/internal/txt"
)

// Result lists the chapters that received an exact count.
type Result struct {
	Updated []book.Chapter
	// Charset is the text encoding detected during the call, "" when the book
	// already had one or is not a TXT book.
	Charset string
}

// Calculator computes exact character counts.
type Calculator struct {
	text   *txt.Extractor
	logger *slog.Logger
}

// NewCalculator creates a Calculator.
func NewCalculator(logger *slog.Logger) *Calculator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Calculator{text: txt.NewExtractor(logger), logger: logger}
}

// Calculate counts every chapter whose length is still approximate. Chapters
// that already have a count are skipped, and a count of zero or less is never
// recorded. The given chapters are not modified; Updated holds copies.
func (c *Calculator) Calculate(ctx context.Context, b *book.Book, src source.Source, chapters []book.Chapter) (Result, error) {
	var res Result

	pending := make([]book.Chapter, 0, len(chapters))
	for _, ch := range chapters {
		if !ch.Info().IsPrecise() {
			pending = append(pending, ch)
		}
	}
	if len(pending) == 0 {
		return res, nil
	}

	cs := b.Charset
	if b.Format == book.FormatTXT && cs == "" {
		detected, err := txt.SniffCharset(src)
		if err != nil {
			return res, fmt.Errorf("detect charset: %w", err)
		}
		cs, res.Charset = detected, detected
	}

	var r *archive.Reader
	if b.Format == book.FormatEPUB {
		var err error
		if r, err = archive.Open(src); err != nil {
			return res, fmt.Errorf("failed to open EPUB: %w", err)
		}
		defer r.Close()
	}

	for _, ch := range pending {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		var (
			n   int64
			err error
		)
		switch ch := ch.(type) {
		case *book.EpubChapter:
			n, err = c.countEPUB(r, ch)
		case *book.TxtChapter:
			n, err = c.countTXT(src, ch, cs)
		}
		if err != nil {
			c.logger.Warn("length calculation failed, keeping estimate",
				"book", b.ID, "chapter", ch.Info().Index, "error", err)
			continue
		}
		if n <= 0 {
			continue
		}

		updated := ch.Clone()
		updated.Info().RealCharCount = n
		res.Updated = append(res.Updated, updated)
	}
	return res, nil
}

func (c *Calculator) countEPUB(r *archive.Reader, ch *book.EpubChapter) (int64, error) {
	if r == nil {
		return 0, fmt.Errorf("chapter %d is not part of an EPUB book", ch.Index)
	}
	data, err := r.ReadFile(ch.Href)
	if err != nil {
		return 0, err
	}
	return epub.CountChars(data)
}

func (c *Calculator) countTXT(src source.Source, ch *book.TxtChapter, cs string) (int64, error) {
	text, err := c.text.ReadText(src, ch, cs)
	if err != nil {
		return 0, err
	}
	return int64(utf8.RuneCountInString(text)), nil
}
