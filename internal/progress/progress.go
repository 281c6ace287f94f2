// Package progress converts between chapter positions and whole-book
// reading percentages.
//
// Chapter lengths are effective lengths: the exact character count when it
// has been computed, the byte size otherwise. Percentages therefore shift
// slightly once exact counts replace the estimates.
package progress

import (
	"context"
	"fmt"
	"math"

	"github.com/yuanying/readercore/internal/book"
)

// Percent returns the reading position as a fraction of the whole book.
// within is the fraction already read of the chapter at chapterIndex.
// The result is clamped to [0, 1]; an empty book yields 0.
func Percent(lengths []int64, chapterIndex int, within float64) float64 {
	var total, before int64
	for i, n := range lengths {
		n = max(n, 0)
		total += n
		if i < chapterIndex {
			before += n
		}
	}
	if total == 0 {
		return 0
	}

	var current int64
	if chapterIndex >= 0 && chapterIndex < len(lengths) {
		current = max(lengths[chapterIndex], 0)
	}
	p := (float64(before) + float64(current)*clamp(within)) / float64(total)
	return clamp(p)
}

// Within returns offset as a fraction of a chapter of the given length.
func Within(offset int, length int64) float64 {
	if length <= 0 {
		return 0
	}
	return clamp(float64(offset) / float64(length))
}

// Locate is the inverse of Percent: it returns the chapter containing
// percent of the book and the character offset inside it.
func Locate(lengths []int64, percent float64) (chapterIndex, offset int) {
	var total int64
	for _, n := range lengths {
		total += max(n, 0)
	}
	if total == 0 {
		return 0, 0
	}

	target := clamp(percent) * float64(total)
	var acc float64
	last := 0
	for i, n := range lengths {
		n = max(n, 0)
		if n == 0 {
			continue
		}
		last = i
		if target < acc+float64(n) {
			return i, int(math.Floor(target - acc))
		}
		acc += float64(n)
	}
	return last, int(max(lengths[last], 0))
}

func clamp(f float64) float64 {
	if math.IsNaN(f) || f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

// Store is the persistence the Calculator reads from.
type Store interface {
	GetChapters(ctx context.Context, bookID string) ([]book.Chapter, error)
	GetProgress(ctx context.Context, bookID string) (*book.ReadingProgress, error)
}

// Calculator computes the book percentage of the saved reading position.
type Calculator struct {
	store Store
}

// NewCalculator creates a Calculator reading from store.
func NewCalculator(store Store) *Calculator {
	return &Calculator{store: store}
}

// ComputePercent reloads the chapters and the saved position of a book and
// returns the position as a fraction of the whole book.
func (c *Calculator) ComputePercent(ctx context.Context, bookID string) (float64, error) {
	chapters, err := c.store.GetChapters(ctx, bookID)
	if err != nil {
		return 0, fmt.Errorf("load chapters: %w", err)
	}
	p, err := c.store.GetProgress(ctx, bookID)
	if err != nil {
		return 0, fmt.Errorf("load progress: %w", err)
	}
	return Of(chapters, p), nil
}

// Of returns the book percentage of p over chapters.
func Of(chapters []book.Chapter, p *book.ReadingProgress) float64 {
	if p == nil || p.ChapterIndex < 0 || p.ChapterIndex >= len(chapters) {
		return 0
	}
	lengths := book.EffectiveLengths(chapters)
	within := Within(p.ChapterOffsetCharIndex, lengths[p.ChapterIndex])
	return Percent(lengths, p.ChapterIndex, within)
}
