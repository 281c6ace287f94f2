// Package library ties the parsers, the store and the layout engine together
// into the operations a reader front end needs.
package library

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/yuanying/readercore/internal/book"
	"github.com/yuanying/readercore/internal/epub"
	"github.com/yuanying/readercore/internal/imagecache"
	"github.com/yuanying/readercore/internal/layout"
	"github.com/yuanying/readercore/internal/length"
	"github.com/yuanying/readercore/internal/metrics"
	"github.com/yuanying/readercore/internal/progress"
	"github.com/yuanying/readercore/internal/source"
	"github.com/yuanying/readercore/internal/txt"
)

var (
	// ErrUnsupportedFormat is returned for files that are neither EPUB nor TXT.
	ErrUnsupportedFormat = errors.New("unsupported book format")
	// ErrChapterOutOfRange is returned for a chapter index the book does not have.
	ErrChapterOutOfRange = errors.New("chapter index out of range")
)

// bookNamespace scopes book IDs derived from file paths.
var bookNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/yuanying/readercore/book"))

// Store is the persistence used by the Service. *store.Store implements it.
type Store interface {
	SaveImport(ctx context.Context, b *book.Book, chapters []book.Chapter) error
	GetBook(ctx context.Context, id string) (*book.Book, error)
	ListBooks(ctx context.Context) ([]*book.Book, error)
	DeleteBook(ctx context.Context, id string) error
	GetChapters(ctx context.Context, bookID string) ([]book.Chapter, error)
	UpdateChapters(ctx context.Context, bookID string, changed []book.Chapter, charset string) error
	SaveProgress(ctx context.Context, p *book.ReadingProgress) error
	GetProgress(ctx context.Context, bookID string) (*book.ReadingProgress, error)
}

// Options configures a Service.
type Options struct {
	Store   Store
	Images  *imagecache.Cache // nil disables cover and inline image extraction
	Workers int               // concurrent imports, at least 1
	Logger  *slog.Logger
}

// Service implements the library operations.
type Service struct {
	store    Store
	images   *imagecache.Cache
	workers  int
	logger   *slog.Logger
	epubText *epub.Extractor
	detector *txt.Detector
	txtText  *txt.Extractor
	lengths  *length.Calculator
	progress *progress.Calculator
}

// New creates a Service.
func New(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	var images epub.ImageStore
	if opts.Images != nil {
		images = opts.Images
	}
	return &Service{
		store:    opts.Store,
		images:   opts.Images,
		workers:  max(opts.Workers, 1),
		logger:   logger,
		epubText: epub.NewExtractor(images, logger),
		detector: txt.NewDetector(logger),
		txtText:  txt.NewExtractor(logger),
		lengths:  length.NewCalculator(logger),
		progress: progress.NewCalculator(opts.Store),
	}
}

// BookID returns the stable ID of the book stored at the absolute path.
func BookID(absPath string) string {
	return uuid.NewSHA1(bookNamespace, []byte(filepath.ToSlash(absPath))).String()
}

// FormatOf returns the book format implied by the file extension.
func FormatOf(path string) (book.Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".epub":
		return book.FormatEPUB, nil
	case ".txt":
		return book.FormatTXT, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Base(path))
}

func (s *Service) open(b *book.Book) source.Source {
	return source.WithName(source.NewFile(b.Path), b.ID)
}

// Book returns a stored book.
func (s *Service) Book(ctx context.Context, id string) (*book.Book, error) {
	return s.store.GetBook(ctx, id)
}

// Books lists all stored books.
func (s *Service) Books(ctx context.Context) ([]*book.Book, error) {
	return s.store.ListBooks(ctx)
}

// Remove deletes a book with its chapters and progress. Source files and
// cached images are left in place.
func (s *Service) Remove(ctx context.Context, id string) error {
	return s.store.DeleteBook(ctx, id)
}

// Chapters returns the chapters of a book in reading order.
func (s *Service) Chapters(ctx context.Context, bookID string) ([]book.Chapter, error) {
	if _, err := s.store.GetBook(ctx, bookID); err != nil {
		return nil, err
	}
	return s.store.GetChapters(ctx, bookID)
}

func (s *Service) chapter(ctx context.Context, bookID string, index int) (*book.Book, []book.Chapter, error) {
	b, err := s.store.GetBook(ctx, bookID)
	if err != nil {
		return nil, nil, err
	}
	chapters, err := s.store.GetChapters(ctx, bookID)
	if err != nil {
		return nil, nil, err
	}
	if index < 0 || index >= len(chapters) {
		return nil, nil, fmt.Errorf("%w: %d of %d", ErrChapterOutOfRange, index, len(chapters))
	}
	return b, chapters, nil
}

// OpenChapter extracts the content blocks of one chapter.
func (s *Service) OpenChapter(ctx context.Context, bookID string, index int) ([]book.Block, error) {
	b, chapters, err := s.chapter(ctx, bookID, index)
	if err != nil {
		return nil, err
	}
	src := s.open(b)

	var blocks []book.Block
	switch ch := chapters[index].(type) {
	case *book.EpubChapter:
		blocks, err = s.epubText.ExtractChapter(ctx, src, ch.Href)
	case *book.TxtChapter:
		cs, csErr := s.charset(ctx, b, src)
		if csErr != nil {
			return nil, csErr
		}
		blocks, err = s.txtText.ExtractChapter(ctx, src, ch, cs)
	}
	if err != nil {
		return nil, fmt.Errorf("open chapter %d of %s: %w", index, bookID, err)
	}
	metrics.BlocksExtracted.WithLabelValues(string(b.Format)).Add(float64(len(blocks)))
	return blocks, nil
}

// charset returns the recorded encoding of a TXT book, detecting and
// recording it first when missing.
func (s *Service) charset(ctx context.Context, b *book.Book, src source.Source) (string, error) {
	if b.Charset != "" {
		return b.Charset, nil
	}
	cs, err := txt.SniffCharset(src)
	if err != nil {
		return "", fmt.Errorf("detect charset: %w", err)
	}
	if err := s.store.UpdateChapters(ctx, b.ID, nil, cs); err != nil {
		s.logger.Warn("failed to record charset", "book", b.ID, "error", err)
	}
	b.Charset = cs
	return cs, nil
}

// Paginate extracts one chapter and lays it out on pages of the given size.
func (s *Service) Paginate(ctx context.Context, bookID string, index int, style layout.Style, m layout.Measurer, width, height float64) ([]layout.Page, error) {
	blocks, err := s.OpenChapter(ctx, bookID, index)
	if err != nil {
		return nil, err
	}
	pages := layout.Paginate(blocks, style, m, width, height)
	metrics.PagesLaidOut.Observe(float64(len(pages)))
	return pages, nil
}

// RefineLengths computes exact character counts for every chapter of a
// book that still has an estimate, and returns how many were updated.
func (s *Service) RefineLengths(ctx context.Context, bookID string) (int, error) {
	b, err := s.store.GetBook(ctx, bookID)
	if err != nil {
		return 0, err
	}
	chapters, err := s.store.GetChapters(ctx, bookID)
	if err != nil {
		return 0, err
	}

	res, err := s.lengths.Calculate(ctx, b, s.open(b), chapters)
	if err != nil {
		return 0, fmt.Errorf("refine lengths of %s: %w", bookID, err)
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := s.store.UpdateChapters(ctx, bookID, res.Updated, res.Charset); err != nil {
		return 0, fmt.Errorf("save lengths of %s: %w", bookID, err)
	}
	metrics.LengthsRefined.Add(float64(len(res.Updated)))
	s.logger.Debug("chapter lengths refined", "book", bookID, "updated", len(res.Updated))
	return len(res.Updated), nil
}

// UpdateProgress records a reading position given as a chapter and a
// character offset inside it.
func (s *Service) UpdateProgress(ctx context.Context, bookID string, chapterIndex, offset int, hints map[string]string) (*book.ReadingProgress, error) {
	_, chapters, err := s.chapter(ctx, bookID, chapterIndex)
	if err != nil {
		return nil, err
	}
	lengths := book.EffectiveLengths(chapters)
	p := &book.ReadingProgress{
		BookID:                 bookID,
		ChapterIndex:           chapterIndex,
		ChapterOffsetCharIndex: max(offset, 0),
		ProgressPercent:        progress.Percent(lengths, chapterIndex, progress.Within(offset, lengths[chapterIndex])),
		Hints:                  hints,
		UpdatedAt:              time.Now(),
	}
	if err := s.store.SaveProgress(ctx, p); err != nil {
		return nil, fmt.Errorf("save progress of %s: %w", bookID, err)
	}
	return p, nil
}

// Progress returns the saved reading position with its percentage
// recomputed against the current chapter lengths.
func (s *Service) Progress(ctx context.Context, bookID string) (*book.ReadingProgress, error) {
	if _, err := s.store.GetBook(ctx, bookID); err != nil {
		return nil, err
	}
	p, err := s.store.GetProgress(ctx, bookID)
	if err != nil {
		return nil, err
	}
	percent, err := s.progress.ComputePercent(ctx, bookID)
	if err != nil {
		return nil, err
	}
	p.ProgressPercent = percent
	return p, nil
}

// Seek moves the reading position to a fraction of the whole book.
func (s *Service) Seek(ctx context.Context, bookID string, percent float64) (*book.ReadingProgress, error) {
	chapters, err := s.Chapters(ctx, bookID)
	if err != nil {
		return nil, err
	}
	if len(chapters) == 0 {
		return nil, fmt.Errorf("%w: book has no chapters", ErrChapterOutOfRange)
	}
	ch, offset := progress.Locate(book.EffectiveLengths(chapters), percent)
	return s.UpdateProgress(ctx, bookID, ch, offset, nil)
}

// ImportResult is the outcome of importing one file.
type ImportResult struct {
	Path     string
	Book     *book.Book
	Chapters int
	Err      error
}

// Import adds the files at paths to the library, at most Workers at a time.
// Every path gets a result in the same order; a failed file persists nothing
// and does not affect the others. Importing a path again replaces its
// chapters but keeps its reading progress.
func (s *Service) Import(ctx context.Context, paths ...string) []ImportResult {
	results := make([]ImportResult, len(paths))

	var g errgroup.Group
	g.SetLimit(s.workers)
	for i, p := range paths {
		g.Go(func() error {
			results[i] = s.importOne(ctx, p)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (s *Service) importOne(ctx context.Context, path string) ImportResult {
	start := time.Now()
	res := ImportResult{Path: path}

	b, chapters, err := s.parse(ctx, path)
	if err == nil {
		err = ctx.Err()
	}
	if err == nil {
		err = s.store.SaveImport(ctx, b, chapters)
	}

	var format string
	if b != nil {
		format = string(b.Format)
	}
	metrics.ObserveImport(format, start, err)

	if err != nil {
		s.logger.Warn("import failed", "path", path, "error", err)
		res.Err = err
		return res
	}
	metrics.ChaptersDetected.WithLabelValues(format).Observe(float64(len(chapters)))
	s.logger.Info("book imported", "path", path, "id", b.ID, "title", b.Title, "chapters", len(chapters))
	res.Book = b
	res.Chapters = len(chapters)
	return res
}

// parse builds the book record and chapter list of one file.
func (s *Service) parse(ctx context.Context, path string) (*book.Book, []book.Chapter, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve path: %w", err)
	}
	format, err := FormatOf(abs)
	if err != nil {
		return nil, nil, err
	}

	b := &book.Book{
		ID:         BookID(abs),
		Format:     format,
		Path:       abs,
		Title:      strings.TrimSuffix(filepath.Base(abs), filepath.Ext(abs)),
		ImportedAt: time.Now(),
	}
	src := s.open(b)
	if b.SizeBytes, err = src.Size(); err != nil {
		return b, nil, err
	}

	var chapters []book.Chapter
	switch format {
	case book.FormatEPUB:
		chapters, err = s.parseEPUB(src, b)
	case book.FormatTXT:
		chapters, err = s.parseTXT(ctx, src, b)
	}
	if err != nil {
		return b, nil, err
	}
	if len(chapters) == 0 {
		s.logger.Warn("book has no chapters", "path", abs)
	}
	return b, chapters, nil
}

func (s *Service) parseEPUB(src source.Source, b *book.Book) ([]book.Chapter, error) {
	pkg, err := epub.Resolve(src)
	if err != nil {
		return nil, err
	}

	md := pkg.Metadata
	if md.Title != "" {
		b.Title = md.Title
	}
	b.Authors = md.Creators
	b.Language = md.Language
	b.Description = md.Description
	b.Publisher = md.Publisher
	b.Subjects = md.Subjects
	b.UniqueID = pkg.UniqueID

	if s.images != nil {
		cover, err := epub.ExtractCover(src, pkg, s.images)
		if err != nil {
			s.logger.Warn("cover extraction failed, skipping", "path", b.Path, "error", err)
		}
		b.CoverPath = cover
	}

	epubChapters := pkg.Chapters(b.ID)
	chapters := make([]book.Chapter, len(epubChapters))
	for i, ch := range epubChapters {
		chapters[i] = ch
	}
	return chapters, nil
}

func (s *Service) parseTXT(ctx context.Context, src source.Source, b *book.Book) ([]book.Chapter, error) {
	det, err := s.detector.Detect(ctx, src, b.ID)
	if err != nil {
		return nil, err
	}
	b.Charset = det.Charset

	chapters := make([]book.Chapter, len(det.Chapters))
	for i, ch := range det.Chapters {
		chapters[i] = ch
	}
	return chapters, nil
}
