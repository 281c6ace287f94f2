// Package store persists books, their chapters and reading progress in a
// Badger database.
//
// Keys:
//
//	book:{bookID}                  -> book.Book
//	chapter:{bookID}:{index:%010d}  -> chapter envelope
//	progress:{bookID}              -> book.ReadingProgress
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"github.com/yuanying/readercore/internal/book"
)

const (
	bookPrefix     = "book:"
	chapterPrefix  = "chapter:"
	progressPrefix = "progress:"
)

var (
	// ErrBookNotFound is returned when no book has the requested ID.
	ErrBookNotFound = errors.New("book not found")
	// ErrCorrupt is returned when a stored record cannot be decoded.
	ErrCorrupt = errors.New("corrupt record")
)

// Store wraps a Badger database instance.
type Store struct {
	db     *badger.DB
	logger *slog.Logger
}

// New opens (or creates) the database in dir.
func New(dir string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil
	opts.SyncWrites = true
	opts.CompactL0OnClose = true

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}
	logger.Debug("database opened", "path", dir)
	return &Store{db: db, logger: logger}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func bookKey(id string) []byte {
	return []byte(bookPrefix + id)
}

func chapterBookPrefix(bookID string) []byte {
	return []byte(chapterPrefix + bookID + ":")
}

func chapterKey(bookID string, index int) []byte {
	return fmt.Appendf(nil, "%s%s:%010d", chapterPrefix, bookID, index)
}

func progressKey(bookID string) []byte {
	return []byte(progressPrefix + bookID)
}

func setJSON(txn *badger.Txn, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}
	return txn.Set(key, data)
}

func getJSON(txn *badger.Txn, key []byte, dest any) error {
	item, err := txn.Get(key)
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		if err := json.Unmarshal(val, dest); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrCorrupt, key, err)
		}
		return nil
	})
}

func deletePrefix(txn *badger.Txn, prefix []byte) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)

	var keys [][]byte
	for it.Rewind(); it.ValidForPrefix(prefix); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	it.Close()

	for _, k := range keys {
		if err := txn.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

// SaveBook creates or replaces a book record.
func (s *Store) SaveBook(ctx context.Context, b *book.Book) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return setJSON(txn, bookKey(b.ID), b)
	})
}

// SaveImport writes a book and its full chapter list in one transaction,
// replacing any earlier chapters of the book.
func (s *Store) SaveImport(ctx context.Context, b *book.Book, chapters []book.Chapter) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		if err := setJSON(txn, bookKey(b.ID), b); err != nil {
			return err
		}
		return putChapters(txn, b.ID, chapters, true)
	})
	if err != nil {
		return fmt.Errorf("save import: %w", err)
	}
	return nil
}

// GetBook retrieves a book by ID.
func (s *Store) GetBook(_ context.Context, id string) (*book.Book, error) {
	var b book.Book
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, bookKey(id), &b)
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, ErrBookNotFound
		}
		return nil, fmt.Errorf("get book: %w", err)
	}
	return &b, nil
}

// ListBooks returns every book ordered by title.
func (s *Store) ListBooks(_ context.Context) ([]*book.Book, error) {
	var books []*book.Book
	prefix := []byte(bookPrefix)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			var b book.Book
			err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &b)
			})
			if err != nil {
				s.logger.Warn("skipping unreadable book record", "key", string(item.Key()), "error", err)
				continue
			}
			books = append(books, &b)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	slices.SortStableFunc(books, func(a, b *book.Book) int {
		return strings.Compare(strings.ToLower(a.Title), strings.ToLower(b.Title))
	})
	return books, nil
}

// DeleteBook removes a book with its chapters and progress.
func (s *Store) DeleteBook(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(bookKey(id)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrBookNotFound
			}
			return err
		}
		if err := txn.Delete(bookKey(id)); err != nil {
			return err
		}
		if err := txn.Delete(progressKey(id)); err != nil {
			return err
		}
		return deletePrefix(txn, chapterBookPrefix(id))
	})
}

// ReplaceChapters replaces the whole chapter list of a book.
func (s *Store) ReplaceChapters(ctx context.Context, bookID string, chapters []book.Chapter) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return putChapters(txn, bookID, chapters, true)
	})
}

// UpdateChapters overwrites the given chapters of a book. A non-empty
// charset is recorded on the book in the same transaction.
func (s *Store) UpdateChapters(ctx context.Context, bookID string, changed []book.Chapter, charset string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(changed) == 0 && charset == "" {
		return nil
	}
	return s.db.Update(func(txn *badger.Txn) error {
		if charset != "" {
			var b book.Book
			if err := getJSON(txn, bookKey(bookID), &b); err != nil {
				if errors.Is(err, badger.ErrKeyNotFound) {
					return ErrBookNotFound
				}
				return err
			}
			b.Charset = charset
			if err := setJSON(txn, bookKey(bookID), &b); err != nil {
				return err
			}
		}
		return putChapters(txn, bookID, changed, false)
	})
}

func putChapters(txn *badger.Txn, bookID string, chapters []book.Chapter, replace bool) error {
	if replace {
		if err := deletePrefix(txn, chapterBookPrefix(bookID)); err != nil {
			return err
		}
	}
	for _, ch := range chapters {
		data, err := encodeChapter(ch)
		if err != nil {
			return err
		}
		if err := txn.Set(chapterKey(bookID, ch.Info().Index), data); err != nil {
			return err
		}
	}
	return nil
}

// GetChapters returns the chapters of a book in index order.
func (s *Store) GetChapters(_ context.Context, bookID string) ([]book.Chapter, error) {
	chapters := []book.Chapter{}
	prefix := chapterBookPrefix(bookID)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			err := item.Value(func(val []byte) error {
				ch, err := decodeChapter(val)
				if err != nil {
					return fmt.Errorf("%s: %w", item.Key(), err)
				}
				chapters = append(chapters, ch)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get chapters: %w", err)
	}
	return chapters, nil
}

// SaveProgress records the reading position of a book.
func (s *Store) SaveProgress(ctx context.Context, p *book.ReadingProgress) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return setJSON(txn, progressKey(p.BookID), p)
	})
}

// GetProgress returns the saved reading position of a book, or the default
// position when none was saved.
func (s *Store) GetProgress(_ context.Context, bookID string) (*book.ReadingProgress, error) {
	var p book.ReadingProgress
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, progressKey(bookID), &p)
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return book.DefaultProgress(bookID), nil
		}
		return nil, fmt.Errorf("get progress: %w", err)
	}
	return &p, nil
}
