package store

import (
	"encoding/json"
	"fmt"

	"github.com/yuanying/readercore/internal/book"
)

const (
	kindEPUB = "epub"
	kindTXT  = "txt"
)

// chapterRecord is the stored form of a book.Chapter. Kind selects which of
// the variant fields is set.
type chapterRecord struct {
	Kind string            `json:"kind"`
	EPUB *book.EpubChapter `json:"epub,omitempty"`
	TXT  *book.TxtChapter  `json:"txt,omitempty"`
}

func encodeChapter(ch book.Chapter) ([]byte, error) {
	var rec chapterRecord
	switch ch := ch.(type) {
	case *book.EpubChapter:
		rec = chapterRecord{Kind: kindEPUB, EPUB: ch}
	case *book.TxtChapter:
		rec = chapterRecord{Kind: kindTXT, TXT: ch}
	default:
		return nil, fmt.Errorf("unsupported chapter type %T", ch)
	}
	return json.Marshal(rec)
}

func decodeChapter(data []byte) (book.Chapter, error) {
	var rec chapterRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	switch {
	case rec.Kind == kindEPUB && rec.EPUB != nil:
		return rec.EPUB, nil
	case rec.Kind == kindTXT && rec.TXT != nil:
		return rec.TXT, nil
	}
	return nil, fmt.Errorf("%w: chapter kind %q", ErrCorrupt, rec.Kind)
}
