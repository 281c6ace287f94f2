package book

// UnknownLength marks a chapter whose exact character count has not been computed yet.
const UnknownLength int64 = -1

// ChapterInfo holds the fields shared by every chapter variant
type ChapterInfo struct {
	BookID        string `json:"bookId"`
	Index         int    `json:"index"`
	Title         string `json:"title"`
	FileSizeBytes int64  `json:"fileSizeBytes"` // approximate length proxy
	RealCharCount int64  `json:"realCharCount"` // UnknownLength until measured
}

// EffectiveLength returns the exact character count when known, otherwise the byte size.
func (c *ChapterInfo) EffectiveLength() int64 {
	if c.RealCharCount >= 0 {
		return c.RealCharCount
	}
	return c.FileSizeBytes
}

// IsPrecise reports whether the exact character count has been recorded.
func (c *ChapterInfo) IsPrecise() bool {
	return c.RealCharCount >= 0
}

// Chapter is implemented by *EpubChapter and *TxtChapter only.
type Chapter interface {
	Info() *ChapterInfo
	Clone() Chapter
	isChapter()
}

// EpubChapter is a spine item of an EPUB book
type EpubChapter struct {
	ChapterInfo
	Href string `json:"href"` // archive-relative path, no fragment
}

// Info returns the shared chapter fields.
func (c *EpubChapter) Info() *ChapterInfo { return &c.ChapterInfo }

// Clone returns a copy of the chapter.
func (c *EpubChapter) Clone() Chapter {
	cp := *c
	return &cp
}

func (*EpubChapter) isChapter() {}

// TxtChapter is a virtual chapter of a plain-text book, addressed by byte range
type TxtChapter struct {
	ChapterInfo
	StartOffset int64 `json:"startOffset"` // inclusive
	EndOffset   int64 `json:"endOffset"`   // exclusive
}

// Info returns the shared chapter fields.
func (c *TxtChapter) Info() *ChapterInfo { return &c.ChapterInfo }

// Clone returns a copy of the chapter.
func (c *TxtChapter) Clone() Chapter {
	cp := *c
	return &cp
}

func (*TxtChapter) isChapter() {}

// Len returns the byte length of the chapter range.
func (c *TxtChapter) Len() int64 {
	return c.EndOffset - c.StartOffset
}

// EffectiveLengths returns the effective length of every chapter in order.
func EffectiveLengths(chapters []Chapter) []int64 {
	lengths := make([]int64, len(chapters))
	for i, ch := range chapters {
		lengths[i] = ch.Info().EffectiveLength()
	}
	return lengths
}
