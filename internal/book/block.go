package book

import "unicode/utf8"

// StyleType is the inline style of a paragraph run
type StyleType int

const (
	StyleBold StyleType = iota + 1
	StyleItalic
)

// String returns the style name.
func (s StyleType) String() string {
	switch s {
	case StyleBold:
		return "bold"
	case StyleItalic:
		return "italic"
	default:
		return "unknown"
	}
}

// StyleRange marks [Start, End) byte offsets of a paragraph's Text with a style.
type StyleRange struct {
	Start int       `json:"start"`
	End   int       `json:"end"`
	Type  StyleType `json:"type"`
}

// Block is one semantic unit of chapter content.
// It is implemented by Title, Paragraph, Divider, Image and ImageCaption.
type Block interface {
	// Start returns the rune offset of the block's first character within its chapter.
	Start() int
	// CharLen returns the number of characters the block contributes to the chapter.
	CharLen() int
	isBlock()
}

// Title is a heading
type Title struct {
	StartIndex int
	Text       string
	Level      int // 1..6 for EPUB headings, 1 for TXT chapter titles
}

// Paragraph is body text with inline styles
type Paragraph struct {
	StartIndex int
	Text       string
	Styles     []StyleRange
}

// Divider separates a title from the following content
type Divider struct {
	StartIndex int
}

// Image references a locally cached picture
type Image struct {
	StartIndex  int
	Path        string
	AspectRatio float64 // width / height
	BlurHash    string
}

// ImageCaption is the caption text of a figure
type ImageCaption struct {
	StartIndex int
	Text       string
}

func (b Title) Start() int        { return b.StartIndex }
func (b Paragraph) Start() int    { return b.StartIndex }
func (b Divider) Start() int      { return b.StartIndex }
func (b Image) Start() int        { return b.StartIndex }
func (b ImageCaption) Start() int { return b.StartIndex }

func (b Title) CharLen() int        { return utf8.RuneCountInString(b.Text) }
func (b Paragraph) CharLen() int    { return utf8.RuneCountInString(b.Text) }
func (Divider) CharLen() int        { return 0 }
func (Image) CharLen() int          { return 0 }
func (b ImageCaption) CharLen() int { return utf8.RuneCountInString(b.Text) }

func (Title) isBlock()        {}
func (Paragraph) isBlock()    {}
func (Divider) isBlock()      {}
func (Image) isBlock()        {}
func (ImageCaption) isBlock() {}
