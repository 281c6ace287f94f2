// Package layout distributes content blocks over fixed-size pages.
//
// Text is never measured here: a Measurer supplied by the caller wraps text
// into lines, and the paginator only decides where pages break. Paragraphs
// are split at line ends reported by the measurer; every other block is
// placed whole.
package layout

import (
	"unicode/utf8"

	"github.com/yuanying/readercore/internal/book"
)

// TextStyle describes how a run of text is typeset.
type TextStyle struct {
	FontSize    float64
	LineSpacing float64 // line height as a multiple of FontSize
	Bold        bool
	Italic      bool
}

// Line is one wrapped line of a measured text.
type Line struct {
	Bottom     float64 // distance from the top of the layout to the line's bottom edge
	End        int     // byte offset just past the line, trailing whitespace included
	VisibleEnd int     // byte offset just past the last visible character
}

// TextLayout is the result of measuring a text at a given width.
type TextLayout struct {
	Height float64
	Lines  []Line
}

// LineCount returns the number of wrapped lines.
func (l TextLayout) LineCount() int { return len(l.Lines) }

// LineBottom returns the bottom edge of line i.
func (l TextLayout) LineBottom(i int) float64 { return l.Lines[i].Bottom }

// LineEnd returns the byte offset just past line i. With visibleEnd set,
// trailing whitespace of the line is excluded.
func (l TextLayout) LineEnd(i int, visibleEnd bool) int {
	if visibleEnd {
		return l.Lines[i].VisibleEnd
	}
	return l.Lines[i].End
}

// Measurer wraps text into lines no wider than maxWidth.
// Offsets in the returned layout are byte offsets into text.
type Measurer interface {
	Measure(text string, style TextStyle, maxWidth float64) TextLayout
}

// Style holds the typesetting parameters of a page.
type Style struct {
	Paragraph     TextStyle
	Title         TextStyle // level 1; deeper levels are scaled down
	Caption       TextStyle
	ItemSpacing   float64 // vertical gap between two items on the same page
	DividerHeight float64
}

// DefaultStyle returns the style used when none is configured.
func DefaultStyle() Style {
	return Style{
		Paragraph:     TextStyle{FontSize: 16, LineSpacing: 1.5},
		Title:         TextStyle{FontSize: 24, LineSpacing: 1.3, Bold: true},
		Caption:       TextStyle{FontSize: 13, LineSpacing: 1.3, Italic: true},
		ItemSpacing:   12,
		DividerHeight: 16,
	}
}

func (s Style) titleStyle(level int) TextStyle {
	ts := s.Title
	if level <= 1 {
		return ts
	}
	ts.FontSize *= 1 - 0.1*float64(min(level, 6)-1)
	if ts.FontSize < s.Paragraph.FontSize {
		ts.FontSize = s.Paragraph.FontSize
	}
	return ts
}

// PageItem is Whole or TextSplit.
type PageItem interface {
	isPageItem()
}

// Whole is a block placed on a page without splitting.
type Whole struct {
	Block book.Block
}

// TextSplit is the part [Start, End) of a paragraph's text placed on one page.
// Start and End are byte offsets into Paragraph.Text.
type TextSplit struct {
	Paragraph      book.Paragraph
	Start          int
	End            int
	Text           string
	StartCharIndex int // rune offset of Text within the chapter
	IsStart        bool
	IsEnd          bool
}

func (Whole) isPageItem()     {}
func (TextSplit) isPageItem() {}

// Page is the ordered content of one screen.
type Page struct {
	Items []PageItem
}

// StartCharIndex returns the chapter rune offset of the page's first item.
func (p Page) StartCharIndex() int {
	if len(p.Items) == 0 {
		return 0
	}
	switch it := p.Items[0].(type) {
	case Whole:
		return it.Block.Start()
	case TextSplit:
		return it.StartCharIndex
	}
	return 0
}

// PageFor returns the index of the page that shows the character at
// charIndex: the last page starting at or before it.
func PageFor(pages []Page, charIndex int) int {
	idx := 0
	for i, p := range pages {
		if len(p.Items) == 0 || p.StartCharIndex() > charIndex {
			break
		}
		idx = i
	}
	return idx
}

// Paginate lays blocks out on pages of the given size.
func Paginate(blocks []book.Block, style Style, m Measurer, width, height float64) []Page {
	p := &paginator{style: style, m: m, width: width, height: height}
	for _, b := range blocks {
		if para, ok := b.(book.Paragraph); ok {
			p.paragraph(para)
			continue
		}
		p.whole(b)
	}
	p.flush()
	return p.pages
}

type paginator struct {
	style  Style
	m      Measurer
	width  float64
	height float64

	pages []Page
	items []PageItem
	used  float64
}

func (p *paginator) spacing() float64 {
	if len(p.items) == 0 {
		return 0
	}
	return p.style.ItemSpacing
}

func (p *paginator) remaining() float64 {
	return p.height - p.used - p.spacing()
}

// place appends an item of height h and closes the page once it is full.
func (p *paginator) place(item PageItem, h float64) {
	p.used += p.spacing() + h
	p.items = append(p.items, item)
	if p.used >= p.height {
		p.flush()
	}
}

func (p *paginator) flush() {
	if len(p.items) == 0 {
		return
	}
	p.pages = append(p.pages, Page{Items: p.items})
	p.items = nil
	p.used = 0
}

func (p *paginator) whole(b book.Block) {
	h := p.blockHeight(b)
	if h > p.remaining() && len(p.items) > 0 {
		p.flush()
	}
	p.place(Whole{Block: b}, h)
}

func (p *paginator) blockHeight(b book.Block) float64 {
	switch b := b.(type) {
	case book.Title:
		return p.m.Measure(b.Text, p.style.titleStyle(b.Level), p.width).Height
	case book.ImageCaption:
		return p.m.Measure(b.Text, p.style.Caption, p.width).Height
	case book.Divider:
		return p.style.DividerHeight
	case book.Image:
		h := p.width * 3 / 4
		if b.AspectRatio > 0 {
			h = p.width / b.AspectRatio
		}
		return min(h, p.height)
	}
	return 0
}

// paragraph places para, splitting it at measured line ends whenever the
// rest of the current page cannot hold it.
func (p *paginator) paragraph(para book.Paragraph) {
	text := para.Text
	start := 0
	charIndex := para.StartIndex
	isStart := true

	for start < len(text) {
		sub := text[start:]
		tl := p.m.Measure(sub, p.style.Paragraph, p.width)
		avail := p.remaining()

		if tl.Height <= avail {
			p.place(p.split(para, start, len(text), charIndex, isStart, true), tl.Height)
			return
		}

		last := -1
		for i := 0; i < tl.LineCount(); i++ {
			if tl.LineBottom(i) > avail {
				break
			}
			last = i
		}
		if last < 0 {
			if len(p.items) > 0 {
				p.flush()
				continue
			}
			// Not even one line fits an empty page.
			last = 0
		}

		end := 0
		if tl.LineCount() > 0 {
			end = lineBoundary(sub, tl.LineEnd(last, false))
		}
		if end <= 0 || end >= len(sub) {
			p.place(p.split(para, start, len(text), charIndex, isStart, true), tl.Height)
			return
		}

		p.place(p.split(para, start, start+end, charIndex, isStart, false), tl.LineBottom(last))
		p.flush()

		charIndex += utf8.RuneCountInString(sub[:end])
		start += end
		isStart = false
	}
}

func (p *paginator) split(para book.Paragraph, start, end, charIndex int, isStart, isEnd bool) TextSplit {
	return TextSplit{
		Paragraph:      para,
		Start:          start,
		End:            end,
		Text:           para.Text[start:end],
		StartCharIndex: charIndex,
		IsStart:        isStart,
		IsEnd:          isEnd,
	}
}

// lineBoundary clamps a measurer offset into s and moves it back onto a
// rune boundary.
func lineBoundary(s string, end int) int {
	if end >= len(s) {
		return len(s)
	}
	for end > 0 && !utf8.RuneStart(s[end]) {
		end--
	}
	return max(end, 0)
}
