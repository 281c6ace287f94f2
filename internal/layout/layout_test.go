package layout

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yuanying/readercore/internal/book"
)

// gridMeasurer wraps every maxWidth/FontSize runes; '\n' forces a break.
type gridMeasurer struct{}

func (gridMeasurer) Measure(text string, style TextStyle, maxWidth float64) TextLayout {
	cols := int(maxWidth / style.FontSize)
	if cols < 1 {
		cols = 1
	}
	spacing := style.LineSpacing
	if spacing == 0 {
		spacing = 1
	}
	lineHeight := style.FontSize * spacing

	var tl TextLayout
	n := 0
	for i, r := range text {
		n++
		end := i + utf8.RuneLen(r)
		if r == '\n' || n == cols || end == len(text) {
			tl.Lines = append(tl.Lines, Line{
				Bottom:     float64(len(tl.Lines)+1) * lineHeight,
				End:        end,
				VisibleEnd: len(strings.TrimRight(text[:end], " \n")),
			})
			n = 0
		}
	}
	tl.Height = float64(len(tl.Lines)) * lineHeight
	return tl
}

func testStyle() Style {
	return Style{
		Paragraph:     TextStyle{FontSize: 10, LineSpacing: 1},
		Title:         TextStyle{FontSize: 10, LineSpacing: 1},
		Caption:       TextStyle{FontSize: 10, LineSpacing: 1},
		ItemSpacing:   5,
		DividerHeight: 2,
	}
}

func TestPaginate_ExactFitStartsFreshPage(t *testing.T) {
	blocks := []book.Block{
		book.Paragraph{StartIndex: 0, Text: strings.Repeat("abcdefghij", 3)},
		book.Title{StartIndex: 30, Text: "Next", Level: 1},
	}

	pages := Paginate(blocks, testStyle(), gridMeasurer{}, 100, 30)
	require.Len(t, pages, 2)

	require.Len(t, pages[0].Items, 1)
	split, ok := pages[0].Items[0].(TextSplit)
	require.True(t, ok)
	assert.True(t, split.IsStart)
	assert.True(t, split.IsEnd)
	assert.Equal(t, 0, split.Start)
	assert.Equal(t, 30, split.End)

	require.Len(t, pages[1].Items, 1)
	assert.Equal(t, Whole{Block: blocks[1]}, pages[1].Items[0])
}

func TestPaginate_SplitAfterTitle(t *testing.T) {
	para := book.Paragraph{StartIndex: 4, Text: strings.Repeat("0123456789", 3)}
	blocks := []book.Block{
		book.Title{StartIndex: 0, Text: "Head", Level: 1},
		para,
	}

	pages := Paginate(blocks, testStyle(), gridMeasurer{}, 100, 30)
	require.Len(t, pages, 2)

	// 30 - 10 (title) - 5 (spacing) leaves room for one line.
	require.Len(t, pages[0].Items, 2)
	first := pages[0].Items[1].(TextSplit)
	assert.Equal(t, TextSplit{Paragraph: para, Start: 0, End: 10, Text: "0123456789", StartCharIndex: 4, IsStart: true}, first)

	require.Len(t, pages[1].Items, 1)
	second := pages[1].Items[0].(TextSplit)
	assert.Equal(t, 10, second.Start)
	assert.Equal(t, 30, second.End)
	assert.Equal(t, 14, second.StartCharIndex)
	assert.False(t, second.IsStart)
	assert.True(t, second.IsEnd)
	assert.Equal(t, 14, pages[1].StartCharIndex())
}

func TestPaginate_OversizedFirstLine(t *testing.T) {
	style := testStyle()
	style.Paragraph = TextStyle{FontSize: 10, LineSpacing: 5} // 50 per line on a 30 high page
	para := book.Paragraph{Text: strings.Repeat("x", 25)}

	pages := Paginate([]book.Block{para}, style, gridMeasurer{}, 100, 30)
	require.Len(t, pages, 3)
	for i, p := range pages {
		require.Len(t, p.Items, 1, "page %d", i)
	}
	assert.Equal(t, 10, pages[0].Items[0].(TextSplit).End)
	assert.Equal(t, 20, pages[1].Items[0].(TextSplit).End)
	last := pages[2].Items[0].(TextSplit)
	assert.Equal(t, 25, last.End)
	assert.True(t, last.IsEnd)
}

// unbreakableMeasurer reports a single line that cannot be split.
type unbreakableMeasurer struct{}

func (unbreakableMeasurer) Measure(text string, style TextStyle, maxWidth float64) TextLayout {
	return TextLayout{Height: 1000, Lines: []Line{{Bottom: 1000, End: 0}}}
}

func TestPaginate_UnsplittableParagraph(t *testing.T) {
	blocks := []book.Block{
		book.Paragraph{Text: "first"},
		book.Paragraph{StartIndex: 5, Text: "second"},
	}
	pages := Paginate(blocks, testStyle(), unbreakableMeasurer{}, 100, 30)
	require.Len(t, pages, 2)
	for i, p := range pages {
		require.Len(t, p.Items, 1)
		s := p.Items[0].(TextSplit)
		assert.True(t, s.IsStart && s.IsEnd, "page %d", i)
	}
}

func TestPaginate_WholeBlocks(t *testing.T) {
	blocks := []book.Block{
		book.Title{StartIndex: 0, Text: "T", Level: 2},
		book.Divider{StartIndex: 1},
		book.Image{StartIndex: 1, Path: "/a.jpg"},                    // 4:3 fallback, 75 high
		book.Image{StartIndex: 1, Path: "/b.jpg", AspectRatio: 0.25}, // 400 high, capped at 100
		book.ImageCaption{StartIndex: 1, Text: "cap"},
	}

	pages := Paginate(blocks, testStyle(), gridMeasurer{}, 100, 100)
	require.Len(t, pages, 3)

	// 10 + 5 + 2 + 5 + 75 = 97
	assert.Len(t, pages[0].Items, 3)
	assert.Len(t, pages[1].Items, 1)
	assert.Equal(t, Whole{Block: blocks[3]}, pages[1].Items[0])
	assert.Equal(t, Whole{Block: blocks[4]}, pages[2].Items[0])
}

func TestPaginate_SplitProperties(t *testing.T) {
	texts := []string{
		"short",
		strings.Repeat("word ", 40),
		strings.Repeat("日本語の文章です。", 12),
		"line one\nline two\nline three\n" + strings.Repeat("z", 57),
	}
	for _, height := range []float64{12, 30, 47, 100, 1000} {
		var blocks []book.Block
		start := 0
		for i, text := range texts {
			blocks = append(blocks, book.Title{StartIndex: start, Text: "Section", Level: i%3 + 1})
			blocks = append(blocks, book.Paragraph{StartIndex: start, Text: text})
			start += utf8.RuneCountInString(text)
		}

		pages := Paginate(blocks, testStyle(), gridMeasurer{}, 80, height)

		joined := make(map[int]*strings.Builder)
		starts := make(map[int]int)
		ends := make(map[int]int)
		for _, p := range pages {
			require.NotEmpty(t, p.Items)
			for _, item := range p.Items {
				s, ok := item.(TextSplit)
				if !ok {
					continue
				}
				key := s.Paragraph.StartIndex
				if joined[key] == nil {
					joined[key] = &strings.Builder{}
				}
				assert.Equal(t, s.Paragraph.StartIndex+utf8.RuneCountInString(s.Paragraph.Text[:s.Start]), s.StartCharIndex)
				joined[key].WriteString(s.Text)
				if s.IsStart {
					starts[key]++
				}
				if s.IsEnd {
					ends[key]++
				}
			}
		}

		for _, b := range blocks {
			para, ok := b.(book.Paragraph)
			if !ok {
				continue
			}
			key := para.StartIndex
			require.NotNil(t, joined[key], "height %v", height)
			assert.Equal(t, para.Text, joined[key].String(), "height %v", height)
			assert.Equal(t, 1, starts[key], "height %v", height)
			assert.Equal(t, 1, ends[key], "height %v", height)
		}
	}
}

func TestPaginate_Empty(t *testing.T) {
	assert.Empty(t, Paginate(nil, DefaultStyle(), gridMeasurer{}, 100, 100))
}

func TestPageFor(t *testing.T) {
	pages := Paginate([]book.Block{
		book.Paragraph{StartIndex: 0, Text: strings.Repeat("a", 30)},
		book.Paragraph{StartIndex: 30, Text: strings.Repeat("b", 30)},
	}, testStyle(), gridMeasurer{}, 100, 20)
	require.Len(t, pages, 4)

	tests := []struct {
		charIndex int
		want      int
	}{
		{0, 0},
		{19, 0},
		{20, 1},
		{35, 2},
		{59, 3},
		{500, 3},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, PageFor(pages, tt.charIndex), "charIndex %d", tt.charIndex)
	}
}

func TestTitleStyleScalesDown(t *testing.T) {
	s := DefaultStyle()
	assert.Equal(t, s.Title, s.titleStyle(1))
	assert.Less(t, s.titleStyle(3).FontSize, s.Title.FontSize)
	assert.GreaterOrEqual(t, s.titleStyle(6).FontSize, s.Paragraph.FontSize)
}
