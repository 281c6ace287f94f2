// Package monospace implements layout.Measurer for fixed-pitch fonts.
//
// Every rune occupies one or two cells as reported by go-runewidth. Lines
// break after spaces, around East Asian wide characters, or anywhere when a
// single word overflows the line.
package monospace

import (
	"strings"
	"unicode/utf8"

	"github.com/mattn/go-runewidth"

	"github.com/yuanying/readercore/internal/layout"
)

// DefaultCellWidth is the width of a narrow cell relative to the font size.
const DefaultCellWidth = 0.5

// Measurer wraps text on a grid of cells.
type Measurer struct {
	CellWidth float64
	cond      *runewidth.Condition
}

// New returns a Measurer with DefaultCellWidth cells.
func New() *Measurer {
	cond := runewidth.NewCondition()
	cond.EastAsianWidth = false
	return &Measurer{CellWidth: DefaultCellWidth, cond: cond}
}

// Columns returns how many narrow cells fit in maxWidth.
func (m *Measurer) Columns(style layout.TextStyle, maxWidth float64) int {
	cell := style.FontSize * m.CellWidth
	if cell <= 0 {
		return 1
	}
	return max(int(maxWidth/cell), 1)
}

// Measure implements layout.Measurer.
func (m *Measurer) Measure(text string, style layout.TextStyle, maxWidth float64) layout.TextLayout {
	cols := m.Columns(style, maxWidth)
	spacing := style.LineSpacing
	if spacing <= 0 {
		spacing = 1
	}
	lineHeight := style.FontSize * spacing

	var tl layout.TextLayout
	lineStart := 0
	emit := func(end int) {
		tl.Lines = append(tl.Lines, layout.Line{
			Bottom:     float64(len(tl.Lines)+1) * lineHeight,
			End:        end,
			VisibleEnd: lineStart + len(strings.TrimRight(text[lineStart:end], " \t\r\n")),
		})
		lineStart = end
	}

	width := 0
	breakAt := -1 // last break opportunity in the current line
	for i, r := range text {
		size := utf8.RuneLen(r)
		if r == '\n' {
			emit(i + size)
			width, breakAt = 0, -1
			continue
		}

		w := m.cond.RuneWidth(r)
		if w == 2 && width > 0 {
			breakAt = i
		}
		if width+w > cols && width > 0 && r != ' ' {
			end := i
			if breakAt > lineStart {
				end = breakAt
			}
			emit(end)
			width = m.cond.StringWidth(text[end:i])
			breakAt = -1
		}
		width += w
		if r == ' ' || r == '\t' || w == 2 {
			breakAt = i + size
		}
	}
	if lineStart < len(text) {
		emit(len(text))
	}

	tl.Height = float64(len(tl.Lines)) * lineHeight
	return tl
}
