package epub

import (
	"bytes"
	"strconv"

	"github.com/PuerkitoBio/goquery"

	"github.com/yuanying/readercore/internal/archive"
	"github.com/yuanying/readercore/internal/book"
)

// Chapters returns one chapter per spine item in reading order.
// Spine references missing from the manifest are skipped and indices stay
// contiguous.
func (p *Package) Chapters(bookID string) []*book.EpubChapter {
	chapters := make([]*book.EpubChapter, 0, len(p.Spine))
	for _, ref := range p.Spine {
		item, ok := p.Manifest[ref.IDRef]
		if !ok || item.Href == "" {
			continue
		}
		href := archive.StripFragment(item.Href)
		index := len(chapters)

		chapters = append(chapters, &book.EpubChapter{
			ChapterInfo: book.ChapterInfo{
				BookID:        bookID,
				Index:         index,
				Title:         p.chapterTitle(href, index),
				FileSizeBytes: p.sizes[href],
				RealCharCount: book.UnknownLength,
			},
			Href: href,
		})
	}
	return chapters
}

func (p *Package) chapterTitle(href string, index int) string {
	if t := p.titles[href]; t != "" {
		return t
	}
	if t := p.docTitles[href]; t != "" {
		return t
	}
	return "Chapter " + strconv.Itoa(index+1)
}

// loadDocTitles reads the <title> of spine documents the table of contents
// does not name.
func loadDocTitles(r *archive.Reader, p *Package) map[string]string {
	titles := make(map[string]string)
	for _, ref := range p.Spine {
		item, ok := p.Manifest[ref.IDRef]
		if !ok || item.Href == "" || p.titles[item.Href] != "" {
			continue
		}
		data, err := r.ReadFile(item.Href)
		if err != nil {
			continue
		}
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
		if err != nil {
			continue
		}
		if t := collapseSpace(doc.Find("title").First().Text()); t != "" {
			titles[item.Href] = t
		}
	}
	return titles
}
