package epub

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"mime"
	"path"
	"slices"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/yuanying/readercore/internal/archive"
	"github.com/yuanying/readercore/internal/book"
	"github.com/yuanying/readercore/internal/imagecache"
	"github.com/yuanying/readercore/internal/source"
)

// prunedSelector matches elements that never contribute reading content.
const prunedSelector = "head, script, style, template, noscript, [hidden]"

// ImageStore receives images referenced by chapter documents.
// *imagecache.Cache implements it.
type ImageStore interface {
	Put(key, mediaType string, data []byte, isCover bool) (imagecache.Entry, error)
}

// Extractor converts chapter documents into content blocks.
type Extractor struct {
	images ImageStore
	logger *slog.Logger
}

// NewExtractor creates an Extractor. A nil images store drops all images.
func NewExtractor(images ImageStore, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{images: images, logger: logger}
}

// ExtractChapter returns the blocks of the chapter document at href.
// An href that names no archive entry yields an empty result, not an error.
func (e *Extractor) ExtractChapter(ctx context.Context, src source.Source, href string) ([]book.Block, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r, err := archive.Open(src)
	if err != nil {
		return nil, fmt.Errorf("failed to open EPUB: %w", err)
	}
	defer r.Close()

	entry, ok := r.Find(href)
	if !ok {
		e.logger.Debug("chapter entry not found", "source", src.Name(), "href", href)
		return []book.Block{}, nil
	}
	rc, err := entry.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", href, err)
	}
	doc, err := goquery.NewDocumentFromReader(rc)
	rc.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to parse XHTML %s: %w", href, err)
	}

	w := &blockWalker{
		ctx:    ctx,
		e:      e,
		r:      r,
		src:    src,
		href:   href,
		blocks: []book.Block{},
	}
	w.walkBody(doc)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return w.blocks, nil
}

// blockWalker carries the state of one depth-first pass over a document body.
type blockWalker struct {
	ctx    context.Context
	e      *Extractor
	r      *archive.Reader
	src    source.Source
	href   string
	cursor int // rune offset of the next block
	blocks []book.Block
}

// walkBody prunes non-content elements and walks every body of doc.
func (w *blockWalker) walkBody(doc *goquery.Document) {
	doc.Find(prunedSelector).Remove()
	doc.Find("body").Each(func(_ int, s *goquery.Selection) {
		for _, n := range s.Nodes {
			w.walk(n)
		}
	})
}

func (w *blockWalker) emit(b book.Block) {
	w.blocks = append(w.blocks, b)
	w.cursor += b.CharLen()
}

func (w *blockWalker) walk(n *html.Node) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		switch c.DataAtom {
		case atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
			text := strings.TrimSpace(nodeText(c))
			if text == "" {
				w.walk(c)
				continue
			}
			level, _ := strconv.Atoi(c.Data[1:])
			w.emit(book.Title{StartIndex: w.cursor, Text: text, Level: level})
			w.emit(book.Divider{StartIndex: w.cursor})
		case atom.P:
			var sb styledBuilder
			sb.collect(c, nil)
			if strings.TrimSpace(sb.text.String()) == "" {
				w.walk(c)
				continue
			}
			w.emit(book.Paragraph{StartIndex: w.cursor, Text: sb.text.String(), Styles: sb.styles})
		case atom.Img, atom.Image:
			w.image(c)
		case atom.Figcaption:
			if text := strings.TrimSpace(nodeText(c)); text != "" {
				w.emit(book.ImageCaption{StartIndex: w.cursor, Text: text})
			}
		default:
			w.walk(c)
		}
	}
}

// image caches the referenced picture and emits an Image block.
// Any failure drops the image silently.
func (w *blockWalker) image(n *html.Node) {
	if w.e.images == nil || w.ctx.Err() != nil {
		return
	}
	ref := imageRef(n)
	if ref == "" {
		return
	}
	target := archive.ResolveHref(w.href, ref)
	if target == "" {
		return
	}

	data, err := w.r.ReadFile(target)
	if err != nil {
		w.e.logger.Debug("image unreadable, skipping", "href", w.href, "image", target, "error", err)
		return
	}
	entry, err := w.e.images.Put(w.src.Name()+"#"+target, mime.TypeByExtension(path.Ext(target)), data, false)
	if err != nil {
		w.e.logger.Warn("image cache failed, skipping", "href", w.href, "image", target, "error", err)
		return
	}
	w.emit(book.Image{
		StartIndex:  w.cursor,
		Path:        entry.Path,
		AspectRatio: entry.AspectRatio,
		BlurHash:    entry.BlurHash,
	})
}

// imageRef returns the image reference of an img or SVG image element,
// preferring xlink:href over src over href.
func imageRef(n *html.Node) string {
	var src, plain string
	for _, a := range n.Attr {
		switch {
		case a.Namespace == "xlink" && a.Key == "href", a.Key == "xlink:href":
			if v := strings.TrimSpace(a.Val); v != "" {
				return v
			}
		case a.Namespace == "" && a.Key == "src":
			src = strings.TrimSpace(a.Val)
		case a.Namespace == "" && a.Key == "href":
			plain = strings.TrimSpace(a.Val)
		}
	}
	if src != "" {
		return src
	}
	return plain
}

// styledBuilder accumulates paragraph text and its style ranges.
type styledBuilder struct {
	text   strings.Builder
	styles []book.StyleRange
}

// collect appends the text below n. active holds the styles of the
// enclosing b/strong/i/em elements, outermost first; each text run gets one
// range per active style.
func (b *styledBuilder) collect(n *html.Node, active []book.StyleType) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case html.TextNode:
			if strings.TrimSpace(c.Data) == "" {
				continue
			}
			start := b.text.Len()
			b.text.WriteString(c.Data)
			for _, st := range active {
				b.styles = append(b.styles, book.StyleRange{Start: start, End: b.text.Len(), Type: st})
			}
		case html.ElementNode:
			switch c.DataAtom {
			case atom.B, atom.Strong:
				b.collect(c, withStyle(active, book.StyleBold))
			case atom.I, atom.Em:
				b.collect(c, withStyle(active, book.StyleItalic))
			case atom.Br:
				b.text.WriteString("\n")
			default:
				b.collect(c, active)
			}
		}
	}
}

func withStyle(active []book.StyleType, st book.StyleType) []book.StyleType {
	if slices.Contains(active, st) {
		return active
	}
	return append(slices.Clip(active), st)
}

// nodeText returns the concatenated text below n.
func nodeText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

// CountChars returns the number of characters an XHTML document contributes
// to its chapter: the summed length of the blocks ExtractChapter would emit,
// so it agrees with block start offsets.
func CountChars(data []byte) (int64, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return 0, fmt.Errorf("failed to parse XHTML: %w", err)
	}
	w := &blockWalker{ctx: context.Background(), e: &Extractor{}}
	w.walkBody(doc)
	return int64(w.cursor), nil
}
