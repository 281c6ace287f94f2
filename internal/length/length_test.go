package length

import (
	"archive/zip"
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/simplifiedchinese"

	"github.com/yuanying/readercore/internal/book"
	"github.com/yuanying/readercore/internal/charset"
	"github.com/yuanying/readercore/internal/source"
	"github.com/yuanying/readercore/internal/txt"
)

func buildEPUB(t *testing.T, files map[string]string) source.Source {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, body := range files {
		fw, err := w.Create(name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return source.NewBytes("book.epub", buf.Bytes())
}

func epubChapter(index int, href string, real int64) *book.EpubChapter {
	return &book.EpubChapter{
		ChapterInfo: book.ChapterInfo{BookID: "b", Index: index, FileSizeBytes: 100, RealCharCount: real},
		Href:        href,
	}
}

func TestCalculate_EPUB(t *testing.T) {
	src := buildEPUB(t, map[string]string{
		"OEBPS/a.xhtml":     `<html><body> <h1>Title</h1><p>日本語です</p> </body></html>`,
		"OEBPS/empty.xhtml": `<html><body>   </body></html>`,
	})
	b := &book.Book{ID: "b", Format: book.FormatEPUB}

	chapters := []book.Chapter{
		epubChapter(0, "OEBPS/a.xhtml", book.UnknownLength),
		epubChapter(1, "OEBPS/empty.xhtml", book.UnknownLength),
		epubChapter(2, "OEBPS/missing.xhtml", book.UnknownLength),
		epubChapter(3, "OEBPS/a.xhtml", 42),
	}

	res, err := NewCalculator(nil).Calculate(context.Background(), b, src, chapters)
	require.NoError(t, err)
	assert.Empty(t, res.Charset)

	require.Len(t, res.Updated, 1)
	assert.Equal(t, 0, res.Updated[0].Info().Index)
	assert.Equal(t, int64(10), res.Updated[0].Info().RealCharCount) // "Title" + "日本語です"

	// Inputs are untouched.
	assert.Equal(t, book.UnknownLength, chapters[0].Info().RealCharCount)
	assert.Equal(t, int64(42), chapters[3].Info().RealCharCount)
}

func TestCalculate_TXTDetectsCharsetOnce(t *testing.T) {
	text := "简介\n第一章 开始\n你好\n"
	data, err := simplifiedchinese.GB18030.NewEncoder().Bytes([]byte(text))
	require.NoError(t, err)
	src := source.NewBytes("book.txt", data)

	det, err := txt.NewDetector(nil).Detect(context.Background(), src, "b")
	require.NoError(t, err)
	require.Len(t, det.Chapters, 2)

	chapters := make([]book.Chapter, len(det.Chapters))
	for i, ch := range det.Chapters {
		chapters[i] = ch
	}
	b := &book.Book{ID: "b", Format: book.FormatTXT}

	res, err := NewCalculator(nil).Calculate(context.Background(), b, src, chapters)
	require.NoError(t, err)
	assert.Equal(t, charset.GB18030, res.Charset)
	require.Len(t, res.Updated, 2)
	assert.Equal(t, int64(3), res.Updated[0].Info().RealCharCount)  // "简介\n"
	assert.Equal(t, int64(10), res.Updated[1].Info().RealCharCount) // "第一章 开始\n你好\n"

	// A second pass over the refined chapters has nothing left to do.
	res, err = NewCalculator(nil).Calculate(context.Background(), b, src, res.Updated)
	require.NoError(t, err)
	assert.Empty(t, res.Updated)
}

func TestCalculate_TXTUsesRecordedCharset(t *testing.T) {
	src := source.NewBytes("book.txt", []byte("abc\n"))
	b := &book.Book{ID: "b", Format: book.FormatTXT, Charset: charset.UTF8}
	ch := &book.TxtChapter{
		ChapterInfo: book.ChapterInfo{BookID: "b", FileSizeBytes: 4, RealCharCount: book.UnknownLength},
		EndOffset:   4,
	}

	res, err := NewCalculator(nil).Calculate(context.Background(), b, src, []book.Chapter{ch})
	require.NoError(t, err)
	assert.Empty(t, res.Charset)
	require.Len(t, res.Updated, 1)
	assert.Equal(t, int64(4), res.Updated[0].Info().RealCharCount)
}

func TestCalculate_Canceled(t *testing.T) {
	src := source.NewBytes("book.txt", []byte("abc\n"))
	b := &book.Book{ID: "b", Format: book.FormatTXT, Charset: charset.UTF8}
	ch := &book.TxtChapter{ChapterInfo: book.ChapterInfo{RealCharCount: book.UnknownLength}, EndOffset: 4}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewCalculator(nil).Calculate(ctx, b, src, []book.Chapter{ch})
	assert.ErrorIs(t, err, context.Canceled)
}
