// Test program for EPUB structure resolution and content extraction
//
// Usage:
//
//	go run ./cmd/test/epub_structure/main.go <epub-file> [chapter-index]
//
// This program prints:
// - OPF path, unique identifier and metadata
// - Cover image path
// - Chapters in spine order with titles and approximate sizes
// - Content blocks of the chosen chapter (default: none)
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/yuanying/readercore/internal/book"
	"github.com/yuanying/readercore/internal/epub"
	"github.com/yuanying/readercore/internal/source"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: go run ./cmd/test/epub_structure/main.go <epub-file> [chapter-index]")
		os.Exit(1)
	}

	src := source.NewFile(os.Args[1])
	pkg, err := epub.Resolve(src)
	if err != nil {
		log.Fatalf("Failed to resolve EPUB: %v", err)
	}

	fmt.Printf("✓ EPUB resolved\n")
	fmt.Printf("OPF Path:  %s\n", pkg.OPFPath)
	fmt.Printf("Unique ID: %s\n", pkg.UniqueID)
	fmt.Printf("Title:     %s\n", pkg.Metadata.Title)
	fmt.Printf("Creators:  %v\n", pkg.Metadata.Creators)
	fmt.Printf("Language:  %s\n", pkg.Metadata.Language)
	fmt.Printf("Cover:     %s\n\n", pkg.CoverHref)

	chapters := pkg.Chapters("probe")
	fmt.Printf("Chapters: %d\n", len(chapters))
	for _, ch := range chapters {
		fmt.Printf("  [%d] %-40s %s (~%d bytes)\n", ch.Index, ch.Title, ch.Href, ch.FileSizeBytes)
	}

	if len(os.Args) < 3 {
		return
	}
	index, err := strconv.Atoi(os.Args[2])
	if err != nil || index < 0 || index >= len(chapters) {
		log.Fatalf("Invalid chapter index %q", os.Args[2])
	}

	blocks, err := epub.NewExtractor(nil, nil).ExtractChapter(context.Background(), src, chapters[index].Href)
	if err != nil {
		log.Fatalf("Failed to extract chapter: %v", err)
	}
	fmt.Printf("\nBlocks of chapter %d: %d\n", index, len(blocks))
	for _, b := range blocks {
		switch b := b.(type) {
		case book.Title:
			fmt.Printf("  %6d title(h%d) %q\n", b.StartIndex, b.Level, b.Text)
		case book.Paragraph:
			fmt.Printf("  %6d paragraph %q styles=%v\n", b.StartIndex, b.Text, b.Styles)
		case book.Divider:
			fmt.Printf("  %6d divider\n", b.StartIndex)
		case book.Image:
			fmt.Printf("  %6d image %s aspect=%.3f\n", b.StartIndex, b.Path, b.AspectRatio)
		case book.ImageCaption:
			fmt.Printf("  %6d caption %q\n", b.StartIndex, b.Text)
		}
	}
}
