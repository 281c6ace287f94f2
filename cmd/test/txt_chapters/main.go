// Test program for plain-text chapter detection
//
// Usage:
//
//	go run ./cmd/test/txt_chapters/main.go <txt-file>
//
// This program prints the detected charset and every virtual chapter with
// its byte range, then checks that the ranges cover the file without gaps.
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/yuanying/readercore/internal/source"
	"github.com/yuanying/readercore/internal/txt"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: go run ./cmd/test/txt_chapters/main.go <txt-file>")
		os.Exit(1)
	}

	src := source.NewFile(os.Args[1])
	det, err := txt.NewDetector(nil).Detect(context.Background(), src, "probe")
	if err != nil {
		log.Fatalf("Failed to detect chapters: %v", err)
	}

	fmt.Printf("Charset:  %s\n", det.Charset)
	fmt.Printf("Size:     %d bytes\n", det.Size)
	fmt.Printf("Chapters: %d\n", len(det.Chapters))

	var next int64
	for _, ch := range det.Chapters {
		fmt.Printf("  [%d] %-40s [%d, %d)\n", ch.Index, ch.Title, ch.StartOffset, ch.EndOffset)
		if ch.StartOffset != next {
			fmt.Printf("  ✗ gap or overlap before chapter %d (expected start %d)\n", ch.Index, next)
		}
		next = ch.EndOffset
	}
	if next != det.Size {
		fmt.Printf("✗ chapters end at %d, file size is %d\n", next, det.Size)
		os.Exit(1)
	}
	fmt.Println("✓ chapters cover the whole file")
}
