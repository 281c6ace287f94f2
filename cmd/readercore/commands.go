package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/yuanying/readercore/internal/book"
	"github.com/yuanying/readercore/internal/layout"
	"github.com/yuanying/readercore/internal/layout/monospace"
	"github.com/yuanying/readercore/internal/library"
)

func newImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>...",
		Short: "Add EPUB or TXT files to the library",
		Args:  cobra.MinimumNArgs(1),
		RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
			results := a.library.Import(ctx, args...)
			return printImportResults(cmd.OutOrStdout(), results)
		}),
	}
}

func newBooksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "books",
		Short: "List the books in the library",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app, _ []string) error {
			books, err := a.library.Books(ctx)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tFORMAT\tTITLE\tAUTHORS")
			for _, b := range books {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", b.ID, b.Format, b.Title, strings.Join(b.Authors, ", "))
			}
			return w.Flush()
		}),
	}
}

func newChaptersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chapters <book-id>",
		Short: "List the chapters of a book",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
			chapters, err := a.library.Chapters(ctx, args[0])
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "INDEX\tTITLE\tLENGTH")
			for _, ch := range chapters {
				info := ch.Info()
				length := "~" + strconv.FormatInt(info.EffectiveLength(), 10)
				if info.IsPrecise() {
					length = strconv.FormatInt(info.RealCharCount, 10)
				}
				fmt.Fprintf(w, "%d\t%s\t%s\n", info.Index, info.Title, length)
			}
			return w.Flush()
		}),
	}
}

func newReadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "read <book-id> <chapter>",
		Short: "Print the content blocks of a chapter",
		Args:  cobra.ExactArgs(2),
		RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
			index, err := parseIndex(args[1])
			if err != nil {
				return err
			}
			blocks, err := a.library.OpenChapter(ctx, args[0], index)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, b := range blocks {
				writeBlock(out, b)
			}
			return nil
		}),
	}
}

func newPaginateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "paginate <book-id> <chapter>",
		Short: "Lay a chapter out into pages with a monospace measurer",
		Args:  cobra.ExactArgs(2),
		RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
			index, err := parseIndex(args[1])
			if err != nil {
				return err
			}
			page, _ := cmd.Flags().GetInt("page")

			cfg := a.opts.Config
			pages, err := a.library.Paginate(ctx, args[0], index, cfg.LayoutStyle(), monospace.New(), cfg.Layout.Width, cfg.Layout.Height)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if page > 0 {
				if page > len(pages) {
					return fmt.Errorf("--page %d out of range, chapter has %d pages", page, len(pages))
				}
				writePage(out, pages[page-1])
				return nil
			}
			fmt.Fprintf(out, "%d pages\n", len(pages))
			for i, p := range pages {
				fmt.Fprintf(out, "page %d: start %d, %d items\n", i+1, p.StartCharIndex(), len(p.Items))
			}
			return nil
		}),
	}
	f := cmd.Flags()
	f.Float64("width", 360, "Page width")
	f.Float64("height", 640, "Page height")
	f.Float64("font-size", 16, "Paragraph font size")
	f.Float64("line-spacing", 1.5, "Paragraph line spacing multiplier")
	f.Int("page", 0, "Print the text of this page (1-based) instead of a summary")
	return cmd
}

func newProgressCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "progress",
		Short: "Show or change the reading position of a book",
	}

	show := &cobra.Command{
		Use:   "show <book-id>",
		Short: "Show the reading position",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
			p, err := a.library.Progress(ctx, args[0])
			if err != nil {
				return err
			}
			writeProgress(cmd.OutOrStdout(), p)
			return nil
		}),
	}

	set := &cobra.Command{
		Use:   "set <book-id> <chapter> <offset>",
		Short: "Record a position as chapter index and character offset",
		Args:  cobra.ExactArgs(3),
		RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
			index, err := parseIndex(args[1])
			if err != nil {
				return err
			}
			offset, err := strconv.Atoi(args[2])
			if err != nil || offset < 0 {
				return fmt.Errorf("invalid offset %q", args[2])
			}
			p, err := a.library.UpdateProgress(ctx, args[0], index, offset, nil)
			if err != nil {
				return err
			}
			writeProgress(cmd.OutOrStdout(), p)
			return nil
		}),
	}

	seek := &cobra.Command{
		Use:   "seek <book-id> <percent>",
		Short: "Move to a percentage (0-100) of the whole book",
		Args:  cobra.ExactArgs(2),
		RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
			percent, err := parsePercent(args[1])
			if err != nil {
				return err
			}
			p, err := a.library.Seek(ctx, args[0], percent)
			if err != nil {
				return err
			}
			writeProgress(cmd.OutOrStdout(), p)
			return nil
		}),
	}

	cmd.AddCommand(show, set, seek)
	return cmd
}

func newRefineCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refine <book-id>...",
		Short: "Compute exact chapter lengths",
		Args:  cobra.MinimumNArgs(1),
		RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
			for _, id := range args {
				n, err := a.library.RefineLengths(ctx, id)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d chapters refined\n", id, n)
			}
			return nil
		}),
	}
}

func parseIndex(s string) (int, error) {
	i, err := strconv.Atoi(s)
	if err != nil || i < 0 {
		return 0, fmt.Errorf("invalid chapter index %q", s)
	}
	return i, nil
}

// parsePercent accepts 0-100 with an optional trailing %.
func parsePercent(s string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(s), "%"), 64)
	if err != nil || f < 0 || f > 100 {
		return 0, fmt.Errorf("invalid percent %q, want 0-100", s)
	}
	return f / 100, nil
}

func printImportResults(w io.Writer, results []library.ImportResult) error {
	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			fmt.Fprintf(w, "failed  %s: %v\n", r.Path, r.Err)
			continue
		}
		fmt.Fprintf(w, "imported %s %q (%d chapters)\n", r.Book.ID, r.Book.Title, r.Chapters)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d imports failed", failed, len(results))
	}
	return nil
}

func writeBlock(w io.Writer, b book.Block) {
	switch b := b.(type) {
	case book.Title:
		fmt.Fprintf(w, "%s %s\n\n", strings.Repeat("#", max(b.Level, 1)), b.Text)
	case book.Paragraph:
		fmt.Fprintf(w, "%s\n\n", b.Text)
	case book.Divider:
		fmt.Fprint(w, "---\n\n")
	case book.Image:
		fmt.Fprintf(w, "[image %s aspect=%.3f]\n\n", b.Path, b.AspectRatio)
	case book.ImageCaption:
		fmt.Fprintf(w, "_%s_\n\n", b.Text)
	}
}

func writePage(w io.Writer, p layout.Page) {
	for _, item := range p.Items {
		switch it := item.(type) {
		case layout.Whole:
			writeBlock(w, it.Block)
		case layout.TextSplit:
			fmt.Fprintf(w, "%s\n\n", it.Text)
		}
	}
}

func writeProgress(w io.Writer, p *book.ReadingProgress) {
	fmt.Fprintf(w, "chapter %d, offset %d, %.1f%%\n", p.ChapterIndex, p.ChapterOffsetCharIndex, p.ProgressPercent*100)
}
