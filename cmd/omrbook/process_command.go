package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/RoaringBitmap/roaring"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/Audiveris/audiveris-sub014/internal/book"
	"github.com/Audiveris/audiveris-sub014/internal/library"
	"github.com/Audiveris/audiveris-sub014/internal/logging"
	"github.com/Audiveris/audiveris-sub014/internal/step"
)

type processOptions struct {
	target string
	sheets string
	where  string
	force  bool
	save   bool
	output string
}

func newProcessCommand(ctx *commandContext) *cobra.Command {
	var opts processOptions

	cmd := &cobra.Command{
		Use:   "process <images|book.omr>",
		Short: "Bring the sheets of a book to a pipeline step",
		Long: "Open a stored book, or start one from an image file or folder, and run\n" +
			"every selected sheet up to the target step. Sheets that fail are reported\n" +
			"and the others keep their progress.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if strings.TrimSpace(opts.target) == "" {
				opts.target = cfg.Processing.TargetStep
			}
			target, err := step.Parse(opts.target)
			if err != nil {
				return err
			}
			return ctx.withBook(cmd.Context(), args[0], func(lib *library.Library, b *book.Book) error {
				return runProcess(cmd, lib, b, target, opts)
			})
		},
	}

	cmd.Flags().StringVarP(&opts.target, "step", "s", "", "Target step (defaults to processing.target_step)")
	cmd.Flags().StringVar(&opts.sheets, "sheets", "", "Sheet numbers, such as 1-3,5,8-")
	cmd.Flags().StringVar(&opts.where, "where", "", "Expression selecting sheets, such as \"!invalid && steps < 3\"")
	cmd.Flags().BoolVarP(&opts.force, "force", "f", false, "Re-run steps already reached")
	cmd.Flags().BoolVar(&opts.save, "save", false, "Store the book once processing ends")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "Store the book at this path (implies --save)")
	return cmd
}

func runProcess(cmd *cobra.Command, lib *library.Library, b *book.Book, target step.Step, opts processOptions) error {
	subset, err := selectSheets(b, opts.sheets, opts.where)
	if err != nil {
		return err
	}
	if subset != nil && subset.IsEmpty() {
		fmt.Fprintln(cmd.OutOrStdout(), "No sheet selected")
		return nil
	}

	runCtx := logging.WithRequestID(cmd.Context(), uuid.NewString())
	batchErr := b.ReachStep(runCtx, target, opts.force, subset)
	if batchErr != nil && !isPartial(batchErr) {
		return batchErr
	}

	if opts.save || strings.TrimSpace(opts.output) != "" {
		if err := lib.Save(runCtx, b, strings.TrimSpace(opts.output)); err != nil {
			return fmt.Errorf("save book: %w", err)
		}
	}

	out := cmd.OutOrStdout()
	fmt.Fprint(out, renderStubTable(b.Status()))
	fmt.Fprintln(out)
	if p := b.Path(); p != "" {
		fmt.Fprintf(out, "Book: %s\n", p)
	}

	if batchErr != nil {
		var partial *book.BatchError
		errors.As(batchErr, &partial)
		colorize := wantsColor(cmd.ErrOrStderr())
		for _, n := range partial.Numbers() {
			fmt.Fprintln(cmd.ErrOrStderr(), noteLine(fmt.Sprintf("sheet %d", n), noteFail, partial.Failures[n].Error(), colorize))
		}
		return fmt.Errorf("%d sheet(s) did not reach %s", len(partial.Failures), target)
	}
	return nil
}

// selectSheets combines the range and expression filters. A nil result
// selects every sheet.
func selectSheets(b *book.Book, sheets, where string) (*roaring.Bitmap, error) {
	subset, err := book.ParseSheets(sheets, len(b.Stubs()))
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(where) == "" {
		return subset, nil
	}
	return b.Select(where, subset)
}

func isPartial(err error) bool {
	var partial *book.BatchError
	return errors.As(err, &partial) && !errors.Is(err, context.Canceled)
}
