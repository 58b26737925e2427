package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Audiveris/audiveris-sub014/internal/book"
	"github.com/Audiveris/audiveris-sub014/internal/library"
)

func newSaveAsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "save-as <book.omr> <target.omr>",
		Short: "Copy a stored book to a new path",
		Long: "Store the book at a new path. Sheets that are not in memory are copied\n" +
			"from the current file without being decoded. An existing target is kept\n" +
			"as a numbered backup when book.backup_on_save is set.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withBook(cmd.Context(), args[0], func(lib *library.Library, b *book.Book) error {
				if err := lib.Save(cmd.Context(), b, args[1]); err != nil {
					return fmt.Errorf("save book: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Saved %s to %s\n", b.Radix(), b.Path())
				return nil
			})
		},
	}
}
