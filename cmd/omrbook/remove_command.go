package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Audiveris/audiveris-sub014/internal/book"
	"github.com/Audiveris/audiveris-sub014/internal/library"
)

func newRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <book.omr> <sheet>...",
		Short: "Drop sheets from a stored book and save it",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			numbers := make([]int, 0, len(args)-1)
			for _, arg := range args[1:] {
				n, err := strconv.Atoi(arg)
				if err != nil {
					return fmt.Errorf("invalid sheet number %q", arg)
				}
				numbers = append(numbers, n)
			}
			return ctx.withBook(cmd.Context(), args[0], func(lib *library.Library, b *book.Book) error {
				for _, n := range numbers {
					if err := b.RemoveStub(n); err != nil {
						return fmt.Errorf("remove sheet %d: %w", n, err)
					}
				}
				if err := lib.Save(cmd.Context(), b, ""); err != nil {
					return fmt.Errorf("save book: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed sheet(s) %s from %s\n", sheetList(numbers), b.Path())
				return nil
			})
		},
	}
}
