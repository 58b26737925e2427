package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Audiveris/audiveris-sub014/internal/book"
	"github.com/Audiveris/audiveris-sub014/internal/library"
)

func newScoresCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "scores <book.omr>",
		Short: "List the scores found across the sheets of a book",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withBook(cmd.Context(), args[0], func(_ *library.Library, b *book.Book) error {
				scores := b.Scores()
				if asJSON {
					if scores == nil {
						scores = []book.Score{}
					}
					return printJSON(cmd, scores)
				}
				if len(scores) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No scores")
					return nil
				}
				rows := make([][]string, 0, len(scores))
				for _, sc := range scores {
					rows = append(rows, []string{
						strconv.Itoa(sc.ID),
						fmt.Sprintf("%d-%d", sc.FirstSheet(), sc.LastSheet()),
						strconv.Itoa(len(sc.Pages)),
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"Score", "Sheets", "Pages"}, rows,
					[]columnAlignment{alignRight, alignLeft, alignRight},
				))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of a table")
	return cmd
}
