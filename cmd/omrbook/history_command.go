package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/Audiveris/audiveris-sub014/internal/library"
)

var errHistoryDisabled = errors.New("book history is disabled (paths.history_db is empty or unreadable)")

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recently opened and saved books",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withHistory(func(h *library.History) error {
				entries, err := h.Recent(cmd.Context(), limit)
				if err != nil {
					return err
				}
				if asJSON {
					return printJSON(cmd, historyJSON(entries))
				}
				if len(entries) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No books recorded")
					return nil
				}
				rows := make([][]string, 0, len(entries))
				for _, e := range entries {
					rows = append(rows, []string{
						e.Radix,
						strconv.Itoa(e.Sheets),
						strconv.Itoa(e.OpenCount),
						formatTime(e.LastUsed()),
						e.Path,
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"Book", "Sheets", "Opened", "Last Used", "Path"}, rows,
					[]columnAlignment{alignLeft, alignRight, alignRight, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum entries to list (0 lists all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of a table")

	cmd.AddCommand(newHistoryPruneCommand(ctx))
	cmd.AddCommand(newHistoryForgetCommand(ctx))
	return cmd
}

func newHistoryPruneCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Forget books whose file no longer exists",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withHistory(func(h *library.History) error {
				removed, err := h.PruneMissing(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d missing book(s)\n", removed)
				return nil
			})
		},
	}
}

func newHistoryForgetCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "forget <book.omr>",
		Short: "Remove one book from the history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			abs, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			return ctx.withHistory(func(h *library.History) error {
				ok, err := h.Forget(cmd.Context(), abs)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("%s is not in the history", abs)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Forgot %s\n", abs)
				return nil
			})
		},
	}
}

type historyEntryJSON struct {
	Path      string `json:"path"`
	Radix     string `json:"radix"`
	BookID    string `json:"book_id"`
	Sheets    int    `json:"sheets"`
	OpenCount int    `json:"open_count"`
	LastUsed  string `json:"last_used,omitempty"`
}

func historyJSON(entries []library.Entry) []historyEntryJSON {
	out := make([]historyEntryJSON, 0, len(entries))
	for _, e := range entries {
		item := historyEntryJSON{
			Path:      e.Path,
			Radix:     e.Radix,
			BookID:    e.BookID,
			Sheets:    e.Sheets,
			OpenCount: e.OpenCount,
		}
		if last := e.LastUsed(); !last.IsZero() {
			item.LastUsed = last.UTC().Format(time.RFC3339)
		}
		out = append(out, item)
	}
	return out
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}
