package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/Audiveris/audiveris-sub014/internal/book"
	"github.com/Audiveris/audiveris-sub014/internal/library"
)

type stubJSON struct {
	Number   int    `json:"number"`
	Source   string `json:"source"`
	Latest   string `json:"latest,omitempty"`
	Running  string `json:"running,omitempty"`
	Invalid  bool   `json:"invalid"`
	Resident bool   `json:"resident"`
	Modified bool   `json:"modified"`
	Pages    int    `json:"pages"`
}

type statusJSON struct {
	Radix    string     `json:"radix"`
	Path     string     `json:"path,omitempty"`
	Modified bool       `json:"modified"`
	Scores   int        `json:"scores"`
	Sheets   []stubJSON `json:"sheets"`
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status <book.omr>",
		Short: "Show the progress of every sheet in a stored book",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withBook(cmd.Context(), args[0], func(_ *library.Library, b *book.Book) error {
				st := b.Status()
				if asJSON {
					return printJSON(cmd, toStatusJSON(st))
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Book: %s\n", st.Radix)
				if st.Path != "" {
					fmt.Fprintf(out, "Path: %s\n", st.Path)
				}
				fmt.Fprintf(out, "Scores: %d\n", st.Scores)
				fmt.Fprintln(out, renderStubTable(st))
				colorize := wantsColor(out)
				for _, s := range st.Stubs {
					if level, note := stubNote(s); note != "" {
						fmt.Fprintln(out, noteLine(fmt.Sprintf("sheet %d", s.Number), level, note, colorize))
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of a table")
	return cmd
}

func renderStubTable(st book.Status) string {
	headers := []string{"Sheet", "Source", "Step", "Pages", "Invalid", "Modified"}
	rows := make([][]string, 0, len(st.Stubs))
	for _, s := range st.Stubs {
		rows = append(rows, []string{
			strconv.Itoa(s.Number),
			s.Source,
			stepLabel(s),
			strconv.Itoa(s.Pages),
			yesNo(s.Invalid),
			yesNo(s.Modified),
		})
	}
	return renderTable(headers, rows, []columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignLeft, alignLeft})
}

func stepLabel(s book.StubStatus) string {
	switch {
	case s.Running:
		return s.Current.Label() + " (running)"
	case s.HasSteps:
		return s.Latest.Label()
	default:
		return "-"
	}
}

// stubNote flags the sheets worth a line below the table.
func stubNote(s book.StubStatus) (noteLevel, string) {
	switch {
	case s.Invalid:
		return noteWarn, "no music found, excluded from scores"
	case s.Running:
		return noteInfo, "running " + s.Current.Label()
	case s.Modified:
		return noteWarn, "unsaved changes"
	default:
		return notePass, ""
	}
}

// noteLevel grades a line printed below a table or after a check.
type noteLevel int

const (
	notePass noteLevel = iota
	noteInfo
	noteWarn
	noteFail
)

var noteTags = [...]struct {
	tag    string
	colors text.Colors
}{
	notePass: {"ok  ", text.Colors{text.FgGreen}},
	noteInfo: {"info", text.Colors{text.FgCyan}},
	noteWarn: {"warn", text.Colors{text.FgYellow}},
	noteFail: {"fail", text.Colors{text.FgRed, text.Bold}},
}

// noteLine renders "<tag> <subject>: <message>". Only the tag is coloured.
func noteLine(subject string, level noteLevel, message string, colorize bool) string {
	if level < notePass || level > noteFail {
		level = noteInfo
	}
	tag := noteTags[level].tag
	if colorize {
		tag = noteTags[level].colors.Sprint(tag)
	}
	line := tag + " " + subject
	if message != "" {
		line += ": " + message
	}
	return line
}

// wantsColor reports whether w is a terminal and NO_COLOR is unset.
func wantsColor(w io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// printJSON writes v as indented JSON on stdout; logs stay on stderr.
func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func toStatusJSON(st book.Status) statusJSON {
	out := statusJSON{
		Radix:    st.Radix,
		Path:     st.Path,
		Modified: st.Modified,
		Scores:   st.Scores,
		Sheets:   make([]stubJSON, 0, len(st.Stubs)),
	}
	for _, s := range st.Stubs {
		item := stubJSON{
			Number:   s.Number,
			Source:   s.Source,
			Invalid:  s.Invalid,
			Resident: s.Resident,
			Modified: s.Modified,
			Pages:    s.Pages,
		}
		if s.HasSteps {
			item.Latest = s.Latest.String()
		}
		if s.Running {
			item.Running = s.Current.String()
		}
		out.Sheets = append(out.Sheets, item)
	}
	return out
}

func sheetList(numbers []int) string {
	parts := make([]string, len(numbers))
	for i, n := range numbers {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ",")
}
