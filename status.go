package main

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

var statusColumns = []Status{StatusValidated, StatusGenerated, StatusRejected, StatusMissing}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	doneStyle   = cellStyle.Foreground(lipgloss.Color("10"))
)

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status [kind]",
		Short: "Show progress per content kind",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kinds := allKinds
			if len(args) == 1 {
				kind, err := ParseKind(args[0])
				if err != nil {
					return err
				}
				kinds = []Kind{kind}
			}

			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			snapshots := make([]ProgressSnapshot, 0, len(kinds))
			for _, kind := range kinds {
				snap, err := a.handler.Tracker().Snapshot(kind)
				if err != nil {
					return fmt.Errorf("scanning %s: %w", kind, err)
				}
				snapshots = append(snapshots, snap)
			}

			records, err := a.history.Records()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			renderStatus(out, snapshots, isTerminal(out))
			if len(records) > 0 {
				last := records[len(records)-1]
				fmt.Fprintf(out, "last run %s: %s %s, %d processed, %d validated, %d failed (%s)\n",
					last.RunID, last.Kind, last.Mode, last.Processed, last.Validated, last.Failed,
					last.FinishedAt.Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// renderStatus prints one line per kind, as a styled table on terminals
func renderStatus(w io.Writer, snapshots []ProgressSnapshot, styled bool) {
	if !styled {
		for _, s := range snapshots {
			fmt.Fprintf(w, "%s\t%d/%d validated (%.1f%%)", s.Kind, s.Counts[StatusValidated], s.Total, s.Ratio(StatusValidated)*100)
			for _, status := range statusColumns[1:] {
				fmt.Fprintf(w, "\t%s=%d", status, s.Counts[status])
			}
			fmt.Fprintln(w)
		}
		return
	}

	headers := []string{"Kind", "Progress"}
	for _, status := range statusColumns {
		headers = append(headers, status.String())
	}

	rows := make([][]string, 0, len(snapshots))
	for _, s := range snapshots {
		row := []string{string(s.Kind), fmt.Sprintf("%5.1f%%", s.Ratio(StatusValidated)*100)}
		for _, status := range statusColumns {
			row = append(row, fmt.Sprintf("%d", s.Counts[status]))
		}
		rows = append(rows, row)
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderHeader(true).
		BorderRow(false).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if row >= 0 && row < len(snapshots) && snapshots[row].Complete() {
				return doneStyle
			}
			return cellStyle
		})

	fmt.Fprintln(w, t.Render())
}
