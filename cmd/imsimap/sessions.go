package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/MaDonald/imsimap/internal/export"
	"github.com/MaDonald/imsimap/internal/record"
	"github.com/MaDonald/imsimap/internal/session"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Padding(0, 1)

	cellStyle = lipgloss.NewStyle().
			Padding(0, 1)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("242"))
)

func newSessionsCmd(rf *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "List stored capture sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd, rf)
			if err != nil {
				return err
			}
			doc, err := a.store.Load()
			if err != nil {
				return err
			}
			if len(doc) == 0 {
				fmt.Fprintln(a.out, "No sessions stored.")
				return nil
			}
			for _, key := range session.Keys(doc) {
				s := doc[key]
				n := len(record.ParseAll(s.Logs))
				detail := fmt.Sprintf("(%s records, %s log)", humanize.Comma(int64(n)), humanize.Bytes(uint64(len(s.Logs))))
				fmt.Fprintf(a.out, "%s  %s\n", session.Label(key, s), dimStyle.Render(detail))
			}
			return nil
		},
	}
}

func newLogCmd(rf *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "log <key>",
		Short: "Print the raw decoder log of a stored session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd, rf)
			if err != nil {
				return err
			}
			s, err := a.store.Get(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, s.LogsOrDefault())
			return nil
		},
	}
}

func newTableCmd(rf *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "table <key>",
		Short: "Show the records of a stored session, re-parsed from its log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd, rf)
			if err != nil {
				return err
			}
			s, err := a.store.Get(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, renderTable(record.ParseAll(s.Logs)))
			return nil
		},
	}
}

func renderTable(records []record.Record) string {
	rows := make([][]string, len(records))
	for i, rec := range records {
		rows[i] = rec.Fields()
	}
	return table.New().
		Border(lipgloss.NormalBorder()).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Headers(record.Headers...).
		Rows(rows...).
		String()
}

func newExportCmd(rf *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "export <key> <file>",
		Short: "Export a stored session's records to .csv, .txt or .sqlite",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd, rf)
			if err != nil {
				return err
			}
			s, err := a.store.Get(args[0])
			if err != nil {
				return err
			}
			records := record.ParseAll(s.Logs)
			if err := export.ExportFile(records, args[1]); err != nil {
				return err
			}
			a.log.Info().Str("key", args[0]).Str("path", args[1]).Int("rows", len(records)).Msg("session exported")
			fmt.Fprintf(a.out, "Exported %d records to %s\n", len(records), args[1])
			return nil
		},
	}
}

func newDumpCmd(rf *rootFlags) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "dump <key>",
		Short: "Write a flat-text report of a stored session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd, rf)
			if err != nil {
				return err
			}
			s, err := a.store.Get(args[0])
			if err != nil {
				return err
			}
			path, err := session.DumpFile(dir, args[0], s, record.ParseAll(s.Logs))
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Session dumped to %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&dir, "dir", "d", ".", "Directory for the report")
	return cmd
}
