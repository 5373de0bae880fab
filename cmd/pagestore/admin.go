package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/edgecomet/pagestore/internal/store"
)

// Output formats accepted by list and verify
const (
	formatTable = "table"
	formatJSON  = "json"
)

func validateFormat(format string) error {
	switch format {
	case formatTable, formatJSON:
		return nil
	}
	return fmt.Errorf("invalid format %q, valid options: %s, %s", format, formatTable, formatJSON)
}

func newListCmd(opts *globalOptions) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"l"},
		Short:   "List indexed pages",
		Long: `List every page in index.json with its uid and title.

Examples:
  pagestore list                  # Table output
  pagestore list -f json          # JSON array of index entries`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateFormat(format); err != nil {
				return err
			}
			rt, err := newAdminRuntime(opts)
			if err != nil {
				return err
			}
			defer rt.close()

			entries, err := rt.store.ListEntries()
			if err != nil {
				return fmt.Errorf("failed to list pages: %w", err)
			}
			if format == formatJSON {
				return writeJSON(cmd.OutOrStdout(), entries)
			}
			return writeEntriesTable(cmd.OutOrStdout(), entries)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", formatTable, "output format (table, json)")
	return cmd
}

func writeEntriesTable(out io.Writer, entries []store.PageIndexEntry) error {
	if len(entries) == 0 {
		_, err := fmt.Fprintln(out, "No pages found.")
		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PAGE ID\tUID\tTITLE")
	fmt.Fprintln(w, "-------\t---\t-----")
	for _, e := range entries {
		title := e.SEO.EffectiveTitle()
		if title == "" {
			title = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", e.PageID, e.PageUID, title)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(out, "\nTotal: %d pages\n", len(entries))
	return err
}

func newRebuildIndexCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rebuild-index",
		Short: "Rebuild index.json from the page directories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newAdminRuntime(opts)
			if err != nil {
				return err
			}
			defer rt.close()

			idx, err := rt.store.RebuildIndex()
			if err != nil {
				return fmt.Errorf("failed to rebuild index: %w", err)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Index rebuilt: %d pages\n", len(idx.Pages))
			return err
		},
	}
}

func newVerifyCmd(opts *globalOptions) *cobra.Command {
	var (
		fix    bool
		format string
	)

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Compare index.json with the page directories",
		Long: `Report pages missing from the index, stale index entries and uid
mismatches. With --fix the index is rebuilt when it is inconsistent.
Exits non-zero when the index is inconsistent and --fix is not set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateFormat(format); err != nil {
				return err
			}
			rt, err := newAdminRuntime(opts)
			if err != nil {
				return err
			}
			defer rt.close()

			report, err := rt.store.Verify()
			if err != nil {
				return fmt.Errorf("failed to verify index: %w", err)
			}

			out := cmd.OutOrStdout()
			if format == formatJSON {
				err = writeJSON(out, report)
			} else {
				err = writeReport(out, report)
			}
			if err != nil {
				return err
			}

			if report.Consistent() {
				return nil
			}
			if !fix {
				return fmt.Errorf("index is inconsistent with the page directories")
			}
			idx, err := rt.store.RebuildIndex()
			if err != nil {
				return fmt.Errorf("failed to rebuild index: %w", err)
			}
			if format == formatTable {
				_, err = fmt.Fprintf(out, "Index rebuilt: %d pages\n", len(idx.Pages))
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&fix, "fix", false, "rebuild the index when it is inconsistent")
	cmd.Flags().StringVarP(&format, "format", "f", formatTable, "output format (table, json)")
	return cmd
}

func writeReport(out io.Writer, report store.IndexReport) error {
	status := "consistent"
	if !report.Consistent() {
		status = "inconsistent"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Index:      %s\n", status)
	fmt.Fprintf(&b, "Indexed:    %d\n", report.Indexed)
	fmt.Fprintf(&b, "On disk:    %d\n", report.OnDisk)
	if report.Unreadable {
		b.WriteString("Unreadable: index.json is missing or corrupt\n")
	}
	writeIDList(&b, "Missing", report.Missing)
	writeIDList(&b, "Stale", report.Stale)
	writeIDList(&b, "Mismatched", report.Mismatched)

	_, err := io.WriteString(out, b.String())
	return err
}

func writeIDList(b *strings.Builder, label string, ids []string) {
	if len(ids) == 0 {
		return
	}
	fmt.Fprintf(b, "%-11s %s\n", label+":", strings.Join(ids, ", "))
}

func writeJSON(out io.Writer, v any) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
