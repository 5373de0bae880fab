package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/edgecomet/pagestore/internal/archive"
)

func newExportCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "export <path>",
		Short: "Write every page to a JSON-lines archive",
		Long: `Write every readable page to one JSON-lines file. The file extension
selects compression: .snappy, .lz4, anything else is plain.

Examples:
  pagestore export pages.jsonl
  pagestore export backup/pages.jsonl.lz4`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newAdminRuntime(opts)
			if err != nil {
				return err
			}
			defer rt.close()

			result, err := archive.NewArchiver(rt.logger.Logger, nil).Export(rt.store, args[0])
			if err != nil {
				return fmt.Errorf("export failed: %w", err)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Exported %d pages to %s (%s, %d bytes, %d skipped)\n",
				result.Pages, args[0], result.Algorithm, result.Bytes, result.Skipped)
			return err
		},
	}
}

func newImportCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <path>",
		Short: "Create or update pages from an archive written by export",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newAdminRuntime(opts)
			if err != nil {
				return err
			}
			defer rt.close()

			result, err := archive.NewArchiver(rt.logger.Logger, nil).Import(rt.store, args[0])
			if err != nil {
				return fmt.Errorf("import failed: %w", err)
			}
			if _, err := fmt.Fprintf(cmd.OutOrStdout(), "Imported %s: %d created, %d updated, %d failed\n",
				args[0], result.Created, result.Updated, result.Failed); err != nil {
				return err
			}
			if result.Failed > 0 {
				return fmt.Errorf("%d pages failed to import", result.Failed)
			}
			return nil
		},
	}
}
