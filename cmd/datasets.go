package main

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/brainless/csvexplorer/internal/importer"
	"github.com/spf13/cobra"
)

func newImportCmd() *cobra.Command {
	importCmd := &cobra.Command{
		Use:   "import [url]...",
		Short: "Fetch CSV URLs into the local cache",
		Long: `Fetch one or more CSV URLs, infer their schema and store them in chunks.
A URL that is already cached is served from the cache unless --force is given.
Several URLs are imported concurrently, bounded by --workers.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setupApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			workers, _ := cmd.Flags().GetInt("workers")
			if workers <= 0 {
				workers = a.config.Workers
			}
			asJSON, _ := cmd.Flags().GetBool("json")

			batch := a.importer.ImportBatch(cmd.Context(), args, a.importOptions(cmd), workers)
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(batch); err != nil {
					return fmt.Errorf("failed to encode result: %w", err)
				}
			} else {
				for _, o := range batch.Outcomes {
					printOutcome(cmd, o)
				}
			}

			if n := batch.Failed(); n > 0 {
				return fmt.Errorf("%d of %d imports failed", n, len(batch.Outcomes))
			}
			return nil
		},
	}

	importCmd.Flags().Int("chunk-size", 0, "Rows per stored chunk (default from config)")
	importCmd.Flags().Bool("force", false, "Re-fetch even when the URL is cached")
	importCmd.Flags().Int("workers", 0, "Concurrent imports (default from config)")
	importCmd.Flags().Bool("json", false, "Print the batch result as JSON")
	return importCmd
}

func printOutcome(cmd *cobra.Command, o importer.Outcome) {
	out := cmd.OutOrStdout()
	switch {
	case o.Err != nil:
		fmt.Fprintf(out, "Failed %s: %v\n", o.URL, o.Err)
	case o.Result.FromCache:
		fmt.Fprintf(out, "Loaded %s from cache (%d rows)\n", o.URL, o.Result.Meta.RowCount)
	default:
		m := o.Result.Meta
		fmt.Fprintf(out, "Imported %s: %d rows in %d chunks, %d columns\n", o.URL, m.RowCount, m.ChunkCount, len(m.Schema))
	}
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List cached datasets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShellCommand(cmd, "list")
		},
	}
}

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show [url]",
		Short: "Show metadata and inferred schema of a cached dataset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShellCommand(cmd, "show", args[0])
		},
	}
}

func newRowsCmd() *cobra.Command {
	rowsCmd := &cobra.Command{
		Use:   "rows [url]",
		Short: "Print data rows of a cached dataset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			offset, _ := cmd.Flags().GetInt("offset")
			limit, _ := cmd.Flags().GetInt("limit")
			return runShellCommand(cmd, "rows", args[0], strconv.Itoa(offset), strconv.Itoa(limit))
		},
	}
	rowsCmd.Flags().Int("offset", 0, "Index of the first data row")
	rowsCmd.Flags().Int("limit", 20, "Maximum rows to print")
	return rowsCmd
}

func newClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear [url]",
		Short: "Remove a dataset from the cache",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShellCommand(cmd, "clear", args[0])
		},
	}
}

func newReferenceCmd() *cobra.Command {
	referenceCmd := &cobra.Command{
		Use:   "reference [url]",
		Short: "Print the reference page of a cached dataset",
		Long:  "Print the data dictionary, sample questions, DKAN SQL examples, validation rules and an explanation prompt as Markdown.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			shellArgs := []string{"reference", args[0]}
			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				shellArgs = append(shellArgs, "--json")
			}
			return runShellCommand(cmd, shellArgs...)
		},
	}
	referenceCmd.Flags().Bool("json", false, "Print the schema export document instead")
	return referenceCmd
}
