package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kiplm/kiplm/internal/catalog/importer"
	"github.com/kiplm/kiplm/internal/catalog/store"
	"github.com/kiplm/kiplm/internal/ui"
)

var importDryRun bool

var importCmd = &cobra.Command{
	Use:     "import <file>",
	GroupID: "catalog",
	Short:   "Create parts in bulk from a JSONL or YAML file",
	Long: `Create one record per entry of a JSONL (.jsonl, .ndjson) or YAML
(.yaml, .yml) file. Each entry must carry an IPN; its table is taken from the
IPN prefix and must already exist.

Entries are validated like POST /part: malformed, duplicate or unknown-table
IPNs are reported and skipped, the rest are created.

Examples:
  kiplm import parts.jsonl
  kiplm import parts.yaml --dry-run`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		st := store.New(cfg.DBDir)
		result, err := importer.Import(ctx, st, importer.Options{
			Path:   args[0],
			DryRun: importDryRun,
			Logger: logger,
		})
		if err != nil {
			return err
		}

		for _, f := range result.Failures {
			fmt.Printf("%s line %d %s: %v\n", ui.RenderFail("✗"), f.Line, f.IPN, f.Err)
		}

		verb := "Created"
		if importDryRun {
			verb = "Would create"
		}
		fmt.Printf("%s %s %d of %d parts\n", ui.RenderPass("✓"), verb, result.Created, result.Total)
		if len(result.Failures) > 0 {
			fmt.Printf("   %s %d skipped\n", ui.RenderWarn("⚠"), len(result.Failures))
		}
		return nil
	},
}

func init() {
	importCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "Validate entries without writing")
	rootCmd.AddCommand(importCmd)
}
