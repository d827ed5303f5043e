package main

import (
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"slices"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/kiplm/kiplm/internal/catalog/descriptor"
	"github.com/kiplm/kiplm/internal/catalog/mirror"
	"github.com/kiplm/kiplm/internal/catalog/store"
	"github.com/kiplm/kiplm/internal/ui"
)

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "catalog",
	Short:   "Show the tables, the mirror and the descriptor",
	Long: `Display the state of the catalog.

Shows:
  - Record count of every CSV table, and tables that fail to parse
  - Mirror location, size and per-table row counts
  - Descriptor location and the libraries it lists`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st := store.New(cfg.DBDir)

		fmt.Printf("\n%s Tables (%s)\n", ui.RenderAccent("●"), st.Dir())
		tables, failed, err := st.ReadAll()
		if err != nil {
			return err
		}
		for _, t := range tables {
			fmt.Printf("   %-8s %d records\n", t.Name, t.Len())
		}
		for _, name := range slices.Sorted(maps.Keys(failed)) {
			fmt.Printf("   %-8s %s %v\n", name, ui.RenderFail("unreadable:"), failed[name])
		}

		fmt.Printf("\n%s Mirror (%s)\n", ui.RenderAccent("●"), cfg.MirrorPath)
		info, err := os.Stat(cfg.MirrorPath)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			fmt.Printf("   %s not built, run 'kiplm build'\n", ui.RenderWarn("⚠"))
		case err != nil:
			return fmt.Errorf("error checking mirror: %w", err)
		default:
			m, err := mirror.Open(cfg.MirrorPath)
			if err != nil {
				return err
			}
			defer m.Close()

			names, err := m.ListTables(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("   Size: %s\n", humanize.Bytes(uint64(info.Size())))
			for _, name := range names {
				count, err := m.RowCount(ctx, name)
				if err != nil {
					return err
				}
				fmt.Printf("   %-8s %d rows\n", name, count)
			}
		}

		fmt.Printf("\n%s Descriptor (%s)\n", ui.RenderAccent("●"), cfg.DescriptorPath)
		doc, err := descriptor.Read(cfg.DescriptorPath)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			fmt.Printf("   %s not written, run 'kiplm build'\n", ui.RenderWarn("⚠"))
		case err != nil:
			fmt.Printf("   %s %v\n", ui.RenderFail("unreadable:"), err)
		default:
			fmt.Printf("   Name: %s\n", doc.Name)
			fmt.Printf("   Source: %s\n", doc.Source.ConnectionString)
			for _, lib := range doc.Libraries {
				fmt.Printf("   %-8s %d fields\n", lib.Table, len(lib.Fields))
			}
		}
		fmt.Printf("   Dir: %s\n\n", filepath.Dir(cfg.DescriptorPath))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
