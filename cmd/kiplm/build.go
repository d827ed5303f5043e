package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kiplm/kiplm/internal/catalog/builder"
	"github.com/kiplm/kiplm/internal/catalog/watcher"
	"github.com/kiplm/kiplm/internal/ui"
)

var buildWatch bool

var buildCmd = &cobra.Command{
	Use:     "build",
	GroupID: "catalog",
	Short:   "Build the KiCad mirror database and descriptor",
	Long: `Rebuild the SQLite mirror and the .kicad_dbl descriptor from every CSV
table in the database directory.

Each step is printed with its outcome:
  Updating table RES... OK
  Writing KiPLM.kicad_dbl... OK

The command exits with status 1 if any step failed.

With --watch, the full build is followed by a watch loop that rebuilds each
table as its CSV file changes, until interrupted.

Examples:
  kiplm build
  kiplm build --watch`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		c, err := openCatalog(nil)
		if err != nil {
			return err
		}
		defer c.Close()

		report, err := c.builder.Build(ctx, nil)
		if err != nil && !errors.Is(err, builder.ErrPartialFailure) {
			return err
		}
		ui.PrintReport(os.Stdout, report)
		ui.PrintSummary(os.Stdout, report)

		if !buildWatch {
			if !report.OK() {
				return errBuildFailed
			}
			return nil
		}

		return runWatch(ctx, c)
	},
}

// runWatch rebuilds tables as they change until ctx is done.
func runWatch(ctx context.Context, c *catalog) error {
	w, err := watcher.New(c.store.Dir(), c.builder, watcher.Config{
		Logger: logger,
		OnBuild: func(ev watcher.TableEvent, report *builder.Report, err error) {
			fmt.Printf("\n%s %s %s\n", ui.RenderAccent("●"), ev.Path, ev.Op)
			ui.PrintReport(os.Stdout, report)
		},
	})
	if err != nil {
		return err
	}

	fmt.Printf("\n%s Watching %s for changes... (Ctrl+C to stop)\n", ui.RenderAccent("👀"), c.store.Dir())
	if err := w.Run(ctx); err != nil {
		return err
	}
	logger.Debug("watch stopped", zap.String("dir", c.store.Dir()))
	return nil
}

func init() {
	buildCmd.Flags().BoolVarP(&buildWatch, "watch", "w", false, "Keep running and rebuild tables as their files change")
	rootCmd.AddCommand(buildCmd)
}
