package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kiplm/kiplm/internal/catalog/api"
	"github.com/kiplm/kiplm/internal/catalog/builder"
	"github.com/kiplm/kiplm/internal/catalog/events"
	"github.com/kiplm/kiplm/internal/catalog/watcher"
	"github.com/kiplm/kiplm/internal/ui"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"dev"},
	GroupID: "server",
	Short:   "Build, watch the tables and serve the catalog API",
	Long: `Run a full build, then serve the catalog API while watching the CSV
tables and rebuilding them as they change.

Routes, under the configured prefix (default /monkey-api):
  GET  /injected_code.js   browser client script
  GET  /parts              every IPN
  GET  /tables             columns of every table
  GET  /part/{ipn}         one record
  GET  /part-by-mpn/{mpn}  first record with that MPN
  POST /part/{ipn}         create a record
  PUT  /part/{ipn}         update fields of a record
  GET  /events             WebSocket stream of build and part events

If the watcher cannot start, the error is logged and the API keeps running.

Examples:
  kiplm serve
  kiplm serve --address 0.0.0.0 --port 8080`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	hub := events.NewHub(events.Config{Logger: logger})
	hub.Start()
	defer hub.Stop()

	c, err := openCatalog(hub.PublishBuild)
	if err != nil {
		return err
	}
	defer c.Close()

	report, err := c.builder.Build(ctx, nil)
	if err != nil && !errors.Is(err, builder.ErrPartialFailure) {
		return err
	}
	ui.PrintReport(os.Stdout, report)

	srv, err := api.New(c.store, api.Config{
		Prefix:      cfg.Server.Prefix,
		FrontendDir: cfg.Server.FrontendDir,
		HandleCORS:  cfg.Server.HandleCORS,
		Events:      hub,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	w, err := watcher.New(c.store.Dir(), c.builder, watcher.Config{
		Logger: logger,
		OnBuild: func(ev watcher.TableEvent, report *builder.Report, err error) {
			ui.PrintReport(os.Stdout, report)
		},
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		fmt.Printf("%s Serving catalog on http://%s%s/\n", ui.RenderAccent("●"), httpServer.Addr, srv.Prefix())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		hub.Stop()
		return httpServer.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		err := w.Run(gctx)
		if errors.Is(err, watcher.ErrWatchSetup) {
			logger.Error("file watcher unavailable, tables will not rebuild automatically", zap.Error(err))
			return nil
		}
		return err
	})

	if err := g.Wait(); err != nil {
		return err
	}
	fmt.Println("\nShutting down...")
	return nil
}

func init() {
	serveCmd.Flags().String("address", "", "Address to listen on (default localhost)")
	serveCmd.Flags().Int("port", 0, "Port to listen on (default 5000)")
	serveCmd.Flags().String("frontend-dir", "", "Directory holding injected_code.js")
	_ = v.BindPFlag("server.address", serveCmd.Flags().Lookup("address"))
	_ = v.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	_ = v.BindPFlag("server.frontend_dir", serveCmd.Flags().Lookup("frontend-dir"))
	rootCmd.AddCommand(serveCmd)
}
