package commands

import (
	"context"
	"errors"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"go-live-preview/internal/render"
	httpserver "go-live-preview/internal/transport/http"
)

var frameAddr string

var frameCmd = &cobra.Command{
	Use:   "frame",
	Short: "Host the preview renderer",
	Long: `Host the preview renderer.

Editors connect to ws://{addr}/{version}-{theme}/preview and push build
data; browsers open http://{addr}/{version}-{theme}/preview and see each
update as it is rendered.`,
	RunE: runFrame,
}

func init() {
	frameCmd.Flags().StringVar(&frameAddr, "addr", "127.0.0.1:7777", "Listen address")
	rootCmd.AddCommand(frameCmd)
}

func runFrame(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := slog.Default().With("component", "frame")
	server := httpserver.NewPreviewServer(frameAddr, render.NewRenderer(), logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.ListenAndServe(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		server.Close()
		return nil
	})

	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("renderer host stopped")
	return nil
}
