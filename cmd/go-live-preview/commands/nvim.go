package commands

import (
	"log/slog"
	"os"

	"github.com/neovim/go-client/nvim/plugin"
	"github.com/spf13/cobra"

	"go-live-preview/internal/host"
)

const configEnv = "GO_LIVE_PREVIEW_CONFIG"

var nvimCmd = &cobra.Command{
	Use:   "nvim [plugin flags]",
	Short: "Run as a Neovim remote plugin",
	Long: `Run as a Neovim remote plugin over stdin/stdout.

The configuration file is read when :PreviewSyncStart runs, from its
argument, else $GO_LIVE_PREVIEW_CONFIG, else ./go-live-preview.yml.

Remaining arguments are handed to the plugin host, e.g. -manifest.`,
	DisableFlagParsing: true,
	RunE:               runNvim,
}

func init() {
	rootCmd.AddCommand(nvimCmd)
}

func runNvim(cmd *cobra.Command, args []string) error {
	configPath := os.Getenv(configEnv)
	if configPath == "" {
		configPath = "go-live-preview.yml"
	}

	// plugin.Main parses its own flags from os.Args.
	os.Args = append([]string{os.Args[0]}, args...)

	logger := slog.Default().With("component", "nvim")
	plugin.Main(func(p *plugin.Plugin) error {
		logger.Info("registering handlers")
		return host.Register(p, configPath, logger)
	})
	return nil
}
