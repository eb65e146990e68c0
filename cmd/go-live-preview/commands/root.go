package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var logLevel string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "go-live-preview",
	Short: "Keep a rendered preview in sync with a document being edited",
	Long: `go-live-preview pushes edits of a document to an embedded renderer as
they happen, and refreshes server-built previews when the host application
reports a finished build.

Run "go-live-preview frame" to host the renderer, and register
"go-live-preview nvim" as a Neovim remote plugin to edit documents.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setupLogging(logLevel)
	},
}

// Execute runs the root command and prints any error in red.
func Execute() error {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	err := rootCmd.Execute()
	if err != nil {
		color.New(color.FgRed).Fprintln(os.Stderr, "error:", err)
	}
	return err
}

// SetVersion sets the version reported by --version.
func SetVersion(v string) {
	rootCmd.Version = v
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn or error")
}

// setupLogging sends structured logs to stderr; stdout belongs to the
// Neovim RPC stream when running as a plugin.
func setupLogging(level string) error {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return fmt.Errorf("invalid --log-level %q: %w", level, err)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l})))
	return nil
}
