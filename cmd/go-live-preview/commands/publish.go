package commands

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"go-live-preview/internal/bus"
	"go-live-preview/internal/document"
	"go-live-preview/internal/notify"
)

var (
	publishRedisAddr string
	publishRedisDB   int
	publishEntity    string
)

var publishCmd = &cobra.Command{
	Use:   "publish-status DOCUMENT_ID STATUS",
	Short: "Publish a document build status",
	Long: `Publish a document build status on the redis status bus, as the host
application does when a server-side build changes state.

Examples:
  # Tell editors of project 42 the build finished
  go-live-preview publish-status 42 built

  # Graphics live on their own topics
  go-live-preview publish-status --entity=graphic 7 building`,
	Args: cobra.ExactArgs(2),
	RunE: runPublish,
}

func init() {
	publishCmd.Flags().StringVar(&publishRedisAddr, "redis-addr", "localhost:6379", "Redis address")
	publishCmd.Flags().IntVar(&publishRedisDB, "redis-db", 0, "Redis database")
	publishCmd.Flags().StringVar(&publishEntity, "entity", "project", "Entity name used in the topic")
	rootCmd.AddCommand(publishCmd)
}

func runPublish(cmd *cobra.Command, args []string) error {
	id, status := args[0], document.Status(args[1])
	topic := document.Topic(publishEntity, id)

	b := bus.NewRedis(&redis.Options{Addr: publishRedisAddr, DB: publishRedisDB})
	defer b.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
	defer cancel()

	if err := b.Publish(ctx, topic, string(status)); err != nil {
		return err
	}
	notify.NewTerminal(cmd.OutOrStdout(), slog.Default()).Success(topic + " → " + string(status))
	return nil
}
