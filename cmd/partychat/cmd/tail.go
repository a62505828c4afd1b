package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lfgparty/partychat/pkg/partychat/config"
	"github.com/lfgparty/partychat/pkg/partychat/o11y/otelprov"
	"github.com/lfgparty/partychat/pkg/partychat/socket"
	"github.com/lfgparty/partychat/pkg/partychat/wire"
)

// tailCmd represents the tail command
var tailCmd = &cobra.Command{
	Use:   "tail <base-url> [party-room-ids...]",
	Short: "Connect to the chat socket and print pushed messages",
	Long: `Connect to the chat socket, subscribe to the user notification queues
and any given party rooms, and print every pushed message to stdout.

The first argument is the HTTP(S) base URL of the backend; the socket
endpoint is derived from it. Set PARTYCHAT_TOKEN to authenticate.

Examples:
  partychat tail https://api.example.com
  partychat tail https://api.example.com room-123 room-456`,
	Args: cobra.MinimumNArgs(1),
	RunE: runTail,
}

var tailDialTimeout time.Duration

func init() {
	rootCmd.AddCommand(tailCmd)

	tailCmd.Flags().DurationVar(&tailDialTimeout, "dial-timeout", 10*time.Second, "socket dial timeout")
}

func runTail(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadWithBaseURL(args[0])
	if err != nil {
		return err
	}

	logger, err := setupLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to setup logger: %w", err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger.Info("Starting tail",
		zap.String("url", cfg.SocketURL()),
		zap.Strings("rooms", args[1:]),
	)

	manager, err := socket.NewManager().
		WithURL(cfg.SocketURL()).
		WithLogger(logger).
		WithHeartbeatInterval(cfg.HeartbeatInterval).
		WithReconnectDelay(cfg.ReconnectDelay).
		WithDialTimeout(tailDialTimeout).
		WithSessionProvider(sessionProvider(cfg)).
		WithMetrics(otelprov.NewProvider("partychat", serviceVersion)).
		WithErrorHandler(func(frame *wire.Frame) {
			fmt.Printf("ERROR\t%s\n", frame.Header("message"))
		}).
		Build()
	if err != nil {
		return fmt.Errorf("failed to create socket manager: %w", err)
	}

	printFrame := func(destination string, payload json.RawMessage) {
		fmt.Printf("%s\t%s\n", destination, payload)
	}

	manager.Subscribe("/user/queue/notifications", printFrame)
	manager.Subscribe("/user/queue/party-notifications", printFrame)
	for _, roomID := range args[1:] {
		manager.Subscribe("/topic/party/"+roomID, printFrame)
	}

	if err := manager.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	logger.Info("Listening for messages... (Press Ctrl+C to exit)")

	<-sigChan
	logger.Info("Shutting down")

	if err := manager.Close(); err != nil {
		logger.Warn("Error during close", zap.Error(err))
	}
	return nil
}

func sessionProvider(cfg *config.Config) socket.SessionProvider {
	if cfg.Token == "" {
		return nil
	}
	return func(ctx context.Context) (string, error) {
		return cfg.Token, nil
	}
}
