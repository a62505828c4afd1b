package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lfgparty/partychat/pkg/partychat/config"
	"github.com/lfgparty/partychat/pkg/partychat/socket"
	"github.com/lfgparty/partychat/pkg/partychat/store"
)

// sendCmd represents the send command
var sendCmd = &cobra.Command{
	Use:   "send <base-url> <channel> <room-id> <text>",
	Short: "Send a single chat message",
	Long: `Connect to the chat socket, send one message to a room, and exit.

The channel argument is "party" or "dm".

Examples:
  partychat send https://api.example.com party room-123 "on my way"
  partychat send https://api.example.com dm dm-456 "hey!"`,
	Args: cobra.ExactArgs(4),
	RunE: runSend,
}

var sendTimeout time.Duration

func init() {
	rootCmd.AddCommand(sendCmd)

	sendCmd.Flags().DurationVar(&sendTimeout, "timeout", 30*time.Second, "total operation timeout")
}

func runSend(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadWithBaseURL(args[0])
	if err != nil {
		return err
	}

	logger, err := setupLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to setup logger: %w", err)
	}
	defer logger.Sync()

	channel, roomID, text := store.Channel(args[1]), args[2], args[3]

	var destination string
	switch channel {
	case store.ChannelParty:
		destination = "/app/chat/" + roomID
	case store.ChannelDM:
		destination = "/app/dm/" + roomID
	default:
		return fmt.Errorf("unknown channel %q (want party or dm)", args[1])
	}

	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	manager, err := socket.NewManager().
		WithURL(cfg.SocketURL()).
		WithLogger(logger).
		WithHeartbeatInterval(cfg.HeartbeatInterval).
		WithReconnectDelay(cfg.ReconnectDelay).
		WithDialTimeout(cfg.DialTimeout).
		WithSessionProvider(sessionProvider(cfg)).
		Build()
	if err != nil {
		return fmt.Errorf("failed to create socket manager: %w", err)
	}
	defer func() {
		if closeErr := manager.Close(); closeErr != nil {
			logger.Warn("Error during close", zap.Error(closeErr))
		}
	}()

	if err := manager.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	if err := waitConnected(ctx, manager); err != nil {
		return err
	}

	if err := manager.Send(destination, map[string]string{"content": text}); err != nil {
		return fmt.Errorf("failed to send: %w", err)
	}

	logger.Info("Message sent",
		zap.String("destination", destination),
		zap.String("room_id", roomID),
	)
	return nil
}

// waitConnected polls until the CONNECTED handshake frame has arrived.
func waitConnected(ctx context.Context, manager *socket.Manager) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		if manager.Connected() {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("handshake timed out: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}
