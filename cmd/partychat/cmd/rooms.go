package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/lfgparty/partychat/pkg/partychat/config"
	"github.com/lfgparty/partychat/pkg/partychat/rest"
	"github.com/lfgparty/partychat/pkg/partychat/store"
)

// roomsCmd represents the rooms command
var roomsCmd = &cobra.Command{
	Use:   "rooms <base-url>",
	Short: "List party and DM rooms",
	Long: `Fetch the party and direct-message room lists over the REST API and
print them with unread counts. Set PARTYCHAT_TOKEN to authenticate.`,
	Args: cobra.ExactArgs(1),
	RunE: runRooms,
}

var roomsTimeout time.Duration

func init() {
	rootCmd.AddCommand(roomsCmd)

	roomsCmd.Flags().DurationVar(&roomsTimeout, "timeout", 30*time.Second, "total operation timeout")
}

func runRooms(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadWithBaseURL(args[0])
	if err != nil {
		return err
	}

	logger, err := setupLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to setup logger: %w", err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), roomsTimeout)
	defer cancel()

	var token rest.TokenProvider
	if cfg.Token != "" {
		token = func(ctx context.Context) (string, error) { return cfg.Token, nil }
	}

	client, err := rest.NewClient().
		WithBaseURL(cfg.HTTPURL()).
		WithLogger(logger).
		WithTokenProvider(token).
		Build()
	if err != nil {
		return fmt.Errorf("failed to create REST client: %w", err)
	}

	st := store.NewStore().WithLogger(logger).Build()

	partyRooms, err := client.ListPartyRooms(ctx)
	if err != nil {
		return fmt.Errorf("failed to list party rooms: %w", err)
	}
	st.SetPartyRooms(partyRooms)

	dmRooms, err := client.ListDmRooms(ctx)
	if err != nil {
		return fmt.Errorf("failed to list dm rooms: %w", err)
	}
	st.SetDmRooms(dmRooms)

	fmt.Printf("PARTY ROOMS (%d)\n", len(partyRooms))
	for _, room := range st.PartyRooms() {
		fmt.Printf("  %s\t%s\tunread=%d\t%s\n",
			room.ID, room.DisplayName, room.UnreadCount, room.LastMessage)
	}

	fmt.Printf("DM ROOMS (%d)\n", len(dmRooms))
	for _, room := range st.DmRooms() {
		fmt.Printf("  %s\t%s\tunread=%d\t%s\n",
			room.ID, room.PartnerName, room.UnreadCount, room.LastMessage)
	}

	fmt.Printf("TOTAL UNREAD: %d\n", st.TotalUnread())
	return nil
}
