package main

import (
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"triggergate/pkg/menu"
)

// NewPublishMenuCommand creates the publish-menu command.
func NewPublishMenuCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "publish-menu <version> <trigger>...",
		Short: "Store a trigger menu in Redis and announce it to running filters",
		Long: `Store a trigger menu in Redis and announce it to running filters.

Trigger names are given in runtime order: the nth name is the trigger reported
at position n of the accept vector of events with this menu version.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := rootOpts.Config.Redis
			client := redis.NewClient(&redis.Options{
				Addr:     cfg.Address,
				Password: cfg.Password,
				DB:       cfg.DB,
			})
			defer client.Close()

			a := menu.Announcement{Version: args[0], Names: args[1:]}
			if err := menu.NewRedisStore(client, cfg.Prefix).Publish(cmd.Context(), cfg.Channel, a); err != nil {
				return fmt.Errorf("publish menu %q: %w", a.Version, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "published menu %s with %d triggers on %s\n", a.Version, len(a.Names), cfg.Channel)
			return nil
		},
	}
}
