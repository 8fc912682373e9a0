/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"github.com/urfave/cli/v2"
)

func listSubscriptionsCmd() *cli.Command {
	return &cli.Command{
		Name:  "list-subscriptions",
		Usage: "List the channels subscribed to each feed",
		Flags: clientFlags(),
		Action: func(ctx *cli.Context) error {
			return remote(ctx, "list-subscriptions", nil)
		},
	}
}

func subscribeCmd() *cli.Command {
	return &cli.Command{
		Name:      "subscribe",
		Usage:     "Subscribe channels to a feed",
		ArgsUsage: "<feed-id> <channel>...",
		Description: `Subscribes channels to a feed on the running server. Requires the admin token.

Channels written bsky:<handle> are posted to Bluesky, any other channel is
streamed at /channels/<channel>/sse.`,
		Flags: clientFlags(),
		Action: func(ctx *cli.Context) error {
			return remote(ctx, "subscribe", ctx.Args().Slice())
		},
	}
}

func unsubscribeCmd() *cli.Command {
	return &cli.Command{
		Name:        "unsubscribe",
		Usage:       "Unsubscribe channels from a feed",
		ArgsUsage:   "<feed-id> <channel>...",
		Description: `Removes channels from a feed's subscriptions on the running server. Requires the admin token.`,
		Flags:       clientFlags(),
		Action: func(ctx *cli.Context) error {
			return remote(ctx, "unsubscribe", ctx.Args().Slice())
		},
	}
}
