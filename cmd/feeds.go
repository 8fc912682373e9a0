/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"
	"fmt"
	"rssnotify/server"
	"strings"

	"github.com/cqroot/prompt"
	"github.com/urfave/cli/v2"
)

// remote runs a command on the server configured by the client flags and prints its output
func remote(ctx *cli.Context, name string, args []string) error {
	client := server.NewClient(ctx.String("server"), ctx.String("admin-token"))
	out, err := client.Execute(ctx.Context, name, args)
	if err != nil {
		return err
	}
	if out != "" {
		fmt.Println(out)
	}
	return nil
}

func listFeedsCmd() *cli.Command {
	return &cli.Command{
		Name:  "list-feeds",
		Usage: "List registered feeds",
		Flags: clientFlags(),
		Action: func(ctx *cli.Context) error {
			return remote(ctx, "list-feeds", nil)
		},
	}
}

func addFeedCmd() *cli.Command {
	return &cli.Command{
		Name:      "add-feed",
		Usage:     "Register one or more feeds",
		ArgsUsage: "<url>...",
		Description: `Registers feeds on the running server and prints the feed ID of each.
Asks for a URL when none is given. Requires the admin token.`,
		Flags: clientFlags(),
		Action: func(ctx *cli.Context) error {
			urls := ctx.Args().Slice()
			if len(urls) == 0 {
				url, err := prompt.New().Ask("Feed URL:").Input("https://")
				if err != nil {
					return err
				}
				url = strings.TrimSpace(url)
				if url == "" || url == "https://" {
					return errors.New("no feed URL given")
				}
				urls = []string{url}
			}
			return remote(ctx, "add-feed", urls)
		},
	}
}

func removeFeedCmd() *cli.Command {
	return &cli.Command{
		Name:        "remove-feed",
		Usage:       "Unregister feeds and their subscriptions",
		ArgsUsage:   "<feed-id>...",
		Description: `Removes feeds from the running server. Requires the admin token.`,
		Flags:       clientFlags(),
		Action: func(ctx *cli.Context) error {
			return remote(ctx, "remove-feed", ctx.Args().Slice())
		},
	}
}
