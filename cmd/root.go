/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func RootApp() *cli.App {
	return &cli.App{
		Name:  "rssnotify",
		Usage: "Notify chat channels about new entries in RSS and Atom feeds",
		Description: `Polls a set of RSS and Atom feeds and sends every new entry to
		the channels subscribed to that feed.

		Feeds, subscriptions and the history of already notified entries are
		stored in an SQLite (or PostgreSQL) database. The serve command runs the
		poller together with an HTTP API used by the feed and subscription
		commands. Channels are streamed over server-sent events, channels
		written bsky:<handle> are posted to Bluesky.

		Flags can generally be set via environment variables, e.g.:

		--database => RSSNOTIFY_DATABASE=feeds.db
		--addr => RSSNOTIFY_ADDR=:3000
		`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				Usage:   "Log level (trace, debug, info, warn, error)",
				EnvVars: []string{"RSSNOTIFY_LOG_LEVEL"},
			},
			&cli.BoolFlag{
				Name:    "log-json",
				Usage:   "Write logs as JSON",
				EnvVars: []string{"RSSNOTIFY_LOG_JSON"},
			},
		},
		Before: func(ctx *cli.Context) error {
			level, err := log.ParseLevel(ctx.String("log-level"))
			if err != nil {
				return fmt.Errorf("invalid log level: %w", err)
			}
			log.SetLevel(level)
			if ctx.Bool("log-json") {
				log.SetFormatter(&log.JSONFormatter{})
			}
			return nil
		},
		Commands: []*cli.Command{
			serveCmd(),
			checkCmd(),
			migrateCmd(),
			rollbackCmd(),
			tidyCmd(),
			listFeedsCmd(),
			addFeedCmd(),
			removeFeedCmd(),
			listSubscriptionsCmd(),
			subscribeCmd(),
			unsubscribeCmd(),
		},
		Action: func(ctx *cli.Context) error {
			// Show help if no command is specified
			return ctx.App.Run([]string{"", "help"})
		},
	}
}

// Execute runs the application and exits non-zero on error
func Execute() {
	if err := RootApp().Run(os.Args); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}
