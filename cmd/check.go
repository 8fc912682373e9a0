/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"os"
	"rssnotify/config"
	"rssnotify/db"
	"rssnotify/dispatch"
	"rssnotify/feeds"
	"rssnotify/poller"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

// checkCmd runs a single poll cycle without the server
func checkCmd() *cli.Command {
	return &cli.Command{
		Name:  "check",
		Usage: "Poll every feed once and print new entries to the command line",
		Description: `Runs a single poll cycle against the configured database and prints
every message that would be sent to a channel.

Returns each message as a JSON object on a single line. Use a tool like jq to
process the output. The entries are recorded in the history, so a later cycle
will not send them again.

Do not run while a server uses the same database. Prints all other log
messages to stderr.`,
		Flags: []cli.Flag{
			configFlag(),
			databaseFlag(),
		},
		Action: func(ctx *cli.Context) error {
			// Disable logging to stdout
			log.SetOutput(os.Stderr)

			cfg, err := config.LoadConfig(ctx.String("config"))
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			database := ctx.String("database")
			if err := db.Migrate(database); err != nil {
				return fmt.Errorf("failed to migrate database: %w", err)
			}
			store, err := db.Open(database)
			if err != nil {
				return err
			}
			defer store.Close()

			stdout := dispatch.NewJSONLineSender(os.Stdout)
			router := dispatch.NewRouter(stdout)
			router.Handle("bsky", stdout)

			registry := feeds.NewRegistry()
			shortener := dispatch.NewIsgdShortener(cfg.ShortenerURL, cfg.FetchTimeoutDuration())
			dispatcher := dispatch.New(*cfg, registry, shortener, router)
			fetcher := poller.NewGofeedFetcher(cfg.UserAgent, cfg.FetchTimeoutDuration(), cfg.FetchRetries)
			worker := poller.New(*cfg, store, fetcher, dispatcher, registry)

			results, err := worker.RunOnce(ctx.Context)
			if err != nil {
				return err
			}

			for _, r := range results {
				fields := log.Fields{"feed": r.FeedID, "dispatched": r.Dispatched}
				if r.Err != nil {
					fields["error"] = r.Err
					log.WithFields(fields).Warn("Feed check failed")
					continue
				}
				log.WithFields(fields).Info("Feed checked")
			}
			return nil
		},
	}
}
