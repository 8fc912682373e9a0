/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"rssnotify/bluesky"
	"rssnotify/commands"
	"rssnotify/config"
	"rssnotify/db"
	"rssnotify/dispatch"
	"rssnotify/feeds"
	"rssnotify/poller"
	"rssnotify/server"
	"sync"
	"syscall"
	"time"

	"github.com/cqroot/prompt"
	"github.com/cqroot/prompt/input"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

// serveCmd runs the poller and the HTTP API
func serveCmd() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the rssnotify poller and API",
		Description: `Starts the feed poller and the HTTP API.

Runs a poll cycle immediately and then every UPDATE_INTERVAL seconds. New
entries are sent to every channel subscribed to their feed:

  bsky:<handle>  posted to Bluesky, requires --bsky-handle
  anything else  streamed to clients of GET /channels/<channel>/sse

Feeds and subscriptions are managed through POST /commands/<name>, which the
feed and subscription commands of this program use.`,
		Flags: []cli.Flag{
			configFlag(),
			databaseFlag(),
			adminTokenFlag(),
			&cli.StringFlag{
				Name:    "addr",
				Aliases: []string{"a"},
				Value:   ":3000",
				Usage:   "Address the HTTP API listens on",
				EnvVars: []string{"RSSNOTIFY_ADDR"},
			},
			&cli.StringFlag{
				Name:    "bsky-handle",
				Usage:   "Bluesky handle that bsky: channels post as",
				EnvVars: []string{"RSSNOTIFY_BSKY_HANDLE"},
			},
			&cli.StringFlag{
				Name:    "bsky-password",
				Usage:   "Bluesky app password, prompted for when a handle is set without it",
				EnvVars: []string{"RSSNOTIFY_BSKY_PASSWORD"},
			},
			&cli.StringFlag{
				Name:    "bsky-host",
				Value:   bluesky.DefaultPDSHost,
				Usage:   "Bluesky PDS host",
				EnvVars: []string{"RSSNOTIFY_BSKY_HOST"},
			},
		},
		Action: func(ctx *cli.Context) error {
			log.Info("Starting rssnotify...")

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

			broadcaster := server.NewBroadcaster()
			router := dispatch.NewRouter(broadcaster)

			if handle := ctx.String("bsky-handle"); handle != "" {
				client, err := blueskyClient(ctx, handle)
				if err != nil {
					return err
				}
				router.Handle("bsky", bluesky.NewSender(client))
				log.WithFields(log.Fields{"handle": client.Handle()}).Info("Posting bsky: channels to Bluesky")
			}

			registry := feeds.NewRegistry()
			shortener := dispatch.NewIsgdShortener(cfg.ShortenerURL, cfg.FetchTimeoutDuration())
			dispatcher := dispatch.New(*cfg, registry, shortener, router)
			fetcher := poller.NewGofeedFetcher(cfg.UserAgent, cfg.FetchTimeoutDuration(), cfg.FetchRetries)
			worker := poller.New(*cfg, store, fetcher, dispatcher, registry)

			app := server.Server(&server.ServerConfig{
				Handler:     commands.NewHandler(worker),
				Broadcaster: broadcaster,
				AdminToken:  ctx.String("admin-token"),
			})
			if ctx.String("admin-token") == "" {
				log.Warn("No admin token configured, admin commands are disabled")
			}

			// Graceful shutdown
			runCtx, stop := signal.NotifyContext(ctx.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			errc := make(chan error, 2)
			var wg sync.WaitGroup

			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := worker.Run(runCtx); err != nil {
					errc <- fmt.Errorf("poller: %w", err)
					stop()
				}
			}()

			go func() {
				log.WithFields(log.Fields{"addr": ctx.String("addr")}).Info("Starting server...")
				if err := app.Listen(ctx.String("addr")); err != nil {
					errc <- fmt.Errorf("server: %w", err)
					stop()
				}
			}()

			<-runCtx.Done()
			log.Info("Gracefully shutting down...")

			// Close SSE streams first so the server can drain
			broadcaster.Shutdown()
			if err := app.ShutdownWithTimeout(60 * time.Second); err != nil {
				log.Errorf("Failed to shut down server: %v", err)
			}
			wg.Wait()

			log.Info("Done!")

			select {
			case err := <-errc:
				return err
			default:
				return nil
			}
		},
	}
}

func blueskyClient(ctx *cli.Context, handle string) (*bluesky.Client, error) {
	password := ctx.String("bsky-password")
	if password == "" {
		var err error
		password, err = prompt.New().Ask("Bluesky app password:").Input("", input.WithEchoMode(input.EchoNone))
		if err != nil {
			return nil, err
		}
	}

	loginCtx, cancel := context.WithTimeout(ctx.Context, 30*time.Second)
	defer cancel()

	client, err := bluesky.ClientFromCredentials(loginCtx, ctx.String("bsky-host"), &bluesky.Credentials{
		Identifier: handle,
		Password:   password,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create client with provided credentials: %w", err)
	}
	return client, nil
}
