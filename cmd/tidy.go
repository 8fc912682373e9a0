/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"rssnotify/config"
	"rssnotify/db"

	"github.com/urfave/cli/v2"
)

func tidyCmd() *cli.Command {
	return &cli.Command{
		Name:  "tidy",
		Usage: "Tidy up the database",
		Description: `Tidy up the database by trimming entry history and removing
		rows left behind by removed feeds.

		Every feed keeps at most ENTRY_CACHE_SIZE entry hashes. After the option
		is lowered a running server shrinks each history on its next successful
		poll of that feed. Tidy applies it to every feed at once, including feeds
		that currently fail to fetch.`,
		Flags: []cli.Flag{
			configFlag(),
			databaseFlag(),
		},
		Action: func(ctx *cli.Context) error {
			cfg, err := config.LoadConfig(ctx.String("config"))
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			database := ctx.String("database")
			fmt.Println("Database configured: ", displayDatabase(database))

			store, err := db.Open(database)
			if err != nil {
				return err
			}
			defer store.Close()

			deleted, err := store.Tidy(ctx.Context, cfg.EntryCacheSize)
			if err != nil {
				return err
			}
			fmt.Printf("Deleted %d rows\n", deleted)
			return nil
		},
	}
}
