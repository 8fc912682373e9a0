/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"net/url"
	"rssnotify/config"

	"github.com/urfave/cli/v2"
)

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Value:   config.DefaultConfigPath(),
		Usage:   "Path to the TOML options file",
		EnvVars: []string{"RSSNOTIFY_CONFIG"},
	}
}

func databaseFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "database",
		Aliases: []string{"d"},
		Value:   config.DefaultDatabasePath(),
		Usage:   "SQLite database file location or postgres:// connection URL",
		EnvVars: []string{"RSSNOTIFY_DATABASE"},
	}
}

// displayDatabase returns the database location with any password masked
func displayDatabase(database string) string {
	u, err := url.Parse(database)
	if err != nil || u.User == nil {
		return database
	}
	return u.Redacted()
}

func adminTokenFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "admin-token",
		Usage:   "Bearer token granting admin commands",
		EnvVars: []string{"RSSNOTIFY_ADMIN_TOKEN"},
	}
}

// clientFlags are shared by the commands that talk to a running server
func clientFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "server",
			Aliases: []string{"s"},
			Value:   "http://localhost:3000",
			Usage:   "Base URL of the running rssnotify server",
			EnvVars: []string{"RSSNOTIFY_SERVER"},
		},
		adminTokenFlag(),
	}
}
