/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"

	"vacunagates/db"

	"github.com/urfave/cli/v2"
)

func migrateCmd() *cli.Command {
	return &cli.Command{
		Name:        "migrate",
		Usage:       "Run database migrations",
		Description: `Creates the persons, tweets and retweets tables on the configured PostgreSQL database.`,
		Action: func(c *cli.Context) error {
			cfg := postgresConfig(c)
			fmt.Printf("Database configured: %s:%d/%s\n", cfg.Host, cfg.Port, cfg.Name)
			return db.Migrate(cfg)
		},
	}
}

func rollbackCmd() *cli.Command {
	return &cli.Command{
		Name:        "rollback",
		Usage:       "Rollback database migration",
		Description: `Rolls back the last database migration`,
		Action: func(c *cli.Context) error {
			cfg := postgresConfig(c)
			fmt.Printf("Database configured: %s:%d/%s\n", cfg.Host, cfg.Port, cfg.Name)
			return db.Rollback(cfg)
		},
	}
}
