/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"
)

func tidyCmd() *cli.Command {
	return &cli.Command{
		Name:  "tidy",
		Usage: "Tidy up the store",
		Description: `Tidy up the store by removing posts that have not been written
for a while.

Removes tweets and retweets older than --older-than (90 days by default).
Persons are never removed.`,
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:    "older-than",
				Usage:   "Remove posts last written before this long ago",
				EnvVars: []string{"TIDY_OLDER_THAN"},
				Value:   defaultTidyAge,
			},
		},
		Action: func(c *cli.Context) error {
			return withRuntime(c, needs{store: true}, func(c *cli.Context, rt *Runtime) error {
				before := time.Now().Add(-c.Duration("older-than"))
				removed, err := rt.Store.Tidy(c.Context, before)
				if err != nil {
					return err
				}
				fmt.Printf("Removed %d posts written before %s\n", removed, before.Format(time.RFC3339))
				return nil
			})
		},
	}
}
