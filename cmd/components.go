/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"github.com/urfave/cli/v2"
)

func importCmd() *cli.Command {
	return &cli.Command{
		Name:  "import",
		Usage: "Import the persons dataset into the store",
		Description: `Downloads the persons CSV and upserts every row keyed by its
sequence number. Re-importing overwrites existing persons.`,
		Action: func(c *cli.Context) error {
			return withRuntime(c, needs{store: true}, importDataset)
		},
	}
}

func searchCmd() *cli.Command {
	return &cli.Command{
		Name:  "search",
		Usage: "Search today's posts for every term",
		Description: `Searches Bluesky for each configured term, likes and reposts
posts from allow-listed accounts and stores every result.

Rate limited searches wait --rate-limit-backoff and resume where they left off.`,
		Action: func(c *cli.Context) error {
			return withRuntime(c, needs{store: true, platform: true}, pollAll)
		},
	}
}

func listenCmd() *cli.Command {
	return &cli.Command{
		Name:  "listen",
		Usage: "Follow the live stream for matching posts",
		Description: `Subscribes to Jetstream and engages with new posts from allow-listed
accounts that mention a search term. Replies and the bot's own posts are
ignored. Dropped connections are re-established until the process is stopped.`,
		Action: func(c *cli.Context) error {
			return withRuntime(c, needs{store: true, platform: true}, listen)
		},
	}
}

func announceCmd() *cli.Command {
	return &cli.Command{
		Name:  "announce",
		Usage: "Post one announcement per stored person",
		Action: func(c *cli.Context) error {
			return withRuntime(c, needs{store: true, platform: true}, announceAll)
		},
	}
}
