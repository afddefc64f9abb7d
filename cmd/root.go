/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"os"
	"strings"

	"vacunagates/db"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

// Root mode flags. At most one may be given per run.
var modeFlags = []string{"save", "stream", "tweet", "test-save"}

func RootApp() *cli.App {
	flags := []cli.Flag{
		&cli.BoolFlag{
			Name:  "save",
			Usage: "Import the dataset, then search every term into the store",
		},
		&cli.BoolFlag{
			Name:  "stream",
			Usage: "Listen to the live stream and engage with allow-listed authors",
		},
		&cli.BoolFlag{
			Name:  "tweet",
			Usage: "Post one announcement per stored person",
		},
		&cli.BoolFlag{
			Name:  "test-save",
			Usage: "Like --save but write persons.json and tweets.json instead of a database",
		},
	}
	flags = append(flags, loggingFlags()...)
	flags = append(flags, botFlags()...)
	flags = append(flags, platformFlags()...)
	flags = append(flags, storeFlags()...)

	return &cli.App{
		Name:  "vacunagates",
		Usage: "Track and amplify posts about the vaccination list",
		Description: `Imports the published list of vaccinated officials, searches
Bluesky for the configured hashtags, likes and reposts posts from allow-listed
accounts and announces every person on the list.

Exactly one mode flag selects what a run does. Every component is also
available as a subcommand.

Flags can generally be set via environment variables, also loaded from
.env and .env.dev, e.g.:

--hashtags => HASHTAGS=vacunagate,vacunagateperu
--profiles => PROFILES=someone.bsky.social
`,
		Flags: flags,
		Before: func(c *cli.Context) error {
			return setupLogging(c.String("log-level"), c.String("log-format"))
		},
		Commands: []*cli.Command{
			importCmd(),
			searchCmd(),
			listenCmd(),
			announceCmd(),
			migrateCmd(),
			rollbackCmd(),
			tidyCmd(),
		},
		Action: func(c *cli.Context) error {
			mode, err := selectMode(c)
			if err != nil {
				return err
			}

			switch mode {
			case "save":
				return runSave(c, needs{store: true, platform: true})
			case "test-save":
				return runSave(c, needs{store: true, platform: true, backend: db.BackendJSON})
			case "stream":
				return withRuntime(c, needs{store: true, platform: true}, listen)
			case "tweet":
				return withRuntime(c, needs{store: true, platform: true}, announceAll)
			default:
				// Show help if no mode is specified
				return cli.ShowAppHelp(c)
			}
		},
	}
}

// selectMode returns the one mode flag set, or "" when none is.
func selectMode(c *cli.Context) (string, error) {
	var set []string
	for _, name := range modeFlags {
		if c.Bool(name) {
			set = append(set, "--"+name)
		}
	}
	switch len(set) {
	case 0:
		return "", nil
	case 1:
		return strings.TrimPrefix(set[0], "--"), nil
	default:
		return "", fmt.Errorf("flags %s are mutually exclusive", strings.Join(set, ", "))
	}
}

func runSave(c *cli.Context, n needs) error {
	return withRuntime(c, n, func(c *cli.Context, rt *Runtime) error {
		if err := importDataset(c, rt); err != nil {
			return err
		}
		return pollAll(c, rt)
	})
}

func withRuntime(c *cli.Context, n needs, run func(*cli.Context, *Runtime) error) error {
	rt, err := newRuntime(c, n)
	if err != nil {
		return err
	}
	defer rt.Close()
	return run(c, rt)
}

func setupLogging(level, format string) error {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return err
	}
	log.SetLevel(lvl)

	switch format {
	case "", "text":
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	default:
		return fmt.Errorf("unknown log format %q", format)
	}

	// Keep stdout free for command output
	log.SetOutput(os.Stderr)
	return nil
}
