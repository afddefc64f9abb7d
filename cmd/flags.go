/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"time"

	"vacunagates/bluesky"
	"vacunagates/dataset"
	"vacunagates/db"
	"vacunagates/firehose"
	"vacunagates/search"

	"github.com/urfave/cli/v2"
)

const (
	categoryStore    = "Store"
	categoryPlatform = "Bluesky"
	categoryBot      = "Bot"
	categoryLogging  = "Logging"
)

func loggingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "log-level",
			Usage:    "Log level (trace, debug, info, warn, error)",
			EnvVars:  []string{"LOG_LEVEL"},
			Value:    "info",
			Category: categoryLogging,
		},
		&cli.StringFlag{
			Name:     "log-format",
			Usage:    "Log format (text or json)",
			EnvVars:  []string{"LOG_FORMAT"},
			Value:    "text",
			Category: categoryLogging,
		},
	}
}

func postgresFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "db-host",
			Usage:    "PostgreSQL host",
			EnvVars:  []string{"DB_HOST"},
			Value:    "localhost",
			Category: categoryStore,
		},
		&cli.IntFlag{
			Name:     "db-port",
			Usage:    "PostgreSQL port",
			EnvVars:  []string{"DB_PORT"},
			Value:    5432,
			Category: categoryStore,
		},
		&cli.StringFlag{
			Name:     "db-user",
			Usage:    "PostgreSQL user",
			EnvVars:  []string{"DB_USER"},
			Value:    "vacunagates",
			Category: categoryStore,
		},
		&cli.StringFlag{
			Name:     "db-password",
			Usage:    "PostgreSQL password",
			EnvVars:  []string{"DB_PASSWORD"},
			Value:    "vacunagates",
			Category: categoryStore,
		},
		&cli.StringFlag{
			Name:     "db-name",
			Usage:    "PostgreSQL database name",
			EnvVars:  []string{"DB_NAME"},
			Value:    "vacunagates",
			Category: categoryStore,
		},
		&cli.StringFlag{
			Name:     "db-sslmode",
			Usage:    "PostgreSQL sslmode",
			EnvVars:  []string{"DB_SSLMODE"},
			Value:    "disable",
			Category: categoryStore,
		},
	}
}

func storeFlags() []cli.Flag {
	flags := []cli.Flag{
		&cli.StringFlag{
			Name:     "store",
			Usage:    "Store backend (postgres, mongo or json)",
			EnvVars:  []string{"STORE"},
			Value:    db.BackendPostgres,
			Category: categoryStore,
		},
		&cli.StringFlag{
			Name:     "mongo-user",
			Usage:    "MongoDB user",
			EnvVars:  []string{"MONGO_USER"},
			Category: categoryStore,
		},
		&cli.StringFlag{
			Name:     "mongo-pass",
			Usage:    "MongoDB password",
			EnvVars:  []string{"MONGO_PASS"},
			Category: categoryStore,
		},
		&cli.StringFlag{
			Name:     "mongo-host",
			Usage:    "MongoDB cluster host",
			EnvVars:  []string{"MONGO_HOST"},
			Category: categoryStore,
		},
		&cli.StringFlag{
			Name:     "mongo-database",
			Usage:    "MongoDB database name",
			EnvVars:  []string{"MONGO_DATABASE"},
			Value:    "vacunagates",
			Category: categoryStore,
		},
		&cli.StringFlag{
			Name:     "json-dir",
			Usage:    "Directory for the json store files",
			EnvVars:  []string{"JSON_DIR"},
			Value:    ".",
			Category: categoryStore,
		},
	}
	return append(flags, postgresFlags()...)
}

func platformFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "handle",
			Usage:    "Bluesky handle the bot acts as",
			EnvVars:  []string{"BSKY_HANDLE"},
			Category: categoryPlatform,
		},
		&cli.StringFlag{
			Name:     "app-password",
			Usage:    "Bluesky app password",
			EnvVars:  []string{"BSKY_APP_PASSWORD"},
			Category: categoryPlatform,
		},
		&cli.StringFlag{
			Name:     "pds-host",
			Usage:    "PDS host to authenticate against",
			EnvVars:  []string{"BSKY_PDS_HOST"},
			Value:    bluesky.DefaultPDSHost,
			Category: categoryPlatform,
		},
	}
}

func botFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "config",
			Aliases:  []string{"c"},
			Usage:    "Optional TOML file filling in settings left empty",
			EnvVars:  []string{"CONFIG"},
			Category: categoryBot,
		},
		&cli.StringFlag{
			Name:     "profiles",
			Usage:    "Comma separated handles whose posts are liked and reposted",
			EnvVars:  []string{"PROFILES"},
			Category: categoryBot,
		},
		&cli.StringFlag{
			Name:     "hashtags",
			Usage:    "Comma separated search terms",
			EnvVars:  []string{"HASHTAGS"},
			Category: categoryBot,
		},
		&cli.StringFlag{
			Name:     "dataset-url",
			Usage:    "URL of the persons CSV",
			EnvVars:  []string{"DATASET_URL"},
			Value:    dataset.DefaultURL,
			Category: categoryBot,
		},
		&cli.StringFlag{
			Name:     "csv-policy",
			Usage:    "What to do with malformed CSV rows (skip or fail)",
			EnvVars:  []string{"CSV_POLICY"},
			Value:    string(dataset.PolicySkip),
			Category: categoryBot,
		},
		&cli.DurationFlag{
			Name:     "rate-limit-backoff",
			Usage:    "Wait after a search or engagement is rate limited",
			EnvVars:  []string{"RATE_LIMIT_BACKOFF"},
			Value:    search.DefaultRateLimitBackoff,
			Category: categoryBot,
		},
		&cli.DurationFlag{
			Name:     "announce-delay",
			Usage:    "Delay between announcements, clamped to 5s-30s",
			EnvVars:  []string{"ANNOUNCE_DELAY"},
			Category: categoryBot,
		},
		&cli.StringFlag{
			Name:     "persist-policy",
			Usage:    "Which streamed posts to store (allow-listed or all)",
			EnvVars:  []string{"PERSIST_POLICY"},
			Value:    string(firehose.PersistAllowListed),
			Category: categoryBot,
		},
		&cli.StringFlag{
			Name:     "jetstream-hosts",
			Usage:    "Comma separated Jetstream endpoints, tried in order",
			EnvVars:  []string{"JETSTREAM_HOSTS"},
			Category: categoryBot,
		},
		&cli.BoolFlag{
			Name:     "jetstream-compress",
			Usage:    "Request zstd compressed Jetstream messages",
			EnvVars:  []string{"JETSTREAM_COMPRESS"},
			Category: categoryBot,
		},
		&cli.StringFlag{
			Name:     "reconnect",
			Usage:    "Stream reconnect policy (immediate or exponential)",
			EnvVars:  []string{"RECONNECT_POLICY"},
			Value:    "immediate",
			Category: categoryBot,
		},
		&cli.StringFlag{
			Name:     "metrics-addr",
			Usage:    "Serve /metrics and /healthz on this address while running",
			EnvVars:  []string{"METRICS_ADDR"},
			Category: categoryBot,
		},
	}
}

var defaultTidyAge = 90 * 24 * time.Hour
