/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"vacunagates/bluesky"
	"vacunagates/config"
	"vacunagates/db"

	"github.com/cqroot/prompt"
	"github.com/cqroot/prompt/input"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"golang.org/x/term"
)

// Runtime carries what the components share during one invocation. It is
// built once from flags and passed down explicitly.
type Runtime struct {
	Store     db.Store
	Platform  *bluesky.Client
	AllowList *config.AllowList
	Terms     []string
	File      *config.TomlConfig
}

type needs struct {
	store    bool
	platform bool
	// backend overrides --store
	backend string
}

func newRuntime(c *cli.Context, n needs) (*Runtime, error) {
	file := &config.TomlConfig{}
	if path := c.String("config"); path != "" {
		loaded, err := config.LoadConfig(path)
		if err != nil {
			return nil, err
		}
		file = loaded
	}

	rt := &Runtime{
		File:      file,
		AllowList: config.NewAllowList(mergeList(c.String("profiles"), file.Profiles)),
		Terms:     config.SearchTerms(mergeList(c.String("hashtags"), file.Hashtags)),
	}

	if n.platform {
		creds, err := credentials(c)
		if err != nil {
			return nil, err
		}
		client, err := bluesky.ClientFromCredentials(c.Context, c.String("pds-host"), creds)
		if err != nil {
			return nil, fmt.Errorf("could not create client with provided credentials: %w", err)
		}
		rt.Platform = client
	}

	if n.store {
		backend := c.String("store")
		if n.backend != "" {
			backend = n.backend
		}
		store, err := db.Open(c.Context, storeOptions(c, backend))
		if err != nil {
			return nil, fmt.Errorf("failed to open %s store: %w", backend, err)
		}
		rt.Store = store
	}

	log.WithFields(log.Fields{
		"profiles": rt.AllowList.Len(),
		"terms":    rt.Terms,
	}).Debug("Runtime ready")

	return rt, nil
}

func (rt *Runtime) Close() {
	if rt.Store == nil {
		return
	}
	// The run context may already be cancelled
	if err := rt.Store.Close(context.Background()); err != nil {
		log.WithError(err).Error("Failed to close store")
	}
}

// mergeList prefers the flag/env value and falls back to the config file.
func mergeList(value string, fallback []string) []string {
	if list := config.SplitList(value); len(list) > 0 {
		return list
	}
	return fallback
}

func postgresConfig(c *cli.Context) db.PostgresConfig {
	return db.PostgresConfig{
		Host:     c.String("db-host"),
		Port:     c.Int("db-port"),
		User:     c.String("db-user"),
		Password: c.String("db-password"),
		Name:     c.String("db-name"),
		SSLMode:  c.String("db-sslmode"),
	}
}

func storeOptions(c *cli.Context, backend string) db.Options {
	return db.Options{
		Backend:  backend,
		Postgres: postgresConfig(c),
		Mongo: db.MongoConfig{
			User:     c.String("mongo-user"),
			Password: c.String("mongo-pass"),
			Host:     c.String("mongo-host"),
			Database: c.String("mongo-database"),
		},
		JSONDir: c.String("json-dir"),
	}
}

var errNoCredentials = errors.New("missing Bluesky credentials: set BSKY_HANDLE and BSKY_APP_PASSWORD")

var stdinIsTerminal = func() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// credentials reads the account from flags, prompting for whatever is
// missing when attached to a terminal.
func credentials(c *cli.Context) (*bluesky.Credentials, error) {
	handle := c.String("handle")
	password := c.String("app-password")
	if handle != "" && password != "" {
		return &bluesky.Credentials{Identifier: handle, Password: password}, nil
	}

	if !stdinIsTerminal() {
		return nil, errNoCredentials
	}

	var err error
	if handle == "" {
		handle, err = prompt.New().Ask("Handle:").Input("myname.bsky.social")
		if err != nil {
			return nil, err
		}
	}
	if password == "" {
		password, err = prompt.New().Ask("App password:").Input("", input.WithEchoMode(input.EchoNone))
		if err != nil {
			return nil, err
		}
	}
	return &bluesky.Credentials{Identifier: handle, Password: password}, nil
}
