/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"vacunagates/announce"
	"vacunagates/config"
	"vacunagates/dataset"
	"vacunagates/engage"
	"vacunagates/firehose"
	"vacunagates/search"
	"vacunagates/server"

	"github.com/cenkalti/backoff/v4"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

const (
	downloadTimeout = 5 * time.Minute
	userAgent       = "vacunagates/1.0"
)

var errNoTerms = errors.New("no search terms configured: set HASHTAGS or hashtags in the config file")

func importDataset(c *cli.Context, rt *Runtime) error {
	value := c.String("csv-policy")
	if !c.IsSet("csv-policy") && rt.File.Dataset.Policy != "" {
		value = rt.File.Dataset.Policy
	}
	policy, err := dataset.ParsePolicy(value)
	if err != nil {
		return err
	}

	url := c.String("dataset-url")
	if !c.IsSet("dataset-url") && rt.File.Dataset.URL != "" {
		url = rt.File.Dataset.URL
	}

	importer := &dataset.Importer{
		URL:    url,
		Policy: policy,
		Client: &http.Client{Timeout: downloadTimeout},
		Store:  rt.Store,
	}
	persons, err := importer.Import(c.Context)
	if err != nil {
		return err
	}
	log.WithField("count", len(persons)).Info("Imported persons")
	return nil
}

func pollAll(c *cli.Context, rt *Runtime) error {
	if len(rt.Terms) == 0 {
		return errNoTerms
	}

	poller := &search.Poller{
		Searcher: rt.Platform,
		Engager:  engage.NewEngager(rt.Platform, rt.AllowList),
		Store:    rt.Store,
		Backoff:  c.Duration("rate-limit-backoff"),
	}
	for _, term := range rt.Terms {
		if _, err := poller.Poll(c.Context, term); err != nil {
			return fmt.Errorf("search for %s failed: %w", term, err)
		}
	}
	return nil
}

func reconnectPolicy(name string) (backoff.BackOff, error) {
	switch name {
	case "", "immediate":
		return firehose.ImmediateReconnect(), nil
	case "exponential":
		return firehose.ExponentialReconnect(), nil
	default:
		return nil, fmt.Errorf("unknown reconnect policy %q", name)
	}
}

func listen(c *cli.Context, rt *Runtime) error {
	if len(rt.Terms) == 0 {
		return errNoTerms
	}

	persist, err := firehose.ParsePersistPolicy(c.String("persist-policy"))
	if err != nil {
		return err
	}
	reconnect, err := reconnectPolicy(c.String("reconnect"))
	if err != nil {
		return err
	}

	hosts := config.SplitList(c.String("jetstream-hosts"))
	if len(hosts) == 0 {
		hosts = firehose.DefaultJetstreamHosts
	}
	source, err := firehose.NewJetstream(firehose.JetstreamConfig{
		Hosts:             hosts,
		WantedCollections: []string{firehose.PostCollection},
		Compress:          c.Bool("jetstream-compress"),
		UserAgent:         userAgent,
	})
	if err != nil {
		return err
	}

	profiles, err := firehose.NewProfileCache(rt.Platform, firehose.DefaultProfileCacheSize)
	if err != nil {
		return err
	}

	selfDID, selfHandle := rt.Platform.Self()
	log.WithFields(log.Fields{
		"did":    selfDID,
		"handle": selfHandle,
		"terms":  rt.Terms,
		"policy": persist,
	}).Info("Running listener")

	processor := &firehose.Processor{
		Terms:    rt.Terms,
		SelfDID:  selfDID,
		Authors:  firehose.ResolveAllowList(c.Context, rt.Platform, rt.AllowList),
		Engager:  engage.NewEngager(rt.Platform, rt.AllowList),
		Store:    rt.Store,
		Profiles: profiles,
		Policy:   persist,
		Backoff:  c.Duration("rate-limit-backoff"),
	}

	listener := firehose.NewListener(source, processor, reconnect)
	stop := startMetrics(c.Context, c.String("metrics-addr"), func() string {
		return listener.State().String()
	})
	defer stop()

	err = listener.Run(c.Context)
	if errors.Is(err, context.Canceled) {
		log.Info("Listener stopped")
		return nil
	}
	return err
}

func announceAll(c *cli.Context, rt *Runtime) error {
	delay := c.Duration("announce-delay")
	if !c.IsSet("announce-delay") {
		fileDelay, err := rt.File.AnnounceDelay()
		if err != nil {
			return err
		}
		delay = fileDelay
	}

	announcer, err := announce.NewAnnouncer(rt.Store, rt.Platform, rt.File.Announce.Template, delay)
	if err != nil {
		return err
	}

	stop := startMetrics(c.Context, c.String("metrics-addr"), nil)
	defer stop()

	posted, err := announcer.AnnounceAll(c.Context)
	log.WithField("posted", posted).Info("Announcements done")
	return err
}

// startMetrics serves metrics on addr until the returned stop func is called.
// An empty addr disables the server.
func startMetrics(ctx context.Context, addr string, state func() string) func() {
	if addr == "" {
		return func() {}
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	app := server.Server(&server.ServerConfig{State: state})
	go func() {
		defer close(done)
		if err := server.Serve(ctx, app, addr); err != nil {
			log.WithError(err).Error("Metrics server failed")
		}
	}()

	return func() {
		cancel()
		<-done
	}
}
