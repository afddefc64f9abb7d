package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"vacunagates/cmd"
	"vacunagates/config"

	log "github.com/sirupsen/logrus"
	_ "golang.org/x/crypto/x509roots/fallback" // We need this to make TLS work in scratch containers
)

func main() {
	// Env files must be loaded before flags read their EnvVars
	config.LoadEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := cmd.RootApp().RunContext(ctx, os.Args)
	stop()
	if err != nil {
		log.Error(err)
		os.Exit(1)
	}
}
