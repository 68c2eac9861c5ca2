// Copyright 2024-2026 Aiku AI

// Command chatbridge runs the identity-linking and message-translation core
// of a multi-platform chat bridge. It maintains the canonical cross-platform
// user store and one translation pipeline per configured platform, consuming
// bridge-neutral messages from the broadcast bus and emitting platform-native
// messages through the platform client boundary.
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"go.mau.fi/util/exerrors"

	"github.com/aiku/chatbridge/pkg/bridge"
	"github.com/aiku/chatbridge/pkg/identity"
	"github.com/aiku/chatbridge/pkg/mention"
	"github.com/aiku/chatbridge/pkg/relay"
)

// These are filled at build time with -ldflags.
var (
	Tag       = "unknown"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var configPath = flag.String("config", "config.yaml", "path to the config file")

func main() {
	flag.Parse()

	if _, err := os.Stat(*configPath); errors.Is(err, os.ErrNotExist) {
		exerrors.PanicIfNotNil(os.WriteFile(*configPath, []byte(bridge.ExampleConfig), 0o644))
	}
	cfg := exerrors.Must(bridge.LoadConfig(*configPath))

	log := zerolog.New(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.StampMilli,
	}).With().Timestamp().Logger()
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil && cfg.LogLevel != "" {
		log = log.Level(level)
	}
	log.Info().
		Str("version", Tag).
		Str("commit", Commit).
		Str("built_at", BuildTime).
		Msg("Starting chatbridge")

	// A corrupt identity record is fatal: continuing would silently fork
	// identities.
	users := exerrors.Must(identity.NewStore(cfg.UserStorePath, log))
	messages := bridge.NewMessageStore()
	bus := bridge.NewBus(cfg.SubscriberBuffer, log)
	registry := mention.NewRegistry()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var wg sync.WaitGroup
	for _, pc := range cfg.Platforms {
		codec := registry.Register(pc.Tag)
		// The console client stands in where a real protocol adapter plugs
		// into the PlatformClient boundary.
		client := &consoleClient{log: log.With().Str("platform", pc.Tag).Logger()}
		pipeline := relay.NewPipeline(pc, users, messages, codec, client, &relay.HTTPFetcher{}, log)
		sub, unsubscribe := bus.Subscribe()
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer unsubscribe()
			pipeline.Run(ctx, sub)
		}()
	}
	log.Info().
		Int("platforms", len(cfg.Platforms)).
		Int("identities", users.Len()).
		Msg("Bridge core running")

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	bus.Close()
	wg.Wait()
}
