package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/spacelift-flows-apps/flows-app-spacelift/internal/blueprint"
	"github.com/spacelift-flows-apps/flows-app-spacelift/internal/config"
	"github.com/spacelift-flows-apps/flows-app-spacelift/internal/events"
	"github.com/spacelift-flows-apps/flows-app-spacelift/internal/graphql"
	"github.com/spacelift-flows-apps/flows-app-spacelift/internal/logging"
	"github.com/spacelift-flows-apps/flows-app-spacelift/internal/safety"
	"github.com/spacelift-flows-apps/flows-app-spacelift/internal/tokencache"
)

// app holds the components shared by the subcommands.
type app struct {
	cfg    *config.Config
	logger zerolog.Logger
	cache  tokencache.Cache
	client *graphql.Client
	bus    *events.Bus
	block  *blueprint.Block
}

// loadConfig reads the config file named by the --config flag, then
// FLOWS_SPACELIFT_CONFIG_PATH, then the default path, and applies env
// overrides. A file named explicitly must load; otherwise a missing file
// falls back to defaults. The returned note describes where the
// configuration came from.
func loadConfig(flagPath string) (cfg *config.Config, note string, err error) {
	path := flagPath
	if path == "" {
		path = os.Getenv("FLOWS_SPACELIFT_CONFIG_PATH")
	}
	explicit := path != ""
	if !explicit {
		path = defaultConfigPath
	}

	cfg, err = config.LoadConfig(path)
	switch {
	case err == nil:
		note = fmt.Sprintf("loaded config from %q", path)
	case explicit:
		return nil, "", err
	default:
		cfg = config.DefaultConfig()
		note = fmt.Sprintf("could not load config from %q (%v), using defaults", path, err)
	}

	config.ApplyEnvOverrides(cfg)
	return cfg, note, nil
}

// newApp wires the token cache, GraphQL client, event bus and blueprint
// block for cfg. Logs go to logOut.
func newApp(cfg *config.Config, logOut io.Writer) (*app, error) {
	logger := logging.New(cfg.Log, logOut)

	cache, err := tokencache.New(cfg.Cache)
	if err != nil {
		return nil, fmt.Errorf("create token cache: %w", err)
	}

	client, err := graphql.NewClient(cache,
		graphql.WithTimeout(time.Duration(cfg.Spacelift.Timeout)*time.Second),
		graphql.WithLogger(logging.Module(logger, "graphql")),
	)
	if err != nil {
		_ = cache.Close()
		return nil, err
	}

	bus := events.NewBus(logging.Module(logger, "events"))
	filter := safety.NewFilter("blueprint", cfg.Safety.Blueprints.Allowlist, cfg.Safety.Blueprints.Denylist)
	block := blueprint.NewBlock(client,
		blueprint.WithFilter(filter),
		blueprint.WithEmitter(bus),
		blueprint.WithLogger(logging.Module(logger, "blueprint")),
	)

	return &app{
		cfg:    cfg,
		logger: logger,
		cache:  cache,
		client: client,
		bus:    bus,
		block:  block,
	}, nil
}

// appConfig returns the credential mapping the blocks read on every call.
func (a *app) appConfig() map[string]any {
	return a.cfg.Spacelift.AppConfig()
}

func (a *app) Close() error {
	if err := a.cache.Close(); err != nil {
		return fmt.Errorf("close token cache: %w", err)
	}
	return nil
}
