// Copyright 2024-2026 Aiku AI

// Command chanbridge is a chat-network bridge engine. It observes messages
// on configured source channels and replays them to mapped destination
// channels, preserving reply threads, applying hashtag routing rules, and
// recovering messages missed during outages.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/thejerf/suture/v4"
	"go.mau.fi/util/exzerolog"
	"gopkg.in/yaml.v3"

	"github.com/aiku/chanbridge/pkg/bridge"
	"github.com/aiku/chanbridge/pkg/bridge/textfmt"
	"github.com/aiku/chanbridge/pkg/transport"
)

// These are filled at build time with -ldflags.
var (
	Tag       = "unknown"
	Commit    = "unknown"
	BuildTime = "unknown"
)

type processConfig struct {
	Bridge      bridge.Config    `yaml:"bridge"`
	Source      transport.Config `yaml:"source"`
	Destination transport.Config `yaml:"destination"`
	Database    string           `yaml:"database"`
	AdminAddr   string           `yaml:"admin_addr"`
	Logging     loggingConfig    `yaml:"logging"`
}

type loggingConfig struct {
	Level   string `yaml:"level"`
	Console bool   `yaml:"console"`
}

func loadConfig(path string) (*processConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	var cfg processConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Bridge.Validate(); err != nil {
		return nil, err
	}
	if cfg.Database == "" {
		cfg.Database = "chanbridge.db"
	}
	if cfg.AdminAddr == "" {
		cfg.AdminAddr = ":8008"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	return &cfg, nil
}

func setupLogger(cfg loggingConfig) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return zerolog.Logger{}, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	var log zerolog.Logger
	if cfg.Console {
		log = zerolog.New(zerolog.NewConsoleWriter())
	} else {
		log = zerolog.New(os.Stdout)
	}
	log = log.With().Timestamp().Logger().Level(level)
	exzerolog.SetupDefaults(&log)
	return log, nil
}

func main() {
	var (
		configPath  = flag.String("config", "config.yaml", "path to the config file")
		checkConfig = flag.Bool("check-config", false, "validate the config file and exit")
		version     = flag.Bool("version", false, "print the version and exit")
	)
	flag.Parse()

	if *version {
		fmt.Printf("chanbridge %s (%s, built %s)\n", Tag, Commit, BuildTime)
		return
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *checkConfig {
		fmt.Println("config OK")
		return
	}

	log, err := setupLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log.Info().
		Str("tag", Tag).
		Str("commit", Commit).
		Str("build_time", BuildTime).
		Msg("Starting chanbridge")

	if err := run(cfg, log); err != nil {
		log.Error().Err(err).Msg("Bridge terminated with error")
		os.Exit(1)
	}
	log.Info().Msg("Bridge shut down cleanly")
}

func run(cfg *processConfig, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := bridge.OpenStore(cfg.Database)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}

	source := transport.NewSource(cfg.Source, log)
	dest := transport.NewDestination(cfg.Destination, log)
	if err := source.Connect(ctx); err != nil {
		return fmt.Errorf("connecting source client: %w", err)
	}
	if err := dest.Connect(ctx); err != nil {
		return fmt.Errorf("connecting destination client: %w", err)
	}

	formatter := textfmt.New()
	engine := bridge.New(&cfg.Bridge, source, dest, store, formatter, formatter, log)
	health := bridge.NewHealthMonitor(
		source, dest,
		cfg.Bridge.Global.ProbeAddr,
		cfg.Bridge.Global.HealthcheckIntervalDuration(),
		log,
	)
	recoverer := bridge.NewRecoverer(engine, health, log)
	admin := bridge.NewAdminServer(cfg.AdminAddr, health, store, log)

	supLog := log.With().Str("component", "supervisor").Logger()
	root := suture.New("chanbridge", suture.Spec{
		EventHook: func(ev suture.Event) {
			supLog.Warn().Interface("event", ev.Map()).Msg("Supervisor event")
		},
	})
	root.Add(health)
	root.Add(engine)
	root.Add(recoverer)
	root.Add(admin)

	err = root.Serve(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
