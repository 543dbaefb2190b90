// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/lighthouse/bridge"
	"github.com/bureau-foundation/lighthouse/lib/bridgestore"
	"github.com/bureau-foundation/lighthouse/lib/clock"
	"github.com/bureau-foundation/lighthouse/lib/config"
	"github.com/bureau-foundation/lighthouse/lib/opensim"
	"github.com/bureau-foundation/lighthouse/lib/process"
	"github.com/bureau-foundation/lighthouse/lib/service"
	"github.com/bureau-foundation/lighthouse/lib/version"
	"github.com/bureau-foundation/lighthouse/messaging"
)

const serviceName = "lighthouse-bridge"

// databaseTimeout bounds dialing and reads against the grid database.
const databaseTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	flags := pflag.NewFlagSet(serviceName, pflag.ContinueOnError)
	configPath := flags.String("config", "", "path to the config file (default: $"+config.EnvVar+")")
	showVersion := flags.Bool("version", false, "print version information and exit")
	printRegistration := flags.Bool("registration", false, "print the appservice registration YAML and exit")
	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	if *showVersion {
		version.Print(os.Stdout, serviceName)
		return nil
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration:\n%w", err)
	}

	secrets, err := cfg.OpenSecrets()
	if err != nil {
		return err
	}
	defer secrets.Close()

	namespace, err := bridge.NewNamespace(cfg.ServerName(), cfg.Matrix.BotLocalpart, cfg.Matrix.PuppetPrefix)
	if err != nil {
		return err
	}

	if *printRegistration {
		return writeRegistration(os.Stdout, cfg, secrets, namespace)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel()}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return serve(ctx, cfg, secrets, namespace, logger)
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

func serve(ctx context.Context, cfg *config.Config, secrets *config.Secrets, namespace bridge.Namespace, logger *slog.Logger) error {
	if err := os.MkdirAll(filepath.Dir(cfg.Store.Path), 0o750); err != nil {
		return fmt.Errorf("creating store directory: %w", err)
	}
	store, err := bridgestore.Open(bridgestore.Config{Path: cfg.Store.Path, Logger: logger})
	if err != nil {
		return err
	}
	defer store.Close()

	directory, err := opensim.OpenDirectory(ctx, opensim.DatabaseConfig{
		Host:         cfg.Database.Host,
		Port:         cfg.Database.Port,
		Name:         cfg.Database.Name,
		User:         cfg.Database.User,
		Password:     cfg.Database.Password,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		Timeout:      databaseTimeout,
	}, logger)
	if err != nil {
		return err
	}
	defer directory.Close()

	matrixClient, err := messaging.NewClient(messaging.ClientConfig{
		HomeserverURL: cfg.Matrix.BaseURL,
		HTTPClient:    &http.Client{Timeout: cfg.Matrix.RequestTimeout},
		Logger:        logger,
	})
	if err != nil {
		return err
	}

	region, err := opensim.NewRegionClient(opensim.RegionClientConfig{
		RegionURL:  cfg.OpenSim.RegionURL,
		Secret:     secrets.BridgeSecret,
		HTTPClient: &http.Client{Timeout: cfg.OpenSim.RequestTimeout},
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	var avatars bridge.AvatarFetcher
	if cfg.Avatar.BaseURL != "" {
		source, err := opensim.NewAvatarSource(opensim.AvatarSourceConfig{
			URLTemplate: cfg.Avatar.BaseURL,
			MaxBytes:    cfg.Avatar.MaxBytes,
			HTTPClient:  &http.Client{Timeout: cfg.Avatar.FetchTimeout},
			Logger:      logger,
		})
		if err != nil {
			return err
		}
		avatars = source
	} else {
		logger.Info("avatar.base_url not set, avatar sync disabled")
	}

	engine := bridge.New(bridge.Config{
		Namespace: namespace,
		Session:   matrixClient.Appservice(secrets.ASToken, namespace.Bot()),
		Store:     store,
		Directory: directory,
		Region:    region,
		Avatars:   avatars,
		Policy: bridge.PowerPolicy{
			Elevated:      cfg.Rooms.ElevatedLevel,
			Floor:         cfg.Rooms.FloorLevel,
			StateDefault:  cfg.Rooms.StateDefault,
			UsersDefault:  cfg.Rooms.UsersDefault,
			EventsDefault: cfg.Rooms.EventsDefault,
			Invite:        cfg.Rooms.Invite,
			Kick:          cfg.Rooms.Kick,
			Ban:           cfg.Rooms.Ban,
			Redact:        cfg.Rooms.Redact,
		},
		Logger: logger,
	})

	servers := []*service.HTTPServer{
		service.NewHTTPServer(service.HTTPServerConfig{
			Name:    "appservice",
			Address: cfg.AppserviceAddress(),
			Handler: newAppserviceHandler(appserviceConfig{
				Relay:   engine,
				HSToken: secrets.HSToken,
				Window:  cfg.Server.TransactionWindow,
				Clock:   clock.Real(),
				Logger:  logger,
			}),
			Logger: logger,
		}),
		service.NewHTTPServer(service.HTTPServerConfig{
			Name:    "opensim",
			Address: cfg.OpenSimAddress(),
			Handler: newAdminHandler(adminConfig{
				Engine:     engine,
				Store:      store,
				Secret:     secrets.BridgeSecret,
				Homeserver: namespace.Server(),
				Bot:        namespace.Bot(),
				Clock:      clock.Real(),
				Logger:     logger,
			}),
			Logger: logger,
		}),
	}

	logger.Info("lighthouse bridge starting",
		"version", version.Info(),
		"homeserver", namespace.Server(),
		"bot", namespace.Bot(),
		"region_url", cfg.OpenSim.RegionURL,
	)

	// Either listener failing stops the other.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	errs := make(chan error, len(servers))
	for _, server := range servers {
		go func() {
			err := server.Serve(ctx)
			if err != nil {
				cancel()
			}
			errs <- err
		}()
	}

	var serveErrors []error
	for range servers {
		if err := <-errs; err != nil {
			serveErrors = append(serveErrors, err)
		}
	}
	logger.Info("lighthouse bridge stopped")
	return errors.Join(serveErrors...)
}
