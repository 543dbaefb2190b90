// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/lighthouse/lib/ref"
)

// EnvVar names the environment variable Load reads the config path from.
const EnvVar = "LIGHTHOUSE_CONFIG"

// Placeholder is the value shipped in example configs. It is rejected
// wherever a real secret is required.
const Placeholder = "CHANGE_ME"

// Config is the complete bridge configuration.
type Config struct {
	Matrix   MatrixConfig   `yaml:"matrix"`
	OpenSim  OpenSimConfig  `yaml:"opensim"`
	Database DatabaseConfig `yaml:"database"`
	Avatar   AvatarConfig   `yaml:"avatar"`
	Store    StoreConfig    `yaml:"store"`
	Rooms    RoomsConfig    `yaml:"rooms"`
	Server   ServerConfig   `yaml:"server"`
}

// MatrixConfig locates the homeserver and holds the appservice tokens.
type MatrixConfig struct {
	// BaseURL is the client-server API root the bridge calls
	// (e.g., "http://127.0.0.1:6167").
	BaseURL string `yaml:"base_url"`

	// Homeserver is the server name in user IDs and aliases.
	Homeserver string `yaml:"homeserver"`

	// ASToken authenticates the bridge to the homeserver.
	ASToken     string `yaml:"as_token"`
	ASTokenFile string `yaml:"as_token_file"`

	// HSToken authenticates the homeserver to the bridge.
	HSToken     string `yaml:"hs_token"`
	HSTokenFile string `yaml:"hs_token_file"`

	BotLocalpart string `yaml:"bot_localpart"`

	// PuppetPrefix starts every puppet localpart. The rest is the
	// member UUID with dashes removed.
	PuppetPrefix string `yaml:"puppet_prefix"`

	// AppserviceID is the id field of the generated registration.
	AppserviceID string `yaml:"appservice_id"`

	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// OpenSimConfig describes the region-side collaborator.
type OpenSimConfig struct {
	// BridgeSecret is sent as X-Bridge-Secret in both directions.
	BridgeSecret     string `yaml:"bridge_secret"`
	BridgeSecretFile string `yaml:"bridge_secret_file"`

	// RegionURL is the base URL of the region hosting the inject
	// module. Messages go to {RegionURL}/matrix/group-message.
	RegionURL string `yaml:"region_url"`

	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// DatabaseConfig locates the OpenSim MySQL database holding groups,
// roles, memberships, and user accounts.
type DatabaseConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	Name         string `yaml:"name"`
	User         string `yaml:"user"`
	Password     string `yaml:"password"`
	PasswordFile string `yaml:"password_file"`

	// MaxOpenConns caps the MySQL pool.
	MaxOpenConns int `yaml:"max_open_conns"`
}

// AvatarConfig describes where member profile images come from.
type AvatarConfig struct {
	// BaseURL is a URL template with a {uuid} placeholder. Empty
	// disables avatar sync.
	BaseURL string `yaml:"base_url"`

	FetchTimeout time.Duration `yaml:"fetch_timeout"`

	// MaxBytes bounds a downloaded image.
	MaxBytes int64 `yaml:"max_bytes"`
}

// StoreConfig locates the bridge's own state.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// RoomsConfig is the power level policy applied to bridged rooms.
type RoomsConfig struct {
	ElevatedLevel int64 `yaml:"elevated_level"`
	FloorLevel    int64 `yaml:"floor_level"`
	StateDefault  int64 `yaml:"state_default"`
	UsersDefault  int64 `yaml:"users_default"`
	EventsDefault int64 `yaml:"events_default"`
	Invite        int64 `yaml:"invite"`
	Kick          int64 `yaml:"kick"`
	Ban           int64 `yaml:"ban"`
	Redact        int64 `yaml:"redact"`
}

// ServerConfig configures the two listeners.
type ServerConfig struct {
	AppserviceHost string `yaml:"appservice_host"`
	AppservicePort int    `yaml:"appservice_port"`
	OpenSimHost    string `yaml:"opensim_host"`
	OpenSimPort    int    `yaml:"opensim_port"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	// TransactionWindow is how long a processed appservice
	// transaction ID is remembered for replay suppression.
	TransactionWindow time.Duration `yaml:"transaction_window"`

	// TapConcurrency bounds in-flight HyperGrid tap deliveries.
	TapConcurrency int `yaml:"tap_concurrency"`
}

// Default returns the configuration every file is layered onto.
func Default() *Config {
	return &Config{
		Matrix: MatrixConfig{
			BaseURL:        "http://127.0.0.1:6167",
			Homeserver:     "localhost",
			BotLocalpart:   "opensim_bot",
			PuppetPrefix:   "os_",
			AppserviceID:   "lighthouse",
			RequestTimeout: 30 * time.Second,
		},
		OpenSim: OpenSimConfig{
			RegionURL:      "http://127.0.0.1:9000",
			RequestTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			Host:         "127.0.0.1",
			Port:         3306,
			Name:         "opensim",
			User:         "bridge",
			MaxOpenConns: 5,
		},
		Avatar: AvatarConfig{
			FetchTimeout: 10 * time.Second,
			MaxBytes:     8 << 20,
		},
		Store: StoreConfig{
			Path: "./data/lighthouse.db",
		},
		Rooms: RoomsConfig{
			ElevatedLevel: 100,
			FloorLevel:    0,
			StateDefault:  50,
			UsersDefault:  0,
			EventsDefault: 0,
			Invite:        50,
			Kick:          50,
			Ban:           75,
			Redact:        50,
		},
		Server: ServerConfig{
			AppserviceHost:    "127.0.0.1",
			AppservicePort:    9009,
			OpenSimHost:       "0.0.0.0",
			OpenSimPort:       9010,
			LogLevel:          "info",
			TransactionWindow: time.Hour,
			TapConcurrency:    16,
		},
	}
}

// Load loads the file named by LIGHTHOUSE_CONFIG. There is no fallback
// location.
func Load() (*Config, error) {
	path := os.Getenv(EnvVar)
	if path == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your config.yaml, or use --config", EnvVar)
	}
	return LoadFile(path)
}

// LoadFile reads path over the defaults and expands variables. It does
// not validate; call Validate.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		// JSON is a subset of YAML, so one decoder serves both
		// once comments and trailing commas are stripped.
		data = jsonc.ToJSON(data)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	cfg.expandVariables()

	if cfg.Database.PasswordFile != "" {
		password, err := os.ReadFile(cfg.Database.PasswordFile)
		if err != nil {
			return nil, fmt.Errorf("config: database.password_file: %w", err)
		}
		cfg.Database.Password = strings.TrimSpace(string(password))
	}
	return cfg, nil
}

// expandVariables expands ${VAR} references in values that commonly
// come from the deployment environment.
func (c *Config) expandVariables() {
	for _, field := range []*string{
		&c.Matrix.BaseURL,
		&c.Matrix.ASToken,
		&c.Matrix.ASTokenFile,
		&c.Matrix.HSToken,
		&c.Matrix.HSTokenFile,
		&c.OpenSim.BridgeSecret,
		&c.OpenSim.BridgeSecretFile,
		&c.OpenSim.RegionURL,
		&c.Database.Host,
		&c.Database.Password,
		&c.Database.PasswordFile,
		&c.Avatar.BaseURL,
		&c.Store.Path,
	} {
		*field = expandVars(*field)
	}
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars replaces ${VAR} with the environment value, or with the
// default in ${VAR:-default} when VAR is unset or empty.
func expandVars(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		return parts[2]
	})
}

// Validate checks the configuration and returns every problem found,
// joined.
func (c *Config) Validate() error {
	var errs []error

	errs = append(errs, validateURL("matrix.base_url", c.Matrix.BaseURL))
	if _, err := ref.ParseServerName(c.Matrix.Homeserver); err != nil {
		errs = append(errs, fmt.Errorf("matrix.homeserver: %w", err))
	} else if _, err := c.BotUserID(); err != nil {
		errs = append(errs, fmt.Errorf("matrix.bot_localpart: %w", err))
	}
	errs = append(errs,
		requireSecret("matrix.as_token", c.Matrix.ASToken, c.Matrix.ASTokenFile),
		requireSecret("matrix.hs_token", c.Matrix.HSToken, c.Matrix.HSTokenFile),
		requireSecret("opensim.bridge_secret", c.OpenSim.BridgeSecret, c.OpenSim.BridgeSecretFile),
	)
	if c.Matrix.PuppetPrefix == "" {
		errs = append(errs, errors.New("matrix.puppet_prefix is required"))
	} else if _, err := ref.NewUserID(c.Matrix.PuppetPrefix+"0", ref.MustParseServerName("localhost")); err != nil {
		errs = append(errs, fmt.Errorf("matrix.puppet_prefix: %w", err))
	}
	if c.Matrix.BotLocalpart != "" && strings.HasPrefix(c.Matrix.BotLocalpart, c.Matrix.PuppetPrefix) {
		errs = append(errs, fmt.Errorf("matrix.bot_localpart %q must not start with matrix.puppet_prefix %q",
			c.Matrix.BotLocalpart, c.Matrix.PuppetPrefix))
	}
	if c.Matrix.AppserviceID == "" {
		errs = append(errs, errors.New("matrix.appservice_id is required"))
	}
	errs = append(errs, requirePositive("matrix.request_timeout", c.Matrix.RequestTimeout))

	errs = append(errs,
		validateURL("opensim.region_url", c.OpenSim.RegionURL),
		requirePositive("opensim.request_timeout", c.OpenSim.RequestTimeout),
	)

	if c.Database.Host == "" {
		errs = append(errs, errors.New("database.host is required"))
	}
	if c.Database.Name == "" {
		errs = append(errs, errors.New("database.name is required"))
	}
	if c.Database.User == "" {
		errs = append(errs, errors.New("database.user is required"))
	}
	errs = append(errs, validatePort("database.port", c.Database.Port))
	if c.Database.MaxOpenConns <= 0 {
		errs = append(errs, fmt.Errorf("database.max_open_conns must be positive, got %d", c.Database.MaxOpenConns))
	}

	if c.Avatar.BaseURL != "" {
		if !strings.Contains(c.Avatar.BaseURL, "{uuid}") {
			errs = append(errs, fmt.Errorf("avatar.base_url %q must contain {uuid}", c.Avatar.BaseURL))
		} else {
			errs = append(errs, validateURL("avatar.base_url", strings.ReplaceAll(c.Avatar.BaseURL, "{uuid}", "x")))
		}
		errs = append(errs, requirePositive("avatar.fetch_timeout", c.Avatar.FetchTimeout))
		if c.Avatar.MaxBytes <= 0 {
			errs = append(errs, fmt.Errorf("avatar.max_bytes must be positive, got %d", c.Avatar.MaxBytes))
		}
	}

	if c.Store.Path == "" {
		errs = append(errs, errors.New("store.path is required"))
	}

	if c.Rooms.ElevatedLevel <= c.Rooms.FloorLevel {
		errs = append(errs, fmt.Errorf("rooms.elevated_level (%d) must be greater than rooms.floor_level (%d)",
			c.Rooms.ElevatedLevel, c.Rooms.FloorLevel))
	}

	errs = append(errs,
		validatePort("server.appservice_port", c.Server.AppservicePort),
		validatePort("server.opensim_port", c.Server.OpenSimPort),
		requirePositive("server.transaction_window", c.Server.TransactionWindow),
	)
	if _, err := parseLogLevel(c.Server.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("server.log_level: %w", err))
	}
	if c.Server.TapConcurrency <= 0 {
		errs = append(errs, fmt.Errorf("server.tap_concurrency must be positive, got %d", c.Server.TapConcurrency))
	}

	return errors.Join(errs...)
}

// ServerName returns the homeserver name. Valid after Validate.
func (c *Config) ServerName() ref.ServerName {
	return ref.MustParseServerName(c.Matrix.Homeserver)
}

// BotUserID returns @bot_localpart:homeserver.
func (c *Config) BotUserID() (ref.UserID, error) {
	server, err := ref.ParseServerName(c.Matrix.Homeserver)
	if err != nil {
		return ref.UserID{}, err
	}
	return ref.NewUserID(c.Matrix.BotLocalpart, server)
}

// AppserviceAddress is the listen address for homeserver pushes.
func (c *Config) AppserviceAddress() string {
	return net.JoinHostPort(c.Server.AppserviceHost, strconv.Itoa(c.Server.AppservicePort))
}

// OpenSimAddress is the listen address for region and admin calls.
func (c *Config) OpenSimAddress() string {
	return net.JoinHostPort(c.Server.OpenSimHost, strconv.Itoa(c.Server.OpenSimPort))
}

// LogLevel returns the slog level for server.log_level. Valid after
// Validate.
func (c *Config) LogLevel() slog.Level {
	level, _ := parseLogLevel(c.Server.LogLevel)
	return level
}

func parseLogLevel(value string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(value)); err != nil {
		return slog.LevelInfo, fmt.Errorf("unknown level %q (want debug, info, warn, or error)", value)
	}
	return level, nil
}

func requireSecret(name, inline, file string) error {
	switch {
	case inline != "" && file != "":
		return fmt.Errorf("%s and %s_file are mutually exclusive", name, name)
	case file != "":
		return nil
	case inline == "" || inline == Placeholder:
		return fmt.Errorf("%s must be set", name)
	}
	return nil
}

func requirePositive(name string, value time.Duration) error {
	if value <= 0 {
		return fmt.Errorf("%s must be positive, got %v", name, value)
	}
	return nil
}

func validatePort(name string, port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("%s %d is out of range", name, port)
	}
	return nil
}

func validateURL(name, raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%s %q must be an http or https URL", name, raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("%s %q has no host", name, raw)
	}
	return nil
}
