package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Resolved is the final configuration after every layer has been applied,
// with durations and sizes already parsed.
type Resolved struct {
	ConfigPath string

	ClientID      string
	ClientSecret  string
	Scopes        []string
	TokenFile     string
	CallbackPort  int
	RefreshMargin time.Duration

	BaseURL        string
	ConnectTimeout time.Duration
	DataTimeout    time.Duration
	UserAgent      string
	ForceHTTP11    bool

	ParallelUploads int
	BandwidthLimit  int64 // bytes per second, 0 = unlimited

	LogLevel  string
	LogFile   string
	LogFormat string
}

// ErrNoClientID is returned by Resolve when no OAuth2 client is configured.
var ErrNoClientID = errors.New("no OAuth2 client_id configured (set [auth] client_id or " + EnvClientID + ")")

// Load reads and parses a TOML config file, validates it, and returns the
// resulting Config. Unknown keys are fatal, with "did you mean" suggestions.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := checkUnknownKeys(&md); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault reads a TOML config file if it exists, otherwise returns
// a Config populated with all default values.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

// Resolve loads configuration and applies the override chain:
// defaults -> config file -> environment variables -> CLI flags.
// requireClient makes a missing client_id an error; commands that never
// talk to the API (logout) pass false.
func Resolve(env EnvOverrides, cli CLIOverrides, requireClient bool) (*Resolved, error) {
	cfgPath := DefaultConfigPath()
	if env.ConfigPath != "" {
		cfgPath = env.ConfigPath
	}

	if cli.ConfigPath != "" {
		cfgPath = cli.ConfigPath
	}

	cfg, err := LoadOrDefault(cfgPath)
	if err != nil {
		return nil, err
	}

	if env.ClientID != "" {
		cfg.Auth.ClientID = env.ClientID
	}

	if env.ClientSecret != "" {
		cfg.Auth.ClientSecret = env.ClientSecret
	}

	if env.TokenFile != "" {
		cfg.Auth.TokenFile = env.TokenFile
	}

	if cli.LogLevel != "" {
		cfg.Logging.LogLevel = cli.LogLevel
	}

	if requireClient && cfg.Auth.ClientID == "" {
		return nil, ErrNoClientID
	}

	return resolve(cfg, cfgPath)
}

// resolve converts a validated Config into its parsed form.
func resolve(cfg *Config, cfgPath string) (*Resolved, error) {
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	// Validate has already checked every value parsed below.
	margin, _ := time.ParseDuration(cfg.Auth.RefreshMargin)
	connect, _ := time.ParseDuration(cfg.Network.ConnectTimeout)
	data, _ := time.ParseDuration(cfg.Network.DataTimeout)
	limit, _ := ParseSize(cfg.Transfers.BandwidthLimit)

	tokenFile := expandTilde(cfg.Auth.TokenFile)
	if tokenFile == "" {
		tokenFile = DefaultTokenPath()
	}

	return &Resolved{
		ConfigPath:      cfgPath,
		ClientID:        cfg.Auth.ClientID,
		ClientSecret:    cfg.Auth.ClientSecret,
		Scopes:          []string{cfg.Auth.Scope},
		TokenFile:       tokenFile,
		CallbackPort:    cfg.Auth.CallbackPort,
		RefreshMargin:   margin,
		BaseURL:         cfg.Network.BaseURL,
		ConnectTimeout:  connect,
		DataTimeout:     data,
		UserAgent:       cfg.Network.UserAgent,
		ForceHTTP11:     cfg.Network.ForceHTTP11,
		ParallelUploads: cfg.Transfers.ParallelUploads,
		BandwidthLimit:  limit,
		LogLevel:        cfg.Logging.LogLevel,
		LogFile:         expandTilde(cfg.Logging.LogFile),
		LogFormat:       cfg.Logging.LogFormat,
	}, nil
}
