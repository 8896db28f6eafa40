// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for hidrive-go. Values are layered
// defaults -> config file -> environment -> CLI flags.
package config

// Config is the top-level configuration structure parsed from a TOML file.
type Config struct {
	Auth      AuthConfig      `toml:"auth"`
	Network   NetworkConfig   `toml:"network"`
	Transfers TransfersConfig `toml:"transfers"`
	Logging   LoggingConfig   `toml:"logging"`
}

// AuthConfig holds the OAuth2 client registration and where the token lives.
// client_secret may be left empty in the file and supplied via environment.
type AuthConfig struct {
	ClientID      string `toml:"client_id"`
	ClientSecret  string `toml:"client_secret"`
	Scope         string `toml:"scope"`
	TokenFile     string `toml:"token_file"`
	CallbackPort  int    `toml:"callback_port"`
	RefreshMargin string `toml:"refresh_margin"`
}

// NetworkConfig controls the HTTP client: endpoints, timeouts, and user agent.
type NetworkConfig struct {
	BaseURL        string `toml:"base_url"`
	ConnectTimeout string `toml:"connect_timeout"`
	DataTimeout    string `toml:"data_timeout"`
	UserAgent      string `toml:"user_agent"`
	ForceHTTP11    bool   `toml:"force_http_11"`
}

// TransfersConfig controls upload parallelism and the shared bandwidth cap.
type TransfersConfig struct {
	ParallelUploads int    `toml:"parallel_uploads"`
	BandwidthLimit  string `toml:"bandwidth_limit"`
}

// LoggingConfig controls log output: level, destination, and format.
type LoggingConfig struct {
	LogLevel  string `toml:"log_level"`
	LogFile   string `toml:"log_file"`
	LogFormat string `toml:"log_format"`
}

// CLIOverrides holds values from CLI flags. Empty strings mean "not given".
type CLIOverrides struct {
	ConfigPath string // --config
	LogLevel   string // derived from --verbose / --quiet
}
