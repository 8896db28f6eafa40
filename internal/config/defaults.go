package config

// Default values for configuration options.
const (
	defaultScope           = "user,rw"
	defaultCallbackPort    = 0
	defaultRefreshMargin   = "60s"
	defaultBaseURL         = "https://api.hidrive.strato.com/2.1"
	defaultConnectTimeout  = "10s"
	defaultDataTimeout     = "60s"
	defaultParallelUploads = 4
	defaultBandwidthLimit  = "0"
	defaultLogLevel        = "warn"
	defaultLogFormat       = "text"
)

// DefaultConfig returns a Config populated with all default values. It is
// the starting point for TOML decoding, so unset fields keep their defaults.
func DefaultConfig() *Config {
	return &Config{
		Auth: AuthConfig{
			Scope:         defaultScope,
			CallbackPort:  defaultCallbackPort,
			RefreshMargin: defaultRefreshMargin,
		},
		Network: NetworkConfig{
			BaseURL:        defaultBaseURL,
			ConnectTimeout: defaultConnectTimeout,
			DataTimeout:    defaultDataTimeout,
		},
		Transfers: TransfersConfig{
			ParallelUploads: defaultParallelUploads,
			BandwidthLimit:  defaultBandwidthLimit,
		},
		Logging: LoggingConfig{
			LogLevel:  defaultLogLevel,
			LogFormat: defaultLogFormat,
		},
	}
}
