package config

import "os"

// Environment variable names for overrides.
const (
	EnvConfig       = "HIDRIVE_GO_CONFIG"
	EnvClientID     = "HIDRIVE_CLIENT_ID"
	EnvClientSecret = "HIDRIVE_CLIENT_SECRET"
	EnvTokenFile    = "HIDRIVE_TOKEN_FILE"
)

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath   string // HIDRIVE_GO_CONFIG
	ClientID     string // HIDRIVE_CLIENT_ID
	ClientSecret string // HIDRIVE_CLIENT_SECRET
	TokenFile    string // HIDRIVE_TOKEN_FILE
}

// ReadEnvOverrides reads environment variables and returns any overrides found.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath:   os.Getenv(EnvConfig),
		ClientID:     os.Getenv(EnvClientID),
		ClientSecret: os.Getenv(EnvClientSecret),
		TokenFile:    os.Getenv(EnvTokenFile),
	}
}
