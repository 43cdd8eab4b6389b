package e2e

import (
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// E2E_DEBUG_JSON dumps every frame exchanged over gRPC
	DebugJSON bool `envconfig:"E2E_DEBUG_JSON" default:"false"`
	// E2E_COLOURS enables colorized output for better log readability
	Colours    bool   `envconfig:"E2E_COLOURS" default:"true"`
	AuthSecret string `envconfig:"E2E_AUTH_SECRET" default:"e2e-secret-not-for-production"`
	LogLevel   string `envconfig:"E2E_LOG_LEVEL" default:"WARN"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}
