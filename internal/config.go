package internal

import (
	"fmt"
	"strings"
	"time"

	"match-chat/errors"

	env "github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
)

type Config struct {
	Host     string `env:"HOST,default=localhost" validate:"required"`
	HTTPPort int    `env:"HTTP_PORT,default=8080" validate:"gt=0,lte=65535"`
	GRPCPort int    `env:"GRPC_PORT,default=9090" validate:"gt=0,lte=65535,nefield=HTTPPort"`
	LogLevel string `env:"LOG_LEVEL,default=INFO"`

	BadgerFilepath     string `env:"BADGER_FILEPATH,required=true" validate:"required"`
	BadgerValueLogSize int64  `env:"BADGER_VALUE_LOG_SIZE,default=268435456" validate:"gte=1048576,lt=2147483648"`

	ConnectionBufferSize int `env:"CONNECTION_BUFFER_SIZE,default=64" validate:"gt=0"`
	EventBufferSize      int `env:"EVENT_BUFFER_SIZE,default=1024" validate:"gt=0"`
	MaxContentLength     int `env:"MAX_CONTENT_LENGTH,default=1000" validate:"gt=0"`
	HistoryLimit         int `env:"HISTORY_LIMIT,default=50" validate:"gt=0,lte=200"`

	PersistTimeout        time.Duration `env:"PERSIST_TIMEOUT,default=2s" validate:"gt=0"`
	LookupTimeout         time.Duration `env:"LOOKUP_TIMEOUT,default=1s" validate:"gt=0"`
	SinkTimeout           time.Duration `env:"SINK_TIMEOUT,default=500ms" validate:"gt=0"`
	PingInterval          time.Duration `env:"PING_INTERVAL,default=20s" validate:"gt=0"`
	PingTimeout           time.Duration `env:"PING_TIMEOUT,default=10s" validate:"gt=0"`
	LivenessTimeout       time.Duration `env:"LIVENESS_TIMEOUT,default=90s" validate:"gtfield=PingInterval"`
	LivenessSweepInterval time.Duration `env:"LIVENESS_SWEEP_INTERVAL,default=15s" validate:"gt=0"`
	RestartInterval       time.Duration `env:"RESTART_INTERVAL,default=200ms" validate:"gt=0"`
	ShutdownTimeout       time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s" validate:"gt=0"`

	CheckMatchExists bool   `env:"CHECK_MATCH_EXISTS,default=true"`
	EnableModeration bool   `env:"ENABLE_MODERATION,default=true"`
	CharReplacement  string `env:"CHARACTER_REPLACEMENT,default=*"`

	AuthSecret        string        `env:"AUTH_SECRET"`
	AuthTokenDuration time.Duration `env:"AUTH_TOKEN_DURATION,default=24h" validate:"gt=0"`
	OriginPatterns    string        `env:"ORIGIN_PATTERNS"`
}

// Load reads the configuration from the environment and validates it.
func Load() (Config, error) {
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return Config{}, fmt.Errorf("config error: %w", err)
	}
	if err := validator.New().Struct(config); err != nil {
		return Config{}, fmt.Errorf("config error: %w", err)
	}
	if _, err := CharacterRune(config.CharReplacement); err != nil {
		return Config{}, err
	}
	return config, nil
}

func (c Config) HTTPAddress() string { return fmt.Sprintf("%s:%d", c.Host, c.HTTPPort) }

func (c Config) GRPCAddress() string { return fmt.Sprintf("%s:%d", c.Host, c.GRPCPort) }

// Origins returns the comma separated WebSocket origin patterns.
func (c Config) Origins() []string {
	var res []string
	for _, p := range strings.Split(c.OriginPatterns, ",") {
		if p = strings.TrimSpace(p); p != "" {
			res = append(res, p)
		}
	}
	return res
}

func CharacterRune(str string) (rune, error) {
	r := []rune(str)
	if len(r) != 1 {
		return 0, fmt.Errorf("%w, got %q", errors.ErrInvalidReplacement, str)
	}
	return r[0], nil
}
