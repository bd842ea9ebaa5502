package internal

import (
	"fmt"
	"strings"
	"time"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
)

type Config struct {
	Host     string `env:"HOST,default=0.0.0.0"`
	Port     int    `env:"PORT,default=8080"`
	WSPath   string `env:"WS_PATH,default=/ws"`
	LogLevel string `env:"LOG_LEVEL,required=true"`

	JWTSecret string `env:"JWT_SECRET,required=true"`
	JWTIssuer string `env:"JWT_ISSUER"`

	BadgerFilepath string `env:"BADGER_FILEPATH,required=true"`

	ConnectionBufferSize int           `env:"CONNECTION_BUFFER_SIZE,default=64"`
	EventBufferSize      int           `env:"EVENT_BUFFER_SIZE,default=256"`
	WriteTimeout         time.Duration `env:"WRITE_TIMEOUT,default=10s"`
	PongTimeout          time.Duration `env:"PONG_TIMEOUT,default=60s"`
	MaxFrameBytes        int64         `env:"MAX_FRAME_BYTES,default=8192"`
	InboundRate          float64       `env:"INBOUND_RATE,default=5"`
	InboundBurst         int           `env:"INBOUND_BURST,default=10"`

	MaxContentLength int    `env:"MAX_CONTENT_LENGTH,default=2000"`
	DefaultPageLimit int    `env:"DEFAULT_PAGE_LIMIT,default=20"`
	MaxPageLimit     int    `env:"MAX_PAGE_LIMIT,default=100"`
	CharReplacement  string `env:"CHARACTER_REPLACEMENT,default=*"`
	AllowedOrigins   string `env:"ALLOWED_ORIGINS"`

	RedisAddr    string `env:"REDIS_ADDR"`
	RedisChannel string `env:"REDIS_CHANNEL,default=relay:events"`

	RestartInterval time.Duration `env:"RESTART_INTERVAL,default=200ms"`
	GCInterval      time.Duration `env:"GC_INTERVAL,default=10m"`
	MetricInterval  time.Duration `env:"METRIC_INTERVAL,default=5s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s"`
}

// LoadConfig reads an optional .env file, then decodes the environment.
// Variables already set in the environment win over the file.
func LoadConfig(envFiles ...string) (Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && len(envFiles) > 0 {
		return Config{}, fmt.Errorf("loading %v: %w", envFiles, err)
	}
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return Config{}, err
	}
	return config, config.Validate()
}

func (c Config) Validate() error {
	if len(c.JWTSecret) < 16 {
		return fmt.Errorf("JWT_SECRET must be at least 16 bytes")
	}
	if c.ConnectionBufferSize <= 0 || c.EventBufferSize <= 0 {
		return fmt.Errorf("CONNECTION_BUFFER_SIZE and EVENT_BUFFER_SIZE must be positive")
	}
	if c.PongTimeout <= 0 || c.WriteTimeout <= 0 {
		return fmt.Errorf("PONG_TIMEOUT and WRITE_TIMEOUT must be positive")
	}
	if c.DefaultPageLimit <= 0 || c.MaxPageLimit < c.DefaultPageLimit {
		return fmt.Errorf("DEFAULT_PAGE_LIMIT must be positive and not above MAX_PAGE_LIMIT")
	}
	if _, err := CharacterRune(c.CharReplacement); err != nil {
		return err
	}
	return nil
}

func (c Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Origins splits ALLOWED_ORIGINS on commas. Empty means any origin.
func (c Config) Origins() []string {
	var origins []string
	for _, origin := range strings.Split(c.AllowedOrigins, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	return origins
}

func CharacterRune(str string) (rune, error) {
	r := []rune(str)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"CHARACTER_REPLACEMENT must be a single character, got %q",
			str,
		)
	}
	return r[0], nil
}
