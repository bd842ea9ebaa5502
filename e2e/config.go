package e2e

import (
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// RELAY_URL is the http(s) base address of a running relay. The suites
	// are skipped when it is empty.
	RelayURL  string `envconfig:"RELAY_URL"`
	WSPath    string `envconfig:"RELAY_WS_PATH" default:"/ws"`
	JWTSecret string `envconfig:"RELAY_JWT_SECRET"`
	JWTIssuer string `envconfig:"RELAY_JWT_ISSUER" default:"chat-relay"`
	// E2E_DEBUG_JSON allows dumping full REST request/response bodies
	DebugJSON bool `envconfig:"E2E_DEBUG_JSON" default:"false"`
	// E2E_COLOURS enables colorized output for better log readability
	Colours bool `envconfig:"E2E_COLOURS" default:"true"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}
