package config

import (
	"encoding/json"
	"os"

	"github.com/cloudpad/tenantvault/internal/flagx"
	"github.com/cloudpad/tenantvault/internal/timex"
)

// JsonConfig is the intermediate DTO for reading JSON configuration files.
// Duration fields use timex.Duration, which parses both string values such
// as "30s" and integer nanoseconds. After unmarshalling, non-empty fields
// are copied into the runtime Config.
type JsonConfig struct {
	EndpointAddrHTTP   string         `json:"endpoint_addr_http"`
	DatabaseDSN        string         `json:"database_dsn"`
	JWTSecret          string         `json:"jwt_secret"`
	VaultSecret        string         `json:"vault_secret"`
	WebhookTimeout     timex.Duration `json:"webhook_timeout"`
	WebhookBackoffBase timex.Duration `json:"webhook_backoff_base"`
}

// parseJson loads configuration values from the JSON file named by the
// -c/-config flags, if any. Values present in the file override defaults;
// absent values leave the defaults in place. A file that cannot be read or
// parsed is a startup failure and panics.
func parseJson(config *Config) {

	jsonConfigFile := flagx.JsonConfigFlags()

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	err = json.Unmarshal(file, c)
	if err != nil {
		panic(err)
	}

	if c.EndpointAddrHTTP != "" {
		config.EndpointAddrHTTP = c.EndpointAddrHTTP
	}
	if c.DatabaseDSN != "" {
		config.DatabaseDSN = c.DatabaseDSN
	}
	if c.JWTSecret != "" {
		config.JWTSecret = c.JWTSecret
	}
	if c.VaultSecret != "" {
		config.VaultSecret = c.VaultSecret
	}
	if c.WebhookTimeout.Duration != 0 {
		config.WebhookTimeout = c.WebhookTimeout.Duration
	}
	if c.WebhookBackoffBase.Duration != 0 {
		config.WebhookBackoffBase = c.WebhookBackoffBase.Duration
	}
}
