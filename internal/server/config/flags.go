package config

import (
	"flag"
	"os"
	"time"

	"github.com/cloudpad/tenantvault/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":8080")
//	-d string   PostgreSQL DSN
//	-s string   JWT HMAC secret key
//	-k string   vault encryption secret
//	-t int      webhook request timeout, seconds
//	-r int      webhook retry backoff base, seconds
//
// The function first filters os.Args to only the flags it recognizes using
// flagx.FilterArgs, avoiding collisions with other components. Duration
// flags are accepted as integers in seconds.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-d", "-s", "-k", "-t", "-r"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrHTTP, "a", config.EndpointAddrHTTP, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.JWTSecret, "s", config.JWTSecret, "JWT secret key")
	fs.StringVar(&config.VaultSecret, "k", config.VaultSecret, "credential vault secret")

	webhookTimeout := fs.Int("t", int(config.WebhookTimeout.Seconds()), "webhook request timeout (in seconds)")
	webhookBackoffBase := fs.Int("r", int(config.WebhookBackoffBase.Seconds()), "webhook retry backoff base (in seconds)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.WebhookTimeout = time.Duration(*webhookTimeout) * time.Second
	config.WebhookBackoffBase = time.Duration(*webhookBackoffBase) * time.Second
}
