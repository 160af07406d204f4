package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/tradegate/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags:
//
//	-a string            gRPC bind address (e.g., ":50052")
//	-b string            store backend (memory|mongo|postgres)
//	-m string            MongoDB URI
//	-d string            PostgreSQL DSN
//	-s string            JWT HMAC secret key
//	-t int               admin token validity, minutes
//	-issue-token string  print an admin token for this operator and exit
//	-log-level string, -log-format string
//
// Notes:
//   - The function first filters os.Args to only the flags it recognizes using
//     flagx.FilterArgs, avoiding collisions with other components.
//   - Token validity is accepted as an integer number of minutes.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-b", "-m", "-d", "-s", "-t", "-issue-token", "-log-level", "-log-format"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrGRPC, "a", config.EndpointAddrGRPC, "address and port to run server")
	fs.StringVar(&config.StoreBackend, "b", config.StoreBackend, "allow-list store backend")
	fs.StringVar(&config.MongoURI, "m", config.MongoURI, "MongoDB URI")
	fs.StringVar(&config.PostgresDSN, "d", config.PostgresDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")

	accessTokenValidityDuration := fs.Int("t", int(config.AccessTokenValidityDuration.Minutes()), "admin token validity (in minutes)")

	fs.StringVar(&config.IssueTokenFor, "issue-token", config.IssueTokenFor, "print an admin token for the named operator and exit")
	fs.StringVar(&config.LogLevel, "log-level", config.LogLevel, "log level")
	fs.StringVar(&config.LogFormat, "log-format", config.LogFormat, "log format (text|json)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.AccessTokenValidityDuration = time.Duration(*accessTokenValidityDuration) * time.Minute
}
