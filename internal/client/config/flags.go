package config

import (
	"flag"
	"os"
	"strings"

	"github.com/dmitrijs2005/tradegate/internal/flagx"
)

var knownFlags = []string{
	"-u", "-l", "-p", "-g", "-w", "-headless", "-b", "-cdp",
	"-s", "-m", "-d", "-f", "-k", "-a", "-log-level", "-log-format",
}

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags:
//
//	-u string     registration page URL
//	-l string     label of the registration button
//	-p string     comma-separated success URL patterns
//	-g duration   grace delay before the automated click
//	-w duration   interaction timeout
//	-headless     run the browser without a window
//	-b string     browser binary
//	-cdp string   DevTools URL of an already running browser
//	-s string     allow-list store backend (memory|mongo|postgres)
//	-m string     MongoDB URI
//	-d string     PostgreSQL DSN
//	-f string     session database file
//	-k string     session passphrase
//	-a string     upstream API base URL
//	-log-level string, -log-format string
//
// Note: The function filters os.Args to only include the flags it knows about,
// using flagx.FilterArgs, to avoid interference with other components.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], knownFlags)

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.RegistrationURL, "u", cfg.RegistrationURL, "registration page URL")
	fs.StringVar(&cfg.ClickLabel, "l", cfg.ClickLabel, "label of the registration button")
	patterns := fs.String("p", strings.Join(cfg.SuccessPatterns, ","), "comma-separated success URL patterns")
	fs.DurationVar(&cfg.GraceDelay, "g", cfg.GraceDelay, "grace delay before the automated click")
	fs.DurationVar(&cfg.InteractionTimeout, "w", cfg.InteractionTimeout, "interaction timeout")
	fs.BoolVar(&cfg.Headless, "headless", cfg.Headless, "run the browser headless")
	fs.StringVar(&cfg.BrowserBin, "b", cfg.BrowserBin, "browser binary")
	fs.StringVar(&cfg.BrowserControlURL, "cdp", cfg.BrowserControlURL, "DevTools URL of a running browser")
	fs.StringVar(&cfg.StoreBackend, "s", cfg.StoreBackend, "allow-list store backend")
	fs.StringVar(&cfg.MongoURI, "m", cfg.MongoURI, "MongoDB URI")
	fs.StringVar(&cfg.PostgresDSN, "d", cfg.PostgresDSN, "PostgreSQL DSN")
	fs.StringVar(&cfg.SessionDBPath, "f", cfg.SessionDBPath, "session database file")
	fs.StringVar(&cfg.SessionPassphrase, "k", cfg.SessionPassphrase, "session passphrase")
	fs.StringVar(&cfg.APIBaseURL, "a", cfg.APIBaseURL, "upstream API base URL")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "log format (text|json)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.SuccessPatterns = splitList(*patterns)
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
