package main

import (
	"context"
	"log"
	"os"

	"github.com/dmitrijs2005/tradegate/internal/logging"
	"github.com/dmitrijs2005/tradegate/internal/server"
	"github.com/dmitrijs2005/tradegate/internal/server/config"
)

func main() {

	ctx := context.Background()
	cfg := config.LoadConfig()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	if cfg.IssueTokenFor != "" {
		if err := server.IssueToken(cfg, cfg.IssueTokenFor, os.Stdout); err != nil {
			log.Fatalf("%v", err)
		}
		return
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stdout)
	if err != nil {
		log.Fatalf("%v", err)
	}

	app, err := server.NewApp(ctx, cfg, logger)
	if err != nil {
		log.Printf("%v", err)
		return
	}

	if err := app.Run(ctx); err != nil {
		log.Printf("%v", err)
	}

}
