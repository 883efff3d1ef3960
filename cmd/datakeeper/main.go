package main

import (
	"context"
	"log"
	"log/slog"
	"os"

	"github.com/dmitrijs2005/datakeeper/internal/buildinfo"
	"github.com/dmitrijs2005/datakeeper/internal/cli"
	"github.com/dmitrijs2005/datakeeper/internal/config"
	"github.com/dmitrijs2005/datakeeper/internal/logging"
)

func main() {

	buildinfo.PrintBuildData(os.Stdout)

	ctx := context.Background()
	cfg := config.LoadConfig()
	logger := logging.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	app := cli.NewApp(cfg, logger)
	if err := app.Run(ctx); err != nil {
		log.Fatalf("%v", err)
	}
}
