// Package main provides the question import binary. It fetches the chart
// worksheets from the configured sheet endpoint and stores them as a new
// question source.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"go.uber.org/zap"

	"github.com/pcahill/chartroom/internal/config"
	"github.com/pcahill/chartroom/internal/observability"
	"github.com/pcahill/chartroom/internal/questions"
	"github.com/pcahill/chartroom/internal/storage/postgres"
)

func main() {
	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	timeout := flag.Duration("timeout", time.Minute, "overall import timeout")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	if !cfg.Sheets.Configured() {
		logger.Fatal("sheet source not configured; set sheets.endpoint and sheets.file_id")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	pool, err := postgres.NewPool(ctx, cfg.Database)
	if err != nil {
		logger.Fatal("connecting to database", zap.Error(err))
	}
	defer pool.Close()

	importer := questions.NewImporter(nil, cfg.Sheets, postgres.NewQuestionRepository(pool.DB()), logger)

	start := time.Now()
	count, err := importer.Refresh(ctx)
	if err != nil {
		logger.Fatal("importing questions", zap.Error(err))
	}
	logger.Info("import complete",
		zap.Int("questions", count),
		zap.Duration("elapsed", time.Since(start)),
	)
}
