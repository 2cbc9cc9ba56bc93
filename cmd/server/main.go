// Package main provides the chartroom server binary: the REST API, the
// per-conversation websocket endpoint, and the guessr game core.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"go.uber.org/zap"

	"github.com/pcahill/chartroom/internal/auth"
	"github.com/pcahill/chartroom/internal/chat"
	"github.com/pcahill/chartroom/internal/config"
	"github.com/pcahill/chartroom/internal/httpapi"
	"github.com/pcahill/chartroom/internal/observability"
	"github.com/pcahill/chartroom/internal/questions"
	"github.com/pcahill/chartroom/internal/server"
	"github.com/pcahill/chartroom/internal/storage/postgres"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting chartroom server",
		zap.String("addr", cfg.Server.Addr()),
	)

	dbStart := time.Now()
	pool, err := postgres.NewPool(ctx, cfg.Database)
	if err != nil {
		logger.Fatal("connecting to database", zap.Error(err))
	}
	logger.Info("database connected",
		zap.String("host", cfg.Database.Host),
		zap.Duration("elapsed", time.Since(dbStart)),
	)

	users := postgres.NewUserRepository(pool.DB())
	conversations := postgres.NewConversationRepository(pool.DB())
	messages := postgres.NewMessageRepository(pool.DB())
	questionRepo := postgres.NewQuestionRepository(pool.DB())

	tokens := auth.NewService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, users)

	scheduler := chat.NewScheduler(logger)
	directory := chat.NewDirectory(
		conversations, messages, questionRepo, scheduler, logger,
		chat.Options{
			Leeway:           cfg.Game.Leeway,
			ExitRecheckDelay: cfg.Game.ExitRecheckDelay,
			EvictionDelay:    cfg.Game.EvictionDelay,
			QuestionCategory: cfg.Game.QuestionCategory,
		},
	)

	var importer httpapi.Refresher
	if cfg.Sheets.Configured() {
		importer = questions.NewImporter(nil, cfg.Sheets, questionRepo, logger)
	} else {
		logger.Warn("sheet source not configured, question refresh disabled")
	}

	app := httpapi.New(httpapi.Deps{
		Logger:        logger,
		Users:         users,
		Conversations: conversations,
		Participants:  conversations,
		Messages:      messages,
		Tokens:        tokens,
		Directory:     directory,
		Registry:      chat.NewSessionRegistry(),
		Importer:      importer,
		Game:          cfg.Game,
		WSIdleTimeout: cfg.Server.WSIdleTimeout,
	})

	lifecycle := server.NewLifecycle(logger)

	lifecycle.Add("http", &server.FuncService{
		StartFn: func() error {
			logger.Info("http server listening",
				zap.String("addr", cfg.Server.Addr()),
			)
			return app.Listen(cfg.Server.Addr())
		},
		StopFn: func() {
			if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
				logger.Warn("http shutdown", zap.Error(err))
			}
		},
	})

	lifecycle.Add("scheduler", &server.FuncService{
		StartFn: func() error {
			select {}
		},
		StopFn: func() {
			scheduler.Stop()
		},
	})

	lifecycle.Add("postgres", &server.FuncService{
		StartFn: func() error {
			for {
				time.Sleep(30 * time.Second)
				if err := pool.Health(ctx, 5*time.Second); err != nil {
					logger.Warn("database health check failed", zap.Error(err))
				}
			}
		},
		StopFn: func() {
			pool.Close()
		},
	})

	logger.Info("chartroom server initialized",
		zap.Duration("startup", time.Since(start)),
	)

	if err := lifecycle.Run(ctx); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}
