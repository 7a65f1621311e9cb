package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ZeppelinBot/Zeppelin-sub001/internal/bot"
	"github.com/ZeppelinBot/Zeppelin-sub001/internal/config"
	"github.com/ZeppelinBot/Zeppelin-sub001/internal/rules"
	"github.com/ZeppelinBot/Zeppelin-sub001/internal/storage"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, err := config.BuildLogger(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		panic(err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	store, err := storage.New(cfg.DatabasePath)
	if err != nil {
		logger.Fatal("storage init failed", zap.Error(err))
	}
	defer store.Close()
	if err := store.Migrate(); err != nil {
		logger.Fatal("migrations failed", zap.Error(err))
	}

	ruleDoc, err := rules.LoadFile(cfg.RulesPath)
	if err != nil {
		logger.Fatal("rule config rejected", zap.Error(err))
	}

	botSvc, err := bot.New(cfg, logger, store, ruleDoc)
	if err != nil {
		logger.Fatal("bot init failed", zap.Error(err))
	}

	if err := botSvc.Start(); err != nil {
		logger.Fatal("bot start failed", zap.Error(err))
	}
	logger.Info("bot started")

	retentionCtx, stopRetention := context.WithCancel(context.Background())
	go runRetention(retentionCtx, store, cfg.Engine.RetentionDays, logger)

	var server *http.Server
	if cfg.Health.Enabled {
		server = &http.Server{Addr: cfg.Health.Addr}
		http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
		})
		go func() {
			logger.Info("health endpoint enabled", zap.String("addr", cfg.Health.Addr))
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("health server error", zap.Error(err))
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutdown requested")

	stopRetention()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if server != nil {
		_ = server.Shutdown(ctx)
	}
	botSvc.Close(ctx)
}

func runRetention(ctx context.Context, store *storage.Store, retentionDays int, logger *zap.Logger) {
	if retentionDays <= 0 {
		return
	}

	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().AddDate(0, 0, -retentionDays)
			if err := store.CleanupBefore(ctx, cutoff); err != nil {
				logger.Warn("retention cleanup failed", zap.Error(err))
			}
		}
	}
}
