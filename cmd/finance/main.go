// Package main запускает HTTP-сервер сервиса финансового учёта ассоциации.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/association-finance/internal/config"
	"github.com/mmeshcher/association-finance/internal/events"
	"github.com/mmeshcher/association-finance/internal/handler"
	"github.com/mmeshcher/association-finance/internal/repository"
	"github.com/mmeshcher/association-finance/internal/service"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}

	var sender events.Sender
	if cfg.EventsEndpoint != "" {
		sender = events.NewClient(cfg.EventsEndpoint)
	}
	dispatcher := events.NewDispatcher(sender, logger.Named("events"), cfg.EventBuffer)

	svc := service.NewService(repo, dispatcher, service.Options{
		StrictRounds:        cfg.StrictRounds,
		StrictContributions: cfg.StrictContributions,
	})
	defer svc.Close()

	h := handler.NewHandler(svc, logger)

	server := &http.Server{
		Addr:    cfg.RunAddress,
		Handler: h.SetupRouter(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Доставка доменных событий
	g.Go(func() error {
		return dispatcher.Run(ctx)
	})

	// Запуск HTTP-сервера
	g.Go(func() error {
		sugar.Infow("starting finance server",
			"addr", cfg.RunAddress,
			"events_endpoint", cfg.EventsEndpoint,
			"strict_rounds", cfg.StrictRounds,
			"strict_contributions", cfg.StrictContributions,
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}
