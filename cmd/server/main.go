package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mjrt0817/quiz-bonenkai/internal/config"
	"github.com/mjrt0817/quiz-bonenkai/internal/httpapi"
	"github.com/mjrt0817/quiz-bonenkai/internal/hub"
	"github.com/mjrt0817/quiz-bonenkai/internal/logger"
	"github.com/mjrt0817/quiz-bonenkai/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	zlog, err := logger.New(cfg.Debug)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = zlog.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var journal store.Journal
	if cfg.DatabaseDSN != "" {
		j, err := store.OpenPostgres(cfg.DatabaseDSN)
		if err != nil {
			zlog.Fatal("journal open failed", zap.Error(err))
		}
		journal = j
	}

	st, err := store.New(ctx, zlog, journal)
	if err != nil {
		zlog.Fatal("store start failed", zap.Error(err))
	}
	defer st.Close()

	h := hub.NewHub(ctx, st, cfg.Rules, zlog)

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: httpapi.SetupRoutes(h, zlog),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		zlog.Info("listening", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		h.Inbox() <- hub.ShutdownHub{}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		zlog.Fatal("server exited", zap.Error(err))
	}
}
