package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"interview_room/internal/api"
	"interview_room/internal/integration"
	"interview_room/internal/metrics"
	"interview_room/internal/repository"
	"interview_room/internal/repository/memory"
	"interview_room/internal/service"
	"interview_room/internal/storage"
	"interview_room/internal/utils"
	"interview_room/pkg/bus"
	"interview_room/pkg/config"
	"interview_room/pkg/s3"
)

// app 持有所有長期存在的資源，Close 依建立的相反順序釋放
type app struct {
	cfg      *config.Config
	log      *zap.Logger
	services *service.Services
	registry *prometheus.Registry
	bus      *bus.Bus
	subjects integration.Subjects
	closers  []func()
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	a := &app{cfg: cfg, log: logger, registry: registry, subjects: integration.NewSubjects(cfg.NATS.SubjectPrefix)}
	deps := service.Deps{
		Config:  cfg,
		Logger:  logger,
		Metrics: metrics.New(registry),
	}

	switch cfg.Store {
	case "memory":
		logger.Warn("using in-memory store, data is lost on restart")
		deps.Repos = memory.NewRepositories()
	default:
		db, err := storage.NewPostgresDB(ctx, cfg.DB, logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { db.Close() })
		deps.Repos = repository.NewRepositories(db)
	}

	if cfg.NATS.URL != "" {
		b, err := bus.New(cfg.NATS.URL, cfg.NATS.RequestTimeout, nats.Name("interviewd"))
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("connect nats: %w", err)
		}
		a.bus = b
		a.closers = append(a.closers, b.Close)
		if err := b.EnsureStream(a.subjects.StreamName(), a.subjects.Streamed()...); err != nil {
			a.Close()
			return nil, err
		}
		deps.Media = integration.NewMedia(b, a.subjects)
		deps.Mailer = integration.NewMailer(b, a.subjects)
		deps.Pipeline = integration.NewPipeline(b, a.subjects)
		deps.Publisher = integration.NewEvents(b, a.subjects)
		logger.Info("nats integrations enabled", zap.String("url", cfg.NATS.URL))
	} else {
		logger.Warn("nats.url is empty, media allocation, mail and pipeline hand-off are disabled")
	}

	if cfg.S3.Endpoint != "" {
		client, err := s3.NewClient(ctx, cfg.S3)
		if err != nil {
			a.Close()
			return nil, err
		}
		deps.Presigner = client
	}

	a.services = service.NewServices(deps)
	return a, nil
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// startPipelineConsumer 沒有 NATS 時錄影結果只能透過 HTTP hooks 回報
func (a *app) startPipelineConsumer(ctx context.Context) error {
	if a.bus == nil {
		return nil
	}
	consumer := integration.NewPipelineConsumer(a.bus, a.subjects, a.services.Recording, a.log)
	subs, err := consumer.Start(ctx)
	if err != nil {
		return err
	}
	for _, sub := range subs {
		sub := sub
		a.closers = append(a.closers, func() { closeQuietly(sub, a.log) })
	}
	return nil
}

func closeQuietly(c io.Closer, log *zap.Logger) {
	if err := c.Close(); err != nil {
		log.Debug("close failed", zap.Error(err))
	}
}

func runServer(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.startPipelineConsumer(ctx); err != nil {
		return err
	}
	go a.services.Sweeper.Run(ctx)

	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := api.NewRouter(ctx, a.services, api.Options{
		Config:   cfg,
		Tokens:   utils.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.SessionTTL),
		Logger:   logger,
		Gatherer: a.registry,
	})
	srv := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("address", cfg.Server.Address))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http shutdown", zap.Error(err))
		}
	}

	// 背景的邀請信與管線交接要在關閉 NATS 之前送完
	a.services.Wait()
	return nil
}
