package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"datanav/internal/bootstrap"
	"datanav/internal/config"
	"datanav/internal/core/domain"
	"datanav/internal/observability/logging"
	"datanav/internal/observability/metrics"
)

func main() {
	cfg := config.Load()
	logger := logging.NewJSONLogger("worker", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	m := metrics.NewWorkerMetrics("worker")
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	metricsServer := &http.Server{
		Addr:         ":" + cfg.WorkerMetricsPort,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("worker metrics listening", "port", cfg.WorkerMetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("metrics server error: %v", err)
		}
	}()

	logger.Info("worker consuming answer events", "subject", cfg.NATSSubject)
	err = app.Events.ConsumeAnswerEvents(ctx, func(handlerCtx context.Context, ev domain.AnswerEvent) error {
		m.StartEvent()
		start := time.Now()
		if !ev.CreatedAt.IsZero() {
			m.ObserveEventLag("worker", start.Sub(ev.CreatedAt))
		}

		recordCtx, cancel := context.WithTimeout(handlerCtx, 10*time.Second)
		defer cancel()
		err := app.AnswerLog.RecordAnswerEvent(recordCtx, ev)
		m.FinishEvent("worker", time.Since(start), err)
		return err
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("worker consume error: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown error", "error", err)
	}
}
