package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/gaspardpetit/voicerelay/internal/api"
	"github.com/gaspardpetit/voicerelay/internal/drain"
	"github.com/gaspardpetit/voicerelay/internal/logx"
	"github.com/gaspardpetit/voicerelay/internal/metrics"
	"github.com/gaspardpetit/voicerelay/internal/ollama"
	"github.com/gaspardpetit/voicerelay/internal/server"
	"github.com/gaspardpetit/voicerelay/internal/tts"
)

const shutdownTimeout = 10 * time.Second

func runServe(cmd *cobra.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	preg := prometheus.NewRegistry()
	preg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics.Register(preg)
	metrics.SetBuildInfo(version, buildSHA, buildDate)

	client := ollama.New(cfg.OllamaBaseURL)
	gate := &drain.Gate{}
	opts := api.Options{
		Drain:           gate,
		Generator:       client,
		Models:          client,
		Speech:          tts.NewEngine(cfg.TTS),
		GenerateTimeout: cfg.GenerateTimeout,
		ModelsTimeout:   cfg.ModelsTimeout,
	}
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           server.New(cfg, opts, preg),
		ReadHeaderTimeout: 10 * time.Second,
	}
	var metricsSrv *http.Server
	if !cfg.MetricsOnAPIPort() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(preg, promhttp.HandlerOpts{}))
		metricsSrv = &http.Server{Addr: cfg.ResolvedMetricsAddr(), Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	errCh := make(chan error, 2)
	if metricsSrv != nil {
		go func() {
			logx.Log.Info().Str("addr", metricsSrv.Addr).Msg("metrics server starting")
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("metrics server: %w", err)
			}
		}()
	}
	go func() {
		logx.Log.Info().Int("port", cfg.Port).Str("ollama", cfg.OllamaBaseURL).Str("tts_engine", cfg.TTS.Engine).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server: %w", err)
		}
	}()

	select {
	case <-sigCh:
	case err := <-errCh:
		return err
	}
	if cfg.DrainTimeout > 0 {
		idle := gate.Start()
		logx.Log.Info().Dur("timeout", cfg.DrainTimeout).Int("in_flight", gate.InFlight()).Msg("draining; send SIGTERM again to terminate immediately")
		select {
		case <-idle:
			logx.Log.Info().Msg("drain complete")
		case <-time.After(cfg.DrainTimeout):
			logx.Log.Warn().Int("in_flight", gate.InFlight()).Msg("drain timeout exceeded; terminating")
		case <-sigCh:
			logx.Log.Warn().Msg("termination requested")
		}
	} else {
		logx.Log.Warn().Msg("termination requested")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logx.Log.Error().Err(err).Msg("server shutdown")
	}
	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			logx.Log.Error().Err(err).Msg("metrics server shutdown")
		}
	}
	return nil
}
