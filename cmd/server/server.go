package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lexiqai/voice-agent/internal/config"
	"github.com/lexiqai/voice-agent/internal/conversation"
	"github.com/lexiqai/voice-agent/internal/observability"
	"github.com/lexiqai/voice-agent/internal/stt"
	"github.com/lexiqai/voice-agent/internal/telephony"
	"github.com/lexiqai/voice-agent/internal/tts"
)

func serve(ctx context.Context, cfg *config.Config) error {
	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.GetLogger()

	logger.Info().
		Str("port", cfg.Port).
		Str("deepgram_model", cfg.DeepgramModel).
		Str("gemini_model", cfg.GeminiModel).
		Str("murf_voice", cfg.MurfVoiceID).
		Str("log_level", cfg.LogLevel).
		Bool("metrics_enabled", cfg.MetricsEnabled).
		Msg("Voice agent starting")

	if _, err := cfg.StreamURL(); err != nil {
		logger.Warn().Err(err).Msg("Stream URL will be derived from each webhook request's host")
	}

	generator, err := conversation.NewGeminiGenerator(ctx, cfg)
	if err != nil {
		return err
	}

	deps := telephony.Dependencies{
		Transcriber: stt.NewDeepgramClient(cfg),
		Generator:   generator,
		Synthesizer: tts.NewMurfClient(cfg),
	}

	mux := http.NewServeMux()
	mux.HandleFunc(cfg.VoicePath, telephony.HandleVoice(cfg))
	mux.HandleFunc(cfg.StreamPath, telephony.HandleTwilioWS(cfg, deps))
	mux.HandleFunc("/health", observability.HealthCheckHandler())
	mux.HandleFunc("/ready", observability.ReadinessHandler(map[string]observability.HealthCheckFunc{
		// Credential presence only; probing the APIs would cost money
		"deepgram": credentialCheck("DEEPGRAM_API_KEY", cfg.DeepgramAPIKey),
		"gemini":   credentialCheck("GEMINI_API_KEY", cfg.GeminiAPIKey),
		"murf":     credentialCheck("MURF_API_KEY", cfg.MurfAPIKey),
	}))

	if cfg.MetricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info().Msg("Prometheus metrics enabled at /metrics")
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info().
			Str("voice", cfg.VoicePath).
			Str("stream", cfg.StreamPath).
			Msg("Server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info().Msg("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info().Msg("Server exited gracefully")
	return nil
}

func credentialCheck(name, value string) observability.HealthCheckFunc {
	return func(ctx context.Context) (bool, error) {
		if strings.TrimSpace(value) == "" {
			return false, fmt.Errorf("%s is not set", name)
		}
		return true, nil
	}
}
