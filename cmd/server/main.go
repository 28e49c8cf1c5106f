package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"voice-workflow-recorder/internal/app"
	"voice-workflow-recorder/internal/config"
	"voice-workflow-recorder/internal/events"
	"voice-workflow-recorder/internal/observability"
	"voice-workflow-recorder/internal/service/audio"
	"voice-workflow-recorder/internal/service/correlation"
	"voice-workflow-recorder/internal/service/recorder"
	"voice-workflow-recorder/internal/service/stt"
	"voice-workflow-recorder/internal/service/stt/google"
	"voice-workflow-recorder/internal/service/stt/mock"
	"voice-workflow-recorder/internal/service/transport"

	apihttp "voice-workflow-recorder/internal/http"
)

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	application := app.New(cfg)
	if err := application.Start(); err != nil {
		log.Fatalf("application start failed: %v", err)
	}

	publisher := events.New(&events.Config{
		Enabled:         cfg.Kafka.Enabled,
		Brokers:         cfg.Kafka.Brokers,
		TopicCorrelated: cfg.Kafka.TopicCorrelated,
		TopicOrphan:     cfg.Kafka.TopicOrphan,
		Principal:       cfg.Kafka.Principal,
	})
	defer publisher.Close()

	svc := recorder.New(recorder.Config{
		Segmenter: audio.SegmenterConfig{
			SilenceThreshold:   cfg.SilenceThreshold,
			SilenceDuration:    cfg.SilenceDuration,
			MinSegmentDuration: cfg.MinSegmentDuration,
			MinSegmentBytes:    cfg.MinSegmentBytes,
		},
		PollInterval: cfg.PollInterval,
		Correlation: correlation.Options{
			Window:         cfg.CorrelationWindow,
			MinScore:       cfg.MinScore,
			StrictURLMatch: cfg.StrictURLMatch,
		},
		DrainWait: 200 * time.Millisecond,
	}, transcriberFactory(cfg), publisher)

	obsServer := observability.NewServer(":"+cfg.MetricsPort, svc.ActiveSessions)
	obsServer.Start()

	apiServer := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      apihttp.NewRouter(svc),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		application.Logger.Info().Str("addr", apiServer.Addr).Msg("capture API listening")
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http serve failed: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	application.Logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	svc.Shutdown(shutdownCtx)
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		application.Logger.Warn().Err(err).Msg("api server shutdown")
	}
	if err := obsServer.Shutdown(shutdownCtx); err != nil {
		application.Logger.Warn().Err(err).Msg("observability server shutdown")
	}
	application.Shutdown()
}

// transcriberFactory selects the voice channel implementation from config:
// the WebSocket collaborator by default, Google Cloud or the scripted mock
// behind the local STT bridge.
func transcriberFactory(cfg *config.Config) recorder.TranscriberFactory {
	switch cfg.STTProvider {
	case "google":
		return func(sessionId string) (recorder.Transcriber, error) {
			gcfg := google.DefaultConfig()
			gcfg.SampleRateHertz = int32(cfg.SampleRate)
			adapter, err := google.New(context.Background(), gcfg)
			if err != nil {
				return nil, err
			}
			return stt.NewBridge(stt.BridgeConfig{
				SessionID:       sessionId,
				MinSegmentBytes: cfg.MinSegmentBytes,
			}, adapter), nil
		}

	case "mock":
		return func(sessionId string) (recorder.Transcriber, error) {
			return stt.NewBridge(stt.BridgeConfig{
				SessionID:       sessionId,
				MinSegmentBytes: cfg.MinSegmentBytes,
			}, mock.New()), nil
		}

	default: // websocket
		return func(sessionId string) (recorder.Transcriber, error) {
			tcfg := transport.DefaultConfig(cfg.TranscriberWS, sessionId)
			tcfg.MimeType = cfg.MimeType
			tcfg.SampleRate = cfg.SampleRate
			tcfg.MinSegmentBytes = cfg.MinSegmentBytes
			tcfg.ReconnectBackoff = cfg.ReconnectBackoff
			tcfg.MaxReconnectAttempts = cfg.MaxReconnectAttempts
			return transport.NewClient(tcfg), nil
		}
	}
}
