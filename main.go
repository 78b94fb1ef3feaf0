package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/mrsingh-rishi/voice-relay/config"
	"github.com/mrsingh-rishi/voice-relay/llm"
	"github.com/mrsingh-rishi/voice-relay/metrics"
	"github.com/mrsingh-rishi/voice-relay/ports"
	"github.com/mrsingh-rishi/voice-relay/session"
	"github.com/mrsingh-rishi/voice-relay/stt"
	"github.com/mrsingh-rishi/voice-relay/transcode"
	"github.com/mrsingh-rishi/voice-relay/transport"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	level, _ := cfg.Logging.FiberLevel()
	log.SetLevel(level)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	transcoder := transcode.NewFFmpeg(transcode.Config{
		Command:    cfg.Transcode.FFmpegPath,
		SampleRate: cfg.Transcode.SampleRate,
		Channels:   cfg.Transcode.Channels,
		Timeout:    cfg.Transcode.Timeout,
	})

	transcriber, err := newTranscriber(cfg)
	if err != nil {
		log.Fatalf("transcriber: %v", err)
	}

	transformer, err := llm.NewOpenAIClient(llm.Config{
		APIKey:             cfg.LLM.APIKey,
		BaseURL:            cfg.LLM.BaseURL,
		Model:              cfg.LLM.Model,
		SystemInstructions: cfg.LLM.SystemPrompt,
		MaxTokens:          cfg.LLM.MaxTokens,
		Temperature:        cfg.LLM.Temperature,
		Timeout:            cfg.LLM.Timeout,
		SentenceFragments:  cfg.LLM.SentenceFragments,
	})
	if err != nil {
		log.Fatalf("llm: %v", err)
	}

	orch := session.NewOrchestrator(transcoder, transcriber, transformer, m, session.Config{
		ScratchDir: cfg.Transcode.ScratchDir,
	})

	srv := transport.NewServer(transport.Config{
		AudioPath:   cfg.Server.AudioPath,
		CORSOrigins: cfg.Server.CORSOrigins,
		EventBuffer: cfg.Server.EventBuffer,
		CloseGrace:  cfg.Server.CloseGrace,
		AccessLog:   cfg.Server.AccessLog,
	}, orch, transcriber, m, reg)
	app := srv.App()

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
		log.Infof("shutting down")

		srv.Close()
		if err := app.ShutdownWithTimeout(cfg.Server.ShutdownTimeout); err != nil {
			log.Warnw("shutdown incomplete", "error", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Wait(ctx); err != nil {
			log.Warnw("pipelines still running at exit", "error", err)
		}
	}()

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Infof("voice relay listening on %s (audio websocket at %s, transcription via %s, model %s)",
		addr, cfg.Server.AudioPath, cfg.STT.Provider, cfg.LLM.Model)
	if err := app.Listen(addr); err != nil {
		log.Fatalf("listen: %v", err)
	}
	<-stopped
}

func newTranscriber(cfg config.Config) (ports.Transcriber, error) {
	switch cfg.STT.Provider {
	case config.ProviderOpenAI:
		return stt.NewWhisper(stt.WhisperConfig{
			APIKey:   cfg.LLM.APIKey,
			BaseURL:  cfg.LLM.BaseURL,
			Model:    cfg.STT.Model,
			Language: cfg.STT.Language,
			Timeout:  cfg.STT.Timeout,
		})
	default:
		return stt.NewReplicate(stt.ReplicateConfig{
			BaseURL:      cfg.STT.BaseURL,
			APIToken:     cfg.STT.APIToken,
			Model:        cfg.STT.Model,
			Version:      cfg.STT.Version,
			Language:     cfg.STT.Language,
			Timeout:      cfg.STT.Timeout,
			PollInterval: cfg.STT.PollInterval,
		})
	}
}
