package stt

import (
	"bytes"
	"context"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/sashabaranov/go-openai"

	"github.com/mrsingh-rishi/voice-relay/model"
)

// WhisperConfig configures transcription through an OpenAI-compatible
// audio endpoint.
type WhisperConfig struct {
	APIKey   string
	BaseURL  string
	Model    string
	Language string
	Timeout  time.Duration
}

// Whisper uploads inline audio to the transcription endpoint. It cannot
// fetch audio by reference.
type Whisper struct {
	Client *openai.Client
	cfg    WhisperConfig
}

func NewWhisper(cfg WhisperConfig) (*Whisper, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = openai.Whisper1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	return &Whisper{Client: openai.NewClientWithConfig(clientCfg), cfg: cfg}, nil
}

func (w *Whisper) Transcribe(ctx context.Context, audio model.AudioSource) (string, error) {
	if !audio.IsInline() {
		return "", model.NewPipelineError(model.KindTranscription, errors.New("whisper backend needs inline audio"))
	}

	resp, err := w.Client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    w.cfg.Model,
		FilePath: "audio.wav",
		Reader:   bytes.NewReader(audio.Data),
		Format:   openai.AudioResponseFormatVerboseJSON,
		Language: w.cfg.Language,
	})
	if err != nil {
		return "", model.NewPipelineError(model.KindTranscription, errors.Wrap(err, "create transcription"))
	}

	segments := make([]Segment, 0, len(resp.Segments))
	for _, s := range resp.Segments {
		segments = append(segments, Segment{Start: s.Start, End: s.End, Text: s.Text})
	}
	return JoinSegments(segments), nil
}
