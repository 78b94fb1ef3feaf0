package stt

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pkg/errors"

	"github.com/mrsingh-rishi/voice-relay/model"
)

func TestWhisperJoinsSegments(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/transcriptions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		if got := r.FormValue("response_format"); got != "verbose_json" {
			t.Errorf("unexpected format: %q", got)
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			t.Errorf("missing file: %v", err)
		} else {
			data, _ := io.ReadAll(file)
			if string(data) != "wav-bytes" {
				t.Errorf("unexpected upload: %q", data)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"task":"transcribe","language":"english","duration":1.5,"text":"a b","segments":[{"id":0,"start":0,"end":0.7,"text":" a"},{"id":1,"start":0.7,"end":1.5,"text":" b"}]}`))
	}))
	defer srv.Close()

	w, err := NewWhisper(WhisperConfig{APIKey: "key", BaseURL: srv.URL + "/v1"})
	if err != nil {
		t.Fatalf("new whisper: %v", err)
	}
	text, err := w.Transcribe(context.Background(), model.InlineAudio([]byte("wav-bytes"), "audio/wav"))
	if err != nil {
		t.Fatalf("transcribe failed: %v", err)
	}
	if text != "a b" {
		t.Fatalf("unexpected text: %q", text)
	}
}

func TestWhisperRejectsRemoteAudio(t *testing.T) {
	t.Parallel()

	w, err := NewWhisper(WhisperConfig{APIKey: "key"})
	if err != nil {
		t.Fatalf("new whisper: %v", err)
	}
	_, err = w.Transcribe(context.Background(), model.RemoteAudio("https://example.com/a.wav"))
	if !errors.Is(err, model.ErrTranscriptionFailed) {
		t.Fatalf("expected transcription error, got %v", err)
	}
}

func TestWhisperServerErrorIsTranscriptionError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
	}))
	defer srv.Close()

	w, _ := NewWhisper(WhisperConfig{APIKey: "key", BaseURL: srv.URL + "/v1"})
	_, err := w.Transcribe(context.Background(), model.InlineAudio([]byte("x"), ""))
	if !errors.Is(err, model.ErrTranscriptionFailed) {
		t.Fatalf("expected transcription error, got %v", err)
	}
}
