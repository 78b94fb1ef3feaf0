package stt

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/valyala/fasthttp"

	"github.com/mrsingh-rishi/voice-relay/model"
)

// ReplicateConfig configures a hosted prediction API in the style of
// Replicate: a named model plus an input object.
type ReplicateConfig struct {
	BaseURL      string
	APIToken     string
	Model        string // owner/name
	Version      string // optional; pins a model version
	Language     string
	Timeout      time.Duration
	PollInterval time.Duration
}

// Replicate transcribes audio through a prediction API.
type Replicate struct {
	cfg    ReplicateConfig
	client *fasthttp.Client
}

type predictionRequest struct {
	Version string         `json:"version,omitempty"`
	Input   map[string]any `json:"input"`
}

type prediction struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output"`
	Error  any             `json:"error"`
	URLs   struct {
		Get string `json:"get"`
	} `json:"urls"`
}

type transcriptOutput struct {
	Segments []Segment `json:"segments"`
}

func NewReplicate(cfg ReplicateConfig) (*Replicate, error) {
	if strings.TrimSpace(cfg.APIToken) == "" {
		return nil, errors.New("replicate API token is required")
	}
	if cfg.Model == "" && cfg.Version == "" {
		return nil, errors.New("replicate model or version is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.replicate.com"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	return &Replicate{
		cfg: cfg,
		client: &fasthttp.Client{
			Name:                "voice-relay",
			MaxIdleConnDuration: 90 * time.Second,
		},
	}, nil
}

// Transcribe submits a prediction, waits for it to finish and joins the
// returned segments.
func (r *Replicate) Transcribe(ctx context.Context, audio model.AudioSource) (string, error) {
	text, err := r.transcribe(ctx, audio)
	if err != nil {
		return "", model.NewPipelineError(model.KindTranscription, err)
	}
	return text, nil
}

func (r *Replicate) transcribe(ctx context.Context, audio model.AudioSource) (string, error) {
	deadline := time.Now().Add(r.cfg.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	input := map[string]any{"audio": audio.Reference()}
	if r.cfg.Language != "" {
		input["language"] = r.cfg.Language
	}
	body, err := json.Marshal(predictionRequest{Version: r.cfg.Version, Input: input})
	if err != nil {
		return "", errors.Wrap(err, "encode prediction request")
	}

	var pred prediction
	if err := r.do(ctx, fasthttp.MethodPost, r.createURL(), body, deadline, &pred); err != nil {
		return "", err
	}

	for !terminal(pred.Status) {
		if pred.URLs.Get == "" {
			return "", errors.Errorf("prediction %s is %s with no poll url", pred.ID, pred.Status)
		}
		timer := time.NewTimer(r.cfg.PollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", ctx.Err()
		case <-timer.C:
		}
		log.Debugw("polling prediction", "prediction", pred.ID, "status", pred.Status)
		if err := r.do(ctx, fasthttp.MethodGet, pred.URLs.Get, nil, deadline, &pred); err != nil {
			return "", err
		}
	}

	if pred.Status != "succeeded" {
		return "", errors.Errorf("prediction %s %s: %v", pred.ID, pred.Status, pred.Error)
	}
	return decodeTranscript(pred.Output)
}

func (r *Replicate) createURL() string {
	if r.cfg.Version != "" {
		return r.cfg.BaseURL + "/v1/predictions"
	}
	return r.cfg.BaseURL + "/v1/models/" + r.cfg.Model + "/predictions"
}

func (r *Replicate) do(ctx context.Context, method, url string, body []byte, deadline time.Time, out *prediction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	timeout := time.Until(deadline)
	if timeout <= 0 {
		return errors.New("transcription timed out")
	}

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(url)
	req.Header.SetMethod(method)
	req.Header.Set("Authorization", "Bearer "+r.cfg.APIToken)
	req.Header.Set("X-Request-Id", uuid.NewString())
	if body != nil {
		req.Header.SetContentType("application/json")
		req.Header.Set("Prefer", "wait")
		req.SetBody(body)
	}

	if err := r.client.DoTimeout(req, resp, timeout); err != nil {
		if errors.Is(err, fasthttp.ErrTimeout) {
			return errors.Wrapf(err, "%s %s timed out", method, url)
		}
		return errors.Wrapf(err, "%s %s", method, url)
	}

	status := resp.StatusCode()
	if status < 200 || status > 299 {
		return errors.Errorf("%s %s: status %d: %s", method, url, status, snippet(resp.Body()))
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return errors.Wrap(err, "malformed prediction response")
	}
	return nil
}

func decodeTranscript(raw json.RawMessage) (string, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return "", nil
	}
	var out transcriptOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", errors.Wrap(err, "malformed transcription output")
	}
	return JoinSegments(out.Segments), nil
}

func terminal(status string) bool {
	switch status {
	case "succeeded", "failed", "canceled":
		return true
	}
	return false
}

func snippet(body []byte) string {
	const limit = 256
	s := strings.TrimSpace(string(body))
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}
