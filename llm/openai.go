package llm

import (
	"context"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sashabaranov/go-openai"

	"github.com/mrsingh-rishi/voice-relay/model"
	"github.com/mrsingh-rishi/voice-relay/ports"
)

// DefaultSystemInstructions asks for a rewrite with the opposite meaning.
const DefaultSystemInstructions = `You rewrite transcripts of spoken audio. Produce a version that says the opposite of the original: reverse every claim, preference and fact so the meaning is inverted. Keep the same length, tone, tense and speaking style as the original so it reads like the speaker said it. Return only the rewritten text, with no preamble, quotes or explanation.`

// Config controls the chat completion request.
type Config struct {
	APIKey             string
	BaseURL            string
	Model              string
	SystemInstructions string
	MaxTokens          int
	Temperature        float32
	Timeout            time.Duration
	// SentenceFragments groups streamed tokens into whole sentences.
	SentenceFragments bool
}

type OpenAIClient struct {
	Client     *openai.Client
	cfg        Config
	sentenceRe *regexp.Regexp
}

func NewOpenAIClient(cfg Config) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("API key is required")
	}
	if cfg.Model == "" {
		return nil, errors.New("model is required")
	}
	if cfg.SystemInstructions == "" {
		cfg.SystemInstructions = DefaultSystemInstructions
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	// streams are bounded by the request context, not a client timeout
	clientCfg.HTTPClient = &http.Client{}

	return &OpenAIClient{
		Client:     openai.NewClientWithConfig(clientCfg),
		cfg:        cfg,
		sentenceRe: regexp.MustCompile(`[^\.!\?]*[\.!\?]`),
	}, nil
}

// Transform opens a streaming completion for text. The returned stream must
// be closed by the caller.
func (c *OpenAIClient) Transform(ctx context.Context, text string) (ports.FragmentStream, error) {
	cancel := context.CancelFunc(func() {})
	if c.cfg.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
	}

	req := openai.ChatCompletionRequest{
		Model: c.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: c.cfg.SystemInstructions},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
		Stream:      true,
	}

	stream, err := c.Client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		cancel()
		return nil, model.NewPipelineError(model.KindTransformation, errors.Wrap(err, "open completion stream"))
	}

	fs := &fragmentStream{stream: stream, cancel: cancel}
	if c.cfg.SentenceFragments {
		fs.sentenceRe = c.sentenceRe
	}
	return fs, nil
}

// fragmentStream adapts a chat completion stream to ports.FragmentStream.
type fragmentStream struct {
	stream     *openai.ChatCompletionStream
	cancel     context.CancelFunc
	sentenceRe *regexp.Regexp

	text    strings.Builder
	pending strings.Builder
	ready   []string
	eof     bool
	err     error
}

func (s *fragmentStream) Recv() (string, error) {
	for {
		if len(s.ready) > 0 {
			fragment := s.ready[0]
			s.ready = s.ready[1:]
			s.text.WriteString(fragment)
			return fragment, nil
		}
		if s.err != nil {
			return "", s.err
		}
		if s.eof {
			return "", io.EOF
		}

		resp, err := s.stream.Recv()
		if errors.Is(err, io.EOF) {
			s.eof = true
			if leftover := s.pending.String(); leftover != "" {
				s.ready = append(s.ready, leftover)
				s.pending.Reset()
			}
			continue
		}
		if err != nil {
			s.err = model.NewPipelineError(model.KindTransformation, errors.Wrap(err, "receive completion chunk")).
				WithPartial(s.text.String() + s.pending.String())
			return "", s.err
		}
		if len(resp.Choices) == 0 {
			continue
		}
		chunk := resp.Choices[0].Delta.Content
		if chunk == "" {
			continue
		}

		if s.sentenceRe == nil {
			s.text.WriteString(chunk)
			return chunk, nil
		}
		s.ready = append(s.ready, processChunk(&s.pending, chunk, s.sentenceRe)...)
	}
}

func (s *fragmentStream) Text() string {
	return s.text.String()
}

func (s *fragmentStream) Close() error {
	s.stream.Close()
	s.cancel()
	return nil
}

// processChunk appends new text and returns every complete sentence. Text
// after the last sentence boundary stays in buffer. Whitespace is kept so
// the fragments concatenate back to the exact model output.
func processChunk(
	buffer *strings.Builder,
	chunk string,
	sentenceRe *regexp.Regexp,
) []string {
	buffer.WriteString(chunk)
	text := buffer.String()

	var sentences []string
	for {
		loc := sentenceRe.FindStringIndex(text)
		if loc == nil {
			break
		}
		sentences = append(sentences, text[:loc[1]])
		text = text[loc[1]:]
	}

	// reset buffer to leftover
	buffer.Reset()
	buffer.WriteString(text)
	return sentences
}
