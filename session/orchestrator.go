package session

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/pkg/errors"

	"github.com/mrsingh-rishi/voice-relay/metrics"
	"github.com/mrsingh-rishi/voice-relay/model"
	"github.com/mrsingh-rishi/voice-relay/ports"
)

// Messages attached to stage events.
const (
	MessageProcessing   = "Processing audio..."
	MessageTranscribing = "Transcribing audio..."
	MessageMisleading   = "Creating misleading version..."
)

// Config controls where scratch artifacts are written.
type Config struct {
	ScratchDir string
}

// Orchestrator drives sessions from stop signal to a terminal event.
// It holds no per-session state and may serve any number of sessions.
type Orchestrator struct {
	transcoder  ports.Transcoder
	transcriber ports.Transcriber
	transformer ports.Transformer
	metrics     *metrics.Metrics
	cfg         Config
}

func NewOrchestrator(
	transcoder ports.Transcoder,
	transcriber ports.Transcriber,
	transformer ports.Transformer,
	m *metrics.Metrics,
	cfg Config,
) *Orchestrator {
	return &Orchestrator{
		transcoder:  transcoder,
		transcriber: transcriber,
		transformer: transformer,
		metrics:     m,
		cfg:         cfg,
	}
}

// Trigger handles a stop signal. It returns nil when the signal is ignored
// because the session already left Capturing. Otherwise the returned channel
// is closed once the session is terminal. The pipeline runs in its own
// goroutine so the caller can keep reading its connection.
func (o *Orchestrator) Trigger(ctx context.Context, s *Session, sink ports.EventSink) <-chan struct{} {
	switch s.Stop() {
	case StopIgnored:
		return nil
	case StopNoAudio:
		o.report(ctx, s, sink, model.NewPipelineError(model.KindNoAudio, nil))
		done := make(chan struct{})
		close(done)
		return done
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = o.Run(ctx, s, sink)
	}()
	return done
}

// Run executes convert, transcribe and transform for a session that has just
// entered Converting. Every stage failure ends in exactly one error event;
// the returned error is informational and already reported.
func (o *Orchestrator) Run(ctx context.Context, s *Session, sink ports.EventSink) error {
	if state := s.State(); state != Converting {
		return errors.Errorf("session %s: cannot run pipeline from %s", s.ID, state)
	}

	scratch := NewScratch(o.cfg.ScratchDir, s.ID)
	defer func() {
		if err := scratch.Remove(); err != nil {
			log.Warnw("scratch cleanup failed", "session", s.ID, "error", err)
		}
	}()

	if err := o.pipeline(ctx, s, scratch, sink); err != nil {
		o.report(ctx, s, sink, err)
		return err
	}

	o.metrics.RecordOutcome(metrics.OutcomeComplete)
	log.Infow("session complete",
		"session", s.ID,
		"original_len", len(s.Original()),
		"misleading_len", len(s.Transformed()),
		"elapsed", time.Since(s.CreatedAt))
	return nil
}

func (o *Orchestrator) pipeline(ctx context.Context, s *Session, scratch *Scratch, sink ports.EventSink) error {
	sink.Emit(model.StageEvent(model.StatusProcessing, MessageProcessing))
	pcm, err := o.convert(ctx, s, scratch)
	if err != nil {
		return model.Classify(err, model.KindConversion)
	}

	if err := s.advance(Transcribing); err != nil {
		return model.Classify(err, model.KindTranscription)
	}
	sink.Emit(model.StageEvent(model.StatusTranscribing, MessageTranscribing))
	text, err := o.transcribe(ctx, pcm)
	if err != nil {
		return model.Classify(err, model.KindTranscription)
	}

	if err := s.beginTransform(text); err != nil {
		return model.Classify(err, model.KindTransformation)
	}
	sink.Emit(model.StageEventWithOriginal(model.StatusMisleading, MessageMisleading, text))
	if err := o.transform(ctx, s, text, sink); err != nil {
		pe := model.Classify(err, model.KindTransformation)
		if pe.Partial == "" {
			pe.WithPartial(s.Transformed())
		}
		return pe
	}

	if err := s.advance(Complete); err != nil {
		return model.Classify(err, model.KindTransformation)
	}
	sink.Emit(model.CompleteEvent(s.Original(), s.Transformed()))
	return nil
}

func (o *Orchestrator) convert(ctx context.Context, s *Session, scratch *Scratch) ([]byte, error) {
	defer o.observe("convert", time.Now())

	audio, err := s.Audio()
	if err != nil {
		return nil, err
	}
	o.metrics.ObserveAudio(len(audio))

	rawPath, err := scratch.WriteRaw(audio)
	if err != nil {
		return nil, err
	}
	if err := o.transcoder.Convert(ctx, rawPath, scratch.ConvertedPath()); err != nil {
		return nil, err
	}
	pcm, err := os.ReadFile(scratch.ConvertedPath())
	if err != nil {
		return nil, errors.Wrap(err, "read converted audio")
	}
	log.Debugw("audio converted", "session", s.ID, "raw_bytes", len(audio), "wav_bytes", len(pcm))
	return pcm, nil
}

func (o *Orchestrator) transcribe(ctx context.Context, pcm []byte) (string, error) {
	defer o.observe("transcribe", time.Now())

	if err := ctx.Err(); err != nil {
		return "", err
	}
	return o.transcriber.Transcribe(ctx, model.InlineAudio(pcm, "audio/wav"))
}

func (o *Orchestrator) transform(ctx context.Context, s *Session, text string, sink ports.EventSink) error {
	defer o.observe("transform", time.Now())

	if err := ctx.Err(); err != nil {
		return err
	}
	stream, err := o.transformer.Transform(ctx, text)
	if err != nil {
		return err
	}
	defer stream.Close()

	for {
		fragment, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if fragment == "" {
			continue
		}
		sink.Emit(model.StreamingEvent(fragment, s.appendTransformed(fragment)))
	}
}

// report moves the session to Failed and emits its single error event.
func (o *Orchestrator) report(ctx context.Context, s *Session, sink ports.EventSink, err error) {
	var pe *model.PipelineError
	if !errors.As(err, &pe) {
		pe = model.NewPipelineError(model.KindConversion, err)
	}
	s.fail(pe.Kind)
	sink.Emit(model.ErrorEvent(pe.Error()))
	o.metrics.RecordFailure(string(pe.Kind))

	if ctx.Err() != nil {
		o.metrics.RecordOutcome(metrics.OutcomeAbandoned)
		log.Infow("session abandoned", "session", s.ID, "kind", pe.Kind, "error", pe)
		return
	}
	o.metrics.RecordOutcome(metrics.OutcomeFailed)
	log.Warnw("session failed", "session", s.ID, "kind", pe.Kind, "error", pe, "partial", pe.Partial)
}

func (o *Orchestrator) observe(stage string, start time.Time) {
	o.metrics.ObserveStage(stage, time.Since(start))
}
