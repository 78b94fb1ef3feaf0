package ports

import (
	"context"

	"github.com/mrsingh-rishi/voice-relay/model"
)

//go:generate mockgen -destination=../mocks/ports_mock.go -package=mocks github.com/mrsingh-rishi/voice-relay/ports Transcoder,Transcriber,Transformer,FragmentStream,EventSink

// Transcoder converts a captured container file into 16 kHz mono WAV.
type Transcoder interface {
	Convert(ctx context.Context, inputPath, outputPath string) error
}

// Transcriber turns audio into plain text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio model.AudioSource) (string, error)
}

// FragmentStream is a finite, non-restartable sequence of text fragments.
// Recv returns io.EOF after the last fragment. Text returns the concatenation
// of every fragment received so far.
type FragmentStream interface {
	Recv() (string, error)
	Text() string
	Close() error
}

// Transformer produces a streamed rewrite of a transcript.
type Transformer interface {
	Transform(ctx context.Context, text string) (FragmentStream, error)
}

// EventSink delivers session events to the client in emission order.
type EventSink interface {
	Emit(event model.Event)
}
