package model

import (
	"strings"
	"testing"

	"github.com/pkg/errors"
)

func TestPipelineErrorIsMatchesKind(t *testing.T) {
	t.Parallel()

	err := errors.Wrap(NewPipelineError(KindTranscription, errors.New("status 502")), "stage")
	if !errors.Is(err, ErrTranscriptionFailed) {
		t.Fatalf("expected transcription kind match")
	}
	if errors.Is(err, ErrConversionFailed) {
		t.Fatalf("unexpected conversion kind match")
	}
	if !strings.Contains(err.Error(), "Transcription failed: status 502") {
		t.Fatalf("unexpected message: %q", err.Error())
	}
}

func TestClassify(t *testing.T) {
	t.Parallel()

	if Classify(nil, KindConversion) != nil {
		t.Fatalf("nil must stay nil")
	}

	plain := Classify(errors.New("exit status 1"), KindConversion)
	if plain.Kind != KindConversion {
		t.Fatalf("unexpected kind: %s", plain.Kind)
	}

	same := NewPipelineError(KindTransformation, errors.New("eof")).WithPartial("half")
	if got := Classify(same, KindTransformation); got != same {
		t.Fatalf("same-kind error should pass through")
	}

	other := Classify(same, KindTranscription)
	if other.Kind != KindTranscription || other.Partial != "half" {
		t.Fatalf("unexpected remap: %+v", other)
	}
	if !errors.Is(other, ErrTransformationFailed) {
		t.Fatalf("remapped error should still unwrap to its origin")
	}
}

func TestAudioSourceReference(t *testing.T) {
	t.Parallel()

	inline := InlineAudio([]byte("hi"), "")
	if got := inline.Reference(); got != "data:audio/wav;base64,aGk=" {
		t.Fatalf("unexpected data uri: %s", got)
	}
	remote := RemoteAudio(" https://example.com/a.wav ")
	if remote.IsInline() || remote.Reference() != "https://example.com/a.wav" {
		t.Fatalf("unexpected remote reference: %+v", remote)
	}
}
