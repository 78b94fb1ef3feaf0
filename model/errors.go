package model

import "github.com/pkg/errors"

// ErrorKind classifies why a session failed.
type ErrorKind string

const (
	KindNoAudio        ErrorKind = "no_audio"
	KindConversion     ErrorKind = "conversion_error"
	KindTranscription  ErrorKind = "transcription_error"
	KindTransformation ErrorKind = "transformation_error"
	KindTransport      ErrorKind = "transport_failure"
)

var kindLabels = map[ErrorKind]string{
	KindNoAudio:        "No audio captured",
	KindConversion:     "Audio conversion failed",
	KindTranscription:  "Transcription failed",
	KindTransformation: "Creating misleading version failed",
	KindTransport:      "Connection failed",
}

// Sentinels for errors.Is; they match any PipelineError of the same kind.
var (
	ErrNoAudio              = &PipelineError{Kind: KindNoAudio}
	ErrConversionFailed     = &PipelineError{Kind: KindConversion}
	ErrTranscriptionFailed  = &PipelineError{Kind: KindTranscription}
	ErrTransformationFailed = &PipelineError{Kind: KindTransformation}
	ErrTransportFailure     = &PipelineError{Kind: KindTransport}
)

// PipelineError is a failure at one stage of a session. Partial carries any
// transformed text accumulated before a mid-stream failure.
type PipelineError struct {
	Kind    ErrorKind
	Partial string
	cause   error
}

func NewPipelineError(kind ErrorKind, cause error) *PipelineError {
	return &PipelineError{Kind: kind, cause: cause}
}

// WithPartial records text produced before the failure.
func (e *PipelineError) WithPartial(partial string) *PipelineError {
	e.Partial = partial
	return e
}

func (e *PipelineError) Error() string {
	label, ok := kindLabels[e.Kind]
	if !ok {
		label = string(e.Kind)
	}
	if e.cause == nil {
		return label
	}
	return label + ": " + e.cause.Error()
}

func (e *PipelineError) Unwrap() error {
	return e.cause
}

// Cause satisfies the pkg/errors causer interface.
func (e *PipelineError) Cause() error {
	return e.cause
}

func (e *PipelineError) Is(target error) bool {
	t, ok := target.(*PipelineError)
	if !ok {
		return false
	}
	return t.cause == nil && t.Kind == e.Kind
}

// Classify maps err onto kind. A PipelineError of the same kind is returned
// as is; anything else is wrapped so the caller always sees kind.
func Classify(err error, kind ErrorKind) *PipelineError {
	if err == nil {
		return nil
	}
	var pe *PipelineError
	if errors.As(err, &pe) {
		if pe.Kind == kind {
			return pe
		}
		return &PipelineError{Kind: kind, Partial: pe.Partial, cause: pe}
	}
	return NewPipelineError(kind, err)
}
