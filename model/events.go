package model

import "encoding/json"

// Status labels an outbound event.
type Status string

const (
	StatusProcessing   Status = "processing"
	StatusTranscribing Status = "transcribing"
	StatusMisleading   Status = "misleading"
	StatusStreaming    Status = "streaming"
	StatusComplete     Status = "complete"
	StatusError        Status = "error"
)

// Event is one JSON frame sent back to the capture client.
type Event struct {
	Status     Status
	Message    string
	Original   string
	Chunk      string
	Misleading string
	Error      string

	hasOriginal bool
}

func StageEvent(status Status, message string) Event {
	return Event{Status: status, Message: message}
}

// StageEventWithOriginal is a stage event that also carries the transcript.
func StageEventWithOriginal(status Status, message, original string) Event {
	return Event{Status: status, Message: message, Original: original, hasOriginal: true}
}

func StreamingEvent(chunk, cumulative string) Event {
	return Event{Status: StatusStreaming, Chunk: chunk, Misleading: cumulative}
}

func CompleteEvent(original, misleading string) Event {
	return Event{Status: StatusComplete, Original: original, Misleading: misleading}
}

func ErrorEvent(message string) Event {
	return Event{Status: StatusError, Error: message}
}

// Terminal reports whether the client should stop expecting events.
func (e Event) Terminal() bool {
	return e.Status == StatusComplete || e.Status == StatusError
}

type stageFrame struct {
	Status   Status  `json:"status"`
	Message  string  `json:"message"`
	Original *string `json:"original,omitempty"`
}

type streamingFrame struct {
	Status     Status `json:"status"`
	Chunk      string `json:"chunk"`
	Misleading string `json:"misleading"`
}

type completeFrame struct {
	Status     Status `json:"status"`
	Original   string `json:"original"`
	Misleading string `json:"misleading"`
}

type errorFrame struct {
	Status Status `json:"status"`
	Error  string `json:"error"`
}

// MarshalJSON writes exactly the fields the client expects for each status.
func (e Event) MarshalJSON() ([]byte, error) {
	switch e.Status {
	case StatusStreaming:
		return json.Marshal(streamingFrame{Status: e.Status, Chunk: e.Chunk, Misleading: e.Misleading})
	case StatusComplete:
		return json.Marshal(completeFrame{Status: e.Status, Original: e.Original, Misleading: e.Misleading})
	case StatusError:
		return json.Marshal(errorFrame{Status: e.Status, Error: e.Error})
	default:
		frame := stageFrame{Status: e.Status, Message: e.Message}
		if e.hasOriginal {
			original := e.Original
			frame.Original = &original
		}
		return json.Marshal(frame)
	}
}
