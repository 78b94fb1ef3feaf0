package session

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/mrsingh-rishi/voice-relay/buffer"
	"github.com/mrsingh-rishi/voice-relay/model"
)

// StopOutcome is the result of a stop signal.
type StopOutcome int

const (
	// StopIgnored means the session had already left Capturing.
	StopIgnored StopOutcome = iota
	// StopNoAudio means nothing was buffered; the session is now Failed.
	StopNoAudio
	// StopStarted means the buffer is sealed and the session is Converting.
	StopStarted
)

// Session is one client's capture-to-transformed-text lifecycle, scoped to
// one websocket connection.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu          sync.Mutex
	state       State
	failure     model.ErrorKind
	frames      *buffer.Frames
	original    string
	transformed strings.Builder
}

func New() *Session {
	return &Session{
		ID:        uuid.NewString(),
		CreatedAt: time.Now(),
		state:     Capturing,
		frames:    buffer.New(),
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Failure returns the error kind once the session has Failed.
func (s *Session) Failure() model.ErrorKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failure
}

// Append buffers one frame. It returns false when the frame was dropped
// because capture has ended or the frame is empty.
func (s *Session) Append(chunk []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Capturing {
		return false
	}
	return s.frames.Append(chunk) == nil
}

// FrameCount returns the number of buffered frames.
func (s *Session) FrameCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames.Len()
}

// Stop ends capture. Only the first call while Capturing has any effect.
func (s *Session) Stop() StopOutcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Capturing {
		return StopIgnored
	}
	s.frames.Seal()
	if s.frames.IsEmpty() {
		s.state = Failed
		s.failure = model.KindNoAudio
		return StopNoAudio
	}
	s.state = Converting
	return StopStarted
}

// Audio returns the sealed capture as one byte sequence.
func (s *Session) Audio() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.frames.Sealed() {
		return nil, errors.Errorf("session %s: capture still open", s.ID)
	}
	return s.frames.Bytes(), nil
}

func (s *Session) advance(to State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.state.CanTransition(to) {
		return errors.Errorf("session %s: illegal transition %s -> %s", s.ID, s.state, to)
	}
	s.state = to
	return nil
}

func (s *Session) fail(kind model.ErrorKind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Terminal() {
		return
	}
	s.state = Failed
	s.failure = kind
}

// beginTransform records the transcript and enters Transforming.
func (s *Session) beginTransform(original string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.state.CanTransition(Transforming) {
		return errors.Errorf("session %s: illegal transition %s -> %s", s.ID, s.state, Transforming)
	}
	s.original = original
	s.state = Transforming
	return nil
}

// appendTransformed grows the transformed text and returns it.
func (s *Session) appendTransformed(fragment string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Transforming {
		return s.transformed.String()
	}
	s.transformed.WriteString(fragment)
	return s.transformed.String()
}

func (s *Session) Original() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.original
}

func (s *Session) Transformed() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transformed.String()
}
