package output

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/pkg/errors"

	"github.com/mrsingh-rishi/voice-relay/model"
)

type fakeConn struct {
	mu       sync.Mutex
	frames   []string
	control  []int
	deadline time.Time
	failAt   int
}

func (c *fakeConn) WriteJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failAt > 0 && len(c.frames)+1 == c.failAt {
		return errors.New("broken pipe")
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.frames = append(c.frames, string(data))
	return nil
}

func (c *fakeConn) WriteMessage(messageType int, _ []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.control = append(c.control, messageType)
	return nil
}

func (c *fakeConn) SetReadDeadline(t time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deadline = t
	return nil
}

func (c *fakeConn) snapshot() ([]string, []int, time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.frames...), append([]int(nil), c.control...), c.deadline
}

func waitDone(t *testing.T, o *ClientOutput) {
	t.Helper()
	select {
	case <-o.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("writer did not exit")
	}
}

func TestClientOutputWritesInOrderAndCloses(t *testing.T) {
	t.Parallel()

	conn := &fakeConn{}
	out, err := NewClientOutput("s1", conn, 2, time.Second)
	if err != nil {
		t.Fatalf("new output: %v", err)
	}
	out.Start()

	out.Emit(model.StageEvent(model.StatusProcessing, "Processing audio..."))
	out.Emit(model.StreamingEvent("a", "a"))
	out.Emit(model.StreamingEvent("b", "ab"))
	out.Emit(model.CompleteEvent("x", "ab"))
	waitDone(t, out)

	frames, control, deadline := conn.snapshot()
	want := []string{
		`{"status":"processing","message":"Processing audio..."}`,
		`{"status":"streaming","chunk":"a","misleading":"a"}`,
		`{"status":"streaming","chunk":"b","misleading":"ab"}`,
		`{"status":"complete","original":"x","misleading":"ab"}`,
	}
	if len(frames) != len(want) {
		t.Fatalf("expected %d frames, got %v", len(want), frames)
	}
	for i := range want {
		if frames[i] != want[i] {
			t.Fatalf("frame %d: want %s, got %s", i, want[i], frames[i])
		}
	}
	if len(control) != 1 || control[0] != websocket.CloseMessage {
		t.Fatalf("expected one close frame, got %v", control)
	}
	if deadline.IsZero() {
		t.Fatalf("read deadline not set after terminal event")
	}

	out.Emit(model.ErrorEvent("late"))
	out.Stop()
	if frames, _, _ := conn.snapshot(); len(frames) != len(want) {
		t.Fatalf("event after terminal must not be written, got %v", frames)
	}
}

func TestClientOutputDropsAfterStop(t *testing.T) {
	t.Parallel()

	conn := &fakeConn{}
	out, err := NewClientOutput("s2", conn, 4, 0)
	if err != nil {
		t.Fatalf("new output: %v", err)
	}
	out.Start()
	out.Stop()
	out.Stop()

	out.Emit(model.StageEvent(model.StatusProcessing, "late"))
	if frames, _, _ := conn.snapshot(); len(frames) != 0 {
		t.Fatalf("expected no frames after stop, got %v", frames)
	}
}

func TestClientOutputStopWithoutStart(t *testing.T) {
	t.Parallel()

	out, err := NewClientOutput("s3", &fakeConn{}, 1, 0)
	if err != nil {
		t.Fatalf("new output: %v", err)
	}
	out.Stop()
	waitDone(t, out)
	out.Start()
	out.Emit(model.ErrorEvent("ignored"))
}

func TestClientOutputWriteFailure(t *testing.T) {
	t.Parallel()

	conn := &fakeConn{failAt: 2}
	out, err := NewClientOutput("s4", conn, 4, 0)
	if err != nil {
		t.Fatalf("new output: %v", err)
	}
	out.Start()
	out.Emit(model.StageEvent(model.StatusProcessing, "one"))
	out.Emit(model.StageEvent(model.StatusTranscribing, "two"))
	waitDone(t, out)

	if !errors.Is(out.Err(), model.ErrTransportFailure) {
		t.Fatalf("expected transport failure, got %v", out.Err())
	}
	out.Emit(model.StageEvent(model.StatusMisleading, "three"))
	if frames, _, _ := conn.snapshot(); len(frames) != 1 {
		t.Fatalf("expected only the first frame, got %v", frames)
	}
}

func TestNewClientOutputRequiresConn(t *testing.T) {
	t.Parallel()

	if _, err := NewClientOutput("s5", nil, 1, 0); err == nil {
		t.Fatalf("expected error for nil connection")
	}
}
