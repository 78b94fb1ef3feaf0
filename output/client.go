package output

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/websocket/v2"
	"github.com/pkg/errors"

	"github.com/mrsingh-rishi/voice-relay/model"
)

// Conn is the part of a websocket connection the writer needs.
type Conn interface {
	WriteJSON(v interface{}) error
	WriteMessage(messageType int, data []byte) error
	SetReadDeadline(t time.Time) error
}

// ClientOutput serializes session events onto one websocket. Emit never
// writes to the connection itself; a single writer goroutine does, so frames
// leave in emission order.
type ClientOutput struct {
	ctx        context.Context
	cancel     context.CancelFunc
	events     chan model.Event
	conn       Conn
	sessionID  string
	closeGrace time.Duration

	done    chan struct{}
	mu      sync.Mutex
	started bool
	stopped bool
	err     error
}

func NewClientOutput(sessionID string, conn Conn, buffer int, closeGrace time.Duration) (*ClientOutput, error) {
	if conn == nil {
		return nil, errors.New("websocket connection is required")
	}
	if buffer < 1 {
		buffer = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &ClientOutput{
		ctx:        ctx,
		cancel:     cancel,
		events:     make(chan model.Event, buffer),
		conn:       conn,
		sessionID:  sessionID,
		closeGrace: closeGrace,
		done:       make(chan struct{}),
	}, nil
}

// Emit queues an event. It blocks while the buffer is full and drops the
// event once the output is stopped.
func (o *ClientOutput) Emit(ev model.Event) {
	if o.ctx.Err() != nil {
		log.Debugw("event dropped after close", "session", o.sessionID, "status", ev.Status)
		return
	}
	select {
	case o.events <- ev:
	case <-o.ctx.Done():
		log.Debugw("event dropped after close", "session", o.sessionID, "status", ev.Status)
	}
}

func (o *ClientOutput) Start() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.started || o.stopped {
		return
	}
	o.started = true
	go o.run()
}

func (o *ClientOutput) run() {
	defer close(o.done)
	for {
		select {
		case <-o.ctx.Done():
			return
		case ev := <-o.events:
			if err := o.conn.WriteJSON(ev); err != nil {
				o.setErr(model.NewPipelineError(model.KindTransport, errors.Wrapf(err, "write %s event", ev.Status)))
				log.Warnw("event write failed", "session", o.sessionID, "status", ev.Status, "error", err)
				o.cancel()
				return
			}
			if ev.Terminal() {
				o.finish()
				return
			}
		}
	}
}

// finish asks the client to close after the terminal event. The read
// deadline unblocks the handler if the client never answers.
func (o *ClientOutput) finish() {
	defer o.cancel()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session finished")
	if err := o.conn.WriteMessage(websocket.CloseMessage, msg); err != nil {
		log.Debugw("close frame write failed", "session", o.sessionID, "error", err)
	}
	if o.closeGrace > 0 {
		if err := o.conn.SetReadDeadline(time.Now().Add(o.closeGrace)); err != nil {
			log.Debugw("read deadline failed", "session", o.sessionID, "error", err)
		}
	}
}

// Stop discards queued events and waits for the writer to exit. The
// connection may not be written to once Stop returns.
func (o *ClientOutput) Stop() {
	o.cancel()

	o.mu.Lock()
	first := !o.stopped
	o.stopped = true
	started := o.started
	o.mu.Unlock()

	if !started && first {
		close(o.done)
	}
	<-o.done
}

// Done is closed when the writer exits.
func (o *ClientOutput) Done() <-chan struct{} {
	return o.done
}

// Err reports the write failure that stopped the writer, if any.
func (o *ClientOutput) Err() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.err
}

func (o *ClientOutput) setErr(err error) {
	o.mu.Lock()
	o.err = err
	o.mu.Unlock()
}
