package transport

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mrsingh-rishi/voice-relay/metrics"
	"github.com/mrsingh-rishi/voice-relay/model"
	"github.com/mrsingh-rishi/voice-relay/output"
	"github.com/mrsingh-rishi/voice-relay/ports"
	"github.com/mrsingh-rishi/voice-relay/session"
)

type Config struct {
	AudioPath   string
	CORSOrigins string
	EventBuffer int
	CloseGrace  time.Duration
	// AccessLog enables the request logger middleware.
	AccessLog bool
}

// Server owns the HTTP surface: the audio websocket plus health,
// direct transcription and metrics routes.
type Server struct {
	cfg         Config
	orch        *session.Orchestrator
	transcriber ports.Transcriber
	metrics     *metrics.Metrics
	gatherer    prometheus.Gatherer

	started time.Time
	active  atomic.Int64

	// base is the parent of every session context; Close cancels it.
	base      context.Context
	cancelAll context.CancelFunc
	pipelines sync.WaitGroup
}

func NewServer(
	cfg Config,
	orch *session.Orchestrator,
	transcriber ports.Transcriber,
	m *metrics.Metrics,
	gatherer prometheus.Gatherer,
) *Server {
	if cfg.AudioPath == "" {
		cfg.AudioPath = "/audio"
	}
	if cfg.CORSOrigins == "" {
		cfg.CORSOrigins = "*"
	}
	if cfg.EventBuffer < 1 {
		cfg.EventBuffer = 64
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	base, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:         cfg,
		orch:        orch,
		transcriber: transcriber,
		metrics:     m,
		gatherer:    gatherer,
		started:     time.Now(),
		base:        base,
		cancelAll:   cancel,
	}
}

// App builds the fiber application with every route registered.
func (s *Server) App() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "voice-relay",
		DisableStartupMessage: true,
	})

	app.Use(recover.New())
	if s.cfg.AccessLog {
		app.Use(logger.New())
	}
	app.Use(cors.New(cors.Config{AllowOrigins: s.cfg.CORSOrigins}))

	app.Get("/health", s.handleHealth)
	app.Post("/transcribe", s.handleTranscribe)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))

	// Middleware to require WebSocket upgrade on the audio path
	app.Use(s.cfg.AudioPath, func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get(s.cfg.AudioPath, websocket.New(s.handleAudio))

	return app
}

// Close cancels every live session. Pipelines still running observe the
// cancellation and finish as abandoned.
func (s *Server) Close() {
	s.cancelAll()
}

// Wait blocks until running pipelines finish or ctx is done.
func (s *Server) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.pipelines.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ActiveSessions reports the number of open audio connections.
func (s *Server) ActiveSessions() int64 {
	return s.active.Load()
}

func (s *Server) handleAudio(c *websocket.Conn) {
	sess := session.New()
	ctx, cancel := context.WithCancel(s.base)

	out, err := output.NewClientOutput(sess.ID, c, s.cfg.EventBuffer, s.cfg.CloseGrace)
	if err != nil {
		cancel()
		log.Errorw("output setup failed", "session", sess.ID, "error", err)
		return
	}
	out.Start()

	s.active.Add(1)
	s.metrics.SessionOpened()
	log.Infow("session opened", "session", sess.ID, "remote", c.RemoteAddr().String())

	defer func() {
		cancel()
		out.Stop()
		if sess.State() == session.Capturing {
			s.metrics.RecordOutcome(metrics.OutcomeAbandoned)
		}
		s.metrics.SessionClosed()
		s.active.Add(-1)
		log.Infow("session closed",
			"session", sess.ID,
			"state", sess.State(),
			"frames", sess.FrameCount(),
			"elapsed", time.Since(sess.CreatedAt))
	}()

	for {
		_, msg, err := c.ReadMessage()
		if err != nil {
			s.logReadEnd(sess, err)
			return
		}
		s.metrics.FrameReceived()

		if ctrl, ok := model.ParseControl(msg); ok {
			if !ctrl.IsStop() {
				log.Debugw("control ignored", "session", sess.ID, "type", ctrl.Type)
				continue
			}
			s.trigger(ctx, sess, out)
			continue
		}

		if !sess.Append(msg) {
			log.Debugw("frame dropped", "session", sess.ID, "state", sess.State(), "bytes", len(msg))
		}
	}
}

func (s *Server) trigger(ctx context.Context, sess *session.Session, out *output.ClientOutput) {
	s.pipelines.Add(1)
	done := s.orch.Trigger(ctx, sess, out)
	if done == nil {
		s.pipelines.Done()
		log.Debugw("stop ignored", "session", sess.ID, "state", sess.State())
		return
	}
	log.Infow("capture stopped", "session", sess.ID, "frames", sess.FrameCount())
	go func() {
		<-done
		s.pipelines.Done()
	}()
}

func (s *Server) logReadEnd(sess *session.Session, err error) {
	if websocket.IsUnexpectedCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
	) && !sess.State().Terminal() {
		transportErr := model.NewPipelineError(model.KindTransport, err)
		log.Warnw("connection lost", "session", sess.ID, "state", sess.State(), "error", transportErr)
		return
	}
	log.Debugw("connection closed", "session", sess.ID, "error", err)
}

type healthResponse struct {
	Status         string  `json:"status"`
	Timestamp      string  `json:"timestamp"`
	Uptime         float64 `json:"uptime"`
	ActiveSessions int64   `json:"activeSessions"`
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(healthResponse{
		Status:         "ok",
		Timestamp:      time.Now().UTC().Format(time.RFC3339),
		Uptime:         time.Since(s.started).Seconds(),
		ActiveSessions: s.active.Load(),
	})
}

type transcribeRequest struct {
	AudioURL string `json:"audioUrl"`
}

type transcribeResponse struct {
	Text string `json:"text"`
}

// handleTranscribe transcribes audio the engine fetches by reference.
func (s *Server) handleTranscribe(c *fiber.Ctx) error {
	var req transcribeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON"})
	}
	url := strings.TrimSpace(req.AudioURL)
	if url == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "`audioUrl` field is required"})
	}

	ctx, cancel := context.WithCancel(s.base)
	defer cancel()
	text, err := s.transcriber.Transcribe(ctx, model.RemoteAudio(url))
	if err != nil {
		log.Warnw("direct transcription failed", "url", url, "error", err)
		s.metrics.RecordFailure(string(model.KindTranscription))
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(transcribeResponse{Text: text})
}
