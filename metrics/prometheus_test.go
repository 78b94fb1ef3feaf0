package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsRecord(t *testing.T) {
	t.Parallel()

	m := New(prometheus.NewRegistry())

	m.SessionOpened()
	m.SessionOpened()
	m.SessionClosed()
	m.FrameReceived()
	m.RecordOutcome(OutcomeComplete)
	m.RecordFailure("conversion_error")
	m.RecordFailure("conversion_error")
	m.ObserveStage("convert", 20*time.Millisecond)
	m.ObserveAudio(10_000)

	if got := testutil.ToFloat64(m.SessionsActive); got != 1 {
		t.Fatalf("unexpected active sessions: %v", got)
	}
	if got := testutil.ToFloat64(m.FramesReceived); got != 1 {
		t.Fatalf("unexpected frame count: %v", got)
	}
	if got := testutil.ToFloat64(m.SessionsTotal.WithLabelValues(OutcomeComplete)); got != 1 {
		t.Fatalf("unexpected complete count: %v", got)
	}
	if got := testutil.ToFloat64(m.StageFailures.WithLabelValues("conversion_error")); got != 2 {
		t.Fatalf("unexpected failure count: %v", got)
	}
	if got := testutil.CollectAndCount(m.StageDuration); got != 1 {
		t.Fatalf("expected one stage series, got %d", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	t.Parallel()

	var m *Metrics
	m.SessionOpened()
	m.SessionClosed()
	m.FrameReceived()
	m.RecordOutcome(OutcomeFailed)
	m.RecordFailure("no_audio")
	m.ObserveStage("transcribe", time.Second)
	m.ObserveAudio(1)
}
