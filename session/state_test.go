package session

import "testing"

func TestStateTransitionsOnlyMoveForward(t *testing.T) {
	t.Parallel()

	allowed := map[State][]State{
		Capturing:    {Converting, Failed},
		Converting:   {Transcribing, Failed},
		Transcribing: {Transforming, Failed},
		Transforming: {Complete, Failed},
	}
	all := []State{Capturing, Converting, Transcribing, Transforming, Complete, Failed}

	for _, from := range all {
		for _, to := range all {
			want := false
			for _, next := range allowed[from] {
				if next == to {
					want = true
				}
			}
			if got := from.CanTransition(to); got != want {
				t.Fatalf("%s -> %s: got %v want %v", from, to, got, want)
			}
		}
	}
}

func TestStateTerminalAndString(t *testing.T) {
	t.Parallel()

	if !Complete.Terminal() || !Failed.Terminal() || Transforming.Terminal() {
		t.Fatalf("unexpected terminal classification")
	}
	if Transcribing.String() != "transcribing" || State(42).String() != "unknown" {
		t.Fatalf("unexpected names: %s %s", Transcribing, State(42))
	}
}
