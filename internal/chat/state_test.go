package chat

import "testing"

func TestState_CanTransition(t *testing.T) {
	tests := []struct {
		from, to State
		want     bool
	}{
		{StateReceived, StateRetrieving, true},
		{StateReceived, StateContextAssembly, true},
		{StateReceived, StateGenerating, false},
		{StateRetrieving, StateContextAssembly, true},
		{StateContextAssembly, StateGenerating, true},
		{StateGenerating, StateStreaming, true},
		{StateStreaming, StateCompleted, true},
		{StateStreaming, StateCancelled, true},
		{StateGenerating, StateCancelled, false},
		{StateRetrieving, StateCancelled, false},
		{StateRetrieving, StateFailed, true},
		{StateStreaming, StateFailed, true},
		{StateCompleted, StateFailed, false},
		{StateFailed, StateReceived, false},
		{StateCancelled, StateCompleted, false},
	}
	for _, tt := range tests {
		if got := tt.from.CanTransition(tt.to); got != tt.want {
			t.Errorf("%s -> %s = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestState_String(t *testing.T) {
	if StateContextAssembly.String() != "context_assembly" {
		t.Errorf("got %q", StateContextAssembly.String())
	}
	if State(42).String() != "state(42)" {
		t.Errorf("got %q", State(42).String())
	}
}
