package chat

import (
	"fmt"

	"go.uber.org/zap"
)

// State is a step of one chat turn.
type State int

const (
	StateReceived State = iota
	StateRetrieving
	StateContextAssembly
	StateGenerating
	StateStreaming
	StateCompleted
	StateFailed
	StateCancelled
)

var stateNames = map[State]string{
	StateReceived:        "received",
	StateRetrieving:      "retrieving",
	StateContextAssembly: "context_assembly",
	StateGenerating:      "generating",
	StateStreaming:       "streaming",
	StateCompleted:       "completed",
	StateFailed:          "failed",
	StateCancelled:       "cancelled",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// transitions lists the forward moves; Failed is reachable from every
// non-terminal state and is checked separately.
var transitions = map[State][]State{
	StateReceived:        {StateRetrieving, StateContextAssembly},
	StateRetrieving:      {StateContextAssembly},
	StateContextAssembly: {StateGenerating},
	StateGenerating:      {StateStreaming},
	StateStreaming:       {StateCompleted, StateCancelled},
}

// CanTransition reports whether a turn may move from s to next.
func (s State) CanTransition(next State) bool {
	if s.Terminal() {
		return false
	}
	if next == StateFailed {
		return true
	}
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// machine tracks the state of one turn. It is owned by a single goroutine at
// a time: the request goroutine until streaming starts, then the producer.
type machine struct {
	state  State
	logger *zap.Logger
}

func newMachine(logger *zap.Logger) *machine {
	return &machine{state: StateReceived, logger: logger}
}

// to moves to next. An illegal move is a programming error and panics.
func (m *machine) to(next State) {
	if !m.state.CanTransition(next) {
		panic(fmt.Sprintf("chat: illegal transition %s -> %s", m.state, next))
	}
	m.logger.Debug("chat state", zap.Stringer("from", m.state), zap.Stringer("to", next))
	m.state = next
}

// fail moves to Failed unless the turn already ended.
func (m *machine) fail(err error) {
	if m.state.Terminal() {
		return
	}
	m.logger.Debug("chat state", zap.Stringer("from", m.state), zap.Stringer("to", StateFailed), zap.Error(err))
	m.state = StateFailed
}
