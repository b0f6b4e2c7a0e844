package app

import (
	"fmt"
	"strings"
)

// LoopState is the lifecycle state of the ControlLoop.
type LoopState uint8

const (
	StateInitializing = LoopState(0)
	StateRunning      = LoopState(1)
	StateCancelling   = LoopState(2)
	StateTerminated   = LoopState(3)
)

var (
	AllStates = LoopStates{
		StateInitializing,
		StateRunning,
		StateCancelling,
		StateTerminated,
	}
)

func (s *LoopState) Set(plain string) error {
	switch strings.TrimSpace(strings.ToLower(plain)) {
	case "initializing":
		*s = StateInitializing
		return nil
	case "running":
		*s = StateRunning
		return nil
	case "cancelling":
		*s = StateCancelling
		return nil
	case "terminated":
		*s = StateTerminated
		return nil
	default:
		return fmt.Errorf("illegal-loop-state: %s", plain)
	}
}

func (s LoopState) String() string {
	v, err := s.MarshalText()
	if err != nil {
		return fmt.Sprintf("illegal-loop-state-%d", s)
	}
	return string(v)
}

func (s LoopState) MarshalText() (text []byte, err error) {
	switch s {
	case StateInitializing:
		return []byte("initializing"), nil
	case StateRunning:
		return []byte("running"), nil
	case StateCancelling:
		return []byte("cancelling"), nil
	case StateTerminated:
		return []byte("terminated"), nil
	default:
		return nil, fmt.Errorf("illegal loop state: %d", s)
	}
}

func (s *LoopState) UnmarshalText(text []byte) error {
	return s.Set(string(text))
}

// canTransition reports whether the loop may move from s to next.
// Terminated is final.
func (s LoopState) canTransition(next LoopState) bool {
	switch s {
	case StateInitializing:
		return next == StateRunning || next == StateCancelling
	case StateRunning:
		return next == StateCancelling
	case StateCancelling:
		return next == StateTerminated
	default:
		return false
	}
}

type LoopStates []LoopState

func (s LoopStates) Strings() []string {
	result := make([]string, len(s))
	for i, v := range s {
		result[i] = v.String()
	}
	return result
}

func (s LoopStates) String() string {
	return strings.Join(s.Strings(), ",")
}
