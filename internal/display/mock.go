package display

import (
	"errors"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// ErrRenderFailed is returned by Mock.Render when failures are enabled.
var ErrRenderFailed = errors.New("render failed")

// Mock is a Display recording overlays and replaying scripted key presses.
type Mock struct {
	overlays   []Overlay
	keys       []int
	polls      int
	failRender bool
	closed     int
	mu         sync.Mutex
}

// NewMock creates a Mock that returns keys from successive PollKey calls and
// NoKey once they are exhausted.
func NewMock(keys ...int) *Mock {
	return &Mock{keys: keys}
}

func (m *Mock) Render(frame *gocv.Mat, overlay Overlay) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.overlays = append(m.overlays, overlay)
	if m.failRender {
		return ErrRenderFailed
	}
	return nil
}

func (m *Mock) PollKey(time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.polls++
	if len(m.keys) == 0 {
		return NoKey
	}
	key := m.keys[0]
	m.keys = m.keys[1:]
	return key
}

func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed++
	return nil
}

// PressAfter scripts key to be returned by the poll following n more polls
// without a key press.
func (m *Mock) PressAfter(n int, key int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys = m.keys[:0]
	for i := 0; i < n; i++ {
		m.keys = append(m.keys, NoKey)
	}
	m.keys = append(m.keys, key)
}

// FailRender makes every Render call fail.
func (m *Mock) FailRender(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failRender = fail
}

// Overlays returns a copy of every overlay rendered so far.
func (m *Mock) Overlays() []Overlay {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]Overlay, len(m.overlays))
	copy(result, m.overlays)
	return result
}

// Polls returns how often PollKey was called.
func (m *Mock) Polls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.polls
}

// CloseCount returns how often Close was called.
func (m *Mock) CloseCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
