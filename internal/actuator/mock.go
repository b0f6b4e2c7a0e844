package actuator

import (
	"errors"
	"sync"

	"github.com/ayusman/pinchvol/internal/calibration"
)

// ErrInjected is returned by Mock.SetLevel while failures are scripted.
var ErrInjected = errors.New("injected actuation failure")

// Mock is an in-memory Actuator recording every level it receives.
type Mock struct {
	rng      calibration.Range
	rangeErr error
	setErr   error
	failNext int
	levels   []float64
	closed   int
	mu       sync.Mutex
}

// NewMock creates a Mock reporting rng.
func NewMock(rng calibration.Range) *Mock {
	return &Mock{rng: rng}
}

func (m *Mock) Range() (calibration.Range, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rangeErr != nil {
		return calibration.Range{}, m.rangeErr
	}
	return m.rng, nil
}

// SetLevel records level unless a failure is configured.
// Failed attempts are not recorded.
func (m *Mock) SetLevel(level float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failNext > 0 {
		m.failNext--
		return ErrInjected
	}
	if m.setErr != nil {
		return m.setErr
	}
	m.levels = append(m.levels, level)
	return nil
}

func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed++
	return nil
}

// SetRangeError makes Range fail with err.
func (m *Mock) SetRangeError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rangeErr = err
}

// SetError makes every SetLevel fail with err. nil clears it.
func (m *Mock) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setErr = err
}

// FailNext makes the next n SetLevel calls fail with ErrInjected.
func (m *Mock) FailNext(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = n
}

// Levels returns a copy of the recorded levels.
func (m *Mock) Levels() []float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]float64, len(m.levels))
	copy(result, m.levels)
	return result
}

// CloseCount returns how often Close was called.
func (m *Mock) CloseCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
