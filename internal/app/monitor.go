package app

import (
	"sync"
	"time"

	"github.com/ayusman/pinchvol/internal/calibration"
)

// Stats are the counters of one loop run.
type Stats struct {
	Iterations          uint64 `json:"iterations"`
	Frames              uint64 `json:"frames"`
	HandsSeen           uint64 `json:"handsSeen"`
	Actuations          uint64 `json:"actuations"`
	ActuationErrors     uint64 `json:"actuationErrors"`
	AcquisitionFailures uint64 `json:"acquisitionFailures"`
}

// Status is a snapshot of the loop as seen from the outside.
type Status struct {
	State       LoopState         `json:"state"`
	Enabled     bool              `json:"enabled"`
	HandPresent bool              `json:"handPresent"`
	Distance    float64           `json:"distance"`
	Level       float64           `json:"level"`
	HasLevel    bool              `json:"hasLevel"`
	Range       calibration.Range `json:"range"`
	Stats       Stats             `json:"stats"`
	Updated     time.Time         `json:"updated"`
}

// Monitor holds the latest Status and fans it out to subscribers. Slow
// subscribers miss snapshots rather than blocking the loop, except for the
// terminated snapshot which is always delivered before the channel closes.
type Monitor struct {
	status      Status
	subscribers map[chan Status]struct{}
	mutex       sync.RWMutex
}

func NewMonitor() *Monitor {
	return &Monitor{
		status:      Status{State: StateInitializing, Enabled: true},
		subscribers: make(map[chan Status]struct{}),
	}
}

// Status returns the latest snapshot.
func (m *Monitor) Status() Status {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.status
}

// Update modifies the snapshot under the lock and publishes the result.
func (m *Monitor) Update(fn func(*Status)) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	fn(&m.status)
	m.status.Updated = time.Now()

	if m.status.State == StateTerminated {
		for ch := range m.subscribers {
			deliverLast(ch, m.status)
			delete(m.subscribers, ch)
		}
		return
	}

	for ch := range m.subscribers {
		select {
		case ch <- m.status:
		default:
		}
	}
}

// deliverLast sends status, evicting the oldest pending snapshot if the
// buffer is full, and closes ch. Only the publisher sends on ch.
func deliverLast(ch chan Status, status Status) {
	select {
	case ch <- status:
	default:
		select {
		case <-ch:
		default:
		}
		ch <- status
	}
	close(ch)
}

// Subscribe returns a channel receiving every published snapshot, starting
// with the current one, and a function that ends the subscription. The
// channel is closed after the terminated snapshot.
func (m *Monitor) Subscribe(buffer int) (<-chan Status, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Status, buffer)

	m.mutex.Lock()
	ch <- m.status
	if m.status.State == StateTerminated {
		close(ch)
	} else {
		m.subscribers[ch] = struct{}{}
	}
	m.mutex.Unlock()

	return ch, func() {
		m.mutex.Lock()
		defer m.mutex.Unlock()
		if _, ok := m.subscribers[ch]; ok {
			delete(m.subscribers, ch)
			close(ch)
		}
	}
}

// Subscribers returns the number of active subscriptions.
func (m *Monitor) Subscribers() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.subscribers)
}
