// Package app wires the camera, hand detector, calibration and actuator into
// the control loop of the pinch volume controller.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	log "github.com/echocat/slf4g"

	"github.com/ayusman/pinchvol/internal/actuator"
	"github.com/ayusman/pinchvol/internal/calibration"
	"github.com/ayusman/pinchvol/internal/capture"
	"github.com/ayusman/pinchvol/internal/detector"
	"github.com/ayusman/pinchvol/internal/display"
	"github.com/ayusman/pinchvol/internal/gesture"
)

// Loop defaults.
const (
	// DefaultMaxAcquisitionFailures is how many frame reads in a row may fail
	// before the loop gives up.
	DefaultMaxAcquisitionFailures = 10
	// DefaultCancelKey ends the loop when pressed in the preview window.
	DefaultCancelKey = "q"
	// DefaultPollInterval is how long each iteration waits for a key press.
	DefaultPollInterval = 10 * time.Millisecond
)

// Outcome classifies one iteration of the loop.
type Outcome uint8

const (
	// OutcomeActuated means a level was applied.
	OutcomeActuated = Outcome(0)
	// OutcomeHeld means no hand was seen; the previous level stands.
	OutcomeHeld = Outcome(1)
	// OutcomeTransient means the iteration failed but the loop continues.
	OutcomeTransient = Outcome(2)
	// OutcomeFatal means the loop must terminate.
	OutcomeFatal = Outcome(3)
)

func (o Outcome) String() string {
	switch o {
	case OutcomeActuated:
		return "actuated"
	case OutcomeHeld:
		return "held"
	case OutcomeTransient:
		return "transient"
	case OutcomeFatal:
		return "fatal"
	default:
		return fmt.Sprintf("illegal-outcome-%d", o)
	}
}

// IterationResult is what one Step produced.
type IterationResult struct {
	Outcome Outcome
	Signal  gesture.Signal
	// Level is the level applied, or attempted when Err is an ActuationError.
	// For held iterations it is the level still in effect.
	Level  float64
	Err    error
	Cancel bool
}

// LoopConfig tunes the failure policy and the cancel input.
type LoopConfig struct {
	MaxAcquisitionFailures int           `yaml:"maxAcquisitionFailures"`
	CancelKey              string        `yaml:"cancelKey,omitempty"`
	PollInterval           time.Duration `yaml:"pollInterval,omitempty"`
}

func DefaultLoopConfig() LoopConfig {
	return LoopConfig{
		MaxAcquisitionFailures: DefaultMaxAcquisitionFailures,
		CancelKey:              DefaultCancelKey,
		PollInterval:           DefaultPollInterval,
	}
}

// KeyCode returns the key code PollKey reports for CancelKey.
func (c LoopConfig) KeyCode() (int, error) {
	switch k := strings.ToLower(c.CancelKey); {
	case k == "esc" || k == "escape":
		return 27, nil
	case len(c.CancelKey) == 1:
		return int(c.CancelKey[0]), nil
	default:
		return 0, fmt.Errorf("cancel key must be a single character or esc, got %q", c.CancelKey)
	}
}

func (c LoopConfig) Validate() error {
	if c.MaxAcquisitionFailures < 0 {
		return fmt.Errorf("maxAcquisitionFailures must not be negative, got %d", c.MaxAcquisitionFailures)
	}
	if c.PollInterval < 0 {
		return fmt.Errorf("pollInterval must not be negative, got %v", c.PollInterval)
	}
	_, err := c.KeyCode()
	return err
}

// Resources are the collaborators a ControlLoop owns for its lifetime.
type Resources struct {
	Camera    capture.Camera
	Detector  detector.Detector
	Extractor gesture.Extractor
	Mapper    *calibration.Mapper
	Actuator  actuator.Actuator
	Display   display.Display
	Monitor   *Monitor
	// Unit is shown next to the level on the overlay.
	Unit string
}

// LoopOption customizes a ControlLoop.
type LoopOption func(*ControlLoop)

// WithTeardown replaces the default release of the loop resources. fn runs
// exactly once when the loop terminates.
func WithTeardown(fn func() error) LoopOption {
	return func(l *ControlLoop) {
		l.teardown = fn
	}
}

// ControlLoop drives camera -> detector -> extractor -> mapper -> actuator one
// frame at a time on the calling goroutine.
type ControlLoop struct {
	res       Resources
	config    LoopConfig
	cancelKey int

	state    LoopState
	failures int
	level    float64
	hasLevel bool
	stats    Stats
	enabled  atomic.Bool

	teardown func() error
	released bool
}

// NewControlLoop creates a loop in StateInitializing.
func NewControlLoop(res Resources, config LoopConfig, opts ...LoopOption) (*ControlLoop, error) {
	if res.Camera == nil {
		return nil, errors.New("control loop requires a camera")
	}
	if res.Detector == nil {
		return nil, errors.New("control loop requires a detector")
	}
	if res.Mapper == nil {
		return nil, errors.New("control loop requires a mapper")
	}
	if res.Actuator == nil {
		return nil, errors.New("control loop requires an actuator")
	}
	if res.Display == nil {
		res.Display = display.Headless{}
	}
	if res.Monitor == nil {
		res.Monitor = NewMonitor()
	}
	if res.Extractor == (gesture.Extractor{}) {
		res.Extractor = gesture.NewExtractor()
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.PollInterval == 0 {
		config.PollInterval = DefaultPollInterval
	}
	key, _ := config.KeyCode()

	l := &ControlLoop{
		res:       res,
		config:    config,
		cancelKey: key,
		state:     StateInitializing,
	}
	l.enabled.Store(true)
	for _, opt := range opts {
		opt(l)
	}

	l.publish(IterationResult{})
	return l, nil
}

// State returns the current state. Only the loop goroutine may call it while
// Run is active; use the Monitor from elsewhere.
func (l *ControlLoop) State() LoopState {
	return l.state
}

// Stats returns the counters collected so far.
func (l *ControlLoop) Stats() Stats {
	return l.stats
}

// Level returns the level in effect and whether any level was applied yet.
func (l *ControlLoop) Level() (float64, bool) {
	return l.level, l.hasLevel
}

// Monitor returns the status publisher of this loop.
func (l *ControlLoop) Monitor() *Monitor {
	return l.res.Monitor
}

// SetEnabled pauses or resumes detection. While paused every frame is
// treated as having no hand. Safe to call from any goroutine.
func (l *ControlLoop) SetEnabled(enabled bool) {
	if l.enabled.Swap(enabled) != enabled {
		log.With("enabled", enabled).Info("Gesture control toggled.")
	}
	l.res.Monitor.Update(func(s *Status) {
		s.Enabled = enabled
	})
}

// Enabled reports whether detection is active.
func (l *ControlLoop) Enabled() bool {
	return l.enabled.Load()
}

// Run executes iterations until the cancel key is pressed, ctx is done or an
// iteration is fatal. It releases every resource before returning, on every
// path, and leaves the loop in StateTerminated. A loop runs at most once.
func (l *ControlLoop) Run(ctx context.Context) error {
	if l.state != StateInitializing {
		return ErrTerminated
	}
	defer l.terminate()

	l.transition(StateRunning)
	log.With("cancelKey", l.config.CancelKey).
		With("maxAcquisitionFailures", l.config.MaxAcquisitionFailures).
		With("domain", l.res.Mapper.Domain()).
		With("range", l.res.Mapper.Range()).
		Info("Control loop running.")

	for {
		result := l.Step(ctx)
		if result.Outcome == OutcomeFatal {
			log.WithError(result.Err).
				With("iteration", l.stats.Iterations).
				Error("Control loop failed.")
			return result.Err
		}
		if result.Cancel {
			l.transition(StateCancelling)
			return nil
		}
	}
}

// Step runs exactly one iteration: acquire, detect, extract, map, actuate,
// render and poll for cancellation.
func (l *ControlLoop) Step(ctx context.Context) (result IterationResult) {
	if l.state == StateTerminated {
		return IterationResult{Outcome: OutcomeFatal, Err: ErrTerminated}
	}

	l.stats.Iterations++
	iteration := l.stats.Iterations

	defer func() {
		l.publish(result)
	}()
	defer func() {
		if r := recover(); r != nil {
			result = IterationResult{
				Outcome: OutcomeFatal,
				Level:   l.level,
				Err:     &UnexpectedError{Iteration: iteration, Cause: r},
			}
		}
	}()

	result = l.process()
	if result.Outcome != OutcomeFatal {
		result.Cancel = l.cancelRequested(ctx)
	}
	return result
}

func (l *ControlLoop) process() IterationResult {
	frame, err := l.res.Camera.ReadFrame()
	if err == nil && frame == nil {
		err = errors.New("camera returned no frame")
	}
	if err != nil {
		l.failures++
		l.stats.AcquisitionFailures++
		if l.failures > l.config.MaxAcquisitionFailures {
			return IterationResult{
				Outcome: OutcomeFatal,
				Level:   l.level,
				Err:     &AcquisitionError{Failures: l.failures, Err: err},
			}
		}
		log.WithError(err).
			With("failures", l.failures).
			With("max", l.config.MaxAcquisitionFailures).
			Warn("Cannot acquire frame.")
		return IterationResult{Outcome: OutcomeTransient, Level: l.level, Err: err}
	}
	defer frame.Close()

	if l.failures > 0 {
		log.With("failures", l.failures).Info("Frame acquisition recovered.")
		l.failures = 0
	}
	l.stats.Frames++

	result := IterationResult{Outcome: OutcomeHeld, Level: l.level}

	if l.enabled.Load() {
		hands, err := l.res.Detector.Detect(frame)
		if err != nil {
			log.WithError(err).Debug("Hand detection failed, treating frame as empty.")
			hands = nil
		}
		result.Signal = l.res.Extractor.Extract(hands, frame.Cols(), frame.Rows())
	}

	if result.Signal.Present {
		l.stats.HandsSeen++
		level := l.res.Mapper.Map(result.Signal.Distance)
		result.Level = level

		if err := l.res.Actuator.SetLevel(level); err != nil {
			l.stats.ActuationErrors++
			result.Outcome = OutcomeTransient
			result.Err = &ActuationError{Level: level, Err: err}
			log.WithError(err).
				With("level", level).
				Warn("Cannot apply level.")
		} else {
			l.stats.Actuations++
			l.level, l.hasLevel = level, true
			result.Outcome = OutcomeActuated
			log.With("distance", result.Signal.Distance).
				With("level", level).
				Trace("Level applied.")
		}
	}

	if err := l.res.Display.Render(frame, display.Overlay{
		Signal:   result.Signal,
		Level:    l.level,
		HasLevel: l.hasLevel,
		Unit:     l.res.Unit,
	}); err != nil {
		log.WithError(err).Debug("Cannot render frame.")
	}

	return result
}

func (l *ControlLoop) cancelRequested(ctx context.Context) bool {
	if key := l.res.Display.PollKey(l.config.PollInterval); key == l.cancelKey {
		log.With("key", l.config.CancelKey).Info("Cancel key pressed. Going down...")
		return true
	}
	if err := ctx.Err(); err != nil {
		log.WithError(err).Info("Cancellation requested. Going down...")
		return true
	}
	return false
}

func (l *ControlLoop) terminate() {
	if l.state != StateCancelling {
		l.transition(StateCancelling)
	}
	if err := l.release(); err != nil {
		log.WithError(err).Warn("Teardown finished with errors.")
	}
	l.transition(StateTerminated)
	log.With("stats", l.stats).Info("Control loop terminated.")
}

func (l *ControlLoop) release() error {
	if l.released {
		return nil
	}
	l.released = true

	if l.teardown != nil {
		return l.teardown()
	}
	return errors.Join(
		l.res.Display.Close(),
		l.res.Camera.Close(),
		l.res.Detector.Close(),
		l.res.Actuator.Close(),
	)
}

func (l *ControlLoop) transition(next LoopState) {
	if !l.state.canTransition(next) {
		log.With("from", l.state).
			With("to", next).
			Warn("Ignoring illegal loop state transition.")
		return
	}
	log.With("from", l.state).
		With("to", next).
		Debug("Loop state changed.")
	l.state = next
	l.res.Monitor.Update(func(s *Status) {
		s.State = next
	})
}

func (l *ControlLoop) publish(result IterationResult) {
	l.res.Monitor.Update(func(s *Status) {
		s.State = l.state
		s.Enabled = l.enabled.Load()
		s.HandPresent = result.Signal.Present
		s.Distance = result.Signal.Distance
		s.Level = l.level
		s.HasLevel = l.hasLevel
		s.Range = l.res.Mapper.Range()
		s.Stats = l.stats
	})
}
