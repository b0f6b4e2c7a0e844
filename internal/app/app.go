package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync/atomic"

	"dario.cat/mergo"
	log "github.com/echocat/slf4g"
	"github.com/gofrs/flock"

	"github.com/ayusman/pinchvol/internal/actuator"
	"github.com/ayusman/pinchvol/internal/calibration"
	"github.com/ayusman/pinchvol/internal/capture"
	"github.com/ayusman/pinchvol/internal/detector"
	"github.com/ayusman/pinchvol/internal/display"
	"github.com/ayusman/pinchvol/internal/gesture"
	"github.com/ayusman/pinchvol/internal/plugin"
	"github.com/ayusman/pinchvol/internal/store"
)

// Factories create the devices the loop drives. Tests replace them with mocks.
type Factories struct {
	Camera   func(capture.Config) capture.Camera
	Detector func(detector.Config) (detector.Detector, error)
	Actuator func(context.Context, ActuatorConfig) (actuator.Actuator, error)
	Display  func(DisplayConfig) (display.Display, error)
}

func DefaultFactories() Factories {
	return Factories{
		Camera: capture.NewCamera,
		Detector: func(config detector.Config) (detector.Detector, error) {
			return detector.NewMediaPipeDetector(config)
		},
		Actuator: OpenActuator,
		Display: func(config DisplayConfig) (display.Display, error) {
			if config.Headless {
				return display.Headless{}, nil
			}
			return display.NewWindow(config.Title), nil
		},
	}
}

// OpenActuator opens the actuator selected by config.
func OpenActuator(ctx context.Context, config ActuatorConfig) (actuator.Actuator, error) {
	switch config.Kind.Resolve() {
	case actuator.KindEndpoint:
		return actuator.OpenEndpoint()
	case actuator.KindPlugin:
		manager := plugin.NewManager(config.PluginDir)
		if err := manager.Discover(); err != nil {
			return nil, fmt.Errorf("cannot discover plugins in %s: %w", config.PluginDir, err)
		}
		return actuator.OpenPlugin(ctx, manager, plugin.NewExecutor(config.Timeout), config.Plugin, config.Device)
	default:
		return nil, fmt.Errorf("unsupported actuator kind %v", config.Kind)
	}
}

// UnitOf names the unit of the levels the actuator kind accepts.
func UnitOf(kind actuator.Kind) string {
	switch kind.Resolve() {
	case actuator.KindEndpoint:
		return "dB"
	case actuator.KindPlugin:
		return "%"
	default:
		return ""
	}
}

// App owns the lifecycle of one control loop: Initialize acquires every
// resource, Run drives the loop and Dispose releases whatever is left.
type App struct {
	ConfigurationFile string
	Factories         Factories
	Monitor           *Monitor

	configFromFlags Configuration
	explicitFlags   *ExplicitFlags
	unmirrored      bool
	config          Configuration
	configured      bool

	lock    *flock.Flock
	journal *store.Store
	session *store.Session
	devices closerStack
	mapper  *calibration.Mapper
	loop    atomic.Pointer[ControlLoop]
}

func NewApp() *App {
	return &App{
		Factories: DefaultFactories(),
		Monitor:   NewMonitor(),
	}
}

func (a *App) SetupConfiguration(using FlagHolder) {
	a.explicitFlags = a.configFromFlags.SetupConfiguration(using)

	using.Flag("configuration", "Defines the file from which the configuration should be loaded and/or stored to.").
		Short('c').
		Envar("PINCHVOL_CONFIGURATION").
		StringVar(&a.ConfigurationFile)
	using.Flag("camera.unmirrored", "Do not flip frames horizontally.").
		Envar("PINCHVOL_CAMERA_UNMIRRORED").
		BoolVar(&a.unmirrored)
}

// SetConfiguration bypasses file and flag loading.
func (a *App) SetConfiguration(config Configuration) {
	a.config = config
	a.configured = true
}

// Configuration returns the effective configuration, loading it on first use.
func (a *App) Configuration() (Configuration, error) {
	if err := a.loadConfiguration(); err != nil {
		return Configuration{}, err
	}
	return a.config, nil
}

func (a *App) configurationFile() string {
	if a.ConfigurationFile != "" {
		return a.ConfigurationFile
	}
	return DefaultConfigurationFile()
}

func (a *App) loadConfiguration() error {
	if a.configured {
		return nil
	}

	config := NewConfiguration()
	if err := config.loadFromFile(a.configurationFile(), true); err != nil {
		return err
	}
	if err := mergo.Merge(&config, a.configFromFlags, mergo.WithOverride); err != nil {
		return err
	}
	a.explicitFlags.Apply(&config, &a.configFromFlags)
	if a.unmirrored {
		config.Camera.Mirror = false
	}

	a.config = config
	a.configured = true
	return nil
}

// Execute runs Initialize, Run and Dispose on one locked OS thread; COM and
// the preview window are bound to the thread that created them.
func (a *App) Execute(ctx context.Context) (rErr error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if err := a.Initialize(ctx); err != nil {
		return err
	}
	defer func() {
		if err := a.Dispose(); err != nil && rErr == nil {
			rErr = err
		}
	}()

	return a.Run(ctx)
}

// Initialize acquires the instance lock, the journal, camera, actuator,
// mapper, detector and display, in this order. On failure everything
// acquired so far is released and a *StartupError is returned.
func (a *App) Initialize(ctx context.Context) (rErr error) {
	if a.Monitor == nil {
		a.Monitor = NewMonitor()
	}

	success := false
	defer func() {
		if !success {
			a.finishSession(store.ExitStartup, rErr)
			if err := a.Dispose(); err != nil {
				log.WithError(err).Warn("Cannot release resources after failed startup.")
			}
		}
	}()

	fail := func(component string, err error) error {
		return &StartupError{Component: component, Err: err}
	}

	if err := a.loadConfiguration(); err != nil {
		return fail("configuration", err)
	}
	config := a.config
	if err := config.Validate(); err != nil {
		return fail("configuration", err)
	}

	if err := a.acquireLock(config.LockFile); err != nil {
		return fail("lock", err)
	}

	if !config.Journal.Disabled {
		journal, err := store.New(config.Journal.File)
		if err != nil {
			return fail("journal", err)
		}
		a.journal = journal
		session := &store.Session{
			Actuator:  config.Actuator.Kind.Resolve().String(),
			DomainMin: config.Calibration.Domain.Min,
			DomainMax: config.Calibration.Domain.Max,
		}
		if err := journal.Sessions().Create(session); err != nil {
			return fail("journal", err)
		}
		a.session = session
	}

	camera := a.Factories.Camera(config.Camera)
	if err := camera.Open(); err != nil {
		return fail("camera", err)
	}
	a.devices.push("camera", camera.Close)

	act, err := a.Factories.Actuator(ctx, config.Actuator)
	if err != nil {
		return fail("actuator", err)
	}
	a.devices.push("actuator", act.Close)

	rng, err := act.Range()
	if err != nil {
		return fail("actuator", err)
	}
	if a.session != nil {
		a.session.RangeMin, a.session.RangeMax = rng.Min, rng.Max
	}

	mapper, err := calibration.NewMapper(config.Calibration.Domain, rng, calibration.WithExponent(config.Calibration.Exponent))
	if err != nil {
		return fail("calibration", err)
	}
	a.mapper = mapper

	det, err := a.Factories.Detector(config.Detector)
	if err != nil {
		return fail("detector", err)
	}
	a.devices.push("detector", det.Close)

	disp, err := a.Factories.Display(config.Display)
	if err != nil {
		return fail("display", err)
	}
	a.devices.push("display", disp.Close)

	loop, err := NewControlLoop(Resources{
		Camera:    camera,
		Detector:  det,
		Extractor: gesture.NewExtractor(),
		Mapper:    mapper,
		Actuator:  act,
		Display:   disp,
		Monitor:   a.Monitor,
		Unit:      UnitOf(config.Actuator.Kind),
	}, config.Loop, WithTeardown(a.devices.closeAll))
	if err != nil {
		return fail("loop", err)
	}
	a.loop.Store(loop)

	if err := a.saveConf(); err != nil {
		log.WithError(err).Warn("Cannot save configuration.")
	}

	log.With("camera", config.Camera.DeviceID).
		With("actuator", config.Actuator.Kind.Resolve()).
		With("range", rng).
		With("domain", config.Calibration.Domain).
		Info("Initialized.")

	success = true
	return nil
}

// Run drives the loop until it is cancelled or fails and records the outcome
// in the journal. The loop releases the devices before Run returns.
func (a *App) Run(ctx context.Context) error {
	loop := a.loop.Load()
	if loop == nil {
		return errors.New("app not initialized")
	}

	err := loop.Run(ctx)
	if err != nil {
		a.finishSession(store.ExitFatal, err)
	} else {
		a.finishSession(store.ExitCancelled, nil)
	}
	return err
}

// SetEnabled pauses or resumes gesture control. Safe from any goroutine.
func (a *App) SetEnabled(enabled bool) {
	if loop := a.loop.Load(); loop != nil {
		loop.SetEnabled(enabled)
	}
}

// Enabled reports whether gesture control is active.
func (a *App) Enabled() bool {
	if loop := a.loop.Load(); loop != nil {
		return loop.Enabled()
	}
	return false
}

// Session returns the journal entry of the current run, if journaling is enabled.
func (a *App) Session() *store.Session {
	return a.session
}

// Dispose releases every resource still held. It is safe to call more than once.
func (a *App) Dispose() (rErr error) {
	if err := a.devices.closeAll(); err != nil {
		rErr = err
	}

	if a.journal != nil {
		if err := a.journal.Close(); err != nil && rErr == nil {
			rErr = err
		}
		a.journal = nil
	}

	if a.lock != nil {
		if err := a.lock.Unlock(); err != nil && rErr == nil {
			rErr = err
		}
		a.lock = nil
	}

	return rErr
}

func (a *App) acquireLock(path string) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock %s: %w", path, err)
	}
	if !ok {
		return fmt.Errorf("%w: lock %s is held", ErrAlreadyRunning, path)
	}
	a.lock = lock
	return nil
}

func (a *App) finishSession(reason store.ExitReason, cause error) {
	if a.journal == nil || a.session == nil || a.session.EndedAt != nil {
		return
	}

	s := a.session
	s.ExitReason = reason
	if cause != nil {
		s.Error = cause.Error()
	}
	if loop := a.loop.Load(); loop != nil {
		stats := loop.Stats()
		s.Frames = stats.Frames
		s.HandsSeen = stats.HandsSeen
		s.Actuations = stats.Actuations
		s.ActuationErrors = stats.ActuationErrors
		s.AcquisitionFailures = stats.AcquisitionFailures
	}

	if err := a.journal.Sessions().Finish(s); err != nil {
		log.WithError(err).
			With("session", s.ID).
			Warn("Cannot record session.")
		return
	}
	log.With("session", s.ID).
		With("reason", reason).
		Debug("Session recorded.")
}

func (a *App) saveConf() error {
	if a.config.PreventAutoSave {
		log.Debug("Automatically save of configuration disabled.")
		return nil
	}

	fn := a.configurationFile()
	_, err := os.Stat(fn)
	if err == nil {
		return nil
	}
	if !os.IsNotExist(err) {
		return err
	}

	if err := a.config.saveToFile(fn); err != nil {
		return err
	}

	log.With("file", fn).Info("Configuration saved.")
	return nil
}
