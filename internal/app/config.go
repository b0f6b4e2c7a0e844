package app

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"gopkg.in/yaml.v3"

	"github.com/ayusman/pinchvol/internal/actuator"
	"github.com/ayusman/pinchvol/internal/calibration"
	"github.com/ayusman/pinchvol/internal/capture"
	"github.com/ayusman/pinchvol/internal/detector"
	"github.com/ayusman/pinchvol/internal/display"
	"github.com/ayusman/pinchvol/internal/plugin"
)

// FlagHolder is implemented by kingpin applications and commands.
type FlagHolder interface {
	Flag(name, help string) *kingpin.FlagClause
}

// CalibrationConfig is the distance domain mapped onto the actuator range.
type CalibrationConfig struct {
	Domain   calibration.Domain `yaml:",inline"`
	Exponent float64            `yaml:"exponent,omitempty"`
}

// ActuatorConfig selects and configures the volume actuator.
type ActuatorConfig struct {
	Kind      actuator.Kind `yaml:"kind,omitempty"`
	Plugin    string        `yaml:"plugin,omitempty"`
	PluginDir string        `yaml:"pluginDir,omitempty"`
	Device    string        `yaml:"device,omitempty"`
	Timeout   time.Duration `yaml:"timeout,omitempty"`
}

type DisplayConfig struct {
	Headless bool   `yaml:"headless,omitempty"`
	Title    string `yaml:"title,omitempty"`
}

type JournalConfig struct {
	Disabled bool   `yaml:"disabled,omitempty"`
	File     string `yaml:"file,omitempty"`
}

type Configuration struct {
	PreventAutoSave bool `yaml:"preventAutoSave"`

	Camera      capture.Config    `yaml:"camera"`
	Detector    detector.Config   `yaml:"detector,omitempty"`
	Calibration CalibrationConfig `yaml:"calibration"`
	Actuator    ActuatorConfig    `yaml:"actuator"`
	Loop        LoopConfig        `yaml:"loop"`
	Display     DisplayConfig     `yaml:"display,omitempty"`
	Journal     JournalConfig     `yaml:"journal,omitempty"`

	Listen   string `yaml:"listen,omitempty"`
	Tray     bool   `yaml:"tray,omitempty"`
	LockFile string `yaml:"lockFile,omitempty"`
}

// NewConfiguration returns the defaults every other source is layered on.
func NewConfiguration() Configuration {
	home := homeDirectory()
	return Configuration{
		Camera:   capture.DefaultConfig(),
		Detector: detector.DefaultConfig(),
		Calibration: CalibrationConfig{
			Domain:   calibration.DefaultDomain,
			Exponent: 1,
		},
		Actuator: ActuatorConfig{
			Kind:      actuator.KindAuto,
			Plugin:    "volume-control",
			PluginDir: filepath.Join(home, "plugins"),
			Timeout:   plugin.DefaultTimeout,
		},
		Loop: DefaultLoopConfig(),
		Display: DisplayConfig{
			Title: display.DefaultTitle,
		},
		Journal: JournalConfig{
			File: filepath.Join(home, "journal.db"),
		},
		LockFile: filepath.Join(home, "pinchvol.lock"),
	}
}

// SetupConfiguration binds the configuration flags to c. The returned
// ExplicitFlags knows which of them were actually given.
func (c *Configuration) SetupConfiguration(using FlagHolder) *ExplicitFlags {
	e := &ExplicitFlags{}
	e.flag(using, "preventAutoSave", "If provided configuration will NOT automatically be saved when absent.", "PINCHVOL_PREVENT_AUTO_SAVE", func(dst, src *Configuration) {
		dst.PreventAutoSave = src.PreventAutoSave
	}).BoolVar(&c.PreventAutoSave)

	e.flag(using, "camera.device", "Index of the camera device to capture from.", "PINCHVOL_CAMERA_DEVICE", func(dst, src *Configuration) {
		dst.Camera.DeviceID = src.Camera.DeviceID
	}).IntVar(&c.Camera.DeviceID)
	e.flag(using, "camera.width", "Requested frame width in pixels.", "PINCHVOL_CAMERA_WIDTH", func(dst, src *Configuration) {
		dst.Camera.Width = src.Camera.Width
	}).IntVar(&c.Camera.Width)
	e.flag(using, "camera.height", "Requested frame height in pixels.", "PINCHVOL_CAMERA_HEIGHT", func(dst, src *Configuration) {
		dst.Camera.Height = src.Camera.Height
	}).IntVar(&c.Camera.Height)
	e.flag(using, "camera.fps", "Requested capture frame rate.", "PINCHVOL_CAMERA_FPS", func(dst, src *Configuration) {
		dst.Camera.FPS = src.Camera.FPS
	}).IntVar(&c.Camera.FPS)

	e.flag(using, "detector.script", "Location of mediapipe_service.py.", "PINCHVOL_DETECTOR_SCRIPT", func(dst, src *Configuration) {
		dst.Detector.Script = src.Detector.Script
	}).StringVar(&c.Detector.Script)
	e.flag(using, "detector.python", "Python interpreter running the detector service.", "PINCHVOL_DETECTOR_PYTHON", func(dst, src *Configuration) {
		dst.Detector.Python = src.Detector.Python
	}).StringVar(&c.Detector.Python)
	e.flag(using, "detector.minConfidence", "Minimum hand detection confidence (0-1).", "PINCHVOL_DETECTOR_MIN_CONFIDENCE", func(dst, src *Configuration) {
		dst.Detector.MinConfidence = src.Detector.MinConfidence
	}).Float64Var(&c.Detector.MinConfidence)

	e.flag(using, "calibration.distanceMin", "Finger distance in pixels mapped to the lowest level.", "PINCHVOL_CALIBRATION_DISTANCE_MIN", func(dst, src *Configuration) {
		dst.Calibration.Domain.Min = src.Calibration.Domain.Min
	}).Float64Var(&c.Calibration.Domain.Min)
	e.flag(using, "calibration.distanceMax", "Finger distance in pixels mapped to the highest level.", "PINCHVOL_CALIBRATION_DISTANCE_MAX", func(dst, src *Configuration) {
		dst.Calibration.Domain.Max = src.Calibration.Domain.Max
	}).Float64Var(&c.Calibration.Domain.Max)
	e.flag(using, "calibration.exponent", "Shape of the mapping curve; 1 is linear.", "PINCHVOL_CALIBRATION_EXPONENT", func(dst, src *Configuration) {
		dst.Calibration.Exponent = src.Calibration.Exponent
	}).Float64Var(&c.Calibration.Exponent)

	e.flag(using, "actuator", "Volume actuator to drive: auto, endpoint or plugin.", "PINCHVOL_ACTUATOR", func(dst, src *Configuration) {
		dst.Actuator.Kind = src.Actuator.Kind
	}).SetValue(&c.Actuator.Kind)
	e.flag(using, "actuator.plugin", "Name of the actuator plugin.", "PINCHVOL_ACTUATOR_PLUGIN", func(dst, src *Configuration) {
		dst.Actuator.Plugin = src.Actuator.Plugin
	}).StringVar(&c.Actuator.Plugin)
	e.flag(using, "actuator.pluginDir", "Directory the actuator plugins are discovered in.", "PINCHVOL_ACTUATOR_PLUGIN_DIR", func(dst, src *Configuration) {
		dst.Actuator.PluginDir = src.Actuator.PluginDir
	}).StringVar(&c.Actuator.PluginDir)
	e.flag(using, "actuator.device", "Device name passed to the actuator plugin.", "PINCHVOL_ACTUATOR_DEVICE", func(dst, src *Configuration) {
		dst.Actuator.Device = src.Actuator.Device
	}).StringVar(&c.Actuator.Device)
	e.flag(using, "actuator.timeout", "Maximum duration of one plugin invocation.", "PINCHVOL_ACTUATOR_TIMEOUT", func(dst, src *Configuration) {
		dst.Actuator.Timeout = src.Actuator.Timeout
	}).DurationVar(&c.Actuator.Timeout)

	e.flag(using, "loop.maxAcquisitionFailures", "Consecutive frame read failures tolerated before giving up.", "PINCHVOL_LOOP_MAX_ACQUISITION_FAILURES", func(dst, src *Configuration) {
		dst.Loop.MaxAcquisitionFailures = src.Loop.MaxAcquisitionFailures
	}).IntVar(&c.Loop.MaxAcquisitionFailures)
	e.flag(using, "loop.cancelKey", "Key that ends the loop when pressed in the preview window.", "PINCHVOL_LOOP_CANCEL_KEY", func(dst, src *Configuration) {
		dst.Loop.CancelKey = src.Loop.CancelKey
	}).StringVar(&c.Loop.CancelKey)
	e.flag(using, "loop.pollInterval", "How long each iteration waits for the cancel key.", "PINCHVOL_LOOP_POLL_INTERVAL", func(dst, src *Configuration) {
		dst.Loop.PollInterval = src.Loop.PollInterval
	}).DurationVar(&c.Loop.PollInterval)

	e.flag(using, "headless", "Do not open a preview window.", "PINCHVOL_HEADLESS", func(dst, src *Configuration) {
		dst.Display.Headless = src.Display.Headless
	}).BoolVar(&c.Display.Headless)
	e.flag(using, "no-journal", "Do not record sessions.", "PINCHVOL_NO_JOURNAL", func(dst, src *Configuration) {
		dst.Journal.Disabled = src.Journal.Disabled
	}).BoolVar(&c.Journal.Disabled)
	e.flag(using, "journal", "Location of the session journal database.", "PINCHVOL_JOURNAL", func(dst, src *Configuration) {
		dst.Journal.File = src.Journal.File
	}).StringVar(&c.Journal.File)
	e.flag(using, "listen", "Address of the status server, e.g. 127.0.0.1:8765. Disabled if empty.", "PINCHVOL_LISTEN", func(dst, src *Configuration) {
		dst.Listen = src.Listen
	}).StringVar(&c.Listen)
	e.flag(using, "tray", "Show a system tray icon.", "PINCHVOL_TRAY", func(dst, src *Configuration) {
		dst.Tray = src.Tray
	}).BoolVar(&c.Tray)
	e.flag(using, "lockFile", "Lock file ensuring a single running instance.", "PINCHVOL_LOCK_FILE", func(dst, src *Configuration) {
		dst.LockFile = src.LockFile
	}).StringVar(&c.LockFile)
	return e
}

// ExplicitFlags tracks which configuration flags were set on the command line
// or by their environment variable. mergo treats zero values as absent, so
// these flags are copied again after merging and 0, false or auto win over
// the configuration file as well.
type ExplicitFlags struct {
	flags []*explicitFlag
}

type explicitFlag struct {
	envar  string
	byUser bool
	assign func(dst, src *Configuration)
}

func (e *ExplicitFlags) flag(using FlagHolder, name, help, envar string, assign func(dst, src *Configuration)) *kingpin.FlagClause {
	f := &explicitFlag{envar: envar, assign: assign}
	e.flags = append(e.flags, f)
	return using.Flag(name, help).
		Envar(envar).
		IsSetByUser(&f.byUser)
}

func (f *explicitFlag) isSet() bool {
	return f.byUser || (f.envar != "" && os.Getenv(f.envar) != "")
}

// Apply copies every explicitly set flag from src onto dst.
func (e *ExplicitFlags) Apply(dst, src *Configuration) {
	if e == nil {
		return
	}
	for _, f := range e.flags {
		if f.isSet() {
			f.assign(dst, src)
		}
	}
}

// Validate checks everything that would otherwise fail later in Initializing.
func (c Configuration) Validate() error {
	if c.Camera.DeviceID < 0 {
		return fmt.Errorf("camera: device must not be negative, got %d", c.Camera.DeviceID)
	}
	if c.Camera.Width < 0 || c.Camera.Height < 0 || c.Camera.FPS < 0 {
		return fmt.Errorf("camera: width, height and fps must not be negative")
	}
	if c.Detector.MaxHands < 1 {
		return fmt.Errorf("detector: maxHands must be at least 1, got %d", c.Detector.MaxHands)
	}
	if mc := c.Detector.MinConfidence; mc < 0 || mc > 1 {
		return fmt.Errorf("detector: minConfidence must be within [0, 1], got %v", mc)
	}
	if err := c.Calibration.Domain.Validate(); err != nil {
		return fmt.Errorf("calibration: %w", err)
	}
	if !(c.Calibration.Exponent > 0) {
		return fmt.Errorf("calibration: %w, got %v", calibration.ErrExponent, c.Calibration.Exponent)
	}
	if c.Actuator.Kind.Resolve() == actuator.KindPlugin && c.Actuator.Plugin == "" {
		return fmt.Errorf("actuator: plugin name required")
	}
	if c.Actuator.Timeout < 0 {
		return fmt.Errorf("actuator: timeout must not be negative, got %v", c.Actuator.Timeout)
	}
	if err := c.Loop.Validate(); err != nil {
		return fmt.Errorf("loop: %w", err)
	}
	if !c.Journal.Disabled && c.Journal.File == "" {
		return fmt.Errorf("journal: file required unless disabled")
	}
	return nil
}

func (c *Configuration) loadFrom(r io.Reader) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && err != io.EOF {
		return err
	}
	return nil
}

func (c *Configuration) loadFromFile(fn string, ignoreNotFound bool) error {
	f, err := os.Open(fn)
	if os.IsNotExist(err) && ignoreNotFound {
		return nil
	}
	if err != nil {
		return fmt.Errorf("cannot open configuration file %q: %w", fn, err)
	}
	defer func() {
		_ = f.Close()
	}()

	if err := c.loadFrom(f); err != nil {
		return fmt.Errorf("cannot load configuration file %q: %w", fn, err)
	}

	return nil
}

func (c *Configuration) saveTo(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	return enc.Encode(c)
}

func (c *Configuration) saveToFile(fn string) error {
	_ = os.MkdirAll(filepath.Dir(fn), 0700)

	f, err := os.OpenFile(fn, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("cannot open configuration file %q: %w", fn, err)
	}
	defer func() {
		_ = f.Close()
	}()

	if err := c.saveTo(f); err != nil {
		return fmt.Errorf("cannot write file %q: %w", fn, err)
	}

	return nil
}

func homeDirectory() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".pinchvol"
	}
	return filepath.Join(home, ".pinchvol")
}

// DefaultConfigurationFile is where the configuration is read from unless
// overridden on the command line.
func DefaultConfigurationFile() string {
	return filepath.Join(homeDirectory(), "config.yaml")
}
