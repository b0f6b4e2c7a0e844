package app

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayusman/pinchvol/internal/actuator"
	"github.com/ayusman/pinchvol/internal/calibration"
)

func TestNewConfiguration_IsValid(t *testing.T) {
	config := NewConfiguration()

	require.NoError(t, config.Validate())
	assert.Equal(t, calibration.Domain{Min: 30, Max: 300}, config.Calibration.Domain)
	assert.Equal(t, 1.0, config.Calibration.Exponent)
	assert.Equal(t, 1, config.Detector.MaxHands)
	assert.Equal(t, 0.7, config.Detector.MinConfidence)
	assert.Equal(t, 0, config.Camera.DeviceID)
	assert.True(t, config.Camera.Mirror)
	assert.Equal(t, "q", config.Loop.CancelKey)
	assert.Equal(t, actuator.KindAuto, config.Actuator.Kind)
}

func TestConfiguration_Validate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Configuration)
		errLike string
	}{
		{"zero width domain", func(c *Configuration) { c.Calibration.Domain = calibration.Domain{Min: 100, Max: 100} }, "calibration"},
		{"inverted domain", func(c *Configuration) { c.Calibration.Domain = calibration.Domain{Min: 300, Max: 30} }, "calibration"},
		{"zero exponent", func(c *Configuration) { c.Calibration.Exponent = 0 }, "exponent"},
		{"negative device", func(c *Configuration) { c.Camera.DeviceID = -1 }, "camera"},
		{"no hands", func(c *Configuration) { c.Detector.MaxHands = 0 }, "maxHands"},
		{"confidence above one", func(c *Configuration) { c.Detector.MinConfidence = 1.5 }, "minConfidence"},
		{"plugin without name", func(c *Configuration) {
			c.Actuator.Kind = actuator.KindPlugin
			c.Actuator.Plugin = ""
		}, "plugin name"},
		{"negative timeout", func(c *Configuration) { c.Actuator.Timeout = -time.Second }, "timeout"},
		{"bad cancel key", func(c *Configuration) { c.Loop.CancelKey = "ctrl+c" }, "cancel key"},
		{"journal without file", func(c *Configuration) { c.Journal.File = "" }, "journal"},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			config := NewConfiguration()
			c.mutate(&config)

			err := config.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), c.errLike)
		})
	}
}

func TestConfiguration_LoadFrom(t *testing.T) {
	config := NewConfiguration()
	in := `
camera:
  device: 2
  mirror: false
calibration:
  distanceMin: 20
  distanceMax: 220
  exponent: 2
actuator:
  kind: plugin
  plugin: my-mixer
loop:
  maxAcquisitionFailures: 5
  pollInterval: 20ms
`
	require.NoError(t, config.loadFrom(strings.NewReader(in)))

	assert.Equal(t, 2, config.Camera.DeviceID)
	assert.False(t, config.Camera.Mirror)
	assert.Equal(t, 640, config.Camera.Width, "unset fields keep their defaults")
	assert.Equal(t, calibration.Domain{Min: 20, Max: 220}, config.Calibration.Domain)
	assert.Equal(t, 2.0, config.Calibration.Exponent)
	assert.Equal(t, actuator.KindPlugin, config.Actuator.Kind)
	assert.Equal(t, "my-mixer", config.Actuator.Plugin)
	assert.Equal(t, 5, config.Loop.MaxAcquisitionFailures)
	assert.Equal(t, 20*time.Millisecond, config.Loop.PollInterval)
	assert.Equal(t, "q", config.Loop.CancelKey)
}

func TestConfiguration_LoadFrom_Rejects(t *testing.T) {
	cases := map[string]string{
		"unknown field": "camera:\n  zoom: 2\n",
		"unknown kind":  "actuator:\n  kind: speaker\n",
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			config := NewConfiguration()
			assert.Error(t, config.loadFrom(strings.NewReader(in)))
		})
	}
}

func TestConfiguration_LoadFrom_Empty(t *testing.T) {
	config := NewConfiguration()
	require.NoError(t, config.loadFrom(strings.NewReader("")))
	assert.Equal(t, NewConfiguration(), config)
}

func TestConfiguration_SaveAndLoad(t *testing.T) {
	fn := filepath.Join(t.TempDir(), "sub", "config.yaml")
	config := NewConfiguration()
	config.Calibration.Domain = calibration.Domain{Min: 40, Max: 250}
	config.Actuator.Kind = actuator.KindEndpoint

	require.NoError(t, config.saveToFile(fn))

	var buf bytes.Buffer
	require.NoError(t, config.saveTo(&buf))
	assert.Contains(t, buf.String(), "distanceMin: 40")
	assert.Contains(t, buf.String(), "kind: endpoint")

	loaded := NewConfiguration()
	require.NoError(t, loaded.loadFromFile(fn, false))
	assert.Equal(t, config, loaded)
}

func TestConfiguration_LoadFromFile_Missing(t *testing.T) {
	fn := filepath.Join(t.TempDir(), "absent.yaml")
	config := NewConfiguration()

	assert.NoError(t, config.loadFromFile(fn, true))
	assert.Error(t, config.loadFromFile(fn, false))
}

func TestApp_LoadConfiguration_FlagsOverrideFile(t *testing.T) {
	dir := t.TempDir()
	fn := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(fn, []byte("calibration:\n  distanceMin: 20\n  distanceMax: 220\nloop:\n  cancelKey: x\n"), 0600))

	a := NewApp()
	cmd := kingpin.New("pinchvol", "")
	a.SetupConfiguration(cmd)
	_, err := cmd.Parse([]string{
		"--configuration", fn,
		"--calibration.distanceMax", "260",
		"--actuator", "plugin",
		"--headless",
		"--camera.unmirrored",
	})
	require.NoError(t, err)

	config, err := a.Configuration()
	require.NoError(t, err)

	assert.Equal(t, 20.0, config.Calibration.Domain.Min, "file value kept")
	assert.Equal(t, 260.0, config.Calibration.Domain.Max, "flag overrides file")
	assert.Equal(t, "x", config.Loop.CancelKey)
	assert.Equal(t, actuator.KindPlugin, config.Actuator.Kind)
	assert.True(t, config.Display.Headless)
	assert.False(t, config.Camera.Mirror)
	assert.Equal(t, 640, config.Camera.Width, "defaults survive the merge")
}

func TestApp_LoadConfiguration_ZeroFlagsOverrideFile(t *testing.T) {
	dir := t.TempDir()
	fn := filepath.Join(dir, "config.yaml")
	file := "camera:\n  device: 2\ncalibration:\n  distanceMin: 30\n  distanceMax: 300\n" +
		"actuator:\n  kind: plugin\nloop:\n  maxAcquisitionFailures: 10\ntray: true\n"
	require.NoError(t, os.WriteFile(fn, []byte(file), 0600))

	a := NewApp()
	cmd := kingpin.New("pinchvol", "")
	a.SetupConfiguration(cmd)
	_, err := cmd.Parse([]string{
		"--configuration", fn,
		"--loop.maxAcquisitionFailures", "0",
		"--calibration.distanceMin", "0",
		"--camera.device", "0",
		"--actuator", "auto",
		"--no-tray",
	})
	require.NoError(t, err)

	config, err := a.Configuration()
	require.NoError(t, err)

	assert.Equal(t, 0, config.Loop.MaxAcquisitionFailures)
	assert.Equal(t, 0.0, config.Calibration.Domain.Min)
	assert.Equal(t, 300.0, config.Calibration.Domain.Max, "file value kept")
	assert.Equal(t, 0, config.Camera.DeviceID)
	assert.Equal(t, actuator.KindAuto, config.Actuator.Kind)
	assert.False(t, config.Tray)
}

func TestApp_LoadConfiguration_ZeroEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	fn := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(fn, []byte("loop:\n  maxAcquisitionFailures: 10\n"), 0600))
	t.Setenv("PINCHVOL_LOOP_MAX_ACQUISITION_FAILURES", "0")

	a := NewApp()
	cmd := kingpin.New("pinchvol", "")
	a.SetupConfiguration(cmd)
	_, err := cmd.Parse([]string{"--configuration", fn})
	require.NoError(t, err)

	config, err := a.Configuration()
	require.NoError(t, err)
	assert.Equal(t, 0, config.Loop.MaxAcquisitionFailures)
}

func TestApp_LoadConfiguration_UnsetFlagsKeepFile(t *testing.T) {
	dir := t.TempDir()
	fn := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(fn, []byte("camera:\n  device: 2\nloop:\n  maxAcquisitionFailures: 4\n"), 0600))

	a := NewApp()
	cmd := kingpin.New("pinchvol", "")
	a.SetupConfiguration(cmd)
	_, err := cmd.Parse([]string{"--configuration", fn})
	require.NoError(t, err)

	config, err := a.Configuration()
	require.NoError(t, err)
	assert.Equal(t, 2, config.Camera.DeviceID)
	assert.Equal(t, 4, config.Loop.MaxAcquisitionFailures)
}

func TestConfiguration_SaveKeepsZeroBound(t *testing.T) {
	fn := filepath.Join(t.TempDir(), "config.yaml")
	config := NewConfiguration()
	config.Loop.MaxAcquisitionFailures = 0
	require.NoError(t, config.saveToFile(fn))

	loaded := NewConfiguration()
	require.NoError(t, loaded.loadFromFile(fn, false))
	assert.Equal(t, 0, loaded.Loop.MaxAcquisitionFailures)
}
