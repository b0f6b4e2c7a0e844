package actuator

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayusman/pinchvol/internal/calibration"
	"github.com/ayusman/pinchvol/internal/plugin"
)

func installPlugin(t *testing.T, actions []string, script string) *plugin.Manager {
	t.Helper()

	root := t.TempDir()
	dir := filepath.Join(root, "volume-control")
	require.NoError(t, os.MkdirAll(dir, 0755))

	manifest, err := json.Marshal(plugin.Manifest{
		Name:       "volume-control",
		Version:    "1.0.0",
		Executable: "run.sh",
		Actions:    actions,
	})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "plugin.json"), manifest, 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "run.sh"), []byte("#!/bin/sh\n"+script), 0755))

	manager := plugin.NewManager(root)
	require.NoError(t, manager.Discover())
	return manager
}

func TestKind(t *testing.T) {
	cases := []struct {
		in       string
		expected Kind
	}{
		{"auto", KindAuto},
		{"endpoint", KindEndpoint},
		{"WCA", KindEndpoint},
		{" plugin ", KindPlugin},
	}
	for _, c := range cases {
		t.Run(c.in, func(t *testing.T) {
			var k Kind
			require.NoError(t, k.Set(c.in))
			assert.Equal(t, c.expected, k)
		})
	}

	var k Kind
	assert.Error(t, k.Set("speaker"))
	assert.Equal(t, "plugin", KindPlugin.String())
	assert.Equal(t, "illegal-actuator-kind-9", Kind(9).String())

	assert.Equal(t, KindPlugin, KindPlugin.Resolve())
	if runtime.GOOS == "windows" {
		assert.Equal(t, KindEndpoint, KindAuto.Resolve())
	} else {
		assert.Equal(t, KindPlugin, KindAuto.Resolve())
	}
}

func TestMock(t *testing.T) {
	m := NewMock(calibration.Range{Min: -65.25, Max: 0})

	r, err := m.Range()
	require.NoError(t, err)
	assert.Equal(t, -65.25, r.Min)

	m.FailNext(1)
	assert.ErrorIs(t, m.SetLevel(-10), ErrInjected)
	assert.NoError(t, m.SetLevel(-20))

	boom := errors.New("boom")
	m.SetError(boom)
	assert.ErrorIs(t, m.SetLevel(-30), boom)
	m.SetError(nil)
	assert.NoError(t, m.SetLevel(-40))

	assert.Equal(t, []float64{-20, -40}, m.Levels())

	m.SetRangeError(boom)
	_, err = m.Range()
	assert.ErrorIs(t, err, boom)

	assert.NoError(t, m.Close())
	assert.Equal(t, 1, m.CloseCount())
}

func TestPlugin_Range(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("skipping test on Windows")
	}

	cases := []struct {
		name     string
		script   string
		expected calibration.Range
		errLike  string
	}{
		{
			name:     "reports range",
			script:   `echo '{"success":true,"data":{"min":0,"max":100}}'`,
			expected: calibration.Range{Min: 0, Max: 100},
		},
		{
			name:    "plugin failure",
			script:  `echo '{"success":false,"error":"no mixer"}'`,
			errLike: "no mixer",
		},
		{
			name:    "missing bound",
			script:  `echo '{"success":true,"data":{"min":0}}'`,
			errLike: "incomplete range",
		},
		{
			name:    "malformed data",
			script:  `echo '{"success":true,"data":"loud"}'`,
			errLike: "malformed range",
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			manager := installPlugin(t, []string{plugin.ActionRange, plugin.ActionSetLevel}, c.script)
			a, err := OpenPlugin(context.Background(), manager, plugin.NewExecutor(5*time.Second), "volume-control", "default")
			require.NoError(t, err)
			assert.Equal(t, "volume-control", a.Name())

			actual, err := a.Range()
			if c.errLike != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), c.errLike)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, c.expected, actual)
		})
	}
}

func TestPlugin_SetLevel(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("skipping test on Windows")
	}

	out := filepath.Join(t.TempDir(), "request.json")
	manager := installPlugin(t,
		[]string{plugin.ActionRange, plugin.ActionSetLevel},
		"cat > '"+out+"'\necho '{\"success\":true}'",
	)

	a, err := OpenPlugin(context.Background(), manager, plugin.NewExecutor(5*time.Second), "volume-control", "default")
	require.NoError(t, err)
	require.NoError(t, a.SetLevel(42.5))
	require.NoError(t, a.Close())

	raw, err := os.ReadFile(out)
	require.NoError(t, err)

	var req plugin.Request
	require.NoError(t, json.Unmarshal(raw, &req))
	assert.Equal(t, plugin.ActionSetLevel, req.Action)
	assert.Equal(t, "default", req.Device)
	assert.JSONEq(t, `{"level":42.5}`, string(req.Params))
}

func TestOpenPlugin_Rejects(t *testing.T) {
	manager := installPlugin(t, []string{plugin.ActionSetLevel}, `echo '{"success":true}'`)

	_, err := OpenPlugin(context.Background(), manager, plugin.NewExecutor(0), "volume-control", "")
	assert.ErrorIs(t, err, plugin.ErrActionUnsupported)

	_, err = OpenPlugin(context.Background(), manager, plugin.NewExecutor(0), "missing", "")
	assert.ErrorIs(t, err, plugin.ErrPluginNotFound)
}

func TestOpenEndpoint_Unsupported(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a non-windows host")
	}

	_, err := OpenEndpoint()
	assert.ErrorIs(t, err, ErrUnsupported)
	assert.Contains(t, err.Error(), "not supported on this platform")
}
