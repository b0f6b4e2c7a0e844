package actuator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	log "github.com/echocat/slf4g"

	"github.com/ayusman/pinchvol/internal/calibration"
	"github.com/ayusman/pinchvol/internal/plugin"
)

// Plugin drives the output volume through an external plugin that supports
// both plugin.ActionRange and plugin.ActionSetLevel.
type Plugin struct {
	plugin   *plugin.Plugin
	executor *plugin.Executor
	device   string
	ctx      context.Context
}

// OpenPlugin resolves name in manager and returns an actuator bound to it.
// Every plugin invocation is bounded by the executor timeout; ctx cancels
// in-flight invocations.
func OpenPlugin(ctx context.Context, manager *plugin.Manager, executor *plugin.Executor, name, device string) (*Plugin, error) {
	p, err := manager.Resolve(name, plugin.ActionRange, plugin.ActionSetLevel)
	if err != nil {
		return nil, err
	}
	if ctx == nil {
		ctx = context.Background()
	}

	log.With("plugin", p.Manifest.Name).
		With("version", p.Manifest.Version).
		With("device", device).
		Debug("Volume plugin resolved.")

	return &Plugin{
		plugin:   p,
		executor: executor,
		device:   device,
		ctx:      ctx,
	}, nil
}

func (a *Plugin) Range() (calibration.Range, error) {
	resp, err := a.call(plugin.ActionRange, nil)
	if err != nil {
		return calibration.Range{}, err
	}

	var r struct {
		Min *float64 `json:"min"`
		Max *float64 `json:"max"`
	}
	if err := json.Unmarshal(resp.Data, &r); err != nil {
		return calibration.Range{}, fmt.Errorf("plugin %s returned malformed range: %w", a.plugin.Manifest.Name, err)
	}
	if r.Min == nil || r.Max == nil {
		return calibration.Range{}, fmt.Errorf("plugin %s returned incomplete range: %s", a.plugin.Manifest.Name, string(resp.Data))
	}

	return calibration.Range{Min: *r.Min, Max: *r.Max}, nil
}

func (a *Plugin) SetLevel(level float64) error {
	params, err := json.Marshal(struct {
		Level float64 `json:"level"`
	}{level})
	if err != nil {
		return err
	}
	_, err = a.call(plugin.ActionSetLevel, params)
	return err
}

func (a *Plugin) Close() error {
	return nil
}

// Name returns the name of the bound plugin.
func (a *Plugin) Name() string {
	return a.plugin.Manifest.Name
}

func (a *Plugin) call(action string, params json.RawMessage) (*plugin.Response, error) {
	resp, err := a.executor.Execute(a.ctx, a.plugin, &plugin.Request{
		Action: action,
		Device: a.device,
		Params: params,
	})
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		msg := resp.Error
		if msg == "" {
			msg = "unknown error"
		}
		return nil, fmt.Errorf("plugin %s %s: %w", a.plugin.Manifest.Name, action, errors.New(msg))
	}
	return resp, nil
}
