// Package tray provides a system tray menu for the pinch volume controller.
package tray

import (
	"fmt"
	"sync"

	log "github.com/echocat/slf4g"
	"github.com/getlantern/systray"

	"github.com/ayusman/pinchvol/internal/app"
)

// Controller pauses and resumes gesture control.
type Controller interface {
	SetEnabled(bool)
	Enabled() bool
}

// Tray represents the system tray application.
type Tray struct {
	controller Controller
	monitor    *app.Monitor
	unit       string
	onQuit     func()
	mu         sync.RWMutex

	// Menu items stored for later updates
	menuToggle *systray.MenuItem
	menuLevel  *systray.MenuItem
}

// New creates a new Tray reflecting monitor and toggling controller.
func New(controller Controller, monitor *app.Monitor, unit string) *Tray {
	return &Tray{
		controller: controller,
		monitor:    monitor,
		unit:       unit,
	}
}

// OnQuit sets the callback function to be called when the quit menu item is clicked.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run shows the tray and calls body once the tray is ready. The tray
// disappears when body returns; Run blocks until then.
func (t *Tray) Run(body func()) {
	systray.Run(func() {
		t.setup()
		go t.watch()
		body()
		systray.Quit()
	}, nil)
}

func (t *Tray) setup() {
	systray.SetTitle("Pinch")
	systray.SetTooltip("Pinch volume control")

	t.mu.Lock()
	t.menuToggle = systray.AddMenuItem(toggleTitle(true), "Pause or resume gesture control")
	systray.AddSeparator()
	t.menuLevel = systray.AddMenuItem(levelTitle(t.monitor.Status(), t.unit), "Last applied level")
	t.menuLevel.Disable()
	t.mu.Unlock()
	systray.AddSeparator()

	menuQuit := systray.AddMenuItem("Quit", "Quit pinch volume control")

	go func() {
		for {
			select {
			case <-t.menuToggle.ClickedCh:
				t.handleToggle()
			case <-menuQuit.ClickedCh:
				t.handleQuit()
				return
			}
		}
	}()
}

// watch mirrors monitor updates into the menu until the loop terminates.
func (t *Tray) watch() {
	updates, unsubscribe := t.monitor.Subscribe(1)
	defer unsubscribe()

	for status := range updates {
		t.mu.RLock()
		t.menuToggle.SetTitle(toggleTitle(status.Enabled))
		t.menuLevel.SetTitle(levelTitle(status, t.unit))
		t.mu.RUnlock()
		systray.SetTooltip(tooltip(status))

		if status.State == app.StateTerminated {
			return
		}
	}
}

func (t *Tray) handleToggle() {
	enabled := !t.controller.Enabled()
	t.controller.SetEnabled(enabled)

	t.mu.RLock()
	t.menuToggle.SetTitle(toggleTitle(enabled))
	t.mu.RUnlock()
}

func (t *Tray) handleQuit() {
	log.Info("Quit clicked. Going down...")

	t.mu.RLock()
	callback := t.onQuit
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
}

func toggleTitle(enabled bool) string {
	if enabled {
		return "● Enabled"
	}
	return "○ Paused"
}

func levelTitle(status app.Status, unit string) string {
	if !status.HasLevel {
		return "Level: none"
	}
	if unit == "" {
		return fmt.Sprintf("Level: %.1f", status.Level)
	}
	return fmt.Sprintf("Level: %.1f %s", status.Level, unit)
}

func tooltip(status app.Status) string {
	switch {
	case status.State != app.StateRunning:
		return fmt.Sprintf("Pinch volume control (%v)", status.State)
	case !status.Enabled:
		return "Pinch volume control (paused)"
	case status.HandPresent:
		return fmt.Sprintf("Pinch volume control: hand at %.0fpx", status.Distance)
	default:
		return "Pinch volume control: no hand"
	}
}
