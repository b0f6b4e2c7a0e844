// Package display renders the camera frame with the pinch overlay and polls
// the keyboard for the cancel key.
package display

import (
	"fmt"
	"image"
	"image/color"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/pinchvol/internal/gesture"
)

// NoKey is returned by PollKey when no key was pressed.
const NoKey = -1

// DefaultTitle is the title of the preview window.
const DefaultTitle = "Volume Control"

// Overlay is what gets drawn on top of a frame.
type Overlay struct {
	Signal   gesture.Signal
	Level    float64
	HasLevel bool
	Unit     string
}

// Display shows frames and reports key presses.
type Display interface {
	// Render draws overlay onto frame and shows it.
	Render(frame *gocv.Mat, overlay Overlay) error

	// PollKey waits up to timeout for a key press and returns its code, or NoKey.
	PollKey(timeout time.Duration) int

	// Close releases the display surface.
	Close() error
}

var (
	markerColor = color.RGBA{R: 255, G: 0, B: 255, A: 0}
	lineColor   = color.RGBA{R: 0, G: 255, B: 0, A: 0}
	textColor   = color.RGBA{R: 255, G: 255, B: 255, A: 0}
)

const markerRadius = 10

// Draw paints the overlay onto frame: filled circles on both tracked points,
// a line between them and the current level in the top left corner.
func Draw(frame *gocv.Mat, overlay Overlay) {
	if frame == nil || frame.Empty() {
		return
	}

	if s := overlay.Signal; s.Present {
		from := image.Pt(s.From.X, s.From.Y)
		to := image.Pt(s.To.X, s.To.Y)
		gocv.Circle(frame, from, markerRadius, markerColor, -1)
		gocv.Circle(frame, to, markerRadius, markerColor, -1)
		gocv.Line(frame, from, to, lineColor, 3)
	}

	gocv.PutText(frame, LevelText(overlay), image.Pt(10, 30), gocv.FontHersheyPlain, 1.5, textColor, 2)
}

// LevelText formats the level line shown on the overlay.
func LevelText(overlay Overlay) string {
	if !overlay.HasLevel {
		return "level: -"
	}
	if overlay.Unit == "" {
		return fmt.Sprintf("level: %.2f", overlay.Level)
	}
	return fmt.Sprintf("level: %.2f %s", overlay.Level, overlay.Unit)
}

// Window is a Display backed by a native OpenCV window. It must be used from
// the thread that created it.
type Window struct {
	window *gocv.Window
}

// NewWindow opens a native window titled title.
func NewWindow(title string) *Window {
	if title == "" {
		title = DefaultTitle
	}
	return &Window{window: gocv.NewWindow(title)}
}

func (w *Window) Render(frame *gocv.Mat, overlay Overlay) error {
	if w.window == nil {
		return fmt.Errorf("window closed")
	}
	if frame == nil || frame.Empty() {
		return fmt.Errorf("empty frame")
	}
	Draw(frame, overlay)
	w.window.IMShow(*frame)
	return nil
}

func (w *Window) PollKey(timeout time.Duration) int {
	if w.window == nil {
		time.Sleep(timeout)
		return NoKey
	}
	ms := int(timeout / time.Millisecond)
	if ms < 1 {
		ms = 1
	}
	key := w.window.WaitKey(ms)
	if key < 0 {
		return NoKey
	}
	return key & 0xFF
}

func (w *Window) Close() error {
	if w.window == nil {
		return nil
	}
	w.window.Close()
	w.window = nil
	return nil
}

// Headless is a Display without any surface. PollKey only waits.
type Headless struct{}

func (Headless) Render(*gocv.Mat, Overlay) error { return nil }

func (Headless) PollKey(timeout time.Duration) int {
	if timeout > 0 {
		time.Sleep(timeout)
	}
	return NoKey
}

func (Headless) Close() error { return nil }
