package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/ayusman/pinchvol/internal/actuator"
	"github.com/ayusman/pinchvol/internal/calibration"
	"github.com/ayusman/pinchvol/internal/capture"
	"github.com/ayusman/pinchvol/internal/detector"
	"github.com/ayusman/pinchvol/internal/display"
)

// frameSize is a power of two so that pixel positions are exact in float64.
const frameSize = 512

var endpointRange = calibration.Range{Min: -65.25, Max: 0}

// pinchAt returns a hand whose thumb tip is at x=32px and whose index tip is
// distance pixels to the right of it, both at mid height.
func pinchAt(distance int) []detector.HandLandmarks {
	thumb := detector.Point3D{X: 32.0 / frameSize, Y: 0.5}
	index := detector.Point3D{X: float64(32+distance) / frameSize, Y: 0.5}
	return []detector.HandLandmarks{detector.PinchLandmarks(thumb, index)}
}

type fixture struct {
	camera   *capture.MockCamera
	detector *detector.MockDetector
	actuator *actuator.Mock
	display  *display.Mock
	monitor  *Monitor
	loop     *ControlLoop
}

func newFixture(t *testing.T, config LoopConfig, opts ...LoopOption) *fixture {
	t.Helper()

	frame := capture.NewBlankFrame(frameSize, frameSize)
	t.Cleanup(func() { _ = frame.Close() })

	f := &fixture{
		camera:   capture.NewMockCamera([]*gocv.Mat{&frame}, true),
		detector: detector.NewMockDetector(),
		actuator: actuator.NewMock(endpointRange),
		display:  display.NewMock(),
		monitor:  NewMonitor(),
	}
	require.NoError(t, f.camera.Open())

	mapper, err := calibration.NewMapper(calibration.DefaultDomain, endpointRange)
	require.NoError(t, err)

	f.loop, err = NewControlLoop(Resources{
		Camera:   f.camera,
		Detector: f.detector,
		Mapper:   mapper,
		Actuator: f.actuator,
		Display:  f.display,
		Monitor:  f.monitor,
		Unit:     "dB",
	}, config, opts...)
	require.NoError(t, err)
	return f
}

func testLoopConfig() LoopConfig {
	return LoopConfig{
		MaxAcquisitionFailures: 3,
		CancelKey:              "q",
		PollInterval:           time.Millisecond,
	}
}

func runWithTimeout(t *testing.T, l *ControlLoop, ctx context.Context) error {
	t.Helper()

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return l.Run(ctx)
}
