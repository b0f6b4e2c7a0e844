package gesture

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayusman/pinchvol/internal/detector"
)

func TestToPixel(t *testing.T) {
	cases := []struct {
		name   string
		point  detector.Point3D
		width  int
		height int
		want   PixelPoint
	}{
		{"origin", detector.Point3D{}, 640, 480, PixelPoint{0, 0}},
		{"center", detector.Point3D{X: 0.5, Y: 0.5}, 640, 480, PixelPoint{320, 240}},
		{"truncates", detector.Point3D{X: 0.9999, Y: 0.33333}, 640, 480, PixelPoint{639, 159}},
		{"far corner", detector.Point3D{X: 1, Y: 1}, 640, 480, PixelPoint{640, 480}},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, ToPixel(c.point, c.width, c.height))
		})
	}
}

func TestDistance(t *testing.T) {
	assert.Equal(t, 5.0, Distance(PixelPoint{0, 0}, PixelPoint{3, 4}))
	assert.Equal(t, 5.0, Distance(PixelPoint{3, 4}, PixelPoint{0, 0}))
	assert.Equal(t, 0.0, Distance(PixelPoint{7, 7}, PixelPoint{7, 7}))
}

func TestExtractor_Extract(t *testing.T) {
	instance := NewExtractor()

	hand := detector.PinchLandmarks(
		detector.Point3D{X: 0.25, Y: 0.5},
		detector.Point3D{X: 0.75, Y: 0.5},
	)

	actual := instance.Extract([]detector.HandLandmarks{hand}, 640, 480)

	require.True(t, actual.Present)
	assert.Equal(t, PixelPoint{160, 240}, actual.From)
	assert.Equal(t, PixelPoint{480, 240}, actual.To)
	assert.Equal(t, 320.0, actual.Distance)
}

func TestExtractor_Extract_usesFirstHandOnly(t *testing.T) {
	instance := NewExtractor()

	first := detector.PinchLandmarks(
		detector.Point3D{X: 0.5, Y: 0.5},
		detector.Point3D{X: 0.5, Y: 0.75},
	)
	second := detector.PinchLandmarks(
		detector.Point3D{X: 0.0, Y: 0.0},
		detector.Point3D{X: 1.0, Y: 1.0},
	)

	actual := instance.Extract([]detector.HandLandmarks{first, second}, 100, 100)

	require.True(t, actual.Present)
	assert.Equal(t, 25.0, actual.Distance)
}

func TestExtractor_Extract_noSignal(t *testing.T) {
	instance := NewExtractor()
	hands := []detector.HandLandmarks{detector.OpenPalmLandmarks()}

	assert.Equal(t, NoSignal, instance.Extract(nil, 640, 480))
	assert.Equal(t, NoSignal, instance.Extract([]detector.HandLandmarks{}, 640, 480))
	assert.Equal(t, NoSignal, instance.Extract(hands, 0, 480))
	assert.Equal(t, NoSignal, instance.Extract(hands, 640, -1))
	assert.Equal(t, NoSignal, Extractor{From: detector.ThumbTip, To: 42}.Extract(hands, 640, 480))
}

func TestExtractor_Extract_distanceNeverNegative(t *testing.T) {
	instance := NewExtractor()

	for i := 0; i <= 10; i++ {
		f := float64(i) / 10
		hand := detector.PinchLandmarks(
			detector.Point3D{X: f, Y: 1 - f},
			detector.Point3D{X: 1 - f, Y: f},
		)
		actual := instance.Extract([]detector.HandLandmarks{hand}, 640, 480)
		assert.GreaterOrEqual(t, actual.Distance, 0.0)
		assert.False(t, math.IsNaN(actual.Distance))
	}
}
