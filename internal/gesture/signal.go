// Package gesture turns detected hand landmarks into the pinch distance that
// drives the volume level.
package gesture

import (
	"fmt"
	"math"

	"github.com/ayusman/pinchvol/internal/detector"
)

// PixelPoint is a landmark position in frame pixels.
type PixelPoint struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func (p PixelPoint) String() string {
	return fmt.Sprintf("(%d,%d)", p.X, p.Y)
}

// ToPixel scales a normalized landmark to frame pixels, truncating toward zero.
func ToPixel(p detector.Point3D, width, height int) PixelPoint {
	return PixelPoint{
		X: int(p.X * float64(width)),
		Y: int(p.Y * float64(height)),
	}
}

// Distance returns the Euclidean distance between two pixel points.
func Distance(a, b PixelPoint) float64 {
	dx := float64(a.X - b.X)
	dy := float64(a.Y - b.Y)
	return math.Hypot(dx, dy)
}

// Signal is the control signal extracted from one frame. A zero Signal
// (Present == false) means no hand was available; that is routine and not
// an error.
type Signal struct {
	Present  bool       `json:"present"`
	From     PixelPoint `json:"from"`
	To       PixelPoint `json:"to"`
	Distance float64    `json:"distance"`
}

// NoSignal is the result for frames without a usable hand.
var NoSignal = Signal{}

// Extractor measures the distance between two landmarks of the first
// reported hand.
type Extractor struct {
	From int
	To   int
}

// NewExtractor returns an extractor measuring thumb tip to index finger tip.
func NewExtractor() Extractor {
	return Extractor{
		From: detector.ThumbTip,
		To:   detector.IndexTip,
	}
}

// Extract computes the signal for a frame of the given size.
//
// Only hands[0] is used: when the detector reports several hands the first
// one in report order wins and the rest are ignored. An empty hand list or a
// non-positive frame size yields NoSignal.
func (e Extractor) Extract(hands []detector.HandLandmarks, width, height int) Signal {
	if len(hands) == 0 || width <= 0 || height <= 0 {
		return NoSignal
	}

	hand := &hands[0]
	from, ok := hand.Point(e.From)
	if !ok {
		return NoSignal
	}
	to, ok := hand.Point(e.To)
	if !ok {
		return NoSignal
	}

	a := ToPixel(from, width, height)
	b := ToPixel(to, width, height)

	return Signal{
		Present:  true,
		From:     a,
		To:       b,
		Distance: Distance(a, b),
	}
}
