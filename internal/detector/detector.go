package detector

import "gocv.io/x/gocv"

// Detector defines the interface for hand detection implementations.
type Detector interface {
	// Detect analyzes a video frame and returns detected hand landmarks in
	// the order the model reports them. Returns an empty slice if no hands
	// are detected.
	Detect(frame *gocv.Mat) ([]HandLandmarks, error)

	// Close releases any resources held by the detector.
	Close() error
}

// Config holds configuration options for hand detection.
type Config struct {
	// MaxHands is the maximum number of hands to report.
	MaxHands int `yaml:"maxHands,omitempty"`

	// MinConfidence is the minimum detection confidence threshold (0.0-1.0).
	MinConfidence float64 `yaml:"minConfidence,omitempty"`

	// MinTrackingConf is the minimum tracking confidence threshold (0.0-1.0).
	MinTrackingConf float64 `yaml:"minTrackingConfidence,omitempty"`

	// Script overrides the location of mediapipe_service.py.
	Script string `yaml:"script,omitempty"`

	// Python overrides the interpreter used to run Script.
	Python string `yaml:"python,omitempty"`
}

// DefaultConfig returns the detector settings the volume controller runs with:
// a single hand at 0.7 detection confidence.
func DefaultConfig() Config {
	return Config{
		MaxHands:        1,
		MinConfidence:   0.7,
		MinTrackingConf: 0.5,
	}
}
