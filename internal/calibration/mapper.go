// Package calibration maps the pinch distance onto the actuator's level range.
package calibration

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrEmptyDomain is returned when the calibration domain has no width.
	ErrEmptyDomain = errors.New("calibration domain must satisfy min < max")
	// ErrInvertedRange is returned when an actuator reports min > max.
	ErrInvertedRange = errors.New("level range must satisfy min <= max")
	// ErrNotFinite is returned for NaN or infinite bounds.
	ErrNotFinite = errors.New("bounds must be finite")
	// ErrExponent is returned for a non-positive curve exponent.
	ErrExponent = errors.New("curve exponent must be > 0")
)

// Domain is the expected span of pinch distances in pixels.
type Domain struct {
	Min float64 `yaml:"distanceMin" json:"min"`
	Max float64 `yaml:"distanceMax" json:"max"`
}

// DefaultDomain is the finger spread span the controller was tuned for.
var DefaultDomain = Domain{Min: 30, Max: 300}

func (d Domain) Validate() error {
	if !finite(d.Min) || !finite(d.Max) {
		return fmt.Errorf("domain [%v, %v]: %w", d.Min, d.Max, ErrNotFinite)
	}
	if d.Min >= d.Max {
		return fmt.Errorf("domain [%v, %v]: %w", d.Min, d.Max, ErrEmptyDomain)
	}
	return nil
}

func (d Domain) String() string {
	return fmt.Sprintf("[%g, %g]", d.Min, d.Max)
}

// Range is the span of levels an actuator accepts, in its native units.
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

func (r Range) Validate() error {
	if !finite(r.Min) || !finite(r.Max) {
		return fmt.Errorf("range [%v, %v]: %w", r.Min, r.Max, ErrNotFinite)
	}
	if r.Min > r.Max {
		return fmt.Errorf("range [%v, %v]: %w", r.Min, r.Max, ErrInvertedRange)
	}
	return nil
}

// Contains reports whether level lies inside the range, bounds included.
func (r Range) Contains(level float64) bool {
	return level >= r.Min && level <= r.Max
}

func (r Range) String() string {
	return fmt.Sprintf("[%g, %g]", r.Min, r.Max)
}

// Option customizes a Mapper.
type Option func(*Mapper)

// WithExponent shapes the normalized position inside the domain as f^exponent
// before scaling it to the range. 1 is linear. Values above 1 give finer
// control near the bottom of the range, which suits decibel scaled endpoints.
func WithExponent(exponent float64) Option {
	return func(m *Mapper) {
		m.exponent = exponent
	}
}

// Mapper is a validated, immutable clamped interpolation from a Domain to a
// Range. It is safe for concurrent use.
type Mapper struct {
	domain   Domain
	rng      Range
	exponent float64
}

// NewMapper validates the configuration once so that Map never fails.
func NewMapper(domain Domain, rng Range, opts ...Option) (*Mapper, error) {
	m := &Mapper{
		domain:   domain,
		rng:      rng,
		exponent: 1,
	}
	for _, opt := range opts {
		opt(m)
	}

	if err := domain.Validate(); err != nil {
		return nil, err
	}
	if err := rng.Validate(); err != nil {
		return nil, err
	}
	if !finite(m.exponent) || m.exponent <= 0 {
		return nil, fmt.Errorf("exponent %v: %w", m.exponent, ErrExponent)
	}

	return m, nil
}

// Map converts a distance to a level inside the range. Distances at or below
// the domain minimum give the range minimum, distances at or above the domain
// maximum give the range maximum, anything between is interpolated.
func (m *Mapper) Map(distance float64) float64 {
	switch {
	case math.IsNaN(distance), distance <= m.domain.Min:
		return m.rng.Min
	case distance >= m.domain.Max:
		return m.rng.Max
	}

	f := (distance/2 - m.domain.Min/2) / (m.domain.Max/2 - m.domain.Min/2)
	if m.exponent != 1 {
		f = math.Pow(f, m.exponent)
	}
	return lerp(m.rng.Min, m.rng.Max, f)
}

// lerp blends lo and hi by f in [0, 1] without forming hi-lo, so spans wider
// than MaxFloat64 stay finite. The result is clamped to [lo, hi].
func lerp(lo, hi, f float64) float64 {
	v := lo*(1-f) + hi*f
	return math.Min(math.Max(v, lo), hi)
}

func (m *Mapper) Domain() Domain { return m.domain }

func (m *Mapper) Range() Range { return m.rng }

func (m *Mapper) Exponent() float64 { return m.exponent }

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
