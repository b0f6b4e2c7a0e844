//go:build !windows

package actuator

import "github.com/ayusman/pinchvol/internal/calibration"

// Endpoint is only available on Windows.
type Endpoint struct{}

// OpenEndpoint always fails outside Windows; use the plugin actuator instead.
func OpenEndpoint() (*Endpoint, error) {
	return nil, ErrUnsupported
}

func (e *Endpoint) Range() (calibration.Range, error) {
	return calibration.Range{}, ErrUnsupported
}

func (e *Endpoint) SetLevel(float64) error {
	return ErrUnsupported
}

func (e *Endpoint) Close() error {
	return nil
}
