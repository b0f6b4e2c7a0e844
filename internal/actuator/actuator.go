// Package actuator applies control levels to the system output volume.
package actuator

import (
	"errors"
	"fmt"
	"runtime"
	"strings"

	"github.com/ayusman/pinchvol/internal/calibration"
)

// ErrUnsupported is returned when an actuator kind is not available on this platform.
var ErrUnsupported = errors.New("actuator not supported on this platform")

// Actuator is the controlled output device.
type Actuator interface {
	// Range reports the levels the device accepts, in its native units.
	// It is queried once at startup.
	Range() (calibration.Range, error)

	// SetLevel applies level, which lies inside the reported range.
	SetLevel(level float64) error

	// Close releases the device handle.
	Close() error
}

// Kind selects an Actuator implementation.
type Kind uint8

const (
	// KindAuto picks KindEndpoint on Windows and KindPlugin elsewhere.
	KindAuto = Kind(0)
	// KindEndpoint drives the default render endpoint through Windows Core Audio.
	KindEndpoint = Kind(1)
	// KindPlugin drives an external actuator plugin.
	KindPlugin = Kind(2)
)

// Resolve replaces KindAuto with the platform default.
func (k Kind) Resolve() Kind {
	if k != KindAuto {
		return k
	}
	if runtime.GOOS == "windows" {
		return KindEndpoint
	}
	return KindPlugin
}

func (k *Kind) Set(plain string) error {
	switch strings.TrimSpace(strings.ToLower(plain)) {
	case "", "auto":
		*k = KindAuto
		return nil
	case "endpoint", "wca":
		*k = KindEndpoint
		return nil
	case "plugin":
		*k = KindPlugin
		return nil
	default:
		return fmt.Errorf("illegal-actuator-kind: %s", plain)
	}
}

func (k Kind) String() string {
	v, err := k.MarshalText()
	if err != nil {
		return fmt.Sprintf("illegal-actuator-kind-%d", k)
	}
	return string(v)
}

func (k Kind) MarshalText() (text []byte, err error) {
	switch k {
	case KindAuto:
		return []byte("auto"), nil
	case KindEndpoint:
		return []byte("endpoint"), nil
	case KindPlugin:
		return []byte("plugin"), nil
	default:
		return nil, fmt.Errorf("illegal actuator kind: %d", k)
	}
}

func (k *Kind) UnmarshalText(text []byte) error {
	return k.Set(string(text))
}
