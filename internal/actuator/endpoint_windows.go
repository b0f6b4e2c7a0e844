//go:build windows

package actuator

import (
	"errors"
	"fmt"
	"sync"

	log "github.com/echocat/slf4g"
	"github.com/go-ole/go-ole"
	"github.com/moutend/go-wca/pkg/wca"

	"github.com/ayusman/pinchvol/internal/calibration"
)

// sFalse is returned by CoInitializeEx when COM is already initialized on the thread.
const sFalse = 0x00000001

// Endpoint controls the master volume of the default render endpoint via
// IAudioEndpointVolume. Levels are in decibels as reported by GetVolumeRange.
//
// COM is initialized on the calling thread; callers must keep every method on
// the thread that called OpenEndpoint.
type Endpoint struct {
	device *wca.IMMDevice
	volume *wca.IAudioEndpointVolume
	ownCOM bool
	mutex  sync.Mutex
}

// OpenEndpoint activates IAudioEndpointVolume on the default console render device.
func OpenEndpoint() (*Endpoint, error) {
	result := &Endpoint{}
	success := false
	defer func() {
		if !success {
			if err := result.Close(); err != nil {
				log.WithError(err).Debug("Cannot release partially opened endpoint.")
			}
		}
	}()

	if err := ole.CoInitializeEx(0, ole.COINIT_MULTITHREADED); err != nil {
		var oleErr *ole.OleError
		if !errors.As(err, &oleErr) || oleErr.Code() != sFalse {
			return nil, fmt.Errorf("failed to initialize ole: %w", err)
		}
	}
	result.ownCOM = true

	var de *wca.IMMDeviceEnumerator
	if err := wca.CoCreateInstance(wca.CLSID_MMDeviceEnumerator, 0, wca.CLSCTX_ALL, wca.IID_IMMDeviceEnumerator, &de); err != nil {
		return nil, fmt.Errorf("cannot create IMMDeviceEnumerator instance: %w", err)
	}
	defer de.Release()

	if err := de.GetDefaultAudioEndpoint(wca.ERender, wca.EConsole, &result.device); err != nil {
		return nil, fmt.Errorf("cannot get default render endpoint: %w", err)
	}

	if err := result.device.Activate(wca.IID_IAudioEndpointVolume, wca.CLSCTX_ALL, nil, &result.volume); err != nil {
		return nil, fmt.Errorf("cannot activate IAudioEndpointVolume: %w", err)
	}

	success = true
	return result, nil
}

func (e *Endpoint) Range() (calibration.Range, error) {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	if e.volume == nil {
		return calibration.Range{}, fmt.Errorf("endpoint closed")
	}

	var minDB, maxDB, stepDB float32
	if err := e.volume.GetVolumeRange(&minDB, &maxDB, &stepDB); err != nil {
		return calibration.Range{}, fmt.Errorf("cannot get volume range: %w", err)
	}

	log.With("min", minDB).
		With("max", maxDB).
		With("step", stepDB).
		Debug("Endpoint volume range queried.")

	return calibration.Range{Min: float64(minDB), Max: float64(maxDB)}, nil
}

func (e *Endpoint) SetLevel(level float64) error {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	if e.volume == nil {
		return fmt.Errorf("endpoint closed")
	}
	if err := e.volume.SetMasterVolumeLevel(float32(level), nil); err != nil {
		return fmt.Errorf("cannot set master volume level to %.2fdB: %w", level, err)
	}
	return nil
}

func (e *Endpoint) Close() error {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	if e.volume != nil {
		e.volume.Release()
		e.volume = nil
	}
	if e.device != nil {
		e.device.Release()
		e.device = nil
	}
	if e.ownCOM {
		ole.CoUninitialize()
		e.ownCOM = false
	}
	return nil
}
