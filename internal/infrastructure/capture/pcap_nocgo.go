//go:build !cgo

package capture

import (
	"fmt"

	"rtmpscout/internal/core/domain"
)

// PcapOpener always fails without cgo, leaving the raw socket backend.
func PcapOpener(Config) Opener {
	return func(string, string) (Reader, error) {
		return nil, fmt.Errorf("%w: built without libpcap support", domain.ErrCaptureInit)
	}
}

func ReplayOpener(string) Opener {
	return func(string, string) (Reader, error) {
		return nil, fmt.Errorf("%w: capture file replay needs libpcap support", domain.ErrCaptureInit)
	}
}

func ListInterfaces() ([]domain.InterfaceDescriptor, error) {
	return systemInterfaces()
}
