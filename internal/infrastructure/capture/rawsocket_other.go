//go:build !linux

package capture

import (
	"fmt"

	"rtmpscout/internal/core/domain"
)

func RawSocketOpener(Config) Opener {
	return func(string, string) (Reader, error) {
		return nil, fmt.Errorf("%w: raw socket capture is linux only", domain.ErrCaptureInit)
	}
}
