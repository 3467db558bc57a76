package capture

import (
	"fmt"
	"net"

	"rtmpscout/internal/core/domain"
)

func systemInterfaces() ([]domain.InterfaceDescriptor, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("list interfaces: %w", err)
	}

	out := make([]domain.InterfaceDescriptor, 0, len(ifaces))
	for _, ifi := range ifaces {
		if ifi.Flags&net.FlagUp == 0 {
			continue
		}
		desc := domain.InterfaceDescriptor{Name: ifi.Name}
		if addrs, err := ifi.Addrs(); err == nil {
			for _, a := range addrs {
				desc.Addresses = append(desc.Addresses, a.String())
			}
		}
		out = append(out, desc)
	}
	return out, nil
}
