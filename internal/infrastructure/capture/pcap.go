//go:build cgo

package capture

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcap"

	"rtmpscout/internal/core/domain"
	"rtmpscout/internal/core/ports"
)

// pcapAnyDevice captures on every interface (Linux "any" pseudo-device).
const pcapAnyDevice = "any"

type pcapReader struct {
	handle  *pcap.Handle
	backend domain.CaptureBackend
}

// PcapOpener opens libpcap handles with the filter applied as BPF.
func PcapOpener(cfg Config) Opener {
	return func(iface, filter string) (Reader, error) {
		device := iface
		if device == domain.AllInterfaces {
			device = pcapAnyDevice
		}

		handle, err := pcap.OpenLive(device, int32(cfg.SnapLen), cfg.Promiscuous, cfg.ReadTimeout)
		if err != nil {
			return nil, fmt.Errorf("pcap open %s: %w", device, err)
		}
		if filter != "" {
			if err := handle.SetBPFFilter(filter); err != nil {
				handle.Close()
				return nil, fmt.Errorf("pcap filter %q: %w", filter, err)
			}
		}
		return &pcapReader{handle: handle, backend: domain.BackendPcap}, nil
	}
}

// ReplayOpener reads a capture file instead of a live interface. The
// interface argument is ignored; the run ends at end of file.
func ReplayOpener(path string) Opener {
	return func(_, filter string) (Reader, error) {
		handle, err := pcap.OpenOffline(path)
		if err != nil {
			return nil, fmt.Errorf("%w: open %s: %w", domain.ErrCaptureInit, path, err)
		}
		if filter != "" {
			if err := handle.SetBPFFilter(filter); err != nil {
				handle.Close()
				return nil, fmt.Errorf("pcap filter %q: %w", filter, err)
			}
		}
		return &pcapReader{handle: handle, backend: domain.BackendReplay}, nil
	}
}

func (r *pcapReader) Backend() domain.CaptureBackend {
	return r.backend
}

func (r *pcapReader) ReadFrames(ctx context.Context, emit ports.FrameHandler) error {
	linkType := r.handle.LinkType()
	opts := gopacket.DecodeOptions{Lazy: true, NoCopy: true}

	for {
		if ctx.Err() != nil {
			return nil
		}

		data, ci, err := r.handle.ReadPacketData()
		switch {
		case errors.Is(err, pcap.NextErrorTimeoutExpired):
			continue
		case errors.Is(err, io.EOF):
			return nil
		case err != nil:
			return fmt.Errorf("pcap read: %w", err)
		}

		pkt := gopacket.NewPacket(data, linkType, opts)
		if frame, ok := FrameFromPacket(pkt, ci.Timestamp, ci.Length); ok {
			emit(frame)
		}
	}
}

func (r *pcapReader) Close() error {
	r.handle.Close()
	return nil
}

// ListInterfaces asks libpcap for devices and falls back to the OS list.
func ListInterfaces() ([]domain.InterfaceDescriptor, error) {
	devs, err := pcap.FindAllDevs()
	if err != nil || len(devs) == 0 {
		return systemInterfaces()
	}

	out := make([]domain.InterfaceDescriptor, 0, len(devs))
	for _, d := range devs {
		desc := domain.InterfaceDescriptor{Name: d.Name, Description: d.Description}
		for _, a := range d.Addresses {
			desc.Addresses = append(desc.Addresses, a.IP.String())
		}
		out = append(out, desc)
	}
	return out, nil
}
