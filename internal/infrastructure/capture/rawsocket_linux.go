//go:build linux

package capture

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"golang.org/x/sys/unix"

	"rtmpscout/internal/core/domain"
	"rtmpscout/internal/core/ports"
)

const rawReadBuffer = 65535

type rawSocketReader struct {
	fd     int
	filter portFilter
}

// RawSocketOpener opens an AF_PACKET datagram socket receiving bare IPv4
// packets. The filter expression is ignored; cfg.Ports is applied instead.
func RawSocketOpener(cfg Config) Opener {
	return func(iface, _ string) (Reader, error) {
		proto := htons(unix.ETH_P_IP)
		fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_DGRAM, int(proto))
		if err != nil {
			return nil, fmt.Errorf("raw socket: %w", err)
		}

		if iface != domain.AllInterfaces {
			ifi, err := net.InterfaceByName(iface)
			if err != nil {
				unix.Close(fd)
				return nil, fmt.Errorf("raw socket interface %s: %w", iface, err)
			}
			if err := unix.Bind(fd, &unix.SockaddrLinklayer{Protocol: proto, Ifindex: ifi.Index}); err != nil {
				unix.Close(fd)
				return nil, fmt.Errorf("raw socket bind %s: %w", iface, err)
			}
			if cfg.Promiscuous {
				mreq := &unix.PacketMreq{Ifindex: int32(ifi.Index), Type: unix.PACKET_MR_PROMISC}
				// best effort; capture still works on local traffic
				_ = unix.SetsockoptPacketMreq(fd, unix.SOL_PACKET, unix.PACKET_ADD_MEMBERSHIP, mreq)
			}
		}

		tv := unix.NsecToTimeval(cfg.ReadTimeout.Nanoseconds())
		if err := unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
			unix.Close(fd)
			return nil, fmt.Errorf("raw socket timeout: %w", err)
		}

		return &rawSocketReader{fd: fd, filter: newPortFilter(cfg.Ports)}, nil
	}
}

func (r *rawSocketReader) Backend() domain.CaptureBackend {
	return domain.BackendRawSocket
}

func (r *rawSocketReader) ReadFrames(ctx context.Context, emit ports.FrameHandler) error {
	buf := make([]byte, rawReadBuffer)

	for {
		if ctx.Err() != nil {
			return nil
		}

		n, _, err := unix.Recvfrom(r.fd, buf, 0)
		if err != nil {
			if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) || errors.Is(err, unix.EINTR) {
				continue
			}
			return fmt.Errorf("raw socket read: %w", err)
		}

		frame, ok := DecodeIPv4TCP(buf[:n], time.Now())
		if !ok || !r.filter.allows(frame) {
			continue
		}
		emit(frame)
	}
}

func (r *rawSocketReader) Close() error {
	return unix.Close(r.fd)
}

func htons(v uint16) uint16 {
	return v<<8 | v>>8
}
