package capture

import (
	"encoding/binary"
	"net/netip"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"rtmpscout/internal/core/domain"
)

const (
	minIPv4HeaderLen = 20
	minTCPHeaderLen  = 20
	protocolTCP      = 6
)

// FrameFromPacket converts a decoded packet into a Frame. Only TCP over
// IPv4/IPv6 with a non-empty payload qualifies.
func FrameFromPacket(pkt gopacket.Packet, capturedAt time.Time, wireLen int) (domain.Frame, bool) {
	tcp, ok := pkt.Layer(layers.LayerTypeTCP).(*layers.TCP)
	if !ok || len(tcp.Payload) == 0 {
		return domain.Frame{}, false
	}

	var src, dst netip.Addr
	switch ip := pkt.NetworkLayer().(type) {
	case *layers.IPv4:
		src, _ = netip.AddrFromSlice(ip.SrcIP.To4())
		dst, _ = netip.AddrFromSlice(ip.DstIP.To4())
	case *layers.IPv6:
		src, _ = netip.AddrFromSlice(ip.SrcIP.To16())
		dst, _ = netip.AddrFromSlice(ip.DstIP.To16())
	default:
		return domain.Frame{}, false
	}
	if !src.IsValid() || !dst.IsValid() {
		return domain.Frame{}, false
	}

	if wireLen <= 0 {
		wireLen = len(pkt.Data())
	}

	return domain.Frame{
		Source:      domain.Endpoint{Addr: src, Port: uint16(tcp.SrcPort)},
		Destination: domain.Endpoint{Addr: dst, Port: uint16(tcp.DstPort)},
		Payload:     append([]byte(nil), tcp.Payload...),
		CapturedAt:  capturedAt,
		WireLen:     wireLen,
	}, true
}

// DecodeIPv4TCP parses a bare IPv4 packet by hand: IHL and TCP data offset
// are honored, non-TCP and non-first fragments are skipped.
func DecodeIPv4TCP(pkt []byte, capturedAt time.Time) (domain.Frame, bool) {
	if len(pkt) < minIPv4HeaderLen || pkt[0]>>4 != 4 {
		return domain.Frame{}, false
	}

	ihl := int(pkt[0]&0x0f) * 4
	if ihl < minIPv4HeaderLen || len(pkt) < ihl {
		return domain.Frame{}, false
	}
	if pkt[9] != protocolTCP {
		return domain.Frame{}, false
	}
	if binary.BigEndian.Uint16(pkt[6:8])&0x1fff != 0 {
		return domain.Frame{}, false
	}

	wireLen := len(pkt)
	if total := int(binary.BigEndian.Uint16(pkt[2:4])); total >= ihl && total < len(pkt) {
		pkt = pkt[:total]
	}

	tcp := pkt[ihl:]
	if len(tcp) < minTCPHeaderLen {
		return domain.Frame{}, false
	}
	dataOffset := int(tcp[12]>>4) * 4
	if dataOffset < minTCPHeaderLen || len(tcp) < dataOffset {
		return domain.Frame{}, false
	}
	payload := tcp[dataOffset:]
	if len(payload) == 0 {
		return domain.Frame{}, false
	}

	return domain.Frame{
		Source: domain.Endpoint{
			Addr: netip.AddrFrom4([4]byte(pkt[12:16])),
			Port: binary.BigEndian.Uint16(tcp[0:2]),
		},
		Destination: domain.Endpoint{
			Addr: netip.AddrFrom4([4]byte(pkt[16:20])),
			Port: binary.BigEndian.Uint16(tcp[2:4]),
		},
		Payload:    append([]byte(nil), payload...),
		CapturedAt: capturedAt,
		WireLen:    wireLen,
	}, true
}

// portFilter is the fallback's stand-in for the BPF expression.
type portFilter map[uint16]struct{}

func newPortFilter(ports []uint16) portFilter {
	f := make(portFilter, len(ports))
	for _, p := range ports {
		f[p] = struct{}{}
	}
	return f
}

func (f portFilter) allows(frame domain.Frame) bool {
	if len(f) == 0 {
		return true
	}
	_, src := f[frame.Source.Port]
	_, dst := f[frame.Destination.Port]
	return src || dst
}
