package domain

import (
	"net/netip"
	"strconv"
	"time"
)

// AllInterfaces selects every capture interface (no binding restriction).
const AllInterfaces = ""

type Endpoint struct {
	Addr netip.Addr
	Port uint16
}

func (e Endpoint) String() string {
	return netip.AddrPortFrom(e.Addr, e.Port).String()
}

// Frame is a single observed TCP segment with a non-empty payload.
type Frame struct {
	Source      Endpoint
	Destination Endpoint
	Payload     []byte
	CapturedAt  time.Time
	WireLen     int // whole captured frame, headers included
}

// Fingerprint is the coarse dedup key of a frame. It is not a content hash:
// two different payloads of equal length on the same flow collide.
type Fingerprint struct {
	Source      Endpoint
	Destination Endpoint
	PayloadLen  int
}

func (f Frame) Fingerprint() Fingerprint {
	return Fingerprint{
		Source:      f.Source,
		Destination: f.Destination,
		PayloadLen:  len(f.Payload),
	}
}

func (fp Fingerprint) String() string {
	return fp.Source.String() + "-" + fp.Destination.String() + "-" + strconv.Itoa(fp.PayloadLen)
}

// NormalizedFrame keeps the raw payload (in Frame) next to its printable text view.
type NormalizedFrame struct {
	Frame Frame
	Text  string
}

type InterfaceDescriptor struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Addresses   []string `json:"addresses,omitempty"`
}
