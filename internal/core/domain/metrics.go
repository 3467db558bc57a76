package domain

import "time"

// CaptureStats are the running counters of one process.
type CaptureStats struct {
	FramesSeen       uint64
	FramesDuplicate  uint64
	URLsDiscovered   uint64
	CommandsFound    map[CommandKind]uint64
	AppliesSucceeded uint64
	AppliesFailed    uint64
	LastApplyAt      time.Time
	LastApplyError   string
	CaptureRunning   bool
	ControlConnected bool
	Timestamp        time.Time
}

// CaptureBackend names the capture implementation a frame came from.
type CaptureBackend string

const (
	BackendPcap      CaptureBackend = "pcap"
	BackendRawSocket CaptureBackend = "rawsocket"
	BackendReplay    CaptureBackend = "replay"
)
