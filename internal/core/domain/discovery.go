package domain

import (
	"strings"
	"time"
)

type CommandKind string

const (
	CommandReleaseStream CommandKind = "releaseStream"
	CommandPublish       CommandKind = "publish"
)

// StreamKeyPrefix wraps keys recovered from releaseStream commands.
const StreamKeyPrefix = "stream-"

type StreamCommand struct {
	Timestamp   time.Time
	Source      Endpoint
	Destination Endpoint
	Kind        CommandKind
	StreamKey   string
	FrameSize   int
}

// Discovery is one fact extracted from a frame: either a URLFound or a CommandFound.
type Discovery interface {
	isDiscovery()
}

type URLFound struct {
	URL   string
	Frame Frame
}

type CommandFound struct {
	Command StreamCommand
}

func (URLFound) isDiscovery()     {}
func (CommandFound) isDiscovery() {}

// URLRecord is the frame metadata kept for every newly discovered URL.
type URLRecord struct {
	Timestamp   time.Time
	Source      Endpoint
	Destination Endpoint
	URL         string
	FrameSize   int
}

// Snapshot is a point-in-time copy of the result store.
type Snapshot struct {
	URLs       []string        // unique, in discovery order
	URLRecords []URLRecord     // one per entry in URLs
	Commands   []StreamCommand // arrival order, not deduplicated
	TakenAt    time.Time
}

// LatestServer returns the first URL carrying the rtmp:// scheme.
func (s Snapshot) LatestServer() (string, bool) {
	for _, u := range s.URLs {
		if strings.Contains(u, "rtmp://") {
			return u, true
		}
	}
	return "", false
}

// LatestKey returns the stream key of the first command that has one.
func (s Snapshot) LatestKey() (string, bool) {
	for _, c := range s.Commands {
		if c.StreamKey != "" {
			return c.StreamKey, true
		}
	}
	return "", false
}

func (s Snapshot) Empty() bool {
	return len(s.URLs) == 0 && len(s.Commands) == 0
}
