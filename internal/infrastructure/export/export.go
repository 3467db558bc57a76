package export

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"rtmpscout/internal/core/domain"
)

const (
	timestampLayout = "2006-01-02 15:04:05"
	protocolRTMP    = "RTMP"
)

// PacketEntry is one URL-bearing frame.
type PacketEntry struct {
	Timestamp  string `json:"timestamp"`
	SrcIP      string `json:"src_ip"`
	DstIP      string `json:"dst_ip"`
	SrcPort    uint16 `json:"src_port"`
	DstPort    uint16 `json:"dst_port"`
	RTMPURL    string `json:"rtmp_url"`
	PacketSize int    `json:"packet_size"`
	Protocol   string `json:"protocol"`
}

// StreamEntry is one recovered stream command.
type StreamEntry struct {
	Timestamp  string             `json:"timestamp"`
	SrcIP      string             `json:"src_ip"`
	DstIP      string             `json:"dst_ip"`
	SrcPort    uint16             `json:"src_port"`
	DstPort    uint16             `json:"dst_port"`
	Command    domain.CommandKind `json:"command"`
	StreamName string             `json:"stream_name"`
	PacketSize int                `json:"packet_size"`
}

type Document struct {
	Packets      []PacketEntry `json:"packets"`
	RTMPURLs     []string      `json:"rtmp_urls"`
	RTMPStreams  []StreamEntry `json:"rtmp_streams"`
	TotalPackets int           `json:"total_packets"`
	UniqueURLs   int           `json:"unique_urls"`
	TotalStreams int           `json:"total_streams"`
}

// Build converts a snapshot into the export document. Slices are never nil
// so empty results serialize as [].
func Build(snap domain.Snapshot) Document {
	doc := Document{
		Packets:     make([]PacketEntry, 0, len(snap.URLRecords)),
		RTMPURLs:    append(make([]string, 0, len(snap.URLs)), snap.URLs...),
		RTMPStreams: make([]StreamEntry, 0, len(snap.Commands)),
	}

	for _, r := range snap.URLRecords {
		doc.Packets = append(doc.Packets, PacketEntry{
			Timestamp:  r.Timestamp.Format(timestampLayout),
			SrcIP:      r.Source.Addr.String(),
			DstIP:      r.Destination.Addr.String(),
			SrcPort:    r.Source.Port,
			DstPort:    r.Destination.Port,
			RTMPURL:    r.URL,
			PacketSize: r.FrameSize,
			Protocol:   protocolRTMP,
		})
	}
	for _, c := range snap.Commands {
		doc.RTMPStreams = append(doc.RTMPStreams, StreamEntry{
			Timestamp:  c.Timestamp.Format(timestampLayout),
			SrcIP:      c.Source.Addr.String(),
			DstIP:      c.Destination.Addr.String(),
			SrcPort:    c.Source.Port,
			DstPort:    c.Destination.Port,
			Command:    c.Kind,
			StreamName: c.StreamKey,
			PacketSize: c.FrameSize,
		})
	}

	doc.TotalPackets = len(doc.Packets)
	doc.UniqueURLs = len(doc.RTMPURLs)
	doc.TotalStreams = len(doc.RTMPStreams)
	return doc
}

// WriteJSON writes the snapshot as indented UTF-8 JSON. The file is replaced
// atomically so a reader never sees a partial export.
func WriteJSON(path string, snap domain.Snapshot) error {
	data, err := json.MarshalIndent(Build(snap), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal export: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create export directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".rtmpscout-export-*")
	if err != nil {
		return fmt.Errorf("failed to create export file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write export data: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write export data: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move export into place: %w", err)
	}
	return nil
}
