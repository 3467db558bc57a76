package services

import (
	"strings"
	"sync"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"rtmpscout/internal/core/domain"
	"rtmpscout/internal/core/ports"
)

// FrameNormalizer drops repeated frames by fingerprint and derives the
// printable text view the extractor's pattern passes run over.
type FrameNormalizer struct {
	mu      sync.Mutex
	seen    map[domain.Fingerprint]struct{}
	metrics ports.Metrics
}

func NewFrameNormalizer(metrics ports.Metrics) *FrameNormalizer {
	if metrics == nil {
		metrics = NoopMetrics()
	}
	return &FrameNormalizer{
		seen:    make(map[domain.Fingerprint]struct{}),
		metrics: metrics,
	}
}

// Normalize returns false when a frame with the same fingerprint was already
// seen. The fingerprint set only grows until Reset.
func (n *FrameNormalizer) Normalize(frame domain.Frame) (domain.NormalizedFrame, bool) {
	fp := frame.Fingerprint()

	n.mu.Lock()
	if _, dup := n.seen[fp]; dup {
		n.mu.Unlock()
		n.metrics.FrameDuplicate()
		return domain.NormalizedFrame{}, false
	}
	n.seen[fp] = struct{}{}
	n.mu.Unlock()

	return domain.NormalizedFrame{
		Frame: frame,
		Text:  PrintableText(frame.Payload),
	}, true
}

// Reset forgets every fingerprint. Called when a capture run starts.
func (n *FrameNormalizer) Reset() {
	n.mu.Lock()
	n.seen = make(map[domain.Fingerprint]struct{})
	n.mu.Unlock()
}

// Seen reports the number of distinct fingerprints recorded.
func (n *FrameNormalizer) Seen() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.seen)
}

// PrintableText decodes payload as UTF-8, falling back to ISO-8859-1 for
// invalid input, and keeps only printable ASCII plus \n, \r and \t.
func PrintableText(payload []byte) string {
	return keepPrintable(decodeText(payload))
}

func decodeText(payload []byte) string {
	if utf8.Valid(payload) {
		return string(payload)
	}
	if decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(payload); err == nil {
		return string(decoded)
	}
	return strings.ToValidUTF8(string(payload), string(utf8.RuneError))
}

func keepPrintable(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if (r >= 0x20 && r <= 0x7e) || r == '\n' || r == '\r' || r == '\t' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
