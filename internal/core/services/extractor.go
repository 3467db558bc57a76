package services

import (
	"bytes"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"rtmpscout/internal/core/domain"
	"rtmpscout/internal/core/ports"
	"rtmpscout/pkg/utils"
)

const (
	minURLLength      = 20
	minURLSegments    = 4
	minDomainLength   = 5
	releaseScanWindow = 200
	debugPreviewLen   = 64
	minReleaseKeyLen  = 20
	minPublishKeyLen  = 4
)

var (
	// Greedy candidate; the preceding-bytes and terminator checks are done
	// by hand in urlCandidates.
	urlPattern = regexp.MustCompile(`(?i)rtmps?://[a-z0-9.-]+(?::[0-9]+)?/[a-z0-9/_-]+`)

	urlDisallowed = regexp.MustCompile(`[^a-zA-Z0-9:/._-]`)
	domainShape   = regexp.MustCompile(`^[a-zA-Z0-9.-]+$`)
	versionPrefix = regexp.MustCompile(`^\d+\.\d+\.\d+`)

	// Text fallbacks for releaseStream, most specific first.
	releaseTextPatterns = []*regexp.Regexp{
		regexp.MustCompile(`releaseStream[\s\x00-\x1f]*["']?([a-zA-Z0-9_.-]+\?[a-zA-Z0-9_=&.-]+)["']?`),
		regexp.MustCompile(`(?i)releasestream[\s\x00-\x1f]*["']?([a-z0-9_.-]+\?[a-z0-9_=&.-]+)["']?`),
		regexp.MustCompile(`(?i)release[\s\x00-\x1f]*["']?([a-z0-9_.-]+\?[a-z0-9_=&.-]+)["']?`),
		regexp.MustCompile(`(?i)stream-([a-z0-9]+\?[a-z0-9_=&.-]+)`),
		regexp.MustCompile(`(?i)([a-z0-9_.-]+\?[a-z0-9_=&.-]{10,})`),
	}

	publishPattern = regexp.MustCompile(`(?i)publish[\s\x00-\x1f]*["']?([a-z0-9_-]+)["']?`)
)

// CredentialExtractor pulls ingest URLs and stream keys out of normalized
// frames. It keeps no state between frames.
type CredentialExtractor struct {
	logger *zap.SugaredLogger
}

func NewCredentialExtractor(logger *zap.SugaredLogger) *CredentialExtractor {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &CredentialExtractor{logger: logger}
}

var _ ports.Extractor = (*CredentialExtractor)(nil)

// Extract runs the URL pass and the command pass over one frame. URLs come
// first, in the order they appear in the text view.
func (e *CredentialExtractor) Extract(nf domain.NormalizedFrame) []domain.Discovery {
	var out []domain.Discovery

	for _, u := range ExtractURLs(nf.Text) {
		out = append(out, domain.URLFound{URL: u, Frame: nf.Frame})
	}

	if cmd, ok := e.extractCommand(nf); ok {
		out = append(out, domain.CommandFound{Command: cmd})
	}

	return out
}

// ExtractURLs returns the distinct rtmp:// and rtmps:// addresses in text
// that survive the parameter-name, length and shape filters.
func ExtractURLs(text string) []string {
	var urls []string
	seen := make(map[string]struct{})

	for _, loc := range urlPattern.FindAllStringIndex(text, -1) {
		if !urlCandidateBounded(text, loc[0], loc[1]) {
			continue
		}
		clean, ok := cleanURL(text[loc[0]:loc[1]])
		if !ok {
			continue
		}
		if _, dup := seen[clean]; dup {
			continue
		}
		seen[clean] = struct{}{}
		urls = append(urls, clean)
	}

	return urls
}

// urlCandidateBounded checks what surrounds a match: it must not directly
// follow "tc"/"sw" or a "tcUrl="-style assignment, and must end at the end of
// the text, whitespace, a quote, '>', '\', ';' or ','.
func urlCandidateBounded(text string, start, end int) bool {
	if start >= 2 {
		prev := strings.ToLower(text[start-2 : start])
		if prev == "tc" || prev == "sw" {
			return false
		}
	}

	before := strings.ToLower(text[max(0, start-8):start])
	for _, param := range []string{"tcurl=", "swfurl=", "pageurl="} {
		if strings.HasSuffix(before, param) {
			return false
		}
	}

	if end == len(text) {
		return true
	}
	switch text[end] {
	case ' ', '\t', '\n', '\r', '\f', '\v', '"', '\'', '>', '\\', ';', ',':
		return true
	}
	return false
}

func cleanURL(match string) (string, bool) {
	clean := urlDisallowed.ReplaceAllString(strings.TrimSpace(match), "")

	lower := strings.ToLower(clean)
	if strings.Contains(lower, "tcurl") || strings.Contains(lower, "swfurl") || strings.Contains(lower, "pageurl") {
		return "", false
	}
	if len(clean) < minURLLength {
		return "", false
	}
	if !strings.HasPrefix(clean, "rtmp://") && !strings.HasPrefix(clean, "rtmps://") {
		return "", false
	}

	parts := strings.Split(clean, "/")
	if len(parts) < minURLSegments {
		return "", false
	}
	host := parts[2]
	if !domainShape.MatchString(host) || len(host) < minDomainLength {
		return "", false
	}

	return clean, true
}

func (e *CredentialExtractor) extractCommand(nf domain.NormalizedFrame) (domain.StreamCommand, bool) {
	text := nf.Text
	lower := strings.ToLower(text)

	switch {
	case strings.Contains(lower, "release"):
		name, ok := ReleaseStreamName(nf.Frame.Payload)
		if !ok {
			name, ok = releaseStreamFromText(text)
		}
		if !ok {
			e.logger.Debugw("release token without usable stream name",
				"source", nf.Frame.Source.String(),
				"payload_len", len(nf.Frame.Payload),
				"preview", utils.TruncateString(text, debugPreviewLen),
			)
			return domain.StreamCommand{}, false
		}
		return newCommand(nf.Frame, domain.CommandReleaseStream, domain.StreamKeyPrefix+name), true

	case strings.Contains(text, "publish") || strings.Contains(text, "Publish"):
		m := publishPattern.FindStringSubmatch(text)
		if m == nil || len(m[1]) < minPublishKeyLen {
			return domain.StreamCommand{}, false
		}
		return newCommand(nf.Frame, domain.CommandPublish, m[1]), true

	case strings.Contains(text, "connect") || strings.Contains(text, "Connect"):
		// recognised, intentionally not reported
		return domain.StreamCommand{}, false
	}

	return domain.StreamCommand{}, false
}

// ReleaseStreamName scans the raw bytes after a releaseStream (or release)
// token for a run of key characters that looks like a signed stream name.
func ReleaseStreamName(raw []byte) (string, bool) {
	lowerRaw := bytes.ToLower(raw)

	pos := bytes.Index(raw, []byte("releaseStream"))
	if pos < 0 {
		pos = bytes.Index(lowerRaw, []byte("releasestream"))
	}
	if pos < 0 {
		pos = bytes.Index(lowerRaw, []byte("release"))
	}
	if pos < 0 {
		return "", false
	}

	skip := len("release")
	if bytes.Contains(lowerRaw, []byte("releasestream")) {
		skip = len("releaseStream")
	}
	if pos+skip > len(raw) {
		return "", false
	}
	after := raw[pos+skip:]

	for i := 0; i < min(releaseScanWindow, len(after)); i++ {
		runStart := i
		for j := i; j < min(i+releaseScanWindow, len(after)); j++ {
			if isStreamNameByte(after[j]) {
				continue
			}
			if name := string(after[runStart:j]); acceptableStreamName(name) {
				return name, true
			}
			runStart = j + 1
		}
	}

	return "", false
}

func releaseStreamFromText(text string) (string, bool) {
	for _, pattern := range releaseTextPatterns {
		m := pattern.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		if name := m[1]; strings.Contains(name, "?") && strings.Contains(name, "=") && notVersionOrToken(name) {
			return name, true
		}
	}
	return "", false
}

func acceptableStreamName(name string) bool {
	return len(name) >= minReleaseKeyLen &&
		strings.Contains(name, "?") &&
		strings.Contains(name, "=") &&
		notVersionOrToken(name)
}

func notVersionOrToken(name string) bool {
	return !versionPrefix.MatchString(name) && !strings.Contains(strings.ToLower(name), "release")
}

func isStreamNameByte(b byte) bool {
	switch {
	case b >= '0' && b <= '9', b >= 'A' && b <= 'Z', b >= 'a' && b <= 'z':
		return true
	}
	switch b {
	case '-', '_', '?', '=', '&', '.':
		return true
	}
	return false
}

func newCommand(frame domain.Frame, kind domain.CommandKind, key string) domain.StreamCommand {
	size := frame.WireLen
	if size == 0 {
		size = len(frame.Payload)
	}
	return domain.StreamCommand{
		Timestamp:   frame.CapturedAt,
		Source:      frame.Source,
		Destination: frame.Destination,
		Kind:        kind,
		StreamKey:   key,
		FrameSize:   size,
	}
}
