package validation

import (
	"fmt"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	// InterfaceNameRegex validates capture interface names
	InterfaceNameRegex = regexp.MustCompile(`^[a-zA-Z0-9_.:@{}\\-]+$`)

	// StreamKeyRegex validates stream keys accepted by the control API
	StreamKeyRegex = regexp.MustCompile(`^[a-zA-Z0-9_.\-?=&]+$`)
)

// ValidateServerURL validates an ingest server URL. The rtmp:// scheme is
// optional because the control channel adds it when missing.
func ValidateServerURL(server string) error {
	if err := ValidateNonEmptyString(server, "server"); err != nil {
		return err
	}
	server = strings.TrimSpace(server)
	if len(server) > 2048 {
		return fmt.Errorf("server is too long (max 2048 characters)")
	}
	if !strings.Contains(server, "://") {
		server = "rtmp://" + server
	}
	u, err := url.Parse(server)
	if err != nil {
		return fmt.Errorf("invalid server URL: %w", err)
	}
	if u.Scheme != "rtmp" && u.Scheme != "rtmps" {
		return fmt.Errorf("invalid server URL scheme (must be rtmp or rtmps)")
	}
	if u.Host == "" {
		return fmt.Errorf("server URL must have a host")
	}
	return nil
}

// ValidateStreamKey validates a stream key. An empty key is allowed when the
// key is embedded in the server URL.
func ValidateStreamKey(key string) error {
	if key == "" {
		return nil
	}
	if len(key) > 1024 {
		return fmt.Errorf("stream key is too long (max 1024 characters)")
	}
	if !StreamKeyRegex.MatchString(key) {
		return fmt.Errorf("stream key contains invalid characters")
	}
	return nil
}

// ValidateInterfaceName validates a capture interface name. Empty means all
// interfaces.
func ValidateInterfaceName(name string) error {
	if name == "" {
		return nil
	}
	if len(name) > 256 {
		return fmt.Errorf("interface name is too long (max 256 characters)")
	}
	if !InterfaceNameRegex.MatchString(name) {
		return fmt.Errorf("invalid interface name")
	}
	return nil
}

// ValidateExportPath validates a file path for result export.
func ValidateExportPath(path string) error {
	if err := ValidateNonEmptyString(path, "export path"); err != nil {
		return err
	}
	path = strings.TrimSpace(path)
	if !utf8.ValidString(path) {
		return fmt.Errorf("export path contains invalid characters")
	}
	if strings.HasSuffix(path, string(filepath.Separator)) {
		return fmt.Errorf("export path must name a file")
	}
	if ext := strings.ToLower(filepath.Ext(path)); ext != ".json" {
		return fmt.Errorf("export path must end with .json")
	}
	return nil
}

// ValidateNonEmptyString validates that string is not empty after trimming
func ValidateNonEmptyString(s, fieldName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%s is required", fieldName)
	}
	return nil
}
