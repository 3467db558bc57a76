package utils

import (
	"github.com/google/uuid"
)

// GenerateSessionID returns an identifier for one capture run.
func GenerateSessionID() string {
	return "cap_" + uuid.NewString()
}

// GenerateRequestID returns an identifier for one control-channel or API request.
func GenerateRequestID() string {
	return uuid.NewString()
}
