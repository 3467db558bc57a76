package obs

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// obs-websocket v5 opcodes.
const (
	opHello           = 0
	opIdentify        = 1
	opIdentified      = 2
	opEvent           = 5
	opRequest         = 6
	opRequestResponse = 7
)

const (
	rpcVersion = 1

	// closeAuthenticationFailed is the close code OBS sends for a bad password.
	closeAuthenticationFailed = 4009

	streamServiceCustom = "rtmp_custom"
)

// Request types used by the client.
const (
	RequestSetStreamServiceSettings = "SetStreamServiceSettings"
	RequestStartStream              = "StartStream"
	RequestStopStream               = "StopStream"
	RequestGetStreamStatus          = "GetStreamStatus"
)

type envelope struct {
	Op int             `json:"op"`
	D  json.RawMessage `json:"d"`
}

type helloMessage struct {
	ObsWebSocketVersion string `json:"obsWebSocketVersion"`
	RPCVersion          int    `json:"rpcVersion"`
	Authentication      *struct {
		Challenge string `json:"challenge"`
		Salt      string `json:"salt"`
	} `json:"authentication,omitempty"`
}

type identifyMessage struct {
	RPCVersion     int    `json:"rpcVersion"`
	Authentication string `json:"authentication,omitempty"`
}

type requestMessage struct {
	RequestType string `json:"requestType"`
	RequestID   string `json:"requestId"`
	RequestData any    `json:"requestData,omitempty"`
}

type RequestStatus struct {
	Result  bool   `json:"result"`
	Code    int    `json:"code"`
	Comment string `json:"comment,omitempty"`
}

type requestResponse struct {
	RequestType   string          `json:"requestType"`
	RequestID     string          `json:"requestId"`
	RequestStatus RequestStatus   `json:"requestStatus"`
	ResponseData  json.RawMessage `json:"responseData,omitempty"`
}

type streamServiceSettings struct {
	StreamServiceType     string `json:"streamServiceType"`
	StreamServiceSettings struct {
		Server string `json:"server"`
		Key    string `json:"key"`
	} `json:"streamServiceSettings"`
}

// StreamStatus is the GetStreamStatus response.
type StreamStatus struct {
	OutputActive       bool    `json:"outputActive"`
	OutputReconnecting bool    `json:"outputReconnecting"`
	OutputTimecode     string  `json:"outputTimecode"`
	OutputDuration     float64 `json:"outputDuration"`
	OutputBytes        int64   `json:"outputBytes"`
}

// RequestError is a response whose requestStatus.result was not true.
type RequestError struct {
	RequestType string
	Status      RequestStatus
}

func (e *RequestError) Error() string {
	if e.Status.Comment != "" {
		return fmt.Sprintf("obs request %s failed (code %d): %s", e.RequestType, e.Status.Code, e.Status.Comment)
	}
	return fmt.Sprintf("obs request %s failed (code %d)", e.RequestType, e.Status.Code)
}

// AuthResponse computes the Identify authentication string:
// base64(sha256(base64(sha256(password+salt)) + challenge)).
func AuthResponse(password, salt, challenge string) string {
	secret := sha256.Sum256([]byte(password + salt))
	secretB64 := base64.StdEncoding.EncodeToString(secret[:])
	auth := sha256.Sum256([]byte(secretB64 + challenge))
	return base64.StdEncoding.EncodeToString(auth[:])
}

// SplitRTMPURL splits rtmp://host/app/key at the last slash.
func SplitRTMPURL(rawURL string) (server, key string) {
	scheme := ""
	switch {
	case strings.HasPrefix(rawURL, "rtmp://"):
		scheme = "rtmp://"
	case strings.HasPrefix(rawURL, "rtmps://"):
		scheme = "rtmps://"
	default:
		return rawURL, ""
	}

	rest := rawURL[len(scheme):]
	idx := strings.LastIndex(rest, "/")
	if idx < 0 {
		return rawURL, ""
	}
	return scheme + rest[:idx], rest[idx+1:]
}

// NormalizeStreamSettings prepares a (server, key) pair for OBS. A full URL
// with no separate key is split into both; a bare host gets rtmp://.
func NormalizeStreamSettings(server, key string) (string, string) {
	if key == "" {
		if s, k := SplitRTMPURL(server); k != "" {
			server, key = s, k
		}
	}
	if !strings.HasPrefix(server, "rtmp://") && !strings.HasPrefix(server, "rtmps://") {
		server = "rtmp://" + server
	}
	return server, key
}
