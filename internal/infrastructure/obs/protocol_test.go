package obs

import (
	"crypto/sha256"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAuthResponse(t *testing.T) {
	password, salt, challenge := "supersecret", "c2FsdA==", "Y2hhbGxlbmdl"

	secret := sha256.Sum256([]byte(password + salt))
	step := base64.StdEncoding.EncodeToString(secret[:])
	final := sha256.Sum256([]byte(step + challenge))
	want := base64.StdEncoding.EncodeToString(final[:])

	assert.Equal(t, want, AuthResponse(password, salt, challenge))
	assert.NotEqual(t, want, AuthResponse("other", salt, challenge))
}

func TestSplitRTMPURL(t *testing.T) {
	tests := []struct {
		in         string
		wantServer string
		wantKey    string
	}{
		{"rtmp://live.example.com/app/key123", "rtmp://live.example.com/app", "key123"},
		{"rtmps://live.example.com:443/app/key", "rtmps://live.example.com:443/app", "key"},
		{"rtmp://live.example.com", "rtmp://live.example.com", ""},
		{"live.example.com/app/key", "live.example.com/app/key", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			server, key := SplitRTMPURL(tt.in)
			assert.Equal(t, tt.wantServer, server)
			assert.Equal(t, tt.wantKey, key)
		})
	}
}

func TestNormalizeStreamSettings(t *testing.T) {
	tests := []struct {
		name       string
		server     string
		key        string
		wantServer string
		wantKey    string
	}{
		{"key given keeps url", "rtmp://live.example.com/app/", "stream-abc", "rtmp://live.example.com/app/", "stream-abc"},
		{"split full url", "rtmp://live.example.com/app/abc123", "", "rtmp://live.example.com/app", "abc123"},
		{"bare host", "live.example.com/app", "k", "rtmp://live.example.com/app", "k"},
		{"rtmps untouched", "rtmps://live.example.com/app", "k", "rtmps://live.example.com/app", "k"},
		{"trailing slash no key", "rtmp://live.example.com/app/", "", "rtmp://live.example.com/app/", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, key := NormalizeStreamSettings(tt.server, tt.key)
			assert.Equal(t, tt.wantServer, server)
			assert.Equal(t, tt.wantKey, key)
		})
	}
}
