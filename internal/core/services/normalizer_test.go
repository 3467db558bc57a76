package services_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rtmpscout/internal/core/services"
)

func TestFrameNormalizer_DropsRepeatedFingerprint(t *testing.T) {
	n := services.NewFrameNormalizer(nil)

	nf, ok := n.Normalize(frameWith("publish live_key_0001"))
	require.True(t, ok)
	assert.Equal(t, "publish live_key_0001", nf.Text)
	assert.Equal(t, []byte("publish live_key_0001"), nf.Frame.Payload)

	_, ok = n.Normalize(frameWith("publish live_key_0001"))
	assert.False(t, ok)
	assert.Equal(t, 1, n.Seen())
}

func TestFrameNormalizer_EqualLengthPayloadsOnSameFlowCollide(t *testing.T) {
	n := services.NewFrameNormalizer(nil)

	_, ok := n.Normalize(frameWith("publish aaaaaaaaaaaa"))
	require.True(t, ok)

	// different content, same endpoints and length: dropped
	_, ok = n.Normalize(frameWith("publish bbbbbbbbbbbb"))
	assert.False(t, ok)

	other := frameWith("publish bbbbbbbbbbbb")
	other.Source.Port++
	_, ok = n.Normalize(other)
	assert.True(t, ok)
}

func TestFrameNormalizer_Reset(t *testing.T) {
	metrics := services.NewMetricsService(nil)
	n := services.NewFrameNormalizer(metrics)

	_, ok := n.Normalize(frameWith("connect"))
	require.True(t, ok)
	_, ok = n.Normalize(frameWith("connect"))
	require.False(t, ok)
	assert.Equal(t, uint64(1), metrics.Stats().FramesDuplicate)

	n.Reset()
	_, ok = n.Normalize(frameWith("connect"))
	assert.True(t, ok)
}

func TestPrintableText(t *testing.T) {
	tests := []struct {
		name     string
		payload  []byte
		expected string
	}{
		{"ascii", []byte("hello world"), "hello world"},
		{"keeps whitespace controls", []byte("a\tb\r\nc"), "a\tb\r\nc"},
		{"drops amf framing", []byte("\x02\x00\x0dreleaseStream\x00@\x08"), "\rreleaseStream@"},
		{"drops valid utf8 non-ascii", []byte("key=é1"), "key=1"},
		{"invalid utf8 keeps ascii", []byte{'a', 0xff, 0xfe, 'b', 0xe9, 'c'}, "abc"},
		{"empty", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, services.PrintableText(tt.payload))
		})
	}
}
