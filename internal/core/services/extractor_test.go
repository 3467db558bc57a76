package services_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rtmpscout/internal/core/domain"
	"rtmpscout/internal/core/services"
)

func extract(t *testing.T, payload string) []domain.Discovery {
	t.Helper()
	n := services.NewFrameNormalizer(nil)
	nf, ok := n.Normalize(frameWith(payload))
	require.True(t, ok)
	return services.NewCredentialExtractor(nil).Extract(nf)
}

func urlsOf(ds []domain.Discovery) []string {
	var out []string
	for _, d := range ds {
		if u, ok := d.(domain.URLFound); ok {
			out = append(out, u.URL)
		}
	}
	return out
}

func commandsOf(ds []domain.Discovery) []domain.StreamCommand {
	var out []domain.StreamCommand
	for _, d := range ds {
		if c, ok := d.(domain.CommandFound); ok {
			out = append(out, c.Command)
		}
	}
	return out
}

func TestExtractURLs_ParameterNameExcluded(t *testing.T) {
	assert.Empty(t, services.ExtractURLs("tcUrl=rtmp://host/app/key123456789012345"))
	assert.Empty(t, services.ExtractURLs("swfUrl=rtmp://cdn.example.com/player/swf1234567"))
	assert.Empty(t, services.ExtractURLs("xtcrtmp://live.example.com/app/streamkey1234567890"))
	assert.Empty(t, services.ExtractURLs("SWrtmp://live.example.com/app/streamkey1234567890"))
}

func TestExtractURLs_BareURL(t *testing.T) {
	urls := services.ExtractURLs("rtmp://live.example.com/app/streamkey1234567890")
	assert.Equal(t, []string{"rtmp://live.example.com/app/streamkey1234567890"}, urls)
}

func TestExtractURLs_Filters(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		expected []string
	}{
		{
			name:     "quoted",
			text:     `url "rtmp://live.example.com/app/streamkey1234567890" end`,
			expected: []string{"rtmp://live.example.com/app/streamkey1234567890"},
		},
		{
			name:     "rtmps",
			text:     "rtmps://live-api.example.com/rtmp/FB-1234567890;",
			expected: []string{"rtmps://live-api.example.com/rtmp/FB-1234567890"},
		},
		{
			name:     "duplicate within frame",
			text:     "rtmp://live.example.com/app/k1234567890 rtmp://live.example.com/app/k1234567890",
			expected: []string{"rtmp://live.example.com/app/k1234567890"},
		},
		{
			name: "not terminated",
			text: "rtmp://live.example.com/app/streamkey1234567890?sign=abc",
		},
		{
			name: "domain too short",
			text: "rtmp://a.io/app/streamkey1234567890",
		},
		{
			name: "too short",
			text: "rtmp://abcde.io/a",
		},
		{
			name: "port in domain segment",
			text: "rtmp://live.example.com:1935/app/streamkey1234567890",
		},
		{
			name: "upper-case scheme",
			text: "RTMP://LIVE.EXAMPLE.COM/APP/STREAMKEY1234567890",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, services.ExtractURLs(tt.text))
		})
	}
}

func TestReleaseStreamName_Binary(t *testing.T) {
	raw := []byte("\x02\x00\x0dreleaseStream\x00\x40\x00\x00\x00\x00\x00\x00\x00\x05\x02\x00\x15abc123?sign=xyz&t=111\x00")

	name, ok := services.ReleaseStreamName(raw)
	require.True(t, ok)
	assert.Equal(t, "abc123?sign=xyz&t=111", name)
}

func TestReleaseStreamName_RequiresTerminatedRun(t *testing.T) {
	raw := []byte("\x02\x00\x0dreleaseStream\x00\x40\x05\x02\x00\x15abc123?sign=xyz&t=111")

	_, ok := services.ReleaseStreamName(raw)
	assert.False(t, ok)
}

func TestExtract_ReleaseStreamCommand(t *testing.T) {
	payload := "\x02\x00\x0dreleaseStream\x00\x40\x00\x00\x00\x00\x00\x00\x00\x05\x02\x00\x15abc123?sign=xyz&t=111\x00"

	cmds := commandsOf(extract(t, payload))
	require.Len(t, cmds, 1)
	assert.Equal(t, domain.CommandReleaseStream, cmds[0].Kind)
	assert.Equal(t, "stream-abc123?sign=xyz&t=111", cmds[0].StreamKey)
	assert.Equal(t, len(payload)+54, cmds[0].FrameSize)
	assert.Equal(t, clientEndpoint, cmds[0].Source)
	assert.Equal(t, serverEndpoint, cmds[0].Destination)
}

func TestExtract_ReleaseStreamTextFallback(t *testing.T) {
	// no terminator after the key, so only the text patterns can find it
	payload := "\x02\x00\x0dreleaseStream\x00\x40\x05\x02\x00\x15abc123?sign=xyz&t=111"

	cmds := commandsOf(extract(t, payload))
	require.Len(t, cmds, 1)
	assert.Equal(t, "stream-abc123?sign=xyz&t=111", cmds[0].StreamKey)
}

func TestExtract_VersionStringNearReleaseIgnored(t *testing.T) {
	payload := "\x02\x00\x1d22.3.18-tt.11.release.main.58\x00"

	assert.Empty(t, extract(t, payload))
}

func TestExtract_ReleaseStreamNameGuards(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		key     string
	}{
		{
			name:    "plain signed name",
			payload: "releaseStream ab.3.18?a=b&c=1234567 ",
			key:     "stream-ab.3.18?a=b&c=1234567",
		},
		{
			name:    "version prefixed name",
			payload: "releaseStream 22.3.18?a=b&c=1234567 ",
		},
		{
			name:    "name containing release",
			payload: "releaseStream ab?c=d&e=12345release ",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name, ok := services.ReleaseStreamName([]byte(tt.payload))
			cmds := commandsOf(extract(t, tt.payload))
			if tt.key == "" {
				assert.False(t, ok, name)
				assert.Empty(t, cmds)
				return
			}
			require.Len(t, cmds, 1)
			assert.Equal(t, tt.key, cmds[0].StreamKey)
		})
	}
}

func TestExtract_ReleaseTakesPriorityOverPublish(t *testing.T) {
	ds := extract(t, "releaseStream nothing-here publish live_abcd1234")
	assert.Empty(t, commandsOf(ds))
}

func TestExtract_Publish(t *testing.T) {
	cmds := commandsOf(extract(t, `publish "live_abcd1234" live`))
	require.Len(t, cmds, 1)
	assert.Equal(t, domain.CommandPublish, cmds[0].Kind)
	assert.Equal(t, "live_abcd1234", cmds[0].StreamKey)
}

func TestExtract_PublishTooShort(t *testing.T) {
	assert.Empty(t, commandsOf(extract(t, "publish abc")))
}

func TestExtract_ConnectProducesNothing(t *testing.T) {
	assert.Empty(t, extract(t, "\x02\x00\x07connect\x00\x3f\xf0\x00\x00\x00\x00\x00\x00\x03\x00\x03app\x02\x00\x04live"))
}

func TestExtract_URLsBeforeCommands(t *testing.T) {
	ds := extract(t, "publish live_abcd1234 rtmp://live.example.com/app/streamkey1234567890")

	require.Len(t, ds, 2)
	assert.IsType(t, domain.URLFound{}, ds[0])
	assert.IsType(t, domain.CommandFound{}, ds[1])
	assert.Equal(t, []string{"rtmp://live.example.com/app/streamkey1234567890"}, urlsOf(ds))
}
