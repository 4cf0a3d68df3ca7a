package decision

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"dai-orchestrator/internal/dai"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fixturesYAML = `
segment_duration: 6
streams:
  - content_source_id: "2548831"
    video_id: tears-of-steel
    duration: 60
    content_url: https://cdn.example.com/tos/{n}.ts
    subtitles:
      - language: en
        urls:
          webvtt: https://cdn.example.com/tos/en.vtt
    pods:
      - offset: 30
        ads:
          - ad_id: mid-1
            title: Midroll one
            duration: 5
          - ad_id: mid-2
            duration: 10
            segment_url: https://ads.example.com/mid-2/{n}.ts
      - offset: 0
        ads:
          - ad_id: pre-1
            duration: 10
  - asset_key: c-rArva4ShKVIAkNfy6HUQ
    duration: 120
    pods:
      - offset: 60
        ads:
          - vast: |
              <VAST version="4.1"><Ad id="live-ad"><InLine>
                <AdSystem>GDFP</AdSystem>
                <Creatives><Creative id="c1"><Linear><Duration>00:00:20</Duration></Linear></Creative></Creatives>
              </InLine></Ad></VAST>
`

func newTestFixtureService(t *testing.T) *FixtureService {
	t.Helper()
	f, err := ParseFixtures([]byte(fixturesYAML))
	require.NoError(t, err)
	svc := NewFixtureService(f, "http://localhost:8080/", slog.New(slog.DiscardHandler))
	n := 0
	svc.newID = func() string {
		n++
		return "stream-" + strings.Repeat("x", n)
	}
	return svc
}

func TestFixtureServiceStitchesVOD(t *testing.T) {
	svc := newTestFixtureService(t)

	resp, err := svc.RequestStream(context.Background(), dai.NewVODStreamRequest("2548831", "tears-of-steel"))
	require.NoError(t, err)

	assert.Equal(t, "stream-x", resp.StreamID)
	assert.Equal(t, "http://localhost:8080/streams/stream-x/manifest.m3u8", resp.ManifestURL)
	require.Len(t, resp.Subtitles, 1)
	assert.Equal(t, "https://cdn.example.com/tos/en.vtt", resp.Subtitles[0].URLs[dai.SubtitleWebVTT])

	require.Len(t, resp.Cuepoints, 2)
	assert.Equal(t, 0.0, resp.Cuepoints[0].Start)
	assert.Equal(t, 10.0, resp.Cuepoints[0].End)
	assert.Equal(t, 40.0, resp.Cuepoints[1].Start, "midroll shifted by the preroll")
	assert.Equal(t, 55.0, resp.Cuepoints[1].End)
	require.Len(t, resp.Cuepoints[1].Ads, 2)
	assert.Equal(t, "Midroll one", resp.Cuepoints[1].Ads[0].Title)

	tl := dai.NewTimeline(resp.Cuepoints, false)
	assert.Equal(t, 30.0, tl.ContentTimeForStreamTime(40))
	assert.Equal(t, 60.0, tl.StreamTimeForContentTime(35))

	m3u8, err := svc.Manifest(resp.StreamID)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(m3u8, "#EXT-X-CUE-OUT:"))
	assert.Equal(t, 2, strings.Count(m3u8, "#EXT-X-CUE-IN"))
	assert.Equal(t, 4, strings.Count(m3u8, "#EXT-X-DISCONTINUITY"))
	assert.Equal(t, 15, strings.Count(m3u8, "#EXTINF:"))
	assert.Contains(t, m3u8, "#EXT-X-CUE-OUT:15.000")
	assert.Contains(t, m3u8, "https://ads.example.com/mid-2/1.ts")
	assert.Contains(t, m3u8, "https://cdn.example.com/tos/9.ts")
	assert.Contains(t, m3u8, "http://localhost:8080/ads/pre-1/0.ts")
	assert.True(t, strings.HasSuffix(m3u8, "#EXT-X-ENDLIST\n"))
}

func TestFixtureServiceLive(t *testing.T) {
	svc := newTestFixtureService(t)

	resp, err := svc.RequestStream(context.Background(), dai.NewLiveStreamRequest("c-rArva4ShKVIAkNfy6HUQ"))
	require.NoError(t, err)
	require.Len(t, resp.Cuepoints, 1)
	assert.Equal(t, "live-ad", resp.Cuepoints[0].Ads[0].AdID)
	assert.Equal(t, 80.0, resp.Cuepoints[0].End)

	cps, err := svc.FetchCuepoints(context.Background(), resp.StreamID)
	require.NoError(t, err)
	assert.Equal(t, resp.Cuepoints, cps)

	m3u8, err := svc.Manifest(resp.StreamID)
	require.NoError(t, err)
	assert.NotContains(t, m3u8, "#EXT-X-ENDLIST")

	assert.True(t, svc.Release(resp.StreamID))
	_, err = svc.Manifest(resp.StreamID)
	assert.ErrorIs(t, err, ErrStreamNotFound)
}

func TestFixtureServiceErrors(t *testing.T) {
	svc := newTestFixtureService(t)

	_, err := svc.RequestStream(context.Background(), dai.NewVODStreamRequest("2548831", "unknown"))
	assert.ErrorIs(t, err, ErrContentNotFound)

	_, err = svc.RequestStream(context.Background(), dai.NewVODStreamRequest("c-rArva4ShKVIAkNfy6HUQ", ""))
	assert.ErrorIs(t, err, ErrContentNotFound)

	_, err = svc.FetchCuepoints(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrStreamNotFound)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = svc.RequestStream(ctx, dai.NewLiveStreamRequest("c-rArva4ShKVIAkNfy6HUQ"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParseFixturesValidation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"both identifiers", "streams:\n  - {content_source_id: a, video_id: b, asset_key: c, duration: 10}"},
		{"missing video id", "streams:\n  - {content_source_id: a, duration: 10}"},
		{"no duration", "streams:\n  - {asset_key: c}"},
		{"pod outside content", "streams:\n  - {asset_key: c, duration: 10, pods: [{offset: 20, ads: [{duration: 5}]}]}"},
		{"empty pod", "streams:\n  - {asset_key: c, duration: 10, pods: [{offset: 5}]}"},
		{"duplicate offsets", "streams:\n  - {asset_key: c, duration: 10, pods: [{offset: 5, ads: [{duration: 1}]}, {offset: 5, ads: [{duration: 1}]}]}"},
		{"not yaml", "streams: [unclosed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseFixtures([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}

	f, err := ParseFixtures([]byte("streams: []"))
	require.NoError(t, err)
	assert.Equal(t, DefaultSegmentDuration, f.SegmentDuration)
}

func TestLoadFixtures(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fixtures.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fixturesYAML), 0o600))

	f, err := LoadFixtures(path)
	require.NoError(t, err)
	assert.Len(t, f.Streams, 2)
	assert.Equal(t, 0.0, f.Streams[0].Pods[0].Offset, "pods are sorted by offset")

	_, err = LoadFixtures(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
