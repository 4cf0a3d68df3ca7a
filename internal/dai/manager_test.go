package dai

import (
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManagerRequestValidation(t *testing.T) {
	tests := []struct {
		name string
		req  StreamRequest
	}{
		{"missing source", StreamRequest{}},
		{"vod without video id", NewVODStreamRequest("cms", "")},
		{"live without asset key", NewLiveStreamRequest("")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dec := &fakeDecisioner{resp: vodResponse()}
			h := newHarness(t, dec)
			err := h.request(tt.req)
			assert.ErrorIs(t, err, ErrRequest)
			assert.Zero(t, dec.requestCount())
		})
	}
}

func TestManagerInitializesStream(t *testing.T) {
	resp := vodResponse(Cuepoint{Start: 0, End: 15})
	resp.Subtitles = []Subtitle{
		{Language: "en", URLs: map[SubtitleFormat]string{SubtitleWebVTT: "https://cdn.example.com/en.vtt"}},
		{Language: "english", URLs: map[SubtitleFormat]string{SubtitleWebVTT: "https://cdn.example.com/x.vtt"}},
	}
	h := newHarness(t, &fakeDecisioner{resp: resp})
	h.initialize(NewVODStreamRequest("cms", "tears-of-steel"))

	assert.Equal(t, 1, h.display.loads)
	assert.Equal(t, resp.ManifestURL, h.display.url)
	require.Len(t, h.display.subtitles, 1, "invalid subtitle tracks are dropped")
	assert.Equal(t, "en", h.display.subtitles[0].Language)

	h.rec.mu.Lock()
	order := kinds(h.rec.events)
	h.rec.mu.Unlock()
	assert.Equal(t, []EventKind{EventCuepointsChanged, EventStreamInitialized}, order)
	assert.Equal(t, "stream-1", h.rec.of(EventStreamInitialized)[0].StreamID)

	h.do(func() {
		assert.Equal(t, "stream-1", h.m.StreamID())
		assert.Equal(t, StreamVOD, h.m.StreamType())
		assert.Equal(t, 0.0, h.m.ContentTimeForStreamTime(5))
		assert.Equal(t, 5.0, h.m.ContentTimeForStreamTime(20))
		assert.Equal(t, 20.0, h.m.StreamTimeForContentTime(5))

		prev, ok := h.m.PreviousCuepointForStreamTime(30)
		assert.True(t, ok)
		assert.Equal(t, 15.0, prev.End)
	})
}

func TestManagerRejectsConcurrentRequests(t *testing.T) {
	dec := &fakeDecisioner{resp: vodResponse(), release: make(chan struct{})}
	h := newHarness(t, dec)

	require.NoError(t, h.request(NewVODStreamRequest("cms", "video")))
	err := h.request(NewVODStreamRequest("cms", "other"))
	assert.ErrorIs(t, err, ErrInvalidState)

	close(dec.release)
	h.waitFor(EventStreamInitialized, 1)
	assert.Equal(t, 1, dec.requestCount())

	err = h.request(NewVODStreamRequest("cms", "video"))
	assert.ErrorIs(t, err, ErrInvalidState, "an initialized session rejects new requests")
}

func TestManagerResetDropsLateResults(t *testing.T) {
	dec := &fakeDecisioner{resp: vodResponse(), release: make(chan struct{})}
	h := newHarness(t, dec)

	require.NoError(t, h.request(NewVODStreamRequest("cms", "video")))
	h.do(h.m.Reset)
	close(dec.release)

	assert.Never(t, func() bool {
		return h.rec.count(EventStreamInitialized) > 0 || h.rec.count(EventError) > 0
	}, 150*time.Millisecond, 10*time.Millisecond)
	assert.Zero(t, h.display.loads)

	h.initialize(NewVODStreamRequest("cms", "video"))
	assert.Equal(t, 1, h.display.loads)
}

func TestManagerResetClearsStream(t *testing.T) {
	h := newHarness(t, &fakeDecisioner{resp: vodResponse(Cuepoint{Start: 0, End: 10})})
	h.initialize(NewVODStreamRequest("cms", "video"))
	h.progress(2)

	h.do(func() {
		h.m.Reset()
		assert.Empty(t, h.m.StreamID())
		assert.Empty(t, h.m.Cuepoints())
		assert.Equal(t, StateIdle, h.m.BreakState())
		assert.Equal(t, 7.0, h.m.StreamTimeForContentTime(7))
	})
}

func TestManagerRequestTimeout(t *testing.T) {
	mock := clock.NewMock()
	dec := &fakeDecisioner{resp: vodResponse(), release: make(chan struct{})}
	h := newHarness(t, dec, WithClock(mock))

	require.NoError(t, h.request(NewVODStreamRequest("cms", "video")))
	mock.Add(DefaultRequestTimeout + time.Second)

	h.waitFor(EventError, 1)
	assert.ErrorIs(t, h.rec.of(EventError)[0].Err, ErrNetwork)

	close(dec.release)
	assert.Never(t, func() bool { return h.rec.count(EventStreamInitialized) > 0 },
		100*time.Millisecond, 10*time.Millisecond)

	h.initialize(NewVODStreamRequest("cms", "video"))
	mock.Add(2 * DefaultRequestTimeout)
	assert.Never(t, func() bool { return h.rec.count(EventError) > 1 },
		100*time.Millisecond, 10*time.Millisecond, "timer is stopped once the stream initializes")
}

func TestManagerNetworkFailures(t *testing.T) {
	t.Run("decisioner error", func(t *testing.T) {
		dec := &fakeDecisioner{err: errors.New("connection refused")}
		h := newHarness(t, dec)
		require.NoError(t, h.request(NewVODStreamRequest("cms", "video")))
		h.waitFor(EventError, 1)
		assert.ErrorIs(t, h.rec.of(EventError)[0].Err, ErrNetwork)

		dec.mu.Lock()
		dec.err, dec.resp = nil, vodResponse()
		dec.mu.Unlock()
		h.initialize(NewVODStreamRequest("cms", "video"))
	})

	t.Run("incomplete response", func(t *testing.T) {
		h := newHarness(t, &fakeDecisioner{resp: &StreamResponse{StreamID: "s"}})
		require.NoError(t, h.request(NewVODStreamRequest("cms", "video")))
		h.waitFor(EventError, 1)
		assert.ErrorIs(t, h.rec.of(EventError)[0].Err, ErrNetwork)
		assert.Zero(t, h.display.loads)
	})
}

func TestManagerAdTagParameters(t *testing.T) {
	settings := testSettings()
	settings.DisablePersonalizedAds = true
	settings.EnableAgeRestriction = true
	dec := &fakeDecisioner{resp: vodResponse()}
	h := newHarness(t, dec, WithSettings(settings))

	req := NewVODStreamRequest("cms", "video")
	req.AdTagParameters = map[string]string{"tfua": "0", "cust_params": "section=sports"}
	h.initialize(req)

	dec.mu.Lock()
	params := dec.requests[0].AdTagParameters
	dec.mu.Unlock()
	assert.Equal(t, map[string]string{"npa": "1", "tfua": "0", "cust_params": "section=sports"}, params)
	assert.Len(t, req.AdTagParameters, 2, "caller's request is not modified")
}

func TestManagerManifestSuffix(t *testing.T) {
	resp := vodResponse()
	resp.ManifestURL = "https://dai.example.com/m.m3u8?a=1&b=2"
	h := newHarness(t, &fakeDecisioner{resp: resp})

	req := NewVODStreamRequest("cms", "video")
	req.ManifestURLSuffix = "b=3&c=4"
	h.initialize(req)

	u, err := url.Parse(h.display.url)
	require.NoError(t, err)
	assert.Equal(t, url.Values{"a": {"1"}, "b": {"3"}, "c": {"4"}}, u.Query())
}

func TestManagerDeliverCuepoints(t *testing.T) {
	h := newHarness(t, &fakeDecisioner{resp: vodResponse()})
	h.initialize(NewVODStreamRequest("cms", "video"))

	require.True(t, h.m.DeliverCuepoints("other-stream", []Cuepoint{{Start: 0, End: 5}}))
	require.True(t, h.m.DeliverCuepoints("stream-1", []Cuepoint{{Start: 10, End: 20}}))
	h.waitFor(EventCuepointsChanged, 1)

	var cps []Cuepoint
	h.do(func() { cps = h.m.Cuepoints() })
	assert.Equal(t, []float64{10}, starts(cps))
}

func TestManagerDelegateDetach(t *testing.T) {
	h := newHarness(t, &fakeDecisioner{resp: vodResponse(Cuepoint{Start: 0, End: 10})})
	h.initialize(NewVODStreamRequest("cms", "video"))
	h.rec.clear()

	h.do(func() { h.m.SetDelegate(nil) })
	h.progress(1, 2, 3)
	assert.Empty(t, h.rec.lifecycle())
}

func TestManagerDebugModeOwnerCheck(t *testing.T) {
	h := newHarness(t, &fakeDecisioner{resp: vodResponse()})

	assert.Panics(t, func() { h.m.StreamID() })
	assert.Panics(t, func() { _ = h.m.RequestStream(NewVODStreamRequest("cms", "video")) })
	assert.NotPanics(t, func() { h.do(func() { h.m.StreamID() }) })
}

func TestManagerDebugModeOwnerCheckWhileTaskRuns(t *testing.T) {
	h := newHarness(t, &fakeDecisioner{resp: vodResponse()})

	started := make(chan struct{})
	release := make(chan struct{})
	require.True(t, h.m.Loop().Post(func() {
		close(started)
		<-release
	}))
	<-started
	defer close(release)

	assert.Panics(t, func() { h.m.StreamID() })
	assert.Panics(t, func() { h.m.Cuepoints() })
}
