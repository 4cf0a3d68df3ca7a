package dai

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeDisplay struct {
	listener  PlayerListener
	loads     int
	url       string
	subtitles []Subtitle
}

func (d *fakeDisplay) SetListener(l PlayerListener) { d.listener = l }

func (d *fakeDisplay) Load(url string, subtitles []Subtitle) {
	d.loads++
	d.url = url
	d.subtitles = subtitles
}

type seekingDisplay struct {
	fakeDisplay
	seeks []float64
}

func (d *seekingDisplay) Seek(t float64) { d.seeks = append(d.seeks, t) }

type fakeDecisioner struct {
	mu       sync.Mutex
	requests []StreamRequest
	release  chan struct{}
	resp     *StreamResponse
	err      error
}

func (f *fakeDecisioner) RequestStream(ctx context.Context, req StreamRequest) (*StreamResponse, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	release, resp, err := f.release, f.resp, f.err
	f.mu.Unlock()
	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return resp, err
}

func (f *fakeDecisioner) requestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

type fetchingDecisioner struct {
	fakeDecisioner
	fetchMu   sync.Mutex
	fetches   int
	refreshed []Cuepoint
}

func (f *fetchingDecisioner) FetchCuepoints(ctx context.Context, streamID string) ([]Cuepoint, error) {
	f.fetchMu.Lock()
	defer f.fetchMu.Unlock()
	f.fetches++
	return f.refreshed, nil
}

func (f *fetchingDecisioner) fetchCount() int {
	f.fetchMu.Lock()
	defer f.fetchMu.Unlock()
	return f.fetches
}

// recorder is a delegate implementing every optional listener.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) add(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) DidInitializeStream(id string) {
	r.add(Event{Kind: EventStreamInitialized, StreamID: id})
}
func (r *recorder) DidReceiveError(err error) { r.add(Event{Kind: EventError, Err: err}) }
func (r *recorder) ReadyForPlayback()         { r.add(Event{Kind: EventReadyForPlayback}) }
func (r *recorder) AdBreakDidStart(info AdBreakInfo) {
	r.add(Event{Kind: EventAdBreakStarted, Break: &info})
}
func (r *recorder) AdBreakDidEnd(info AdBreakInfo) {
	r.add(Event{Kind: EventAdBreakEnded, Break: &info})
}
func (r *recorder) AdDidStart(ad Ad)              { r.add(Event{Kind: EventAdStarted, Ad: &ad}) }
func (r *recorder) AdDidCrossFirstQuartile(ad Ad) { r.add(Event{Kind: EventFirstQuartile, Ad: &ad}) }
func (r *recorder) AdDidCrossMidpoint(ad Ad)      { r.add(Event{Kind: EventMidpoint, Ad: &ad}) }
func (r *recorder) AdDidCrossThirdQuartile(ad Ad) { r.add(Event{Kind: EventThirdQuartile, Ad: &ad}) }
func (r *recorder) AdDidComplete(ad Ad)           { r.add(Event{Kind: EventAdCompleted, Ad: &ad}) }
func (r *recorder) AdDidCountdown(ad Ad, remaining float64) {
	r.add(Event{Kind: EventCountdown, Ad: &ad, Remaining: remaining})
}
func (r *recorder) DidUpdateCuepoints(cps []Cuepoint) {
	r.add(Event{Kind: EventCuepointsChanged, Cuepoints: cps})
}

func (r *recorder) count(kind EventKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

func (r *recorder) of(kind EventKind) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, ev := range r.events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

// lifecycle returns the recorded kinds without countdowns and cuepoint updates.
func (r *recorder) lifecycle() []EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []EventKind
	for _, ev := range r.events {
		if ev.Kind == EventCountdown || ev.Kind == EventCuepointsChanged {
			continue
		}
		out = append(out, ev.Kind)
	}
	return out
}

func (r *recorder) clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

type harness struct {
	t       *testing.T
	m       *Manager
	display *fakeDisplay
	dec     *fakeDecisioner
	rec     *recorder
}

func testSettings() Settings {
	s := DefaultSettings()
	s.DebugMode = true
	return s
}

func newHarness(t *testing.T, dec Decisioner, opts ...Option) *harness {
	t.Helper()
	display := &fakeDisplay{}
	return newHarnessWithDisplay(t, display, display, dec, opts...)
}

func newHarnessWithDisplay(t *testing.T, vd VideoDisplay, display *fakeDisplay, dec Decisioner, opts ...Option) *harness {
	t.Helper()
	loop := NewLoop(0)
	t.Cleanup(loop.Close)
	opts = append([]Option{WithLoop(loop), WithSettings(testSettings())}, opts...)
	h := &harness{
		t:       t,
		m:       NewManager(vd, dec, opts...),
		display: display,
		rec:     &recorder{},
	}
	switch d := dec.(type) {
	case *fakeDecisioner:
		h.dec = d
	case *fetchingDecisioner:
		h.dec = &d.fakeDecisioner
	}
	h.do(func() { h.m.SetDelegate(h.rec) })
	return h
}

func (h *harness) do(fn func()) {
	h.t.Helper()
	require.NoError(h.t, h.m.Loop().Do(context.Background(), fn))
}

func (h *harness) request(req StreamRequest) error {
	h.t.Helper()
	var err error
	h.do(func() { err = h.m.RequestStream(req) })
	return err
}

func (h *harness) initialize(req StreamRequest) {
	h.t.Helper()
	require.NoError(h.t, h.request(req))
	h.waitFor(EventStreamInitialized, 1)
}

func (h *harness) waitFor(kind EventKind, n int) {
	h.t.Helper()
	require.Eventually(h.t, func() bool { return h.rec.count(kind) >= n }, 2*time.Second, 5*time.Millisecond,
		"waiting for %d %s events", n, kind)
}

func (h *harness) progress(times ...float64) {
	h.t.Helper()
	h.do(func() {
		for _, t := range times {
			h.display.listener.Progressed(t)
		}
	})
}

func vodResponse(cps ...Cuepoint) *StreamResponse {
	return &StreamResponse{
		StreamID:    "stream-1",
		ManifestURL: "https://dai.example.com/streams/stream-1/manifest.m3u8",
		Cuepoints:   cps,
	}
}

func ticks(from, to, step float64) []float64 {
	var out []float64
	for t := from; t <= to; t += step {
		out = append(out, t)
	}
	return out
}
