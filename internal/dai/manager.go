package dai

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/time/rate"
)

// Decisioner is the ad-decisioning service that turns a stream request into a
// stitched stream.
type Decisioner interface {
	RequestStream(ctx context.Context, req StreamRequest) (*StreamResponse, error)
}

// CuepointFetcher is implemented by decisioners that can refresh the cuepoints of a
// live stream on demand.
type CuepointFetcher interface {
	FetchCuepoints(ctx context.Context, streamID string) ([]Cuepoint, error)
}

type sessionState int

const (
	sessionIdle sessionState = iota
	sessionRequesting
	sessionInitialized
)

func (s sessionState) String() string {
	switch s {
	case sessionRequesting:
		return "requesting"
	case sessionInitialized:
		return "initialized"
	default:
		return "idle"
	}
}

// Manager requests a stitched stream, owns its cuepoint table and drives the video
// display. All methods except DeliverCuepoints and Loop must be called on the manager's
// loop; all delegate callbacks are made on it.
type Manager struct {
	loop       *Loop
	display    VideoDisplay
	decisioner Decisioner
	settings   Settings
	log        *slog.Logger
	clock      clock.Clock

	delegate Delegate
	table    *CuepointTable
	bridge   *Bridge
	limiter  *rate.Limiter

	state      sessionState
	generation uint64
	kind       StreamType
	request    StreamRequest
	streamID   string
	ctx        context.Context
	cancel     context.CancelFunc
	timer      *clock.Timer
}

// Option configures a Manager.
type Option func(*Manager)

// WithSettings overrides DefaultSettings.
func WithSettings(s Settings) Option {
	return func(m *Manager) { m.settings = s }
}

// WithLogger sets the logger. By default nothing is logged.
func WithLogger(log *slog.Logger) Option {
	return func(m *Manager) { m.log = log }
}

// WithClock sets the clock used for the request timeout and refresh throttling.
func WithClock(c clock.Clock) Option {
	return func(m *Manager) { m.clock = c }
}

// WithLoop runs the manager on an existing loop instead of starting its own.
func WithLoop(l *Loop) Option {
	return func(m *Manager) { m.loop = l }
}

// NewManager returns a manager that plays streams from decisioner on display.
func NewManager(display VideoDisplay, decisioner Decisioner, opts ...Option) *Manager {
	m := &Manager{
		display:    display,
		decisioner: decisioner,
		settings:   DefaultSettings(),
		clock:      clock.New(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.log == nil {
		m.log = slog.New(slog.DiscardHandler)
	}
	if m.loop == nil {
		m.loop = NewLoop(0)
	}
	m.table = NewCuepointTable()
	m.bridge = newBridge(m, m.table, m.settings, m.log)
	m.limiter = m.newLimiter()
	display.SetListener(m.bridge)
	return m
}

func (m *Manager) newLimiter() *rate.Limiter {
	if m.settings.RefreshInterval <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(m.settings.RefreshInterval), 1)
}

// Loop returns the loop the manager runs on.
func (m *Manager) Loop() *Loop {
	return m.loop
}

// SetDelegate registers the delegate. Passing nil detaches the current one.
func (m *Manager) SetDelegate(d Delegate) {
	m.checkOwner("set delegate")
	m.delegate = d
}

// RequestStream submits req to the decisioning service. It fails with ErrRequest if
// req is malformed and with ErrInvalidState if a request is in flight or a stream is
// already initialized. The outcome is reported through the delegate.
func (m *Manager) RequestStream(req StreamRequest) error {
	const op = "request stream"
	m.checkOwner(op)
	if m.state != sessionIdle {
		return errorf(KindInvalidState, op, "session is %s", m.state)
	}
	if err := req.Validate(); err != nil {
		return err
	}

	m.request = req.clone(m.settings.adTagDefaults())
	m.kind = req.Type()
	m.state = sessionRequesting
	gen := m.generation

	ctx, cancel := context.WithCancel(context.Background())
	m.ctx, m.cancel = ctx, cancel
	if m.settings.RequestTimeout > 0 {
		timeout := m.settings.RequestTimeout
		m.timer = m.clock.AfterFunc(timeout, func() {
			m.loop.Post(func() { m.requestTimedOut(gen, timeout) })
		})
	}

	submitted := m.request.clone(nil)
	m.log.Info("requesting stream",
		slog.String("type", m.kind.String()),
		slog.Uint64("generation", gen))
	go func() {
		resp, err := m.decisioner.RequestStream(ctx, submitted)
		m.loop.Post(func() { m.completeRequest(gen, resp, err) })
	}()
	return nil
}

func (m *Manager) completeRequest(gen uint64, resp *StreamResponse, err error) {
	const op = "request stream"
	if gen != m.generation || m.state != sessionRequesting {
		m.log.Debug("dropping stale stream response", slog.Uint64("generation", gen))
		return
	}
	m.stopTimer()
	if err == nil && (resp == nil || resp.StreamID == "" || resp.ManifestURL == "") {
		err = fmt.Errorf("incomplete stream response")
	}
	var manifest string
	if err == nil {
		manifest, err = applyManifestSuffix(resp.ManifestURL, m.request.ManifestURLSuffix)
	}
	if err != nil {
		m.failRequest(newError(KindNetwork, op, err))
		return
	}

	m.streamID = resp.StreamID
	m.state = sessionInitialized
	m.log.Info("stream initialized",
		slog.String("stream_id", resp.StreamID),
		slog.Int("cuepoints", len(resp.Cuepoints)))

	m.display.Load(manifest, m.validSubtitles(resp.Subtitles))
	m.applyCuepoints(resp.Cuepoints)
	m.emit(Event{Kind: EventStreamInitialized, StreamID: resp.StreamID})
}

func (m *Manager) requestTimedOut(gen uint64, timeout time.Duration) {
	if gen != m.generation || m.state != sessionRequesting {
		return
	}
	m.generation++
	m.failRequest(errorf(KindNetwork, "request stream", "no response after %s", timeout))
}

func (m *Manager) failRequest(err *Error) {
	m.stopTimer()
	m.cancelContext()
	m.state = sessionIdle
	m.kind = 0
	m.request = StreamRequest{}
	m.log.Warn("stream request failed", slog.String("error", err.Error()))
	m.emit(Event{Kind: EventError, Err: err})
}

func (m *Manager) cancelContext() {
	if m.cancel != nil {
		m.cancel()
	}
	m.ctx, m.cancel = nil, nil
}

func (m *Manager) stopTimer() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

func (m *Manager) validSubtitles(subs []Subtitle) []Subtitle {
	v := getValidator()
	out := make([]Subtitle, 0, len(subs))
	for _, s := range cloneSubtitles(subs) {
		if err := v.Struct(s); err != nil {
			m.log.Warn("dropping subtitle track",
				slog.String("language", s.Language),
				slog.String("error", describeValidation(err).Error()))
			continue
		}
		out = append(out, s)
	}
	return out
}

// DeliverCuepoints pushes a cuepoint update for streamID. It may be called from any
// goroutine; updates for a stream other than the current one are dropped.
func (m *Manager) DeliverCuepoints(streamID string, cuepoints []Cuepoint) bool {
	cps := cloneCuepoints(cuepoints)
	return m.loop.Post(func() {
		if m.state != sessionInitialized || m.streamID != streamID {
			m.log.Debug("dropping cuepoints for inactive stream", slog.String("stream_id", streamID))
			return
		}
		m.applyCuepoints(cps)
	})
}

// Reset abandons the current stream. Any in-flight request is invalidated and its
// late result dropped; the cuepoint table and all break state are discarded.
func (m *Manager) Reset() {
	m.checkOwner("reset")
	m.generation++
	m.stopTimer()
	m.cancelContext()
	m.table = NewCuepointTable()
	m.bridge.reset(m.table)
	m.limiter = m.newLimiter()
	m.state = sessionIdle
	m.kind = 0
	m.request = StreamRequest{}
	m.streamID = ""
}

// StreamTimeForContentTime returns the stream time for contentTime. Live streams and
// sessions without cuepoints map to identity.
func (m *Manager) StreamTimeForContentTime(contentTime float64) float64 {
	m.checkOwner("stream time for content time")
	return m.table.Timeline(m.kind == StreamLive).StreamTimeForContentTime(contentTime)
}

// ContentTimeForStreamTime returns the content time for streamTime. Live streams and
// sessions without cuepoints map to identity.
func (m *Manager) ContentTimeForStreamTime(streamTime float64) float64 {
	m.checkOwner("content time for stream time")
	return m.table.Timeline(m.kind == StreamLive).ContentTimeForStreamTime(streamTime)
}

// PreviousCuepointForStreamTime returns the last cuepoint starting at or before streamTime.
func (m *Manager) PreviousCuepointForStreamTime(streamTime float64) (Cuepoint, bool) {
	m.checkOwner("previous cuepoint")
	return m.table.FindPrevious(streamTime)
}

// Cuepoints returns a copy of the current cuepoint table.
func (m *Manager) Cuepoints() []Cuepoint {
	m.checkOwner("cuepoints")
	return m.table.Snapshot()
}

// StreamID returns the ID of the initialized stream, or "" if there is none.
func (m *Manager) StreamID() string {
	m.checkOwner("stream id")
	return m.streamID
}

// StreamType returns the type of the requested stream, or 0 if none was requested.
func (m *Manager) StreamType() StreamType {
	m.checkOwner("stream type")
	return m.kind
}

// BreakState returns the state of the ad break state machine.
func (m *Manager) BreakState() BreakState {
	m.checkOwner("break state")
	return m.bridge.State()
}

// bridgeSink implementation.

func (m *Manager) checkOwner(op string) {
	if m.settings.DebugMode && !m.loop.Executing() {
		panic(fmt.Sprintf("dai: %s called outside the session loop", op))
	}
}

func (m *Manager) emit(ev Event) {
	dispatch(m.delegate, ev)
}

func (m *Manager) applyCuepoints(cps []Cuepoint) {
	if len(cps) == 0 {
		return
	}
	if m.state != sessionInitialized {
		m.log.Debug("ignoring cuepoints before stream initialization", slog.Int("count", len(cps)))
		return
	}
	snapshot, rejected := m.table.Update(cps)
	if rejected > 0 {
		m.log.Warn("rejected invalid cuepoints", slog.Int("rejected", rejected))
	}
	m.bridge.syncBreak()
	m.emit(Event{Kind: EventCuepointsChanged, Cuepoints: snapshot})
}

func (m *Manager) markPlayed(start float64) {
	m.table.MarkPlayed(start)
}

func (m *Manager) requestRefresh() {
	if m.kind != StreamLive || m.state != sessionInitialized {
		return
	}
	fetcher, ok := m.decisioner.(CuepointFetcher)
	if !ok {
		return
	}
	if !m.limiter.AllowN(m.clock.Now(), 1) {
		m.log.Debug("cuepoint refresh throttled")
		return
	}
	gen, streamID, ctx := m.generation, m.streamID, m.ctx
	go func() {
		cps, err := fetcher.FetchCuepoints(ctx, streamID)
		m.loop.Post(func() { m.completeRefresh(gen, streamID, cps, err) })
	}()
}

func (m *Manager) completeRefresh(gen uint64, streamID string, cps []Cuepoint, err error) {
	if gen != m.generation || streamID != m.streamID {
		m.log.Debug("dropping stale cuepoint refresh", slog.String("stream_id", streamID))
		return
	}
	if err != nil {
		m.emit(Event{Kind: EventError, Err: newError(KindNetwork, "refresh cuepoints", err)})
		return
	}
	m.applyCuepoints(cps)
}

func (m *Manager) seek(streamTime float64) bool {
	s, ok := m.display.(Seeker)
	if !ok {
		return false
	}
	s.Seek(streamTime)
	return true
}

func (m *Manager) playerFailed(err error) {
	m.log.Warn("video display failed", slog.String("error", fmt.Sprint(err)))
	m.emit(Event{Kind: EventError, Err: newError(KindPlayer, "playback", err)})
}

func (m *Manager) playerReady() {
	m.emit(Event{Kind: EventReadyForPlayback})
}

func (m *Manager) streamType() StreamType {
	return m.kind
}
