package orchestrator

import (
	"errors"
	"sync"
	"time"

	"dai-orchestrator/internal/dai"
	"dai-orchestrator/internal/platform/metrics"
)

const (
	// maxRecordedEvents bounds the per-session event log; older events are dropped.
	maxRecordedEvents = 1000
	subscriberBuffer  = 256
)

// EventLog is the delegate of a session's manager. It records every callback as a
// RecordedEvent, tracks the session status and fans events out to subscribers.
// Callbacks arrive on the session loop; readers may call from any goroutine.
type EventLog struct {
	mu        sync.Mutex
	seq       int64
	events    []RecordedEvent
	status    SessionStatus
	lastError string
	subs      map[chan RecordedEvent]struct{}
	closed    bool

	metrics *metrics.Metrics
	now     func() time.Time
}

// NewEventLog returns an empty log in StatusRequesting. m may be nil.
func NewEventLog(m *metrics.Metrics) *EventLog {
	return &EventLog{
		status:  StatusRequesting,
		subs:    make(map[chan RecordedEvent]struct{}),
		metrics: m,
		now:     time.Now,
	}
}

// Status returns the session status and the last reported error, if any.
func (l *EventLog) Status() (SessionStatus, string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.status, l.lastError
}

// Since returns the retained events with Seq greater than seq.
func (l *EventLog) Since(seq int64) []RecordedEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]RecordedEvent, 0)
	for _, ev := range l.events {
		if ev.Seq > seq {
			out = append(out, ev)
		}
	}
	return out
}

// Subscribe returns a channel receiving every event recorded from now on and a
// function that cancels the subscription. The channel is closed when the
// subscription is cancelled or the log is closed. A subscriber that falls
// behind by more than its buffer misses events.
func (l *EventLog) Subscribe() (<-chan RecordedEvent, func()) {
	ch := make(chan RecordedEvent, subscriberBuffer)
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		close(ch)
		return ch, func() {}
	}
	l.subs[ch] = struct{}{}
	return ch, func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if _, ok := l.subs[ch]; ok {
			delete(l.subs, ch)
			close(ch)
		}
	}
}

// Close closes all subscriptions. Events recorded afterwards are dropped.
func (l *EventLog) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	for ch := range l.subs {
		close(ch)
	}
	l.subs = nil
}

func (l *EventLog) record(ev RecordedEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.seq++
	ev.Seq = l.seq
	ev.At = l.now()
	l.events = append(l.events, ev)
	if len(l.events) > maxRecordedEvents {
		l.events = l.events[len(l.events)-maxRecordedEvents:]
	}
	for ch := range l.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (l *EventLog) recordAd(kind dai.EventKind, ad dai.Ad) {
	l.record(RecordedEvent{Kind: kind.String(), Ad: &ad})
	if l.metrics != nil {
		l.metrics.IncAdEvents(kind.String())
	}
}

func (l *EventLog) recordBreak(kind dai.EventKind, info dai.AdBreakInfo) {
	l.record(RecordedEvent{Kind: kind.String(), Break: &info})
	if l.metrics != nil {
		l.metrics.IncAdEvents(kind.String())
	}
}

// DidInitializeStream implements dai.Delegate.
func (l *EventLog) DidInitializeStream(streamID string) {
	l.mu.Lock()
	l.status = StatusInitialized
	l.mu.Unlock()
	l.record(RecordedEvent{Kind: dai.EventStreamInitialized.String(), StreamID: streamID})
	if l.metrics != nil {
		l.metrics.IncStreamRequests(metrics.OutcomeInitialized)
	}
}

// DidReceiveError implements dai.Delegate. An error while the stream is being
// requested fails the session; later errors are only recorded.
func (l *EventLog) DidReceiveError(err error) {
	l.mu.Lock()
	requesting := l.status == StatusRequesting
	if requesting {
		l.status = StatusFailed
	}
	l.lastError = err.Error()
	l.mu.Unlock()

	l.record(RecordedEvent{Kind: dai.EventError.String(), Error: err.Error()})
	if l.metrics == nil {
		return
	}
	if requesting {
		l.metrics.IncStreamRequests(metrics.OutcomeFailed)
	}
	if errors.Is(err, dai.ErrPlayer) {
		l.metrics.IncPlayerErrors()
	}
}

// ReadyForPlayback implements dai.ReadyListener.
func (l *EventLog) ReadyForPlayback() {
	l.record(RecordedEvent{Kind: dai.EventReadyForPlayback.String()})
}

// AdBreakDidStart implements dai.AdBreakListener.
func (l *EventLog) AdBreakDidStart(info dai.AdBreakInfo) {
	l.recordBreak(dai.EventAdBreakStarted, info)
}

// AdBreakDidEnd implements dai.AdBreakListener.
func (l *EventLog) AdBreakDidEnd(info dai.AdBreakInfo) {
	l.recordBreak(dai.EventAdBreakEnded, info)
}

// AdDidStart implements dai.AdListener.
func (l *EventLog) AdDidStart(ad dai.Ad) { l.recordAd(dai.EventAdStarted, ad) }

// AdDidCrossFirstQuartile implements dai.AdListener.
func (l *EventLog) AdDidCrossFirstQuartile(ad dai.Ad) { l.recordAd(dai.EventFirstQuartile, ad) }

// AdDidCrossMidpoint implements dai.AdListener.
func (l *EventLog) AdDidCrossMidpoint(ad dai.Ad) { l.recordAd(dai.EventMidpoint, ad) }

// AdDidCrossThirdQuartile implements dai.AdListener.
func (l *EventLog) AdDidCrossThirdQuartile(ad dai.Ad) { l.recordAd(dai.EventThirdQuartile, ad) }

// AdDidComplete implements dai.AdListener.
func (l *EventLog) AdDidComplete(ad dai.Ad) { l.recordAd(dai.EventAdCompleted, ad) }

// AdDidCountdown implements dai.CountdownListener.
func (l *EventLog) AdDidCountdown(ad dai.Ad, remaining float64) {
	l.record(RecordedEvent{Kind: dai.EventCountdown.String(), Ad: &ad, Remaining: remaining})
}

// DidUpdateCuepoints implements dai.CuepointListener.
func (l *EventLog) DidUpdateCuepoints(cuepoints []dai.Cuepoint) {
	l.record(RecordedEvent{Kind: dai.EventCuepointsChanged.String(), Cuepoints: cuepoints})
}
