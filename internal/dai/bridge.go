package dai

import (
	"log/slog"
	"math"
	"strconv"

	"github.com/goccy/go-json"
)

// Timed metadata keys understood by the bridge.
const (
	// MetadataCuepointsKey carries a JSON array of cuepoints to merge into the table.
	MetadataCuepointsKey = "dai.cuepoints"
	// MetadataRefreshKey asks for a live cuepoint refresh from the decisioning service.
	MetadataRefreshKey = "dai.refresh"
	// MetadataAdCompleteKey reports that the player finished the current ad.
	MetadataAdCompleteKey = "dai.ad_complete"
	// MetadataTimeKey carries the stream time the metadata was observed at.
	MetadataTimeKey = "time"
)

// bridgeSink is the bridge's view of its owning controller. The controller stays the
// only writer of the cuepoint table and the only dispatcher of the delegate.
type bridgeSink interface {
	checkOwner(op string)
	emit(ev Event)
	applyCuepoints(cps []Cuepoint)
	markPlayed(start float64)
	requestRefresh()
	seek(streamTime float64) bool
	playerFailed(err error)
	playerReady()
	streamType() StreamType
}

// Bridge translates video display events into ad lifecycle events. It reads the
// cuepoint table but never writes it.
type Bridge struct {
	sink    bridgeSink
	table   *CuepointTable
	machine breakMachine
	skip     bool
	snapback bool
	log      *slog.Logger

	// insideStart is the Start of the cuepoint the previous tick fell in, if any.
	insideStart float64
	inside      bool

	last    float64
	hasLast bool

	// snapTarget is where playback resumes after a break played because of snapback.
	snapTarget  float64
	snapPending bool
}

func newBridge(sink bridgeSink, table *CuepointTable, settings Settings, log *slog.Logger) *Bridge {
	return &Bridge{
		sink:    sink,
		table:   table,
		machine: breakMachine{countdown: settings.Countdown},
		skip:     settings.SkipPlayedBreaks,
		snapback: settings.Snapback,
		log:      log,
	}
}

// State returns the current break state.
func (b *Bridge) State() BreakState {
	return b.machine.state
}

// Progressed implements PlayerListener.
func (b *Bridge) Progressed(streamTime float64) {
	b.sink.checkOwner("progressed")
	if math.IsNaN(streamTime) || math.IsInf(streamTime, 0) {
		return
	}
	b.progress(streamTime)
}

// TimedMetadata implements PlayerListener. Embedded cuepoints are applied and an ad
// complete signal is handled before the tick's progress is processed.
func (b *Bridge) TimedMetadata(metadata map[string]string) {
	b.sink.checkOwner("timed metadata")
	t, hasTime := b.metadataTime(metadata)
	if raw, ok := metadata[MetadataCuepointsKey]; ok {
		var cps []Cuepoint
		if err := json.Unmarshal([]byte(raw), &cps); err != nil {
			b.log.Warn("ignoring malformed cuepoint metadata", slog.String("error", err.Error()))
		} else {
			b.sink.applyCuepoints(cps)
		}
	}
	if _, ok := metadata[MetadataRefreshKey]; ok {
		b.sink.requestRefresh()
	}
	if _, ok := metadata[MetadataAdCompleteKey]; ok {
		at := b.last
		if hasTime {
			at = t
		}
		b.completeAd(at)
	}
	if hasTime {
		b.progress(t)
	}
}

func (b *Bridge) metadataTime(metadata map[string]string) (float64, bool) {
	raw, ok := metadata[MetadataTimeKey]
	if !ok {
		return 0, false
	}
	t, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(t) || math.IsInf(t, 0) {
		b.log.Debug("ignoring metadata time", slog.String("time", raw))
		return 0, false
	}
	return t, true
}

// Failed implements PlayerListener.
func (b *Bridge) Failed(err error) {
	b.sink.checkOwner("failed")
	b.sink.playerFailed(err)
}

// ReadyForPlayback implements PlayerListener.
func (b *Bridge) ReadyForPlayback() {
	b.sink.checkOwner("ready for playback")
	b.sink.playerReady()
}

func (b *Bridge) progress(t float64) {
	defer b.track(t)

	if b.machine.active() && !b.step(t) {
		return
	}
	if b.snapBack(t) {
		return
	}

	idx, cp, ok := b.table.Containing(t)
	if !ok {
		return
	}
	if cp.Played {
		b.skipPlayed(cp)
		return
	}
	b.emitAll(b.machine.enter(cp, b.breakInfo(idx, cp)))
	b.step(t)
}

// step advances the active break and reports whether it ended.
func (b *Bridge) step(t float64) bool {
	evs, out := b.machine.advance(t)
	return b.settle(t, evs, out)
}

func (b *Bridge) completeAd(t float64) {
	if !b.machine.active() {
		b.log.Debug("ignoring ad complete outside an ad break")
		return
	}
	evs, out := b.machine.completeAd(t)
	b.settle(t, evs, out)
}

func (b *Bridge) settle(t float64, evs []Event, out breakOutcome) bool {
	b.emitAll(evs)
	if !out.ended {
		return false
	}
	if out.played {
		b.sink.markPlayed(out.start)
	}
	if b.snapPending {
		b.snapPending = false
		if out.played && b.snapTarget > t {
			b.sink.seek(b.snapTarget)
		}
	}
	return true
}

// snapBack turns a forward jump over unplayed breaks into a seek back to the last of
// them. Playback resumes at the jump target once that break has played.
func (b *Bridge) snapBack(t float64) bool {
	if !b.snapback || !b.hasLast || t <= b.last {
		return false
	}
	cp, ok := b.table.LastUnplayedWithin(b.last, t)
	if !ok || !b.sink.seek(cp.Start) {
		return false
	}
	b.snapTarget, b.snapPending = t, true
	b.log.Debug("snapping back to skipped ad break",
		slog.Float64("start", cp.Start),
		slog.Float64("target", t))
	return true
}

// syncBreak picks up a table update to the cuepoint of the break in progress.
func (b *Bridge) syncBreak() {
	if !b.machine.active() {
		return
	}
	start := b.machine.cue.Start
	if _, cp, ok := b.table.Containing(start); ok && cp.Start == start {
		b.machine.update(cp)
	}
}

func (b *Bridge) skipPlayed(cp Cuepoint) {
	if !b.skip || (b.inside && b.insideStart == cp.Start) {
		return
	}
	if b.sink.seek(cp.End) {
		b.log.Debug("skipping played ad break",
			slog.Float64("start", cp.Start),
			slog.Float64("end", cp.End))
	}
}

func (b *Bridge) track(t float64) {
	_, cp, ok := b.table.Containing(t)
	b.inside = ok
	b.insideStart = cp.Start
	b.last, b.hasLast = t, true
}

// breakInfo describes the break at table index idx. Index and offset are only
// meaningful for VOD streams and keep their sentinels otherwise.
func (b *Bridge) breakInfo(idx int, cp Cuepoint) AdBreakInfo {
	info := AdBreakInfo{
		Duration:     cp.Duration(),
		AdBreakIndex: -1,
	}
	if b.sink.streamType() == StreamVOD {
		info.AdBreakIndex = idx
		info.TimeOffset = cp.Start
	}
	return info
}

func (b *Bridge) emitAll(evs []Event) {
	for _, ev := range evs {
		b.sink.emit(ev)
	}
}

func (b *Bridge) reset(table *CuepointTable) {
	b.table = table
	b.machine.reset()
	b.inside = false
	b.insideStart = 0
	b.last, b.hasLast = 0, false
	b.snapTarget, b.snapPending = 0, false
}
