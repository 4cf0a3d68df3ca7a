package dai

import "fmt"

// BreakState is the state of the ad break state machine. States are ordered: within
// an ad, the quartile states only ever move forward, so each quartile fires at most
// once per ad per traversal.
type BreakState int

const (
	StateIdle BreakState = iota
	StateBreakPending
	StateAdPlaying
	StateFirstQuartile
	StateMidpoint
	StateThirdQuartile
	StateAdComplete
	StateBreakEnded
)

func (s BreakState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateBreakPending:
		return "break_pending"
	case StateAdPlaying:
		return "ad_playing"
	case StateFirstQuartile:
		return "first_quartile"
	case StateMidpoint:
		return "midpoint"
	case StateThirdQuartile:
		return "third_quartile"
	case StateAdComplete:
		return "ad_complete"
	case StateBreakEnded:
		return "break_ended"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

var quartiles = []struct {
	state    BreakState
	fraction float64
	kind     EventKind
}{
	{StateFirstQuartile, 0.25, EventFirstQuartile},
	{StateMidpoint, 0.50, EventMidpoint},
	{StateThirdQuartile, 0.75, EventThirdQuartile},
}

// breakOutcome reports how a call to advance left the machine.
type breakOutcome struct {
	ended  bool
	played bool
	start  float64
}

// breakMachine tracks progress through one ad break. It knows nothing about the
// player or the cuepoint table and returns the events each transition produces.
type breakMachine struct {
	state     BreakState
	cue       Cuepoint
	info      AdBreakInfo
	ads       []Ad
	index     int
	adStart   float64
	countdown bool
}

func (m *breakMachine) active() bool {
	return m.state != StateIdle
}

// enter begins a break for cue and starts its first ad.
func (m *breakMachine) enter(cue Cuepoint, info AdBreakInfo) []Event {
	m.cue = cue
	m.ads = breakAds(cue, &m.info)
	info.TotalAds = len(m.ads)
	m.info = info
	m.index = 0
	m.adStart = cue.Start
	m.state = StateBreakPending

	evs := []Event{breakEvent(EventAdBreakStarted, m.info)}
	return m.startAd(evs)
}

func (m *breakMachine) startAd(evs []Event) []Event {
	m.state = StateAdPlaying
	return append(evs, adEvent(EventAdStarted, m.ads[m.index]))
}

// advance moves the machine to streamTime.
func (m *breakMachine) advance(streamTime float64) ([]Event, breakOutcome) {
	var evs []Event
	for m.active() {
		if streamTime < m.cue.Start {
			return m.finish(evs, false)
		}
		ad := m.ads[m.index]
		adEnd := m.adStart + ad.Duration
		evs = m.crossQuartiles(evs, ad, streamTime)
		if streamTime >= adEnd {
			evs = append(evs, adEvent(EventAdCompleted, ad))
			m.state = StateAdComplete
			if m.index+1 < len(m.ads) {
				m.index++
				m.adStart = adEnd
				evs = m.startAd(evs)
				continue
			}
			return m.finish(evs, true)
		}
		if streamTime >= m.cue.End {
			return m.finish(evs, true)
		}
		if m.countdown {
			remaining := adEnd - streamTime
			if remaining > ad.Duration {
				remaining = ad.Duration
			}
			ev := adEvent(EventCountdown, ad)
			ev.Remaining = remaining
			evs = append(evs, ev)
		}
		break
	}
	return evs, breakOutcome{}
}

// completeAd completes the current ad at streamTime whatever its progress, then starts
// the next ad or ends the break after the last one.
func (m *breakMachine) completeAd(streamTime float64) ([]Event, breakOutcome) {
	if !m.active() {
		return nil, breakOutcome{}
	}
	evs := []Event{adEvent(EventAdCompleted, m.ads[m.index])}
	m.state = StateAdComplete
	if m.index+1 < len(m.ads) {
		m.index++
		m.adStart = max(streamTime, m.adStart)
		return m.startAd(evs), breakOutcome{}
	}
	return m.finish(evs, true)
}

// update swaps in a newer version of the active break's cuepoint. Ads already started
// keep their place; a break without ad metadata stretches its single ad to the new range.
func (m *breakMachine) update(cue Cuepoint) {
	if !m.active() || cue.Start != m.cue.Start {
		return
	}
	m.info.Duration = cue.Duration()
	ads := breakAds(cue, &m.info)
	if m.index >= len(ads) {
		m.cue.End = cue.End
		return
	}
	adStart := cue.Start
	for _, ad := range ads[:m.index] {
		adStart += ad.Duration
	}
	m.cue = cue
	m.ads = ads
	m.adStart = adStart
	m.info.TotalAds = len(ads)
}

func (m *breakMachine) crossQuartiles(evs []Event, ad Ad, streamTime float64) []Event {
	elapsed := streamTime - m.adStart
	if elapsed < 0 {
		return evs
	}
	for _, q := range quartiles {
		if m.state >= q.state {
			continue
		}
		if elapsed < q.fraction*ad.Duration {
			break
		}
		evs = append(evs, adEvent(q.kind, ad))
		m.state = q.state
	}
	return evs
}

func (m *breakMachine) finish(evs []Event, played bool) ([]Event, breakOutcome) {
	m.state = StateBreakEnded
	evs = append(evs, breakEvent(EventAdBreakEnded, m.info))
	out := breakOutcome{ended: true, played: played, start: m.cue.Start}
	m.reset()
	return evs, out
}

func (m *breakMachine) reset() {
	countdown := m.countdown
	*m = breakMachine{countdown: countdown}
}

// breakAds returns the ads of cue with positions and break info filled in. A cuepoint
// without ad metadata yields a single ad spanning the whole break.
func breakAds(cue Cuepoint, info *AdBreakInfo) []Ad {
	if len(cue.Ads) == 0 {
		return []Ad{{Duration: cue.Duration(), Position: 1, BreakInfo: info}}
	}
	ads := make([]Ad, len(cue.Ads))
	for i, ad := range cue.Ads {
		a := ad.Clone()
		a.Position = i + 1
		a.BreakInfo = info
		ads[i] = a
	}
	return ads
}
