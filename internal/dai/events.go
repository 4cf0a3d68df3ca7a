package dai

import "fmt"

// EventKind names an event delivered to the delegate.
type EventKind int

const (
	EventStreamInitialized EventKind = iota + 1
	EventError
	EventReadyForPlayback
	EventAdBreakStarted
	EventAdStarted
	EventFirstQuartile
	EventMidpoint
	EventThirdQuartile
	EventAdCompleted
	EventAdBreakEnded
	EventCountdown
	EventCuepointsChanged
)

var eventKindNames = map[EventKind]string{
	EventStreamInitialized: "stream_initialized",
	EventError:             "error",
	EventReadyForPlayback:  "ready_for_playback",
	EventAdBreakStarted:    "ad_break_started",
	EventAdStarted:         "ad_started",
	EventFirstQuartile:     "first_quartile",
	EventMidpoint:          "midpoint",
	EventThirdQuartile:     "third_quartile",
	EventAdCompleted:       "ad_completed",
	EventAdBreakEnded:      "ad_break_ended",
	EventCountdown:         "countdown",
	EventCuepointsChanged:  "cuepoints_changed",
}

func (k EventKind) String() string {
	if name, ok := eventKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("event(%d)", int(k))
}

// MarshalText implements encoding.TextMarshaler.
func (k EventKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *EventKind) UnmarshalText(b []byte) error {
	for kind, name := range eventKindNames {
		if name == string(b) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown event kind %q", string(b))
}

// Event is a single notification produced by the manager. Only the fields relevant to
// Kind are set.
type Event struct {
	Kind      EventKind    `json:"kind"`
	StreamID  string       `json:"stream_id,omitempty"`
	Ad        *Ad          `json:"ad,omitempty"`
	Break     *AdBreakInfo `json:"break,omitempty"`
	Remaining float64      `json:"remaining,omitempty"`
	Cuepoints []Cuepoint   `json:"cuepoints,omitempty"`
	Err       error        `json:"-"`
}

func adEvent(kind EventKind, ad Ad) Event {
	c := ad.Clone()
	return Event{Kind: kind, Ad: &c}
}

func breakEvent(kind EventKind, info AdBreakInfo) Event {
	return Event{Kind: kind, Break: &info}
}
