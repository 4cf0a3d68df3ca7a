package orchestrator

import (
	"time"

	"dai-orchestrator/internal/dai"
)

// SessionID uniquely identifies a playback session.
type SessionID string

// SessionStatus is the lifecycle status of a session as seen by API clients.
type SessionStatus string

const (
	StatusRequesting  SessionStatus = "requesting"
	StatusInitialized SessionStatus = "initialized"
	StatusFailed      SessionStatus = "failed"
)

// Session is the in-memory state of one playback session: a stream manager running on
// its own loop, the remote player it drives and the log of events it produced.
type Session struct {
	ID        SessionID
	CreatedAt time.Time

	loop    *dai.Loop
	manager *dai.Manager
	player  *RemotePlayer
	events  *EventLog
}

// SessionView is the JSON representation of a session.
type SessionView struct {
	ID          SessionID      `json:"id"`
	Status      SessionStatus  `json:"status"`
	StreamID    string         `json:"stream_id,omitempty"`
	StreamType  string         `json:"stream_type"`
	ManifestURL string         `json:"manifest_url,omitempty"`
	Subtitles   []dai.Subtitle `json:"subtitles,omitempty"`
	BreakState  string         `json:"break_state"`
	Cuepoints   []dai.Cuepoint `json:"cuepoints"`
	LastError   string         `json:"last_error,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// RecordedEvent is an event in a session's log. Seq starts at 1 and increases by one
// for every event of the session.
type RecordedEvent struct {
	Seq        int64            `json:"seq"`
	At         time.Time        `json:"at"`
	Kind       string           `json:"kind"`
	StreamID   string           `json:"stream_id,omitempty"`
	Ad         *dai.Ad          `json:"ad,omitempty"`
	Break      *dai.AdBreakInfo `json:"break,omitempty"`
	Remaining  float64          `json:"remaining,omitempty"`
	Cuepoints  []dai.Cuepoint   `json:"cuepoints,omitempty"`
	StreamTime float64          `json:"stream_time,omitempty"`
	Error      string           `json:"error,omitempty"`
}

// KindSeekRequested is recorded when the manager asks the player to seek.
const KindSeekRequested = "seek_requested"
