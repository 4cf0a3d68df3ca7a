package orchestrator

import (
	"dai-orchestrator/internal/dai"
)

// RemotePlayer stands in for a video player running on a client. The client reports
// progress, timed metadata and failures over HTTP; the manager's load and seek
// requests are recorded for the client to pick up.
//
// Every method must run on the session loop.
type RemotePlayer struct {
	listener  dai.PlayerListener
	url       string
	subtitles []dai.Subtitle
	events    *EventLog
}

// NewRemotePlayer returns a player that records seek requests in events.
func NewRemotePlayer(events *EventLog) *RemotePlayer {
	return &RemotePlayer{events: events}
}

// SetListener implements dai.VideoDisplay.
func (p *RemotePlayer) SetListener(l dai.PlayerListener) {
	p.listener = l
}

// Load implements dai.VideoDisplay.
func (p *RemotePlayer) Load(url string, subtitles []dai.Subtitle) {
	p.url = url
	p.subtitles = subtitles
}

// Seek implements dai.Seeker.
func (p *RemotePlayer) Seek(streamTime float64) {
	p.events.record(RecordedEvent{Kind: KindSeekRequested, StreamTime: streamTime})
}

// URL returns the last loaded manifest URL.
func (p *RemotePlayer) URL() string {
	return p.url
}

// Subtitles returns the subtitle tracks of the last load.
func (p *RemotePlayer) Subtitles() []dai.Subtitle {
	return p.subtitles
}

func (p *RemotePlayer) progressed(streamTime float64) {
	if p.listener != nil {
		p.listener.Progressed(streamTime)
	}
}

func (p *RemotePlayer) timedMetadata(md map[string]string) {
	if p.listener != nil {
		p.listener.TimedMetadata(md)
	}
}

func (p *RemotePlayer) failed(err error) {
	if p.listener != nil {
		p.listener.Failed(err)
	}
}

func (p *RemotePlayer) ready() {
	if p.listener != nil {
		p.listener.ReadyForPlayback()
	}
}
