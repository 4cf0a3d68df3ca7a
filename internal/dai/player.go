package dai

// PlayerListener receives events from a VideoDisplay. Calls must be made on the
// session loop; displays that produce events on other goroutines should forward them
// with Loop.Post.
type PlayerListener interface {
	Progressed(streamTime float64)
	TimedMetadata(metadata map[string]string)
	Failed(err error)
	ReadyForPlayback()
}

// VideoDisplay is the media player that plays the stitched stream.
type VideoDisplay interface {
	// SetListener registers the listener that receives player events.
	SetListener(l PlayerListener)
	// Load loads the stream URL together with its subtitle tracks.
	Load(url string, subtitles []Subtitle)
}

// Seeker is implemented by displays that can jump to a stream time.
type Seeker interface {
	Seek(streamTime float64)
}
