package decision

import (
	"fmt"
	"math"
	"strings"
)

// Segment is a single media segment of a stitched stream.
type Segment struct {
	Sequence int64
	Duration float64
	Path     string

	// Discontinuity is set on the first segment after a switch between content and ads.
	Discontinuity bool
	// CueOut is the break duration announced on the first ad segment of a break.
	CueOut float64
	// CueIn is set on the first content segment after a break.
	CueIn bool
}

// BuildPlaylist renders segments (ordered by sequence ascending) as an HLS media
// playlist. If ended is true the playlist is a VOD playlist terminated by
// #EXT-X-ENDLIST. An empty segments slice produces a minimal valid playlist.
func BuildPlaylist(segments []Segment, ended bool) string {
	var b strings.Builder

	b.WriteString("#EXTM3U\n")
	b.WriteString("#EXT-X-VERSION:3\n")
	if ended {
		b.WriteString("#EXT-X-PLAYLIST-TYPE:VOD\n")
	}

	if len(segments) == 0 {
		b.WriteString("#EXT-X-TARGETDURATION:1\n")
		b.WriteString("#EXT-X-MEDIA-SEQUENCE:0\n")
		if ended {
			b.WriteString("#EXT-X-ENDLIST\n")
		}
		return b.String()
	}

	fmt.Fprintf(&b, "#EXT-X-TARGETDURATION:%d\n", targetDuration(segments))
	fmt.Fprintf(&b, "#EXT-X-MEDIA-SEQUENCE:%d\n\n", segments[0].Sequence)

	for _, seg := range segments {
		if seg.Discontinuity {
			b.WriteString("#EXT-X-DISCONTINUITY\n")
		}
		if seg.CueOut > 0 {
			fmt.Fprintf(&b, "#EXT-X-CUE-OUT:%.3f\n", seg.CueOut)
		}
		if seg.CueIn {
			b.WriteString("#EXT-X-CUE-IN\n")
		}
		fmt.Fprintf(&b, "#EXTINF:%.3f,\n", seg.Duration)
		b.WriteString(seg.Path)
		b.WriteString("\n")
	}

	if ended {
		b.WriteString("#EXT-X-ENDLIST\n")
	}
	return b.String()
}

// targetDuration returns the ceiling of the longest segment duration in seconds.
func targetDuration(segments []Segment) int {
	longest := 0.0
	for _, seg := range segments {
		longest = math.Max(longest, seg.Duration)
	}
	if longest <= 0 {
		return 1
	}
	return int(math.Ceil(longest))
}

// splitSegments cuts duration seconds into segments of at most size seconds.
func splitSegments(duration, size float64) []float64 {
	if duration <= 0 {
		return nil
	}
	if size <= 0 {
		return []float64{duration}
	}
	var out []float64
	for remaining := duration; remaining > 1e-9; remaining -= size {
		out = append(out, math.Min(size, remaining))
	}
	return out
}
