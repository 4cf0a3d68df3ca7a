package dai

// Timeline converts between content time (as if no ads were inserted) and stream time
// (the stitched timeline). It is a view over a sorted, non-overlapping cuepoint slice
// and holds no state of its own.
type Timeline struct {
	cuepoints []Cuepoint
	live      bool
}

// NewTimeline returns a timeline over cuepoints, which must be sorted by Start and
// non-overlapping.
func NewTimeline(cuepoints []Cuepoint, live bool) Timeline {
	return Timeline{cuepoints: cuepoints, live: live}
}

// StreamTimeForContentTime returns the stream time at which contentTime plays once ads
// are inserted. Live streams are not mapped.
func (tl Timeline) StreamTimeForContentTime(contentTime float64) float64 {
	if tl.live {
		return contentTime
	}
	streamTime := contentTime
	for _, cp := range tl.cuepoints {
		if cp.Start > streamTime {
			break
		}
		streamTime += cp.Duration()
	}
	return streamTime
}

// ContentTimeForStreamTime returns the content time that is playing at streamTime.
// Inside an ad break the content time is held at the break start. Live streams are not
// mapped.
func (tl Timeline) ContentTimeForStreamTime(streamTime float64) float64 {
	if tl.live {
		return streamTime
	}
	offset := 0.0
	for _, cp := range tl.cuepoints {
		if streamTime >= cp.End {
			offset += cp.Duration()
			continue
		}
		if streamTime >= cp.Start {
			return cp.Start - offset
		}
		break
	}
	return streamTime - offset
}
