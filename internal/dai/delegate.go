package dai

// Delegate receives stream manager callbacks. All callbacks run on the session loop.
// A delegate may additionally implement any of the optional listener interfaces below;
// callbacks for interfaces it does not implement are skipped.
type Delegate interface {
	DidInitializeStream(streamID string)
	DidReceiveError(err error)
}

// ReadyListener is notified when the display is ready to play the stream.
type ReadyListener interface {
	ReadyForPlayback()
}

// AdBreakListener is notified when ad breaks start and end.
type AdBreakListener interface {
	AdBreakDidStart(info AdBreakInfo)
	AdBreakDidEnd(info AdBreakInfo)
}

// AdListener is notified of per-ad progress.
type AdListener interface {
	AdDidStart(ad Ad)
	AdDidCrossFirstQuartile(ad Ad)
	AdDidCrossMidpoint(ad Ad)
	AdDidCrossThirdQuartile(ad Ad)
	AdDidComplete(ad Ad)
}

// CountdownListener is notified of the time remaining in the current ad.
type CountdownListener interface {
	AdDidCountdown(ad Ad, remaining float64)
}

// CuepointListener is notified whenever the cuepoint table changes.
type CuepointListener interface {
	DidUpdateCuepoints(cuepoints []Cuepoint)
}

// dispatch delivers ev to d. Every callback receives its own copy of the event data.
func dispatch(d Delegate, ev Event) {
	if d == nil {
		return
	}
	switch ev.Kind {
	case EventStreamInitialized:
		d.DidInitializeStream(ev.StreamID)
	case EventError:
		d.DidReceiveError(ev.Err)
	case EventReadyForPlayback:
		if l, ok := d.(ReadyListener); ok {
			l.ReadyForPlayback()
		}
	case EventAdBreakStarted, EventAdBreakEnded:
		l, ok := d.(AdBreakListener)
		if !ok || ev.Break == nil {
			return
		}
		if ev.Kind == EventAdBreakStarted {
			l.AdBreakDidStart(*ev.Break)
		} else {
			l.AdBreakDidEnd(*ev.Break)
		}
	case EventAdStarted, EventFirstQuartile, EventMidpoint, EventThirdQuartile, EventAdCompleted:
		l, ok := d.(AdListener)
		if !ok || ev.Ad == nil {
			return
		}
		ad := ev.Ad.Clone()
		switch ev.Kind {
		case EventAdStarted:
			l.AdDidStart(ad)
		case EventFirstQuartile:
			l.AdDidCrossFirstQuartile(ad)
		case EventMidpoint:
			l.AdDidCrossMidpoint(ad)
		case EventThirdQuartile:
			l.AdDidCrossThirdQuartile(ad)
		case EventAdCompleted:
			l.AdDidComplete(ad)
		}
	case EventCountdown:
		if l, ok := d.(CountdownListener); ok && ev.Ad != nil {
			l.AdDidCountdown(ev.Ad.Clone(), ev.Remaining)
		}
	case EventCuepointsChanged:
		if l, ok := d.(CuepointListener); ok {
			l.DidUpdateCuepoints(cloneCuepoints(ev.Cuepoints))
		}
	}
}
