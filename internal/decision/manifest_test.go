package decision

import (
	"strings"
	"testing"
)

func TestBuildPlaylist_empty_live(t *testing.T) {
	out := BuildPlaylist(nil, false)
	if !strings.HasPrefix(out, "#EXTM3U\n") {
		t.Error("expected #EXTM3U header")
	}
	if !strings.Contains(out, "#EXT-X-TARGETDURATION:1") {
		t.Error("expected target duration 1 for empty")
	}
	if !strings.Contains(out, "#EXT-X-MEDIA-SEQUENCE:0") {
		t.Error("expected media sequence 0")
	}
	if strings.Contains(out, "#EXT-X-ENDLIST") || strings.Contains(out, "PLAYLIST-TYPE") {
		t.Errorf("live playlist must not be terminated: %s", out)
	}
}

func TestBuildPlaylist_vod(t *testing.T) {
	segs := []Segment{
		{Sequence: 0, Duration: 6, Path: "/content/0.ts"},
		{Sequence: 1, Duration: 2.5, Path: "/content/1.ts"},
	}
	out := BuildPlaylist(segs, true)

	if !strings.Contains(out, "#EXT-X-PLAYLIST-TYPE:VOD") {
		t.Errorf("expected VOD playlist type: %s", out)
	}
	if !strings.HasSuffix(out, "#EXT-X-ENDLIST\n") {
		t.Errorf("expected ENDLIST at the end: %s", out)
	}
	if !strings.Contains(out, "#EXTINF:2.500,\n/content/1.ts") {
		t.Errorf("expected EXTINF before its segment: %s", out)
	}
}

func TestBuildPlaylist_ad_markers(t *testing.T) {
	segs := []Segment{
		{Sequence: 7, Duration: 4, Path: "/content/0.ts"},
		{Sequence: 8, Duration: 6, Path: "/ads/a/0.ts", Discontinuity: true, CueOut: 10},
		{Sequence: 9, Duration: 4, Path: "/ads/a/1.ts"},
		{Sequence: 10, Duration: 6, Path: "/content/1.ts", Discontinuity: true, CueIn: true},
	}
	out := BuildPlaylist(segs, true)

	if !strings.Contains(out, "#EXT-X-MEDIA-SEQUENCE:7") {
		t.Errorf("expected MEDIA-SEQUENCE 7: %s", out)
	}
	if got := strings.Count(out, "#EXT-X-DISCONTINUITY\n"); got != 2 {
		t.Errorf("expected 2 discontinuities, got %d", got)
	}
	if !strings.Contains(out, "#EXT-X-DISCONTINUITY\n#EXT-X-CUE-OUT:10.000\n#EXTINF:6.000,\n/ads/a/0.ts") {
		t.Errorf("expected cue-out on first ad segment: %s", out)
	}
	if !strings.Contains(out, "#EXT-X-CUE-IN\n#EXTINF:6.000,\n/content/1.ts") {
		t.Errorf("expected cue-in on first content segment after the break: %s", out)
	}
}

func TestTargetDuration_ceiling(t *testing.T) {
	if got := targetDuration([]Segment{{Duration: 1.1}}); got != 2 {
		t.Errorf("targetDuration = %d, want 2", got)
	}
	if got := targetDuration([]Segment{{Duration: 0}}); got != 1 {
		t.Errorf("targetDuration = %d, want 1", got)
	}
}

func TestSplitSegments(t *testing.T) {
	got := splitSegments(15, 6)
	want := []float64{6, 6, 3}
	if len(got) != len(want) {
		t.Fatalf("splitSegments = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("segment %d = %v, want %v", i, got[i], want[i])
		}
	}
	if splitSegments(0, 6) != nil {
		t.Error("expected no segments for zero duration")
	}
}
