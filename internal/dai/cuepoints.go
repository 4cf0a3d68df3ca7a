package dai

import "sort"

// CuepointTable holds the ad breaks of a stream, sorted by Start and pairwise
// non-overlapping. It is owned by a single Manager and is not safe for concurrent use.
type CuepointTable struct {
	cuepoints []Cuepoint
}

// NewCuepointTable returns an empty table.
func NewCuepointTable() *CuepointTable {
	return &CuepointTable{}
}

// Update merges incoming into the table and returns a copy of the resulting sequence.
// An incoming cuepoint replaces an existing one with the same Start, taking its Played
// flag from the incoming value, and evicts any existing cuepoint it overlaps. Invalid
// cuepoints are skipped and counted in rejected.
func (t *CuepointTable) Update(incoming []Cuepoint) (snapshot []Cuepoint, rejected int) {
	for _, cp := range incoming {
		if !cp.Valid() {
			rejected++
			continue
		}
		t.insert(cp.Clone())
	}
	return t.Snapshot(), rejected
}

func (t *CuepointTable) insert(cp Cuepoint) {
	kept := t.cuepoints[:0:0]
	for _, existing := range t.cuepoints {
		if existing.overlaps(cp) {
			continue
		}
		kept = append(kept, existing)
	}
	// Insert after any existing entries with the same Start so that ordering stays stable.
	i := sort.Search(len(kept), func(i int) bool { return kept[i].Start > cp.Start })
	kept = append(kept, Cuepoint{})
	copy(kept[i+1:], kept[i:])
	kept[i] = cp
	t.cuepoints = kept
}

// FindPrevious returns the cuepoint with the greatest Start not after streamTime.
func (t *CuepointTable) FindPrevious(streamTime float64) (Cuepoint, bool) {
	i := sort.Search(len(t.cuepoints), func(i int) bool { return t.cuepoints[i].Start > streamTime })
	if i == 0 {
		return Cuepoint{}, false
	}
	return t.cuepoints[i-1].Clone(), true
}

// Containing returns the index and a copy of the cuepoint whose range contains streamTime.
func (t *CuepointTable) Containing(streamTime float64) (int, Cuepoint, bool) {
	i := sort.Search(len(t.cuepoints), func(i int) bool { return t.cuepoints[i].Start > streamTime })
	if i == 0 {
		return -1, Cuepoint{}, false
	}
	cp := t.cuepoints[i-1]
	if !cp.Contains(streamTime) {
		return -1, Cuepoint{}, false
	}
	return i - 1, cp.Clone(), true
}

// LastUnplayedWithin returns the last unplayed cuepoint that starts after from and ends
// at or before to. Empty cuepoints are ignored.
func (t *CuepointTable) LastUnplayedWithin(from, to float64) (Cuepoint, bool) {
	for i := len(t.cuepoints) - 1; i >= 0; i-- {
		cp := t.cuepoints[i]
		if cp.Start <= from {
			break
		}
		if cp.Played || cp.End > to || cp.Duration() <= 0 {
			continue
		}
		return cp.Clone(), true
	}
	return Cuepoint{}, false
}

// MarkPlayed flags the cuepoint starting at start as played. It is idempotent and
// reports whether the flag changed.
func (t *CuepointTable) MarkPlayed(start float64) bool {
	for i := range t.cuepoints {
		if t.cuepoints[i].Start != start {
			continue
		}
		if t.cuepoints[i].Played {
			return false
		}
		t.cuepoints[i].Played = true
		return true
	}
	return false
}

// Snapshot returns a deep copy of the table contents in order.
func (t *CuepointTable) Snapshot() []Cuepoint {
	return cloneCuepoints(t.cuepoints)
}

// Len returns the number of cuepoints in the table.
func (t *CuepointTable) Len() int {
	return len(t.cuepoints)
}

// Timeline returns a mapper over the current contents.
func (t *CuepointTable) Timeline(live bool) Timeline {
	return Timeline{cuepoints: t.cuepoints, live: live}
}
