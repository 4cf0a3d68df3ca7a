package dai

import "math"

// AdBreakInfo describes a single ad break.
type AdBreakInfo struct {
	TotalAds int     `json:"total_ads"`
	Duration float64 `json:"duration"`
	// AdBreakIndex is -1 when the break is not part of a VOD ad playlist.
	AdBreakIndex int `json:"ad_break_index"`
	// TimeOffset is 0 when the break is not part of a VOD ad playlist.
	TimeOffset float64 `json:"time_offset"`
}

// Companion is a companion creative attached to an ad. Zero dimensions mean unspecified.
type Companion struct {
	StaticResourceURL string `json:"static_resource_url"`
	APIFramework      string `json:"api_framework,omitempty"`
	Width             int    `json:"width"`
	Height            int    `json:"height"`
}

// Wrapper identifies one wrapper ad in the VAST chain that led to an inline ad.
type Wrapper struct {
	AdID       string `json:"ad_id"`
	System     string `json:"system"`
	CreativeID string `json:"creative_id"`
	DealID     string `json:"deal_id"`
}

// Ad is a snapshot of a single ad's metadata.
type Ad struct {
	AdID                  string  `json:"ad_id"`
	Title                 string  `json:"title"`
	System                string  `json:"system"`
	Description           string  `json:"description"`
	Advertiser            string  `json:"advertiser"`
	CreativeID            string  `json:"creative_id"`
	CreativeAdID          string  `json:"creative_ad_id"`
	DealID                string  `json:"deal_id"`
	UniversalAdIDRegistry string  `json:"universal_ad_id_registry"`
	UniversalAdIDValue    string  `json:"universal_ad_id_value"`
	Duration              float64 `json:"duration"`
	// Position is the 1-based index of the ad within its break.
	Position   int          `json:"position"`
	BreakInfo  *AdBreakInfo `json:"break_info,omitempty"`
	Companions []Companion  `json:"companions,omitempty"`
	// Wrappers are ordered starting with the wrapper closest to the inline ad.
	Wrappers []Wrapper `json:"wrappers,omitempty"`
}

// WrapperAdIDs returns the wrapper ad IDs, nearest to inline first.
func (a Ad) WrapperAdIDs() []string {
	return a.wrapperField(func(w Wrapper) string { return w.AdID })
}

// WrapperSystems returns the wrapper ad systems, nearest to inline first.
func (a Ad) WrapperSystems() []string {
	return a.wrapperField(func(w Wrapper) string { return w.System })
}

// WrapperCreativeIDs returns the wrapper creative IDs, nearest to inline first.
func (a Ad) WrapperCreativeIDs() []string {
	return a.wrapperField(func(w Wrapper) string { return w.CreativeID })
}

// WrapperDealIDs returns the wrapper deal IDs, nearest to inline first.
func (a Ad) WrapperDealIDs() []string {
	return a.wrapperField(func(w Wrapper) string { return w.DealID })
}

func (a Ad) wrapperField(get func(Wrapper) string) []string {
	out := make([]string, len(a.Wrappers))
	for i, w := range a.Wrappers {
		out[i] = get(w)
	}
	return out
}

// Clone returns a deep copy of the ad, including its break info.
func (a Ad) Clone() Ad {
	out := a
	if a.BreakInfo != nil {
		info := *a.BreakInfo
		out.BreakInfo = &info
	}
	if a.Companions != nil {
		out.Companions = append([]Companion(nil), a.Companions...)
	}
	if a.Wrappers != nil {
		out.Wrappers = append([]Wrapper(nil), a.Wrappers...)
	}
	return out
}

// Cuepoint is an ad break range in stream time.
type Cuepoint struct {
	Start  float64 `json:"start"`
	End    float64 `json:"end"`
	Ads    []Ad    `json:"ads,omitempty"`
	Played bool    `json:"played"`
}

// Duration returns the length of the break in seconds.
func (c Cuepoint) Duration() float64 {
	return c.End - c.Start
}

// Valid reports whether the cuepoint describes a usable range.
func (c Cuepoint) Valid() bool {
	if math.IsNaN(c.Start) || math.IsNaN(c.End) || math.IsInf(c.Start, 0) || math.IsInf(c.End, 0) {
		return false
	}
	return c.Start >= 0 && c.Start <= c.End
}

// Contains reports whether t falls inside [Start, End).
func (c Cuepoint) Contains(t float64) bool {
	return c.Start <= t && t < c.End
}

func (c Cuepoint) overlaps(o Cuepoint) bool {
	if c.Start == o.Start {
		return true
	}
	return c.Start < o.End && o.Start < c.End
}

// Clone returns a deep copy of the cuepoint.
func (c Cuepoint) Clone() Cuepoint {
	out := c
	if c.Ads != nil {
		out.Ads = make([]Ad, len(c.Ads))
		for i, ad := range c.Ads {
			out.Ads[i] = ad.Clone()
		}
	}
	return out
}

func cloneCuepoints(cps []Cuepoint) []Cuepoint {
	out := make([]Cuepoint, len(cps))
	for i, cp := range cps {
		out[i] = cp.Clone()
	}
	return out
}

// SubtitleFormat names a subtitle file format.
type SubtitleFormat string

const (
	SubtitleWebVTT SubtitleFormat = "webvtt"
	SubtitleTTML   SubtitleFormat = "ttml"
)

// Subtitle describes the subtitle tracks available for one language.
type Subtitle struct {
	Language string                    `json:"language" validate:"len=2,alpha"`
	URLs     map[SubtitleFormat]string `json:"urls" validate:"min=1,dive,keys,oneof=webvtt ttml,endkeys,url"`
}

func cloneSubtitles(subs []Subtitle) []Subtitle {
	if subs == nil {
		return nil
	}
	out := make([]Subtitle, len(subs))
	for i, s := range subs {
		urls := make(map[SubtitleFormat]string, len(s.URLs))
		for k, v := range s.URLs {
			urls[k] = v
		}
		out[i] = Subtitle{Language: s.Language, URLs: urls}
	}
	return out
}

// StreamResponse is what the ad-decisioning service returns for a stream request.
type StreamResponse struct {
	StreamID    string
	ManifestURL string
	Subtitles   []Subtitle
	Cuepoints   []Cuepoint
}
