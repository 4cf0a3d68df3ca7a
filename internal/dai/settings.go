package dai

import "time"

const (
	// DefaultRequestTimeout bounds the wait for the ad-decisioning response.
	DefaultRequestTimeout = 8 * time.Second
	// DefaultRefreshInterval is the minimum gap between live cuepoint refreshes.
	DefaultRefreshInterval = 5 * time.Second
)

// Settings configures a Manager. Settings are read once when the manager is built.
type Settings struct {
	// DebugMode enables fail-fast checks that operations run on the session loop.
	DebugMode bool
	// RequestTimeout bounds RequestStream. Zero disables the timeout.
	RequestTimeout time.Duration
	// RefreshInterval throttles live cuepoint refreshes requested by timed metadata.
	RefreshInterval time.Duration
	// Countdown enables AdDidCountdown events on every progress tick inside a break.
	Countdown bool
	// SkipPlayedBreaks seeks past breaks that were already played, if the display can seek.
	SkipPlayedBreaks bool
	// Snapback plays the last unplayed break a forward seek jumped over before resuming
	// at the seek target, if the display can seek.
	Snapback bool
	// DisablePersonalizedAds adds npa=1 to the ad tag parameters.
	DisablePersonalizedAds bool
	// EnableAgeRestriction adds tfua=1 to the ad tag parameters.
	EnableAgeRestriction bool
}

// DefaultSettings returns the settings used when none are supplied.
func DefaultSettings() Settings {
	return Settings{
		RequestTimeout:  DefaultRequestTimeout,
		RefreshInterval: DefaultRefreshInterval,
		Countdown:       true,
	}
}

func (s Settings) adTagDefaults() map[string]string {
	params := map[string]string{}
	if s.DisablePersonalizedAds {
		params["npa"] = "1"
	}
	if s.EnableAgeRestriction {
		params["tfua"] = "1"
	}
	return params
}
