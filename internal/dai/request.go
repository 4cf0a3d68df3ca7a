package dai

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// StreamType distinguishes on-demand from live streams.
type StreamType int

const (
	StreamVOD StreamType = iota + 1
	StreamLive
)

func (t StreamType) String() string {
	switch t {
	case StreamVOD:
		return "vod"
	case StreamLive:
		return "live"
	default:
		return "unknown"
	}
}

// Source identifies the stream being requested. It is implemented only by VOD and Live.
type Source interface {
	StreamType() StreamType
}

// VOD identifies an on-demand stream.
type VOD struct {
	ContentSourceID string `json:"content_source_id" validate:"required"`
	VideoID         string `json:"video_id" validate:"required"`
}

// StreamType implements Source.
func (VOD) StreamType() StreamType { return StreamVOD }

// Live identifies a live stream.
type Live struct {
	AssetKey string `json:"asset_key" validate:"required"`
}

// StreamType implements Source.
func (Live) StreamType() StreamType { return StreamLive }

// StreamRequest describes the stream to request from the ad-decisioning service.
type StreamRequest struct {
	Source            Source
	APIKey            string
	AuthToken         string
	ActivityMonitorID string
	AdTagParameters   map[string]string `validate:"omitempty,dive,keys,required,endkeys"`
	// ManifestURLSuffix is appended to the manifest query without a leading '?'.
	ManifestURLSuffix string `validate:"excludes=?"`
}

// NewVODStreamRequest returns a request for an on-demand stream.
func NewVODStreamRequest(contentSourceID, videoID string) StreamRequest {
	return StreamRequest{Source: VOD{ContentSourceID: contentSourceID, VideoID: videoID}}
}

// NewLiveStreamRequest returns a request for a live stream.
func NewLiveStreamRequest(assetKey string) StreamRequest {
	return StreamRequest{Source: Live{AssetKey: assetKey}}
}

// Type returns the stream type of the request, or 0 if no source is set.
func (r StreamRequest) Type() StreamType {
	if r.Source == nil {
		return 0
	}
	return r.Source.StreamType()
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Validate checks that the request carries the identifying fields its source needs.
// It returns an error matching ErrRequest.
func (r StreamRequest) Validate() error {
	const op = "validate request"
	v := getValidator()
	switch src := r.Source.(type) {
	case VOD:
		if err := v.Struct(src); err != nil {
			return newError(KindRequest, op, describeValidation(err))
		}
	case Live:
		if err := v.Struct(src); err != nil {
			return newError(KindRequest, op, describeValidation(err))
		}
	case nil:
		return errorf(KindRequest, op, "missing stream source")
	default:
		return errorf(KindRequest, op, "unsupported stream source %T", src)
	}
	if err := v.Struct(r); err != nil {
		return newError(KindRequest, op, describeValidation(err))
	}
	if _, err := url.ParseQuery(r.ManifestURLSuffix); err != nil {
		return errorf(KindRequest, op, "manifest url suffix: %v", err)
	}
	return nil
}

func describeValidation(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
	}
	return errors.New(strings.Join(msgs, "; "))
}

// clone returns a deep copy with extra ad tag parameters merged in.
// Parameters already present on the request win over extra.
func (r StreamRequest) clone(extra map[string]string) StreamRequest {
	out := r
	if len(r.AdTagParameters) == 0 && len(extra) == 0 {
		out.AdTagParameters = nil
		return out
	}
	params := make(map[string]string, len(r.AdTagParameters)+len(extra))
	for k, v := range extra {
		params[k] = v
	}
	for k, v := range r.AdTagParameters {
		params[k] = v
	}
	out.AdTagParameters = params
	return out
}

// applyManifestSuffix merges suffix into the query of manifestURL, replacing keys
// that already exist in the URL.
func applyManifestSuffix(manifestURL, suffix string) (string, error) {
	if suffix == "" {
		return manifestURL, nil
	}
	u, err := url.Parse(manifestURL)
	if err != nil {
		return "", err
	}
	extra, err := url.ParseQuery(suffix)
	if err != nil {
		return "", err
	}
	q := u.Query()
	for k, vs := range extra {
		q[k] = vs
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
