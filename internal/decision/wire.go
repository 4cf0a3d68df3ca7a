package decision

import (
	"dai-orchestrator/internal/dai"
)

// Stream types on the wire.
const (
	typeVOD  = "vod"
	typeLive = "live"
)

// streamRequestBody is the JSON body of POST /streams.
type streamRequestBody struct {
	Type              string            `json:"type"`
	ContentSourceID   string            `json:"content_source_id,omitempty"`
	VideoID           string            `json:"video_id,omitempty"`
	AssetKey          string            `json:"asset_key,omitempty"`
	APIKey            string            `json:"api_key,omitempty"`
	AuthToken         string            `json:"auth_token,omitempty"`
	ActivityMonitorID string            `json:"activity_monitor_id,omitempty"`
	AdTagParameters   map[string]string `json:"ad_tag_parameters,omitempty"`
}

// streamResponseBody is the JSON body returned by POST /streams.
type streamResponseBody struct {
	StreamID    string         `json:"stream_id"`
	ManifestURL string         `json:"manifest_url"`
	Subtitles   []dai.Subtitle `json:"subtitles,omitempty"`
	Cuepoints   []cuepointBody `json:"cuepoints,omitempty"`
}

// cuepointsBody is the JSON body returned by GET /streams/{id}/cuepoints.
type cuepointsBody struct {
	StreamID  string         `json:"stream_id"`
	Cuepoints []cuepointBody `json:"cuepoints"`
}

// cuepointBody is a cuepoint on the wire. Ads may be sent either decoded or as the raw
// VAST document served for the break.
type cuepointBody struct {
	Start float64  `json:"start"`
	End   float64  `json:"end"`
	Ads   []dai.Ad `json:"ads,omitempty"`
	VAST  string   `json:"vast,omitempty"`
}

type errorBody struct {
	Error string `json:"error"`
}

func encodeRequest(req dai.StreamRequest) streamRequestBody {
	body := streamRequestBody{
		APIKey:            req.APIKey,
		AuthToken:         req.AuthToken,
		ActivityMonitorID: req.ActivityMonitorID,
		AdTagParameters:   req.AdTagParameters,
	}
	switch src := req.Source.(type) {
	case dai.VOD:
		body.Type = typeVOD
		body.ContentSourceID = src.ContentSourceID
		body.VideoID = src.VideoID
	case dai.Live:
		body.Type = typeLive
		body.AssetKey = src.AssetKey
	}
	return body
}

func (b streamRequestBody) decode() (dai.StreamRequest, error) {
	var req dai.StreamRequest
	switch b.Type {
	case typeVOD:
		req = dai.NewVODStreamRequest(b.ContentSourceID, b.VideoID)
	case typeLive:
		req = dai.NewLiveStreamRequest(b.AssetKey)
	default:
		return dai.StreamRequest{}, ErrUnknownStreamType
	}
	req.APIKey = b.APIKey
	req.AuthToken = b.AuthToken
	req.ActivityMonitorID = b.ActivityMonitorID
	req.AdTagParameters = b.AdTagParameters
	return req, nil
}

func encodeCuepoints(cps []dai.Cuepoint) []cuepointBody {
	out := make([]cuepointBody, len(cps))
	for i, cp := range cps {
		out[i] = cuepointBody{Start: cp.Start, End: cp.End, Ads: cp.Ads}
	}
	return out
}

func decodeCuepoints(bodies []cuepointBody) ([]dai.Cuepoint, error) {
	out := make([]dai.Cuepoint, 0, len(bodies))
	for _, b := range bodies {
		cp := dai.Cuepoint{Start: b.Start, End: b.End, Ads: b.Ads}
		if b.VAST != "" {
			ads, err := ParseVAST(b.VAST)
			if err != nil {
				return nil, err
			}
			cp.Ads = ads
		}
		out = append(out, cp)
	}
	return out, nil
}
