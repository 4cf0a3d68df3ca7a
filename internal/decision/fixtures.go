package decision

import (
	"context"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	"dai-orchestrator/internal/dai"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// DefaultSegmentDuration is used when fixtures do not set a segment duration.
const DefaultSegmentDuration = 6.0

var (
	ErrContentNotFound   = errors.New("decision: content not found")
	ErrStreamNotFound    = errors.New("decision: stream not found")
	ErrUnknownStreamType = errors.New("decision: unknown stream type")
)

// Fixtures describes the content and ad pods served by a FixtureService.
type Fixtures struct {
	SegmentDuration float64         `yaml:"segment_duration"`
	Streams         []StreamFixture `yaml:"streams"`
}

// StreamFixture is one piece of content. VOD content sets ContentSourceID and VideoID;
// live content sets AssetKey.
type StreamFixture struct {
	ContentSourceID string            `yaml:"content_source_id"`
	VideoID         string            `yaml:"video_id"`
	AssetKey        string            `yaml:"asset_key"`
	Duration        float64           `yaml:"duration"`
	ContentURL      string            `yaml:"content_url"`
	Subtitles       []SubtitleFixture `yaml:"subtitles"`
	Pods            []PodFixture      `yaml:"pods"`
}

// SubtitleFixture lists the subtitle files of one language by format.
type SubtitleFixture struct {
	Language string            `yaml:"language"`
	URLs     map[string]string `yaml:"urls"`
}

// PodFixture is an ad pod inserted at Offset seconds of content time.
type PodFixture struct {
	Offset float64     `yaml:"offset"`
	Ads    []AdFixture `yaml:"ads"`
}

// AdFixture is a single ad. When VAST is set the ad metadata is read from the document
// and the other metadata fields are ignored.
type AdFixture struct {
	AdID       string  `yaml:"ad_id"`
	Title      string  `yaml:"title"`
	System     string  `yaml:"system"`
	Advertiser string  `yaml:"advertiser"`
	CreativeID string  `yaml:"creative_id"`
	Duration   float64 `yaml:"duration"`
	SegmentURL string  `yaml:"segment_url"`
	VAST       string  `yaml:"vast"`
}

func (f StreamFixture) live() bool {
	return f.AssetKey != ""
}

func (f StreamFixture) name() string {
	if f.live() {
		return f.AssetKey
	}
	return f.ContentSourceID + "/" + f.VideoID
}

func (f StreamFixture) matches(req dai.StreamRequest) bool {
	switch src := req.Source.(type) {
	case dai.VOD:
		return !f.live() && f.ContentSourceID == src.ContentSourceID && f.VideoID == src.VideoID
	case dai.Live:
		return f.live() && f.AssetKey == src.AssetKey
	default:
		return false
	}
}

// LoadFixtures reads and validates a YAML fixtures file.
func LoadFixtures(path string) (*Fixtures, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "decision: read fixtures")
	}
	return ParseFixtures(data)
}

// ParseFixtures decodes and validates YAML fixtures.
func ParseFixtures(data []byte) (*Fixtures, error) {
	var f Fixtures
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errors.Wrap(err, "decision: parse fixtures")
	}
	if f.SegmentDuration <= 0 {
		f.SegmentDuration = DefaultSegmentDuration
	}
	for i := range f.Streams {
		if err := f.Streams[i].validate(); err != nil {
			return nil, errors.Wrapf(err, "decision: stream %d", i)
		}
	}
	return &f, nil
}

func (f *StreamFixture) validate() error {
	vod := f.ContentSourceID != "" || f.VideoID != ""
	switch {
	case vod && f.live():
		return errors.New("both vod and live identifiers set")
	case !f.live() && (f.ContentSourceID == "" || f.VideoID == ""):
		return errors.New("content_source_id and video_id are required")
	case f.Duration <= 0:
		return errors.Errorf("%s: duration must be positive", f.name())
	}
	sort.SliceStable(f.Pods, func(i, j int) bool { return f.Pods[i].Offset < f.Pods[j].Offset })
	for i, pod := range f.Pods {
		if pod.Offset < 0 || pod.Offset > f.Duration {
			return errors.Errorf("%s: pod %d offset %.3f outside content", f.name(), i, pod.Offset)
		}
		if i > 0 && pod.Offset == f.Pods[i-1].Offset {
			return errors.Errorf("%s: two pods at offset %.3f", f.name(), pod.Offset)
		}
		if len(pod.Ads) == 0 {
			return errors.Errorf("%s: pod %d has no ads", f.name(), i)
		}
	}
	return nil
}

// stitchedStream is a stream handed out by the fixture service.
type stitchedStream struct {
	fixture   *StreamFixture
	cuepoints []dai.Cuepoint
	segments  []Segment
}

// FixtureService is an in-process ad-decisioning service backed by fixtures. It
// stitches ad pods into the content timeline and serves the resulting manifests.
type FixtureService struct {
	fixtures *Fixtures
	baseURL  string
	log      *slog.Logger
	newID    func() string

	mu      sync.RWMutex
	streams map[string]*stitchedStream
}

// NewFixtureService returns a service over fixtures. Manifest URLs are built from
// baseURL, the public address the manifests are served from.
func NewFixtureService(fixtures *Fixtures, baseURL string, log *slog.Logger) *FixtureService {
	return &FixtureService{
		fixtures: fixtures,
		baseURL:  strings.TrimRight(baseURL, "/"),
		log:      log,
		newID:    uuid.NewString,
		streams:  make(map[string]*stitchedStream),
	}
}

// RequestStream implements dai.Decisioner.
func (s *FixtureService) RequestStream(ctx context.Context, req dai.StreamRequest) (*dai.StreamResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var fixture *StreamFixture
	for i := range s.fixtures.Streams {
		if s.fixtures.Streams[i].matches(req) {
			fixture = &s.fixtures.Streams[i]
			break
		}
	}
	if fixture == nil {
		return nil, ErrContentNotFound
	}

	stream, err := s.stitch(fixture)
	if err != nil {
		return nil, err
	}
	id := s.newID()

	s.mu.Lock()
	s.streams[id] = stream
	s.mu.Unlock()

	s.log.Info("stream stitched",
		slog.String("stream_id", id),
		slog.String("content", fixture.name()),
		slog.Int("ad_breaks", len(stream.cuepoints)),
		slog.Int("segments", len(stream.segments)),
		slog.String("npa", req.AdTagParameters["npa"]))

	return &dai.StreamResponse{
		StreamID:    id,
		ManifestURL: s.baseURL + "/streams/" + id + "/manifest.m3u8",
		Subtitles:   subtitles(fixture.Subtitles),
		Cuepoints:   cloneCuepoints(stream.cuepoints),
	}, nil
}

// FetchCuepoints implements dai.CuepointFetcher.
func (s *FixtureService) FetchCuepoints(ctx context.Context, streamID string) ([]dai.Cuepoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	stream, ok := s.streams[streamID]
	if !ok {
		return nil, ErrStreamNotFound
	}
	return cloneCuepoints(stream.cuepoints), nil
}

// Manifest returns the stitched HLS playlist of streamID.
func (s *FixtureService) Manifest(streamID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stream, ok := s.streams[streamID]
	if !ok {
		return "", ErrStreamNotFound
	}
	return BuildPlaylist(stream.segments, !stream.fixture.live()), nil
}

// Release forgets streamID. It reports whether the stream existed.
func (s *FixtureService) Release(streamID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.streams[streamID]
	delete(s.streams, streamID)
	return ok
}

// stitch lays the fixture's pods into its content. Cuepoint ranges are in stream time,
// so each pod is shifted by the duration of every pod before it.
func (s *FixtureService) stitch(f *StreamFixture) (*stitchedStream, error) {
	segDur := s.fixtures.SegmentDuration
	out := &stitchedStream{fixture: f}
	var (
		seq          int64
		contentIndex int
		inserted     float64
		content      float64
		afterBreak   bool
	)

	addContent := func(until float64) {
		for _, d := range splitSegments(until-content, segDur) {
			out.segments = append(out.segments, Segment{
				Sequence:      seq,
				Duration:      d,
				Path:          expand(f.ContentURL, s.baseURL+"/content/"+f.name()+"/{n}.ts", contentIndex),
				Discontinuity: afterBreak,
				CueIn:         afterBreak,
			})
			afterBreak = false
			seq++
			contentIndex++
		}
		content = until
	}

	for i, pod := range f.Pods {
		addContent(pod.Offset)

		ads, err := podAds(pod)
		if err != nil {
			return nil, errors.Wrapf(err, "%s: pod %d", f.name(), i)
		}
		var total float64
		for _, ad := range ads {
			total += ad.ad.Duration
		}
		start := pod.Offset + inserted
		cp := dai.Cuepoint{Start: start, End: start + total}
		for j, ad := range ads {
			for k, d := range splitSegments(ad.ad.Duration, segDur) {
				seg := Segment{
					Sequence:      seq,
					Duration:      d,
					Path:          expand(ad.segmentURL, s.baseURL+"/ads/"+ad.ad.AdID+"/{n}.ts", k),
					Discontinuity: k == 0 && seq > 0,
				}
				if j == 0 && k == 0 {
					seg.CueOut = total
				}
				out.segments = append(out.segments, seg)
				seq++
			}
			cp.Ads = append(cp.Ads, ad.ad)
		}
		out.cuepoints = append(out.cuepoints, cp)
		inserted += total
		afterBreak = true
	}
	addContent(f.Duration)
	return out, nil
}

type podAd struct {
	ad         dai.Ad
	segmentURL string
}

func podAds(pod PodFixture) ([]podAd, error) {
	var out []podAd
	for _, a := range pod.Ads {
		if a.VAST == "" {
			if a.Duration <= 0 {
				return nil, errors.Errorf("ad %q: duration must be positive", a.AdID)
			}
			out = append(out, podAd{
				ad: dai.Ad{
					AdID:       a.AdID,
					Title:      a.Title,
					System:     a.System,
					Advertiser: a.Advertiser,
					CreativeID: a.CreativeID,
					Duration:   a.Duration,
				},
				segmentURL: a.SegmentURL,
			})
			continue
		}
		parsed, err := ParseVAST(a.VAST)
		if err != nil {
			return nil, err
		}
		for _, ad := range parsed {
			if ad.Duration <= 0 {
				ad.Duration = a.Duration
			}
			if ad.Duration <= 0 {
				return nil, errors.Errorf("ad %q: duration must be positive", ad.AdID)
			}
			out = append(out, podAd{ad: ad, segmentURL: a.SegmentURL})
		}
	}
	return out, nil
}

// expand substitutes the segment index for {n} in tmpl, falling back to def.
func expand(tmpl, def string, n int) string {
	if tmpl == "" {
		tmpl = def
	}
	return strings.ReplaceAll(tmpl, "{n}", strconv.Itoa(n))
}

func subtitles(fs []SubtitleFixture) []dai.Subtitle {
	if len(fs) == 0 {
		return nil
	}
	out := make([]dai.Subtitle, 0, len(fs))
	for _, f := range fs {
		urls := make(map[dai.SubtitleFormat]string, len(f.URLs))
		for format, u := range f.URLs {
			urls[dai.SubtitleFormat(format)] = u
		}
		out = append(out, dai.Subtitle{Language: f.Language, URLs: urls})
	}
	return out
}

func cloneCuepoints(cps []dai.Cuepoint) []dai.Cuepoint {
	out := make([]dai.Cuepoint, len(cps))
	for i, cp := range cps {
		out[i] = cp.Clone()
	}
	return out
}
