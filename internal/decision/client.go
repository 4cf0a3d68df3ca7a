package decision

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"dai-orchestrator/internal/dai"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	"github.com/sony/gobreaker/v2"
)

const (
	breakerName        = "decision-api"
	maxResponseBytes   = 4 << 20
	defaultHTTPTimeout = 10 * time.Second
)

// StatusError reports a non-2xx response from the decisioning service.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return "decision: unexpected status " + http.StatusText(e.Code)
	}
	return "decision: " + http.StatusText(e.Code) + ": " + e.Message
}

// Client talks to a remote decisioning service over HTTP. Calls go through a circuit
// breaker so that a failing service is not hammered by every session.
type Client struct {
	baseURL string
	http    *http.Client
	log     *slog.Logger
	cb      *gobreaker.CircuitBreaker[[]byte]

	onStateChange func(from, to gobreaker.State)
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

// WithClientLogger sets the logger used for breaker transitions.
func WithClientLogger(log *slog.Logger) ClientOption {
	return func(c *Client) { c.log = log }
}

// WithBreakerListener registers fn to be called on every circuit breaker transition.
func WithBreakerListener(fn func(from, to gobreaker.State)) ClientOption {
	return func(c *Client) { c.onStateChange = fn }
}

// NewClient returns a client for the decisioning service at baseURL.
func NewClient(baseURL string, timeout time.Duration, opts ...ClientOption) *Client {
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		log:     slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.cb = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// Client errors say nothing about the health of the service.
		IsSuccessful: func(err error) bool {
			var se *StatusError
			return err == nil || (errors.As(err, &se) && se.Code < http.StatusInternalServerError)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.log.Warn("decision circuit breaker state changed",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
			if c.onStateChange != nil {
				c.onStateChange(from, to)
			}
		},
	})
	return c
}

// RequestStream implements dai.Decisioner.
func (c *Client) RequestStream(ctx context.Context, req dai.StreamRequest) (*dai.StreamResponse, error) {
	var body streamResponseBody
	if err := c.call(ctx, http.MethodPost, "/streams", encodeRequest(req), &body); err != nil {
		return nil, errors.Wrap(err, "request stream")
	}
	cps, err := decodeCuepoints(body.Cuepoints)
	if err != nil {
		return nil, errors.Wrap(err, "request stream")
	}
	return &dai.StreamResponse{
		StreamID:    body.StreamID,
		ManifestURL: body.ManifestURL,
		Subtitles:   body.Subtitles,
		Cuepoints:   cps,
	}, nil
}

// FetchCuepoints implements dai.CuepointFetcher.
func (c *Client) FetchCuepoints(ctx context.Context, streamID string) ([]dai.Cuepoint, error) {
	var body cuepointsBody
	path := "/streams/" + url.PathEscape(streamID) + "/cuepoints"
	if err := c.call(ctx, http.MethodGet, path, nil, &body); err != nil {
		return nil, errors.Wrapf(err, "fetch cuepoints for %s", streamID)
	}
	return decodeCuepoints(body.Cuepoints)
}

// State returns the circuit breaker state.
func (c *Client) State() gobreaker.State {
	return c.cb.State()
}

func (c *Client) call(ctx context.Context, method, path string, in, out any) error {
	var payload []byte
	if in != nil {
		var err error
		if payload, err = json.Marshal(in); err != nil {
			return errors.Wrap(err, "encode body")
		}
	}

	raw, err := c.cb.Execute(func() ([]byte, error) {
		return c.roundTrip(ctx, method, path, payload)
	})
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return errors.Wrap(err, "decode response")
	}
	return nil
}

func (c *Client) roundTrip(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, errors.Wrap(err, "read response")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		se := &StatusError{Code: resp.StatusCode}
		var eb errorBody
		if json.Unmarshal(raw, &eb) == nil {
			se.Message = eb.Error
		}
		return nil, se
	}
	return raw, nil
}
