package decision

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"dai-orchestrator/internal/dai"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFixtureServer(t *testing.T) (*httptest.Server, *FixtureService) {
	t.Helper()
	svc := newTestFixtureService(t)
	r := chi.NewRouter()
	NewHandler(svc, svc.log).Routes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, svc
}

func TestClientAgainstFixtureServer(t *testing.T) {
	srv, svc := newFixtureServer(t)
	c := NewClient(srv.URL, time.Second)

	req := dai.NewVODStreamRequest("2548831", "tears-of-steel")
	req.AdTagParameters = map[string]string{"npa": "1"}
	resp, err := c.RequestStream(context.Background(), req)
	require.NoError(t, err)

	want, err := svc.FetchCuepoints(context.Background(), resp.StreamID)
	require.NoError(t, err)
	assert.Equal(t, want, resp.Cuepoints)
	assert.Equal(t, "en", resp.Subtitles[0].Language)

	cps, err := c.FetchCuepoints(context.Background(), resp.StreamID)
	require.NoError(t, err)
	assert.Equal(t, want, cps)

	manifest, err := http.Get(srv.URL + "/streams/" + resp.StreamID + "/manifest.m3u8")
	require.NoError(t, err)
	defer manifest.Body.Close()
	assert.Equal(t, http.StatusOK, manifest.StatusCode)
	assert.Equal(t, playlistContentType, manifest.Header.Get("Content-Type"))
}

func TestClientStatusErrors(t *testing.T) {
	srv, _ := newFixtureServer(t)
	c := NewClient(srv.URL, time.Second)

	for range 10 {
		_, err := c.RequestStream(context.Background(), dai.NewVODStreamRequest("2548831", "missing"))
		var se *StatusError
		require.True(t, errors.As(err, &se))
		assert.Equal(t, http.StatusNotFound, se.Code)
		assert.Contains(t, se.Message, "content not found")
	}
	assert.Equal(t, gobreaker.StateClosed, c.State(), "client errors do not trip the breaker")

	_, err := c.RequestStream(context.Background(), dai.StreamRequest{Source: dai.VOD{ContentSourceID: "x"}})
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusBadRequest, se.Code)
}

func TestClientBreakerOpens(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	var transitions []gobreaker.State
	c := NewClient(srv.URL, time.Second, WithBreakerListener(func(_, to gobreaker.State) {
		transitions = append(transitions, to)
	}))

	for range 5 {
		_, err := c.FetchCuepoints(context.Background(), "s")
		require.Error(t, err)
	}
	assert.Equal(t, gobreaker.StateOpen, c.State())
	assert.Equal(t, []gobreaker.State{gobreaker.StateOpen}, transitions)

	_, err := c.FetchCuepoints(context.Background(), "s")
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, int32(5), hits.Load(), "open breaker short-circuits requests")
}

func TestClientDecodesVASTCuepoints(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusCreated, streamResponseBody{
			StreamID:    "s1",
			ManifestURL: "https://dai.example.com/s1.m3u8",
			Cuepoints:   []cuepointBody{{Start: 0, End: 77.5, VAST: inlineVAST}},
		})
	}))
	defer srv.Close()

	resp, err := NewClient(srv.URL, time.Second).RequestStream(context.Background(), dai.NewLiveStreamRequest("k"))
	require.NoError(t, err)
	require.Len(t, resp.Cuepoints, 1)
	require.Len(t, resp.Cuepoints[0].Ads, 2)
	assert.Equal(t, "ad-1", resp.Cuepoints[0].Ads[0].AdID)
}

func TestClientHonoursContext(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := NewClient(srv.URL, 5*time.Second).RequestStream(ctx, dai.NewLiveStreamRequest("k"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
