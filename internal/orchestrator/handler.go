package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"dai-orchestrator/internal/dai"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
)

// Handler exposes session endpoints using go-chi.
type Handler struct {
	svc      *Service
	log      *slog.Logger
	origins  []string
	upgrader websocket.Upgrader
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithAllowedOrigins restricts websocket upgrades to browser origins in origins.
// "*" allows any origin. Without this option every origin is accepted.
func WithAllowedOrigins(origins []string) HandlerOption {
	return func(h *Handler) { h.origins = origins }
}

// NewHandler returns a Handler that uses the given Service and Logger.
func NewHandler(svc *Service, log *slog.Logger, opts ...HandlerOption) *Handler {
	h := &Handler{svc: svc, log: log}
	for _, opt := range opts {
		opt(h)
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		HandshakeTimeout: 10 * time.Second,
		CheckOrigin:      h.checkOrigin,
	}
	return h
}

// Routes mounts the session endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", h.CreateSession)
		r.Get("/", h.ListSessions)
		r.Route("/{session_id}", func(r chi.Router) {
			r.Get("/", h.GetSession)
			r.Delete("/", h.CloseSession)
			r.Post("/player/progress", h.Progress)
			r.Post("/player/metadata", h.Metadata)
			r.Post("/player/error", h.PlayerError)
			r.Post("/player/ready", h.PlayerReady)
			r.Get("/stream-time", h.StreamTime)
			r.Get("/content-time", h.ContentTime)
			r.Get("/cuepoints", h.Cuepoints)
			r.Post("/cuepoints", h.PushCuepoints)
			r.Get("/cuepoints/previous", h.PreviousCuepoint)
			r.Get("/events", h.Events)
			r.Get("/events/ws", h.EventsWebSocket)
		})
	})
}

// sessionRequestBody is the JSON body of POST /sessions.
type sessionRequestBody struct {
	Type              string            `json:"type"`
	ContentSourceID   string            `json:"content_source_id"`
	VideoID           string            `json:"video_id"`
	AssetKey          string            `json:"asset_key"`
	APIKey            string            `json:"api_key"`
	AuthToken         string            `json:"auth_token"`
	ActivityMonitorID string            `json:"activity_monitor_id"`
	AdTagParameters   map[string]string `json:"ad_tag_parameters"`
	ManifestURLSuffix string            `json:"manifest_url_suffix"`
}

func (b sessionRequestBody) streamRequest() (dai.StreamRequest, bool) {
	var req dai.StreamRequest
	switch b.Type {
	case "vod":
		req = dai.NewVODStreamRequest(b.ContentSourceID, b.VideoID)
	case "live":
		req = dai.NewLiveStreamRequest(b.AssetKey)
	default:
		return dai.StreamRequest{}, false
	}
	req.APIKey = b.APIKey
	req.AuthToken = b.AuthToken
	req.ActivityMonitorID = b.ActivityMonitorID
	req.AdTagParameters = b.AdTagParameters
	req.ManifestURLSuffix = b.ManifestURLSuffix
	return req, true
}

type progressBody struct {
	StreamTime *float64 `json:"stream_time"`
}

type playerErrorBody struct {
	Message string `json:"message"`
}

type cuepointsBody struct {
	Cuepoints []dai.Cuepoint `json:"cuepoints"`
}

type timeBody struct {
	StreamTime  float64 `json:"stream_time"`
	ContentTime float64 `json:"content_time"`
}

type eventsBody struct {
	Events []RecordedEvent `json:"events"`
}

type errorBody struct {
	Error string `json:"error"`
}

// CreateSession handles POST /sessions.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var body sessionRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.log.Debug("invalid session body", slog.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	req, ok := body.streamRequest()
	if !ok {
		writeError(w, http.StatusBadRequest, "type must be vod or live")
		return
	}

	view, err := h.svc.CreateSession(r.Context(), req)
	if err != nil {
		h.fail(w, "create session", err)
		return
	}
	w.Header().Set("Location", "/sessions/"+string(view.ID))
	writeJSON(w, http.StatusCreated, view)
}

// ListSessions handles GET /sessions.
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	views, err := h.svc.ListSessions(r.Context())
	if err != nil {
		h.fail(w, "list sessions", err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

// GetSession handles GET /sessions/{session_id}.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.GetSession(r.Context(), sessionID(r))
	if err != nil {
		h.fail(w, "get session", err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// CloseSession handles DELETE /sessions/{session_id}.
func (h *Handler) CloseSession(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.CloseSession(r.Context(), sessionID(r)); err != nil {
		h.fail(w, "close session", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Progress handles POST /sessions/{session_id}/player/progress.
// Body: { "stream_time": 12.5 }.
func (h *Handler) Progress(w http.ResponseWriter, r *http.Request) {
	var body progressBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.StreamTime == nil {
		writeError(w, http.StatusBadRequest, "stream_time is required")
		return
	}
	h.noContent(w, "progress", h.svc.Progress(r.Context(), sessionID(r), *body.StreamTime))
}

// Metadata handles POST /sessions/{session_id}/player/metadata.
// Body: a flat JSON object of timed metadata key/value pairs.
func (h *Handler) Metadata(w http.ResponseWriter, r *http.Request) {
	var md map[string]string
	if err := json.NewDecoder(r.Body).Decode(&md); err != nil {
		writeError(w, http.StatusBadRequest, "invalid metadata")
		return
	}
	h.noContent(w, "metadata", h.svc.Metadata(r.Context(), sessionID(r), md))
}

// PlayerError handles POST /sessions/{session_id}/player/error.
func (h *Handler) PlayerError(w http.ResponseWriter, r *http.Request) {
	var body playerErrorBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	h.noContent(w, "player error", h.svc.PlayerError(r.Context(), sessionID(r), body.Message))
}

// PlayerReady handles POST /sessions/{session_id}/player/ready.
func (h *Handler) PlayerReady(w http.ResponseWriter, r *http.Request) {
	h.noContent(w, "player ready", h.svc.PlayerReady(r.Context(), sessionID(r)))
}

// StreamTime handles GET /sessions/{session_id}/stream-time?content_time=.
func (h *Handler) StreamTime(w http.ResponseWriter, r *http.Request) {
	contentTime, ok := floatQuery(w, r, "content_time")
	if !ok {
		return
	}
	streamTime, err := h.svc.StreamTime(r.Context(), sessionID(r), contentTime)
	if err != nil {
		h.fail(w, "stream time", err)
		return
	}
	writeJSON(w, http.StatusOK, timeBody{StreamTime: streamTime, ContentTime: contentTime})
}

// ContentTime handles GET /sessions/{session_id}/content-time?stream_time=.
func (h *Handler) ContentTime(w http.ResponseWriter, r *http.Request) {
	streamTime, ok := floatQuery(w, r, "stream_time")
	if !ok {
		return
	}
	contentTime, err := h.svc.ContentTime(r.Context(), sessionID(r), streamTime)
	if err != nil {
		h.fail(w, "content time", err)
		return
	}
	writeJSON(w, http.StatusOK, timeBody{StreamTime: streamTime, ContentTime: contentTime})
}

// Cuepoints handles GET /sessions/{session_id}/cuepoints.
func (h *Handler) Cuepoints(w http.ResponseWriter, r *http.Request) {
	cps, err := h.svc.Cuepoints(r.Context(), sessionID(r))
	if err != nil {
		h.fail(w, "cuepoints", err)
		return
	}
	writeJSON(w, http.StatusOK, cuepointsBody{Cuepoints: cps})
}

// PreviousCuepoint handles GET /sessions/{session_id}/cuepoints/previous?stream_time=.
func (h *Handler) PreviousCuepoint(w http.ResponseWriter, r *http.Request) {
	streamTime, ok := floatQuery(w, r, "stream_time")
	if !ok {
		return
	}
	cp, found, err := h.svc.PreviousCuepoint(r.Context(), sessionID(r), streamTime)
	if err != nil {
		h.fail(w, "previous cuepoint", err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "no cuepoint before stream time")
		return
	}
	writeJSON(w, http.StatusOK, cp)
}

// PushCuepoints handles POST /sessions/{session_id}/cuepoints.
// Body: { "cuepoints": [{ "start": 10, "end": 40, "ads": [...] }] }.
func (h *Handler) PushCuepoints(w http.ResponseWriter, r *http.Request) {
	var body cuepointsBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if err := h.svc.PushCuepoints(r.Context(), sessionID(r), body.Cuepoints); err != nil {
		h.fail(w, "push cuepoints", err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// Events handles GET /sessions/{session_id}/events?since=.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	var since int64
	if raw := r.URL.Query().Get("since"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || v < 0 {
			writeError(w, http.StatusBadRequest, "since must be a non-negative integer")
			return
		}
		since = v
	}
	events, err := h.svc.Events(sessionID(r), since)
	if err != nil {
		h.fail(w, "events", err)
		return
	}
	writeJSON(w, http.StatusOK, eventsBody{Events: events})
}

func (h *Handler) noContent(w http.ResponseWriter, op string, err error) {
	if err != nil {
		h.fail(w, op, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// fail maps service errors to HTTP statuses.
func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.log.Error(op+" failed", slog.String("error", err.Error()))
	} else {
		h.log.Debug(op+" rejected", slog.Int("status", status), slog.String("error", err.Error()))
	}
	writeError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, dai.ErrRequest):
		return http.StatusBadRequest
	case errors.Is(err, ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, dai.ErrInvalidState), errors.Is(err, ErrSessionNotReady):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func sessionID(r *http.Request) SessionID {
	return SessionID(chi.URLParam(r, "session_id"))
}

func floatQuery(w http.ResponseWriter, r *http.Request, name string) (float64, bool) {
	v, err := strconv.ParseFloat(r.URL.Query().Get(name), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		writeError(w, http.StatusBadRequest, name+" must be a number")
		return 0, false
	}
	return v, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}
