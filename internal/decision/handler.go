package decision

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/pkg/errors"
)

const playlistContentType = "application/vnd.apple.mpegurl"

// Handler serves a FixtureService over HTTP, the same API Client speaks.
type Handler struct {
	svc *FixtureService
	log *slog.Logger
}

// NewHandler returns a Handler for svc.
func NewHandler(svc *FixtureService, log *slog.Logger) *Handler {
	return &Handler{svc: svc, log: log}
}

// Routes mounts the decisioning endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/streams", h.CreateStream)
	r.Route("/streams/{stream_id}", func(r chi.Router) {
		r.Get("/cuepoints", h.GetCuepoints)
		r.Get("/manifest.m3u8", h.GetManifest)
	})
}

// CreateStream handles POST /streams.
func (h *Handler) CreateStream(w http.ResponseWriter, r *http.Request) {
	var body streamRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.log.Debug("invalid stream request body", slog.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	req, err := body.decode()
	if err == nil {
		err = req.Validate()
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.svc.RequestStream(r.Context(), req)
	switch {
	case errors.Is(err, ErrContentNotFound):
		writeError(w, http.StatusNotFound, err.Error())
		return
	case err != nil:
		h.log.Error("stitch stream failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "stitch failed")
		return
	}

	writeJSON(w, http.StatusCreated, streamResponseBody{
		StreamID:    resp.StreamID,
		ManifestURL: resp.ManifestURL,
		Subtitles:   resp.Subtitles,
		Cuepoints:   encodeCuepoints(resp.Cuepoints),
	})
}

// GetCuepoints handles GET /streams/{stream_id}/cuepoints.
func (h *Handler) GetCuepoints(w http.ResponseWriter, r *http.Request) {
	streamID := chi.URLParam(r, "stream_id")
	cps, err := h.svc.FetchCuepoints(r.Context(), streamID)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, cuepointsBody{StreamID: streamID, Cuepoints: encodeCuepoints(cps)})
}

// GetManifest handles GET /streams/{stream_id}/manifest.m3u8.
func (h *Handler) GetManifest(w http.ResponseWriter, r *http.Request) {
	m3u8, err := h.svc.Manifest(chi.URLParam(r, "stream_id"))
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", playlistContentType)
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(m3u8))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}
