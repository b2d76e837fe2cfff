package player

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
)

const jsonContentType = "application/json"

// Handler exposes the playback-session endpoints using go-chi.
type Handler struct {
	svc *Service
	log *slog.Logger
}

// NewHandler returns a Handler that uses the given Service and Logger.
func NewHandler(svc *Service, log *slog.Logger) *Handler {
	return &Handler{svc: svc, log: log}
}

// LoadManifest handles POST /sessions/{session_id}/manifest.
// Body: the manifest object from the video-metadata service.
func (h *Handler) LoadManifest(w http.ResponseWriter, r *http.Request) {
	id := SessionID(chi.URLParam(r, "session_id"))
	if id == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	var m Manifest
	if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
		h.log.Debug("invalid manifest body", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	state := h.svc.LoadManifest(id, m)

	h.log.Info("manifest loaded",
		slog.String("session_id", string(id)),
		slog.Int("qualities", len(m.Qualities)),
		slog.Bool("no_playable_source", state.NoPlayableSource),
	)
	writeJSON(w, http.StatusCreated, state)
}

// GetState handles GET /sessions/{session_id}/state.
func (h *Handler) GetState(w http.ResponseWriter, r *http.Request) {
	id := SessionID(chi.URLParam(r, "session_id"))
	if id == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	state, err := h.svc.State(id)
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// GetQualities handles GET /sessions/{session_id}/qualities.
func (h *Handler) GetQualities(w http.ResponseWriter, r *http.Request) {
	id := SessionID(chi.URLParam(r, "session_id"))
	if id == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	qualities, err := h.svc.Qualities(id)
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]QualityID{"qualities": qualities})
}

// ChangeQuality handles POST /sessions/{session_id}/quality.
// Body: { "quality": "720p" }. Unknown identifiers are accepted; resolution
// falls back to the highest-quality catalog entry.
func (h *Handler) ChangeQuality(w http.ResponseWriter, r *http.Request) {
	id := SessionID(chi.URLParam(r, "session_id"))
	if id == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	var body struct {
		Quality QualityID `json:"quality"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Quality == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	state, err := h.svc.ChangeQuality(id, body.Quality)
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	h.log.Debug("quality change handled",
		slog.String("session_id", string(id)),
		slog.String("quality", string(body.Quality)),
	)
	writeJSON(w, http.StatusOK, state)
}

// ChangeRate handles POST /sessions/{session_id}/rate.
// Body: { "rate": 1.5 }.
func (h *Handler) ChangeRate(w http.ResponseWriter, r *http.Request) {
	id := SessionID(chi.URLParam(r, "session_id"))
	if id == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	var body struct {
		Rate float64 `json:"rate"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	state, err := h.svc.ChangeRate(id, body.Rate)
	if err != nil {
		switch {
		case errors.Is(err, ErrSessionNotFound):
			w.WriteHeader(http.StatusNotFound)
		case errors.Is(err, ErrInvalidRate):
			w.WriteHeader(http.StatusBadRequest)
		default:
			h.log.Error("change rate failed", slog.String("error", err.Error()))
			w.WriteHeader(http.StatusInternalServerError)
		}
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// EndSession handles POST /sessions/{session_id}/end.
func (h *Handler) EndSession(w http.ResponseWriter, r *http.Request) {
	id := SessionID(chi.URLParam(r, "session_id"))
	if id == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	h.svc.EndSession(id)
	h.log.Info("session ended", slog.String("session_id", string(id)))
	w.WriteHeader(http.StatusOK)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", jsonContentType)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
