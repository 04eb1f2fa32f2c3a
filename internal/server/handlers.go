package server

import (
	"context"
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"path"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mmcdole/marquee/internal/domain"
	"github.com/mmcdole/marquee/internal/view"
)

type stateResponse struct {
	Status        string             `json:"status"`
	Authenticated bool               `json:"authenticated"`
	Syncing       bool               `json:"syncing"`
	Degraded      bool               `json:"degraded"`
	Progress      int                `json:"progress"`
	RetryIn       int                `json:"retry_in"`
	Attempts      int                `json:"attempts"`
	LastError     string             `json:"last_error,omitempty"`
	CycleID       string             `json:"cycle_id,omitempty"`
	Result        *domain.SyncResult `json:"result,omitempty"`
}

type summaryResponse struct {
	domain.DeviceSummary
	Orientation     string `json:"orientation"`
	FallbackArtwork string `json:"fallback_artwork"`
}

type contentItemResponse struct {
	Key             string     `json:"key"`
	Name            string     `json:"name"`
	URL             string     `json:"url"`
	BackdropURL     string     `json:"backdrop_url,omitempty"`
	RemoteURL       string     `json:"remote_url"`
	Cached          bool       `json:"cached"`
	Video           bool       `json:"video"`
	Position        *int       `json:"position,omitempty"`
	Rotation        int        `json:"rotation"`
	DurationSeconds float64    `json:"duration_seconds"`
	PlayBegin       *time.Time `json:"play_begin,omitempty"`
	PlayEnd         *time.Time `json:"play_end,omitempty"`
}

type contentResponse struct {
	Items       []contentItemResponse `json:"items"`
	NextRefresh *time.Time            `json:"next_refresh,omitempty"`
}

type loginRequest struct {
	Password string `json:"password"`
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	st := s.engine.State()
	writeJSON(w, http.StatusOK, stateResponse{
		Status:        st.Status.String(),
		Authenticated: st.Authenticated,
		Syncing:       st.Syncing(),
		Degraded:      st.Degraded(),
		Progress:      st.Progress,
		RetryIn:       st.RetryIn,
		Attempts:      st.Attempts,
		LastError:     st.LastError,
		CycleID:       st.CycleID,
		Result:        st.Result,
	})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	summary, ok, err := s.queries.Summary()
	if err != nil {
		s.internalError(w, "failed to read summary", err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse("no device"))
		return
	}
	summary.Password = ""
	writeJSON(w, http.StatusOK, summaryResponse{
		DeviceSummary:   *summary,
		Orientation:     summary.Orientation(),
		FallbackArtwork: summary.FallbackArtwork(),
	})
}

// handleContent returns the playable list.
// ?q= fuzzy-filters by name, ?cached=1 drops items not yet downloaded.
func (s *Server) handleContent(w http.ResponseWriter, r *http.Request) {
	p, err := s.queries.Playlist()
	if err != nil {
		s.internalError(w, "failed to read content", err)
		return
	}

	items := view.Search(p.Items, r.URL.Query().Get("q"))
	if r.URL.Query().Get("cached") == "1" {
		items = view.CachedOnly(items)
	}

	resp := contentResponse{
		Items:       make([]contentItemResponse, 0, len(items)),
		NextRefresh: p.NextRefresh,
	}
	for _, item := range items {
		resp.Items = append(resp.Items, toContentItemResponse(item))
	}
	writeJSON(w, http.StatusOK, resp)
}

func toContentItemResponse(item domain.ContentItem) contentItemResponse {
	resp := contentItemResponse{
		Key:             item.Key,
		Name:            item.Name,
		URL:             "/media/" + item.Key,
		RemoteURL:       item.RemoteURL,
		Cached:          item.Cached(),
		Video:           item.IsVideo(),
		Position:        item.Position,
		Rotation:        item.RotationDegrees(),
		DurationSeconds: item.DisplayDuration().Seconds(),
		PlayBegin:       item.PlayBegin,
		PlayEnd:         item.PlayEnd,
	}
	if resp.Cached && !resp.Video {
		resp.BackdropURL = "/media/" + item.Key + "/backdrop"
	}
	return resp
}

// handleMedia serves cached bytes, falling back to the backend URL
func (s *Server) handleMedia(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	item, ok, err := s.queries.Item(key)
	if err != nil {
		s.internalError(w, "failed to read content", err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse("unknown content"))
		return
	}

	data, cached, err := s.queries.Blob(*item)
	if err != nil {
		s.internalError(w, "failed to read blob", err)
		return
	}
	if !cached {
		if item.RemoteURL == "" {
			writeJSON(w, http.StatusNotFound, errorResponse("content not available"))
			return
		}
		http.Redirect(w, r, item.RemoteURL, http.StatusFound)
		return
	}

	contentType := mime.TypeByExtension(path.Ext(item.RemoteURL))
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (s *Server) handleBackdrop(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	item, ok, err := s.queries.Item(key)
	if err != nil {
		s.internalError(w, "failed to read content", err)
		return
	}
	if !ok || item.IsVideo() {
		writeJSON(w, http.StatusNotFound, errorResponse("no backdrop"))
		return
	}

	data, cached, err := s.queries.Blob(*item)
	if err != nil {
		s.internalError(w, "failed to read blob", err)
		return
	}
	if !cached {
		writeJSON(w, http.StatusNotFound, errorResponse("no backdrop"))
		return
	}

	out, err := backdrop(data, item.RotationDegrees())
	if err != nil {
		s.logger.Debug("backdrop failed", "key", key, "error", err)
		writeJSON(w, http.StatusUnsupportedMediaType, errorResponse("not an image"))
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.WriteHeader(http.StatusOK)
	w.Write(out)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<16)

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse("invalid request body"))
		return
	}
	if req.Password == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse("password is required"))
		return
	}

	// The cycle outlives a dropped client connection
	err := s.engine.Login(context.WithoutCancel(r.Context()), req.Password)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, domain.ErrAuthFailed):
		writeJSON(w, http.StatusUnauthorized, errorResponse(err.Error()))
	case errors.Is(err, domain.ErrServerOffline):
		writeJSON(w, http.StatusServiceUnavailable, errorResponse(err.Error()))
	case errors.Is(err, domain.ErrCycleInProgress):
		writeJSON(w, http.StatusConflict, errorResponse(err.Error()))
	default:
		s.internalError(w, "login failed", err)
	}
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Logout(); err != nil {
		s.internalError(w, "logout failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleRetry starts a cycle in the background; progress shows in /api/state
func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	if !s.engine.State().Authenticated {
		writeJSON(w, http.StatusConflict, errorResponse(domain.ErrNotAuthenticated.Error()))
		return
	}
	ctx := context.WithoutCancel(r.Context())
	go func() {
		if err := s.engine.RetryNow(ctx); err != nil {
			s.logger.Warn("retry requested by renderer failed", "error", err)
		}
	}()
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) internalError(w http.ResponseWriter, msg string, err error) {
	s.logger.Error(msg, "error", err)
	writeJSON(w, http.StatusInternalServerError, errorResponse("internal server error"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func errorResponse(msg string) map[string]string {
	return map[string]string{"error": msg}
}
