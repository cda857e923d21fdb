package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"

	"github.com/ibeckermayer/prayerkit/internal/history"
	"github.com/ibeckermayer/prayerkit/internal/logger"
	"github.com/ibeckermayer/prayerkit/internal/media"
	"github.com/ibeckermayer/prayerkit/internal/scheduler"
	"github.com/ibeckermayer/prayerkit/internal/types"
)

// Media kinds accepted by the open-media route.
const (
	mediaAudio = "audio"
	mediaImage = "image"
	mediaVideo = "video"
)

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	Busy   bool               `json:"busy"`
	Agents []scheduler.Status `json:"agents"`
}

// AgentUpdate is the body of PUT /api/agents/{class}. Absent fields are
// left unchanged.
type AgentUpdate struct {
	Active  *bool `json:"active,omitempty"`
	Cadence *int  `json:"cadence,omitempty"`
}

// JobRequest is the body of POST /api/jobs.
type JobRequest struct {
	Language string `json:"language"`
	Type     string `json:"type"`
}

// MediaResponse is the body of POST /api/history/{id}/media/{kind}.
type MediaResponse struct {
	Handle   media.Handle `json:"handle"`
	URL      string       `json:"url"`
	MIMEType string       `json:"mimeType"`
}

// --- Agent handlers ---

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{
		Busy:   s.Agents.Busy(),
		Agents: s.Agents.Statuses(),
	})
}

func (s *Server) handleUpdateAgent(w http.ResponseWriter, r *http.Request) {
	class, err := types.ParseJobClass(chi.URLParam(r, "class"))
	if err != nil {
		s.writeError(w, badRequest(err))
		return
	}
	var req AgentUpdate
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, badRequest(errors.Wrap(err, "invalid request")))
		return
	}

	// Cadence first, so a rejected cadence leaves the toggle untouched.
	if req.Cadence != nil {
		if err := s.Agents.SetCadence(class, *req.Cadence); err != nil {
			s.writeError(w, err)
			return
		}
	}
	if req.Active != nil {
		s.Agents.SetActive(class, *req.Active)
	}
	writeJSON(w, http.StatusOK, s.Agents.Status(class))
}

func (s *Server) handleRunJob(w http.ResponseWriter, r *http.Request) {
	var req JobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, badRequest(errors.Wrap(err, "invalid request")))
		return
	}
	l, err := types.ParseLocale(req.Language)
	if err != nil {
		s.writeError(w, badRequest(err))
		return
	}
	class, err := types.ParseJobClass(req.Type)
	if err != nil {
		s.writeError(w, badRequest(err))
		return
	}

	if wait, _ := strconv.ParseBool(r.URL.Query().Get("wait")); wait {
		// A started job runs to completion even if the caller hangs up.
		ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), scheduler.JobTimeout)
		defer cancel()
		item, err := s.Agents.RunNow(ctx, l, class)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, item)
		return
	}

	running, err := s.Agents.Submit(l, class)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, running)
}

// --- History handlers ---

func (s *Server) handleListHistory(w http.ResponseWriter, r *http.Request) {
	var f history.Filter
	if lang := r.URL.Query().Get("lang"); lang != "" {
		l, err := types.ParseLocale(lang)
		if err != nil {
			s.writeError(w, badRequest(err))
			return
		}
		f.Language = l
	}
	f.Search = r.URL.Query().Get("q")

	items := s.History.List(f)
	if items == nil {
		items = []types.HistoryItem{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleGetItem(w http.ResponseWriter, r *http.Request) {
	item, err := s.History.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.History.Delete(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	s.log.Infow("History item deleted", logger.FieldItemID, id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMarkDownloaded(w http.ResponseWriter, r *http.Request) {
	if err := s.History.MarkDownloaded(chi.URLParam(r, "id")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSheet(w http.ResponseWriter, r *http.Request) {
	item, err := s.History.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	sheet, err := s.Sheets.Sheet(item)
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(sheet))
}

// --- Media handlers ---

// handleOpenMedia shows one of the item's blobs in the view for its kind,
// which revokes whatever handle that view held before.
func (s *Server) handleOpenMedia(w http.ResponseWriter, r *http.Request) {
	kind := chi.URLParam(r, "kind")
	view, ok := s.views[kind]
	if !ok {
		s.writeError(w, badRequest(errors.Newf("unknown media kind %q", kind)))
		return
	}
	item, err := s.History.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	var key string
	switch kind {
	case mediaAudio:
		key = item.AudioBlobKey
	case mediaImage:
		key = item.ImageBlobKey
	case mediaVideo:
		key = item.VideoBlobKey
	}
	if key == "" {
		view.Clear()
		s.writeError(w, errors.Wrapf(errNoMedia, "item %s has no %s", item.ID, kind))
		return
	}

	h, ok, err := view.Show(r.Context(), key)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !ok {
		s.writeError(w, errors.Wrapf(errNoMedia, "%s blob for %s is gone", kind, item.ID))
		return
	}
	blob, _ := s.Registry.Resolve(h)
	resp := MediaResponse{Handle: h, URL: "/media/" + h.ID()}
	if blob != nil {
		resp.MIMEType = blob.MIMEType
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleServeMedia(w http.ResponseWriter, r *http.Request) {
	h := media.ParseHandle(chi.URLParam(r, "handle"))
	blob, ok := s.Registry.Resolve(h)
	if !ok {
		s.writeError(w, errors.Wrapf(errNoMedia, "handle %s is not open", h.ID()))
		return
	}
	if blob.MIMEType != "" {
		w.Header().Set("Content-Type", blob.MIMEType)
	}
	http.ServeContent(w, r, "", blob.CreatedAt, bytes.NewReader(blob.Data))
}

func (s *Server) handleRevokeMedia(w http.ResponseWriter, r *http.Request) {
	s.Registry.Revoke(media.ParseHandle(chi.URLParam(r, "handle")))
	w.WriteHeader(http.StatusNoContent)
}
