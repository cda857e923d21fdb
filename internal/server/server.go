// Package server exposes the agent, the history and the media handles over
// HTTP.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/ibeckermayer/prayerkit/internal/history"
	"github.com/ibeckermayer/prayerkit/internal/kit"
	"github.com/ibeckermayer/prayerkit/internal/logger"
	"github.com/ibeckermayer/prayerkit/internal/media"
	"github.com/ibeckermayer/prayerkit/internal/scheduler"
	"github.com/ibeckermayer/prayerkit/internal/types"
)

// Agents is the scheduler surface the API drives.
type Agents interface {
	Statuses() []scheduler.Status
	Status(class types.JobClass) scheduler.Status
	Busy() bool
	SetActive(class types.JobClass, on bool)
	SetCadence(class types.JobClass, n int) error
	RunNow(ctx context.Context, l types.Locale, class types.JobClass) (*types.HistoryItem, error)
	Submit(l types.Locale, class types.JobClass) (scheduler.Running, error)
}

// History is the kit collection surface the API drives.
type History interface {
	List(f history.Filter) []types.HistoryItem
	Get(id string) (types.HistoryItem, error)
	Delete(ctx context.Context, id string) error
	MarkDownloaded(id string) error
}

// Deps are the components a Server serves.
type Deps struct {
	Agents   Agents
	History  History
	Registry *media.Registry
	Sheets   *kit.Builder
}

// Server is the HTTP API.
type Server struct {
	Deps
	router chi.Router
	views  map[string]*media.View
	log    *zap.SugaredLogger

	mu   sync.Mutex
	http *http.Server
}

// New creates a new server.
func New(d Deps) *Server {
	s := &Server{
		Deps: d,
		views: map[string]*media.View{
			mediaAudio: d.Registry.NewView(),
			mediaImage: d.Registry.NewView(),
			mediaVideo: d.Registry.NewView(),
		},
		log: logger.Named("server"),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Put("/agents/{class}", s.handleUpdateAgent)
		r.Post("/jobs", s.handleRunJob)

		r.Route("/history", func(r chi.Router) {
			r.Get("/", s.handleListHistory)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetItem)
				r.Delete("/", s.handleDeleteItem)
				r.Get("/sheet", s.handleSheet)
				r.Post("/downloaded", s.handleMarkDownloaded)
				r.Post("/media/{kind}", s.handleOpenMedia)
			})
		})
	})

	r.Get("/media/{handle}", s.handleServeMedia)
	r.Delete("/media/{handle}", s.handleRevokeMedia)

	s.router = r
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Lock()
	s.http = srv
	s.mu.Unlock()

	s.log.Infow("Server starting", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "http server")
	}
	return nil
}

// Shutdown stops accepting requests, waits for active ones and releases
// every open media handle.
func (s *Server) Shutdown(ctx context.Context) error {
	for _, v := range s.views {
		v.Clear()
	}
	s.mu.Lock()
	srv := s.http
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debugw("Request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			logger.FieldDurationMS, time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.log.Errorw("Request failed", logger.FieldError, err)
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, history.ErrNotFound), errors.Is(err, errNoMedia):
		return http.StatusNotFound
	case errors.Is(err, scheduler.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, scheduler.ErrInvalidCadence), errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

var (
	errBadRequest = errors.New("bad request")
	errNoMedia    = errors.New("no media")
)

func badRequest(err error) error {
	return errors.Mark(err, errBadRequest)
}
