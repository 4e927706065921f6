package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"lsmview/pkg/compression"
	"lsmview/pkg/manifest"
	"lsmview/pkg/metrics"
	"lsmview/pkg/session"
	"lsmview/pkg/types"
	"lsmview/pkg/version"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

const (
	contentTypeJSON          = "application/json"
	defaultHTTPPort          = 8080
	defaultShutdownTimeout   = time.Second * 5
	defaultReadHeaderTimeout = time.Second
	defaultPlaybackInterval  = 100 * time.Millisecond
	maxUploadBytes           = 256 << 20
)

// iSessionRegistry is the set of open sessions the server exposes.
type iSessionRegistry interface {
	Create(name string, data *manifest.Data) (*session.Session, error)
	Get(id uuid.UUID) (*session.Session, error)
	Remove(id uuid.UUID) error
	List() []*session.Session
}

// Options configures the HTTP server. Zero values fall back to defaults.
type Options struct {
	Port              int
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
	PlaybackInterval  time.Duration
	PlaybackIncrement int
	Metrics           *metrics.Registry
}

// Server exposes the sessions of a registry over HTTP.
type Server struct {
	sessions   iSessionRegistry
	opts       Options
	mc         metrics.Collector
	exporter   http.Handler
	httpServer *http.Server
	URL        string
	addr       string

	// Playback outlives the request that started it.
	ctx    context.Context
	cancel context.CancelFunc
}

// NewServer creates a new server instance
func NewServer(sessions iSessionRegistry, opts Options) *Server {
	if opts.Port == 0 {
		opts.Port = defaultHTTPPort
	}
	if opts.ReadHeaderTimeout <= 0 {
		opts.ReadHeaderTimeout = defaultReadHeaderTimeout
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = defaultShutdownTimeout
	}
	if opts.PlaybackInterval <= 0 {
		opts.PlaybackInterval = defaultPlaybackInterval
	}
	if opts.PlaybackIncrement == 0 {
		opts.PlaybackIncrement = 1
	}

	var (
		mc       metrics.Collector = metrics.Discard
		exporter http.Handler
	)
	if opts.Metrics != nil {
		mc = opts.Metrics
		exporter = opts.Metrics.Handler()
	}

	ctx, cancel := context.WithCancel(context.Background())
	port := strconv.Itoa(opts.Port)
	return &Server{
		sessions: sessions,
		opts:     opts,
		mc:       mc,
		exporter: exporter,
		URL:      "http://localhost:" + port,
		addr:     ":" + port,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start starts the server
func (s *Server) Start() error {
	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

// Stop stops playbacks and shuts the server down.
func (s *Server) Stop() error {
	s.cancel()
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()

		if err := s.httpServer.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shutdown HTTP server: %w", err)
		}
	}
	return nil
}

// Handler returns the router, for embedding and tests.
func (s *Server) Handler() http.Handler {
	return s.createRouter()
}

// createRouter builds chi router
func (s *Server) createRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.accessLog)

	r.Get("/health", s.handleHealth)
	r.Get("/metrics", s.handleMetrics)

	r.Route("/api/sessions", func(r chi.Router) {
		r.Get("/", s.handleListSessions)
		r.Post("/", s.handleCreateSession)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetSession)
			r.Delete("/", s.handleDeleteSession)
			r.Put("/cursor", s.handleSetCursor)
			r.Post("/step", s.handleStep)
			r.Get("/levels", s.handleLevels)
			r.Get("/edits/{index}", s.handleEdit)
			r.Get("/overlaps", s.handleOverlaps)
			r.Get("/files/{file}", s.handleFile)
			r.Post("/playback", s.handleStartPlayback)
			r.Delete("/playback", s.handleStopPlayback)
		})
	})

	return r
}

func (s *Server) startHTTPServer() error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.createRouter(),
		ReadHeaderTimeout: s.opts.ReadHeaderTimeout,
	}

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	slog.Info("HTTP server started", "addr", s.URL)
	return nil
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		labels := map[string]string{"method": r.Method, "route": route, "status": strconv.Itoa(status)}
		s.mc.IncCounter("http_requests_total", labels, 1)
		s.mc.ObserveHistogram("http_request_seconds", map[string]string{"route": route}, time.Since(start).Seconds())

		slog.Debug("HTTP request",
			"request_id", middleware.GetReqID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"duration", time.Since(start),
		)
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Warn("Error encoding response", "error", err)
	}
}

// writeError maps domain errors onto status codes.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, session.ErrNotFound),
		errors.Is(err, version.ErrEditOutOfRange),
		errors.Is(err, version.ErrFileNotInLevel),
		errors.Is(err, manifest.ErrUnknownFile):
		status = http.StatusNotFound
	case errors.Is(err, session.ErrPlaybackRunning):
		status = http.StatusConflict
	case errors.Is(err, session.ErrInvalidPlayback),
		errors.Is(err, manifest.ErrInvalidLevel),
		errors.Is(err, manifest.ErrInvalidKeyRange),
		errors.Is(err, manifest.ErrInconsistentEdit),
		errors.Is(err, compression.ErrUnknownCodec):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "error", err)
	}
	s.writeJSON(w, status, NewErrorResponse(err.Error()))
}

func (s *Server) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, NewErrorResponse("Invalid session id"))
		return nil, false
	}
	sess, err := s.sessions.Get(id)
	if err != nil {
		s.writeError(w, err)
		return nil, false
	}
	return sess, true
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, NewOKResponse())
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if s.exporter == nil {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		return
	}
	s.exporter.ServeHTTP(w, r)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	list := s.sessions.List()
	out := make([]SessionResponse, 0, len(list))
	for _, sess := range list {
		out = append(out, newSessionResponse(sess.View()))
	}
	s.writeJSON(w, http.StatusOK, NewDataResponse(out))
}

// handleCreateSession opens a session over the dump in the request body.
// The format comes from the format query parameter (json or yaml), the
// compression from Content-Encoding.
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	format := manifest.JSON
	switch r.URL.Query().Get("format") {
	case "", "json":
	case "yaml", "yml":
		format = manifest.YAML
	default:
		s.writeJSON(w, http.StatusBadRequest, NewErrorResponse("Unknown format"))
		return
	}

	codec, err := compression.ParseCodec(r.Header.Get("Content-Encoding"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	body, err := compression.NewReader(http.MaxBytesReader(w, r.Body, maxUploadBytes), codec)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, NewErrorResponse(err.Error()))
		return
	}
	defer body.Close()

	data, err := manifest.Decode(body, format)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, NewErrorResponse(err.Error()))
		return
	}

	name := r.URL.Query().Get("name")
	if name == "" {
		name = "upload"
	}
	sess, err := s.sessions.Create(name, data)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, NewDataResponse(newSessionResponse(sess.View())))
}

// notModified sets the ETag of a view and answers 304 when the client
// already holds it.
func notModified(w http.ResponseWriter, r *http.Request, view session.View) bool {
	etag := fmt.Sprintf("%q", fmt.Sprintf("%s-%d", view.ID, view.Generation))
	w.Header().Set("ETag", etag)
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return true
	}
	return false
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	view := sess.View()
	if notModified(w, r, view) {
		return
	}
	s.writeJSON(w, http.StatusOK, NewDataResponse(newSessionResponse(view)))
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	if err := s.sessions.Remove(sess.ID()); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, NewSuccessResponse())
}

type cursorRequest struct {
	Cursor *int `json:"cursor"`
}

func (s *Server) handleSetCursor(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	var req cursorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Cursor == nil {
		s.writeJSON(w, http.StatusBadRequest, NewErrorResponse("Missing cursor"))
		return
	}

	sess.SetCursor(*req.Cursor)
	s.writeJSON(w, http.StatusOK, NewDataResponse(newSessionResponse(sess.View())))
}

type stepRequest struct {
	Delta int `json:"delta"`
}

// handleStep moves the cursor relative to its position. An empty body steps
// one edit forward.
func (s *Server) handleStep(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	req := stepRequest{Delta: 1}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.writeJSON(w, http.StatusBadRequest, NewErrorResponse("Invalid step request"))
		return
	}

	sess.Step(req.Delta)
	s.writeJSON(w, http.StatusOK, NewDataResponse(newSessionResponse(sess.View())))
}

func (s *Server) handleLevels(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	view := sess.View()
	if notModified(w, r, view) {
		return
	}
	resp := newSessionResponse(view)
	resp.Levels = make([]LevelResponse, 0, types.NumLevels)
	for i, summary := range view.Summaries {
		resp.Levels = append(resp.Levels, newLevelResponse(summary, view.Files[i]))
	}
	s.writeJSON(w, http.StatusOK, NewDataResponse(resp))
}

func (s *Server) handleEdit(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, NewErrorResponse("Invalid edit index"))
		return
	}

	edit, err := sess.Edit(index)
	if err != nil {
		s.writeError(w, err)
		return
	}
	description, err := sess.DescribeEdit(index)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, NewDataResponse(EditResponse{
		Index:       index,
		Reason:      edit.Reason,
		Description: description,
		Deleted:     edit.Deleted,
		Added:       edit.Added,
	}))
}

// levelAndFile reads the level and file identifiers of a file query.
func levelAndFile(levelParam, fileParam string) (types.Level, types.FileID, error) {
	level, err := strconv.Atoi(levelParam)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid level %q", levelParam)
	}
	file, err := strconv.ParseUint(fileParam, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid file %q", fileParam)
	}
	return types.Level(level), types.FileID(file), nil
}

func (s *Server) handleOverlaps(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	level, file, err := levelAndFile(q.Get("level"), q.Get("file"))
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, NewErrorResponse(err.Error()))
		return
	}

	overlaps, err := sess.FindOverlaps(level, file)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, NewDataResponse(newOverlapsResponse(overlaps, overlaps.Describe())))
}

func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	level, file, err := levelAndFile(r.URL.Query().Get("level"), chi.URLParam(r, "file"))
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, NewErrorResponse(err.Error()))
		return
	}

	description, err := sess.DescribeFile(level, file)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, NewDataResponse(FileDescriptionResponse{
		Level:       int(level),
		File:        uint64(file),
		Description: description,
	}))
}

type playbackRequest struct {
	Increment int    `json:"increment"`
	Interval  string `json:"interval"`
}

func (s *Server) handleStartPlayback(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	var req playbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.writeJSON(w, http.StatusBadRequest, NewErrorResponse("Invalid playback request"))
		return
	}

	increment, interval := s.opts.PlaybackIncrement, s.opts.PlaybackInterval
	if req.Increment != 0 {
		increment = req.Increment
	}
	if req.Interval != "" {
		d, err := time.ParseDuration(req.Interval)
		if err != nil {
			s.writeJSON(w, http.StatusBadRequest, NewErrorResponse("Invalid playback interval"))
			return
		}
		interval = d
	}

	if err := sess.StartPlayback(s.ctx, increment, interval); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, NewDataResponse(PlaybackResponse{Playing: true, Cursor: sess.Cursor()}))
}

func (s *Server) handleStopPlayback(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	sess.StopPlayback()
	s.writeJSON(w, http.StatusOK, NewDataResponse(PlaybackResponse{Playing: false, Cursor: sess.Cursor()}))
}
