// Package web exposes the stored calendar over HTTP: JSON entries, an
// iCalendar feed, sync run history and Prometheus metrics.
package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"bellweaver/internal/compass"
	"bellweaver/internal/config"
	"bellweaver/internal/ics"
	appLog "bellweaver/internal/log"
	"bellweaver/internal/metrics"
	"bellweaver/internal/model"
	"bellweaver/internal/store"
	"bellweaver/internal/syncer"
)

const shutdownTimeout = 10 * time.Second

// Server provides the read-only calendar API.
type Server struct {
	cfg     *config.Config
	store   *store.Store
	metrics *metrics.Metrics
	syncer  *syncer.Syncer

	// now is replaced in tests.
	now func() time.Time
}

// NewServer constructs a new Server. m and sy may be nil; without a syncer
// POST /api/sync answers 503.
func NewServer(cfg *config.Config, st *store.Store, m *metrics.Metrics, sy *syncer.Syncer) *Server {
	return &Server{
		cfg:     cfg,
		store:   st,
		metrics: m,
		syncer:  sy,
		now:     time.Now,
	}
}

// Handler returns the router with all middleware applied.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	if s.metrics != nil {
		r.Use(s.metrics.Middleware)
	}
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		r.Use(s.basicAuthMiddleware)
	}

	r.Get("/health", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Get("/events", s.handleEvents)
		r.Get("/events.ics", s.handleICS)
		r.Get("/runs", s.handleRuns)
		r.Get("/status", s.handleStatus)
		r.Post("/sync", s.handleSync)
	})
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}
	return r
}

// Serve listens on cfg.Listen until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return err
	}
	appLog.Info("HTTP server stopped")
	return nil
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// An empty username or password disables auth.
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware guards everything except /health.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="Bellweaver", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// eventsResponse is the JSON response shape for /api/events.
type eventsResponse struct {
	Entries         []model.Entry `json:"entries"`
	RangeStart      time.Time     `json:"range_start"`
	RangeEnd        time.Time     `json:"range_end"`
	DisplayTimeZone string        `json:"display_timezone"`
}

// window is a parsed events query.
type window struct {
	channels []string
	from, to time.Time
}

// parseWindow reads days, backfill and channel from the query string.
//
// GET /api/events?days=7&backfill=1&channel=school
//   - days:     calendar days ahead of today to include (default 7, max 366)
//   - backfill: calendar days before today to include (default 1, max 366)
//   - channel:  restrict to one configured channel (default all stored)
func (s *Server) parseWindow(r *http.Request) (window, int, error) {
	q := r.URL.Query()
	days := parseIntDefault(q.Get("days"), 7)
	if days <= 0 {
		days = 7
	}
	days = config.ClampDays(days)
	backfill := config.ClampDays(parseIntDefault(q.Get("backfill"), 1))

	loc := s.cfg.Location()
	today := compass.DateOf(s.now().In(loc))
	win := window{
		from: today.AddDays(-backfill).Time(loc),
		to:   today.AddDays(days + 1).Time(loc),
	}

	if id := q.Get("channel"); id != "" {
		if _, ok := s.cfg.Channel(id); !ok {
			return win, http.StatusNotFound, errors.New("unknown channel")
		}
		win.channels = []string{id}
		return win, 0, nil
	}
	chs, err := s.store.Channels()
	if err != nil {
		return win, http.StatusInternalServerError, err
	}
	win.channels = chs
	return win, 0, nil
}

func (s *Server) load(win window) ([]model.Entry, []model.Event, error) {
	entries := make([]model.Entry, 0)
	events := make([]model.Event, 0)
	for _, ch := range win.channels {
		evs, err := s.store.Events(ch, win.from, win.to)
		if err != nil {
			return nil, nil, err
		}
		entries = append(entries, model.ToEntries(ch, evs)...)
		events = append(events, evs...)
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Start.Before(entries[j].Start) })
	sort.SliceStable(events, func(i, j int) bool { return events[i].Start.Before(events[j].Start) })
	return entries, events, nil
}

// handleEvents returns stored events in the requested window as entries,
// ordered by start.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	win, status, err := s.parseWindow(r)
	if err != nil {
		writeError(w, status, err.Error())
		return
	}
	entries, _, err := s.load(win)
	if err != nil {
		appLog.Error("api events: store read failed", err)
		writeError(w, http.StatusInternalServerError, "failed to read events")
		return
	}

	appLog.Debug("api events request",
		"channels", len(win.channels),
		"range_start", win.from.Format(time.RFC3339),
		"range_end", win.to.Format(time.RFC3339),
		"entries", len(entries),
	)

	writeJSON(w, http.StatusOK, eventsResponse{
		Entries:         entries,
		RangeStart:      win.from,
		RangeEnd:        win.to,
		DisplayTimeZone: s.cfg.Location().String(),
	})
}

// handleICS serves the same window as an iCalendar feed. Recurring series
// are collapsed unless collapse=0.
func (s *Server) handleICS(w http.ResponseWriter, r *http.Request) {
	win, status, err := s.parseWindow(r)
	if err != nil {
		http.Error(w, err.Error(), status)
		return
	}
	_, events, err := s.load(win)
	if err != nil {
		appLog.Error("api ics: store read failed", err)
		http.Error(w, "failed to read events", http.StatusInternalServerError)
		return
	}

	name := "Bellweaver"
	if len(win.channels) == 1 {
		if ch, ok := s.cfg.Channel(win.channels[0]); ok && ch.Name != "" {
			name = ch.Name
		}
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	err = ics.Write(w, events, ics.Options{
		Name:     name,
		Location: s.cfg.Location(),
		Collapse: r.URL.Query().Get("collapse") != "0",
		Now:      s.now,
	})
	if err != nil {
		appLog.Error("api ics: write failed", err)
	}
}

// handleRuns lists recent sync runs, newest first.
//
// GET /api/runs?channel=school&limit=20
func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := parseIntDefault(q.Get("limit"), 20)
	if limit <= 0 {
		limit = 20
	}
	runs, err := s.store.Runs(q.Get("channel"), limit)
	if err != nil {
		appLog.Error("api runs: store read failed", err)
		writeError(w, http.StatusInternalServerError, "failed to read runs")
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

// channelStatus is one element of the /api/status response.
type channelStatus struct {
	Channel string     `json:"channel"`
	Name    string     `json:"name,omitempty"`
	LastRun *store.Run `json:"last_run"`
}

// handleStatus reports the newest sync run of every configured channel.
// last_run is null for a channel that has never been synced.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	out := make([]channelStatus, 0, len(s.cfg.Channels))
	for _, ch := range s.cfg.Channels {
		st := channelStatus{Channel: ch.ID, Name: ch.Name}
		run, ok, err := s.store.LastRun(ch.ID)
		if err != nil {
			appLog.Error("api status: store read failed", err, "channel", ch.ID)
			writeError(w, http.StatusInternalServerError, "failed to read runs")
			return
		}
		if ok {
			st.LastRun = &run
		}
		out = append(out, st)
	}
	writeJSON(w, http.StatusOK, out)
}

// syncResponse is the JSON response shape for POST /api/sync.
type syncResponse struct {
	Runs  []store.Run `json:"runs"`
	Error string      `json:"error,omitempty"`
}

// handleSync runs one sync pass over all channels and reports the runs.
// Channel failures are reported in the body, not as an HTTP error.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	if s.syncer == nil {
		writeError(w, http.StatusServiceUnavailable, "sync not available")
		return
	}
	runs, err := s.syncer.RunOnce(r.Context())
	resp := syncResponse{Runs: runs}
	if err != nil {
		resp.Error = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
