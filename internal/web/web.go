package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"variazioni/internal/auth"
	"variazioni/internal/config"
	"variazioni/internal/identity"
	appLog "variazioni/internal/log"
	"variazioni/internal/model"
	"variazioni/internal/prefs"
	"variazioni/internal/render"
)

// DaySource produces the raw events for one day. The backend client and
// ICS feed sources both satisfy this.
type DaySource interface {
	FetchDay(ctx context.Context, day string) ([]model.Event, error)
}

// Server provides the HTTP API: variation queries, preferences, digest
// subscriptions and the rendered day-sheet preview.
type Server struct {
	cfg     *config.Config
	store   *prefs.Store
	sources []DaySource
	loc     *time.Location
	mux     *http.ServeMux

	// In-memory cache for /api/variations responses so repeated UI polls
	// do not re-fetch every source.
	varMu    sync.RWMutex
	varCache map[string]*variationsCache
}

// NewServer constructs a new Server. loc is the display timezone used to
// resolve "today" when a query names no date.
func NewServer(cfg *config.Config, store *prefs.Store, sources []DaySource, loc *time.Location) *Server {
	if loc == nil {
		loc = time.Local
	}
	s := &Server{
		cfg:      cfg,
		store:    store,
		sources:  sources,
		loc:      loc,
		mux:      http.NewServeMux(),
		varCache: make(map[string]*variationsCache),
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler, wrapped with basic auth
// when it is configured.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.PasswordHash != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic
// Auth, verifying the password against the configured argon2id hash.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	passwordHash := s.cfg.BasicAuth.PasswordHash

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// /health stays open for probes; /sheet stays open because the
		// preview capture browses it without credentials.
		if r.URL.Path == "/health" || r.URL.Path == "/sheet" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if ok && auth.SecureCompare(u, username) {
			if verified, err := auth.VerifyPassword(p, passwordHash); err == nil && verified {
				next.ServeHTTP(w, r)
				return
			}
		}
		w.Header().Set("WWW-Authenticate", `Basic realm="variazioni", charset="UTF-8"`)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
	})
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/variations", s.handleVariations)
	s.mux.HandleFunc("/api/prefs", s.handlePrefs)
	s.mux.HandleFunc("/api/subscriptions", s.handleSubscriptions)
	s.mux.HandleFunc("/api/subscriptions/", s.handleSubscriptionByID)
	s.mux.HandleFunc("/sheet", s.handleSheet)
	s.mux.HandleFunc("/preview.png", s.handlePreview)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// variationDTO is the JSON view of one filtered event.
type variationDTO struct {
	ID          string `json:"id"`
	SourceID    string `json:"source_id"`
	Summary     string `json:"summary"`
	Description string `json:"description,omitempty"`
	Location    string `json:"location,omitempty"`
	AllDay      bool   `json:"all_day"`
	Start       string `json:"start"`
	End         string `json:"end,omitempty"`
	DayKey      string `json:"day_key"`
}

// variationsResponse is the JSON response shape for /api/variations.
type variationsResponse struct {
	Mode       string         `json:"mode"`
	Value      string         `json:"value,omitempty"`
	Date       string         `json:"date"`
	Count      int            `json:"count"`
	Variations []variationDTO `json:"variations"`
}

type variationsCache struct {
	resp      variationsResponse
	updatedAt time.Time
}

const variationsCacheTTL = 30 * time.Second

// handleVariations answers one filter query.
//
// GET /api/variations?date=2024-05-10&mode=section&value=5AIIN
//   - date:  target day, default today in the display timezone
//   - mode:  all | section | professor (default all)
//   - value: class code or professor name; required unless mode=all
func (s *Server) handleVariations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	date := q.Get("date")
	if date == "" {
		date = time.Now().In(s.loc).Format("2006-01-02")
	}
	if _, err := time.Parse("2006-01-02", date); err != nil {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}

	mode := q.Get("mode")
	if mode == "" {
		mode = string(identity.ModeAll)
	}
	if !identity.ValidMode(mode) {
		writeError(w, http.StatusBadRequest, "mode must be one of all, section, professor")
		return
	}

	value := strings.TrimSpace(q.Get("value"))
	if value == "" && mode == string(identity.ModeSection) {
		value = s.cfg.DefaultSection
	}
	if value == "" && mode != string(identity.ModeAll) {
		writeError(w, http.StatusBadRequest, "value is required for this mode")
		return
	}

	cacheKey := mode + "|" + value + "|" + date
	s.varMu.RLock()
	cached := s.varCache[cacheKey]
	s.varMu.RUnlock()
	if cached != nil && time.Since(cached.updatedAt) < variationsCacheTTL {
		writeJSON(w, http.StatusOK, cached.resp)
		return
	}

	events, err := s.fetchDay(ctx, date)
	if err != nil {
		appLog.Error("variations: all sources failed", err, "date", date)
		writeError(w, http.StatusBadGateway, "no variation source available")
		return
	}

	selected := identity.SelectAndSort(events, identity.Query{
		Mode:       identity.Mode(mode),
		Value:      value,
		TargetDate: date,
	})

	dtos := make([]variationDTO, 0, len(selected))
	for _, ev := range selected {
		dtos = append(dtos, toDTO(ev))
	}
	resp := variationsResponse{
		Mode:       mode,
		Value:      value,
		Date:       date,
		Count:      len(dtos),
		Variations: dtos,
	}

	s.varMu.Lock()
	s.varCache[cacheKey] = &variationsCache{resp: resp, updatedAt: time.Now()}
	s.varMu.Unlock()

	writeJSON(w, http.StatusOK, resp)
}

// fetchDay merges the events of every configured source. Individual source
// failures are logged and tolerated; only a day where every source failed
// is an error.
func (s *Server) fetchDay(ctx context.Context, date string) ([]model.Event, error) {
	if len(s.sources) == 0 {
		return []model.Event{}, nil
	}

	merged := make([]model.Event, 0)
	failed := 0
	var lastErr error
	for _, src := range s.sources {
		events, err := src.FetchDay(ctx, date)
		if err != nil {
			failed++
			lastErr = err
			appLog.Error("variation source failed", err, "date", date)
			continue
		}
		merged = append(merged, events...)
	}
	if failed == len(s.sources) {
		return nil, lastErr
	}
	return merged, nil
}

func toDTO(ev model.Event) variationDTO {
	return variationDTO{
		ID:          ev.ID,
		SourceID:    ev.SourceID,
		Summary:     ev.Summary,
		Description: ev.Description,
		Location:    ev.Location,
		AllDay:      ev.Start.IsAllDay(),
		Start:       stampString(ev.Start),
		End:         stampString(ev.End),
		DayKey:      ev.DayKey(),
	}
}

func stampString(st model.Stamp) string {
	switch st.Kind {
	case model.StampAllDay:
		return st.Date
	case model.StampTimed:
		return st.At.Format(time.RFC3339)
	default:
		return st.Raw
	}
}

// handlePrefs reads (GET) or replaces (PUT) the viewer preferences.
func (s *Server) handlePrefs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	switch r.Method {
	case http.MethodGet:
		p, err := s.store.LoadPreferences(ctx)
		if err != nil {
			appLog.Error("prefs load failed", err)
			writeError(w, http.StatusInternalServerError, "failed to load preferences")
			return
		}
		writeJSON(w, http.StatusOK, p)

	case http.MethodPut:
		var p prefs.Preferences
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			writeError(w, http.StatusBadRequest, "invalid preferences payload")
			return
		}
		if err := s.store.SavePreferences(ctx, p); err != nil {
			appLog.Error("prefs save failed", err)
			writeError(w, http.StatusInternalServerError, "failed to save preferences")
			return
		}
		saved, err := s.store.LoadPreferences(ctx)
		if err != nil {
			appLog.Error("prefs reload failed", err)
			writeError(w, http.StatusInternalServerError, "failed to load preferences")
			return
		}
		writeJSON(w, http.StatusOK, saved)

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// subscriptionRequest is the POST body for /api/subscriptions.
type subscriptionRequest struct {
	Kind     string `json:"kind"`
	Value    string `json:"value"`
	Endpoint string `json:"endpoint"`
}

func (s *Server) handleSubscriptions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	switch r.Method {
	case http.MethodGet:
		subs, err := s.store.ListSubscriptions(ctx)
		if err != nil {
			appLog.Error("subscription list failed", err)
			writeError(w, http.StatusInternalServerError, "failed to list subscriptions")
			return
		}
		writeJSON(w, http.StatusOK, subs)

	case http.MethodPost:
		var req subscriptionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid subscription payload")
			return
		}
		sub, err := s.store.AddSubscription(ctx, req.Kind, req.Value, req.Endpoint)
		switch {
		case errors.Is(err, prefs.ErrDuplicate):
			writeError(w, http.StatusConflict, "subscription already exists")
		case err != nil:
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			writeJSON(w, http.StatusCreated, sub)
		}

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleSubscriptionByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/subscriptions/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusBadRequest, "subscription id required")
		return
	}

	err := s.store.RemoveSubscription(r.Context(), id)
	switch {
	case errors.Is(err, prefs.ErrNotFound):
		writeError(w, http.StatusNotFound, "subscription not found")
	case err != nil:
		appLog.Error("subscription delete failed", err, "id", id)
		writeError(w, http.StatusInternalServerError, "failed to delete subscription")
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

// handleSheet serves the printable HTML day sheet; the preview capture
// screenshots this page.
func (s *Server) handleSheet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	date := q.Get("date")
	if date == "" {
		date = time.Now().In(s.loc).Format("2006-01-02")
	}
	if _, err := time.Parse("2006-01-02", date); err != nil {
		http.Error(w, "date must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	mode := q.Get("mode")
	if mode == "" {
		mode = string(identity.ModeAll)
	}
	if !identity.ValidMode(mode) {
		http.Error(w, "invalid mode", http.StatusBadRequest)
		return
	}
	value := strings.TrimSpace(q.Get("value"))

	events, err := s.fetchDay(ctx, date)
	if err != nil {
		http.Error(w, "no variation source available", http.StatusBadGateway)
		return
	}
	selected := identity.SelectAndSort(events, identity.Query{
		Mode:       identity.Mode(mode),
		Value:      value,
		TargetDate: date,
	})

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := render.RenderSheet(w, render.BuildSheet(selected, date, mode, value)); err != nil {
		appLog.Error("sheet render failed", err)
	}
}

// handlePreview serves the last captured PNG preview from the data dir.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	http.ServeFile(w, r, filepath.Join(s.cfg.DataDir, "preview.png"))
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
