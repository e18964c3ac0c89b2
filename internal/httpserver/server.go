// Package httpserver exposes live statistics, the event history and the
// pause/report controls over HTTP.
package httpserver

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/EchoPBX/gbstats/internal/app"
	"github.com/EchoPBX/gbstats/internal/config"
	"github.com/EchoPBX/gbstats/internal/jwt"
	"github.com/EchoPBX/gbstats/pkg/sdk"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const readTimeout = 60 * time.Second

type Server struct {
	cfg *config.Config
	log *zap.Logger
	app *app.App
	r   *chi.Mux
	jwt *jwt.Validator
}

func New(cfg *config.Config, log *zap.Logger, a *app.App) (*Server, error) {
	v, err := jwt.NewValidator(cfg.Auth.JWTPublicKeys, cfg.Auth.Issuer, cfg.Auth.Audience)
	if err != nil {
		return nil, err
	}
	if !v.Enabled() {
		log.Warn("no jwt keys configured, /v1 is open")
	}
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}))
	s := &Server{cfg: cfg, log: log, app: a, r: r, jwt: v}
	s.routes()
	return s, nil
}

func (s *Server) Router() http.Handler      { return s.r }
func (s *Server) Reload(cfg *config.Config) { s.cfg = cfg }

func (s *Server) routes() {
	s.r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	s.r.Method(http.MethodGet, "/metrics", s.app.Metrics().Handler())

	s.r.Route("/v1", func(r chi.Router) {
		r.Use(s.auth)
		r.Get("/stats", s.stats)
		r.Get("/events", s.history)
		r.Get("/events/stream", s.stream)
		r.Post("/report", s.report)
		r.Post("/pause", s.pause(true))
		r.Post("/resume", s.pause(false))
	})
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	var rep any
	if err := s.app.Do(r.Context(), func() { rep = s.app.Snapshot() }); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// history returns the bus history, optionally filtered by ?type= and cut to
// the last ?limit= events.
func (s *Server) history(w http.ResponseWriter, r *http.Request) {
	typ := r.URL.Query().Get("type")
	limit := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 0 {
			http.Error(w, "bad limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	out := []sdk.Event{}
	for _, ev := range s.app.Bus().History() {
		if typ == "" || ev.Type == typ {
			out = append(out, ev)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) report(w http.ResponseWriter, r *http.Request) {
	var n any
	err := s.app.Do(r.Context(), func() {
		s.app.GenerateReport()
		n = s.app.Report().Statistics()["reports_generated"]
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"reports_generated": n})
}

func (s *Server) pause(on bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var changed, paused bool
		err := s.app.Do(r.Context(), func() {
			if on {
				changed = s.app.Watcher().Pause()
			} else {
				changed = s.app.Watcher().Resume()
			}
			paused = s.app.Watcher().Paused()
		})
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"paused": paused, "changed": changed})
	}
}

var upgrader = websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

func (s *Server) stream(w http.ResponseWriter, r *http.Request) {
	bus := s.app.Bus()
	ch := bus.Tap()
	// when the reader returns the channel closes and the writer exits
	defer bus.Untap(ch)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("ws upgrade failed", zap.Error(err))
		return
	}

	go func() {
		defer conn.Close()
		for ev := range ch {
			if err := conn.WriteJSON(ev); err != nil {
				s.log.Debug("ws write error", zap.Error(err))
				return
			}
		}
	}()

	conn.SetReadLimit(1024)
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.jwt.Enabled() {
			next.ServeHTTP(w, r)
			return
		}
		tok := r.Header.Get("Authorization")
		if tok == "" {
			http.Error(w, "missing token", http.StatusUnauthorized)
			return
		}
		tok = strings.TrimPrefix(tok, "Bearer ")
		if _, err := s.jwt.Verify(tok); err != nil {
			s.log.Debug("token rejected", zap.Error(err))
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
