// Package controlapi is the local HTTP surface the out-of-scope GUI/UI
// layer talks to: read the latest status snapshot, push settings edits, and
// a liveness probe. This is ambient surface area the spec.md core exposes
// but does not itself implement (spec.md §6, "Settings snapshot (consumed)"
// and §2, "status sink").
package controlapi

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/slimevr-wrangler/joybridge/internal/config"
	"github.com/slimevr-wrangler/joybridge/internal/status"
)

// Server is a small net/http wrapper, grounded on the teacher's
// internal/server/api.ServerConfig + bearer-style auth shape but trimmed
// down from its full websocket/bus-registry router to the three
// request/response endpoints this bridge needs.
type Server struct {
	Addr     string
	Token    string
	Settings *config.Store
	Status   *status.Feed
	Logger   *slog.Logger

	latest status.Snapshot
}

// Router builds the http.Handler, wiring auth middleware around every route
// except /healthz.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.Handle("GET /status", s.authenticated(s.handleGetStatus))
	mux.Handle("POST /settings", s.authenticated(s.handlePostSettings))
	return mux
}

// ListenAndServe blocks serving Router() on Addr.
func (s *Server) ListenAndServe() error {
	return http.ListenAndServe(s.Addr, s.Router())
}

func (s *Server) authenticated(next http.HandlerFunc) http.Handler {
	want, err := deriveCheck(s.Token)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err != nil {
			http.Error(w, "server misconfigured", http.StatusInternalServerError)
			return
		}
		got := bearerToken(r)
		gotCheck, derr := deriveCheck(got)
		if derr != nil || !tokensEqual(want, gotCheck) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	})
}

func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	h := r.Header.Get("Authorization")
	if len(h) > len(prefix) && h[:len(prefix)] == prefix {
		return h[len(prefix):]
	}
	return ""
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleGetStatus returns the most recent published snapshot. It does not
// block on the feed: a slow poller simply sees the last value this handler
// observed.
func (s *Server) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	select {
	case snap := <-s.Status.C():
		s.latest = snap
	default:
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.latest); err != nil {
		s.logf("encode status response: %v", err)
	}
}

// settingsPatch is the subset of config.Settings the control API accepts
// edits for; address and MAC changes require a restart (spec.md §3
// invariant: "the destination address is resolved once at startup").
type settingsPatch struct {
	SendReset *bool                      `json:"send_reset,omitempty"`
	Joycon    map[string]config.JoyconOverride `json:"joycon,omitempty"`
}

func (s *Server) handlePostSettings(w http.ResponseWriter, r *http.Request) {
	var patch settingsPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		http.Error(w, fmt.Sprintf("bad request: %v", err), http.StatusBadRequest)
		return
	}

	next := s.Settings.Update(func(cur *config.Settings) {
		if patch.SendReset != nil {
			cur.SendReset = *patch.SendReset
		}
		for serial, override := range patch.Joycon {
			cur.Joycon[serial] = override
		}
	})

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(next); err != nil {
		s.logf("encode settings response: %v", err)
	}
}

func (s *Server) logf(format string, args ...any) {
	if s.Logger != nil {
		s.Logger.Error(fmt.Sprintf(format, args...))
	}
}
