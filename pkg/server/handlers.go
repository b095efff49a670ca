package server

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gagliardetto/solana-go"

	"github.com/hadcinema-ops/giveaway/pkg/cycle"
	"github.com/hadcinema-ops/giveaway/pkg/holders"
	"github.com/hadcinema-ops/giveaway/pkg/metrics"
	chain "github.com/hadcinema-ops/giveaway/pkg/solana"
)

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("server: failed to write response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("ok\n")); err != nil {
		s.log.Error("failed to write healthz response", "error", err)
	}
}

func (s *Server) handlePublicStats(w http.ResponseWriter, r *http.Request) {
	doc, err := s.cfg.Store.Load(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "stats unavailable")
		return
	}
	s.writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handlePublicConfig(w http.ResponseWriter, r *http.Request) {
	doc, err := s.cfg.Store.Load(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "stats unavailable")
		return
	}
	resp := map[string]any{"config": doc.Config}
	if s.cfg.Registry != nil {
		resp["keyword"] = s.cfg.Registry.Keyword()
	}
	s.writeJSON(w, http.StatusOK, resp)
}

type joinRequest struct {
	Wallet  string `json:"wallet"`
	Message string `json:"message"`
}

// handleJoin registers a wallet for the current keyword round. The wallet
// must hold the target token under either token program variant.
func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	wallet, err := solana.PublicKeyFromBase58(strings.TrimSpace(req.Wallet))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid wallet address")
		return
	}

	_, _, amount, err := chain.LocateHolding(r.Context(), s.cfg.Chain, wallet, s.cfg.Mint)
	if err != nil {
		s.writeError(w, http.StatusBadGateway, "holder verification unavailable")
		return
	}
	if amount == 0 {
		s.writeError(w, http.StatusForbidden, "wallet does not hold the token")
		return
	}

	if err := s.cfg.Registry.Register(wallet.String(), req.Message); err != nil {
		switch {
		case errors.Is(err, holders.ErrNoActiveKeyword):
			s.writeError(w, http.StatusConflict, "no active round")
		case errors.Is(err, holders.ErrKeywordMismatch):
			s.writeError(w, http.StatusBadRequest, "keyword not found in message")
		default:
			s.writeError(w, http.StatusInternalServerError, "registration failed")
		}
		return
	}

	metrics.EntrantsRegistered.Inc()
	s.writeJSON(w, http.StatusOK, map[string]any{
		"registered": true,
		"entrants":   s.cfg.Registry.Size(),
	})
}

func (s *Server) requireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.BearerToken)) != 1 {
			s.writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// handleRunOnce kicks off a cycle in the background. The response reports
// whether it started; the run itself outlives the request.
func (s *Server) handleRunOnce(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Controller.Running() {
		s.writeJSON(w, http.StatusConflict, map[string]any{"started": false, "reason": "in_flight"})
		return
	}

	go func() {
		if _, err := s.cfg.Controller.RunCycle(s.runCtx, "admin"); err != nil && !errors.Is(err, cycle.ErrCycleInFlight) {
			s.log.Error("server: admin-triggered cycle failed", "error", err)
		}
	}()

	s.writeJSON(w, http.StatusAccepted, map[string]any{"started": true})
}

func (s *Server) handleForceSync(w http.ResponseWriter, r *http.Request) {
	doc, err := s.cfg.Controller.ForceSync(r.Context())
	if err != nil {
		if errors.Is(err, cycle.ErrCycleInFlight) {
			s.writeError(w, http.StatusConflict, "cycle in flight")
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleLastRun(w http.ResponseWriter, r *http.Request) {
	trace := s.cfg.Controller.LastRun()
	if trace == nil {
		s.writeError(w, http.StatusNotFound, "no cycle has run yet")
		return
	}
	s.writeJSON(w, http.StatusOK, trace)
}
