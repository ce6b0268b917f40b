package http

import (
	"context"
	"net/http"
	"time"

	"zerobudget/internal/core"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(s.startedAt).Round(time.Second).String(),
	})
}

// handleReady reports ready only while the store answers a ping.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := map[string]string{"store": "ok"}
	status, code := "ready", http.StatusOK
	if err := s.ledger.Ping(ctx); err != nil {
		s.logger.WarnContext(ctx, "Readiness check failed", "check", "store", "error", err)
		checks["store"] = "failed: " + err.Error()
		status, code = "not_ready", http.StatusServiceUnavailable
	}

	writeJSON(w, code, map[string]any{
		"status": status,
		"checks": checks,
	})
}

// ─── Accounts ───────────────────────────────────────────────────────────────

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	owner, err := s.owner(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	accounts, err := s.ledger.ListAccounts(r.Context(), owner)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(accounts))
}

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	owner, err := s.owner(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var in core.AccountInput
	if err := s.decode(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	acc, err := s.ledger.CreateAccount(r.Context(), owner, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, acc)
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	owner, err := s.owner(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id, err := pathID(r, "account")
	if err != nil {
		writeError(w, r, err)
		return
	}
	acc, err := s.ledger.GetAccount(r.Context(), owner, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, acc)
}

func (s *Server) handleUpdateAccount(w http.ResponseWriter, r *http.Request) {
	owner, err := s.owner(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id, err := pathID(r, "account")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var in core.AccountUpdate
	if err := s.decode(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	acc, err := s.ledger.UpdateAccount(r.Context(), owner, id, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, acc)
}

func (s *Server) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	s.handleDelete(w, r, "account", s.ledger.DeleteAccount)
}

// handleDelete runs a delete-by-id operation and answers 204.
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request, entity string, del func(context.Context, string, int64) error) {
	owner, err := s.owner(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id, err := pathID(r, entity)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := del(r.Context(), owner, id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
