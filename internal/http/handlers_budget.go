package http

import (
	"net/http"

	"zerobudget/internal/core"
)

// ─── Categories ─────────────────────────────────────────────────────────────

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	owner, err := s.owner(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	categories, err := s.ledger.ListCategories(r.Context(), owner)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(categories))
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	owner, err := s.owner(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var in core.CategoryInput
	if err := s.decode(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	cat, err := s.ledger.CreateCategory(r.Context(), owner, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, cat)
}

func (s *Server) handleRenameCategory(w http.ResponseWriter, r *http.Request) {
	owner, err := s.owner(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id, err := pathID(r, "category")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var in core.CategoryInput
	if err := s.decode(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	cat, err := s.ledger.RenameCategory(r.Context(), owner, id, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cat)
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	s.handleDelete(w, r, "category", s.ledger.DeleteCategory)
}

func (s *Server) handleCategoryBalances(w http.ResponseWriter, r *http.Request) {
	owner, err := s.owner(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	balances, err := s.ledger.CategoryBalances(r.Context(), owner)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(balances))
}

// ─── Allocations ────────────────────────────────────────────────────────────

func (s *Server) handleListAllocations(w http.ResponseWriter, r *http.Request) {
	owner, err := s.owner(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	allocations, err := s.ledger.ListAllocations(r.Context(), owner)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(allocations))
}

func (s *Server) handleAllocate(w http.ResponseWriter, r *http.Request) {
	owner, err := s.owner(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var in core.AllocationInput
	if err := s.decode(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	alloc, err := s.ledger.Allocate(r.Context(), owner, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, alloc)
}

func (s *Server) handleMoveMoney(w http.ResponseWriter, r *http.Request) {
	owner, err := s.owner(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var in core.MoveInput
	if err := s.decode(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	result, err := s.ledger.MoveMoney(r.Context(), owner, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// ─── Transactions ───────────────────────────────────────────────────────────

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	owner, err := s.owner(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	transactions, err := s.ledger.ListTransactions(r.Context(), owner)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(transactions))
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	owner, err := s.owner(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var in core.TransactionInput
	if err := s.decode(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	tr, err := s.ledger.CreateTransaction(r.Context(), owner, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, tr)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	s.handleDelete(w, r, "transaction", s.ledger.DeleteTransaction)
}

// ─── Summary ────────────────────────────────────────────────────────────────

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	owner, err := s.owner(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	summary, err := s.ledger.Summary(r.Context(), owner)
	if err != nil {
		writeError(w, r, err)
		return
	}
	summary.Categories = nonNil(summary.Categories)
	writeJSON(w, http.StatusOK, summary)
}
