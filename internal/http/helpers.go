package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"zerobudget/internal/core"
	"zerobudget/internal/log"
)

// errorBody is the wire shape of every error response.
type errorBody struct {
	Kind    string            `json:"kind"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func statusFor(kind core.ErrorKind) int {
	switch kind {
	case core.KindValidation:
		return http.StatusBadRequest
	case core.KindNotFound:
		return http.StatusNotFound
	case core.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps a ledger error to its status code. Untagged errors are
// logged and reported as a bare internal error.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var ce *core.Error
	if errors.As(err, &ce) && ce.Kind != core.KindTransport {
		writeJSON(w, statusFor(ce.Kind), errorBody{Kind: string(ce.Kind), Message: ce.Message, Fields: ce.Fields})
		return
	}

	log.FromContext(r.Context()).ErrorContext(r.Context(), "Request failed",
		log.FieldMethod, r.Method,
		log.FieldPath, r.URL.Path,
		log.FieldError, err)
	writeJSON(w, http.StatusInternalServerError, errorBody{Kind: "internal", Message: "internal server error"})
}

// owner resolves the ledger owner from the request header, falling back to
// the configured default.
func (s *Server) owner(r *http.Request) (string, error) {
	owner := strings.TrimSpace(r.Header.Get(OwnerHeader))
	if owner == "" {
		owner = s.defaultOwner
	}
	if owner == "" {
		return "", core.Validation("missing ledger owner", map[string]string{"owner": OwnerHeader + " header is required"})
	}
	if len(owner) > core.MaxNameLength {
		return "", core.Validation("invalid ledger owner", map[string]string{"owner": "owner cannot exceed 100 characters"})
	}
	return owner, nil
}

// pathID parses the {id} URL parameter. A malformed id names no entity, so
// it is reported as not found.
func pathID(r *http.Request, entity string) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, &core.Error{Kind: core.KindNotFound, Message: fmt.Sprintf("%s %q not found", entity, raw)}
	}
	return id, nil
}

// moneyField names the amount field of each request body, used when a
// malformed amount has to be attributed to a field.
func moneyField(v any) string {
	switch v.(type) {
	case *core.AccountInput, *core.AccountUpdate:
		return "balance"
	default:
		return "amount"
	}
}

// decode reads a JSON body into v, turning malformed input into
// validation errors.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.maxBodyBytes))
	err := dec.Decode(v)
	if err == nil {
		return nil
	}

	var (
		syntaxErr   *json.SyntaxError
		typeErr     *json.UnmarshalTypeError
		maxBytesErr *http.MaxBytesError
	)
	switch {
	case errors.Is(err, io.EOF):
		return core.Validation("request body is required", nil)
	case errors.Is(err, core.ErrInvalidMoney):
		return core.FieldError(moneyField(v), core.ErrInvalidMoney)
	case errors.Is(err, core.ErrInvalidDate):
		return core.FieldError("date", core.ErrInvalidDate)
	case errors.As(err, &typeErr):
		field := typeErr.Field
		if field == "" {
			field = "non_field_errors"
		}
		return core.Validation("invalid request body", map[string]string{field: "must be a " + typeErr.Type.String()})
	case errors.As(err, &maxBytesErr):
		return core.Validation(fmt.Sprintf("request body exceeds %d bytes", maxBytesErr.Limit), nil)
	case errors.As(err, &syntaxErr), errors.Is(err, io.ErrUnexpectedEOF):
		return core.Validation("malformed JSON body", nil)
	default:
		return core.Validation("invalid request body: "+err.Error(), nil)
	}
}

// nonNil keeps empty lists encoding as [] rather than null.
func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
