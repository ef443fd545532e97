// Package api is the HTTP front-end of the ledger.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	interfaces "github.com/sheikh-saqib/account-ledger/internal/interfaces"
	"github.com/sheikh-saqib/account-ledger/internal/metrics"
	"github.com/sheikh-saqib/account-ledger/internal/models"
	"github.com/sheikh-saqib/account-ledger/internal/rpc"
	"github.com/sheikh-saqib/account-ledger/internal/statement"
)

// MaxDescriptionLen is the longest description accepted, in bytes.
const MaxDescriptionLen = 10

type Handler struct {
	ledger     interfaces.Ledger
	statements *statement.Service
	logger     zerolog.Logger
}

func NewHandler(ledger interfaces.Ledger, statements *statement.Service, logger zerolog.Logger) *Handler {
	return &Handler{ledger: ledger, statements: statements, logger: logger}
}

// Router mounts every endpoint.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.observe)

	r.Get("/health", h.health)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/accounts/{id}", func(r chi.Router) {
		r.Post("/transactions", h.postTransaction)
		r.Get("/statement", h.getStatement)
		r.Get("/balance", h.getBalance)
	})
	return r
}

func (h *Handler) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.RecordHTTPRequest(r.Method, route, status, time.Since(start))
	})
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type transactionRequest struct {
	Amount      int64       `json:"amount"`
	Kind        models.Kind `json:"kind"`
	Description string      `json:"description"`
}

func (req transactionRequest) validate() error {
	switch {
	case req.Amount <= 0:
		return errors.New("amount must be a positive integer")
	case !req.Kind.Valid():
		return errors.New(`kind must be "c" or "d"`)
	case len(req.Description) == 0 || len(req.Description) > MaxDescriptionLen:
		return errors.New("description must be 1 to 10 bytes")
	case strings.TrimSpace(req.Description) == "":
		return errors.New("description must not be blank")
	case strings.IndexFunc(req.Description, unicode.IsControl) >= 0:
		return errors.New("description must not contain control characters")
	}
	return nil
}

type transactionResponse struct {
	Balance int64 `json:"balance"`
	Limit   int64 `json:"limit"`
}

func (h *Handler) postTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := accountID(w, r)
	if !ok {
		return
	}

	var req transactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid request body")
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	res, err := h.ledger.Apply(r.Context(), id, models.SignedAmount(req.Kind, req.Amount), req.Description)
	if err != nil {
		h.fail(w, id, err)
		return
	}
	writeJSON(w, http.StatusOK, transactionResponse{Balance: res.BalanceAfter, Limit: res.CreditLimit})
}

func (h *Handler) getStatement(w http.ResponseWriter, r *http.Request) {
	id, ok := accountID(w, r)
	if !ok {
		return
	}
	st, err := h.statements.Statement(r.Context(), id)
	if err != nil {
		h.fail(w, id, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

type balanceResponse struct {
	AccountID int    `json:"account_id"`
	Balance   int64  `json:"balance"`
	Limit     int64  `json:"limit"`
	Version   uint64 `json:"version"`
}

func (h *Handler) getBalance(w http.ResponseWriter, r *http.Request) {
	id, ok := accountID(w, r)
	if !ok {
		return
	}
	b, err := h.ledger.Get(r.Context(), id)
	if err != nil {
		h.fail(w, id, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{AccountID: id, Balance: b.Balance, Limit: b.CreditLimit, Version: b.Version})
}

func (h *Handler) fail(w http.ResponseWriter, id int, err error) {
	switch {
	case errors.Is(err, models.ErrUnknownAccount):
		writeError(w, http.StatusNotFound, "account not found")
	case errors.Is(err, models.ErrRejected):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, models.ErrStorageUnavailable),
		errors.Is(err, rpc.ErrUndeliverable),
		errors.Is(err, rpc.ErrClosed),
		errors.Is(err, rpc.ErrRemote):
		h.logger.Warn().Err(err).Int("account_id", id).Msg("ledger unavailable")
		writeError(w, http.StatusServiceUnavailable, "ledger unavailable")
	default:
		h.logger.Error().Err(err).Int("account_id", id).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// accountID parses the {id} path parameter. Ids that cannot name an
// account are reported as not found.
func accountID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		writeError(w, http.StatusNotFound, "account not found")
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
