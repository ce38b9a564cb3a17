package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/quantlab/stratbench/internal/service"
	"github.com/quantlab/stratbench/internal/store"
	"github.com/quantlab/stratbench/pkg/strategy"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// StrategyStore is the strategy persistence surface the handlers need.
type StrategyStore interface {
	Create(ctx context.Context, rec *store.StrategyRecord) error
	Get(ctx context.Context, id uuid.UUID) (*store.StrategyRecord, error)
	List(ctx context.Context, limit, offset int) ([]store.StrategyRecord, error)
	Update(ctx context.Context, id uuid.UUID, upd store.StrategyUpdate) (*store.StrategyRecord, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// BacktestStore is the backtest read surface the handlers need.
type BacktestStore interface {
	Get(ctx context.Context, id uuid.UUID) (*store.BacktestRecord, error)
	List(ctx context.Context, strategyID *uuid.UUID, limit, offset int) ([]store.BacktestRecord, error)
}

// Runner executes backtest requests.
type Runner interface {
	Run(ctx context.Context, req service.RunRequest) (*service.RunOutcome, error)
}

// HealthFunc reports per-component status strings ("ok" or a failure
// description) keyed by component name.
type HealthFunc func(ctx context.Context) map[string]string

// Handlers carries the API's dependencies.
type Handlers struct {
	strategies StrategyStore
	backtests  BacktestStore
	runner     Runner
	health     HealthFunc
	logger     zerolog.Logger
}

// NewHandlers wires the handler set.
func NewHandlers(strategies StrategyStore, backtests BacktestStore, runner Runner, health HealthFunc, logger zerolog.Logger) *Handlers {
	return &Handlers{
		strategies: strategies,
		backtests:  backtests,
		runner:     runner,
		health:     health,
		logger:     logger,
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

func parsePaging(r *http.Request) (limit, offset int) {
	limit = defaultPageSize
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = min(parsed, maxPageSize)
		}
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed >= 0 {
			offset = parsed
		}
	}
	return limit, offset
}

func pathID(r *http.Request) (uuid.UUID, error) {
	return uuid.Parse(mux.Vars(r)["id"])
}

func (h *Handlers) createStrategy(w http.ResponseWriter, r *http.Request) {
	var req createStrategyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if !slices.Contains(strategy.Kinds(), req.Kind) {
		writeError(w, http.StatusBadRequest, "unknown strategy kind: "+req.Kind)
		return
	}

	params := json.RawMessage("{}")
	if req.Parameters != nil {
		encoded, err := json.Marshal(req.Parameters)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid parameters: "+err.Error())
			return
		}
		params = encoded
	}

	rec := &store.StrategyRecord{
		Name:        req.Name,
		Description: req.Description,
		Kind:        req.Kind,
		Parameters:  params,
		IsActive:    true,
	}
	if req.IsActive != nil {
		rec.IsActive = *req.IsActive
	}

	if err := h.strategies.Create(r.Context(), rec); err != nil {
		if errors.Is(err, store.ErrDuplicateName) {
			writeError(w, http.StatusConflict, "strategy name already exists")
			return
		}
		h.serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (h *Handlers) listStrategies(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePaging(r)
	recs, err := h.strategies.List(r.Context(), limit, offset)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Items: recs, Limit: limit, Offset: offset})
}

func (h *Handlers) getStrategy(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid strategy id")
		return
	}
	rec, err := h.strategies.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "strategy not found")
			return
		}
		h.serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handlers) updateStrategy(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid strategy id")
		return
	}

	var req updateStrategyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if req.Kind != nil && !slices.Contains(strategy.Kinds(), *req.Kind) {
		writeError(w, http.StatusBadRequest, "unknown strategy kind: "+*req.Kind)
		return
	}

	upd := store.StrategyUpdate{
		Name:        req.Name,
		Description: req.Description,
		Kind:        req.Kind,
		IsActive:    req.IsActive,
	}
	if req.Parameters != nil {
		encoded, err := json.Marshal(req.Parameters)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid parameters: "+err.Error())
			return
		}
		upd.Parameters = encoded
	}

	rec, err := h.strategies.Update(r.Context(), id, upd)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "strategy not found")
		case errors.Is(err, store.ErrDuplicateName):
			writeError(w, http.StatusConflict, "strategy name already exists")
		default:
			h.serverError(w, r, err)
		}
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handlers) deleteStrategy(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid strategy id")
		return
	}
	if err := h.strategies.Delete(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "strategy not found")
			return
		}
		h.serverError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) runBacktest(w http.ResponseWriter, r *http.Request) {
	var req service.RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if req.Symbol == "" || req.Timeframe == "" {
		writeError(w, http.StatusBadRequest, "symbol and timeframe are required")
		return
	}
	if req.Start.IsZero() || req.End.IsZero() || !req.End.After(req.Start) {
		writeError(w, http.StatusBadRequest, "start must precede end")
		return
	}

	outcome, err := h.runner.Run(r.Context(), req)
	if err != nil {
		h.writeRunError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, NewBacktestResponse(outcome, req.Timeframe))
}

// writeRunError maps runner failures to status codes: bad requests to
// 400, missing stored strategies to 404, runs that cannot execute with
// the given inputs to 422.
func (h *Handlers) writeRunError(w http.ResponseWriter, r *http.Request, err error) {
	var invalidParam *strategy.InvalidParameterError
	var insufficient *strategy.InsufficientDataError

	switch {
	case errors.Is(err, service.ErrNoStrategy):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "strategy not found")
	case errors.As(err, &invalidParam), errors.As(err, &insufficient):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case strings.Contains(err.Error(), "unknown strategy kind"),
		strings.Contains(err.Error(), "no bars available"):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		h.serverError(w, r, err)
	}
}

func (h *Handlers) listBacktests(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePaging(r)

	var strategyID *uuid.UUID
	if raw := r.URL.Query().Get("strategy_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid strategy_id filter")
			return
		}
		strategyID = &id
	}

	recs, err := h.backtests.List(r.Context(), strategyID, limit, offset)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Items: recs, Limit: limit, Offset: offset})
}

func (h *Handlers) getBacktest(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid backtest id")
		return
	}
	rec, err := h.backtests.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "backtest not found")
			return
		}
		h.serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handlers) healthCheck(w http.ResponseWriter, r *http.Request) {
	components := map[string]string{}
	if h.health != nil {
		components = h.health(r.Context())
	}

	status := "ok"
	code := http.StatusOK
	for _, state := range components {
		if state != "ok" {
			status = "degraded"
			code = http.StatusServiceUnavailable
			break
		}
	}
	writeJSON(w, code, map[string]any{"status": status, "components": components})
}

func (h *Handlers) serverError(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.Error().
		Err(err).
		Str("request_id", RequestID(r.Context())).
		Str("path", r.URL.Path).
		Msg("Request failed")
	writeError(w, http.StatusInternalServerError, "internal server error")
}
