package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/vepflow/vepflow/core"
	"github.com/vepflow/vepflow/fingerprint"
	"github.com/vepflow/vepflow/transaction"
	"github.com/vepflow/vepflow/vep"
)

// Handler holds the HTTP endpoints over the application service.
type Handler struct {
	service     *Service
	environment string
	logger      core.Logger
}

// NewHandler creates the endpoint set.
func NewHandler(service *Service, environment string, logger core.Logger) *Handler {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &Handler{service: service, environment: environment, logger: logger}
}

// Routes registers every endpoint on the mux. The metrics handler is
// passed in so the router stays decoupled from the registry.
func (h *Handler) Routes(mux *http.ServeMux, metricsHandler http.Handler) {
	mux.HandleFunc("POST /workflows/ccma/execute", h.executeCCMA)
	mux.HandleFunc("POST /workflows/ddjj/execute", h.executeDDJJ)
	mux.HandleFunc("GET /workflows/{exchange_id}/status", h.runStatus)
	mux.HandleFunc("GET /workflows", h.listWorkflows)
	mux.HandleFunc("POST /retry", h.retry)
	mux.HandleFunc("GET /health", h.health)
	mux.Handle("GET /metrics", metricsHandler)
}

func (h *Handler) executeCCMA(w http.ResponseWriter, r *http.Request) {
	var req vep.CCMAWorkflowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "malformed request body", Detail: err.Error()})
		return
	}

	resp, err := h.service.ExecuteCCMA(r.Context(), &req)
	if err != nil {
		h.writeExecuteError(w, r, err, fingerprint.CCMAWorkflowHash(&req))
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) executeDDJJ(w http.ResponseWriter, r *http.Request) {
	var req vep.DDJJWorkflowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "malformed request body", Detail: err.Error()})
		return
	}

	resp, err := h.service.ExecuteDDJJ(r.Context(), &req)
	if err != nil {
		h.writeExecuteError(w, r, err, fingerprint.DDJJWorkflowHash(&req))
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) runStatus(w http.ResponseWriter, r *http.Request) {
	exchangeID := r.PathValue("exchange_id")
	resp, err := h.service.RunStatus(r.Context(), exchangeID)
	if err != nil {
		if errors.Is(err, transaction.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "run not found"})
			return
		}
		h.serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) listWorkflows(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"workflows": h.service.Workflows(),
	})
}

func (h *Handler) retry(w http.ResponseWriter, r *http.Request) {
	maxRetries := 0
	if v := r.URL.Query().Get("max_retries"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "max_retries must be a positive integer"})
			return
		}
		maxRetries = n
	}

	stats, err := h.service.Retry(r.Context(), maxRetries)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Environment: h.environment})
}

// writeExecuteError maps intake errors onto the transport contract.
func (h *Handler) writeExecuteError(w http.ResponseWriter, r *http.Request, err error, wfHash string) {
	var dup *core.DuplicateTransactionError
	switch {
	case errors.As(err, &dup):
		writeJSON(w, http.StatusConflict, DuplicateResponse{
			TransactionHash:    wfHash,
			ExistingExchangeID: dup.ExistingExchangeID,
			Error:              "DuplicateTransaction",
		})
	case errors.Is(err, core.ErrValidation):
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{Error: "validation failed", Detail: err.Error()})
	case errors.Is(err, core.ErrPasswordNotFound):
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{Error: "credentials not found", Detail: err.Error()})
	case errors.Is(err, core.ErrPasswordServiceUnavailable):
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "credential service unavailable", Detail: err.Error()})
	case errors.Is(err, core.ErrTransactionCreation):
		h.serverError(w, r, err)
	case errors.Is(err, core.ErrWorkflowStartup):
		h.serverError(w, r, err)
	default:
		h.serverError(w, r, err)
	}
}

func (h *Handler) serverError(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.ErrorWithContext(r.Context(), "request failed", map[string]interface{}{
		"method": r.Method,
		"path":   r.URL.Path,
		"error":  err,
	})
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal error", Detail: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
