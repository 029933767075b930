package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/dmitrijs2005/enclavekeeper/internal/common"
	"github.com/dmitrijs2005/enclavekeeper/internal/logging"
	"github.com/dmitrijs2005/enclavekeeper/internal/server/metadata"
	"github.com/dmitrijs2005/enclavekeeper/internal/server/metrics"
	"github.com/dmitrijs2005/enclavekeeper/internal/server/models"
	"github.com/dmitrijs2005/enclavekeeper/internal/server/services"
	"github.com/dmitrijs2005/enclavekeeper/internal/server/signing"
	"github.com/dmitrijs2005/enclavekeeper/internal/server/upstream"
	"github.com/dmitrijs2005/enclavekeeper/internal/timex"
	"github.com/go-chi/chi/v5"
)

const (
	// ReportTokenHeader carries the JWT issued alongside a generated report.
	ReportTokenHeader = "X-Report-Token"

	serviceName = "enclavekeeper"

	// maxBodySize bounds every JSON request body (1MB).
	maxBodySize = 1024 * 1024
)

// WatchHistorySource is the upstream watch-history API.
type WatchHistorySource interface {
	WatchHistory(ctx context.Context) (json.RawMessage, error)
}

// BuildInfo is reported by /version.
type BuildInfo struct {
	GitSHA      string
	BuildTime   string
	Environment string
}

// Deps are the services a Handler serves. Tokens may be nil, in which case
// /report is answered without a report token.
type Deps struct {
	Signups  services.SignupRegister
	Receipts services.ReceiptStore
	Deletion services.DeletionAttestor
	Reports  services.ReportGenerator
	Audit    services.AuditLedger
	Upstream WatchHistorySource
	Compose  services.ComposeHashSource
	Tokens   *signing.TokenIssuer
	Build    BuildInfo
}

// Handler translates HTTP requests into service calls.
type Handler struct {
	deps    Deps
	log     logging.Logger
	metrics *metrics.Metrics
}

func NewHandler(deps Deps, log logging.Logger, m *metrics.Metrics) *Handler {
	return &Handler{deps: deps, log: log.With("module", "httpapi"), metrics: m}
}

type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// statusFor maps service errors onto HTTP status codes. Anything unknown is
// an internal error and its text is not returned to the client.
func statusFor(err error) int {
	switch {
	case errors.Is(err, common.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, common.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, common.ErrResetForbidden):
		return http.StatusForbidden
	case errors.Is(err, common.ErrStorageUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.log.Error(r.Context(), msg, "path", r.URL.Path, "error", err)
	} else {
		h.log.Info(r.Context(), msg, "path", r.URL.Path, "status", status, "error", err)
	}
	writeError(w, status, msg)
}

// decodeBody reads an optional JSON body into v. An empty body is not an
// error.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"service":   serviceName,
		"timestamp": timex.ISOMillis(time.Now()),
	})
}

func (h *Handler) HandleVersion(w http.ResponseWriter, r *http.Request) {
	sha := h.deps.Build.GitSHA
	short := sha
	if len(short) > 7 {
		short = short[:7]
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"version":     services.EnclaveVersion,
		"gitSha":      sha,
		"gitShaShort": short,
		"buildTime":   h.deps.Build.BuildTime,
		"environment": h.deps.Build.Environment,
		"composeHash": h.deps.Compose.ComposeHash(r.Context()).Or(metadata.Unavailable),
	})
}

func (h *Handler) HandleIndex(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    serviceName,
		"version": services.EnclaveVersion,
		"endpoints": map[string]string{
			"/health":                  "GET - Health check",
			"/version":                 "GET - Version and build metadata",
			"/watch-history":           "GET - Fetch watch history from the upstream API",
			"/signup":                  "POST - Record a signup",
			"/signup-count":            "GET - Get signed signup count",
			"/submit-data":             "POST - Submit user data (returns safe derivative only)",
			"/delete-data/{receiptId}": "POST - Delete user data with a signed attestation",
			"/report":                  "GET - Generate the daily signed report",
			"/reports":                 "GET - List generated reports",
			"/reports/{reportId}":      "GET - Fetch a stored report",
		},
		"signupMode": h.deps.Signups.Mode(),
	})
}

func (h *Handler) HandleWatchHistory(w http.ResponseWriter, r *http.Request) {
	data, err := h.deps.Upstream.WatchHistory(r.Context())
	if err != nil {
		var apiErr *upstream.APIError
		if errors.As(err, &apiErr) {
			h.log.Warn(r.Context(), "upstream call failed", "status", apiErr.StatusCode, "error", err)
			writeJSON(w, apiErr.StatusCode, errorResponse{Error: "Failed to fetch watch history", Details: apiErr.Message})
			return
		}
		h.log.Error(r.Context(), "upstream call failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	h.metrics.SafeAPICall()
	if _, err := h.deps.Audit.Append(r.Context(), models.ActionSafeAPICall,
		map[string]any{"endpoint": upstream.WatchHistoryPath}, nil); err != nil {
		h.metrics.AuditFailure(models.ActionSafeAPICall)
		h.log.Warn(r.Context(), "safe_api_call audit entry dropped", "error", err)
	}

	writeJSON(w, http.StatusOK, map[string]any{"source": "watch-history-api", "data": data})
}

type signupRequest struct {
	UserID string `json:"userId"`
}

func (h *Handler) HandleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	n, err := h.deps.Signups.IncrementSignup(r.Context(), req.UserID)
	if err != nil {
		h.fail(w, r, "Failed to record signup", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Signup recorded", "count": n})
}

func (h *Handler) HandleSignupCount(w http.ResponseWriter, r *http.Request) {
	c, err := h.deps.Signups.GetSignedCount(r.Context())
	if err != nil {
		h.fail(w, r, "Failed to get signup count", err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) HandleSignupReset(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.Signups.Reset(r.Context()); err != nil {
		h.fail(w, r, "Failed to reset signups", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Signups reset"})
}

type submitDataRequest struct {
	UserID           string `json:"userId"`
	SensitivePayload string `json:"sensitivePayload"`
}

func (h *Handler) HandleSubmitData(w http.ResponseWriter, r *http.Request) {
	var req submitDataRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if req.UserID == "" || req.SensitivePayload == "" {
		writeError(w, http.StatusBadRequest, "Missing required fields: userId, sensitivePayload")
		return
	}

	res, err := h.deps.Receipts.ProcessUserData(r.Context(), req.UserID, req.SensitivePayload)
	if err != nil {
		h.fail(w, r, "Failed to process user data", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type deleteDataRequest struct {
	UserIDHash string `json:"userIdHash"`
}

func (h *Handler) HandleDeleteData(w http.ResponseWriter, r *http.Request) {
	var req deleteDataRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if req.UserIDHash == "" {
		writeError(w, http.StatusBadRequest, "Missing required field: userIdHash")
		return
	}

	res, err := h.deps.Deletion.PostDeletionAttestation(r.Context(), chi.URLParam(r, "receiptId"), req.UserIDHash)
	if err != nil {
		h.fail(w, r, "Failed to delete user data", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) HandleReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.deps.Reports.GenerateReport(r.Context())
	if err != nil {
		h.fail(w, r, "Failed to generate report", err)
		return
	}

	if h.deps.Tokens != nil {
		tok, err := h.deps.Tokens.Issue(report.ReportID, report.Signature, report.Summary.AuditLogDigest)
		if err != nil {
			h.log.Warn(r.Context(), "report token not issued", "report_id", report.ReportID, "error", err)
		} else {
			w.Header().Set(ReportTokenHeader, tok)
		}
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) HandleListReports(w http.ResponseWriter, r *http.Request) {
	list, err := h.deps.Reports.ListReports(r.Context())
	if err != nil {
		h.fail(w, r, "Failed to list reports", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reports": list})
}

func (h *Handler) HandleGetReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.deps.Reports.GetReport(r.Context(), chi.URLParam(r, "reportId"))
	if err != nil {
		h.fail(w, r, "Failed to get report", err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
