package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/poyrazK/accessgate/internal/core/domain"
	"github.com/poyrazK/accessgate/internal/core/engine"
	"github.com/poyrazK/accessgate/internal/core/ports"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// APIHandler serves the access management API used by the admin console and
// the billing integration.
type APIHandler struct {
	svc    ports.AccessService
	secret string
	logger *slog.Logger
	now    func() time.Time

	requests *rateLimiter // self-service access requests per principal
}

// NewAPIHandler creates and returns a new APIHandler instance. secret is the
// HS256 key bearer tokens are verified with.
func NewAPIHandler(svc ports.AccessService, secret string, logger *slog.Logger) *APIHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &APIHandler{
		svc:      svc,
		secret:   secret,
		logger:   logger,
		now:      time.Now,
		requests: newRateLimiter(1.0/60, 5),
	}
}

// RegisterRoutes registers the API routes with the provided ServeMux.
func (h *APIHandler) RegisterRoutes(mux *http.ServeMux) {
	// Public Routes
	mux.HandleFunc("GET /health", h.HealthCheck)
	mux.HandleFunc("GET /metrics", h.Metrics)

	// Middleware
	auth := AuthMiddleware(h.secret)
	admin := RequireRole(domain.RoleAdmin)
	viewer := RequireRole(domain.RoleAdmin, domain.RoleReader)
	billing := RequireRole(domain.RoleBilling)

	mux.Handle("GET /access", auth(viewer(http.HandlerFunc(h.ListAccess))))
	mux.Handle("GET /access/stats", auth(viewer(http.HandlerFunc(h.Stats))))
	mux.Handle("GET /access/stream", auth(viewer(http.HandlerFunc(h.Stream))))
	mux.Handle("GET /access/{subject}", auth(viewer(http.HandlerFunc(h.GetAccess))))
	mux.Handle("GET /access/{subject}/audit", auth(admin(http.HandlerFunc(h.ListAuditLogs))))
	mux.Handle("POST /access/{subject}/approve", auth(admin(http.HandlerFunc(h.Approve))))
	mux.Handle("POST /access/{subject}/deny", auth(admin(http.HandlerFunc(h.Deny))))
	mux.Handle("POST /access/{subject}/revoke", auth(admin(http.HandlerFunc(h.Revoke))))
	mux.Handle("DELETE /access/{subject}", auth(admin(http.HandlerFunc(h.Remove))))
	mux.Handle("POST /access", auth(RateLimit(h.requests)(http.HandlerFunc(h.RequestAccess))))
	mux.Handle("POST /billing/grants", auth(billing(http.HandlerFunc(h.GrantPaid))))
}

// Metrics handles Prometheus metrics scraping requests.
func (h *APIHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// HealthCheck handles health check requests.
func (h *APIHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status := "UP"
	details := make(map[string]string)
	checks := h.svc.HealthCheck(r.Context())

	for name, checkErr := range checks {
		if checkErr != nil {
			status = "DEGRADED"
			details[name] = checkErr.Error()
		} else {
			details[name] = "OK"
		}
	}

	resp := map[string]interface{}{
		"status":  status,
		"details": details,
	}

	code := http.StatusOK
	if status == "DEGRADED" {
		code = http.StatusServiceUnavailable
	}
	h.writeJSON(w, code, resp)
}

// recordView is a record as the console renders it, with its computed display status.
type recordView struct {
	domain.AccessRecord
	DisplayStatus domain.DisplayStatus `json:"displayStatus"`
}

func (h *APIHandler) views(records []domain.AccessRecord) []recordView {
	now := h.now()
	out := make([]recordView, 0, len(records))
	for _, rec := range records {
		out = append(out, recordView{AccessRecord: rec, DisplayStatus: engine.Classify(rec, now)})
	}
	return out
}

func (h *APIHandler) ListAccess(w http.ResponseWriter, r *http.Request) {
	category, err := domain.ParseCategory(r.URL.Query().Get("category"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	records, err := h.svc.List(r.Context(), category)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, h.views(records))
}

func (h *APIHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.Stats(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, stats)
}

func (h *APIHandler) GetAccess(w http.ResponseWriter, r *http.Request) {
	rec, err := h.svc.Get(r.Context(), r.PathValue("subject"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, recordView{AccessRecord: *rec, DisplayStatus: engine.Classify(*rec, h.now())})
}

// ListAuditLogs returns the change history of one subject.
func (h *APIHandler) ListAuditLogs(w http.ResponseWriter, r *http.Request) {
	logs, err := h.svc.ListAuditLogs(r.Context(), r.PathValue("subject"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	if logs == nil {
		logs = []domain.AuditLog{}
	}
	h.writeJSON(w, http.StatusOK, logs)
}

func (h *APIHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.adminAction(w, r, h.svc.Approve)
}

func (h *APIHandler) Deny(w http.ResponseWriter, r *http.Request) {
	h.adminAction(w, r, h.svc.Deny)
}

func (h *APIHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	h.adminAction(w, r, h.svc.Revoke)
}

func (h *APIHandler) Remove(w http.ResponseWriter, r *http.Request) {
	h.adminAction(w, r, h.svc.Remove)
}

func (h *APIHandler) adminAction(w http.ResponseWriter, r *http.Request, action func(context.Context, string, string) error) {
	adminID, ok := r.Context().Value(CtxPrincipal).(string)
	if !ok || adminID == "" {
		http.Error(w, "Unauthorized: missing principal", http.StatusUnauthorized)
		return
	}

	if err := action(r.Context(), r.PathValue("subject"), adminID); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type accessRequest struct {
	SubjectID string `json:"subjectId"`
	Notes     string `json:"notes"`
}

// RequestAccess files a manual access request. Callers may only request
// access for themselves; admins may file on behalf of anyone.
func (h *APIHandler) RequestAccess(w http.ResponseWriter, r *http.Request) {
	var req accessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	principal, _ := r.Context().Value(CtxPrincipal).(string)
	role, _ := r.Context().Value(CtxRole).(domain.Role)
	if role != domain.RoleAdmin && domain.NormalizeSubjectID(req.SubjectID) != domain.NormalizeSubjectID(principal) {
		http.Error(w, "Forbidden: access can only be requested for yourself", http.StatusForbidden)
		return
	}

	rec, err := h.svc.RequestAccess(r.Context(), req.SubjectID, req.Notes)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, rec)
}

type grantRequest struct {
	SubjectID   string     `json:"subjectId"`
	PurchasedAt *time.Time `json:"purchasedAt,omitempty"`
	Days        int        `json:"days,omitempty"`
}

// GrantPaid records a completed purchase from the billing integration.
func (h *APIHandler) GrantPaid(w http.ResponseWriter, r *http.Request) {
	var req grantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Days < 0 || req.Days > domain.MaxGrantDays {
		http.Error(w, fmt.Sprintf("days must be between 0 and %d", domain.MaxGrantDays), http.StatusBadRequest)
		return
	}

	var purchasedAt time.Time
	if req.PurchasedAt != nil {
		purchasedAt = *req.PurchasedAt
	}
	rec, err := h.svc.GrantPaid(r.Context(), req.SubjectID, purchasedAt, time.Duration(req.Days)*24*time.Hour)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, rec)
}

// Stream pushes a "snapshot" server-sent event with the full record list on
// connect and after every change, until the client goes away.
func (h *APIHandler) Stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	// Only the latest snapshot matters; a slow client skips intermediate ones.
	updates := make(chan []domain.AccessRecord, 1)
	unsubscribe, err := h.svc.Subscribe(r.Context(), func(records []domain.AccessRecord) {
		select {
		case <-updates:
		default:
		}
		select {
		case updates <- records:
		default:
		}
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case records := <-updates:
			data, err := json.Marshal(h.views(records))
			if err != nil {
				h.logger.Error("failed to encode snapshot", "error", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "event: snapshot\ndata: %s\n\n", data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrConcurrentModification),
		errors.Is(err, domain.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, domain.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrInvalidSubject), errors.Is(err, domain.ErrMalformedRecord):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (h *APIHandler) writeError(w http.ResponseWriter, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		h.logger.Error("access request failed", "error", err)
	}
	h.writeJSON(w, code, map[string]string{"error": err.Error()})
}

func (h *APIHandler) writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn("failed to encode response", "error", err)
	}
}
