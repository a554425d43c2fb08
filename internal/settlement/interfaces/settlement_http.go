package interfaces

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"marketplace-core/internal/audit"
	"marketplace-core/internal/auth"
	"marketplace-core/internal/observability/metrics"
	"marketplace-core/internal/settlement/application"
	settlement "marketplace-core/internal/settlement/domain"
)

// SettlementHandler handles settlement routes under /api/v1/settlements.
type SettlementHandler struct {
	engine      *application.Engine
	auditLogger audit.Logger
}

// NewSettlementHandler constructs a handler.
func NewSettlementHandler(engine *application.Engine, auditLogger audit.Logger) (*SettlementHandler, error) {
	if engine == nil {
		return nil, errors.New("settlement handler: nil engine")
	}
	return &SettlementHandler{engine: engine, auditLogger: auditLogger}, nil
}

// ServeHTTP routes settlement requests.
func (h *SettlementHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	if path == "/api/v1/settlements/run" && r.Method == http.MethodPost {
		h.handleRun(w, r)
		return
	}
	if path == "/api/v1/settlements" && r.Method == http.MethodGet {
		h.handleList(w, r)
		return
	}
	if strings.HasPrefix(path, "/api/v1/settlements/") {
		rest := strings.TrimPrefix(path, "/api/v1/settlements/")
		h.handleByID(w, r, rest)
		return
	}
	w.WriteHeader(http.StatusNotFound)
}

func (h *SettlementHandler) handleRun(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PeriodStart   string `json:"period_start"`
		PeriodEnd     string `json:"period_end"`
		RecipientType string `json:"recipient_type"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	periodStart, err := time.Parse(time.RFC3339, req.PeriodStart)
	if err != nil {
		http.Error(w, "period_start must be RFC3339", http.StatusBadRequest)
		return
	}
	periodEnd, err := time.Parse(time.RFC3339, req.PeriodEnd)
	if err != nil {
		http.Error(w, "period_end must be RFC3339", http.StatusBadRequest)
		return
	}

	result, err := h.engine.Run(r.Context(), periodStart.UTC(), periodEnd.UTC(), settlement.RecipientType(req.RecipientType))
	if err != nil {
		respondEngineError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(runResponse(result))
	h.logAudit(r, "", "settlement.run", map[string]any{
		"period_start":   req.PeriodStart,
		"period_end":     req.PeriodEnd,
		"recipient_type": req.RecipientType,
		"created":        len(result.Created),
		"skipped":        len(result.Skipped),
		"failed":         len(result.Failed),
		"deferred":       result.Deferred,
	})
}

func (h *SettlementHandler) handleList(w http.ResponseWriter, r *http.Request) {
	periodStart, err := parseTimeQuery(r, "period_start")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	periodEnd, err := parseTimeQuery(r, "period_end")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	recipientType := settlement.RecipientType(r.URL.Query().Get("recipient_type"))

	list, err := h.engine.List(r.Context(), periodStart, periodEnd, recipientType)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	resp := make([]map[string]any, 0, len(list))
	for _, s := range list {
		resp = append(resp, headerResponse(s))
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (h *SettlementHandler) handleByID(w http.ResponseWriter, r *http.Request, rest string) {
	if rest == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	parts := strings.Split(rest, "/")
	id := parts[0]
	if len(parts) == 1 && r.Method == http.MethodGet {
		h.handleGet(w, r, id)
		return
	}
	if len(parts) == 2 {
		switch parts[1] {
		case "confirm":
			if r.Method == http.MethodPost {
				h.handleConfirm(w, r, id)
				return
			}
		case "mark-paid":
			if r.Method == http.MethodPost {
				h.handleMarkPaid(w, r, id)
				return
			}
		case "void":
			if r.Method == http.MethodPost {
				h.handleVoid(w, r, id)
				return
			}
		case "export.pdf":
			if r.Method == http.MethodGet {
				h.handleExport(w, r, id, "pdf")
				return
			}
		case "export.xlsx":
			if r.Method == http.MethodGet {
				h.handleExport(w, r, id, "xlsx")
				return
			}
		}
	}
	w.WriteHeader(http.StatusNotFound)
}

func (h *SettlementHandler) handleGet(w http.ResponseWriter, r *http.Request, id string) {
	s, err := h.engine.Get(r.Context(), id)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	items, err := h.engine.Items(r.Context(), id)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	resp := map[string]any{
		"settlement": headerResponse(s),
		"items":      itemsResponse(items),
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (h *SettlementHandler) handleConfirm(w http.ResponseWriter, r *http.Request, id string) {
	s, err := h.engine.Confirm(r.Context(), id)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(headerResponse(s))
	h.logAudit(r, s.ID, "settlement.confirm", map[string]any{"status": string(s.Status)})
}

func (h *SettlementHandler) handleMarkPaid(w http.ResponseWriter, r *http.Request, id string) {
	s, err := h.engine.MarkPaid(r.Context(), id)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(headerResponse(s))
	h.logAudit(r, s.ID, "settlement.mark-paid", map[string]any{"status": string(s.Status)})
}

func (h *SettlementHandler) handleVoid(w http.ResponseWriter, r *http.Request, id string) {
	var req struct {
		Reason string `json:"reason"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)
	s, err := h.engine.Void(r.Context(), id, req.Reason)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(headerResponse(s))
	h.logAudit(r, s.ID, "settlement.void", map[string]any{"reason": req.Reason})
}

func (h *SettlementHandler) handleExport(w http.ResponseWriter, r *http.Request, id, format string) {
	start := time.Now()
	result := metrics.ResultSuccess
	defer func() {
		metrics.ObserveSettlementExport(format, result, time.Since(start))
	}()

	s, err := h.engine.Get(r.Context(), id)
	if err != nil {
		result = metrics.ResultError
		respondEngineError(w, err)
		return
	}
	items, err := h.engine.Items(r.Context(), id)
	if err != nil {
		result = metrics.ResultError
		respondEngineError(w, err)
		return
	}

	var data []byte
	var contentType string
	switch format {
	case "pdf":
		data, err = BuildSettlementPDF(s, items)
		contentType = "application/pdf"
	default:
		data, err = BuildSettlementXLSX(s, items)
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	if err != nil {
		result = metrics.ResultError
		http.Error(w, "export error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
	h.logAudit(r, s.ID, "settlement.export", map[string]any{"format": format})
}

func (h *SettlementHandler) logAudit(r *http.Request, settlementID, action string, meta map[string]any) {
	if h.auditLogger == nil {
		return
	}
	tenantID := auth.TenantIDFromContext(r.Context())
	if tenantID == "" {
		return
	}
	payload, _ := json.Marshal(meta)
	_ = h.auditLogger.Log(r.Context(), audit.Entry{
		TenantID:     tenantID,
		Actor:        auth.SubjectFromContext(r.Context()),
		Role:         string(auth.RoleFromContext(r.Context())),
		Action:       action,
		ResourceType: "settlement",
		ResourceID:   settlementID,
		Metadata:     payload,
		IP:           audit.ClientIP(r),
		UserAgent:    r.UserAgent(),
	})
}

func runResponse(result application.RunResult) map[string]any {
	created := make([]map[string]any, 0, len(result.Created))
	for _, s := range result.Created {
		created = append(created, headerResponse(s))
	}
	return map[string]any{
		"created":  created,
		"skipped":  result.Skipped,
		"failed":   result.Failed,
		"deferred": result.Deferred,
	}
}

func headerResponse(s *settlement.Settlement) map[string]any {
	return map[string]any{
		"id":               s.ID,
		"recipient_id":     s.RecipientID,
		"recipient_type":   string(s.RecipientType),
		"period_start":     s.PeriodStart.Format(time.RFC3339),
		"period_end":       s.PeriodEnd.Format(time.RFC3339),
		"total_gross":      s.TotalGross,
		"total_commission": s.TotalCommission,
		"total_net":        s.TotalNet,
		"item_count":       s.ItemCount,
		"currency":         s.Currency,
		"status":           string(s.Status),
		"void_reason":      s.VoidReason,
	}
}

func itemsResponse(items []settlement.Item) []map[string]any {
	resp := make([]map[string]any, 0, len(items))
	for _, item := range items {
		resp = append(resp, map[string]any{
			"order_item_id":     item.OrderItemID,
			"kind":              string(item.Kind),
			"gross_amount":      item.GrossAmount,
			"commission_amount": item.CommissionAmount,
			"net_amount":        item.NetAmount,
			"order_paid_at":     item.OrderPaidAt.Format(time.RFC3339),
		})
	}
	return resp
}

func respondEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, settlement.ErrSettlementNotFound):
		http.Error(w, "settlement not found", http.StatusNotFound)
	case errors.Is(err, settlement.ErrInvalidStatusTransition):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, settlement.ErrInvalidPeriod),
		errors.Is(err, settlement.ErrInvalidRecipientType):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func parseTimeQuery(r *http.Request, key string) (time.Time, error) {
	value := r.URL.Query().Get(key)
	if value == "" {
		return time.Time{}, errors.New(key + " is required")
	}
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, errors.New(key + " must be RFC3339")
	}
	return parsed.UTC(), nil
}
