package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wolfman30/contractor-relay/internal/automation"
	"github.com/wolfman30/contractor-relay/internal/directory"
	"github.com/wolfman30/contractor-relay/internal/dispatch"
	"github.com/wolfman30/contractor-relay/internal/messaging"
	"github.com/wolfman30/contractor-relay/internal/notifications"
	"github.com/wolfman30/contractor-relay/internal/resilience"
	"github.com/wolfman30/contractor-relay/internal/ticketing"
	"github.com/wolfman30/contractor-relay/pkg/logging"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
	dashboardWindow     = 24 * time.Hour
	defaultMetricDays   = 7
	maxMetricDays       = 90
)

type ruleInvalidator interface {
	Invalidate()
}

type breakerSnapshotter interface {
	Snapshot(ctx context.Context) (resilience.BreakerSnapshot, error)
}

type limiterStatus interface {
	Check(ctx context.Context) (bool, int)
	Limit() int
	ResetIn(ctx context.Context) time.Duration
}

type testSender interface {
	SendNow(ctx context.Context, req dispatch.NotifyRequest) (uuid.UUID, dispatch.Result)
}

type ticketTrigger interface {
	NotifyCreation(ctx context.Context, ticketID int64) (dispatch.Outcome, error)
	NotifyNudge(ctx context.Context, ticketID int64) (dispatch.Outcome, error)
}

// AdminRelayConfig wires the admin endpoints.
type AdminRelayConfig struct {
	Rules         automation.Store
	RuleCache     ruleInvalidator
	Notifications notifications.Store
	Breaker       breakerSnapshotter
	Limiter       limiterStatus
	Sender        testSender
	Tickets       ticketTrigger
	Logger        *logging.Logger
}

// AdminRelayHandler serves the JSON admin API: automation rules, the delivery
// dashboard, message history, manual test sends and ticket triggers.
type AdminRelayHandler struct {
	rules   automation.Store
	cache   ruleInvalidator
	notes   notifications.Store
	breaker breakerSnapshotter
	limiter limiterStatus
	sender  testSender
	tickets ticketTrigger
	logger  *logging.Logger
	now     func() time.Time
}

func NewAdminRelayHandler(cfg AdminRelayConfig) *AdminRelayHandler {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &AdminRelayHandler{
		rules:   cfg.Rules,
		cache:   cfg.RuleCache,
		notes:   cfg.Notifications,
		breaker: cfg.Breaker,
		limiter: cfg.Limiter,
		sender:  cfg.Sender,
		tickets: cfg.Tickets,
		logger:  cfg.Logger,
		now:     time.Now,
	}
}

// RegisterRoutes mounts the admin endpoints on r. Authentication is the
// caller's concern.
func (h *AdminRelayHandler) RegisterRoutes(r chi.Router) {
	r.Route("/whatsapp", func(r chi.Router) {
		r.Get("/rules", h.ListRules)
		r.Post("/rules", h.CreateRule)
		r.Get("/dashboard", h.Dashboard)
		r.Get("/metrics/daily", h.DailyMetrics)
		r.Get("/history", h.History)
		r.Post("/test", h.TestSend)
	})
	r.Route("/tickets/{ticketID}", func(r chi.Router) {
		r.Post("/notify", h.NotifyTicket)
		r.Post("/nudge", h.NudgeTicket)
	})
}

// ListRules returns every automation rule, active or not.
func (h *AdminRelayHandler) ListRules(w http.ResponseWriter, r *http.Request) {
	if h.rules == nil {
		http.Error(w, "rules not configured", http.StatusServiceUnavailable)
		return
	}
	rules, err := h.rules.ListAll(r.Context())
	if err != nil {
		h.logger.Error("failed to list automation rules", "error", err)
		http.Error(w, "failed to list rules", http.StatusInternalServerError)
		return
	}
	if rules == nil {
		rules = []automation.Rule{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"rules": rules})
}

type createRuleRequest struct {
	Keyword      string `json:"keyword"`
	MatchType    string `json:"match_type"`
	Action       string `json:"action"`
	ReplyText    string `json:"reply_text"`
	TargetRole   string `json:"target_role"`
	FunctionName string `json:"function_name"`
	Priority     int    `json:"priority"`
	Active       *bool  `json:"active"`
}

// CreateRule validates and stores a rule, then drops the cached rule set so
// routers pick it up on their next message.
func (h *AdminRelayHandler) CreateRule(w http.ResponseWriter, r *http.Request) {
	if h.rules == nil {
		http.Error(w, "rules not configured", http.StatusServiceUnavailable)
		return
	}
	var req createRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	rule := automation.Rule{
		Keyword:      strings.TrimSpace(req.Keyword),
		MatchType:    automation.MatchType(strings.ToLower(strings.TrimSpace(req.MatchType))),
		Action:       automation.Action(strings.ToLower(strings.TrimSpace(req.Action))),
		ReplyText:    req.ReplyText,
		TargetRole:   strings.TrimSpace(req.TargetRole),
		FunctionName: strings.TrimSpace(req.FunctionName),
		Priority:     req.Priority,
		Active:       req.Active == nil || *req.Active,
	}
	if err := rule.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := h.rules.Create(r.Context(), &rule); err != nil {
		h.logger.Error("failed to create automation rule", "error", err, "keyword", rule.Keyword)
		http.Error(w, "failed to create rule", http.StatusInternalServerError)
		return
	}
	if h.cache != nil {
		h.cache.Invalidate()
	}
	h.logger.Info("automation rule created", "rule_id", rule.ID, "match_type", rule.MatchType, "action", rule.Action)
	writeJSON(w, http.StatusCreated, rule)
}

// DashboardResponse summarises the last 24h of outbound traffic and the
// current state of the delivery guards.
type DashboardResponse struct {
	Period       string                      `json:"period"`
	Total        int                         `json:"total"`
	Sent         int                         `json:"sent"`
	Failed       int                         `json:"failed"`
	Pending      int                         `json:"pending"`
	DeliveryRate float64                     `json:"delivery_rate"`
	Breaker      *resilience.BreakerSnapshot `json:"circuit_breaker,omitempty"`
	RateLimit    *RateLimitStatus            `json:"rate_limit,omitempty"`
}

type RateLimitStatus struct {
	Limit        int  `json:"limit"`
	Remaining    int  `json:"remaining"`
	ResetSeconds int  `json:"reset_seconds"`
	Allowed      bool `json:"allowed"`
}

func (h *AdminRelayHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	stats, err := h.notes.Stats(ctx, h.now().Add(-dashboardWindow))
	if err != nil {
		h.logger.Error("failed to load notification stats", "error", err)
		http.Error(w, "failed to load stats", http.StatusInternalServerError)
		return
	}
	resp := DashboardResponse{
		Period:       "24h",
		Total:        stats.Total,
		Sent:         stats.Sent,
		Failed:       stats.Failed,
		Pending:      stats.Pending,
		DeliveryRate: stats.DeliveryRate(),
	}
	if h.breaker != nil {
		if snap, err := h.breaker.Snapshot(ctx); err != nil {
			h.logger.Warn("breaker snapshot unavailable", "error", err)
		} else {
			resp.Breaker = &snap
		}
	}
	if h.limiter != nil {
		allowed, remaining := h.limiter.Check(ctx)
		resp.RateLimit = &RateLimitStatus{
			Limit:        h.limiter.Limit(),
			Remaining:    remaining,
			ResetSeconds: int(h.limiter.ResetIn(ctx).Seconds()),
			Allowed:      allowed,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// DailyPoint is one bar of the delivery chart.
type DailyPoint struct {
	Date   string `json:"date"`
	Total  int    `json:"total"`
	Sent   int    `json:"sent"`
	Failed int    `json:"failed"`
}

// DailyMetrics returns outbound volume per UTC day for the last ?days=N days
// (default 7), today included. Days without traffic are reported as zeros.
func (h *AdminRelayHandler) DailyMetrics(w http.ResponseWriter, r *http.Request) {
	days := defaultMetricDays
	if raw := r.URL.Query().Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, "invalid days", http.StatusBadRequest)
			return
		}
		days = min(n, maxMetricDays)
	}
	since := notifications.UTCDay(h.now()).AddDate(0, 0, -(days - 1))
	counts, err := h.notes.DailyCounts(r.Context(), since)
	if err != nil {
		h.logger.Error("failed to load daily notification counts", "error", err)
		http.Error(w, "failed to load metrics", http.StatusInternalServerError)
		return
	}
	byDay := make(map[time.Time]notifications.DailyCount, len(counts))
	for _, c := range counts {
		byDay[c.Day] = c
	}
	points := make([]DailyPoint, 0, days)
	for i := 0; i < days; i++ {
		day := since.AddDate(0, 0, i)
		c := byDay[day]
		points = append(points, DailyPoint{Date: day.Format("2006-01-02"), Total: c.Total, Sent: c.Sent, Failed: c.Failed})
	}
	writeJSON(w, http.StatusOK, map[string]any{"days": points})
}

// History lists the most recent records with recipients masked. ?limit=N
// caps the page.
func (h *AdminRelayHandler) History(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = min(n, maxHistoryLimit)
	}
	records, err := h.notes.ListRecent(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to list notification history", "error", err)
		http.Error(w, "failed to load history", http.StatusInternalServerError)
		return
	}
	for i := range records {
		records[i].Phone = messaging.MaskPhone(records[i].Phone)
		records[i].RawResponse = ""
	}
	if records == nil {
		records = []notifications.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records, "count": len(records)})
}

type testSendRequest struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

// TestSend delivers one urgent message synchronously and reports the result.
func (h *AdminRelayHandler) TestSend(w http.ResponseWriter, r *http.Request) {
	if h.sender == nil {
		http.Error(w, "sender not configured", http.StatusServiceUnavailable)
		return
	}
	var req testSendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	phone := strings.TrimSpace(req.Phone)
	if err := messaging.ValidatePhone(phone); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	message := strings.TrimSpace(req.Message)
	if message == "" {
		message = "🔧 Mensagem de teste"
	}
	id, res := h.sender.SendNow(r.Context(), dispatch.NotifyRequest{
		Phone:    phone,
		Message:  message,
		Category: notifications.CategoryManualTest,
		Priority: dispatch.PriorityUrgent,
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"notification_id": id,
		"success":         res.Success,
		"status":          res.Status,
		"reason":          res.Reason,
		"detail":          res.Detail,
		"retry_scheduled": res.Retry,
	})
}

// NotifyTicket sends the new-ticket message to the ticket's contractor.
func (h *AdminRelayHandler) NotifyTicket(w http.ResponseWriter, r *http.Request) {
	h.triggerTicket(w, r, "creation")
}

// NudgeTicket sends the overdue reminder.
func (h *AdminRelayHandler) NudgeTicket(w http.ResponseWriter, r *http.Request) {
	h.triggerTicket(w, r, "nudge")
}

func (h *AdminRelayHandler) triggerTicket(w http.ResponseWriter, r *http.Request, kind string) {
	if h.tickets == nil {
		http.Error(w, "tickets not configured", http.StatusServiceUnavailable)
		return
	}
	ticketID, err := strconv.ParseInt(chi.URLParam(r, "ticketID"), 10, 64)
	if err != nil || ticketID <= 0 {
		http.Error(w, "invalid ticket id", http.StatusBadRequest)
		return
	}
	var out dispatch.Outcome
	if kind == "nudge" {
		out, err = h.tickets.NotifyNudge(r.Context(), ticketID)
	} else {
		out, err = h.tickets.NotifyCreation(r.Context(), ticketID)
	}
	switch {
	case errors.Is(err, directory.ErrNotFound):
		http.Error(w, "ticket not found", http.StatusNotFound)
		return
	case errors.Is(err, ticketing.ErrNoContractor), errors.Is(err, ticketing.ErrTicketClosed):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		return
	case err != nil:
		h.logger.Error("ticket notification failed", "error", err, "ticket_id", ticketID, "kind", kind)
		http.Error(w, "notification failed", http.StatusInternalServerError)
		return
	}
	status := http.StatusAccepted
	if !out.Queued {
		status = http.StatusOK
	}
	writeJSON(w, status, map[string]any{
		"ticket_id":       ticketID,
		"notification_id": out.NotificationID,
		"queued":          out.Queued,
		"detail":          out.Detail,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
