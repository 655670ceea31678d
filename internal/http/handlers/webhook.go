package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/wolfman30/contractor-relay/internal/conversation"
	"github.com/wolfman30/contractor-relay/internal/messaging"
	"github.com/wolfman30/contractor-relay/internal/notifications"
	observemetrics "github.com/wolfman30/contractor-relay/internal/observability/metrics"
	"github.com/wolfman30/contractor-relay/pkg/logging"
)

const (
	signatureHeader = "X-Webhook-Signature"
	maxWebhookBody  = 1 << 20
	dedupKeyPrefix  = "webhook:dedup:"
)

type inboundPublisher interface {
	EnqueueInbound(ctx context.Context, job conversation.InboundJob) error
}

// dedupStore is satisfied by resilience.CounterStore.
type dedupStore interface {
	SetNX(ctx context.Context, key string, value int64, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
}

type webhookPayload struct {
	Data struct {
		From string `json:"from"`
		Text string `json:"text"`
	} `json:"data"`
	Timestamp *int64 `json:"timestamp"`
}

// WebhookConfig wires the inbound chat webhook.
type WebhookConfig struct {
	Verifier  *messaging.Verifier
	Store     notifications.Store
	Publisher inboundPublisher
	Dedup     dedupStore
	DedupTTL  time.Duration
	Metrics   *observemetrics.RelayMetrics
	Logger    *logging.Logger
}

// WebhookHandler verifies, records and enqueues inbound chat messages.
// Classification happens later on the inbound queue.
type WebhookHandler struct {
	verifier  *messaging.Verifier
	store     notifications.Store
	publisher inboundPublisher
	dedup     dedupStore
	dedupTTL  time.Duration
	metrics   *observemetrics.RelayMetrics
	logger    *logging.Logger
	now       func() time.Time
}

func NewWebhookHandler(cfg WebhookConfig) *WebhookHandler {
	if cfg.Verifier == nil {
		panic("handlers: webhook verifier cannot be nil")
	}
	if cfg.Store == nil {
		panic("handlers: notification store cannot be nil")
	}
	if cfg.Publisher == nil {
		panic("handlers: inbound publisher cannot be nil")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.DedupTTL <= 0 {
		cfg.DedupTTL = 10 * time.Minute
	}
	return &WebhookHandler{
		verifier:  cfg.Verifier,
		store:     cfg.Store,
		publisher: cfg.Publisher,
		dedup:     cfg.Dedup,
		dedupTTL:  cfg.DedupTTL,
		metrics:   cfg.Metrics,
		logger:    cfg.Logger,
		now:       time.Now,
	}
}

// Handle serves POST /webhook/whatsapp.
func (h *WebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() { h.metrics.ObserveWebhookLatency(time.Since(start).Seconds()) }()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.reject(w, "too_large", http.StatusBadRequest, "body too large")
			return
		}
		h.reject(w, "read_error", http.StatusBadRequest, "invalid body")
		return
	}
	if err := h.verifier.VerifySignature(body, r.Header.Get(signatureHeader)); err != nil {
		h.logger.Warn("webhook signature rejected", "error", err, "remote_ip", r.RemoteAddr)
		h.reject(w, "bad_signature", http.StatusForbidden, "invalid signature")
		return
	}

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		h.logger.Warn("webhook payload malformed", "error", fmt.Errorf("%w: %v", messaging.ErrInvalidPayload, err))
		h.reject(w, "malformed", http.StatusBadRequest, "invalid payload")
		return
	}
	if err := h.verifier.CheckReplay(payload.Timestamp); err != nil {
		h.logger.Warn("webhook replay rejected", "error", err)
		h.reject(w, "replay", http.StatusForbidden, "stale timestamp")
		return
	}

	phone := strings.TrimSpace(payload.Data.From)
	text := strings.TrimSpace(payload.Data.Text)
	if phone == "" || text == "" {
		h.ignore(w, "no_text_or_sender")
		return
	}

	ctx := r.Context()
	dedupKey := dedupKeyPrefix + notifications.ContentHash(string(body))
	if h.dedup != nil {
		first, err := h.dedup.SetNX(ctx, dedupKey, 1, h.dedupTTL)
		if err != nil {
			h.logger.Error("webhook dedup lookup failed", "error", err)
		} else if !first {
			h.ignore(w, "duplicate")
			return
		}
	}

	receivedAt := h.now().UTC()
	rec := &notifications.Record{
		Direction: notifications.DirectionInbound,
		Category:  notifications.CategoryInbound,
		Phone:     messaging.NormalizePhone(phone),
		Message:   text,
		Status:    notifications.StatusReceived,
		CreatedAt: receivedAt,
	}
	if err := h.store.Create(ctx, rec); err != nil {
		h.logger.Error("failed to persist inbound message", "error", err, "phone", messaging.MaskPhone(phone))
		h.release(ctx, dedupKey)
		h.reject(w, "persist_error", http.StatusInternalServerError, "processing error")
		return
	}

	job := conversation.InboundJob{
		NotificationID: rec.ID,
		Phone:          rec.Phone,
		Text:           text,
		ReceivedAt:     receivedAt,
	}
	if err := h.publisher.EnqueueInbound(ctx, job); err != nil {
		// The record is already stored; a 5xx lets the provider redeliver.
		h.logger.Error("failed to enqueue inbound message", "error", err, "notification_id", rec.ID)
		h.release(ctx, dedupKey)
		h.reject(w, "enqueue_error", http.StatusInternalServerError, "processing error")
		return
	}

	h.metrics.ObserveInbound("accepted")
	writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"processed_at": receivedAt.Format(time.RFC3339),
	})
}

func (h *WebhookHandler) reject(w http.ResponseWriter, outcome string, status int, msg string) {
	h.metrics.ObserveInbound(outcome)
	http.Error(w, msg, status)
}

func (h *WebhookHandler) ignore(w http.ResponseWriter, reason string) {
	h.metrics.ObserveInbound("ignored")
	writeJSON(w, http.StatusOK, map[string]string{"status": "ignored", "reason": reason})
}

// release forgets a delivery so a provider retry is not treated as duplicate.
func (h *WebhookHandler) release(ctx context.Context, key string) {
	if h.dedup == nil {
		return
	}
	if err := h.dedup.Del(context.WithoutCancel(ctx), key); err != nil {
		h.logger.Warn("failed to release webhook dedup key", "error", err)
	}
}
