package dispatch

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/contractor-relay/internal/messaging"
	"github.com/wolfman30/contractor-relay/internal/messaging/chatclient"
	"github.com/wolfman30/contractor-relay/internal/notifications"
	"github.com/wolfman30/contractor-relay/internal/observability/metrics"
	"github.com/wolfman30/contractor-relay/pkg/logging"
)

var gatewayTracer = otel.Tracer("relay.internal.dispatch.gateway")

// Sender performs a single chat API call.
type Sender interface {
	Send(ctx context.Context, req chatclient.SendRequest) (*chatclient.SendResponse, error)
}

// Breaker is the subset of resilience.CircuitBreaker the gateway needs.
type Breaker interface {
	ShouldAttempt(ctx context.Context) bool
	RecordSuccess(ctx context.Context)
	RecordFailure(ctx context.Context)
}

// Limiter is the subset of resilience.RateLimiter the gateway needs.
type Limiter interface {
	Reserve(ctx context.Context) bool
}

// DeliveryOutcome classifies a delivery attempt.
type DeliveryOutcome string

const (
	DeliverySent         DeliveryOutcome = "sent"
	DeliveryInvalidPhone DeliveryOutcome = "invalid_phone"
	DeliveryCircuitOpen  DeliveryOutcome = "circuit_open"
	DeliveryDeferred     DeliveryOutcome = "deferred"
	DeliveryFailed       DeliveryOutcome = "failed"
)

// Delivery is the gateway's answer for one message.
type Delivery struct {
	Outcome DeliveryOutcome
	// Reason is set for failed outcomes.
	Reason notifications.Reason
	// Response holds the raw API body, or the error text for failures.
	Response string
	Err      error
}

// Gateway guards the chat API with phone validation, the circuit breaker and
// the rate limiter, in that order.
type Gateway struct {
	sender  Sender
	breaker Breaker
	limiter Limiter
	metrics *metrics.RelayMetrics
	logger  *logging.Logger
}

func NewGateway(sender Sender, breaker Breaker, limiter Limiter, m *metrics.RelayMetrics, logger *logging.Logger) *Gateway {
	if sender == nil {
		panic("dispatch: sender cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Gateway{sender: sender, breaker: breaker, limiter: limiter, metrics: m, logger: logger}
}

// Deliver validates and sends one message. It makes at most one API call.
func (g *Gateway) Deliver(ctx context.Context, phone, message string, priority int) Delivery {
	if err := messaging.ValidatePhone(phone); err != nil {
		return Delivery{Outcome: DeliveryInvalidPhone, Reason: notifications.ReasonInvalidPhone, Response: err.Error(), Err: err}
	}
	if g.breaker != nil && !g.breaker.ShouldAttempt(ctx) {
		return Delivery{Outcome: DeliveryCircuitOpen, Reason: notifications.ReasonCircuitOpen, Err: messaging.ErrCircuitOpen}
	}
	if priority < PriorityUrgent && g.limiter != nil && !g.limiter.Reserve(ctx) {
		return Delivery{Outcome: DeliveryDeferred}
	}

	ctx, span := gatewayTracer.Start(ctx, "dispatch.gateway.send")
	defer span.End()
	span.SetAttributes(
		attribute.String("relay.phone", messaging.MaskPhone(phone)),
		attribute.Int("relay.priority", priority),
	)

	start := time.Now()
	resp, err := g.sender.Send(ctx, chatclient.SendRequest{Phone: phone, Message: message})
	elapsed := time.Since(start).Seconds()

	if err != nil {
		span.RecordError(err)
		if g.breaker != nil {
			g.breaker.RecordFailure(ctx)
		}
		reason := notifications.ReasonNetworkError
		raw := err.Error()
		var apiErr *chatclient.APIError
		if errors.As(err, &apiErr) {
			reason = notifications.ReasonHTTPError
			if apiErr.Body != "" {
				raw = apiErr.Body
			}
		}
		g.metrics.ObserveSendLatency("error", elapsed)
		g.logger.Warn("chat api send failed", "phone", messaging.MaskPhone(phone), "reason", reason, "error", err)
		return Delivery{Outcome: DeliveryFailed, Reason: reason, Response: raw, Err: err}
	}

	if g.breaker != nil {
		g.breaker.RecordSuccess(ctx)
	}
	g.metrics.ObserveSendLatency("ok", elapsed)
	return Delivery{Outcome: DeliverySent, Response: resp.Body}
}
