package ingress

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"go-fulfillment-saga/order-processing/logging"
	"go-fulfillment-saga/order-processing/metrics"
	"go-fulfillment-saga/order-processing/payments"
	"go-fulfillment-saga/order-processing/types"
)

// Outcome of handling one provider event
type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeRejected  Outcome = "rejected"
	OutcomeError     Outcome = "error"
)

// EventApplier lets an order react to a provider event
type EventApplier interface {
	ApplyProviderEvent(ctx context.Context, evt payments.ProviderEvent) error
}

// ParserSource resolves the webhook parser of a provider
type ParserSource interface {
	Parser(name string) (payments.EventParser, bool)
}

// EventHandler parses, de-duplicates and applies provider events. The HTTP
// endpoint and the Kafka consumer share it.
type EventHandler struct {
	parsers ParserSource
	dedup   Deduper
	orders  EventApplier
	metrics *metrics.Registry
	logger  *zap.Logger
}

func NewEventHandler(parsers ParserSource, dedup Deduper, orders EventApplier, m *metrics.Registry, logger *zap.Logger) *EventHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if m == nil {
		m = metrics.NewRegistry()
	}
	return &EventHandler{parsers: parsers, dedup: dedup, orders: orders, metrics: m, logger: logger}
}

// Handle applies one raw event body from provider. Permanent failures keep
// the event claimed; transient ones release it for redelivery.
func (h *EventHandler) Handle(ctx context.Context, provider string, body []byte) (Outcome, error) {
	outcome, err := h.handle(ctx, provider, body)
	h.metrics.WebhookEvents.WithLabelValues(provider, string(outcome)).Inc()
	return outcome, err
}

func (h *EventHandler) handle(ctx context.Context, provider string, body []byte) (Outcome, error) {
	logger := logging.FromContext(ctx, h.logger).With(zap.String("provider", provider))

	parser, ok := h.parsers.Parser(provider)
	if !ok {
		return OutcomeRejected, &types.ContextValidationError{Msg: fmt.Sprintf("unknown payment provider %q", provider)}
	}
	evt, err := parser.ParseEvent(body)
	if err != nil {
		logger.Warn("provider event rejected", zap.Error(err))
		return OutcomeRejected, err
	}

	key := provider + ":" + evt.EventID
	claimed, err := h.dedup.Claim(ctx, key)
	if err != nil {
		return OutcomeError, fmt.Errorf("claim event %s: %w", evt.EventID, err)
	}
	if !claimed {
		logger.Info("duplicate provider event", zap.String("event_id", evt.EventID))
		return OutcomeDuplicate, nil
	}

	if err := h.orders.ApplyProviderEvent(ctx, evt); err != nil {
		if _, permanent := types.IsPermanent(err); permanent {
			logger.Warn("provider event dropped", zap.String("event_id", evt.EventID), zap.Error(err))
			return OutcomeRejected, err
		}
		if relErr := h.dedup.Release(ctx, key); relErr != nil {
			logger.Error("release event claim", zap.String("event_id", evt.EventID), zap.Error(relErr))
		}
		return OutcomeError, err
	}
	logger.Info("provider event applied",
		zap.String("event_id", evt.EventID),
		zap.String("type", evt.Type),
		zap.String("transaction_id", evt.TransactionID))
	return OutcomeApplied, nil
}
