package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"go-fulfillment-saga/order-processing/logging"
	"go-fulfillment-saga/order-processing/metrics"
	"go-fulfillment-saga/order-processing/storage"
	"go-fulfillment-saga/order-processing/types"
)

// Processor runs payment actions: validate, persist, route, call the
// provider, persist the outcome
type Processor struct {
	txns        storage.TransactionStore
	instruments storage.InstrumentStore
	registry    *Registry
	metrics     *metrics.Registry
	logger      *zap.Logger
}

func NewProcessor(
	txns storage.TransactionStore,
	instruments storage.InstrumentStore,
	registry *Registry,
	m *metrics.Registry,
	logger *zap.Logger,
) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{txns: txns, instruments: instruments, registry: registry, metrics: m, logger: logger}
}

// Process runs a new transaction. If the id was already used the stored
// transaction wins: a settled one is returned unchanged, an unsettled one is
// resumed. Reusing an id for a different amount is an error.
func (p *Processor) Process(ctx context.Context, txn types.Transaction) (types.Transaction, error) {
	s, err := strategyFor(txn)
	if err != nil {
		return txn, err
	}
	parent, err := p.loadParent(ctx, txn)
	if err != nil {
		return txn, err
	}
	if err := s.validate(txn, parent); err != nil {
		return txn, err
	}
	adapter, instrument, err := p.route(ctx, txn, parent)
	if err != nil {
		return txn, err
	}

	txn.Status = types.TxnStatusCreated
	txn.Provider = adapter.Name()
	if err := p.txns.Create(ctx, &txn); err != nil {
		if !errors.Is(err, storage.ErrAlreadyExists) {
			return txn, err
		}
		existing, getErr := p.txns.GetByID(ctx, txn.TransactionID)
		if getErr != nil {
			return txn, getErr
		}
		logging.FromContext(ctx, p.logger).Info("transaction already exists",
			zap.String("transaction_id", existing.TransactionID),
			zap.String("status", string(existing.Status)))
		if existing.Amount != txn.Amount {
			return *existing, &types.UnexpectedStatusError{
				Entity: "transaction",
				ID:     existing.TransactionID,
				Status: fmt.Sprintf("stored for %d %s, asked for %d %s",
					existing.Amount.Amount, existing.Amount.Currency, txn.Amount.Amount, txn.Amount.Currency),
			}
		}
		if existing.IsSettled() {
			return *existing, nil
		}
		return p.resume(ctx, *existing)
	}

	return p.call(ctx, s, adapter, txn, instrument, parent)
}

// Reprocess reloads a stored transaction and resumes its provider call.
// Settled transactions are returned without calling the provider.
func (p *Processor) Reprocess(ctx context.Context, transactionID string) (types.Transaction, error) {
	txn, err := p.txns.GetByID(ctx, transactionID)
	if err != nil {
		return types.Transaction{}, err
	}
	if txn.IsSettled() {
		return *txn, nil
	}
	return p.resume(ctx, *txn)
}

func (p *Processor) resume(ctx context.Context, txn types.Transaction) (types.Transaction, error) {
	s, err := strategyFor(txn)
	if err != nil {
		return txn, err
	}
	parent, err := p.loadParent(ctx, txn)
	if err != nil {
		return txn, err
	}
	if err := s.validate(txn, parent); err != nil {
		return txn, err
	}
	adapter, instrument, err := p.route(ctx, txn, parent)
	if err != nil {
		return txn, err
	}
	return p.call(ctx, s, adapter, txn, instrument, parent)
}

func (p *Processor) call(
	ctx context.Context,
	s strategy,
	adapter Adapter,
	txn types.Transaction,
	instrument *types.Instrument,
	parent *types.Transaction,
) (types.Transaction, error) {
	logger := logging.FromContext(ctx, p.logger).With(
		zap.String("transaction_id", txn.TransactionID),
		zap.String("order_id", txn.OrderID),
		zap.String("action", string(txn.Action)),
		zap.String("provider", adapter.Name()),
	)
	logger.Info("calling payment provider", zap.Int64("amount", txn.Amount.Amount))

	start := time.Now()
	result := s.callProvider(ctx, adapter, txn, instrument, parent)
	elapsed := time.Since(start)

	result.Provider = adapter.Name()
	if !result.Status.Valid() {
		result.Status = types.TxnStatusProcessingFailed
	}
	if p.metrics != nil {
		p.metrics.ProviderLatency.WithLabelValues(string(txn.Action), adapter.Name()).Observe(elapsed.Seconds())
		p.metrics.PaymentCalls.WithLabelValues(string(txn.Action), adapter.Name(), string(result.Status)).Inc()
	}

	if err := p.txns.Update(ctx, &result); err != nil {
		return result, fmt.Errorf("persist %s result: %w", txn.Action, err)
	}

	fields := []zap.Field{zap.String("status", string(result.Status)), zap.Duration("elapsed", elapsed)}
	if result.HasError() {
		fields = append(fields,
			zap.String("error_type", result.ProviderErrorDetails.Type),
			zap.String("error_message", result.ProviderErrorDetails.Message))
		logger.Warn("payment provider reported an error", fields...)
	} else {
		logger.Info("payment provider call finished", fields...)
	}
	return result, nil
}

func (p *Processor) loadParent(ctx context.Context, txn types.Transaction) (*types.Transaction, error) {
	if txn.Action == types.ActionAuth {
		return nil, nil
	}
	if txn.ParentTransactionID == "" || txn.ParentTransactionID == txn.TransactionID {
		// validation reports it
		return nil, nil
	}
	parent, err := p.txns.GetByID(ctx, txn.ParentTransactionID)
	var notFound *types.DataNotFoundError
	if errors.As(err, &notFound) {
		return nil, nil
	}
	return parent, err
}

// route picks the adapter. Settlements follow their auth; an auth follows
// its instrument's first token, or the default provider without one.
func (p *Processor) route(ctx context.Context, txn types.Transaction, parent *types.Transaction) (Adapter, *types.Instrument, error) {
	var instrument *types.Instrument
	provider := txn.Provider

	if txn.Action == types.ActionAuth && txn.InstrumentID != "" {
		ins, err := p.instruments.GetByID(ctx, txn.InstrumentID)
		var notFound *types.DataNotFoundError
		if errors.As(err, &notFound) {
			return nil, nil, invalid(txn, fmt.Sprintf("instrument %s not found", txn.InstrumentID))
		}
		if err != nil {
			return nil, nil, err
		}
		if len(ins.Tokens) == 0 {
			return nil, nil, invalid(txn, fmt.Sprintf("instrument %s has no routable provider", ins.InstrumentID))
		}
		instrument = ins
		if provider == "" {
			provider = ins.Tokens[0].Provider
		}
	}
	if provider == "" && parent != nil {
		provider = parent.Provider
	}
	if provider == "" {
		provider = p.registry.Default()
	}

	adapter, ok := p.registry.Get(provider)
	if !ok {
		return nil, nil, invalid(txn, fmt.Sprintf("no adapter for provider %q", provider))
	}
	return adapter, instrument, nil
}
