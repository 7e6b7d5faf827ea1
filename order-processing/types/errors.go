package types

import (
	"errors"
	"fmt"
	"time"
)

// ValidationError represents malformed input. It is never retried.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

// ContextValidationError represents well-formed input that is not recognized,
// such as an unknown product entity
type ContextValidationError struct {
	Msg string
}

func (e *ContextValidationError) Error() string {
	return e.Msg
}

// DataNotFoundError represents a missing aggregate
type DataNotFoundError struct {
	Kind string
	ID   string
}

func (e *DataNotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// InvoiceCreationError represents an invoice that could not be built
type InvoiceCreationError struct {
	Msg string
}

func (e *InvoiceCreationError) Error() string {
	return "invoice creation: " + e.Msg
}

// PaymentCreationError represents a transaction that could not be built
type PaymentCreationError struct {
	Msg string
}

func (e *PaymentCreationError) Error() string {
	return "payment creation: " + e.Msg
}

// PaymentContextValidationError is raised before any provider call when a
// transaction violates its invariants
type PaymentContextValidationError struct {
	TransactionID string
	Msg           string
}

func (e *PaymentContextValidationError) Error() string {
	return fmt.Sprintf("payment context invalid for transaction %s: %s", e.TransactionID, e.Msg)
}

// OrderProcessingError is not a fault. It tells the scheduler to invoke the
// orchestrator again after Delay.
type OrderProcessingError struct {
	OrderID string
	Status  OrderStatus
	Delay   time.Duration
}

func (e *OrderProcessingError) Error() string {
	return fmt.Sprintf("order %s still %s, next run in %s", e.OrderID, e.Status, e.Delay)
}

// UnexpectedStatusError represents an entity found in a status the caller
// cannot handle
type UnexpectedStatusError struct {
	Entity string
	ID     string
	Status string
}

func (e *UnexpectedStatusError) Error() string {
	return fmt.Sprintf("unexpected status %s for %s %s", e.Status, e.Entity, e.ID)
}

// CurrencyMismatchError is returned by Money arithmetic across currencies
type CurrencyMismatchError struct {
	Left  Money
	Right Money
}

func (e *CurrencyMismatchError) Error() string {
	return fmt.Sprintf("currency mismatch: %s(%d) vs %s(%d)",
		e.Left.Currency, e.Left.Exponent, e.Right.Currency, e.Right.Exponent)
}

// NonRetryableErrorTypes lists the error type names the scheduler must drop
// instead of retrying
var NonRetryableErrorTypes = []string{
	"ValidationError",
	"ContextValidationError",
	"DataNotFoundError",
	"InvoiceCreationError",
	"PaymentCreationError",
	"PaymentContextValidationError",
	"UnexpectedStatusError",
	"CurrencyMismatchError",
}

// IsPermanent reports whether err (or anything it wraps) is a permafail kind.
// It returns the matching type name.
func IsPermanent(err error) (string, bool) {
	var (
		validation *ValidationError
		context    *ContextValidationError
		notFound   *DataNotFoundError
		invoice    *InvoiceCreationError
		payment    *PaymentCreationError
		paymentCtx *PaymentContextValidationError
		status     *UnexpectedStatusError
		currency   *CurrencyMismatchError
	)
	switch {
	case errors.As(err, &validation):
		return "ValidationError", true
	case errors.As(err, &context):
		return "ContextValidationError", true
	case errors.As(err, &notFound):
		return "DataNotFoundError", true
	case errors.As(err, &invoice):
		return "InvoiceCreationError", true
	case errors.As(err, &payment):
		return "PaymentCreationError", true
	case errors.As(err, &paymentCtx):
		return "PaymentContextValidationError", true
	case errors.As(err, &status):
		return "UnexpectedStatusError", true
	case errors.As(err, &currency):
		return "CurrencyMismatchError", true
	}
	return "", false
}

// AsOrderProcessing extracts the re-schedule signal from err
func AsOrderProcessing(err error) (*OrderProcessingError, bool) {
	var op *OrderProcessingError
	if errors.As(err, &op) {
		return op, true
	}
	return nil, false
}
