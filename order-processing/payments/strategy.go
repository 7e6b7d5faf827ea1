package payments

import (
	"context"
	"fmt"

	"go-fulfillment-saga/order-processing/types"
)

// strategy is the per-action pair run by the processor. validate runs before
// anything is persisted or sent; parent is nil for AUTH.
type strategy struct {
	validate     func(txn types.Transaction, parent *types.Transaction) error
	callProvider func(ctx context.Context, a Adapter, txn types.Transaction, instrument *types.Instrument, parent *types.Transaction) types.Transaction
}

// PAYOUT is deliberately absent: outgoing invoices are never paid out here
var strategies = map[types.TransactionAction]strategy{
	types.ActionAuth: {
		validate: validateAuth,
		callProvider: func(ctx context.Context, a Adapter, txn types.Transaction, instrument *types.Instrument, _ *types.Transaction) types.Transaction {
			return a.CreateAuth(ctx, txn, instrument)
		},
	},
	types.ActionCaptureAuth: {
		validate: validateSettlementAmount,
		callProvider: func(ctx context.Context, a Adapter, txn types.Transaction, _ *types.Instrument, parent *types.Transaction) types.Transaction {
			return a.CaptureAuth(ctx, txn, *parent)
		},
	},
	types.ActionVoidAuth: {
		validate: validateSettlement,
		callProvider: func(ctx context.Context, a Adapter, txn types.Transaction, _ *types.Instrument, parent *types.Transaction) types.Transaction {
			return a.VoidAuth(ctx, txn, *parent)
		},
	},
	types.ActionRefund: {
		validate: validateSettlementAmount,
		callProvider: func(ctx context.Context, a Adapter, txn types.Transaction, _ *types.Instrument, parent *types.Transaction) types.Transaction {
			return a.Refund(ctx, txn, *parent)
		},
	},
}

func strategyFor(txn types.Transaction) (strategy, error) {
	s, ok := strategies[txn.Action]
	if !ok {
		return strategy{}, invalid(txn, fmt.Sprintf("no payment strategy for action %q", txn.Action))
	}
	return s, nil
}

func invalid(txn types.Transaction, msg string) error {
	return &types.PaymentContextValidationError{TransactionID: txn.TransactionID, Msg: msg}
}

func validateCommon(txn types.Transaction) error {
	switch {
	case txn.TransactionID == "":
		return invalid(txn, "transaction id is required")
	case txn.ParentTransactionID == "":
		return invalid(txn, "parent transaction id is required")
	case txn.OrderID == "":
		return invalid(txn, "order id is required")
	case txn.Amount.Currency == "":
		return invalid(txn, "currency is required")
	case txn.Amount.IsNegative():
		return invalid(txn, "amount must not be negative")
	}
	return nil
}

func validateAuth(txn types.Transaction, _ *types.Transaction) error {
	if err := validateCommon(txn); err != nil {
		return err
	}
	if txn.TransactionID != txn.ParentTransactionID {
		return invalid(txn, "auth transaction id and parent transaction id must match")
	}
	return nil
}

// validateSettlement covers what CAPTURE, VOID and REFUND share: a distinct,
// completed parent AUTH for the same order
func validateSettlement(txn types.Transaction, parent *types.Transaction) error {
	if err := validateCommon(txn); err != nil {
		return err
	}
	if txn.TransactionID == txn.ParentTransactionID {
		return invalid(txn, fmt.Sprintf("%s must not be its own parent", txn.Action))
	}
	if parent == nil {
		return invalid(txn, "parent auth transaction not found")
	}
	if parent.Action != types.ActionAuth {
		return invalid(txn, fmt.Sprintf("parent %s is a %s, not an AUTH", parent.TransactionID, parent.Action))
	}
	if parent.OrderID != txn.OrderID {
		return invalid(txn, fmt.Sprintf("parent %s belongs to order %s", parent.TransactionID, parent.OrderID))
	}
	if !parent.IsSuccess() {
		return invalid(txn, fmt.Sprintf("parent auth %s is %s", parent.TransactionID, parent.Status))
	}
	return nil
}

// validateSettlementAmount adds the amount bounds for money-moving settlements
func validateSettlementAmount(txn types.Transaction, parent *types.Transaction) error {
	if err := validateSettlement(txn, parent); err != nil {
		return err
	}
	return validateAmountWithinAuth(txn, parent)
}

func validateAmountWithinAuth(txn types.Transaction, parent *types.Transaction) error {
	if txn.Amount.IsZero() {
		return invalid(txn, fmt.Sprintf("%s amount must be positive", txn.Action))
	}
	over, err := txn.Amount.GreaterThan(parent.Amount)
	if err != nil {
		return invalid(txn, err.Error())
	}
	if over {
		return invalid(txn, fmt.Sprintf("%s amount %d exceeds authorized %d", txn.Action, txn.Amount.Amount, parent.Amount.Amount))
	}
	return nil
}
