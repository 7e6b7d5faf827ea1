package types

import "fmt"

// LineItemType classifies a line item
type LineItemType string

const (
	// incoming
	LineItemBaseProduct  LineItemType = "base-product"
	LineItemAddOnProduct LineItemType = "add-on-product"
	LineItemSalesTax     LineItemType = "sales-tax"

	// outgoing
	LineItemUserPurchases LineItemType = "user-purchases"
)

// Valid reports whether t is a known line item type
func (t LineItemType) Valid() bool {
	switch t {
	case LineItemBaseProduct, LineItemAddOnProduct, LineItemSalesTax, LineItemUserPurchases:
		return true
	}
	return false
}

// LineItem is one priced entry of an invoice or purchase record
type LineItem struct {
	ProductCode string       `json:"product_code"`
	ProductName string       `json:"product_name"`
	Amount      Money        `json:"amount"`
	Type        LineItemType `json:"type"`
	Description string       `json:"description,omitempty"`
}

func (li LineItem) IsBaseProduct() bool  { return li.Type == LineItemBaseProduct }
func (li LineItem) IsAddOnProduct() bool { return li.Type == LineItemAddOnProduct }
func (li LineItem) IsTax() bool          { return li.Type == LineItemSalesTax }

// Validate checks the fields a line item must carry
func (li LineItem) Validate() error {
	switch {
	case li.ProductCode == "":
		return &ValidationError{Msg: "line item product_code is required"}
	case li.Amount.Currency == "":
		return &ValidationError{Msg: fmt.Sprintf("line item %s: currency is required", li.ProductCode)}
	case li.Amount.IsNegative():
		return &ValidationError{Msg: fmt.Sprintf("line item %s: amount must not be negative", li.ProductCode)}
	case !li.Type.Valid():
		return &ValidationError{Msg: fmt.Sprintf("line item %s: unknown type %q", li.ProductCode, li.Type)}
	}
	return nil
}

// InvoiceDirection tells whether money comes in from or goes out to the counterparty
type InvoiceDirection string

const (
	InvoiceIncoming InvoiceDirection = "incoming"
	InvoiceOutgoing InvoiceDirection = "outgoing"
)

// InvoiceStatus only moves forward: CREATED -> PENDING -> COMPLETED | FAILED
type InvoiceStatus string

const (
	InvoiceStatusCreated   InvoiceStatus = "CREATED"
	InvoiceStatusPending   InvoiceStatus = "PENDING"
	InvoiceStatusCompleted InvoiceStatus = "COMPLETED"
	InvoiceStatusFailed    InvoiceStatus = "FAILED"
)

// IsTerminal reports whether the invoice reached COMPLETED or FAILED
func (s InvoiceStatus) IsTerminal() bool {
	return s == InvoiceStatusCompleted || s == InvoiceStatusFailed
}

// Invoice is embedded in an Order and owned by it
type Invoice struct {
	Name                string           `json:"name"`
	Counterparty        string           `json:"counterparty"`
	Direction           InvoiceDirection `json:"direction"`
	Status              InvoiceStatus    `json:"status"`
	Amount              Money            `json:"amount"`
	InstrumentID        string           `json:"instrument_id,omitempty"`
	LineItems           []LineItem       `json:"line_items"`
	ParentTransactionID string           `json:"parent_transaction_id,omitempty"`
}

// NewInvoice builds a CREATED invoice whose amount is the sum of its line items
func NewInvoice(name, counterparty string, direction InvoiceDirection, instrumentID string, items []LineItem) (Invoice, error) {
	if len(items) == 0 {
		return Invoice{}, &InvoiceCreationError{Msg: "invoice needs at least one line item"}
	}
	if counterparty == "" {
		return Invoice{}, &InvoiceCreationError{Msg: "invoice counterparty is required"}
	}
	total, err := SumLineItems(items)
	if err != nil {
		return Invoice{}, &InvoiceCreationError{Msg: err.Error()}
	}
	lineItems := make([]LineItem, len(items))
	copy(lineItems, items)
	return Invoice{
		Name:         name,
		Counterparty: counterparty,
		Direction:    direction,
		Status:       InvoiceStatusCreated,
		Amount:       total,
		InstrumentID: instrumentID,
		LineItems:    lineItems,
	}, nil
}
