package types

import "time"

// OrderStatus: CREATED -> BOOKED -> FULFILLED -> COMPLETED, or FAILED from
// CREATED / BOOKED
type OrderStatus string

const (
	OrderStatusCreated   OrderStatus = "CREATED"   // order created, auth pending
	OrderStatusBooked    OrderStatus = "BOOKED"    // authorized, records processing
	OrderStatusFulfilled OrderStatus = "FULFILLED" // payin captured
	OrderStatusCompleted OrderStatus = "COMPLETED"
	OrderStatusFailed    OrderStatus = "FAILED"
)

// IsTerminal reports whether no further transition is possible
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusFailed
}

// Order ties purchase records to the incoming invoice that pays for them.
// It owns its invoices and references records by id.
type Order struct {
	OrderID           string      `json:"order_id"`
	UserID            string      `json:"user_id"`
	Entity            string      `json:"entity"`
	Status            OrderStatus `json:"status"`
	CreatedAt         time.Time   `json:"created_at"`
	UpdatedAt         time.Time   `json:"updated_at"`
	StatusChangedAt   time.Time   `json:"status_changed_at"`
	PurchaseRecordIDs []string    `json:"purchase_record_ids"`
	IncomingInvoice   Invoice     `json:"incoming_invoice"`
	OutgoingInvoice   *Invoice    `json:"outgoing_invoice,omitempty"`
	RefundingInvoice  *Invoice    `json:"refunding_invoice,omitempty"`
}

func (o *Order) IsCreated() bool   { return o.Status == OrderStatusCreated }
func (o *Order) IsBooked() bool    { return o.Status == OrderStatusBooked }
func (o *Order) IsFulfilled() bool { return o.Status == OrderStatusFulfilled }
func (o *Order) IsCompleted() bool { return o.Status == OrderStatusCompleted }
func (o *Order) IsFailed() bool    { return o.Status == OrderStatusFailed }
func (o *Order) IsTerminal() bool  { return o.Status.IsTerminal() }

// AuthTransactionID returns the root AUTH recorded on the incoming invoice
func (o *Order) AuthTransactionID() string {
	return o.IncomingInvoice.ParentTransactionID
}

// StatusSince is when the order entered its current status. Writes that
// leave the status alone do not move it.
func (o *Order) StatusSince() time.Time {
	if o.StatusChangedAt.IsZero() {
		return o.CreatedAt
	}
	return o.StatusChangedAt
}

// IsOverSLA reports whether the order sat in its current status past the
// policy threshold. Terminal orders never are.
func (o *Order) IsOverSLA(now time.Time, policy SLAPolicy) bool {
	switch o.Status {
	case OrderStatusCreated:
		return overSLA(o.StatusSince(), now, policy.OrderCreated)
	case OrderStatusBooked:
		return overSLA(o.StatusSince(), now, policy.OrderBooked)
	}
	return false
}

// SLADeadline returns when the current status goes over SLA
func (o *Order) SLADeadline(policy SLAPolicy) (time.Time, bool) {
	switch o.Status {
	case OrderStatusCreated:
		return o.StatusSince().Add(policy.OrderCreated), true
	case OrderStatusBooked:
		return o.StatusSince().Add(policy.OrderBooked), true
	}
	return time.Time{}, false
}

// StashAuth records the root auth transaction on the incoming invoice
func (o *Order) StashAuth(parentTransactionID string) {
	if o.IsCreated() {
		o.IncomingInvoice.ParentTransactionID = parentTransactionID
	}
}

// OnAuthSuccess moves a CREATED order to BOOKED
func (o *Order) OnAuthSuccess(parentTransactionID string) bool {
	if !o.IsCreated() {
		return false
	}
	o.IncomingInvoice.ParentTransactionID = parentTransactionID
	o.IncomingInvoice.Status = InvoiceStatusPending
	o.Status = OrderStatusBooked
	return true
}

// FailIncomingInvoice fails the invoice and the order
func (o *Order) FailIncomingInvoice() bool {
	if !o.IsCreated() && !o.IsBooked() {
		return false
	}
	o.IncomingInvoice.Status = InvoiceStatusFailed
	o.Status = OrderStatusFailed
	return true
}

// CompleteIncomingInvoice marks the payin captured
func (o *Order) CompleteIncomingInvoice() bool {
	if !o.IsBooked() {
		return false
	}
	o.IncomingInvoice.Status = InvoiceStatusCompleted
	o.Status = OrderStatusFulfilled
	return true
}

// CompleteOrder closes a fulfilled order
func (o *Order) CompleteOrder() bool {
	if !o.IsFulfilled() {
		return false
	}
	o.Status = OrderStatusCompleted
	return true
}
