package types

import "time"

// PurchaseRecordStatus: CREATED -> READY -> PROCESSING -> COMPLETED | FAILED
//
// Created -> ready: payment update
// Ready -> processing: downstream capacity
// Processing -> completed: downstream call
// Processing -> failed: downstream call or SLA
type PurchaseRecordStatus string

const (
	RecordStatusCreated    PurchaseRecordStatus = "CREATED"
	RecordStatusReady      PurchaseRecordStatus = "READY"
	RecordStatusProcessing PurchaseRecordStatus = "PROCESSING"
	RecordStatusCompleted  PurchaseRecordStatus = "COMPLETED"
	RecordStatusFailed     PurchaseRecordStatus = "FAILED"
)

func (s PurchaseRecordStatus) IsTerminal() bool {
	return s == RecordStatusCompleted || s == RecordStatusFailed
}

func (s PurchaseRecordStatus) rank() int {
	switch s {
	case RecordStatusCreated:
		return 0
	case RecordStatusReady:
		return 1
	case RecordStatusProcessing:
		return 2
	case RecordStatusCompleted, RecordStatusFailed:
		return 3
	}
	return -1
}

// Valid reports whether s is a known status
func (s PurchaseRecordStatus) Valid() bool {
	return s.rank() >= 0
}

const (
	progressNoteCreated    = "Your order is created. We are processing your payments..."
	progressNoteReady      = "Payment has been completed. We started processing your order.... \nIn the case of execution failure, we will immediately refund in full."
	progressNoteProcessing = "Execution in progress....."
	progressNoteCompleted  = "Execution succeeded! You should have received your output. \nPlease reach out if you still do not see the result."
	progressNoteFailed     = "Processing failed. Money will be returned to your account immediately."
)

// PurchaseRecord tracks one unit of downstream work
type PurchaseRecord struct {
	RecordID      string               `json:"record_id"`
	CreatedAt     time.Time            `json:"created_at"`
	LastUpdatedAt time.Time            `json:"last_updated_at"`
	Description   string               `json:"description"`
	UserID        string               `json:"user_id"`
	Entity        string               `json:"entity"`
	Status        PurchaseRecordStatus `json:"status"`
	AttemptCount  int                  `json:"attempt_count"`
	OrderID       string               `json:"order_id,omitempty"`
	LineItems     []LineItem           `json:"line_items"`
	ProgressNote  []string             `json:"progress_note"`
}

func (r *PurchaseRecord) IsCreated() bool    { return r.Status == RecordStatusCreated }
func (r *PurchaseRecord) IsReady() bool      { return r.Status == RecordStatusReady }
func (r *PurchaseRecord) IsProcessing() bool { return r.Status == RecordStatusProcessing }
func (r *PurchaseRecord) IsCompleted() bool  { return r.Status == RecordStatusCompleted }
func (r *PurchaseRecord) IsFailed() bool     { return r.Status == RecordStatusFailed }
func (r *PurchaseRecord) IsTerminal() bool   { return r.Status.IsTerminal() }

// IsOverSLA reports whether the record sat in its current status past the
// policy threshold
func (r *PurchaseRecord) IsOverSLA(now time.Time, policy SLAPolicy) bool {
	switch r.Status {
	case RecordStatusCreated:
		return overSLA(r.LastUpdatedAt, now, policy.RecordCreated)
	case RecordStatusReady:
		return overSLA(r.LastUpdatedAt, now, policy.RecordReady)
	case RecordStatusProcessing:
		return overSLA(r.LastUpdatedAt, now, policy.RecordProcessing)
	}
	return false
}

// CurrentProgressNoteUpdate returns the user-facing note for the current status
func (r *PurchaseRecord) CurrentProgressNoteUpdate() string {
	switch r.Status {
	case RecordStatusCreated:
		return progressNoteCreated
	case RecordStatusReady:
		return progressNoteReady
	case RecordStatusProcessing:
		return progressNoteProcessing
	case RecordStatusCompleted:
		return progressNoteCompleted
	default:
		return progressNoteFailed
	}
}

// UpdateProgress appends the current note unless it is already the last one
func (r *PurchaseRecord) UpdateProgress() bool {
	note := r.CurrentProgressNoteUpdate()
	if n := len(r.ProgressNote); n > 0 && r.ProgressNote[n-1] == note {
		return false
	}
	r.ProgressNote = append(r.ProgressNote, note)
	return true
}

// CanTransitionTo reports whether moving to next keeps the lifecycle forward.
// Staying put is allowed; any non-terminal record may be failed.
func (r *PurchaseRecord) CanTransitionTo(next PurchaseRecordStatus) bool {
	if !next.Valid() {
		return false
	}
	if r.Status == next {
		return true
	}
	if r.IsTerminal() {
		return false
	}
	if next == RecordStatusFailed {
		return true
	}
	if next == RecordStatusCompleted {
		return r.IsProcessing()
	}
	return next.rank() == r.Status.rank()+1
}

// Total adds up the record's line items
func (r *PurchaseRecord) Total() (Money, error) {
	return SumLineItems(r.LineItems)
}

// ProductName is the base product name, flagged when add-ons are attached
func (r *PurchaseRecord) ProductName() string {
	var name string
	hasAddOn := false
	for _, li := range r.LineItems {
		switch {
		case li.IsBaseProduct():
			name = li.ProductName
		case li.IsAddOnProduct():
			hasAddOn = true
		}
	}
	if hasAddOn {
		name += " with add-ons"
	}
	return name
}
