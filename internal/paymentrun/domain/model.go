package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// RunStatus is the payment run lifecycle. EXPORTED is the entry state for this
// service; earlier states belong to the upstream approval flow.
type RunStatus string

const (
	RunStatusDraft        RunStatus = "DRAFT"
	RunStatusApproved     RunStatus = "APPROVED"
	RunStatusExported     RunStatus = "EXPORTED"
	RunStatusDispatched   RunStatus = "DISPATCHED"
	RunStatusAcknowledged RunStatus = "ACKNOWLEDGED"
	RunStatusExecuted     RunStatus = "EXECUTED"
	RunStatusFailed       RunStatus = "FAILED"
)

// legalTransitions is the explicit transition table for the portion of the
// lifecycle this service owns.
var legalTransitions = map[RunStatus][]RunStatus{
	RunStatusExported:     {RunStatusDispatched},
	RunStatusDispatched:   {RunStatusAcknowledged, RunStatusExecuted, RunStatusFailed},
	RunStatusAcknowledged: {RunStatusExecuted, RunStatusFailed},
}

// CanTransition reports whether from -> to is a legal run status transition.
func CanTransition(from, to RunStatus) bool {
	for _, allowed := range legalTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// LineStatus mirrors the subset of the run lifecycle a single line moves
// through. Lines only ever advance; corrections are an out-of-band action.
type LineStatus string

const (
	LineStatusSelected   LineStatus = "selected"
	LineStatusDispatched LineStatus = "dispatched"
	LineStatusPaid       LineStatus = "paid"
	LineStatusFailed     LineStatus = "failed"
)

type PaymentRun struct {
	ID             snowflake.ID `json:"id" gorm:"primaryKey"`
	CompanyID      snowflake.ID `json:"company_id" gorm:"not null;index"`
	Year           int          `json:"year" gorm:"not null"`
	Month          int          `json:"month" gorm:"not null"`
	Currency       string       `json:"currency" gorm:"type:text;not null"`
	Status         RunStatus    `json:"status" gorm:"type:text;not null"`
	AcknowledgedAt *time.Time   `json:"acknowledged_at,omitempty"`
	FailureReason  *string      `json:"failure_reason,omitempty" gorm:"type:text"`
	CreatedAt      time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt      time.Time    `json:"updated_at" gorm:"not null"`
}

func (PaymentRun) TableName() string { return "payment_runs" }

// PaymentLine amounts are integer minor units; the monetary fields are owned
// by the upstream approval flow and never mutated here.
type PaymentLine struct {
	ID          snowflake.ID `json:"id" gorm:"primaryKey"`
	RunID       snowflake.ID `json:"run_id" gorm:"not null;index"`
	SupplierRef string       `json:"supplier_ref" gorm:"type:text;not null"`
	InvoiceRef  string       `json:"invoice_ref" gorm:"type:text;not null"`
	DueDate     time.Time    `json:"due_date" gorm:"not null"`
	GrossAmount int64        `json:"gross_amount" gorm:"not null"`
	PayAmount   int64        `json:"pay_amount" gorm:"not null"`
	Currency    string       `json:"currency" gorm:"type:text;not null"`
	Status      LineStatus   `json:"status" gorm:"type:text;not null"`
	CreatedAt   time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt   time.Time    `json:"updated_at" gorm:"not null"`
}

func (PaymentLine) TableName() string { return "payment_lines" }
