package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// DispatchStatus tracks the outbox row, not the run: queued rows have not
// crossed the channel yet, sent rows have, confirmed rows were acknowledged.
type DispatchStatus string

const (
	DispatchStatusQueued    DispatchStatus = "queued"
	DispatchStatusSent      DispatchStatus = "sent"
	DispatchStatusConfirmed DispatchStatus = "confirmed"
)

// OutboundDispatch is the content-addressed outbox record for one rendered
// instruction file. At most one row exists per (run, fingerprint); re-dispatch
// with identical content replays the existing row.
type OutboundDispatch struct {
	ID          snowflake.ID   `json:"id" gorm:"primaryKey"`
	RunID       snowflake.ID   `json:"run_id" gorm:"not null;index:ux_outbound_dispatches_run_fingerprint,priority:1"`
	Fingerprint string         `json:"fingerprint" gorm:"type:text;not null;index:ux_outbound_dispatches_run_fingerprint,priority:2"`
	BankCode    string         `json:"bank_code" gorm:"type:text;not null"`
	Filename    string         `json:"filename" gorm:"type:text;not null"`
	Payload     []byte         `json:"-" gorm:"type:bytea;not null"`
	Status      DispatchStatus `json:"status" gorm:"type:text;not null"`
	CreatedAt   time.Time      `json:"created_at" gorm:"not null"`
}

func (OutboundDispatch) TableName() string { return "outbound_dispatches" }

type Service interface {
	Dispatch(ctx context.Context, req DispatchRequest) (*DispatchResult, error)

	// DeliverQueued pushes queued outbox rows for one bank connection through
	// its channel and marks them sent. Driven by the scheduler; every attempt
	// is safe to retry because rows stay queued until delivery succeeds.
	DeliverQueued(ctx context.Context, companyID snowflake.ID, bankCode string) (int, error)
}

type Repository interface {
	Find(ctx context.Context, db *gorm.DB, runID snowflake.ID, fingerprint string) (*OutboundDispatch, error)
	// Insert creates the row unless (run_id, fingerprint) already exists.
	// Returns false when the conflict path was taken.
	Insert(ctx context.Context, db *gorm.DB, dispatch *OutboundDispatch) (bool, error)
	ListQueued(ctx context.Context, db *gorm.DB, companyID snowflake.ID, bankCode string, limit int) ([]OutboundDispatch, error)
	MarkSent(ctx context.Context, db *gorm.DB, id snowflake.ID) error
}

type DispatchRequest struct {
	CompanyID snowflake.ID `json:"company_id"`
	RunID     snowflake.ID `json:"run_id"`
	BankCode  string       `json:"bank_code"`
	DryRun    bool         `json:"dry_run"`
}

type DispatchResult struct {
	Dispatch  *OutboundDispatch `json:"dispatch,omitempty"`
	RunStatus string            `json:"run_status"`
	Replayed  bool              `json:"replayed"`
	DryRun    bool              `json:"dry_run"`

	// Dry-run preview fields, populated without persisting anything.
	Filename    string `json:"filename,omitempty"`
	Fingerprint string `json:"fingerprint,omitempty"`
	LineCount   int    `json:"line_count,omitempty"`
}

var ErrInvalidRequest = errors.New("invalid_dispatch_request")
