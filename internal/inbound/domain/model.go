package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// InboundAck is one acknowledgment document pulled from a bank channel,
// content-addressed by the sha256 of its payload. The same document arriving
// twice hits the unique (company_id, bank_code, fingerprint) index and is
// skipped.
type InboundAck struct {
	ID          snowflake.ID `json:"id" gorm:"primaryKey"`
	CompanyID   snowflake.ID `json:"company_id" gorm:"not null;index:ux_inbound_acks_company_bank_fingerprint,priority:1"`
	BankCode    string       `json:"bank_code" gorm:"type:text;not null;index:ux_inbound_acks_company_bank_fingerprint,priority:2"`
	Fingerprint string       `json:"fingerprint" gorm:"type:text;not null;index:ux_inbound_acks_company_bank_fingerprint,priority:3"`
	Filename    string       `json:"filename" gorm:"type:text;not null"`
	Payload     []byte       `json:"-" gorm:"type:bytea;not null"`
	ReceivedAt  time.Time    `json:"received_at" gorm:"not null"`
	ConsumedAt  *time.Time   `json:"consumed_at,omitempty"`
}

func (InboundAck) TableName() string { return "inbound_acks" }

// AckMapping is one parsed entry of an acknowledgment document, kept raw.
// Normalization to the canonical status happens when the reconciler applies
// the mapping, never at ingest time. LineID zero means a run-level entry.
type AckMapping struct {
	ID          snowflake.ID `json:"id" gorm:"primaryKey"`
	AckID       snowflake.ID `json:"ack_id" gorm:"not null;index"`
	RunID       snowflake.ID `json:"run_id" gorm:"not null;index"`
	LineID      snowflake.ID `json:"line_id"`
	StatusCode  string       `json:"status_code" gorm:"type:text;not null"`
	ReasonCode  string       `json:"reason_code" gorm:"type:text"`
	ReasonLabel string       `json:"reason_label" gorm:"type:text"`
	CreatedAt   time.Time    `json:"created_at" gorm:"not null"`
}

func (AckMapping) TableName() string { return "ack_mappings" }

type Service interface {
	// Fetch pulls pending acknowledgment documents from the bank channel and
	// persists them with their parsed mappings. One malformed document never
	// aborts the batch.
	Fetch(ctx context.Context, companyID snowflake.ID, bankCode string, max int) (*FetchResult, error)
}

type Repository interface {
	FindAck(ctx context.Context, db *gorm.DB, companyID snowflake.ID, bankCode string, fingerprint string) (*InboundAck, error)
	// InsertAck creates the document row unless the fingerprint already
	// exists for the connection. Returns false on the conflict path.
	InsertAck(ctx context.Context, db *gorm.DB, ack *InboundAck) (bool, error)
	InsertMappings(ctx context.Context, db *gorm.DB, mappings []AckMapping) error
	ListUnconsumed(ctx context.Context, db *gorm.DB, companyID snowflake.ID, limit int) ([]InboundAck, error)
	MappingsForAck(ctx context.Context, db *gorm.DB, ackID snowflake.ID) ([]AckMapping, error)
	MarkConsumed(ctx context.Context, db *gorm.DB, ackID snowflake.ID) error
}

type FetchResult struct {
	Fetched    int      `json:"fetched"`
	Stored     int      `json:"stored"`
	Duplicates int      `json:"duplicates"`
	Malformed  int      `json:"malformed"`
	Errors     []string `json:"errors,omitempty"`
}

var ErrInvalidRequest = errors.New("invalid_fetch_request")

// DocumentError marks a single malformed acknowledgment document. The fetch
// records it and moves on to the next document.
type DocumentError struct {
	Filename string
	Reason   string
}

func (e *DocumentError) Error() string {
	return "document " + e.Filename + ": " + e.Reason
}
