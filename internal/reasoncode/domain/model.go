package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Status is the closed canonical vocabulary every bank-specific reason code is
// normalized into.
type Status string

const (
	StatusAck      Status = "ACK"
	StatusExecOK   Status = "EXEC_OK"
	StatusExecFail Status = "EXEC_FAIL"
	StatusPending  Status = "PENDING"
)

func (s Status) Valid() bool {
	switch s {
	case StatusAck, StatusExecOK, StatusExecFail, StatusPending:
		return true
	default:
		return false
	}
}

// NormEntry maps one raw channel-specific code of one bank to a canonical
// status. Administered out of band; read-only at reconcile time.
type NormEntry struct {
	ID        snowflake.ID `json:"id" gorm:"primaryKey"`
	BankCode  string       `json:"bank_code" gorm:"type:text;not null;index:ux_reason_code_map_bank_code,priority:1"`
	RawCode   string       `json:"raw_code" gorm:"type:text;not null;index:ux_reason_code_map_bank_code,priority:2"`
	Status    Status       `json:"status" gorm:"type:text;not null"`
	Label     string       `json:"label" gorm:"type:text;not null"`
	CreatedAt time.Time    `json:"created_at" gorm:"not null"`
}

func (NormEntry) TableName() string { return "reason_code_map" }

type Service interface {
	// Normalize resolves (bankCode, rawCode) to a canonical status. When no
	// entry matches, fallback is returned unchanged so an unknown code never
	// produces a worse outcome than no information at all.
	Normalize(ctx context.Context, bankCode string, rawCode string, fallback Status) (Status, string, error)
	Upsert(ctx context.Context, bankCode string, rawCode string, status Status, label string) error
}

type Repository interface {
	Find(ctx context.Context, db *gorm.DB, bankCode string, rawCode string) (*NormEntry, error)
	Upsert(ctx context.Context, db *gorm.DB, entry *NormEntry) error
}

var (
	ErrInvalidBankCode = errors.New("invalid_bank_code")
	ErrInvalidRawCode  = errors.New("invalid_raw_code")
	ErrInvalidStatus   = errors.New("invalid_status")
)
