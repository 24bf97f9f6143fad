package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// JobLogEntry is the append-only record of a connectivity operation. Rows are
// never updated or deleted by this service.
type JobLogEntry struct {
	ID        snowflake.ID      `json:"id" gorm:"primaryKey"`
	CompanyID snowflake.ID      `json:"company_id" gorm:"not null;index"`
	BankCode  string            `json:"bank_code" gorm:"type:text;not null"`
	Operation string            `json:"operation" gorm:"type:text;not null"`
	Detail    string            `json:"detail" gorm:"type:text;not null"`
	Payload   datatypes.JSONMap `json:"payload,omitempty" gorm:"type:jsonb"`
	Success   bool              `json:"success" gorm:"not null"`
	CreatedAt time.Time         `json:"created_at" gorm:"not null"`
}

func (JobLogEntry) TableName() string { return "job_logs" }

const (
	OperationDispatch      = "dispatch"
	OperationFetch         = "fetch"
	OperationReconcile     = "reconcile"
	OperationProfileUpsert = "profile_upsert"
)
