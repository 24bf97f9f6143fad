package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payrun/pkg/db/pagination"
	"gorm.io/gorm"
)

type Service interface {
	// LogJob appends one entry. Failures are logged by the implementation and
	// must never fail the operation being recorded.
	LogJob(ctx context.Context, companyID snowflake.ID, bankCode string, operation string, detail string, payload map[string]any, success bool) error
	List(ctx context.Context, req ListRequest) ([]JobLogEntry, *pagination.PageInfo, error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *JobLogEntry) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]JobLogEntry, error)
}

type ListRequest struct {
	CompanyID snowflake.ID
	BankCode  string
	Operation string
	Limit     int
	PageToken string
}

type ListFilter struct {
	CompanyID snowflake.ID
	BankCode  string
	Operation string
	Limit     int
	// BeforeID bounds the keyset scan; zero means start from the newest row.
	BeforeID snowflake.ID
}

var (
	ErrInvalidCompany   = errors.New("invalid_company")
	ErrInvalidOperation = errors.New("invalid_operation")
)
