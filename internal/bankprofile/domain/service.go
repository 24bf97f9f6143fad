package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Service interface {
	Upsert(ctx context.Context, req UpsertRequest) (*BankProfile, error)
	Get(ctx context.Context, companyID snowflake.ID, bankCode string) (*BankProfile, error)
	List(ctx context.Context, companyID snowflake.ID) ([]BankProfile, error)
	SetActive(ctx context.Context, companyID snowflake.ID, bankCode string, isActive bool, actor string) (*BankProfile, error)

	// GetActive is the use-time lookup for dispatch and fetch. It returns
	// ErrProfileUnavailable when the profile is missing or deactivated.
	GetActive(ctx context.Context, companyID snowflake.ID, bankCode string) (*BankProfile, error)
}

type Repository interface {
	Find(ctx context.Context, db *gorm.DB, companyID snowflake.ID, bankCode string) (*BankProfile, error)
	List(ctx context.Context, db *gorm.DB, companyID snowflake.ID) ([]BankProfile, error)
	// ListActive returns every active connection across companies; the
	// scheduler walks this set on each pass.
	ListActive(ctx context.Context, db *gorm.DB) ([]BankProfile, error)
	Upsert(ctx context.Context, db *gorm.DB, profile *BankProfile) error
	UpdateStatus(ctx context.Context, db *gorm.DB, companyID snowflake.ID, bankCode string, isActive bool, actor string) (bool, error)
}

type UpsertRequest struct {
	CompanyID   snowflake.ID   `json:"company_id"`
	BankCode    string         `json:"bank_code"`
	ChannelKind ChannelKind    `json:"channel_kind"`
	Config      map[string]any `json:"config"`
	Actor       string         `json:"actor"`
}

var (
	ErrInvalidCompany     = errors.New("invalid_company")
	ErrInvalidBankCode    = errors.New("invalid_bank_code")
	ErrInvalidChannelKind = errors.New("invalid_channel_kind")
	ErrProfileNotFound    = errors.New("profile_not_found")
	ErrProfileUnavailable = errors.New("profile_unavailable")
)

// ConfigValidationError names the config fields missing for the requested
// channel kind. It is returned before any write happens.
type ConfigValidationError struct {
	Kind    ChannelKind
	Missing []string
}

func (e *ConfigValidationError) Error() string {
	return fmt.Sprintf("invalid %s config: missing %s", e.Kind, strings.Join(e.Missing, ", "))
}

// ValidateConfig checks the required-field set for kind and returns a
// ConfigValidationError listing every missing or blank field.
func ValidateConfig(kind ChannelKind, config map[string]any) error {
	var missing []string
	for _, field := range kind.RequiredConfigFields() {
		value, ok := config[field]
		if !ok {
			missing = append(missing, field)
			continue
		}
		if text, isString := value.(string); isString && strings.TrimSpace(text) == "" {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return &ConfigValidationError{Kind: kind, Missing: missing}
	}
	return nil
}
