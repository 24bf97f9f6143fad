package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	// Apply walks the unconsumed acknowledgment documents of a company and
	// applies their mappings to run and line state. Every state write is
	// guarded, so re-applying an already consumed document changes nothing.
	Apply(ctx context.Context, companyID snowflake.ID) (*ApplyResult, error)
}

type ApplyResult struct {
	AcksConsumed int      `json:"acks_consumed"`
	Applied      int      `json:"applied"`
	Skipped      int      `json:"skipped"`
	Errors       []string `json:"errors,omitempty"`
}

var ErrInvalidCompany = errors.New("invalid_company")
