package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payrun/internal/reasoncode/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  domain.Repository
}

func NewService(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("reasoncode.service"),
		genID: p.GenID,
		repo:  p.Repo,
	}
}

func (s *Service) Normalize(ctx context.Context, bankCode string, rawCode string, fallback domain.Status) (domain.Status, string, error) {
	bankCode = strings.ToUpper(strings.TrimSpace(bankCode))
	rawCode = strings.TrimSpace(rawCode)
	if bankCode == "" {
		return fallback, "", domain.ErrInvalidBankCode
	}
	if rawCode == "" {
		return fallback, "", nil
	}

	entry, err := s.repo.Find(ctx, s.db, bankCode, rawCode)
	if err != nil {
		return fallback, "", err
	}
	if entry == nil {
		return fallback, "", nil
	}
	return entry.Status, entry.Label, nil
}

func (s *Service) Upsert(ctx context.Context, bankCode string, rawCode string, status domain.Status, label string) error {
	bankCode = strings.ToUpper(strings.TrimSpace(bankCode))
	if bankCode == "" {
		return domain.ErrInvalidBankCode
	}
	rawCode = strings.TrimSpace(rawCode)
	if rawCode == "" {
		return domain.ErrInvalidRawCode
	}
	if !status.Valid() {
		return domain.ErrInvalidStatus
	}

	return s.repo.Upsert(ctx, s.db, &domain.NormEntry{
		ID:        s.genID.Generate(),
		BankCode:  bankCode,
		RawCode:   rawCode,
		Status:    status,
		Label:     strings.TrimSpace(label),
		CreatedAt: time.Now().UTC(),
	})
}
