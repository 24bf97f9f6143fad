package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payrun/internal/bankprofile/domain"
	joblogdomain "github.com/smallbiznis/payrun/internal/joblog/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Repo      domain.Repository
	JobLogSvc joblogdomain.Service `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	repo      domain.Repository
	jobLogSvc joblogdomain.Service
}

func NewService(p Params) domain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("bankprofile.service"),
		genID:     p.GenID,
		repo:      p.Repo,
		jobLogSvc: p.JobLogSvc,
	}
}

func (s *Service) Upsert(ctx context.Context, req domain.UpsertRequest) (*domain.BankProfile, error) {
	if req.CompanyID == 0 {
		return nil, domain.ErrInvalidCompany
	}
	bankCode := normalizeBankCode(req.BankCode)
	if bankCode == "" {
		return nil, domain.ErrInvalidBankCode
	}
	if !req.ChannelKind.Valid() {
		return nil, domain.ErrInvalidChannelKind
	}

	config := normalizeConfig(req.Config)
	if err := domain.ValidateConfig(req.ChannelKind, config); err != nil {
		s.logJob(ctx, req.CompanyID, bankCode, "profile rejected: "+err.Error(), nil, false)
		return nil, err
	}

	encoded, err := json.Marshal(config)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	profile := domain.BankProfile{
		ID:          s.genID.Generate(),
		CompanyID:   req.CompanyID,
		BankCode:    bankCode,
		ChannelKind: req.ChannelKind,
		Config:      datatypes.JSON(encoded),
		IsActive:    true,
		UpdatedBy:   strings.TrimSpace(req.Actor),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.repo.Upsert(ctx, s.db, &profile); err != nil {
		return nil, err
	}

	stored, err := s.repo.Find(ctx, s.db, req.CompanyID, bankCode)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, domain.ErrProfileNotFound
	}

	s.logJob(ctx, req.CompanyID, bankCode, "profile upserted", map[string]any{
		"channel_kind": string(req.ChannelKind),
		"actor":        profile.UpdatedBy,
	}, true)

	return stored, nil
}

func (s *Service) Get(ctx context.Context, companyID snowflake.ID, bankCode string) (*domain.BankProfile, error) {
	if companyID == 0 {
		return nil, domain.ErrInvalidCompany
	}
	bankCode = normalizeBankCode(bankCode)
	if bankCode == "" {
		return nil, domain.ErrInvalidBankCode
	}

	profile, err := s.repo.Find(ctx, s.db, companyID, bankCode)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, domain.ErrProfileNotFound
	}
	return profile, nil
}

func (s *Service) List(ctx context.Context, companyID snowflake.ID) ([]domain.BankProfile, error) {
	if companyID == 0 {
		return nil, domain.ErrInvalidCompany
	}
	return s.repo.List(ctx, s.db, companyID)
}

func (s *Service) SetActive(ctx context.Context, companyID snowflake.ID, bankCode string, isActive bool, actor string) (*domain.BankProfile, error) {
	if companyID == 0 {
		return nil, domain.ErrInvalidCompany
	}
	bankCode = normalizeBankCode(bankCode)
	if bankCode == "" {
		return nil, domain.ErrInvalidBankCode
	}

	updated, err := s.repo.UpdateStatus(ctx, s.db, companyID, bankCode, isActive, strings.TrimSpace(actor))
	if err != nil {
		return nil, err
	}
	if !updated {
		return nil, domain.ErrProfileNotFound
	}

	return s.repo.Find(ctx, s.db, companyID, bankCode)
}

func (s *Service) GetActive(ctx context.Context, companyID snowflake.ID, bankCode string) (*domain.BankProfile, error) {
	if companyID == 0 {
		return nil, domain.ErrInvalidCompany
	}
	bankCode = normalizeBankCode(bankCode)
	if bankCode == "" {
		return nil, domain.ErrInvalidBankCode
	}

	profile, err := s.repo.Find(ctx, s.db, companyID, bankCode)
	if err != nil {
		return nil, err
	}
	if profile == nil || !profile.IsActive {
		return nil, domain.ErrProfileUnavailable
	}
	return profile, nil
}

func (s *Service) logJob(ctx context.Context, companyID snowflake.ID, bankCode string, detail string, payload map[string]any, success bool) {
	if s.jobLogSvc == nil {
		return
	}
	if err := s.jobLogSvc.LogJob(ctx, companyID, bankCode, joblogdomain.OperationProfileUpsert, detail, payload, success); err != nil {
		s.log.Warn("failed to write profile job log", zap.String("bank_code", bankCode), zap.Error(err))
	}
}

func normalizeBankCode(bankCode string) string {
	return strings.ToUpper(strings.TrimSpace(bankCode))
}

func normalizeConfig(config map[string]any) map[string]any {
	if len(config) == 0 {
		return nil
	}

	normalized := make(map[string]any, len(config))
	for key, value := range config {
		trimmedKey := strings.TrimSpace(key)
		if trimmedKey == "" || value == nil {
			continue
		}

		switch cast := value.(type) {
		case string:
			trimmedValue := strings.TrimSpace(cast)
			if trimmedValue == "" {
				continue
			}
			normalized[trimmedKey] = trimmedValue
		default:
			normalized[trimmedKey] = cast
		}
	}

	if len(normalized) == 0 {
		return nil
	}
	return normalized
}
