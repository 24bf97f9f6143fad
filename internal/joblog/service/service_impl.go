package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payrun/internal/joblog/domain"
	"github.com/smallbiznis/payrun/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
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
		log:   p.Log.Named("joblog.service"),
		genID: p.GenID,
		repo:  p.Repo,
	}
}

func (s *Service) LogJob(ctx context.Context, companyID snowflake.ID, bankCode string, operation string, detail string, payload map[string]any, success bool) error {
	operation = strings.TrimSpace(operation)
	if operation == "" {
		return domain.ErrInvalidOperation
	}
	if companyID == 0 {
		return domain.ErrInvalidCompany
	}

	entry := domain.JobLogEntry{
		ID:        s.genID.Generate(),
		CompanyID: companyID,
		BankCode:  strings.TrimSpace(bankCode),
		Operation: operation,
		Detail:    strings.TrimSpace(detail),
		Success:   success,
		CreatedAt: time.Now().UTC(),
	}
	if len(payload) > 0 {
		entry.Payload = datatypes.JSONMap(payload)
	}

	if err := s.repo.Insert(ctx, s.db, &entry); err != nil {
		s.log.Warn("failed to write job log",
			zap.String("operation", operation),
			zap.String("bank_code", entry.BankCode),
			zap.Error(err),
		)
		return err
	}
	return nil
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) ([]domain.JobLogEntry, *pagination.PageInfo, error) {
	if req.CompanyID == 0 {
		return nil, nil, domain.ErrInvalidCompany
	}

	limit := pagination.ClampPageSize(req.Limit, 50, 250)

	var beforeID snowflake.ID
	if req.PageToken != "" {
		cursor, err := pagination.DecodeCursor(req.PageToken)
		if err != nil {
			return nil, nil, err
		}
		id, err := snowflake.ParseString(cursor.ID)
		if err != nil {
			return nil, nil, pagination.ErrInvalidPageToken
		}
		beforeID = id
	}

	// One row past the page tells us whether another page exists.
	entries, err := s.repo.List(ctx, s.db, domain.ListFilter{
		CompanyID: req.CompanyID,
		BankCode:  strings.ToUpper(strings.TrimSpace(req.BankCode)),
		Operation: strings.TrimSpace(req.Operation),
		Limit:     limit + 1,
		BeforeID:  beforeID,
	})
	if err != nil {
		return nil, nil, err
	}

	info := &pagination.PageInfo{}
	if len(entries) > limit {
		entries = entries[:limit]
		token, err := pagination.EncodeCursor(pagination.Cursor{ID: entries[len(entries)-1].ID.String()})
		if err != nil {
			return nil, nil, err
		}
		info.HasMore = true
		info.NextPageToken = token
	}
	return entries, info, nil
}
