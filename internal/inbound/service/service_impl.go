package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	bankprofiledomain "github.com/smallbiznis/payrun/internal/bankprofile/domain"
	"github.com/smallbiznis/payrun/internal/channel"
	channeldomain "github.com/smallbiznis/payrun/internal/channel/domain"
	"github.com/smallbiznis/payrun/internal/config"
	"github.com/smallbiznis/payrun/internal/inbound/domain"
	joblogdomain "github.com/smallbiznis/payrun/internal/joblog/domain"
	"github.com/smallbiznis/payrun/internal/observability"
	pkgdb "github.com/smallbiznis/payrun/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Cfg        config.Config
	Repo       domain.Repository
	ProfileSvc bankprofiledomain.Service
	Channels   *channel.Registry
	JobLogSvc  joblogdomain.Service   `optional:"true"`
	Metrics    *observability.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	cfg        config.Config
	repo       domain.Repository
	profileSvc bankprofiledomain.Service
	channels   *channel.Registry
	jobLogSvc  joblogdomain.Service
	metrics    *observability.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("inbound.service"),
		genID:      p.GenID,
		cfg:        p.Cfg,
		repo:       p.Repo,
		profileSvc: p.ProfileSvc,
		channels:   p.Channels,
		jobLogSvc:  p.JobLogSvc,
		metrics:    p.Metrics,
	}
}

// Fetch lists pending documents on the bank channel and stores each one with
// its parsed mappings. Documents are content-addressed, so a crash between
// channel read and commit only means the same document is fetched again on
// the next pass and lands on the fingerprint conflict.
func (s *Service) Fetch(ctx context.Context, companyID snowflake.ID, bankCode string, max int) (*domain.FetchResult, error) {
	bankCode = strings.ToUpper(strings.TrimSpace(bankCode))
	if companyID == 0 || bankCode == "" {
		return nil, domain.ErrInvalidRequest
	}
	if max <= 0 {
		max = s.cfg.Scheduler.MaxDocuments
	}

	profile, err := s.profileSvc.GetActive(ctx, companyID, bankCode)
	if err != nil {
		s.logJob(ctx, companyID, bankCode, "fetch rejected: no active profile", nil, false)
		return nil, err
	}
	decoded, err := profile.DecodedConfig()
	if err != nil {
		return nil, err
	}

	ch, err := s.channels.NewChannel(profile.ChannelKind, channeldomain.Config{
		CompanyID: companyID,
		BankCode:  bankCode,
		Config:    decoded,
		Timeout:   s.cfg.ChannelTimeout,
	})
	if err != nil {
		return nil, err
	}

	docs, err := ch.ListPending(ctx, max)
	if err != nil {
		s.logJob(ctx, companyID, bankCode, "fetch failed: "+err.Error(), nil, false)
		return nil, err
	}

	result := &domain.FetchResult{Fetched: len(docs)}
	for _, doc := range docs {
		if err := s.storeDocument(ctx, companyID, bankCode, doc, result); err != nil {
			return result, err
		}
	}

	s.logJob(ctx, companyID, bankCode, "fetch completed", map[string]any{
		"fetched":    result.Fetched,
		"stored":     result.Stored,
		"duplicates": result.Duplicates,
		"malformed":  result.Malformed,
	}, true)
	s.log.Info("inbound fetch completed",
		zap.String("bank_code", bankCode),
		zap.Int("fetched", result.Fetched),
		zap.Int("stored", result.Stored),
		zap.Int("duplicates", result.Duplicates),
		zap.Int("malformed", result.Malformed),
	)
	return result, nil
}

func (s *Service) storeDocument(ctx context.Context, companyID snowflake.ID, bankCode string, doc channeldomain.Document, result *domain.FetchResult) error {
	sum := sha256.Sum256(doc.Payload)
	fingerprint := hex.EncodeToString(sum[:])

	existing, err := s.repo.FindAck(ctx, s.db, companyID, bankCode, fingerprint)
	if err != nil {
		return err
	}
	if existing != nil {
		result.Duplicates++
		s.metrics.RecordInboundDocument("duplicate")
		return nil
	}

	parsed, err := domain.ParseDocument(doc.Filename, doc.Payload)
	if err != nil {
		var docErr *domain.DocumentError
		if !errors.As(err, &docErr) {
			return err
		}
		result.Malformed++
		result.Errors = append(result.Errors, docErr.Error())
		s.metrics.RecordInboundDocument("malformed")
		s.logJob(ctx, companyID, bankCode, "document rejected: "+docErr.Reason, map[string]any{
			"filename": doc.Filename,
		}, false)
		return nil
	}

	now := time.Now().UTC()
	ack := &domain.InboundAck{
		ID:          s.genID.Generate(),
		CompanyID:   companyID,
		BankCode:    bankCode,
		Fingerprint: fingerprint,
		Filename:    doc.Filename,
		Payload:     doc.Payload,
		ReceivedAt:  now,
	}

	mappings := make([]domain.AckMapping, 0, len(parsed.Entries))
	for _, entry := range parsed.Entries {
		runID, _ := domain.ParseID(entry.RunID)
		var lineID int64
		if strings.TrimSpace(entry.LineID) != "" {
			lineID, _ = domain.ParseID(entry.LineID)
		}
		mappings = append(mappings, domain.AckMapping{
			ID:          s.genID.Generate(),
			AckID:       ack.ID,
			RunID:       snowflake.ID(runID),
			LineID:      snowflake.ID(lineID),
			StatusCode:  strings.TrimSpace(entry.StatusCode),
			ReasonCode:  strings.TrimSpace(entry.ReasonCode),
			ReasonLabel: strings.TrimSpace(entry.ReasonLabel),
			CreatedAt:   now,
		})
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		inserted, txErr := s.repo.InsertAck(ctx, tx, ack)
		if txErr != nil {
			return txErr
		}
		if !inserted {
			result.Duplicates++
			s.metrics.RecordInboundDocument("duplicate")
			return nil
		}
		if txErr := s.repo.InsertMappings(ctx, tx, mappings); txErr != nil {
			return txErr
		}
		result.Stored++
		s.metrics.RecordInboundDocument("stored")
		return nil
	})
	if err != nil && pkgdb.IsDuplicateKeyErr(err) {
		result.Duplicates++
		s.metrics.RecordInboundDocument("duplicate")
		return nil
	}
	return err
}

func (s *Service) logJob(ctx context.Context, companyID snowflake.ID, bankCode string, detail string, payload map[string]any, success bool) {
	if s.jobLogSvc == nil {
		return
	}
	if err := s.jobLogSvc.LogJob(ctx, companyID, bankCode, joblogdomain.OperationFetch, detail, payload, success); err != nil {
		s.log.Warn("failed to write fetch job log", zap.String("bank_code", bankCode), zap.Error(err))
	}
}
