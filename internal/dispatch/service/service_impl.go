package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	bankprofiledomain "github.com/smallbiznis/payrun/internal/bankprofile/domain"
	"github.com/smallbiznis/payrun/internal/channel"
	channeldomain "github.com/smallbiznis/payrun/internal/channel/domain"
	"github.com/smallbiznis/payrun/internal/config"
	"github.com/smallbiznis/payrun/internal/dispatch/builder"
	"github.com/smallbiznis/payrun/internal/dispatch/domain"
	joblogdomain "github.com/smallbiznis/payrun/internal/joblog/domain"
	"github.com/smallbiznis/payrun/internal/observability"
	paymentrundomain "github.com/smallbiznis/payrun/internal/paymentrun/domain"
	pkgdb "github.com/smallbiznis/payrun/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const deliverBatchSize = 50

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Cfg        config.Config
	Repo       domain.Repository
	RunRepo    paymentrundomain.Repository
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
	runRepo    paymentrundomain.Repository
	profileSvc bankprofiledomain.Service
	channels   *channel.Registry
	jobLogSvc  joblogdomain.Service
	metrics    *observability.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("dispatch.service"),
		genID:      p.GenID,
		cfg:        p.Cfg,
		repo:       p.Repo,
		runRepo:    p.RunRepo,
		profileSvc: p.ProfileSvc,
		channels:   p.Channels,
		jobLogSvc:  p.JobLogSvc,
		metrics:    p.Metrics,
	}
}

// Dispatch renders the run, then decides by fingerprint: an existing
// (run, fingerprint) row is a replay and comes back unchanged, a new
// fingerprint queues a fresh outbox row and advances the run. The replay
// lookup runs before the status guard so repeated calls with unchanged
// content stay idempotent after the run left EXPORTED.
func (s *Service) Dispatch(ctx context.Context, req domain.DispatchRequest) (*domain.DispatchResult, error) {
	if req.CompanyID == 0 || req.RunID == 0 {
		return nil, domain.ErrInvalidRequest
	}
	bankCode := strings.ToUpper(strings.TrimSpace(req.BankCode))
	if bankCode == "" {
		return nil, domain.ErrInvalidRequest
	}

	// Connectivity is checked up front; delivery itself happens from the
	// outbox, so dispatch never blocks on the bank endpoint.
	if _, err := s.profileSvc.GetActive(ctx, req.CompanyID, bankCode); err != nil {
		s.logJob(ctx, req.CompanyID, bankCode, "dispatch rejected: no active profile", s.runPayload(req.RunID, nil), false)
		s.metrics.RecordDispatch("rejected")
		return nil, err
	}

	run, err := s.runRepo.FindRun(ctx, s.db, req.CompanyID, req.RunID)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, paymentrundomain.ErrRunNotFound
	}

	lines, err := s.runRepo.FindLines(ctx, s.db, run.ID)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		s.logJob(ctx, req.CompanyID, bankCode, "dispatch rejected: run has no lines", s.runPayload(run.ID, nil), false)
		s.metrics.RecordDispatch("rejected")
		return nil, paymentrundomain.ErrNoLines
	}

	rendered, err := builder.Render(run, lines, bankCode)
	if err != nil {
		return nil, err
	}

	existing, err := s.repo.Find(ctx, s.db, run.ID, rendered.Fingerprint)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		s.logJob(ctx, req.CompanyID, bankCode, "dispatch replayed", s.runPayload(run.ID, rendered), true)
		s.metrics.RecordDispatch("replayed")
		return &domain.DispatchResult{
			Dispatch:  existing,
			RunStatus: string(run.Status),
			Replayed:  true,
		}, nil
	}

	if run.Status != paymentrundomain.RunStatusExported {
		s.logJob(ctx, req.CompanyID, bankCode, "dispatch rejected: run not exported", s.runPayload(run.ID, rendered), false)
		s.metrics.RecordDispatch("rejected")
		return nil, &paymentrundomain.IllegalTransitionError{
			RunID:    run.ID.Int64(),
			Required: paymentrundomain.RunStatusExported,
			Actual:   run.Status,
		}
	}

	if req.DryRun {
		s.logJob(ctx, req.CompanyID, bankCode, "dispatch dry run", s.runPayload(run.ID, rendered), true)
		return &domain.DispatchResult{
			RunStatus:   string(run.Status),
			DryRun:      true,
			Filename:    rendered.Filename,
			Fingerprint: rendered.Fingerprint,
			LineCount:   rendered.LineCount,
		}, nil
	}

	row := &domain.OutboundDispatch{
		ID:          s.genID.Generate(),
		RunID:       run.ID,
		Fingerprint: rendered.Fingerprint,
		BankCode:    bankCode,
		Filename:    rendered.Filename,
		Payload:     rendered.Payload,
		Status:      domain.DispatchStatusQueued,
		CreatedAt:   time.Now().UTC(),
	}

	var inserted bool
	err = s.db.Transaction(func(tx *gorm.DB) error {
		var txErr error
		inserted, txErr = s.repo.Insert(ctx, tx, row)
		if txErr != nil {
			return txErr
		}
		if !inserted {
			return nil
		}
		if _, txErr = s.runRepo.TransitionRun(ctx, tx, run.ID, paymentrundomain.RunStatusExported, paymentrundomain.RunStatusDispatched); txErr != nil {
			return txErr
		}
		return s.runRepo.MarkLinesDispatched(ctx, tx, run.ID)
	})
	if err != nil {
		if !pkgdb.IsDuplicateKeyErr(err) {
			return nil, err
		}
		inserted = false
	}

	if !inserted {
		// Lost the race against a concurrent dispatch of the same content.
		stored, findErr := s.repo.Find(ctx, s.db, run.ID, rendered.Fingerprint)
		if findErr != nil {
			return nil, findErr
		}
		s.logJob(ctx, req.CompanyID, bankCode, "dispatch replayed", s.runPayload(run.ID, rendered), true)
		s.metrics.RecordDispatch("replayed")
		return &domain.DispatchResult{
			Dispatch:  stored,
			RunStatus: string(paymentrundomain.RunStatusDispatched),
			Replayed:  true,
		}, nil
	}

	s.logJob(ctx, req.CompanyID, bankCode, "run dispatched", s.runPayload(run.ID, rendered), true)
	s.metrics.RecordDispatch("dispatched")
	s.log.Info("run dispatched",
		zap.Int64("run_id", run.ID.Int64()),
		zap.String("bank_code", bankCode),
		zap.String("fingerprint", rendered.Fingerprint),
		zap.Int("line_count", rendered.LineCount),
	)

	return &domain.DispatchResult{
		Dispatch:  row,
		RunStatus: string(paymentrundomain.RunStatusDispatched),
	}, nil
}

// DeliverQueued drains the queued outbox rows for one bank connection. Rows
// stay queued until the channel accepts the file, so a transport failure here
// is retried on the next scheduler pass without touching run state.
func (s *Service) DeliverQueued(ctx context.Context, companyID snowflake.ID, bankCode string) (int, error) {
	bankCode = strings.ToUpper(strings.TrimSpace(bankCode))
	if companyID == 0 || bankCode == "" {
		return 0, domain.ErrInvalidRequest
	}

	profile, err := s.profileSvc.GetActive(ctx, companyID, bankCode)
	if err != nil {
		return 0, err
	}
	decoded, err := profile.DecodedConfig()
	if err != nil {
		return 0, err
	}

	ch, err := s.channels.NewChannel(profile.ChannelKind, channeldomain.Config{
		CompanyID: companyID,
		BankCode:  bankCode,
		Config:    decoded,
		Timeout:   s.cfg.ChannelTimeout,
	})
	if err != nil {
		return 0, err
	}

	rows, err := s.repo.ListQueued(ctx, s.db, companyID, bankCode, deliverBatchSize)
	if err != nil {
		return 0, err
	}

	delivered := 0
	for _, row := range rows {
		if err := ch.Deliver(ctx, row.Filename, row.Payload); err != nil {
			s.logJob(ctx, companyID, bankCode, "delivery failed: "+err.Error(), map[string]any{
				"filename": row.Filename,
			}, false)
			return delivered, err
		}
		if err := s.repo.MarkSent(ctx, s.db, row.ID); err != nil {
			return delivered, err
		}
		delivered++
	}

	if delivered > 0 {
		s.logJob(ctx, companyID, bankCode, "queued dispatches delivered", map[string]any{
			"delivered": delivered,
		}, true)
	}
	return delivered, nil
}

func (s *Service) runPayload(runID snowflake.ID, rendered *builder.Rendered) map[string]any {
	payload := map[string]any{"run_id": runID.String()}
	if rendered != nil {
		payload["fingerprint"] = rendered.Fingerprint
		payload["filename"] = rendered.Filename
		payload["line_count"] = rendered.LineCount
	}
	return payload
}

func (s *Service) logJob(ctx context.Context, companyID snowflake.ID, bankCode string, detail string, payload map[string]any, success bool) {
	if s.jobLogSvc == nil {
		return
	}
	if err := s.jobLogSvc.LogJob(ctx, companyID, bankCode, joblogdomain.OperationDispatch, detail, payload, success); err != nil {
		s.log.Warn("failed to write dispatch job log", zap.String("bank_code", bankCode), zap.Error(err))
	}
}
