package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	bankprofiledomain "github.com/smallbiznis/payrun/internal/bankprofile/domain"
	"github.com/smallbiznis/payrun/internal/clock"
	"github.com/smallbiznis/payrun/internal/config"
	dispatchdomain "github.com/smallbiznis/payrun/internal/dispatch/domain"
	inbounddomain "github.com/smallbiznis/payrun/internal/inbound/domain"
	"github.com/smallbiznis/payrun/internal/observability"
	reconciledomain "github.com/smallbiznis/payrun/internal/reconcile/domain"
	"github.com/smallbiznis/payrun/internal/scheduler/guard"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const jobTimeout = 30 * time.Second

var ErrInvalidConfig = errors.New("scheduler_invalid_config")

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	Cfg          config.Config
	Clock        clock.Clock
	ProfileRepo  bankprofiledomain.Repository
	DispatchSvc  dispatchdomain.Service
	InboundSvc   inbounddomain.Service
	ReconcileSvc reconciledomain.Service
	Locker       *guard.Locker          `optional:"true"`
	Metrics      *observability.Metrics `optional:"true"`
}

// Scheduler drives the background side of the exchange: delivering queued
// instruction files, pulling acknowledgment documents, and applying them to
// run state. Each pass walks every active bank connection.
type Scheduler struct {
	db           *gorm.DB
	log          *zap.Logger
	cfg          config.SchedulerConfig
	clock        clock.Clock
	profileRepo  bankprofiledomain.Repository
	dispatchSvc  dispatchdomain.Service
	inboundSvc   inbounddomain.Service
	reconcileSvc reconciledomain.Service
	locker       *guard.Locker
	metrics      *observability.Metrics
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.Clock == nil || p.ProfileRepo == nil || p.DispatchSvc == nil || p.InboundSvc == nil || p.ReconcileSvc == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		db:           p.DB,
		log:          p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:          p.Cfg.Scheduler.WithDefaults(),
		clock:        p.Clock,
		profileRepo:  p.ProfileRepo,
		dispatchSvc:  p.DispatchSvc,
		inboundSvc:   p.InboundSvc,
		reconcileSvc: p.ReconcileSvc,
		locker:       p.Locker,
		metrics:      p.Metrics,
	}, nil
}

// runJob wraps one job pass with a timeout, the optional distributed lock,
// and duration metrics. A pass that cannot take the lock is not an error;
// another replica is doing the work.
func (s *Scheduler) runJob(parent context.Context, name string, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(parent, jobTimeout)
	defer cancel()

	if s.locker != nil {
		key := "payrun:job:" + name
		token, ok, err := s.locker.TryLock(ctx, key, jobTimeout)
		if err != nil {
			s.log.Warn("job lock unavailable", zap.String("job", name), zap.Error(err))
		} else if !ok {
			s.log.Debug("job held by another replica", zap.String("job", name))
			return nil
		} else {
			defer func() {
				if err := s.locker.Release(ctx, key, token); err != nil {
					s.log.Warn("job lock release failed", zap.String("job", name), zap.Error(err))
				}
			}()
		}
	}

	start := s.clock.Now()
	err := fn(ctx)
	s.metrics.ObserveJobDuration(name, time.Since(start))

	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		s.log.Warn("job timed out", zap.String("job", name), zap.Error(err))
		return nil
	}
	return fmt.Errorf("%s: %w", name, err)
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error
	err = errors.Join(err, s.runJob(parent, "deliver", s.DeliverJob))
	err = errors.Join(err, s.runJob(parent, "fetch", s.FetchJob))
	err = errors.Join(err, s.runJob(parent, "apply", s.ApplyJob))
	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	fetchTicker := time.NewTicker(s.cfg.FetchInterval)
	defer fetchTicker.Stop()
	applyTicker := time.NewTicker(s.cfg.ApplyInterval)
	defer applyTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-fetchTicker.C:
			if err := s.runJob(ctx, "deliver", s.DeliverJob); err != nil {
				s.log.Warn("deliver pass failed", zap.Error(err))
			}
			if err := s.runJob(ctx, "fetch", s.FetchJob); err != nil {
				s.log.Warn("fetch pass failed", zap.Error(err))
			}
		case <-applyTicker.C:
			if err := s.runJob(ctx, "apply", s.ApplyJob); err != nil {
				s.log.Warn("apply pass failed", zap.Error(err))
			}
		}
	}
}

// DeliverJob drains queued outbound dispatches for every active connection.
func (s *Scheduler) DeliverJob(ctx context.Context) error {
	profiles, err := s.profileRepo.ListActive(ctx, s.db)
	if err != nil {
		return err
	}

	var jobErr error
	for _, profile := range profiles {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		delivered, err := s.dispatchSvc.DeliverQueued(ctx, profile.CompanyID, profile.BankCode)
		if err != nil {
			jobErr = errors.Join(jobErr, err)
			s.log.Warn("deliver failed",
				zap.Int64("company_id", profile.CompanyID.Int64()),
				zap.String("bank_code", profile.BankCode),
				zap.Error(err),
			)
			continue
		}
		if delivered > 0 {
			s.log.Info("delivered queued dispatches",
				zap.Int64("company_id", profile.CompanyID.Int64()),
				zap.String("bank_code", profile.BankCode),
				zap.Int("delivered", delivered),
			)
		}
	}
	return jobErr
}

// FetchJob pulls pending acknowledgment documents for every active connection.
func (s *Scheduler) FetchJob(ctx context.Context) error {
	profiles, err := s.profileRepo.ListActive(ctx, s.db)
	if err != nil {
		return err
	}

	var jobErr error
	for _, profile := range profiles {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if _, err := s.inboundSvc.Fetch(ctx, profile.CompanyID, profile.BankCode, s.cfg.MaxDocuments); err != nil {
			jobErr = errors.Join(jobErr, err)
			s.log.Warn("fetch failed",
				zap.Int64("company_id", profile.CompanyID.Int64()),
				zap.String("bank_code", profile.BankCode),
				zap.Error(err),
			)
		}
	}
	return jobErr
}

// ApplyJob reconciles stored acknowledgments for every company that has at
// least one active connection.
func (s *Scheduler) ApplyJob(ctx context.Context) error {
	profiles, err := s.profileRepo.ListActive(ctx, s.db)
	if err != nil {
		return err
	}

	seen := map[snowflake.ID]bool{}
	var jobErr error
	for _, profile := range profiles {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if seen[profile.CompanyID] {
			continue
		}
		seen[profile.CompanyID] = true
		if _, err := s.reconcileSvc.Apply(ctx, profile.CompanyID); err != nil {
			jobErr = errors.Join(jobErr, err)
			s.log.Warn("apply failed",
				zap.Int64("company_id", profile.CompanyID.Int64()),
				zap.Error(err),
			)
		}
	}
	return jobErr
}
