package service

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	inbounddomain "github.com/smallbiznis/payrun/internal/inbound/domain"
	joblogdomain "github.com/smallbiznis/payrun/internal/joblog/domain"
	"github.com/smallbiznis/payrun/internal/observability"
	paymentrundomain "github.com/smallbiznis/payrun/internal/paymentrun/domain"
	reasoncodedomain "github.com/smallbiznis/payrun/internal/reasoncode/domain"
	"github.com/smallbiznis/payrun/internal/reconcile/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const applyBatchSize = 50

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	InboundRepo inbounddomain.Repository
	RunRepo     paymentrundomain.Repository
	ReasonSvc   reasoncodedomain.Service
	JobLogSvc   joblogdomain.Service   `optional:"true"`
	Metrics     *observability.Metrics `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	inboundRepo inbounddomain.Repository
	runRepo     paymentrundomain.Repository
	reasonSvc   reasoncodedomain.Service
	jobLogSvc   joblogdomain.Service
	metrics     *observability.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("reconcile.service"),
		inboundRepo: p.InboundRepo,
		runRepo:     p.RunRepo,
		reasonSvc:   p.ReasonSvc,
		jobLogSvc:   p.JobLogSvc,
		metrics:     p.Metrics,
	}
}

func (s *Service) Apply(ctx context.Context, companyID snowflake.ID) (*domain.ApplyResult, error) {
	if companyID == 0 {
		return nil, domain.ErrInvalidCompany
	}

	acks, err := s.inboundRepo.ListUnconsumed(ctx, s.db, companyID, applyBatchSize)
	if err != nil {
		return nil, err
	}

	result := &domain.ApplyResult{}
	for _, ack := range acks {
		mappings, err := s.inboundRepo.MappingsForAck(ctx, s.db, ack.ID)
		if err != nil {
			return result, err
		}
		for _, mapping := range mappings {
			if err := s.applyMapping(ctx, &ack, mapping, result); err != nil {
				return result, err
			}
		}
		if err := s.inboundRepo.MarkConsumed(ctx, s.db, ack.ID); err != nil {
			return result, err
		}
		result.AcksConsumed++
	}

	if len(acks) > 0 {
		s.logJob(ctx, companyID, "", "reconcile completed", map[string]any{
			"acks_consumed": result.AcksConsumed,
			"applied":       result.Applied,
			"skipped":       result.Skipped,
		}, true)
	}
	return result, nil
}

// applyMapping translates one raw acknowledgment entry into guarded state
// writes. Semantic defects (unknown run or line) are recorded and skipped so
// one bad entry never blocks the rest of the document; storage errors abort.
func (s *Service) applyMapping(ctx context.Context, ack *inbounddomain.InboundAck, mapping inbounddomain.AckMapping, result *domain.ApplyResult) error {
	run, err := s.runRepo.FindRun(ctx, s.db, ack.CompanyID, mapping.RunID)
	if err != nil {
		return err
	}
	if run == nil {
		s.skip(ctx, ack, result, fmt.Sprintf("mapping %d: unknown run %d", mapping.ID.Int64(), mapping.RunID.Int64()))
		return nil
	}

	// Banks that already speak the canonical vocabulary skip the per-bank
	// mapping table; only raw codes go through normalization.
	status := reasoncodedomain.Status(mapping.StatusCode)
	var label string
	if !status.Valid() {
		status, label, err = s.reasonSvc.Normalize(ctx, ack.BankCode, mapping.StatusCode, reasoncodedomain.StatusAck)
		if err != nil {
			return err
		}
	}
	reason := failureReason(mapping, label)

	applied := true
	switch status {
	case reasoncodedomain.StatusAck:
		err = s.runRepo.SetAcknowledged(ctx, s.db, run.ID)

	case reasoncodedomain.StatusPending:
		// The bank has seen the file and not decided yet; nothing moves.

	case reasoncodedomain.StatusExecOK:
		applied, err = s.applyExecOK(ctx, run, mapping)
		if err == nil && !applied {
			s.skip(ctx, ack, result, fmt.Sprintf("mapping %d: unknown line %d", mapping.ID.Int64(), mapping.LineID.Int64()))
			return nil
		}

	case reasoncodedomain.StatusExecFail:
		err = s.applyExecFail(ctx, run, mapping, reason)
	}
	if err != nil {
		return err
	}

	result.Applied++
	s.metrics.RecordMappingApplied(string(status))
	return nil
}

func (s *Service) applyExecOK(ctx context.Context, run *paymentrundomain.PaymentRun, mapping inbounddomain.AckMapping) (bool, error) {
	applied := true
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if mapping.LineID != 0 {
			ok, err := s.runRepo.MarkLinePaid(ctx, tx, run.ID, mapping.LineID)
			if err != nil {
				return err
			}
			if !ok {
				applied = false
				return nil
			}
		} else {
			// Run-level execution confirmation settles every remaining line.
			lines, err := s.runRepo.FindLines(ctx, tx, run.ID)
			if err != nil {
				return err
			}
			for _, line := range lines {
				if _, err := s.runRepo.MarkLinePaid(ctx, tx, run.ID, line.ID); err != nil {
					return err
				}
			}
		}
		_, err := s.runRepo.ExecuteRunIfSettled(ctx, tx, run.ID)
		return err
	})
	return applied, err
}

// applyExecFail fails the whole run: a rejected line means the batch the bank
// received no longer matches what operators approved, so the remediation is a
// corrected re-export rather than a partial retry.
func (s *Service) applyExecFail(ctx context.Context, run *paymentrundomain.PaymentRun, mapping inbounddomain.AckMapping, reason string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if mapping.LineID != 0 {
			if _, err := s.runRepo.MarkLineFailed(ctx, tx, run.ID, mapping.LineID); err != nil {
				return err
			}
		}
		_, err := s.runRepo.FailRun(ctx, tx, run.ID, reason)
		return err
	})
}

func (s *Service) skip(ctx context.Context, ack *inbounddomain.InboundAck, result *domain.ApplyResult, detail string) {
	result.Skipped++
	result.Errors = append(result.Errors, detail)
	s.log.Warn("skipping acknowledgment mapping",
		zap.String("bank_code", ack.BankCode),
		zap.String("filename", ack.Filename),
		zap.String("detail", detail),
	)
	s.logJob(ctx, ack.CompanyID, ack.BankCode, detail, map[string]any{"filename": ack.Filename}, false)
}

func (s *Service) logJob(ctx context.Context, companyID snowflake.ID, bankCode string, detail string, payload map[string]any, success bool) {
	if s.jobLogSvc == nil {
		return
	}
	if err := s.jobLogSvc.LogJob(ctx, companyID, bankCode, joblogdomain.OperationReconcile, detail, payload, success); err != nil {
		s.log.Warn("failed to write reconcile job log", zap.Error(err))
	}
}

func failureReason(mapping inbounddomain.AckMapping, label string) string {
	switch {
	case label != "":
		return label
	case mapping.ReasonLabel != "":
		return mapping.ReasonLabel
	case mapping.ReasonCode != "":
		return mapping.ReasonCode
	default:
		return mapping.StatusCode
	}
}
