package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payrun/internal/dispatch/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Find(ctx context.Context, db *gorm.DB, runID snowflake.ID, fingerprint string) (*domain.OutboundDispatch, error) {
	var item domain.OutboundDispatch
	err := db.WithContext(ctx).Raw(
		`SELECT id, run_id, fingerprint, bank_code, filename, payload, status, created_at
		 FROM outbound_dispatches
		 WHERE run_id = ? AND fingerprint = ?
		 LIMIT 1`,
		runID,
		fingerprint,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, dispatch *domain.OutboundDispatch) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO outbound_dispatches (id, run_id, fingerprint, bank_code, filename, payload, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (run_id, fingerprint) DO NOTHING`,
		dispatch.ID,
		dispatch.RunID,
		dispatch.Fingerprint,
		dispatch.BankCode,
		dispatch.Filename,
		dispatch.Payload,
		dispatch.Status,
		dispatch.CreatedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) ListQueued(ctx context.Context, db *gorm.DB, companyID snowflake.ID, bankCode string, limit int) ([]domain.OutboundDispatch, error) {
	var items []domain.OutboundDispatch
	err := db.WithContext(ctx).Raw(
		`SELECT d.id, d.run_id, d.fingerprint, d.bank_code, d.filename, d.payload, d.status, d.created_at
		 FROM outbound_dispatches d
		 JOIN payment_runs r ON r.id = d.run_id
		 WHERE r.company_id = ? AND d.bank_code = ? AND d.status = ?
		 ORDER BY d.id
		 LIMIT ?`,
		companyID,
		bankCode,
		domain.DispatchStatusQueued,
		limit,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) MarkSent(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`UPDATE outbound_dispatches
		 SET status = ?
		 WHERE id = ? AND status = ?`,
		domain.DispatchStatusSent,
		id,
		domain.DispatchStatusQueued,
	).Error
}
