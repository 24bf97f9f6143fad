package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payrun/internal/paymentrun/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindRun(ctx context.Context, db *gorm.DB, companyID snowflake.ID, runID snowflake.ID) (*domain.PaymentRun, error) {
	var item domain.PaymentRun
	err := db.WithContext(ctx).Raw(
		`SELECT id, company_id, year, month, currency, status, acknowledged_at, failure_reason, created_at, updated_at
		 FROM payment_runs
		 WHERE id = ? AND company_id = ?
		 LIMIT 1`,
		runID,
		companyID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) FindLines(ctx context.Context, db *gorm.DB, runID snowflake.ID) ([]domain.PaymentLine, error) {
	var items []domain.PaymentLine
	err := db.WithContext(ctx).Raw(
		`SELECT id, run_id, supplier_ref, invoice_ref, due_date, gross_amount, pay_amount, currency, status, created_at, updated_at
		 FROM payment_lines
		 WHERE run_id = ?
		 ORDER BY id`,
		runID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) TransitionRun(ctx context.Context, db *gorm.DB, runID snowflake.ID, from, to domain.RunStatus) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE payment_runs
		 SET status = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		to,
		time.Now().UTC(),
		runID,
		from,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) SetAcknowledged(ctx context.Context, db *gorm.DB, runID snowflake.ID) error {
	now := time.Now().UTC()
	if err := db.WithContext(ctx).Exec(
		`UPDATE payment_runs
		 SET acknowledged_at = ?, updated_at = ?
		 WHERE id = ? AND acknowledged_at IS NULL`,
		now,
		now,
		runID,
	).Error; err != nil {
		return err
	}

	return db.WithContext(ctx).Exec(
		`UPDATE payment_runs
		 SET status = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		domain.RunStatusAcknowledged,
		now,
		runID,
		domain.RunStatusDispatched,
	).Error
}

func (r *repo) MarkLinePaid(ctx context.Context, db *gorm.DB, runID snowflake.ID, lineID snowflake.ID) (bool, error) {
	var exists int64
	if err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM payment_lines WHERE id = ? AND run_id = ?`,
		lineID,
		runID,
	).Scan(&exists).Error; err != nil {
		return false, err
	}
	if exists == 0 {
		return false, nil
	}

	return true, db.WithContext(ctx).Exec(
		`UPDATE payment_lines
		 SET status = ?, updated_at = ?
		 WHERE id = ? AND run_id = ? AND status IN (?, ?)`,
		domain.LineStatusPaid,
		time.Now().UTC(),
		lineID,
		runID,
		domain.LineStatusSelected,
		domain.LineStatusDispatched,
	).Error
}

func (r *repo) MarkLineFailed(ctx context.Context, db *gorm.DB, runID snowflake.ID, lineID snowflake.ID) (bool, error) {
	var exists int64
	if err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM payment_lines WHERE id = ? AND run_id = ?`,
		lineID,
		runID,
	).Scan(&exists).Error; err != nil {
		return false, err
	}
	if exists == 0 {
		return false, nil
	}

	return true, db.WithContext(ctx).Exec(
		`UPDATE payment_lines
		 SET status = ?, updated_at = ?
		 WHERE id = ? AND run_id = ? AND status IN (?, ?)`,
		domain.LineStatusFailed,
		time.Now().UTC(),
		lineID,
		runID,
		domain.LineStatusSelected,
		domain.LineStatusDispatched,
	).Error
}

func (r *repo) MarkLinesDispatched(ctx context.Context, db *gorm.DB, runID snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`UPDATE payment_lines
		 SET status = ?, updated_at = ?
		 WHERE run_id = ? AND status = ?`,
		domain.LineStatusDispatched,
		time.Now().UTC(),
		runID,
		domain.LineStatusSelected,
	).Error
}

func (r *repo) ExecuteRunIfSettled(ctx context.Context, db *gorm.DB, runID snowflake.ID) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE payment_runs
		 SET status = ?, updated_at = ?
		 WHERE id = ?
		   AND status IN (?, ?)
		   AND NOT EXISTS (
			SELECT 1 FROM payment_lines
			WHERE run_id = ? AND status <> ?
		   )`,
		domain.RunStatusExecuted,
		time.Now().UTC(),
		runID,
		domain.RunStatusDispatched,
		domain.RunStatusAcknowledged,
		runID,
		domain.LineStatusPaid,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FailRun(ctx context.Context, db *gorm.DB, runID snowflake.ID, reason string) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE payment_runs
		 SET status = ?, failure_reason = ?, updated_at = ?
		 WHERE id = ? AND status IN (?, ?)`,
		domain.RunStatusFailed,
		reason,
		time.Now().UTC(),
		runID,
		domain.RunStatusDispatched,
		domain.RunStatusAcknowledged,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) CountUnpaidLines(ctx context.Context, db *gorm.DB, runID snowflake.ID) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM payment_lines WHERE run_id = ? AND status <> ?`,
		runID,
		domain.LineStatusPaid,
	).Scan(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}
