package repository

import (
	"context"

	"github.com/smallbiznis/payrun/internal/joblog/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, entry *domain.JobLogEntry) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO job_logs (id, company_id, bank_code, operation, detail, payload, success, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.CompanyID,
		entry.BankCode,
		entry.Operation,
		entry.Detail,
		entry.Payload,
		entry.Success,
		entry.CreatedAt,
	).Error
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]domain.JobLogEntry, error) {
	query := `SELECT id, company_id, bank_code, operation, detail, payload, success, created_at
		 FROM job_logs
		 WHERE company_id = ?`
	args := []any{filter.CompanyID}

	if filter.BankCode != "" {
		query += ` AND bank_code = ?`
		args = append(args, filter.BankCode)
	}
	if filter.Operation != "" {
		query += ` AND operation = ?`
		args = append(args, filter.Operation)
	}
	if filter.BeforeID != 0 {
		query += ` AND id < ?`
		args = append(args, filter.BeforeID)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, filter.Limit)

	var items []domain.JobLogEntry
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}
