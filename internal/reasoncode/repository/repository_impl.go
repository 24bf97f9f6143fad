package repository

import (
	"context"

	"github.com/smallbiznis/payrun/internal/reasoncode/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Find(ctx context.Context, db *gorm.DB, bankCode string, rawCode string) (*domain.NormEntry, error) {
	var item domain.NormEntry
	err := db.WithContext(ctx).Raw(
		`SELECT id, bank_code, raw_code, status, label, created_at
		 FROM reason_code_map
		 WHERE bank_code = ? AND raw_code = ?
		 LIMIT 1`,
		bankCode,
		rawCode,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) Upsert(ctx context.Context, db *gorm.DB, entry *domain.NormEntry) error {
	res := db.WithContext(ctx).Exec(
		`UPDATE reason_code_map
		 SET status = ?, label = ?
		 WHERE bank_code = ? AND raw_code = ?`,
		entry.Status,
		entry.Label,
		entry.BankCode,
		entry.RawCode,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}

	return db.WithContext(ctx).Exec(
		`INSERT INTO reason_code_map (id, bank_code, raw_code, status, label, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.BankCode,
		entry.RawCode,
		entry.Status,
		entry.Label,
		entry.CreatedAt,
	).Error
}
