package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payrun/internal/bankprofile/domain"
	pkgdb "github.com/smallbiznis/payrun/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Find(ctx context.Context, db *gorm.DB, companyID snowflake.ID, bankCode string) (*domain.BankProfile, error) {
	var item domain.BankProfile
	err := db.WithContext(ctx).Raw(
		`SELECT id, company_id, bank_code, channel_kind, config, is_active, updated_by, created_at, updated_at
		 FROM bank_profiles
		 WHERE company_id = ? AND bank_code = ?
		 LIMIT 1`,
		companyID,
		bankCode,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, companyID snowflake.ID) ([]domain.BankProfile, error) {
	var items []domain.BankProfile
	err := db.WithContext(ctx).Raw(
		`SELECT id, company_id, bank_code, channel_kind, config, is_active, updated_by, created_at, updated_at
		 FROM bank_profiles
		 WHERE company_id = ?
		 ORDER BY bank_code`,
		companyID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListActive(ctx context.Context, db *gorm.DB) ([]domain.BankProfile, error) {
	var items []domain.BankProfile
	err := db.WithContext(ctx).Raw(
		`SELECT id, company_id, bank_code, channel_kind, config, is_active, updated_by, created_at, updated_at
		 FROM bank_profiles
		 WHERE is_active = ?
		 ORDER BY company_id, bank_code`,
		true,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) Upsert(ctx context.Context, db *gorm.DB, profile *domain.BankProfile) error {
	updated, err := r.update(ctx, db, profile)
	if err != nil || updated {
		return err
	}

	err = db.WithContext(ctx).Exec(
		`INSERT INTO bank_profiles (id, company_id, bank_code, channel_kind, config, is_active, updated_by, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		profile.ID,
		profile.CompanyID,
		profile.BankCode,
		profile.ChannelKind,
		profile.Config,
		profile.IsActive,
		profile.UpdatedBy,
		profile.CreatedAt,
		profile.UpdatedAt,
	).Error
	if err == nil {
		return nil
	}
	if !pkgdb.IsDuplicateKeyErr(err) {
		return err
	}

	// Lost the race against a concurrent upsert of the same connection; the
	// row exists now, so the update applies.
	if _, err := r.update(ctx, db, profile); err != nil {
		return err
	}
	return nil
}

func (r *repo) update(ctx context.Context, db *gorm.DB, profile *domain.BankProfile) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE bank_profiles
		 SET channel_kind = ?, config = ?, updated_by = ?, updated_at = ?
		 WHERE company_id = ? AND bank_code = ?`,
		profile.ChannelKind,
		profile.Config,
		profile.UpdatedBy,
		profile.UpdatedAt,
		profile.CompanyID,
		profile.BankCode,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, companyID snowflake.ID, bankCode string, isActive bool, actor string) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE bank_profiles
		 SET is_active = ?, updated_by = ?, updated_at = ?
		 WHERE company_id = ? AND bank_code = ?`,
		isActive,
		actor,
		time.Now().UTC(),
		companyID,
		bankCode,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
