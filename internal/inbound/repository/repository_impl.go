package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payrun/internal/inbound/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindAck(ctx context.Context, db *gorm.DB, companyID snowflake.ID, bankCode string, fingerprint string) (*domain.InboundAck, error) {
	var item domain.InboundAck
	err := db.WithContext(ctx).Raw(
		`SELECT id, company_id, bank_code, fingerprint, filename, payload, received_at, consumed_at
		 FROM inbound_acks
		 WHERE company_id = ? AND bank_code = ? AND fingerprint = ?
		 LIMIT 1`,
		companyID,
		bankCode,
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

func (r *repo) InsertAck(ctx context.Context, db *gorm.DB, ack *domain.InboundAck) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO inbound_acks (id, company_id, bank_code, fingerprint, filename, payload, received_at, consumed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, NULL)
		 ON CONFLICT (company_id, bank_code, fingerprint) DO NOTHING`,
		ack.ID,
		ack.CompanyID,
		ack.BankCode,
		ack.Fingerprint,
		ack.Filename,
		ack.Payload,
		ack.ReceivedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) InsertMappings(ctx context.Context, db *gorm.DB, mappings []domain.AckMapping) error {
	for _, mapping := range mappings {
		if err := db.WithContext(ctx).Exec(
			`INSERT INTO ack_mappings (id, ack_id, run_id, line_id, status_code, reason_code, reason_label, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			mapping.ID,
			mapping.AckID,
			mapping.RunID,
			mapping.LineID,
			mapping.StatusCode,
			mapping.ReasonCode,
			mapping.ReasonLabel,
			mapping.CreatedAt,
		).Error; err != nil {
			return err
		}
	}
	return nil
}

func (r *repo) ListUnconsumed(ctx context.Context, db *gorm.DB, companyID snowflake.ID, limit int) ([]domain.InboundAck, error) {
	var items []domain.InboundAck
	err := db.WithContext(ctx).Raw(
		`SELECT id, company_id, bank_code, fingerprint, filename, payload, received_at, consumed_at
		 FROM inbound_acks
		 WHERE company_id = ? AND consumed_at IS NULL
		 ORDER BY id
		 LIMIT ?`,
		companyID,
		limit,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) MappingsForAck(ctx context.Context, db *gorm.DB, ackID snowflake.ID) ([]domain.AckMapping, error) {
	var items []domain.AckMapping
	err := db.WithContext(ctx).Raw(
		`SELECT id, ack_id, run_id, line_id, status_code, reason_code, reason_label, created_at
		 FROM ack_mappings
		 WHERE ack_id = ?
		 ORDER BY id`,
		ackID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) MarkConsumed(ctx context.Context, db *gorm.DB, ackID snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`UPDATE inbound_acks
		 SET consumed_at = ?
		 WHERE id = ? AND consumed_at IS NULL`,
		time.Now().UTC(),
		ackID,
	).Error
}
