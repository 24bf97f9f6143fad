package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/payrun/internal/bankprofile/domain"
	pkgdb "github.com/smallbiznis/payrun/pkg/db"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func setupProfileRepo(t *testing.T) (domain.Repository, *gorm.DB, *snowflake.Node) {
	t.Helper()

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_loc=auto", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	_ = db.Exec("PRAGMA busy_timeout = 5000").Error

	if err := db.Exec(`CREATE TABLE bank_profiles (
		id BIGINT PRIMARY KEY,
		company_id BIGINT NOT NULL,
		bank_code TEXT NOT NULL,
		channel_kind TEXT NOT NULL,
		config JSON NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		updated_by TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`).Error; err != nil {
		t.Fatalf("create bank_profiles: %v", err)
	}
	if err := db.Exec(`CREATE UNIQUE INDEX ux_bank_profiles_company_bank
		ON bank_profiles (company_id, bank_code)`).Error; err != nil {
		t.Fatalf("create profile index: %v", err)
	}

	return Provide(), db, node
}

func testProfile(node *snowflake.Node, companyID snowflake.ID, host string) *domain.BankProfile {
	now := time.Now().UTC()
	return &domain.BankProfile{
		ID:          node.Generate(),
		CompanyID:   companyID,
		BankCode:    "DBSSG",
		ChannelKind: domain.ChannelKindSFTP,
		Config:      datatypes.JSON([]byte(fmt.Sprintf(`{"host":%q}`, host))),
		IsActive:    true,
		UpdatedBy:   "payops",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestUpsertRecoversFromInsertRace(t *testing.T) {
	repo, db, node := setupProfileRepo(t)
	ctx := context.Background()
	companyID := node.Generate()

	original := testProfile(node, companyID, "sftp-a.bank.example")
	if err := repo.Upsert(ctx, db, original); err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	// The error a concurrent upsert's INSERT hits on the unique index must be
	// recognized as a duplicate so it is retried as an update, not surfaced.
	contender := testProfile(node, companyID, "sftp-b.bank.example")
	rawErr := db.Exec(
		`INSERT INTO bank_profiles (id, company_id, bank_code, channel_kind, config, is_active, updated_by, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		contender.ID, contender.CompanyID, contender.BankCode, contender.ChannelKind,
		contender.Config, contender.IsActive, contender.UpdatedBy, contender.CreatedAt, contender.UpdatedAt,
	).Error
	if !pkgdb.IsDuplicateKeyErr(rawErr) {
		t.Fatalf("expected duplicate key classification, got %v", rawErr)
	}

	if err := repo.Upsert(ctx, db, contender); err != nil {
		t.Fatalf("contending upsert: %v", err)
	}

	var count int64
	if err := db.Raw(`SELECT COUNT(1) FROM bank_profiles WHERE company_id = ?`, companyID).Scan(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected single row per connection, got %d", count)
	}

	stored, err := repo.Find(ctx, db, companyID, "DBSSG")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if stored == nil || stored.ID != original.ID {
		t.Fatalf("expected original row to survive, got %+v", stored)
	}
	if string(stored.Config) != string(contender.Config) {
		t.Fatalf("expected contender config to win, got %s", stored.Config)
	}
}
