package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	bankprofiledomain "github.com/smallbiznis/payrun/internal/bankprofile/domain"
	"github.com/smallbiznis/payrun/internal/channel"
	"github.com/smallbiznis/payrun/internal/channel/sftpchannel"
	"github.com/smallbiznis/payrun/internal/config"
	"github.com/smallbiznis/payrun/internal/dispatch/domain"
	dispatchrepository "github.com/smallbiznis/payrun/internal/dispatch/repository"
	paymentrundomain "github.com/smallbiznis/payrun/internal/paymentrun/domain"
	paymentrunrepository "github.com/smallbiznis/payrun/internal/paymentrun/repository"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

type profileStub struct {
	profile *bankprofiledomain.BankProfile
	err     error
}

func (s *profileStub) Upsert(ctx context.Context, req bankprofiledomain.UpsertRequest) (*bankprofiledomain.BankProfile, error) {
	return nil, nil
}

func (s *profileStub) Get(ctx context.Context, companyID snowflake.ID, bankCode string) (*bankprofiledomain.BankProfile, error) {
	return s.profile, s.err
}

func (s *profileStub) List(ctx context.Context, companyID snowflake.ID) ([]bankprofiledomain.BankProfile, error) {
	return nil, nil
}

func (s *profileStub) SetActive(ctx context.Context, companyID snowflake.ID, bankCode string, isActive bool, actor string) (*bankprofiledomain.BankProfile, error) {
	return nil, nil
}

func (s *profileStub) GetActive(ctx context.Context, companyID snowflake.ID, bankCode string) (*bankprofiledomain.BankProfile, error) {
	return s.profile, s.err
}

func setupDispatchService(t *testing.T, node *snowflake.Node, profileSvc bankprofiledomain.Service) (domain.Service, *gorm.DB) {
	t.Helper()

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
	_ = db.Exec("PRAGMA journal_mode = WAL").Error
	prepareDispatchSchema(t, db)

	svc := NewService(Params{
		DB:         db,
		Log:        zap.NewNop(),
		GenID:      node,
		Cfg:        config.Config{ChannelTimeout: time.Second},
		Repo:       dispatchrepository.Provide(),
		RunRepo:    paymentrunrepository.Provide(),
		ProfileSvc: profileSvc,
		Channels:   channel.NewRegistry(sftpchannel.NewFactory()),
	})
	return svc, db
}

func prepareDispatchSchema(t *testing.T, db *gorm.DB) {
	t.Helper()
	if err := db.Exec(`CREATE TABLE payment_runs (
		id BIGINT PRIMARY KEY,
		company_id BIGINT NOT NULL,
		year INTEGER NOT NULL,
		month INTEGER NOT NULL,
		currency TEXT NOT NULL,
		status TEXT NOT NULL,
		acknowledged_at DATETIME,
		failure_reason TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`).Error; err != nil {
		t.Fatalf("create payment_runs: %v", err)
	}
	if err := db.Exec(`CREATE TABLE payment_lines (
		id BIGINT PRIMARY KEY,
		run_id BIGINT NOT NULL,
		supplier_ref TEXT NOT NULL,
		invoice_ref TEXT NOT NULL,
		due_date DATETIME NOT NULL,
		gross_amount BIGINT NOT NULL,
		pay_amount BIGINT NOT NULL,
		currency TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`).Error; err != nil {
		t.Fatalf("create payment_lines: %v", err)
	}
	if err := db.Exec(`CREATE TABLE outbound_dispatches (
		id BIGINT PRIMARY KEY,
		run_id BIGINT NOT NULL,
		fingerprint TEXT NOT NULL,
		bank_code TEXT NOT NULL,
		filename TEXT NOT NULL,
		payload BLOB NOT NULL,
		status TEXT NOT NULL,
		created_at DATETIME NOT NULL
	)`).Error; err != nil {
		t.Fatalf("create outbound_dispatches: %v", err)
	}
	if err := db.Exec(`CREATE UNIQUE INDEX ux_outbound_dispatches_run_fingerprint
		ON outbound_dispatches (run_id, fingerprint)`).Error; err != nil {
		t.Fatalf("create dispatch index: %v", err)
	}
}

func seedRun(t *testing.T, db *gorm.DB, node *snowflake.Node, companyID snowflake.ID, status paymentrundomain.RunStatus, lineCount int) (snowflake.ID, []snowflake.ID) {
	t.Helper()
	now := time.Now().UTC()
	runID := node.Generate()
	if err := db.Exec(
		`INSERT INTO payment_runs (id, company_id, year, month, currency, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, companyID, 2026, 3, "SGD", status, now, now,
	).Error; err != nil {
		t.Fatalf("seed run: %v", err)
	}

	lineIDs := make([]snowflake.ID, 0, lineCount)
	for i := 0; i < lineCount; i++ {
		lineID := node.Generate()
		if err := db.Exec(
			`INSERT INTO payment_lines (id, run_id, supplier_ref, invoice_ref, due_date, gross_amount, pay_amount, currency, status, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			lineID, runID,
			fmt.Sprintf("SUP-%03d", i+1),
			fmt.Sprintf("INV-%04d", i+1),
			now.AddDate(0, 0, 20), int64(100000), int64(95000), "SGD",
			paymentrundomain.LineStatusSelected, now, now,
		).Error; err != nil {
			t.Fatalf("seed line: %v", err)
		}
		lineIDs = append(lineIDs, lineID)
	}
	return runID, lineIDs
}

func activeProfile(node *snowflake.Node, companyID snowflake.ID, inboundDir, outboundDir string) *bankprofiledomain.BankProfile {
	raw, _ := json.Marshal(map[string]any{
		"inbound_dir":  inboundDir,
		"outbound_dir": outboundDir,
	})
	return &bankprofiledomain.BankProfile{
		ID:          node.Generate(),
		CompanyID:   companyID,
		BankCode:    "DBSSG",
		ChannelKind: bankprofiledomain.ChannelKindSFTP,
		Config:      datatypes.JSON(raw),
		IsActive:    true,
	}
}

func runStatus(t *testing.T, db *gorm.DB, runID snowflake.ID) string {
	t.Helper()
	var status string
	if err := db.Raw(`SELECT status FROM payment_runs WHERE id = ?`, runID).Scan(&status).Error; err != nil {
		t.Fatalf("run status: %v", err)
	}
	return status
}

func countDispatches(t *testing.T, db *gorm.DB) int {
	t.Helper()
	var count int
	if err := db.Raw(`SELECT COUNT(1) FROM outbound_dispatches`).Scan(&count).Error; err != nil {
		t.Fatalf("count dispatches: %v", err)
	}
	return count
}

func mustNode(t *testing.T) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	return node
}

func TestDispatchQueuesRun(t *testing.T) {
	node := mustNode(t)
	companyID := node.Generate()
	profile := activeProfile(node, companyID, t.TempDir(), t.TempDir())
	svc, db := setupDispatchService(t, node, &profileStub{profile: profile})
	runID, _ := seedRun(t, db, node, companyID, paymentrundomain.RunStatusExported, 2)

	result, err := svc.Dispatch(context.Background(), domain.DispatchRequest{
		CompanyID: companyID,
		RunID:     runID,
		BankCode:  "DBSSG",
	})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if result.Replayed {
		t.Fatal("expected fresh dispatch, got replay")
	}
	if result.RunStatus != string(paymentrundomain.RunStatusDispatched) {
		t.Fatalf("expected run status DISPATCHED, got %s", result.RunStatus)
	}
	if result.Dispatch == nil || result.Dispatch.Status != domain.DispatchStatusQueued {
		t.Fatalf("expected queued dispatch row, got %+v", result.Dispatch)
	}

	if got := runStatus(t, db, runID); got != string(paymentrundomain.RunStatusDispatched) {
		t.Fatalf("expected stored run status DISPATCHED, got %s", got)
	}
	if count := countDispatches(t, db); count != 1 {
		t.Fatalf("expected 1 dispatch row, got %d", count)
	}

	var lineStatuses []string
	if err := db.Raw(`SELECT status FROM payment_lines WHERE run_id = ?`, runID).Scan(&lineStatuses).Error; err != nil {
		t.Fatalf("line statuses: %v", err)
	}
	for _, status := range lineStatuses {
		if status != string(paymentrundomain.LineStatusDispatched) {
			t.Fatalf("expected dispatched lines, got %s", status)
		}
	}
}

func TestDispatchReplaySameContent(t *testing.T) {
	node := mustNode(t)
	companyID := node.Generate()
	profile := activeProfile(node, companyID, t.TempDir(), t.TempDir())
	svc, db := setupDispatchService(t, node, &profileStub{profile: profile})
	runID, _ := seedRun(t, db, node, companyID, paymentrundomain.RunStatusExported, 2)

	req := domain.DispatchRequest{CompanyID: companyID, RunID: runID, BankCode: "DBSSG"}

	first, err := svc.Dispatch(context.Background(), req)
	if err != nil {
		t.Fatalf("dispatch first: %v", err)
	}
	second, err := svc.Dispatch(context.Background(), req)
	if err != nil {
		t.Fatalf("dispatch second: %v", err)
	}

	if !second.Replayed {
		t.Fatal("expected second dispatch to replay")
	}
	if first.Dispatch.ID != second.Dispatch.ID {
		t.Fatalf("expected same dispatch row, got %s vs %s", first.Dispatch.ID, second.Dispatch.ID)
	}
	if count := countDispatches(t, db); count != 1 {
		t.Fatalf("expected 1 dispatch row, got %d", count)
	}
}

func TestDispatchRejectsUnexportedRun(t *testing.T) {
	node := mustNode(t)
	companyID := node.Generate()
	profile := activeProfile(node, companyID, t.TempDir(), t.TempDir())
	svc, db := setupDispatchService(t, node, &profileStub{profile: profile})
	runID, _ := seedRun(t, db, node, companyID, paymentrundomain.RunStatusApproved, 1)

	_, err := svc.Dispatch(context.Background(), domain.DispatchRequest{
		CompanyID: companyID,
		RunID:     runID,
		BankCode:  "DBSSG",
	})

	var transitionErr *paymentrundomain.IllegalTransitionError
	if !errors.As(err, &transitionErr) {
		t.Fatalf("expected illegal transition error, got %v", err)
	}
	if count := countDispatches(t, db); count != 0 {
		t.Fatalf("expected no dispatch rows, got %d", count)
	}
}

func TestDispatchDryRunPersistsNothing(t *testing.T) {
	node := mustNode(t)
	companyID := node.Generate()
	profile := activeProfile(node, companyID, t.TempDir(), t.TempDir())
	svc, db := setupDispatchService(t, node, &profileStub{profile: profile})
	runID, _ := seedRun(t, db, node, companyID, paymentrundomain.RunStatusExported, 1)

	result, err := svc.Dispatch(context.Background(), domain.DispatchRequest{
		CompanyID: companyID,
		RunID:     runID,
		BankCode:  "DBSSG",
		DryRun:    true,
	})
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if !result.DryRun {
		t.Fatal("expected dry run result")
	}
	if result.Filename == "" || result.Fingerprint == "" {
		t.Fatalf("expected rendered filename and fingerprint, got %+v", result)
	}

	if got := runStatus(t, db, runID); got != string(paymentrundomain.RunStatusExported) {
		t.Fatalf("expected run to stay EXPORTED, got %s", got)
	}
	if count := countDispatches(t, db); count != 0 {
		t.Fatalf("expected no dispatch rows, got %d", count)
	}
}

func TestDispatchRequiresActiveProfile(t *testing.T) {
	node := mustNode(t)
	companyID := node.Generate()
	svc, db := setupDispatchService(t, node, &profileStub{err: bankprofiledomain.ErrProfileUnavailable})
	runID, _ := seedRun(t, db, node, companyID, paymentrundomain.RunStatusExported, 1)

	_, err := svc.Dispatch(context.Background(), domain.DispatchRequest{
		CompanyID: companyID,
		RunID:     runID,
		BankCode:  "DBSSG",
	})
	if !errors.Is(err, bankprofiledomain.ErrProfileUnavailable) {
		t.Fatalf("expected profile unavailable, got %v", err)
	}
}

func TestDeliverQueuedWritesAndMarksSent(t *testing.T) {
	node := mustNode(t)
	companyID := node.Generate()
	outboundDir := t.TempDir()
	profile := activeProfile(node, companyID, t.TempDir(), outboundDir)
	svc, db := setupDispatchService(t, node, &profileStub{profile: profile})
	runID, _ := seedRun(t, db, node, companyID, paymentrundomain.RunStatusExported, 1)

	result, err := svc.Dispatch(context.Background(), domain.DispatchRequest{
		CompanyID: companyID,
		RunID:     runID,
		BankCode:  "DBSSG",
	})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	delivered, err := svc.DeliverQueued(context.Background(), companyID, "DBSSG")
	if err != nil {
		t.Fatalf("deliver queued: %v", err)
	}
	if delivered != 1 {
		t.Fatalf("expected 1 delivery, got %d", delivered)
	}

	if _, err := os.Stat(filepath.Join(outboundDir, result.Dispatch.Filename)); err != nil {
		t.Fatalf("expected delivered file: %v", err)
	}

	var status string
	if err := db.Raw(`SELECT status FROM outbound_dispatches WHERE id = ?`, result.Dispatch.ID).Scan(&status).Error; err != nil {
		t.Fatalf("dispatch status: %v", err)
	}
	if status != string(domain.DispatchStatusSent) {
		t.Fatalf("expected sent dispatch, got %s", status)
	}

	again, err := svc.DeliverQueued(context.Background(), companyID, "DBSSG")
	if err != nil {
		t.Fatalf("deliver again: %v", err)
	}
	if again != 0 {
		t.Fatalf("expected empty queue, got %d deliveries", again)
	}
}
