package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	inboundrepository "github.com/smallbiznis/payrun/internal/inbound/repository"
	paymentrundomain "github.com/smallbiznis/payrun/internal/paymentrun/domain"
	paymentrunrepository "github.com/smallbiznis/payrun/internal/paymentrun/repository"
	reasoncodedomain "github.com/smallbiznis/payrun/internal/reasoncode/domain"
	"github.com/smallbiznis/payrun/internal/reconcile/domain"
	"go.uber.org/zap"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

// reasonStub resolves raw codes from a fixed table and falls back otherwise,
// mirroring the mapping service contract.
type reasonStub struct {
	statuses map[string]reasoncodedomain.Status
	labels   map[string]string
}

func (s *reasonStub) Normalize(ctx context.Context, bankCode string, rawCode string, fallback reasoncodedomain.Status) (reasoncodedomain.Status, string, error) {
	if status, ok := s.statuses[rawCode]; ok {
		return status, s.labels[rawCode], nil
	}
	return fallback, "", nil
}

func (s *reasonStub) Upsert(ctx context.Context, bankCode string, rawCode string, status reasoncodedomain.Status, label string) error {
	return nil
}

func defaultReasonStub() *reasonStub {
	return &reasonStub{
		statuses: map[string]reasoncodedomain.Status{
			"ACCP": reasoncodedomain.StatusAck,
			"ACSC": reasoncodedomain.StatusExecOK,
			"RJCT": reasoncodedomain.StatusExecFail,
			"PDNG": reasoncodedomain.StatusPending,
		},
		labels: map[string]string{
			"RJCT": "insufficient funds",
		},
	}
}

func setupReconcileService(t *testing.T) (domain.Service, *gorm.DB, *snowflake.Node) {
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
	_ = db.Exec("PRAGMA journal_mode = WAL").Error
	prepareReconcileSchema(t, db)

	svc := NewService(Params{
		DB:          db,
		Log:         zap.NewNop(),
		InboundRepo: inboundrepository.Provide(),
		RunRepo:     paymentrunrepository.Provide(),
		ReasonSvc:   defaultReasonStub(),
	})
	return svc, db, node
}

func prepareReconcileSchema(t *testing.T, db *gorm.DB) {
	t.Helper()
	statements := []string{
		`CREATE TABLE payment_runs (
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
		)`,
		`CREATE TABLE payment_lines (
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
		)`,
		`CREATE TABLE inbound_acks (
			id BIGINT PRIMARY KEY,
			company_id BIGINT NOT NULL,
			bank_code TEXT NOT NULL,
			fingerprint TEXT NOT NULL,
			filename TEXT NOT NULL,
			payload BLOB NOT NULL,
			received_at DATETIME NOT NULL,
			consumed_at DATETIME
		)`,
		`CREATE TABLE ack_mappings (
			id BIGINT PRIMARY KEY,
			ack_id BIGINT NOT NULL,
			run_id BIGINT NOT NULL,
			line_id BIGINT NOT NULL DEFAULT 0,
			status_code TEXT NOT NULL,
			reason_code TEXT,
			reason_label TEXT,
			created_at DATETIME NOT NULL
		)`,
	}
	for _, stmt := range statements {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("prepare schema: %v", err)
		}
	}
}

func seedDispatchedRun(t *testing.T, db *gorm.DB, node *snowflake.Node, companyID snowflake.ID, lineCount int) (snowflake.ID, []snowflake.ID) {
	t.Helper()
	now := time.Now().UTC()
	runID := node.Generate()
	if err := db.Exec(
		`INSERT INTO payment_runs (id, company_id, year, month, currency, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, companyID, 2026, 3, "SGD", paymentrundomain.RunStatusDispatched, now, now,
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
			paymentrundomain.LineStatusDispatched, now, now,
		).Error; err != nil {
			t.Fatalf("seed line: %v", err)
		}
		lineIDs = append(lineIDs, lineID)
	}
	return runID, lineIDs
}

type mappingSeed struct {
	runID      snowflake.ID
	lineID     snowflake.ID
	statusCode string
	reasonCode string
}

func seedAck(t *testing.T, db *gorm.DB, node *snowflake.Node, companyID snowflake.ID, mappings []mappingSeed) snowflake.ID {
	t.Helper()
	now := time.Now().UTC()
	ackID := node.Generate()
	if err := db.Exec(
		`INSERT INTO inbound_acks (id, company_id, bank_code, fingerprint, filename, payload, received_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ackID, companyID, "DBSSG",
		fmt.Sprintf("fp-%s", ackID),
		fmt.Sprintf("ACK_%s.json", ackID),
		[]byte("{}"), now,
	).Error; err != nil {
		t.Fatalf("seed ack: %v", err)
	}
	for _, mapping := range mappings {
		if err := db.Exec(
			`INSERT INTO ack_mappings (id, ack_id, run_id, line_id, status_code, reason_code, reason_label, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			node.Generate(), ackID, mapping.runID, mapping.lineID,
			mapping.statusCode, mapping.reasonCode, "", now,
		).Error; err != nil {
			t.Fatalf("seed mapping: %v", err)
		}
	}
	return ackID
}

func fetchRun(t *testing.T, db *gorm.DB, runID snowflake.ID) paymentrundomain.PaymentRun {
	t.Helper()
	var run paymentrundomain.PaymentRun
	if err := db.Raw(`SELECT * FROM payment_runs WHERE id = ?`, runID).Scan(&run).Error; err != nil {
		t.Fatalf("fetch run: %v", err)
	}
	return run
}

func lineStatus(t *testing.T, db *gorm.DB, lineID snowflake.ID) string {
	t.Helper()
	var status string
	if err := db.Raw(`SELECT status FROM payment_lines WHERE id = ?`, lineID).Scan(&status).Error; err != nil {
		t.Fatalf("line status: %v", err)
	}
	return status
}

func TestApplyAcknowledgment(t *testing.T) {
	svc, db, node := setupReconcileService(t)
	companyID := node.Generate()
	runID, _ := seedDispatchedRun(t, db, node, companyID, 2)
	ackID := seedAck(t, db, node, companyID, []mappingSeed{{runID: runID, statusCode: "ACCP"}})

	result, err := svc.Apply(context.Background(), companyID)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if result.Applied != 1 || result.AcksConsumed != 1 {
		t.Fatalf("expected 1 applied mapping, got %+v", result)
	}

	run := fetchRun(t, db, runID)
	if run.Status != paymentrundomain.RunStatusAcknowledged {
		t.Fatalf("expected ACKNOWLEDGED, got %s", run.Status)
	}
	if run.AcknowledgedAt == nil {
		t.Fatal("expected acknowledged_at to be stamped")
	}

	var consumed sql.NullTime
	if err := db.Raw(`SELECT consumed_at FROM inbound_acks WHERE id = ?`, ackID).Scan(&consumed).Error; err != nil {
		t.Fatalf("consumed_at: %v", err)
	}
	if !consumed.Valid {
		t.Fatal("expected ack to be consumed")
	}
}

func TestApplyUnknownCodeFallsBackToAck(t *testing.T) {
	svc, db, node := setupReconcileService(t)
	companyID := node.Generate()
	runID, _ := seedDispatchedRun(t, db, node, companyID, 1)
	seedAck(t, db, node, companyID, []mappingSeed{{runID: runID, statusCode: "ZZZZ"}})

	result, err := svc.Apply(context.Background(), companyID)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if result.Applied != 1 {
		t.Fatalf("expected fallback application, got %+v", result)
	}

	if run := fetchRun(t, db, runID); run.Status != paymentrundomain.RunStatusAcknowledged {
		t.Fatalf("expected unknown code to acknowledge only, got %s", run.Status)
	}
}

func TestApplyPartialSettlementKeepsRunOpen(t *testing.T) {
	svc, db, node := setupReconcileService(t)
	companyID := node.Generate()
	runID, lineIDs := seedDispatchedRun(t, db, node, companyID, 2)
	seedAck(t, db, node, companyID, []mappingSeed{
		{runID: runID, lineID: lineIDs[0], statusCode: "ACSC"},
	})

	if _, err := svc.Apply(context.Background(), companyID); err != nil {
		t.Fatalf("apply: %v", err)
	}

	if got := lineStatus(t, db, lineIDs[0]); got != string(paymentrundomain.LineStatusPaid) {
		t.Fatalf("expected paid first line, got %s", got)
	}
	if got := lineStatus(t, db, lineIDs[1]); got != string(paymentrundomain.LineStatusDispatched) {
		t.Fatalf("expected second line untouched, got %s", got)
	}
	if run := fetchRun(t, db, runID); run.Status != paymentrundomain.RunStatusDispatched {
		t.Fatalf("expected run to stay open, got %s", run.Status)
	}
}

func TestApplyFullSettlementExecutesRun(t *testing.T) {
	svc, db, node := setupReconcileService(t)
	companyID := node.Generate()
	runID, lineIDs := seedDispatchedRun(t, db, node, companyID, 2)
	seedAck(t, db, node, companyID, []mappingSeed{
		{runID: runID, lineID: lineIDs[0], statusCode: "ACSC"},
		{runID: runID, lineID: lineIDs[1], statusCode: "ACSC"},
	})

	result, err := svc.Apply(context.Background(), companyID)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if result.Applied != 2 {
		t.Fatalf("expected 2 applied mappings, got %+v", result)
	}

	for _, lineID := range lineIDs {
		if got := lineStatus(t, db, lineID); got != string(paymentrundomain.LineStatusPaid) {
			t.Fatalf("expected paid line, got %s", got)
		}
	}
	if run := fetchRun(t, db, runID); run.Status != paymentrundomain.RunStatusExecuted {
		t.Fatalf("expected EXECUTED, got %s", run.Status)
	}
}

func TestApplyRunLevelSettlement(t *testing.T) {
	svc, db, node := setupReconcileService(t)
	companyID := node.Generate()
	runID, lineIDs := seedDispatchedRun(t, db, node, companyID, 3)
	seedAck(t, db, node, companyID, []mappingSeed{{runID: runID, statusCode: "ACSC"}})

	if _, err := svc.Apply(context.Background(), companyID); err != nil {
		t.Fatalf("apply: %v", err)
	}

	for _, lineID := range lineIDs {
		if got := lineStatus(t, db, lineID); got != string(paymentrundomain.LineStatusPaid) {
			t.Fatalf("expected run-level settlement to pay every line, got %s", got)
		}
	}
	if run := fetchRun(t, db, runID); run.Status != paymentrundomain.RunStatusExecuted {
		t.Fatalf("expected EXECUTED, got %s", run.Status)
	}
}

func TestApplyCanonicalStatusesBypassMapping(t *testing.T) {
	svc, db, node := setupReconcileService(t)
	companyID := node.Generate()

	// None of these codes appear in the mapping table; they are already
	// canonical and must apply as-is instead of degrading to ACK.
	settledRun, settledLines := seedDispatchedRun(t, db, node, companyID, 1)
	failedRun, failedLines := seedDispatchedRun(t, db, node, companyID, 1)
	ackedRun, _ := seedDispatchedRun(t, db, node, companyID, 1)
	pendingRun, _ := seedDispatchedRun(t, db, node, companyID, 1)
	seedAck(t, db, node, companyID, []mappingSeed{
		{runID: settledRun, lineID: settledLines[0], statusCode: "EXEC_OK"},
		{runID: failedRun, lineID: failedLines[0], statusCode: "EXEC_FAIL"},
		{runID: ackedRun, statusCode: "ACK"},
		{runID: pendingRun, statusCode: "PENDING"},
	})

	result, err := svc.Apply(context.Background(), companyID)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if result.Applied != 4 {
		t.Fatalf("expected 4 applied mappings, got %+v", result)
	}

	if got := lineStatus(t, db, settledLines[0]); got != string(paymentrundomain.LineStatusPaid) {
		t.Fatalf("expected canonical EXEC_OK to settle the line, got %s", got)
	}
	if run := fetchRun(t, db, settledRun); run.Status != paymentrundomain.RunStatusExecuted {
		t.Fatalf("expected EXECUTED, got %s", run.Status)
	}
	if run := fetchRun(t, db, failedRun); run.Status != paymentrundomain.RunStatusFailed {
		t.Fatalf("expected canonical EXEC_FAIL to fail the run, got %s", run.Status)
	}
	if run := fetchRun(t, db, ackedRun); run.Status != paymentrundomain.RunStatusAcknowledged {
		t.Fatalf("expected canonical ACK to acknowledge, got %s", run.Status)
	}
	if run := fetchRun(t, db, pendingRun); run.Status != paymentrundomain.RunStatusDispatched {
		t.Fatalf("expected canonical PENDING to leave the run open, got %s", run.Status)
	}
}

func TestApplyRejectionFailsRun(t *testing.T) {
	svc, db, node := setupReconcileService(t)
	companyID := node.Generate()
	runID, lineIDs := seedDispatchedRun(t, db, node, companyID, 2)
	seedAck(t, db, node, companyID, []mappingSeed{
		{runID: runID, lineID: lineIDs[0], statusCode: "RJCT", reasonCode: "AC04"},
	})

	if _, err := svc.Apply(context.Background(), companyID); err != nil {
		t.Fatalf("apply: %v", err)
	}

	if got := lineStatus(t, db, lineIDs[0]); got != string(paymentrundomain.LineStatusFailed) {
		t.Fatalf("expected failed line, got %s", got)
	}
	run := fetchRun(t, db, runID)
	if run.Status != paymentrundomain.RunStatusFailed {
		t.Fatalf("expected FAILED, got %s", run.Status)
	}
	if run.FailureReason == nil || *run.FailureReason != "insufficient funds" {
		t.Fatalf("expected normalized failure label, got %v", run.FailureReason)
	}
}

func TestApplyUnknownRunIsSkipped(t *testing.T) {
	svc, db, node := setupReconcileService(t)
	companyID := node.Generate()
	ackID := seedAck(t, db, node, companyID, []mappingSeed{{runID: node.Generate(), statusCode: "ACCP"}})

	result, err := svc.Apply(context.Background(), companyID)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if result.Applied != 0 || result.Skipped != 1 {
		t.Fatalf("expected skipped mapping, got %+v", result)
	}

	var consumed sql.NullTime
	if err := db.Raw(`SELECT consumed_at FROM inbound_acks WHERE id = ?`, ackID).Scan(&consumed).Error; err != nil {
		t.Fatalf("consumed_at: %v", err)
	}
	if !consumed.Valid {
		t.Fatal("expected skipped ack to still be consumed")
	}
}

func TestApplyReplayedSettlementIsStable(t *testing.T) {
	svc, db, node := setupReconcileService(t)
	companyID := node.Generate()
	runID, lineIDs := seedDispatchedRun(t, db, node, companyID, 1)
	seedAck(t, db, node, companyID, []mappingSeed{
		{runID: runID, lineID: lineIDs[0], statusCode: "ACSC"},
	})

	if _, err := svc.Apply(context.Background(), companyID); err != nil {
		t.Fatalf("apply first: %v", err)
	}

	// The bank resends the same settlement in a fresh document.
	seedAck(t, db, node, companyID, []mappingSeed{
		{runID: runID, lineID: lineIDs[0], statusCode: "ACSC"},
	})
	if _, err := svc.Apply(context.Background(), companyID); err != nil {
		t.Fatalf("apply replay: %v", err)
	}

	if got := lineStatus(t, db, lineIDs[0]); got != string(paymentrundomain.LineStatusPaid) {
		t.Fatalf("expected line to stay paid, got %s", got)
	}
	if run := fetchRun(t, db, runID); run.Status != paymentrundomain.RunStatusExecuted {
		t.Fatalf("expected run to stay EXECUTED, got %s", run.Status)
	}
}
