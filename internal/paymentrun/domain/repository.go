package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository exposes guarded, idempotent state writes. Every update carries
// its precondition in the WHERE clause so concurrent replays of the same event
// converge on the same state instead of double-applying.
type Repository interface {
	FindRun(ctx context.Context, db *gorm.DB, companyID snowflake.ID, runID snowflake.ID) (*PaymentRun, error)
	FindLines(ctx context.Context, db *gorm.DB, runID snowflake.ID) ([]PaymentLine, error)

	// TransitionRun advances status only when the run currently holds from.
	// Returns false when the guard did not match.
	TransitionRun(ctx context.Context, db *gorm.DB, runID snowflake.ID, from, to RunStatus) (bool, error)

	// SetAcknowledged stamps acknowledged_at only when it is still null, and
	// advances DISPATCHED to ACKNOWLEDGED. Re-applying the same ack is a no-op.
	SetAcknowledged(ctx context.Context, db *gorm.DB, runID snowflake.ID) error

	// MarkLinePaid advances one line to paid; already-paid lines are left
	// untouched. Returns false when the line does not belong to the run.
	MarkLinePaid(ctx context.Context, db *gorm.DB, runID snowflake.ID, lineID snowflake.ID) (bool, error)

	// MarkLineFailed moves one line to failed unless it already settled as
	// paid. Returns false when the line does not belong to the run.
	MarkLineFailed(ctx context.Context, db *gorm.DB, runID snowflake.ID, lineID snowflake.ID) (bool, error)

	// MarkLinesDispatched moves every selected line of the run to dispatched.
	MarkLinesDispatched(ctx context.Context, db *gorm.DB, runID snowflake.ID) error

	// ExecuteRunIfSettled advances the run to EXECUTED only when no line is
	// left unpaid. Safe to call after every line update.
	ExecuteRunIfSettled(ctx context.Context, db *gorm.DB, runID snowflake.ID) (bool, error)

	// FailRun moves the run to FAILED with a reason; terminal states are never
	// overwritten.
	FailRun(ctx context.Context, db *gorm.DB, runID snowflake.ID, reason string) (bool, error)

	CountUnpaidLines(ctx context.Context, db *gorm.DB, runID snowflake.ID) (int64, error)
}
