package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/phrazzld/genqueue/internal/events"
	"github.com/phrazzld/genqueue/internal/task"
)

// DefaultLedgerBuffer is the number of charges held while the writer is busy.
const DefaultLedgerBuffer = 256

const writeTimeout = 5 * time.Second

// DBTX is the subset of *pgxpool.Pool and pgx.Tx the ledger uses.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Charge is the credit cost of one completed task.
type Charge struct {
	TaskID     string
	TaskType   task.Type
	Credits    int
	RetryCount int
	ChargedAt  time.Time
}

// ChargeFromTask builds the charge for a completed task snapshot.
func ChargeFromTask(t task.Task) Charge {
	chargedAt := t.CreatedAt
	if t.CompletedAt != nil {
		chargedAt = *t.CompletedAt
	}
	return Charge{
		TaskID:     t.ID,
		TaskType:   t.Type,
		Credits:    t.CreditCost,
		RetryCount: t.RetryCount,
		ChargedAt:  chargedAt.UTC(),
	}
}

// CreditLedger records charges for completed tasks. As an events.EventHandler
// it only buffers the charge; a single writer goroutine inserts rows so the
// emitting operation never waits on the database.
type CreditLedger struct {
	db      DBTX
	charges chan Charge
	logger  *slog.Logger

	mu      sync.Mutex
	closed  bool
	started bool
	wg      sync.WaitGroup
}

// NewCreditLedger creates a ledger writing through db. Call Start before
// events arrive and Stop on shutdown.
func NewCreditLedger(db DBTX, bufferSize int, logger *slog.Logger) *CreditLedger {
	if bufferSize <= 0 {
		bufferSize = DefaultLedgerBuffer
	}
	return &CreditLedger{
		db:      db,
		charges: make(chan Charge, bufferSize),
		logger:  logger.With("component", "credit_ledger"),
	}
}

// Start launches the writer goroutine. Calling it again is a no-op.
func (l *CreditLedger) Start() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.started || l.closed {
		return
	}
	l.started = true

	l.wg.Add(1)
	go l.write()
	l.logger.Info("credit ledger started", "buffer", cap(l.charges))
}

// Stop rejects new charges and waits until buffered ones are written.
func (l *CreditLedger) Stop() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	close(l.charges)
	l.mu.Unlock()

	l.wg.Wait()
	l.logger.Info("credit ledger stopped")
}

// HandleEvent buffers a charge for every task.completed event with a
// non-zero credit cost.
func (l *CreditLedger) HandleEvent(_ context.Context, event *events.TaskEvent) error {
	if event.Type != events.TaskCompleted {
		return nil
	}

	var t task.Task
	if err := event.UnmarshalPayload(&t); err != nil {
		return fmt.Errorf("failed to decode task payload of event %s: %w", event.ID, err)
	}
	if t.CreditCost == 0 {
		return nil
	}
	return l.enqueue(ChargeFromTask(t))
}

func (l *CreditLedger) enqueue(c Charge) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrLedgerClosed
	}

	select {
	case l.charges <- c:
		return nil
	default:
		return fmt.Errorf("%w: capacity %d reached, charge for task %s dropped",
			ErrLedgerFull, cap(l.charges), c.TaskID)
	}
}

func (l *CreditLedger) write() {
	defer l.wg.Done()
	for c := range l.charges {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		if err := l.Record(ctx, c); err != nil {
			l.logger.Error("failed to record credit charge",
				"error", err,
				"task_id", c.TaskID,
				"credits", c.Credits)
		}
		cancel()
	}
}

// Record inserts c. A task is charged at most once; recording it again is
// not an error.
func (l *CreditLedger) Record(ctx context.Context, c Charge) error {
	tag, err := l.db.Exec(ctx, `
		INSERT INTO credit_charges (task_id, task_type, credits, retry_count, charged_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (task_id) DO NOTHING`,
		c.TaskID, string(c.TaskType), c.Credits, c.RetryCount, c.ChargedAt)
	if err != nil {
		return fmt.Errorf("failed to insert charge for task %s: %w", c.TaskID, MapError(err))
	}

	if tag.RowsAffected() == 0 {
		l.logger.Debug("charge already recorded", "task_id", c.TaskID)
		return nil
	}
	l.logger.Debug("credit charge recorded",
		"task_id", c.TaskID,
		"task_type", c.TaskType,
		"credits", c.Credits)
	return nil
}

// Get returns the recorded charge for taskID.
func (l *CreditLedger) Get(ctx context.Context, taskID string) (Charge, error) {
	var (
		c        Charge
		taskType string
	)
	err := l.db.QueryRow(ctx, `
		SELECT task_id, task_type, credits, retry_count, charged_at
		FROM credit_charges
		WHERE task_id = $1`, taskID).
		Scan(&c.TaskID, &taskType, &c.Credits, &c.RetryCount, &c.ChargedAt)
	if err != nil {
		return Charge{}, fmt.Errorf("failed to get charge for task %s: %w", taskID, MapError(err))
	}
	c.TaskType = task.Type(taskType)
	return c, nil
}

// Total returns the sum of all recorded credits.
func (l *CreditLedger) Total(ctx context.Context) (int64, error) {
	var total int64
	err := l.db.QueryRow(ctx, `SELECT COALESCE(SUM(credits), 0) FROM credit_charges`).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum credit charges: %w", MapError(err))
	}
	return total, nil
}
