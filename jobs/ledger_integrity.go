package jobs

import (
	"context"
	"log/slog"
	"math"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"
)

// TaskLedgerIntegrity re-folds both ledgers and compares them against the
// materialized summaries. The write path keeps these consistent; the scan is
// the independent check that it did.
const TaskLedgerIntegrity = "ledger:integrity"

// NewLedgerIntegrityTask prepares the scheduled task.
func NewLedgerIntegrityTask() *asynq.Task {
	return asynq.NewTask(TaskLedgerIntegrity, nil)
}

// LedgerIntegrityJob scans for unbalanced journals and summaries that drifted
// from their entry history.
type LedgerIntegrityJob struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewLedgerIntegrityJob constructs the job.
func NewLedgerIntegrityJob(pool *pgxpool.Pool, logger *slog.Logger) *LedgerIntegrityJob {
	return &LedgerIntegrityJob{pool: pool, logger: logger}
}

// Handle runs both scans concurrently and logs every discrepancy found.
func (j *LedgerIntegrityJob) Handle(ctx context.Context, _ *asynq.Task) error {
	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error { return j.scanJournalBalance(ctx) })
	group.Go(func() error { return j.scanStockSummaries(ctx) })
	return group.Wait()
}

func (j *LedgerIntegrityJob) scanJournalBalance(ctx context.Context) error {
	rows, err := j.pool.Query(ctx, `SELECT tenant_id, voucher_id, SUM(debit) AS debit, SUM(credit) AS credit
FROM journal_entries
GROUP BY tenant_id, voucher_id
HAVING ABS(SUM(debit) - SUM(credit)) > 0.01`)
	if err != nil {
		return err
	}
	defer rows.Close()
	found := 0
	for rows.Next() {
		var tenantID int64
		var voucherID string
		var debit, credit float64
		if err := rows.Scan(&tenantID, &voucherID, &debit, &credit); err != nil {
			return err
		}
		found++
		j.logger.Error("unbalanced journal detected",
			slog.Int64("tenant_id", tenantID),
			slog.String("voucher_id", voucherID),
			slog.Float64("debit", debit),
			slog.Float64("credit", credit),
			slog.Float64("drift", math.Abs(debit-credit)))
	}
	if err := rows.Err(); err != nil {
		return err
	}
	j.logger.Info("journal balance scan complete", slog.Int("discrepancies", found))
	return nil
}

func (j *LedgerIntegrityJob) scanStockSummaries(ctx context.Context) error {
	rows, err := j.pool.Query(ctx, `SELECT s.tenant_id, s.item_id, s.location_id, s.qty, COALESCE(f.qty, 0) AS folded
FROM stock_summaries s
LEFT JOIN (
    SELECT tenant_id, item_id, location_id,
           SUM(CASE WHEN direction = 'IN' THEN qty ELSE -qty END) AS qty
    FROM inventory_ledger_entries
    GROUP BY tenant_id, item_id, location_id
) f ON f.tenant_id = s.tenant_id AND f.item_id = s.item_id AND f.location_id = s.location_id
WHERE ABS(s.qty - COALESCE(f.qty, 0)) > 0.0001 OR s.qty < 0`)
	if err != nil {
		return err
	}
	defer rows.Close()
	found := 0
	for rows.Next() {
		var tenantID, itemID, locationID int64
		var qty, folded float64
		if err := rows.Scan(&tenantID, &itemID, &locationID, &qty, &folded); err != nil {
			return err
		}
		found++
		j.logger.Error("stock summary drift detected",
			slog.Int64("tenant_id", tenantID),
			slog.Int64("item_id", itemID),
			slog.Int64("location_id", locationID),
			slog.Float64("summary_qty", qty),
			slog.Float64("folded_qty", folded))
	}
	if err := rows.Err(); err != nil {
		return err
	}
	j.logger.Info("stock summary scan complete", slog.Int("discrepancies", found))
	return nil
}
