package persistence

import (
	"context"
	"database/sql"
	"time"

	"VaultLedger/internal/core"
	"VaultLedger/internal/observability"

	"github.com/rs/zerolog"
)

const maxRetryBackoff = 30 * time.Second

// FlushHook runs after a batch has committed. Hooks see only durable records.
type FlushHook func(ctx context.Context, outputs []core.CoreOutput)

// PersistenceWorker drains the persist channel and batch-writes to Postgres.
// The engine sends on the persist channel with a blocking send, so if this worker
// falls behind the engine stalls and no record is lost.
type PersistenceWorker struct {
	db           *sql.DB
	writer       *RecordLogWriter
	inputChan    <-chan core.CoreOutput
	batchSize    int
	flushTimeout time.Duration
	metrics      *observability.Metrics
	hooks        []FlushHook
	logger       zerolog.Logger
}

func NewPersistenceWorker(
	db *sql.DB,
	inputChan <-chan core.CoreOutput,
	batchSize int,
	flushTimeout time.Duration,
	metrics *observability.Metrics,
) *PersistenceWorker {
	if batchSize <= 0 {
		batchSize = 1
	}
	return &PersistenceWorker{
		db:           db,
		writer:       NewRecordLogWriter(db),
		inputChan:    inputChan,
		batchSize:    batchSize,
		flushTimeout: flushTimeout,
		metrics:      metrics,
		logger:       observability.NewLogger("persistence"),
	}
}

// OnFlush registers a hook called after every committed batch.
func (pw *PersistenceWorker) OnFlush(h FlushHook) {
	pw.hooks = append(pw.hooks, h)
}

// Run batches incoming outputs and flushes either when the batch is full or the flush
// timeout expires. Blocks until ctx is cancelled or the input channel closes.
func (pw *PersistenceWorker) Run(ctx context.Context) error {
	batch := make([]core.CoreOutput, 0, pw.batchSize)
	var oldest time.Time

	timer := time.NewTimer(pw.flushTimeout)
	defer timer.Stop()

	drain := func(ctx context.Context, reason string) {
		if len(batch) == 0 {
			return
		}
		if err := pw.flushWithRetry(ctx, batch); err != nil {
			pw.logger.Error().Err(err).Str("reason", reason).Int("records", len(batch)).Msg("flush failed")
		} else if pw.metrics != nil {
			pw.metrics.ApplyToPersist.Observe(time.Since(oldest).Seconds())
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			drain(context.Background(), "shutdown")
			return ctx.Err()

		case out, ok := <-pw.inputChan:
			if !ok {
				drain(context.Background(), "closed")
				return nil
			}

			if len(batch) == 0 {
				oldest = time.Now()
			}
			batch = append(batch, out)

			if len(batch) >= pw.batchSize {
				drain(ctx, "full")
				timer.Reset(pw.flushTimeout)
			}

		case <-timer.C:
			drain(ctx, "timeout")
			timer.Reset(pw.flushTimeout)
		}
	}
}

// flushWithRetry retries with exponential backoff until the write succeeds. On shutdown
// it makes one last attempt with a background context.
func (pw *PersistenceWorker) flushWithRetry(ctx context.Context, batch []core.CoreOutput) error {
	backoff := 100 * time.Millisecond

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			pw.logger.Warn().Int("attempt", attempt).Dur("backoff", backoff).Int("records", len(batch)).Msg("persistence retry")
			if pw.metrics != nil {
				pw.metrics.PersistRetry.Inc()
			}
			select {
			case <-ctx.Done():
				return pw.flush(context.Background(), batch)
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxRetryBackoff {
				backoff = maxRetryBackoff
			}
		}

		err := pw.flush(ctx, batch)
		if err == nil {
			if attempt > 0 {
				pw.logger.Info().Int("retries", attempt).Msg("persistence flush recovered")
			}
			return nil
		}
		pw.logger.Error().Err(err).Msg("persistence flush")
	}
}

func (pw *PersistenceWorker) flush(ctx context.Context, batch []core.CoreOutput) error {
	start := time.Now()

	records := make([]RecordRow, 0, len(batch))
	var journals []JournalRow
	for _, out := range batch {
		row, js, err := ToRows(out)
		if err != nil {
			pw.countError("encode")
			return err
		}
		records = append(records, row)
		journals = append(journals, js...)
	}

	tx, err := pw.db.BeginTx(ctx, nil)
	if err != nil {
		pw.countError("tx_begin")
		return err
	}
	defer tx.Rollback()

	if err := pw.writer.WriteRecordBatch(ctx, tx, records); err != nil {
		pw.countError("write_records")
		return err
	}
	if err := pw.writer.WriteJournalBatch(ctx, tx, journals); err != nil {
		pw.countError("write_journals")
		return err
	}
	if err := tx.Commit(); err != nil {
		pw.countError("tx_commit")
		return err
	}

	if pw.metrics != nil {
		pw.metrics.PersistBatchDur.Observe(time.Since(start).Seconds())
		pw.metrics.PersistBatchSize.Observe(float64(len(records)))
		pw.metrics.PersistRecordsWritten.Add(float64(len(records)))
		pw.metrics.PersistJournalsWritten.Add(float64(len(journals)))
		pw.metrics.PersistLastSequence.Set(float64(records[len(records)-1].Sequence))
	}

	for _, h := range pw.hooks {
		h(ctx, batch)
	}
	return nil
}

func (pw *PersistenceWorker) countError(stage string) {
	if pw.metrics != nil {
		pw.metrics.PersistErrors.WithLabelValues(stage).Inc()
	}
}
