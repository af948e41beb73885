package projection

import (
	"context"
	"fmt"

	"VaultLedger/internal/core"
	"VaultLedger/internal/persistence"
)

var projectionTables = []string{
	`TRUNCATE projections.balances`,
	`TRUNCATE projections.vaults`,
	`TRUNCATE projections.depositors`,
	`TRUNCATE projections.fee_updates`,
	`TRUNCATE projections.fuel_history`,
	`DELETE FROM projections.watermark WHERE worker_id = 'main'`,
}

// Rebuild truncates every projection table and regenerates them by replaying the whole
// record log through a scratch engine. Run is paused for the duration; outputs it
// buffered meanwhile that the log already covered are skipped afterwards.
func (pw *ProjectionWorker) Rebuild(ctx context.Context, source persistence.RecordSource, cfg core.EngineConfig) (int64, error) {
	pw.mu.Lock()
	defer pw.mu.Unlock()

	for _, stmt := range projectionTables {
		if _, err := pw.db.ExecContext(ctx, stmt); err != nil {
			return 0, fmt.Errorf("truncate failed: %w", err)
		}
	}
	pw.lastSeq.Store(-1)

	scratch := core.NewVaultEngine(cfg, nil, nil, nil, nil)
	replayer := persistence.NewReplayer(persistence.FromLogStart(source), nil)
	replayer.OnReplay(func(outs []core.CoreOutput) error {
		for _, out := range outs {
			if err := pw.Apply(ctx, out); err != nil {
				return err
			}
			pw.lastSeq.Store(out.Envelope.Sequence)
		}
		return nil
	})

	n, err := replayer.Recover(ctx, scratch)
	if err != nil {
		return n, fmt.Errorf("rebuild projections: %w", err)
	}
	pw.logger.Info().Int64("commands", n).Int64("sequence", pw.lastSeq.Load()).Msg("projection rebuild complete")
	return n, nil
}
