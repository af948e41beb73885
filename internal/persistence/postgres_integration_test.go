package persistence_test

import (
	"context"
	"testing"
	"time"

	"VaultLedger/internal/core"
	"VaultLedger/internal/event"
	"VaultLedger/internal/persistence"
	"VaultLedger/internal/state"
	"VaultLedger/internal/testutil"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestPostgres_PersistSnapshotRecover(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer goleak.VerifyNone(t, goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener"))
	ctx := context.Background()

	persist := make(chan core.CoreOutput, 64)
	engine := core.NewVaultEngine(core.EngineConfig{AdminAuthority: "admin"}, persist, nil, nil, nil)
	worker := persistence.NewPersistenceWorker(db, persist, 8, 5*time.Millisecond, nil)
	workerDone := make(chan error, 1)
	go func() { workerDone <- worker.Run(context.Background()) }()

	vault := uuid.New()
	header := func(signer string, ts int64) event.Header {
		return event.Header{RequestID: uuid.New(), Vault: vault, SignedBy: signer, Ts: ts}
	}

	runner := core.NewRunner(engine, 4)
	runCtx, stopRunner := context.WithCancel(ctx)
	runnerDone := make(chan error, 1)
	go func() { runnerDone <- runner.Run(runCtx) }()

	for _, cmd := range []event.Command{
		&event.InitializeVault{Header: header("manager", t0), Params: state.VaultParams{Name: "pg", RedeemPeriod: 3600}},
		&event.Deposit{Header: header("alice", t0+1), Amount: 5_000_000},
		&event.Deposit{Header: header("bob", t0+2), Valuation: event.Valuation{VaultEquity: 5_500_000}, Amount: 2_000_000},
	} {
		require.NoError(t, runner.Submit(ctx, cmd).Err)
	}

	store := persistence.NewSnapshotManager(db)
	seq, size, err := persistence.NewSnapshotter(runner, store, nil).TakeSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), seq)
	assert.Positive(t, size)

	res := runner.Submit(ctx, &event.Deposit{
		Header:    header("carol", t0+3),
		Valuation: event.Valuation{VaultEquity: 7_500_000},
		Amount:    1_000_000,
	})
	require.NoError(t, res.Err)

	stopRunner()
	require.NoError(t, <-runnerDone)
	close(persist)
	require.NoError(t, <-workerDone)

	head, _, ok, err := store.GetLatestRecord(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(3), head)

	fresh := core.NewVaultEngine(core.EngineConfig{AdminAuthority: "admin"}, nil, nil, nil, nil)
	n, err := persistence.NewReplayer(store, nil).Recover(ctx, fresh)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "only the command after the snapshot is replayed")
	assert.Equal(t, engine.GetStateHash(), fresh.GetStateHash())
	assert.Equal(t, engine.GetSequence(), fresh.GetSequence())
}
