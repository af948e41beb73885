package core_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"VaultLedger/internal/core"
	"VaultLedger/internal/event"
	"VaultLedger/internal/state"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func startRunner(t *testing.T) (*core.Runner, context.CancelFunc, *sync.WaitGroup) {
	t.Helper()
	engine := core.NewVaultEngine(core.EngineConfig{AdminAuthority: admin, IdempotencyCapacity: 64}, nil, nil, nil, nil)
	r := core.NewRunner(engine, 8)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = r.Run(ctx)
	}()
	return r, cancel, &wg
}

func TestRunner_SerializesConcurrentSubmits(t *testing.T) {
	defer goleak.VerifyNone(t)

	r, cancel, wg := startRunner(t)
	defer func() {
		cancel()
		wg.Wait()
	}()

	const vaults = 16
	var submitters sync.WaitGroup
	errs := make(chan error, vaults)
	for i := 0; i < vaults; i++ {
		submitters.Add(1)
		go func() {
			defer submitters.Done()
			res := r.Submit(context.Background(), &event.InitializeVault{
				Header: event.Header{RequestID: uuid.New(), Vault: uuid.New(), SignedBy: manager, Ts: t0},
				Params: state.VaultParams{Name: "v"},
			})
			if res.Err == nil && len(res.Outputs) != 1 {
				res.Err = errors.New("expected one record")
			}
			errs <- res.Err
		}()
	}
	submitters.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, int64(vaults), r.Sequence())

	snap, err := r.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(vaults), snap.Sequence)
	assert.Len(t, snap.IdempotencyKeys, vaults)
}

func TestRunner_SubmitAfterStop(t *testing.T) {
	defer goleak.VerifyNone(t)

	r, cancel, wg := startRunner(t)
	cancel()
	wg.Wait()

	res := r.Submit(context.Background(), &event.InitializeVault{
		Header: event.Header{RequestID: uuid.New(), Vault: uuid.New(), SignedBy: manager, Ts: t0},
		Params: state.VaultParams{Name: "v"},
	})
	assert.ErrorIs(t, res.Err, core.ErrRunnerStopped)

	snap, err := r.Snapshot(context.Background())
	require.NoError(t, err, "a stopped runner snapshots the idle engine directly")
	assert.Equal(t, r.Sequence(), snap.Sequence)
}
