package core

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"VaultLedger/internal/event"
	"VaultLedger/internal/ledger"
	"VaultLedger/internal/observability"
	"VaultLedger/internal/state"

	"github.com/google/uuid"
)

const (
	DefaultIdempotencyCapacity = 1_000_000
	DefaultMaxBatchSize        = 32

	// globalCheckInterval is how often, in records, the zero-sum ledger check runs.
	globalCheckInterval = 1000
)

// EngineConfig holds the engine's deterministic parameters. Changing any of them
// changes what a replay produces.
type EngineConfig struct {
	AdminAuthority      string
	IdempotencyCapacity int
	MaxBatchSize        int
	StartSequence       int64
}

func (c EngineConfig) withDefaults() EngineConfig {
	if c.IdempotencyCapacity <= 0 {
		c.IdempotencyCapacity = DefaultIdempotencyCapacity
	}
	if c.MaxBatchSize <= 0 {
		c.MaxBatchSize = DefaultMaxBatchSize
	}
	return c
}

// VaultEngine is the single-threaded command processor
type VaultEngine struct {
	cfg            EngineConfig
	sequence       int64
	chain          *hashChain
	store          *state.MemoryStore
	balanceTracker *ledger.BalanceTracker
	journalGen     *ledger.JournalGenerator
	validator      *ledger.InvariantValidator
	idempotency    *IdempotencyChecker
	clock          *TimestampGuard
	metrics        *observability.Metrics

	persistChan    chan<- CoreOutput
	projectionChan chan<- CoreOutput
}

// CoreOutput is one audit record with its journals. The last output of a command also
// carries the aggregates it left behind, for read models.
type CoreOutput struct {
	Envelope    *event.RecordEnvelope
	Batches     []*ledger.Batch
	StateDigest []byte

	Vault            *state.Vault
	Protocol         *state.VaultProtocol
	Depositors       []state.VaultDepositor
	Tokenized        []state.TokenizedVaultDepositor
	FeeUpdate        *state.FeeUpdate
	FeeUpdateDeleted bool
}

func NewVaultEngine(
	cfg EngineConfig,
	persistChan, projectionChan chan<- CoreOutput,
	dbChecker DBIdempotencyChecker,
	metrics *observability.Metrics,
) *VaultEngine {
	cfg = cfg.withDefaults()
	balanceTracker := ledger.NewBalanceTracker()

	return &VaultEngine{
		cfg:            cfg,
		sequence:       cfg.StartSequence,
		chain:          newHashChain(),
		store:          state.NewMemoryStore(),
		balanceTracker: balanceTracker,
		journalGen:     ledger.NewJournalGenerator(balanceTracker),
		validator:      ledger.NewInvariantValidator(balanceTracker),
		idempotency:    NewIdempotencyChecker(cfg.IdempotencyCapacity, dbChecker),
		clock:          NewTimestampGuard(),
		metrics:        metrics,
		persistChan:    persistChan,
		projectionChan: projectionChan,
	}
}

// ProcessCommand is the main processing pipeline. A duplicate returns no outputs and no
// error. A rejected command leaves no trace in state, ledger or log.
func (e *VaultEngine) ProcessCommand(cmd event.Command) ([]CoreOutput, error) {
	return e.process(cmd, false)
}

// Replay re-applies a command read back from the log during recovery. Only the in-memory
// dedup tier is consulted and nothing is emitted; the records already exist.
func (e *VaultEngine) Replay(cmd event.Command) ([]CoreOutput, error) {
	return e.process(cmd, true)
}

func (e *VaultEngine) process(cmd event.Command, replay bool) ([]CoreOutput, error) {
	start := time.Now()
	commandType := cmd.CommandType().String()
	idempotencyKey := cmd.IdempotencyKey()

	// Step 1: Idempotency check (two-tier)
	if replay {
		if e.idempotency.Seen(commandType, idempotencyKey) {
			return nil, nil
		}
	} else if tier, err := e.idempotency.Lookup(commandType, idempotencyKey); tier != "" {
		if e.metrics != nil {
			e.metrics.IdempotencyDuplicates.WithLabelValues(commandType, string(tier)).Inc()
			e.metrics.CoreCommandsRejected.WithLabelValues(commandType, "duplicate").Inc()
		}
		return nil, nil
	} else if err != nil && e.metrics != nil {
		e.metrics.DedupTier2Errors.Inc()
	}

	// Step 2: Per-vault time ordering
	if err := e.clock.Check(cmd.VaultID(), cmd.Timestamp()); err != nil {
		if e.metrics != nil {
			e.metrics.StaleTimestamps.WithLabelValues(commandType).Inc()
		}
		e.reject(commandType, err)
		return nil, err
	}

	// Step 3: Stage and dispatch
	tx := newTxn(e.store, e.balanceTracker, cmd)
	if err := e.dispatch(tx, cmd); err != nil {
		tx.rollback()
		e.reject(commandType, err)
		return nil, err
	}

	// A crank with nothing to do leaves no record and no state change.
	if len(tx.records) == 0 {
		tx.rollback()
		return nil, nil
	}

	// Step 4: Commit and post-check
	tx.commit()
	if err := e.postCheckInvariants(tx); err != nil {
		panic(fmt.Sprintf("FATAL: invariant violated: %v", err))
	}
	tx.notify()

	// Step 5: Sequence, hash and emit
	outputs := e.seal(cmd, tx)
	if !replay {
		e.emit(outputs)
	}

	e.idempotency.MarkProcessed(commandType, idempotencyKey)
	e.clock.Advance(cmd.VaultID(), cmd.Timestamp())

	if e.metrics != nil {
		e.metrics.CoreCommandsApplied.WithLabelValues(commandType).Inc()
		e.metrics.CoreCommandDuration.WithLabelValues(commandType).Observe(time.Since(start).Seconds())
		e.metrics.CoreSequence.Set(float64(e.sequence))
		e.metrics.DedupLRUSize.Set(float64(e.idempotency.Size()))
	}
	return outputs, nil
}

func (e *VaultEngine) reject(commandType string, err error) {
	if e.metrics != nil {
		e.metrics.CoreCommandsRejected.WithLabelValues(commandType, state.CodeOf(err)).Inc()
	}
}

// dispatch routes a command to its handler. Every command except InitializeVault acts on
// an existing vault.
func (e *VaultEngine) dispatch(tx *txn, cmd event.Command) error {
	if c, ok := cmd.(*event.InitializeVault); ok {
		return e.handleInitializeVault(tx, c)
	}
	if err := tx.loadVault(); err != nil {
		return err
	}

	switch c := cmd.(type) {
	case *event.InitializeVaultDepositor:
		return e.handleInitializeVaultDepositor(tx, c)
	case *event.Deposit:
		return e.handleDeposit(tx, c)
	case *event.RequestWithdraw:
		return e.handleRequestWithdraw(tx, c)
	case *event.CancelRequestWithdraw:
		return e.handleCancelRequestWithdraw(tx, c)
	case *event.Withdraw:
		return e.handleWithdraw(tx, c)
	case *event.ForceWithdraw:
		return e.handleForceWithdraw(tx, c)
	case *event.ForceWithdrawBatch:
		return e.handleForceWithdrawBatch(tx, c)
	case *event.ManagerUpdateVault:
		return e.handleManagerUpdateVault(tx, c)
	case *event.ManagerUpdateFees:
		return e.handleManagerUpdateFees(tx, c)
	case *event.ManagerCancelFeeUpdate:
		return e.handleManagerCancelFeeUpdate(tx, c)
	case *event.ApplyFeeUpdate:
		return e.handleApplyFeeUpdate(tx, c)
	case *event.AdminInitFeeUpdate:
		return e.handleAdminInitFeeUpdate(tx, c)
	case *event.AdminDeleteFeeUpdate:
		return e.handleAdminDeleteFeeUpdate(tx, c)
	case *event.ManagerUpdateVaultManager:
		return e.handleManagerUpdateVaultManager(tx, c)
	case *event.UpdateDelegate:
		return e.handleUpdateDelegate(tx, c)
	case *event.AdminUpdateVaultClass:
		return e.handleAdminUpdateVaultClass(tx, c)
	case *event.UpdateVaultFuel:
		return e.handleUpdateVaultFuel(tx, c)
	case *event.UpdateDepositorFuel:
		return e.handleUpdateDepositorFuel(tx, c)
	case *event.UpdateDepositorFuelBatch:
		return e.handleUpdateDepositorFuelBatch(tx, c)
	case *event.ResetFuelSeason:
		return e.handleResetFuelSeason(tx, c)
	case *event.ResetFuelSeasonBatch:
		return e.handleResetFuelSeasonBatch(tx, c)
	case *event.ResetVaultFuelSeason:
		return e.handleResetVaultFuelSeason(tx, c)
	case *event.InitializeTokenizedVaultDepositor:
		return e.handleInitializeTokenizedVaultDepositor(tx, c)
	case *event.TokenizeShares:
		return e.handleTokenizeShares(tx, c)
	case *event.RedeemTokens:
		return e.handleRedeemTokens(tx, c)
	case *event.ManagerBorrow:
		return e.handleManagerBorrow(tx, c)
	case *event.ManagerRepay:
		return e.handleManagerRepay(tx, c)
	case *event.ManagerUpdateBorrow:
		return e.handleManagerUpdateBorrow(tx, c)
	case *event.ProtocolRequestWithdraw:
		return e.handleProtocolRequestWithdraw(tx, c)
	case *event.ProtocolCancelWithdrawRequest:
		return e.handleProtocolCancelWithdrawRequest(tx, c)
	case *event.ProtocolWithdraw:
		return e.handleProtocolWithdraw(tx, c)
	case *event.ManagerDeposit:
		return e.handleManagerDeposit(tx, c)
	case *event.ManagerRequestWithdraw:
		return e.handleManagerRequestWithdraw(tx, c)
	case *event.ManagerCancelWithdrawRequest:
		return e.handleManagerCancelWithdrawRequest(tx, c)
	case *event.ManagerWithdraw:
		return e.handleManagerWithdraw(tx, c)
	default:
		return fmt.Errorf("unhandled command type %T", cmd)
	}
}

// seal assigns sequences and chains state hashes over the staged records.
func (e *VaultEngine) seal(cmd event.Command, tx *txn) []CoreOutput {
	outputs := make([]CoreOutput, 0, len(tx.records))
	for i, s := range tx.records {
		seq := e.sequence
		for _, b := range s.batches {
			b.SetSequence(seq)
		}
		digest := recordDigest(s, tx.vault, e.balanceTracker)
		prevHash, stateHash := e.chain.extend(seq, digest)

		outputs = append(outputs, CoreOutput{
			Envelope: &event.RecordEnvelope{
				Sequence:       seq,
				IdempotencyKey: cmd.IdempotencyKey(),
				RecordIndex:    i,
				CommandType:    cmd.CommandType(),
				VaultID:        cmd.VaultID(),
				Timestamp:      cmd.Timestamp(),
				Command:        cmd,
				Record:         s.record,
				StateHash:      stateHash,
				PrevHash:       prevHash,
			},
			Batches:     s.batches,
			StateDigest: digest,
		})
		e.sequence++

		if e.metrics != nil {
			e.metrics.CoreRecordsEmitted.WithLabelValues(s.record.RecordType().String()).Inc()
			for _, b := range s.batches {
				for _, j := range b.Journals {
					e.metrics.CoreJournals.WithLabelValues(j.JournalType.String()).Inc()
				}
			}
		}
	}

	last := &outputs[len(outputs)-1]
	vault := *tx.vault
	last.Vault = &vault
	if tx.protocol != nil {
		p := *tx.protocol
		last.Protocol = &p
	}
	for _, d := range sortedDepositors(tx) {
		last.Depositors = append(last.Depositors, *d)
	}
	for _, t := range sortedTokenized(tx) {
		last.Tokenized = append(last.Tokenized, *t)
	}
	switch {
	case tx.feeDelete:
		last.FeeUpdateDeleted = true
	case tx.feeDirty:
		f := *tx.feeUpdate
		last.FeeUpdate = &f
	}
	return outputs
}

// emit hands outputs to persistence and projections. The persist channel uses a BLOCKING
// send (backpressure); the projection channel drops on full and catches up by rebuild.
func (e *VaultEngine) emit(outputs []CoreOutput) {
	for _, output := range outputs {
		if e.persistChan != nil {
			select {
			case e.persistChan <- output:
			default:
				if e.metrics != nil {
					e.metrics.PersistBackpressure.Inc()
				}
				e.persistChan <- output
			}
		}
		if e.projectionChan != nil {
			select {
			case e.projectionChan <- output:
			default:
				if e.metrics != nil {
					e.metrics.ProjectionDrops.WithLabelValues("core").Inc()
				}
			}
		}
	}
}

// postCheckInvariants validates the committed vault against its ledger accounts.
func (e *VaultEngine) postCheckInvariants(tx *txn) error {
	v := tx.vault
	if err := e.validator.ValidateVaultAccounts(v.ID, v.LastEquity); err != nil {
		return fmt.Errorf("post-check ledger equity: %w", err)
	}
	if borrowed := e.balanceTracker.GetBalance(ledger.BorrowedAccount(v.ID)); borrowed < 0 || uint64(borrowed) != v.ManagerBorrowedValue {
		return fmt.Errorf("post-check borrowed: ledger %d, vault %d", borrowed, v.ManagerBorrowedValue)
	}
	if _, err := v.ManagerShares(tx.protocol); err != nil {
		return fmt.Errorf("post-check shares: user %s + protocol exceed total %s", v.UserShares, v.TotalShares)
	}
	if err := v.CheckShareConservation(e.committedHoldings(v.ID)); err != nil {
		return fmt.Errorf("post-check shares: %w", err)
	}
	for _, t := range tx.tokenized {
		shares, err := t.VaultShares.Int64()
		if err != nil {
			return fmt.Errorf("post-check wrapper: %w", err)
		}
		if err := e.validator.ValidateWrapperSupply(v.ID, t.Authority, shares); err != nil {
			return fmt.Errorf("post-check wrapper: %w", err)
		}
	}

	if e.sequence > 0 && e.sequence%globalCheckInterval == 0 {
		if err := e.validator.ValidateGlobalBalance(); err != nil {
			return fmt.Errorf("post-check global (at seq %d): %w", e.sequence, err)
		}
	}
	return nil
}

// committedHoldings reads every holding of the vault back from the store.
func (e *VaultEngine) committedHoldings(id uuid.UUID) []*state.Holding {
	var out []*state.Holding
	for _, d := range e.store.Depositors(id) {
		out = append(out, &d.Holding)
	}
	for _, t := range e.store.TokenizedDepositors(id) {
		out = append(out, &t.Holding)
	}
	return out
}

func sortedDepositors(tx *txn) []*state.VaultDepositor {
	out := make([]*state.VaultDepositor, 0, len(tx.depositors))
	for _, d := range tx.depositors {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Authority < out[j].Authority })
	return out
}

func sortedTokenized(tx *txn) []*state.TokenizedVaultDepositor {
	out := make([]*state.TokenizedVaultDepositor, 0, len(tx.tokenized))
	for _, t := range tx.tokenized {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Authority < out[j].Authority })
	return out
}

// IsRejection reports whether err is a typed command rejection rather than an engine
// fault.
func IsRejection(err error) bool {
	var e *state.Error
	return errors.As(err, &e)
}

// GetSequence returns the next sequence to be assigned.
func (e *VaultEngine) GetSequence() int64 {
	return e.sequence
}

// GetStateHash returns the hash of the last emitted record.
func (e *VaultEngine) GetStateHash() [32]byte {
	return e.chain.head()
}

// Store exposes the engine's state. Only safe from the goroutine driving the engine.
func (e *VaultEngine) Store() state.Store {
	return e.store
}

// Balances exposes the engine's ledger. Only safe from the goroutine driving the engine.
func (e *VaultEngine) Balances() *ledger.BalanceTracker {
	return e.balanceTracker
}

// LastTimestamp returns the latest applied command time of a vault.
func (e *VaultEngine) LastTimestamp(vault uuid.UUID) (int64, bool) {
	return e.clock.LastTimestamp(vault)
}
