package crank

import (
	"context"
	"fmt"
	"time"

	"VaultLedger/internal/core"
	"VaultLedger/internal/event"
	"VaultLedger/internal/observability"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const sweepTimeout = 5 * time.Minute

// Submitter applies a command. *core.Runner implements it.
type Submitter interface {
	Submit(ctx context.Context, cmd event.Command) core.Result
}

// Config controls the crank schedules. Specs use the six-field cron format with seconds.
type Config struct {
	Signer      string
	ChunkSize   int
	Parallelism int
	FuelSpec    string
	FeeSpec     string
}

// Scheduler runs the permissionless cranks: fuel distribution and matured fee updates.
type Scheduler struct {
	cron      *cron.Cron
	cfg       Config
	submitter Submitter
	targets   Targets
	venue     Venue
	metrics   *observability.Metrics
	logger    zerolog.Logger
	now       func() time.Time
	ctx       context.Context
}

// New builds a scheduler. With a nil venue only the depositor fuel sweep runs, since the
// vault fuel and fee cranks need a fresh valuation.
func New(cfg Config, submitter Submitter, targets Targets, venue Venue, metrics *observability.Metrics) *Scheduler {
	if cfg.ChunkSize <= 0 || cfg.ChunkSize > core.DefaultMaxBatchSize {
		cfg.ChunkSize = core.DefaultMaxBatchSize
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 4
	}
	logger := observability.NewLogger("crank")
	return &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithChain(cron.SkipIfStillRunning(cron.PrintfLogger(&logger))),
		),
		cfg:       cfg,
		submitter: submitter,
		targets:   targets,
		venue:     venue,
		metrics:   metrics,
		logger:    logger,
		now:       time.Now,
		ctx:       context.Background(),
	}
}

// Register adds the configured cron jobs. An empty spec disables that crank.
func (s *Scheduler) Register() error {
	if s.cfg.FuelSpec != "" {
		if _, err := s.cron.AddFunc(s.cfg.FuelSpec, func() { s.run("fuel", s.FuelSweep) }); err != nil {
			return fmt.Errorf("register fuel crank: %w", err)
		}
	}
	if s.cfg.FeeSpec != "" && s.venue != nil {
		if _, err := s.cron.AddFunc(s.cfg.FeeSpec, func() { s.run("fee_update", s.FeeSweep) }); err != nil {
			return fmt.Errorf("register fee crank: %w", err)
		}
	}
	return nil
}

// Run starts the cron loop and blocks until ctx is cancelled, then waits for running
// sweeps to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	s.ctx = ctx
	s.cron.Start()
	s.logger.Info().Int("jobs", len(s.cron.Entries())).Msg("crank scheduler started")

	<-ctx.Done()
	<-s.cron.Stop().Done()
	s.logger.Info().Msg("crank scheduler stopped")
	return nil
}

func (s *Scheduler) run(name string, sweep func(context.Context) error) {
	ctx, cancel := context.WithTimeout(s.ctx, sweepTimeout)
	defer cancel()

	if s.metrics != nil {
		s.metrics.CrankRuns.WithLabelValues(name).Inc()
	}
	start := time.Now()
	if err := sweep(ctx); err != nil {
		s.logger.Warn().Err(err).Str("crank", name).Msg("sweep finished with errors")
		return
	}
	s.logger.Debug().Str("crank", name).Dur("took", time.Since(start)).Msg("sweep complete")
}

func (s *Scheduler) header(vault uuid.UUID) event.Header {
	return event.Header{
		RequestID: uuid.New(),
		Vault:     vault,
		SignedBy:  s.cfg.Signer,
		Ts:        s.now().Unix(),
	}
}

func (s *Scheduler) submit(ctx context.Context, crank string, cmd event.Command) error {
	res := s.submitter.Submit(ctx, cmd)
	if res.Err != nil {
		if s.metrics != nil {
			s.metrics.CrankErrors.WithLabelValues(crank).Inc()
		}
		return fmt.Errorf("%s on vault %s: %w", cmd.CommandType(), cmd.VaultID(), res.Err)
	}
	return nil
}

// FuelSweep refreshes every vault's fuel accumulator from the venue, then credits its
// depositors and wrapper holders in chunks.
func (s *Scheduler) FuelSweep(ctx context.Context) error {
	vaults, err := s.targets.Vaults(ctx)
	if err != nil {
		return fmt.Errorf("list vaults: %w", err)
	}

	var g errgroup.Group
	g.SetLimit(s.cfg.Parallelism)
	for _, v := range vaults {
		v := v
		g.Go(func() error { return s.fuelVault(ctx, v) })
	}
	return g.Wait()
}

func (s *Scheduler) fuelVault(ctx context.Context, v VaultTarget) error {
	if s.venue != nil {
		val, err := s.venue.Valuation(ctx, v.ID)
		if err != nil {
			return err
		}
		if val.FuelReading != nil {
			cmd := &event.UpdateVaultFuel{Header: s.header(v.ID), Reading: *val.FuelReading}
			if err := s.submit(ctx, "fuel", cmd); err != nil {
				return err
			}
		}
	} else if !v.HasFuelAccruals {
		return nil
	}

	holders, err := s.targets.Holders(ctx, v.ID)
	if err != nil {
		return fmt.Errorf("list holders of %s: %w", v.ID, err)
	}
	for _, chunk := range Chunk(holders, s.cfg.ChunkSize) {
		cmd := &event.UpdateDepositorFuelBatch{Header: s.header(v.ID)}
		for _, h := range chunk {
			if h.Tokenized {
				cmd.Tokenized = append(cmd.Tokenized, h.Authority)
			} else {
				cmd.Authorities = append(cmd.Authorities, h.Authority)
			}
		}
		if err := s.submit(ctx, "fuel", cmd); err != nil {
			return err
		}
	}
	return nil
}

// FeeSweep applies fee updates whose timelock has expired.
func (s *Scheduler) FeeSweep(ctx context.Context) error {
	vaults, err := s.targets.Vaults(ctx)
	if err != nil {
		return fmt.Errorf("list vaults: %w", err)
	}

	now := s.now().Unix()
	var g errgroup.Group
	g.SetLimit(s.cfg.Parallelism)
	for _, v := range vaults {
		v := v
		if !v.HasFeeUpdate || v.FeeUpdateEndTs > now {
			continue
		}
		g.Go(func() error {
			val, err := s.venue.Valuation(ctx, v.ID)
			if err != nil {
				return err
			}
			return s.submit(ctx, "fee_update", &event.ApplyFeeUpdate{Header: s.header(v.ID), Valuation: val})
		})
	}
	return g.Wait()
}

// Chunk splits items into consecutive slices of at most size elements.
func Chunk[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = core.DefaultMaxBatchSize
	}
	chunks := make([][]T, 0, (len(items)+size-1)/size)
	for len(items) > 0 {
		n := min(size, len(items))
		chunks = append(chunks, items[:n:n])
		items = items[n:]
	}
	return chunks
}
