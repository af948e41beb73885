package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"VaultLedger/internal/config"
	"VaultLedger/internal/core"
	"VaultLedger/internal/crank"
	"VaultLedger/internal/ingestion"
	"VaultLedger/internal/observability"
	"VaultLedger/internal/persistence"
	"VaultLedger/internal/projection"
	"VaultLedger/internal/query"
	"VaultLedger/internal/recorder"
	"VaultLedger/internal/server"
	"VaultLedger/migrations"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const (
	queueSampleInterval = 5 * time.Second
	shutdownTimeout     = 30 * time.Second
)

func main() {
	var configPath string
	root := &cobra.Command{
		Use:           "vaultledger",
		Short:         "Vault share accounting and fuel distribution ledger",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}
			return run(cmd.Context(), cfg)
		},
	}
	root.Flags().StringVarP(&configPath, "config", "c", os.Getenv("VAULTLEDGER_CONFIG"), "path to the YAML config file")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		logger := observability.NewLogger("main")
		logger.Fatal().Err(err).Msg("vaultledger exited")
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := observability.NewLoggerWithLevel("main", observability.ParseLogLevel(cfg.Log.Level))
	logger.Info().Msg("VaultLedger starting")

	// --- Postgres ---
	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("postgres open: %w", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("postgres ping: %w", err)
	}
	applied, err := persistence.NewMigrator(db, migrations.FS).Up(ctx)
	if err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	logger.Info().Int("applied", applied).Msg("postgres ready")

	// --- Observability ---
	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)
	health := observability.NewHealthChecker()
	health.AddProbe("postgres", db.PingContext)

	// --- Engine ---
	// The persist channel blocks the engine when full; the projection channel drops.
	persistChan := make(chan core.CoreOutput, cfg.Engine.PersistChanSize)
	projectionChan := make(chan core.CoreOutput, cfg.Engine.ProjectionChanSize)

	engineCfg := cfg.EngineConfig(0)
	engine := core.NewVaultEngine(engineCfg, persistChan, projectionChan,
		persistence.NewPostgresIdempotencyChecker(db), metrics)

	queryService := query.NewQueryService(db, metrics)
	snapMgr := persistence.NewSnapshotManager(db)
	projWorker := projection.NewProjectionWorker(db, projectionChan, metrics)

	// --- Recovery ---
	if err := recoverEngine(ctx, engine, snapMgr, queryService, projWorker, metrics, logger); err != nil {
		return err
	}

	runner := core.NewRunner(engine, cfg.Engine.RunnerQueue)
	snapshotter := persistence.NewSnapshotter(runner, snapMgr, metrics)

	// --- Audit recorder ---
	var rec recorder.Recorder = recorder.NewNoopRecorder()
	if cfg.Recorder.SQLitePath != "" {
		sqliteRec, err := recorder.NewSQLiteRecorder(cfg.Recorder.SQLitePath)
		if err != nil {
			return fmt.Errorf("open audit recorder: %w", err)
		}
		rec = sqliteRec
	}
	defer rec.Close()

	// --- NATS ---
	nc, js, err := ingestion.ConnectNATS(cfg.NATS.URL)
	if err != nil {
		return err
	}
	defer nc.Close()
	if err := ingestion.EnsureStreams(ctx, js); err != nil {
		return fmt.Errorf("ensure NATS streams: %w", err)
	}
	health.AddProbe("nats", func(context.Context) error {
		if !nc.IsConnected() {
			return fmt.Errorf("nats: %s", nc.Status())
		}
		return nil
	})

	publisher := ingestion.NewRecordPublisher(js, cfg.Engine.PublishBuffer, metrics)

	persistWorker := persistence.NewPersistenceWorker(db, persistChan,
		cfg.Engine.PersistBatchSize, cfg.Engine.PersistFlushTimeout, metrics)
	persistWorker.OnFlush(publisher.Enqueue)
	persistWorker.OnFlush(recorder.FlushHook(rec))

	rawChan := make(chan ingestion.RawCommand, cfg.Engine.IngestChanSize)
	subscriber := ingestion.NewNATSSubscriber(js, rawChan)
	dispatcher := ingestion.NewDispatcher(runner, rawChan, metrics)

	// --- API ---
	apiServer, err := server.NewGRPCServer(cfg.GRPCAddr(), cfg.HTTPAddr(), &server.ServerDeps{
		Ingest: ingestion.NewGRPCIngestService(runner, metrics),
		Query:  queryService,
		Admin: &server.Admin{
			Runner:      runner,
			Snapshotter: snapshotter,
			Log:         snapMgr,
			Projection:  projWorker,
			Engine:      engineCfg,
		},
		HealthChecker: health,
		AdminToken:    cfg.Server.AdminToken,
	})
	if err != nil {
		return err
	}

	// --- Cranks ---
	var scheduler *crank.Scheduler
	if cfg.Crank.Enabled {
		var venue crank.Venue
		if cfg.NATS.Venue {
			venue = crank.NewNATSVenue(nc)
		}
		scheduler = crank.New(crank.Config{
			Signer:      cfg.Crank.Signer,
			ChunkSize:   cfg.Crank.ChunkSize,
			Parallelism: cfg.Crank.Parallelism,
			FuelSpec:    cfg.Crank.FuelCron,
			FeeSpec:     cfg.Crank.FeeCron,
		}, runner, crank.NewQueryTargets(queryService), venue, metrics)
		if err := scheduler.Register(); err != nil {
			return err
		}
	}

	// Workers that drain engine output run until their channels close, which happens
	// only after the runner has stopped.
	var workers errgroup.Group
	workers.Go(func() error { return persistWorker.Run(context.Background()) })
	workers.Go(func() error { return projWorker.Run(context.Background()) })

	// Everything else stops when the signal context is cancelled or any member fails.
	front, frontCtx := errgroup.WithContext(ctx)
	front.Go(func() error { return runner.Run(frontCtx) })
	front.Go(func() error { return dispatcher.Run(frontCtx) })
	front.Go(func() error { return publisher.Run(frontCtx) })
	front.Go(func() error { return apiServer.StartGRPC(frontCtx) })
	front.Go(func() error { return apiServer.StartHTTPGateway(frontCtx) })
	front.Go(func() error { return snapshotter.Run(frontCtx, cfg.Engine.SnapshotInterval) })
	front.Go(func() error { return serveMetrics(frontCtx, cfg.MetricsAddr(), logger) })
	front.Go(func() error {
		return metrics.SampleQueues(frontCtx, queueSampleInterval, map[string]observability.QueueProbe{
			"persist":    func() (int, int) { return len(persistChan), cap(persistChan) },
			"projection": func() (int, int) { return len(projectionChan), cap(projectionChan) },
			"ingest":     func() (int, int) { return len(rawChan), cap(rawChan) },
			"publish":    publisher.Pending,
			"runner":     runner.Queue,
		})
	})
	if scheduler != nil {
		front.Go(func() error { return scheduler.Run(frontCtx) })
	}

	if err := subscriber.Subscribe(frontCtx, ingestion.DefaultSubjects()); err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	apiServer.SetReady(true)
	logger.Info().
		Int64("sequence", runner.Sequence()).
		Str("grpc", cfg.GRPCAddr()).
		Str("http", cfg.HTTPAddr()).
		Str("metrics", cfg.MetricsAddr()).
		Bool("cranks", scheduler != nil).
		Msg("VaultLedger ready")

	runErr := front.Wait()
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		logger.Error().Err(runErr).Msg("component failed, shutting down")
	} else {
		logger.Info().Msg("shutdown signal received")
		runErr = nil
	}

	// --- Graceful shutdown ---
	// The runner has exited, so the engine emits nothing more: stop intake, let the
	// workers drain, then store a final snapshot.
	apiServer.SetReady(false)
	subscriber.Stop()
	close(persistChan)
	close(projectionChan)
	if err := workers.Wait(); err != nil {
		logger.Error().Err(err).Msg("output worker failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if seq, _, err := snapshotter.TakeSnapshot(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("final snapshot failed")
	} else {
		logger.Info().Int64("sequence", seq).Msg("final snapshot saved")
	}

	logger.Info().Msg("VaultLedger shutdown complete")
	return runErr
}

// recoverEngine restores the latest snapshot, replays the log after it and brings the
// projections up to the log head where the replay covers their gap.
func recoverEngine(
	ctx context.Context,
	engine *core.VaultEngine,
	snapMgr *persistence.SnapshotManager,
	qs *query.QueryService,
	projWorker *projection.ProjectionWorker,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) error {
	watermark, err := qs.Watermark(ctx)
	if err != nil {
		return fmt.Errorf("read projection watermark: %w", err)
	}

	replayer := persistence.NewReplayer(snapMgr, metrics)
	caughtUp := int64(0)
	replayer.OnReplay(func(outs []core.CoreOutput) error {
		for _, out := range outs {
			if out.Envelope.Sequence <= watermark {
				continue
			}
			if err := projWorker.Apply(ctx, out); err != nil {
				return fmt.Errorf("project seq %d: %w", out.Envelope.Sequence, err)
			}
			caughtUp++
		}
		return nil
	})

	replayed, err := replayer.Recover(ctx, engine)
	if err != nil {
		return fmt.Errorf("recover engine: %w", err)
	}
	if caughtUp > 0 {
		logger.Info().Int64("records", caughtUp).Msg("projections caught up during replay")
	}

	head := engine.GetSequence() - 1
	watermark, err = qs.Watermark(ctx)
	if err != nil {
		return fmt.Errorf("read projection watermark: %w", err)
	}
	if watermark < head {
		logger.Warn().Int64("watermark", watermark).Int64("head", head).
			Msg("projections behind the log, run vaultctl admin rebuild")
	}
	logger.Info().Int64("replayed", replayed).Int64("sequence", engine.GetSequence()).Msg("engine recovered")
	return nil
}

func serveMetrics(ctx context.Context, addr string, logger zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutCtx)
	}()

	logger.Info().Str("addr", addr).Msg("metrics server listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}
