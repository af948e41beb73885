package ingestion

import (
	"context"
	"errors"
	"time"

	"VaultLedger/internal/core"
	"VaultLedger/internal/event"
	"VaultLedger/internal/observability"
	"VaultLedger/internal/state"

	"github.com/rs/zerolog"
)

// Submitter applies a command against the engine. *core.Runner implements it.
type Submitter interface {
	Submit(ctx context.Context, cmd event.Command) core.Result
}

// Dispatcher decodes raw NATS commands and submits them one at a time. A message is
// acked once the engine has decided it, whether applied or rejected; it is nak'd only
// when the engine never saw it.
type Dispatcher struct {
	submitter Submitter
	rawChan   <-chan RawCommand
	metrics   *observability.Metrics
	logger    zerolog.Logger
}

func NewDispatcher(submitter Submitter, rawChan <-chan RawCommand, metrics *observability.Metrics) *Dispatcher {
	return &Dispatcher{
		submitter: submitter,
		rawChan:   rawChan,
		metrics:   metrics,
		logger:    observability.NewLogger("dispatcher"),
	}
}

// Run consumes rawChan until ctx is cancelled or the channel closes.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case raw, ok := <-d.rawChan:
			if !ok {
				return nil
			}
			d.handle(ctx, raw)
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, raw RawCommand) {
	cmd, err := ParseMessage(raw.Subject, raw.Data)
	if err != nil {
		d.logger.Warn().Err(err).Str("subject", raw.Subject).Msg("dropping unparseable command")
		settle(raw.TermFunc, raw.AckFunc)
		return
	}

	res := d.submitter.Submit(ctx, cmd)
	switch {
	case res.Err == nil:
		if d.metrics != nil && !raw.ReceivedAt.IsZero() {
			d.metrics.IngestToApply.WithLabelValues("nats").Observe(time.Since(raw.ReceivedAt).Seconds())
		}
		settle(raw.AckFunc)
	case errors.Is(res.Err, core.ErrRunnerStopped),
		errors.Is(res.Err, context.Canceled),
		errors.Is(res.Err, context.DeadlineExceeded):
		settle(raw.NakFunc)
	default:
		ev := d.logger.Info()
		if _, typed := state.KindOf(res.Err); !typed {
			ev = d.logger.Error()
		}
		ev.Err(res.Err).
			Str("code", state.CodeOf(res.Err)).
			Str("command_type", cmd.CommandType().String()).
			Str("request_id", cmd.IdempotencyKey()).
			Str("vault_id", cmd.VaultID().String()).
			Msg("command rejected")
		settle(raw.AckFunc)
	}
}

// settle calls the first non-nil function.
func settle(fns ...func()) {
	for _, fn := range fns {
		if fn != nil {
			fn()
			return
		}
	}
}
