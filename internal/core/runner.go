package core

import (
	"context"
	"errors"
	"sync/atomic"

	"VaultLedger/internal/event"
)

// ErrRunnerStopped is returned to submitters once the runner has exited.
var ErrRunnerStopped = errors.New("engine runner stopped")

// Result is what the engine produced for one submitted command.
type Result struct {
	Outputs []CoreOutput
	Err     error
}

type request struct {
	cmd      event.Command
	snapshot bool
	reply    chan response
}

type response struct {
	result Result
	snap   *Snapshot
}

// Runner owns a VaultEngine and serializes every access to it on one goroutine. Ingest
// paths (NATS, gRPC, crank scheduler) submit through it concurrently.
type Runner struct {
	engine   *VaultEngine
	requests chan request
	done     chan struct{}

	sequence atomic.Int64
}

func NewRunner(engine *VaultEngine, queueSize int) *Runner {
	r := &Runner{
		engine:   engine,
		requests: make(chan request, queueSize),
		done:     make(chan struct{}),
	}
	r.sequence.Store(engine.GetSequence())
	return r
}

// Run drives the engine until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	defer close(r.done)
	for {
		select {
		case <-ctx.Done():
			return nil
		case req := <-r.requests:
			var resp response
			if req.snapshot {
				resp.snap = r.engine.CreateSnapshot()
			} else {
				outs, err := r.engine.ProcessCommand(req.cmd)
				resp.result = Result{Outputs: outs, Err: err}
				r.sequence.Store(r.engine.GetSequence())
			}
			req.reply <- resp
		}
	}
}

// Submit applies cmd and waits for the result.
func (r *Runner) Submit(ctx context.Context, cmd event.Command) Result {
	resp, err := r.do(ctx, request{cmd: cmd})
	if err != nil {
		return Result{Err: err}
	}
	return resp.result
}

// Snapshot captures the engine state between two commands.
func (r *Runner) Snapshot(ctx context.Context) (*Snapshot, error) {
	select {
	case <-r.done:
		// Run has returned, so nothing else touches the engine.
		return r.engine.CreateSnapshot(), nil
	default:
	}
	resp, err := r.do(ctx, request{snapshot: true})
	if err != nil {
		return nil, err
	}
	return resp.snap, nil
}

// Sequence returns the engine's next sequence as of the last applied command.
func (r *Runner) Sequence() int64 {
	return r.sequence.Load()
}

// Queue reports how many submissions are waiting for the engine.
func (r *Runner) Queue() (size, capacity int) {
	return len(r.requests), cap(r.requests)
}

func (r *Runner) do(ctx context.Context, req request) (response, error) {
	req.reply = make(chan response, 1)
	select {
	case r.requests <- req:
	case <-r.done:
		return response{}, ErrRunnerStopped
	case <-ctx.Done():
		return response{}, ctx.Err()
	}
	select {
	case resp := <-req.reply:
		return resp, nil
	case <-r.done:
		// The command may have been applied just before the runner exited.
		select {
		case resp := <-req.reply:
			return resp, nil
		default:
			return response{}, ErrRunnerStopped
		}
	case <-ctx.Done():
		return response{}, ctx.Err()
	}
}
