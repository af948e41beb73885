package core

import (
	"VaultLedger/internal/state"

	"github.com/google/uuid"
)

// TimestampGuard keeps command time monotonic per vault. Equal timestamps are accepted
// so several commands can land in the same second.
// Not thread-safe — only accessed from the single-threaded engine.
type TimestampGuard struct {
	lastTs map[uuid.UUID]int64
	stale  map[uuid.UUID]int64
}

func NewTimestampGuard() *TimestampGuard {
	return &TimestampGuard{
		lastTs: make(map[uuid.UUID]int64),
		stale:  make(map[uuid.UUID]int64),
	}
}

// Check rejects a command older than the last one applied to the vault.
func (g *TimestampGuard) Check(vault uuid.UUID, ts int64) error {
	last, ok := g.lastTs[vault]
	if ok && ts < last {
		g.stale[vault]++
		return state.ErrStaleTimestamp.With("vault %s at ts %d, command ts %d", vault, last, ts)
	}
	return nil
}

// Advance records ts as the vault's latest applied command time.
func (g *TimestampGuard) Advance(vault uuid.UUID, ts int64) {
	if last, ok := g.lastTs[vault]; !ok || ts > last {
		g.lastTs[vault] = ts
	}
}

// LastTimestamp returns the latest applied command time for the vault.
func (g *TimestampGuard) LastTimestamp(vault uuid.UUID) (int64, bool) {
	ts, ok := g.lastTs[vault]
	return ts, ok
}

// Stale returns how many commands were rejected as stale for the vault.
func (g *TimestampGuard) Stale(vault uuid.UUID) int64 {
	return g.stale[vault]
}

// Export returns the guard state keyed by vault ID, for snapshots.
func (g *TimestampGuard) Export() map[string]int64 {
	out := make(map[string]int64, len(g.lastTs))
	for k, v := range g.lastTs {
		out[k.String()] = v
	}
	return out
}

// Import replaces the guard state from a snapshot.
func (g *TimestampGuard) Import(m map[string]int64) error {
	g.lastTs = make(map[uuid.UUID]int64, len(m))
	for k, v := range m {
		id, err := uuid.Parse(k)
		if err != nil {
			return err
		}
		g.lastTs[id] = v
	}
	return nil
}
