package core

import (
	"container/list"
)

// DedupTier names where a duplicate command was found.
type DedupTier string

const (
	DedupTierMemory DedupTier = "lru"
	DedupTierLog    DedupTier = "postgres"
)

// DBIdempotencyChecker looks a command up in the durable record log.
type DBIdempotencyChecker interface {
	IsDuplicate(commandType string, idempotencyKey string) (bool, error)
}

// IdempotencyChecker answers "was this command already applied?" from a bounded set of
// recent keys first and the record log second.
type IdempotencyChecker struct {
	recent *recentKeys
	db     DBIdempotencyChecker
}

func NewIdempotencyChecker(capacity int, db DBIdempotencyChecker) *IdempotencyChecker {
	return &IdempotencyChecker{recent: newRecentKeys(capacity), db: db}
}

// CompositeKey joins a command type and idempotency key the way they are stored.
func CompositeKey(commandType, idempotencyKey string) string {
	return commandType + ":" + idempotencyKey
}

// Seen consults only the in-memory tier. Replay uses it: the log being replayed is the
// durable tier.
func (ic *IdempotencyChecker) Seen(commandType, idempotencyKey string) bool {
	return ic.recent.touch(CompositeKey(commandType, idempotencyKey))
}

// Lookup returns the tier holding the command, or "" when it is new. A log lookup error
// comes back with a miss; the log's unique index still rejects the replayed insert.
func (ic *IdempotencyChecker) Lookup(commandType, idempotencyKey string) (DedupTier, error) {
	key := CompositeKey(commandType, idempotencyKey)
	if ic.recent.touch(key) {
		return DedupTierMemory, nil
	}
	if ic.db == nil {
		return "", nil
	}
	dup, err := ic.db.IsDuplicate(commandType, idempotencyKey)
	if err != nil || !dup {
		return "", err
	}
	ic.recent.insert(key)
	return DedupTierLog, nil
}

func (ic *IdempotencyChecker) MarkProcessed(commandType, idempotencyKey string) {
	ic.recent.insert(CompositeKey(commandType, idempotencyKey))
}

// Keys returns the remembered composite keys, oldest first.
func (ic *IdempotencyChecker) Keys() []string { return ic.recent.oldestFirst() }

// Warm reloads keys produced by Keys, keeping their recency order.
func (ic *IdempotencyChecker) Warm(keys []string) {
	for _, k := range keys {
		ic.recent.insert(k)
	}
}

func (ic *IdempotencyChecker) Size() int { return ic.recent.order.Len() }

// recentKeys is a recency-ordered set that drops its least recently used key past
// limit. Engine goroutine only.
type recentKeys struct {
	limit   int
	index   map[string]*list.Element
	order   *list.List // front is most recent
	evicted int64
}

func newRecentKeys(limit int) *recentKeys {
	if limit <= 0 {
		limit = 1
	}
	return &recentKeys{limit: limit, index: make(map[string]*list.Element), order: list.New()}
}

// touch reports whether key is present and marks it most recent if so.
func (r *recentKeys) touch(key string) bool {
	el, ok := r.index[key]
	if ok {
		r.order.MoveToFront(el)
	}
	return ok
}

func (r *recentKeys) insert(key string) {
	if r.touch(key) {
		return
	}
	r.index[key] = r.order.PushFront(key)
	for r.order.Len() > r.limit {
		oldest := r.order.Back()
		r.order.Remove(oldest)
		delete(r.index, oldest.Value.(string))
		r.evicted++
	}
}

func (r *recentKeys) oldestFirst() []string {
	out := make([]string, 0, r.order.Len())
	for el := r.order.Back(); el != nil; el = el.Prev() {
		out = append(out, el.Value.(string))
	}
	return out
}
