package core

import (
	"errors"
	"testing"
)

type stubDB struct {
	seen map[string]bool
	err  error
}

func (s *stubDB) IsDuplicate(commandType, key string) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	return s.seen[CompositeKey(commandType, key)], nil
}

func TestRecentKeys_EvictsLeastRecent(t *testing.T) {
	r := newRecentKeys(2)
	r.insert("a")
	r.insert("b")
	r.touch("a") // a is now most recent
	r.insert("c")

	if r.touch("b") {
		t.Fatalf("b should have been evicted")
	}
	if got := r.oldestFirst(); len(got) != 2 || got[0] != "a" || got[1] != "c" {
		t.Fatalf("oldestFirst: got %v, want [a c]", got)
	}
	if r.evicted != 1 {
		t.Fatalf("evicted: got %d, want 1", r.evicted)
	}
}

func TestIdempotencyChecker_WarmKeepsOrder(t *testing.T) {
	src := NewIdempotencyChecker(2, nil)
	src.MarkProcessed("Deposit", "a")
	src.MarkProcessed("Deposit", "c")

	warm := NewIdempotencyChecker(2, nil)
	warm.Warm(src.Keys())
	warm.MarkProcessed("Deposit", "d")
	if warm.Seen("Deposit", "a") || !warm.Seen("Deposit", "c") {
		t.Fatalf("warmed checker must keep the original recency order")
	}
	if warm.Size() != 2 {
		t.Fatalf("Size: got %d, want 2", warm.Size())
	}
}

func TestIdempotencyChecker_Tiers(t *testing.T) {
	db := &stubDB{seen: map[string]bool{CompositeKey("Deposit", "k1"): true}}
	ic := NewIdempotencyChecker(8, db)

	if tier, err := ic.Lookup("Deposit", "k1"); tier != DedupTierLog || err != nil {
		t.Fatalf("first lookup: got (%q, %v), want postgres hit", tier, err)
	}
	if tier, _ := ic.Lookup("Deposit", "k1"); tier != DedupTierMemory {
		t.Fatalf("second lookup: got %q, want lru hit", tier)
	}
	if tier, _ := ic.Lookup("Withdraw", "k1"); tier != "" {
		t.Fatalf("same key under another command type is not a duplicate")
	}
	if ic.Seen("Withdraw", "k9") {
		t.Fatalf("Seen must not consult the log")
	}

	db.err = errors.New("connection refused")
	tier, err := ic.Lookup("Deposit", "k2")
	if tier != "" || err == nil {
		t.Fatalf("tier-2 failure: got (%q, %v), want a miss with the error", tier, err)
	}

	ic.MarkProcessed("Deposit", "k2")
	if tier, _ := ic.Lookup("Deposit", "k2"); tier != DedupTierMemory {
		t.Fatalf("processed key must hit the lru")
	}
}
