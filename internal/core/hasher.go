package core

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sort"

	"VaultLedger/internal/ledger"
	"VaultLedger/internal/state"
)

const genesisSeed = "VaultLedger:genesis:v1"

// hashChain links every audit record to the one before it:
//
//	tip[N] = SHA-256(tip[N-1] || seq (8 bytes BE) || digest[N])
type hashChain struct {
	tip [32]byte
}

func newHashChain() *hashChain {
	return &hashChain{tip: sha256.Sum256([]byte(genesisSeed))}
}

// extend hashes the next record onto the chain and returns the old and new tips.
func (c *hashChain) extend(seq int64, digest []byte) (prev, next [32]byte) {
	prev = c.tip
	buf := make([]byte, 0, len(prev)+8+len(digest))
	buf = append(buf, prev[:]...)
	buf = binary.BigEndian.AppendUint64(buf, uint64(seq))
	buf = append(buf, digest...)
	c.tip = sha256.Sum256(buf)
	return prev, c.tip
}

func (c *hashChain) head() [32]byte { return c.tip }

// reset moves the tip, used when restoring from a snapshot.
func (c *hashChain) reset(tip [32]byte) { c.tip = tip }

// recordDigest is the canonical byte form of what a record changed: the record itself,
// the vault it left behind and the balance of every account its journals touched,
// ordered by account path.
func recordDigest(s stagedRecord, v *state.Vault, balances *ledger.BalanceTracker) []byte {
	recordJSON, err := json.Marshal(s.record)
	if err != nil {
		panic(fmt.Sprintf("FATAL: record not serializable: %v", err))
	}
	vaultJSON, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("FATAL: vault not serializable: %v", err))
	}

	paths := make(map[string]ledger.AccountKey)
	for _, b := range s.batches {
		for _, j := range b.Journals {
			paths[j.DebitAccount.AccountPath()] = j.DebitAccount
			paths[j.CreditAccount.AccountPath()] = j.CreditAccount
		}
	}
	sorted := make([]string, 0, len(paths))
	for p := range paths {
		sorted = append(sorted, p)
	}
	sort.Strings(sorted)

	digest := make([]byte, 0, len(recordJSON)+len(vaultJSON)+len(sorted)*64)
	digest = append(digest, recordJSON...)
	digest = append(digest, vaultJSON...)
	for _, p := range sorted {
		digest = append(digest, byte(len(p)))
		digest = append(digest, p...)
		digest = binary.BigEndian.AppendUint64(digest, uint64(balances.GetBalance(paths[p])))
	}
	return digest
}
