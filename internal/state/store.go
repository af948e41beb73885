package state

import (
	"sort"

	"github.com/google/uuid"
)

// Store loads and saves vault aggregates. Loads return copies; changes are only visible
// after a Put, which lets the engine stage a command and commit it atomically.
type Store interface {
	Vault(id uuid.UUID) (*Vault, bool)
	PutVault(v *Vault)
	Vaults() []*Vault

	Protocol(vault uuid.UUID) (*VaultProtocol, bool)
	PutProtocol(p *VaultProtocol)

	Depositor(key DepositorKey) (*VaultDepositor, bool)
	PutDepositor(d *VaultDepositor)
	Depositors(vault uuid.UUID) []*VaultDepositor

	Tokenized(key DepositorKey) (*TokenizedVaultDepositor, bool)
	PutTokenized(t *TokenizedVaultDepositor)
	TokenizedDepositors(vault uuid.UUID) []*TokenizedVaultDepositor

	FeeUpdate(vault uuid.UUID) (*FeeUpdate, bool)
	PutFeeUpdate(f *FeeUpdate)
	DeleteFeeUpdate(vault uuid.UUID)
}

// MemoryStore is the in-process Store owned by the single-threaded engine.
// Not thread-safe.
type MemoryStore struct {
	vaults     map[uuid.UUID]Vault
	protocols  map[uuid.UUID]VaultProtocol
	depositors map[DepositorKey]VaultDepositor
	tokenized  map[DepositorKey]TokenizedVaultDepositor
	feeUpdates map[uuid.UUID]FeeUpdate
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		vaults:     make(map[uuid.UUID]Vault),
		protocols:  make(map[uuid.UUID]VaultProtocol),
		depositors: make(map[DepositorKey]VaultDepositor),
		tokenized:  make(map[DepositorKey]TokenizedVaultDepositor),
		feeUpdates: make(map[uuid.UUID]FeeUpdate),
	}
}

func (s *MemoryStore) Vault(id uuid.UUID) (*Vault, bool) {
	v, ok := s.vaults[id]
	if !ok {
		return nil, false
	}
	return &v, true
}

func (s *MemoryStore) PutVault(v *Vault) {
	s.vaults[v.ID] = *v
}

// Vaults returns every vault ordered by ID.
func (s *MemoryStore) Vaults() []*Vault {
	out := make([]*Vault, 0, len(s.vaults))
	for _, v := range s.vaults {
		v := v
		out = append(out, &v)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

func (s *MemoryStore) Protocol(vault uuid.UUID) (*VaultProtocol, bool) {
	p, ok := s.protocols[vault]
	if !ok {
		return nil, false
	}
	return &p, true
}

func (s *MemoryStore) PutProtocol(p *VaultProtocol) {
	s.protocols[p.Vault] = *p
}

func (s *MemoryStore) Depositor(key DepositorKey) (*VaultDepositor, bool) {
	d, ok := s.depositors[key]
	if !ok {
		return nil, false
	}
	return &d, true
}

func (s *MemoryStore) PutDepositor(d *VaultDepositor) {
	s.depositors[d.Key()] = *d
}

// Depositors returns the vault's depositors ordered by authority.
func (s *MemoryStore) Depositors(vault uuid.UUID) []*VaultDepositor {
	out := make([]*VaultDepositor, 0)
	for key, d := range s.depositors {
		if key.Vault != vault {
			continue
		}
		d := d
		out = append(out, &d)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Authority < out[j].Authority
	})
	return out
}

func (s *MemoryStore) Tokenized(key DepositorKey) (*TokenizedVaultDepositor, bool) {
	t, ok := s.tokenized[key]
	if !ok {
		return nil, false
	}
	return &t, true
}

func (s *MemoryStore) PutTokenized(t *TokenizedVaultDepositor) {
	s.tokenized[t.Key()] = *t
}

func (s *MemoryStore) TokenizedDepositors(vault uuid.UUID) []*TokenizedVaultDepositor {
	out := make([]*TokenizedVaultDepositor, 0)
	for key, t := range s.tokenized {
		if key.Vault != vault {
			continue
		}
		t := t
		out = append(out, &t)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Authority < out[j].Authority
	})
	return out
}

func (s *MemoryStore) FeeUpdate(vault uuid.UUID) (*FeeUpdate, bool) {
	f, ok := s.feeUpdates[vault]
	if !ok {
		return nil, false
	}
	return &f, true
}

func (s *MemoryStore) PutFeeUpdate(f *FeeUpdate) {
	s.feeUpdates[f.Vault] = *f
}

func (s *MemoryStore) DeleteFeeUpdate(vault uuid.UUID) {
	delete(s.feeUpdates, vault)
}

// StoreSnapshot is the serializable content of a store.
type StoreSnapshot struct {
	Vaults     []Vault                   `json:"vaults"`
	Protocols  []VaultProtocol           `json:"protocols"`
	Depositors []VaultDepositor          `json:"depositors"`
	Tokenized  []TokenizedVaultDepositor `json:"tokenized"`
	FeeUpdates []FeeUpdate               `json:"fee_updates"`
}

// Snapshot copies the store content in deterministic order.
func (s *MemoryStore) Snapshot() *StoreSnapshot {
	snap := &StoreSnapshot{}
	for _, v := range s.Vaults() {
		snap.Vaults = append(snap.Vaults, *v)
		if p, ok := s.protocols[v.ID]; ok {
			snap.Protocols = append(snap.Protocols, p)
		}
		if f, ok := s.feeUpdates[v.ID]; ok {
			snap.FeeUpdates = append(snap.FeeUpdates, f)
		}
		for _, d := range s.Depositors(v.ID) {
			snap.Depositors = append(snap.Depositors, *d)
		}
		for _, t := range s.TokenizedDepositors(v.ID) {
			snap.Tokenized = append(snap.Tokenized, *t)
		}
	}
	return snap
}

// Restore replaces the store content with snap.
func (s *MemoryStore) Restore(snap *StoreSnapshot) {
	*s = *NewMemoryStore()
	for i := range snap.Vaults {
		s.PutVault(&snap.Vaults[i])
	}
	for i := range snap.Protocols {
		s.PutProtocol(&snap.Protocols[i])
	}
	for i := range snap.Depositors {
		s.PutDepositor(&snap.Depositors[i])
	}
	for i := range snap.Tokenized {
		s.PutTokenized(&snap.Tokenized[i])
	}
	for i := range snap.FeeUpdates {
		s.PutFeeUpdate(&snap.FeeUpdates[i])
	}
}
