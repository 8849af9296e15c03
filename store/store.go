// Package store implements the keyed account store underneath every
// subsystem: unique creation, rent funding, value transfer and all-or-nothing
// transactions. The store itself knows nothing about record classes; typed
// decoding lives one layer up.
package store

import (
	"sync"

	"github.com/gagliardetto/solana-go"

	"github.com/vitwit/agentfund/types"
)

// Rent model: a created record is funded with a deterministic rent-exempt
// balance proportional to its reserved space, charged to the paying signer
// and refunded on close.
const (
	accountStorageOverhead = 128
	rentPerByte            = 6_960
)

// RentExemptBalance returns the balance reserved for a record of the given
// space.
func RentExemptBalance(space int) uint64 {
	return uint64(accountStorageOverhead+space) * rentPerByte
}

// Account is one entry in the store. Principals appear as system-owned
// entries holding only a balance; records carry Data and are owned by the
// program that created them.
type Account struct {
	Address  solana.PublicKey
	Owner    solana.PublicKey
	Lamports uint64
	Data     []byte
}

func (a *Account) clone() *Account {
	cp := *a
	cp.Data = append([]byte(nil), a.Data...)
	return &cp
}

// Store is the keyed account map. Transactions are serialized: Begin blocks
// until the previous transaction commits or aborts, which linearizes every
// pair of write-overlapping invocations.
type Store struct {
	mu       sync.Mutex
	accounts map[solana.PublicKey]*Account
}

// New returns an empty store.
func New() *Store {
	return &Store{accounts: make(map[solana.PublicKey]*Account)}
}

// Credit adds balance to an account, creating a system-owned entry if
// needed. This is the host's deposit surface (genesis funding, faucets); it
// is not reachable from any entry point.
func (s *Store) Credit(addr solana.PublicKey, amount uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[addr]
	if !ok {
		acc = &Account{Address: addr}
		s.accounts[addr] = acc
	}
	acc.Lamports += amount
}

// Balance returns the current balance of addr, zero if absent.
func (s *Store) Balance(addr solana.PublicKey) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if acc, ok := s.accounts[addr]; ok {
		return acc.Lamports
	}
	return 0
}

// Begin opens a transaction. Every read and write inside an entry point goes
// through the transaction's staged overlay; nothing is visible to other
// invocations until Commit.
func (s *Store) Begin() *Tx {
	s.mu.Lock()
	return &Tx{
		store:   s,
		staged:  make(map[solana.PublicKey]*Account),
		deleted: make(map[solana.PublicKey]bool),
	}
}

// Tx is a single entry-point invocation's view of the store. It is not safe
// for concurrent use; the store lock is held for the lifetime of the
// transaction.
type Tx struct {
	store   *Store
	staged  map[solana.PublicKey]*Account
	deleted map[solana.PublicKey]bool
	done    bool
}

// lookup returns the staged copy of addr, pulling a clone from the committed
// map on first touch.
func (tx *Tx) lookup(addr solana.PublicKey) *Account {
	if tx.deleted[addr] {
		return nil
	}
	if acc, ok := tx.staged[addr]; ok {
		return acc
	}
	if acc, ok := tx.store.accounts[addr]; ok {
		cp := acc.clone()
		tx.staged[addr] = cp
		return cp
	}
	return nil
}

// Exists reports whether addr is occupied.
func (tx *Tx) Exists(addr solana.PublicKey) bool {
	return tx.lookup(addr) != nil
}

// Create reserves a record at addr with the given space, owned by owner and
// rent-funded from payer. Fails AlreadyExists if addr is occupied and
// Insufficient if payer cannot cover the rent.
func (tx *Tx) Create(addr solana.PublicKey, space int, owner, payer solana.PublicKey) (*Account, error) {
	if tx.Exists(addr) {
		return nil, types.Errf(types.ErrAlreadyExists, "account %s already exists", addr)
	}
	rent := RentExemptBalance(space)
	if err := tx.Transfer(payer, addr, rent); err != nil {
		return nil, err
	}
	acc := tx.lookup(addr)
	acc.Owner = owner
	acc.Data = make([]byte, 0, space)
	delete(tx.deleted, addr)
	return acc, nil
}

// Load returns the account at addr, failing NotFound if absent.
func (tx *Tx) Load(addr solana.PublicKey) (*Account, error) {
	acc := tx.lookup(addr)
	if acc == nil {
		return nil, types.Errf(types.ErrNotFound, "account %s does not exist", addr)
	}
	return acc, nil
}

// Write replaces the record bytes at addr.
func (tx *Tx) Write(addr solana.PublicKey, data []byte) error {
	acc := tx.lookup(addr)
	if acc == nil {
		return types.Errf(types.ErrNotFound, "account %s does not exist", addr)
	}
	acc.Data = append(acc.Data[:0], data...)
	return nil
}

// Transfer moves base units from one account to another, creating a
// system-owned entry for the destination if it does not exist yet. Fails
// Insufficient if the source balance cannot cover amount.
func (tx *Tx) Transfer(from, to solana.PublicKey, amount uint64) error {
	src := tx.lookup(from)
	if src == nil || src.Lamports < amount {
		var have uint64
		if src != nil {
			have = src.Lamports
		}
		return types.Errf(types.ErrInsufficient, "account %s holds %d, needs %d", from, have, amount)
	}
	dst := tx.lookup(to)
	if dst == nil {
		dst = &Account{Address: to}
		tx.staged[to] = dst
		delete(tx.deleted, to)
	}
	src.Lamports -= amount
	dst.Lamports += amount
	return nil
}

// Balance returns the in-transaction balance of addr, zero if absent.
func (tx *Tx) Balance(addr solana.PublicKey) uint64 {
	if acc := tx.lookup(addr); acc != nil {
		return acc.Lamports
	}
	return 0
}

// Close removes the record at addr and refunds its entire balance to
// refundTo. Callers are responsible for checking the record's closing rule
// first.
func (tx *Tx) Close(addr, refundTo solana.PublicKey) error {
	acc := tx.lookup(addr)
	if acc == nil {
		return types.Errf(types.ErrNotFound, "account %s does not exist", addr)
	}
	if acc.Lamports > 0 {
		if err := tx.Transfer(addr, refundTo, acc.Lamports); err != nil {
			return err
		}
	}
	delete(tx.staged, addr)
	tx.deleted[addr] = true
	return nil
}

// Commit installs every staged account atomically and releases the store.
func (tx *Tx) Commit() {
	if tx.done {
		return
	}
	for addr := range tx.deleted {
		delete(tx.store.accounts, addr)
	}
	for addr, acc := range tx.staged {
		tx.store.accounts[addr] = acc
	}
	tx.done = true
	tx.store.mu.Unlock()
}

// Abort discards every staged write and releases the store. The committed
// state is exactly as it was before Begin.
func (tx *Tx) Abort() {
	if tx.done {
		return
	}
	tx.staged = nil
	tx.deleted = nil
	tx.done = true
	tx.store.mu.Unlock()
}
