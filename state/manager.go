// Package state holds the authoritative account-balance ledger. The
// account table has a single writer: every mutation goes through the
// Manager under its lock, so block application and staking updates never
// interleave.
package state

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/quantumfuse-labs/quantumfuse/amount"
	"github.com/quantumfuse-labs/quantumfuse/crypto/hash"
	"github.com/quantumfuse-labs/quantumfuse/types"
)

// RewardPoolAddress collects transaction fees when a block carries no
// proposer identity.
const RewardPoolAddress = "qf-reward-pool"

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInvalidNonce        = errors.New("invalid nonce")
)

// Manager owns the account table.
type Manager struct {
	mu       sync.RWMutex
	accounts map[string]*types.Account

	// OnBalanceUpdate, when set, is invoked after each committed balance
	// change with the address and its new balance. Set before use; not
	// mutated concurrently with transfers.
	OnBalanceUpdate func(address string, balance amount.Amount)
}

func NewManager() *Manager {
	return &Manager{
		accounts: make(map[string]*types.Account),
	}
}

// GetBalance never fails; unknown addresses have balance zero.
func (m *Manager) GetBalance(address string) amount.Amount {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if acc, ok := m.accounts[address]; ok {
		return acc.Balance
	}
	return 0
}

// GetStaked returns the staked amount of an address, zero when unknown.
func (m *Manager) GetStaked(address string) amount.Amount {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if acc, ok := m.accounts[address]; ok {
		return acc.Staked
	}
	return 0
}

// GetAccount returns a copy of the account record, or nil when unknown.
func (m *Manager) GetAccount(address string) *types.Account {
	m.mu.RLock()
	defer m.mu.RUnlock()

	acc, ok := m.accounts[address]
	if !ok {
		return nil
	}
	return copyAccount(acc)
}

// Credit adds funds to an address, creating the account on first credit.
func (m *Manager) Credit(address string, amt amount.Amount) error {
	if amt <= 0 {
		return fmt.Errorf("%w: credit of %d", ErrInvalidAmount, amt)
	}

	m.mu.Lock()
	acc := m.getOrCreate(address)
	acc.Balance += amt
	balance := acc.Balance
	m.mu.Unlock()

	m.notifyBalance(address, balance)
	return nil
}

// ApplyTransfer atomically debits the sender by amount+fee, credits the
// recipient by amount, and credits the proposer (or the reward pool when
// proposer is empty) by the fee. The nonce must equal the sender's
// current account nonce, so a committed transfer can never be applied a
// second time. The debit fails with ErrInsufficientBalance when the
// sender's spendable balance cannot cover amount+fee; no partial
// application happens.
func (m *Manager) ApplyTransfer(sender, recipient string, amt, fee amount.Amount, nonce uint64, proposer string) error {
	m.mu.Lock()
	err := m.applyTransferLocked(m.accounts, sender, recipient, amt, fee, nonce, proposer)
	if err != nil {
		m.mu.Unlock()
		return err
	}

	senderBalance := m.accounts[sender].Balance
	recipientBalance := m.accounts[recipient].Balance
	m.mu.Unlock()

	m.notifyBalance(sender, senderBalance)
	m.notifyBalance(recipient, recipientBalance)
	return nil
}

// ApplyBlock applies every transfer of a block in order against a scratch
// view and commits only if all of them succeed. A failing transfer leaves
// every balance unchanged.
func (m *Manager) ApplyBlock(txs []*types.Transaction, proposer string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	scratch := make(map[string]*types.Account, len(m.accounts))
	for addr, acc := range m.accounts {
		cp := *acc
		scratch[addr] = &cp
	}

	for _, tx := range txs {
		if err := m.applyTransferLocked(scratch, tx.Sender, tx.Recipient, tx.Amount, tx.Fee, tx.Nonce, proposer); err != nil {
			return fmt.Errorf("transaction %s: %w", tx.Hash.String(), err)
		}
	}

	m.accounts = scratch
	return nil
}

func (m *Manager) applyTransferLocked(table map[string]*types.Account, sender, recipient string, amt, fee amount.Amount, nonce uint64, proposer string) error {
	if amt <= 0 {
		return fmt.Errorf("%w: transfer of %d", ErrInvalidAmount, amt)
	}
	if fee < 0 {
		return fmt.Errorf("%w: fee of %d", ErrInvalidAmount, fee)
	}

	from, ok := table[sender]
	if !ok || from.Spendable() < amt+fee {
		return fmt.Errorf("%w: %s cannot cover %d", ErrInsufficientBalance, sender, amt+fee)
	}
	if nonce != from.Nonce {
		return fmt.Errorf("%w: %s expected nonce %d, got %d", ErrInvalidNonce, sender, from.Nonce, nonce)
	}

	feeTarget := proposer
	if feeTarget == "" {
		feeTarget = RewardPoolAddress
	}

	from.Balance -= amt + fee
	from.Nonce++

	to := getOrCreateIn(table, recipient)
	to.Balance += amt

	pool := getOrCreateIn(table, feeTarget)
	pool.Balance += fee

	return nil
}

// Stake reserves part of the spendable balance for staking.
func (m *Manager) Stake(address string, amt amount.Amount) error {
	if amt <= 0 {
		return fmt.Errorf("%w: stake of %d", ErrInvalidAmount, amt)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	acc, ok := m.accounts[address]
	if !ok || acc.Spendable() < amt {
		return fmt.Errorf("%w: %s cannot stake %d", ErrInsufficientBalance, address, amt)
	}

	acc.Staked += amt
	return nil
}

// Unstake releases part of the staked amount back to the spendable
// balance.
func (m *Manager) Unstake(address string, amt amount.Amount) error {
	if amt <= 0 {
		return fmt.Errorf("%w: unstake of %d", ErrInvalidAmount, amt)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	acc, ok := m.accounts[address]
	if !ok || acc.Staked < amt {
		return fmt.Errorf("%w: %s has no %d staked", ErrInsufficientBalance, address, amt)
	}

	acc.Staked -= amt
	return nil
}

// Delegate assigns part of the staked amount as voting weight to a
// validator. Delegations never exceed the staked amount.
func (m *Manager) Delegate(address, validator string, amt amount.Amount) error {
	if amt <= 0 {
		return fmt.Errorf("%w: delegation of %d", ErrInvalidAmount, amt)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	acc, ok := m.accounts[address]
	if !ok {
		return fmt.Errorf("%w: %s has nothing staked", ErrInsufficientBalance, address)
	}

	delegated := amount.Amount(0)
	for _, a := range acc.DelegatedTo {
		delegated += a
	}
	if acc.Staked-delegated < amt {
		return fmt.Errorf("%w: %s cannot delegate %d beyond stake", ErrInsufficientBalance, address, amt)
	}

	if acc.DelegatedTo == nil {
		acc.DelegatedTo = make(map[string]amount.Amount)
	}
	acc.DelegatedTo[validator] += amt
	return nil
}

// Accounts returns a copy of every account record, ordered by address.
func (m *Manager) Accounts() []*types.Account {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*types.Account, 0, len(m.accounts))
	for _, acc := range m.accounts {
		out = append(out, copyAccount(acc))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}

// RestoreAccounts installs persisted account records, replacing any
// existing entry for the same address. Used once at startup before the
// ledger accepts blocks.
func (m *Manager) RestoreAccounts(accounts []*types.Account) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, acc := range accounts {
		m.accounts[acc.Address] = copyAccount(acc)
	}
}

// Stakeholders returns the staked amount per address.
func (m *Manager) Stakeholders() map[string]amount.Amount {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]amount.Amount)
	for addr, acc := range m.accounts {
		if acc.Staked > 0 {
			out[addr] = acc.Staked
		}
	}
	return out
}

// DelegatedWeight sums the weight delegated to each validator.
func (m *Manager) DelegatedWeight() map[string]amount.Amount {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]amount.Amount)
	for _, acc := range m.accounts {
		for validator, amt := range acc.DelegatedTo {
			out[validator] += amt
		}
	}
	return out
}

// TotalSupply sums every account balance, the conservation quantity.
func (m *Manager) TotalSupply() amount.Amount {
	m.mu.RLock()
	defer m.mu.RUnlock()

	total := amount.Amount(0)
	for _, acc := range m.accounts {
		total += acc.Balance
	}
	return total
}

// StateRoot computes a deterministic digest over the whole account table.
func (m *Manager) StateRoot() (hash.Hash, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	addresses := make([]string, 0, len(m.accounts))
	for addr := range m.accounts {
		addresses = append(addresses, addr)
	}
	sort.Strings(addresses)

	h, err := blake2b.New256(nil)
	if err != nil {
		return hash.Hash{}, err
	}
	for _, addr := range addresses {
		data, err := m.accounts[addr].Marshal()
		if err != nil {
			return hash.Hash{}, fmt.Errorf("failed to serialize account %s: %v", addr, err)
		}
		h.Write([]byte(addr))
		h.Write(data)
	}

	root, err := hash.FromBytes(h.Sum(nil))
	if err != nil {
		return hash.Hash{}, err
	}
	return root, nil
}

// Snapshot captures the state root and account count at a point in time.
type Snapshot struct {
	Root      hash.Hash
	Accounts  int
	Timestamp int64
}

func (m *Manager) TakeSnapshot() (*Snapshot, error) {
	root, err := m.StateRoot()
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	count := len(m.accounts)
	m.mu.RUnlock()

	return &Snapshot{
		Root:      root,
		Accounts:  count,
		Timestamp: time.Now().Unix(),
	}, nil
}

func (m *Manager) getOrCreate(address string) *types.Account {
	return getOrCreateIn(m.accounts, address)
}

func copyAccount(acc *types.Account) *types.Account {
	cp := *acc
	if acc.DelegatedTo != nil {
		cp.DelegatedTo = make(map[string]amount.Amount, len(acc.DelegatedTo))
		for validator, amt := range acc.DelegatedTo {
			cp.DelegatedTo[validator] = amt
		}
	}
	return &cp
}

func getOrCreateIn(table map[string]*types.Account, address string) *types.Account {
	if acc, ok := table[address]; ok {
		return acc
	}
	acc := &types.Account{Address: address}
	table[address] = acc
	return acc
}

func (m *Manager) notifyBalance(address string, balance amount.Amount) {
	if m.OnBalanceUpdate != nil {
		m.OnBalanceUpdate(address, balance)
	}
}
