package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantumfuse-labs/quantumfuse/amount"
	"github.com/quantumfuse-labs/quantumfuse/types"
)

func TestCreditAndBalance(t *testing.T) {
	m := NewManager()

	require.NoError(t, m.Credit("alice", 100))
	assert.Equal(t, amount.Amount(100), m.GetBalance("alice"))

	// Unknown accounts read as zero.
	assert.Equal(t, amount.Amount(0), m.GetBalance("nobody"))

	err := m.Credit("alice", 0)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestApplyTransfer(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Credit("alice", 100))
	require.NoError(t, m.Credit("bob", 50))

	require.NoError(t, m.ApplyTransfer("alice", "bob", 30, 1, 0, "validator"))

	assert.Equal(t, amount.Amount(69), m.GetBalance("alice"))
	assert.Equal(t, amount.Amount(80), m.GetBalance("bob"))
	assert.Equal(t, amount.Amount(1), m.GetBalance("validator"))

	// Total supply is conserved by transfers.
	assert.Equal(t, amount.Amount(150), m.TotalSupply())
}

func TestApplyTransferInsufficientBalance(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Credit("alice", 100))

	err := m.ApplyTransfer("alice", "bob", 200, 0, 0, "validator")
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	// A failed transfer changes nothing.
	assert.Equal(t, amount.Amount(100), m.GetBalance("alice"))
	assert.Equal(t, amount.Amount(0), m.GetBalance("bob"))
}

func TestApplyTransferFeeToRewardPool(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Credit("alice", 100))

	require.NoError(t, m.ApplyTransfer("alice", "bob", 10, 5, 0, ""))
	assert.Equal(t, amount.Amount(5), m.GetBalance(RewardPoolAddress))
}

func TestStakedBalanceIsNotSpendable(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Credit("alice", 100))
	require.NoError(t, m.Stake("alice", 80))

	assert.Equal(t, amount.Amount(80), m.GetStaked("alice"))

	// Only 20 is spendable now.
	err := m.ApplyTransfer("alice", "bob", 30, 0, 0, "validator")
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	require.NoError(t, m.ApplyTransfer("alice", "bob", 20, 0, 0, "validator"))
	assert.Equal(t, amount.Amount(80), m.GetBalance("alice"))
	assert.Equal(t, amount.Amount(0), m.GetAccount("alice").Spendable())
}

func TestUnstake(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Credit("alice", 100))
	require.NoError(t, m.Stake("alice", 80))
	require.NoError(t, m.Unstake("alice", 30))

	assert.Equal(t, amount.Amount(50), m.GetStaked("alice"))

	err := m.Unstake("alice", 100)
	assert.ErrorIs(t, err, ErrInsufficientBalance)
}

func TestDelegate(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Credit("alice", 100))
	require.NoError(t, m.Stake("alice", 60))
	require.NoError(t, m.Delegate("alice", "validator-1", 40))

	weights := m.DelegatedWeight()
	assert.Equal(t, amount.Amount(40), weights["validator-1"])

	// Delegations are capped by the staked amount.
	err := m.Delegate("alice", "validator-2", 30)
	assert.ErrorIs(t, err, ErrInsufficientBalance)
}

func TestApplyBlockAllOrNothing(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Credit("alice", 100))
	require.NoError(t, m.Credit("bob", 50))

	txs := []*types.Transaction{
		{Sender: "alice", Recipient: "bob", Amount: 30, Fee: 1},
		// Bob cannot afford this one; the whole block must fail.
		{Sender: "bob", Recipient: "alice", Amount: 500, Fee: 0},
	}

	err := m.ApplyBlock(txs, "validator")
	require.Error(t, err)

	// The first transfer must not have leaked through.
	assert.Equal(t, amount.Amount(100), m.GetBalance("alice"))
	assert.Equal(t, amount.Amount(50), m.GetBalance("bob"))
	assert.Equal(t, amount.Amount(0), m.GetBalance("validator"))
}

func TestApplyBlockAdvancesNonce(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Credit("alice", 100))

	txs := []*types.Transaction{
		{Sender: "alice", Recipient: "bob", Amount: 10, Fee: 0, Nonce: 0},
		{Sender: "alice", Recipient: "bob", Amount: 10, Fee: 0, Nonce: 1},
	}
	require.NoError(t, m.ApplyBlock(txs, "validator"))

	acct := m.GetAccount("alice")
	require.NotNil(t, acct)
	assert.Equal(t, uint64(2), acct.Nonce)
}

func TestApplyTransferRejectsStaleNonce(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Credit("alice", 100))

	require.NoError(t, m.ApplyTransfer("alice", "bob", 10, 0, 0, "validator"))

	// Applying the same transfer again reuses nonce 0 and must fail.
	err := m.ApplyTransfer("alice", "bob", 10, 0, 0, "validator")
	assert.ErrorIs(t, err, ErrInvalidNonce)
	assert.Equal(t, amount.Amount(90), m.GetBalance("alice"))
	assert.Equal(t, amount.Amount(10), m.GetBalance("bob"))

	// A skipped nonce is just as invalid as a reused one.
	err = m.ApplyTransfer("alice", "bob", 10, 0, 5, "validator")
	assert.ErrorIs(t, err, ErrInvalidNonce)
}

func TestApplyBlockRejectsReplayedTransaction(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Credit("alice", 100))

	tx := &types.Transaction{Sender: "alice", Recipient: "bob", Amount: 10, Fee: 0, Nonce: 0}
	require.NoError(t, m.ApplyBlock([]*types.Transaction{tx}, "validator"))

	// The identical transaction in a later block must not debit twice.
	err := m.ApplyBlock([]*types.Transaction{tx}, "validator")
	assert.ErrorIs(t, err, ErrInvalidNonce)
	assert.Equal(t, amount.Amount(90), m.GetBalance("alice"))
	assert.Equal(t, amount.Amount(10), m.GetBalance("bob"))
}

func TestRestoreAccountsRoundTrip(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Credit("alice", 100))
	require.NoError(t, m.Stake("alice", 60))
	require.NoError(t, m.Delegate("alice", "validator-1", 40))
	require.NoError(t, m.ApplyTransfer("alice", "bob", 10, 0, 0, "validator"))

	restored := NewManager()
	restored.RestoreAccounts(m.Accounts())

	assert.Equal(t, amount.Amount(90), restored.GetBalance("alice"))
	assert.Equal(t, amount.Amount(60), restored.GetStaked("alice"))
	assert.Equal(t, amount.Amount(40), restored.DelegatedWeight()["validator-1"])
	assert.Equal(t, uint64(1), restored.GetAccount("alice").Nonce)

	r1, err := m.StateRoot()
	require.NoError(t, err)
	r2, err := restored.StateRoot()
	require.NoError(t, err)
	assert.True(t, r1.Equal(r2))
}

func TestStateRootDeterministic(t *testing.T) {
	build := func() *Manager {
		m := NewManager()
		require.NoError(t, m.Credit("alice", 100))
		require.NoError(t, m.Credit("bob", 50))
		require.NoError(t, m.Stake("bob", 25))
		return m
	}

	r1, err := build().StateRoot()
	require.NoError(t, err)
	r2, err := build().StateRoot()
	require.NoError(t, err)
	assert.True(t, r1.Equal(r2))

	// A balance change moves the root.
	m := build()
	require.NoError(t, m.Credit("carol", 1))
	r3, err := m.StateRoot()
	require.NoError(t, err)
	assert.False(t, r1.Equal(r3))
}

func TestBalanceUpdateCallback(t *testing.T) {
	m := NewManager()
	updates := make(map[string]amount.Amount)
	m.OnBalanceUpdate = func(addr string, bal amount.Amount) {
		updates[addr] = bal
	}

	require.NoError(t, m.Credit("alice", 100))
	require.NoError(t, m.ApplyTransfer("alice", "bob", 30, 0, 0, "validator"))

	assert.Equal(t, amount.Amount(70), updates["alice"])
	assert.Equal(t, amount.Amount(30), updates["bob"])
}
