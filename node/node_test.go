package node

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantumfuse-labs/quantumfuse/amount"
	"github.com/quantumfuse-labs/quantumfuse/chain"
	"github.com/quantumfuse-labs/quantumfuse/config"
	"github.com/quantumfuse-labs/quantumfuse/crypto"
	"github.com/quantumfuse-labs/quantumfuse/store"
)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.ShardCount = 2
	cfg.ShardCapacity = 100
	cfg.MinStake = 100
	cfg.BaseReward = 10
	return cfg
}

// bootstrapValidator funds, stakes and attests one validator so every
// consensus strategy accepts it.
func bootstrapValidator(t *testing.T, n *Node) string {
	t.Helper()

	priv, err := crypto.NewPrivateKey()
	require.NoError(t, err)
	addr, err := priv.PublicKey().Address()
	require.NoError(t, err)
	v := addr.String()

	require.NoError(t, n.State().Credit(v, 1000))
	require.NoError(t, n.State().Stake(v, 500))
	require.NoError(t, n.State().Delegate(v, v, 400))
	n.ReportEnergyScore(v, 1.0)
	return v
}

func TestSubmitAndProduceBlock(t *testing.T) {
	n, err := New(testConfig(), nil)
	require.NoError(t, err)

	validator := bootstrapValidator(t, n)

	sender, err := crypto.NewPrivateKey()
	require.NoError(t, err)
	senderAddr, err := sender.PublicKey().Address()
	require.NoError(t, err)
	require.NoError(t, n.State().Credit(senderAddr.String(), 100))

	tx, err := chain.NewTransaction(sender, "qf1recipient", 30, 1, 0)
	require.NoError(t, err)
	require.NoError(t, n.SubmitTransaction(tx))
	require.Equal(t, 1, n.Shards().TotalPending())

	block, err := n.ProduceBlock(context.Background())
	require.NoError(t, err)
	require.NotNil(t, block)

	assert.Equal(t, int64(1), n.Ledger().Height())
	assert.Equal(t, validator, block.Proposer)
	assert.Len(t, block.Transactions, 1)

	// Committed transactions leave the pending sets.
	assert.Equal(t, 0, n.Shards().TotalPending())

	// Transfer applied, fee and block reward credited to the proposer.
	assert.Equal(t, amount.Amount(69), n.State().GetBalance(senderAddr.String()))
	assert.Equal(t, amount.Amount(30), n.State().GetBalance("qf1recipient"))
	assert.Greater(t, n.State().GetBalance(validator), amount.Amount(1000))
}

func TestProduceBlockWithoutPending(t *testing.T) {
	n, err := New(testConfig(), nil)
	require.NoError(t, err)
	bootstrapValidator(t, n)

	block, err := n.ProduceBlock(context.Background())
	require.NoError(t, err)
	assert.Nil(t, block)
	assert.Equal(t, int64(0), n.Ledger().Height())
}

func TestSubmitTransactionRejectsInvalid(t *testing.T) {
	n, err := New(testConfig(), nil)
	require.NoError(t, err)

	sender, err := crypto.NewPrivateKey()
	require.NoError(t, err)
	tx, err := chain.NewTransaction(sender, "qf1recipient", 30, 1, 0)
	require.NoError(t, err)

	tx.Amount = 3000 // breaks the content hash
	err = n.SubmitTransaction(tx)
	assert.ErrorIs(t, err, chain.ErrInvalidTransaction)
	assert.Equal(t, 0, n.Shards().TotalPending())
}

func TestSubmitTransactionDeduplicates(t *testing.T) {
	n, err := New(testConfig(), nil)
	require.NoError(t, err)

	sender, err := crypto.NewPrivateKey()
	require.NoError(t, err)
	tx, err := chain.NewTransaction(sender, "qf1recipient", 30, 1, 0)
	require.NoError(t, err)

	require.NoError(t, n.SubmitTransaction(tx))
	require.NoError(t, n.SubmitTransaction(tx))
	assert.Equal(t, 1, n.Shards().TotalPending())
}

func TestNodeRestartRestoresState(t *testing.T) {
	db, err := store.NewInMemoryDatabase()
	require.NoError(t, err)
	s, err := store.New(db)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, s.Close()) })

	cfg := testConfig()
	n1, err := New(cfg, s)
	require.NoError(t, err)
	validator := bootstrapValidator(t, n1)

	sender, err := crypto.NewPrivateKey()
	require.NoError(t, err)
	senderAddr, err := sender.PublicKey().Address()
	require.NoError(t, err)
	require.NoError(t, n1.State().Credit(senderAddr.String(), 100))

	tx, err := chain.NewTransaction(sender, "qf1recipient", 30, 1, 0)
	require.NoError(t, err)
	require.NoError(t, n1.SubmitTransaction(tx))

	block, err := n1.ProduceBlock(context.Background())
	require.NoError(t, err)
	require.NotNil(t, block)

	// A fresh node over the same store resumes the chain and balances
	// instead of starting from an empty genesis.
	n2, err := New(cfg, s)
	require.NoError(t, err)
	require.NoError(t, n2.RestorePendingSets())

	assert.Equal(t, int64(1), n2.Ledger().Height())
	assert.True(t, n2.Ledger().Tip().Hash.Equal(block.Hash))
	assert.Equal(t, amount.Amount(69), n2.State().GetBalance(senderAddr.String()))
	assert.Equal(t, amount.Amount(30), n2.State().GetBalance("qf1recipient"))
	assert.Equal(t, amount.Amount(500), n2.State().GetStaked(validator))
	assert.Equal(t, 0, n2.Shards().TotalPending())
}

func TestRebalanceShardsConservesPending(t *testing.T) {
	n, err := New(testConfig(), nil)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		sender, err := crypto.NewPrivateKey()
		require.NoError(t, err)
		tx, err := chain.NewTransaction(sender, "qf1recipient", 10, 0, 0)
		require.NoError(t, err)
		require.NoError(t, n.SubmitTransaction(tx))
	}
	require.Equal(t, 5, n.Shards().TotalPending())

	require.NoError(t, n.RebalanceShards(context.Background()))
	assert.Equal(t, 5, n.Shards().TotalPending())
}
