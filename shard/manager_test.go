package shard

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantumfuse-labs/quantumfuse/crypto/hash"
	"github.com/quantumfuse-labs/quantumfuse/types"
)

func makeTx(sender, recipient string, n int) *types.Transaction {
	tx := &types.Transaction{
		Sender:    sender,
		Recipient: recipient,
		Amount:    10,
		Nonce:     uint64(n),
	}
	tx.Hash = hash.NewHash([]byte(fmt.Sprintf("%s->%s/%d", sender, recipient, n)))
	return tx
}

func TestRouteDeterministic(t *testing.T) {
	m := NewManager(4, 100, 0.8)

	tx := makeTx("qf1sender", "qf1recipient", 1)
	first := m.Route(tx)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, m.Route(tx))
	}
	assert.GreaterOrEqual(t, int(first), 0)
	assert.Less(t, int(first), 4)
}

func TestRouteFollowsSender(t *testing.T) {
	m := NewManager(4, 100, 0.8)

	// Two transactions from the same sender land on the same shard.
	a := makeTx("qf1alice", "qf1bob", 1)
	b := makeTx("qf1alice", "qf1carol", 2)
	assert.Equal(t, m.Route(a), m.Route(b))
	assert.Equal(t, m.HomeShard("qf1alice"), m.Route(a))
}

func TestAddTransactionDeduplicates(t *testing.T) {
	m := NewManager(2, 100, 0.8)

	tx := makeTx("qf1alice", "qf1bob", 1)
	id := m.Route(tx)

	require.NoError(t, m.AddTransaction(id, tx))
	require.NoError(t, m.AddTransaction(id, tx))

	assert.Equal(t, 1, m.TotalPending())
}

func TestAddTransactionUnknownShard(t *testing.T) {
	m := NewManager(2, 100, 0.8)

	err := m.AddTransaction(types.ShardID(9), makeTx("qf1alice", "qf1bob", 1))
	assert.ErrorIs(t, err, ErrShardNotFound)
}

func TestOverloadSignalsReallocation(t *testing.T) {
	m := NewManager(1, 4, 0.5)

	for i := 0; i < 4; i++ {
		tx := makeTx("qf1alice", "qf1bob", i)
		require.NoError(t, m.AddTransaction(m.Route(tx), tx))
	}

	assert.True(t, m.IsOverloaded(0))
	select {
	case <-m.ReallocationSignal():
	default:
		t.Fatal("expected a reallocation signal after overload")
	}
}

func TestCrossShardLinkRecorded(t *testing.T) {
	m := NewManager(8, 100, 0.8)

	// Find a sender/recipient pair living on different shards.
	var tx *types.Transaction
	for i := 0; i < 100; i++ {
		cand := makeTx(fmt.Sprintf("qf1s%d", i), fmt.Sprintf("qf1r%d", i), i)
		if m.Route(cand) != m.HomeShard(cand.Recipient) {
			tx = cand
			break
		}
	}
	require.NotNil(t, tx, "no cross-shard pair found")

	id := m.Route(tx)
	require.NoError(t, m.AddTransaction(id, tx))

	s, err := m.Shard(id)
	require.NoError(t, err)
	links := s.CrossShardLinks()
	require.Len(t, links, 1)
	assert.Equal(t, id, links[0].SourceShard)
	assert.Equal(t, m.HomeShard(tx.Recipient), links[0].TargetShard)
	assert.True(t, links[0].TransactionHash.Equal(tx.Hash))
}

func TestReallocateConservesTransactions(t *testing.T) {
	m := NewManager(3, 100, 0.9)

	txs := make([]*types.Transaction, 0, 12)
	for i := 0; i < 12; i++ {
		tx := makeTx(fmt.Sprintf("qf1s%d", i), "qf1sink", i)
		require.NoError(t, m.AddTransaction(m.Route(tx), tx))
		txs = append(txs, tx)
	}
	require.Equal(t, 12, m.TotalPending())

	// Move everything onto shard 0.
	assignment := types.Assignment{0: txs, 1: nil, 2: nil}
	require.NoError(t, m.Reallocate(assignment))

	assert.Equal(t, 12, m.TotalPending())
	s0, err := m.Shard(0)
	require.NoError(t, err)
	assert.Equal(t, 12, s0.PendingCount())

	// Future submissions from a moved sender follow the new placement.
	for _, tx := range txs {
		assert.Equal(t, types.ShardID(0), m.Route(tx))
	}
}

func TestReallocateKeepsUnmentionedTransactions(t *testing.T) {
	m := NewManager(2, 100, 0.9)

	a := makeTx("qf1alice", "qf1bob", 1)
	b := makeTx("qf1carol", "qf1dave", 2)
	idA, idB := m.Route(a), m.Route(b)
	require.NoError(t, m.AddTransaction(idA, a))
	require.NoError(t, m.AddTransaction(idB, b))

	// The assignment only mentions a; b must stay where it is.
	other := types.ShardID(1 - int(idA))
	require.NoError(t, m.Reallocate(types.Assignment{other: {a}}))

	assert.Equal(t, 2, m.TotalPending())
	assert.Equal(t, other, m.Route(a))

	sB, err := m.Shard(idB)
	require.NoError(t, err)
	found := false
	for _, tx := range sB.Pending() {
		if tx.Hash.Equal(b.Hash) {
			found = true
		}
	}
	assert.True(t, found, "unmentioned transaction left its shard")
}

func TestReallocateDrainsSourceShard(t *testing.T) {
	m := NewManager(2, 100, 0.9)

	a := makeTx("qf1alice", "qf1bob", 1)
	idA := m.Route(a)
	require.NoError(t, m.AddTransaction(idA, a))

	// The assignment mentions only the destination; the source shard must
	// still give up its whole pending set rather than keep a duplicate.
	other := types.ShardID(1 - int(idA))
	require.NoError(t, m.Reallocate(types.Assignment{other: {a}}))

	assert.Equal(t, 1, m.TotalPending())

	src, err := m.Shard(idA)
	require.NoError(t, err)
	assert.Equal(t, 0, src.PendingCount())

	dst, err := m.Shard(other)
	require.NoError(t, err)
	assert.Equal(t, 1, dst.PendingCount())
}

func TestReallocateUnknownShard(t *testing.T) {
	m := NewManager(2, 100, 0.9)

	err := m.Reallocate(types.Assignment{types.ShardID(7): nil})
	assert.ErrorIs(t, err, ErrShardNotFound)
}

func TestRemoveCommitted(t *testing.T) {
	m := NewManager(2, 100, 0.9)

	a := makeTx("qf1alice", "qf1bob", 1)
	b := makeTx("qf1carol", "qf1dave", 2)
	require.NoError(t, m.AddTransaction(m.Route(a), a))
	require.NoError(t, m.AddTransaction(m.Route(b), b))

	m.RemoveCommitted([]*types.Transaction{a})

	assert.Equal(t, 1, m.TotalPending())
	remaining := m.PendingByShard()
	for _, txs := range remaining {
		for _, tx := range txs {
			assert.False(t, tx.Hash.Equal(a.Hash))
		}
	}
}

func TestLoadMetrics(t *testing.T) {
	m := NewManager(2, 10, 0.9)

	tx := makeTx("qf1alice", "qf1bob", 1)
	id := m.Route(tx)
	require.NoError(t, m.AddTransaction(id, tx))

	metrics := m.LoadMetrics()
	assert.InDelta(t, 0.1, metrics[id], 1e-9)
	assert.InDelta(t, 0.0, metrics[types.ShardID(1-int(id))], 1e-9)
}
