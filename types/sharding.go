package types

import (
	"github.com/quantumfuse-labs/quantumfuse/crypto/hash"
)

// ShardID is the stable identifier of a shard.
type ShardID int

// Assignment maps each shard to the pending transactions it should own.
// Produced by the allocator, applied atomically by the shard manager.
type Assignment map[ShardID][]*Transaction

// TotalTransactions counts the transactions across all shards of the
// assignment.
func (a Assignment) TotalTransactions() int {
	total := 0
	for _, txs := range a {
		total += len(txs)
	}
	return total
}

// Topology is the shard adjacency graph used for cross-shard routing cost
// estimation. Links are directed; Cost reports +Inf-like absence as ok=false.
type Topology struct {
	Links map[ShardID]map[ShardID]float64
}

func NewTopology() *Topology {
	return &Topology{Links: make(map[ShardID]map[ShardID]float64)}
}

// AddLink records a directed edge between two shards with the given cost.
func (t *Topology) AddLink(from, to ShardID, cost float64) {
	if t.Links[from] == nil {
		t.Links[from] = make(map[ShardID]float64)
	}
	t.Links[from][to] = cost
}

// AddBidirectional records the edge in both directions.
func (t *Topology) AddBidirectional(a, b ShardID, cost float64) {
	t.AddLink(a, b, cost)
	t.AddLink(b, a, cost)
}

// Neighbors returns the adjacent shards of the given shard.
func (t *Topology) Neighbors(id ShardID) map[ShardID]float64 {
	return t.Links[id]
}

// LoadMetrics is a read-only snapshot of per-shard load factors, taken for
// an allocator run.
type LoadMetrics map[ShardID]float64

// CrossShardLink records a transaction whose sender and recipient live on
// different shards.
type CrossShardLink struct {
	SourceShard     ShardID   `cbor:"1,keyasint"`
	TargetShard     ShardID   `cbor:"2,keyasint"`
	TransactionHash hash.Hash `cbor:"3,keyasint"`
	Timestamp       int64     `cbor:"4,keyasint"`
}
