// Package shard partitions the pending transaction space. Each shard owns
// its pending set behind its own mutex, so ingestion on independent shards
// proceeds in parallel while mutation within one shard is serialized.
package shard

import (
	"sync"
	"time"

	"github.com/willf/bloom"

	"github.com/quantumfuse-labs/quantumfuse/crypto/hash"
	"github.com/quantumfuse-labs/quantumfuse/types"
)

const (
	// defaultCapacity is the pending-set size at which a shard's load
	// factor reaches 1.0.
	defaultCapacity = 10000

	bloomExpectedItems     = 100000
	bloomFalsePositiveRate = 0.01
)

// Shard holds the pending, uncommitted transactions assigned to one
// partition of the network.
type Shard struct {
	ID types.ShardID

	mu       sync.Mutex
	pending  []*types.Transaction
	index    map[hash.Hash]struct{}
	seen     *bloom.BloomFilter
	capacity int

	crossLinks []types.CrossShardLink
	processed  uint64
}

func newShard(id types.ShardID, capacity int) *Shard {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &Shard{
		ID:       id,
		index:    make(map[hash.Hash]struct{}),
		seen:     bloom.NewWithEstimates(bloomExpectedItems, bloomFalsePositiveRate),
		capacity: capacity,
	}
}

// add appends a transaction to the pending set, suppressing duplicates.
// Returns true when the transaction was newly added.
func (s *Shard) add(tx *types.Transaction) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	// The bloom filter cheaply rules out most repeats; the exact index
	// settles the rest.
	if s.seen.Test(tx.Hash.Bytes()) {
		if _, dup := s.index[tx.Hash]; dup {
			return false
		}
	}

	s.seen.Add(tx.Hash.Bytes())
	s.index[tx.Hash] = struct{}{}
	s.pending = append(s.pending, tx)
	return true
}

// recordCrossLink notes a transaction whose recipient lives on another
// shard.
func (s *Shard) recordCrossLink(target types.ShardID, txHash hash.Hash) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.crossLinks = append(s.crossLinks, types.CrossShardLink{
		SourceShard:     s.ID,
		TargetShard:     target,
		TransactionHash: txHash,
		Timestamp:       time.Now().Unix(),
	})
}

// Pending returns a copy of the pending set in arrival order.
func (s *Shard) Pending() []*types.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*types.Transaction, len(s.pending))
	copy(out, s.pending)
	return out
}

// PendingCount reports the pending-set size.
func (s *Shard) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// LoadFactor is pending count over capacity.
func (s *Shard) LoadFactor() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return float64(len(s.pending)) / float64(s.capacity)
}

// CrossShardLinks returns a copy of the recorded cross-shard links.
func (s *Shard) CrossShardLinks() []types.CrossShardLink {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]types.CrossShardLink, len(s.crossLinks))
	copy(out, s.crossLinks)
	return out
}

// removeCommitted drops the given transactions from the pending set after
// they were committed in a block.
func (s *Shard) removeCommitted(hashes map[hash.Hash]struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.pending[:0]
	for _, tx := range s.pending {
		if _, done := hashes[tx.Hash]; done {
			delete(s.index, tx.Hash)
			s.processed++
			continue
		}
		kept = append(kept, tx)
	}
	s.pending = kept
}

// replacePending swaps the pending set in one step. Caller holds the
// manager's exclusive lock, so no add can interleave.
func (s *Shard) replacePending(txs []*types.Transaction) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending = make([]*types.Transaction, 0, len(txs))
	s.index = make(map[hash.Hash]struct{}, len(txs))
	for _, tx := range txs {
		if _, dup := s.index[tx.Hash]; dup {
			continue
		}
		s.seen.Add(tx.Hash.Bytes())
		s.index[tx.Hash] = struct{}{}
		s.pending = append(s.pending, tx)
	}
}
