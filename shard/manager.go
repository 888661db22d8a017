package shard

import (
	"errors"
	"fmt"
	"log"
	"sort"
	"strconv"
	"sync"

	"github.com/stathat/consistent"

	"github.com/quantumfuse-labs/quantumfuse/crypto/hash"
	"github.com/quantumfuse-labs/quantumfuse/types"
)

var ErrShardNotFound = errors.New("shard not found")

const shardMemberPrefix = "shard-"

// Manager owns the set of shards. Routing is a deterministic function of
// transaction content over a consistent-hash ring of shard members unless
// an allocator override is active for the sender.
type Manager struct {
	// mu is held shared by ingestion and exclusively by reallocation, so
	// an atomic pending-set swap never races a concurrent add.
	mu        sync.RWMutex
	shards    map[types.ShardID]*Shard
	ring      *consistent.Consistent
	overrides map[string]types.ShardID

	loadThreshold float64

	// reallocSignal fires (non-blocking) when a shard flips overloaded.
	reallocSignal chan struct{}
}

// NewManager creates the fixed initial shard set.
func NewManager(shardCount, capacity int, loadThreshold float64) *Manager {
	if shardCount < 1 {
		shardCount = 1
	}

	m := &Manager{
		shards:        make(map[types.ShardID]*Shard, shardCount),
		ring:          consistent.New(),
		overrides:     make(map[string]types.ShardID),
		loadThreshold: loadThreshold,
		reallocSignal: make(chan struct{}, 1),
	}

	for i := 0; i < shardCount; i++ {
		id := types.ShardID(i)
		m.shards[id] = newShard(id, capacity)
		m.ring.Add(shardMemberPrefix + strconv.Itoa(i))
	}

	return m
}

// ShardCount reports the number of shards.
func (m *Manager) ShardCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.shards)
}

// Route assigns a transaction to a shard. Idempotent for a fixed shard
// count: the same transaction always lands on the same shard.
func (m *Manager) Route(tx *types.Transaction) types.ShardID {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if id, ok := m.overrides[tx.Sender]; ok {
		return id
	}
	return m.homeShardLocked(tx.Sender)
}

// HomeShard is the base (override-free) shard of an address.
func (m *Manager) HomeShard(address string) types.ShardID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.homeShardLocked(address)
}

func (m *Manager) homeShardLocked(address string) types.ShardID {
	member, err := m.ring.Get(address)
	if err != nil {
		return 0
	}
	id, err := strconv.Atoi(member[len(shardMemberPrefix):])
	if err != nil {
		return 0
	}
	return types.ShardID(id)
}

// AddTransaction appends a transaction to the shard's pending set.
// Duplicate submissions are suppressed. Flipping the shard overloaded
// schedules a reallocation pass.
func (m *Manager) AddTransaction(id types.ShardID, tx *types.Transaction) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.shards[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrShardNotFound, id)
	}

	if !s.add(tx) {
		return nil
	}

	if dest := m.routeLocked(tx.Recipient); dest != id {
		s.recordCrossLink(dest, tx.Hash)
	}

	if s.LoadFactor() > m.loadThreshold {
		m.scheduleReallocation(id)
	}

	return nil
}

func (m *Manager) routeLocked(address string) types.ShardID {
	if id, ok := m.overrides[address]; ok {
		return id
	}
	return m.homeShardLocked(address)
}

// IsOverloaded reports whether a shard's load factor exceeds the
// configured threshold.
func (m *Manager) IsOverloaded(id types.ShardID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.shards[id]
	if !ok {
		return false
	}
	return s.LoadFactor() > m.loadThreshold
}

// ReallocationSignal fires when an overloaded shard requests a
// reallocation pass.
func (m *Manager) ReallocationSignal() <-chan struct{} {
	return m.reallocSignal
}

func (m *Manager) scheduleReallocation(id types.ShardID) {
	select {
	case m.reallocSignal <- struct{}{}:
		log.Printf("shard %d overloaded, reallocation scheduled", id)
	default:
	}
}

// Reallocate replaces the pending sets per shard in one atomic step.
// Transactions absent from the new assignment remain in their previous
// shard; nothing is ever dropped. Future submissions from moved senders
// follow the new placement via routing overrides.
func (m *Manager) Reallocate(assignment types.Assignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id := range assignment {
		if _, ok := m.shards[id]; !ok {
			return fmt.Errorf("%w: %d", ErrShardNotFound, id)
		}
	}

	// Index the new placement of every reassigned transaction.
	newHome := make(map[string]types.ShardID)
	for id, txs := range assignment {
		for _, tx := range txs {
			newHome[tx.Hash.String()] = id
		}
	}

	// Transactions the assignment does not mention stay where they are.
	// Every shard gets an entry so one fully drained by the assignment is
	// still swapped to an empty pending set.
	next := make(types.Assignment, len(m.shards))
	for id := range m.shards {
		next[id] = nil
	}
	for id, txs := range assignment {
		next[id] = append([]*types.Transaction(nil), txs...)
	}
	for id, s := range m.shards {
		for _, tx := range s.Pending() {
			if _, moved := newHome[tx.Hash.String()]; !moved {
				next[id] = append(next[id], tx)
			}
		}
	}

	// Apply the swap and install sender overrides in shard-id order for
	// determinism.
	ids := make([]types.ShardID, 0, len(next))
	for id := range next {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		m.shards[id].replacePending(next[id])
		for _, tx := range next[id] {
			if m.homeShardLocked(tx.Sender) != id {
				m.overrides[tx.Sender] = id
			} else {
				delete(m.overrides, tx.Sender)
			}
		}
	}

	return nil
}

// PendingByShard snapshots every shard's pending set, the allocator's
// read-only input.
func (m *Manager) PendingByShard() types.Assignment {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(types.Assignment, len(m.shards))
	for id, s := range m.shards {
		out[id] = s.Pending()
	}
	return out
}

// LoadMetrics snapshots every shard's load factor.
func (m *Manager) LoadMetrics() types.LoadMetrics {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(types.LoadMetrics, len(m.shards))
	for id, s := range m.shards {
		out[id] = s.LoadFactor()
	}
	return out
}

// TotalPending counts pending transactions across all shards.
func (m *Manager) TotalPending() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	total := 0
	for _, s := range m.shards {
		total += s.PendingCount()
	}
	return total
}

// Shard returns the shard with the given id.
func (m *Manager) Shard(id types.ShardID) (*Shard, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.shards[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrShardNotFound, id)
	}
	return s, nil
}

// RemoveCommitted drops committed transactions from every shard's pending
// set after a block is appended.
func (m *Manager) RemoveCommitted(txs []*types.Transaction) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	hashes := make(map[hash.Hash]struct{}, len(txs))
	for _, tx := range txs {
		hashes[tx.Hash] = struct{}{}
	}
	for _, s := range m.shards {
		s.removeCommitted(hashes)
	}
}
