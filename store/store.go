// Package store persists blocks, accounts and shard pending sets in Badger,
// fronted by an LRU cache with a bloom filter for block lookups.
package store

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/dgraph-io/badger/v3"
	"github.com/fxamacker/cbor/v2"

	"github.com/quantumfuse-labs/quantumfuse/crypto/hash"
	"github.com/quantumfuse-labs/quantumfuse/types"
)

// ErrNotFound reports a missing record, shared with every other Store
// implementation through the types package.
var ErrNotFound = types.ErrNotFound

const (
	blockCacheSize      = 1024
	bloomExpectedItems  = 100000
	bloomFalsePositives = 0.01
)

// Store implements types.Store on top of Badger.
type Store struct {
	db         *Database
	blockCache *LRUCache
}

var _ types.Store = (*Store)(nil)

// New builds a Store over an opened database.
func New(db *Database) (*Store, error) {
	cache, err := NewLRUCache(blockCacheSize, bloomExpectedItems, bloomFalsePositives)
	if err != nil {
		return nil, fmt.Errorf("failed to create block cache: %v", err)
	}
	return &Store{db: db, blockCache: cache}, nil
}

// SaveBlock persists a block under its hash, indexes it by height and
// advances the last-block pointer.
func (s *Store) SaveBlock(b *types.Block) error {
	data, err := b.Marshal()
	if err != nil {
		return fmt.Errorf("failed to marshal block %d: %v", b.Index, err)
	}

	key := blockKey(b.Hash)
	if err := s.db.Set(key, data); err != nil {
		return fmt.Errorf("failed to save block %d: %v", b.Index, err)
	}
	if err := s.db.Set(blockIndexKey(b.Index), b.Hash.Bytes()); err != nil {
		return fmt.Errorf("failed to index block %d: %v", b.Index, err)
	}
	if err := s.db.Set([]byte(LastBlockKey), b.Hash.Bytes()); err != nil {
		return fmt.Errorf("failed to update last block pointer: %v", err)
	}

	s.blockCache.Add(string(key), b)
	return nil
}

// GetBlock retrieves a block by hash, consulting the cache first.
func (s *Store) GetBlock(h hash.Hash) (*types.Block, error) {
	key := blockKey(h)
	if cached, ok := s.blockCache.Get(string(key)); ok {
		if b, ok := cached.(*types.Block); ok {
			return b, nil
		}
	}

	data, err := s.db.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read block %s: %v", h, err)
	}

	b := &types.Block{}
	if err := b.Unmarshal(data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal block %s: %v", h, err)
	}
	s.blockCache.Add(string(key), b)
	return b, nil
}

// GetBlockByHeight resolves the height index and loads the block.
func (s *Store) GetBlockByHeight(index int64) (*types.Block, error) {
	hashBytes, err := s.db.Get(blockIndexKey(index))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read block index %d: %v", index, err)
	}
	h, err := hash.FromBytes(hashBytes)
	if err != nil {
		return nil, fmt.Errorf("corrupt block index %d: %v", index, err)
	}
	return s.GetBlock(h)
}

// GetLastBlock returns the most recently saved block.
func (s *Store) GetLastBlock() (*types.Block, error) {
	hashBytes, err := s.db.Get([]byte(LastBlockKey))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read last block pointer: %v", err)
	}
	h, err := hash.FromBytes(hashBytes)
	if err != nil {
		return nil, fmt.Errorf("corrupt last block pointer: %v", err)
	}
	return s.GetBlock(h)
}

// SaveAccount persists one account record.
func (s *Store) SaveAccount(a *types.Account) error {
	data, err := a.Marshal()
	if err != nil {
		return fmt.Errorf("failed to marshal account %s: %v", a.Address, err)
	}
	if err := s.db.Set(accountKey(a.Address), data); err != nil {
		return fmt.Errorf("failed to save account %s: %v", a.Address, err)
	}
	return nil
}

// GetAccount loads one account record.
func (s *Store) GetAccount(address string) (*types.Account, error) {
	data, err := s.db.Get(accountKey(address))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read account %s: %v", address, err)
	}
	a := &types.Account{}
	if err := a.Unmarshal(data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal account %s: %v", address, err)
	}
	return a, nil
}

// Accounts loads every persisted account record, used to rebuild the
// balance table after a restart.
func (s *Store) Accounts() ([]*types.Account, error) {
	var out []*types.Account
	err := s.db.Scan([]byte(AccountPrefix), func(_, value []byte) error {
		a := &types.Account{}
		if err := a.Unmarshal(value); err != nil {
			return err
		}
		out = append(out, a)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan accounts: %v", err)
	}
	return out, nil
}

// SavePendingSet persists a shard's pending transactions so a restart does
// not lose accepted-but-uncommitted work.
func (s *Store) SavePendingSet(id types.ShardID, txs []*types.Transaction) error {
	data, err := cbor.Marshal(txs)
	if err != nil {
		return fmt.Errorf("failed to marshal pending set for shard %d: %v", id, err)
	}
	if err := s.db.Set(pendingKey(id), data); err != nil {
		return fmt.Errorf("failed to save pending set for shard %d: %v", id, err)
	}
	return nil
}

// GetPendingSet loads a shard's pending transactions. A shard with no
// saved set yields an empty slice, not an error.
func (s *Store) GetPendingSet(id types.ShardID) ([]*types.Transaction, error) {
	data, err := s.db.Get(pendingKey(id))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read pending set for shard %d: %v", id, err)
	}
	var txs []*types.Transaction
	if err := cbor.Unmarshal(data, &txs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal pending set for shard %d: %v", id, err)
	}
	return txs, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	s.blockCache.Purge()
	return s.db.Close()
}

func blockKey(h hash.Hash) []byte {
	return append([]byte(BlockPrefix), h.Bytes()...)
}

func blockIndexKey(index int64) []byte {
	return []byte(BlockIndexPrefix + strconv.FormatInt(index, 10))
}

func accountKey(address string) []byte {
	return []byte(AccountPrefix + address)
}

func pendingKey(id types.ShardID) []byte {
	return []byte(PendingPrefix + strconv.Itoa(int(id)))
}
