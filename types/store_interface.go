package types

import (
	"errors"

	"github.com/quantumfuse-labs/quantumfuse/crypto/hash"
)

// ErrNotFound is returned by Store implementations for missing records.
var ErrNotFound = errors.New("not found")

// Store is the durable keyed store behind the chain, the account table and
// the shard pending sets.
type Store interface {
	SaveBlock(b *Block) error
	GetBlock(h hash.Hash) (*Block, error)
	GetBlockByHeight(index int64) (*Block, error)
	GetLastBlock() (*Block, error)

	SaveAccount(a *Account) error
	GetAccount(address string) (*Account, error)
	Accounts() ([]*Account, error)

	SavePendingSet(id ShardID, txs []*Transaction) error
	GetPendingSet(id ShardID) ([]*Transaction, error)

	Close() error
}
