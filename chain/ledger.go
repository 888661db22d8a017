package chain

import (
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/quantumfuse-labs/quantumfuse/crypto"
	"github.com/quantumfuse-labs/quantumfuse/crypto/hash"
	"github.com/quantumfuse-labs/quantumfuse/state"
	"github.com/quantumfuse-labs/quantumfuse/types"
)

var (
	ErrInvalidParent        = errors.New("block parent does not match chain tip")
	ErrInvalidBlockHash     = errors.New("block hash mismatch")
	ErrBlockExecutionFailed = errors.New("block execution failed")
)

// Ledger is the append-only chain of committed blocks. Appends are
// serialized: concurrent appends against the same tip resolve with one
// winner, the loser observes ErrInvalidParent and retries against the new
// tip.
type Ledger struct {
	mu     sync.RWMutex
	blocks []*types.Block
	byHash map[hash.Hash]*types.Block

	state *state.Manager
	store types.Store
}

// NewLedger creates a chain over the optional store. A store that already
// holds a chain is reloaded block by block; an empty (or absent) store
// roots a fresh genesis block and persists it.
func NewLedger(st *state.Manager, store types.Store) (*Ledger, error) {
	l := &Ledger{
		state: st,
		store: store,
	}

	if store != nil {
		last, err := store.GetLastBlock()
		switch {
		case err == nil:
			if err := l.loadChain(last.Index); err != nil {
				return nil, err
			}
			return l, nil
		case !errors.Is(err, types.ErrNotFound):
			return nil, fmt.Errorf("failed to read stored chain: %v", err)
		}
	}

	genesis := NewGenesisBlock()
	l.blocks = []*types.Block{genesis}
	l.byHash = map[hash.Hash]*types.Block{genesis.Hash: genesis}

	if store != nil {
		if err := store.SaveBlock(genesis); err != nil {
			return nil, fmt.Errorf("failed to persist genesis block: %v", err)
		}
	}
	return l, nil
}

// loadChain rebuilds the in-memory chain from persisted blocks up to and
// including tipIndex, verifying parent linkage along the way.
func (l *Ledger) loadChain(tipIndex int64) error {
	l.blocks = make([]*types.Block, 0, tipIndex+1)
	l.byHash = make(map[hash.Hash]*types.Block, tipIndex+1)

	for i := int64(0); i <= tipIndex; i++ {
		b, err := l.store.GetBlockByHeight(i)
		if err != nil {
			return fmt.Errorf("failed to load block %d: %v", i, err)
		}
		if i > 0 && !b.PrevHash.Equal(l.blocks[i-1].Hash) {
			return fmt.Errorf("stored chain broken at height %d", i)
		}
		l.blocks = append(l.blocks, b)
		l.byHash[b.Hash] = b
	}
	return nil
}

// Tip returns the current chain head.
func (l *Ledger) Tip() *types.Block {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.blocks[len(l.blocks)-1]
}

// Height returns the index of the chain head.
func (l *Ledger) Height() int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.blocks[len(l.blocks)-1].Index
}

// GetBlock returns a committed block by hash.
func (l *Ledger) GetBlock(h hash.Hash) (*types.Block, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	b, ok := l.byHash[h]
	return b, ok
}

// GetBlockByHeight returns a committed block by index.
func (l *Ledger) GetBlockByHeight(index int64) (*types.Block, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if index < 0 || index >= int64(len(l.blocks)) {
		return nil, fmt.Errorf("block index %d out of range", index)
	}
	return l.blocks[index], nil
}

// Blocks returns a copy of the committed chain.
func (l *Ledger) Blocks() []*types.Block {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*types.Block, len(l.blocks))
	copy(out, l.blocks)
	return out
}

// Append validates a block against the tip and commits it: every
// contained transaction is applied in order through the state manager,
// all-or-nothing. A block whose parent is stale (including a block that
// was already committed) fails with ErrInvalidParent; a digest mismatch
// fails with ErrInvalidBlockHash; any failing transfer rejects the whole
// block with ErrBlockExecutionFailed and no balance changes.
func (l *Ledger) Append(block *types.Block) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	tip := l.blocks[len(l.blocks)-1]
	if !block.PrevHash.Equal(tip.Hash) {
		return fmt.Errorf("%w: parent %s, tip %s", ErrInvalidParent, block.PrevHash.String(), tip.Hash.String())
	}
	if block.Index != tip.Index+1 {
		return fmt.Errorf("%w: index %d after tip %d", ErrInvalidParent, block.Index, tip.Index)
	}

	if err := VerifyBlockHash(block); err != nil {
		return err
	}

	for _, tx := range block.Transactions {
		if err := VerifyTransaction(tx); err != nil {
			return err
		}
	}

	if err := l.verifyAggregatedSignature(block); err != nil {
		return err
	}

	if err := l.state.ApplyBlock(block.Transactions, block.Proposer); err != nil {
		return fmt.Errorf("%w: %v", ErrBlockExecutionFailed, err)
	}

	l.blocks = append(l.blocks, block)
	l.byHash[block.Hash] = block

	if l.store != nil {
		if err := l.store.SaveBlock(block); err != nil {
			log.Printf("failed to persist block %s: %v", block.Hash.String(), err)
		}
	}

	return nil
}

// verifyAggregatedSignature checks the block's batch proof against the
// (content hash, sender key) pairs of its transactions. Blocks without
// transactions carry no proof.
func (l *Ledger) verifyAggregatedSignature(block *types.Block) error {
	if len(block.Transactions) == 0 {
		return nil
	}
	if block.AggregatedSig == nil {
		return fmt.Errorf("%w: missing aggregated signature", ErrInvalidTransaction)
	}

	pubKeys := make([]crypto.PublicKey, len(block.Transactions))
	messages := make([][]byte, len(block.Transactions))
	for i, tx := range block.Transactions {
		pub, err := crypto.PublicKeyFromBytes(tx.SenderPubKey)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidTransaction, err)
		}
		pubKeys[i] = pub
		messages[i] = tx.Hash.Bytes()
	}

	return block.AggregatedSig.VerifyBatch(pubKeys, messages)
}
