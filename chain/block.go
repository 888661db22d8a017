package chain

import (
	"fmt"
	"time"

	"github.com/quantumfuse-labs/quantumfuse/crypto/aggregate"
	"github.com/quantumfuse-labs/quantumfuse/crypto/hash"
	"github.com/quantumfuse-labs/quantumfuse/types"
)

// NewBlock assembles a block over the given transactions. The parent hash
// must be the current chain tip at proposal time; the ledger re-checks it
// on append.
func NewBlock(index int64, prevHash hash.Hash, txs []*types.Transaction, proposer string, proof *aggregate.Proof) (*types.Block, error) {
	block := &types.Block{
		Index:         index,
		Timestamp:     time.Now().Unix(),
		PrevHash:      prevHash,
		Proposer:      proposer,
		Transactions:  txs,
		AggregatedSig: proof,
	}

	if err := ComputeBlockHash(block); err != nil {
		return nil, err
	}
	return block, nil
}

// NewGenesisBlock creates the first block of a chain. Its parent hash is
// the null sentinel.
func NewGenesisBlock() *types.Block {
	block := &types.Block{
		Index:     0,
		Timestamp: time.Now().Unix(),
		PrevHash:  hash.NullHash(),
	}
	// Hash computation over an empty block cannot fail.
	_ = ComputeBlockHash(block)
	return block
}

// SerializeForHashing returns the canonical bytes covered by the block
// hash: the block with its own hash zeroed.
func SerializeForHashing(b *types.Block) ([]byte, error) {
	blockCopy := *b
	blockCopy.Hash = hash.NullHash()

	blockBytes, err := blockCopy.Marshal()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal block for hashing: %v", err)
	}
	return blockBytes, nil
}

// ComputeBlockHash recomputes and sets the block hash.
func ComputeBlockHash(b *types.Block) error {
	blockBytes, err := SerializeForHashing(b)
	if err != nil {
		return err
	}
	b.Hash = hash.NewHash(blockBytes)
	return nil
}

// VerifyBlockHash recomputes the digest and compares it against the hash
// the block declares. The declared hash is never trusted.
func VerifyBlockHash(b *types.Block) error {
	blockBytes, err := SerializeForHashing(b)
	if err != nil {
		return err
	}
	if !hash.NewHash(blockBytes).Equal(b.Hash) {
		return fmt.Errorf("%w: declared %s", ErrInvalidBlockHash, b.Hash.String())
	}
	return nil
}
