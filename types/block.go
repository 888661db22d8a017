package types

import (
	"github.com/fxamacker/cbor/v2"

	"github.com/quantumfuse-labs/quantumfuse/crypto/aggregate"
	"github.com/quantumfuse-labs/quantumfuse/crypto/hash"
)

// Block is one committed unit of the chain. The hash covers every field
// preceding it and is recomputed on validation, never trusted from the
// network.
type Block struct {
	Index         int64            `cbor:"1,keyasint"`
	Timestamp     int64            `cbor:"2,keyasint"`
	PrevHash      hash.Hash        `cbor:"3,keyasint"`
	Proposer      string           `cbor:"4,keyasint"`
	Nonce         uint64           `cbor:"5,keyasint"`
	Difficulty    uint64           `cbor:"6,keyasint"`
	Transactions  []*Transaction   `cbor:"7,keyasint"`
	AggregatedSig *aggregate.Proof `cbor:"8,keyasint,omitempty"`
	Hash          hash.Hash        `cbor:"9,keyasint,omitempty"`
}

// Marshal serializes the block into CBOR format.
func (b *Block) Marshal() ([]byte, error) {
	return cbor.Marshal(b)
}

// Unmarshal deserializes the block from CBOR format.
func (b *Block) Unmarshal(data []byte) error {
	return cbor.Unmarshal(data, b)
}
