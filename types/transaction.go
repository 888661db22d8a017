package types

import (
	"github.com/fxamacker/cbor/v2"

	"github.com/quantumfuse-labs/quantumfuse/amount"
	"github.com/quantumfuse-labs/quantumfuse/crypto/hash"
)

// Transaction is a signed transfer between two accounts. Once signed it is
// immutable and its content hash is its identity.
type Transaction struct {
	Sender       string        `cbor:"1,keyasint"`
	Recipient    string        `cbor:"2,keyasint"`
	Amount       amount.Amount `cbor:"3,keyasint"`
	Fee          amount.Amount `cbor:"4,keyasint"`
	Nonce        uint64        `cbor:"5,keyasint"`
	Timestamp    int64         `cbor:"6,keyasint"`
	SenderPubKey []byte        `cbor:"7,keyasint"`
	Signature    []byte        `cbor:"8,keyasint,omitempty"`
	Hash         hash.Hash     `cbor:"9,keyasint,omitempty"`
}

// Marshal serializes the transaction into CBOR format.
func (tx *Transaction) Marshal() ([]byte, error) {
	return cbor.Marshal(tx)
}

// Unmarshal deserializes the transaction from CBOR format.
func (tx *Transaction) Unmarshal(data []byte) error {
	return cbor.Unmarshal(data, tx)
}

// SigningPayload returns the canonical bytes covered by the sender's
// signature: the transaction with signature and hash zeroed.
func (tx *Transaction) SigningPayload() ([]byte, error) {
	txCopy := *tx
	txCopy.Signature = nil
	txCopy.Hash = hash.NullHash()
	return txCopy.Marshal()
}
