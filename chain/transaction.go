package chain

import (
	"errors"
	"fmt"
	"time"

	"github.com/quantumfuse-labs/quantumfuse/amount"
	"github.com/quantumfuse-labs/quantumfuse/crypto"
	"github.com/quantumfuse-labs/quantumfuse/crypto/hash"
	"github.com/quantumfuse-labs/quantumfuse/types"
)

var ErrInvalidTransaction = errors.New("invalid transaction")

// NewTransaction builds and signs a transfer. The content hash covers
// every field except the signature and is the transaction's identity.
func NewTransaction(senderKey crypto.PrivateKey, recipient string, amt, fee amount.Amount, nonce uint64) (*types.Transaction, error) {
	pub := senderKey.PublicKey()
	addr, err := pub.Address()
	if err != nil {
		return nil, fmt.Errorf("failed to derive sender address: %v", err)
	}

	tx := &types.Transaction{
		Sender:       addr.String(),
		Recipient:    recipient,
		Amount:       amt,
		Fee:          fee,
		Nonce:        nonce,
		Timestamp:    time.Now().Unix(),
		SenderPubKey: pub.Bytes(),
	}

	txHash, err := ComputeTransactionHash(tx)
	if err != nil {
		return nil, err
	}
	tx.Hash = txHash

	sig := senderKey.Sign(txHash.Bytes())
	if sig == nil {
		return nil, fmt.Errorf("failed to sign transaction %s", txHash.String())
	}
	tx.Signature = sig.Bytes()

	return tx, nil
}

// ComputeTransactionHash digests the transaction content, excluding the
// signature.
func ComputeTransactionHash(tx *types.Transaction) (hash.Hash, error) {
	payload, err := tx.SigningPayload()
	if err != nil {
		return hash.Hash{}, fmt.Errorf("failed to serialize transaction: %v", err)
	}
	return hash.NewHash(payload), nil
}

// VerifyTransaction checks the transaction invariants before admission:
// positive amount, non-negative fee, content hash integrity, sender
// address derived from the embedded public key, and a valid signature
// over the content hash.
func VerifyTransaction(tx *types.Transaction) error {
	if tx.Amount <= 0 {
		return fmt.Errorf("%w: amount must be positive, got %d", ErrInvalidTransaction, tx.Amount)
	}
	if tx.Fee < 0 {
		return fmt.Errorf("%w: fee cannot be negative, got %d", ErrInvalidTransaction, tx.Fee)
	}

	computed, err := ComputeTransactionHash(tx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTransaction, err)
	}
	if !computed.Equal(tx.Hash) {
		return fmt.Errorf("%w: content hash mismatch", ErrInvalidTransaction)
	}

	pub, err := crypto.PublicKeyFromBytes(tx.SenderPubKey)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTransaction, err)
	}

	addr, err := pub.Address()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTransaction, err)
	}
	if addr.String() != tx.Sender {
		return fmt.Errorf("%w: sender address does not match public key", ErrInvalidTransaction)
	}

	if len(tx.Signature) == 0 {
		return fmt.Errorf("%w: unsigned", ErrInvalidTransaction)
	}
	if err := pub.Verify(tx.Hash.Bytes(), crypto.NewSignature(tx.Signature)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTransaction, err)
	}

	return nil
}
