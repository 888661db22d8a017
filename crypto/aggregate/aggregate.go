// Package aggregate batches per-transaction signatures into a single
// verifiable proof, one batch per proposed block. The proof carries a
// digest binding the ordered signature set, and batch verification runs
// against the corresponding (message, public key) pairs without the
// caller retaining the individual signatures.
package aggregate

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/cloudflare/circl/sign/mldsa/mldsa44"
	"github.com/fxamacker/cbor/v2"
	"golang.org/x/crypto/blake2b"

	"github.com/quantumfuse-labs/quantumfuse/crypto"
	"github.com/quantumfuse-labs/quantumfuse/crypto/hash"
)

// ErrAggregation reports a malformed input signature or a proof that does
// not match the presented messages and public keys.
var ErrAggregation = errors.New("signature aggregation failed")

// Aggregator accumulates the signatures of a single block in order.
type Aggregator struct {
	mu   sync.Mutex
	sigs [][]byte
}

func NewAggregator() *Aggregator {
	return &Aggregator{}
}

// Add appends a signature to the current batch, preserving order.
// Malformed signatures are detected at aggregation time.
func (a *Aggregator) Add(sig crypto.Signature) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if sig == nil {
		a.sigs = append(a.sigs, nil)
		return
	}
	a.sigs = append(a.sigs, sig.Bytes())
}

// Len reports the number of signatures in the current batch.
func (a *Aggregator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.sigs)
}

// Aggregate combines all added signatures into one proof and resets the
// aggregator. It fails with ErrAggregation if any input is malformed,
// leaving the batch intact so the caller can inspect it.
func (a *Aggregator) Aggregate() (*Proof, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for i, sig := range a.sigs {
		if len(sig) != mldsa44.SignatureSize {
			return nil, fmt.Errorf("%w: signature %d has %d bytes, want %d",
				ErrAggregation, i, len(sig), mldsa44.SignatureSize)
		}
	}

	proof := &Proof{
		Count:      len(a.sigs),
		Digest:     batchDigest(a.sigs),
		Signatures: a.sigs,
	}

	// One batch per block: a successful aggregation starts a fresh batch.
	a.sigs = nil

	return proof, nil
}

// Proof is the aggregated signature carried by a block.
type Proof struct {
	Count      int       `cbor:"1,keyasint"`
	Digest     hash.Hash `cbor:"2,keyasint"`
	Signatures [][]byte  `cbor:"3,keyasint"`
}

func (p *Proof) Marshal() ([]byte, error) {
	return cbor.Marshal(p)
}

func (p *Proof) Unmarshal(data []byte) error {
	return cbor.Unmarshal(data, p)
}

// VerifyBatch checks the proof against the ordered (message, public key)
// pairs of the batch. The pairing is positional: pubKeys[i] signed
// messages[i].
func (p *Proof) VerifyBatch(pubKeys []crypto.PublicKey, messages [][]byte) error {
	if len(pubKeys) != p.Count || len(messages) != p.Count {
		return fmt.Errorf("%w: proof covers %d signatures, got %d keys and %d messages",
			ErrAggregation, p.Count, len(pubKeys), len(messages))
	}
	if len(p.Signatures) != p.Count {
		return fmt.Errorf("%w: proof carries %d signatures, header declares %d",
			ErrAggregation, len(p.Signatures), p.Count)
	}

	if !p.Digest.Equal(batchDigest(p.Signatures)) {
		return fmt.Errorf("%w: batch digest mismatch", ErrAggregation)
	}

	for i, sigBytes := range p.Signatures {
		sig := crypto.NewSignature(sigBytes)
		if err := pubKeys[i].Verify(messages[i], sig); err != nil {
			return fmt.Errorf("%w: signature %d does not verify: %v", ErrAggregation, i, err)
		}
	}

	return nil
}

// batchDigest binds the ordered signature set: blake2b over the count
// followed by each length-prefixed signature.
func batchDigest(sigs [][]byte) hash.Hash {
	h, _ := blake2b.New256(nil)

	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(len(sigs)))
	h.Write(buf[:])

	for _, sig := range sigs {
		binary.BigEndian.PutUint64(buf[:], uint64(len(sig)))
		h.Write(buf[:])
		h.Write(sig)
	}

	var digest hash.Hash
	copy(digest[:], h.Sum(nil))
	return digest
}
