package address

import (
	"bytes"
	"fmt"

	mldsa "github.com/cloudflare/circl/sign/mldsa/mldsa44"

	"github.com/btcsuite/btcutil/bech32"
	"github.com/fxamacker/cbor/v2"
	"github.com/quantumfuse-labs/quantumfuse/crypto/hash"
)

const (
	// AddressWords is the number of 5-bit words in the data part of the
	// Bech32 address: 20 bytes of hash -> 160 bits / 5 bits per word.
	AddressWords = 32
	AddressHRP   = "qf"
)

// Address holds the 32 5-bit words of the Bech32 data part.
type Address [AddressWords]byte

// New creates an Address from a public key.
func New(pubKey *mldsa.PublicKey) (*Address, error) {
	pubKeyBytes := pubKey.Bytes()

	hashBytes := hash.NewHash(pubKeyBytes)
	addressBytes := hashBytes[:20]

	words, err := bech32.ConvertBits(addressBytes, 8, 5, true)
	if err != nil {
		return nil, fmt.Errorf("failed to convert public key hash to 5-bit words: %v", err)
	}
	if len(words) != AddressWords {
		return nil, fmt.Errorf("unexpected number of words after conversion: got %d, want %d", len(words), AddressWords)
	}

	var address Address
	copy(address[:], words)
	return &address, nil
}

// NullAddress creates a zeroed Address.
func NullAddress() *Address {
	return &Address{}
}

// Validate checks if a string is a valid Bech32 address with the correct
// HRP and data length.
func Validate(addr string) bool {
	hrp, words, err := bech32.Decode(addr)
	if err != nil {
		return false
	}
	if hrp != AddressHRP {
		return false
	}
	return len(words) == AddressWords
}

// FromString decodes a Bech32 address string.
func FromString(addr string) (*Address, error) {
	hrp, words, err := bech32.Decode(addr)
	if err != nil {
		return nil, fmt.Errorf("failed to decode address: %v", err)
	}
	if hrp != AddressHRP {
		return nil, fmt.Errorf("unexpected address prefix %q, want %q", hrp, AddressHRP)
	}
	if len(words) != AddressWords {
		return nil, fmt.Errorf("unexpected address length: got %d words, want %d", len(words), AddressWords)
	}
	var a Address
	copy(a[:], words)
	return &a, nil
}

func (a *Address) String() string {
	encoded, err := bech32.Encode(AddressHRP, a[:])
	if err != nil {
		return ""
	}
	return encoded
}

func (a *Address) Bytes() []byte {
	return a[:]
}

func (a *Address) Equal(other *Address) bool {
	if other == nil {
		return false
	}
	return bytes.Equal(a[:], other[:])
}

func (a *Address) Marshal() ([]byte, error) {
	return cbor.Marshal(a[:])
}

func (a *Address) Unmarshal(data []byte) error {
	var raw []byte
	if err := cbor.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) != AddressWords {
		return fmt.Errorf("unexpected address length: got %d, want %d", len(raw), AddressWords)
	}
	copy(a[:], raw)
	return nil
}
