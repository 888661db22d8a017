package crypto

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/cloudflare/circl/sign/mldsa/mldsa44"
	"github.com/fxamacker/cbor/v2"
	"github.com/quantumfuse-labs/quantumfuse/crypto/address"
)

type publicKey struct {
	pubKey *mldsa44.PublicKey
}

func NewPublicKey(pubKey *mldsa44.PublicKey) PublicKey {
	return &publicKey{pubKey: pubKey}
}

// PublicKeyFromBytes reconstructs a public key from its raw encoding, the
// form carried inside transactions.
func PublicKeyFromBytes(data []byte) (PublicKey, error) {
	pub := new(mldsa44.PublicKey)
	if err := pub.UnmarshalBinary(data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal public key: %v", err)
	}
	return &publicKey{pubKey: pub}, nil
}

func (p *publicKey) Bytes() []byte {
	return p.pubKey.Bytes()
}

func (p *publicKey) String() string {
	return string(p.Bytes())
}

func (p *publicKey) Address() (*address.Address, error) {
	return address.New(p.pubKey)
}

func (p *publicKey) Verify(data []byte, sig Signature) error {
	if sig == nil {
		return errors.New("signature cannot be nil")
	}
	if !mldsa44.Verify(p.pubKey, data, nil, sig.Bytes()) {
		return errors.New("invalid signature")
	}
	return nil
}

func (p *publicKey) Marshal() ([]byte, error) {
	pub, err := p.pubKey.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return cbor.Marshal(pub)
}

func (p *publicKey) Unmarshal(data []byte) error {
	var d []byte
	if err := cbor.Unmarshal(data, &d); err != nil {
		return err
	}
	if p.pubKey == nil {
		p.pubKey = new(mldsa44.PublicKey)
	}
	return p.pubKey.UnmarshalBinary(d)
}

func (p *publicKey) Equal(other PublicKey) bool {
	if other == nil {
		return false
	}
	return bytes.Equal(p.Bytes(), other.Bytes())
}
