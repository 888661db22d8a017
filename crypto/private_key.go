package crypto

import (
	"bytes"
	"crypto/rand"
	"fmt"

	"github.com/cloudflare/circl/sign/mldsa/mldsa44"
	"github.com/fxamacker/cbor/v2"
)

type privateKey struct {
	privKey *mldsa44.PrivateKey
}

func NewPrivateKey() (PrivateKey, error) {
	_, key, err := mldsa44.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %v", err)
	}
	return &privateKey{
		privKey: key,
	}, nil
}

func (p *privateKey) Bytes() []byte {
	return p.privKey.Bytes()
}

func (p *privateKey) String() string {
	return string(p.Bytes())
}

func (p *privateKey) Sign(data []byte) Signature {
	sig := make([]byte, mldsa44.SignatureSize)
	if err := mldsa44.SignTo(p.privKey, data, nil, false, sig); err != nil {
		return nil
	}
	return &signature{sig: sig}
}

func (p *privateKey) PublicKey() PublicKey {
	pub := p.privKey.Public().(*mldsa44.PublicKey)
	return &publicKey{pubKey: pub}
}

func (p *privateKey) Marshal() ([]byte, error) {
	priv, err := p.privKey.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return cbor.Marshal(priv)
}

func (p *privateKey) Unmarshal(data []byte) error {
	var d []byte
	if err := cbor.Unmarshal(data, &d); err != nil {
		return err
	}
	if p.privKey == nil {
		p.privKey = new(mldsa44.PrivateKey)
	}
	return p.privKey.UnmarshalBinary(d)
}

func (p *privateKey) Equal(other PrivateKey) bool {
	if other == nil {
		return false
	}
	return bytes.Equal(p.Bytes(), other.Bytes())
}
