package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignAndVerify(t *testing.T) {
	priv, err := NewPrivateKey()
	require.NoError(t, err)

	msg := []byte("transfer 30 nanoQFC")
	sig := priv.Sign(msg)
	require.NotNil(t, sig)

	assert.NoError(t, priv.PublicKey().Verify(msg, sig))
	assert.Error(t, priv.PublicKey().Verify([]byte("another message"), sig))
}

func TestVerifyRejectsForeignKey(t *testing.T) {
	a, err := NewPrivateKey()
	require.NoError(t, err)
	b, err := NewPrivateKey()
	require.NoError(t, err)

	msg := []byte("hello")
	sig := a.Sign(msg)
	require.NotNil(t, sig)

	assert.Error(t, b.PublicKey().Verify(msg, sig))
}

func TestPrivateKeyRoundTrip(t *testing.T) {
	priv, err := NewPrivateKey()
	require.NoError(t, err)

	data, err := priv.Marshal()
	require.NoError(t, err)

	restored := &privateKey{}
	require.NoError(t, restored.Unmarshal(data))
	assert.True(t, priv.Equal(restored))

	// The restored key produces verifiable signatures.
	msg := []byte("round trip")
	sig := restored.Sign(msg)
	require.NotNil(t, sig)
	assert.NoError(t, priv.PublicKey().Verify(msg, sig))
}

func TestPublicKeyFromBytes(t *testing.T) {
	priv, err := NewPrivateKey()
	require.NoError(t, err)
	pub := priv.PublicKey()

	restored, err := PublicKeyFromBytes(pub.Bytes())
	require.NoError(t, err)

	origAddr, err := pub.Address()
	require.NoError(t, err)
	restoredAddr, err := restored.Address()
	require.NoError(t, err)
	assert.Equal(t, origAddr.String(), restoredAddr.String())

	_, err = PublicKeyFromBytes([]byte("garbage"))
	assert.Error(t, err)
}
