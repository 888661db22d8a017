package address

import (
	"strings"
	"testing"

	mldsa "github.com/cloudflare/circl/sign/mldsa/mldsa44"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(t *testing.T) *mldsa.PublicKey {
	t.Helper()
	var seed [mldsa.SeedSize]byte
	copy(seed[:], "deterministic test seed")
	pk, _ := mldsa.NewKeyFromSeed(&seed)
	return pk
}

func TestNewAddress(t *testing.T) {
	addr, err := New(testKey(t))
	require.NoError(t, err)

	encoded := addr.String()
	assert.True(t, strings.HasPrefix(encoded, AddressHRP+"1"))
	assert.True(t, Validate(encoded))
}

func TestNewAddressDeterministic(t *testing.T) {
	a, err := New(testKey(t))
	require.NoError(t, err)
	b, err := New(testKey(t))
	require.NoError(t, err)
	assert.True(t, a.Equal(b))
}

func TestFromStringRoundTrip(t *testing.T) {
	addr, err := New(testKey(t))
	require.NoError(t, err)

	decoded, err := FromString(addr.String())
	require.NoError(t, err)
	assert.True(t, addr.Equal(decoded))
}

func TestValidateRejectsBadInput(t *testing.T) {
	assert.False(t, Validate("not-an-address"))
	assert.False(t, Validate(""))

	// Right format, wrong HRP.
	addr, err := New(testKey(t))
	require.NoError(t, err)
	wrong := "tl" + strings.TrimPrefix(addr.String(), AddressHRP)
	assert.False(t, Validate(wrong))
}

func TestMarshalRoundTrip(t *testing.T) {
	addr, err := New(testKey(t))
	require.NoError(t, err)

	data, err := addr.Marshal()
	require.NoError(t, err)

	restored := NullAddress()
	require.NoError(t, restored.Unmarshal(data))
	assert.True(t, addr.Equal(restored))
}
