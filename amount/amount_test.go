package amount

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAmount(t *testing.T) {
	a, err := NewAmount(1.5)
	require.NoError(t, err)
	assert.Equal(t, Amount(1_500_000_000), a)

	_, err = NewAmount(math.NaN())
	assert.Error(t, err)
	_, err = NewAmount(math.Inf(1))
	assert.Error(t, err)
}

func TestFromString(t *testing.T) {
	a, err := FromString("0.000000001")
	require.NoError(t, err)
	assert.Equal(t, Amount(1), a)

	_, err = FromString("not a number")
	assert.Error(t, err)
}

func TestUnitConversion(t *testing.T) {
	a, err := NewAmount(2)
	require.NoError(t, err)

	assert.InDelta(t, 2.0, a.ToQFC(), 1e-12)
	assert.InDelta(t, 2000.0, a.ToUnit(MilliQFC), 1e-9)
	assert.Equal(t, int64(2_000_000_000), a.ToNanoQFC())
}

func TestMulF64Rounds(t *testing.T) {
	assert.Equal(t, Amount(50), Amount(100).MulF64(0.5))
	assert.Equal(t, Amount(33), Amount(100).MulF64(0.333))
	assert.Equal(t, Amount(-50), Amount(-100).MulF64(0.5))
}

func TestFormat(t *testing.T) {
	a, err := NewAmount(1.5)
	require.NoError(t, err)
	assert.Equal(t, "1.5 QFC", a.String())
}
