package clearance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasAccess(t *testing.T) {
	assert.True(t, HasAccess(3, 3))
	assert.False(t, HasAccess(3, 4))
	assert.True(t, HasAccess(6, 0))
}

func TestHasAccess_Monotonic(t *testing.T) {
	for a := Min; a <= Max; a++ {
		for b := a; b <= Max; b++ {
			assert.True(t, HasAccess(b, a), "HasAccess(%d,%d)", b, a)
			assert.Equal(t, a == b, HasAccess(a, b), "HasAccess(%d,%d)", a, b)
		}
	}
}

func TestHasAccess_InvalidNeverGrants(t *testing.T) {
	assert.False(t, HasAccess(7, 0))
	assert.False(t, HasAccess(-1, -1))
	assert.False(t, HasAccess(Ultraviolet, 9))
}

func TestIsValid(t *testing.T) {
	assert.True(t, IsValid(0))
	assert.True(t, IsValid(6))
	assert.False(t, IsValid(-1))
	assert.False(t, IsValid(7))
}

func TestParse(t *testing.T) {
	l, err := Parse("yellow")
	require.NoError(t, err)
	assert.Equal(t, Yellow, l)

	l, err = Parse(" 6 ")
	require.NoError(t, err)
	assert.Equal(t, Ultraviolet, l)

	_, err = Parse("7")
	assert.Error(t, err)
	_, err = Parse("violet")
	assert.Error(t, err)
}

func TestString(t *testing.T) {
	assert.Equal(t, "INFRARED", Infrared.String())
	assert.Equal(t, "BLUE", Blue.String())
	assert.Equal(t, "Level(9)", Level(9).String())
	assert.Len(t, All(), 7)
}
