package cryptox

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func init() {
	Cost = bcrypt.MinCost
}

func TestHashPassword_RoundTrip(t *testing.T) {
	h, err := HashPassword("pw123")
	require.NoError(t, err)

	assert.NotEqual(t, "pw123", h)
	assert.True(t, strings.HasPrefix(h, "$2"))
	assert.True(t, CheckPassword(h, "pw123"))
}

func TestHashPassword_Salted(t *testing.T) {
	h1, err := HashPassword("same")
	require.NoError(t, err)
	h2, err := HashPassword("same")
	require.NoError(t, err)

	assert.NotEqual(t, h1, h2)
}

func TestCheckPassword_SingleCharMutationsFail(t *testing.T) {
	const pw = "pw123"
	h, err := HashPassword(pw)
	require.NoError(t, err)

	for i := range pw {
		b := []byte(pw)
		b[i]++
		assert.False(t, CheckPassword(h, string(b)), "mutation at %d", i)
	}
	assert.False(t, CheckPassword(h, pw+"x"))
	assert.False(t, CheckPassword(h, pw[:len(pw)-1]))
}

func TestCheckPassword_MalformedHash(t *testing.T) {
	assert.False(t, CheckPassword("not-a-hash", "pw"))
	assert.False(t, CheckPassword("", ""))
}

func TestBurnCompare(t *testing.T) {
	assert.False(t, BurnCompare("mnistlab-dummy-password"))
	assert.False(t, BurnCompare("anything"))
}

func TestIsTooLong(t *testing.T) {
	assert.False(t, IsTooLong("short"))
	assert.True(t, IsTooLong(strings.Repeat("a", 73)))
}
