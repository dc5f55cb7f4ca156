package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAndVerify(t *testing.T) {
	h, err := HashPassword("centro123")
	require.NoError(t, err)
	assert.Contains(t, h, "$argon2id$v=19$")

	ok, err := VerifyPassword(h, "centro123")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = VerifyPassword(h, "centro124")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerify_Errors(t *testing.T) {
	_, err := VerifyPassword("", "x")
	assert.Error(t, err)
	_, err = VerifyPassword("$argon2id$bad", "x")
	assert.Error(t, err)
	_, err = VerifyPassword("$bcrypt$v=19$m=1,t=1,p=1$c2FsdA$aGFzaA", "x")
	assert.Error(t, err)
}

func TestGate(t *testing.T) {
	norte, err := HashPassword("norte")
	require.NoError(t, err)
	admin, err := HashPassword("root")
	require.NoError(t, err)

	g := NewGate(map[string]string{"macro1": norte}, admin)

	assert.NoError(t, g.VerifyRegion("MACRO1", "norte"))
	assert.ErrorIs(t, g.VerifyRegion("MACRO1", "sul"), ErrWrongPassword)
	assert.ErrorIs(t, g.VerifyRegion("MACRO2", "norte"), ErrNotConfigured)
	assert.True(t, g.HasRegion("macro1"))

	assert.NoError(t, g.VerifyAdmin("root"))
	assert.ErrorIs(t, g.VerifyAdmin("norte"), ErrWrongPassword)
	assert.ErrorIs(t, NewGate(nil, "").VerifyAdmin("x"), ErrNotConfigured)
}
