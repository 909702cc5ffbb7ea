package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealOpen_RoundTrip(t *testing.T) {
	s, err := NewSealer("test-secret")
	require.NoError(t, err)

	sealed, err := s.Seal("ya29.access-token")
	require.NoError(t, err)
	assert.NotEqual(t, "ya29.access-token", sealed)

	opened, err := s.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "ya29.access-token", opened)
}

func TestSeal_NonDeterministic(t *testing.T) {
	s, err := NewSealer("test-secret")
	require.NoError(t, err)

	a, err := s.Seal("same")
	require.NoError(t, err)
	b, err := s.Seal("same")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestOpen_WrongKey(t *testing.T) {
	s1, err := NewSealer("key-one")
	require.NoError(t, err)
	s2, err := NewSealer("key-two")
	require.NoError(t, err)

	sealed, err := s1.Seal("secret")
	require.NoError(t, err)

	_, err = s2.Open(sealed)
	assert.Error(t, err)
}

func TestOpen_Malformed(t *testing.T) {
	s, err := NewSealer("key")
	require.NoError(t, err)

	_, err = s.Open("not-base64!!!")
	assert.Error(t, err)

	_, err = s.Open("c2hvcnQ=")
	assert.Error(t, err)
}

func TestNewSealer_EmptyKey(t *testing.T) {
	_, err := NewSealer("")
	assert.Error(t, err)
}
