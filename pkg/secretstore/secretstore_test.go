package secretstore

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_CredentialsRoundTripEncrypted(t *testing.T) {
	dir := t.TempDir()
	key, err := ParseKey(strings.Repeat("ab", 32))
	require.NoError(t, err)

	s, err := Open(OpenOptions{Path: dir, EncryptionKey: key})
	require.NoError(t, err)

	_, _, found, err := s.Credentials("HUOBI")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.SetCredentials("HUOBI", "k1", "s1"))
	require.NoError(t, s.Close())

	// 重新打开后仍可读取
	s, err = Open(OpenOptions{Path: dir, EncryptionKey: key})
	require.NoError(t, err)
	defer s.Close()

	apiKey, apiSecret, found, err := s.Credentials("HUOBI")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "k1", apiKey)
	assert.Equal(t, "s1", apiSecret)
}

func TestStore_EmptyValueIsFound(t *testing.T) {
	s, err := Open(OpenOptions{InMemory: true})
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.SetString("gateway/X/key", ""))
	v, found, err := s.GetString("gateway/X/key")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Empty(t, v)

	require.NoError(t, s.Delete("gateway/X/key"))
	_, found, err = s.GetString("gateway/X/key")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestStore_Errors(t *testing.T) {
	_, err := Open(OpenOptions{})
	assert.Error(t, err)

	var nilStore *Store
	_, _, err = nilStore.GetString("a")
	assert.ErrorIs(t, err, ErrNotOpened)
	assert.NoError(t, nilStore.Close())

	s, err := Open(OpenOptions{InMemory: true})
	require.NoError(t, err)
	defer s.Close()
	assert.ErrorIs(t, s.SetString("  ", "v"), ErrEmptyKey)
	assert.ErrorIs(t, s.SetCredentials("", "k", "s"), ErrEmptyKey)
}

func TestParseKey(t *testing.T) {
	raw := make([]byte, 32)
	for i := range raw {
		raw[i] = byte(i)
	}

	b, err := ParseKey("0x" + strings.Repeat("0f", 32))
	require.NoError(t, err)
	assert.Len(t, b, 32)

	b, err = ParseKey(base64.StdEncoding.EncodeToString(raw))
	require.NoError(t, err)
	assert.Equal(t, raw, b)

	b, err = ParseKey("")
	assert.NoError(t, err)
	assert.Nil(t, b)

	_, err = ParseKey("abcd")
	assert.Error(t, err)
	_, err = ParseKey("not a key!")
	assert.Error(t, err)
}
