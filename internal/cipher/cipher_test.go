package cipher

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoOpExecutor(t *testing.T) {
	e := NoOpExecutor{}
	data := []byte("plain payload")

	encoded, err := e.Encode(data)
	require.NoError(t, err)
	assert.Equal(t, data, encoded)

	decoded, err := e.Decode(encoded)
	require.NoError(t, err)
	assert.Equal(t, data, decoded)
}

func TestSecretboxExecutor_RoundTrip(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)

	e, err := NewSecretboxExecutor(key)
	require.NoError(t, err)

	data := []byte(`{"id":"TGT-1-abc","principal":"alice"}`)
	encoded, err := e.Encode(data)
	require.NoError(t, err)
	assert.NotEqual(t, data, encoded)

	decoded, err := e.Decode(encoded)
	require.NoError(t, err)
	assert.Equal(t, data, decoded)
}

func TestSecretboxExecutor_Tampered(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)
	e, err := NewSecretboxExecutor(key)
	require.NoError(t, err)

	encoded, err := e.Encode([]byte("payload"))
	require.NoError(t, err)

	// 篡改密文任一字节必须导致验证失败
	encoded[len(encoded)-1] ^= 0xff
	_, err = e.Decode(encoded)
	assert.ErrorIs(t, err, ErrDecode)
}

func TestSecretboxExecutor_WrongKey(t *testing.T) {
	key1, _ := GenerateKey()
	key2, _ := GenerateKey()

	e1, err := NewSecretboxExecutor(key1)
	require.NoError(t, err)
	e2, err := NewSecretboxExecutor(key2)
	require.NoError(t, err)

	encoded, err := e1.Encode([]byte("payload"))
	require.NoError(t, err)

	_, err = e2.Decode(encoded)
	assert.ErrorIs(t, err, ErrDecode)
}

func TestSecretboxExecutor_TooShort(t *testing.T) {
	key, _ := GenerateKey()
	e, err := NewSecretboxExecutor(key)
	require.NoError(t, err)

	_, err = e.Decode([]byte("short"))
	assert.ErrorIs(t, err, ErrDecode)
}

func TestNewSecretboxExecutor_InvalidKey(t *testing.T) {
	_, err := NewSecretboxExecutor("not hex")
	assert.Error(t, err)

	_, err = NewSecretboxExecutor("abcd")
	assert.Error(t, err)
}

func TestGenerateKey(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)
	assert.Len(t, key, 64)
	assert.NotEqual(t, strings.Repeat("0", 64), key)

	key2, err := GenerateKey()
	require.NoError(t, err)
	assert.NotEqual(t, key, key2)
}
