package infra

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileKeyProvider_StoreAndGet(t *testing.T) {
	provider := NewFileKeyProvider(t.TempDir())
	assert.False(t, provider.KeyExists())

	_, err := provider.GetKey()
	assert.Error(t, err)

	key, err := GenerateKey()
	require.NoError(t, err)
	require.NoError(t, provider.StoreKey(key))

	assert.True(t, provider.KeyExists())
	info, err := os.Stat(provider.path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	got, err := provider.GetKey()
	require.NoError(t, err)
	assert.Equal(t, key, got)
}

func TestFileKeyProvider_Rejects(t *testing.T) {
	dir := t.TempDir()
	provider := NewFileKeyProvider(dir)

	err := provider.StoreKey([]byte("tooshort"))
	assert.ErrorContains(t, err, "invalid key size")

	require.NoError(t, os.WriteFile(filepath.Join(dir, storeKeyFile), []byte("zz-not-hex"), 0600))
	_, err = provider.GetKey()
	assert.ErrorContains(t, err, "decode")

	require.NoError(t, os.WriteFile(filepath.Join(dir, storeKeyFile), []byte("abcd"), 0600))
	_, err = provider.GetKey()
	assert.ErrorContains(t, err, "invalid key size")
}

func TestFileKeyProvider_CreatesDirectory(t *testing.T) {
	nested := filepath.Join(t.TempDir(), "a", "b")
	provider := NewFileKeyProvider(nested)

	key, err := GenerateKey()
	require.NoError(t, err)
	require.NoError(t, provider.StoreKey(key))
	assert.True(t, provider.KeyExists())
}

func TestGenerateKey_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		key, err := GenerateKey()
		require.NoError(t, err)
		require.Len(t, key, storeKeyLen)
		assert.False(t, seen[string(key)])
		seen[string(key)] = true
	}
}

func TestEnsureKey(t *testing.T) {
	provider := NewFileKeyProvider(t.TempDir())

	first, err := EnsureKey(provider)
	require.NoError(t, err)
	assert.Len(t, first, storeKeyLen)

	second, err := EnsureKey(provider)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestEnsureKey_KeepsKeyWrittenFirst(t *testing.T) {
	dir := t.TempDir()
	provider := NewFileKeyProvider(dir)

	created, err := provider.createKey(bytes.Repeat([]byte{7}, storeKeyLen))
	require.NoError(t, err)
	require.True(t, created)

	created, err = provider.createKey(bytes.Repeat([]byte{9}, storeKeyLen))
	require.NoError(t, err)
	assert.False(t, created)

	key, err := EnsureKey(provider)
	require.NoError(t, err)
	assert.Equal(t, bytes.Repeat([]byte{7}, storeKeyLen), key)

	info, err := os.Stat(filepath.Join(dir, storeKeyFile))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}
