package keystore_test

import (
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theblitlabs/sentinel/pkg/keystore"
)

func TestSaveLoadToken(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	require.NoError(t, keystore.SaveToken("eyJhbGciOiJIUzI1NiJ9.payload.sig"))

	token, err := keystore.LoadToken()
	require.NoError(t, err)
	assert.Equal(t, "eyJhbGciOiJIUzI1NiJ9.payload.sig", token)

	path, err := keystore.GetKeystorePath()
	require.NoError(t, err)
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestSaveTokenEmpty(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	assert.Error(t, keystore.SaveToken(""))
}

func TestLoadTokenMissing(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	_, err := keystore.LoadToken()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "no auth token found")
}

func TestSaveLoadPrivateKey(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	keyHex := hex.EncodeToString(crypto.FromECDSA(key))

	require.NoError(t, keystore.SavePrivateKey(keyHex))

	loaded, err := keystore.LoadPrivateKey()
	require.NoError(t, err)
	assert.Equal(t, keyHex, hex.EncodeToString(crypto.FromECDSA(loaded)))
}

func TestSavePrivateKeyInvalid(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	err := keystore.SavePrivateKey("not-a-key")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invalid private key format")

	// rejected keys never touch disk
	path := filepath.Join(os.Getenv("HOME"), ".sentinel", "keystore.json")
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestTokenAndKeyCoexist(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	keyHex := hex.EncodeToString(crypto.FromECDSA(key))

	require.NoError(t, keystore.SavePrivateKey(keyHex))
	require.NoError(t, keystore.SaveToken("cached-token"))

	loadedKey, err := keystore.LoadPrivateKey()
	require.NoError(t, err)
	assert.Equal(t, keyHex, hex.EncodeToString(crypto.FromECDSA(loadedKey)))

	token, err := keystore.LoadToken()
	require.NoError(t, err)
	assert.Equal(t, "cached-token", token)
}
