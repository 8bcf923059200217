package privacy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealOpenRoundTrip(t *testing.T) {
	key, err := NewDataKey()
	require.NoError(t, err)
	plaintext := []byte("noised gradient payload")

	sealed, err := Seal(key, plaintext)
	require.NoError(t, err)
	assert.NotEqual(t, plaintext, sealed)

	opened, err := Open(key, sealed)
	require.NoError(t, err)
	assert.Equal(t, plaintext, opened)
}

func TestSealProducesFreshCiphertext(t *testing.T) {
	key, err := NewDataKey()
	require.NoError(t, err)
	plaintext := []byte("same payload")

	first, err := Seal(key, plaintext)
	require.NoError(t, err)
	second, err := Seal(key, plaintext)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestOpenWrongKey(t *testing.T) {
	key, err := NewDataKey()
	require.NoError(t, err)
	otherKey, err := NewDataKey()
	require.NoError(t, err)

	sealed, err := Seal(key, []byte("secret"))
	require.NoError(t, err)

	_, err = Open(otherKey, sealed)
	assert.ErrorIs(t, err, ErrDecryptFailed)
}

func TestOpenCorruptedCiphertext(t *testing.T) {
	key, err := NewDataKey()
	require.NoError(t, err)

	sealed, err := Seal(key, []byte("secret"))
	require.NoError(t, err)
	sealed[len(sealed)-1] ^= 0xff

	_, err = Open(key, sealed)
	assert.ErrorIs(t, err, ErrDecryptFailed)
}

func TestOpenTruncatedCiphertext(t *testing.T) {
	key, err := NewDataKey()
	require.NoError(t, err)

	_, err = Open(key, []byte{0x01, 0x02})
	assert.ErrorIs(t, err, ErrDecryptFailed)
}

func TestKeySizeEnforced(t *testing.T) {
	short := make([]byte, 16)

	_, err := Seal(short, []byte("data"))
	assert.ErrorIs(t, err, ErrInvalidKeySize)

	_, err = Open(short, []byte("data"))
	assert.ErrorIs(t, err, ErrInvalidKeySize)
}

func TestNewDataKey(t *testing.T) {
	first, err := NewDataKey()
	require.NoError(t, err)
	second, err := NewDataKey()
	require.NoError(t, err)

	assert.Len(t, first, DataKeySize)
	assert.NotEqual(t, first, second)
}
