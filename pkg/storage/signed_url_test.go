package storage

import (
	"bytes"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignedURLSignerSignAndVerify(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Hour)
	token, expiresAt, err := signer.Sign("img-1", "teacher-1/img-1.png")
	require.NoError(t, err)
	require.False(t, expiresAt.IsZero())

	res, err := signer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "img-1", res.ResourceID)
	assert.Equal(t, "teacher-1/img-1.png", res.Path)
	assert.True(t, expiresAt.Equal(res.ExpiresAt))
}

func TestSignedURLSignerRejectsTamperingAndExpiry(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Minute)
	token, _, err := signer.Sign("img-1", "a.png")
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	parts[0] = "img-2"
	_, err = signer.Verify(strings.Join(parts, "."))
	assert.Error(t, err)

	_, err = NewSignedURLSigner("other", time.Minute).Verify(token)
	assert.Error(t, err)

	signer.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, err = signer.Verify(token)
	assert.EqualError(t, err, "token expired")
}

func TestSignedURLSignerValidatesInput(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Minute)
	_, _, err := signer.Sign("", "a.png")
	assert.Error(t, err)
	_, _, err = signer.Sign("a.b", "a.png")
	assert.Error(t, err)
	_, _, err = NewSignedURLSigner("", time.Minute).Sign("img", "a.png")
	assert.Error(t, err)
}

func TestLocalStorageSaveOpenDelete(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	n, err := store.SaveStream("teacher-1/img.png", bytes.NewReader([]byte("png-bytes")), 64)
	require.NoError(t, err)
	assert.Equal(t, int64(9), n)

	f, err := store.Open("teacher-1/img.png")
	require.NoError(t, err)
	data, err := io.ReadAll(f)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	assert.Equal(t, "png-bytes", string(data))

	require.NoError(t, store.Delete("teacher-1/img.png"))
	_, err = store.Open("teacher-1/img.png")
	assert.Error(t, err)
}

func TestLocalStorageLimitsAndTraversal(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	_, err = store.SaveStream("big.png", bytes.NewReader(make([]byte, 10)), 4)
	assert.ErrorIs(t, err, ErrTooLarge)
	_, err = store.Open("big.png")
	assert.Error(t, err)

	_, err = store.SaveStream("../escape.png", bytes.NewReader([]byte("x")), 4)
	assert.Error(t, err)
	_, err = store.Open("/etc/passwd")
	assert.Error(t, err)
}
