package filestore_test

import (
	"testing"

	"github.com/greenplanet/storefront/credentials"
	"github.com/greenplanet/storefront/credentials/filestore"
	"github.com/stretchr/testify/require"
)

func TestSetGetDelete(t *testing.T) {
	fs, err := filestore.New(t.TempDir())
	require.NoError(t, err)

	_, err = fs.Get(credentials.KeyAccessToken)
	require.ErrorIs(t, err, credentials.ErrKeyNotFound)

	require.NoError(t, fs.Set(credentials.KeyAccessToken, "tok-1"))
	value, err := fs.Get(credentials.KeyAccessToken)
	require.NoError(t, err)
	require.Equal(t, "tok-1", value)

	require.NoError(t, fs.Delete(credentials.KeyAccessToken))
	_, err = fs.Get(credentials.KeyAccessToken)
	require.ErrorIs(t, err, credentials.ErrKeyNotFound)

	// Deleting an absent key is a no-op.
	require.NoError(t, fs.Delete(credentials.KeyAccessToken))
}

func TestValuesSurviveReopen(t *testing.T) {
	dir := t.TempDir()

	fs, err := filestore.New(dir)
	require.NoError(t, err)
	require.NoError(t, fs.Set(credentials.KeyAccessToken, "tok-1"))
	require.NoError(t, fs.Set(credentials.KeyCart, `[{"productId":"p1","quantity":2}]`))

	reopened, err := filestore.New(dir)
	require.NoError(t, err)

	value, err := reopened.Get(credentials.KeyAccessToken)
	require.NoError(t, err)
	require.Equal(t, "tok-1", value)

	value, err = reopened.Get(credentials.KeyCart)
	require.NoError(t, err)
	require.Equal(t, `[{"productId":"p1","quantity":2}]`, value)
}

func TestEmptyStringIsAStoredValueNotAbsence(t *testing.T) {
	fs, err := filestore.New(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, fs.Set(credentials.KeyUserID, ""))
	value, err := fs.Get(credentials.KeyUserID)
	require.NoError(t, err)
	require.Empty(t, value)
}
