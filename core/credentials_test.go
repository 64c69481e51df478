package core

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCredentialFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "passwords.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestFileCredentialStoreResolves(t *testing.T) {
	path := writeCredentialFile(t, "\"20429994323\": hunter2\n\"30111111112\": other\n")

	store, err := NewFileCredentialStore(path)
	require.NoError(t, err)

	password, err := store.Password(context.Background(), "20429994323")
	require.NoError(t, err)
	assert.Equal(t, "hunter2", password)

	_, err = store.Password(context.Background(), "99999999999")
	assert.ErrorIs(t, err, ErrPasswordNotFound)
}

func TestFileCredentialStoreMissingFile(t *testing.T) {
	_, err := NewFileCredentialStore(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorIs(t, err, ErrPasswordServiceUnavailable)
}

func TestFileCredentialStoreMalformedFile(t *testing.T) {
	path := writeCredentialFile(t, "not: [valid: yaml")
	_, err := NewFileCredentialStore(path)
	assert.ErrorIs(t, err, ErrPasswordServiceUnavailable)
}

func TestFileCredentialStoreReload(t *testing.T) {
	path := writeCredentialFile(t, "\"20429994323\": old\n")
	store, err := NewFileCredentialStore(path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("\"20429994323\": new\n"), 0o600))
	require.NoError(t, store.Reload())

	password, err := store.Password(context.Background(), "20429994323")
	require.NoError(t, err)
	assert.Equal(t, "new", password)
}

func TestStaticCredentials(t *testing.T) {
	creds := StaticCredentials{"20429994323": "p"}
	password, err := creds.Password(context.Background(), "20429994323")
	require.NoError(t, err)
	assert.Equal(t, "p", password)

	_, err = creds.Password(context.Background(), "30111111112")
	assert.ErrorIs(t, err, ErrPasswordNotFound)
}
