package db

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReadMigrations(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600))
	}
	write("002_add_index.sql", "CREATE INDEX x;")
	write("001_google_auth.sql", "CREATE TABLE y;")
	write("notes.sql", "ignored")
	write("abc_bad.sql", "ignored")
	write("003_readme.txt", "ignored")

	migrations, err := readMigrations(dir)
	require.NoError(t, err)
	require.Len(t, migrations, 2)
	require.Equal(t, 1, migrations[0].Number)
	require.Equal(t, "google_auth", migrations[0].Name)
	require.Equal(t, "CREATE TABLE y;", migrations[0].SQL)
	require.Equal(t, "add_index", migrations[1].Name)
}

func TestReadShippedMigrations(t *testing.T) {
	migrations, err := readMigrations(filepath.Join("..", "..", "migrations"))
	require.NoError(t, err)
	require.NotEmpty(t, migrations)
	require.Contains(t, migrations[0].SQL, "google_auth")
}

func TestWithSSLDisabled(t *testing.T) {
	require.Equal(t, "postgres://h/db?sslmode=disable", withSSLDisabled("postgres://h/db"))
	require.Equal(t, "postgres://h/db?x=1&sslmode=disable", withSSLDisabled("postgres://h/db?x=1"))
}

func TestNewRequiresConnectionString(t *testing.T) {
	_, err := New("")
	require.Error(t, err)
}
