package factory

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/camvault/internal/store"
	pg "github.com/loykin/camvault/internal/store/postgres"
	sq "github.com/loykin/camvault/internal/store/sqlite"
)

func TestNewFromDSN(t *testing.T) {
	dir := t.TempDir()

	s, err := NewFromDSN("sqlite://" + filepath.Join(dir, "a.db"))
	require.NoError(t, err)
	assert.IsType(t, &sq.DB{}, s)
	_ = s.Close()

	s, err = NewFromDSN(filepath.Join(dir, "b.db"))
	require.NoError(t, err)
	assert.IsType(t, &sq.DB{}, s)
	_ = s.Close()

	// sql.Open does not dial, so this succeeds without a server
	s, err = NewFromDSN("postgres://u:p@localhost:5432/db?sslmode=disable")
	require.NoError(t, err)
	assert.IsType(t, &pg.DB{}, s)
	_ = s.Close()

	s, err = NewFromDSN("memory://")
	require.NoError(t, err)
	assert.IsType(t, &store.Memory{}, s)

	_, err = NewFromDSN("  ")
	assert.Error(t, err)
	_, err = NewFromDSN("mysql://x")
	assert.Error(t, err)
}
