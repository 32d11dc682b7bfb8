package repository

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/storynest/storynest/internal/db"
)

// newTestStore opens a migrated on-disk database under t.TempDir.
func newTestStore(t *testing.T) *db.Store {
	t.Helper()
	database, err := db.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	m := db.NewMigrator(database.DB)
	require.NoError(t, m.Initialize())
	require.NoError(t, m.Up())
	return db.NewStore(database.DB)
}

// countingSink records pending-count updates pushed by repositories.
type countingSink struct {
	mu   sync.Mutex
	last int
}

func (c *countingSink) UpdatePendingCount(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last = n
}

func (c *countingSink) Last() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}
