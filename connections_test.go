package diol

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterConnection(t *testing.T) {
	db, _ := newMock(t)
	Register("registered", db)
	t.Cleanup(func() {
		connections.Lock()
		delete(connections.dbs, "registered")
		connections.Unlock()
	})

	found, err := Connection("registered")
	require.NoError(t, err)
	assert.Same(t, db, found)
}

func TestConnectionCreatedOnce(t *testing.T) {
	t.Setenv("DATABASE_CONCURRENT_URL", "user:secret@tcp(localhost:3306)/app")
	t.Cleanup(func() { CloseAll() })

	var wg sync.WaitGroup
	found := make([]*DB, 10)
	errs := make([]error, 10)
	for i := range found {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			found[i], errs[i] = Connection("concurrent")
		}(i)
	}
	wg.Wait()

	for i := range found {
		require.NoError(t, errs[i])
		assert.Same(t, found[0], found[i])
	}
	assert.Equal(t, "mysql", found[0].DriverName())
	assert.Equal(t, "mysql", found[0].Dialect.Name())
}

func TestConnectionMissingConfiguration(t *testing.T) {
	_, err := Connection("unconfigured")
	assert.Error(t, err)

	connections.Lock()
	_, ok := connections.dbs["unconfigured"]
	connections.Unlock()
	assert.False(t, ok)
}

func TestCloseAll(t *testing.T) {
	t.Setenv("DATABASE_CLOSING_URL", "user:secret@tcp(localhost:3306)/app")

	_, err := Connection("closing")
	require.NoError(t, err)

	assert.NoError(t, CloseAll())

	connections.Lock()
	assert.Empty(t, connections.dbs)
	connections.Unlock()
}
