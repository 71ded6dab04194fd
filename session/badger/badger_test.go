package badger

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/hupe1980/sessionmesh/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Config{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_ReadWriteDelete(t *testing.T) {
	s := openTestStore(t)

	assert.True(t, s.Create("", "app", core.CreateNext{}))
	assert.Equal(t, "", s.Read("s1", core.ReadNext{}))

	require.True(t, s.Write("s1", "payload", core.WriteNext{}))
	assert.Equal(t, "payload", s.Read("s1", core.ReadNext{}))

	assert.True(t, s.Delete("s1", core.DeleteNext{}))
	assert.Equal(t, "", s.Read("s1", core.ReadNext{}))
}

func TestStore_NamespacesAreIsolated(t *testing.T) {
	s := openTestStore(t)

	s.Create("", "a", core.CreateNext{})
	require.True(t, s.Write("s1", "from-a", core.WriteNext{}))

	s.Create("", "b", core.CreateNext{})
	assert.Equal(t, "", s.Read("s1", core.ReadNext{}))

	s.Create("", "a", core.CreateNext{})
	assert.Equal(t, "from-a", s.Read("s1", core.ReadNext{}))
}

func TestStore_CleanByAge(t *testing.T) {
	s := openTestStore(t)
	now := time.Now()
	s.now = func() time.Time { return now }

	require.True(t, s.Write("old", "1", core.WriteNext{}))
	now = now.Add(2 * time.Hour)
	require.True(t, s.Write("new", "2", core.WriteNext{}))

	assert.True(t, s.Clean(3600, core.CleanNext{}))
	assert.Equal(t, "", s.Read("old", core.ReadNext{}))
	assert.Equal(t, "2", s.Read("new", core.ReadNext{}))
}

func TestOpen_RequiresDir(t *testing.T) {
	_, err := Open(Config{})
	assert.Error(t, err)
}

func TestDecodeValue_Corrupt(t *testing.T) {
	_, _, err := decodeValue([]byte{1, 2})
	assert.Error(t, err)

	ts := time.Unix(0, 1700000000000000000)
	got, data, err := decodeValue(encodeValue(ts, "x"))
	require.NoError(t, err)
	assert.True(t, ts.Equal(got))
	assert.Equal(t, "x", data)
}

func TestStore_CreateConcurrentWithRequests(t *testing.T) {
	s := openTestStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			s.Create("", fmt.Sprintf("app%d", i%2), core.CreateNext{})
		}(i)
		go func() {
			defer wg.Done()
			s.Write("s1", "x", core.WriteNext{})
			s.Read("s1", core.ReadNext{})
		}()
	}
	wg.Wait()

	s.Create("", "final", core.CreateNext{})
	require.True(t, s.Write("s1", "y", core.WriteNext{}))
	assert.Equal(t, "y", s.Read("s1", core.ReadNext{}))
}
