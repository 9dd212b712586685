// Package storagetest holds the behaviour every storage.Store adapter must show. Adapter packages run it from their
// own tests.
package storagetest

import (
	"sync"
	"testing"

	"github.com/gtkv/gtkv/kv/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunStoreTests runs the whole contract. newStore must return an empty store whose table has not been created.
func RunStoreTests(t *testing.T, newStore func(t *testing.T) storage.Store) {
	cases := []struct {
		name string
		fn   func(t *testing.T, s storage.Store)
	}{
		{"TableNotFound", testTableNotFound},
		{"GetNewestVersion", testGetNewestVersion},
		{"TimeRange", testTimeRange},
		{"ColumnFilter", testColumnFilter},
		{"BatchDelete", testBatchDelete},
		{"CompareAndPut", testCompareAndPut},
		{"CompareAndPutRace", testCompareAndPutRace},
		{"Scan", testScan},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			s := newStore(t)
			defer s.Close()
			c.fn(t, s)
		})
	}
}

func testTableNotFound(t *testing.T, s storage.Store) {
	ok, err := s.TableExists()
	require.Nil(t, err)
	require.False(t, ok)

	_, err = s.Get([]byte("r"), nil, nil)
	_, isNotFound := err.(*storage.ErrTableNotFound)
	require.True(t, isNotFound, "got %v", err)

	err = s.Put([]byte("r"), []byte("c"), []byte("v"), 0)
	_, isNotFound = err.(*storage.ErrTableNotFound)
	require.True(t, isNotFound, "got %v", err)

	require.Nil(t, s.CreateTable())
	ok, err = s.TableExists()
	require.Nil(t, err)
	require.True(t, ok)
}

func testGetNewestVersion(t *testing.T, s storage.Store) {
	require.Nil(t, s.CreateTable())
	row := []byte("row1")
	require.Nil(t, s.Put(row, []byte("a"), []byte("a1"), 10))
	require.Nil(t, s.Put(row, []byte("a"), []byte("a2"), 20))
	require.Nil(t, s.Put(row, []byte("b"), []byte{}, 15))
	// A row sharing a prefix must not leak into row1.
	require.Nil(t, s.Put([]byte("row10"), []byte("a"), []byte("x"), 30))

	cells, err := s.Get(row, nil, nil)
	require.Nil(t, err)
	require.Len(t, cells, 2)
	require.Equal(t, []byte("a"), cells[0].Column)
	require.Equal(t, []byte("a2"), cells[0].Value)
	require.Equal(t, uint64(20), cells[0].Timestamp)
	require.Equal(t, []byte("b"), cells[1].Column)
	require.Len(t, cells[1].Value, 0)

	cells, err = s.Get([]byte("missing"), nil, nil)
	require.Nil(t, err)
	require.Len(t, cells, 0)

	// Timestamps handed out by the store are newer than explicit ones seen before.
	require.Nil(t, s.Put(row, []byte("a"), []byte("a3"), 0))
	cells, err = s.Get(row, storage.Columns([]byte("a")), nil)
	require.Nil(t, err)
	require.Len(t, cells, 1)
	require.Equal(t, []byte("a3"), cells[0].Value)
	require.True(t, cells[0].Timestamp > 30)
}

func testTimeRange(t *testing.T, s storage.Store) {
	require.Nil(t, s.CreateTable())
	row := []byte("r")
	for _, ts := range []uint64{5, 10, 15} {
		require.Nil(t, s.Put(row, []byte("c"), []byte{byte(ts)}, ts))
	}
	cells, err := s.Get(row, nil, &storage.TimeRange{Min: 6, Max: 15})
	require.Nil(t, err)
	require.Len(t, cells, 1)
	require.Equal(t, uint64(10), cells[0].Timestamp)

	cells, err = s.Get(row, nil, &storage.TimeRange{Min: 11})
	require.Nil(t, err)
	require.Len(t, cells, 1)
	require.Equal(t, uint64(15), cells[0].Timestamp)

	cells, err = s.Get(row, nil, &storage.TimeRange{Min: 16})
	require.Nil(t, err)
	require.Len(t, cells, 0)
}

func testColumnFilter(t *testing.T, s storage.Store) {
	require.Nil(t, s.CreateTable())
	row := []byte("r")
	for _, col := range []string{"1_C", "1_P", "2_C", "20_C"} {
		require.Nil(t, s.Put(row, []byte(col), []byte(col), 0))
	}
	cells, err := s.Get(row, storage.ColumnPrefix([]byte("2_")), nil)
	require.Nil(t, err)
	require.Len(t, cells, 1)
	require.Equal(t, []byte("2_C"), cells[0].Column)

	cells, err = s.Get(row, storage.Columns([]byte("1_P"), []byte("20_C")), nil)
	require.Nil(t, err)
	require.Len(t, cells, 2)
}

func testBatchDelete(t *testing.T, s storage.Store) {
	require.Nil(t, s.CreateTable())
	row := []byte("r")
	require.Nil(t, s.Put(row, []byte("a"), []byte("1"), 1))
	require.Nil(t, s.Put(row, []byte("a"), []byte("2"), 2))
	require.Nil(t, s.Write([]storage.Modify{
		{Data: storage.Delete{Row: row, Column: []byte("a")}},
		{Data: storage.Put{Row: row, Column: []byte("b"), Value: []byte("3")}},
	}))
	cells, err := s.Get(row, nil, nil)
	require.Nil(t, err)
	require.Len(t, cells, 1)
	require.Equal(t, []byte("b"), cells[0].Column)
}

func testCompareAndPut(t *testing.T, s storage.Store) {
	require.Nil(t, s.CreateTable())
	row, col := []byte("r"), []byte("lock")

	ok, err := s.CompareAndPut(row, col, []byte("x"), []byte("v1"))
	require.Nil(t, err)
	require.False(t, ok, "absent column must not match a value")

	ok, err = s.CompareAndPut(row, col, nil, []byte("v1"))
	require.Nil(t, err)
	require.True(t, ok)

	ok, err = s.CompareAndPut(row, col, nil, []byte("v2"))
	require.Nil(t, err)
	require.False(t, ok, "present column must not match absent")

	ok, err = s.CompareAndPut(row, col, []byte("v1"), []byte("v2"))
	require.Nil(t, err)
	require.True(t, ok)

	cells, err := s.Get(row, nil, nil)
	require.Nil(t, err)
	require.Equal(t, []byte("v2"), cells[0].Value)

	ok, err = s.CompareAndPut(row, col, []byte("v2"), nil)
	require.Nil(t, err)
	require.True(t, ok)
	cells, err = s.Get(row, nil, nil)
	require.Nil(t, err)
	require.Len(t, cells, 0)

	ok, err = s.CompareAndPut(row, col, nil, []byte("v3"))
	require.Nil(t, err)
	require.True(t, ok)
}

func testCompareAndPutRace(t *testing.T, s storage.Store) {
	require.Nil(t, s.CreateTable())
	const n = 16
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ok, err := s.CompareAndPut([]byte("r"), []byte("c"), nil, []byte{byte(i)})
			assert.Nil(t, err)
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	require.Equal(t, 1, wins)
}

func testScan(t *testing.T, s storage.Store) {
	require.Nil(t, s.CreateTable())
	for _, row := range []string{"a", "b", "c", "d"} {
		require.Nil(t, s.Put([]byte(row), []byte("x"), []byte(row+"1"), 0))
		require.Nil(t, s.Put([]byte(row), []byte("y"), []byte(row+"2"), 0))
	}
	var rows []string
	err := s.Scan([]byte("b"), []byte("d"), func(rowKey []byte, cells []storage.Cell) bool {
		require.Len(t, cells, 2)
		rows = append(rows, string(rowKey))
		return true
	})
	require.Nil(t, err)
	require.Equal(t, []string{"b", "c"}, rows)

	rows = rows[:0]
	err = s.Scan(nil, nil, func(rowKey []byte, cells []storage.Cell) bool {
		rows = append(rows, string(rowKey))
		return len(rows) < 3
	})
	require.Nil(t, err)
	require.Equal(t, []string{"a", "b", "c"}, rows)
}
