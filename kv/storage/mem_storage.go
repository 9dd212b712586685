package storage

import (
	"bytes"
	"sync"

	"github.com/google/btree"
	"github.com/gtkv/gtkv/kv/util/codec"
)

// MemStorage is a Store backed by an in-memory btree. Data is not written to disk. It is intended for testing and for
// short lived tools.
type MemStorage struct {
	mu     sync.RWMutex
	table  string
	exists bool
	data   *btree.BTree
	oracle *TsOracle

	// writes counts applied cell modifications, tests use it to observe write amplification.
	writes int
	// Unavailable, when set, makes every operation fail with it wrapped as *ErrStoreUnavailable.
	Unavailable error
}

const memDegree = 32

func NewMemStorage(table string) *MemStorage {
	return &MemStorage{
		table:  table,
		data:   btree.New(memDegree),
		oracle: NewTsOracle(),
	}
}

type memItem struct {
	key   []byte
	value []byte
}

func (it memItem) Less(than btree.Item) bool {
	return bytes.Compare(it.key, than.(memItem).key) < 0
}

func (s *MemStorage) check(op string) error {
	if s.Unavailable != nil {
		return &ErrStoreUnavailable{Op: op, Err: s.Unavailable}
	}
	if !s.exists {
		return &ErrTableNotFound{Table: s.table}
	}
	return nil
}

func (s *MemStorage) TableExists() (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.Unavailable != nil {
		return false, &ErrStoreUnavailable{Op: "table exists", Err: s.Unavailable}
	}
	return s.exists, nil
}

func (s *MemStorage) CreateTable() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Unavailable != nil {
		return &ErrStoreUnavailable{Op: "create table", Err: s.Unavailable}
	}
	s.exists = true
	return nil
}

func (s *MemStorage) Get(rowKey []byte, filter ColumnFilter, tr *TimeRange) ([]Cell, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check("get"); err != nil {
		return nil, err
	}
	prefix := codec.EncodeBytes(rowKey)
	collector := NewRowCollector(filter, tr)
	var err error
	s.data.AscendGreaterOrEqual(memItem{key: prefix}, func(i btree.Item) bool {
		item := i.(memItem)
		if !bytes.HasPrefix(item.key, prefix) {
			return false
		}
		_, _, _, err = collector.Add(item.key, item.value)
		return err == nil
	})
	if err != nil {
		return nil, err
	}
	_, cells := collector.Flush()
	return cells, nil
}

func (s *MemStorage) Put(rowKey, column, value []byte, ts uint64) error {
	return s.Write([]Modify{{Data: Put{Row: rowKey, Column: column, Value: value, Ts: ts}}})
}

func (s *MemStorage) Write(batch []Modify) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("write"); err != nil {
		return err
	}
	for _, m := range batch {
		s.apply(m)
	}
	return nil
}

func (s *MemStorage) apply(m Modify) {
	switch data := m.Data.(type) {
	case Put:
		ts := data.Ts
		if ts == 0 {
			ts = s.oracle.Next()
		} else {
			s.oracle.Observe(ts)
		}
		s.data.ReplaceOrInsert(memItem{
			key:   codec.EncodeCellKey(data.Row, data.Column, ts),
			value: append([]byte{}, data.Value...),
		})
	case Delete:
		for _, key := range s.versions(data.Row, data.Column) {
			s.data.Delete(memItem{key: key})
		}
	}
	s.writes++
}

func (s *MemStorage) versions(row, column []byte) [][]byte {
	prefix := codec.EncodeColumnPrefix(row, column)
	var keys [][]byte
	s.data.AscendGreaterOrEqual(memItem{key: prefix}, func(i btree.Item) bool {
		item := i.(memItem)
		if !bytes.HasPrefix(item.key, prefix) {
			return false
		}
		keys = append(keys, item.key)
		return true
	})
	return keys
}

func (s *MemStorage) CompareAndPut(rowKey, column, expected, value []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("compare and put"); err != nil {
		return false, err
	}
	var current []byte
	if keys := s.versions(rowKey, column); len(keys) > 0 {
		current = s.data.Get(memItem{key: keys[0]}).(memItem).value
	}
	if !CasMatches(current, expected) {
		return false, nil
	}
	if value == nil {
		s.apply(Modify{Data: Delete{Row: rowKey, Column: column}})
	} else {
		s.apply(Modify{Data: Put{Row: rowKey, Column: column, Value: value}})
	}
	return true, nil
}

// CasMatches compares the newest stored value with the expectation of a CompareAndPut. A nil current means absent.
func CasMatches(current, expected []byte) bool {
	if expected == nil {
		return current == nil
	}
	return current != nil && bytes.Equal(current, expected)
}

func (s *MemStorage) Scan(startKey, endKey []byte, fn func(rowKey []byte, cells []Cell) bool) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check("scan"); err != nil {
		return err
	}
	var end []byte
	if len(endKey) > 0 {
		end = codec.EncodeBytes(endKey)
	}
	collector := NewRowCollector(nil, nil)
	var err error
	stopped := false
	s.data.AscendGreaterOrEqual(memItem{key: codec.EncodeBytes(startKey)}, func(i btree.Item) bool {
		item := i.(memItem)
		if end != nil && bytes.Compare(item.key, end) >= 0 {
			return false
		}
		var (
			row      []byte
			cells    []Cell
			finished bool
		)
		row, cells, finished, err = collector.Add(item.key, item.value)
		if err != nil {
			return false
		}
		if finished && len(cells) > 0 && !fn(row, cells) {
			stopped = true
			return false
		}
		return true
	})
	if err != nil {
		return err
	}
	if !stopped {
		if row, cells := collector.Flush(); len(cells) > 0 {
			fn(row, cells)
		}
	}
	return nil
}

func (s *MemStorage) Close() error {
	return nil
}

// Writes returns the number of cell modifications applied so far.
func (s *MemStorage) Writes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writes
}

// Len returns the number of stored cell versions.
func (s *MemStorage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.Len()
}
