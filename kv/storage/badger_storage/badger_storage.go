package badger_storage

import (
	"sync"

	"github.com/coocood/badger"
	"github.com/gtkv/gtkv/kv/config"
	"github.com/gtkv/gtkv/kv/storage"
	"github.com/gtkv/gtkv/kv/util/codec"
	"github.com/gtkv/gtkv/kv/util/engine_util"
)

// BadgerStorage is a storage.Store for one table kept in a local badger database. Badger holds a directory lock, so a
// single process owns the data and compare-and-put is made atomic by serializing mutations inside that process.
type BadgerStorage struct {
	db     *badger.DB
	table  string
	oracle *storage.TsOracle

	// writeMu serializes every mutation so the read half of a compare-and-put cannot be overtaken.
	writeMu sync.Mutex
}

func NewBadgerStorage(conf *config.Config) (*BadgerStorage, error) {
	db, err := engine_util.CreateDB(&conf.Engine)
	if err != nil {
		return nil, storage.Unavailable("open", err)
	}
	return NewBadgerStorageFromDB(db, conf.Table), nil
}

// NewBadgerStorageFromDB wraps an already opened database. Closing the storage closes db.
func NewBadgerStorageFromDB(db *badger.DB, table string) *BadgerStorage {
	return &BadgerStorage{
		db:     db,
		table:  table,
		oracle: storage.NewTsOracle(),
	}
}

func (s *BadgerStorage) checkTable(txn *badger.Txn) error {
	ok, err := engine_util.Exists(txn, engine_util.TableMarkerKey(s.table))
	if err != nil {
		return err
	}
	if !ok {
		return &storage.ErrTableNotFound{Table: s.table}
	}
	return nil
}

func (s *BadgerStorage) TableExists() (bool, error) {
	var ok bool
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		ok, err = engine_util.Exists(txn, engine_util.TableMarkerKey(s.table))
		return err
	})
	return ok, storage.Unavailable("table exists", err)
}

func (s *BadgerStorage) CreateTable() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	wb := new(engine_util.WriteBatch)
	wb.SetRaw(engine_util.TableMarkerKey(s.table), []byte{1})
	return storage.Unavailable("create table", wb.WriteToDB(s.db))
}

func (s *BadgerStorage) Get(rowKey []byte, filter storage.ColumnFilter, tr *storage.TimeRange) ([]storage.Cell, error) {
	var cells []storage.Cell
	err := s.db.View(func(txn *badger.Txn) error {
		if err := s.checkTable(txn); err != nil {
			return err
		}
		prefix := codec.EncodeBytes(rowKey)
		collector := storage.NewRowCollector(filter, tr)
		it := engine_util.NewTableIterator(s.table, txn)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			val, err := item.Value()
			if err != nil {
				return err
			}
			if _, _, _, err = collector.Add(item.Key(), val); err != nil {
				return err
			}
		}
		_, cells = collector.Flush()
		return nil
	})
	if err != nil {
		return nil, storage.Unavailable("get", err)
	}
	return cells, nil
}

func (s *BadgerStorage) Put(rowKey, column, value []byte, ts uint64) error {
	return s.Write([]storage.Modify{{Data: storage.Put{Row: rowKey, Column: column, Value: value, Ts: ts}}})
}

func (s *BadgerStorage) Write(batch []storage.Modify) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	err := s.db.Update(func(txn *badger.Txn) error {
		if err := s.checkTable(txn); err != nil {
			return err
		}
		wb := new(engine_util.WriteBatch)
		for _, m := range batch {
			if err := s.stage(txn, wb, m); err != nil {
				return err
			}
		}
		return wb.WriteToTxn(txn)
	})
	return storage.Unavailable("write", err)
}

func (s *BadgerStorage) stage(txn *badger.Txn, wb *engine_util.WriteBatch, m storage.Modify) error {
	switch data := m.Data.(type) {
	case storage.Put:
		ts := data.Ts
		if ts == 0 {
			ts = s.oracle.Next()
		} else {
			s.oracle.Observe(ts)
		}
		wb.SetTable(s.table, codec.EncodeCellKey(data.Row, data.Column, ts), data.Value)
	case storage.Delete:
		keys, err := s.versions(txn, data.Row, data.Column)
		if err != nil {
			return err
		}
		for _, key := range keys {
			wb.DeleteTable(s.table, key)
		}
	}
	return nil
}

// versions lists the physical keys of every version of a cell, newest first.
func (s *BadgerStorage) versions(txn *badger.Txn, row, column []byte) ([][]byte, error) {
	prefix := codec.EncodeColumnPrefix(row, column)
	it := engine_util.NewTableIterator(s.table, txn)
	defer it.Close()
	var keys [][]byte
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	return keys, nil
}

func (s *BadgerStorage) CompareAndPut(rowKey, column, expected, value []byte) (bool, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	applied := false
	err := s.db.Update(func(txn *badger.Txn) error {
		if err := s.checkTable(txn); err != nil {
			return err
		}
		keys, err := s.versions(txn, rowKey, column)
		if err != nil {
			return err
		}
		var current []byte
		if len(keys) > 0 {
			if current, err = engine_util.GetTableFromTxn(txn, s.table, keys[0]); err != nil {
				return err
			}
			if current == nil {
				current = []byte{}
			}
		}
		if !storage.CasMatches(current, expected) {
			return nil
		}
		wb := new(engine_util.WriteBatch)
		if value == nil {
			for _, key := range keys {
				wb.DeleteTable(s.table, key)
			}
		} else {
			wb.SetTable(s.table, codec.EncodeCellKey(rowKey, column, s.oracle.Next()), value)
		}
		applied = true
		return wb.WriteToTxn(txn)
	})
	if err != nil {
		return false, storage.Unavailable("compare and put", err)
	}
	return applied, nil
}

func (s *BadgerStorage) Scan(startKey, endKey []byte, fn func(rowKey []byte, cells []storage.Cell) bool) error {
	err := s.db.View(func(txn *badger.Txn) error {
		if err := s.checkTable(txn); err != nil {
			return err
		}
		var end []byte
		if len(endKey) > 0 {
			end = codec.EncodeBytes(endKey)
		}
		collector := storage.NewRowCollector(nil, nil)
		it := engine_util.NewTableIterator(s.table, txn)
		defer it.Close()
		for it.Seek(codec.EncodeBytes(startKey)); it.Valid(); it.Next() {
			item := it.Item()
			if engine_util.ExceedEndKey(item.Key(), end) {
				break
			}
			val, err := item.Value()
			if err != nil {
				return err
			}
			row, cells, finished, err := collector.Add(item.KeyCopy(nil), val)
			if err != nil {
				return err
			}
			if finished && len(cells) > 0 && !fn(row, cells) {
				return nil
			}
		}
		if row, cells := collector.Flush(); len(cells) > 0 {
			fn(row, cells)
		}
		return nil
	})
	return storage.Unavailable("scan", err)
}

func (s *BadgerStorage) Close() error {
	return storage.Unavailable("close", s.db.Close())
}
