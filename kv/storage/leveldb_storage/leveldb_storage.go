package leveldb_storage

import (
	"sync"

	"github.com/gtkv/gtkv/kv/config"
	"github.com/gtkv/gtkv/kv/storage"
	"github.com/gtkv/gtkv/kv/util/codec"
	"github.com/gtkv/gtkv/kv/util/engine_util"
	"github.com/ngaut/log"
	"github.com/pingcap/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// LeveldbStorage is a storage.Store for one table kept in a local leveldb database. Keys use the same
// `<table>_<cell key>` layout as the badger engine.
type LeveldbStorage struct {
	db     *leveldb.DB
	table  string
	wo     *opt.WriteOptions
	oracle *storage.TsOracle

	writeMu sync.Mutex
}

func NewLeveldbStorage(conf *config.Config) (*LeveldbStorage, error) {
	db, err := leveldb.OpenFile(conf.Engine.DBPath, &opt.Options{
		BlockCacheCapacity: int(conf.Engine.BlockCacheCapacity),
		NoSync:             !conf.Engine.SyncWrite,
	})
	if err != nil {
		return nil, storage.Unavailable("open", errors.Annotatef(err, "open leveldb at %s", conf.Engine.DBPath))
	}
	log.Infof("opened leveldb engine at %s", conf.Engine.DBPath)
	return &LeveldbStorage{
		db:     db,
		table:  conf.Table,
		wo:     &opt.WriteOptions{Sync: conf.Engine.SyncWrite},
		oracle: storage.NewTsOracle(),
	}, nil
}

func (s *LeveldbStorage) exists(r leveldb.Reader) (bool, error) {
	_, err := r.Get(engine_util.TableMarkerKey(s.table), nil)
	if err == leveldb.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *LeveldbStorage) checkTable(r leveldb.Reader) error {
	ok, err := s.exists(r)
	if err != nil {
		return err
	}
	if !ok {
		return &storage.ErrTableNotFound{Table: s.table}
	}
	return nil
}

func (s *LeveldbStorage) TableExists() (bool, error) {
	ok, err := s.exists(s.db)
	return ok, storage.Unavailable("table exists", err)
}

func (s *LeveldbStorage) CreateTable() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return storage.Unavailable("create table", s.db.Put(engine_util.TableMarkerKey(s.table), []byte{1}, s.wo))
}

func (s *LeveldbStorage) tableRange(prefix []byte) *util.Range {
	return util.BytesPrefix(engine_util.KeyWithTable(s.table, prefix))
}

func (s *LeveldbStorage) stripTable(key []byte) []byte {
	return key[len(s.table)+1:]
}

func (s *LeveldbStorage) Get(rowKey []byte, filter storage.ColumnFilter, tr *storage.TimeRange) ([]storage.Cell, error) {
	snap, err := s.db.GetSnapshot()
	if err != nil {
		return nil, storage.Unavailable("get", err)
	}
	defer snap.Release()
	if err = s.checkTable(snap); err != nil {
		return nil, storage.Unavailable("get", err)
	}
	collector := storage.NewRowCollector(filter, tr)
	iter := snap.NewIterator(s.tableRange(codec.EncodeBytes(rowKey)), nil)
	if err = s.collect(iter, collector, nil); err != nil {
		return nil, storage.Unavailable("get", err)
	}
	_, cells := collector.Flush()
	return cells, nil
}

// collect feeds every entry of iter to collector, handing finished rows to fn while it returns true.
func (s *LeveldbStorage) collect(iter iterator.Iterator, collector *storage.RowCollector, fn func([]byte, []storage.Cell) bool) error {
	defer iter.Release()
	for iter.Next() {
		row, cells, finished, err := collector.Add(s.stripTable(iter.Key()), iter.Value())
		if err != nil {
			return err
		}
		if fn != nil && finished && len(cells) > 0 && !fn(row, cells) {
			return nil
		}
	}
	if fn != nil {
		if row, cells := collector.Flush(); len(cells) > 0 {
			fn(row, cells)
		}
	}
	return iter.Error()
}

func (s *LeveldbStorage) Put(rowKey, column, value []byte, ts uint64) error {
	return s.Write([]storage.Modify{{Data: storage.Put{Row: rowKey, Column: column, Value: value, Ts: ts}}})
}

func (s *LeveldbStorage) Write(batch []storage.Modify) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.checkTable(s.db); err != nil {
		return storage.Unavailable("write", err)
	}
	wb := new(leveldb.Batch)
	for _, m := range batch {
		switch data := m.Data.(type) {
		case storage.Put:
			ts := data.Ts
			if ts == 0 {
				ts = s.oracle.Next()
			} else {
				s.oracle.Observe(ts)
			}
			wb.Put(engine_util.KeyWithTable(s.table, codec.EncodeCellKey(data.Row, data.Column, ts)), data.Value)
		case storage.Delete:
			if err := s.deleteVersions(wb, data.Row, data.Column); err != nil {
				return storage.Unavailable("write", err)
			}
		}
	}
	return storage.Unavailable("write", s.db.Write(wb, s.wo))
}

func (s *LeveldbStorage) deleteVersions(wb *leveldb.Batch, row, column []byte) error {
	iter := s.db.NewIterator(s.tableRange(codec.EncodeColumnPrefix(row, column)), nil)
	defer iter.Release()
	for iter.Next() {
		wb.Delete(append([]byte(nil), iter.Key()...))
	}
	return iter.Error()
}

func (s *LeveldbStorage) CompareAndPut(rowKey, column, expected, value []byte) (bool, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.checkTable(s.db); err != nil {
		return false, storage.Unavailable("compare and put", err)
	}
	var current []byte
	iter := s.db.NewIterator(s.tableRange(codec.EncodeColumnPrefix(rowKey, column)), nil)
	if iter.First() {
		current = append([]byte{}, iter.Value()...)
	}
	err := iter.Error()
	iter.Release()
	if err != nil {
		return false, storage.Unavailable("compare and put", err)
	}
	if !storage.CasMatches(current, expected) {
		return false, nil
	}
	wb := new(leveldb.Batch)
	if value == nil {
		if err = s.deleteVersions(wb, rowKey, column); err != nil {
			return false, storage.Unavailable("compare and put", err)
		}
	} else {
		wb.Put(engine_util.KeyWithTable(s.table, codec.EncodeCellKey(rowKey, column, s.oracle.Next())), value)
	}
	if err = s.db.Write(wb, s.wo); err != nil {
		return false, storage.Unavailable("compare and put", err)
	}
	return true, nil
}

func (s *LeveldbStorage) Scan(startKey, endKey []byte, fn func(rowKey []byte, cells []storage.Cell) bool) error {
	snap, err := s.db.GetSnapshot()
	if err != nil {
		return storage.Unavailable("scan", err)
	}
	defer snap.Release()
	if err = s.checkTable(snap); err != nil {
		return storage.Unavailable("scan", err)
	}
	rng := &util.Range{
		Start: engine_util.KeyWithTable(s.table, codec.EncodeBytes(startKey)),
		Limit: util.BytesPrefix(engine_util.KeyWithTable(s.table, nil)).Limit,
	}
	if len(endKey) > 0 {
		rng.Limit = engine_util.KeyWithTable(s.table, codec.EncodeBytes(endKey))
	}
	return storage.Unavailable("scan", s.collect(snap.NewIterator(rng, nil), storage.NewRowCollector(nil, nil), fn))
}

func (s *LeveldbStorage) Close() error {
	return storage.Unavailable("close", s.db.Close())
}
