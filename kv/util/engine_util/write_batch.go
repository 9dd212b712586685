package engine_util

import (
	"github.com/coocood/badger"
	"github.com/pingcap/errors"
)

type batchEntry struct {
	key    []byte
	value  []byte
	delete bool
}

// WriteBatch buffers sets and deletes for one badger transaction.
type WriteBatch struct {
	entries []batchEntry
	size    int
}

func (wb *WriteBatch) Len() int {
	return len(wb.entries)
}

// Size is the number of key and value bytes buffered so far.
func (wb *WriteBatch) Size() int {
	return wb.size
}

func (wb *WriteBatch) SetTable(table string, key, val []byte) {
	wb.SetRaw(KeyWithTable(table, key), val)
}

func (wb *WriteBatch) DeleteTable(table string, key []byte) {
	wb.entries = append(wb.entries, batchEntry{key: KeyWithTable(table, key), delete: true})
	wb.size += len(key)
}

// SetRaw sets a key outside of any table, such as a table marker.
func (wb *WriteBatch) SetRaw(key, val []byte) {
	wb.entries = append(wb.entries, batchEntry{key: key, value: val})
	wb.size += len(key) + len(val)
}

func (wb *WriteBatch) WriteToDB(db *badger.DB) error {
	if len(wb.entries) == 0 {
		return nil
	}
	err := db.Update(func(txn *badger.Txn) error {
		return wb.WriteToTxn(txn)
	})
	return errors.WithStack(err)
}

// WriteToTxn stages the batch into an open update transaction.
func (wb *WriteBatch) WriteToTxn(txn *badger.Txn) error {
	for _, entry := range wb.entries {
		var err1 error
		if entry.delete {
			err1 = txn.Delete(entry.key)
		} else {
			err1 = txn.Set(entry.key, entry.value)
		}
		if err1 != nil {
			return err1
		}
	}
	return nil
}

func (wb *WriteBatch) Reset() {
	wb.entries = wb.entries[:0]
	wb.size = 0
}
