package engine_util

import (
	"bytes"

	"github.com/coocood/badger"
)

// KeyWithTable prefixes key with its table name. Badger has no notion of tables, so every table lives in one key
// space as `<table>_<key>`.
func KeyWithTable(table string, key []byte) []byte {
	return append([]byte(table+"_"), key...)
}

// TableMarkerKey is the key recording that a table was created. It sorts before every data key.
func TableMarkerKey(table string) []byte {
	return append([]byte{0}, table...)
}

func GetTable(db *badger.DB, table string, key []byte) (val []byte, err error) {
	err = db.View(func(txn *badger.Txn) error {
		val, err = GetTableFromTxn(txn, table, key)
		return err
	})
	return
}

func GetTableFromTxn(txn *badger.Txn, table string, key []byte) (val []byte, err error) {
	item, err := txn.Get(KeyWithTable(table, key))
	if err != nil {
		return nil, err
	}
	val, err = item.ValueCopy(val)
	return
}

func PutTable(engine *badger.DB, table string, key []byte, val []byte) error {
	return engine.Update(func(txn *badger.Txn) error {
		return txn.Set(KeyWithTable(table, key), val)
	})
}

func DeleteTable(engine *badger.DB, table string, key []byte) error {
	return engine.Update(func(txn *badger.Txn) error {
		return txn.Delete(KeyWithTable(table, key))
	})
}

// Exists reports whether key is present, translating badger.ErrKeyNotFound.
func Exists(txn *badger.Txn, key []byte) (bool, error) {
	_, err := txn.Get(key)
	if err == badger.ErrKeyNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func ExceedEndKey(current, endKey []byte) bool {
	if len(endKey) == 0 {
		return false
	}
	return bytes.Compare(current, endKey) >= 0
}
