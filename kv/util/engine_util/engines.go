package engine_util

import (
	"os"

	"github.com/coocood/badger"
	"github.com/gtkv/gtkv/kv/config"
	"github.com/ngaut/log"
	"github.com/pingcap/errors"
)

// CreateDB opens (creating it if needed) the badger database at conf.DBPath.
func CreateDB(conf *config.Engine) (*badger.DB, error) {
	opts := badger.DefaultOptions
	opts.NumCompactors = conf.NumCompactors
	opts.ValueThreshold = conf.ValueThreshold
	opts.Dir = conf.DBPath
	opts.ValueDir = opts.Dir
	opts.ValueLogFileSize = conf.VlogFileSize
	opts.MaxTableSize = conf.MaxTableSize
	opts.NumMemtables = conf.NumMemTables
	opts.NumLevelZeroTables = conf.NumL0Tables
	opts.NumLevelZeroTablesStall = conf.NumL0TablesStall
	opts.SyncWrites = conf.SyncWrite
	if err := os.MkdirAll(opts.Dir, os.ModePerm); err != nil {
		return nil, errors.WithStack(err)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Annotatef(err, "open badger at %s", opts.Dir)
	}
	log.Infof("opened badger engine at %s", opts.Dir)
	return db, nil
}
