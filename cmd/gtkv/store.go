package main

import (
	"github.com/gtkv/gtkv/kv/config"
	"github.com/gtkv/gtkv/kv/storage"
	"github.com/gtkv/gtkv/kv/storage/badger_storage"
	"github.com/gtkv/gtkv/kv/storage/leveldb_storage"
	"github.com/gtkv/gtkv/kv/studyconfig"
	"github.com/gtkv/gtkv/kv/util"
	"github.com/ngaut/log"
	"github.com/pingcap/errors"
)

func openStore(conf *config.Config) (storage.Store, error) {
	store, err := openEngine(conf)
	if err != nil {
		return nil, err
	}
	return storage.WithMetrics(store), nil
}

func openEngine(conf *config.Config) (storage.Store, error) {
	if conf.Engine.Name != config.EngineMem && !util.DirExists(conf.Engine.DBPath) {
		log.Infof("creating a new %s database at %s", conf.Engine.Name, conf.Engine.DBPath)
	}
	switch conf.Engine.Name {
	case config.EngineMem:
		return storage.NewMemStorage(conf.Table), nil
	case config.EngineBadger:
		return badger_storage.NewBadgerStorage(conf)
	case config.EngineLevelDB:
		return leveldb_storage.NewLeveldbStorage(conf)
	}
	return nil, errors.Errorf("unknown engine %q", conf.Engine.Name)
}

// withStore opens the configured store for the duration of fn.
func (a *app) withStore(fn func(store storage.Store, mgr *studyconfig.Manager) error) error {
	store, err := openStore(a.conf)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Errorf("close store: %v", err)
		}
	}()
	return fn(store, studyconfig.NewManager(store, a.conf, nil))
}
