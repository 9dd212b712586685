package badger_storage

import (
	"io/ioutil"
	"os"
	"testing"

	"github.com/gtkv/gtkv/kv/config"
	"github.com/gtkv/gtkv/kv/storage"
	"github.com/gtkv/gtkv/kv/storage/storagetest"
	"github.com/stretchr/testify/require"
)

func TestBadgerStorage(t *testing.T) {
	storagetest.RunStoreTests(t, func(t *testing.T) storage.Store {
		dir, err := ioutil.TempDir("", "badger_storage")
		require.Nil(t, err)
		conf := config.NewTestConfig()
		conf.Engine.Name = config.EngineBadger
		conf.Engine.DBPath = dir
		s, err := NewBadgerStorage(conf)
		require.Nil(t, err)
		return &cleanupStore{BadgerStorage: s, dir: dir}
	})
}

type cleanupStore struct {
	*BadgerStorage
	dir string
}

func (s *cleanupStore) Close() error {
	err := s.BadgerStorage.Close()
	os.RemoveAll(s.dir)
	return err
}
