package studyconfig

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gtkv/gtkv/kv/config"
	"github.com/gtkv/gtkv/kv/lock"
	"github.com/gtkv/gtkv/kv/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newManager(t *testing.T, cacheSize int) (*Manager, *storage.MemStorage) {
	conf := config.NewTestConfig()
	conf.StudyCacheSize = cacheSize
	store := storage.NewMemStorage(conf.Table)
	return NewManager(store, conf, nil), store
}

func TestLazyTableCreation(t *testing.T) {
	m, store := newManager(t, 0)
	cfg, err := m.GetByName("study1", 0)
	require.Nil(t, err)
	require.Nil(t, cfg)
	cfg, err = m.GetByID(1, 0)
	require.Nil(t, err)
	require.Nil(t, cfg)
	names, err := m.ListNames()
	require.Nil(t, err)
	require.Len(t, names, 0)
	ok, _ := store.TableExists()
	require.False(t, ok, "reads must not create the table")

	require.Nil(t, m.Update(&StudyConfiguration{StudyID: 1, StudyName: "study1", Version: 10}))
	ok, _ = store.TableExists()
	require.True(t, ok)
}

func TestGetVersions(t *testing.T) {
	m, _ := newManager(t, 0)
	for _, v := range []int64{10, 20, 30} {
		require.Nil(t, m.Update(&StudyConfiguration{
			StudyID:    7,
			StudyName:  "s7",
			Version:    v,
			Attributes: map[string]interface{}{"v": float64(v)},
		}))
	}
	cfg, err := m.GetByName("s7", 0)
	require.Nil(t, err)
	assert.Equal(t, int64(30), cfg.Version)
	assert.Equal(t, float64(30), cfg.Attributes["v"])

	cfg, err = m.GetByID(7, 15)
	require.Nil(t, err)
	assert.Equal(t, int64(30), cfg.Version)

	cfg, err = m.GetByName("s7", 30)
	require.Nil(t, err)
	assert.Nil(t, cfg, "nothing newer than the latest version")

	_, err = m.GetByID(8, 0)
	require.Nil(t, err)
}

func TestSummaryUpdateIsIdempotent(t *testing.T) {
	m, store := newManager(t, 0)
	changed, err := m.UpdateSummary("s1", 1)
	require.Nil(t, err)
	require.True(t, changed)
	writes := store.Writes()

	changed, err = m.UpdateSummary("s1", 1)
	require.Nil(t, err)
	require.False(t, changed)
	require.Equal(t, writes, store.Writes())

	changed, err = m.UpdateSummary("s2", 2)
	require.Nil(t, err)
	require.True(t, changed)
	require.Equal(t, writes+1, store.Writes())

	names, err := m.ListNames()
	require.Nil(t, err)
	require.Equal(t, []string{"s1", "s2"}, names)
}

func TestSummaryRenameAndConflict(t *testing.T) {
	m, _ := newManager(t, 0)
	_, err := m.UpdateSummary("old", 1)
	require.Nil(t, err)
	_, err = m.UpdateSummary("new", 1)
	require.Nil(t, err)
	s, err := m.Summary()
	require.Nil(t, err)
	name, _ := s.Name(1)
	assert.Equal(t, "new", name)
	_, ok := s.ID("old")
	assert.False(t, ok)

	_, err = m.UpdateSummary("new", 2)
	_, ok = err.(*ErrConflictingStudy)
	assert.True(t, ok, "%v", err)
}

func TestRenameDropsFormerName(t *testing.T) {
	m, store := newManager(t, 4)
	require.Nil(t, m.Update(&StudyConfiguration{StudyID: 1, StudyName: "old", Version: 10}))
	cfg, err := m.GetByName("old", 5)
	require.Nil(t, err)
	require.NotNil(t, cfg)

	require.Nil(t, m.Update(&StudyConfiguration{StudyID: 1, StudyName: "new", Version: 20}))
	for _, minVersion := range []int64{0, 5} {
		cfg, err = m.GetByName("old", minVersion)
		require.Nil(t, err)
		assert.Nil(t, cfg, "min version %d", minVersion)
	}
	cells, err := store.Get(MetadataRowKey, storage.Columns([]byte("old")), nil)
	require.Nil(t, err)
	assert.Len(t, cells, 0)

	cfg, err = m.GetByID(1, 0)
	require.Nil(t, err)
	assert.Equal(t, "new", cfg.StudyName)
	names, err := m.ListNames()
	require.Nil(t, err)
	assert.Equal(t, []string{"new"}, names)

	// A name owned by another study is refused before anything is written.
	writes := store.Writes()
	err = m.Update(&StudyConfiguration{StudyID: 2, StudyName: "new", Version: 30})
	_, ok := err.(*ErrConflictingStudy)
	assert.True(t, ok, "%v", err)
	assert.Equal(t, writes, store.Writes())
	cfg, err = m.GetByName("new", 0)
	require.Nil(t, err)
	assert.Equal(t, uint32(1), cfg.StudyID)
}

func TestConcurrentRegistration(t *testing.T) {
	m, _ := newManager(t, 0)
	var wg sync.WaitGroup
	for i := 1; i <= 20; i++ {
		wg.Add(1)
		go func(id uint32) {
			defer wg.Done()
			_, err := m.UpdateSummary("s"+string(rune('a'+id)), id)
			assert.Nil(t, err)
		}(uint32(i))
	}
	wg.Wait()
	names, err := m.ListNames()
	require.Nil(t, err)
	assert.Len(t, names, 20)
}

func TestUpdateValidation(t *testing.T) {
	m, _ := newManager(t, 0)
	for _, cfg := range []*StudyConfiguration{
		{StudyID: 1, StudyName: "", Version: 1},
		{StudyID: 1, StudyName: "_SUMMARY", Version: 1},
		{StudyID: 1, StudyName: "3_LOCK", Version: 1},
		{StudyID: 1, StudyName: "ok", Version: 0},
	} {
		assert.NotNil(t, m.Update(cfg), "%s", cfg)
	}
}

func TestStoreUnavailable(t *testing.T) {
	m, store := newManager(t, 0)
	store.Unavailable = errors.New("down")
	_, err := m.GetByName("s1", 0)
	assert.True(t, storage.IsRetryable(err))
	err = m.Update(&StudyConfiguration{StudyID: 1, StudyName: "s1", Version: 1})
	assert.True(t, storage.IsRetryable(err))
	_, err = m.ListNames()
	assert.True(t, storage.IsRetryable(err))
}

func TestCache(t *testing.T) {
	m, store := newManager(t, 4)
	require.Nil(t, m.Update(&StudyConfiguration{StudyID: 1, StudyName: "s1", Version: 10}))

	store.Unavailable = errors.New("down")
	cfg, err := m.GetByName("s1", 5)
	require.Nil(t, err, "served from cache")
	assert.Equal(t, int64(10), cfg.Version)
	cfg, err = m.GetByID(1, 5)
	require.Nil(t, err)
	assert.Equal(t, "s1", cfg.StudyName)

	// The latest version always comes from the store.
	_, err = m.GetByName("s1", 0)
	assert.NotNil(t, err)
	_, err = m.GetByName("s1", 10)
	assert.NotNil(t, err)
	store.Unavailable = nil

	// Cached copies are not shared with callers.
	cfg.StudyName = "changed"
	cfg, err = m.GetByName("s1", 5)
	require.Nil(t, err)
	assert.Equal(t, "s1", cfg.StudyName)
}

func TestUpdateLocked(t *testing.T) {
	clock := lock.NewManualClock(time.Unix(100, 0))
	conf := config.NewTestConfig()
	store := storage.NewMemStorage(conf.Table)
	m := NewManager(store, conf, clock)

	cfg, err := m.UpdateLocked(3, func(cfg *StudyConfiguration) error {
		cfg.StudyName = "s3"
		NewBatch(cfg, "load", []int{1, 2}, clock.Now())
		return nil
	})
	require.Nil(t, err)
	assert.Equal(t, time.Unix(100, 0).UnixNano(), cfg.Version)

	cfg, err = m.UpdateLocked(3, func(cfg *StudyConfiguration) error {
		require.Len(t, cfg.Batches, 1)
		cfg.Batches[0].Status = BatchReady
		return nil
	})
	require.Nil(t, err)
	// The clock did not move, the version still grows.
	assert.Equal(t, time.Unix(100, 0).UnixNano()+1, cfg.Version)

	stored, err := m.GetByName("s3", 0)
	require.Nil(t, err)
	assert.Equal(t, BatchReady, stored.Batches[0].Status)
	assert.Equal(t, []int{1, 2}, stored.Batches[0].FileIDs)

	// The lock is released even when fn fails.
	failure := errors.New("boom")
	_, err = m.UpdateLocked(3, func(*StudyConfiguration) error { return failure })
	assert.Equal(t, failure, err)
	token, err := m.LockStudy(3)
	require.Nil(t, err)
	require.Nil(t, m.UnlockStudy(3, token))
}

func TestUpdateLockedLosesLock(t *testing.T) {
	clock := lock.NewManualClock(time.Unix(100, 0))
	conf := config.NewTestConfig()
	m := NewManager(storage.NewMemStorage(conf.Table), conf, clock)
	_, err := m.UpdateLocked(4, func(cfg *StudyConfiguration) error {
		cfg.StudyName = "s4"
		clock.Advance(conf.Lock.Duration.Duration)
		// Someone else takes the expired lock meanwhile.
		_, err := m.LockStudy(4)
		return err
	})
	_, ok := err.(*lock.ErrLockConflict)
	assert.True(t, ok, "%v", err)
	cfg, err := m.GetByName("s4", 0)
	require.Nil(t, err)
	assert.Nil(t, cfg, "nothing is written without the lock")
}

func TestSummaryDecode(t *testing.T) {
	_, err := decodeSummary([]byte(`{"nameToId":{"a":1},"idToName":{"1":"b"}}`))
	assert.NotNil(t, err)
	_, err = decodeSummary([]byte(`{"nameToId":{"a":1},"idToName":{"1":"a","2":"c"}}`))
	assert.NotNil(t, err)
	s, err := decodeSummary([]byte(`{"nameToId":{"a":1},"idToName":{"1":"a"}}`))
	require.Nil(t, err)
	assert.True(t, s.Contains("a", 1))
}
