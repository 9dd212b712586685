// Package studyconfig keeps versioned study configurations and the name to id summary of all studies. Everything is
// stored in a single metadata row of the variant table: one column per study name holding its configuration, one
// summary column, and the study lock columns.
package studyconfig

import (
	"encoding/json"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang/groupcache/lru"
	"github.com/google/uuid"
	"github.com/gtkv/gtkv/kv/config"
	"github.com/gtkv/gtkv/kv/lock"
	"github.com/gtkv/gtkv/kv/metrics"
	"github.com/gtkv/gtkv/kv/storage"
	"github.com/gtkv/gtkv/rowcodec"
	"github.com/ngaut/log"
	"github.com/pingcap/errors"
	"go.uber.org/atomic"
)

const (
	// MetadataChromosome names the pseudo site whose row holds study metadata.
	MetadataChromosome = "_METADATA"

	summaryColumn = "_SUMMARY"
	lockSuffix    = "_LOCK"

	maxSummaryRetries = 64
)

// MetadataRowKey is the row holding all study metadata.
var MetadataRowKey = rowcodec.EncodeRowKey(MetadataChromosome, 0, "", "")

// LockColumn is the column of the lock guarding studyID.
func LockColumn(studyID uint32) string {
	return strconv.FormatUint(uint64(studyID), 10) + lockSuffix
}

type cacheKey struct {
	name string
	id   uint32
	byID bool
}

// Manager reads and writes study configurations. It is safe for concurrent use.
type Manager struct {
	store    storage.Store
	locks    *lock.DistributedLock
	lockConf config.Lock
	clock    lock.Clock

	tableReady atomic.Bool

	cacheMu sync.Mutex
	cache   *lru.Cache
}

// NewManager returns a manager over store. A nil clock means the wall clock.
func NewManager(store storage.Store, conf *config.Config, clock lock.Clock) *Manager {
	if clock == nil {
		clock = lock.RealClock
	}
	m := &Manager{
		store:    store,
		locks:    lock.NewDistributedLock(store, MetadataRowKey, lock.NewRetryPolicy(&conf.Lock), clock),
		lockConf: conf.Lock,
		clock:    clock,
	}
	if conf.StudyCacheSize > 0 {
		m.cache = lru.New(conf.StudyCacheSize)
	}
	return m
}

func (m *Manager) ensureTable() error {
	if m.tableReady.Load() {
		return nil
	}
	ok, err := m.store.TableExists()
	if err != nil {
		return err
	}
	if !ok {
		log.Infof("creating missing table for study metadata")
		if err = m.store.CreateTable(); err != nil {
			return err
		}
	}
	m.tableReady.Store(true)
	return nil
}

func isTableNotFound(err error) bool {
	_, ok := errors.Cause(err).(*storage.ErrTableNotFound)
	return ok
}

// cached returns a cached configuration newer than minVersion. Without minVersion the latest is wanted and only the
// store can tell.
func (m *Manager) cached(key cacheKey, minVersion int64) *StudyConfiguration {
	if m.cache == nil || minVersion <= 0 {
		return nil
	}
	m.cacheMu.Lock()
	defer m.cacheMu.Unlock()
	v, ok := m.cache.Get(key)
	if !ok {
		return nil
	}
	cfg := v.(*StudyConfiguration)
	if cfg.Version <= minVersion {
		return nil
	}
	return cfg.Copy()
}

// observe caches cfg unless a newer version was already seen, and returns the newest of both. Readers therefore never
// see versions go backwards.
func (m *Manager) observe(cfg *StudyConfiguration) *StudyConfiguration {
	if m.cache == nil {
		return cfg
	}
	m.cacheMu.Lock()
	defer m.cacheMu.Unlock()
	if v, ok := m.cache.Get(cacheKey{name: cfg.StudyName}); ok {
		if prev := v.(*StudyConfiguration); prev.Version > cfg.Version {
			return prev.Copy()
		}
	}
	m.cache.Add(cacheKey{name: cfg.StudyName}, cfg.Copy())
	m.cache.Add(cacheKey{id: cfg.StudyID, byID: true}, cfg.Copy())
	return cfg
}

// GetByName returns the configuration of the study called name with a version greater than minVersion, or the latest
// one when minVersion is 0. A missing study, or a missing table, yields nil without error. Only names registered in
// the summary resolve, so the former name of a renamed study does not.
func (m *Manager) GetByName(name string, minVersion int64) (*StudyConfiguration, error) {
	if cfg := m.cached(cacheKey{name: name}, minVersion); cfg != nil {
		metrics.StudyConfigCounter.WithLabelValues(metrics.LabelGet, metrics.ResultCached).Inc()
		return cfg, nil
	}
	summary, _, err := m.readSummary()
	if err != nil {
		return nil, err
	}
	if _, ok := summary.ID(name); !ok {
		return nil, nil
	}
	return m.getByName(name, minVersion)
}

func (m *Manager) getByName(name string, minVersion int64) (*StudyConfiguration, error) {
	cfg, err := m.get(name, minVersion)
	metrics.StudyConfigCounter.WithLabelValues(metrics.LabelGet, metrics.Result(err)).Inc()
	if err != nil || cfg == nil {
		return nil, err
	}
	return m.observe(cfg), nil
}

// GetByID is GetByName for the study registered with id in the summary.
func (m *Manager) GetByID(id uint32, minVersion int64) (*StudyConfiguration, error) {
	if cfg := m.cached(cacheKey{id: id, byID: true}, minVersion); cfg != nil {
		metrics.StudyConfigCounter.WithLabelValues(metrics.LabelGet, metrics.ResultCached).Inc()
		return cfg, nil
	}
	summary, _, err := m.readSummary()
	if err != nil {
		return nil, err
	}
	name, ok := summary.Name(id)
	if !ok {
		return nil, nil
	}
	return m.getByName(name, minVersion)
}

func (m *Manager) get(name string, minVersion int64) (*StudyConfiguration, error) {
	var tr *storage.TimeRange
	if minVersion > 0 {
		tr = &storage.TimeRange{Min: uint64(minVersion) + 1}
	}
	cells, err := m.store.Get(MetadataRowKey, storage.Columns([]byte(name)), tr)
	if isTableNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(cells) == 0 {
		return nil, nil
	}
	cfg := new(StudyConfiguration)
	if err = json.Unmarshal(cells[0].Value, cfg); err != nil {
		return nil, errors.Annotatef(err, "decode configuration of study %s", name)
	}
	return cfg, nil
}

func validName(name string) bool {
	return name != "" && !strings.HasPrefix(name, "_") && !strings.HasSuffix(name, lockSuffix)
}

// Update stores cfg tagged with its version and registers its name and id in the summary. Concurrent updates of the
// same study must be serialized by the caller, usually with LockStudy or UpdateLocked.
func (m *Manager) Update(cfg *StudyConfiguration) error {
	err := m.update(cfg)
	metrics.StudyConfigCounter.WithLabelValues(metrics.LabelUpdate, metrics.Result(err)).Inc()
	return err
}

func (m *Manager) update(cfg *StudyConfiguration) error {
	if !validName(cfg.StudyName) {
		return errors.Errorf("invalid study name %q", cfg.StudyName)
	}
	if cfg.Version <= 0 {
		return errors.Errorf("%s: version must be positive", cfg)
	}
	summary, _, err := m.readSummary()
	if err != nil {
		return err
	}
	if other, ok := summary.ID(cfg.StudyName); ok && other != cfg.StudyID {
		return &ErrConflictingStudy{Name: cfg.StudyName, ID: cfg.StudyID, ExistingID: other}
	}
	if err = m.ensureTable(); err != nil {
		return err
	}
	value, err := json.Marshal(cfg)
	if err != nil {
		return errors.Trace(err)
	}
	batch := []storage.Modify{{Data: storage.Put{Row: MetadataRowKey, Column: []byte(cfg.StudyName), Value: value, Ts: uint64(cfg.Version)}}}
	// A renamed study leaves no configuration under its former name.
	oldName, renamed := summary.Name(cfg.StudyID)
	renamed = renamed && oldName != cfg.StudyName
	if renamed {
		batch = append(batch, storage.Modify{Data: storage.Delete{Row: MetadataRowKey, Column: []byte(oldName)}})
	}
	if err = m.store.Write(batch); err != nil {
		return err
	}
	if _, err = m.UpdateSummary(cfg.StudyName, cfg.StudyID); err != nil {
		return err
	}
	if renamed {
		log.Infof("study %d renamed from %s to %s", cfg.StudyID, oldName, cfg.StudyName)
		m.forget(oldName)
	}
	m.observe(cfg)
	return nil
}

// forget drops the cached configuration of a name that is no longer registered.
func (m *Manager) forget(name string) {
	if m.cache == nil {
		return
	}
	m.cacheMu.Lock()
	m.cache.Remove(cacheKey{name: name})
	m.cacheMu.Unlock()
}

func (m *Manager) readSummary() (*Summary, []byte, error) {
	cells, err := m.store.Get(MetadataRowKey, storage.Columns([]byte(summaryColumn)), nil)
	if isTableNotFound(err) {
		return newSummary(), nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	if len(cells) == 0 {
		return newSummary(), nil, nil
	}
	s, err := decodeSummary(cells[0].Value)
	if err != nil {
		return nil, nil, errors.Annotate(err, "decode study summary")
	}
	return s, cells[0].Value, nil
}

// Summary returns the current name to id mapping.
func (m *Manager) Summary() (*Summary, error) {
	s, _, err := m.readSummary()
	return s, err
}

// UpdateSummary registers name as the name of study id. Nothing is written when the pair is already registered. It
// reports whether the summary changed.
func (m *Manager) UpdateSummary(name string, id uint32) (bool, error) {
	for i := 0; i < maxSummaryRetries; i++ {
		s, raw, err := m.readSummary()
		if err != nil {
			return false, err
		}
		if s.Contains(name, id) {
			metrics.StudyConfigCounter.WithLabelValues(metrics.LabelSummary, metrics.ResultSkipped).Inc()
			return false, nil
		}
		if err = s.set(name, id); err != nil {
			return false, err
		}
		value, err := s.encode()
		if err != nil {
			return false, errors.Trace(err)
		}
		if err = m.ensureTable(); err != nil {
			return false, err
		}
		ok, err := m.store.CompareAndPut(MetadataRowKey, []byte(summaryColumn), raw, value)
		if err != nil {
			return false, err
		}
		if ok {
			log.Infof("registered study %s as %d", name, id)
			metrics.StudyConfigCounter.WithLabelValues(metrics.LabelSummary, metrics.ResultOK).Inc()
			return true, nil
		}
		log.Debugf("study summary changed concurrently, retrying registration of %s", name)
	}
	return false, errors.Errorf("study summary kept changing while registering %s", name)
}

// ListNames returns every registered study name, sorted.
func (m *Manager) ListNames() ([]string, error) {
	s, _, err := m.readSummary()
	if err != nil {
		return nil, err
	}
	return s.Names(), nil
}

// LockStudy takes the lock of study id with the configured duration and timeout.
func (m *Manager) LockStudy(id uint32) (uuid.UUID, error) {
	if err := m.ensureTable(); err != nil {
		return uuid.Nil, err
	}
	return m.locks.Lock(LockColumn(id), m.lockConf.Duration.Duration, m.lockConf.Timeout.Duration)
}

// UnlockStudy releases the lock of study id taken with token.
func (m *Manager) UnlockStudy(id uint32, token uuid.UUID) error {
	return m.locks.Unlock(LockColumn(id), token)
}

// UpdateLocked applies fn to the latest configuration of study id while holding the study lock and stores the result
// with a new version. fn receives an empty configuration carrying only the id when the study is not registered yet;
// it must then set the name. The lock is always released. Losing it while fn runs fails the update with
// *lock.ErrLockConflict.
func (m *Manager) UpdateLocked(id uint32, fn func(cfg *StudyConfiguration) error) (cfg *StudyConfiguration, err error) {
	token, err := m.LockStudy(id)
	if err != nil {
		return nil, err
	}
	defer func() {
		if unlockErr := m.UnlockStudy(id, token); unlockErr != nil {
			log.Errorf("unlock study %d: %v", id, unlockErr)
			if err == nil {
				cfg, err = nil, unlockErr
			}
		}
	}()
	cfg, err = m.GetByID(id, 0)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = &StudyConfiguration{StudyID: id}
	}
	if err = fn(cfg); err != nil {
		return nil, err
	}
	if cfg.StudyID != id {
		return nil, errors.Errorf("study id changed from %d to %d", id, cfg.StudyID)
	}
	// The lock may have expired while fn ran.
	if err = m.locks.Refresh(LockColumn(id), token, m.lockConf.Duration.Duration); err != nil {
		return nil, err
	}
	cfg.Version = m.nextVersion(cfg.Version)
	if err = m.Update(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (m *Manager) nextVersion(prev int64) int64 {
	v := m.clock.Now().UnixNano()
	if v <= prev {
		v = prev + 1
	}
	return v
}

// NewBatch appends a running file operation to cfg.
func NewBatch(cfg *StudyConfiguration, operation string, fileIDs []int, now time.Time) *BatchFileOperation {
	cfg.Batches = append(cfg.Batches, BatchFileOperation{
		OperationName: operation,
		FileIDs:       append([]int(nil), fileIDs...),
		Timestamp:     now.UnixNano(),
		Status:        BatchRunning,
	})
	return &cfg.Batches[len(cfg.Batches)-1]
}

// Status values of a BatchFileOperation.
const (
	BatchRunning = "RUNNING"
	BatchReady   = "READY"
	BatchError   = "ERROR"
)
