package storage

import (
	"time"

	"github.com/gtkv/gtkv/kv/metrics"
)

// meteredStore records the latency of the data operations of the wrapped store.
type meteredStore struct {
	Store
}

// WithMetrics wraps s so every Get, Put, Write, CompareAndPut and Scan is observed in metrics.StoreDuration.
func WithMetrics(s Store) Store {
	return &meteredStore{Store: s}
}

func observe(op string, start time.Time, err error) {
	metrics.StoreDuration.WithLabelValues(op, metrics.Result(err)).Observe(time.Since(start).Seconds())
}

func (s *meteredStore) Get(rowKey []byte, filter ColumnFilter, tr *TimeRange) ([]Cell, error) {
	start := time.Now()
	cells, err := s.Store.Get(rowKey, filter, tr)
	observe(metrics.LabelGet, start, err)
	return cells, err
}

func (s *meteredStore) Put(rowKey, column, value []byte, ts uint64) error {
	start := time.Now()
	err := s.Store.Put(rowKey, column, value, ts)
	observe(metrics.LabelPut, start, err)
	return err
}

func (s *meteredStore) Write(batch []Modify) error {
	start := time.Now()
	err := s.Store.Write(batch)
	observe(metrics.LabelWrite, start, err)
	return err
}

func (s *meteredStore) CompareAndPut(rowKey, column, expected, value []byte) (bool, error) {
	start := time.Now()
	ok, err := s.Store.CompareAndPut(rowKey, column, expected, value)
	observe(metrics.LabelCAS, start, err)
	return ok, err
}

func (s *meteredStore) Scan(startKey, endKey []byte, fn func(rowKey []byte, cells []Cell) bool) error {
	start := time.Now()
	err := s.Store.Scan(startKey, endKey, fn)
	observe(metrics.LabelScan, start, err)
	return err
}
