package storage_test

import (
	"errors"
	"testing"

	"github.com/gtkv/gtkv/kv/storage"
	"github.com/gtkv/gtkv/kv/storage/storagetest"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMeteredStore(t *testing.T) {
	storagetest.RunStoreTests(t, func(t *testing.T) storage.Store {
		return storage.WithMetrics(storage.NewMemStorage("t"))
	})
}

// observations returns how many store operations of op ended with result.
func observations(t *testing.T, op, result string) uint64 {
	families, err := prometheus.DefaultGatherer.Gather()
	require.Nil(t, err)
	for _, mf := range families {
		if mf.GetName() != "gtkv_storage_operation_duration_seconds" {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := make(map[string]string)
			for _, l := range m.GetLabel() {
				labels[l.GetName()] = l.GetValue()
			}
			if labels["type"] == op && labels["result"] == result {
				return m.GetHistogram().GetSampleCount()
			}
		}
	}
	return 0
}

func TestMeteredStoreObserves(t *testing.T) {
	mem := storage.NewMemStorage("t")
	s := storage.WithMetrics(mem)
	require.Nil(t, s.CreateTable())

	puts, cas := observations(t, "put", "ok"), observations(t, "compare_and_put", "ok")
	require.Nil(t, s.Put([]byte("r"), []byte("c"), []byte("v"), 0))
	ok, err := s.CompareAndPut([]byte("r"), []byte("c"), []byte("v"), []byte("w"))
	require.Nil(t, err)
	require.True(t, ok)
	assert.Equal(t, puts+1, observations(t, "put", "ok"))
	assert.Equal(t, cas+1, observations(t, "compare_and_put", "ok"))

	failed := observations(t, "get", "error")
	mem.Unavailable = errors.New("down")
	_, err = s.Get([]byte("r"), nil, nil)
	assert.True(t, storage.IsRetryable(err))
	assert.Equal(t, failed+1, observations(t, "get", "error"))
}
