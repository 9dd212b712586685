// Package loader aggregates the variants of a VCF stream into rows and writes them with a pool of workers. Variants
// are sharded by row key, so one physical row is only ever written by one worker.
package loader

import (
	"io"
	"sync"
	"time"

	"github.com/gtkv/gtkv/kv/config"
	"github.com/gtkv/gtkv/kv/metrics"
	"github.com/gtkv/gtkv/kv/row"
	"github.com/gtkv/gtkv/kv/storage"
	"github.com/gtkv/gtkv/kv/util/worker"
	"github.com/gtkv/gtkv/kv/variant"
	"github.com/gtkv/gtkv/rowcodec"
	"github.com/juju/ratelimit"
	"github.com/ngaut/log"
	"github.com/pingcap/errors"
	"go.uber.org/atomic"
)

// Stats counts the work done by a Load.
type Stats struct {
	Variants int64
	Rows     int64
	Failed   int64
}

// Loader writes the rows of one study.
type Loader struct {
	store   storage.Store
	conf    config.Loader
	studyID uint32
	mapping map[string]uint32

	variants atomic.Int64
	rows     atomic.Int64
	failed   atomic.Int64

	errOnce  sync.Once
	firstErr error
	aborted  atomic.Bool
}

func NewLoader(store storage.Store, conf config.Loader, studyID uint32, mapping map[string]uint32) *Loader {
	return &Loader{
		store:   store,
		conf:    conf,
		studyID: studyID,
		mapping: mapping,
	}
}

type loadTask struct {
	v *variant.Variant
}

type loadHandler struct {
	l *Loader
}

func (h *loadHandler) Handle(t worker.Task) {
	task := t.(loadTask)
	if h.l.aborted.Load() {
		return
	}
	start := time.Now()
	err := h.l.write(task.v)
	metrics.LoaderDuration.WithLabelValues(metrics.Result(err)).Observe(time.Since(start).Seconds())
	if err != nil {
		h.l.failed.Inc()
		h.l.fail(errors.Annotatef(err, "variant %s", task.v))
		return
	}
	h.l.rows.Inc()
}

func (l *Loader) write(v *variant.Variant) error {
	r, err := row.Aggregate(v, l.studyID, l.mapping)
	if err != nil {
		return err
	}
	m, err := rowcodec.Encode(r)
	if err != nil {
		return err
	}
	return m.Apply(l.store)
}

func (l *Loader) fail(err error) {
	l.errOnce.Do(func() {
		l.firstErr = err
		l.aborted.Store(true)
		log.Errorf("load of study %d aborted: %v", l.studyID, err)
	})
}

// Load writes every variant of r. The first failing variant stops the load, its error is returned after the
// variants already queued have drained. A Loader runs one Load at a time.
func (l *Loader) Load(r *variant.Reader) (Stats, error) {
	if err := l.ensureTable(); err != nil {
		return Stats{}, err
	}
	pool := worker.NewPool("loader", l.conf.Workers, func(int) worker.TaskHandler {
		return &loadHandler{l: l}
	})
	var limit *ratelimit.Bucket
	if l.conf.RateLimit > 0 {
		limit = ratelimit.NewBucketWithRate(l.conf.RateLimit, rateCapacity(l.conf.RateLimit))
	}
	for !l.aborted.Load() {
		v, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			l.fail(err)
			break
		}
		if limit != nil {
			limit.Wait(1)
		}
		l.variants.Inc()
		pool.Submit(rowcodec.EncodeRowKey(v.Chromosome, v.Start, v.Reference, v.Alternate), loadTask{v: v})
	}
	pool.Stop()
	stats := Stats{Variants: l.variants.Load(), Rows: l.rows.Load(), Failed: l.failed.Load()}
	log.Infof("study %d: loaded %d rows from %d variants", l.studyID, stats.Rows, stats.Variants)
	return stats, l.firstErr
}

func (l *Loader) ensureTable() error {
	ok, err := l.store.TableExists()
	if err != nil || ok {
		return err
	}
	return l.store.CreateTable()
}

// rateCapacity lets a limited load burst for at most a tenth of a second.
func rateCapacity(rate float64) int64 {
	if c := int64(rate / 10); c > 1 {
		return c
	}
	return 1
}
