package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	RowsCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gtkv",
			Subsystem: "rowcodec",
			Name:      "rows_total",
			Help:      "Counter of encoded and decoded rows.",
		}, []string{"type", "result"})

	LockCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gtkv",
			Subsystem: "lock",
			Name:      "operations_total",
			Help:      "Counter of distributed lock operations.",
		}, []string{"type", "result"})

	LockWaitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "gtkv",
			Subsystem: "lock",
			Name:      "wait_duration_seconds",
			Help:      "Bucketed histogram of time spent acquiring locks.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 16),
		})

	StudyConfigCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gtkv",
			Subsystem: "studyconfig",
			Name:      "operations_total",
			Help:      "Counter of study configuration reads and writes.",
		}, []string{"type", "result"})

	LoaderDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "gtkv",
			Subsystem: "loader",
			Name:      "write_duration_seconds",
			Help:      "Bucketed histogram of time spent aggregating and writing one variant.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 16),
		}, []string{"result"})

	StoreDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "gtkv",
			Subsystem: "storage",
			Name:      "operation_duration_seconds",
			Help:      "Bucketed histogram of backing store operation latency.",
			Buckets:   prometheus.ExponentialBuckets(0.00005, 2, 18),
		}, []string{"type", "result"})
)

// Label values shared by the vectors above.
const (
	LabelEncode  = "encode"
	LabelDecode  = "decode"
	LabelLock    = "lock"
	LabelUnlock  = "unlock"
	LabelRefresh = "refresh"
	LabelGet     = "get"
	LabelUpdate  = "update"
	LabelSummary = "summary"
	LabelPut     = "put"
	LabelWrite   = "write"
	LabelCAS     = "compare_and_put"
	LabelScan    = "scan"

	ResultOK       = "ok"
	ResultErr      = "error"
	ResultTimeout  = "timeout"
	ResultConflict = "conflict"
	ResultCached   = "cached"
	ResultSkipped  = "skipped"
)

func init() {
	prometheus.MustRegister(RowsCounter)
	prometheus.MustRegister(LockCounter)
	prometheus.MustRegister(LockWaitDuration)
	prometheus.MustRegister(StudyConfigCounter)
	prometheus.MustRegister(LoaderDuration)
	prometheus.MustRegister(StoreDuration)
}

// Result maps an error to a result label.
func Result(err error) string {
	if err != nil {
		return ResultErr
	}
	return ResultOK
}
