package storage

import (
	"bytes"
	"fmt"
	"sync"
	"time"

	"github.com/gtkv/gtkv/kv/util/codec"
	"github.com/pingcap/errors"
)

// Store is the wide-column contract the aggregation layer is written against. A Store is bound to one table. Each row
// key maps to a sparse set of columns and each column keeps timestamped versions of its value.
//
// All methods block until the backing engine answers. Failures talking to the engine are reported as
// *ErrStoreUnavailable, operations on a table that was never created as *ErrTableNotFound.
type Store interface {
	// Get returns the newest version of every column of rowKey accepted by filter whose timestamp falls in tr. A nil
	// filter accepts every column and a nil tr accepts every version. Cells are ordered by column.
	Get(rowKey []byte, filter ColumnFilter, tr *TimeRange) ([]Cell, error)
	// Put writes one cell version. A zero ts is replaced by the current store timestamp.
	Put(rowKey, column, value []byte, ts uint64) error
	// Write applies a batch of modifications atomically.
	Write(batch []Modify) error
	// CompareAndPut replaces the newest value of column with value if it currently equals expected. A nil expected
	// means the column must be absent, a nil value deletes the column. It reports whether the write happened.
	CompareAndPut(rowKey, column, expected, value []byte) (bool, error)
	// Scan calls fn with the newest cells of every row in [startKey, endKey) in key order until fn returns false. An
	// empty endKey means no upper bound.
	Scan(startKey, endKey []byte, fn func(rowKey []byte, cells []Cell) bool) error
	TableExists() (bool, error)
	CreateTable() error
	Close() error
}

// Cell is one version of one column.
type Cell struct {
	Column    []byte
	Value     []byte
	Timestamp uint64
}

// TimeRange selects versions with Min <= ts < Max. A zero Max means unbounded.
type TimeRange struct {
	Min uint64
	Max uint64
}

func (tr *TimeRange) contains(ts uint64) bool {
	if tr == nil {
		return true
	}
	return ts >= tr.Min && (tr.Max == 0 || ts < tr.Max)
}

// ColumnFilter selects the columns returned by Get.
type ColumnFilter func(column []byte) bool

// Columns accepts exactly the given columns.
func Columns(columns ...[]byte) ColumnFilter {
	return func(column []byte) bool {
		for _, c := range columns {
			if bytes.Equal(c, column) {
				return true
			}
		}
		return false
	}
}

// ColumnPrefix accepts every column starting with prefix.
func ColumnPrefix(prefix []byte) ColumnFilter {
	return func(column []byte) bool {
		return bytes.HasPrefix(column, prefix)
	}
}

// Modify is a single modification to a table. Data is either Put or Delete.
type Modify struct {
	Data interface{}
}

// Put writes one cell version, Ts zero meaning now.
type Put struct {
	Row    []byte
	Column []byte
	Value  []byte
	Ts     uint64
}

// Delete removes every version of a cell.
type Delete struct {
	Row    []byte
	Column []byte
}

func (m *Modify) Row() []byte {
	switch data := m.Data.(type) {
	case Put:
		return data.Row
	case Delete:
		return data.Row
	}
	return nil
}

// ErrStoreUnavailable wraps an I/O failure of the backing engine. Callers may retry with backoff.
type ErrStoreUnavailable struct {
	Op  string
	Err error
}

func (e *ErrStoreUnavailable) Error() string {
	return fmt.Sprintf("store unavailable during %s: %v", e.Op, e.Err)
}

// ErrTableNotFound is returned when operating on a table that does not exist yet.
type ErrTableNotFound struct {
	Table string
}

func (e *ErrTableNotFound) Error() string {
	return fmt.Sprintf("table %s not found", e.Table)
}

// Unavailable wraps err as an *ErrStoreUnavailable unless it is nil or already classified.
func Unavailable(op string, err error) error {
	switch err.(type) {
	case nil:
		return nil
	case *ErrStoreUnavailable, *ErrTableNotFound:
		return err
	}
	return &ErrStoreUnavailable{Op: op, Err: err}
}

// TsOracle hands out strictly increasing timestamps close to wall clock nanoseconds.
type TsOracle struct {
	mu   sync.Mutex
	last uint64
	now  func() time.Time
}

func NewTsOracle() *TsOracle {
	return &TsOracle{now: time.Now}
}

// Next returns a timestamp greater than every one returned before.
func (o *TsOracle) Next() uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	ts := uint64(o.now().UnixNano())
	if ts <= o.last {
		ts = o.last + 1
	}
	o.last = ts
	return ts
}

// Observe makes sure later timestamps are greater than ts.
func (o *TsOracle) Observe(ts uint64) {
	o.mu.Lock()
	if ts > o.last {
		o.last = ts
	}
	o.mu.Unlock()
}

// RowCollector folds physical cell entries, visited in key order, into the logical cells of rows. Adapters feed it
// from their engine iterators.
type RowCollector struct {
	filter ColumnFilter
	tr     *TimeRange

	row     []byte
	lastCol []byte
	cells   []Cell
}

func NewRowCollector(filter ColumnFilter, tr *TimeRange) *RowCollector {
	return &RowCollector{filter: filter, tr: tr}
}

// Add visits one physical entry. When the entry starts a new row, the cells of the previous row are returned with
// finished set.
func (c *RowCollector) Add(key, value []byte) (prevRow []byte, prevCells []Cell, finished bool, err error) {
	row, column, ts, err := codec.DecodeCellKey(key)
	if err != nil {
		return nil, nil, false, err
	}
	if c.row != nil && !bytes.Equal(row, c.row) {
		prevRow, prevCells = c.row, c.cells
		finished = true
		c.cells = nil
		c.lastCol = nil
	}
	c.row = row
	if c.lastCol != nil && bytes.Equal(c.lastCol, column) {
		// A newer version of this column was already taken or rejected by range.
		if len(c.cells) > 0 && bytes.Equal(c.cells[len(c.cells)-1].Column, column) {
			return
		}
	}
	c.lastCol = column
	if c.filter != nil && !c.filter(column) {
		return
	}
	if !c.tr.contains(ts) {
		return
	}
	c.cells = append(c.cells, Cell{
		Column:    column,
		Value:     append([]byte(nil), value...),
		Timestamp: ts,
	})
	return
}

// Flush returns the row being collected, if any.
func (c *RowCollector) Flush() ([]byte, []Cell) {
	row, cells := c.row, c.cells
	c.row, c.cells, c.lastCol = nil, nil, nil
	return row, cells
}

// IsRetryable reports whether err, or its cause, is a transient engine failure the caller may retry with backoff.
func IsRetryable(err error) bool {
	_, ok := errors.Cause(err).(*ErrStoreUnavailable)
	return ok
}
