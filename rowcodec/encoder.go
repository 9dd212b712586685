package rowcodec

import (
	"encoding/binary"
	"math"

	"github.com/gtkv/gtkv/kv/metrics"
	"github.com/gtkv/gtkv/kv/row"
	"github.com/gtkv/gtkv/kv/storage"
)

// Mutation is the set of cells one row writes into its physical row.
type Mutation struct {
	RowKey []byte
	Cells  []storage.Cell
	// Cleared lists the optional columns of the study the row leaves empty. Writing the mutation over an older
	// version of the row deletes them.
	Cleared [][]byte
}

// Modifies turns the mutation into a store batch. Zero timestamps let the store pick the write time.
func (m *Mutation) Modifies() []storage.Modify {
	batch := make([]storage.Modify, 0, len(m.Cleared)+len(m.Cells))
	for _, col := range m.Cleared {
		batch = append(batch, storage.Modify{Data: storage.Delete{Row: m.RowKey, Column: col}})
	}
	for _, c := range m.Cells {
		batch = append(batch, storage.Modify{Data: storage.Put{Row: m.RowKey, Column: c.Column, Value: c.Value, Ts: c.Timestamp}})
	}
	return batch
}

// Apply writes the mutation in one batch.
func (m *Mutation) Apply(s storage.Store) error {
	return s.Write(m.Modifies())
}

// Encode builds the mutation of r. Rows holding explicit HOM_REF members are rejected: hom-ref samples are only
// ever stored as a count.
func Encode(r *row.Row) (*Mutation, error) {
	m, err := encode(r)
	metrics.RowsCounter.WithLabelValues(metrics.LabelEncode, metrics.Result(err)).Inc()
	return m, err
}

func encode(r *row.Row) (*Mutation, error) {
	key := r.Key()
	if n := r.Size(row.HomRef); n > 0 {
		return nil, &row.ValidationError{Key: key, Reason: "hom-ref samples must be counted, not stored"}
	}
	for _, c := range []uint32{r.HomRefCount(), r.PassCount(), r.CallCount()} {
		if c > math.MaxInt32 {
			return nil, &row.ValidationError{Key: key, Reason: "counter overflows int32"}
		}
	}
	m := &Mutation{RowKey: RowKey(key)}
	put := func(code string, value []byte) {
		m.Cells = append(m.Cells, storage.Cell{Column: ColumnKey(key.StudyID, code), Value: value})
	}
	put(row.HomRef.Code(), encodeInt32(r.HomRefCount()))
	put(PassCountCode, encodeInt32(r.PassCount()))
	put(CallCountCode, encodeInt32(r.CallCount()))
	overflow, alts := r.Overflow(), r.SecondaryAlternates()
	if len(overflow) > 0 || len(alts) > 0 {
		put(ComplexCode, encodeComplex(overflow, alts))
	} else {
		m.Cleared = append(m.Cleared, ColumnKey(key.StudyID, ComplexCode))
	}
	for _, b := range row.Buckets {
		if b == row.HomRef {
			continue
		}
		if r.Size(b) == 0 {
			m.Cleared = append(m.Cleared, ColumnKey(key.StudyID, b.Code()))
			continue
		}
		put(b.Code(), encodeSamples(r.Samples(b)))
	}
	return m, nil
}

func encodeInt32(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}

// encodeSamples writes sorted unique ids as fixed width big endian integers.
func encodeSamples(ids []uint32) []byte {
	b := make([]byte, 4*len(ids))
	for i, id := range ids {
		binary.BigEndian.PutUint32(b[4*i:], id)
	}
	return b
}
