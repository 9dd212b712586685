package rowcodec

import (
	"encoding/binary"
	"math"
	"sort"

	"github.com/gtkv/gtkv/kv/metrics"
	"github.com/gtkv/gtkv/kv/row"
	"github.com/gtkv/gtkv/kv/storage"
	"github.com/gtkv/gtkv/kv/variant"
	"github.com/pingcap/errors"
)

// Decoder turns the stored cells of a physical row back into rows. A lenient decoder skips columns it does not
// understand, a strict one fails on them.
type Decoder struct {
	Strict bool
}

// Decode decodes every study stored in the row with a lenient decoder.
func Decode(rowKey []byte, cells []storage.Cell) ([]*row.Row, error) {
	return (&Decoder{}).Decode(rowKey, cells)
}

type studyCells map[string][]byte

// Decode returns one row per study found in cells, ordered by study id.
func (d *Decoder) Decode(rowKey []byte, cells []storage.Cell) ([]*row.Row, error) {
	rows, err := d.decode(rowKey, cells)
	if err != nil {
		metrics.RowsCounter.WithLabelValues(metrics.LabelDecode, metrics.ResultErr).Inc()
		return nil, err
	}
	metrics.RowsCounter.WithLabelValues(metrics.LabelDecode, metrics.ResultOK).Add(float64(len(rows)))
	return rows, nil
}

func (d *Decoder) decode(rowKey []byte, cells []storage.Cell) ([]*row.Row, error) {
	studies := make(map[uint32]studyCells)
	for _, c := range cells {
		id, code, ok := ParseColumnKey(c.Column)
		if !ok {
			if d.Strict {
				return nil, &EncodingError{RowKey: rowKey, Column: string(c.Column), Reason: "column has no study id"}
			}
			continue
		}
		if studies[id] == nil {
			studies[id] = make(studyCells)
		}
		studies[id][code] = c.Value
	}
	if len(studies) == 0 {
		return nil, &EncodingError{RowKey: rowKey, Reason: "no study columns"}
	}
	ids := make([]uint32, 0, len(studies))
	for id := range studies {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	rows := make([]*row.Row, 0, len(ids))
	for _, id := range ids {
		r, err := d.decodeStudy(rowKey, id, studies[id])
		if err != nil {
			return nil, err
		}
		rows = append(rows, r)
	}
	return rows, nil
}

// DecodeStudy decodes the columns of studyID only. Columns of other studies are ignored, even in strict mode.
func (d *Decoder) DecodeStudy(rowKey []byte, cells []storage.Cell, studyID uint32) (*row.Row, error) {
	columns := make(studyCells)
	for _, c := range cells {
		if id, code, ok := ParseColumnKey(c.Column); ok && id == studyID {
			columns[code] = c.Value
		}
	}
	if len(columns) == 0 {
		metrics.RowsCounter.WithLabelValues(metrics.LabelDecode, metrics.ResultErr).Inc()
		return nil, &EncodingError{RowKey: rowKey, Reason: "no columns for the study"}
	}
	r, err := d.decodeStudy(rowKey, studyID, columns)
	metrics.RowsCounter.WithLabelValues(metrics.LabelDecode, metrics.Result(err)).Inc()
	return r, err
}

func (d *Decoder) decodeStudy(rowKey []byte, studyID uint32, columns studyCells) (*row.Row, error) {
	chrom, pos, ref, alt, err := DecodeRowKey(rowKey)
	if err != nil {
		return nil, &EncodingError{RowKey: rowKey, Reason: err.Error()}
	}
	fail := func(code, format string, args ...interface{}) error {
		return &EncodingError{RowKey: rowKey, Column: string(ColumnKey(studyID, code)), Reason: errors.Errorf(format, args...).Error()}
	}
	b := row.NewBuilder(row.Key{StudyID: studyID, Chromosome: chrom, Position: pos, Reference: ref, Alternate: alt})
	var (
		others   []uint32
		overflow map[uint32]string
	)
	for code, value := range columns {
		switch code {
		case PassCountCode, CallCountCode, row.HomRef.Code():
			v, err := decodeInt32(value)
			if err != nil {
				return nil, fail(code, "%v", err)
			}
			switch code {
			case PassCountCode:
				b.AddPassCount(v)
			case CallCountCode:
				b.AddCallCount(v)
			default:
				b.AddHomRefCount(v)
			}
		case ComplexCode:
			var alts []variant.AlternateCoordinate
			if overflow, alts, err = decodeComplex(value); err != nil {
				return nil, fail(code, "%v", err)
			}
			b.SetSecondaryAlternates(alts)
		default:
			bucket, ok := row.BucketByCode(code)
			if !ok {
				if d.Strict {
					return nil, fail(code, "unknown column code %q", code)
				}
				continue
			}
			ids, err := decodeSamples(value)
			if err != nil {
				return nil, fail(code, "%v", err)
			}
			if bucket == row.Other {
				others = ids
				continue
			}
			for _, id := range ids {
				if err = b.Add(bucket, id); err != nil {
					return nil, fail(code, "%v", err)
				}
			}
		}
	}
	for _, id := range others {
		gt, ok := overflow[id]
		if ok {
			err = b.AddOther(id, gt)
			delete(overflow, id)
		} else {
			err = b.Add(row.Other, id)
		}
		if err != nil {
			return nil, fail(row.Other.Code(), "%v", err)
		}
	}
	for id := range overflow {
		return nil, fail(ComplexCode, "overflow sample %d is not in %s", id, row.Other)
	}
	r, err := b.Build()
	if err != nil {
		return nil, &EncodingError{RowKey: rowKey, Reason: err.Error()}
	}
	return r, nil
}

func decodeInt32(b []byte) (uint32, error) {
	if len(b) != 4 {
		return 0, errors.Errorf("counter has %d bytes, want 4", len(b))
	}
	v := binary.BigEndian.Uint32(b)
	if v > math.MaxInt32 {
		return 0, errors.Errorf("negative counter %d", int32(v))
	}
	return v, nil
}

// decodeSamples reads a sample array, dropping duplicate ids.
func decodeSamples(b []byte) ([]uint32, error) {
	if len(b)%4 != 0 {
		return nil, errors.Errorf("sample array has %d bytes, not a multiple of 4", len(b))
	}
	ids := make([]uint32, 0, len(b)/4)
	for i := 0; i < len(b); i += 4 {
		ids = append(ids, binary.BigEndian.Uint32(b[i:]))
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	uniq := ids[:0]
	for _, id := range ids {
		if len(uniq) == 0 || uniq[len(uniq)-1] != id {
			uniq = append(uniq, id)
		}
	}
	return uniq, nil
}
