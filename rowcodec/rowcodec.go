// Package rowcodec maps aggregated rows to and from the wide-column layout. All studies observing a site share one
// physical row, each study owning the columns prefixed with its id.
package rowcodec

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/gtkv/gtkv/kv/row"
	"github.com/gtkv/gtkv/kv/util/codec"
	"github.com/pingcap/errors"
)

// Column codes besides the bucket codes of row.Bucket. The HOM_REF code holds the hom-ref counter.
const (
	ComplexCode   = "X"
	PassCountCode = "P"
	CallCountCode = "C"

	columnSeparator = '_'
)

// EncodingError reports stored bytes that cannot be turned back into a row.
type EncodingError struct {
	RowKey []byte
	Column string
	Reason string
}

func (e *EncodingError) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("malformed row %q: %s", e.RowKey, e.Reason)
	}
	return fmt.Sprintf("malformed row %q column %s: %s", e.RowKey, e.Column, e.Reason)
}

// EncodeRowKey lays out a site so that byte order is chromosome, then position, then alleles.
func EncodeRowKey(chromosome string, position uint32, reference, alternate string) []byte {
	key := codec.AppendBytes(nil, []byte(chromosome))
	key = codec.AppendUint32(key, position)
	key = codec.AppendBytes(key, []byte(reference))
	return codec.AppendBytes(key, []byte(alternate))
}

// RowKey returns the physical row key of k. The study id is not part of it.
func RowKey(k row.Key) []byte {
	return EncodeRowKey(k.Chromosome, k.Position, k.Reference, k.Alternate)
}

// DecodeRowKey reverses EncodeRowKey.
func DecodeRowKey(key []byte) (chromosome string, position uint32, reference, alternate string, err error) {
	left, chrom, err := codec.DecodeBytes(key)
	if err != nil {
		return "", 0, "", "", errors.Trace(err)
	}
	left, position, err = codec.DecodeUint32(left)
	if err != nil {
		return "", 0, "", "", errors.Trace(err)
	}
	left, ref, err := codec.DecodeBytes(left)
	if err != nil {
		return "", 0, "", "", errors.Trace(err)
	}
	left, alt, err := codec.DecodeBytes(left)
	if err != nil {
		return "", 0, "", "", errors.Trace(err)
	}
	if len(left) != 0 {
		return "", 0, "", "", errors.Errorf("%d trailing bytes after row key", len(left))
	}
	return string(chrom), position, string(ref), string(alt), nil
}

// StudyPrefix is the prefix shared by every column of studyID.
func StudyPrefix(studyID uint32) []byte {
	return append(strconv.AppendUint(nil, uint64(studyID), 10), columnSeparator)
}

// ColumnKey builds `<studyID>_<code>`.
func ColumnKey(studyID uint32, code string) []byte {
	return append(StudyPrefix(studyID), code...)
}

// ParseColumnKey splits a column key. ok is false when the column does not start with a numeric study id.
func ParseColumnKey(column []byte) (studyID uint32, code string, ok bool) {
	idx := bytes.IndexByte(column, columnSeparator)
	if idx <= 0 {
		return 0, "", false
	}
	id, err := strconv.ParseUint(string(column[:idx]), 10, 32)
	if err != nil {
		return 0, "", false
	}
	return uint32(id), string(column[idx+1:]), true
}
