package server

import (
	"bytes"

	"github.com/gtkv/gtkv/kv/row"
	"github.com/gtkv/gtkv/kv/storage"
	"github.com/gtkv/gtkv/kv/studyconfig"
	"github.com/gtkv/gtkv/rowcodec"
)

// AllStudies selects every study in a Region.
const AllStudies = -1

// Region selects the rows of a scan. An empty Chromosome selects the whole table, End 0 means up to the end of the
// chromosome.
type Region struct {
	StudyID    int64
	Chromosome string
	Start      uint32
	End        uint32
}

func (r Region) keys() (start, end []byte) {
	if r.Chromosome == "" {
		return nil, nil
	}
	start = rowcodec.EncodeRowKey(r.Chromosome, r.Start, "", "")
	if r.End > 0 {
		end = rowcodec.EncodeRowKey(r.Chromosome, r.End, "", "")
	}
	return start, end
}

// ScanRows decodes the rows of region in key order and hands them to fn until it returns false. The metadata row is
// skipped.
func ScanRows(store storage.Store, decoder *rowcodec.Decoder, region Region, fn func(r *row.Row) bool) error {
	start, end := region.keys()
	var decodeErr error
	err := store.Scan(start, end, func(rowKey []byte, cells []storage.Cell) bool {
		if bytes.Equal(rowKey, studyconfig.MetadataRowKey) {
			return true
		}
		rows, err := decoder.Decode(rowKey, cells)
		if err != nil {
			decodeErr = err
			return false
		}
		for _, r := range rows {
			if region.Chromosome != "" && r.Key().Chromosome != region.Chromosome {
				return false
			}
			if region.StudyID != AllStudies && int64(r.Key().StudyID) != region.StudyID {
				continue
			}
			if !fn(r) {
				return false
			}
		}
		return true
	})
	if err != nil {
		return err
	}
	return decodeErr
}
