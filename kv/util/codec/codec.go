package codec

import (
	"encoding/binary"

	"github.com/pingcap/errors"
)

const (
	encGroupSize = 8
	encMarker    = byte(0xFF)
	encPad       = byte(0x0)

	tsLen = 8
)

var pads = make([]byte, encGroupSize)

// EncodeBytes guarantees the encoded value is in ascending order for comparison,
// encoding with the following rule:
//  [group1][marker1]...[groupN][markerN]
//  group is 8 bytes slice which is padding with 0.
//  marker is `0xFF - padding 0 count`
// For example:
//   [] -> [0, 0, 0, 0, 0, 0, 0, 0, 247]
//   [1, 2, 3] -> [1, 2, 3, 0, 0, 0, 0, 0, 250]
//   [1, 2, 3, 0] -> [1, 2, 3, 0, 0, 0, 0, 0, 251]
//   [1, 2, 3, 4, 5, 6, 7, 8] -> [1, 2, 3, 4, 5, 6, 7, 8, 255, 0, 0, 0, 0, 0, 0, 0, 0, 247]
// The encoding is prefix free: no encoded value is a prefix of another one.
// Refer: https://github.com/facebook/mysql-5.6/wiki/MyRocks-record-format#memcomparable-format
func EncodeBytes(data []byte) []byte {
	return AppendBytes(nil, data)
}

// AppendBytes appends the memcomparable form of data to b.
func AppendBytes(b []byte, data []byte) []byte {
	dLen := len(data)
	if b == nil {
		b = make([]byte, 0, (dLen/encGroupSize+1)*(encGroupSize+1)+tsLen)
	}
	for idx := 0; idx <= dLen; idx += encGroupSize {
		remain := dLen - idx
		padCount := 0
		if remain >= encGroupSize {
			b = append(b, data[idx:idx+encGroupSize]...)
		} else {
			padCount = encGroupSize - remain
			b = append(b, data[idx:]...)
			b = append(b, pads[:padCount]...)
		}
		b = append(b, encMarker-byte(padCount))
	}
	return b
}

// DecodeBytes decodes bytes which is encoded by EncodeBytes before,
// returns the leftover bytes and decoded value if no error.
func DecodeBytes(b []byte) ([]byte, []byte, error) {
	data := make([]byte, 0, len(b))
	for {
		if len(b) < encGroupSize+1 {
			return nil, nil, errors.New("insufficient bytes to decode value")
		}

		groupBytes := b[:encGroupSize+1]

		group := groupBytes[:encGroupSize]
		marker := groupBytes[encGroupSize]

		padCount := encMarker - marker
		if padCount > encGroupSize {
			return nil, nil, errors.Errorf("invalid marker byte, group bytes %q", groupBytes)
		}

		realGroupSize := encGroupSize - padCount
		data = append(data, group[:realGroupSize]...)
		b = b[encGroupSize+1:]

		if padCount != 0 {
			// Check validity of padding bytes.
			for _, v := range group[realGroupSize:] {
				if v != encPad {
					return nil, nil, errors.Errorf("invalid padding byte, group bytes %q", groupBytes)
				}
			}
			break
		}
	}
	return b, data, nil
}

// AppendUint32 appends v in big endian so that unsigned values sort numerically.
func AppendUint32(b []byte, v uint32) []byte {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	return append(b, buf[:]...)
}

// DecodeUint32 reads a big endian uint32 and returns the leftover bytes.
func DecodeUint32(b []byte) ([]byte, uint32, error) {
	if len(b) < 4 {
		return nil, 0, errors.Errorf("insufficient bytes to decode uint32, got %d", len(b))
	}
	return b[4:], binary.BigEndian.Uint32(b), nil
}

// AppendTs appends the timestamp to encoded key, Note we invert the timestamp so that when sorted, they are in descending order.
func AppendTs(encodedKey []byte, ts uint64) []byte {
	newKey := append(encodedKey, make([]byte, tsLen)...)
	binary.BigEndian.PutUint64(newKey[len(newKey)-tsLen:], ^ts)
	return newKey
}

// EncodeCellKey builds the physical key of one cell version. Versions of the same cell are adjacent, newest first,
// and every cell of a row shares the prefix EncodeBytes(row).
func EncodeCellKey(row, column []byte, ts uint64) []byte {
	key := make([]byte, 0, (len(row)/encGroupSize+1)*(encGroupSize+1)+(len(column)/encGroupSize+1)*(encGroupSize+1)+tsLen)
	key = AppendBytes(key, row)
	key = AppendBytes(key, column)
	return AppendTs(key, ts)
}

// EncodeColumnPrefix returns the key prefix shared by all versions of one cell.
func EncodeColumnPrefix(row, column []byte) []byte {
	return AppendBytes(EncodeBytes(row), column)
}

// DecodeCellKey splits a physical cell key into row, column and timestamp.
func DecodeCellKey(key []byte) (row, column []byte, ts uint64, err error) {
	left, row, err := DecodeBytes(key)
	if err != nil {
		return nil, nil, 0, err
	}
	left, column, err = DecodeBytes(left)
	if err != nil {
		return nil, nil, 0, err
	}
	if len(left) != tsLen {
		return nil, nil, 0, errors.Errorf("invalid cell key timestamp length %d", len(left))
	}
	return row, column, ^binary.BigEndian.Uint64(left), nil
}
