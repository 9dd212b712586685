package rowcodec

import (
	"sort"

	"github.com/gogo/protobuf/proto"
	"github.com/gtkv/gtkv/kv/variant"
	"github.com/pingcap/errors"
)

// The COMPLEX column holds a protobuf message:
//
//   message Complex {
//     repeated Overflow overflow = 1;            // { uint32 sample = 1; string genotype = 2; }
//     repeated AlternateCoordinate alternate = 2; // { string chromosome = 1; int32 start = 2; int32 end = 3;
//                                                 //   string reference = 4; string alternate = 5; int32 type = 6; }
//   }
const (
	complexOverflow  = 1
	complexAlternate = 2

	overflowSample   = 1
	overflowGenotype = 2

	altChromosome = 1
	altStart      = 2
	altEnd        = 3
	altReference  = 4
	altAlternate  = 5
	altType       = 6
)

func encodeKey(b *proto.Buffer, field, wireType int) {
	b.EncodeVarint(uint64(field)<<3 | uint64(wireType))
}

func encodeString(b *proto.Buffer, field int, s string) {
	if s == "" {
		return
	}
	encodeKey(b, field, proto.WireBytes)
	b.EncodeStringBytes(s)
}

func encodeVarintField(b *proto.Buffer, field int, v int32) {
	if v == 0 {
		return
	}
	encodeKey(b, field, proto.WireVarint)
	b.EncodeVarint(uint64(int64(v)))
}

func encodeComplex(overflow map[uint32]string, alts []variant.AlternateCoordinate) []byte {
	ids := make([]uint32, 0, len(overflow))
	for id := range overflow {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	buf := proto.NewBuffer(nil)
	msg := proto.NewBuffer(nil)
	for _, id := range ids {
		msg.Reset()
		encodeKey(msg, overflowSample, proto.WireVarint)
		msg.EncodeVarint(uint64(id))
		encodeKey(msg, overflowGenotype, proto.WireBytes)
		msg.EncodeStringBytes(overflow[id])
		encodeKey(buf, complexOverflow, proto.WireBytes)
		buf.EncodeRawBytes(msg.Bytes())
	}
	for _, alt := range alts {
		msg.Reset()
		encodeString(msg, altChromosome, alt.Chromosome)
		encodeVarintField(msg, altStart, alt.Start)
		encodeVarintField(msg, altEnd, alt.End)
		encodeString(msg, altReference, alt.Reference)
		encodeString(msg, altAlternate, alt.Alternate)
		encodeVarintField(msg, altType, int32(alt.Type))
		encodeKey(buf, complexAlternate, proto.WireBytes)
		buf.EncodeRawBytes(msg.Bytes())
	}
	return buf.Bytes()
}

// protoField is one decoded field of a message. Varint fields set num, length delimited ones set data.
type protoField struct {
	field    int
	wireType int
	num      uint64
	data     []byte
}

func walkFields(b []byte, fn func(f protoField) error) error {
	for len(b) > 0 {
		key, n := proto.DecodeVarint(b)
		if n == 0 {
			return errors.New("truncated field key")
		}
		b = b[n:]
		f := protoField{field: int(key >> 3), wireType: int(key & 7)}
		switch f.wireType {
		case proto.WireVarint:
			if f.num, n = proto.DecodeVarint(b); n == 0 {
				return errors.Errorf("truncated varint of field %d", f.field)
			}
			b = b[n:]
		case proto.WireBytes:
			l, n := proto.DecodeVarint(b)
			if n == 0 || uint64(len(b)-n) < l {
				return errors.Errorf("truncated bytes of field %d", f.field)
			}
			f.data = b[n : n+int(l)]
			b = b[n+int(l):]
		default:
			return errors.Errorf("unsupported wire type %d of field %d", f.wireType, f.field)
		}
		if err := fn(f); err != nil {
			return err
		}
	}
	return nil
}

func decodeComplex(b []byte) (map[uint32]string, []variant.AlternateCoordinate, error) {
	overflow := make(map[uint32]string)
	var alts []variant.AlternateCoordinate
	err := walkFields(b, func(f protoField) error {
		switch {
		case f.field == complexOverflow && f.wireType == proto.WireBytes:
			var (
				id       uint32
				genotype string
			)
			err := walkFields(f.data, func(f protoField) error {
				switch f.field {
				case overflowSample:
					id = uint32(f.num)
				case overflowGenotype:
					genotype = string(f.data)
				}
				return nil
			})
			if err != nil {
				return err
			}
			if _, ok := overflow[id]; ok {
				return errors.Errorf("duplicate overflow sample %d", id)
			}
			overflow[id] = genotype
		case f.field == complexAlternate && f.wireType == proto.WireBytes:
			var alt variant.AlternateCoordinate
			err := walkFields(f.data, func(f protoField) error {
				switch f.field {
				case altChromosome:
					alt.Chromosome = string(f.data)
				case altStart:
					alt.Start = int32(int64(f.num))
				case altEnd:
					alt.End = int32(int64(f.num))
				case altReference:
					alt.Reference = string(f.data)
				case altAlternate:
					alt.Alternate = string(f.data)
				case altType:
					alt.Type = variant.VariantType(int32(int64(f.num)))
				}
				return nil
			})
			if err != nil {
				return err
			}
			alts = append(alts, alt)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return overflow, alts, nil
}
