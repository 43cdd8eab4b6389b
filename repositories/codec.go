package repositories

import (
	"time"

	"google.golang.org/protobuf/encoding/protowire"
)

// Records are stored as protobuf wire messages so old values stay readable
// when fields are added. Field numbers must never be reused.

func appendString(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

func appendTime(b []byte, num protowire.Number, t time.Time) []byte {
	if t.IsZero() {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(t.UnixNano()))
}

type fields struct {
	strings map[protowire.Number]string
	varints map[protowire.Number]uint64
}

func (f fields) str(num protowire.Number) string { return f.strings[num] }

func (f fields) time(num protowire.Number) time.Time {
	v, ok := f.varints[num]
	if !ok {
		return time.Time{}
	}
	return time.Unix(0, int64(v)).UTC()
}

// decodeFields reads every string and varint field, skipping the others.
func decodeFields(b []byte) (fields, error) {
	f := fields{
		strings: make(map[protowire.Number]string),
		varints: make(map[protowire.Number]uint64),
	}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fields{}, protowire.ParseError(n)
		}
		b = b[n:]

		switch typ {
		case protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return fields{}, protowire.ParseError(n)
			}
			f.strings[num] = v
			b = b[n:]
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return fields{}, protowire.ParseError(n)
			}
			f.varints[num] = v
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return fields{}, protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return f, nil
}
