package util

import (
	"bytes"
	"encoding/binary"
	"math"

	"github.com/juju/errors"
)

// Order-preserving value encodings. For any two values a < b of the
// same type, bytes.Compare(enc(a), enc(b)) < 0 holds, so encoded
// primary keys sort the same way the typed values do.

const (
	escape      byte = 0x00
	escapedTerm byte = 0x01
	escaped00   byte = 0xff
)

// EncodeInt64Ascending appends the order-preserving encoding of v:
// eight big-endian bytes with the sign bit flipped.
func EncodeInt64Ascending(b []byte, v int64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(v)^(1<<63))
	return append(b, buf[:]...)
}

// DecodeInt64Ascending decodes a value encoded by EncodeInt64Ascending,
// returning the remainder of the buffer.
func DecodeInt64Ascending(b []byte) ([]byte, int64, error) {
	if len(b) < 8 {
		return nil, 0, errors.Errorf("insufficient bytes to decode int64: %d", len(b))
	}
	v := int64(binary.BigEndian.Uint64(b[:8]) ^ (1 << 63))
	return b[8:], v, nil
}

// EncodeFloat64Ascending appends the order-preserving encoding of f.
// Negative values have every bit flipped, non-negative values only the
// sign bit, which lines the IEEE 754 total order up with byte order.
func EncodeFloat64Ascending(b []byte, f float64) []byte {
	u := math.Float64bits(f)
	if u&(1<<63) != 0 {
		u = ^u
	} else {
		u ^= 1 << 63
	}
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], u)
	return append(b, buf[:]...)
}

func DecodeFloat64Ascending(b []byte) ([]byte, float64, error) {
	if len(b) < 8 {
		return nil, 0, errors.Errorf("insufficient bytes to decode float64: %d", len(b))
	}
	u := binary.BigEndian.Uint64(b[:8])
	if u&(1<<63) != 0 {
		u ^= 1 << 63
	} else {
		u = ^u
	}
	return b[8:], math.Float64frombits(u), nil
}

// EncodeBytesAscending appends the order-preserving encoding of data.
// 0x00 bytes are escaped as 0x00 0xff and the value is terminated with
// 0x00 0x01, so a shorter value always sorts before its extensions.
func EncodeBytesAscending(b []byte, data []byte) []byte {
	for {
		i := bytes.IndexByte(data, escape)
		if i == -1 {
			break
		}
		b = append(b, data[:i]...)
		b = append(b, escape, escaped00)
		data = data[i+1:]
	}
	b = append(b, data...)
	return append(b, escape, escapedTerm)
}

func DecodeBytesAscending(b []byte) ([]byte, []byte, error) {
	var out []byte
	for {
		i := bytes.IndexByte(b, escape)
		if i == -1 {
			return nil, nil, errors.New("malformed escaped bytes: missing terminator")
		}
		if i+1 >= len(b) {
			return nil, nil, errors.New("malformed escaped bytes: truncated escape")
		}
		out = append(out, b[:i]...)
		switch b[i+1] {
		case escapedTerm:
			return b[i+2:], out, nil
		case escaped00:
			out = append(out, 0x00)
			b = b[i+2:]
		default:
			return nil, nil, errors.Errorf("unknown escape sequence 0x00%02x", b[i+1])
		}
	}
}
