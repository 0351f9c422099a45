// Package wire implements the primitive types of the SA:MP query protocol:
// length-prefixed strings, little-endian fixed-width integers and counted lists.
// Every function is pure; nothing here performs I/O.
package wire

import (
	"encoding/binary"
	"fmt"
	"math"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// Encoding names the character set a string was decoded with.
type Encoding string

const (
	// UTF8 is tried first for every string.
	UTF8 Encoding = "utf-8"

	// CP1252 is the legacy single-byte fallback used by older servers.
	CP1252 Encoding = "cp1252"
)

// Fixed is the set of integer types that can be read from or appended to a payload.
type Fixed interface {
	~int8 | ~uint8 | ~int16 | ~uint16 | ~int32 | ~uint32
}

// UnpackFixed reads a little-endian T from the start of data.
func UnpackFixed[T Fixed](data []byte) (T, []byte, error) {
	return UnpackFixedOrder[T](data, binary.LittleEndian)
}

// UnpackFixedOrder reads a T encoded with order from the start of data.
func UnpackFixedOrder[T Fixed](data []byte, order binary.ByteOrder) (T, []byte, error) {
	var v T
	n, err := binary.Decode(data, order, &v)
	if err != nil {
		return v, data, short(fmt.Sprintf("%T", v), binary.Size(v), len(data))
	}

	return v, data[n:], nil
}

// AppendFixed appends v little-endian to dst.
func AppendFixed[T Fixed](dst []byte, v T) []byte {
	out, _ := binary.Append(dst, binary.LittleEndian, v)
	return out
}

// UnpackString reads a string whose length is stored in the leading width bytes (1, 2 or 4,
// little-endian unsigned). The body is decoded as UTF-8 when valid, otherwise as Windows-1252.
func UnpackString(data []byte, width int) (string, []byte, Encoding, error) {
	size, rest, err := unpackLength(data, width)
	if err != nil {
		return "", data, "", err
	}
	if len(rest) < size {
		return "", data, "", short("string", size, len(rest))
	}

	text, enc, err := DecodeText(rest[:size])
	if err != nil {
		return "", data, "", err
	}

	return text, rest[size:], enc, nil
}

// DecodeText interprets raw as UTF-8, falling back to Windows-1252.
func DecodeText(raw []byte) (string, Encoding, error) {
	if utf8.Valid(raw) {
		return string(raw), UTF8, nil
	}

	out, err := charmap.Windows1252.NewDecoder().Bytes(raw)
	if err != nil {
		return "", "", &DecodeError{Field: "string", Reason: "not utf-8 or cp1252: " + err.Error()}
	}

	return string(out), CP1252, nil
}

// AppendString appends text to dst prefixed by its byte length in width bytes.
// The text is encoded with enc; an empty enc means UTF-8.
func AppendString(dst []byte, text string, width int, enc Encoding) ([]byte, error) {
	raw := []byte(text)
	if enc == CP1252 {
		encoded, err := charmap.Windows1252.NewEncoder().String(text)
		if err != nil {
			return dst, fmt.Errorf("encode %q as %s: %w", text, enc, err)
		}
		raw = []byte(encoded)
	}

	limit, err := maxLength(width)
	if err != nil {
		return dst, err
	}
	if uint64(len(raw)) > limit {
		return dst, fmt.Errorf("string of %d bytes does not fit a %d-byte length", len(raw), width)
	}

	switch width {
	case 1:
		dst = append(dst, byte(len(raw)))
	case 2:
		dst = binary.LittleEndian.AppendUint16(dst, uint16(len(raw)))
	case 4:
		dst = binary.LittleEndian.AppendUint32(dst, uint32(len(raw)))
	}

	return append(dst, raw...), nil
}

// UnpackCountedList reads a count stored in countWidth bytes, then calls parse that many
// times, threading the remainder through. The caller checks the final remainder.
func UnpackCountedList[T any](data []byte, countWidth int, parse func([]byte) (T, []byte, error)) ([]T, []byte, error) {
	count, rest, err := unpackLength(data, countWidth)
	if err != nil {
		return nil, data, err
	}

	items := make([]T, 0, min(count, len(rest)))
	for i := 0; i < count; i++ {
		item, next, err := parse(rest)
		if err != nil {
			return nil, data, fmt.Errorf("element %d of %d: %w", i, count, err)
		}
		items = append(items, item)
		rest = next
	}

	return items, rest, nil
}

func unpackLength(data []byte, width int) (int, []byte, error) {
	switch width {
	case 1:
		v, rest, err := UnpackFixed[uint8](data)
		return int(v), rest, err
	case 2:
		v, rest, err := UnpackFixed[uint16](data)
		return int(v), rest, err
	case 4:
		v, rest, err := UnpackFixed[uint32](data)
		if err != nil {
			return 0, data, err
		}
		if uint64(v) > math.MaxInt32 {
			return 0, data, &DecodeError{Field: "length", Reason: "length out of range"}
		}
		return int(v), rest, nil
	default:
		return 0, data, &DecodeError{Field: "length", Reason: fmt.Sprintf("unsupported width %d", width)}
	}
}

func maxLength(width int) (uint64, error) {
	switch width {
	case 1:
		return math.MaxUint8, nil
	case 2:
		return math.MaxUint16, nil
	case 4:
		return math.MaxUint32, nil
	default:
		return 0, &DecodeError{Field: "length", Reason: fmt.Sprintf("unsupported width %d", width)}
	}
}
