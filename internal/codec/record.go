// Package codec implements the on-disk record format shared by every
// segment file. A record is length-prefixed and self-describing: a fixed
// 33-byte header carries a checksum, a tag distinguishing a Put from a
// Remove (tombstone), a write timestamp, an optional expiry, and the
// key/value lengths, followed by the key bytes and, for Put records, the
// value bytes.
//
// Integer widths are fixed at uint32 (lengths) and int64 (timestamps),
// little-endian, and must stay fixed for the life of a store directory —
// this mirrors the layout the pack's bitdb and aether-kv examples use for
// the same purpose.
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/zeebo/xxh3"
)

// Tag identifies which record variant a header describes.
type Tag byte

const (
	// TagPut marks a record that stores a key's value.
	TagPut Tag = 0x01
	// TagRemove marks a tombstone recording a key's deletion.
	TagRemove Tag = 0x02
)

const (
	checksumSize  = 8
	tagSize       = 1
	timestampSize = 8
	expiresAtSize = 8
	keyLenSize    = 4
	valLenSize    = 4

	// HeaderSize is the fixed width of every record header, regardless of
	// tag. Keeping it constant lets callers size buffers before decoding.
	HeaderSize = checksumSize + tagSize + timestampSize + expiresAtSize + keyLenSize + valLenSize
)

// ErrCorrupt reports a record that is truncated or fails its checksum. A
// truncated record yields an error wrapping both ErrCorrupt and the
// underlying read error; a checksum mismatch yields ErrCorrupt itself.
var ErrCorrupt = errors.New("codec: corrupt record")

// wrapCorrupt annotates a low-level read/checksum failure as ErrCorrupt
// while preserving the original error for errors.Is/Unwrap chains.
func wrapCorrupt(cause error) error {
	return fmt.Errorf("%w: %w", ErrCorrupt, cause)
}

// Record is one decoded log entry.
type Record struct {
	Tag       Tag
	Timestamp int64
	ExpiresAt int64
	Key       []byte
	Value     []byte
}

// IsRemove reports whether this record is a tombstone.
func (r *Record) IsRemove() bool { return r.Tag == TagRemove }

// EncodePut serializes a Put record for the given key/value, stamped with
// timestamp and an optional expiry (zero means no TTL).
func EncodePut(key, value []byte, timestamp, expiresAt int64) []byte {
	return encode(TagPut, key, value, timestamp, expiresAt)
}

// EncodeRemove serializes a tombstone record for key.
func EncodeRemove(key []byte, timestamp int64) []byte {
	return encode(TagRemove, key, nil, timestamp, 0)
}

func encode(tag Tag, key, value []byte, timestamp, expiresAt int64) []byte {
	total := HeaderSize + len(key) + len(value)
	buf := make([]byte, total)

	body := buf[checksumSize:]
	body[0] = byte(tag)
	body = body[tagSize:]

	binary.LittleEndian.PutUint64(body, uint64(timestamp))
	body = body[timestampSize:]

	binary.LittleEndian.PutUint64(body, uint64(expiresAt))
	body = body[expiresAtSize:]

	binary.LittleEndian.PutUint32(body, uint32(len(key)))
	body = body[keyLenSize:]

	binary.LittleEndian.PutUint32(body, uint32(len(value)))
	body = body[valLenSize:]

	copy(body, key)
	copy(body[len(key):], value)

	checksum := xxh3.Hash(buf[checksumSize:])
	binary.LittleEndian.PutUint64(buf[:checksumSize], checksum)

	return buf
}

// Decoded is the result of successfully decoding one record from a
// reader, plus the byte accounting the engine needs to index it without
// re-parsing: the record's total on-disk size and the offset of the value
// bytes relative to the start of the record.
type Decoded struct {
	Record        *Record
	Size          int64
	ValueRelOffset int64
}

// DecodeNext reads one record from r's current position, advancing it. It
// returns io.EOF when the reader is exhausted exactly at a record
// boundary (a clean end of segment), and an error wrapping ErrCorrupt when
// a record is truncated or fails its checksum.
func DecodeNext(r io.Reader) (*Decoded, error) {
	header := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		// A short read here means a partially written header: the segment
		// was truncated mid-record.
		return nil, wrapCorrupt(err)
	}

	checksum := binary.LittleEndian.Uint64(header[:checksumSize])
	rest := header[checksumSize:]

	tag := Tag(rest[0])
	rest = rest[tagSize:]

	timestamp := int64(binary.LittleEndian.Uint64(rest))
	rest = rest[timestampSize:]

	expiresAt := int64(binary.LittleEndian.Uint64(rest))
	rest = rest[expiresAtSize:]

	keyLen := binary.LittleEndian.Uint32(rest)
	rest = rest[keyLenSize:]

	valLen := binary.LittleEndian.Uint32(rest)

	body := make([]byte, int(keyLen)+int(valLen))
	if _, err := io.ReadFull(r, body); err != nil {
		// EOF/ErrUnexpectedEOF here means the key/value bytes were never
		// fully flushed — a torn tail record from an unclean shutdown.
		return nil, wrapCorrupt(err)
	}

	full := make([]byte, 0, len(header)+len(body))
	full = append(full, header...)
	full = append(full, body...)

	if computed := xxh3.Hash(full[checksumSize:]); computed != checksum {
		return nil, ErrCorrupt
	}

	key := body[:keyLen]
	var value []byte
	if tag == TagPut {
		value = body[keyLen:]
	}

	return &Decoded{
		Record: &Record{
			Tag:       tag,
			Timestamp: timestamp,
			ExpiresAt: expiresAt,
			Key:       key,
			Value:     value,
		},
		Size:           int64(len(full)),
		ValueRelOffset: int64(HeaderSize + int(keyLen)),
	}, nil
}
