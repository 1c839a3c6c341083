// Package encoding provides the fixed-width on-disk term representation
// (EncodedTerm) and pure, stateless helpers for packing and unpacking the
// numeric/boolean/date-time payloads that fit inline. It knows nothing
// about transactions, the dictionary, or hashing decisions — those live
// in internal/dictionary, which is the only caller that needs a store
// handle to resolve a hashed or quoted-triple term.
package encoding

import (
	"encoding/binary"
	"math"

	"github.com/zeebo/xxh3"
)

const (
	// MaxInlinePayloadSize is the number of payload bytes available after
	// the one-byte tag in an EncodedTerm.
	MaxInlinePayloadSize = 16

	// EncodedTermSize is the total fixed width of an encoded term: one
	// tag byte plus a 128-bit payload (inline value or content hash).
	EncodedTermSize = 1 + MaxInlinePayloadSize
)

// EncodedTerm is the fixed-width identifier every RDF term is reduced to
// before it is used as part of an index key. Byte 0 is a type tag; bytes
// 1-16 are either an inline-encoded value or a 128-bit content hash that
// the dictionary resolves against TableID2Str.
type EncodedTerm [EncodedTermSize]byte

// Tag returns the term's type tag.
func (e EncodedTerm) Tag() byte {
	return e[0]
}

// Payload returns the 16-byte payload following the tag.
func (e EncodedTerm) Payload() []byte {
	return e[1:]
}

// Hash128 computes a 128-bit xxh3 hash of b. The dictionary calls this
// with a per-store secret prepended so term hashes aren't predictable
// across stores.
func Hash128(b []byte) [16]byte {
	h := xxh3.Hash128(b)
	var out [16]byte
	binary.BigEndian.PutUint64(out[0:8], h.Hi)
	binary.BigEndian.PutUint64(out[8:16], h.Lo)
	return out
}

// PutHash writes tag and a 128-bit hash payload into e.
func PutHash(e *EncodedTerm, tag byte, hash [16]byte) {
	e[0] = tag
	copy(e[1:], hash[:])
}

// PutInline writes tag and an inline payload (at most
// MaxInlinePayloadSize bytes) into e, zero-padding the remainder.
// Reports false if payload does not fit inline.
func PutInline(e *EncodedTerm, tag byte, payload []byte) bool {
	if len(payload) > MaxInlinePayloadSize {
		return false
	}
	e[0] = tag
	n := copy(e[1:], payload)
	for i := 1 + n; i < EncodedTermSize; i++ {
		e[i] = 0
	}
	return true
}

// InlineBytes returns the inline payload up to the first zero byte.
// Inline payloads must not themselves contain an embedded zero byte;
// this matches the restriction on what PutInline/well-known prefix
// inlining ever stores inline (short ASCII-range IRI suffixes).
func InlineBytes(e EncodedTerm) []byte {
	end := 1
	for end < EncodedTermSize && e[end] != 0 {
		end++
	}
	return e[1:end]
}

// PutUint64 writes tag and a big-endian uint64 into e's first payload
// word, zeroing the rest.
func PutUint64(e *EncodedTerm, tag byte, v uint64) {
	e[0] = tag
	binary.BigEndian.PutUint64(e[1:9], v)
	for i := 9; i < EncodedTermSize; i++ {
		e[i] = 0
	}
}

// Uint64 reads e's first payload word as a big-endian uint64.
func Uint64(e EncodedTerm) uint64 {
	return binary.BigEndian.Uint64(e[1:9])
}

// PutInt64 writes tag and v's bit pattern into e's first payload word.
func PutInt64(e *EncodedTerm, tag byte, v int64) {
	PutUint64(e, tag, uint64(v)) // #nosec G115 - intentional bit-pattern conversion for binary encoding
}

// Int64 reads e's first payload word as a signed 64-bit integer.
func Int64(e EncodedTerm) int64 {
	return int64(Uint64(e)) // #nosec G115 - intentional bit-pattern conversion for binary decoding
}

// PutFloat64 writes tag and v's IEEE-754 bit pattern into e.
func PutFloat64(e *EncodedTerm, tag byte, v float64) {
	PutUint64(e, tag, math.Float64bits(v))
}

// Float64 reads e's first payload word as an IEEE-754 double.
func Float64(e EncodedTerm) float64 {
	return math.Float64frombits(Uint64(e))
}

// PutBool writes tag and a single boolean byte into e.
func PutBool(e *EncodedTerm, tag byte, v bool) {
	e[0] = tag
	if v {
		e[1] = 1
	} else {
		e[1] = 0
	}
	for i := 2; i < EncodedTermSize; i++ {
		e[i] = 0
	}
}

// Bool reads e's boolean payload byte.
func Bool(e EncodedTerm) bool {
	return e[1] != 0
}
