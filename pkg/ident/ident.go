package ident

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"sort"

	"github.com/multiformats/go-multihash"
)

// Identifiable is anything with a canonical byte form. Two values with the same
// Identity are the same value.
type Identifiable interface {
	Identity() []byte
}

// AddressWriter builds a canonical, length prefixed byte representation of a value.
type AddressWriter struct {
	buf []byte
}

func NewAddressWriter() *AddressWriter {
	return &AddressWriter{
		buf: make([]byte, 0),
	}
}

func (w *AddressWriter) MarshalBytes(v []byte) {
	w.MarshalInt64(int64(len(v)))
	w.buf = append(w.buf, v...)
}

func (w *AddressWriter) MarshalString(v string) {
	w.MarshalInt64(int64(len(v)))
	w.buf = append(w.buf, v...)
}

func (w *AddressWriter) MarshalInt64(v int64) {
	w.buf = binary.BigEndian.AppendUint64(w.buf, uint64(v))
}

func (w *AddressWriter) MarshalStringMap(v map[string]string) {
	w.MarshalInt64(int64(len(v)))
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		w.MarshalString(k)
		w.MarshalString(v[k])
	}
}

// MarshalIdentifiable writes the identity of a nested value.
func (w *AddressWriter) MarshalIdentifiable(v Identifiable) {
	w.MarshalBytes(v.Identity())
}

func (w *AddressWriter) Identity() []byte {
	return w.buf
}

// ContentAddress returns the hex encoded sha256 of the entity identity.
func ContentAddress(entity Identifiable) string {
	h := sha256.Sum256(entity.Identity())
	return hex.EncodeToString(h[:])
}

// Hash returns the SHA2-256 multihash of the entity identity.
func Hash(entity Identifiable) ([]byte, error) {
	return multihash.Sum(entity.Identity(), multihash.SHA2_256, -1)
}

// ValidHash reports whether b decodes as a SHA2-256 multihash.
func ValidHash(b []byte) bool {
	decoded, err := multihash.Decode(b)
	if err != nil {
		return false
	}
	return decoded.Code == multihash.SHA2_256 && decoded.Length == sha256.Size
}
