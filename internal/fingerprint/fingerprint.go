// Package fingerprint computes cheap change fingerprints over canvas content.
// Fingerprints are an inequality filter only: equal content always hashes
// equal, differing content almost always differs.
package fingerprint

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/cespare/xxhash/v2"

	"github.com/fpang/drawfast/internal/canvas"
)

// Fingerprint is a 64-bit digest of canvas content.
type Fingerprint uint64

// String formats the fingerprint as 16 hex digits.
func (f Fingerprint) String() string {
	return fmt.Sprintf("%016x", uint64(f))
}

// Hash digests the serializable content of elements in the given order.
func Hash(elements []canvas.Element) Fingerprint {
	h := xxhash.New()
	enc := json.NewEncoder(h)
	for _, el := range elements {
		// Element has no channels or funcs, so encoding cannot fail.
		_ = enc.Encode(el)
	}
	return Fingerprint(h.Sum64())
}

// Builder accumulates a fingerprint over heterogeneous inputs.
type Builder struct {
	d   *xxhash.Digest
	enc *json.Encoder
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder {
	d := xxhash.New()
	return &Builder{d: d, enc: json.NewEncoder(d)}
}

// Elements adds elements to the digest.
func (b *Builder) Elements(elements []canvas.Element) *Builder {
	for _, el := range elements {
		_ = b.enc.Encode(el)
	}
	return b
}

// Value adds any JSON-serializable value to the digest.
func (b *Builder) Value(v any) *Builder {
	_ = b.enc.Encode(v)
	return b
}

// String adds a string to the digest, length-prefixed so that adjacent
// strings cannot run together.
func (b *Builder) String(s string) *Builder {
	_, _ = b.d.WriteString(strconv.Itoa(len(s)))
	_, _ = b.d.WriteString(":")
	_, _ = b.d.WriteString(s)
	return b
}

// Sum returns the fingerprint of everything added so far.
func (b *Builder) Sum() Fingerprint {
	return Fingerprint(b.d.Sum64())
}
