// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package kademlia

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/zeebo/errs"
)

// IDLength is the width, in bytes, of an identifier. 160 bits, matching
// the classic Kademlia SHA-1 key space.
const IDLength = 20

// IDErr is the class for all errors pertaining to identifier parsing.
var IDErr = errs.Class("identifier error")

// ID is an opaque, fixed-width identifier drawn from the same space as
// stored keys. It supports equality, a total (lexicographic) order, and
// XOR distance to another ID.
type ID [IDLength]byte

// ParseID decodes a 40-character hex string into an ID.
func ParseID(s string) (ID, error) {
	var id ID
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return id, IDErr.Wrap(err)
	}
	if len(decoded) != IDLength {
		return id, IDErr.New("wrong length: got %d bytes, want %d", len(decoded), IDLength)
	}
	copy(id[:], decoded)
	return id, nil
}

// NewRandomID returns a cryptographically random ID.
func NewRandomID() (ID, error) {
	var id ID
	if _, err := rand.Read(id[:]); err != nil {
		return id, IDErr.Wrap(err)
	}
	return id, nil
}

// String hex-encodes the ID.
func (id ID) String() string {
	return hex.EncodeToString(id[:])
}

// Equal reports whether id and other name the same identifier.
func (id ID) Equal(other ID) bool {
	return id == other
}

// Less defines a total order over IDs, lexicographic over the raw
// bytes. Distance ordering (sortByDistance, CloserThan) does not call
// it: distinct IDs are never equally close to a target, since XOR
// distance is a bijection (see Distance).
func (id ID) Less(other ID) bool {
	for i := 0; i < IDLength; i++ {
		if id[i] != other[i] {
			return id[i] < other[i]
		}
	}
	return false
}

// Distance is the XOR metric between two identifiers, represented as a
// same-width byte string so it can be compared byte-by-byte without
// materializing a big.Int.
type Distance [IDLength]byte

// Less reports whether d is strictly closer to target than other.
func (d Distance) Less(other Distance) bool {
	for i := 0; i < IDLength; i++ {
		if d[i] != other[i] {
			return d[i] < other[i]
		}
	}
	return false
}

// DistanceTo computes the XOR distance from id to target.
func (id ID) DistanceTo(target ID) Distance {
	var d Distance
	for i := 0; i < IDLength; i++ {
		d[i] = id[i] ^ target[i]
	}
	return d
}

// CloserThan reports whether id is closer to target than other is.
func (id ID) CloserThan(other, target ID) bool {
	return id.DistanceTo(target).Less(other.DistanceTo(target))
}

// PrefixLen returns the length, in bits, of the common prefix shared by
// id and target, equivalently the index of the highest set bit of their
// XOR distance, counted from the most significant bit. Used to select a
// routing-table bucket. An identical pair returns IDLength*8.
func (id ID) PrefixLen(target ID) int {
	d := id.DistanceTo(target)
	for i := 0; i < IDLength; i++ {
		if d[i] == 0 {
			continue
		}
		for bit := 0; bit < 8; bit++ {
			if d[i]&(0x80>>uint(bit)) != 0 {
				return i*8 + bit
			}
		}
	}
	return IDLength * 8
}
