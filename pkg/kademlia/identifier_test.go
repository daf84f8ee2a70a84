// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package kademlia

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func idFromByte(b byte) ID {
	var id ID
	id[IDLength-1] = b
	return id
}

func TestParseID_RoundTrip(t *testing.T) {
	want, err := NewRandomID()
	require.NoError(t, err)

	got, err := ParseID(want.String())
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestParseID_WrongLength(t *testing.T) {
	_, err := ParseID("ab")
	assert.Error(t, err)
}

func TestParseID_BadHex(t *testing.T) {
	_, err := ParseID("not-hex-at-all-not-hex-at-all-not-hex--")
	assert.Error(t, err)
}

func TestID_Equal(t *testing.T) {
	a := idFromByte(1)
	b := idFromByte(1)
	c := idFromByte(2)
	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
}

func TestID_CloserThan(t *testing.T) {
	target := idFromByte(8)
	near := idFromByte(9)  // distance 1
	far := idFromByte(12)  // distance 4
	assert.True(t, near.CloserThan(far, target))
	assert.False(t, far.CloserThan(near, target))
}

func TestID_PrefixLen(t *testing.T) {
	a := idFromByte(0b0000_0000)
	b := idFromByte(0b0000_0001)
	// They differ only in the very last bit of the last byte.
	assert.Equal(t, IDLength*8-1, a.PrefixLen(b))
	assert.Equal(t, IDLength*8, a.PrefixLen(a))
}

func TestDistance_Less(t *testing.T) {
	target := idFromByte(0)
	near := idFromByte(1)
	far := idFromByte(2)
	assert.True(t, near.DistanceTo(target).Less(far.DistanceTo(target)))
}
