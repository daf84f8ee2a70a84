// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package kademlia

// Alpha is the initial query parallelism used by the start phase.
const Alpha = 3

// K is the bucket width and frontier size.
const K = 7

// MaxRetries is the number of retransmissions the wait loop allows a
// single peer before evicting it from this lookup.
const MaxRetries = 1
