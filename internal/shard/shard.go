// Package shard spreads ownership rows for a single owner across partitions.
package shard

import (
	"fmt"
	"hash/fnv"
	"iter"
)

// MaxShards is the largest shard count a two-digit hex suffix can address.
const MaxShards = 256

// PK returns the partition key of shard n for ownerRef.
func PK(ownerRef string, n int) string {
	return fmt.Sprintf("%s#%02x", ownerRef, n)
}

// RelationPK picks the partition for the ownership row linking memberRef to
// ownerRef. With numShards <= 1 every member lands in shard 00.
func RelationPK(ownerRef, memberRef string, numShards int) string {
	if numShards <= 1 {
		return PK(ownerRef, 0)
	}
	if numShards > MaxShards {
		numShards = MaxShards
	}
	h := fnv.New32a()
	h.Write([]byte(memberRef))
	return PK(ownerRef, int(h.Sum32()%uint32(numShards)))
}

// All yields every partition key of ownerRef, in shard order.
func All(ownerRef string, numShards int) iter.Seq2[int, string] {
	if numShards < 1 {
		numShards = 1
	}
	if numShards > MaxShards {
		numShards = MaxShards
	}
	return func(yield func(int, string) bool) {
		for i := 0; i < numShards; i++ {
			if !yield(i, PK(ownerRef, i)) {
				return
			}
		}
	}
}
