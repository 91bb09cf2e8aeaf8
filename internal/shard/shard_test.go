package shard

import (
	"strconv"
	"strings"
	"testing"
)

func TestRelationPK_SingleShard(t *testing.T) {
	tests := []struct {
		ownerRef  string
		memberRef string
		expected  string
	}{
		{"order#1", "item#1", "order#1#00"},
		{"order#1", "item#2", "order#1#00"},
		{"order#2", "item#1", "order#2#00"},
		{"shelf#9", "book#44", "shelf#9#00"},
	}

	for _, tt := range tests {
		if got := RelationPK(tt.ownerRef, tt.memberRef, 1); got != tt.expected {
			t.Errorf("RelationPK(%q, %q, 1) = %q, want %q", tt.ownerRef, tt.memberRef, got, tt.expected)
		}
	}
}

func TestRelationPK_NonPositiveShards(t *testing.T) {
	for _, n := range []int{0, -1} {
		if got := RelationPK("order#1", "item#1", n); got != "order#1#00" {
			t.Errorf("numShards=%d: expected 'order#1#00', got %q", n, got)
		}
	}
}

func TestRelationPK_Spread(t *testing.T) {
	owner := "order#1"
	seen := make(map[string]int)
	for i := 0; i < 1000; i++ {
		pk := RelationPK(owner, "item#"+strconv.Itoa(i), 64)
		if !strings.HasPrefix(pk, owner+"#") {
			t.Fatalf("expected prefix %q#, got %q", owner, pk)
		}
		seen[pk[len(owner)+1:]]++
	}

	if len(seen) < 32 {
		t.Errorf("expected members spread over most of 64 shards, got %d", len(seen))
	}
	for suffix := range seen {
		n, err := strconv.ParseUint(suffix, 16, 8)
		if err != nil || len(suffix) != 2 {
			t.Errorf("expected two-digit hex suffix, got %q", suffix)
		}
		if n >= 64 {
			t.Errorf("expected shard below 64, got %d", n)
		}
	}
}

func TestRelationPK_Deterministic(t *testing.T) {
	first := RelationPK("order#1", "item#7", 16)
	for i := 0; i < 100; i++ {
		if got := RelationPK("order#1", "item#7", 16); got != first {
			t.Fatalf("expected %q, got %q on iteration %d", first, got, i)
		}
	}
}

func TestRelationPK_ClampsShardCount(t *testing.T) {
	for i := 0; i < 200; i++ {
		pk := RelationPK("o#1", "m#"+strconv.Itoa(i), 100000)
		if len(pk) != len("o#1#")+2 {
			t.Fatalf("expected two-digit suffix, got %q", pk)
		}
	}
}

func TestAll(t *testing.T) {
	var keys []string
	for i, pk := range All("order#1", 3) {
		if pk != PK("order#1", i) {
			t.Errorf("expected %q at %d, got %q", PK("order#1", i), i, pk)
		}
		keys = append(keys, pk)
	}
	if strings.Join(keys, ",") != "order#1#00,order#1#01,order#1#02" {
		t.Errorf("unexpected keys %v", keys)
	}

	n := 0
	for range All("order#1", 0) {
		n++
	}
	if n != 1 {
		t.Errorf("expected 1 shard for numShards=0, got %d", n)
	}
}

func TestAll_CoversRelationPK(t *testing.T) {
	all := make(map[string]bool)
	for _, pk := range All("order#1", 8) {
		all[pk] = true
	}
	for i := 0; i < 50; i++ {
		if pk := RelationPK("order#1", "item#"+strconv.Itoa(i), 8); !all[pk] {
			t.Errorf("RelationPK produced %q outside All", pk)
		}
	}
}

func BenchmarkRelationPK_SingleShard(b *testing.B) {
	for i := 0; i < b.N; i++ {
		RelationPK("order#1024", "item#8812", 1)
	}
}

func BenchmarkRelationPK_256Shards(b *testing.B) {
	for i := 0; i < b.N; i++ {
		RelationPK("order#1024", "item#8812", 256)
	}
}
