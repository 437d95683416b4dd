// Package storetest holds behaviour tests shared by every
// store.ClassificationStore implementation.
package storetest

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/store"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/types"
)

// Factory builds an empty store with the given per-partition capacity.
type Factory func(t *testing.T, capacity int) store.ClassificationStore

// RunClassificationStore runs the shared suite against newStore.
func RunClassificationStore(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, newStore Factory)
	}{
		{"ClassifyUnknown", testClassifyUnknown},
		{"NormalizesKeys", testNormalizesKeys},
		{"MutualExclusivity", testMutualExclusivity},
		{"WhitelistEvictsPending", testWhitelistEvictsPending},
		{"IdempotentInsert", testIdempotentInsert},
		{"PendingFirstSightingOnly", testPendingFirstSightingOnly},
		{"CapacityRespected", testCapacityRespected},
		{"CapacityBypass", testCapacityBypass},
		{"PendingCapacity", testPendingCapacity},
		{"RemoveUID", testRemoveUID},
		{"ClearPartition", testClearPartition},
		{"FactoryReset", testFactoryReset},
		{"ReplaceAll", testReplaceAll},
		{"ForEachVisitsOnce", testForEachVisitsOnce},
		{"EmptyKeyRejected", testEmptyKeyRejected},
		{"VerifyCountsClean", testVerifyCountsClean},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) { tc.fn(t, newStore) })
	}
}

func counts(t *testing.T, s store.ClassificationStore) types.PartitionCounts {
	t.Helper()
	c, err := s.Counts(context.Background())
	require.NoError(t, err)
	return c
}

func classify(t *testing.T, s store.ClassificationStore, uid string) types.Classification {
	t.Helper()
	c, err := s.Classify(context.Background(), uid)
	require.NoError(t, err)
	return c
}

func testClassifyUnknown(t *testing.T, newStore Factory) {
	s := newStore(t, 10)
	assert.Equal(t, types.Unclassified, classify(t, s, "DEADBEEF"))
}

func testNormalizesKeys(t *testing.T, newStore Factory) {
	s := newStore(t, 10)
	ctx := context.Background()

	ok, err := s.AddToWhitelist(ctx, "de:ad:be:ef", false)
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, types.Whitelist, classify(t, s, "DEADBEEF"))
	assert.Equal(t, types.Whitelist, classify(t, s, "De-Ad-Be-Ef"))
	assert.Equal(t, 1, counts(t, s).Whitelist)
}

func testMutualExclusivity(t *testing.T, newStore Factory) {
	s := newStore(t, 10)
	ctx := context.Background()

	_, err := s.AddToWhitelist(ctx, "AABBCCDD", false)
	require.NoError(t, err)
	_, err = s.AddToBlacklist(ctx, "AABBCCDD", false)
	require.NoError(t, err)

	assert.Equal(t, types.Blacklist, classify(t, s, "AABBCCDD"))
	c := counts(t, s)
	assert.Equal(t, 0, c.Whitelist)
	assert.Equal(t, 1, c.Blacklist)
	assert.Equal(t, 0, c.Pending)

	var seen []string
	require.NoError(t, s.ForEach(ctx, types.Whitelist, func(uid string) error {
		seen = append(seen, uid)
		return nil
	}))
	assert.Empty(t, seen)
}

func testWhitelistEvictsPending(t *testing.T, newStore Factory) {
	s := newStore(t, 10)
	ctx := context.Background()

	added, err := s.AddToPending(ctx, "11223344")
	require.NoError(t, err)
	require.True(t, added)
	before := counts(t, s)

	ok, err := s.AddToWhitelist(ctx, "11223344", false)
	require.NoError(t, err)
	require.True(t, ok)

	after := counts(t, s)
	assert.Equal(t, before.Pending-1, after.Pending)
	assert.Equal(t, before.Whitelist+1, after.Whitelist)
	assert.Equal(t, types.Whitelist, classify(t, s, "11223344"))
}

func testIdempotentInsert(t *testing.T, newStore Factory) {
	s := newStore(t, 10)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := s.AddToWhitelist(ctx, "CAFEBABE", false)
		require.NoError(t, err)
		require.True(t, ok)
	}
	assert.Equal(t, 1, counts(t, s).Whitelist)
}

func testPendingFirstSightingOnly(t *testing.T, newStore Factory) {
	s := newStore(t, 10)
	ctx := context.Background()

	first, err := s.AddToPending(ctx, "DEADBEEF")
	require.NoError(t, err)
	assert.True(t, first)

	again, err := s.AddToPending(ctx, "deadbeef")
	require.NoError(t, err)
	assert.False(t, again)

	_, err = s.AddToBlacklist(ctx, "0BADCAFE", false)
	require.NoError(t, err)
	classified, err := s.AddToPending(ctx, "0BADCAFE")
	require.NoError(t, err)
	assert.False(t, classified)

	assert.Equal(t, 1, counts(t, s).Pending)
}

func testCapacityRespected(t *testing.T, newStore Factory) {
	s := newStore(t, 3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := s.AddToWhitelist(ctx, fmt.Sprintf("%08X", i), false)
		require.NoError(t, err)
		require.True(t, ok)
	}

	ok, err := s.AddToWhitelist(ctx, "FFFFFFFF", false)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 3, counts(t, s).Whitelist)
	assert.Equal(t, types.Unclassified, classify(t, s, "FFFFFFFF"))

	// Re-adding a present key still succeeds at capacity.
	ok, err = s.AddToWhitelist(ctx, "00000001", false)
	require.NoError(t, err)
	assert.True(t, ok)
}

func testCapacityBypass(t *testing.T, newStore Factory) {
	s := newStore(t, 2)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		ok, err := s.AddToBlacklist(ctx, fmt.Sprintf("%08X", i), true)
		require.NoError(t, err)
		require.True(t, ok)
	}
	assert.Equal(t, 5, counts(t, s).Blacklist)
}

func testPendingCapacity(t *testing.T, newStore Factory) {
	s := newStore(t, 1)
	ctx := context.Background()

	ok, err := s.AddToPending(ctx, "AAAAAAAA")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.AddToPending(ctx, "BBBBBBBB")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, counts(t, s).Pending)
}

func testRemoveUID(t *testing.T, newStore Factory) {
	s := newStore(t, 10)
	ctx := context.Background()

	_, err := s.AddToBlacklist(ctx, "12345678", false)
	require.NoError(t, err)
	require.NoError(t, s.RemoveUID(ctx, "12:34:56:78"))
	assert.Equal(t, types.Unclassified, classify(t, s, "12345678"))
	assert.Equal(t, 0, counts(t, s).Blacklist)

	// Absent key is a no-op.
	require.NoError(t, s.RemoveUID(ctx, "87654321"))

	// After removal the UID is a first sighting again.
	ok, err := s.AddToPending(ctx, "12345678")
	require.NoError(t, err)
	assert.True(t, ok)
}

func testClearPartition(t *testing.T, newStore Factory) {
	s := newStore(t, 10)
	ctx := context.Background()

	_, _ = s.AddToWhitelist(ctx, "AAAAAAAA", false)
	_, _ = s.AddToBlacklist(ctx, "BBBBBBBB", false)
	require.NoError(t, s.ClearPartition(ctx, types.Whitelist))

	c := counts(t, s)
	assert.Equal(t, 0, c.Whitelist)
	assert.Equal(t, 1, c.Blacklist)
	assert.Equal(t, types.Unclassified, classify(t, s, "AAAAAAAA"))

	assert.ErrorIs(t, s.ClearPartition(ctx, types.Unclassified), store.ErrUnknownPartition)
}

func testFactoryReset(t *testing.T, newStore Factory) {
	s := newStore(t, 10)
	ctx := context.Background()

	_, _ = s.AddToWhitelist(ctx, "AAAAAAAA", false)
	_, _ = s.AddToBlacklist(ctx, "BBBBBBBB", false)
	_, _ = s.AddToPending(ctx, "CCCCCCCC")
	require.NoError(t, s.FactoryReset(ctx))

	assert.Equal(t, types.PartitionCounts{}, counts(t, s))
	for _, uid := range []string{"AAAAAAAA", "BBBBBBBB", "CCCCCCCC"} {
		assert.Equal(t, types.Unclassified, classify(t, s, uid))
	}
}

func testReplaceAll(t *testing.T, newStore Factory) {
	s := newStore(t, 2)
	ctx := context.Background()
	_, _ = s.AddToWhitelist(ctx, "11111111", false)
	_, _ = s.AddToPending(ctx, "22222222")

	err := s.ReplaceAll(ctx,
		[]string{"aaaaaaaa", "BBBBBBBB", "CCCCCCCC", "AA:AA:AA:AA", "EEEEEEEE"},
		[]string{"DDDDDDDD", "EEEEEEEE"},
	)
	require.NoError(t, err)

	// Capacity is ignored, duplicates collapse, and blacklist wins.
	assert.Equal(t, types.PartitionCounts{Whitelist: 3, Blacklist: 2}, counts(t, s))
	assert.Equal(t, types.Unclassified, classify(t, s, "11111111"))
	assert.Equal(t, types.Unclassified, classify(t, s, "22222222"))
	assert.Equal(t, types.Whitelist, classify(t, s, "AAAAAAAA"))
	assert.Equal(t, types.Blacklist, classify(t, s, "EEEEEEEE"))

	mm, err := s.VerifyCounts(ctx)
	require.NoError(t, err)
	assert.Empty(t, mm)
}

func testForEachVisitsOnce(t *testing.T, newStore Factory) {
	s := newStore(t, 10)
	ctx := context.Background()

	want := []string{"0000000A", "0000000B", "0000000C"}
	for _, uid := range want {
		ok, err := s.AddToPending(ctx, uid)
		require.NoError(t, err)
		require.True(t, ok)
	}

	seen := map[string]int{}
	require.NoError(t, s.ForEach(ctx, types.Pending, func(uid string) error {
		seen[uid]++
		return nil
	}))
	assert.Len(t, seen, len(want))
	for _, uid := range want {
		assert.Equal(t, 1, seen[uid], uid)
	}
}

func testEmptyKeyRejected(t *testing.T, newStore Factory) {
	s := newStore(t, 10)
	ctx := context.Background()

	ok, err := s.AddToWhitelist(ctx, "zz-zz", false)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.AddToPending(ctx, "")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, types.PartitionCounts{}, counts(t, s))
}

func testVerifyCountsClean(t *testing.T, newStore Factory) {
	s := newStore(t, 10)
	ctx := context.Background()

	_, _ = s.AddToWhitelist(ctx, "AAAAAAAA", false)
	_, _ = s.AddToPending(ctx, "CCCCCCCC")
	_, _ = s.AddToBlacklist(ctx, "CCCCCCCC", false)

	mismatches, err := s.VerifyCounts(ctx)
	require.NoError(t, err)
	assert.Empty(t, mismatches)
}
