package store

import (
	"context"
	"errors"
	"sort"

	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/types"
)

// DefaultCapacity is the per-partition ceiling used when none is configured.
const DefaultCapacity = 50

var ErrUnknownPartition = errors.New("unknown partition")

// ClassificationStore keeps every known UID in at most one of the whitelist,
// blacklist and pending partitions. UIDs are normalized on the way in.
//
// Implementations do no locking of their own. Callers reach a store only
// through a guard.Handle, which serializes access across goroutines.
type ClassificationStore interface {
	Classify(ctx context.Context, uid string) (types.Classification, error)

	// AddToWhitelist and AddToBlacklist evict uid from the other partitions
	// and then insert it. They report false when the target partition is
	// full, unless bypassCapacity is set.
	AddToWhitelist(ctx context.Context, uid string, bypassCapacity bool) (bool, error)
	AddToBlacklist(ctx context.Context, uid string, bypassCapacity bool) (bool, error)

	// AddToPending reports true only for a UID with no classification at all.
	AddToPending(ctx context.Context, uid string) (bool, error)

	RemoveUID(ctx context.Context, uid string) error
	ClearPartition(ctx context.Context, p types.Classification) error
	FactoryReset(ctx context.Context) error

	// ReplaceAll empties every partition and loads the given lists, ignoring
	// capacity. It is all-or-nothing: on error the previous contents remain.
	ReplaceAll(ctx context.Context, whitelist, blacklist []string) error

	// ForEach visits each key of partition p once. fn must not call back
	// into the store.
	ForEach(ctx context.Context, p types.Classification, fn func(uid string) error) error

	// Counts returns the maintained counts, not a recount.
	Counts(ctx context.Context) (types.PartitionCounts, error)

	// VerifyCounts compares maintained counts against the stored keys.
	VerifyCounts(ctx context.Context) ([]CountMismatch, error)
}

// CountMismatch is reported when a maintained count disagrees with the
// number of stored keys.
type CountMismatch struct {
	Partition  types.Classification
	Maintained int
	Actual     int
}

// Replacement normalizes the lists handed to ReplaceAll. Empty keys and
// duplicates are dropped, and a UID on both lists ends up blacklisted.
// Both results are sorted.
func Replacement(whitelist, blacklist []string) (wl, bl []string) {
	black := make(map[string]struct{}, len(blacklist))
	for _, raw := range blacklist {
		if key := types.NormalizeUID(raw); key != "" {
			black[key] = struct{}{}
		}
	}
	white := make(map[string]struct{}, len(whitelist))
	for _, raw := range whitelist {
		key := types.NormalizeUID(raw)
		if key == "" {
			continue
		}
		if _, ok := black[key]; ok {
			continue
		}
		white[key] = struct{}{}
	}
	return sortedKeys(white), sortedKeys(black)
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
