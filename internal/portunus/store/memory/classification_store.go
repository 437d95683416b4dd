package memory

import (
	"context"
	"sort"

	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/store"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/types"
)

type partition struct {
	keys  map[string]struct{}
	count int
}

// ClassificationStore is a map-backed store.ClassificationStore for tests
// and dev runs. It is not persistent and does no locking of its own.
type ClassificationStore struct {
	capacity int
	parts    map[types.Classification]*partition
}

// NewClassificationStore returns an empty store; capacity <= 0 selects
// store.DefaultCapacity.
func NewClassificationStore(capacity int) *ClassificationStore {
	if capacity <= 0 {
		capacity = store.DefaultCapacity
	}
	s := &ClassificationStore{
		capacity: capacity,
		parts:    make(map[types.Classification]*partition, len(types.Partitions)),
	}
	for _, p := range types.Partitions {
		s.parts[p] = &partition{keys: make(map[string]struct{})}
	}
	return s
}

func (s *ClassificationStore) Classify(_ context.Context, uid string) (types.Classification, error) {
	return s.classify(types.NormalizeUID(uid)), nil
}

func (s *ClassificationStore) classify(key string) types.Classification {
	if key == "" {
		return types.Unclassified
	}
	for _, p := range types.Partitions {
		if _, ok := s.parts[p].keys[key]; ok {
			return p
		}
	}
	return types.Unclassified
}

func (s *ClassificationStore) AddToWhitelist(_ context.Context, uid string, bypassCapacity bool) (bool, error) {
	return s.addExclusive(types.NormalizeUID(uid), types.Whitelist, bypassCapacity), nil
}

func (s *ClassificationStore) AddToBlacklist(_ context.Context, uid string, bypassCapacity bool) (bool, error) {
	return s.addExclusive(types.NormalizeUID(uid), types.Blacklist, bypassCapacity), nil
}

func (s *ClassificationStore) addExclusive(key string, target types.Classification, bypassCapacity bool) bool {
	if key == "" {
		return false
	}
	for _, p := range types.Partitions {
		if p != target {
			s.evict(p, key)
		}
	}

	part := s.parts[target]
	if _, ok := part.keys[key]; ok {
		return true
	}
	if !bypassCapacity && part.count >= s.capacity {
		return false
	}
	part.keys[key] = struct{}{}
	part.count++
	return true
}

func (s *ClassificationStore) AddToPending(_ context.Context, uid string) (bool, error) {
	key := types.NormalizeUID(uid)
	if key == "" || s.classify(key) != types.Unclassified {
		return false, nil
	}
	part := s.parts[types.Pending]
	if part.count >= s.capacity {
		return false, nil
	}
	part.keys[key] = struct{}{}
	part.count++
	return true, nil
}

func (s *ClassificationStore) RemoveUID(_ context.Context, uid string) error {
	key := types.NormalizeUID(uid)
	for _, p := range types.Partitions {
		if s.evict(p, key) {
			return nil
		}
	}
	return nil
}

func (s *ClassificationStore) evict(p types.Classification, key string) bool {
	part := s.parts[p]
	if _, ok := part.keys[key]; !ok {
		return false
	}
	delete(part.keys, key)
	part.count--
	return true
}

func (s *ClassificationStore) ClearPartition(_ context.Context, p types.Classification) error {
	if !p.IsPartition() {
		return store.ErrUnknownPartition
	}
	s.parts[p] = &partition{keys: make(map[string]struct{})}
	return nil
}

func (s *ClassificationStore) FactoryReset(ctx context.Context) error {
	for _, p := range types.Partitions {
		if err := s.ClearPartition(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// ReplaceAll builds the new partitions aside and swaps them in, so a
// cancelled context leaves the store untouched.
func (s *ClassificationStore) ReplaceAll(ctx context.Context, whitelist, blacklist []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	wl, bl := store.Replacement(whitelist, blacklist)
	next := map[types.Classification]*partition{
		types.Whitelist: fill(wl),
		types.Blacklist: fill(bl),
		types.Pending:   {keys: make(map[string]struct{})},
	}
	s.parts = next
	return nil
}

func fill(keys []string) *partition {
	p := &partition{keys: make(map[string]struct{}, len(keys)), count: len(keys)}
	for _, k := range keys {
		p.keys[k] = struct{}{}
	}
	return p
}

// ForEach visits keys in sorted order so runs are reproducible.
func (s *ClassificationStore) ForEach(_ context.Context, p types.Classification, fn func(uid string) error) error {
	if !p.IsPartition() {
		return store.ErrUnknownPartition
	}
	keys := make([]string, 0, len(s.parts[p].keys))
	for k := range s.parts[p].keys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := fn(k); err != nil {
			return err
		}
	}
	return nil
}

func (s *ClassificationStore) Counts(_ context.Context) (types.PartitionCounts, error) {
	return types.PartitionCounts{
		Whitelist: s.parts[types.Whitelist].count,
		Blacklist: s.parts[types.Blacklist].count,
		Pending:   s.parts[types.Pending].count,
	}, nil
}

func (s *ClassificationStore) VerifyCounts(_ context.Context) ([]store.CountMismatch, error) {
	var out []store.CountMismatch
	for _, p := range types.Partitions {
		part := s.parts[p]
		if part.count != len(part.keys) {
			out = append(out, store.CountMismatch{Partition: p, Maintained: part.count, Actual: len(part.keys)})
		}
	}
	return out, nil
}
