package memory

import "github.com/BrandonDHaskell/Portunus/controller/internal/portunus/types"

// SetCount overwrites a maintained count without touching the keys.
func (s *ClassificationStore) SetCount(p types.Classification, n int) {
	s.parts[p].count = n
}
