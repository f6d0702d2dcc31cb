package store

import (
	"math/rand/v2"

	"github.com/google/uuid"

	"classboard/pkg/types"
)

// newID issues a globally unique identifier for a new entity.
func newID() string {
	return uuid.NewString()
}

// newClassCode samples a 6-character join code uniformly from the
// unambiguous alphabet, rejection-sampling from scratch until the code is
// unused. Codes are never reclaimed during a process run, so uniqueness
// holds against every code ever issued, not just live classes.
//
// Must be called with the store write lock held: uniqueness is checked
// against the live code index.
func (s *Store) newClassCode() string {
	for {
		b := make([]byte, types.CodeLength)
		for i := range b {
			b[i] = types.CodeAlphabet[rand.IntN(len(types.CodeAlphabet))]
		}
		code := string(b)
		if _, taken := s.codeToClass[code]; !taken {
			return code
		}
	}
}
