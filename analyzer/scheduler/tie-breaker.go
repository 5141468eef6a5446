package scheduler

import (
	"math/rand/v2"
)

// Each pass draws from its own stream so that enabling one pass's
// perturbation does not change the other pass's choices.
const (
	gcmStream = uint64(0x67636d)
	lcmStream = uint64(0x6c636d)
)

// Heuristic choice point strategy.  Candidates are always presented in the
// deterministic preference order; index 0 is the production choice.
type TieBreaker interface {
	// Returns an index in [0, numCandidates).  numCandidates must be positive.
	Choose(numCandidates int) int

	IsRandomized() bool
}

type deterministicTieBreaker struct{}

func Deterministic() TieBreaker {
	return deterministicTieBreaker{}
}

func (deterministicTieBreaker) Choose(numCandidates int) int {
	if numCandidates <= 0 {
		panic("should never happen")
	}
	return 0
}

func (deterministicTieBreaker) IsRandomized() bool {
	return false
}

type seededTieBreaker struct {
	rand *rand.Rand
}

// The sequence of choices is fully determined by (seed, stream).
func NewSeededTieBreaker(seed int64, stream uint64) TieBreaker {
	return &seededTieBreaker{
		rand: rand.New(rand.NewPCG(uint64(seed), stream)),
	}
}

func (breaker *seededTieBreaker) Choose(numCandidates int) int {
	if numCandidates <= 0 {
		panic("should never happen")
	}

	if numCandidates == 1 {
		return 0
	}
	return breaker.rand.IntN(numCandidates)
}

func (breaker *seededTieBreaker) IsRandomized() bool {
	return true
}
