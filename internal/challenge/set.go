package challenge

import (
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Set is the live candidate list: unique by ID, pruned of challenges
// whose deadline is too close, and always sorted easiest-first. Only
// Refresh mutates it; the orchestrator is single-threaded so no lock is
// needed.
type Set struct {
	logger     *zap.Logger
	challenges []Challenge
}

// NewSet returns an empty candidate set.
func NewSet(logger *zap.Logger) *Set {
	return &Set{logger: logger.Named("challenges")}
}

// Len returns the number of live candidates.
func (s *Set) Len() int { return len(s.challenges) }

// Challenges exposes the ranked candidates, easiest first. Callers must
// not mutate the returned slice.
func (s *Set) Challenges() []Challenge { return s.challenges }

// Refresh inserts current if its ID is new, drops every challenge that
// is no longer safely active, and re-sorts by the selection comparator.
func (s *Set) Refresh(current Challenge, threads int, now time.Time) {
	known := false
	for i := range s.challenges {
		if s.challenges[i].ID == current.ID {
			known = true
			break
		}
	}
	if !known {
		s.logger.Info("new challenge discovered",
			zap.String("challenge_id", current.ID),
			zap.String("difficulty", current.Difficulty))
		s.challenges = append(s.challenges, current)
	}

	live := s.challenges[:0]
	for _, c := range s.challenges {
		if c.Active(now) {
			live = append(live, c)
			continue
		}
		s.logger.Info("challenge expiring, dropping from candidates",
			zap.String("challenge_id", c.ID),
			zap.String("deadline", c.Deadline))
	}
	s.challenges = live

	sort.SliceStable(s.challenges, func(i, j int) bool {
		return Compare(&s.challenges[i], &s.challenges[j], threads) < 0
	})
}

// Select returns the easiest challenge this wallet has not already
// attempted, or nil when every candidate has a record on disk.
func (s *Set) Select(wallet string, attempted func(wallet, challengeID string) bool) *Challenge {
	for i := range s.challenges {
		if !attempted(wallet, s.challenges[i].ID) {
			return &s.challenges[i]
		}
	}
	return nil
}

// Compare is the four-key selection order, a strict total order over
// distinct IDs:
//
//  1. required zero bits ascending (fewer constraints = easier)
//  2. leading zero bits descending (clustered constraints = easier)
//  3. deadline: below 6 threads prefer the newest challenge, at 6 or
//     more prefer the oldest (competition has thinned out there)
//  4. challenge ID ascending, the deterministic tiebreaker
//
// Deadlines are RFC3339 strings, so lexicographic order is
// chronological order.
func Compare(a, b *Challenge, threads int) int {
	if c := compareUint32(a.RequiredZeroBits(), b.RequiredZeroBits()); c != 0 {
		return c
	}
	if c := compareUint32(b.LeadingZeroBits(), a.LeadingZeroBits()); c != 0 {
		return c
	}
	var c int
	if threads < 6 {
		c = strings.Compare(b.Deadline, a.Deadline)
	} else {
		c = strings.Compare(a.Deadline, b.Deadline)
	}
	if c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}

func compareUint32(a, b uint32) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
