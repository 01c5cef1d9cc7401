// Package challenge models Scavenger Mine challenges and keeps the live
// candidate set ranked for selection.
package challenge

import (
	"math"
	"time"
)

// activeBuffer keeps one hour of slack before a deadline so a search is
// never started against a challenge it cannot finish in time.
const activeBuffer = time.Hour

// Challenge is one time-boxed task issued by the service. Immutable
// once fetched; identity is by ID.
type Challenge struct {
	ID           string `json:"challenge_id"`
	Difficulty   string `json:"difficulty"`
	TableKey     string `json:"no_pre_mine"`
	Deadline     string `json:"latest_submission"`
	DeadlineHour string `json:"no_pre_mine_hour"`
}

// Active reports whether the challenge deadline is still more than the
// safety buffer away. Unparsable deadlines fail open: the service, not
// the miner, is the authority on whether a submission lands.
func (c *Challenge) Active(now time.Time) bool {
	deadline, err := time.Parse(time.RFC3339, c.Deadline)
	if err != nil {
		return true
	}
	return now.Add(activeBuffer).Before(deadline)
}

// RequiredZeroBits ranks difficulty for selection. A difficulty that
// does not decode ranks hardest so it sinks to the bottom of the set.
func (c *Challenge) RequiredZeroBits() uint32 {
	m, err := ParseMask(c.Difficulty)
	if err != nil {
		return math.MaxUint32
	}
	return m.RequiredZeroBits()
}

// LeadingZeroBits ranks constraint clustering for selection. An
// undecodable difficulty counts as zero.
func (c *Challenge) LeadingZeroBits() uint32 {
	m, err := ParseMask(c.Difficulty)
	if err != nil {
		return 0
	}
	return m.LeadingZeroBits()
}

// PreimageSuffix builds the fixed portion of the hash input for one
// wallet: everything after the nonce, concatenated in submission order.
// Computed once per task, never in the nonce loop.
func (c *Challenge) PreimageSuffix(wallet string) []byte {
	suffix := make([]byte, 0,
		len(wallet)+len(c.ID)+len(c.Difficulty)+len(c.TableKey)+len(c.Deadline)+len(c.DeadlineHour))
	suffix = append(suffix, wallet...)
	suffix = append(suffix, c.ID...)
	suffix = append(suffix, c.Difficulty...)
	suffix = append(suffix, c.TableKey...)
	suffix = append(suffix, c.Deadline...)
	suffix = append(suffix, c.DeadlineHour...)
	return suffix
}
