package store

import (
	"fmt"
	"os"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"
)

// DifficultTask marks a (wallet, challenge) pair whose search crossed
// the soft hash ceiling. The orchestrator skips marked pairs forever;
// the file has to be cleared externally to re-enable them.
type DifficultTask struct {
	Wallet       string `json:"wallet_address"`
	ChallengeID  string `json:"challenge_id"`
	MarkedAt     string `json:"marked_at"`
	TotalHashes  uint64 `json:"total_hashes"`
	DurationSecs uint64 `json:"mining_duration_secs"`
}

// DifficultStore holds the skip list in memory, backed by a single
// JSON array file.
type DifficultStore struct {
	logger *zap.Logger
	path   string
	tasks  []DifficultTask
}

// NewDifficultStore loads the existing skip list. A missing or
// malformed file starts empty rather than failing startup.
func NewDifficultStore(logger *zap.Logger, path string) *DifficultStore {
	s := &DifficultStore{logger: logger.Named("difficult"), path: path}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("cannot read difficult task file", zap.Error(err))
		}
		return s
	}
	if err := sonic.Unmarshal(data, &s.tasks); err != nil {
		s.logger.Warn("malformed difficult task file, starting empty", zap.Error(err))
		s.tasks = nil
	}
	return s
}

// Len returns the number of marked pairs.
func (s *DifficultStore) Len() int { return len(s.tasks) }

// IsDifficult reports whether the pair is on the skip list.
func (s *DifficultStore) IsDifficult(wallet, challengeID string) bool {
	for i := range s.tasks {
		if s.tasks[i].Wallet == wallet && s.tasks[i].ChallengeID == challengeID {
			return true
		}
	}
	return false
}

// Upsert replaces any existing entry for the same pair and persists the
// whole list.
func (s *DifficultStore) Upsert(task DifficultTask) error {
	replaced := false
	for i := range s.tasks {
		if s.tasks[i].Wallet == task.Wallet && s.tasks[i].ChallengeID == task.ChallengeID {
			s.tasks[i] = task
			replaced = true
			break
		}
	}
	if !replaced {
		s.tasks = append(s.tasks, task)
	}

	data, err := sonic.MarshalIndent(s.tasks, "", "  ")
	if err != nil {
		return fmt.Errorf("encode difficult tasks: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("write difficult tasks: %w", err)
	}
	return nil
}
