// Package store persists solution and difficult-task records as
// individually addressable JSON documents.
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"
)

// Receipt is the opaque proof the service returns for an accepted
// solution. Stored verbatim; its presence is what makes a record final.
type Receipt struct {
	Preimage  string `json:"preimage"`
	Timestamp string `json:"timestamp"`
	Signature string `json:"signature"`
}

// SolutionRecord is the durable state of one (wallet, challenge)
// attempt. Created when a nonce is found, rewritten on every submission
// attempt, never deleted: its existence on disk is the de-duplication
// signal the selector relies on.
type SolutionRecord struct {
	Wallet      string   `json:"wallet_address"`
	ChallengeID string   `json:"challenge_id"`
	Nonce       string   `json:"nonce"`
	FoundAt     string   `json:"found_at"`
	SubmittedAt string   `json:"submitted_at,omitempty"`
	Receipt     *Receipt `json:"crypto_receipt,omitempty"`
	Status      Status   `json:"status"`
	ErrorMsg    string   `json:"error_message,omitempty"`
	RetryCount  int      `json:"retry_count"`
	LastRetryAt string   `json:"last_retry_at,omitempty"`
}

// SolutionStore keeps one JSON file per (wallet, challenge) pair under
// a flat directory, the path derived deterministically from the key so
// existence checks never read file contents.
type SolutionStore struct {
	logger *zap.Logger
	dir    string
}

// NewSolutionStore creates the directory if needed.
func NewSolutionStore(logger *zap.Logger, dir string) (*SolutionStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create solutions directory: %w", err)
	}
	return &SolutionStore{logger: logger.Named("solutions"), dir: dir}, nil
}

// Path returns the record file for a pair. Challenge IDs may carry
// characters that are unsafe in file names; the mapping must stay
// stable across releases or dedup breaks.
func (s *SolutionStore) Path(wallet, challengeID string) string {
	clean := strings.ReplaceAll(strings.ReplaceAll(challengeID, "*", ""), "/", "_")
	return filepath.Join(s.dir, wallet+"_"+clean+".json")
}

// Exists is the selector's fast path: file presence alone means the
// pair was already attempted.
func (s *SolutionStore) Exists(wallet, challengeID string) bool {
	_, err := os.Stat(s.Path(wallet, challengeID))
	return err == nil
}

// Save rewrites the record document in place.
func (s *SolutionStore) Save(rec *SolutionRecord) error {
	data, err := sonic.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encode solution record: %w", err)
	}
	path := s.Path(rec.Wallet, rec.ChallengeID)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write solution record: %w", err)
	}
	s.logger.Debug("solution record written",
		zap.String("path", path), zap.String("status", string(rec.Status)))
	return nil
}

// Retryable scans the directory for records the retry sweep should
// consider: no receipt, a retryable status, and no terminal error text.
// Unreadable or foreign files are skipped, not fatal.
func (s *SolutionStore) Retryable() ([]SolutionRecord, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("scan solutions directory: %w", err)
	}

	var out []SolutionRecord
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			s.logger.Warn("unreadable solution record", zap.String("file", entry.Name()), zap.Error(err))
			continue
		}
		var rec SolutionRecord
		if err := sonic.Unmarshal(data, &rec); err != nil {
			s.logger.Warn("malformed solution record", zap.String("file", entry.Name()), zap.Error(err))
			continue
		}
		if rec.Receipt != nil || !rec.Status.Retryable() {
			continue
		}
		if rec.ErrorMsg != "" && TerminalErrorText(rec.ErrorMsg) {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// Timestamp is the record timestamp format: RFC3339 in UTC.
func Timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
