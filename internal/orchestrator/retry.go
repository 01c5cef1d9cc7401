package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/scavtools/scavminer/internal/scavenger"
	"github.com/scavtools/scavminer/internal/store"
)

const (
	// retryBackoff is the minimum gap between submission attempts for
	// one record.
	retryBackoff = time.Hour

	// maxRetries is the attempt budget before a record is abandoned.
	maxRetries = 10

	// interRetryDelay keeps one sweep from hammering the service.
	interRetryDelay = 500 * time.Millisecond
)

// sweepRetries re-drives every retryable record through the submission
// state machine. Runs once per cycle; terminal records are filtered out
// by the store before we ever see them.
func (o *Orchestrator) sweepRetries(ctx context.Context) {
	records, err := o.solutions.Retryable()
	if err != nil {
		o.logger.Warn("cannot scan for retryable solutions", zap.Error(err))
		return
	}
	if len(records) == 0 {
		return
	}

	processed := 0
	for i := range records {
		rec := &records[i]

		if !o.dueForRetry(rec) {
			continue
		}
		if processed > 0 {
			o.sleep(interRetryDelay)
		}
		processed++

		if !o.challengeStillOpen(ctx, rec.ChallengeID) {
			rec.Status = store.StatusChallengeClosed
			rec.ErrorMsg = "challenge no longer in active list"
			o.saveRetried(rec)
			continue
		}

		if rec.RetryCount >= maxRetries {
			rec.Status = store.StatusAbandoned
			o.saveRetried(rec)
			o.logger.Warn("abandoning solution after max retries",
				zap.String("challenge_id", rec.ChallengeID),
				zap.Int("retries", rec.RetryCount))
			continue
		}

		o.resubmit(ctx, rec)
	}

	if processed > 0 {
		o.logger.Info("retry sweep finished", zap.Int("processed", processed))
	}
}

// dueForRetry enforces the backoff: at least an hour since the last
// attempt, or since discovery for a record never retried. Records with
// unparsable timestamps are retried rather than stranded.
func (o *Orchestrator) dueForRetry(rec *store.SolutionRecord) bool {
	ref := rec.LastRetryAt
	if ref == "" {
		ref = rec.FoundAt
	}
	at, err := time.Parse(time.RFC3339, ref)
	if err != nil {
		return true
	}
	return o.now().Sub(at) >= retryBackoff
}

// challengeStillOpen re-fetches the current challenge: a different ID
// means ours has rotated out. A fetch failure assumes open; the next
// sweep will know better.
func (o *Orchestrator) challengeStillOpen(ctx context.Context, challengeID string) bool {
	current, err := o.service.FetchChallenge(ctx)
	if err != nil {
		return true
	}
	if current.ID != challengeID {
		return false
	}
	return current.Active(o.now())
}

func (o *Orchestrator) resubmit(ctx context.Context, rec *store.SolutionRecord) {
	nonce, err := strconv.ParseUint(rec.Nonce, 16, 64)
	if err != nil {
		o.logger.Error("solution record carries an invalid nonce",
			zap.String("challenge_id", rec.ChallengeID), zap.String("nonce", rec.Nonce))
		return
	}

	o.logger.Info("retrying submission",
		zap.String("challenge_id", rec.ChallengeID),
		zap.Int("attempt", rec.RetryCount+1))
	o.metrics.Retries.Inc()

	receipt, err := o.service.SubmitSolution(ctx, rec.Wallet, rec.ChallengeID, nonce)
	now := store.Timestamp(o.now())

	var rejection *scavenger.RejectionError
	switch {
	case err == nil:
		rec.Status = store.StatusSubmitted
		rec.Receipt = receipt
		rec.SubmittedAt = now
		rec.ErrorMsg = ""
		rec.RetryCount++
		rec.LastRetryAt = now
		o.totalSolutions.Add(1)
		o.logger.Info("retry succeeded", zap.String("challenge_id", rec.ChallengeID))

	case errors.As(err, &rejection):
		status := store.ClassifyRejection(rejection.Message)
		rec.ErrorMsg = rejection.Message
		if status == store.StatusFailed {
			rec.RetryCount++
			rec.LastRetryAt = now
			rec.Status = status
			if rec.RetryCount >= maxRetries {
				rec.Status = store.StatusAbandoned
			}
		} else {
			// duplicate or invalid_nonce: terminal, no attempt counting.
			rec.Status = status
		}
		o.logger.Warn("retry rejected",
			zap.String("challenge_id", rec.ChallengeID),
			zap.String("status", string(rec.Status)))

	default:
		rec.RetryCount++
		rec.LastRetryAt = now
		rec.ErrorMsg = fmt.Sprintf("Network error: %v", err)
		if rec.RetryCount >= maxRetries {
			rec.Status = store.StatusAbandoned
		}
		o.logger.Warn("retry transport failure",
			zap.String("challenge_id", rec.ChallengeID), zap.Error(err))
	}

	o.saveRetried(rec)
	o.metrics.Solutions.WithLabelValues(string(rec.Status)).Inc()
}

func (o *Orchestrator) saveRetried(rec *store.SolutionRecord) {
	if err := o.solutions.Save(rec); err != nil {
		o.logger.Error("cannot update solution record",
			zap.String("challenge_id", rec.ChallengeID), zap.Error(err))
	}
}
