// Package orchestrator drives the mining loop: pick a wallet, pick the
// best open challenge, search, submit, retry. One task at a time; a
// failed task never takes the loop down.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/scavtools/scavminer/internal/ashmaize"
	"github.com/scavtools/scavminer/internal/challenge"
	"github.com/scavtools/scavminer/internal/config"
	"github.com/scavtools/scavminer/internal/metrics"
	"github.com/scavtools/scavminer/internal/miner"
	"github.com/scavtools/scavminer/internal/scavenger"
	"github.com/scavtools/scavminer/internal/store"
)

const (
	refreshInterval = 5 * time.Minute
	cycleDelay      = 2 * time.Second
	idleDelay       = 60 * time.Second
	errorDelay      = 30 * time.Second
)

// ChallengeService is the remote side the orchestrator depends on.
type ChallengeService interface {
	FetchChallenge(ctx context.Context) (challenge.Challenge, error)
	SubmitSolution(ctx context.Context, wallet, challengeID string, nonce uint64) (*store.Receipt, error)
}

// SearchEngine runs one nonce search to completion.
type SearchEngine interface {
	Search(task miner.Task) miner.Result
}

// TableSource yields the shared table for a key, cached or freshly built.
type TableSource interface {
	GetOrBuild(key string) (*ashmaize.ROM, error)
}

// WalletSource rotates payout addresses.
type WalletSource interface {
	Next() string
	Count() int
}

// Orchestrator owns the per-session state. Single-threaded by design:
// the search call fans out internally, everything else here runs on
// one goroutine, so the challenge set and stores need no locks. The
// status listener is the one outside reader; everything it sees is
// either immutable after New or an atomic.
type Orchestrator struct {
	logger    *zap.Logger
	cfg       *config.Config
	service   ChallengeService
	engine    SearchEngine
	tables    TableSource
	wallets   WalletSource
	solutions *store.SolutionStore
	difficult *store.DifficultStore
	metrics   *metrics.Metrics

	set       *challenge.Set
	threads   int
	maxHashes uint64
	minerID   string

	lastRefresh  time.Time
	sessionStart time.Time

	// Read by status handler goroutines while the loop writes them.
	totalSolutions atomic.Uint64
	candidates     atomic.Int64

	// Injected for tests.
	now   func() time.Time
	sleep func(time.Duration)
}

// New assembles an orchestrator. threads is the already-sized worker
// count; it also parameterizes challenge ranking.
func New(logger *zap.Logger, cfg *config.Config, service ChallengeService, engine SearchEngine,
	tables TableSource, wallets WalletSource, solutions *store.SolutionStore,
	difficult *store.DifficultStore, m *metrics.Metrics, threads int) *Orchestrator {

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	return &Orchestrator{
		logger:    logger.Named("orchestrator"),
		cfg:       cfg,
		service:   service,
		engine:    engine,
		tables:    tables,
		wallets:   wallets,
		solutions: solutions,
		difficult: difficult,
		metrics:   m,
		set:          challenge.NewSet(logger),
		threads:      threads,
		maxHashes:    cfg.MaxHashes(),
		minerID:      fmt.Sprintf("scavminer-%s-%s", hostname, uuid.NewString()[:8]),
		sessionStart: time.Now(),
		now:          time.Now,
		sleep:        time.Sleep,
	}
}

// MinerID identifies this process in logs and /status.
func (o *Orchestrator) MinerID() string { return o.minerID }

// Status is the /status document. The metrics server calls this from
// its handler goroutines, so it only touches fields that are immutable
// after New plus the atomic counters.
func (o *Orchestrator) Status() any {
	return map[string]any{
		"miner_id":        o.minerID,
		"wallets":         o.wallets.Count(),
		"challenges":      o.candidates.Load(),
		"threads":         o.threads,
		"total_solutions": o.totalSolutions.Load(),
		"uptime_seconds":  uint64(o.now().Sub(o.sessionStart).Seconds()),
	}
}

// Run loops mining cycles until the context is cancelled. Cancellation
// is the normal way to stop a miner, so it is not reported as an error.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.Info("miner starting",
		zap.String("miner_id", o.minerID),
		zap.Int("wallets", o.wallets.Count()),
		zap.Int("threads", o.threads),
		zap.Uint64("hash_ceiling", o.maxHashes),
		zap.Int("known_difficult_pairs", o.difficult.Len()))

	for {
		if ctx.Err() != nil {
			o.logger.Info("miner stopping",
				zap.Uint64("total_solutions", o.totalSolutions.Load()))
			return nil
		}
		o.runCycle(ctx)
	}
}

// runCycle is one pass: refresh, select, search, record, retry sweep,
// stats. Every failure path logs and returns; nothing propagates.
func (o *Orchestrator) runCycle(ctx context.Context) {
	if o.set.Len() == 0 || o.now().Sub(o.lastRefresh) > refreshInterval {
		if err := o.refreshChallenges(ctx); err != nil {
			o.logger.Warn("challenge refresh failed", zap.Error(err))
			if o.set.Len() == 0 {
				o.sleep(errorDelay)
				return
			}
		}
	}

	wallet := o.wallets.Next()

	ch := o.set.Select(wallet, o.solutions.Exists)
	if ch == nil {
		// Everything attempted for this wallet; a forced refresh may
		// surface a challenge we have not seen yet.
		if err := o.refreshChallenges(ctx); err != nil {
			o.logger.Warn("forced refresh failed", zap.Error(err))
			o.sleep(errorDelay)
			return
		}
		if ch = o.set.Select(wallet, o.solutions.Exists); ch == nil {
			o.logger.Info("no open challenge left for wallet, idling",
				zap.String("wallet", wallet))
			o.sleep(idleDelay)
			return
		}
	}

	if o.difficult.IsDifficult(wallet, ch.ID) {
		o.logger.Info("skipping pair marked too difficult",
			zap.String("wallet", wallet), zap.String("challenge_id", ch.ID))
		return
	}

	o.logger.Info("mining task selected",
		zap.String("wallet", wallet),
		zap.String("challenge_id", ch.ID),
		zap.String("difficulty", ch.Difficulty))

	rom, err := o.tables.GetOrBuild(ch.TableKey)
	if err != nil {
		o.logger.Error("table unavailable", zap.String("challenge_id", ch.ID), zap.Error(err))
		o.sleep(errorDelay)
		return
	}

	res := o.engine.Search(miner.Task{
		Wallet:      wallet,
		Challenge:   *ch,
		ROM:         rom,
		Threads:     o.threads,
		HashCeiling: o.maxHashes,
	})
	o.observeSearch(res)

	switch res.Kind {
	case miner.Found:
		o.submitFound(ctx, wallet, ch, res)
	case miner.TooHard:
		o.markDifficult(wallet, ch.ID, res)
	case miner.NotFound:
		o.logger.Warn("search ended without a solution",
			zap.String("challenge_id", ch.ID))
	}

	o.sweepRetries(ctx)

	o.metrics.Cycles.Inc()
	o.logSessionStats()
	o.sleep(cycleDelay)
}

func (o *Orchestrator) refreshChallenges(ctx context.Context) error {
	current, err := o.service.FetchChallenge(ctx)
	if err != nil {
		return err
	}
	o.set.Refresh(current, o.threads, o.now())
	o.candidates.Store(int64(o.set.Len()))
	o.lastRefresh = o.now()
	o.logger.Info("challenge set refreshed", zap.Int("candidates", o.set.Len()))
	return nil
}

// submitFound submits right away and only then persists, so the first
// durable state of the record already reflects the submission outcome.
func (o *Orchestrator) submitFound(ctx context.Context, wallet string, ch *challenge.Challenge, res miner.Result) {
	o.logger.Info("solution found",
		zap.String("challenge_id", ch.ID),
		zap.String("nonce", miner.NonceHex(res.Nonce)),
		zap.Duration("elapsed", res.Elapsed),
		zap.String("hashes", humanize.Comma(int64(res.Hashes))))

	rec := &store.SolutionRecord{
		Wallet:      wallet,
		ChallengeID: ch.ID,
		Nonce:       miner.NonceHex(res.Nonce),
		FoundAt:     store.Timestamp(o.now()),
	}

	receipt, err := o.service.SubmitSolution(ctx, wallet, ch.ID, res.Nonce)
	var rejection *scavenger.RejectionError
	switch {
	case err == nil:
		rec.Status = store.StatusSubmitted
		rec.Receipt = receipt
		rec.SubmittedAt = store.Timestamp(o.now())
		o.totalSolutions.Add(1)
		o.logger.Info("solution submitted", zap.String("challenge_id", ch.ID))
	case errors.As(err, &rejection):
		rec.Status = store.ClassifyRejection(rejection.Message)
		rec.ErrorMsg = rejection.Message
		rec.SubmittedAt = store.Timestamp(o.now())
		o.logger.Warn("submission rejected",
			zap.String("challenge_id", ch.ID),
			zap.String("status", string(rec.Status)),
			zap.String("error", rejection.Message))
	default:
		rec.Status = store.StatusNetworkError
		rec.ErrorMsg = fmt.Sprintf("Network error: %v", err)
		o.logger.Warn("submission transport failure, will retry later",
			zap.String("challenge_id", ch.ID), zap.Error(err))
	}

	if err := o.solutions.Save(rec); err != nil {
		o.logger.Error("cannot persist solution record", zap.Error(err))
	}
	o.metrics.Solutions.WithLabelValues(string(rec.Status)).Inc()
}

func (o *Orchestrator) markDifficult(wallet, challengeID string, res miner.Result) {
	o.logger.Warn("task too difficult, adding to skip list",
		zap.String("wallet", wallet),
		zap.String("challenge_id", challengeID),
		zap.Uint64("hashes", res.Hashes),
		zap.Duration("elapsed", res.Elapsed))

	err := o.difficult.Upsert(store.DifficultTask{
		Wallet:       wallet,
		ChallengeID:  challengeID,
		MarkedAt:     store.Timestamp(o.now()),
		TotalHashes:  res.Hashes,
		DurationSecs: uint64(res.Elapsed.Seconds()),
	})
	if err != nil {
		o.logger.Error("cannot persist difficult task", zap.Error(err))
	}
}

func (o *Orchestrator) observeSearch(res miner.Result) {
	o.metrics.HashesTotal.Add(float64(res.Hashes))
	o.metrics.Searches.WithLabelValues(res.Kind.String()).Inc()
	if secs := res.Elapsed.Seconds(); secs > 0 {
		o.metrics.HashRate.Set(float64(res.Hashes) / secs)
	}
}

func (o *Orchestrator) logSessionStats() {
	uptime := o.now().Sub(o.sessionStart)
	total := o.totalSolutions.Load()
	fields := []zap.Field{
		zap.Uint64("total_solutions", total),
		zap.Duration("uptime", uptime),
	}
	if total > 0 {
		avg := uptime / time.Duration(total)
		fields = append(fields, zap.Duration("avg_per_solution", avg))
	}
	o.logger.Info("session statistics", fields...)
}
