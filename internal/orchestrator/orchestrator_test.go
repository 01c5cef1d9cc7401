package orchestrator

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/scavtools/scavminer/internal/ashmaize"
	"github.com/scavtools/scavminer/internal/challenge"
	"github.com/scavtools/scavminer/internal/config"
	"github.com/scavtools/scavminer/internal/metrics"
	"github.com/scavtools/scavminer/internal/miner"
	"github.com/scavtools/scavminer/internal/scavenger"
	"github.com/scavtools/scavminer/internal/store"
)

type submission struct {
	wallet      string
	challengeID string
	nonce       uint64
}

type fakeService struct {
	current  challenge.Challenge
	fetchErr error

	submitReceipt *store.Receipt
	submitErr     error
	submits       []submission
}

func (f *fakeService) FetchChallenge(context.Context) (challenge.Challenge, error) {
	if f.fetchErr != nil {
		return challenge.Challenge{}, f.fetchErr
	}
	return f.current, nil
}

func (f *fakeService) SubmitSolution(_ context.Context, wallet, id string, nonce uint64) (*store.Receipt, error) {
	f.submits = append(f.submits, submission{wallet, id, nonce})
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	return f.submitReceipt, nil
}

type fakeEngine struct {
	result miner.Result
	calls  int
	last   miner.Task
}

func (f *fakeEngine) Search(task miner.Task) miner.Result {
	f.calls++
	f.last = task
	return f.result
}

type fakeTables struct{ rom *ashmaize.ROM }

func (f *fakeTables) GetOrBuild(string) (*ashmaize.ROM, error) { return f.rom, nil }

type fakeWallets struct {
	list []string
	i    int
}

func (f *fakeWallets) Next() string {
	w := f.list[f.i%len(f.list)]
	f.i++
	return w
}

func (f *fakeWallets) Count() int { return len(f.list) }

type harness struct {
	orch      *Orchestrator
	service   *fakeService
	engine    *fakeEngine
	solutions *store.SolutionStore
	difficult *store.DifficultStore
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := zaptest.NewLogger(t)
	dir := t.TempDir()

	rom, err := ashmaize.BuildROM([]byte("k"), ashmaize.Params{Size: 512, PreSize: 64, MixRounds: 1})
	require.NoError(t, err)

	solutions, err := store.NewSolutionStore(logger, filepath.Join(dir, "solutions"))
	require.NoError(t, err)
	difficult := store.NewDifficultStore(logger, filepath.Join(dir, "difficult_tasks.json"))

	service := &fakeService{
		current: challenge.Challenge{
			ID:           "chal-1",
			Difficulty:   "0fff",
			TableKey:     "k",
			Deadline:     time.Now().Add(6 * time.Hour).UTC().Format(time.RFC3339),
			DeadlineHour: "12",
		},
		submitReceipt: &store.Receipt{Preimage: "p", Timestamp: "t", Signature: "s"},
	}
	engine := &fakeEngine{result: miner.Result{Kind: miner.Found, Nonce: 7, Hashes: 1000, Elapsed: time.Second}}

	cfg := config.Default()
	orch := New(logger, cfg, service, engine, &fakeTables{rom: rom},
		&fakeWallets{list: []string{"wallet-1"}}, solutions, difficult, metrics.New(), 4)
	orch.sleep = func(time.Duration) {}

	return &harness{orch: orch, service: service, engine: engine, solutions: solutions, difficult: difficult}
}

func TestCycleFoundAndSubmitted(t *testing.T) {
	h := newHarness(t)
	h.orch.runCycle(context.Background())

	require.Len(t, h.service.submits, 1)
	require.Equal(t, submission{"wallet-1", "chal-1", 7}, h.service.submits[0])

	recs, err := h.solutions.Retryable()
	require.NoError(t, err)
	require.Empty(t, recs, "a submitted record is not retryable")
	require.True(t, h.solutions.Exists("wallet-1", "chal-1"))
	require.EqualValues(t, 1, h.orch.totalSolutions.Load())
}

func TestCycleFoundButDuplicate(t *testing.T) {
	h := newHarness(t)
	h.service.submitErr = &scavenger.RejectionError{Message: "HTTP 409: solution already exists"}

	h.orch.runCycle(context.Background())
	require.Len(t, h.service.submits, 1)
	require.True(t, h.solutions.Exists("wallet-1", "chal-1"))

	// Terminal: the next cycle must neither search nor resubmit the pair.
	h.orch.runCycle(context.Background())
	require.Len(t, h.service.submits, 1)
	require.Equal(t, 1, h.engine.calls)
	require.EqualValues(t, 0, h.orch.totalSolutions.Load())
}

func TestCycleFoundNetworkError(t *testing.T) {
	h := newHarness(t)
	h.service.submitErr = errors.New("dial tcp: connection refused")

	h.orch.runCycle(context.Background())

	recs, err := h.solutions.Retryable()
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, store.StatusNetworkError, recs[0].Status)
	require.Empty(t, recs[0].SubmittedAt)
	require.Equal(t, 0, recs[0].RetryCount)
}

func TestCycleTooHard(t *testing.T) {
	h := newHarness(t)
	h.engine.result = miner.Result{Kind: miner.TooHard, Hashes: 5_000_000, Elapsed: 2 * time.Minute}

	h.orch.runCycle(context.Background())
	require.True(t, h.difficult.IsDifficult("wallet-1", "chal-1"))
	require.Empty(t, h.service.submits)

	// The pair is skipped from now on, no second search.
	h.orch.runCycle(context.Background())
	require.Equal(t, 1, h.engine.calls)
}

func TestCyclePassesCeilingAndThreads(t *testing.T) {
	h := newHarness(t)
	h.orch.maxHashes = 123456
	h.orch.runCycle(context.Background())

	require.Equal(t, uint64(123456), h.engine.last.HashCeiling)
	require.Equal(t, 4, h.engine.last.Threads)
	require.Equal(t, "wallet-1", h.engine.last.Wallet)
	require.Equal(t, "chal-1", h.engine.last.Challenge.ID)
}

func TestSweepRespectsBackoff(t *testing.T) {
	h := newHarness(t)

	save := func(lastRetry time.Time) {
		require.NoError(t, h.solutions.Save(&store.SolutionRecord{
			Wallet: "wallet-1", ChallengeID: "chal-1", Nonce: "0000000000000007",
			FoundAt:     store.Timestamp(time.Now().Add(-3 * time.Hour)),
			Status:      store.StatusFailed,
			ErrorMsg:    "HTTP 503",
			RetryCount:  1,
			LastRetryAt: store.Timestamp(lastRetry),
		}))
	}

	// 30 minutes since the last attempt: untouched.
	save(time.Now().Add(-30 * time.Minute))
	h.orch.sweepRetries(context.Background())
	require.Empty(t, h.service.submits)

	// 90 minutes: resubmitted and counted.
	save(time.Now().Add(-90 * time.Minute))
	h.orch.sweepRetries(context.Background())
	require.Len(t, h.service.submits, 1)

	recs, err := h.solutions.Retryable()
	require.NoError(t, err)
	require.Empty(t, recs, "successful retry leaves nothing retryable")
}

func TestSweepNeverRetriedUsesFoundAt(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.solutions.Save(&store.SolutionRecord{
		Wallet: "wallet-1", ChallengeID: "chal-1", Nonce: "0000000000000007",
		FoundAt: store.Timestamp(time.Now().Add(-30 * time.Minute)),
		Status:  store.StatusNetworkError,
		ErrorMsg: "Network error: timeout",
	}))
	h.orch.sweepRetries(context.Background())
	require.Empty(t, h.service.submits, "30 minutes since discovery is inside the backoff")

	require.NoError(t, h.solutions.Save(&store.SolutionRecord{
		Wallet: "wallet-1", ChallengeID: "chal-1", Nonce: "0000000000000007",
		FoundAt: store.Timestamp(time.Now().Add(-2 * time.Hour)),
		Status:  store.StatusNetworkError,
		ErrorMsg: "Network error: timeout",
	}))
	h.orch.sweepRetries(context.Background())
	require.Len(t, h.service.submits, 1)
}

func TestSweepAbandonsAfterMaxRetries(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.solutions.Save(&store.SolutionRecord{
		Wallet: "wallet-1", ChallengeID: "chal-1", Nonce: "0000000000000007",
		FoundAt:     store.Timestamp(time.Now().Add(-24 * time.Hour)),
		Status:      store.StatusFailed,
		ErrorMsg:    "HTTP 503",
		RetryCount:  maxRetries,
		LastRetryAt: store.Timestamp(time.Now().Add(-2 * time.Hour)),
	}))

	h.orch.sweepRetries(context.Background())
	require.Empty(t, h.service.submits, "an exhausted record is abandoned without an attempt")

	recs, err := h.solutions.Retryable()
	require.NoError(t, err)
	require.Empty(t, recs, "abandoned is terminal")
}

func TestSweepClosesRotatedChallenge(t *testing.T) {
	h := newHarness(t)
	h.service.current.ID = "chal-2" // the service has moved on

	require.NoError(t, h.solutions.Save(&store.SolutionRecord{
		Wallet: "wallet-1", ChallengeID: "chal-1", Nonce: "0000000000000007",
		FoundAt:  store.Timestamp(time.Now().Add(-2 * time.Hour)),
		Status:   store.StatusFailed,
		ErrorMsg: "HTTP 503",
	}))

	h.orch.sweepRetries(context.Background())
	require.Empty(t, h.service.submits)

	recs, err := h.solutions.Retryable()
	require.NoError(t, err)
	require.Empty(t, recs, "challenge_closed is terminal")
}

func TestSweepRetryCountsRejection(t *testing.T) {
	h := newHarness(t)
	h.service.submitErr = &scavenger.RejectionError{Message: "HTTP 500: flaky"}

	require.NoError(t, h.solutions.Save(&store.SolutionRecord{
		Wallet: "wallet-1", ChallengeID: "chal-1", Nonce: "0000000000000007",
		FoundAt:  store.Timestamp(time.Now().Add(-2 * time.Hour)),
		Status:   store.StatusFailed,
		ErrorMsg: "HTTP 503",
	}))

	h.orch.sweepRetries(context.Background())
	require.Len(t, h.service.submits, 1)

	recs, err := h.solutions.Retryable()
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, 1, recs[0].RetryCount)
	require.NotEmpty(t, recs[0].LastRetryAt)
	require.Equal(t, "HTTP 500: flaky", recs[0].ErrorMsg)
}

func TestStatusSafeDuringMining(t *testing.T) {
	h := newHarness(t)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			doc := h.orch.Status().(map[string]any)
			if doc["miner_id"] != h.orch.MinerID() {
				panic("status lost the miner id")
			}
		}
	}()

	// Each cycle refreshes the set and bumps the counters the status
	// document reads; the race detector flags any unguarded overlap.
	for i := 0; i < 20; i++ {
		h.orch.runCycle(context.Background())
	}
	<-done

	doc := h.orch.Status().(map[string]any)
	require.EqualValues(t, 1, doc["total_solutions"])
	require.EqualValues(t, 1, doc["challenges"])
}

func TestRunStopsCleanlyOnCancel(t *testing.T) {
	h := newHarness(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, h.orch.Run(ctx), "cancellation is a normal stop, not an error")
}

func TestCycleSurvivesRefreshFailure(t *testing.T) {
	h := newHarness(t)
	h.service.fetchErr = errors.New("service unreachable")

	// Must not panic or search; the loop just backs off.
	h.orch.runCycle(context.Background())
	require.Equal(t, 0, h.engine.calls)
}
