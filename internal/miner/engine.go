// Package miner runs the parallel nonce search for one task at a time.
package miner

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/scavtools/scavminer/internal/ashmaize"
	"github.com/scavtools/scavminer/internal/challenge"
)

const (
	// localCheckInterval is how many trials a worker runs between looks
	// at the shared clock. The soft hash ceiling can overshoot by up to
	// threads * localCheckInterval because of this granularity.
	localCheckInterval = 5000

	defaultReportInterval = 30 * time.Second
)

// ResultKind classifies a finished search.
type ResultKind int

const (
	// Found: a nonce satisfying the difficulty mask was located.
	Found ResultKind = iota
	// TooHard: the soft hash ceiling was crossed first.
	TooHard
	// NotFound: the search could not run, e.g. undecodable difficulty.
	NotFound
)

func (k ResultKind) String() string {
	switch k {
	case Found:
		return "found"
	case TooHard:
		return "too_hard"
	case NotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Result is the outcome of one search task.
type Result struct {
	Kind    ResultKind
	Nonce   uint64
	Hashes  uint64
	Elapsed time.Duration
}

// Task is one unit of work: a wallet/challenge pair with its shared
// table. Ephemeral; a fresh stop flag and hash counter are created per
// search so no two tasks can interfere.
type Task struct {
	Wallet      string
	Challenge   challenge.Challenge
	ROM         *ashmaize.ROM
	Threads     int
	HashCeiling uint64 // 0 = unlimited
}

// Engine searches the 64-bit nonce space with a short-lived pool of
// worker goroutines per task.
type Engine struct {
	logger *zap.Logger
	loops  uint32
	instrs uint32

	// hashFn is ashmaize.Sum in production; tests substitute a cheap
	// deterministic stand-in.
	hashFn func(preimage []byte, rom *ashmaize.ROM, loops, instrs uint32) [ashmaize.DigestSize]byte

	reportInterval time.Duration
}

// NewEngine returns an engine hashing with the given round parameters.
func NewEngine(logger *zap.Logger, loops, instrs uint32) *Engine {
	return &Engine{
		logger:         logger.Named("miner"),
		loops:          loops,
		instrs:         instrs,
		hashFn:         ashmaize.Sum,
		reportInterval: defaultReportInterval,
	}
}

// Search partitions the nonce space into interleaved strides, worker t
// testing t, t+N, t+2N, ... so every worker has the same expected time
// to a hit. The first worker whose digest passes the mask wins the stop
// flag by compare-and-swap; everyone else sees the flag on their next
// trial and returns. Blocks until all workers have stopped.
func (e *Engine) Search(task Task) Result {
	mask, err := challenge.ParseMask(task.Challenge.Difficulty)
	if err != nil {
		e.logger.Error("cannot search undecodable difficulty",
			zap.String("challenge_id", task.Challenge.ID), zap.Error(err))
		return Result{Kind: NotFound}
	}

	threads := task.Threads
	if threads < 1 {
		threads = 1
	}
	suffix := task.Challenge.PreimageSuffix(task.Wallet)

	var (
		stop       atomic.Bool
		ceilingHit atomic.Bool
		hashCount  atomic.Uint64
		winner     atomic.Uint64
		haveWinner atomic.Bool
	)
	start := time.Now()

	var reportMu sync.Mutex
	lastReport := start

	var wg sync.WaitGroup
	for t := 0; t < threads; t++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()

			nonce := uint64(workerID)
			stride := uint64(threads)
			preimage := make([]byte, nonceHexLen+len(suffix))
			copy(preimage[nonceHexLen:], suffix)
			local := 0

			for {
				if stop.Load() {
					return
				}

				putNonceHex(preimage[:nonceHexLen], nonce)
				digest := e.hashFn(preimage, task.ROM, e.loops, e.instrs)
				hashCount.Add(1)
				local++

				if mask.Check(digest[:]) {
					if stop.CompareAndSwap(false, true) {
						winner.Store(nonce)
						haveWinner.Store(true)
						e.logger.Info("solution found",
							zap.Int("worker", workerID),
							zap.String("nonce", string(nonceHex(nonce))),
							zap.String("challenge_id", task.Challenge.ID))
					}
					return
				}

				nonce += stride

				if local%localCheckInterval == 0 {
					e.maybeReport(task, start, &reportMu, &lastReport, &hashCount, &stop, &ceilingHit)
				}
			}
		}(t)
	}
	wg.Wait()

	total := hashCount.Load()
	elapsed := time.Since(start)

	if haveWinner.Load() {
		return Result{Kind: Found, Nonce: winner.Load(), Hashes: total, Elapsed: elapsed}
	}
	if ceilingHit.Load() {
		return Result{Kind: TooHard, Hashes: total, Elapsed: elapsed}
	}
	return Result{Kind: NotFound, Hashes: total, Elapsed: elapsed}
}

// maybeReport emits a rate report at most once per report interval and,
// when a ceiling is configured, compares the shared total against it.
// Crossing the ceiling raises the stop flag without declaring a winner.
func (e *Engine) maybeReport(task Task, start time.Time, mu *sync.Mutex, last *time.Time,
	hashCount *atomic.Uint64, stop, ceilingHit *atomic.Bool) {

	mu.Lock()
	defer mu.Unlock()
	if time.Since(*last) < e.reportInterval {
		return
	}
	*last = time.Now()

	total := hashCount.Load()
	elapsed := time.Since(start).Seconds()
	var rate float64
	if elapsed > 0 {
		rate = float64(total) / elapsed
	}
	e.logger.Info("mining",
		zap.String("hashes", humanize.Comma(int64(total))),
		zap.Float64("hash_rate", rate),
		zap.String("challenge_id", task.Challenge.ID))

	if task.HashCeiling > 0 && total >= task.HashCeiling {
		ceilingHit.Store(true)
		stop.Store(true)
		e.logger.Warn("hash ceiling reached, abandoning search",
			zap.Uint64("hashes", total),
			zap.Uint64("ceiling", task.HashCeiling))
	}
}

const nonceHexLen = 16

const hexDigits = "0123456789abcdef"

// putNonceHex writes the fixed 16-digit lowercase hex encoding of the
// nonce, the exact format the submission URL uses.
func putNonceHex(dst []byte, nonce uint64) {
	for i := nonceHexLen - 1; i >= 0; i-- {
		dst[i] = hexDigits[nonce&0xf]
		nonce >>= 4
	}
}

func nonceHex(nonce uint64) []byte {
	buf := make([]byte, nonceHexLen)
	putNonceHex(buf, nonce)
	return buf
}

// NonceHex is the canonical wire encoding of a nonce.
func NonceHex(nonce uint64) string {
	return string(nonceHex(nonce))
}
