package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/layer-3/dripper/core"
	"github.com/layer-3/dripper/internal/metrics"
	"github.com/layer-3/dripper/ports"
)

const (
	DefaultPollInterval = 500 * time.Millisecond
	DefaultMaxCatchUp   = 20
)

// Claimer runs one claim cycle for a trigger
type Claimer interface {
	RunClaim(ctx context.Context, trigger core.Trigger) (core.Summary, error)
}

// WatcherConfig configures the distribution watcher
type WatcherConfig struct {
	Addresses    []string
	PollInterval time.Duration
	// MaxCatchUp bounds how many blocks one poll scans after a gap
	MaxCatchUp uint64
	// CallTimeout bounds each node call and each trigger publish
	CallTimeout time.Duration
}

// Watcher polls new blocks and starts a claim run when a watched address sends a transaction
type Watcher struct {
	chain   ports.ChainReader
	claimer Claimer
	events  ports.EventPublisher
	metrics *metrics.Recorder
	cfg     WatcherConfig
	logger  *slog.Logger
	watch   map[string]struct{}

	// pollMu serializes polls, mu guards the observed block only
	pollMu       sync.Mutex
	mu           sync.Mutex
	started      bool
	lastObserved uint64

	claiming atomic.Bool
	runs     atomic.Uint64
	skipped  atomic.Uint64
	inflight sync.WaitGroup
}

// NewWatcher creates a watcher. events and rec may be nil.
func NewWatcher(chain ports.ChainReader, claimer Claimer, events ports.EventPublisher, rec *metrics.Recorder, cfg WatcherConfig, logger *slog.Logger) *Watcher {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.MaxCatchUp == 0 {
		cfg.MaxCatchUp = DefaultMaxCatchUp
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultCallTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	watch := make(map[string]struct{}, len(cfg.Addresses))
	for _, a := range cfg.Addresses {
		watch[strings.ToLower(strings.TrimSpace(a))] = struct{}{}
	}

	return &Watcher{
		chain:   chain,
		claimer: claimer,
		events:  events,
		metrics: rec,
		cfg:     cfg,
		logger:  logger,
		watch:   watch,
	}
}

// Run polls until ctx is done, then waits for an in-flight claim run
func (w *Watcher) Run(ctx context.Context) error {
	w.logger.Info("watching distributions", "sources", len(w.watch), "interval", w.cfg.PollInterval)

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.Wait()
			return ctx.Err()
		case <-ticker.C:
		}

		if err := w.Poll(ctx); err != nil {
			if ctx.Err() != nil {
				continue
			}
			w.metrics.WatcherError()
			w.logger.Warn("watcher error", "error", err)
		}
	}
}

// Poll runs one cycle: it scans every block after the last observed one up to head.
// The first cycle only looks at head. Triggers are dispatched once the scan is done.
func (w *Watcher) Poll(ctx context.Context) error {
	w.pollMu.Lock()
	defer w.pollMu.Unlock()

	head, err := w.blockNumber(ctx)
	if err != nil {
		return fmt.Errorf("%w: block number: %w", core.ErrWatcherTransient, err)
	}

	w.mu.Lock()
	started, last := w.started, w.lastObserved
	w.mu.Unlock()

	if started && head <= last {
		return nil
	}

	from := head
	if started {
		from = last + 1
	}
	if head-from >= w.cfg.MaxCatchUp {
		skippedBlocks := head - w.cfg.MaxCatchUp + 1 - from
		w.logger.Warn("watcher fell behind, skipping blocks", "count", skippedBlocks)
		from = head - w.cfg.MaxCatchUp + 1
	}

	var triggers []core.Trigger
	var scanErr error
	for n := from; n <= head; n++ {
		txs, err := w.blockSenders(ctx, n)
		if err != nil {
			scanErr = fmt.Errorf("%w: block %d: %w", core.ErrWatcherTransient, n, err)
			break
		}
		for _, tx := range txs {
			if _, ok := w.watch[strings.ToLower(tx.From)]; ok {
				triggers = append(triggers, core.Trigger{BlockNumber: n, TxHash: tx.Hash, From: tx.From})
			}
		}
		w.advance(n)
	}

	for _, t := range triggers {
		w.trigger(ctx, t)
	}
	return scanErr
}

func (w *Watcher) blockNumber(ctx context.Context) (uint64, error) {
	ctx, cancel := withTimeout(ctx, w.cfg.CallTimeout)
	defer cancel()
	return w.chain.BlockNumber(ctx)
}

func (w *Watcher) blockSenders(ctx context.Context, n uint64) ([]core.BlockTx, error) {
	ctx, cancel := withTimeout(ctx, w.cfg.CallTimeout)
	defer cancel()
	return w.chain.BlockSenders(ctx, n)
}

func (w *Watcher) advance(n uint64) {
	w.mu.Lock()
	w.started = true
	w.lastObserved = n
	w.mu.Unlock()

	w.metrics.BlocksScanned(1)
	w.metrics.LastBlock(n)
}

// trigger starts a claim run unless one is already in flight
func (w *Watcher) trigger(ctx context.Context, t core.Trigger) {
	w.metrics.TriggerDetected()
	w.logger.Info("distribution detected", "block", t.BlockNumber, "tx", t.TxHash, "from", t.From)

	if w.events != nil {
		pubCtx, cancel := withTimeout(ctx, w.cfg.CallTimeout)
		err := w.events.PublishTrigger(pubCtx, t)
		cancel()
		if err != nil {
			w.logger.Warn("failed to publish trigger", "error", err)
		}
	}

	if !w.claiming.CompareAndSwap(false, true) {
		w.skipped.Add(1)
		w.metrics.TriggerSkipped()
		w.logger.Info("trigger skipped", "tx", t.TxHash, "reason", core.ErrClaimInFlight)
		return
	}

	w.runs.Add(1)
	w.metrics.ClaimInFlight(true)
	w.inflight.Add(1)

	go func() {
		defer w.inflight.Done()
		defer func() {
			w.claiming.Store(false)
			w.metrics.ClaimInFlight(false)
		}()

		summary, err := w.claimer.RunClaim(ctx, t)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				w.logger.Info("claim run cancelled", "tx", t.TxHash)
				return
			}
			w.logger.Error("claim run failed", "tx", t.TxHash, "error", err)
			return
		}
		w.logger.Info("claim run complete", "run", summary.RunID, "total", summary.Total())
	}()
}

// State returns a snapshot of the watcher
func (w *Watcher) State() core.WatchState {
	w.mu.Lock()
	last := w.lastObserved
	w.mu.Unlock()

	return core.WatchState{
		LastObservedBlock: last,
		Claiming:          w.claiming.Load(),
		Runs:              w.runs.Load(),
		SkippedTriggers:   w.skipped.Load(),
	}
}

// Wait blocks until the in-flight claim run, if any, finishes
func (w *Watcher) Wait() {
	w.inflight.Wait()
}
