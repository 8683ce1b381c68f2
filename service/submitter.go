package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/layer-3/dripper/core"
	"github.com/layer-3/dripper/internal/metrics"
	"github.com/layer-3/dripper/ports"
	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency is the number of permits in flight at once
const DefaultConcurrency = 3

// SubmitterConfig configures the submission pipeline
type SubmitterConfig struct {
	Recipient      string
	Token          string
	Concurrency    int
	RequestTimeout time.Duration
}

// Submitter posts the permits of a claim run with bounded concurrency
type Submitter struct {
	faucet  ports.FaucetAPI
	events  ports.EventPublisher
	metrics *metrics.Recorder
	cfg     SubmitterConfig
	logger  *slog.Logger
	now     func() time.Time
}

// NewSubmitter creates a submitter. events and rec may be nil.
func NewSubmitter(faucet ports.FaucetAPI, events ports.EventPublisher, rec *metrics.Recorder, cfg SubmitterConfig, logger *slog.Logger) *Submitter {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Submitter{
		faucet:  faucet,
		events:  events,
		metrics: rec,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
	}
}

// Classify maps a submission error to its outcome.
// Any error mentioning "already", in any case, is a duplicate claim.
func Classify(err error) core.Outcome {
	if err == nil {
		return core.OutcomeSuccess
	}
	if errors.Is(err, core.ErrAlreadyClaimed) || strings.Contains(strings.ToLower(err.Error()), "already") {
		return core.OutcomeAlreadyClaimed
	}
	return core.OutcomeFailed
}

// Submit sends every permit of the run exactly once and aggregates the outcomes.
// Per-permit failures end up in the summary; Submit itself never fails.
func (s *Submitter) Submit(ctx context.Context, run core.ClaimRun, credential core.SessionCredential) core.Summary {
	total := len(run.Permits)
	summary := core.Summary{
		RunID:     run.ID,
		Requested: total,
		StartedAt: s.now(),
	}

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(s.cfg.Concurrency)

	for i, permit := range run.Permits {
		// Go blocks while the ceiling is reached
		g.Go(func() error {
			result := s.submitOne(ctx, run, credential, i, total, permit)

			mu.Lock()
			summary.Record(result.Outcome)
			mu.Unlock()

			s.report(ctx, result)
			return nil
		})
	}
	_ = g.Wait()

	summary.FinishedAt = s.now()
	return summary
}

func (s *Submitter) submitOne(ctx context.Context, run core.ClaimRun, credential core.SessionCredential, index, total int, permit core.Permit) core.SubmissionResult {
	ctx, cancel := withTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()

	start := s.now()
	err := s.faucet.Drip(ctx, credential, ports.DripRequest{
		Recipient:   s.cfg.Recipient,
		Token:       s.cfg.Token,
		Permit:      permit,
		Requirement: run.Requirement,
	})

	result := core.SubmissionResult{
		RunID:    run.ID,
		Index:    index,
		Total:    total,
		Nonce:    permit.Authorization.Nonce,
		Outcome:  Classify(err),
		Duration: s.now().Sub(start),
	}
	if err != nil {
		result.Reason = err.Error()
	}
	return result
}

func (s *Submitter) report(ctx context.Context, result core.SubmissionResult) {
	s.metrics.Permit(result.Outcome)

	progress := fmt.Sprintf("%d/%d", result.Index+1, result.Total)
	switch result.Outcome {
	case core.OutcomeSuccess:
		s.logger.Info("minting success", "permit", progress, "duration", result.Duration)
	case core.OutcomeAlreadyClaimed:
		s.logger.Info("already minted", "permit", progress)
	default:
		s.logger.Warn("minting failed", "permit", progress, "error", result.Err())
	}

	if s.events == nil {
		return
	}
	ctx, cancel := withTimeout(context.WithoutCancel(ctx), DefaultCallTimeout)
	defer cancel()
	if err := s.events.PublishOutcome(ctx, result); err != nil {
		s.logger.Warn("failed to publish outcome", "error", err)
	}
}
