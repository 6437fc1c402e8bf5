package proof

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"proof-leaderboard/logger"
	"proof-leaderboard/models"
	"proof-leaderboard/prover"
	"proof-leaderboard/repository"
)

// CycleReport summarises one poll cycle
type CycleReport struct {
	CycleID         string        `json:"cycle_id"`
	Pending         int           `json:"pending"`
	StillPending    int           `json:"still_pending"`
	Completed       int           `json:"completed"`
	Discarded       int           `json:"discarded"`
	Failed          int           `json:"failed"`
	UsersAggregated int           `json:"users_aggregated"`
	UsersSuspended  int           `json:"users_suspended"`
	Duration        time.Duration `json:"duration"`
}

// PollerOptions tunes the poller
type PollerOptions struct {
	// Concurrency bounds in-flight service polls and aggregations
	Concurrency int
	// Interval between scheduled cycles; zero runs cycles only on Trigger
	Interval time.Duration
}

// Poller drives proof jobs from pending to counted
type Poller struct {
	jobs       repository.ProofRepositoryInterface
	client     prover.Client
	validator  *Validator
	aggregator *Aggregator
	metrics    *Metrics
	opts       PollerOptions
	trigger    chan struct{}
}

func NewPoller(jobs repository.ProofRepositoryInterface, client prover.Client, validator *Validator, aggregator *Aggregator, metrics *Metrics, opts PollerOptions) *Poller {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Poller{
		jobs:       jobs,
		client:     client,
		validator:  validator,
		aggregator: aggregator,
		metrics:    metrics,
		opts:       opts,
		trigger:    make(chan struct{}, 1),
	}
}

type pollOutcome struct {
	job     *models.ProofJob
	outcome string
	fields  models.ProofFields
}

// RunCycle polls every pending job, persists the valid results and
// recomputes the leaderboard for each user that gained a completion.
// Per-job problems are logged and counted; only a failure to read the
// pending set or cancellation is returned.
func (p *Poller) RunCycle(ctx context.Context) (report CycleReport, err error) {
	report.CycleID = uuid.NewString()
	log := logger.Logger.With(zap.String("cycle_id", report.CycleID))
	start := time.Now()
	p.metrics.cycles.Inc()
	defer func() {
		report.Duration = time.Since(start)
		p.metrics.cycleDuration.Observe(report.Duration.Seconds())
	}()

	pending, err := p.jobs.ListPending()
	if err != nil {
		p.metrics.cycleFailures.Inc()
		return report, fmt.Errorf("list pending jobs: %w", err)
	}
	report.Pending = len(pending)

	// each task owns its slot; Wait is the barrier before anything is persisted
	outcomes := make([]pollOutcome, len(pending))
	var g errgroup.Group
	g.SetLimit(p.opts.Concurrency)
	for i, job := range pending {
		g.Go(func() error {
			outcomes[i] = p.pollOne(ctx, log, job)
			return nil
		})
	}
	g.Wait()

	if err := ctx.Err(); err != nil {
		p.metrics.cycleFailures.Inc()
		return report, err
	}

	affected := make(map[string]struct{})
	for _, o := range outcomes {
		switch o.outcome {
		case OutcomePending, OutcomeTimeout:
			report.StillPending++
		case OutcomeDiscarded:
			report.Discarded++
		case OutcomeFailed:
			report.Failed++
		case OutcomeCompleted:
			changed, err := p.jobs.MarkCompleted(o.job.JobID, o.fields)
			if err != nil {
				log.Error("Failed to persist completed proof job",
					zap.String("job_id", o.job.JobID), zap.Error(err))
				report.Failed++
				p.metrics.jobs.WithLabelValues(OutcomeFailed).Inc()
				continue
			}
			report.Completed++
			if changed {
				affected[o.job.Username] = struct{}{}
			}
		}
		p.metrics.jobs.WithLabelValues(o.outcome).Inc()
	}

	// users left unaggregated by an interrupted earlier cycle
	dirty, err := p.jobs.ListDirtyUsers()
	if err != nil {
		log.Warn("Failed to list users awaiting aggregation", zap.Error(err))
	}
	for _, u := range dirty {
		affected[u] = struct{}{}
	}

	users := make([]string, 0, len(affected))
	for u := range affected {
		users = append(users, u)
	}
	sort.Strings(users)

	results := make([]string, len(users))
	var ag errgroup.Group
	ag.SetLimit(p.opts.Concurrency)
	for i, username := range users {
		ag.Go(func() error {
			results[i] = p.aggregateOne(ctx, log, username)
			return nil
		})
	}
	ag.Wait()

	for _, r := range results {
		switch r {
		case AggregationUpdated:
			report.UsersAggregated++
		case AggregationSuspended:
			report.UsersSuspended++
		}
	}

	log.Info("Proof poll cycle finished",
		zap.Int("pending", report.Pending),
		zap.Int("completed", report.Completed),
		zap.Int("still_pending", report.StillPending),
		zap.Int("discarded", report.Discarded),
		zap.Int("failed", report.Failed),
		zap.Int("users_aggregated", report.UsersAggregated),
		zap.Int("users_suspended", report.UsersSuspended))

	return report, ctx.Err()
}

func (p *Poller) pollOne(ctx context.Context, log *zap.Logger, job *models.ProofJob) pollOutcome {
	out := pollOutcome{job: job}

	res, err := p.client.PollResult(ctx, job.JobID)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		log.Debug("Proof job poll timed out", zap.String("job_id", job.JobID))
		out.outcome = OutcomeTimeout
		return out
	case err != nil:
		log.Warn("Failed to poll proof job", zap.String("job_id", job.JobID), zap.Error(err))
		out.outcome = OutcomeFailed
		return out
	case res.Pending:
		out.outcome = OutcomePending
		return out
	}

	fields, err := p.validator.Validate(res.PublicInput)
	if err != nil {
		log.Debug("Discarding proof job result",
			zap.String("job_id", job.JobID),
			zap.String("username", job.Username),
			zap.Error(err))
		out.outcome = OutcomeDiscarded
		return out
	}
	out.outcome = OutcomeCompleted
	out.fields = fields
	return out
}

func (p *Poller) aggregateOne(ctx context.Context, log *zap.Logger, username string) string {
	counts, err := p.aggregator.Aggregate(ctx, username)
	switch {
	case errors.Is(err, ErrInconsistentRandomness):
		log.Warn("Suspending aggregation for user", zap.String("username", username), zap.Error(err))
		p.metrics.aggregations.WithLabelValues(AggregationSuspended).Inc()
		return AggregationSuspended
	case err != nil:
		log.Error("Failed to aggregate proofs for user", zap.String("username", username), zap.Error(err))
		p.metrics.aggregations.WithLabelValues(AggregationFailed).Inc()
		return AggregationFailed
	}
	log.Info("Aggregated proofs for user",
		zap.String("username", username),
		zap.Int("total", counts[SeriesTotal]))
	p.metrics.aggregations.WithLabelValues(AggregationUpdated).Inc()
	return AggregationUpdated
}

// Trigger asks the running loop for a cycle as soon as possible. Requests
// made while one is already queued are coalesced.
func (p *Poller) Trigger() {
	select {
	case p.trigger <- struct{}{}:
	default:
	}
}

// Run cycles on the configured interval and on Trigger until ctx is done
func (p *Poller) Run(ctx context.Context) error {
	var tick <-chan time.Time
	if p.opts.Interval > 0 {
		ticker := time.NewTicker(p.opts.Interval)
		defer ticker.Stop()
		tick = ticker.C
		p.runLogged(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			logger.Logger.Info("Proof poller stopped")
			return nil
		case <-tick:
			p.runLogged(ctx)
		case <-p.trigger:
			p.runLogged(ctx)
		}
	}
}

func (p *Poller) runLogged(ctx context.Context) {
	if _, err := p.RunCycle(ctx); err != nil && ctx.Err() == nil {
		logger.Logger.Error("Proof poll cycle failed", zap.Error(err))
	}
}
