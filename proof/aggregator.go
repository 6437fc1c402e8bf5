package proof

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"proof-leaderboard/keymutex"
	"proof-leaderboard/leaderboard"
	"proof-leaderboard/logger"
	"proof-leaderboard/models"
	"proof-leaderboard/repository"
)

// ErrInconsistentRandomness means a user's completed proofs carry more than
// one randomness commitment, so their nullifiers cannot be counted together
var ErrInconsistentRandomness = errors.New("divergent pubkey nullifier randomness commitments")

// Series names a count computed from a user's nullifier set
type Series string

// SeriesTotal counts every distinct public-key nullifier
const SeriesTotal Series = "total"

// Output binds a computed series to the leaderboard bucket it is written to
type Output struct {
	Bucket leaderboard.BucketID
	Series Series
}

// DefaultOutputs is the set of buckets the aggregator currently produces
func DefaultOutputs() []Output {
	return []Output{{
		Bucket: leaderboard.BucketID{Issuer: models.IssuerEthIndia2024, EntryType: models.EntryTypeEthIndia2024TapCount},
		Series: SeriesTotal,
	}}
}

// DerivedBuckets lists the buckets owned by outputs, for the bucket registry
func DerivedBuckets(outputs []Output) []leaderboard.BucketID {
	ids := make([]leaderboard.BucketID, 0, len(outputs))
	for _, o := range outputs {
		ids = append(ids, o.Bucket)
	}
	return ids
}

// LeaderboardWriter is the absolute write the aggregator needs
type LeaderboardWriter interface {
	Update(username string, issuer models.ChipIssuer, entryType models.LeaderboardEntryType, value float64) error
}

// Aggregator recomputes a user's proof-backed leaderboard entries from all of
// their completed jobs. Runs for the same user never interleave.
type Aggregator struct {
	jobs    repository.ProofRepositoryInterface
	board   LeaderboardWriter
	outputs []Output
	locks   *keymutex.KeyMutex
}

func NewAggregator(jobs repository.ProofRepositoryInterface, board LeaderboardWriter, outputs []Output) *Aggregator {
	return &Aggregator{
		jobs:    jobs,
		board:   board,
		outputs: outputs,
		locks:   keymutex.New(),
	}
}

// Counts computes each series over jobs. It fails with
// ErrInconsistentRandomness when the jobs disagree on the commitment.
func Counts(jobs []*models.ProofJob) (map[Series]int, error) {
	commitments := make(map[string]struct{})
	for _, j := range jobs {
		if j.PubkeyNullifierRandomnessHash != "" {
			commitments[j.PubkeyNullifierRandomnessHash] = struct{}{}
		}
	}
	if len(commitments) > 1 {
		return nil, fmt.Errorf("%w: %d distinct", ErrInconsistentRandomness, len(commitments))
	}

	total := make(map[string]struct{})
	for _, j := range jobs {
		if j.PubkeyNullifier == "" {
			continue
		}
		total[j.PubkeyNullifier] = struct{}{}
	}
	return map[Series]int{SeriesTotal: len(total)}, nil
}

// Aggregate recomputes and writes the user's counts. On
// ErrInconsistentRandomness nothing is written.
func (a *Aggregator) Aggregate(ctx context.Context, username string) (map[Series]int, error) {
	unlock := a.locks.Lock(username)
	defer unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	token, err := a.jobs.DirtyToken(username)
	if err != nil {
		return nil, fmt.Errorf("read dirty marker: %w", err)
	}
	jobs, err := a.jobs.ListCompletedForUser(username)
	if err != nil {
		return nil, fmt.Errorf("list completed jobs: %w", err)
	}

	counts, err := Counts(jobs)
	if errors.Is(err, ErrInconsistentRandomness) {
		// only a new completion can change this, and that marks the user dirty again
		if cleanErr := a.jobs.MarkClean(username, token); cleanErr != nil {
			logger.Logger.Warn("Failed to clear dirty marker", zap.String("username", username), zap.Error(cleanErr))
		}
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	for _, out := range a.outputs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		value := counts[out.Series]
		if err := a.board.Update(username, out.Bucket.Issuer, out.Bucket.EntryType, float64(value)); err != nil {
			return nil, fmt.Errorf("update %s/%s: %w", out.Bucket.Issuer, out.Bucket.EntryType, err)
		}
		logger.Logger.Debug("Leaderboard entry recomputed",
			zap.String("username", username),
			zap.String("issuer", string(out.Bucket.Issuer)),
			zap.String("entry_type", string(out.Bucket.EntryType)),
			zap.Int("value", value))
	}

	if err := a.jobs.MarkClean(username, token); err != nil {
		return nil, fmt.Errorf("clear dirty marker: %w", err)
	}
	return counts, nil
}
