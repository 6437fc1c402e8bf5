package proof

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"proof-leaderboard/db"
	"proof-leaderboard/leaderboard"
	"proof-leaderboard/models"
	"proof-leaderboard/prover"
	"proof-leaderboard/repository"
)

// fakeProver replays scripted answers per job; the last answer repeats
type fakeProver struct {
	mu      sync.Mutex
	answers map[string][]fakeAnswer
	calls   map[string]int
}

type fakeAnswer struct {
	res prover.Result
	err error
}

func newFakeProver() *fakeProver {
	return &fakeProver{answers: make(map[string][]fakeAnswer), calls: make(map[string]int)}
}

func (f *fakeProver) script(jobID string, answers ...fakeAnswer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers[jobID] = answers
}

func (f *fakeProver) PollResult(ctx context.Context, jobID string) (prover.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seq := f.answers[jobID]
	n := f.calls[jobID]
	f.calls[jobID]++
	if len(seq) == 0 {
		return prover.Result{Pending: true}, nil
	}
	if n >= len(seq) {
		n = len(seq) - 1
	}
	return seq[n].res, seq[n].err
}

var pendingAnswer = fakeAnswer{res: prover.Result{Pending: true}}

func validAnswer(sig, pub, rnd string) fakeAnswer {
	return fakeAnswer{res: prover.Result{PublicInput: publicInput(sig, pub, rnd, testKey)}}
}

// spyWriter counts leaderboard writes on top of the real service
type spyWriter struct {
	mu    sync.Mutex
	next  LeaderboardWriter
	calls map[string]int
}

func (s *spyWriter) Update(username string, issuer models.ChipIssuer, entryType models.LeaderboardEntryType, value float64) error {
	s.mu.Lock()
	s.calls[username]++
	s.mu.Unlock()
	return s.next.Update(username, issuer, entryType, value)
}

func (s *spyWriter) count(username string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[username]
}

type env struct {
	jobs   *repository.ProofRepository
	board  *leaderboard.Service
	spy    *spyWriter
	prover *fakeProver
	poller *Poller
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ldb, err := db.NewMemLevelDB()
	require.NoError(t, err)
	t.Cleanup(func() { ldb.Close() })

	outputs := DefaultOutputs()
	buckets, err := leaderboard.NewBuckets(DerivedBuckets(outputs))
	require.NoError(t, err)

	jobs := repository.NewProofRepository(ldb)
	board := leaderboard.NewService(repository.NewLeaderboardRepository(ldb), buckets)
	spy := &spyWriter{next: board, calls: make(map[string]int)}
	fp := newFakeProver()
	agg := NewAggregator(jobs, spy, outputs)
	p := NewPoller(jobs, fp, NewValidator(testKey), agg, nil, PollerOptions{Concurrency: 4})
	return &env{jobs: jobs, board: board, spy: spy, prover: fp, poller: p}
}

func (e *env) total(t *testing.T, username string) float64 {
	t.Helper()
	v, err := e.board.Value(username, models.IssuerEthIndia2024, models.EntryTypeEthIndia2024TapCount)
	require.NoError(t, err)
	return v
}

func (e *env) cycle(t *testing.T) CycleReport {
	t.Helper()
	report, err := e.poller.RunCycle(context.Background())
	require.NoError(t, err)
	return report
}

func TestPoller_Scenario(t *testing.T) {
	e := newEnv(t)

	_, err := e.jobs.Submit("alice", "J1")
	require.NoError(t, err)
	e.prover.script("J1", pendingAnswer, validAnswer("S1", "P1", "R1"))

	report := e.cycle(t)
	assert.Equal(t, 1, report.StillPending)
	assert.Equal(t, 0.0, e.total(t, "alice"))

	report = e.cycle(t)
	assert.Equal(t, 1, report.Completed)
	assert.Equal(t, 1, report.UsersAggregated)
	job, err := e.jobs.GetJob("J1")
	require.NoError(t, err)
	assert.True(t, job.JobCompleted)
	assert.Equal(t, 1.0, e.total(t, "alice"))

	// same public-key nullifier: deduplicated
	_, err = e.jobs.Submit("alice", "J2")
	require.NoError(t, err)
	e.prover.script("J2", validAnswer("S2", "P1", "R1"))
	e.cycle(t)
	assert.Equal(t, 1.0, e.total(t, "alice"))

	// different randomness: aggregation suspended, no write
	writes := e.spy.count("alice")
	_, err = e.jobs.Submit("alice", "J3")
	require.NoError(t, err)
	e.prover.script("J3", validAnswer("S3", "P2", "R2"))
	report = e.cycle(t)
	assert.Equal(t, 1, report.Completed)
	assert.Equal(t, 1, report.UsersSuspended)
	assert.Equal(t, writes, e.spy.count("alice"))
	assert.Equal(t, 1.0, e.total(t, "alice"))

	// nothing pending and nothing dirty: a further cycle is a no-op
	report = e.cycle(t)
	assert.Zero(t, report.Pending)
	assert.Zero(t, report.UsersAggregated+report.UsersSuspended)
	assert.Equal(t, writes, e.spy.count("alice"))
}

func TestPoller_DedupCountsDistinctNullifiers(t *testing.T) {
	e := newEnv(t)
	for i, pub := range []string{"A", "B", "A", "C"} {
		id := []string{"J1", "J2", "J3", "J4"}[i]
		_, err := e.jobs.Submit("bob", id)
		require.NoError(t, err)
		e.prover.script(id, validAnswer("S"+id, pub, "R"))
	}

	report := e.cycle(t)
	assert.Equal(t, 4, report.Completed)
	assert.Equal(t, 1, report.UsersAggregated)
	// four completions in one cycle aggregate bob once
	assert.Equal(t, len(DefaultOutputs()), e.spy.count("bob"))
	assert.Equal(t, 3.0, e.total(t, "bob"))
}

func TestPoller_InvalidResultsStayPending(t *testing.T) {
	e := newEnv(t)
	noY := publicInput("S1", "P1", "R1", testKey)[:9]
	wrongKey := publicInput("S2", "P2", "R1", SignerKey{X: "1", Y: "2"})

	_, err := e.jobs.Submit("carol", "J1")
	require.NoError(t, err)
	_, err = e.jobs.Submit("carol", "J2")
	require.NoError(t, err)
	e.prover.script("J1", fakeAnswer{res: prover.Result{PublicInput: noY}}, validAnswer("S1", "P1", "R1"))
	e.prover.script("J2", fakeAnswer{res: prover.Result{PublicInput: wrongKey}})

	report := e.cycle(t)
	assert.Equal(t, 2, report.Discarded)
	assert.Zero(t, report.Completed)
	pending, err := e.jobs.ListPending()
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	// a later complete payload is accepted
	report = e.cycle(t)
	assert.Equal(t, 1, report.Completed)
	assert.Equal(t, 1, report.Discarded)
	assert.Equal(t, 1.0, e.total(t, "carol"))
}

func TestPoller_IsolatesPerJobFailures(t *testing.T) {
	e := newEnv(t)
	for _, id := range []string{"J1", "J2", "J3"} {
		_, err := e.jobs.Submit("dave", id)
		require.NoError(t, err)
	}
	e.prover.script("J1", fakeAnswer{err: errors.New("connection refused")})
	e.prover.script("J2", fakeAnswer{err: context.DeadlineExceeded})
	e.prover.script("J3", validAnswer("S3", "P3", "R"))

	report := e.cycle(t)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, report.StillPending)
	assert.Equal(t, 1, report.Completed)
	assert.Equal(t, 1.0, e.total(t, "dave"))

	pending, err := e.jobs.ListPending()
	require.NoError(t, err)
	assert.Len(t, pending, 2)
}

func TestPoller_RecoversUnaggregatedCompletions(t *testing.T) {
	e := newEnv(t)
	_, err := e.jobs.Submit("erin", "J1")
	require.NoError(t, err)
	// completion persisted by a cycle that died before aggregating
	_, err = e.jobs.MarkCompleted("J1", models.ProofFields{SigNullifier: "S", PubkeyNullifier: "P", PubkeyNullifierRandomnessHash: "R"})
	require.NoError(t, err)

	report := e.cycle(t)
	assert.Zero(t, report.Pending)
	assert.Equal(t, 1, report.UsersAggregated)
	assert.Equal(t, 1.0, e.total(t, "erin"))

	dirty, err := e.jobs.ListDirtyUsers()
	require.NoError(t, err)
	assert.Empty(t, dirty)
}

type failingJobs struct {
	repository.ProofRepositoryInterface
}

func (failingJobs) ListPending() ([]*models.ProofJob, error) {
	return nil, errors.New("store closed")
}

func TestPoller_StoreFailureIsReturned(t *testing.T) {
	e := newEnv(t)
	p := NewPoller(failingJobs{e.jobs}, e.prover, NewValidator(testKey), nil, nil, PollerOptions{})
	_, err := p.RunCycle(context.Background())
	assert.Error(t, err)
}

func TestPoller_CancelledCycleLeavesJobsPending(t *testing.T) {
	e := newEnv(t)
	_, err := e.jobs.Submit("frank", "J1")
	require.NoError(t, err)
	e.prover.script("J1", validAnswer("S", "P", "R"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = e.poller.RunCycle(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	pending, err := e.jobs.ListPending()
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	e.cycle(t)
	assert.Equal(t, 1.0, e.total(t, "frank"))
}

func TestPoller_RunAndTrigger(t *testing.T) {
	e := newEnv(t)
	_, err := e.jobs.Submit("gina", "J1")
	require.NoError(t, err)
	e.prover.script("J1", validAnswer("S", "P", "R"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.poller.Run(ctx) }()

	e.poller.Trigger()
	require.Eventually(t, func() bool {
		v, err := e.board.Value("gina", models.IssuerEthIndia2024, models.EntryTypeEthIndia2024TapCount)
		return err == nil && v == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("poller did not stop")
	}
}

func TestCounts(t *testing.T) {
	jobs := []*models.ProofJob{
		{PubkeyNullifier: "A", PubkeyNullifierRandomnessHash: "R"},
		{PubkeyNullifier: "B", PubkeyNullifierRandomnessHash: "R"},
		{PubkeyNullifier: "A", PubkeyNullifierRandomnessHash: "R"},
		{PubkeyNullifier: "C", PubkeyNullifierRandomnessHash: "R"},
	}
	counts, err := Counts(jobs)
	require.NoError(t, err)
	assert.Equal(t, 3, counts[SeriesTotal])

	jobs = append(jobs, &models.ProofJob{PubkeyNullifier: "D", PubkeyNullifierRandomnessHash: "R2"})
	_, err = Counts(jobs)
	assert.ErrorIs(t, err, ErrInconsistentRandomness)

	counts, err = Counts(nil)
	require.NoError(t, err)
	assert.Zero(t, counts[SeriesTotal])
}
