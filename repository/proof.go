package repository

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/syndtr/goleveldb/leveldb"

	"proof-leaderboard/db"
	"proof-leaderboard/models"
)

const (
	jobPrefix     = "proof/job/"
	pendingPrefix = "proof/pending/"
	userPrefix    = "proof/user/"
	dirtyPrefix   = "proof/dirty/"

	maxJobFieldLen = 256
)

// ProofRepositoryInterface abstracts proof job storage
type ProofRepositoryInterface interface {
	Submit(username, jobID string) (*models.ProofJob, error)
	GetJob(jobID string) (*models.ProofJob, error)
	ListPending() ([]*models.ProofJob, error)
	MarkCompleted(jobID string, fields models.ProofFields) (bool, error)
	ListCompletedForUser(username string) ([]*models.ProofJob, error)
	ListDirtyUsers() ([]string, error)
	DirtyToken(username string) (string, error)
	MarkClean(username, token string) error
}

// ProofRepository keeps jobs under proof/job/<id> with two marker indexes:
// proof/pending/<id> while the job is open and proof/user/<username>\x00<id>.
// proof/dirty/<username> is set with every completion and cleared once the
// user's leaderboard entries have been recomputed, so a crash between the
// two steps is picked up by the next poll cycle.
type ProofRepository struct {
	db  *db.LevelDB
	mux sync.Mutex
	now func() time.Time
}

// NewProofRepository creates and returns a new ProofRepository instance
func NewProofRepository(db *db.LevelDB) *ProofRepository {
	return &ProofRepository{db: db, now: time.Now}
}

func jobKey(jobID string) []byte     { return []byte(jobPrefix + jobID) }
func pendingKey(jobID string) []byte { return []byte(pendingPrefix + jobID) }
func userJobsPrefix(username string) []byte {
	return []byte(userPrefix + username + "\x00")
}
func userJobKey(username, jobID string) []byte {
	return append(userJobsPrefix(username), jobID...)
}
func dirtyKey(username string) []byte { return []byte(dirtyPrefix + username) }

func validJobField(name, v string) error {
	if v == "" || len(v) > maxJobFieldLen || strings.ContainsRune(v, 0) {
		return fmt.Errorf("%w: bad %s", ErrInvalidJob, name)
	}
	return nil
}

// Submit stores a new pending job for username
func (r *ProofRepository) Submit(username, jobID string) (*models.ProofJob, error) {
	if err := validJobField("job id", jobID); err != nil {
		return nil, err
	}
	if err := validJobField("username", username); err != nil {
		return nil, err
	}

	r.mux.Lock()
	defer r.mux.Unlock()

	exists, err := r.db.Has(jobKey(jobID))
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateJob, jobID)
	}

	job := &models.ProofJob{
		JobID:     jobID,
		Username:  username,
		CreatedAt: r.now().UnixMilli(),
	}
	data, err := json.Marshal(job)
	if err != nil {
		return nil, err
	}

	batch := new(leveldb.Batch)
	batch.Put(jobKey(jobID), data)
	batch.Put(pendingKey(jobID), nil)
	batch.Put(userJobKey(username, jobID), nil)
	if err := r.db.Write(batch); err != nil {
		return nil, err
	}
	return job, nil
}

// GetJob retrieves a job by id
func (r *ProofRepository) GetJob(jobID string) (*models.ProofJob, error) {
	var job models.ProofJob
	found, err := getJSON(r.db, jobKey(jobID), &job)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	return &job, nil
}

// ListPending returns every job that has not completed yet
func (r *ProofRepository) ListPending() ([]*models.ProofJob, error) {
	iter := r.db.NewPrefixIterator([]byte(pendingPrefix))
	defer iter.Release()

	var ids []string
	for iter.Next() {
		ids = append(ids, string(iter.Key()[len(pendingPrefix):]))
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}
	return r.loadJobs(ids, func(j *models.ProofJob) bool { return !j.JobCompleted })
}

// MarkCompleted records the validated fields and closes the job. It reports
// whether this call made the transition; completing a completed job is a no-op.
func (r *ProofRepository) MarkCompleted(jobID string, fields models.ProofFields) (bool, error) {
	r.mux.Lock()
	defer r.mux.Unlock()

	job, err := r.GetJob(jobID)
	if err != nil {
		return false, err
	}
	if job.JobCompleted {
		return false, nil
	}

	job.JobCompleted = true
	job.SigNullifier = fields.SigNullifier
	job.PubkeyNullifier = fields.PubkeyNullifier
	job.PubkeyNullifierRandomnessHash = fields.PubkeyNullifierRandomnessHash
	completedAt := r.now()
	job.CompletedAt = completedAt.UnixMilli()

	data, err := json.Marshal(job)
	if err != nil {
		return false, err
	}
	batch := new(leveldb.Batch)
	batch.Put(jobKey(jobID), data)
	batch.Delete(pendingKey(jobID))
	batch.Put(dirtyKey(job.Username), []byte(jobID+"@"+strconv.FormatInt(completedAt.UnixNano(), 10)))
	if err := r.db.Write(batch); err != nil {
		return false, err
	}
	return true, nil
}

// ListCompletedForUser returns the user's completed jobs in job id order
func (r *ProofRepository) ListCompletedForUser(username string) ([]*models.ProofJob, error) {
	prefix := userJobsPrefix(username)
	iter := r.db.NewPrefixIterator(prefix)
	defer iter.Release()

	var ids []string
	for iter.Next() {
		ids = append(ids, string(iter.Key()[len(prefix):]))
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}
	return r.loadJobs(ids, func(j *models.ProofJob) bool { return j.JobCompleted })
}

// ListDirtyUsers returns users whose completions are not yet aggregated
func (r *ProofRepository) ListDirtyUsers() ([]string, error) {
	iter := r.db.NewPrefixIterator([]byte(dirtyPrefix))
	defer iter.Release()

	var users []string
	for iter.Next() {
		users = append(users, string(iter.Key()[len(dirtyPrefix):]))
	}
	return users, iter.Error()
}

// DirtyToken returns the user's current dirty marker, or "" if clean
func (r *ProofRepository) DirtyToken(username string) (string, error) {
	data, err := r.db.Get(dirtyKey(username))
	if err != nil {
		if db.IsNotFound(err) {
			return "", nil
		}
		return "", err
	}
	return string(data), nil
}

// MarkClean clears the dirty marker if it still equals token. A completion
// that landed after token was read keeps the user dirty.
func (r *ProofRepository) MarkClean(username, token string) error {
	if token == "" {
		return nil
	}
	r.mux.Lock()
	defer r.mux.Unlock()

	current, err := r.DirtyToken(username)
	if err != nil {
		return err
	}
	if current != token {
		return nil
	}
	batch := new(leveldb.Batch)
	batch.Delete(dirtyKey(username))
	return r.db.Write(batch)
}

func (r *ProofRepository) loadJobs(ids []string, keep func(*models.ProofJob) bool) ([]*models.ProofJob, error) {
	jobs := make([]*models.ProofJob, 0, len(ids))
	for _, id := range ids {
		var job models.ProofJob
		found, err := getJSON(r.db, jobKey(id), &job)
		if err != nil {
			return nil, err
		}
		// the record may have moved on since the index scan
		if !found || !keep(&job) {
			continue
		}
		jobs = append(jobs, &job)
	}
	return jobs, nil
}
