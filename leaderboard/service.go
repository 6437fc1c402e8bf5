package leaderboard

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"proof-leaderboard/keymutex"
	"proof-leaderboard/logger"
	"proof-leaderboard/models"
	"proof-leaderboard/repository"
)

// ErrMissingEntryUsername is returned when an incremental bucket is written
// without naming the user it is credited to
var ErrMissingEntryUsername = errors.New("missing entry username")

// Service is the leaderboard read/write model over the entry repository.
// Writes to one identity are serialized; reads take no lock.
type Service struct {
	repo    repository.LeaderboardRepositoryInterface
	buckets *Buckets
	locks   *keymutex.KeyMutex
	now     func() time.Time
}

func NewService(repo repository.LeaderboardRepositoryInterface, buckets *Buckets) *Service {
	return &Service{
		repo:    repo,
		buckets: buckets,
		locks:   keymutex.New(),
		now:     time.Now,
	}
}

// Buckets exposes the registry the service resolves series with
func (s *Service) Buckets() *Buckets {
	return s.buckets
}

func lockKey(b Bucket, username string) string {
	return string(b.Issuer) + "/" + string(b.StorageEntryType) + "/" + username
}

// load returns the stored entry or a fresh zero entry for the identity
func (s *Service) load(b Bucket, username string) (*models.LeaderboardEntry, bool, error) {
	entry, err := s.repo.GetEntry(b.Issuer, b.StorageEntryType, username)
	if errors.Is(err, repository.ErrEntryNotFound) {
		return &models.LeaderboardEntry{
			Username:   username,
			ChipIssuer: b.Issuer,
			EntryType:  b.StorageEntryType,
		}, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return entry, true, nil
}

// Update sets the value of an entry, creating it if needed
func (s *Service) Update(username string, issuer models.ChipIssuer, entryType models.LeaderboardEntryType, value float64) error {
	b, err := s.buckets.Resolve(issuer, entryType)
	if err != nil {
		return err
	}
	if username == "" {
		return fmt.Errorf("%w: empty username", ErrInvalidBucket)
	}

	unlock := s.locks.Lock(lockKey(b, username))
	defer unlock()

	entry, _, err := s.load(b, username)
	if err != nil {
		return fmt.Errorf("load entry: %w", err)
	}
	b.write(entry, value)
	entry.UpdatedAt = s.now().UnixMilli()
	if err := s.repo.PutEntry(entry); err != nil {
		return fmt.Errorf("update entry: %w", err)
	}
	return nil
}

// Increment adds delta to an entry. A missing entry is created with delta as
// its value; an existing one only ever grows, so non-positive deltas leave it
// unchanged.
func (s *Service) Increment(username string, issuer models.ChipIssuer, entryType models.LeaderboardEntryType, delta float64) error {
	b, err := s.buckets.Resolve(issuer, entryType)
	if err != nil {
		return err
	}
	if username == "" {
		return fmt.Errorf("%w: empty username", ErrInvalidBucket)
	}

	unlock := s.locks.Lock(lockKey(b, username))
	defer unlock()

	entry, found, err := s.load(b, username)
	if err != nil {
		return fmt.Errorf("load entry: %w", err)
	}
	switch {
	case !found:
		b.write(entry, delta)
	case delta > 0:
		b.write(entry, b.read(entry)+delta)
	default:
		logger.Logger.Debug("Ignoring non-positive increment",
			zap.String("username", username),
			zap.String("issuer", string(issuer)),
			zap.String("entry_type", string(entryType)),
			zap.Float64("delta", delta))
		return nil
	}
	entry.UpdatedAt = s.now().UnixMilli()
	if err := s.repo.PutEntry(entry); err != nil {
		return fmt.Errorf("increment entry: %w", err)
	}
	return nil
}

// ClientWrite applies a client-driven update according to the bucket's mode.
// Incremental buckets credit entryUsername; absolute buckets write the
// authenticated user; proof-derived buckets cannot be written by clients.
func (s *Service) ClientWrite(authUser, entryUsername string, issuer models.ChipIssuer, entryType models.LeaderboardEntryType, value float64) error {
	b, err := s.buckets.Resolve(issuer, entryType)
	if err != nil {
		return err
	}
	switch b.Mode {
	case ModeIncrement:
		if entryUsername == "" {
			return ErrMissingEntryUsername
		}
		return s.Increment(entryUsername, issuer, entryType, value)
	case ModeNullifier:
		return fmt.Errorf("%w: %s/%s", ErrDerivedBucket, issuer, entryType)
	default:
		return s.Update(authUser, issuer, entryType, value)
	}
}

// Value returns a user's value, or 0 if they have no entry
func (s *Service) Value(username string, issuer models.ChipIssuer, entryType models.LeaderboardEntryType) (float64, error) {
	b, err := s.buckets.Resolve(issuer, entryType)
	if err != nil {
		return 0, err
	}
	entry, _, err := s.load(b, username)
	if err != nil {
		return 0, err
	}
	return b.read(entry), nil
}

func (s *Service) series(issuer models.ChipIssuer, entryType models.LeaderboardEntryType) (Bucket, []*models.LeaderboardEntry, error) {
	b, err := s.buckets.Resolve(issuer, entryType)
	if err != nil {
		return Bucket{}, nil, err
	}
	entries, err := s.repo.ListEntries(b.Issuer, b.StorageEntryType)
	if err != nil {
		return Bucket{}, nil, err
	}
	return b, entries, nil
}

// Sum totals the values of a series
func (s *Service) Sum(issuer models.ChipIssuer, entryType models.LeaderboardEntryType) (float64, error) {
	b, entries, err := s.series(issuer, entryType)
	if err != nil {
		return 0, err
	}
	var total float64
	for _, e := range entries {
		total += b.read(e)
	}
	return total, nil
}

// Count returns the number of contributors to a series
func (s *Service) Count(issuer models.ChipIssuer, entryType models.LeaderboardEntryType) (int, error) {
	_, entries, err := s.series(issuer, entryType)
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

// TopN returns the ranked series. limit <= 0 returns every entry.
func (s *Service) TopN(issuer models.ChipIssuer, entryType models.LeaderboardEntryType, limit int) ([]models.RankedEntry, error) {
	b, entries, err := s.series(issuer, entryType)
	if err != nil {
		return nil, err
	}
	rows := make([]models.RankedEntry, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, models.RankedEntry{Username: e.Username, EntryValue: b.read(e)})
	}
	ranked := Rank(rows)
	if limit > 0 && limit < len(ranked) {
		ranked = ranked[:limit]
	}
	return ranked, nil
}

// PositionOf returns the user's rank in the full series, or 0 when the user
// has no entry
func (s *Service) PositionOf(username string, issuer models.ChipIssuer, entryType models.LeaderboardEntryType) (int, error) {
	ranked, err := s.TopN(issuer, entryType, 0)
	if err != nil {
		return 0, err
	}
	for _, r := range ranked {
		if r.Username == username {
			return r.Rank, nil
		}
	}
	return 0, nil
}

// Details gathers a user's position, value and the series totals
func (s *Service) Details(username string, issuer models.ChipIssuer, entryType models.LeaderboardEntryType) (*models.LeaderboardDetails, error) {
	position, err := s.PositionOf(username, issuer, entryType)
	if err != nil {
		return nil, fmt.Errorf("position: %w", err)
	}
	value, err := s.Value(username, issuer, entryType)
	if err != nil {
		return nil, fmt.Errorf("value: %w", err)
	}
	contributors, err := s.Count(issuer, entryType)
	if err != nil {
		return nil, fmt.Errorf("contributors: %w", err)
	}
	total, err := s.Sum(issuer, entryType)
	if err != nil {
		return nil, fmt.Errorf("total value: %w", err)
	}
	return &models.LeaderboardDetails{
		Username:          username,
		UserPosition:      position,
		UserValue:         value,
		TotalContributors: contributors,
		TotalValue:        total,
	}, nil
}
