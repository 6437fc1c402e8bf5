package repository

import (
	"encoding/json"
	"fmt"
	"strings"

	"proof-leaderboard/db"
	"proof-leaderboard/models"
)

const leaderboardPrefix = "lb/"

// LeaderboardRepositoryInterface abstracts leaderboard entry storage.
// entryType is the storage entry type, which is empty for legacy series.
type LeaderboardRepositoryInterface interface {
	GetEntry(issuer models.ChipIssuer, entryType models.LeaderboardEntryType, username string) (*models.LeaderboardEntry, error)
	PutEntry(entry *models.LeaderboardEntry) error
	ListEntries(issuer models.ChipIssuer, entryType models.LeaderboardEntryType) ([]*models.LeaderboardEntry, error)
}

// LeaderboardRepository stores one JSON document per entry under
// lb/<issuer>/<entryType>/<username>, so a whole series is one prefix scan.
type LeaderboardRepository struct {
	db *db.LevelDB
}

// NewLeaderboardRepository creates and returns a new LeaderboardRepository instance
func NewLeaderboardRepository(db *db.LevelDB) *LeaderboardRepository {
	return &LeaderboardRepository{db: db}
}

func seriesPrefix(issuer models.ChipIssuer, entryType models.LeaderboardEntryType) []byte {
	return []byte(leaderboardPrefix + string(issuer) + "/" + string(entryType) + "/")
}

func entryKey(issuer models.ChipIssuer, entryType models.LeaderboardEntryType, username string) []byte {
	return append(seriesPrefix(issuer, entryType), username...)
}

func validSeries(issuer models.ChipIssuer, entryType models.LeaderboardEntryType) error {
	if issuer == "" || strings.Contains(string(issuer), "/") || strings.Contains(string(entryType), "/") {
		return fmt.Errorf("invalid series %q/%q", issuer, entryType)
	}
	return nil
}

// GetEntry returns ErrEntryNotFound when the identity has never been written
func (r *LeaderboardRepository) GetEntry(issuer models.ChipIssuer, entryType models.LeaderboardEntryType, username string) (*models.LeaderboardEntry, error) {
	if err := validSeries(issuer, entryType); err != nil {
		return nil, err
	}
	var entry models.LeaderboardEntry
	found, err := getJSON(r.db, entryKey(issuer, entryType, username), &entry)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrEntryNotFound
	}
	return &entry, nil
}

// PutEntry creates or replaces the entry for its identity
func (r *LeaderboardRepository) PutEntry(entry *models.LeaderboardEntry) error {
	if err := validSeries(entry.ChipIssuer, entry.EntryType); err != nil {
		return err
	}
	if entry.Username == "" {
		return fmt.Errorf("leaderboard entry without username")
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return r.db.Put(entryKey(entry.ChipIssuer, entry.EntryType, entry.Username), data)
}

// ListEntries returns every entry in the series, in key (username) order
func (r *LeaderboardRepository) ListEntries(issuer models.ChipIssuer, entryType models.LeaderboardEntryType) ([]*models.LeaderboardEntry, error) {
	if err := validSeries(issuer, entryType); err != nil {
		return nil, err
	}
	iter := r.db.NewPrefixIterator(seriesPrefix(issuer, entryType))
	defer iter.Release()

	var entries []*models.LeaderboardEntry
	for iter.Next() {
		var entry models.LeaderboardEntry
		if err := json.Unmarshal(iter.Value(), &entry); err != nil {
			return nil, err
		}
		entries = append(entries, &entry)
	}
	return entries, iter.Error()
}
