package repository

import (
	"encoding/json"
	"errors"

	"proof-leaderboard/db"
)

var (
	// ErrDuplicateJob is returned when a job id is submitted twice
	ErrDuplicateJob = errors.New("proof job already exists")
	// ErrJobNotFound is returned for an unknown job id
	ErrJobNotFound = errors.New("proof job not found")
	// ErrInvalidJob is returned for a job id or username that cannot be stored
	ErrInvalidJob = errors.New("invalid proof job")
	// ErrEntryNotFound is returned when no leaderboard entry exists for an identity
	ErrEntryNotFound = errors.New("leaderboard entry not found")
)

// Store is the subset of the LevelDB wrapper the repositories need
type Store interface {
	Put(key, value []byte) error
	Get(key []byte) ([]byte, error)
}

func getJSON(store Store, key []byte, out interface{}) (bool, error) {
	data, err := store.Get(key)
	if err != nil {
		if db.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, err
	}
	return true, nil
}
