package leaderboard

import (
	"errors"
	"fmt"
	"math"

	"proof-leaderboard/models"
)

var (
	// ErrInvalidBucket is returned for an unknown issuer or entry type
	ErrInvalidBucket = errors.New("invalid leaderboard bucket")
	// ErrDerivedBucket is returned when a client tries to write a series that
	// is computed from proofs
	ErrDerivedBucket = errors.New("leaderboard bucket is derived from proofs")
)

// Field selects which stored attribute carries a bucket's value
type Field int

const (
	FieldEntryValue Field = iota
	FieldTapCount
)

// Mode is how a bucket's value comes to be
type Mode int

const (
	// ModeAbsolute buckets are overwritten by client updates
	ModeAbsolute Mode = iota
	// ModeIncrement buckets only grow, by positive client deltas
	ModeIncrement
	// ModeNullifier buckets are recomputed from deduplicated proof nullifiers
	ModeNullifier
)

func (m Mode) String() string {
	switch m {
	case ModeAbsolute:
		return "absolute"
	case ModeIncrement:
		return "increment"
	case ModeNullifier:
		return "nullifier"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// BucketID names a leaderboard series as clients see it
type BucketID struct {
	Issuer    models.ChipIssuer
	EntryType models.LeaderboardEntryType
}

// Bucket is the resolved storage and write strategy of one series
type Bucket struct {
	BucketID
	StorageEntryType models.LeaderboardEntryType
	Field            Field
	Mode             Mode
}

func (b Bucket) read(e *models.LeaderboardEntry) float64 {
	if b.Field == FieldTapCount {
		return float64(e.TapCount)
	}
	return e.EntryValue
}

func (b Bucket) write(e *models.LeaderboardEntry, v float64) {
	if b.Field == FieldTapCount {
		e.TapCount = int64(math.Round(v))
		return
	}
	e.EntryValue = v
}

// Buckets maps every series to its strategy. It is built once and read-only
// afterwards.
type Buckets struct {
	resolved map[BucketID]Bucket
}

// NewBuckets builds the registry. derived lists the series the proof
// aggregator owns.
func NewBuckets(derived []BucketID) (*Buckets, error) {
	b := &Buckets{resolved: make(map[BucketID]Bucket)}

	// Lanna tap counts predate entry types and live in the tapCount column
	lanna := BucketID{Issuer: models.IssuerEdgeCityLanna, EntryType: models.EntryTypeTotalTapCount}
	b.resolved[lanna] = Bucket{BucketID: lanna, StorageEntryType: "", Field: FieldTapCount, Mode: ModeAbsolute}

	for _, issuer := range []models.ChipIssuer{models.IssuerDevcon2024, models.IssuerEdgeCityLanna, models.IssuerEthIndia2024} {
		id := BucketID{Issuer: issuer, EntryType: models.EntryTypeUserRegistrationOnboarding}
		b.resolved[id] = Bucket{BucketID: id, StorageEntryType: id.EntryType, Mode: ModeIncrement}
	}

	for _, id := range derived {
		if !models.KnownIssuer(id.Issuer) || !models.KnownEntryType(id.EntryType) {
			return nil, fmt.Errorf("%w: derived %s/%s", ErrInvalidBucket, id.Issuer, id.EntryType)
		}
		if existing, ok := b.resolved[id]; ok && existing.Mode != ModeAbsolute {
			return nil, fmt.Errorf("%w: %s/%s is already %s", ErrInvalidBucket, id.Issuer, id.EntryType, existing.Mode)
		}
		b.resolved[id] = Bucket{BucketID: id, StorageEntryType: id.EntryType, Mode: ModeNullifier}
	}
	return b, nil
}

// Resolve returns the strategy for a series
func (b *Buckets) Resolve(issuer models.ChipIssuer, entryType models.LeaderboardEntryType) (Bucket, error) {
	if !models.KnownIssuer(issuer) || !models.KnownEntryType(entryType) {
		return Bucket{}, fmt.Errorf("%w: %q/%q", ErrInvalidBucket, issuer, entryType)
	}
	id := BucketID{Issuer: issuer, EntryType: entryType}
	if bucket, ok := b.resolved[id]; ok {
		return bucket, nil
	}
	return Bucket{BucketID: id, StorageEntryType: entryType, Mode: ModeAbsolute}, nil
}
