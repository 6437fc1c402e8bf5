package models

// ChipIssuer identifies the community that issued the chips behind a
// leaderboard series.
type ChipIssuer string

const (
	IssuerDevcon2024    ChipIssuer = "DEVCON_2024"
	IssuerEdgeCityLanna ChipIssuer = "EDGE_CITY_LANNA"
	IssuerEthIndia2024  ChipIssuer = "ETH_INDIA_2024"
)

// LeaderboardEntryType names a counter series within an issuer.
type LeaderboardEntryType string

const (
	EntryTypeTotalTapCount              LeaderboardEntryType = "TOTAL_TAP_COUNT"
	EntryTypeEthIndia2024TapCount       LeaderboardEntryType = "ETHINDIA_2024_TAP_COUNT"
	EntryTypeUserRegistrationOnboarding LeaderboardEntryType = "USER_REGISTRATION_ONBOARDING"
)

// KnownIssuer reports whether the issuer is one the service accepts
func KnownIssuer(i ChipIssuer) bool {
	switch i {
	case IssuerDevcon2024, IssuerEdgeCityLanna, IssuerEthIndia2024:
		return true
	}
	return false
}

// KnownEntryType reports whether the entry type is one the service accepts
func KnownEntryType(t LeaderboardEntryType) bool {
	switch t {
	case EntryTypeTotalTapCount, EntryTypeEthIndia2024TapCount, EntryTypeUserRegistrationOnboarding:
		return true
	}
	return false
}

// LeaderboardEntry is the stored aggregate for one (username, issuer, entryType).
// EntryType is empty for the legacy tap-count series, which keeps its value in
// TapCount rather than EntryValue.
type LeaderboardEntry struct {
	Username   string               `json:"username"`
	ChipIssuer ChipIssuer           `json:"chip_issuer"`
	EntryType  LeaderboardEntryType `json:"entry_type,omitempty"`
	EntryValue float64              `json:"entry_value"`
	TapCount   int64                `json:"tap_count,omitempty"`
	UpdatedAt  int64                `json:"updated_at"` // unix timestamp in ms
}

// RankedEntry is one row of a ranked leaderboard view
type RankedEntry struct {
	Username   string  `json:"username"`
	EntryValue float64 `json:"entryValue"`
	Rank       int     `json:"rank"`
}

// LeaderboardDetails summarises a user's standing in one series
type LeaderboardDetails struct {
	Username          string  `json:"username"`
	UserPosition      int     `json:"userPosition"`
	UserValue         float64 `json:"userValue"`
	TotalContributors int     `json:"totalContributors"`
	TotalValue        float64 `json:"totalValue"`
}
