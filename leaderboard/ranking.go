package leaderboard

import (
	"sort"

	"proof-leaderboard/models"
)

// Rank orders entries by value descending then username ascending, and
// assigns competition ranks: an entry tied with its predecessor shares the
// predecessor's rank, and the next distinct value resumes at its position.
// Values [10, 10, 7] rank [1, 1, 3].
func Rank(entries []models.RankedEntry) []models.RankedEntry {
	out := make([]models.RankedEntry, len(entries))
	copy(out, entries)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].EntryValue != out[j].EntryValue {
			return out[i].EntryValue > out[j].EntryValue
		}
		return out[i].Username < out[j].Username
	})
	for i := range out {
		if i > 0 && out[i].EntryValue == out[i-1].EntryValue {
			out[i].Rank = out[i-1].Rank
			continue
		}
		out[i].Rank = i + 1
	}
	return out
}
