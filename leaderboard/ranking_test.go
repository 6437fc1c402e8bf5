package leaderboard

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"proof-leaderboard/models"
)

func TestRank_TieSharesLowerRank(t *testing.T) {
	ranked := Rank([]models.RankedEntry{
		{Username: "b", EntryValue: 50},
		{Username: "a", EntryValue: 50},
		{Username: "c", EntryValue: 30},
	})
	assert.Equal(t, []models.RankedEntry{
		{Username: "a", EntryValue: 50, Rank: 1},
		{Username: "b", EntryValue: 50, Rank: 1},
		{Username: "c", EntryValue: 30, Rank: 3},
	}, ranked)
}

func TestRank_SkipsAfterTieGroup(t *testing.T) {
	ranked := Rank([]models.RankedEntry{
		{Username: "x", EntryValue: 7},
		{Username: "y", EntryValue: 10},
		{Username: "z", EntryValue: 10},
		{Username: "w", EntryValue: 10},
		{Username: "v", EntryValue: 1},
	})
	var ranks []int
	var names []string
	for _, r := range ranked {
		ranks = append(ranks, r.Rank)
		names = append(names, r.Username)
	}
	assert.Equal(t, []string{"w", "y", "z", "x", "v"}, names)
	assert.Equal(t, []int{1, 1, 1, 4, 5}, ranks)
}

func TestRank_DoesNotMutateInput(t *testing.T) {
	in := []models.RankedEntry{{Username: "b", EntryValue: 1}, {Username: "a", EntryValue: 2}}
	_ = Rank(in)
	assert.Equal(t, "b", in[0].Username)
	assert.Zero(t, in[0].Rank)
}

func TestRank_Empty(t *testing.T) {
	assert.Empty(t, Rank(nil))
}
