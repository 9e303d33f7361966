package models

import (
	"sort"

	"github.com/google/uuid"
)

// Player is one connected participant in a lobby. Identity is the
// connection's guest ID; a player exists only while their connection
// does.
type Player struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Score int       `json:"score"`

	// JoinSeq records insertion order for deterministic host promotion.
	JoinSeq int `json:"-"`
}

// LeaderboardEntry is the broadcast-facing view of a player.
type LeaderboardEntry struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Score int    `json:"score"`
}

// Leaderboard returns players sorted by score descending, ties broken
// by name so repeated snapshots are stable.
func Leaderboard(players map[uuid.UUID]*Player) []LeaderboardEntry {
	entries := make([]LeaderboardEntry, 0, len(players))
	for _, p := range players {
		entries = append(entries, LeaderboardEntry{
			ID:    p.ID.String(),
			Name:  p.Name,
			Score: p.Score,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return entries[i].Name < entries[j].Name
	})
	return entries
}
