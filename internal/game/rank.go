package game

import "sort"

// Rank orders players for every leaderboard and the final ceremony.
// Score descending, then cumulative correct-answer time ascending, then name
// as a stable last resort. Organizers always sort below every non-organizer
// so staff test accounts never occupy a podium spot.
func Rank(players []Player) []Player {
	out := ClonePlayers(players)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.IsOrganizer != b.IsOrganizer {
			return !a.IsOrganizer
		}
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.TotalResponseTime != b.TotalResponseTime {
			return a.TotalResponseTime < b.TotalResponseTime
		}
		return a.Name < b.Name
	})
	return out
}

// Winner returns the top-ranked player, if any non-organizer exists.
func Winner(players []Player) (Player, bool) {
	ranked := Rank(players)
	if len(ranked) == 0 || ranked[0].IsOrganizer {
		return Player{}, false
	}
	return ranked[0], true
}
