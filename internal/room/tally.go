package room

import (
	"sort"

	"github.com/Rajkoli143/server/pkg/models"
)

// applyVote sets, overwrites or (for vote == 0) removes the user's vote
// on the song and recomputes VoteCount as the sum of all remaining
// entries. No bound on the vote magnitude is enforced here; range
// checks belong to the request boundary.
func applyVote(song *models.Song, userID string, vote int) {
	if song.Votes == nil {
		song.Votes = make(map[string]int)
	}
	if vote == 0 {
		delete(song.Votes, userID)
	} else {
		song.Votes[userID] = vote
	}
	total := 0
	for _, v := range song.Votes {
		total += v
	}
	song.VoteCount = total
}

// reorder sorts the queue by VoteCount descending. The sort is stable:
// entries with equal counts keep their prior relative order.
func reorder(queue []models.Song) {
	sort.SliceStable(queue, func(i, j int) bool {
		return queue[i].VoteCount > queue[j].VoteCount
	})
}
