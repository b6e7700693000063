package bot

import (
	"math"
	"sort"

	"quillbird.app/bot/internal/model"
)

// ScoreFunc ranks a candidate; higher scores are processed first. The policy
// is injectable so ranking changes never touch the processor.
type ScoreFunc func(c *model.MentionCandidate) float64

// DefaultScore favors direct replies from accounts with reach, and mentions
// sitting deeper in an active conversation.
func DefaultScore(c *model.MentionCandidate) float64 {
	score := math.Log2(1 + float64(c.FollowersCount))
	score += 2 * math.Min(float64(c.MentionDepth), 4)
	if c.IsReply {
		score += 4
	}
	return score
}

// rankCandidates sorts by descending priority. Ties break on tweet ID so a
// re-run of the same batch admits the same candidates.
func rankCandidates(candidates []*model.MentionCandidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Priority != candidates[j].Priority {
			return candidates[i].Priority > candidates[j].Priority
		}
		return model.CompareTweetIDs(candidates[i].Tweet.ID, candidates[j].Tweet.ID) > 0
	})
}
