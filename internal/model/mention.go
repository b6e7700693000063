package model

// MentionCandidate is a mention annotated for processing. A candidate is
// partial until enrichment populates the annotation fields; enrichment must
// complete (or the candidate is dropped) before it enters the batch.
type MentionCandidate struct {
	Tweet  *Tweet
	Author *TwitterUser

	// Prompt is the mention text normalized for the answer engine
	// (leading handles stripped, whitespace collapsed).
	Prompt string

	// MentionDepth counts @-mentions in the tweet, a cheap proxy for how
	// deep in a group conversation the mention sits.
	MentionDepth int

	Priority       float64
	FollowersCount int
	URL            string
	IsReply        bool
}

// MentionFetchResult accumulates one cursor-bounded fetch: the new mentions
// plus every referenced tweet and author observed while gathering them.
// SinceID is the true maximum tweet ID across cache and live results; the
// caller never needs to re-scan to recompute it.
type MentionFetchResult struct {
	Mentions []*Tweet                `json:"mentions"`
	Users    map[string]*TwitterUser `json:"users"`
	Tweets   map[string]*Tweet       `json:"tweets"`
	SinceID  string                  `json:"since_id"`
}

func NewMentionFetchResult(sinceID string) *MentionFetchResult {
	return &MentionFetchResult{
		Users:   make(map[string]*TwitterUser),
		Tweets:  make(map[string]*Tweet),
		SinceID: sinceID,
	}
}

// Merge folds other into r, deduplicating mentions by ID and raising SinceID.
func (r *MentionFetchResult) Merge(other *MentionFetchResult) {
	if other == nil {
		return
	}
	seen := make(map[string]struct{}, len(r.Mentions))
	for _, m := range r.Mentions {
		seen[m.ID] = struct{}{}
	}
	for _, m := range other.Mentions {
		if _, ok := seen[m.ID]; ok {
			continue
		}
		seen[m.ID] = struct{}{}
		r.Mentions = append(r.Mentions, m)
		r.SinceID = MaxTweetID(r.SinceID, m.ID)
	}
	for id, u := range other.Users {
		r.Users[id] = u
	}
	for id, t := range other.Tweets {
		r.Tweets[id] = t
	}
	r.SinceID = MaxTweetID(r.SinceID, other.SinceID)
}
