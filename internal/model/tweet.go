package model

import "time"

// Tweet is a remote post as returned by the platform. Cached locally,
// never mutated by this system.
type Tweet struct {
	ID               string     `json:"id"`
	AuthorID         string     `json:"author_id"`
	Text             string     `json:"text"`
	ConversationID   *string    `json:"conversation_id,omitempty"`
	InReplyToTweetID *string    `json:"in_reply_to_tweet_id,omitempty"`
	QuotedTweetID    *string    `json:"quoted_tweet_id,omitempty"`
	CreatedAt        *time.Time `json:"created_at,omitempty"`
}

// TwitterUser is the author profile snapshot attached to fetched tweets.
type TwitterUser struct {
	ID             string `json:"id"`
	Username       string `json:"username"`
	Name           string `json:"name"`
	FollowersCount int    `json:"followers_count"`
}
