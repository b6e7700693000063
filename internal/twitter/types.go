package twitter

import (
	"time"

	"quillbird.app/bot/internal/model"
)

// Wire types for the v2 API. Only the fields the pipeline consumes.

type tweetObject struct {
	ID               string            `json:"id"`
	AuthorID         string            `json:"author_id"`
	Text             string            `json:"text"`
	ConversationID   string            `json:"conversation_id"`
	CreatedAt        *time.Time        `json:"created_at,omitempty"`
	ReferencedTweets []referencedTweet `json:"referenced_tweets,omitempty"`
}

type referencedTweet struct {
	Type string `json:"type"` // "replied_to", "quoted", "retweeted"
	ID   string `json:"id"`
}

type userObject struct {
	ID            string `json:"id"`
	Username      string `json:"username"`
	Name          string `json:"name"`
	PublicMetrics struct {
		FollowersCount int `json:"followers_count"`
	} `json:"public_metrics"`
}

type includesObject struct {
	Users  []userObject  `json:"users,omitempty"`
	Tweets []tweetObject `json:"tweets,omitempty"`
}

type metaObject struct {
	NewestID    string `json:"newest_id"`
	OldestID    string `json:"oldest_id"`
	ResultCount int    `json:"result_count"`
	NextToken   string `json:"next_token"`
}

type timelineResponse struct {
	Data     []tweetObject  `json:"data"`
	Includes includesObject `json:"includes"`
	Meta     metaObject     `json:"meta"`
	Errors   []apiDetail    `json:"errors,omitempty"`
}

type tweetLookupResponse struct {
	Data     *tweetObject   `json:"data"`
	Includes includesObject `json:"includes"`
	Errors   []apiDetail    `json:"errors,omitempty"`
}

type userLookupResponse struct {
	Data   *userObject `json:"data"`
	Errors []apiDetail `json:"errors,omitempty"`
}

type postTweetRequest struct {
	Text  string          `json:"text"`
	Reply *postTweetReply `json:"reply,omitempty"`
}

type postTweetReply struct {
	InReplyToTweetID string `json:"in_reply_to_tweet_id"`
}

type postTweetResponse struct {
	Data struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	} `json:"data"`
}

type apiDetail struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
	Type   string `json:"type"`
}

func (t tweetObject) toModel() *model.Tweet {
	out := &model.Tweet{
		ID:        t.ID,
		AuthorID:  t.AuthorID,
		Text:      t.Text,
		CreatedAt: t.CreatedAt,
	}
	if t.ConversationID != "" {
		cid := t.ConversationID
		out.ConversationID = &cid
	}
	for _, ref := range t.ReferencedTweets {
		refID := ref.ID
		switch ref.Type {
		case "replied_to":
			out.InReplyToTweetID = &refID
		case "quoted":
			out.QuotedTweetID = &refID
		}
	}
	return out
}

func (u userObject) toModel() *model.TwitterUser {
	return &model.TwitterUser{
		ID:             u.ID,
		Username:       u.Username,
		Name:           u.Name,
		FollowersCount: u.PublicMetrics.FollowersCount,
	}
}
