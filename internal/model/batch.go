package model

import "time"

// BatchResult aggregates one processing pass. The three error flags are an
// OR-accumulator across every candidate in the batch: the control loop only
// needs "did anything in this batch hit condition X".
type BatchResult struct {
	Candidates   []*MentionCandidate
	NumFollowups int // postponed past this batch by the per-batch cap

	Tweets   map[string]*Tweet
	Users    map[string]*TwitterUser
	Messages []*Message

	// SinceID is the cursor the batch started from; MaxProcessedID is the
	// largest mention ID fully settled in this batch, either responded to or
	// closed with a final error.
	SinceID        string
	MaxProcessedID string

	HasTwitterRateLimitError bool
	HasTwitterAuthError      bool
	HasNetworkError          bool
}

func NewBatchResult(sinceID string) *BatchResult {
	return &BatchResult{
		Tweets:  make(map[string]*Tweet),
		Users:   make(map[string]*TwitterUser),
		SinceID: sinceID,
	}
}

// RecordError sets the sticky flag for the given error class. Flags are
// never reset within a batch.
func (r *BatchResult) RecordError(t ErrorType) {
	switch t {
	case ErrorTypeRateLimit:
		r.HasTwitterRateLimitError = true
	case ErrorTypeAuth:
		r.HasTwitterAuthError = true
	case ErrorTypeNetwork:
		r.HasNetworkError = true
	}
}

// RecordSuccess raises the successfully-processed high-water mark.
func (r *BatchResult) RecordSuccess(tweetID string) {
	r.MaxProcessedID = MaxTweetID(r.MaxProcessedID, tweetID)
}

// ErrorCount counts turns persisted with an error in this batch.
func (r *BatchResult) ErrorCount() int {
	n := 0
	for _, m := range r.Messages {
		if m.Error != nil {
			n++
		}
	}
	return n
}

// RepliedCount counts turns successfully responded to in this batch.
func (r *BatchResult) RepliedCount() int {
	n := 0
	for _, m := range r.Messages {
		if m.Responded() {
			n++
		}
	}
	return n
}

// BatchRun is the persisted summary of one control-loop iteration, kept so
// operator debugging does not depend on scraping logs.
type BatchRun struct {
	ID             int64
	AccountID      string
	StartedAt      time.Time
	FinishedAt     time.Time
	CandidateCount int
	RepliedCount   int
	ErrorCount     int
	PostponedCount int
	SinceID        string
	MaxProcessedID string

	HasTwitterRateLimitError bool
	HasTwitterAuthError      bool
	HasNetworkError          bool
}
