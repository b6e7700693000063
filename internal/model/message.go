package model

import "time"

type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
)

// Message is one bot-tracked conversation turn: the prompt extracted from a
// mention and, once generated and posted, the bot's reply. Its ID equals the
// originating tweet's ID, which is what makes reprocessing idempotent.
//
// Lifecycle: created when a mention first enters filtering; mutated when the
// answer engine produces a response or processing fails; immutable once
// successfully responded to and persisted.
type Message struct {
	ID              string      `json:"id"`
	Role            MessageRole `json:"role"`
	PromptText      string      `json:"prompt_text"`
	PromptTweetID   string      `json:"prompt_tweet_id"`
	PromptUserID    string      `json:"prompt_user_id"`
	PromptUsername  string      `json:"prompt_username"`
	ResponseText    *string     `json:"response_text,omitempty"`
	ResponseTweetID *string     `json:"response_tweet_id,omitempty"`

	// ParentMessageID links to the turn this one replies to within
	// bot-known history. Stored as an ID reference, resolved by keyed
	// lookup, never as an in-memory pointer.
	ParentMessageID *string `json:"parent_message_id,omitempty"`

	Error        *string    `json:"error,omitempty"`
	ErrorType    *ErrorType `json:"error_type,omitempty"`
	IsErrorFinal bool       `json:"is_error_final"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Responded reports whether this turn was successfully replied to.
func (m *Message) Responded() bool {
	return m.ResponseTweetID != nil && *m.ResponseTweetID != ""
}

// Retryable reports whether a past failure on this turn may be retried on a
// later batch. A turn with IsErrorFinal set is never retried.
func (m *Message) Retryable() bool {
	return m.Error != nil && !m.IsErrorFinal
}

// SetError records a classified processing failure on the turn.
func (m *Message) SetError(errMsg string, t ErrorType, final bool) {
	m.Error = &errMsg
	m.ErrorType = &t
	m.IsErrorFinal = final
}
