package logger

import "context"

type logFieldsKey struct{}

// LogFields are structured attributes attached to a context once and emitted
// on every log record below it.
type LogFields struct {
	Component string
	BatchID   *int64
	TweetID   *string
	AccountID *string
}

// WithLogFields returns a context carrying fields merged over any already
// present; set fields win, unset fields inherit.
func WithLogFields(ctx context.Context, fields LogFields) context.Context {
	existing := GetLogFields(ctx)
	if fields.Component == "" {
		fields.Component = existing.Component
	}
	if fields.BatchID == nil {
		fields.BatchID = existing.BatchID
	}
	if fields.TweetID == nil {
		fields.TweetID = existing.TweetID
	}
	if fields.AccountID == nil {
		fields.AccountID = existing.AccountID
	}
	return context.WithValue(ctx, logFieldsKey{}, fields)
}

func GetLogFields(ctx context.Context) LogFields {
	if fields, ok := ctx.Value(logFieldsKey{}).(LogFields); ok {
		return fields
	}
	return LogFields{}
}
