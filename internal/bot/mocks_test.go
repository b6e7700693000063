package bot_test

import (
	"context"
	"fmt"
	"sort"

	"quillbird.app/bot/common/llm"
	"quillbird.app/bot/internal/model"
	"quillbird.app/bot/internal/store"
	"quillbird.app/bot/internal/twitter"
)

type mockTwitterClient struct {
	meFn        func(ctx context.Context) (*model.TwitterUser, error)
	mentionsFn  func(ctx context.Context, accountID, sinceID, token string) (*twitter.MentionPage, error)
	getTweetFn  func(ctx context.Context, id string) (*model.Tweet, error)
	getUserFn   func(ctx context.Context, id string) (*model.TwitterUser, error)
	postReplyFn func(ctx context.Context, inReplyToID, text string) (string, error)
	reauthFn    func(ctx context.Context) error

	mentionsCalls  int
	postReplyCalls []string
	reauthCalls    int
}

func (m *mockTwitterClient) Me(ctx context.Context) (*model.TwitterUser, error) {
	if m.meFn != nil {
		return m.meFn(ctx)
	}
	return &model.TwitterUser{ID: "1", Username: "quillbird"}, nil
}

func (m *mockTwitterClient) Mentions(ctx context.Context, accountID, sinceID, token string) (*twitter.MentionPage, error) {
	m.mentionsCalls++
	if m.mentionsFn != nil {
		return m.mentionsFn(ctx, accountID, sinceID, token)
	}
	return &twitter.MentionPage{
		Users:    map[string]*model.TwitterUser{},
		Included: map[string]*model.Tweet{},
	}, nil
}

func (m *mockTwitterClient) GetTweet(ctx context.Context, id string) (*model.Tweet, error) {
	if m.getTweetFn != nil {
		return m.getTweetFn(ctx, id)
	}
	return nil, &twitter.APIError{StatusCode: 404, Title: "Not Found"}
}

func (m *mockTwitterClient) GetUser(ctx context.Context, id string) (*model.TwitterUser, error) {
	if m.getUserFn != nil {
		return m.getUserFn(ctx, id)
	}
	return nil, &twitter.APIError{StatusCode: 404, Title: "Not Found"}
}

func (m *mockTwitterClient) PostReply(ctx context.Context, inReplyToID, text string) (string, error) {
	m.postReplyCalls = append(m.postReplyCalls, inReplyToID)
	if m.postReplyFn != nil {
		return m.postReplyFn(ctx, inReplyToID, text)
	}
	return "reply-" + inReplyToID, nil
}

func (m *mockTwitterClient) Reauth(ctx context.Context) error {
	m.reauthCalls++
	if m.reauthFn != nil {
		return m.reauthFn(ctx)
	}
	return nil
}

type memTweetStore struct {
	tweets map[string]*model.Tweet
}

func newMemTweetStore() *memTweetStore {
	return &memTweetStore{tweets: map[string]*model.Tweet{}}
}

func (s *memTweetStore) Upsert(ctx context.Context, t *model.Tweet) error {
	s.tweets[t.ID] = t
	return nil
}

func (s *memTweetStore) GetByID(ctx context.Context, id string) (*model.Tweet, error) {
	if t, ok := s.tweets[id]; ok {
		return t, nil
	}
	return nil, store.ErrNotFound
}

type memUserStore struct {
	users map[string]*model.TwitterUser
}

func newMemUserStore() *memUserStore {
	return &memUserStore{users: map[string]*model.TwitterUser{}}
}

func (s *memUserStore) Upsert(ctx context.Context, u *model.TwitterUser) error {
	s.users[u.ID] = u
	return nil
}

func (s *memUserStore) GetByID(ctx context.Context, id string) (*model.TwitterUser, error) {
	if u, ok := s.users[id]; ok {
		return u, nil
	}
	return nil, store.ErrNotFound
}

type memFlusher struct {
	tweets     *memTweetStore
	users      *memUserStore
	flushCalls int
}

func (f *memFlusher) FlushMentions(ctx context.Context, tweets []*model.Tweet, users []*model.TwitterUser) error {
	f.flushCalls++
	for _, t := range tweets {
		f.tweets.tweets[t.ID] = t
	}
	for _, u := range users {
		f.users.users[u.ID] = u
	}
	return nil
}

type memMessageStore struct {
	msgs        map[string]*model.Message
	upsertCalls int
}

func newMemMessageStore() *memMessageStore {
	return &memMessageStore{msgs: map[string]*model.Message{}}
}

func (s *memMessageStore) Upsert(ctx context.Context, msg *model.Message) error {
	s.upsertCalls++
	clone := *msg
	s.msgs[msg.ID] = &clone
	return nil
}

func (s *memMessageStore) GetByID(ctx context.Context, id string) (*model.Message, error) {
	if m, ok := s.msgs[id]; ok {
		return m, nil
	}
	return nil, store.ErrNotFound
}

func (s *memMessageStore) GetByResponseTweetID(ctx context.Context, tweetID string) (*model.Message, error) {
	ids := make([]string, 0, len(s.msgs))
	for id := range s.msgs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		m := s.msgs[id]
		if m.ResponseTweetID != nil && *m.ResponseTweetID == tweetID {
			return m, nil
		}
	}
	return nil, store.ErrNotFound
}

type memCursorStore struct {
	cursors      map[string]string
	advanceCalls []string
	failAdvance  bool
}

func newMemCursorStore() *memCursorStore {
	return &memCursorStore{cursors: map[string]string{}}
}

func (s *memCursorStore) Get(ctx context.Context, accountID string) (string, error) {
	return s.cursors[accountID], nil
}

func (s *memCursorStore) Advance(ctx context.Context, accountID, sinceID string) (string, error) {
	s.advanceCalls = append(s.advanceCalls, sinceID)
	if s.failAdvance {
		return "", fmt.Errorf("redis down")
	}
	merged := model.MaxTweetID(s.cursors[accountID], sinceID)
	s.cursors[accountID] = merged
	return merged, nil
}

type memMentionCache struct {
	pages map[string]*model.MentionFetchResult
	puts  []string
}

func newMemMentionCache() *memMentionCache {
	return &memMentionCache{pages: map[string]*model.MentionFetchResult{}}
}

func cacheKey(accountID, sinceID string) string {
	return accountID + "|" + sinceID
}

func (c *memMentionCache) Get(ctx context.Context, accountID, sinceID string) (*model.MentionFetchResult, error) {
	if page, ok := c.pages[cacheKey(accountID, sinceID)]; ok {
		return page, nil
	}
	return nil, store.ErrNotFound
}

func (c *memMentionCache) Put(ctx context.Context, accountID, sinceID string, result *model.MentionFetchResult) error {
	key := cacheKey(accountID, sinceID)
	c.pages[key] = result
	c.puts = append(c.puts, key)
	return nil
}

type memBatchRunStore struct {
	runs []*model.BatchRun
}

func (s *memBatchRunStore) Create(ctx context.Context, run *model.BatchRun) error {
	s.runs = append(s.runs, run)
	return nil
}

type mockEngine struct {
	generateFn func(ctx context.Context, msgs []llm.ChatMessage) (string, error)
	calls      [][]llm.ChatMessage
}

func (e *mockEngine) Generate(ctx context.Context, msgs []llm.ChatMessage) (string, error) {
	e.calls = append(e.calls, msgs)
	if e.generateFn != nil {
		return e.generateFn(ctx, msgs)
	}
	return "a helpful reply", nil
}

type fetcherFunc func(ctx context.Context, accountID, sinceID string) (*model.MentionFetchResult, error)

func (f fetcherFunc) Fetch(ctx context.Context, accountID, sinceID string) (*model.MentionFetchResult, error) {
	return f(ctx, accountID, sinceID)
}

type resolverFunc func(ctx context.Context, leaf *model.Message, includeExternal bool) ([]llm.ChatMessage, error)

func (f resolverFunc) Resolve(ctx context.Context, leaf *model.Message, includeExternal bool) ([]llm.ChatMessage, error) {
	return f(ctx, leaf, includeExternal)
}

type processorFunc func(ctx context.Context, sinceID string) (*model.BatchResult, error)

func (f processorFunc) ProcessBatch(ctx context.Context, sinceID string) (*model.BatchResult, error) {
	return f(ctx, sinceID)
}
