package bot_test

import (
	"context"
	"errors"
	"fmt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"quillbird.app/bot/common/llm"
	"quillbird.app/bot/core/config"
	"quillbird.app/bot/internal/bot"
	"quillbird.app/bot/internal/model"
	"quillbird.app/bot/internal/twitter"
)

var _ = Describe("Processor", func() {
	var (
		ctx      context.Context
		cfg      config.BotConfig
		identity *model.TwitterUser
		client   *mockTwitterClient
		messages *memMessageStore
		users    *memUserStore
		engine   *mockEngine
		fetched  *model.MentionFetchResult
	)

	BeforeEach(func() {
		ctx = context.Background()
		cfg = config.BotConfig{
			Username:            "quillbird",
			MaxMentionsPerBatch: 10,
			ReplyBudget:         280,
		}
		identity = &model.TwitterUser{ID: "1", Username: "quillbird"}
		client = &mockTwitterClient{}
		messages = newMemMessageStore()
		users = newMemUserStore()
		engine = &mockEngine{}
		fetched = model.NewMentionFetchResult("100")
	})

	addMention := func(id, authorID, username, text string, followers int) {
		t := mention(id, authorID, text)
		fetched.Mentions = append(fetched.Mentions, t)
		fetched.Tweets[id] = t
		fetched.Users[authorID] = &model.TwitterUser{
			ID: authorID, Username: username, FollowersCount: followers,
		}
		fetched.SinceID = model.MaxTweetID(fetched.SinceID, id)
	}

	newProcessor := func() *bot.Processor {
		fetcher := fetcherFunc(func(ctx context.Context, accountID, sinceID string) (*model.MentionFetchResult, error) {
			return fetched, nil
		})
		resolver := resolverFunc(func(ctx context.Context, leaf *model.Message, includeExternal bool) ([]llm.ChatMessage, error) {
			return []llm.ChatMessage{{Role: llm.RoleUser, Content: leaf.PromptText}}, nil
		})
		return bot.NewProcessor(cfg, identity, client, messages, users, fetcher, resolver, engine, nil)
	}

	Describe("a fresh mention", func() {
		BeforeEach(func() {
			addMention("201", "7", "alice", "@quillbird what is a mutex?", 50)
		})

		It("replies and persists the turn", func() {
			result, err := newProcessor().ProcessBatch(ctx, "100")

			Expect(err).NotTo(HaveOccurred())
			Expect(client.postReplyCalls).To(Equal([]string{"201"}))

			stored, err := messages.GetByID(ctx, "201")
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.Responded()).To(BeTrue())
			Expect(*stored.ResponseTweetID).To(Equal("reply-201"))
			Expect(stored.PromptText).To(Equal("what is a mutex?"))

			Expect(result.RepliedCount()).To(Equal(1))
			Expect(result.MaxProcessedID).To(Equal("201"))
		})

		It("skips it when a responded turn already exists", func() {
			replyID := "r1"
			Expect(messages.Upsert(ctx, &model.Message{
				ID: "201", Role: model.MessageRoleUser, ResponseTweetID: &replyID,
			})).To(Succeed())

			result, err := newProcessor().ProcessBatch(ctx, "100")

			Expect(err).NotTo(HaveOccurred())
			Expect(client.postReplyCalls).To(BeEmpty())
			Expect(result.Candidates).To(BeEmpty())
		})

		It("skips it when a final-error turn already exists", func() {
			closed := &model.Message{ID: "201", Role: model.MessageRoleUser}
			closed.SetError("deleted source", model.ErrorTypeNotFound, true)
			Expect(messages.Upsert(ctx, closed)).To(Succeed())

			_, err := newProcessor().ProcessBatch(ctx, "100")

			Expect(err).NotTo(HaveOccurred())
			Expect(client.postReplyCalls).To(BeEmpty())
		})

		It("converges when the same window is processed twice", func() {
			p := newProcessor()

			_, err := p.ProcessBatch(ctx, "100")
			Expect(err).NotTo(HaveOccurred())
			firstUpserts := messages.upsertCalls
			first, err := messages.GetByID(ctx, "201")
			Expect(err).NotTo(HaveOccurred())

			result, err := p.ProcessBatch(ctx, "100")

			Expect(err).NotTo(HaveOccurred())
			Expect(client.postReplyCalls).To(Equal([]string{"201"}), "no second reply")
			Expect(messages.upsertCalls).To(Equal(firstUpserts), "no second write")
			Expect(result.Candidates).To(BeEmpty())

			second, err := messages.GetByID(ctx, "201")
			Expect(err).NotTo(HaveOccurred())
			Expect(second).To(Equal(first))
		})

		It("retries it when a transient-error turn exists", func() {
			failed := &model.Message{ID: "201", Role: model.MessageRoleUser}
			failed.SetError("rate limited", model.ErrorTypeRateLimit, false)
			Expect(messages.Upsert(ctx, failed)).To(Succeed())

			result, err := newProcessor().ProcessBatch(ctx, "100")

			Expect(err).NotTo(HaveOccurred())
			Expect(client.postReplyCalls).To(Equal([]string{"201"}))
			Expect(result.RepliedCount()).To(Equal(1))
		})
	})

	Describe("filtering", func() {
		It("ignores the bot's own posts", func() {
			addMention("202", "1", "quillbird", "@someone my own reply", 0)

			result, err := newProcessor().ProcessBatch(ctx, "100")

			Expect(err).NotTo(HaveOccurred())
			Expect(result.Candidates).To(BeEmpty())
			Expect(result.Messages).To(BeEmpty())
		})

		It("closes bot-noise mentions with a final error turn", func() {
			addMention("203", "9", "threadreaderapp", "@quillbird unroll", 1000)

			result, err := newProcessor().ProcessBatch(ctx, "100")

			Expect(err).NotTo(HaveOccurred())
			Expect(client.postReplyCalls).To(BeEmpty())
			Expect(engine.calls).To(BeEmpty())

			stored, err := messages.GetByID(ctx, "203")
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.Error).NotTo(BeNil())
			Expect(stored.IsErrorFinal).To(BeTrue())

			Expect(result.MaxProcessedID).To(Equal("203"), "a final closure settles the watermark")
		})

		It("replies to bot-noise authors when ForceReply is set", func() {
			cfg.ForceReply = true
			addMention("203", "9", "threadreaderapp", "@quillbird unroll", 1000)

			result, err := newProcessor().ProcessBatch(ctx, "100")

			Expect(err).NotTo(HaveOccurred())
			Expect(client.postReplyCalls).To(Equal([]string{"203"}))
			Expect(result.RepliedCount()).To(Equal(1))
		})

		It("enriches from the durable author record when the page omits it", func() {
			t := mention("205", "7", "@quillbird hello there")
			fetched.Mentions = append(fetched.Mentions, t)
			fetched.Tweets["205"] = t
			Expect(users.Upsert(ctx, &model.TwitterUser{
				ID: "7", Username: "alice", FollowersCount: 10,
			})).To(Succeed())

			result, err := newProcessor().ProcessBatch(ctx, "100")

			Expect(err).NotTo(HaveOccurred())
			Expect(client.postReplyCalls).To(Equal([]string{"205"}))
			Expect(result.RepliedCount()).To(Equal(1))
		})

		It("closes mentions with no prompt text", func() {
			addMention("204", "7", "alice", "@quillbird @bob", 10)

			result, err := newProcessor().ProcessBatch(ctx, "100")

			Expect(err).NotTo(HaveOccurred())
			Expect(engine.calls).To(BeEmpty())

			stored, err := messages.GetByID(ctx, "204")
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.IsErrorFinal).To(BeTrue())
			Expect(result.MaxProcessedID).To(Equal("204"))
		})
	})

	Describe("priority and capping", func() {
		It("admits the cap, postpones the rest", func() {
			cfg.MaxMentionsPerBatch = 3
			for i := 0; i < 10; i++ {
				id := fmt.Sprintf("3%02d", i)
				addMention(id, fmt.Sprintf("u%d", i), fmt.Sprintf("user%d", i), "@quillbird question "+id, i*100)
			}

			result, err := newProcessor().ProcessBatch(ctx, "100")

			Expect(err).NotTo(HaveOccurred())
			Expect(result.Candidates).To(HaveLen(3))
			Expect(result.NumFollowups).To(Equal(7))
			Expect(client.postReplyCalls).To(HaveLen(3))
		})

		It("processes higher-priority candidates first", func() {
			addMention("301", "7", "alice", "@quillbird small account", 10)
			addMention("302", "8", "celeb", "@quillbird big account", 1000000)

			_, err := newProcessor().ProcessBatch(ctx, "100")

			Expect(err).NotTo(HaveOccurred())
			Expect(client.postReplyCalls).To(Equal([]string{"302", "301"}))
		})
	})

	Describe("error aggregation", func() {
		It("flags a rate-limited candidate without aborting the batch", func() {
			addMention("401", "7", "alice", "@quillbird fails", 1000)
			addMention("402", "8", "brook", "@quillbird succeeds", 10)

			client.postReplyFn = func(ctx context.Context, inReplyToID, text string) (string, error) {
				if inReplyToID == "401" {
					return "", &twitter.APIError{StatusCode: 429, Title: "Too Many Requests"}
				}
				return "reply-" + inReplyToID, nil
			}

			result, err := newProcessor().ProcessBatch(ctx, "100")

			Expect(err).NotTo(HaveOccurred())
			Expect(result.HasTwitterRateLimitError).To(BeTrue())
			Expect(result.RepliedCount()).To(Equal(1))
			Expect(result.ErrorCount()).To(Equal(1))
			Expect(result.MaxProcessedID).To(Equal("402"))

			stored, err := messages.GetByID(ctx, "401")
			Expect(err).NotTo(HaveOccurred())
			Expect(*stored.ErrorType).To(Equal(model.ErrorTypeRateLimit))
			Expect(stored.Retryable()).To(BeTrue())
		})

		It("closes the turn finally when the source tweet is gone", func() {
			addMention("403", "7", "alice", "@quillbird deleted", 10)
			client.postReplyFn = func(ctx context.Context, inReplyToID, text string) (string, error) {
				return "", &twitter.APIError{StatusCode: 404, Title: "Not Found"}
			}

			result, err := newProcessor().ProcessBatch(ctx, "100")

			Expect(err).NotTo(HaveOccurred())
			stored, err := messages.GetByID(ctx, "403")
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.IsErrorFinal).To(BeTrue())
			Expect(result.MaxProcessedID).To(Equal("403"))
		})

		It("records an answer engine failure on the turn", func() {
			addMention("404", "7", "alice", "@quillbird hard question", 10)
			engine.generateFn = func(ctx context.Context, msgs []llm.ChatMessage) (string, error) {
				return "", model.NewPipelineError(model.ErrorTypeAnswerEngine, false, errors.New("overloaded"))
			}

			result, err := newProcessor().ProcessBatch(ctx, "100")

			Expect(err).NotTo(HaveOccurred())
			Expect(client.postReplyCalls).To(BeEmpty())

			stored, err := messages.GetByID(ctx, "404")
			Expect(err).NotTo(HaveOccurred())
			Expect(*stored.ErrorType).To(Equal(model.ErrorTypeAnswerEngine))
			Expect(stored.Retryable()).To(BeTrue())
			Expect(result.MaxProcessedID).To(BeEmpty())
		})
	})

	Describe("fetch failures", func() {
		It("continues with a partial fetch", func() {
			addMention("501", "7", "alice", "@quillbird partial", 10)
			fetcher := fetcherFunc(func(ctx context.Context, accountID, sinceID string) (*model.MentionFetchResult, error) {
				return fetched, fmt.Errorf("page 2: %w", &twitter.APIError{StatusCode: 503})
			})
			resolver := resolverFunc(func(ctx context.Context, leaf *model.Message, includeExternal bool) ([]llm.ChatMessage, error) {
				return nil, nil
			})
			p := bot.NewProcessor(cfg, identity, client, messages, users, fetcher, resolver, engine, nil)

			result, err := p.ProcessBatch(ctx, "100")

			Expect(err).NotTo(HaveOccurred())
			Expect(result.HasNetworkError).To(BeTrue())
			Expect(result.RepliedCount()).To(Equal(1))
		})

		It("fails the batch when nothing was fetched", func() {
			fetcher := fetcherFunc(func(ctx context.Context, accountID, sinceID string) (*model.MentionFetchResult, error) {
				return nil, fmt.Errorf("timeline: %w", &twitter.APIError{StatusCode: 401})
			})
			p := bot.NewProcessor(cfg, identity, client, messages, users, fetcher, nil, engine, nil)

			result, err := p.ProcessBatch(ctx, "100")

			Expect(err).To(HaveOccurred())
			Expect(result.HasTwitterAuthError).To(BeTrue())
			Expect(result.Candidates).To(BeEmpty())
		})
	})

	Describe("dry run", func() {
		It("suppresses posting and persistence", func() {
			cfg.DryRun = true
			addMention("601", "7", "alice", "@quillbird rehearsal", 10)

			result, err := newProcessor().ProcessBatch(ctx, "100")

			Expect(err).NotTo(HaveOccurred())
			Expect(client.postReplyCalls).To(BeEmpty())
			Expect(messages.upsertCalls).To(BeZero())
			Expect(result.MaxProcessedID).To(BeEmpty())
			Expect(result.Messages).To(HaveLen(1))
			Expect(*result.Messages[0].ResponseText).To(Equal("a helpful reply"))
		})
	})

	Describe("debug replay", func() {
		It("bypasses the cursor fetch entirely", func() {
			cfg.DebugTweetIDs = []string{"701"}
			client.getTweetFn = func(ctx context.Context, id string) (*model.Tweet, error) {
				return mention("701", "7", "@quillbird replay me"), nil
			}
			client.getUserFn = func(ctx context.Context, id string) (*model.TwitterUser, error) {
				return &model.TwitterUser{ID: "7", Username: "alice", FollowersCount: 10}, nil
			}

			fetcher := fetcherFunc(func(ctx context.Context, accountID, sinceID string) (*model.MentionFetchResult, error) {
				Fail("cursor fetch must not run in replay mode")
				return nil, nil
			})
			resolver := resolverFunc(func(ctx context.Context, leaf *model.Message, includeExternal bool) ([]llm.ChatMessage, error) {
				return []llm.ChatMessage{{Role: llm.RoleUser, Content: leaf.PromptText}}, nil
			})
			p := bot.NewProcessor(cfg, identity, client, messages, users, fetcher, resolver, engine, nil)

			result, err := p.ProcessBatch(ctx, "")

			Expect(err).NotTo(HaveOccurred())
			Expect(client.postReplyCalls).To(Equal([]string{"701"}))
			Expect(result.RepliedCount()).To(Equal(1))
		})
	})
})
