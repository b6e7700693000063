package bot_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"quillbird.app/bot/core/config"
	"quillbird.app/bot/internal/bot"
	"quillbird.app/bot/internal/model"
)

var _ = Describe("Loop", func() {
	var (
		cfg       config.Config
		cursor    *memCursorStore
		batchRuns *memBatchRunStore
		client    *mockTwitterClient
		sleeps    []time.Duration
		sleep     bot.SleepFunc
	)

	BeforeEach(func() {
		cfg = config.Config{
			Bot: config.BotConfig{EarlyExit: true},
			Loop: config.LoopConfig{
				IdleDelay:      30 * time.Second,
				NetworkDelay:   10 * time.Second,
				RateLimitDelay: 30 * time.Second,
				CrashDelay:     5 * time.Second,
			},
		}
		cursor = newMemCursorStore()
		batchRuns = &memBatchRunStore{}
		client = &mockTwitterClient{}
		sleeps = nil
		sleep = func(ctx context.Context, d time.Duration) {
			sleeps = append(sleeps, d)
		}
	})

	newLoop := func(p processorFunc) *bot.Loop {
		return bot.NewLoop(cfg, "1", p, cursor, batchRuns, client, sleep)
	}

	batchWith := func(maxProcessed string) *model.BatchResult {
		result := model.NewBatchResult("")
		if maxProcessed != "" {
			result.RecordSuccess(maxProcessed)
		}
		return result
	}

	Describe("cursor handling", func() {
		It("persists the batch watermark after a successful batch", func() {
			err := newLoop(func(ctx context.Context, sinceID string) (*model.BatchResult, error) {
				return batchWith("150"), nil
			}).Run(context.Background())

			Expect(err).NotTo(HaveOccurred())
			Expect(cursor.cursors["1"]).To(Equal("150"))
		})

		It("starts from the stored cursor", func() {
			cursor.cursors["1"] = "120"
			var seen []string
			err := newLoop(func(ctx context.Context, sinceID string) (*model.BatchResult, error) {
				seen = append(seen, sinceID)
				return batchWith(""), nil
			}).Run(context.Background())

			Expect(err).NotTo(HaveOccurred())
			Expect(seen).To(Equal([]string{"120"}))
		})

		It("never regresses a stored cursor", func() {
			cursor.cursors["1"] = "200"

			err := newLoop(func(ctx context.Context, sinceID string) (*model.BatchResult, error) {
				return batchWith("150"), nil
			}).Run(context.Background())

			Expect(err).NotTo(HaveOccurred())
			Expect(cursor.advanceCalls).To(Equal([]string{"150"}))
			Expect(cursor.cursors["1"]).To(Equal("200"))
		})

		It("keeps the old in-memory cursor when the advance fails", func() {
			cfg.Bot.EarlyExit = false
			cursor.cursors["1"] = "100"
			cursor.failAdvance = true

			ctx, cancel := context.WithCancel(context.Background())
			var seen []string
			err := newLoop(func(ctx context.Context, sinceID string) (*model.BatchResult, error) {
				seen = append(seen, sinceID)
				if len(seen) == 2 {
					cancel()
				}
				return batchWith("150"), nil
			}).Run(ctx)

			Expect(err).NotTo(HaveOccurred())
			Expect(seen).To(Equal([]string{"100", "100"}), "failed persistence must resurface the same window")
		})
	})

	Describe("mitigations", func() {
		It("applies all recoveries the batch asked for", func() {
			err := newLoop(func(ctx context.Context, sinceID string) (*model.BatchResult, error) {
				result := batchWith("")
				result.HasNetworkError = true
				result.HasTwitterRateLimitError = true
				result.HasTwitterAuthError = true
				return result, nil
			}).Run(context.Background())

			Expect(err).NotTo(HaveOccurred())
			Expect(sleeps).To(ContainElements(10*time.Second, 30*time.Second))
			Expect(client.reauthCalls).To(Equal(1))
		})

		It("idles when the batch had nothing to do", func() {
			cfg.Bot.EarlyExit = false
			ctx, cancel := context.WithCancel(context.Background())
			calls := 0
			err := newLoop(func(ctx context.Context, sinceID string) (*model.BatchResult, error) {
				calls++
				cancel()
				return batchWith(""), nil
			}).Run(ctx)

			Expect(err).NotTo(HaveOccurred())
			Expect(calls).To(Equal(1))
			Expect(sleeps).To(ContainElement(30 * time.Second))
		})
	})

	Describe("failure containment", func() {
		It("survives a panicking batch", func() {
			cfg.Bot.EarlyExit = false
			ctx, cancel := context.WithCancel(context.Background())
			sleep = func(ctx context.Context, d time.Duration) {
				sleeps = append(sleeps, d)
				cancel()
			}

			err := newLoop(func(ctx context.Context, sinceID string) (*model.BatchResult, error) {
				panic("poisoned mention")
			}).Run(ctx)

			Expect(err).NotTo(HaveOccurred())
			Expect(sleeps).To(Equal([]time.Duration{5 * time.Second}))
			Expect(client.reauthCalls).To(Equal(1), "escaped failures refresh credentials")
		})
	})

	Describe("batch runs", func() {
		It("records a summary row per batch", func() {
			err := newLoop(func(ctx context.Context, sinceID string) (*model.BatchResult, error) {
				result := batchWith("150")
				result.HasNetworkError = true
				return result, nil
			}).Run(context.Background())

			Expect(err).NotTo(HaveOccurred())
			Expect(batchRuns.runs).To(HaveLen(1))
			Expect(batchRuns.runs[0].MaxProcessedID).To(Equal("150"))
			Expect(batchRuns.runs[0].HasNetworkError).To(BeTrue())
			Expect(batchRuns.runs[0].ID).NotTo(BeZero())
		})
	})

	Describe("single-batch modes", func() {
		It("skips cursor persistence in a dry run", func() {
			cfg.Bot.DryRun = true

			err := newLoop(func(ctx context.Context, sinceID string) (*model.BatchResult, error) {
				return batchWith("150"), nil
			}).Run(context.Background())

			Expect(err).NotTo(HaveOccurred())
			Expect(cursor.advanceCalls).To(BeEmpty())
			Expect(batchRuns.runs).To(BeEmpty())
		})

		It("ignores the cursor entirely in a debug replay", func() {
			cfg.Bot.DebugTweetIDs = []string{"42"}
			cursor.cursors["1"] = "999"

			var seen []string
			err := newLoop(func(ctx context.Context, sinceID string) (*model.BatchResult, error) {
				seen = append(seen, sinceID)
				return batchWith("1000"), nil
			}).Run(context.Background())

			Expect(err).NotTo(HaveOccurred())
			Expect(seen).To(Equal([]string{""}))
			Expect(cursor.advanceCalls).To(BeEmpty())
		})
	})
})
