package sweep

import (
	"context"
	"time"

	"github.com/lisanmuaddib/balance-sweeper/pkg/clock"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

const (
	cooldown = 10 * time.Minute
	backoff  = 2 * time.Minute
)

var _ = Describe("Runner", func() {
	var (
		fake     *clock.Fake
		notifier *recordingNotifier
		metrics  *recordingMetrics
		ledger   *memoryLedger
		config   RunnerConfig
	)

	const (
		S = OutcomeSuccess
		K = OutcomeSkippedLowBalance
		F = OutcomeFailed
	)

	BeforeEach(func() {
		fake = clock.NewFake(time.Unix(0, 0))
		notifier = &recordingNotifier{}
		metrics = &recordingMetrics{}
		ledger = &memoryLedger{done: map[string]bool{}}
		config = RunnerConfig{
			Cooldown:     cooldown,
			ErrorBackoff: backoff,
			MaxErrors:    3,
			Ledger:       ledger,
			Metrics:      metrics,
			Notifier:     notifier,
			Clock:        fake,
			Logger:       quietLogger(),
		}
	})

	run := func(ctx context.Context, executor *scriptedExecutor, jobs []AccountJob) (BatchState, error) {
		config.Executor = executor
		runner, err := NewRunner(config)
		Expect(err).NotTo(HaveOccurred())
		return runner.Run(ctx, jobs)
	}

	It("resets the error count on success", func() {
		executor := &scriptedExecutor{kinds: []OutcomeKind{F, F, S, F, F, F, S}}

		state, err := run(context.Background(), executor, jobsNamed("a", "b", "c", "d", "e", "f", "g"))

		Expect(IsSweepError(err, ErrCodeTooManyErrors)).To(BeTrue())
		Expect(executor.executed).To(HaveLen(6))
		Expect(state.TotalProcessed).To(Equal(6))
		Expect(state.ConsecutiveErrors).To(Equal(3))
		Expect(fake.Sleeps()).To(Equal([]time.Duration{backoff, backoff, cooldown, backoff, backoff}))
	})

	It("neither increments nor resets the error count on a skip", func() {
		executor := &scriptedExecutor{kinds: []OutcomeKind{F, K, F, F, S}}

		state, err := run(context.Background(), executor, jobsNamed("a", "b", "c", "d", "e"))

		Expect(IsSweepError(err, ErrCodeTooManyErrors)).To(BeTrue())
		Expect(executor.executed).To(HaveLen(4))
		Expect(state.Skipped).To(Equal(1))
		Expect(fake.Sleeps()).To(Equal([]time.Duration{backoff, backoff}))
	})

	It("applies the cooldown after a skip when configured", func() {
		config.CooldownOnSkip = true
		executor := &scriptedExecutor{kinds: []OutcomeKind{K, S}}

		_, err := run(context.Background(), executor, jobsNamed("a", "b"))

		Expect(err).NotTo(HaveOccurred())
		Expect(fake.Sleeps()).To(Equal([]time.Duration{cooldown}))
	})

	It("does not sleep after the last job", func() {
		executor := &scriptedExecutor{kinds: []OutcomeKind{S, F}}

		state, err := run(context.Background(), executor, jobsNamed("a", "b"))

		Expect(err).NotTo(HaveOccurred())
		Expect(state).To(Equal(BatchState{ConsecutiveErrors: 1, TotalProcessed: 2, Succeeded: 1, Failed: 1}))
		Expect(fake.Sleeps()).To(Equal([]time.Duration{cooldown}))
	})

	It("processes jobs in input order and reports progress", func() {
		executor := &scriptedExecutor{kinds: []OutcomeKind{S, K}}
		jobs := jobsNamed("alice", "bob")

		_, err := run(context.Background(), executor, jobs)

		Expect(err).NotTo(HaveOccurred())
		Expect(executor.executed).To(Equal(jobs))
		Expect(notifier.Messages()).To(Equal([]string{"1/2 alice", "sleep 600s", "2/2 bob"}))
	})

	It("notifies failure reasons", func() {
		executor := &scriptedExecutor{kinds: []OutcomeKind{F}}

		_, err := run(context.Background(), executor, jobsNamed("alice"))

		Expect(err).NotTo(HaveOccurred())
		Expect(notifier.Messages()).To(ContainElement(ContainSubstring("nonce too low")))
	})

	It("stops between jobs when cancelled, letting the running job finish", func() {
		ctx, cancel := context.WithCancel(context.Background())
		var jobCtxErr error
		executor := &scriptedExecutor{
			kinds: []OutcomeKind{S, S},
			onRun: func(jobCtx context.Context, n int) {
				cancel()
				jobCtxErr = jobCtx.Err()
			},
		}

		state, err := run(ctx, executor, jobsNamed("a", "b"))

		Expect(err).To(MatchError(context.Canceled))
		Expect(jobCtxErr).NotTo(HaveOccurred())
		Expect(executor.executed).To(HaveLen(1))
		Expect(state.Succeeded).To(Equal(1))
	})

	It("delivers the failure notices of a job cancelled mid-run", func() {
		config.MaxErrors = 1
		ctx, cancel := context.WithCancel(context.Background())
		executor := &scriptedExecutor{
			kinds: []OutcomeKind{F, S},
			onRun: func(context.Context, int) { cancel() },
		}

		_, err := run(ctx, executor, jobsNamed("a", "b"))

		Expect(IsSweepError(err, ErrCodeTooManyErrors)).To(BeTrue())
		Expect(notifier.Messages()).To(ContainElement("too many errors, batch aborted"))
		Expect(notifier.Messages()).To(ContainElement(ContainSubstring("nonce too low")))
		Expect(notifier.Dropped()).To(BeEmpty())
	})

	It("records every outcome in the ledger", func() {
		executor := &scriptedExecutor{kinds: []OutcomeKind{S, F}}

		_, err := run(context.Background(), executor, jobsNamed("a", "b"))

		Expect(err).NotTo(HaveOccurred())
		Expect(ledger.records).To(HaveLen(2))
		Expect(ledger.records[0].Outcome).To(Equal(OutcomeSuccess))
		Expect(ledger.records[0].TxHash).To(Equal("0xhash"))
		Expect(ledger.records[1].Code).To(Equal(ErrCodeSubmission))
		Expect(ledger.records[0].RunID).To(Equal(ledger.records[1].RunID))
		Expect(ledger.records[1].Index).To(Equal(2))
	})

	It("skips jobs the ledger has already swept", func() {
		config.SkipCompleted = true
		jobs := jobsNamed("a", "b", "c")
		ledger.done[jobs[1].Address] = true
		executor := &scriptedExecutor{kinds: []OutcomeKind{S, S}}

		state, err := run(context.Background(), executor, jobs)

		Expect(err).NotTo(HaveOccurred())
		Expect(executor.executed).To(Equal([]AccountJob{jobs[0], jobs[2]}))
		Expect(state.AlreadyDone).To(Equal(1))
	})

	It("reports outcomes and the error count to metrics", func() {
		executor := &scriptedExecutor{kinds: []OutcomeKind{F, S, K}}

		_, err := run(context.Background(), executor, jobsNamed("a", "b", "c"))

		Expect(err).NotTo(HaveOccurred())
		Expect(metrics.outcomes).To(Equal([]string{"failed", "success", "skipped_low_balance"}))
		Expect(metrics.consecutive).To(Equal([]int{1, 0, 0}))
	})

	It("requires a ledger to skip completed jobs", func() {
		config.Executor = &scriptedExecutor{}
		config.Ledger = nil
		config.SkipCompleted = true
		_, err := NewRunner(config)
		Expect(err).To(HaveOccurred())
	})
})
