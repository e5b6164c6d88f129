package price_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lisanmuaddib/balance-sweeper/pkg/clock"
	"github.com/lisanmuaddib/balance-sweeper/pkg/price"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// scriptedFeed returns queued prices or errors and counts calls.
type scriptedFeed struct {
	mu      sync.Mutex
	results []interface{}
	calls   int32
	gate    chan struct{}
}

func (f *scriptedFeed) FetchPrice(ctx context.Context, _ string) (decimal.Decimal, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.gate != nil {
		<-f.gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	next := f.results[0]
	if len(f.results) > 1 {
		f.results = f.results[1:]
	}
	if err, ok := next.(error); ok {
		return decimal.Zero, err
	}
	return next.(decimal.Decimal), nil
}

func (f *scriptedFeed) Calls() int {
	return int(atomic.LoadInt32(&f.calls))
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

var _ = Describe("Oracle", func() {
	var (
		fake *clock.Fake
		feed *scriptedFeed
	)

	newOracle := func() *price.Oracle {
		oracle, err := price.NewOracle(price.OracleConfig{
			Feed:            feed,
			Symbol:          "ethereum",
			RefreshInterval: 15 * time.Minute,
			Clock:           fake,
			Logger:          quietLogger(),
		})
		Expect(err).NotTo(HaveOccurred())
		return oracle
	}

	BeforeEach(func() {
		fake = clock.NewFake(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
		feed = &scriptedFeed{}
	})

	It("requires a feed and a symbol", func() {
		_, err := price.NewOracle(price.OracleConfig{Symbol: "ethereum"})
		Expect(err).To(HaveOccurred())
		_, err = price.NewOracle(price.OracleConfig{Feed: feed})
		Expect(err).To(HaveOccurred())
	})

	It("serves the cached price while fresh", func() {
		feed.results = []interface{}{decimal.NewFromInt(3480), decimal.NewFromInt(3500)}
		oracle := newOracle()

		p, err := oracle.Price(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(p.String()).To(Equal("3480"))

		fake.Advance(14 * time.Minute)
		p, err = oracle.Price(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(p.String()).To(Equal("3480"))
		Expect(feed.Calls()).To(Equal(1))
	})

	It("refetches once the snapshot is stale", func() {
		feed.results = []interface{}{decimal.NewFromInt(3480), decimal.NewFromInt(3500)}
		oracle := newOracle()

		_, err := oracle.Price(context.Background())
		Expect(err).NotTo(HaveOccurred())

		fake.Advance(15 * time.Minute)
		p, err := oracle.Price(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(p.String()).To(Equal("3500"))
		Expect(feed.Calls()).To(Equal(2))

		snap, ok := oracle.Snapshot()
		Expect(ok).To(BeTrue())
		Expect(snap.FetchedAt).To(Equal(fake.Now()))
	})

	It("does not return a stale price when the refresh fails", func() {
		feed.results = []interface{}{decimal.NewFromInt(3480), errors.New("upstream down")}
		oracle := newOracle()

		_, err := oracle.Price(context.Background())
		Expect(err).NotTo(HaveOccurred())

		fake.Advance(time.Hour)
		p, err := oracle.Price(context.Background())
		Expect(err).To(HaveOccurred())
		Expect(errors.Is(err, price.ErrPriceFetch)).To(BeTrue())
		Expect(p.IsZero()).To(BeTrue())
	})

	It("shares one in-flight fetch between concurrent callers", func() {
		feed.results = []interface{}{decimal.NewFromInt(3480)}
		feed.gate = make(chan struct{})
		oracle := newOracle()

		const callers = 8
		var wg sync.WaitGroup
		prices := make([]decimal.Decimal, callers)
		errs := make([]error, callers)
		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				prices[i], errs[i] = oracle.Price(context.Background())
			}(i)
		}

		Eventually(feed.Calls).Should(Equal(1))
		// Give the remaining callers time to queue on the in-flight fetch.
		time.Sleep(50 * time.Millisecond)
		close(feed.gate)
		wg.Wait()

		Expect(feed.Calls()).To(Equal(1))
		for i := 0; i < callers; i++ {
			Expect(errs[i]).NotTo(HaveOccurred())
			Expect(prices[i].String()).To(Equal("3480"))
		}
	})

	It("reports refreshes to the callback", func() {
		feed.results = []interface{}{decimal.NewFromInt(3480)}
		var seen []price.Snapshot
		oracle, err := price.NewOracle(price.OracleConfig{
			Feed:   feed,
			Symbol: "ethereum",
			Clock:  fake,
			Logger: quietLogger(),
			OnRefresh: func(_ context.Context, s price.Snapshot) {
				seen = append(seen, s)
			},
		})
		Expect(err).NotTo(HaveOccurred())

		_, err = oracle.Price(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(seen).To(HaveLen(1))
		Expect(seen[0].Price.String()).To(Equal("3480"))
	})
})
