package sweep

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/lisanmuaddib/balance-sweeper/pkg/chain"
	"github.com/lisanmuaddib/balance-sweeper/pkg/clock"
	"github.com/lisanmuaddib/balance-sweeper/pkg/price"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"
)

var _ = Describe("FeeGate", func() {
	var (
		fake     *clock.Fake
		prices   *fakePrices
		notifier *recordingNotifier
		metrics  *recordingMetrics
		gate     *FeeGate
		job      AccountJob
	)

	BeforeEach(func() {
		fake = clock.NewFake(time.Unix(0, 0))
		prices = &fakePrices{price: decimal.NewFromInt(1)}
		notifier = &recordingNotifier{}
		metrics = &recordingMetrics{}
		job = AccountJob{Name: "alice"}

		var err error
		gate, err = NewFeeGate(FeeGateConfig{
			Prices:       prices,
			Ceiling:      decimal.RequireFromString("0.7"),
			PollInterval: 10 * time.Minute,
			Notifier:     notifier,
			Metrics:      metrics,
			Clock:        fake,
			Logger:       quietLogger(),
		})
		Expect(err).NotTo(HaveOccurred())
	})

	// script returns the fees in order as an EstimateFunc that counts calls.
	script := func(calls *int, fees ...*big.Int) EstimateFunc {
		return func(context.Context) (chain.FeeEstimate, error) {
			fee := fees[*calls]
			*calls++
			return chain.FeeEstimate{SuggestedMaxFee: fee}, nil
		}
	}

	It("returns on the first quote below the ceiling, sleeping between rejections", func() {
		calls := 0
		fee, err := gate.WaitForAcceptableFee(context.Background(), job,
			script(&calls, tokens("1.00"), tokens("0.90"), tokens("0.5")))

		Expect(err).NotTo(HaveOccurred())
		Expect(calls).To(Equal(3))
		Expect(fee.SuggestedMaxFee.String()).To(Equal(tokens("0.5").String()))
		Expect(fake.Sleeps()).To(Equal([]time.Duration{10 * time.Minute, 10 * time.Minute}))

		Expect(notifier.Messages()).To(Equal([]string{
			"bad fee $1.00", "sleep 600s",
			"bad fee $0.90", "sleep 600s",
			"good fee $0.50",
		}))
		Expect(metrics.feeRejected).To(Equal(2))
		Expect(metrics.feeAccepted).To(Equal(1))
	})

	It("never accepts a fee equal to the ceiling", func() {
		calls := 0
		fee, err := gate.WaitForAcceptableFee(context.Background(), job,
			script(&calls, tokens("0.70"), tokens("0.69")))

		Expect(err).NotTo(HaveOccurred())
		Expect(fee.SuggestedMaxFee.String()).To(Equal(tokens("0.69").String()))
		Expect(fake.Sleeps()).To(HaveLen(1))
	})

	It("never returns a fee whose fiat value reaches the ceiling", func() {
		prices.price = decimal.RequireFromString("3480")
		ceiling := decimal.RequireFromString("0.7")

		for _, wei := range []int64{1e14, 2e14, 201149425287356, 2e13, 1} {
			calls := 0
			fee, err := gate.WaitForAcceptableFee(context.Background(), job,
				script(&calls, big.NewInt(wei), big.NewInt(1)))
			Expect(err).NotTo(HaveOccurred())

			fiat := decimal.NewFromBigInt(fee.SuggestedMaxFee, -18).Mul(prices.price).Round(2)
			Expect(fiat.LessThan(ceiling)).To(BeTrue(), fmt.Sprintf("fee %d", wei))
		}
	})

	It("fails the job when the fee cannot be estimated", func() {
		_, err := gate.WaitForAcceptableFee(context.Background(), job, func(context.Context) (chain.FeeEstimate, error) {
			return chain.FeeEstimate{}, errors.New("rpc down")
		})

		Expect(IsSweepError(err, ErrCodeFeeEstimate)).To(BeTrue())
		Expect(fake.Sleeps()).To(BeEmpty())
	})

	It("fails the job when the price cannot be fetched", func() {
		prices.err = fmt.Errorf("%w: status 500", price.ErrPriceFetch)

		calls := 0
		_, err := gate.WaitForAcceptableFee(context.Background(), job, script(&calls, tokens("0.1")))

		Expect(IsSweepError(err, ErrCodePriceFetch)).To(BeTrue())
		Expect(errors.Is(err, price.ErrPriceFetch)).To(BeTrue())
	})

	It("stops waiting when the context ends during a sleep", func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		calls := 0
		_, err := gate.WaitForAcceptableFee(ctx, job, script(&calls, tokens("1"), tokens("0.1")))

		Expect(err).To(MatchError(context.Canceled))
		Expect(calls).To(Equal(1))
	})

	It("validates its configuration", func() {
		_, err := NewFeeGate(FeeGateConfig{Ceiling: decimal.NewFromInt(1)})
		Expect(err).To(HaveOccurred())
		_, err = NewFeeGate(FeeGateConfig{Prices: prices})
		Expect(err).To(HaveOccurred())
	})
})
