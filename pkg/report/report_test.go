package report_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"math/big"
	"strings"

	"github.com/lisanmuaddib/balance-sweeper/pkg/report"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type mapBalances struct {
	balances map[string]*big.Int
	failures map[string]int
	queried  []string
}

func (m *mapBalances) Balance(_ context.Context, _, address string) (*big.Int, error) {
	m.queried = append(m.queried, address)
	if m.failures[address] > 0 {
		m.failures[address]--
		return nil, errors.New("rpc timeout")
	}
	if b, ok := m.balances[address]; ok {
		return b, nil
	}
	return new(big.Int), nil
}

func wei(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	Expect(ok).To(BeTrue())
	return v
}

var _ = Describe("Reporter", func() {
	var (
		balances *mapBalances
		price    decimal.Decimal
	)

	BeforeEach(func() {
		balances = &mapBalances{
			balances: map[string]*big.Int{
				"a": wei("1000000000000000000"), // 3480
				"b": wei("100000000000000"),     // 0.348
				"c": wei("143678160919541"),     // 0.50000000000000268
				"d": wei("2000000000000000"),    // 6.96
			},
			failures: map[string]int{},
		}
		price = decimal.NewFromInt(3480)
	})

	newReporter := func(retries int) *report.Reporter {
		logger := logrus.New()
		logger.SetOutput(io.Discard)
		r, err := report.New(report.Config{Balances: balances, Price: price, Rate: 1000, Retries: retries, Logger: logger})
		Expect(err).NotTo(HaveOccurred())
		return r
	}

	It("writes exactly one line per address in input order", func() {
		var out bytes.Buffer
		addresses := []string{"a", "b", "", "d", "e", "c"}

		summary, err := newReporter(0).Run(context.Background(), addresses, &out)

		Expect(err).NotTo(HaveOccurred())
		lines := strings.Split(strings.TrimSuffix(out.String(), "\n"), "\n")
		Expect(lines).To(Equal([]string{"3480", "", "", "7", "", "1"}))
		Expect(summary.Lines).To(Equal(6))
		Expect(summary.NonEmpty).To(Equal(3))
		Expect(summary.Total.String()).To(Equal("3488"))
		Expect(balances.queried).To(Equal([]string{"a", "b", "d", "e", "c"}))
	})

	It("renders only positive integers or nothing", func() {
		var out bytes.Buffer
		addresses := []string{"a", "b", "c", "d", "e"}

		_, err := newReporter(0).Run(context.Background(), addresses, &out)
		Expect(err).NotTo(HaveOccurred())

		for _, line := range strings.Split(strings.TrimSuffix(out.String(), "\n"), "\n") {
			Expect(line).To(Or(BeEmpty(), MatchRegexp(`^[1-9][0-9]*$`)))
		}
	})

	It("retries failed queries before giving up", func() {
		balances.failures["a"] = 1
		var out bytes.Buffer

		_, err := newReporter(1).Run(context.Background(), []string{"a"}, &out)
		Expect(err).NotTo(HaveOccurred())
		Expect(out.String()).To(Equal("3480\n"))

		balances.failures["a"] = 5
		_, err = newReporter(1).Run(context.Background(), []string{"a"}, &out)
		Expect(err).To(MatchError(ContainSubstring("line 1")))
	})

	It("requires a positive price", func() {
		_, err := report.New(report.Config{Balances: balances})
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("FormatValue", func() {
	It("rounds half-up to a whole number", func() {
		Expect(report.FormatValue(wei("500000000000000000"), decimal.RequireFromString("3"))).To(Equal("2"))
		Expect(report.FormatValue(wei("499999999999999999"), decimal.RequireFromString("3"))).To(Equal("1"))
		Expect(report.FormatValue(wei("100000000000000000"), decimal.RequireFromString("4.9"))).To(Equal(""))
		Expect(report.FormatValue(new(big.Int), decimal.RequireFromString("3480"))).To(Equal(""))
	})
})
