package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"math/big"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"
)

var _ = Describe("ColoredJSONFormatter", func() {
	format := func(fields logrus.Fields) string {
		f := NewColoredJSONFormatter()
		f.DisableColors = true

		entry := logrus.NewEntry(logrus.New()).WithFields(fields)
		entry.Time = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
		entry.Level = logrus.WarnLevel
		entry.Message = "Fee above ceiling"

		out, err := f.Format(entry)
		Expect(err).NotTo(HaveOccurred())
		return string(out)
	}

	It("puts job fields first and the rest alphabetically", func() {
		line := format(logrus.Fields{
			"fee_wei": big.NewInt(441000000000000),
			"address": "0xabc",
			"job":     "alice",
			"run_id":  "r1",
			"attempt": 2,
			"error":   errors.New("boom"),
		})

		Expect(line).To(Equal(`2024-03-01T12:00:00Z WARNING Fee above ceiling run_id="r1" job="alice" address="0xabc" error="boom" attempt=2 fee_wei="441000000000000"` + "\n"))
	})
})

var _ = Describe("New", func() {
	It("defaults to info with the console formatter", func() {
		logger, err := New(Options{})

		Expect(err).NotTo(HaveOccurred())
		Expect(logger.GetLevel()).To(Equal(logrus.InfoLevel))
		Expect(logger.Formatter).To(BeAssignableToTypeOf(&ColoredJSONFormatter{}))
	})

	It("writes JSON when asked", func() {
		var out bytes.Buffer
		logger, err := New(Options{Level: "debug", Format: "JSON", Output: &out})
		Expect(err).NotTo(HaveOccurred())

		logger.WithField("job", "alice").Debug("Polling")

		var decoded map[string]interface{}
		Expect(json.Unmarshal(out.Bytes(), &decoded)).To(Succeed())
		Expect(decoded).To(HaveKeyWithValue("job", "alice"))
		Expect(decoded).To(HaveKeyWithValue("level", "debug"))
	})

	It("rejects unknown levels and formats", func() {
		_, err := New(Options{Level: "loud"})
		Expect(err).To(HaveOccurred())

		_, err = New(Options{Format: "xml"})
		Expect(err).To(HaveOccurred())
	})
})
