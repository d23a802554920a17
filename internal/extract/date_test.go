package extract

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("extractDate", func() {
	var now time.Time

	BeforeEach(func() {
		now = time.Date(2025, 6, 15, 23, 59, 0, 0, time.Local)
	})

	DescribeTable("recognized notations",
		func(text, expected string) {
			Expect(extractDate(text, now)).To(Equal(expected))
		},
		Entry("US with padding", "Date: 03/04/2025", "2025-03-04"),
		Entry("US without padding", "1/2/2024 10:15 AM", "2024-01-02"),
		Entry("ISO", "Printed 2025-12-31 08:00", "2025-12-31"),
		Entry("European with padding", "Datum 04.03.2025", "2025-03-04"),
		Entry("European without padding", "4.3.2025", "2025-03-04"),
		Entry("month abbreviation without year", "Feb 14", "2025-02-14"),
		Entry("full month name with year", "February 4, 2026", "2026-02-04"),
		Entry("upper case month", "SEP 9, 2023", "2023-09-09"),
		Entry("month name with comma and no space", "Oct 31,2024", "2024-10-31"),
		Entry("no-break space after month", "Jan\u00a05, 2024", "2024-01-05"),
		Entry("ideographic space after comma", "Mar 7,\u30002023", "2023-03-07"),
	)

	DescribeTable("priority order",
		func(text, expected string) {
			Expect(extractDate(text, now)).To(Equal(expected))
		},
		Entry("US beats month name", "Date: 03/04/2025 mar 5", "2025-03-04"),
		Entry("US beats ISO", "2025-12-31 then 1/2/2024", "2024-01-02"),
		Entry("ISO beats European", "04.03.2025 then 2024-01-01", "2024-01-01"),
		Entry("European beats month name", "Jan 3 then 4.5.2022", "2022-05-04"),
		Entry("earlier month wins regardless of position", "Dec 1 and later Jan 2", "2025-01-02"),
	)

	It("should not validate the resulting date", func() {
		Expect(extractDate("13/45/2025", now)).To(Equal("2025-13-45"))
	})

	It("should fall back to the current local date", func() {
		Expect(extractDate("no dates in here", now)).To(Equal("2025-06-15"))
	})

	It("should fall back for empty text", func() {
		Expect(extractDate("", now)).To(Equal("2025-06-15"))
	})
})
