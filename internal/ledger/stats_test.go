package ledger

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Progress", func() {
	It("should describe the seeded goal", func() {
		p := Progress(DefaultGoal(time.Now()))
		Expect(p.Remaining).To(Equal(int64(2005583)))
		Expect(p.Percent).To(BeNumerically("~", 8.837, 0.001))
		Expect(p.MonthsToGoal).To(Equal(11))
	})

	It("should not go below zero remaining", func() {
		p := Progress(&Goal{Target: 1000, Saved: 1500, MonthlyContribution: 100})
		Expect(p.Remaining).To(BeZero())
		Expect(p.Percent).To(Equal(150.0))
		Expect(p.MonthsToGoal).To(BeZero())
	})

	It("should leave months at zero without a contribution", func() {
		p := Progress(&Goal{Target: 1000, Saved: 0})
		Expect(p.MonthsToGoal).To(BeZero())
	})

	It("should count an exact multiple without an extra month", func() {
		p := Progress(&Goal{Target: 1000, Saved: 0, MonthlyContribution: 250})
		Expect(p.MonthsToGoal).To(Equal(4))
	})
})

var _ = Describe("categoryTotals", func() {
	It("should sum expenses per category, largest first", func() {
		totals := categoryTotals([]*Transaction{
			{Type: TypeExpense, Amount: 500, Category: "Taxi"},
			{Type: TypeExpense, Amount: 700, Category: "Groceries"},
			{Type: TypeExpense, Amount: 300, Category: "Taxi"},
			{Type: TypeIncome, Amount: 9999},
			{Type: TypeExpense, Amount: 100},
		})
		Expect(totals).To(Equal([]CategoryTotal{
			{Category: "Taxi", Total: 800},
			{Category: "Groceries", Total: 700},
			{Category: UncategorizedCategory, Total: 100},
		}))
	})

	It("should order ties by name", func() {
		totals := categoryTotals([]*Transaction{
			{Type: TypeExpense, Amount: 100, Category: "Taxi"},
			{Type: TypeExpense, Amount: 100, Category: "Health"},
		})
		Expect(totals[0].Category).To(Equal("Health"))
	})
})

var _ = Describe("topCategories", func() {
	It("should keep the largest and fill in their shares", func() {
		top := topCategories([]CategoryTotal{
			{Category: "A", Total: 600},
			{Category: "B", Total: 300},
			{Category: "C", Total: 100},
			{Category: "D", Total: 50},
		}, 3)
		Expect(top).To(HaveLen(3))
		Expect(top[0].Share).To(BeNumerically("~", 60, 1e-9))
		Expect(top[1].Share).To(BeNumerically("~", 30, 1e-9))
		Expect(top[2].Share).To(BeNumerically("~", 10, 1e-9))
	})

	It("should return an empty list when there is nothing", func() {
		Expect(topCategories(nil, 3)).To(BeEmpty())
	})
})

var _ = Describe("spendingByPeriod", func() {
	It("should bucket expenses by date", func() {
		now := time.Date(2025, 6, 15, 9, 0, 0, 0, time.Local)
		sp := spendingByPeriod([]*Transaction{
			{Type: TypeExpense, Amount: 100, Date: "2025-06-15"},
			{Type: TypeExpense, Amount: 200, Date: "2025-06-10"},
			{Type: TypeExpense, Amount: 400, Date: "2025-06-08"},
			{Type: TypeExpense, Amount: 800, Date: "2025-06-01"},
			{Type: TypeExpense, Amount: 1600, Date: "2025-05-31"},
			{Type: TypeIncome, Amount: 5000, Date: "2025-06-15"},
		}, now)
		Expect(sp).To(Equal(Spending{Today: 100, Week: 700, Month: 1500}))
	})
})

var _ = Describe("Service stats", func() {
	var (
		db      *mockDB
		service *Service
		ctx     context.Context
	)

	BeforeEach(func() {
		db = newMockDB()
		ctx = context.Background()
		clock := &mockTimeSource{now: time.Date(2025, 6, 15, 14, 30, 0, 0, time.Local)}
		service = NewServiceWithDeps(db, newMockScanner(), newMockStorage(), nil, nil, &mockIDGenerator{id: "x"}, clock)

		_, err := service.AddIncome(ctx, 100000, "")
		Expect(err).NotTo(HaveOccurred())
		_, err = service.AddExpense(ctx, 2500, "Taxi", "")
		Expect(err).NotTo(HaveOccurred())
		_, err = service.AddExpense(ctx, 1500, "", "")
		Expect(err).NotTo(HaveOccurred())
	})

	It("should total income and expenses", func() {
		Expect(service.TotalIncome()).To(Equal(int64(100000)))
		Expect(service.TotalExpenses()).To(Equal(int64(4000)))
	})

	It("should total spending today", func() {
		sp, err := service.SpendingByPeriod()
		Expect(err).NotTo(HaveOccurred())
		Expect(sp.Today).To(Equal(int64(4000)))
	})

	It("should report the goal progress", func() {
		p, err := service.GoalProgress()
		Expect(err).NotTo(HaveOccurred())
		Expect(p.Remaining).To(Equal(int64(2200000 - (194417 + 100000 - 4000))))
	})

	It("should return a target per day of the month", func() {
		targets, err := service.ChallengeTargets()
		Expect(err).NotTo(HaveOccurred())
		Expect(targets).To(HaveLen(30))
		var sum int64
		for _, t := range targets {
			sum += t
		}
		Expect(sum).To(BeNumerically("~", 200000, 1))
	})

	Describe("Overview", func() {
		It("should gather the dashboard", func() {
			o, err := service.Overview()
			Expect(err).NotTo(HaveOccurred())
			Expect(o.Goal.Name).To(Equal("House"))
			Expect(o.Progress).NotTo(BeNil())
			Expect(o.TotalIncome).To(Equal(int64(100000)))
			Expect(o.TotalExpenses).To(Equal(int64(4000)))
			Expect(o.Spending.Month).To(Equal(int64(4000)))
			Expect(o.TopCategories).To(HaveLen(2))
			Expect(o.TopCategories[0].Category).To(Equal("Taxi"))

			targets, err := service.ChallengeTargets()
			Expect(err).NotTo(HaveOccurred())
			Expect(o.TodaysChallenge).To(Equal(targets[14]))
		})

		It("should work without a goal", func() {
			db.goal = nil
			o, err := service.Overview()
			Expect(err).NotTo(HaveOccurred())
			Expect(o.Goal).To(BeNil())
			Expect(o.Progress).To(BeNil())
			Expect(o.TodaysChallenge).To(BeZero())
		})

		It("should fail when transactions cannot be read", func() {
			db.listErr = errors.New("disk error")
			_, err := service.Overview()
			Expect(err).To(HaveOccurred())
		})
	})
})
