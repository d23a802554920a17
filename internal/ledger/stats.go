package ledger

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/zombor/goalpulse/internal/challenge"
)

const topCategoryCount = 3

// CategoryTotal is the expense total for one category
type CategoryTotal struct {
	Category string  `json:"category"`
	Total    int64   `json:"total"`
	Share    float64 `json:"share,omitempty"` // percent of the listed totals
}

// Spending is the expense total over the usual dashboard periods
type Spending struct {
	Today int64 `json:"today"`
	Week  int64 `json:"week"`
	Month int64 `json:"month"`
}

// GoalProgress describes how far the goal is from done
type GoalProgress struct {
	Remaining    int64   `json:"remaining"`
	Percent      float64 `json:"percent"`
	MonthsToGoal int     `json:"months_to_goal"`
}

// Overview is everything the dashboard shows at once
type Overview struct {
	Goal            *Goal           `json:"goal,omitempty"`
	Progress        *GoalProgress   `json:"progress,omitempty"`
	Spending        Spending        `json:"spending"`
	TotalIncome     int64           `json:"total_income"`
	TotalExpenses   int64           `json:"total_expenses"`
	TopCategories   []CategoryTotal `json:"top_categories"`
	TodaysChallenge int64           `json:"todays_challenge"`
}

// Progress computes progress for a goal. Percent is uncapped; a goal saved
// past its target reports more than 100.
func Progress(goal *Goal) GoalProgress {
	var p GoalProgress
	p.Remaining = max(0, goal.Target-goal.Saved)
	if goal.Target > 0 {
		p.Percent = float64(goal.Saved) / float64(goal.Target) * 100
	}
	if goal.MonthlyContribution > 0 {
		p.MonthsToGoal = int((p.Remaining + goal.MonthlyContribution - 1) / goal.MonthlyContribution)
	}
	return p
}

func (s *Service) allTransactions() ([]*Transaction, error) {
	transactions, err := s.db.ListTransactions(0)
	if err != nil {
		return nil, fmt.Errorf("listing transactions: %w", err)
	}
	return transactions, nil
}

// GoalProgress returns progress towards the savings goal
func (s *Service) GoalProgress() (*GoalProgress, error) {
	goal, err := s.Goal()
	if err != nil {
		return nil, err
	}
	p := Progress(goal)
	return &p, nil
}

// CategoryTotals sums expenses per category, largest first. Expenses with no
// category count as UncategorizedCategory.
func (s *Service) CategoryTotals() ([]CategoryTotal, error) {
	transactions, err := s.allTransactions()
	if err != nil {
		return nil, err
	}
	return categoryTotals(transactions), nil
}

func categoryTotals(transactions []*Transaction) []CategoryTotal {
	sums := make(map[string]int64)
	for _, t := range transactions {
		if t.Type != TypeExpense {
			continue
		}
		category := t.Category
		if category == "" {
			category = UncategorizedCategory
		}
		sums[category] += t.Amount
	}

	totals := make([]CategoryTotal, 0, len(sums))
	for category, total := range sums {
		totals = append(totals, CategoryTotal{Category: category, Total: total})
	}
	sort.Slice(totals, func(i, j int) bool {
		if totals[i].Total != totals[j].Total {
			return totals[i].Total > totals[j].Total
		}
		return totals[i].Category < totals[j].Category
	})
	return totals
}

// topCategories keeps the n largest positive totals and fills in each one's
// share of their sum
func topCategories(totals []CategoryTotal, n int) []CategoryTotal {
	top := make([]CategoryTotal, 0, n)
	var sum int64
	for _, t := range totals {
		if len(top) == n {
			break
		}
		if t.Total <= 0 {
			continue
		}
		top = append(top, t)
		sum += t.Total
	}
	for i := range top {
		top[i].Share = float64(top[i].Total) / float64(sum) * 100
	}
	return top
}

// SpendingByPeriod sums expenses dated today, in the last seven days and
// since the first of the month, all in local time
func (s *Service) SpendingByPeriod() (Spending, error) {
	transactions, err := s.allTransactions()
	if err != nil {
		return Spending{}, err
	}
	return spendingByPeriod(transactions, s.timeSource.Now()), nil
}

func spendingByPeriod(transactions []*Transaction, now time.Time) Spending {
	today := now.Format(dateLayout)
	weekStart := now.AddDate(0, 0, -7).Format(dateLayout)
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()).Format(dateLayout)

	var sp Spending
	for _, t := range transactions {
		if t.Type != TypeExpense {
			continue
		}
		// YYYY-MM-DD compares correctly as text
		if t.Date >= today {
			sp.Today += t.Amount
		}
		if t.Date >= weekStart {
			sp.Week += t.Amount
		}
		if t.Date >= monthStart {
			sp.Month += t.Amount
		}
	}
	return sp
}

func sumByType(transactions []*Transaction, typ TransactionType) int64 {
	var total int64
	for _, t := range transactions {
		if t.Type == typ {
			total += t.Amount
		}
	}
	return total
}

// TotalIncome sums all income
func (s *Service) TotalIncome() (int64, error) {
	transactions, err := s.allTransactions()
	if err != nil {
		return 0, err
	}
	return sumByType(transactions, TypeIncome), nil
}

// TotalExpenses sums all expenses
func (s *Service) TotalExpenses() (int64, error) {
	transactions, err := s.allTransactions()
	if err != nil {
		return 0, err
	}
	return sumByType(transactions, TypeExpense), nil
}

// ChallengeTargets returns this month's daily savings targets in cents
func (s *Service) ChallengeTargets() ([]int64, error) {
	goal, err := s.Goal()
	if err != nil {
		return nil, err
	}
	now := s.timeSource.Now()
	targets := challenge.Targets(FromCents(goal.MonthlyContribution), now.Year(), int(now.Month()))

	cents := make([]int64, len(targets))
	for i, t := range targets {
		cents[i] = ToCents(t)
	}
	return cents, nil
}

// Overview gathers the dashboard in one pass over the transactions
func (s *Service) Overview() (*Overview, error) {
	transactions, err := s.allTransactions()
	if err != nil {
		return nil, err
	}
	now := s.timeSource.Now()

	o := &Overview{
		Spending:      spendingByPeriod(transactions, now),
		TotalIncome:   sumByType(transactions, TypeIncome),
		TotalExpenses: sumByType(transactions, TypeExpense),
		TopCategories: topCategories(categoryTotals(transactions), topCategoryCount),
	}

	goal, err := s.db.GetGoal()
	switch {
	case err == nil:
		p := Progress(goal)
		o.Goal = goal
		o.Progress = &p
		target := challenge.Today(FromCents(goal.MonthlyContribution), now)
		o.TodaysChallenge = ToCents(math.Max(0, target))
	case !errors.Is(err, ErrNoGoal):
		return nil, fmt.Errorf("getting goal: %w", err)
	}

	return o, nil
}
