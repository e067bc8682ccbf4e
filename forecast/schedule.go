// Package forecast projects daily balances from current balances and scheduled payments.
package forecast

import (
	"time"

	"github.com/helpcomp/teller-dashboard/store"
	"github.com/shopspring/decimal"
)

// Money encodes as a JSON string with exactly two decimals.
type Money decimal.Decimal

func (m Money) Decimal() decimal.Decimal { return decimal.Decimal(m) }

func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(`"` + decimal.Decimal(m).StringFixed(2) + `"`), nil
}

func (m *Money) UnmarshalJSON(b []byte) error {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(b); err != nil {
		return err
	}
	*m = Money(d)
	return nil
}

type DuePayment struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Amount   Money  `json:"amount"`
	Category string `json:"category"`
}

type Day struct {
	Date            string       `json:"date"`
	DayName         string       `json:"day_name"`
	StartingBalance Money        `json:"starting_balance"`
	Payments        []DuePayment `json:"payments"`
	TotalPayments   Money        `json:"total_payments"`
	EndingBalance   Money        `json:"ending_balance"`
}

// DueOn reports whether an active payment falls on day. Days past the end of a
// month clamp to its last day.
func DueOn(p store.ScheduledPayment, day time.Time) bool {
	if !p.IsActive {
		return false
	}
	switch p.Frequency {
	case store.FrequencyOneTime:
		if p.DueDate == nil {
			return false
		}
		return sameDate(*p.DueDate, day)
	case store.FrequencyYearly:
		month := time.Month(p.Month)
		if month == 0 {
			month = p.CreatedAt.Month()
		}
		if day.Month() != month {
			return false
		}
	}
	return day.Day() == clampedDay(p.DayOfMonth, day)
}

func clampedDay(dayOfMonth int, in time.Time) int {
	last := daysIn(in.Year(), in.Month())
	if dayOfMonth > last {
		return last
	}
	return dayOfMonth
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// duePayments returns the payments due on day and their total.
func duePayments(payments []store.ScheduledPayment, day time.Time) ([]DuePayment, decimal.Decimal) {
	due := []DuePayment{}
	total := decimal.Zero
	for _, p := range payments {
		if !DueOn(p, day) {
			continue
		}
		due = append(due, DuePayment{
			ID:       p.ID,
			Name:     p.Name,
			Amount:   Money(p.Amount.Round(2)),
			Category: p.Category,
		})
		total = total.Add(p.Amount)
	}
	return due, total
}

// dueBetween totals the payments due in [from, to). Each payment falls at most once
// per month, so the range is walked month by month.
func dueBetween(payments []store.ScheduledPayment, from, to time.Time) decimal.Decimal {
	from, to = dateOnly(from), dateOnly(to)
	total := decimal.Zero
	if !from.Before(to) {
		return total
	}
	for m := time.Date(from.Year(), from.Month(), 1, 0, 0, 0, 0, time.UTC); m.Before(to); m = m.AddDate(0, 1, 0) {
		for _, p := range payments {
			if !p.IsActive {
				continue
			}
			due := time.Date(m.Year(), m.Month(), clampedDay(p.DayOfMonth, m), 0, 0, 0, 0, time.UTC)
			if p.Frequency == store.FrequencyOneTime {
				if p.DueDate == nil {
					continue
				}
				due = dateOnly(*p.DueDate)
				if due.Year() != m.Year() || due.Month() != m.Month() {
					continue
				}
			} else if !DueOn(p, due) {
				continue
			}
			if !due.Before(from) && due.Before(to) {
				total = total.Add(p.Amount)
			}
		}
	}
	return total
}

// Project walks days calendar days starting at from. Each day starts from the previous
// day's ending balance, which is its starting balance minus the payments due that day.
func Project(start decimal.Decimal, from time.Time, days int, payments []store.ScheduledPayment) []Day {
	out := make([]Day, 0, days)
	balance := start
	from = dateOnly(from)
	for i := 0; i < days; i++ {
		day := from.AddDate(0, 0, i)
		due, total := duePayments(payments, day)
		ending := balance.Sub(total)
		out = append(out, Day{
			Date:            day.Format(time.DateOnly),
			DayName:         day.Weekday().String(),
			StartingBalance: Money(balance.Round(2)),
			Payments:        due,
			TotalPayments:   Money(total.Round(2)),
			EndingBalance:   Money(ending.Round(2)),
		})
		balance = ending
	}
	return out
}
