package forecast

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/helpcomp/teller-dashboard/config"
	"github.com/helpcomp/teller-dashboard/store"
	"github.com/shopspring/decimal"
)

// MaxYearsAhead bounds how far into the future a monthly forecast may be requested.
const MaxYearsAhead = 10

var ErrOutOfRange = errors.New("forecast month out of range")

type Weekly struct {
	StartingBalance Money     `json:"starting_balance"`
	Forecast        []Day     `json:"forecast"`
	GeneratedAt     time.Time `json:"generated_at"`
}

type MonthDay struct {
	Day
	DayOfMonth int  `json:"day"`
	Historical bool `json:"is_historical"`
	HasData    bool `json:"has_data"`
}

type Monthly struct {
	Year            int        `json:"year"`
	Month           int        `json:"month"`
	MonthName       string     `json:"month_name"`
	StartingBalance Money      `json:"starting_balance"`
	Days            []MonthDay `json:"days"`
	GeneratedAt     time.Time  `json:"generated_at"`
}

type Engine struct {
	store *store.Store
	cfg   *config.MasterConfig
	now   func() time.Time
}

func New(st *store.Store, cfg *config.MasterConfig) *Engine {
	return &Engine{store: st, cfg: cfg, now: time.Now}
}

// inputs loads the accounts that feed the forecast, their current balance and the
// payments that apply to them.
func (e *Engine) inputs(ctx context.Context) (decimal.Decimal, []string, []store.ScheduledPayment, error) {
	accounts, err := e.store.ListAccounts(ctx)
	if err != nil {
		return decimal.Zero, nil, nil, fmt.Errorf("loading accounts: %w", err)
	}
	latest, err := e.store.LatestBalances(ctx)
	if err != nil {
		return decimal.Zero, nil, nil, fmt.Errorf("loading balances: %w", err)
	}
	payments, err := e.store.ListActivePayments(ctx)
	if err != nil {
		return decimal.Zero, nil, nil, fmt.Errorf("loading scheduled payments: %w", err)
	}

	total := decimal.Zero
	var included []string
	inSet := make(map[string]bool)
	for _, a := range accounts {
		if a.Status != "open" || !e.cfg.IncludesAccountType(a.Type) {
			continue
		}
		included = append(included, a.ID)
		inSet[a.ID] = true
		if b, ok := latest[a.ID]; ok {
			total = total.Add(b.Available)
		}
	}

	applicable := payments[:0]
	for _, p := range payments {
		if p.AccountID == "" || inSet[p.AccountID] {
			applicable = append(applicable, p)
		}
	}
	return total, included, applicable, nil
}

// Weekly projects the seven days starting today.
func (e *Engine) Weekly(ctx context.Context, today time.Time) (Weekly, error) {
	start, _, payments, err := e.inputs(ctx)
	if err != nil {
		return Weekly{}, err
	}
	return Weekly{
		StartingBalance: Money(start.Round(2)),
		Forecast:        Project(start, today, 7, payments),
		GeneratedAt:     e.now().UTC(),
	}, nil
}

// Monthly returns one entry per day of the month. Days before today show the
// recorded balance; today and later are projected from the current balance.
func (e *Engine) Monthly(ctx context.Context, year int, month time.Month, today time.Time) (Monthly, error) {
	if month < time.January || month > time.December {
		return Monthly{}, fmt.Errorf("%w: month %d", ErrOutOfRange, month)
	}
	if limit := dateOnly(today).AddDate(MaxYearsAhead, 0, 0); time.Date(year, month, 1, 0, 0, 0, 0, time.UTC).After(limit) {
		return Monthly{}, fmt.Errorf("%w: %d-%02d is more than %d years ahead", ErrOutOfRange, year, month, MaxYearsAhead)
	}
	start, included, payments, err := e.inputs(ctx)
	if err != nil {
		return Monthly{}, err
	}

	today = dateOnly(today)
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	n := daysIn(year, month)
	afterLast := first.AddDate(0, 0, n)

	out := Monthly{
		Year:            year,
		Month:           int(month),
		MonthName:       month.String(),
		StartingBalance: Money(start.Round(2)),
		Days:            make([]MonthDay, 0, n),
		GeneratedAt:     e.now().UTC(),
	}

	histEnd := afterLast
	if today.Before(histEnd) {
		histEnd = today
	}
	if first.Before(histEnd) {
		days, err := e.historical(ctx, included, payments, first, histEnd)
		if err != nil {
			return Monthly{}, err
		}
		out.Days = append(out.Days, days...)
	}

	if today.Before(afterLast) {
		from := today
		balance := start
		if first.After(today) {
			// Payments due before the month starts still reduce its opening balance.
			balance = balance.Sub(dueBetween(payments, today, first))
			from = first
		}
		days := int(afterLast.Sub(from).Hours() / 24)
		for _, d := range Project(balance, from, days, payments) {
			t, _ := time.Parse(time.DateOnly, d.Date)
			out.Days = append(out.Days, MonthDay{Day: d, DayOfMonth: t.Day(), HasData: true})
		}
	}
	return out, nil
}

// historical reconstructs balances for the days in [from, to) from stored snapshots.
func (e *Engine) historical(ctx context.Context, included []string, payments []store.ScheduledPayment, from, to time.Time) ([]MonthDay, error) {
	if len(included) == 0 {
		var out []MonthDay
		for d := from; d.Before(to); d = d.AddDate(0, 0, 1) {
			out = append(out, historicalDay(d, payments, decimal.Zero, false))
		}
		return out, nil
	}
	snapshots, err := e.store.BalancesBetween(ctx, included, from, to)
	if err != nil {
		return nil, fmt.Errorf("loading balance history: %w", err)
	}

	latest := make(map[string]decimal.Decimal)
	var out []MonthDay
	i := 0
	for d := from; d.Before(to); d = d.AddDate(0, 0, 1) {
		end := d.AddDate(0, 0, 1)
		for i < len(snapshots) && snapshots[i].Timestamp.Before(end) {
			latest[snapshots[i].AccountID] = snapshots[i].Available
			i++
		}
		sum := decimal.Zero
		for _, v := range latest {
			sum = sum.Add(v)
		}
		out = append(out, historicalDay(d, payments, sum, len(latest) > 0))
	}
	return out, nil
}

func historicalDay(d time.Time, payments []store.ScheduledPayment, balance decimal.Decimal, hasData bool) MonthDay {
	due, total := duePayments(payments, d)
	return MonthDay{
		Day: Day{
			Date:            d.Format(time.DateOnly),
			DayName:         d.Weekday().String(),
			StartingBalance: Money(balance.Round(2)),
			Payments:        due,
			TotalPayments:   Money(total.Round(2)),
			EndingBalance:   Money(balance.Round(2)),
		},
		DayOfMonth: d.Day(),
		Historical: true,
		HasData:    hasData,
	}
}
