package forecast

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/helpcomp/teller-dashboard/config"
	"github.com/helpcomp/teller-dashboard/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func date(s string) time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return t
}

func monthly(name, amount string, day int) store.ScheduledPayment {
	return store.ScheduledPayment{Name: name, Amount: dec(amount), DayOfMonth: day, IsActive: true, Frequency: store.FrequencyMonthly}
}

func TestDueOn(t *testing.T) {
	due := date("2026-07-04")
	yearly := store.ScheduledPayment{DayOfMonth: 15, Month: 4, IsActive: true, Frequency: store.FrequencyYearly}
	yearlyCreated := store.ScheduledPayment{DayOfMonth: 1, IsActive: true, Frequency: store.FrequencyYearly, CreatedAt: date("2025-09-20")}
	oneTime := store.ScheduledPayment{DayOfMonth: 4, DueDate: &due, IsActive: true, Frequency: store.FrequencyOneTime}
	inactive := monthly("x", "1", 10)
	inactive.IsActive = false

	tests := []struct {
		name string
		p    store.ScheduledPayment
		day  string
		want bool
	}{
		{"monthly exact", monthly("rent", "1", 10), "2026-03-10", true},
		{"monthly other day", monthly("rent", "1", 10), "2026-03-11", false},
		{"day 31 in april", monthly("x", "1", 31), "2026-04-30", true},
		{"day 31 in april 29", monthly("x", "1", 31), "2026-04-29", false},
		{"day 30 in february", monthly("x", "1", 30), "2026-02-28", true},
		{"day 29 leap february", monthly("x", "1", 29), "2028-02-29", true},
		{"day 29 leap february 28", monthly("x", "1", 29), "2028-02-28", false},
		{"day 31 in january", monthly("x", "1", 31), "2026-01-31", true},
		{"yearly month", yearly, "2026-04-15", true},
		{"yearly wrong month", yearly, "2026-05-15", false},
		{"yearly creation month", yearlyCreated, "2026-09-01", true},
		{"yearly creation month other", yearlyCreated, "2026-10-01", false},
		{"one time", oneTime, "2026-07-04", true},
		{"one time other year", oneTime, "2027-07-04", false},
		{"one time without date", store.ScheduledPayment{DayOfMonth: 4, IsActive: true, Frequency: store.FrequencyOneTime}, "2026-07-04", false},
		{"inactive", inactive, "2026-03-10", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DueOn(tt.p, date(tt.day)))
		})
	}
}

func TestProject(t *testing.T) {
	payments := []store.ScheduledPayment{
		monthly("Phone", "45.333", 2),
		monthly("Gym", "20", 2),
		monthly("Rent", "1500", 4),
	}
	days := Project(dec("2000"), date("2026-03-01"), 4, payments)
	require.Len(t, days, 4)

	type row struct{ Date, Day, Start, Total, End string }
	var got []row
	for _, d := range days {
		got = append(got, row{
			d.Date, d.DayName,
			d.StartingBalance.Decimal().StringFixed(2),
			d.TotalPayments.Decimal().StringFixed(2),
			d.EndingBalance.Decimal().StringFixed(2),
		})
	}
	want := []row{
		{"2026-03-01", "Sunday", "2000.00", "0.00", "2000.00"},
		{"2026-03-02", "Monday", "2000.00", "65.33", "1934.67"},
		{"2026-03-03", "Tuesday", "1934.67", "0.00", "1934.67"},
		{"2026-03-04", "Wednesday", "1934.67", "1500.00", "434.67"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Project mismatch (-want +got):\n%s", diff)
	}
	assert.Len(t, days[1].Payments, 2)
	assert.Empty(t, days[0].Payments)
	assert.NotNil(t, days[0].Payments, "encodes as an empty list")
}

func TestMoneyJSON(t *testing.T) {
	b, err := json.Marshal(Day{StartingBalance: Money(dec("2543.5")), TotalPayments: Money(dec("0")), EndingBalance: Money(dec("-3.456"))})
	require.NoError(t, err)
	assert.Contains(t, string(b), `"starting_balance":"2543.50"`)
	assert.Contains(t, string(b), `"total_payments":"0.00"`)
	assert.Contains(t, string(b), `"ending_balance":"-3.46"`)

	var m Money
	require.NoError(t, json.Unmarshal([]byte(`"12.30"`), &m))
	assert.True(t, dec("12.3").Equal(m.Decimal()))
}

type fixture struct {
	engine *Engine
	store  *store.Store
}

func newFixture(t *testing.T, cfg *config.MasterConfig) fixture {
	t.Helper()
	ctx := context.Background()
	st, err := store.Open(ctx, filepath.Join(t.TempDir(), "forecast.db"),
		store.WithClock(func() time.Time { return time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC) }))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	require.NoError(t, st.UpsertAccounts(ctx, []store.Account{
		{ID: "chk", Name: "Checking", Type: "depository"},
		{ID: "sav", Name: "Savings", Type: "depository"},
		{ID: "cc", Name: "Card", Type: "credit"},
		{ID: "old", Name: "Old", Type: "depository", Status: "closed"},
	}))
	ts := func(s string) time.Time { return date(s).Add(9 * time.Hour) }
	require.NoError(t, st.InsertBalances(ctx, []store.Balance{
		{AccountID: "chk", Available: dec("800"), Ledger: dec("800"), Timestamp: ts("2026-02-27")},
		{AccountID: "chk", Available: dec("1000"), Ledger: dec("1000"), Timestamp: ts("2026-03-03")},
		{AccountID: "sav", Available: dec("500"), Ledger: dec("500"), Timestamp: ts("2026-03-05")},
		{AccountID: "cc", Available: dec("-300"), Ledger: dec("-300"), Timestamp: ts("2026-03-01")},
		{AccountID: "old", Available: dec("9999"), Ledger: dec("9999"), Timestamp: ts("2026-03-01")},
	}))

	e := New(st, cfg)
	e.now = func() time.Time { return time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC) }
	return fixture{engine: e, store: st}
}

func (f fixture) addPayment(t *testing.T, p store.ScheduledPayment) {
	t.Helper()
	_, err := f.store.CreatePayment(context.Background(), p)
	require.NoError(t, err)
}

func TestWeekly(t *testing.T) {
	f := newFixture(t, nil)
	f.addPayment(t, store.ScheduledPayment{Name: "Internet", Amount: dec("60"), DayOfMonth: 11})
	f.addPayment(t, store.ScheduledPayment{Name: "Streaming", Amount: dec("15.99"), DayOfMonth: 13, AccountID: "cc", Category: "Fun"})
	f.addPayment(t, store.ScheduledPayment{Name: "Next month", Amount: dec("100"), DayOfMonth: 1})

	w, err := f.engine.Weekly(context.Background(), time.Date(2026, 3, 10, 8, 30, 0, 0, time.UTC))
	require.NoError(t, err)
	// 1000 + 500 - 300, closed accounts excluded.
	assert.Equal(t, "1200.00", w.StartingBalance.Decimal().StringFixed(2))
	require.Len(t, w.Forecast, 7)
	assert.Equal(t, "2026-03-10", w.Forecast[0].Date)
	assert.Equal(t, "Tuesday", w.Forecast[0].DayName)
	assert.Equal(t, "1140.00", w.Forecast[1].EndingBalance.Decimal().StringFixed(2))
	assert.Equal(t, "Fun", w.Forecast[3].Payments[0].Category)
	assert.Equal(t, "1124.01", w.Forecast[6].EndingBalance.Decimal().StringFixed(2))
	assert.Equal(t, f.engine.now().UTC(), w.GeneratedAt)
}

func TestWeeklyFiltersAccountTypes(t *testing.T) {
	cfg := &config.MasterConfig{}
	cfg.Forecast.AccountTypes = []string{"depository"}
	f := newFixture(t, cfg)
	f.addPayment(t, store.ScheduledPayment{Name: "Card bill", Amount: dec("15.99"), DayOfMonth: 10, AccountID: "cc"})
	f.addPayment(t, store.ScheduledPayment{Name: "Rent", Amount: dec("700"), DayOfMonth: 10, AccountID: "chk"})

	w, err := f.engine.Weekly(context.Background(), date("2026-03-10"))
	require.NoError(t, err)
	assert.Equal(t, "1500.00", w.StartingBalance.Decimal().StringFixed(2))
	require.Len(t, w.Forecast[0].Payments, 1)
	assert.Equal(t, "Rent", w.Forecast[0].Payments[0].Name)
	assert.Equal(t, "800.00", w.Forecast[0].EndingBalance.Decimal().StringFixed(2))
}

func TestMonthlyCurrentMonth(t *testing.T) {
	f := newFixture(t, nil)
	f.addPayment(t, store.ScheduledPayment{Name: "Gym", Amount: dec("25"), DayOfMonth: 2})
	f.addPayment(t, store.ScheduledPayment{Name: "Rent", Amount: dec("900"), DayOfMonth: 31})

	m, err := f.engine.Monthly(context.Background(), 2026, time.March, date("2026-03-10"))
	require.NoError(t, err)
	require.Len(t, m.Days, 31)
	assert.Equal(t, "March", m.MonthName)

	byDay := func(d int) MonthDay { return m.Days[d-1] }

	// Before the first snapshot of March only the February checking balance counts.
	d1 := byDay(1)
	assert.True(t, d1.Historical)
	assert.True(t, d1.HasData)
	assert.Equal(t, "500.00", d1.EndingBalance.Decimal().StringFixed(2), "800 checking - 300 card")

	d2 := byDay(2)
	assert.Len(t, d2.Payments, 1, "historical days list due payments")
	assert.Equal(t, d2.StartingBalance, d2.EndingBalance, "but do not apply them")

	assert.Equal(t, "700.00", byDay(3).EndingBalance.Decimal().StringFixed(2))
	assert.Equal(t, "1200.00", byDay(9).EndingBalance.Decimal().StringFixed(2))

	d10 := byDay(10)
	assert.False(t, d10.Historical)
	assert.Equal(t, 10, d10.DayOfMonth)
	assert.Equal(t, "1200.00", d10.StartingBalance.Decimal().StringFixed(2))
	assert.Equal(t, "300.00", byDay(31).EndingBalance.Decimal().StringFixed(2))
}

func TestMonthlyFutureMonth(t *testing.T) {
	f := newFixture(t, nil)
	f.addPayment(t, store.ScheduledPayment{Name: "Rent", Amount: dec("900"), DayOfMonth: 31})
	f.addPayment(t, store.ScheduledPayment{Name: "Gym", Amount: dec("25"), DayOfMonth: 2})

	m, err := f.engine.Monthly(context.Background(), 2026, time.April, date("2026-03-10"))
	require.NoError(t, err)
	require.Len(t, m.Days, 30)

	// March 31 rent comes off before April starts.
	assert.Equal(t, "300.00", m.Days[0].StartingBalance.Decimal().StringFixed(2))
	assert.Equal(t, "275.00", m.Days[1].EndingBalance.Decimal().StringFixed(2))
	// Day 31 clamps to 30 April.
	assert.Equal(t, "-625.00", m.Days[29].EndingBalance.Decimal().StringFixed(2))
	for _, d := range m.Days {
		assert.False(t, d.Historical)
	}
}

func TestMonthlyPastMonth(t *testing.T) {
	f := newFixture(t, nil)
	m, err := f.engine.Monthly(context.Background(), 2026, time.February, date("2026-03-10"))
	require.NoError(t, err)
	require.Len(t, m.Days, 28)

	assert.False(t, m.Days[0].HasData)
	assert.Equal(t, "0.00", m.Days[0].EndingBalance.Decimal().StringFixed(2))
	assert.True(t, m.Days[26].HasData)
	assert.Equal(t, "800.00", m.Days[26].EndingBalance.Decimal().StringFixed(2))
	for _, d := range m.Days {
		assert.True(t, d.Historical)
	}
}

func TestMonthlyRejectsBadMonth(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.engine.Monthly(context.Background(), 2026, 13, date("2026-03-10"))
	assert.Error(t, err)
}

func TestMonthlyRejectsFarFuture(t *testing.T) {
	f := newFixture(t, nil)
	f.addPayment(t, store.ScheduledPayment{Name: "Rent", Amount: dec("900"), DayOfMonth: 1})

	_, err := f.engine.Monthly(context.Background(), 9999, time.December, date("2026-03-10"))
	assert.ErrorIs(t, err, ErrOutOfRange)
	_, err = f.engine.Monthly(context.Background(), 2036, time.April, date("2026-03-10"))
	assert.ErrorIs(t, err, ErrOutOfRange)

	m, err := f.engine.Monthly(context.Background(), 2036, time.March, date("2026-03-10"))
	require.NoError(t, err)
	require.Len(t, m.Days, 31)
	// 120 rent payments from April 2026 through March 2036 come off before the month.
	assert.Equal(t, "-106800.00", m.Days[0].EndingBalance.Decimal().StringFixed(2))
}

func TestDueBetweenMatchesDailyWalk(t *testing.T) {
	due := date("2027-02-14")
	payments := []store.ScheduledPayment{
		monthly("Rent", "900", 31),
		monthly("Gym", "25", 10),
		{Name: "Insurance", Amount: dec("400"), DayOfMonth: 29, Month: 2, IsActive: true, Frequency: store.FrequencyYearly},
		{Name: "Repair", Amount: dec("120"), DayOfMonth: 14, DueDate: &due, IsActive: true, Frequency: store.FrequencyOneTime},
	}
	from, to := date("2026-03-10"), date("2028-06-01")

	walked := decimal.Zero
	for d := from; d.Before(to); d = d.AddDate(0, 0, 1) {
		_, total := duePayments(payments, d)
		walked = walked.Add(total)
	}
	assert.Equal(t, walked.StringFixed(2), dueBetween(payments, from, to).StringFixed(2))
	assert.True(t, dueBetween(payments, to, from).IsZero())
}
