package store

import (
	"context"
	"errors"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func openTest(t *testing.T, opts ...Option) (*Store, *clock) {
	t.Helper()
	c := &clock{t: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}
	opts = append([]Option{WithClock(c.now)}, opts...)
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "data", "test.db"), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, c
}

func dec(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func seedAccounts(t *testing.T, s *Store) {
	t.Helper()
	require.NoError(t, s.UpsertAccounts(context.Background(), []Account{
		{ID: "acc_chk", EnrollmentID: "enr_1", Name: "Checking", Type: "depository", Subtype: "checking", InstitutionName: "Bank"},
		{ID: "acc_cc", EnrollmentID: "enr_1", Name: "Card", Type: "credit", Subtype: "credit_card", InstitutionName: "Bank"},
		{ID: "acc_other", EnrollmentID: "enr_2", Name: "Savings", Type: "depository", InstitutionName: "Other"},
	}))
}

func TestParseURL(t *testing.T) {
	tests := []struct {
		in      string
		driver  string
		dsn     string
		dialect Dialect
		wantErr bool
	}{
		{in: "sqlite:///teller_home.db", driver: "sqlite", dsn: "teller_home.db?", dialect: SQLite},
		{in: "sqlite:////var/lib/app.db", driver: "sqlite", dsn: "/var/lib/app.db?", dialect: SQLite},
		{in: "./local.db", driver: "sqlite", dsn: "./local.db?", dialect: SQLite},
		{in: "postgres://u:p@localhost/db", driver: "pgx", dsn: "postgres://u:p@localhost/db", dialect: Postgres},
		{in: "postgresql://localhost/db?sslmode=disable", driver: "pgx", dsn: "postgresql://localhost/db?sslmode=disable", dialect: Postgres},
		{in: "", wantErr: true},
		{in: "sqlite://", wantErr: true},
		{in: "mysql://localhost/db", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			driver, dsn, dialect, err := ParseURL(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.driver, driver)
			assert.Contains(t, dsn, tt.dsn)
			assert.Equal(t, tt.dialect, dialect)
		})
	}
}

func TestRebind(t *testing.T) {
	q := `SELECT * FROM t WHERE a = ? AND b = ? LIMIT ?`
	assert.Equal(t, q, rebind(SQLite, q))
	assert.Equal(t, `SELECT * FROM t WHERE a = $1 AND b = $2 LIMIT $3`, rebind(Postgres, q))
}

func TestMigrateIsIdempotent(t *testing.T) {
	s, _ := openTest(t)
	require.NoError(t, s.Migrate(context.Background()))
	require.NoError(t, s.Ping(context.Background()))
}

func TestUpsertAccountsPreservesDisplayName(t *testing.T) {
	ctx := context.Background()
	s, c := openTest(t)
	seedAccounts(t, s)

	require.NoError(t, s.SetDisplayName(ctx, "acc_chk", "Bills"))
	c.advance(time.Hour)
	require.NoError(t, s.UpsertAccounts(ctx, []Account{
		{ID: "acc_chk", EnrollmentID: "enr_1", Name: "Checking Renamed", Type: "depository", InstitutionName: "Bank"},
	}))

	a, err := s.GetAccount(ctx, "acc_chk")
	require.NoError(t, err)
	assert.Equal(t, "Bills", a.DisplayName)
	assert.Equal(t, "Checking Renamed", a.Name)
	assert.Equal(t, "USD", a.Currency)
	assert.Equal(t, "open", a.Status)
	assert.True(t, a.UpdatedAt.After(a.CreatedAt))

	require.NoError(t, s.SetDisplayName(ctx, "acc_chk", ""))
	a, err = s.GetAccount(ctx, "acc_chk")
	require.NoError(t, err)
	assert.Empty(t, a.DisplayName)

	assert.ErrorIs(t, s.SetDisplayName(ctx, "missing", "x"), ErrNotFound)
	_, err = s.GetAccount(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	all, err := s.ListAccounts(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	byEnr, err := s.AccountsByEnrollment(ctx, "enr_1")
	require.NoError(t, err)
	var ids []string
	for _, a := range byEnr {
		ids = append(ids, a.ID)
	}
	assert.ElementsMatch(t, []string{"acc_chk", "acc_cc"}, ids)
}

func TestBalances(t *testing.T) {
	ctx := context.Background()
	s, c := openTest(t)
	seedAccounts(t, s)

	_, err := s.LatestBalance(ctx, "acc_chk")
	assert.ErrorIs(t, err, ErrNotFound)

	day1 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, s.InsertBalances(ctx, []Balance{
		{AccountID: "acc_chk", Available: dec("100.10"), Ledger: dec("100.10"), Timestamp: day1},
		{AccountID: "acc_chk", Available: dec("200.20"), Ledger: dec("210.00"), Timestamp: day1.AddDate(0, 0, 2)},
		{AccountID: "acc_cc", Available: dec("-50"), Ledger: dec("-50"), Timestamp: day1.AddDate(0, 0, 1)},
	}))
	require.NoError(t, s.InsertBalances(ctx, []Balance{
		{AccountID: "acc_other", Available: dec("5"), Ledger: dec("5")},
	}))

	b, err := s.LatestBalance(ctx, "acc_chk")
	require.NoError(t, err)
	assert.True(t, dec("200.20").Equal(b.Available))
	assert.True(t, dec("210").Equal(b.Ledger))

	latest, err := s.LatestBalances(ctx)
	require.NoError(t, err)
	assert.Len(t, latest, 3)
	assert.True(t, dec("-50").Equal(latest["acc_cc"].Available))
	assert.Equal(t, c.now(), latest["acc_other"].Timestamp)

	hist, err := s.BalanceHistory(ctx, "acc_chk", day1.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.True(t, dec("200.20").Equal(hist[0].Available))

	between, err := s.BalancesBetween(ctx, []string{"acc_chk", "acc_cc"}, day1.AddDate(0, 0, 1), day1.AddDate(0, 0, 5))
	require.NoError(t, err)
	var got []string
	for _, b := range between {
		got = append(got, b.AccountID+"@"+b.Timestamp.Format(time.DateOnly))
	}
	want := []string{"acc_chk@2026-03-01", "acc_cc@2026-03-02", "acc_chk@2026-03-03"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("BalancesBetween mismatch (-want +got):\n%s", diff)
	}
}

func TestTransactions(t *testing.T) {
	ctx := context.Background()
	s, _ := openTest(t)
	seedAccounts(t, s)

	d := func(day int) time.Time { return time.Date(2026, 3, day, 0, 0, 0, 0, time.UTC) }
	require.NoError(t, s.ApplyTransactionChanges(ctx, ChangeSet{Insert: []Transaction{
		{ID: "t1", AccountID: "acc_chk", Amount: dec("-12.50"), Date: d(1), Description: "Coffee", Status: StatusPosted},
		{ID: "t2", AccountID: "acc_chk", Amount: dec("-40"), Date: d(3), Description: "Groceries", Status: StatusPending},
		{ID: "t3", AccountID: "acc_cc", Amount: dec("-99.99"), Date: d(2), Description: "Shoes"},
	}}))

	idx, err := s.TransactionsSince(ctx, "acc_chk", d(2))
	require.NoError(t, err)
	require.Len(t, idx, 1)
	assert.True(t, idx["t2"].Pending())

	t2 := idx["t2"]
	t2.Status = StatusPosted
	t2.Amount = dec("-41.25")
	require.NoError(t, s.ApplyTransactionChanges(ctx, ChangeSet{
		Update: []Transaction{t2},
		Delete: []string{"t1"},
	}))

	list, err := s.ListTransactions(ctx, TransactionFilter{AccountID: "acc_chk"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "t2", list[0].ID)
	assert.Equal(t, StatusPosted, list[0].Status)
	assert.True(t, dec("-41.25").Equal(list[0].Amount))

	all, err := s.ListTransactions(ctx, TransactionFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "t2", all[0].ID, "newest first")

	ranged, err := s.ListTransactions(ctx, TransactionFilter{Start: d(2), End: d(2)})
	require.NoError(t, err)
	require.Len(t, ranged, 1)
	assert.Equal(t, "t3", ranged[0].ID)

	limited, err := s.ListTransactions(ctx, TransactionFilter{Limit: 1, Status: StatusPosted})
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	counts, err := s.CountTransactions(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"acc_chk": 1, "acc_cc": 1}, counts)

	require.NoError(t, s.ApplyTransactionChanges(ctx, ChangeSet{Insert: []Transaction{
		{ID: "t4", AccountID: "acc_cc", Amount: dec("-10.01"), Date: d(4), Description: "Cinema", Category: "Fun"},
		{ID: "t5", AccountID: "acc_chk", Amount: dec("-4.99"), Date: d(5), Description: "Arcade", Category: "Fun"},
	}}))
	byCategory, err := s.TransactionsByCategory(ctx)
	require.NoError(t, err)
	require.Len(t, byCategory, 2)
	assert.Equal(t, 2, byCategory["Fun"].Count)
	assert.Equal(t, "-15.00", byCategory["Fun"].Amount.StringFixed(2))
	assert.Equal(t, 2, byCategory[Uncategorized].Count)
	assert.Equal(t, "-141.24", byCategory[Uncategorized].Amount.StringFixed(2))

	require.NoError(t, s.ApplyTransactionChanges(ctx, ChangeSet{}))
}

func TestApplyTransactionChangesRollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()
	s := New(db, Postgres)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO transactions`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM transactions WHERE id = $1`)).
		WithArgs("gone").
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err = s.ApplyTransactionChanges(context.Background(), ChangeSet{
		Insert: []Transaction{{ID: "t1", AccountID: "a", Amount: dec("1"), Date: time.Now()}},
		Delete: []string{"gone"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduledPayments(t *testing.T) {
	ctx := context.Background()
	s, _ := openTest(t)
	seedAccounts(t, s)

	id, err := s.CreatePayment(ctx, ScheduledPayment{
		Name: "Rent", Amount: dec("1500"), AccountID: "acc_chk", DayOfMonth: 1, IsRecurring: true,
	})
	require.NoError(t, err)

	p, err := s.GetPayment(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, FrequencyMonthly, p.Frequency)
	assert.True(t, p.IsActive)
	assert.Equal(t, "acc_chk", p.AccountID)
	assert.Nil(t, p.DueDate)

	oneTime, err := s.CreatePayment(ctx, ScheduledPayment{
		Name: "Car repair", Amount: dec("320.40"), DayOfMonth: 5, Frequency: FrequencyOneTime, IsRecurring: true,
	})
	require.NoError(t, err)
	p, err = s.GetPayment(ctx, oneTime)
	require.NoError(t, err)
	require.NotNil(t, p.DueDate)
	// Created on 10 March, so day 5 rolls into April.
	assert.Equal(t, "2026-04-05", p.DueDate.Format(time.DateOnly))
	assert.False(t, p.IsRecurring)
	assert.Empty(t, p.AccountID)

	p.Name = "Car repair (final)"
	p.Amount = dec("300")
	require.NoError(t, s.UpdatePayment(ctx, p))
	p, err = s.GetPayment(ctx, oneTime)
	require.NoError(t, err)
	assert.Equal(t, "Car repair (final)", p.Name)
	assert.True(t, dec("300").Equal(p.Amount))

	_, err = s.CreatePayment(ctx, ScheduledPayment{Name: "Bad", Amount: dec("1"), DayOfMonth: 32})
	assert.Error(t, err)
	_, err = s.CreatePayment(ctx, ScheduledPayment{Name: "Bad", Amount: dec("1"), DayOfMonth: 2, Frequency: "weekly"})
	assert.Error(t, err)

	require.NoError(t, s.DeactivatePayment(ctx, id))
	assert.ErrorIs(t, s.DeactivatePayment(ctx, id), ErrNotFound)
	assert.ErrorIs(t, s.DeactivatePayment(ctx, 999), ErrNotFound)

	active, err := s.ListActivePayments(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, oneTime, active[0].ID)

	_, err = s.GetPayment(ctx, 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdatePaymentToOneTime(t *testing.T) {
	ctx := context.Background()
	s, _ := openTest(t)

	id, err := s.CreatePayment(ctx, ScheduledPayment{Name: "Gym", Amount: dec("40"), DayOfMonth: 20, IsRecurring: true})
	require.NoError(t, err)
	p, err := s.GetPayment(ctx, id)
	require.NoError(t, err)
	require.Nil(t, p.DueDate)

	p.Frequency = FrequencyOneTime
	require.NoError(t, s.UpdatePayment(ctx, p))
	p, err = s.GetPayment(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, p.DueDate)
	assert.Equal(t, "2026-03-20", p.DueDate.Format(time.DateOnly))
	assert.False(t, p.IsRecurring)

	due := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	p.DueDate = &due
	require.NoError(t, s.UpdatePayment(ctx, p))
	p, err = s.GetPayment(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "2026-08-01", p.DueDate.Format(time.DateOnly))
}

func TestNextDueDate(t *testing.T) {
	tests := []struct {
		from string
		day  int
		want string
	}{
		{"2026-03-10", 10, "2026-03-10"},
		{"2026-03-10", 15, "2026-03-15"},
		{"2026-03-10", 5, "2026-04-05"},
		{"2026-01-31", 31, "2026-01-31"},
		{"2026-02-01", 31, "2026-02-28"},
		{"2026-04-30", 31, "2026-04-30"},
		{"2026-12-20", 3, "2027-01-03"},
	}
	for _, tt := range tests {
		from, _ := time.Parse(time.DateOnly, tt.from)
		assert.Equal(t, tt.want, NextDueDate(from, tt.day).Format(time.DateOnly), "%s day %d", tt.from, tt.day)
	}
}

func TestEnrollments(t *testing.T) {
	ctx := context.Background()
	s, _ := openTest(t)

	e, err := s.UpsertEnrollment(ctx, Enrollment{EnrollmentID: "enr_1", AccessToken: "tok_1", InstitutionName: "Bank"})
	require.NoError(t, err)
	assert.Equal(t, "default_user", e.UserID)
	assert.True(t, e.IsActive)
	assert.Nil(t, e.LastSynced)

	require.NoError(t, s.DeactivateEnrollment(ctx, "enr_1"))
	active, err := s.ActiveEnrollments(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)

	e, err = s.UpsertEnrollment(ctx, Enrollment{EnrollmentID: "enr_1", AccessToken: "tok_2"})
	require.NoError(t, err)
	assert.Equal(t, "tok_2", e.AccessToken)
	assert.Equal(t, "Bank", e.InstitutionName, "institution kept when not given")
	assert.True(t, e.IsActive)

	_, err = s.UpsertEnrollment(ctx, Enrollment{EnrollmentID: "enr_2", AccessToken: "tok_3", UserID: "alice"})
	require.NoError(t, err)

	mine, err := s.EnrollmentsByUser(ctx, "default_user", true)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "enr_1", mine[0].EnrollmentID)

	require.NoError(t, s.MarkSynced(ctx, "enr_1"))
	e, err = s.GetEnrollment(ctx, "enr_1")
	require.NoError(t, err)
	require.NotNil(t, e.LastSynced)

	assert.ErrorIs(t, s.DeactivateEnrollment(ctx, "nope"), ErrNotFound)
	_, err = s.GetEnrollment(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.UpsertEnrollment(ctx, Enrollment{EnrollmentID: "enr_3"})
	assert.Error(t, err)
}

func TestSealedTokens(t *testing.T) {
	ctx := context.Background()
	sealer, err := NewSealer("000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f")
	require.NoError(t, err)
	s, _ := openTest(t, WithSealer(sealer))

	e, err := s.UpsertEnrollment(ctx, Enrollment{EnrollmentID: "enr_1", AccessToken: "tok_secret"})
	require.NoError(t, err)
	assert.Equal(t, "tok_secret", e.AccessToken)

	var raw string
	require.NoError(t, s.db.QueryRowContext(ctx, `SELECT access_token FROM user_enrollments`).Scan(&raw))
	assert.NotContains(t, raw, "tok_secret")
	assert.Regexp(t, `^sb1:`, raw)

	// Legacy plain tokens are read back unchanged.
	_, err = s.db.ExecContext(ctx, `UPDATE user_enrollments SET access_token = 'tok_plain'`)
	require.NoError(t, err)
	e, err = s.GetEnrollment(ctx, "enr_1")
	require.NoError(t, err)
	assert.Equal(t, "tok_plain", e.AccessToken)
}

func TestSealer(t *testing.T) {
	_, err := NewSealer("short")
	assert.Error(t, err)

	s, err := NewSealer("AAECAwQFBgcICQoLDA0ODxAREhMUFRYXGBkaGxwdHh8=")
	require.NoError(t, err)
	sealed, err := s.Seal("hello")
	require.NoError(t, err)

	plain, err := s.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "hello", plain)

	other, err := NewSealer("1f1e1d1c1b1a191817161514131211100f0e0d0c0b0a09080706050403020100")
	require.NoError(t, err)
	_, err = other.Open(sealed)
	assert.Error(t, err)

	var none *Sealer
	_, err = none.Open(sealed)
	assert.ErrorIs(t, err, ErrNoKey)
}

func TestSyncRuns(t *testing.T) {
	ctx := context.Background()
	s, c := openTest(t)

	_, err := s.LastSyncRun(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	first, err := s.StartSyncRun(ctx, "enr_1")
	require.NoError(t, err)
	c.advance(time.Minute)
	require.NoError(t, s.FinishSyncRun(ctx, SyncRun{ID: first, Accounts: 3, Balances: 3, TransactionsAdded: 10}))

	c.advance(time.Minute)
	second, err := s.StartSyncRun(ctx, "enr_2")
	require.NoError(t, err)
	require.NoError(t, s.FinishSyncRun(ctx, SyncRun{ID: second, Error: "provider down"}))

	last, err := s.LastSyncRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, second, last.ID)
	assert.Equal(t, SyncFailed, last.Status)
	assert.Equal(t, "provider down", last.Error)
	require.NotNil(t, last.FinishedAt)

	assert.ErrorIs(t, s.FinishSyncRun(ctx, SyncRun{ID: "missing"}), ErrNotFound)
}
