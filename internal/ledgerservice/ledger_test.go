package ledgerservice

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-petr/pet-ledger/internal/domain"
	"github.com/go-petr/pet-ledger/internal/memstore"
	"github.com/go-petr/pet-ledger/pkg/randompkg"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var decimalComparer = cmp.Comparer(func(a, b decimal.Decimal) bool { return a.Equal(b) })

func amount(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func requireDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.Truef(t, amount(want).Equal(got), "want %s, got %s", want, got)
}

func requireNullDecimal(t *testing.T, want string, got decimal.NullDecimal) {
	t.Helper()
	require.True(t, got.Valid)
	requireDecimal(t, want, got.Decimal)
}

func openAccount(t *testing.T, s *Service, number, balance string) domain.Account {
	t.Helper()

	account, err := s.CreateAccount(context.Background(), domain.CreateAccountParams{
		AccountNumber:  number,
		OwnerName:      randompkg.Owner(),
		InitialBalance: amount(balance),
	})
	require.NoError(t, err)

	return account
}

func entriesOf(t *testing.T, s *Service, number string) []domain.Entry {
	t.Helper()

	entries, err := s.ListTransactions(context.Background(), domain.ListEntriesParams{Account: domain.Ref(number)})
	require.NoError(t, err)

	return entries
}

func TestCreateAccount(t *testing.T) {
	ctx := context.Background()
	s := newTestService(memstore.New())

	account, err := s.CreateAccount(ctx, domain.CreateAccountParams{
		AccountNumber:  "  A1 ",
		OwnerName:      " Ana ",
		InitialBalance: amount("100.00"),
	})
	require.NoError(t, err)
	require.Equal(t, "A1", account.AccountNumber)
	require.Equal(t, "Ana", account.OwnerName)
	require.True(t, account.Active)
	require.NotZero(t, account.ID)

	balance, err := s.GetBalance(ctx, "A1")
	require.NoError(t, err)
	requireDecimal(t, "100.00", balance)

	entries := entriesOf(t, s, "A1")
	require.Len(t, entries, 1)
	require.Equal(t, domain.EntryDeposit, entries[0].Type)
	require.Equal(t, domain.StatusSuccess, entries[0].Status)
	require.Equal(t, domain.NoAccount, entries[0].SourceAccount)
	require.Equal(t, domain.Ref("A1"), entries[0].DestAccount)
	requireNullDecimal(t, "0", entries[0].BalanceBeforeDest)
	requireNullDecimal(t, "100.00", entries[0].BalanceAfterDest)
	require.False(t, entries[0].BalanceBeforeSource.Valid)
}

func TestCreateAccountRejections(t *testing.T) {
	s := newTestService(memstore.New())
	openAccount(t, s, "A1", "0")
	require.NoError(t, s.DeactivateAccount(context.Background(), "A1"))

	testCases := []struct {
		name    string
		arg     domain.CreateAccountParams
		wantErr error
	}{
		{
			name:    "Empty number",
			arg:     domain.CreateAccountParams{AccountNumber: "   ", OwnerName: "Ana"},
			wantErr: domain.ErrInvalidAccountNumber,
		},
		{
			name:    "Empty owner",
			arg:     domain.CreateAccountParams{AccountNumber: "A2", OwnerName: " "},
			wantErr: domain.ErrInvalidOwnerName,
		},
		{
			name:    "Negative balance",
			arg:     domain.CreateAccountParams{AccountNumber: "A2", OwnerName: "Ana", InitialBalance: amount("-1")},
			wantErr: domain.ErrInvalidAmount,
		},
		{
			name:    "Too many fractional digits",
			arg:     domain.CreateAccountParams{AccountNumber: "A2", OwnerName: "Ana", InitialBalance: amount("1.00001")},
			wantErr: domain.ErrInvalidAmount,
		},
		{
			name:    "Number longer than the column",
			arg:     domain.CreateAccountParams{AccountNumber: strings.Repeat("9", 40), OwnerName: "Ana"},
			wantErr: domain.ErrInvalidAccountNumber,
		},
		{
			name:    "Owner longer than the column",
			arg:     domain.CreateAccountParams{AccountNumber: "A2", OwnerName: strings.Repeat("a", 129)},
			wantErr: domain.ErrInvalidOwnerName,
		},
		{
			name:    "Balance with too many integer digits",
			arg:     domain.CreateAccountParams{AccountNumber: "A2", OwnerName: "Ana", InitialBalance: amount("1e20")},
			wantErr: domain.ErrInvalidAmount,
		},
		{
			name:    "Number of a deactivated account",
			arg:     domain.CreateAccountParams{AccountNumber: "A1", OwnerName: "Ana"},
			wantErr: domain.ErrDuplicateAccount,
		},
	}

	for i := range testCases {
		tc := testCases[i]

		t.Run(tc.name, func(t *testing.T) {
			_, err := s.CreateAccount(context.Background(), tc.arg)
			require.ErrorIs(t, err, tc.wantErr)
		})
	}

	entries, err := s.ListTransactions(context.Background(), domain.ListEntriesParams{})
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestCreateAccountAtColumnWidths(t *testing.T) {
	s := newTestService(memstore.New())

	number := strings.Repeat("9", domain.MaxAccountNumberLen)
	account, err := s.CreateAccount(context.Background(), domain.CreateAccountParams{
		AccountNumber:  number,
		OwnerName:      strings.Repeat("a", domain.MaxOwnerNameLen),
		InitialBalance: amount("999999999999999.9999"),
	})
	require.NoError(t, err)
	require.Equal(t, number, account.AccountNumber)
}

func TestCreateAccountZeroBalanceHasNoEntry(t *testing.T) {
	s := newTestService(memstore.New())
	openAccount(t, s, "A1", "0")
	require.Empty(t, entriesOf(t, s, "A1"))
}

func TestDuplicateAccount(t *testing.T) {
	s := newTestService(memstore.New())
	openAccount(t, s, "A1", "10")

	_, err := s.CreateAccount(context.Background(), domain.CreateAccountParams{
		AccountNumber: "A1",
		OwnerName:     "Bob",
	})
	require.ErrorIs(t, err, domain.ErrDuplicateAccount)

	account, err := s.GetAccount(context.Background(), "A1")
	require.NoError(t, err)
	requireDecimal(t, "10", account.Balance)
	require.Len(t, entriesOf(t, s, "A1"), 1)
}

func TestWithdrawInsufficientFunds(t *testing.T) {
	ctx := context.Background()
	s := newTestService(memstore.New())
	openAccount(t, s, "A1", "100.00")

	res, err := s.Withdraw(ctx, "A1", amount("150.00"))
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)
	require.Equal(t, domain.StatusFailed, res.Entry.Status)

	balance, err := s.GetBalance(ctx, "A1")
	require.NoError(t, err)
	requireDecimal(t, "100.00", balance)

	entries := entriesOf(t, s, "A1")
	require.Len(t, entries, 2)

	failed := entries[0]
	require.Equal(t, domain.EntryWithdraw, failed.Type)
	require.Equal(t, domain.StatusFailed, failed.Status)
	require.Equal(t, domain.FailureInsufficientFunds, failed.FailureReason)
	require.Equal(t, domain.Ref("A1"), failed.SourceAccount)
	require.False(t, failed.DestAccount.Valid)
	requireDecimal(t, "150.00", failed.Amount)
	requireNullDecimal(t, "100.00", failed.BalanceBeforeSource)
	requireNullDecimal(t, "100.00", failed.BalanceAfterSource)

	if diff := cmp.Diff(res.Entry, failed, decimalComparer); diff != "" {
		t.Errorf("returned entry differs from the recorded one: %s", diff)
	}
}

func TestWithdraw(t *testing.T) {
	ctx := context.Background()
	s := newTestService(memstore.New())
	openAccount(t, s, "A1", "100.00")

	res, err := s.Withdraw(ctx, "A1", amount("100.00"))
	require.NoError(t, err)
	requireDecimal(t, "100", res.OldBalance)
	requireDecimal(t, "0", res.NewBalance)
	require.Equal(t, domain.StatusSuccess, res.Entry.Status)
	require.Empty(t, res.Entry.FailureReason)
	requireNullDecimal(t, "0", res.Entry.BalanceAfterSource)
}

func TestTransfer(t *testing.T) {
	ctx := context.Background()
	s := newTestService(memstore.New())
	openAccount(t, s, "A1", "100.00")
	openAccount(t, s, "A2", "50.00")

	res, err := s.Transfer(ctx, "A1", "A2", amount("30.00"))
	require.NoError(t, err)
	requireDecimal(t, "70.00", res.SourceBalance)
	requireDecimal(t, "80.00", res.DestBalance)

	for number, want := range map[string]string{"A1": "70.00", "A2": "80.00"} {
		balance, err := s.GetBalance(ctx, number)
		require.NoError(t, err)
		requireDecimal(t, want, balance)
	}

	entry := entriesOf(t, s, "A2")[0]
	require.Equal(t, domain.EntryTransfer, entry.Type)
	require.Equal(t, domain.StatusSuccess, entry.Status)
	require.Equal(t, domain.Ref("A1"), entry.SourceAccount)
	require.Equal(t, domain.Ref("A2"), entry.DestAccount)
	requireNullDecimal(t, "100", entry.BalanceBeforeSource)
	requireNullDecimal(t, "70", entry.BalanceAfterSource)
	requireNullDecimal(t, "50", entry.BalanceBeforeDest)
	requireNullDecimal(t, "80", entry.BalanceAfterDest)

	require.Equal(t, entry.ID, entriesOf(t, s, "A1")[0].ID)
}

func TestTransferInsufficientFunds(t *testing.T) {
	ctx := context.Background()
	s := newTestService(memstore.New())
	openAccount(t, s, "A1", "10")
	openAccount(t, s, "A2", "5")

	res, err := s.Transfer(ctx, "A2", "A1", amount("6"))
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)
	require.Equal(t, domain.StatusFailed, res.Entry.Status)
	requireDecimal(t, "5", res.SourceBalance)
	requireDecimal(t, "10", res.DestBalance)

	entry := entriesOf(t, s, "A2")[0]
	require.Equal(t, domain.StatusFailed, entry.Status)
	requireNullDecimal(t, "5", entry.BalanceBeforeSource)
	requireNullDecimal(t, "5", entry.BalanceAfterSource)
	requireNullDecimal(t, "10", entry.BalanceBeforeDest)
	requireNullDecimal(t, "10", entry.BalanceAfterDest)
}

func TestTransferRejections(t *testing.T) {
	s := newTestService(memstore.New())
	openAccount(t, s, "A1", "100")

	testCases := []struct {
		name         string
		source, dest string
		amount       string
		wantErr      error
	}{
		{name: "Nonexistent destination", source: "A1", dest: "ZZ", amount: "10", wantErr: domain.ErrAccountNotFound},
		{name: "Nonexistent source", source: "00", dest: "A1", amount: "10", wantErr: domain.ErrAccountNotFound},
		{name: "Same account", source: "A1", dest: " A1", amount: "10", wantErr: domain.ErrSameAccount},
		{name: "Zero amount", source: "A1", dest: "ZZ", amount: "0", wantErr: domain.ErrInvalidAmount},
		{name: "Invalid amount checked first", source: "A1", dest: "A1", amount: "-5", wantErr: domain.ErrInvalidAmount},
		{name: "Amount with too many integer digits", source: "A1", dest: "ZZ", amount: "1e20", wantErr: domain.ErrInvalidAmount},
		{name: "Overlong destination", source: "A1", dest: strings.Repeat("Z", 33), amount: "10", wantErr: domain.ErrInvalidAccountNumber},
	}

	for i := range testCases {
		tc := testCases[i]

		t.Run(tc.name, func(t *testing.T) {
			res, err := s.Transfer(context.Background(), tc.source, tc.dest, amount(tc.amount))
			require.ErrorIs(t, err, tc.wantErr)
			require.Empty(t, res)
		})
	}

	balance, err := s.GetBalance(context.Background(), "A1")
	require.NoError(t, err)
	requireDecimal(t, "100", balance)
	require.Len(t, entriesOf(t, s, "A1"), 1)
}

func TestBalanceOverflowRejected(t *testing.T) {
	ctx := context.Background()
	s := newTestService(memstore.New())
	openAccount(t, s, "A1", "999999999999999")
	openAccount(t, s, "A2", "999999999999999")

	res, err := s.Deposit(ctx, "A1", amount("1e20"))
	require.ErrorIs(t, err, domain.ErrInvalidAmount)
	require.Empty(t, res)

	res, err = s.Deposit(ctx, "A1", amount("1"))
	require.ErrorIs(t, err, domain.ErrInvalidAmount)
	require.Empty(t, res)

	tr, err := s.Transfer(ctx, "A2", "A1", amount("1"))
	require.ErrorIs(t, err, domain.ErrInvalidAmount)
	require.Empty(t, tr)

	for _, number := range []string{"A1", "A2"} {
		balance, err := s.GetBalance(ctx, number)
		require.NoError(t, err)
		requireDecimal(t, "999999999999999", balance)
		require.Len(t, entriesOf(t, s, number), 1)
	}

	res, err = s.Deposit(ctx, "A1", amount("0.9999"))
	require.NoError(t, err)
	requireDecimal(t, "999999999999999.9999", res.NewBalance)
}

func TestDeactivateAccount(t *testing.T) {
	ctx := context.Background()
	s := newTestService(memstore.New())
	openAccount(t, s, "A1", "100")
	openAccount(t, s, "A2", "80.00")

	require.ErrorIs(t, s.DeactivateAccount(ctx, "A2"), domain.ErrNonZeroBalance)

	ok, err := s.AccountExists(ctx, "A2")
	require.NoError(t, err)
	require.True(t, ok)

	_, err = s.Transfer(ctx, "A2", "A1", amount("80"))
	require.NoError(t, err)
	require.NoError(t, s.DeactivateAccount(ctx, "A2"))

	ok, err = s.AccountExists(ctx, "A2")
	require.NoError(t, err)
	require.False(t, ok)

	require.ErrorIs(t, s.DeactivateAccount(ctx, "A2"), domain.ErrAccountNotFound)
	require.ErrorIs(t, s.DeactivateAccount(ctx, "nope"), domain.ErrAccountNotFound)

	_, err = s.GetBalance(ctx, "A2")
	require.ErrorIs(t, err, domain.ErrAccountNotFound)

	_, err = s.Deposit(ctx, "A2", amount("1"))
	require.ErrorIs(t, err, domain.ErrAccountNotFound)

	accounts, err := s.ListAccounts(ctx)
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	require.Equal(t, "A1", accounts[0].AccountNumber)

	// History of a deactivated account stays readable.
	require.Len(t, entriesOf(t, s, "A2"), 2)
}

func TestListAccountsOrdered(t *testing.T) {
	s := newTestService(memstore.New())
	for _, number := range []string{"C3", "A1", "B2"} {
		openAccount(t, s, number, "1")
	}

	accounts, err := s.ListAccounts(context.Background())
	require.NoError(t, err)

	numbers := make([]string, 0, len(accounts))
	for _, a := range accounts {
		numbers = append(numbers, a.AccountNumber)
	}

	require.Equal(t, []string{"A1", "B2", "C3"}, numbers)
}

func TestListTransactions(t *testing.T) {
	ctx := context.Background()
	s := newTestService(memstore.New())
	openAccount(t, s, "A1", "100")
	openAccount(t, s, "A2", "0")
	openAccount(t, s, "A3", "0")

	_, err := s.Deposit(ctx, "A1", amount("1"))
	require.NoError(t, err)
	_, err = s.Transfer(ctx, "A1", "A2", amount("2"))
	require.NoError(t, err)
	_, err = s.Withdraw(ctx, "A2", amount("5"))
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)
	_, err = s.Deposit(ctx, "A3", amount("3"))
	require.NoError(t, err)

	all, err := s.ListTransactions(ctx, domain.ListEntriesParams{})
	require.NoError(t, err)
	require.Len(t, all, 5)
	require.True(t, all[0].DestAccount.Is("A3"))

	for i := 1; i < len(all); i++ {
		require.Greater(t, all[i-1].ID, all[i].ID)
	}

	a2 := entriesOf(t, s, "A2")
	require.Len(t, a2, 2)
	require.Equal(t, domain.EntryWithdraw, a2[0].Type)
	require.Equal(t, domain.EntryTransfer, a2[1].Type)

	limited, err := s.ListTransactions(ctx, domain.ListEntriesParams{Limit: 2})
	require.NoError(t, err)

	if diff := cmp.Diff(all[:2], limited, decimalComparer, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("limited list mismatch: %s", diff)
	}

	_, err = s.ListTransactions(ctx, domain.ListEntriesParams{Account: domain.Ref("  ")})
	require.ErrorIs(t, err, domain.ErrInvalidAccountNumber)
}

func TestGetBalanceIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestService(memstore.New())
	openAccount(t, s, "A1", "42.4242")

	first, err := s.GetBalance(ctx, "A1")
	require.NoError(t, err)
	second, err := s.GetBalance(ctx, "A1")
	require.NoError(t, err)
	require.True(t, first.Equal(second))
}

type balances map[string]decimal.Decimal

func (b balances) sum() decimal.Decimal {
	total := decimal.Zero
	for _, v := range b {
		total = total.Add(v)
	}

	return total
}

func snapshot(t *testing.T, s *Service) balances {
	t.Helper()

	accounts, err := s.ListAccounts(context.Background())
	require.NoError(t, err)

	b := make(balances, len(accounts))
	for _, a := range accounts {
		b[a.AccountNumber] = a.Balance
	}

	return b
}

func TestRandomOperationProperties(t *testing.T) {
	ctx := context.Background()
	s := New(memstore.New(), Config{DefaultListLimit: 50, MaxListLimit: 10000})
	r := rand.New(rand.NewSource(20240601))

	numbers := []string{"A1", "A2", "A3", "A4", "A5"}
	for _, number := range numbers {
		openAccount(t, s, number, "100")
	}

	countEntries := func() int {
		entries, err := s.ListTransactions(ctx, domain.ListEntriesParams{Limit: 10000})
		require.NoError(t, err)
		return len(entries)
	}

	recorded := countEntries()
	require.Equal(t, len(numbers), recorded)

	randomAmount := func() decimal.Decimal {
		return decimal.New(r.Int63n(20000)+1, -2)
	}

	for i := 0; i < 500; i++ {
		before := snapshot(t, s)
		a := numbers[r.Intn(len(numbers))]
		b := numbers[r.Intn(len(numbers))]

		var err error

		switch r.Intn(3) {
		case 0:
			_, err = s.Deposit(ctx, a, randomAmount())
		case 1:
			_, err = s.Withdraw(ctx, a, randomAmount())
		default:
			_, err = s.Transfer(ctx, a, b, randomAmount())
			if err == nil || errors.Is(err, domain.ErrInsufficientFunds) {
				require.True(t, before.sum().Equal(snapshot(t, s).sum()), "transfer changed the total")
			}
		}

		want := recorded

		switch {
		case err == nil, errors.Is(err, domain.ErrInsufficientFunds):
			want++
		case errors.Is(err, domain.ErrSameAccount):
			require.Equal(t, a, b)
			require.Equal(t, before, snapshot(t, s))
		default:
			t.Fatalf("unexpected error: %v", err)
		}

		recorded = countEntries()
		require.Equal(t, want, recorded, "operation %d recorded the wrong number of entries", i)

		for number, balance := range snapshot(t, s) {
			require.False(t, balance.IsNegative(), "negative balance on %s", number)
		}
	}
}

func TestConcurrentOpposingTransfers(t *testing.T) {
	s := newTestService(memstore.New())
	openAccount(t, s, "A1", "1000")
	openAccount(t, s, "A2", "1000")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	const n = 50

	errs := make(chan error, 2*n)

	var wg sync.WaitGroup

	for i := 0; i < n; i++ {
		wg.Add(2)

		go func() {
			defer wg.Done()
			_, err := s.Transfer(ctx, "A1", "A2", amount("10"))
			errs <- err
		}()

		go func() {
			defer wg.Done()
			_, err := s.Transfer(ctx, "A2", "A1", amount("10"))
			errs <- err
		}()
	}

	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	b := snapshot(t, s)
	requireDecimal(t, "1000", b["A1"])
	requireDecimal(t, "1000", b["A2"])

	entries, err := s.ListTransactions(context.Background(), domain.ListEntriesParams{Limit: 500})
	require.NoError(t, err)
	require.Len(t, entries, 2*n+2)
}

func TestConcurrentWithdrawalsNeverOverdraw(t *testing.T) {
	s := newTestService(memstore.New())
	openAccount(t, s, "A1", "100")

	const n = 30

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)

	for i := 0; i < n; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			_, err := s.Withdraw(context.Background(), "A1", amount("10"))

			mu.Lock()
			defer mu.Unlock()

			if err == nil {
				succeeded++
			}
		}()
	}

	wg.Wait()

	require.Equal(t, 10, succeeded)

	balance, err := s.GetBalance(context.Background(), "A1")
	require.NoError(t, err)
	requireDecimal(t, "0", balance)
	require.Len(t, entriesOf(t, s, "A1"), n+1)
}
