// Package memstore implements the ledger store in memory.
//
// Every account number has its own exclusive row lock. A unit of work keeps
// the locks it acquires until Commit or Rollback and stages its writes
// privately, so readers only ever observe committed state. A row lock exists
// only while some unit of work holds or waits for it.
package memstore

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/go-petr/pet-ledger/internal/domain"
	"github.com/go-petr/pet-ledger/internal/ledgerstore"
	"github.com/go-petr/pet-ledger/pkg/errorspkg"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// ErrTxDone indicates use of a unit of work after Commit or Rollback.
var ErrTxDone = errors.New("unit of work already finished")

// Store is an in-memory ledger store.
type Store struct {
	mu            sync.Mutex
	accounts      map[string]domain.Account
	entries       []domain.Entry
	locks         map[string]*rowLock
	nextAccountID int32
	nextEntryID   int64
	now           func() time.Time
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		accounts: make(map[string]domain.Account),
		locks:    make(map[string]*rowLock),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Begin starts a unit of work.
func (s *Store) Begin(ctx context.Context) (ledgerstore.UnitOfWork, error) {
	if err := ctx.Err(); err != nil {
		return nil, errorspkg.ErrStoreUnavailable
	}

	return &unitOfWork{
		s:        s,
		held:     make(map[string]*rowLock),
		accounts: make(map[string]domain.Account),
	}, nil
}

// GetAccount returns the committed state of the active account.
func (s *Store) GetAccount(ctx context.Context, number string) (domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[number]
	if !ok || !a.Active {
		return domain.Account{}, domain.ErrAccountNotFound
	}

	return a, nil
}

// ListAccounts returns active accounts ordered by account number.
func (s *Store) ListAccounts(ctx context.Context) ([]domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := []domain.Account{}

	for _, a := range s.accounts {
		if a.Active {
			items = append(items, a)
		}
	}

	sort.Slice(items, func(i, j int) bool {
		return items[i].AccountNumber < items[j].AccountNumber
	})

	return items, nil
}

// ListEntries returns entries newest first.
//
// Entries are kept in commit order, so newest first is the reverse of it.
func (s *Store) ListEntries(ctx context.Context, arg domain.ListEntriesParams) ([]domain.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := []domain.Entry{}

	for i := len(s.entries) - 1; i >= 0 && int32(len(items)) < arg.Limit; i-- {
		e := s.entries[i]
		if arg.Account.Valid && !e.Touches(arg.Account.Number) {
			continue
		}

		items = append(items, e)
	}

	return items, nil
}

// rowLock is an exclusive lock on one account number. refs counts the units
// of work holding or waiting for it and is guarded by Store.mu.
type rowLock struct {
	ch   chan struct{}
	refs int
}

// acquireRef returns the row lock for number, creating it if needed.
func (s *Store) acquireRef(number string) *rowLock {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.locks[number]
	if !ok {
		lock = &rowLock{ch: make(chan struct{}, 1)}
		s.locks[number] = lock
	}

	lock.refs++

	return lock
}

// releaseRef drops a reference taken by acquireRef and forgets the lock once
// nobody holds or waits for it.
func (s *Store) releaseRef(number string, lock *rowLock) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock.refs--
	if lock.refs == 0 {
		delete(s.locks, number)
	}
}

type unitOfWork struct {
	s        *Store
	held     map[string]*rowLock
	accounts map[string]domain.Account
	entries  []domain.Entry
	done     bool
}

// lock acquires the row lock for number unless this unit of work already holds it.
func (u *unitOfWork) lock(ctx context.Context, number string) error {
	if u.done {
		return ErrTxDone
	}

	if _, ok := u.held[number]; ok {
		return nil
	}

	lock := u.s.acquireRef(number)

	select {
	case lock.ch <- struct{}{}:
		u.held[number] = lock
		return nil
	case <-ctx.Done():
		u.s.releaseRef(number, lock)
		zerolog.Ctx(ctx).Error().Err(ctx.Err()).Str("account", number).Msg("wait for row lock")
		return errorspkg.ErrStoreUnavailable
	}
}

// view returns the account as this unit of work sees it.
func (u *unitOfWork) view(number string) (domain.Account, bool) {
	if a, ok := u.accounts[number]; ok {
		return a, true
	}

	u.s.mu.Lock()
	defer u.s.mu.Unlock()

	a, ok := u.s.accounts[number]

	return a, ok
}

func (u *unitOfWork) LookupAccount(ctx context.Context, number string) (domain.AccountStatus, error) {
	if err := u.lock(ctx, number); err != nil {
		return domain.AccountAbsent, err
	}

	a, ok := u.view(number)

	switch {
	case !ok:
		return domain.AccountAbsent, nil
	case !a.Active:
		return domain.AccountInactive, nil
	default:
		return domain.AccountActive, nil
	}
}

func (u *unitOfWork) LockBalance(ctx context.Context, number string) (decimal.Decimal, error) {
	if err := u.lock(ctx, number); err != nil {
		return decimal.Zero, err
	}

	a, ok := u.view(number)
	if !ok || !a.Active {
		return decimal.Zero, domain.ErrAccountNotFound
	}

	return a.Balance, nil
}

func (u *unitOfWork) WriteBalance(ctx context.Context, number string, balance decimal.Decimal) error {
	if err := u.lock(ctx, number); err != nil {
		return err
	}

	a, ok := u.view(number)
	if !ok || !a.Active {
		return domain.ErrAccountNotFound
	}

	if balance.IsNegative() {
		zerolog.Ctx(ctx).Error().Str("account", number).Str("balance", balance.String()).Msg("negative balance write")
		return errorspkg.ErrStoreUnavailable
	}

	a.Balance = balance
	u.accounts[number] = a

	return nil
}

func (u *unitOfWork) InsertAccount(ctx context.Context, arg domain.CreateAccountParams) (domain.Account, error) {
	if err := u.lock(ctx, arg.AccountNumber); err != nil {
		return domain.Account{}, err
	}

	if _, ok := u.view(arg.AccountNumber); ok {
		return domain.Account{}, domain.ErrDuplicateAccount
	}

	u.s.mu.Lock()
	u.s.nextAccountID++
	a := domain.Account{
		ID:            u.s.nextAccountID,
		AccountNumber: arg.AccountNumber,
		OwnerName:     arg.OwnerName,
		Balance:       arg.InitialBalance,
		CreatedAt:     u.s.now(),
		Active:        true,
	}
	u.s.mu.Unlock()

	u.accounts[a.AccountNumber] = a

	return a, nil
}

func (u *unitOfWork) SetActive(ctx context.Context, number string, active bool) error {
	if err := u.lock(ctx, number); err != nil {
		return err
	}

	a, ok := u.view(number)
	if !ok {
		return domain.ErrAccountNotFound
	}

	a.Active = active
	u.accounts[number] = a

	return nil
}

func (u *unitOfWork) AppendEntry(ctx context.Context, entry domain.Entry) (domain.Entry, error) {
	if u.done {
		return domain.Entry{}, ErrTxDone
	}

	if !entry.Amount.IsPositive() {
		return domain.Entry{}, domain.ErrInvalidAmount
	}

	u.s.mu.Lock()
	u.s.nextEntryID++
	entry.ID = u.s.nextEntryID
	entry.CreatedAt = u.s.now()
	u.s.mu.Unlock()

	u.entries = append(u.entries, entry)

	return entry, nil
}

func (u *unitOfWork) Commit() error {
	if u.done {
		return ErrTxDone
	}

	u.s.mu.Lock()
	for number, a := range u.accounts {
		u.s.accounts[number] = a
	}
	u.s.entries = append(u.s.entries, u.entries...)
	u.s.mu.Unlock()

	u.release()

	return nil
}

func (u *unitOfWork) Rollback() error {
	if u.done {
		return nil
	}

	u.release()

	return nil
}

func (u *unitOfWork) release() {
	u.done = true

	for number, lock := range u.held {
		<-lock.ch
		delete(u.held, number)
		u.s.releaseRef(number, lock)
	}
}

var _ ledgerstore.Store = (*Store)(nil)
