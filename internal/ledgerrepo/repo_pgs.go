// Package ledgerrepo implements the ledger store on Postgres.
//
// A unit of work is a single database transaction. The account and entry
// repositories are rebuilt on top of the transaction so every read, write and
// log append shares it.
package ledgerrepo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-petr/pet-ledger/internal/accountrepo"
	"github.com/go-petr/pet-ledger/internal/domain"
	"github.com/go-petr/pet-ledger/internal/entryrepo"
	"github.com/go-petr/pet-ledger/internal/ledgerstore"
	"github.com/go-petr/pet-ledger/pkg/errorspkg"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// RepoPGS facilitates ledger repository layer logic.
type RepoPGS struct {
	conn     *sql.DB
	accounts *accountrepo.RepoPGS
	entries  *entryrepo.RepoPGS
}

// NewRepoPGS returns ledger RepoPGS with connection to start transactions.
func NewRepoPGS(db *sql.DB) *RepoPGS {
	return &RepoPGS{
		conn:     db,
		accounts: accountrepo.NewRepoPGS(db),
		entries:  entryrepo.NewRepoPGS(db),
	}
}

// Begin starts a read committed transaction. Rows read for update stay
// locked until Commit or Rollback.
func (r *RepoPGS) Begin(ctx context.Context) (ledgerstore.UnitOfWork, error) {
	tx, err := r.conn.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("begin transaction")
		return nil, errorspkg.ErrStoreUnavailable
	}

	return &unitOfWork{
		ctx:      ctx,
		tx:       tx,
		accounts: accountrepo.NewRepoPGS(tx),
		entries:  entryrepo.NewRepoPGS(tx),
	}, nil
}

// GetAccount returns the committed state of the active account.
func (r *RepoPGS) GetAccount(ctx context.Context, number string) (domain.Account, error) {
	return r.accounts.Get(ctx, number)
}

// ListAccounts returns active accounts ordered by account number.
func (r *RepoPGS) ListAccounts(ctx context.Context) ([]domain.Account, error) {
	return r.accounts.List(ctx)
}

// ListEntries returns entries newest first.
func (r *RepoPGS) ListEntries(ctx context.Context, arg domain.ListEntriesParams) ([]domain.Entry, error) {
	return r.entries.List(ctx, arg)
}

type unitOfWork struct {
	ctx      context.Context
	tx       *sql.Tx
	accounts *accountrepo.RepoPGS
	entries  *entryrepo.RepoPGS
}

func (u *unitOfWork) LookupAccount(ctx context.Context, number string) (domain.AccountStatus, error) {
	return u.accounts.Lookup(ctx, number)
}

func (u *unitOfWork) LockBalance(ctx context.Context, number string) (decimal.Decimal, error) {
	return u.accounts.LockBalance(ctx, number)
}

func (u *unitOfWork) WriteBalance(ctx context.Context, number string, balance decimal.Decimal) error {
	return u.accounts.WriteBalance(ctx, number, balance)
}

func (u *unitOfWork) InsertAccount(ctx context.Context, arg domain.CreateAccountParams) (domain.Account, error) {
	return u.accounts.Create(ctx, arg)
}

func (u *unitOfWork) SetActive(ctx context.Context, number string, active bool) error {
	return u.accounts.SetActive(ctx, number, active)
}

func (u *unitOfWork) AppendEntry(ctx context.Context, entry domain.Entry) (domain.Entry, error) {
	return u.entries.Append(ctx, entry)
}

func (u *unitOfWork) Commit() error {
	if err := u.tx.Commit(); err != nil {
		zerolog.Ctx(u.ctx).Error().Err(err).Msg("commit transaction")
		return errorspkg.ErrStoreUnavailable
	}

	return nil
}

func (u *unitOfWork) Rollback() error {
	err := u.tx.Rollback()
	if err != nil && !errors.Is(err, sql.ErrTxDone) {
		zerolog.Ctx(u.ctx).Error().Err(err).Msg("rollback transaction")
		return errorspkg.ErrStoreUnavailable
	}

	return nil
}

var _ ledgerstore.Store = (*RepoPGS)(nil)
