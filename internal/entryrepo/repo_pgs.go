// Package entryrepo manages the transaction log: the append-only entries table.
package entryrepo

import (
	"context"
	"errors"

	"github.com/go-petr/pet-ledger/internal/domain"
	"github.com/go-petr/pet-ledger/pkg/dbpkg"
	"github.com/go-petr/pet-ledger/pkg/errorspkg"
	"github.com/lib/pq"
	"github.com/rs/zerolog"
)

// RepoPGS facilitates entry repository layer logic.
type RepoPGS struct {
	db dbpkg.SQLInterface
}

// NewRepoPGS returns entry RepoPGS.
func NewRepoPGS(db dbpkg.SQLInterface) *RepoPGS {
	return &RepoPGS{db: db}
}

const appendQuery = `
INSERT INTO
    entries (
        entry_type, source_account, dest_account, amount,
        balance_before_source, balance_after_source,
        balance_before_dest, balance_after_dest,
        description, status, failure_reason
    )
VALUES
    ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NULLIF($11, ''))
RETURNING id, created_at
`

// Append writes the entry to the log and returns it with its id and timestamp.
func (r *RepoPGS) Append(ctx context.Context, e domain.Entry) (domain.Entry, error) {
	l := zerolog.Ctx(ctx)

	row := r.db.QueryRowContext(ctx, appendQuery,
		e.Type,
		e.SourceAccount,
		e.DestAccount,
		e.Amount,
		e.BalanceBeforeSource,
		e.BalanceAfterSource,
		e.BalanceBeforeDest,
		e.BalanceAfterDest,
		e.Description,
		e.Status,
		e.FailureReason,
	)

	err := row.Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		l.Error().Err(err).Msgf("Append(ctx context.Context, %+v)", e)

		var pqErr *pq.Error
		if errors.As(err, &pqErr) {
			switch pqErr.Constraint {
			case "entries_source_account_fkey", "entries_dest_account_fkey":
				return domain.Entry{}, domain.ErrAccountNotFound
			case "entries_amount_check":
				return domain.Entry{}, domain.ErrInvalidAmount
			}
		}

		return domain.Entry{}, errorspkg.ErrStoreUnavailable
	}

	return e, nil
}

const listQuery = `
SELECT
    id, entry_type, source_account, dest_account, amount,
    balance_before_source, balance_after_source,
    balance_before_dest, balance_after_dest,
    description, status, COALESCE(failure_reason, ''), created_at
FROM entries
WHERE $1::varchar IS NULL OR source_account = $1 OR dest_account = $1
ORDER BY created_at DESC, id DESC
LIMIT $2
`

// List returns up to arg.Limit entries newest first.
//
// A valid arg.Account restricts the result to entries where the account
// appears as source or destination.
func (r *RepoPGS) List(ctx context.Context, arg domain.ListEntriesParams) ([]domain.Entry, error) {
	l := zerolog.Ctx(ctx)

	rows, err := r.db.QueryContext(ctx, listQuery, arg.Account, arg.Limit)
	if err != nil {
		l.Error().Err(err).Send()
		return nil, errorspkg.ErrStoreUnavailable
	}
	defer rows.Close()

	items := []domain.Entry{}

	for rows.Next() {
		var e domain.Entry
		if err := rows.Scan(
			&e.ID,
			&e.Type,
			&e.SourceAccount,
			&e.DestAccount,
			&e.Amount,
			&e.BalanceBeforeSource,
			&e.BalanceAfterSource,
			&e.BalanceBeforeDest,
			&e.BalanceAfterDest,
			&e.Description,
			&e.Status,
			&e.FailureReason,
			&e.CreatedAt,
		); err != nil {
			l.Error().Err(err).Send()
			return nil, errorspkg.ErrStoreUnavailable
		}

		items = append(items, e)
	}

	if err := rows.Close(); err != nil {
		l.Error().Err(err).Send()
		return nil, errorspkg.ErrStoreUnavailable
	}

	if err := rows.Err(); err != nil {
		l.Error().Err(err).Send()
		return nil, errorspkg.ErrStoreUnavailable
	}

	return items, nil
}
