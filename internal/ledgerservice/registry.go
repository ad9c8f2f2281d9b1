package ledgerservice

import (
	"context"
	"errors"

	"github.com/go-petr/pet-ledger/internal/domain"
	"github.com/go-petr/pet-ledger/internal/ledgerstore"
)

// Registry answers whether an account exists and is active.
type Registry struct {
	store ledgerstore.Store
}

// NewRegistry returns a Registry backed by the given store.
func NewRegistry(store ledgerstore.Store) *Registry {
	return &Registry{store: store}
}

// Exists reports whether an active account holds the number in committed state.
//
// The answer may be stale by the time the caller acts on it. Mutating
// operations re-check inside their own unit of work.
func (r *Registry) Exists(ctx context.Context, number string) (bool, error) {
	_, err := r.store.GetAccount(ctx, number)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			return false, nil
		}

		return false, storeError(err)
	}

	return true, nil
}

// existsTx re-checks existence inside uow and locks the account row.
func existsTx(ctx context.Context, uow ledgerstore.UnitOfWork, number string) (bool, error) {
	status, err := uow.LookupAccount(ctx, number)
	if err != nil {
		return false, err
	}

	return status == domain.AccountActive, nil
}
