package ledgerdelivery

import (
	"fmt"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/go-petr/pet-ledger/pkg/moneypkg"
)

// RegisterValidators registers the money validators used by request bindings.
func RegisterValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return nil
	}

	if err := v.RegisterValidation("amount", moneypkg.ValidAmount); err != nil {
		return fmt.Errorf("register amount validator: %w", err)
	}

	if err := v.RegisterValidation("balance", moneypkg.ValidBalance); err != nil {
		return fmt.Errorf("register balance validator: %w", err)
	}

	return nil
}
