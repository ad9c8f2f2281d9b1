// Package moneypkg provides parsing and validation of fixed-point money amounts.
package moneypkg

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

const (
	// Scale is the number of fractional digits the ledger stores.
	Scale = 4
	// MaxIntegerDigits is the number of integer digits a stored amount or
	// balance may have.
	MaxIntegerDigits = 15
)

var upperBound = decimal.New(1, MaxIntegerDigits)

// ErrMalformedAmount indicates a string that is not a decimal number.
var ErrMalformedAmount = errors.New("malformed amount")

// Parse converts s into a decimal amount.
func Parse(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, ErrMalformedAmount
	}

	return d, nil
}

// FitsScale reports whether d has no more than Scale fractional digits.
func FitsScale(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(Scale))
}

// FitsPrecision reports whether the integer part of d has no more than
// MaxIntegerDigits digits.
func FitsPrecision(d decimal.Decimal) bool {
	return d.Abs().LessThan(upperBound)
}

// IsPositive reports whether d is a usable operation amount.
func IsPositive(d decimal.Decimal) bool {
	return d.GreaterThan(decimal.Zero) && FitsScale(d) && FitsPrecision(d)
}

// IsNonNegative reports whether d is a usable opening balance.
func IsNonNegative(d decimal.Decimal) bool {
	return !d.IsNegative() && FitsScale(d) && FitsPrecision(d)
}

// ValidAmount validates that a string field holds a positive amount.
var ValidAmount validator.Func = func(fl validator.FieldLevel) bool {
	s, ok := fl.Field().Interface().(string)
	if !ok {
		return false
	}

	d, err := Parse(s)
	if err != nil {
		return false
	}

	return IsPositive(d)
}

// ValidBalance validates that a string field holds a non-negative amount.
// An empty string is a zero balance.
var ValidBalance validator.Func = func(fl validator.FieldLevel) bool {
	s, ok := fl.Field().Interface().(string)
	if !ok {
		return false
	}

	if strings.TrimSpace(s) == "" {
		return true
	}

	d, err := Parse(s)
	if err != nil {
		return false
	}

	return IsNonNegative(d)
}
