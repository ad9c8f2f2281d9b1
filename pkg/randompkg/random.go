// Package randompkg provides functionality for generating random ledger items in tests.
package randompkg

import (
	"crypto/rand"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	alphabet = "abcdefghijklmnopqrstuvwxyz"
	digits   = "0123456789"
)

// Intn is a shortcut for generating a random integer between 0 and max using crypto/rand.
func Intn(max int) int64 {
	nBig, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		panic(err)
	}

	return nBig.Int64()
}

// IntBetween generates a random integer between min and max inclusive.
func IntBetween(min, max int) int64 {
	return int64(min) + Intn(max-min+1)
}

func fromSet(set string, n int) string {
	var sb strings.Builder

	k := len(set)

	for i := 0; i < n; i++ {
		_ = sb.WriteByte(set[Intn(k)]) // The returned err is always nil.
	}

	return sb.String()
}

// String generates a random string of length n.
func String(n int) string {
	return fromSet(alphabet, n)
}

// Owner generates a random owner name.
func Owner() string {
	return String(6)
}

// AccountNumber generates a random ten digit account number.
func AccountNumber() string {
	return fromSet(digits, 10)
}

// MoneyAmountBetween generates a random amount of money between min and max with cents.
func MoneyAmountBetween(min, max int) decimal.Decimal {
	cents := IntBetween(min*100, max*100)
	return decimal.New(cents, -2)
}
