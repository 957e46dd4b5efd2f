package solana

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// DisplayPlaces is the number of decimals balances are shown with.
const DisplayPlaces = 4

var (
	// ErrAmountNotNumeric is returned by ParseSOL for input that is not a decimal number.
	ErrAmountNotNumeric = errors.New("amount must be a number")

	// ErrAmountNegative is returned by ParseSOL for amounts below zero.
	ErrAmountNegative = errors.New("amount must not be negative")

	// ErrAmountTooLarge is returned by ParseSOL when the amount overflows a u64 of lamports.
	ErrAmountTooLarge = errors.New("amount is too large")

	// ErrAmountTooPrecise is returned by ParseSOL for amounts written with
	// more decimal places than it accepts.
	ErrAmountTooPrecise = errors.New("amount has too many decimal places")
)

// Exponent bounds accepted by ParseSOL. Rescaling costs work proportional to
// the exponent, so they are checked before any arithmetic. Anything above
// maxAmountExponent exceeds a u64 of lamports.
const (
	minAmountExponent = -64
	maxAmountExponent = 20
)

var (
	lamportsPerSOLDecimal = decimal.NewFromBigInt(new(big.Int).SetUint64(LamportsPerSOL), 0)
	maxLamports           = decimal.NewFromBigInt(new(big.Int).SetUint64(math.MaxUint64), 0)
)

// LamportsToSOL converts base units to SOL exactly.
func LamportsToSOL(lamports uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(lamports), 0).Div(lamportsPerSOLDecimal)
}

// FormatLamports renders lamports as SOL with DisplayPlaces decimals
// (1_500_000_000 -> "1.5000").
func FormatLamports(lamports uint64) string {
	return LamportsToSOL(lamports).StringFixed(DisplayPlaces)
}

// ParseSOL converts a user-entered SOL amount to lamports using fixed-point
// arithmetic. Digits below one lamport are truncated.
func ParseSOL(amount string) (uint64, error) {
	amount = strings.TrimSpace(amount)
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrAmountNotNumeric, amount)
	}
	if d.IsNegative() {
		return 0, ErrAmountNegative
	}
	if d.IsZero() {
		return 0, nil
	}
	switch exp := d.Exponent(); {
	case exp < minAmountExponent:
		return 0, ErrAmountTooPrecise
	case exp > maxAmountExponent:
		return 0, ErrAmountTooLarge
	}

	lamports := d.Mul(lamportsPerSOLDecimal).Truncate(0)
	if lamports.GreaterThan(maxLamports) {
		return 0, ErrAmountTooLarge
	}
	return lamports.BigInt().Uint64(), nil
}
