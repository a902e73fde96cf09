package models

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/blockbus/gateway/internal/errs"
)

// btcFractionalDigits is the number of fractional digits in a Bitcoin Core
// decimal amount (1 BTC = 10^8 satoshis).
const btcFractionalDigits = 8

// maxAmount is 2^128 - 1, the largest value an Amount may hold.
var maxAmount = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))

// Amount is a non-negative monetary amount in the smallest unit of a currency
// (satoshis, wei). It holds values up to 2^128-1 and only exposes checked
// arithmetic: overflow and underflow surface as errors, never wrap.
//
// The zero value is a valid zero amount.
type Amount struct {
	n *big.Int
}

// NewAmount creates an Amount from a uint64.
func NewAmount(v uint64) Amount {
	return Amount{n: new(big.Int).SetUint64(v)}
}

// AmountFromBig creates an Amount from a big.Int, rejecting negatives and
// values above 2^128-1. The input is copied.
func AmountFromBig(b *big.Int) (Amount, error) {
	if b.Sign() < 0 {
		return Amount{}, errs.New(errs.Internal, fmt.Sprintf("negative amount %s", b)).WithContext(errs.CtxOverflow)
	}
	if b.Cmp(maxAmount) > 0 {
		return Amount{}, errs.New(errs.Internal, fmt.Sprintf("amount %s exceeds 128 bits", b)).WithContext(errs.CtxOverflow)
	}
	return Amount{n: new(big.Int).Set(b)}, nil
}

// AmountFromString parses a base-10 unsigned integer string.
func AmountFromString(s string) (Amount, error) {
	b, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return Amount{}, errs.New(errs.MalformedInput, fmt.Sprintf("invalid amount %q", s))
	}
	return AmountFromBig(b)
}

// AmountFromBitcoinDecimal parses a Bitcoin Core decimal amount like
// "0.12345678" into satoshis. The fractional part is right-padded with zeros
// to exactly 8 digits; more than 8 fractional digits is an error.
func AmountFromBitcoinDecimal(s string) (Amount, error) {
	intPart := s
	fracPart := ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart, fracPart = s[:i], s[i+1:]
	}
	if intPart == "" || len(fracPart) > btcFractionalDigits {
		return Amount{}, errs.New(errs.MalformedInput, fmt.Sprintf("invalid bitcoin decimal %q", s))
	}
	for _, r := range intPart + fracPart {
		if r < '0' || r > '9' {
			return Amount{}, errs.New(errs.MalformedInput, fmt.Sprintf("invalid bitcoin decimal %q", s))
		}
	}
	padded := fracPart + strings.Repeat("0", btcFractionalDigits-len(fracPart))
	return AmountFromString(intPart + padded)
}

// big returns the inner value, treating the zero Amount as 0.
func (a Amount) big() *big.Int {
	if a.n == nil {
		return new(big.Int)
	}
	return a.n
}

// CheckedAdd returns a+b, or an overflow error if the sum exceeds 2^128-1.
func (a Amount) CheckedAdd(b Amount) (Amount, error) {
	sum := new(big.Int).Add(a.big(), b.big())
	if sum.Cmp(maxAmount) > 0 {
		return Amount{}, errs.New(errs.Internal, fmt.Sprintf("amount overflow: %s + %s", a, b)).WithContext(errs.CtxOverflow)
	}
	return Amount{n: sum}, nil
}

// CheckedSub returns a-b, or an underflow error if b > a.
func (a Amount) CheckedSub(b Amount) (Amount, error) {
	if a.big().Cmp(b.big()) < 0 {
		return Amount{}, errs.New(errs.Internal, fmt.Sprintf("amount underflow: %s - %s", a, b)).WithContext(errs.CtxOverflow)
	}
	return Amount{n: new(big.Int).Sub(a.big(), b.big())}, nil
}

// CheckedMul returns a*b, or an overflow error if the product exceeds 2^128-1.
func (a Amount) CheckedMul(b Amount) (Amount, error) {
	prod := new(big.Int).Mul(a.big(), b.big())
	if prod.Cmp(maxAmount) > 0 {
		return Amount{}, errs.New(errs.Internal, fmt.Sprintf("amount overflow: %s * %s", a, b)).WithContext(errs.CtxOverflow)
	}
	return Amount{n: prod}, nil
}

// Cmp compares a and b, returning -1, 0 or 1.
func (a Amount) Cmp(b Amount) int {
	return a.big().Cmp(b.big())
}

// IsZero reports whether the amount is zero.
func (a Amount) IsZero() bool {
	return a.big().Sign() == 0
}

// Uint64 returns the amount as a uint64 if it fits.
func (a Amount) Uint64() (uint64, bool) {
	if !a.big().IsUint64() {
		return 0, false
	}
	return a.big().Uint64(), true
}

// BigInt returns a copy of the amount as a big.Int.
func (a Amount) BigInt() *big.Int {
	return new(big.Int).Set(a.big())
}

// String returns the base-10 representation.
func (a Amount) String() string {
	return a.big().String()
}

// MarshalJSON encodes the amount as a bare JSON number.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.big().String()), nil
}

// UnmarshalJSON decodes a bare JSON number. Negatives, fractions, exponent
// notation and values above 2^128-1 are rejected.
func (a *Amount) UnmarshalJSON(data []byte) error {
	s := string(data)
	for _, r := range s {
		if r < '0' || r > '9' {
			return errs.New(errs.MalformedInput, fmt.Sprintf("invalid amount %s", s))
		}
	}
	b, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return errs.New(errs.MalformedInput, fmt.Sprintf("invalid amount %s", s))
	}
	parsed, err := AmountFromBig(b)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
