// Package tokengen issues vend tokens and converts paid amounts into units.
//
// Tokens are opaque digit strings drawn from crypto/rand. They stand in for
// issuer-signed STS tokens until a real token authority is integrated, so the
// only property callers may rely on is high entropy; uniqueness is enforced by
// the store and collisions are retried by the vending pipeline.
package tokengen

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math"
	"math/big"

	"github.com/shopspring/decimal"
)

const (
	digits        = "0123456789"
	MinLength     = 12
	DefaultLength = 20
)

// DefaultRate is the currency amount that buys one unit.
var DefaultRate = decimal.NewFromInt(10)

type Generator interface {
	Generate() (string, error)
}

type RandomGenerator struct {
	length int
	reader io.Reader
}

func NewGenerator(length int) *RandomGenerator {
	if length < MinLength {
		length = DefaultLength
	}
	return &RandomGenerator{length: length, reader: rand.Reader}
}

// WithReader swaps the entropy source, used by tests that need repeatable tokens.
func (g *RandomGenerator) WithReader(r io.Reader) *RandomGenerator {
	g.reader = r
	return g
}

func (g *RandomGenerator) Generate() (string, error) {
	max := big.NewInt(int64(len(digits)))
	out := make([]byte, g.length)
	for i := range out {
		idx, err := rand.Int(g.reader, max)
		if err != nil {
			return "", fmt.Errorf("read token entropy: %w", err)
		}
		out[i] = digits[idx.Int64()]
	}
	return string(out), nil
}

// Converter turns amounts into units at a fixed linear rate.
type Converter struct {
	rate decimal.Decimal
}

func NewConverter(ratePerUnit decimal.Decimal) (*Converter, error) {
	if !ratePerUnit.IsPositive() {
		return nil, fmt.Errorf("rate per unit must be positive, got %s", ratePerUnit)
	}
	return &Converter{rate: ratePerUnit}, nil
}

func (c *Converter) Rate() decimal.Decimal {
	return c.rate
}

// ComputeUnits returns amount / rate rounded half-to-even to 2 decimal places.
// Non-positive amounts are rejected.
func (c *Converter) ComputeUnits(amount decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, ErrNonPositiveAmount
	}
	return amount.Div(c.rate).RoundBank(2), nil
}

var (
	ErrNonPositiveAmount = errors.New("amount must be positive")
	ErrNonFiniteAmount   = errors.New("amount must be finite")
)

// AmountFromFloat converts a float amount to a decimal, rejecting NaN and infinities.
func AmountFromFloat(f float64) (decimal.Decimal, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Zero, ErrNonFiniteAmount
	}
	return decimal.NewFromFloat(f), nil
}

// ParseAmount parses a textual amount such as "100" or "99.50".
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return d, nil
}
