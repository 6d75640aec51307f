package models

import (
	"math/big"
	"reflect"
	"strconv"

	"github.com/pkg/errors"
	"github.com/segmentio/encoding/json"
	"github.com/shopspring/decimal"
)

// PriceDecimalPlaces is the number of fractional digits prices are stored
// and rendered with.
const PriceDecimalPlaces = 2

// Exponents outside this range can't belong to a storable price, and
// expanding them into digits costs memory in proportion to the exponent.
const (
	minPriceExponent = -(PriceDecimalPlaces + 20)
	maxPriceExponent = 10
)

var tenInt = big.NewInt(10)

// Price is a fixed-point amount. It decodes from either a JSON number or a
// decimal string, and always encodes as a string with two fractional digits
// so that 45.9 goes out as "45.90".
type Price struct {
	decimal.Decimal
}

func NewPrice(value string) (Price, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return Price{}, err
	}
	return Price{d}, nil
}

// MustPrice is NewPrice for literals.
func MustPrice(value string) Price {
	p, err := NewPrice(value)
	if err != nil {
		panic(err)
	}
	return p
}

// UnmarshalJSON reports unparsable input as a type error so that it surfaces
// as a field error rather than a malformed payload.
func (p *Price) UnmarshalJSON(data []byte) error {
	if err := p.Decimal.UnmarshalJSON(data); err != nil || !p.inRange() {
		*p = Price{}
		kind := "string"
		if len(data) > 0 && data[0] != '"' {
			kind = "value"
		}
		return &json.UnmarshalTypeError{Value: kind, Type: reflect.TypeOf(Price{})}
	}
	return nil
}

// UnmarshalText is used by form decoding and applies the same exponent range
// as UnmarshalJSON.
func (p *Price) UnmarshalText(text []byte) error {
	if err := p.Decimal.UnmarshalText(text); err != nil {
		return err
	}
	if !p.inRange() {
		*p = Price{}
		return errors.Errorf("price %q is out of range", text)
	}
	return nil
}

func (p Price) inRange() bool {
	exp := p.Exponent()
	return exp >= minPriceExponent && exp <= maxPriceExponent
}

func (p Price) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(p.StringFixed(PriceDecimalPlaces))), nil
}

// Digits returns the number of significant digits on each side of the
// decimal point, ignoring sign and trailing fractional zeros. It works from
// the coefficient and exponent and never expands the value into a string.
func (p Price) Digits() (whole int, fractional int) {
	if p.IsZero() {
		return 0, 0
	}
	coefficient := new(big.Int).Abs(p.Coefficient())
	exp := int(p.Exponent())

	// Trailing zeros in the coefficient behind the decimal point carry no
	// precision, e.g. 45.90 has one fractional digit.
	quotient, remainder := new(big.Int), new(big.Int)
	for exp < 0 {
		quotient.QuoRem(coefficient, tenInt, remainder)
		if remainder.Sign() != 0 {
			break
		}
		coefficient.Set(quotient)
		exp++
	}

	digits := decimal.NewFromBigInt(coefficient, 0).NumDigits()
	if exp >= 0 {
		return digits + exp, 0
	}
	fractional = -exp
	whole = digits - fractional
	if whole < 0 {
		whole = 0
	}
	return whole, fractional
}

// Compact renders the price as coefficient and exponent, e.g. "4590e-2". The
// length depends only on the coefficient.
func (p Price) Compact() string {
	return p.Coefficient().String() + "e" + strconv.Itoa(int(p.Exponent()))
}
