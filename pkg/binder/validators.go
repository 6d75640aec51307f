package binder

import (
	"reflect"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/shishobooks/bookstore/pkg/models"
	"github.com/shopspring/decimal"
)

// priceValue lets validator see a models.Price as its compact decimal string
// so the decimal validators below (and required/omitempty) apply to it.
func priceValue(field reflect.Value) interface{} {
	if p, ok := field.Interface().(models.Price); ok {
		return p.Compact()
	}
	return nil
}

func fieldPrice(fl validator.FieldLevel) (models.Price, bool) {
	if fl.Field().Kind() != reflect.String {
		return models.Price{}, false
	}
	p, err := models.NewPrice(fl.Field().String())
	if err != nil {
		return models.Price{}, false
	}
	return p, true
}

func intParam(fl validator.FieldLevel) int {
	n, err := strconv.Atoi(fl.Param())
	if err != nil {
		panic("binder: non-integer validator param " + fl.Param())
	}
	return n
}

// decimalGTEValidator ensures the decimal is greater than or equal to the
// param, e.g. `decimal_gte=0`.
func decimalGTEValidator(fl validator.FieldLevel) bool {
	p, ok := fieldPrice(fl)
	if !ok {
		return false
	}
	bound, err := decimal.NewFromString(fl.Param())
	if err != nil {
		panic("binder: non-decimal validator param " + fl.Param())
	}
	return p.GreaterThanOrEqual(bound)
}

// maxDigitsValidator caps the total number of significant digits.
func maxDigitsValidator(fl validator.FieldLevel) bool {
	p, ok := fieldPrice(fl)
	if !ok {
		return false
	}
	whole, fractional := p.Digits()
	return whole+fractional <= intParam(fl)
}

// maxWholeDigitsValidator caps the digits before the decimal point.
func maxWholeDigitsValidator(fl validator.FieldLevel) bool {
	p, ok := fieldPrice(fl)
	if !ok {
		return false
	}
	whole, _ := p.Digits()
	return whole <= intParam(fl)
}

// decimalPlacesValidator caps the digits after the decimal point. Trailing
// zeros don't count, so 45.90 is fine for `decimal_places=2`.
func decimalPlacesValidator(fl validator.FieldLevel) bool {
	p, ok := fieldPrice(fl)
	if !ok {
		return false
	}
	_, fractional := p.Digits()
	return fractional <= intParam(fl)
}
