package utils

import (
	"github.com/shopspring/decimal"
)

// Mass conversion goes through grams so any pair of supported units works.
// "q" is the quintal (100 kg) used on sugar paperwork; "mt" aliases the
// metric ton.
var gramsPerUnit = map[string]decimal.Decimal{
	"g":  decimal.NewFromInt(1),
	"kg": decimal.NewFromInt(1000),
	"t":  decimal.NewFromInt(1000000),
	"mg": decimal.RequireFromString("0.001"),
	"µg": decimal.RequireFromString("0.000001"),
	"lb": decimal.RequireFromString("453.592"),
	"oz": decimal.RequireFromString("28.3495"),
	"st": decimal.RequireFromString("6350.29"),
	"mt": decimal.NewFromInt(1000000),
	"q":  decimal.NewFromInt(100000),
}

func IsValidMassUnit(unit string) bool {
	_, ok := gramsPerUnit[unit]
	return ok
}

// ConvertMass converts value from one mass unit to another.
// Negative values and unknown units are rejected.
func ConvertMass(value decimal.Decimal, fromUnit string, toUnit string) (decimal.Decimal, error) {
	if value.IsNegative() {
		return decimal.Zero, Errf(KindValidationFailed, "mass value cannot be negative: %s", value.String())
	}
	fromFactor, ok := gramsPerUnit[fromUnit]
	if !ok {
		return decimal.Zero, Errf(KindValidationFailed, "unknown mass unit: %s", fromUnit)
	}
	toFactor, ok := gramsPerUnit[toUnit]
	if !ok {
		return decimal.Zero, Errf(KindValidationFailed, "unknown mass unit: %s", toUnit)
	}
	return value.Mul(fromFactor).Div(toFactor), nil
}
