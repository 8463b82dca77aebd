package utils

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestConvertMass_CommonPaperworkUnits(t *testing.T) {
	cases := []struct {
		value string
		from  string
		to    string
		want  string
	}{
		{"1", "q", "kg", "100"},
		{"350", "q", "kg", "35000"},
		{"1", "t", "kg", "1000"},
		{"1", "mt", "kg", "1000"},
		{"2500", "kg", "t", "2.5"},
		{"1", "lb", "g", "453.592"},
		{"0", "q", "kg", "0"},
	}
	for _, c := range cases {
		got, err := ConvertMass(decimal.RequireFromString(c.value), c.from, c.to)
		if err != nil {
			t.Fatalf("ConvertMass(%s %s -> %s) failed: %v", c.value, c.from, c.to, err)
		}
		if !got.Equal(decimal.RequireFromString(c.want)) {
			t.Fatalf("ConvertMass(%s %s -> %s) = %s, want %s", c.value, c.from, c.to, got, c.want)
		}
	}
}

func TestConvertMass_Rejections(t *testing.T) {
	_, err := ConvertMass(decimal.RequireFromString("-1"), "kg", "g")
	if KindOf(err) != KindValidationFailed {
		t.Fatalf("negative mass must fail validation, got %v", err)
	}
	_, err = ConvertMass(decimal.NewFromInt(1), "stone", "kg")
	if KindOf(err) != KindValidationFailed {
		t.Fatalf("unknown source unit must fail validation, got %v", err)
	}
	_, err = ConvertMass(decimal.NewFromInt(1), "kg", "bags")
	if KindOf(err) != KindValidationFailed {
		t.Fatalf("unknown target unit must fail validation, got %v", err)
	}
}

func TestIsValidMassUnit(t *testing.T) {
	for _, unit := range []string{"g", "kg", "t", "mt", "q", "lb", "oz", "st", "mg", "µg"} {
		if !IsValidMassUnit(unit) {
			t.Fatalf("unit %s should be valid", unit)
		}
	}
	if IsValidMassUnit("KG") || IsValidMassUnit("") {
		t.Fatal("unit lookup is case sensitive and rejects empty")
	}
}
