package domain_test

import (
	"testing"

	"github.com/valpere/fintran/internal/domain"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Private Equity", domain.PrivateEquity},
		{"  real estate ", domain.RealEstate},
		{"fiscal/tax", domain.FiscalTax},
		{"Growth equity fund", domain.PrivateEquity},
		{"RICS valuation", domain.RealEstate},
		{"VAT compliance", domain.FiscalTax},
		{"withholding", domain.FiscalTax},
		{"banking", domain.WealthManagement},
		{"", domain.WealthManagement},
	}
	for _, tt := range tests {
		if got := domain.Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestValid(t *testing.T) {
	if !domain.Valid(domain.FiscalTax) {
		t.Error("Fiscal/Tax should be valid")
	}
	if domain.Valid("fiscal/tax") {
		t.Error("Valid is exact-match only")
	}
}
