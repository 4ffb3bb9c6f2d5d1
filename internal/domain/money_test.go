package domain

import "testing"

func TestMoneyMajorUnits(t *testing.T) {
	cases := []struct {
		amount   Money
		currency string
		want     string
	}{
		{0, "INR", "0.00"},
		{5, "INR", "0.05"},
		{100, "INR", "1.00"},
		{149900, "INR", "1499.00"},
		{123456, "INR", "1234.56"},
		{-2500, "INR", "-25.00"},
		{500, "JPY", "500"},
		{1500, "BHD", "1.500"},
		{123456, "", "1234.56"},
	}
	for _, tc := range cases {
		if got := tc.amount.MajorUnits(tc.currency); got != tc.want {
			t.Fatalf("MajorUnits(%d, %q) = %s, want %s", int64(tc.amount), tc.currency, got, tc.want)
		}
	}
}

func TestMoneyDisplay(t *testing.T) {
	cases := []struct {
		amount   Money
		currency string
		want     string
	}{
		{149900, "INR", "INR 1,499.00"},
		{123456789, "INR", "INR 1,234,567.89"},
		{700000, "", "INR 7,000.00"},
		{500000, "JPY", "JPY 500,000"},
		{95, "INR", "INR 0.95"},
	}
	for _, tc := range cases {
		if got := tc.amount.Display(tc.currency); got != tc.want {
			t.Fatalf("Display(%d, %q) = %s, want %s", int64(tc.amount), tc.currency, got, tc.want)
		}
	}
}
