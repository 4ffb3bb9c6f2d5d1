package domain

import (
	"fmt"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Money is an amount in the currency's minor unit (paise for INR). Arithmetic
// stays exact; rendering happens only at the display edge.
type Money int64

// DefaultCurrency is assumed when an entity carries no explicit currency.
const DefaultCurrency = "INR"

// minorUnitDigits maps currency codes to their minor unit exponent. Currencies
// absent from the map default to two digits.
var minorUnitDigits = map[string]int{
	"JPY": 0,
	"KRW": 0,
	"BHD": 3,
	"KWD": 3,
}

var displayPrinter = message.NewPrinter(language.English)

// MajorUnits converts the amount into major units for gateway APIs that
// require decimal strings (PayU posts "499.00", not minor units).
func (m Money) MajorUnits(currency string) string {
	units, rem, digits := m.split(currency)
	if digits == 0 {
		return fmt.Sprintf("%d", units)
	}
	return fmt.Sprintf("%d.%0*d", units, digits, rem)
}

// Display renders the amount with a currency code and digit grouping for
// receipts and ledger summaries, e.g. "INR 1,499.00".
func (m Money) Display(currency string) string {
	if currency == "" {
		currency = DefaultCurrency
	}
	units, rem, digits := m.split(currency)
	if digits == 0 {
		return displayPrinter.Sprintf("%s %v", currency, units)
	}
	return displayPrinter.Sprintf("%s %v.%0*d", currency, units, digits, rem)
}

func (m Money) split(currency string) (units, rem int64, digits int) {
	digits, ok := minorUnitDigits[currency]
	if !ok {
		digits = 2
	}
	div := int64(1)
	for i := 0; i < digits; i++ {
		div *= 10
	}
	units = int64(m) / div
	rem = int64(m) % div
	if rem < 0 {
		rem = -rem
	}
	return units, rem, digits
}
