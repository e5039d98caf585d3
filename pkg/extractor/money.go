package extractor

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// moneyPattern matches BRL amounts in folded text: "r$ 1.000.000,00",
// "r$ 500", "1,5 milhoes", "500 mil", "2 bilhoes". A bare number with
// neither the currency sign nor a multiplier word is not money (it could
// be a year or a document number).
var moneyPattern = regexp.MustCompile(
	`(?:r\$ ?(\d{1,3}(?:\.\d{3})*(?:,\d+)?|\d+(?:,\d+)?)(?: ?(mil|milhao|milhoes|bilhao|bilhoes))?` +
		`|\b(\d{1,3}(?:\.\d{3})*(?:,\d+)?|\d+(?:,\d+)?) ?(mil|milhao|milhoes|bilhao|bilhoes)\b)`)

var moneyMultipliers = map[string]int64{
	"mil":     1_000,
	"milhao":  1_000_000,
	"milhoes": 1_000_000,
	"bilhao":  1_000_000_000,
	"bilhoes": 1_000_000_000,
}

// extractMoney returns every positive BRL amount in folded text, in order
// of appearance, normalized to plain decimals.
func extractMoney(folded string) []decimal.Decimal {
	var out []decimal.Decimal
	for _, m := range moneyPattern.FindAllStringSubmatch(folded, -1) {
		number, unit := m[1], m[2]
		if number == "" {
			number, unit = m[3], m[4]
		}
		value, err := parseBRLNumber(number)
		if err != nil {
			continue
		}
		if mult, ok := moneyMultipliers[unit]; ok {
			value = value.Mul(decimal.NewFromInt(mult))
		}
		if value.IsPositive() {
			out = append(out, value)
		}
	}
	return out
}

// parseBRLNumber converts Brazilian number formatting (dots for thousands,
// comma for the decimal separator) into a decimal.
func parseBRLNumber(s string) (decimal.Decimal, error) {
	s = strings.ReplaceAll(s, ".", "")
	s = strings.ReplaceAll(s, ",", ".")
	return decimal.NewFromString(s)
}
