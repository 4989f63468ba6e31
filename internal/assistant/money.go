package assistant

import (
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

var groupSeparator, decimalSeparator = localeSeparators(language.BrazilianPortuguese)

// localeSeparators reads the digit group and decimal separators of tag from
// a formatted sample, falling back to the pt-BR ones.
func localeSeparators(tag language.Tag) (string, string) {
	sample := []rune(message.NewPrinter(tag).Sprintf("%v", number.Decimal(1234.5, number.Scale(1))))
	if len(sample) != 7 {
		return ".", ","
	}
	return string(sample[1]), string(sample[5])
}

// FormatMoney renders amount in Brazilian notation, e.g. "R$ -1.234,50".
func FormatMoney(currency string, amount decimal.Decimal) string {
	if strings.TrimSpace(currency) == "" {
		currency = "R$"
	}
	return currency + " " + formatDecimal(amount, 2)
}

// formatDecimal works on the decimal digits directly so large amounts keep
// every cent.
func formatDecimal(amount decimal.Decimal, places int) string {
	rounded := amount.Round(int32(places))
	whole, frac, _ := strings.Cut(rounded.Abs().StringFixed(int32(places)), ".")

	var b strings.Builder
	if rounded.Sign() < 0 {
		b.WriteByte('-')
	}
	for i, digit := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteString(groupSeparator)
		}
		b.WriteRune(digit)
	}
	if frac != "" {
		b.WriteString(decimalSeparator)
		b.WriteString(frac)
	}
	return b.String()
}
