package services

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const (
	glyphUp   = "▲"
	glyphDown = "▼"
	glyphFlat = "━"
)

var numberPrinter = message.NewPrinter(language.English)

var changeReplacer = strings.NewReplacer(
	"▲", "+", "△", "+", "▼", "-", "▽", "-",
	"상승", "+", "하락", "-", "보합", "",
	",", "", " ", "", "\u00a0", "",
)

// normalizeChange turns upstream change text ("▲5.20", "하락 3.5", "-1,234")
// into a plain signed number string. Empty input becomes "0".
func normalizeChange(text string) string {
	t := changeReplacer.Replace(strings.TrimSpace(text))
	if t == "" {
		return "0"
	}
	return t
}

// changeSign returns 1, -1 or 0. Text that is not a number falls back to its
// leading sign character.
func changeSign(text string) int {
	n := normalizeChange(text)
	if d, err := decimal.NewFromString(strings.TrimPrefix(n, "+")); err == nil {
		return d.Sign()
	}
	switch {
	case strings.HasPrefix(n, "-"):
		return -1
	case strings.HasPrefix(n, "+"):
		return 1
	default:
		return 0
	}
}

func changeGlyph(text string) string {
	switch changeSign(text) {
	case 1:
		return glyphUp
	case -1:
		return glyphDown
	default:
		return glyphFlat
	}
}

// absChange is the unsigned magnitude of a change text with glyphs, sign
// words and thousands separators removed: "▼ 1,234" -> "1234".
func absChange(text string) string {
	n := normalizeChange(text)
	n = strings.TrimPrefix(n, "+")
	n = strings.TrimPrefix(n, "-")
	if n == "" {
		return "0"
	}
	return n
}

// groupedNumber renders d with thousands separators and a fixed number of
// decimal places.
func groupedNumber(d decimal.Decimal, places int) string {
	return numberPrinter.Sprintf(fmt.Sprintf("%%.%df", places), d.Round(int32(places)).InexactFloat64())
}

// signedNumber is groupedNumber with an explicit "+" for non-negative values.
func signedNumber(d decimal.Decimal, places int) string {
	s := groupedNumber(d.Abs(), places)
	if d.Sign() < 0 {
		return "-" + s
	}
	return "+" + s
}

// percentText renders a ratio already expressed in percent, e.g. 0.35 -> "+0.35%".
func percentText(d decimal.Decimal) string {
	return fmt.Sprintf("%s%%", signedNumber(d, 2))
}

func pricePlaces(d decimal.Decimal) int {
	if d.Abs().LessThan(decimal.NewFromInt(100)) {
		return 2
	}
	return 0
}
