// Package normalize canonicalizes raw field values into comparable forms.
// Every transform is total: malformed input is flagged, never an error.
package normalize

import (
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/meridian-lending/recon-cli/internal/model"
)

// Result is the canonical form of a raw value plus a validity flag.
// Invalid input keeps its original value so nothing is silently dropped.
type Result struct {
	Value string
	Valid bool
}

// Field normalizes raw according to the mapping's field kind.
func Field(kind model.FieldKind, raw string) Result {
	switch kind {
	case model.KindPhone:
		return Phone(raw)
	case model.KindDate:
		return Date(raw)
	case model.KindSSN:
		return SSN(raw)
	case model.KindCurrency:
		return Currency(raw)
	case model.KindAddress:
		return Address(raw)
	default:
		return Text(raw)
	}
}

// Phone reduces a phone number to ten digits. An eleven-digit number
// with a leading country code 1 is accepted; any other length is flagged
// and the original value passed through unchanged.
func Phone(raw string) Result {
	digits := digitsOnly(raw)
	if len(digits) == 11 && digits[0] == '1' {
		digits = digits[1:]
	}
	if len(digits) != 10 {
		return Result{Value: raw}
	}
	return Result{Value: digits, Valid: true}
}

// dateLayouts covers the formats loan documents and the loan system emit.
var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"01/02/2006",
	"1/2/2006",
	"01-02-2006",
	"January 2, 2006",
	"Jan 2, 2006",
	"20060102",
}

// Date parses common US date formats into ISO 2006-01-02. Unparsable
// strings are flagged with the original preserved.
func Date(raw string) Result {
	s := strings.TrimSpace(raw)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return Result{Value: t.Format("2006-01-02"), Valid: true}
		}
	}
	return Result{Value: raw}
}

// SSN reduces a social security number to nine digits. A value that
// already carries a redaction mask is preserved as-is and accepted.
func SSN(raw string) Result {
	s := strings.TrimSpace(raw)
	if strings.ContainsAny(s, "*Xx") {
		return Result{Value: s, Valid: true}
	}
	digits := digitsOnly(s)
	if len(digits) != 9 {
		return Result{Value: raw}
	}
	return Result{Value: digits, Valid: true}
}

// Currency parses a monetary string into fixed-point form with a scale
// of two. Currency symbols, thousands separators, and surrounding
// whitespace are stripped; accountant-style parentheses mean negative.
func Currency(raw string) Result {
	d, ok := Amount(raw)
	if !ok {
		return Result{Value: raw}
	}
	return Result{Value: d.StringFixed(2), Valid: true}
}

// Amount parses a monetary string into a decimal. Shared by the fee
// schedule importers, which need the numeric value rather than the
// canonical string.
func Amount(raw string) (decimal.Decimal, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return decimal.Zero, false
	}
	neg := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		neg = true
		s = s[1 : len(s)-1]
	}
	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	if neg {
		d = d.Neg()
	}
	return d, true
}

// addressAbbrev maps street suffixes, unit designators, and directionals
// onto their USPS abbreviations. Keys are lowercase with no trailing
// period; values are the canonical short form.
var addressAbbrev = map[string]string{
	"street":    "St",
	"avenue":    "Ave",
	"boulevard": "Blvd",
	"drive":     "Dr",
	"lane":      "Ln",
	"road":      "Rd",
	"court":     "Ct",
	"circle":    "Cir",
	"place":     "Pl",
	"parkway":   "Pkwy",
	"highway":   "Hwy",
	"terrace":   "Ter",
	"trail":     "Trl",
	"apartment": "Apt",
	"suite":     "Ste",
	"building":  "Bldg",
	"floor":     "Fl",
	"room":      "Rm",
	"north":     "N",
	"south":     "S",
	"east":      "E",
	"west":      "W",
	"northeast": "NE",
	"northwest": "NW",
	"southeast": "SE",
	"southwest": "SW",
}

// Address collapses whitespace, folds diacritics, and applies USPS-style
// abbreviations (Street→St, Apartment→Apt). Always best-effort; only an
// empty value is flagged.
func Address(raw string) Result {
	folded := foldDiacritics(raw)
	fields := strings.Fields(folded)
	for i, tok := range fields {
		key := strings.ToLower(strings.Trim(tok, ".,"))
		if abbrev, ok := addressAbbrev[key]; ok {
			fields[i] = abbrev
			continue
		}
		fields[i] = strings.TrimRight(tok, ".,")
	}
	out := strings.Join(fields, " ")
	return Result{Value: out, Valid: out != ""}
}

// Text collapses whitespace and folds diacritics. The default for
// mappings with no declared kind.
func Text(raw string) Result {
	out := strings.Join(strings.Fields(foldDiacritics(raw)), " ")
	return Result{Value: out, Valid: out != ""}
}

func digitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// foldDiacritics strips combining marks so "José" compares equal to
// "Jose". The transform chain is built per call; chained transformers
// carry state and are not safe to share across goroutines.
func foldDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}
