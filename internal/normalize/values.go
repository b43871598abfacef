package normalize

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
)

// DefaultDateLayouts are the layouts tried when parsing extracted date
// values, most specific first. Year-less layouts parse to year 0, which
// callers treat as "year unknown".
var DefaultDateLayouts = []string{
	"2006-01-02",
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
	"2 Jan 2006",
	"02/01/2006",
	"January 2",
	"2 January",
}

// currencySymbols maps symbols to ISO 4217 codes.
var currencySymbols = map[string]string{
	"€": "EUR",
	"$": "USD",
	"£": "GBP",
}

// currencyRe matches an amount with a leading or trailing currency marker,
// e.g. "EUR 20,000", "1,000.00 EUR", "€18,720", "$1500".
var currencyRe = regexp.MustCompile(
	`(?:([A-Z]{3}|[€$£])\s?)?(\d{1,3}(?:,\d{3})+(?:\.\d+)?|\d+(?:\.\d+)?)(?:\s?([A-Z]{3}|[€$£]))?`)

// Currency is a parsed monetary value.
type Currency struct {
	Amount float64
	Code   string
}

// ParseCurrency parses a currency string into an amount and ISO code.
// Either a leading or trailing code/symbol is accepted; a bare number
// without any currency marker does not parse.
func ParseCurrency(s string) (Currency, bool) {
	m := currencyRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return Currency{}, false
	}
	marker := m[1]
	if marker == "" {
		marker = m[3]
	}
	if marker == "" {
		return Currency{}, false
	}
	code, ok := currencySymbols[marker]
	if !ok {
		code = strings.ToUpper(marker)
	}

	amount, err := strconv.ParseFloat(strings.ReplaceAll(m[2], ",", ""), 64)
	if err != nil {
		return Currency{}, false
	}
	return Currency{Amount: amount, Code: code}, true
}

// FindCurrency returns the first currency-looking token in text that carries
// an explicit currency marker, or "" if none is found.
func FindCurrency(text string) string {
	for _, m := range currencyRe.FindAllStringSubmatch(text, -1) {
		if m[1] != "" || m[3] != "" {
			return strings.TrimSpace(m[0])
		}
	}
	return ""
}

// ordinalRe matches day-of-month ordinal suffixes, e.g. "1st", "22nd".
var ordinalRe = regexp.MustCompile(`(\d{1,2})(st|nd|rd|th)\b`)

// ParseDate parses a date string under the given layouts, trying each in
// order. Ordinal suffixes are stripped first ("June 1st" parses as "June 1").
// A zero Year on the returned time means the layout carried no year.
func ParseDate(s string, layouts []string) (time.Time, bool) {
	if len(layouts) == 0 {
		layouts = DefaultDateLayouts
	}
	cleaned := ordinalRe.ReplaceAllString(strings.TrimSpace(s), "$1")
	cleaned = strings.Join(strings.Fields(cleaned), " ")
	for _, layout := range layouts {
		if t, err := time.Parse(layout, cleaned); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

var dateTokenRe = regexp.MustCompile(
	`(?i)\b(?:\d{4}-\d{2}-\d{2}` +
		`|\d{1,2}/\d{1,2}/\d{4}` +
		`|(?:january|february|march|april|may|june|july|august|september|october|november|december|jan|feb|mar|apr|jun|jul|aug|sep|oct|nov|dec)\.?\s+\d{1,2}(?:st|nd|rd|th)?(?:,?\s+\d{4})?` +
		`|\d{1,2}(?:st|nd|rd|th)?\s+(?:january|february|march|april|may|june|july|august|september|october|november|december|jan|feb|mar|apr|jun|jul|aug|sep|oct|nov|dec)\.?(?:\s+\d{4})?)\b`)

// FindDate returns the first date-looking token in text that parses under
// the given layouts, or "" if none does.
func FindDate(text string, layouts []string) string {
	for _, tok := range dateTokenRe.FindAllString(text, -1) {
		if _, ok := ParseDate(tok, layouts); ok {
			return strings.TrimSpace(tok)
		}
	}
	return ""
}

var foldCaser = cases.Fold()

// CanonicalText canonicalizes free text for equality comparison: trimmed,
// inner whitespace collapsed, Unicode case-folded.
func CanonicalText(s string) string {
	return foldCaser.String(strings.Join(strings.Fields(s), " "))
}
