package output

import (
	"strconv"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.English)

// Int formats n with thousands separators.
func Int(n int) string { return printer.Sprintf("%d", n) }

// Pct formats a percentage with one decimal.
func Pct(v float64) string { return printer.Sprintf("%.1f%%", v) }

// Num formats an optional measurement, "-" when absent.
func Num(v *float64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'f', 2, 64)
}

// Date formats an optional time as YYYY-MM-DD, "-" when absent.
func Date(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.Format(time.DateOnly)
}
