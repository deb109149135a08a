package http

import (
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"

	"pricememory/internal/core"
)

const (
	cardTimeLayout     = "3:04 PM"
	cardDateLayout     = "Jan 2, 3:04 PM"
	detailDateLayout   = "Monday, January 2, 2006 at 3:04 PM"
	dateInputLayout    = "2006-01-02"
	timeInputLayout    = "15:04"
	amountFormatLayout = "#,###.##"
)

// formatAmount renders an amount with the currency symbol and grouped
// thousands, e.g. "₦1,234.50".
func formatAmount(symbol string, amount decimal.Decimal) string {
	neg := amount.IsNegative()
	s := humanize.FormatFloat(amountFormatLayout, amount.Abs().Round(2).InexactFloat64())
	if neg {
		return "-" + symbol + s
	}
	return symbol + s
}

// cardDate shows only the clock for purchases made today and the short
// date otherwise.
func cardDate(now, t time.Time) string {
	local := t.In(now.Location())
	if core.CalendarDayDiff(now, t) == 0 {
		return local.Format(cardTimeLayout)
	}
	return local.Format(cardDateLayout)
}

func detailDate(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(detailDateLayout)
}

// recordedAgo describes when the record was stored, relative to now.
func recordedAgo(now, createdAt time.Time) string {
	if createdAt.IsZero() {
		return ""
	}
	return humanize.RelTime(createdAt, now, "ago", "from now")
}

// sanitizeInput removes control characters other than tab and newlines
// and trims whitespace.
func sanitizeInput(s string) string {
	return stripControl(strings.TrimSpace(s))
}

// stripControl drops control characters other than tab and line breaks.
func stripControl(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		if r == 0x7f {
			return -1
		}
		return r
	}, s)
}
