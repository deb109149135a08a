// Package export renders the full purchase list as a downloadable backup.
package export

import (
	"fmt"
	"io"
	"strings"
	"time"

	"pricememory/internal/core"
)

const (
	// DateTimeLayout is used for the Date column of every format.
	DateTimeLayout = "2006-01-02 15:04"

	filePrefix = "price_memory_backup_"
)

// Header lists the backup columns in order.
var Header = []string{"Date", "Item", "Amount", "Note"}

type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ParseFormat accepts "csv" or "xlsx", case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatCSV, FormatXLSX:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", s)
	}
}

func (f Format) ContentType() string {
	if f == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv; charset=utf-8"
}

// Filename returns price_memory_backup_<yyyy-MM-dd>.<ext> for the day of now.
func (f Format) Filename(now time.Time) string {
	return filePrefix + now.Format("2006-01-02") + "." + string(f)
}

// Write renders purchases in format f. Dates are shown in loc, or the
// local zone when loc is nil.
func (f Format) Write(w io.Writer, purchases []core.Purchase, loc *time.Location) error {
	switch f {
	case FormatCSV:
		return WriteCSV(w, purchases, loc)
	case FormatXLSX:
		return WriteXLSX(w, purchases, loc)
	default:
		return fmt.Errorf("unsupported export format %q", string(f))
	}
}

func formatDate(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format(DateTimeLayout)
}
