package export

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"pricememory/internal/core"
)

// WriteCSV writes the Date,Item,Amount,Note backup. Item and Note are
// always quoted with inner quotes doubled; Date and Amount never contain
// separators and are written bare.
func WriteCSV(w io.Writer, purchases []core.Purchase, loc *time.Location) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(strings.Join(Header, ",") + "\n"); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, p := range purchases {
		row := formatDate(p.PurchasedAt, loc) + "," +
			quote(p.ItemName) + "," +
			p.Amount.String() + "," +
			quote(p.Note) + "\n"
		if _, err := bw.WriteString(row); err != nil {
			return fmt.Errorf("write csv row %s: %w", p.ID, err)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
