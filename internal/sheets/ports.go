// Package sheets defines the backup mirror that copies the record store
// into a spreadsheet, one row per purchase keyed by purchase id.
package sheets

import (
	"context"
	"time"

	"pricememory/internal/core"
)

// Header is the first row of a mirror sheet.
var Header = []string{"ID", "Date", "Item", "Amount", "Note"}

// DateLayout is how purchase dates are written to the mirror.
const DateLayout = "2006-01-02 15:04"

// Ports for outbound adapters.
type (
	MirrorWriter interface {
		// AppendPurchase adds a row for p unless one with the same id
		// already exists.
		AppendPurchase(ctx context.Context, p core.Purchase) (rowRef string, err error)
		// DeletePurchase removes the row for id, reporting whether one existed.
		DeletePurchase(ctx context.Context, id string) (bool, error)
	}

	// MirrorLister lists the purchase ids currently in the mirror.
	MirrorLister interface {
		ListPurchaseIDs(ctx context.Context) ([]string, error)
	}

	Mirror interface {
		MirrorWriter
		MirrorLister
	}
)

// Row renders p as mirror cells with the date in loc (nil means local).
func Row(p core.Purchase, loc *time.Location) []string {
	if loc == nil {
		loc = time.Local
	}
	return []string{p.ID, p.PurchasedAt.In(loc).Format(DateLayout), p.ItemName, p.Amount.String(), p.Note}
}
