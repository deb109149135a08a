package core

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Bucket identifies one of the recency groups shown on the list view.
type Bucket int

const (
	BucketToday Bucket = iota
	BucketYesterday
	BucketLastWeek
	BucketOlder
)

// Title returns the section heading for the bucket.
func (b Bucket) Title() string {
	switch b {
	case BucketToday:
		return "Today"
	case BucketYesterday:
		return "Yesterday"
	case BucketLastWeek:
		return "Last 7 Days"
	default:
		return "Older"
	}
}

// Groups holds purchases partitioned by recency. Each bucket keeps the
// relative order of its input.
type Groups struct {
	Today     []Purchase
	Yesterday []Purchase
	LastWeek  []Purchase
	Older     []Purchase
}

// Section is a non-empty bucket ready for rendering.
type Section struct {
	Bucket    Bucket
	Title     string
	Purchases []Purchase
	Total     decimal.Decimal
}

// FilterByItemName keeps purchases whose item name contains query,
// ignoring case. The query is matched as given, spaces included; only an
// empty query returns the input unchanged.
func FilterByItemName(purchases []Purchase, query string) []Purchase {
	if query == "" {
		return purchases
	}
	q := strings.ToLower(query)
	out := make([]Purchase, 0, len(purchases))
	for _, p := range purchases {
		if strings.Contains(strings.ToLower(p.ItemName), q) {
			out = append(out, p)
		}
	}
	return out
}

// CalendarDayDiff returns the number of calendar days from t to now in
// now's location. Times of day are ignored, so 23:59 yesterday and 00:01
// today differ by one. Future instants yield a negative value.
func CalendarDayDiff(now, t time.Time) int {
	loc := now.Location()
	ny, nm, nd := now.Date()
	ty, tm, td := t.In(loc).Date()
	// UTC midnights avoid DST-length days skewing the division.
	a := time.Date(ny, nm, nd, 0, 0, 0, 0, time.UTC)
	b := time.Date(ty, tm, td, 0, 0, 0, 0, time.UTC)
	return int(a.Sub(b).Hours() / 24)
}

// BucketFor classifies a purchase date relative to now. Anything that is
// not 0, 1 or 2..7 days old lands in BucketOlder, future dates included.
func BucketFor(now, purchasedAt time.Time) Bucket {
	diff := CalendarDayDiff(now, purchasedAt)
	switch {
	case diff == 0:
		return BucketToday
	case diff == 1:
		return BucketYesterday
	case diff >= 2 && diff <= 7:
		return BucketLastWeek
	default:
		return BucketOlder
	}
}

// GroupByRecency partitions purchases into the four recency buckets.
func GroupByRecency(purchases []Purchase, now time.Time) Groups {
	var g Groups
	for _, p := range purchases {
		switch BucketFor(now, p.PurchasedAt) {
		case BucketToday:
			g.Today = append(g.Today, p)
		case BucketYesterday:
			g.Yesterday = append(g.Yesterday, p)
		case BucketLastWeek:
			g.LastWeek = append(g.LastWeek, p)
		default:
			g.Older = append(g.Older, p)
		}
	}
	return g
}

// Len returns the number of purchases across all buckets.
func (g Groups) Len() int {
	return len(g.Today) + len(g.Yesterday) + len(g.LastWeek) + len(g.Older)
}

// Sections returns the non-empty buckets in display order.
func (g Groups) Sections() []Section {
	all := []struct {
		b  Bucket
		ps []Purchase
	}{
		{BucketToday, g.Today},
		{BucketYesterday, g.Yesterday},
		{BucketLastWeek, g.LastWeek},
		{BucketOlder, g.Older},
	}
	sections := make([]Section, 0, len(all))
	for _, s := range all {
		if len(s.ps) == 0 {
			continue
		}
		sections = append(sections, Section{
			Bucket:    s.b,
			Title:     s.b.Title(),
			Purchases: s.ps,
			Total:     SumAmounts(s.ps),
		})
	}
	return sections
}

// EmptyState describes why a list view has nothing to show.
type EmptyState int

const (
	NotEmpty EmptyState = iota
	EmptyNoRecords
	EmptyNoResults
)

// Message returns the user-facing text for the empty state.
func (e EmptyState) Message() string {
	switch e {
	case EmptyNoRecords:
		return "No purchases recorded yet."
	case EmptyNoResults:
		return "No results found."
	default:
		return ""
	}
}

// ListView is the filtered and grouped projection of the store.
type ListView struct {
	Query    string
	Sections []Section
	Matches  int
	Empty    EmptyState
}

// BuildListView filters all by query and groups the matches by recency.
func BuildListView(all []Purchase, query string, now time.Time) ListView {
	filtered := FilterByItemName(all, query)
	groups := GroupByRecency(filtered, now)

	view := ListView{
		Query:    query,
		Sections: groups.Sections(),
		Matches:  groups.Len(),
	}
	switch {
	case len(all) == 0:
		view.Empty = EmptyNoRecords
	case view.Matches == 0:
		view.Empty = EmptyNoResults
	}
	return view
}
