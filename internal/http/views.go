package http

import (
	"time"

	"github.com/dustin/go-humanize"

	"pricememory/internal/core"
	"pricememory/internal/services"
)

// Template data. Strings are pre-formatted so the templates stay free of
// locale logic.
type (
	cardView struct {
		ID       string
		ItemName string
		Amount   string
		When     string
		ISO      string
		Note     string
		HasPhoto bool
	}

	sectionView struct {
		Title string
		Total string
		Count int
		Cards []cardView
	}

	listView struct {
		Query    string
		Sections []sectionView
		Matches  int
		Empty    string
	}

	indexView struct {
		List     listView
		Total    int
		Currency string
	}

	formView struct {
		Form     services.EntryForm
		Field    string
		Error    string
		Today    string
		Now      string
		Currency string
		MaxPhoto string
	}

	detailView struct {
		ID        string
		ItemName  string
		Amount    string
		Date      string
		Note      string
		Recorded  string
		PhotoName string
		PhotoSize string
		HasPhoto  bool
	}
)

func (s *Server) buildListView(all []core.Purchase, query string, now time.Time) listView {
	view := core.BuildListView(all, query, now)
	out := listView{
		Query:   view.Query,
		Matches: view.Matches,
		Empty:   view.Empty.Message(),
	}
	for _, sec := range view.Sections {
		sv := sectionView{
			Title: sec.Title,
			Total: formatAmount(s.currency, sec.Total),
			Count: len(sec.Purchases),
			Cards: make([]cardView, 0, len(sec.Purchases)),
		}
		for _, p := range sec.Purchases {
			sv.Cards = append(sv.Cards, s.card(p, now))
		}
		out.Sections = append(out.Sections, sv)
	}
	return out
}

func (s *Server) card(p core.Purchase, now time.Time) cardView {
	return cardView{
		ID:       p.ID,
		ItemName: p.ItemName,
		Amount:   formatAmount(s.currency, p.Amount),
		When:     cardDate(now, p.PurchasedAt),
		ISO:      p.PurchasedAt.In(now.Location()).Format(time.RFC3339),
		Note:     p.Note,
		HasPhoto: p.InvoicePhoto != nil,
	}
}

func (s *Server) detail(p core.Purchase, now time.Time) detailView {
	v := detailView{
		ID:       p.ID,
		ItemName: p.ItemName,
		Amount:   formatAmount(s.currency, p.Amount),
		Date:     detailDate(p.PurchasedAt, now.Location()),
		Note:     p.Note,
		Recorded: recordedAgo(now, p.CreatedAt),
	}
	if p.InvoicePhoto != nil {
		v.HasPhoto = true
		v.PhotoName = p.InvoicePhoto.Name
	}
	return v
}

func (s *Server) newFormView(form services.EntryForm, now time.Time) formView {
	return formView{
		Form:     form,
		Today:    now.Format(dateInputLayout),
		Now:      now.Format(timeInputLayout),
		Currency: s.currency,
		MaxPhoto: humanize.IBytes(uint64(s.maxPhotoBytes)),
	}
}
