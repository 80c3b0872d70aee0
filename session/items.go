package session

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/creastat/receipts"
)

// addItem appends a receipt to the session. The first item of a session is
// its primary item; every later one is an upsell. The total is recomputed
// from the items.
func (s *Session) addItem(value decimal.Decimal, txid string, at time.Time) {
	kind := ItemUpsell
	if len(s.Items) == 0 {
		kind = ItemPrimary
	}

	s.Items = append(s.Items, Item{
		Kind:    kind,
		Value:   receipts.Round2(value),
		Txid:    txid,
		AddedAt: at,
	})
	if txid != "" {
		s.Txids = append(s.Txids, txid)
	}
	s.Status = StatusOpen
	s.recomputeTotal()
}

// recomputeTotal derives Total from the items.
func (s *Session) recomputeTotal() {
	s.Total = SumItems(s.Items)
}

// restart turns a closed session record into a fresh open session for the
// same customer. Version is kept: it belongs to the stored record.
func (s *Session) restart(id string, at time.Time) {
	s.ID = id
	s.Status = StatusOpen
	s.Items = []Item{}
	s.Txids = []string{}
	s.Total = decimal.Zero
	s.ReportID = ""
	s.ClosedAt = nil
	s.CreatedAt = at
}

// SumItems returns the rounded sum of item values.
func SumItems(items []Item) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.Value)
	}
	return receipts.Round2(total)
}
