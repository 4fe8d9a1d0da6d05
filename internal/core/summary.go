package core

import "fmt"

// recentLimit caps the number of transactions rendered into a summary.
const recentLimit = 10

// Summary is the aggregate view of one user's transactions, used both for
// dashboard rendering and for building model prompts.
type Summary struct {
	TotalIncome   Money
	TotalExpenses Money
	NetBalance    Money
	Count         int
	ByCategory    map[Category]Money // expense totals, only categories present
	Recent        []string           // up to recentLimit rendered lines, most recent first
}

// Summarize computes totals, the per-category expense breakdown, and the
// rendered recent-transaction lines. The input is expected most-recent-first,
// as the store returns it. An empty input yields zero totals and an empty
// category map.
func Summarize(txs []Transaction) Summary {
	s := Summary{
		Count:      len(txs),
		ByCategory: make(map[Category]Money),
	}
	for _, t := range txs {
		switch t.Type {
		case Income:
			s.TotalIncome.Cents += t.Amount.Cents
		case Expense:
			s.TotalExpenses.Cents += t.Amount.Cents
			c := s.ByCategory[t.Category]
			c.Cents += t.Amount.Cents
			s.ByCategory[t.Category] = c
		}
	}
	s.NetBalance.Cents = s.TotalIncome.Cents - s.TotalExpenses.Cents

	n := len(txs)
	if n > recentLimit {
		n = recentLimit
	}
	s.Recent = make([]string, 0, n)
	for _, t := range txs[:n] {
		s.Recent = append(s.Recent, t.Line())
	}
	return s
}

// Line renders the transaction as a one-line human-readable string.
func (t Transaction) Line() string {
	return fmt.Sprintf("%s: %s - %s (%s)", t.Type, t.Amount.USD(), t.Description, t.Category)
}
