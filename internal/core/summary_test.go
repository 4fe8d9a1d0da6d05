package core

import (
	"fmt"
	"testing"
)

func tx(typ TxType, cents int64, desc string, cat Category) Transaction {
	return Transaction{
		Amount:      Money{Cents: cents},
		Description: desc,
		Category:    cat,
		Type:        typ,
		Date:        NewDate(2026, 8, 1),
	}
}

func TestSummarizeEmpty(t *testing.T) {
	s := Summarize(nil)
	if s.TotalIncome.Cents != 0 || s.TotalExpenses.Cents != 0 || s.NetBalance.Cents != 0 {
		t.Fatalf("expected zero totals, got %+v", s)
	}
	if len(s.ByCategory) != 0 {
		t.Fatalf("expected empty category map, got %v", s.ByCategory)
	}
	if s.Count != 0 || len(s.Recent) != 0 {
		t.Fatalf("expected empty summary, got %+v", s)
	}
}

func TestSummarizeTotals(t *testing.T) {
	s := Summarize([]Transaction{
		tx(Income, 50000, "paycheck", Salary),
		tx(Expense, 2500, "lunch", FoodAndDining),
		tx(Expense, 12000, "electricity", BillsAndUtilities),
	})
	if s.TotalIncome.Cents != 50000 {
		t.Fatalf("income: got %d", s.TotalIncome.Cents)
	}
	if s.TotalExpenses.Cents != 14500 {
		t.Fatalf("expenses: got %d", s.TotalExpenses.Cents)
	}
	if s.NetBalance.Cents != s.TotalIncome.Cents-s.TotalExpenses.Cents {
		t.Fatalf("net balance mismatch: %d", s.NetBalance.Cents)
	}
	if s.Count != 3 {
		t.Fatalf("count: got %d", s.Count)
	}
}

func TestSummarizeCategoryTotalsSumToExpenses(t *testing.T) {
	txs := []Transaction{
		tx(Expense, 1000, "bus", Transportation),
		tx(Expense, 2000, "cinema", Entertainment),
		tx(Expense, 3000, "taxi", Transportation),
		tx(Income, 9999, "gig", Freelance),
	}
	s := Summarize(txs)
	var sum int64
	for _, m := range s.ByCategory {
		sum += m.Cents
	}
	if sum != s.TotalExpenses.Cents {
		t.Fatalf("category sum %d != total expenses %d", sum, s.TotalExpenses.Cents)
	}
	if got := s.ByCategory[Transportation].Cents; got != 4000 {
		t.Fatalf("transportation: got %d", got)
	}
	if _, ok := s.ByCategory[Freelance]; ok {
		t.Fatal("income category leaked into expense breakdown")
	}
}

func TestSummarizeRecentCappedAtTen(t *testing.T) {
	var txs []Transaction
	for i := 0; i < 15; i++ {
		txs = append(txs, tx(Expense, 100, fmt.Sprintf("item %d", i), Shopping))
	}
	s := Summarize(txs)
	if len(s.Recent) != 10 {
		t.Fatalf("expected 10 recent lines, got %d", len(s.Recent))
	}
	// Input order is most-recent-first; the first line is the newest record.
	if s.Recent[0] != "expense: $1.00 - item 0 (Shopping)" {
		t.Fatalf("unexpected first line: %q", s.Recent[0])
	}
}

func TestTransactionLine(t *testing.T) {
	line := tx(Expense, 2500, "lunch", FoodAndDining).Line()
	want := "expense: $25.00 - lunch (Food & Dining)"
	if line != want {
		t.Fatalf("got %q, want %q", line, want)
	}
}
