package core

import (
	"errors"
	"strings"
	"time"
)

const (
	Income  TxType = "income"
	Expense TxType = "expense"
)

const (
	FoodAndDining     Category = "Food & Dining"
	Transportation    Category = "Transportation"
	Shopping          Category = "Shopping"
	Entertainment     Category = "Entertainment"
	BillsAndUtilities Category = "Bills & Utilities"
	Healthcare        Category = "Healthcare"
	Education         Category = "Education"
	Travel            Category = "Travel"
	Salary            Category = "Salary"
	Freelance         Category = "Freelance"
	Investment        Category = "Investment"
	Other             Category = "Other"
)

type (
	TxType string

	Category string

	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	// Transaction is one income or expense event. Records are immutable
	// once created; the only mutations are insert and delete.
	Transaction struct {
		ID          string
		Amount      Money
		Description string
		Category    Category
		Type        TxType
		Date        Date
		Owner       string
	}
)

var (
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrEmptyDescription = errors.New("empty description")
	ErrInvalidCategory  = errors.New("invalid category")
	ErrInvalidType      = errors.New("invalid transaction type")
	ErrInvalidDate      = errors.New("invalid date")
)

// Categories returns the fixed category set in display order.
func Categories() []Category {
	return []Category{
		FoodAndDining,
		Transportation,
		Shopping,
		Entertainment,
		BillsAndUtilities,
		Healthcare,
		Education,
		Travel,
		Salary,
		Freelance,
		Investment,
		Other,
	}
}

func (c Category) Valid() bool {
	switch c {
	case FoodAndDining, Transportation, Shopping, Entertainment,
		BillsAndUtilities, Healthcare, Education, Travel,
		Salary, Freelance, Investment, Other:
		return true
	default:
		return false
	}
}

func (t TxType) Valid() bool {
	return t == Income || t == Expense
}

// NewDate creates a Date from year, month, day. The time component is
// always midnight UTC; transactions carry calendar dates only.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar date.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), int(t.Month()), t.Day())
}

// ParseDate parses an ISO date (YYYY-MM-DD).
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", strings.TrimSpace(s))
	if err != nil {
		return Date{}, ErrInvalidDate
	}
	return Date{Time: t}, nil
}

// String renders the ISO date form used on the wire and in storage.
func (d Date) String() string {
	return d.Format("2006-01-02")
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (t Transaction) Validate() error {
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	if len(strings.TrimSpace(t.Description)) == 0 {
		return ErrEmptyDescription
	}
	if len(t.Description) > 200 {
		return errors.New("description too long (max 200 characters)")
	}
	if !t.Category.Valid() {
		return ErrInvalidCategory
	}
	if !t.Type.Valid() {
		return ErrInvalidType
	}
	if err := t.Date.Validate(); err != nil {
		return err
	}
	return nil
}
