package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	Daily   Interval = "daily"
	Weekly  Interval = "weekly"
	Monthly Interval = "monthly"
)

// DefaultCurrency is stamped on records that do not carry one.
const DefaultCurrency = "INR"

// NoCategory is returned by top-category lookups on an empty month.
const NoCategory = "N/A"

const dateLayout = "2006-01-02"

type (
	Interval string

	// Date is a calendar date at 00:00 UTC.
	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	ExpenseRecord struct {
		ID         int64
		Owner      string
		Category   string
		Amount     Money
		Currency   string
		ReceiptRef string
		Timestamp  time.Time
	}

	RecurrenceDefinition struct {
		ID          int64
		Owner       string
		Description string
		Category    string
		Amount      Money
		Interval    Interval
		StartDate   Date
		LastApplied *Date
	}

	BudgetDefinition struct {
		Owner        string
		Category     string
		MonthlyLimit Money
	}

	Reminder struct {
		ID      int64
		Owner   string
		Title   string
		DueDate Date
		Notes   string
	}

	// ExpenseFilter narrows a ledger query. Nil or empty fields do not constrain.
	ExpenseFilter struct {
		Category  string
		Keyword   string
		MinAmount *Money
		MaxAmount *Money
		From      *Date
		To        *Date
		Limit     int
	}
)

var (
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrInvalidDate        = errors.New("invalid date")
	ErrInvalidCurrency    = errors.New("invalid currency")
	ErrInvalidInterval    = errors.New("invalid interval")
	ErrEmptyCategory      = errors.New("empty category")
	ErrEmptyDescription   = errors.New("empty description")
	ErrEmptyOwner         = errors.New("empty owner")
	ErrEmptyTitle         = errors.New("empty title")
	ErrInvalidAmountRange = errors.New("min amount greater than max amount")
	ErrInvalidDateRange   = errors.New("start date after end date")
)

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar date in UTC.
func DateOf(t time.Time) Date {
	t = t.UTC()
	return NewDate(t.Year(), int(t.Month()), t.Day())
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return Date{Time: t}, nil
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

// Day returns the day of the month
func (d Date) Day() int {
	return d.Time.Day()
}

// Month returns the month
func (d Date) Month() int {
	return int(d.Time.Month())
}

// Year returns the year
func (d Date) Year() int {
	return d.Time.Year()
}

func (d Date) String() string {
	return d.Time.Format(dateLayout)
}

// AddDays returns the date n days later.
func (d Date) AddDays(n int) Date {
	return Date{Time: d.Time.AddDate(0, 0, n)}
}

// Before reports whether d is strictly before o.
func (d Date) Before(o Date) bool {
	return d.Time.Before(o.Time)
}

// After reports whether d is strictly after o.
func (d Date) After(o Date) bool {
	return d.Time.After(o.Time)
}

// Equal reports whether d and o are the same calendar day.
func (d Date) Equal(o Date) bool {
	return d.Time.Equal(o.Time)
}

// MonthStart returns the first day of d's month.
func (d Date) MonthStart() Date {
	return NewDate(d.Year(), d.Month(), 1)
}

// AddMonthsAnchored moves n calendar months forward and lands on anchorDay,
// clamped to the last day of the target month.
func (d Date) AddMonthsAnchored(n, anchorDay int) Date {
	first := time.Date(d.Year(), d.Time.Month()+time.Month(n), 1, 0, 0, 0, 0, time.UTC)
	day := anchorDay
	if last := DaysIn(first.Year(), int(first.Month())); day > last {
		day = last
	}
	return NewDate(first.Year(), int(first.Month()), day)
}

// DaysIn returns the number of days in the given month.
func DaysIn(year, month int) int {
	return time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// Valid reports whether the interval is one the recurrence engine knows.
func (i Interval) Valid() bool {
	switch i {
	case Daily, Weekly, Monthly:
		return true
	}
	return false
}

// Date returns the calendar date the record was booked on.
func (e ExpenseRecord) Date() Date {
	return DateOf(e.Timestamp)
}

func (e ExpenseRecord) Validate() error {
	if strings.TrimSpace(e.Owner) == "" {
		return &ValidationError{Field: "owner", Err: ErrEmptyOwner}
	}
	if strings.TrimSpace(e.Category) == "" {
		return &ValidationError{Field: "category", Err: ErrEmptyCategory}
	}
	if len(e.Category) > 100 {
		return &ValidationError{Field: "category", Err: errors.New("category too long (max 100 characters)")}
	}
	if err := e.Amount.Validate(); err != nil {
		return &ValidationError{Field: "amount", Err: err}
	}
	if !validCurrency(e.Currency) {
		return &ValidationError{Field: "currency", Err: ErrInvalidCurrency}
	}
	if e.Timestamp.IsZero() {
		return &ValidationError{Field: "date", Err: ErrInvalidDate}
	}
	return nil
}

func validCurrency(c string) bool {
	if len(c) != 3 {
		return false
	}
	for _, r := range c {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

func (r RecurrenceDefinition) Validate() error {
	if strings.TrimSpace(r.Owner) == "" {
		return &ValidationError{Field: "owner", Err: ErrEmptyOwner}
	}
	if strings.TrimSpace(r.Description) == "" {
		return &ValidationError{Field: "description", Err: ErrEmptyDescription}
	}
	if strings.TrimSpace(r.Category) == "" {
		return &ValidationError{Field: "category", Err: ErrEmptyCategory}
	}
	if err := r.Amount.Validate(); err != nil {
		return &ValidationError{Field: "amount", Err: err}
	}
	if !r.Interval.Valid() {
		return &ValidationError{Field: "interval", Err: fmt.Errorf("%w: %q", ErrInvalidInterval, r.Interval)}
	}
	if err := r.StartDate.Validate(); err != nil {
		return &ValidationError{Field: "start_date", Err: err}
	}
	if r.LastApplied != nil && r.LastApplied.Before(r.StartDate) {
		return &ValidationError{Field: "last_applied", Err: errors.New("last applied date before start date")}
	}
	return nil
}

func (b BudgetDefinition) Validate() error {
	if strings.TrimSpace(b.Owner) == "" {
		return &ValidationError{Field: "owner", Err: ErrEmptyOwner}
	}
	if strings.TrimSpace(b.Category) == "" {
		return &ValidationError{Field: "category", Err: ErrEmptyCategory}
	}
	if err := b.MonthlyLimit.Validate(); err != nil {
		return &ValidationError{Field: "monthly_limit", Err: err}
	}
	return nil
}

func (r Reminder) Validate() error {
	if strings.TrimSpace(r.Owner) == "" {
		return &ValidationError{Field: "owner", Err: ErrEmptyOwner}
	}
	if strings.TrimSpace(r.Title) == "" {
		return &ValidationError{Field: "title", Err: ErrEmptyTitle}
	}
	if err := r.DueDate.Validate(); err != nil {
		return &ValidationError{Field: "due_date", Err: err}
	}
	return nil
}

func (f ExpenseFilter) Validate() error {
	if f.MinAmount != nil && f.MaxAmount != nil && f.MinAmount.Cents > f.MaxAmount.Cents {
		return &ValidationError{Field: "amount", Err: ErrInvalidAmountRange}
	}
	if f.From != nil && f.To != nil && f.From.After(*f.To) {
		return &ValidationError{Field: "date", Err: ErrInvalidDateRange}
	}
	return nil
}

// foldASCII lowercases A-Z only, the folding SQLite LIKE applies.
func foldASCII(s string) string {
	return strings.Map(func(r rune) rune {
		if 'A' <= r && r <= 'Z' {
			return r + ('a' - 'A')
		}
		return r
	}, s)
}

// Matches reports whether e satisfies every constraint of f. Limit is ignored.
func (f ExpenseFilter) Matches(e ExpenseRecord) bool {
	if f.Category != "" && e.Category != f.Category {
		return false
	}
	if f.Keyword != "" && !strings.Contains(foldASCII(e.Category), foldASCII(f.Keyword)) {
		return false
	}
	if f.MinAmount != nil && e.Amount.Cents < f.MinAmount.Cents {
		return false
	}
	if f.MaxAmount != nil && e.Amount.Cents > f.MaxAmount.Cents {
		return false
	}
	if f.From != nil && e.Timestamp.Before(f.From.Time) {
		return false
	}
	// To covers the whole day.
	if f.To != nil && !e.Timestamp.Before(f.To.AddDays(1).Time) {
		return false
	}
	return true
}

// MonthRange returns the filter bounds for one calendar month.
func MonthRange(year, month int) (from, to Date) {
	from = NewDate(year, month, 1)
	to = NewDate(year, month, DaysIn(year, month))
	return from, to
}
