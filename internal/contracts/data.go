package contracts

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the on-disk date format for every table
const DateLayout = "2006-01-02"

// NoEarnings marks "no earnings event in that direction" for the distance columns
const NoEarnings = 99999

// EarningsWindowDays is the inclusive half-width of the earnings window
const EarningsWindowDays = 5

// Date is a calendar day (UTC midnight) that round-trips through CSV and JSON as YYYY-MM-DD.
// The zero value means "no date".
type Date struct {
	time.Time
}

// NewDate truncates t to its UTC calendar day
func NewDate(t time.Time) Date {
	y, m, d := t.Date()
	return Date{time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

// ParseDate accepts YYYY-MM-DD, optionally followed by a time component
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Date{}, nil
	}
	layouts := []string{DateLayout, "2006-01-02 15:04:05", time.RFC3339, "2006/01/02"}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return NewDate(t), nil
		}
	}
	return Date{}, fmt.Errorf("unparseable date %q", s)
}

// MustDate is ParseDate for literals in tests and fixtures
func MustDate(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Valid reports whether the date is set
func (d Date) Valid() bool {
	return !d.IsZero()
}

// DaysUntil returns whole calendar days from d to other (negative if other is earlier)
func (d Date) DaysUntil(other Date) int {
	return int(other.Sub(d.Time).Hours() / 24)
}

func (d Date) String() string {
	if !d.Valid() {
		return ""
	}
	return d.Format(DateLayout)
}

// MarshalCSV implements gocsv.TypeMarshaller
func (d Date) MarshalCSV() (string, error) {
	return d.String(), nil
}

// UnmarshalCSV implements gocsv.TypeUnmarshaller
func (d *Date) UnmarshalCSV(s string) error {
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// MarshalText keeps encoding.TextMarshaler consumers on the YYYY-MM-DD layout
func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText accepts YYYY-MM-DD or an empty string
func (d *Date) UnmarshalText(b []byte) error {
	return d.UnmarshalCSV(string(b))
}

// MarshalJSON encodes the date as "YYYY-MM-DD" or null
func (d Date) MarshalJSON() ([]byte, error) {
	if !d.Valid() {
		return []byte("null"), nil
	}
	return []byte(`"` + d.String() + `"`), nil
}

// UnmarshalJSON accepts "YYYY-MM-DD" or null
func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "null" {
		*d = Date{}
		return nil
	}
	return d.UnmarshalCSV(s)
}

// PricePoint is one daily bar of a symbol
// ⭐ SSOT: ingestion → panel builder 전달
type PricePoint struct {
	Symbol           string  `json:"symbol"`
	Date             Date    `json:"date"`
	Open             float64 `json:"open"`
	High             float64 `json:"high"`
	Low              float64 `json:"low"`
	Close            float64 `json:"close"`
	AdjustedClose    float64 `json:"adj_close"`
	Volume           float64 `json:"volume"`
	SplitCoefficient float64 `json:"split_coefficient"`
}

// EarningsEvent is one reported earnings date of a symbol
type EarningsEvent struct {
	Symbol       string `json:"symbol"`
	EarningsDate Date   `json:"earnings_date"`
}

// FeatureRow is one row of the feature panel: a price bar plus earnings-distance features
// ⭐ SSOT: panel builder → episode simulator 전달
type FeatureRow struct {
	Symbol           string  `csv:"symbol" json:"symbol"`
	Date             Date    `csv:"date" json:"date"`
	Open             float64 `csv:"open" json:"open"`
	High             float64 `csv:"high" json:"high"`
	Low              float64 `csv:"low" json:"low"`
	Close            float64 `csv:"close" json:"close"`
	AdjustedClose    float64 `csv:"adj_close" json:"adj_close"`
	Volume           float64 `csv:"volume" json:"volume"`
	SplitCoefficient float64 `csv:"split_coefficient" json:"split_coefficient"`

	NextEarningsDate  Date `csv:"next_earnings_date" json:"next_earnings_date"`
	PrevEarningsDate  Date `csv:"prev_earnings_date" json:"prev_earnings_date"`
	DaysToEarnings    int  `csv:"days_to_earnings" json:"days_to_earnings"`
	DaysSinceEarnings int  `csv:"days_since_earnings" json:"days_since_earnings"`
	IsEarningsWindow  bool `csv:"is_earnings_window" json:"is_earnings_window"`
}

// PanelColumns are the columns every persisted panel must carry
var PanelColumns = []string{
	"symbol", "date", "adj_close", "volume",
	"days_to_earnings", "days_since_earnings", "is_earnings_window",
}

// NewFeatureRow copies the price fields of p into an empty feature row
func NewFeatureRow(p PricePoint) FeatureRow {
	return FeatureRow{
		Symbol:            p.Symbol,
		Date:              p.Date,
		Open:              p.Open,
		High:              p.High,
		Low:               p.Low,
		Close:             p.Close,
		AdjustedClose:     p.AdjustedClose,
		Volume:            p.Volume,
		SplitCoefficient:  p.SplitCoefficient,
		DaysToEarnings:    NoEarnings,
		DaysSinceEarnings: NoEarnings,
	}
}

// Price returns the price part of the row
func (r FeatureRow) Price() PricePoint {
	return PricePoint{
		Symbol:           r.Symbol,
		Date:             r.Date,
		Open:             r.Open,
		High:             r.High,
		Low:              r.Low,
		Close:            r.Close,
		AdjustedClose:    r.AdjustedClose,
		Volume:           r.Volume,
		SplitCoefficient: r.SplitCoefficient,
	}
}

// InEarningsWindow applies the ±5 day rule to the two distances
func InEarningsWindow(daysTo, daysSince int) bool {
	return (daysTo >= 0 && daysTo <= EarningsWindowDays) ||
		(daysSince >= 0 && daysSince <= EarningsWindowDays)
}

// DollarVolume is the liquidity measure used for universe ranking
func (r FeatureRow) DollarVolume() float64 {
	return r.AdjustedClose * r.Volume
}
