package s0_data

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/gocarina/gocsv"

	"github.com/wonny/earningsedge/internal/contracts"
)

var priceAliases = columnAliases{
	{canonical: "symbol", names: []string{"symbol", "ticker"}},
	{canonical: "date", names: []string{"date"}},
	{canonical: "close_adjusted", names: []string{"close_adjusted", "adj_close", "adjusted_close"}},
}

// PriceColumns are required in a raw price table
var PriceColumns = []string{"symbol", "date", "close_adjusted", "volume"}

var earningsAliases = columnAliases{
	{canonical: "symbol", names: []string{"symbol", "ticker"}},
	{canonical: "earnings_date", names: []string{"date", "earnings_date", "reporteddate"}},
}

// EarningsColumns are required in a raw earnings table (after alias resolution)
var EarningsColumns = []string{"symbol", "earnings_date"}

// rawPriceRow keeps every cell as text; coercion happens after decoding
type rawPriceRow struct {
	Symbol           string `csv:"symbol"`
	Date             string `csv:"date"`
	Open             string `csv:"open"`
	High             string `csv:"high"`
	Low              string `csv:"low"`
	Close            string `csv:"close"`
	AdjustedClose    string `csv:"close_adjusted"`
	Volume           string `csv:"volume"`
	SplitCoefficient string `csv:"split_coefficient"`
}

type rawEarningsRow struct {
	Symbol       string `csv:"symbol"`
	EarningsDate string `csv:"earnings_date"`
}

// LoadPrices reads a raw daily price CSV.
// Unparseable dates come back as the zero Date and an unparseable adjusted close
// as NaN; CleanPrices drops both.
func LoadPrices(path string) ([]contracts.PricePoint, error) {
	t, err := readTable(path, priceAliases)
	if err != nil {
		return nil, err
	}
	return decodePrices(t)
}

func decodePrices(t *table) ([]contracts.PricePoint, error) {
	if err := t.require(PriceColumns...); err != nil {
		return nil, err
	}

	var raw []*rawPriceRow
	if err := gocsv.UnmarshalBytes(t.payload, &raw); err != nil {
		return nil, fmt.Errorf("%s: decode prices: %w", t.source, err)
	}

	prices := make([]contracts.PricePoint, 0, len(raw))
	for _, r := range raw {
		date, err := contracts.ParseDate(r.Date)
		if err != nil {
			date = contracts.Date{}
		}
		prices = append(prices, contracts.PricePoint{
			Symbol:           strings.TrimSpace(r.Symbol),
			Date:             date,
			Open:             coerceFloat(r.Open, 0),
			High:             coerceFloat(r.High, 0),
			Low:              coerceFloat(r.Low, 0),
			Close:            coerceFloat(r.Close, 0),
			AdjustedClose:    coerceFloat(r.AdjustedClose, math.NaN()),
			Volume:           coerceFloat(r.Volume, 0),
			SplitCoefficient: coerceFloat(r.SplitCoefficient, 1),
		})
	}

	return prices, nil
}

// LoadEarnings reads a raw earnings calendar CSV. The date column may be named
// date, earnings_date or reportedDate (checked in that order).
func LoadEarnings(path string) ([]contracts.EarningsEvent, error) {
	t, err := readTable(path, earningsAliases)
	if err != nil {
		return nil, err
	}
	return decodeEarnings(t)
}

func decodeEarnings(t *table) ([]contracts.EarningsEvent, error) {
	if err := t.require(EarningsColumns...); err != nil {
		return nil, err
	}

	var raw []*rawEarningsRow
	if err := gocsv.UnmarshalBytes(t.payload, &raw); err != nil {
		return nil, fmt.Errorf("%s: decode earnings: %w", t.source, err)
	}

	events := make([]contracts.EarningsEvent, 0, len(raw))
	for _, r := range raw {
		date, err := contracts.ParseDate(r.EarningsDate)
		if err != nil {
			date = contracts.Date{}
		}
		events = append(events, contracts.EarningsEvent{
			Symbol:       strings.TrimSpace(r.Symbol),
			EarningsDate: date,
		})
	}

	return events, nil
}

// coerceFloat parses s, returning fallback for blanks and garbage
func coerceFloat(s string, fallback float64) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fallback
	}
	return v
}
