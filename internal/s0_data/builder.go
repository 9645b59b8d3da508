package s0_data

import (
	"math"
	"sort"

	"github.com/wonny/earningsedge/internal/contracts"
)

// CleanPrices drops rows without a symbol, a date or a finite adjusted close,
// then stable-sorts by (symbol, date).
func CleanPrices(prices []contracts.PricePoint) []contracts.PricePoint {
	out := make([]contracts.PricePoint, 0, len(prices))
	for _, p := range prices {
		if p.Symbol == "" || !p.Date.Valid() {
			continue
		}
		if math.IsNaN(p.AdjustedClose) || math.IsInf(p.AdjustedClose, 0) {
			continue
		}
		out = append(out, p)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Symbol != out[j].Symbol {
			return out[i].Symbol < out[j].Symbol
		}
		return out[i].Date.Before(out[j].Date.Time)
	})
	return out
}

// CleanEarnings drops incomplete rows and returns, per symbol, the ascending
// de-duplicated earnings dates.
func CleanEarnings(events []contracts.EarningsEvent) map[string][]contracts.Date {
	bySymbol := make(map[string][]contracts.Date)
	for _, e := range events {
		if e.Symbol == "" || !e.EarningsDate.Valid() {
			continue
		}
		bySymbol[e.Symbol] = append(bySymbol[e.Symbol], e.EarningsDate)
	}

	for sym, dates := range bySymbol {
		sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j].Time) })

		uniq := dates[:0]
		for i, d := range dates {
			if i > 0 && d.Equal(dates[i-1].Time) {
				continue
			}
			uniq = append(uniq, d)
		}
		bySymbol[sym] = uniq
	}

	return bySymbol
}

// DeriveFeatures joins prices with earnings dates, symbol by symbol.
//
// For each price date the next earnings date is the earliest one on or after it
// and the previous earnings date is the latest one on or before it, so an
// earnings day has both distances equal to 0. A missing direction yields
// contracts.NoEarnings. Output has one row per surviving price row, ordered by
// (symbol, date).
func DeriveFeatures(prices []contracts.PricePoint, events []contracts.EarningsEvent) []contracts.FeatureRow {
	cleaned := CleanPrices(prices)
	earnings := CleanEarnings(events)

	rows := make([]contracts.FeatureRow, 0, len(cleaned))
	for start := 0; start < len(cleaned); {
		end := start
		for end < len(cleaned) && cleaned[end].Symbol == cleaned[start].Symbol {
			end++
		}

		dates := earnings[cleaned[start].Symbol]
		for _, p := range cleaned[start:end] {
			rows = append(rows, annotate(p, dates))
		}
		start = end
	}

	return rows
}

// annotate computes the distance features of one price row against sorted earnings dates
func annotate(p contracts.PricePoint, dates []contracts.Date) contracts.FeatureRow {
	row := contracts.NewFeatureRow(p)

	// first earnings date >= price date
	next := sort.Search(len(dates), func(i int) bool { return !dates[i].Before(p.Date.Time) })
	if next < len(dates) {
		row.NextEarningsDate = dates[next]
		row.DaysToEarnings = p.Date.DaysUntil(dates[next])
	}

	// last earnings date <= price date
	prev := sort.Search(len(dates), func(i int) bool { return dates[i].After(p.Date.Time) }) - 1
	if prev >= 0 {
		row.PrevEarningsDate = dates[prev]
		row.DaysSinceEarnings = dates[prev].DaysUntil(p.Date)
	}

	row.IsEarningsWindow = contracts.InEarningsWindow(row.DaysToEarnings, row.DaysSinceEarnings)
	return row
}

// FilterMinRows drops symbols with fewer than minRows rows, keeping order
func FilterMinRows(rows []contracts.FeatureRow, minRows int) []contracts.FeatureRow {
	if minRows <= 0 {
		return rows
	}

	counts := make(map[string]int)
	for _, r := range rows {
		counts[r.Symbol]++
	}

	out := make([]contracts.FeatureRow, 0, len(rows))
	for _, r := range rows {
		if counts[r.Symbol] >= minRows {
			out = append(out, r)
		}
	}
	return out
}
