package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ReportDays is how many days before today the daily series covers.
const ReportDays = 7

// Sales aggregates orders that were not canceled. Revenue is the sum of
// order totals in major units.
type Sales struct {
	Orders  int64
	Revenue decimal.Decimal
}

// DailySales is the Sales of one UTC calendar day.
type DailySales struct {
	Day time.Time
	Sales
}

// Report is the sales overview shown to admins.
type Report struct {
	Total Sales
	// Daily has one entry per day from ReportDays days ago through today,
	// including days without orders.
	Daily []DailySales
}

// Day truncates t to midnight UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Report aggregates all-time sales and a daily series for the last
// ReportDays days.
func (s *Service) Report(ctx context.Context) (*Report, error) {
	today := Day(s.now())
	from := today.AddDate(0, 0, -ReportDays)
	to := today.AddDate(0, 0, 1)

	total, err := s.orders.TotalSales(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "total sales")
	}
	days, err := s.orders.DailySales(ctx, from, to)
	if err != nil {
		return nil, errors.Wrap(err, "daily sales")
	}

	byDay := make(map[time.Time]Sales, len(days))
	for _, d := range days {
		byDay[Day(d.Day)] = d.Sales
	}
	r := &Report{Total: total}
	for day := from; day.Before(to); day = day.AddDate(0, 0, 1) {
		sales, ok := byDay[day]
		if !ok {
			sales = Sales{Revenue: decimal.Zero}
		}
		r.Daily = append(r.Daily, DailySales{Day: day, Sales: sales})
	}
	return r, nil
}
