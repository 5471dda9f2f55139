package aggregator

import (
	"github.com/shopspring/decimal"

	"github.com/tripstream-systems/tripstream/internal/models"
)

// Aggregate groups qualified trips by derived date and computes fare
// statistics per date. All arithmetic stays in decimal; floats appear only
// when a KPIRecord is serialized. Dates with no qualified trips produce no
// entry.
func Aggregate(qualified []*Qualified) map[string]models.KPIRecord {
	byDate := make(map[string][]decimal.Decimal)
	for _, q := range qualified {
		byDate[q.Date] = append(byDate[q.Date], q.Fare)
	}

	out := make(map[string]models.KPIRecord, len(byDate))
	for date, fares := range byDate {
		total := decimal.Zero
		max := fares[0]
		min := fares[0]
		for _, f := range fares {
			total = total.Add(f)
			if f.GreaterThan(max) {
				max = f
			}
			if f.LessThan(min) {
				min = f
			}
		}
		count := len(fares)
		out[date] = models.KPIRecord{
			Date:        date,
			CountTrips:  count,
			TotalFare:   total,
			AverageFare: total.Div(decimal.NewFromInt(int64(count))),
			MaxFare:     max,
			MinFare:     min,
		}
	}
	return out
}
