package transform

import (
	"sort"
	"time"

	"github.com/milad/meteretl/internal/domain"
)

// HalfHourlyConsumption groups readings by interval start. Slots without readings
// are absent from the output; there is no gap filling.
func (t *Transformer) HalfHourlyConsumption() []domain.HalfHourlyConsumption {
	groups := make(map[int64]*group)
	starts := make(map[int64]time.Time)
	for _, r := range t.in.Readings {
		key := r.IntervalStart.UnixNano()
		g, ok := groups[key]
		if !ok {
			g = newGroup()
			groups[key] = g
			starts[key] = r.IntervalStart
		}
		g.add(r)
	}

	out := make([]domain.HalfHourlyConsumption, 0, len(groups))
	for key, g := range groups {
		out = append(out, domain.HalfHourlyConsumption{
			Datetime:            starts[key],
			MeterpointCount:     len(g.meterpoints),
			TotalConsumptionKWh: g.total.InexactFloat64(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Datetime.Before(out[j].Datetime) })
	return out
}

type productDay struct {
	name string
	date time.Time
}

// DailyProductConsumption joins every reading to each agreement of its meterpoint
// that is active on the reading's calendar date, then to the agreement's product,
// and groups by (product display name, date).
//
// The join fans out: a reading matching two overlapping agreements is counted under
// both. Readings with no active agreement, or whose agreement references an unknown
// product, do not appear in the output.
func (t *Transformer) DailyProductConsumption() []domain.DailyProductConsumption {
	groups := make(map[productDay]*group)
	for _, r := range t.in.Readings {
		date := domain.DateOf(r.IntervalStart)
		for _, a := range t.agreementsByMP[r.MeterpointID] {
			if !a.ActiveOn(date) {
				continue
			}
			for _, p := range t.productsByID[a.ProductID] {
				key := productDay{name: p.DisplayName, date: date}
				g, ok := groups[key]
				if !ok {
					g = newGroup()
					groups[key] = g
				}
				g.add(r)
			}
		}
	}

	out := make([]domain.DailyProductConsumption, 0, len(groups))
	for key, g := range groups {
		out = append(out, domain.DailyProductConsumption{
			ProductDisplayName:  key.name,
			Date:                key.date,
			MeterpointCount:     len(g.meterpoints),
			TotalConsumptionKWh: g.total.InexactFloat64(),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].ProductDisplayName < out[j].ProductDisplayName
	})
	return out
}
