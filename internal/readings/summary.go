package readings

import (
	"time"

	"github.com/milad/meteretl/internal/domain"
	"github.com/shopspring/decimal"
)

// Summary describes a reading table.
type Summary struct {
	TotalReadings      int
	UniqueMeterpoints  int
	Start              time.Time
	End                time.Time
	TotalConsumption   float64
	AverageConsumption float64
}

func Summarize(rs []domain.Reading) Summary {
	var s Summary
	if len(rs) == 0 {
		return s
	}

	seen := make(map[string]struct{})
	total := decimal.Zero
	s.Start, s.End = rs[0].IntervalStart, rs[0].IntervalStart
	for _, r := range rs {
		seen[r.MeterpointID] = struct{}{}
		total = total.Add(decimal.NewFromFloat(r.ConsumptionDelta))
		if r.IntervalStart.Before(s.Start) {
			s.Start = r.IntervalStart
		}
		if r.IntervalStart.After(s.End) {
			s.End = r.IntervalStart
		}
	}

	s.TotalReadings = len(rs)
	s.UniqueMeterpoints = len(seen)
	s.TotalConsumption = total.InexactFloat64()
	s.AverageConsumption = total.Div(decimal.NewFromInt(int64(len(rs)))).InexactFloat64()
	return s
}
