package domain

import "time"

// Reading is a single half-hourly consumption delta reported by a meterpoint.
type Reading struct {
	MeterpointID     string
	IntervalStart    time.Time
	ConsumptionDelta float64
}

// Meterpoint is a physical connection point.
type Meterpoint struct {
	MeterpointID string
	Region       string
}

// Product is a tariff product an agreement can reference.
type Product struct {
	ProductID   string
	DisplayName string
	IsVariable  bool
}
