package domain

import "time"

// ActiveAgreement is one agreement valid at a reference date with product fields attached.
// DisplayName and IsVariable are nil when the agreement's product is unknown.
type ActiveAgreement struct {
	AgreementID  int64
	MeterpointID string
	DisplayName  *string
	IsVariable   *bool
}

// HalfHourlyConsumption aggregates all readings sharing an interval start.
type HalfHourlyConsumption struct {
	Datetime            time.Time
	MeterpointCount     int
	TotalConsumptionKWh float64
}

// DailyProductConsumption aggregates readings per product and calendar date.
type DailyProductConsumption struct {
	ProductDisplayName  string
	Date                time.Time
	MeterpointCount     int
	TotalConsumptionKWh float64
}

// MeterpointAgreement is one entry of a meterpoint's agreement history with the
// product and region attached. Region, DisplayName and IsVariable are nil when
// the referenced row is unknown.
type MeterpointAgreement struct {
	AgreementID  int64
	MeterpointID string
	Region       *string
	ProductID    string
	DisplayName  *string
	IsVariable   *bool
	AccountID    string
	ValidFrom    time.Time
	ValidTo      *time.Time
}
