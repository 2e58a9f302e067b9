package domain

import "time"

// Agreement binds a meterpoint to a product for [ValidFrom, ValidTo].
// ValidTo is nil for open-ended agreements. Both bounds are calendar dates.
// A zero ValidFrom means the source row had no start date.
type Agreement struct {
	AgreementID  int64
	MeterpointID string
	ProductID    string
	AccountID    string
	ValidFrom    time.Time
	ValidTo      *time.Time
}

// ActiveOn reports whether the agreement's validity window contains date.
// date must be a calendar date as returned by DateOf or ParseDate. An agreement
// without a start date is never active.
func (a Agreement) ActiveOn(date time.Time) bool {
	if a.ValidFrom.IsZero() || a.ValidFrom.After(date) {
		return false
	}
	return a.ValidTo == nil || !a.ValidTo.Before(date)
}
