package httpserver

import (
	"encoding/json"
	"net/http"
	"time"
)

type activeAgreementJSON struct {
	AgreementID  int64   `json:"agreementId"`
	MeterpointID string  `json:"meterpointId"`
	DisplayName  *string `json:"displayName"`
	IsVariable   *bool   `json:"isVariable"`
}

type activeAgreementsResponseJSON struct {
	ReferenceDate string                `json:"referenceDate"`
	Agreements    []activeAgreementJSON `json:"agreements"`
}

type halfHourlyJSON struct {
	Datetime            string  `json:"datetime"`
	MeterpointCount     int64   `json:"meterpointCount"`
	TotalConsumptionKWh float64 `json:"totalConsumptionKwh"`
}

type halfHourlyResponseJSON struct {
	Rows          []halfHourlyJSON `json:"rows"`
	NextPageToken string           `json:"nextPageToken,omitempty"`
}

type dailyProductJSON struct {
	ProductDisplayName  string  `json:"productDisplayName"`
	Date                string  `json:"date"`
	MeterpointCount     int64   `json:"meterpointCount"`
	TotalConsumptionKWh float64 `json:"totalConsumptionKwh"`
}

type dailyProductResponseJSON struct {
	Rows []dailyProductJSON `json:"rows"`
}

type meterpointAgreementJSON struct {
	AgreementID int64   `json:"agreementId"`
	Region      *string `json:"region"`
	ProductID   string  `json:"productId"`
	DisplayName *string `json:"displayName"`
	IsVariable  *bool   `json:"isVariable"`
	AccountID   string  `json:"accountId,omitempty"`
	ValidFrom   *string `json:"validFrom"`
	ValidTo     *string `json:"validTo"`
}

type meterpointAgreementsResponseJSON struct {
	MeterpointID string                    `json:"meterpointId"`
	Agreements   []meterpointAgreementJSON `json:"agreements"`
}

type apiErrorJSON struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"requestId,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

// optionalString maps an empty wire string to JSON null.
func optionalString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
