// Package analyticsv1 defines the meteretl.analytics.v1.AnalyticsService gRPC contract.
//
// Messages travel as google.protobuf.Struct on the wire and are exposed to Go code as
// plain structs. The JSON field names below are the wire field names.
package analyticsv1

import (
	"encoding/json"
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

type ListActiveAgreementsRequest struct {
	ReferenceDate string `json:"reference_date"`
}

type ActiveAgreement struct {
	AgreementID  int64   `json:"agreement_id"`
	MeterpointID string  `json:"meterpoint_id"`
	DisplayName  *string `json:"display_name"`
	IsVariable   *bool   `json:"is_variable"`
}

type ListActiveAgreementsResponse struct {
	ReferenceDate string             `json:"reference_date"`
	Agreements    []*ActiveAgreement `json:"agreements"`
}

type ListHalfHourlyConsumptionRequest struct {
	Start     *time.Time `json:"start,omitempty"`
	End       *time.Time `json:"end,omitempty"`
	PageSize  int32      `json:"page_size,omitempty"`
	PageToken string     `json:"page_token,omitempty"`
}

type HalfHourlyConsumption struct {
	Datetime            time.Time `json:"datetime"`
	MeterpointCount     int64     `json:"meterpoint_count"`
	TotalConsumptionKWh float64   `json:"total_consumption_kwh"`
}

type ListHalfHourlyConsumptionResponse struct {
	Rows          []*HalfHourlyConsumption `json:"rows"`
	NextPageToken string                   `json:"next_page_token,omitempty"`
}

type ListDailyProductConsumptionRequest struct {
	Start *time.Time `json:"start,omitempty"`
	End   *time.Time `json:"end,omitempty"`
}

type DailyProductConsumption struct {
	ProductDisplayName  string  `json:"product_display_name"`
	Date                string  `json:"date"`
	MeterpointCount     int64   `json:"meterpoint_count"`
	TotalConsumptionKWh float64 `json:"total_consumption_kwh"`
}

type ListDailyProductConsumptionResponse struct {
	Rows []*DailyProductConsumption `json:"rows"`
}

type GetMeterpointHistoryRequest struct {
	MeterpointID string `json:"meterpoint_id"`
}

// MeterpointAgreement dates are YYYY-MM-DD. ValidFrom is empty when the agreement
// has no start date and ValidTo is empty when it is open-ended.
type MeterpointAgreement struct {
	AgreementID  int64   `json:"agreement_id"`
	MeterpointID string  `json:"meterpoint_id"`
	Region       *string `json:"region"`
	ProductID    string  `json:"product_id"`
	DisplayName  *string `json:"display_name"`
	IsVariable   *bool   `json:"is_variable"`
	AccountID    string  `json:"account_id,omitempty"`
	ValidFrom    string  `json:"valid_from,omitempty"`
	ValidTo      string  `json:"valid_to,omitempty"`
}

type GetMeterpointHistoryResponse struct {
	MeterpointID string                 `json:"meterpoint_id"`
	Agreements   []*MeterpointAgreement `json:"agreements"`
}

// ToStruct encodes a message as a protobuf Struct.
func ToStruct(msg any) (*structpb.Struct, error) {
	b, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode %T: %w", msg, err)
	}
	s := &structpb.Struct{}
	if err := protojson.Unmarshal(b, s); err != nil {
		return nil, fmt.Errorf("encode %T: %w", msg, err)
	}
	return s, nil
}

// FromStruct decodes s into the message pointed to by dst.
func FromStruct(s *structpb.Struct, dst any) error {
	if s == nil {
		s = &structpb.Struct{}
	}
	b, err := protojson.Marshal(s)
	if err != nil {
		return fmt.Errorf("decode %T: %w", dst, err)
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return fmt.Errorf("decode %T: %w", dst, err)
	}
	return nil
}
