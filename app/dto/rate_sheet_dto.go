package dto

import "github.com/shopspring/decimal"

// AdminImportRateRowsRequest is a rate sheet submitted as already parsed rows.
// Each row maps a heading to its cell; a null cell is an absent value.
type AdminImportRateRowsRequest struct {
	CustomerID   uint                 `json:"customer_id" validate:"required,gt=0"`
	Type         string               `json:"type" validate:"required,max=16"`
	SkidByWeight bool                 `json:"skid_by_weight"`
	SourceName   string               `json:"source_name" validate:"omitempty,max=255"`
	Rows         []map[string]*string `json:"rows" validate:"required,min=1"`
}

// AdminImportRateSheetForm is the multipart form of a spreadsheet upload.
type AdminImportRateSheetForm struct {
	CustomerID   uint   `form:"customer_id" validate:"required,gt=0"`
	Type         string `form:"type" validate:"required,max=16"`
	SkidByWeight bool   `form:"skid_by_weight"`
}

type ImportRowErrorItem struct {
	Row   int    `json:"row"`
	Error string `json:"error"`
}

type AdminImportRateSheetResponse struct {
	Message        string               `json:"message"`
	BatchID        string               `json:"batch_id"`
	Status         string               `json:"status"`
	RowCount       int                  `json:"row_count"`
	RecordCount    int                  `json:"record_count"`
	AttributeCount int                  `json:"attribute_count"`
	FailedRows     int                  `json:"failed_rows"`
	Cancelled      bool                 `json:"cancelled"`
	Errors         []ImportRowErrorItem `json:"errors,omitempty"`
}

type AdminImportBatchItem struct {
	ID             string  `json:"id"`
	CustomerID     uint    `json:"customer_id"`
	Type           string  `json:"type"`
	Status         string  `json:"status"`
	SkidByWeight   bool    `json:"skid_by_weight"`
	Atomic         bool    `json:"atomic"`
	SourceName     string  `json:"source_name,omitempty"`
	RowCount       int     `json:"row_count"`
	RecordCount    int     `json:"record_count"`
	AttributeCount int     `json:"attribute_count"`
	FailedRows     int     `json:"failed_rows"`
	CreatedAt      string  `json:"created_at"`
	CompletedAt    *string `json:"completed_at,omitempty"`
}

type AdminListImportBatchesResponse struct {
	Message string                 `json:"message"`
	Items   []AdminImportBatchItem `json:"items"`
}

type AdminRollbackImportBatchResponse struct {
	Message string               `json:"message"`
	Batch   AdminImportBatchItem `json:"batch"`
}

type RateAttributeItem struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type AdminRateRecordItem struct {
	ID               uint                `json:"id"`
	CustomerID       uint                `json:"customer_id"`
	Type             string              `json:"type"`
	ImportBatchID    string              `json:"import_batch_id"`
	IsActive         bool                `json:"is_active"`
	DestinationCity  *string             `json:"destination_city"`
	Province         *string             `json:"province"`
	PostalCode       *string             `json:"postal_code"`
	RateCode         *string             `json:"rate_code"`
	External         string              `json:"external"`
	PrioritySequence int                 `json:"priority_sequence"`
	MinRate          *string             `json:"min_rate"`
	LTL              *string             `json:"ltl"`
	SkidByWeight     bool                `json:"skid_by_weight"`
	Attributes       []RateAttributeItem `json:"attributes"`
	CreatedAt        string              `json:"created_at"`
}

type AdminListRateRecordsResponse struct {
	Message string                `json:"message"`
	Items   []AdminRateRecordItem `json:"items"`
}

// AdminInvalidateRateCacheRequest drops the cached records of one
// customer and service type.
type AdminInvalidateRateCacheRequest struct {
	CustomerID uint   `json:"customer_id" validate:"required,gt=0"`
	Type       string `json:"type" validate:"required,max=16"`
}

type AdminInvalidateRateCacheResponse struct {
	Message string `json:"message"`
}

// ResolveRateRequest describes the shipment to price. At least one of
// destination_city, postal_code and province is needed.
type ResolveRateRequest struct {
	CustomerID        uint              `json:"customer_id" validate:"required,gt=0"`
	Type              string            `json:"type" validate:"required,max=16"`
	DestinationCity   string            `json:"destination_city" validate:"omitempty,max=255"`
	Province          string            `json:"province" validate:"omitempty,max=100"`
	PostalCode        string            `json:"postal_code" validate:"omitempty,max=20"`
	Weight            decimal.Decimal   `json:"weight"`
	SkidCount         int               `json:"skid_count" validate:"gte=0"`
	ServiceAttributes map[string]string `json:"service_attributes,omitempty"`
}

type RateTraceItem struct {
	RecordID         uint   `json:"record_id"`
	PrioritySequence int    `json:"priority_sequence"`
	Outcome          string `json:"outcome"`
	Detail           string `json:"detail,omitempty"`
}

type ResolveRateResponse struct {
	Message    string          `json:"message"`
	Matched    bool            `json:"matched"`
	RecordID   uint            `json:"record_id,omitempty"`
	RateCode   *string         `json:"rate_code,omitempty"`
	Price      string          `json:"price,omitempty"`
	Bracket    string          `json:"bracket,omitempty"`
	MinApplied bool            `json:"min_applied"`
	MatchedOn  string          `json:"matched_on,omitempty"`
	Trace      []RateTraceItem `json:"trace,omitempty"`
}
