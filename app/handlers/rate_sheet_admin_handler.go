package handlers

import (
	"strconv"
	"strings"

	"github.com/amirphl/freightdesk/app/dto"
	businessflow "github.com/amirphl/freightdesk/business_flow"
	"github.com/amirphl/freightdesk/models"
	"github.com/amirphl/freightdesk/utils"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"go.uber.org/zap"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// RateSheetAdminHandlerInterface defines admin endpoints for rate sheets.
type RateSheetAdminHandlerInterface interface {
	ImportRateSheet(c fiber.Ctx) error
	ImportRateRows(c fiber.Ctx) error
	ListImportBatches(c fiber.Ctx) error
	RollbackImportBatch(c fiber.Ctx) error
	ListRateRecords(c fiber.Ctx) error
	InvalidateRateCache(c fiber.Ctx) error
	DownloadRateSheetTemplate(c fiber.Ctx) error
}

// RateSheetAdminHandler implements admin endpoints for rate sheets.
type RateSheetAdminHandler struct {
	flow      businessflow.RateSheetImportFlow
	validator *validator.Validate
	logger    *zap.Logger
}

func NewRateSheetAdminHandler(flow businessflow.RateSheetImportFlow, logger *zap.Logger) RateSheetAdminHandlerInterface {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RateSheetAdminHandler{
		flow:      flow,
		validator: validator.New(),
		logger:    logger,
	}
}

func (h *RateSheetAdminHandler) ErrorResponse(c fiber.Ctx, status int, message, code string, details any) error {
	return errorResponse(c, status, message, code, details)
}

func (h *RateSheetAdminHandler) SuccessResponse(c fiber.Ctx, status int, message string, data any) error {
	return successResponse(c, status, message, data)
}

// ImportRateSheet uploads an xlsx or csv rate sheet.
// @Summary Import Rate Sheet (Admin)
// @Description Upload a spreadsheet; each data row becomes one rate record plus attributes
// @Tags Admin Rate Sheets
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "Rate sheet (.xlsx or .csv)"
// @Param customer_id formData int true "Customer ID"
// @Param type formData string true "Service type (LTL, FTL)"
// @Param skid_by_weight formData bool false "Brackets are weight thresholds"
// @Success 200 {object} dto.APIResponse{data=dto.AdminImportRateSheetResponse}
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 500 {object} dto.APIResponse "Import failed"
// @Router /api/v1/admin/rate-sheets/import [post]
func (h *RateSheetAdminHandler) ImportRateSheet(c fiber.Ctx) error {
	var form dto.AdminImportRateSheetForm
	customerID, err := strconv.ParseUint(strings.TrimSpace(c.FormValue("customer_id")), 10, 32)
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid customer_id", "INVALID_REQUEST", "customer_id must be a positive integer")
	}
	form.CustomerID = uint(customerID)
	form.Type = strings.TrimSpace(c.FormValue("type"))
	if raw := strings.TrimSpace(c.FormValue("skid_by_weight")); raw != "" {
		if form.SkidByWeight, err = strconv.ParseBool(raw); err != nil {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid skid_by_weight", "INVALID_REQUEST", "skid_by_weight must be a boolean")
		}
	}
	if err := h.validator.Struct(&form); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationMessages(err))
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "File is required", "FILE_REQUIRED", nil)
	}
	file, err := fileHeader.Open()
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Failed to read uploaded file", "FILE_READ_FAILED", nil)
	}
	defer file.Close()

	ctx, cancel := requestContext(c, "/api/v1/admin/rate-sheets/import", utils.ImportRequestTimeout)
	defer cancel()

	res, err := h.flow.ImportFile(ctx, form.CustomerID, form.Type, form.SkidByWeight, fileHeader.Filename, file)
	if err != nil {
		return flowErrorResponse(c, h.logger, err, "Rate sheet import failed", "RATE_SHEET_IMPORT_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Rate sheet imported", toImportResponse(res))
}

// ImportRateRows imports a rate sheet that was already parsed by the caller.
// @Summary Import Rate Rows (Admin)
// @Tags Admin Rate Sheets
// @Accept json
// @Produce json
// @Param request body dto.AdminImportRateRowsRequest true "Rows payload"
// @Success 200 {object} dto.APIResponse{data=dto.AdminImportRateSheetResponse}
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 500 {object} dto.APIResponse "Import failed"
// @Router /api/v1/admin/rate-sheets/import-rows [post]
func (h *RateSheetAdminHandler) ImportRateRows(c fiber.Ctx) error {
	var req dto.AdminImportRateRowsRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if err := h.validator.Struct(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationMessages(err))
	}

	rows := make([]businessflow.RateRow, len(req.Rows))
	for i, r := range req.Rows {
		rows[i] = businessflow.RateRow(r)
	}

	ctx, cancel := requestContext(c, "/api/v1/admin/rate-sheets/import-rows", utils.ImportRequestTimeout)
	defer cancel()

	res, err := h.flow.ImportBatch(ctx, businessflow.ImportRequest{
		CustomerID:   req.CustomerID,
		Type:         req.Type,
		SkidByWeight: req.SkidByWeight,
		Rows:         rows,
		SourceName:   req.SourceName,
	})
	if err != nil {
		return flowErrorResponse(c, h.logger, err, "Rate sheet import failed", "RATE_SHEET_IMPORT_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Rate sheet imported", toImportResponse(res))
}

// ListImportBatches lists import batches, newest first.
// @Summary List Import Batches (Admin)
// @Tags Admin Rate Sheets
// @Produce json
// @Param customer_id query int false "Customer ID"
// @Param type query string false "Service type"
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {object} dto.APIResponse{data=dto.AdminListImportBatchesResponse}
// @Router /api/v1/admin/rate-sheets/batches [get]
func (h *RateSheetAdminHandler) ListImportBatches(c fiber.Ctx) error {
	customerID, err := queryUint(c, "customer_id")
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid query", "INVALID_REQUEST", err.Error())
	}
	limit, err := queryInt(c, "limit", 50)
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid query", "INVALID_REQUEST", err.Error())
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid query", "INVALID_REQUEST", err.Error())
	}

	ctx, cancel := requestContext(c, "/api/v1/admin/rate-sheets/batches", utils.DefaultRequestTimeout)
	defer cancel()

	batches, err := h.flow.ListBatches(ctx, customerID, c.Query("type"), limit, offset)
	if err != nil {
		return flowErrorResponse(c, h.logger, err, "List import batches failed", "IMPORT_BATCH_LIST_FAILED")
	}

	items := make([]dto.AdminImportBatchItem, 0, len(batches))
	for _, b := range batches {
		items = append(items, toImportBatchItem(b))
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Import batches retrieved", dto.AdminListImportBatchesResponse{
		Message: "Import batches retrieved",
		Items:   items,
	})
}

// RollbackImportBatch deactivates an active batch and restores the one it superseded.
// @Summary Rollback Import Batch (Admin)
// @Tags Admin Rate Sheets
// @Produce json
// @Param batch_id path string true "Batch ID"
// @Success 200 {object} dto.APIResponse{data=dto.AdminRollbackImportBatchResponse}
// @Failure 404 {object} dto.APIResponse "Batch not found"
// @Failure 409 {object} dto.APIResponse "Batch not active"
// @Router /api/v1/admin/rate-sheets/batches/{batch_id}/rollback [post]
func (h *RateSheetAdminHandler) RollbackImportBatch(c fiber.Ctx) error {
	ctx, cancel := requestContext(c, "/api/v1/admin/rate-sheets/batches/:batch_id/rollback", utils.DefaultRequestTimeout)
	defer cancel()

	batch, err := h.flow.RollbackBatch(ctx, c.Params("batch_id"))
	if err != nil {
		return flowErrorResponse(c, h.logger, err, "Rollback import batch failed", "IMPORT_BATCH_ROLLBACK_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Import batch rolled back", dto.AdminRollbackImportBatchResponse{
		Message: "Import batch rolled back",
		Batch:   toImportBatchItem(batch),
	})
}

// ListRateRecords lists rate records for one customer, filtered by a type tab.
// @Summary List Rate Records (Admin)
// @Tags Admin Rate Sheets
// @Produce json
// @Param customer_id query int true "Customer ID"
// @Param type query string false "Service type or all"
// @Param batch_id query string false "Import batch"
// @Param active query bool false "Only active records (default true)"
// @Success 200 {object} dto.APIResponse{data=dto.AdminListRateRecordsResponse}
// @Router /api/v1/admin/rate-sheets/records [get]
func (h *RateSheetAdminHandler) ListRateRecords(c fiber.Ctx) error {
	customerID, err := queryUint(c, "customer_id")
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid query", "INVALID_REQUEST", err.Error())
	}
	active, err := queryBool(c, "active", true)
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid query", "INVALID_REQUEST", err.Error())
	}
	limit, err := queryInt(c, "limit", 0)
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid query", "INVALID_REQUEST", err.Error())
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid query", "INVALID_REQUEST", err.Error())
	}

	ctx, cancel := requestContext(c, "/api/v1/admin/rate-sheets/records", utils.DefaultRequestTimeout)
	defer cancel()

	records, err := h.flow.ListRecords(ctx, businessflow.RecordQuery{
		CustomerID: customerID,
		Tab:        c.Query("type", "all"),
		BatchID:    c.Query("batch_id"),
		ActiveOnly: active,
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		return flowErrorResponse(c, h.logger, err, "List rate records failed", "RATE_RECORD_LIST_FAILED")
	}

	items := make([]dto.AdminRateRecordItem, 0, len(records))
	for _, r := range records {
		items = append(items, toRateRecordItem(r))
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Rate records retrieved", dto.AdminListRateRecordsResponse{
		Message: "Rate records retrieved",
		Items:   items,
	})
}

// InvalidateRateCache drops the cached records for a customer and type.
// @Summary Invalidate Rate Cache (Admin)
// @Tags Admin Rate Sheets
// @Accept json
// @Produce json
// @Param request body dto.AdminInvalidateRateCacheRequest true "Cache key"
// @Success 200 {object} dto.APIResponse{data=dto.AdminInvalidateRateCacheResponse}
// @Router /api/v1/admin/rate-sheets/cache [delete]
func (h *RateSheetAdminHandler) InvalidateRateCache(c fiber.Ctx) error {
	var req dto.AdminInvalidateRateCacheRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if err := h.validator.Struct(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationMessages(err))
	}

	ctx, cancel := requestContext(c, "/api/v1/admin/rate-sheets/cache", utils.DefaultRequestTimeout)
	defer cancel()

	if err := h.flow.InvalidateCache(ctx, req.CustomerID, req.Type); err != nil {
		return flowErrorResponse(c, h.logger, err, "Invalidate rate cache failed", "RATE_CACHE_INVALIDATE_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Rate cache invalidated", dto.AdminInvalidateRateCacheResponse{
		Message: "Rate cache invalidated",
	})
}

// DownloadRateSheetTemplate returns an xlsx with the recognized headings.
// @Summary Download Rate Sheet Template (Admin)
// @Tags Admin Rate Sheets
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Success 200 {file} file
// @Router /api/v1/admin/rate-sheets/template [get]
func (h *RateSheetAdminHandler) DownloadRateSheetTemplate(c fiber.Ctx) error {
	raw, err := businessflow.BuildRateSheetTemplate()
	if err != nil {
		h.logger.Error("build rate sheet template failed", zap.Error(err))
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Template generation failed", "RATE_SHEET_TEMPLATE_FAILED", nil)
	}
	c.Set(fiber.HeaderContentType, xlsxContentType)
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="rate_sheet_template.xlsx"`)
	return c.Status(fiber.StatusOK).Send(raw)
}

func toImportResponse(res *businessflow.ImportResult) dto.AdminImportRateSheetResponse {
	out := dto.AdminImportRateSheetResponse{
		Message:        "Rate sheet imported",
		BatchID:        res.BatchID,
		Status:         res.Status,
		RowCount:       res.RowCount,
		RecordCount:    res.RecordCount,
		AttributeCount: res.AttributeCount,
		FailedRows:     len(res.Errors),
		Cancelled:      res.Cancelled,
	}
	for _, e := range res.Errors {
		out.Errors = append(out.Errors, dto.ImportRowErrorItem{Row: e.Row, Error: e.Error})
	}
	return out
}

func toImportBatchItem(b *models.ImportBatch) dto.AdminImportBatchItem {
	item := dto.AdminImportBatchItem{
		ID:             b.ID,
		CustomerID:     b.CustomerID,
		Type:           b.Type,
		Status:         b.Status,
		SkidByWeight:   b.SkidByWeight,
		Atomic:         b.Atomic,
		SourceName:     b.SourceName,
		RowCount:       b.RowCount,
		RecordCount:    b.RecordCount,
		AttributeCount: b.AttributeCount,
		FailedRows:     b.FailedRows,
		CreatedAt:      formatTime(b.CreatedAt),
	}
	if b.CompletedAt != nil {
		item.CompletedAt = utils.ToPtr(formatTime(*b.CompletedAt))
	}
	return item
}

func toRateRecordItem(r *models.RateRecord) dto.AdminRateRecordItem {
	item := dto.AdminRateRecordItem{
		ID:               r.ID,
		CustomerID:       r.CustomerID,
		Type:             r.Type,
		ImportBatchID:    r.ImportBatchID,
		IsActive:         r.IsActive,
		DestinationCity:  r.DestinationCity,
		Province:         r.Province,
		PostalCode:       r.PostalCode,
		RateCode:         r.RateCode,
		External:         r.External,
		PrioritySequence: r.PrioritySequence,
		SkidByWeight:     r.SkidByWeight,
		Attributes:       make([]dto.RateAttributeItem, 0, len(r.Attributes)),
		CreatedAt:        formatTime(r.CreatedAt),
	}
	if r.MinRate.Valid {
		item.MinRate = utils.ToPtr(r.MinRate.Decimal.String())
	}
	if r.LTL.Valid {
		item.LTL = utils.ToPtr(r.LTL.Decimal.String())
	}
	for _, a := range r.Attributes {
		item.Attributes = append(item.Attributes, dto.RateAttributeItem{Name: a.Name, Value: a.Value})
	}
	return item
}
