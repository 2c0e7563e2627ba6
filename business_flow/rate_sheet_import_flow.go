package businessflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/amirphl/freightdesk/models"
	"github.com/amirphl/freightdesk/repository"
	"github.com/amirphl/freightdesk/utils"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ImportRequest is one rate sheet upload for a customer and service type.
type ImportRequest struct {
	CustomerID   uint
	Type         string
	SkidByWeight bool
	Rows         []RateRow
	SourceName   string

	// SourceLines, when set, holds the file line of each row and is used to
	// number row errors. Without it rows are numbered from 1.
	SourceLines []int
}

func (r ImportRequest) rowNumber(i int) int {
	if i < len(r.SourceLines) && r.SourceLines[i] > 0 {
		return r.SourceLines[i]
	}
	return i + 1
}

// ImportResult summarizes a finished (or cancelled) import.
type ImportResult struct {
	BatchID        string
	Status         string
	RowCount       int
	RecordCount    int
	AttributeCount int
	Errors         []models.ImportRowError
	Cancelled      bool
}

// RecordQuery selects records for the admin listing. Tab is a rate type or
// "all"; ActiveOnly hides superseded and rolled back records.
type RecordQuery struct {
	CustomerID uint
	Tab        string
	BatchID    string
	ActiveOnly bool
	Limit      int
	Offset     int
}

// RateSheetImportFlow handles rate sheet ingestion and batch administration
type RateSheetImportFlow interface {
	ImportBatch(ctx context.Context, req ImportRequest) (*ImportResult, error)
	ImportFile(ctx context.Context, customerID uint, rateType string, skidByWeight bool, filename string, r io.Reader) (*ImportResult, error)
	ListBatches(ctx context.Context, customerID uint, rateType string, limit, offset int) ([]*models.ImportBatch, error)
	RollbackBatch(ctx context.Context, batchID string) (*models.ImportBatch, error)
	ListRecords(ctx context.Context, q RecordQuery) ([]*models.RateRecord, error)
	InvalidateCache(ctx context.Context, customerID uint, rateType string) error
}

// RateSheetImportFlowImpl implements the rate sheet import flow
type RateSheetImportFlowImpl struct {
	storage    RateStorage
	recordRepo repository.RateRecordRepository
	batchRepo  repository.ImportBatchRepository
	cache      *RateLookupCache
	audit      auditRecorder
	db         *gorm.DB
	cfg        *EngineConfig
	logger     *zap.Logger
}

// NewRateSheetImportFlow creates a new rate sheet import flow instance
func NewRateSheetImportFlow(
	storage RateStorage,
	recordRepo repository.RateRecordRepository,
	batchRepo repository.ImportBatchRepository,
	auditRepo repository.AuditLogRepository,
	cache *RateLookupCache,
	db *gorm.DB,
	cfg *EngineConfig,
	logger *zap.Logger,
) RateSheetImportFlow {
	if cfg == nil {
		cfg = DefaultEngineConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RateSheetImportFlowImpl{
		storage:    storage,
		recordRepo: recordRepo,
		batchRepo:  batchRepo,
		cache:      cache,
		audit:      auditRecorder{repo: auditRepo, logger: logger},
		db:         db,
		cfg:        cfg,
		logger:     logger,
	}
}

// ImportBatch writes one record (and its attributes) per row under a fresh
// batch id. Records stay inactive until the batch completes, then replace
// the previously active batch for the same customer and type.
func (s *RateSheetImportFlowImpl) ImportBatch(ctx context.Context, req ImportRequest) (*ImportResult, error) {
	if req.CustomerID == 0 {
		return nil, validationError("CUSTOMER_ID_REQUIRED", "Customer ID is required")
	}
	rateType := NormalizeRateType(req.Type)
	if rateType == "" {
		return nil, validationError("RATE_TYPE_REQUIRED", "Rate type is required")
	}
	if s.cfg.MaxUploadRows > 0 && len(req.Rows) > s.cfg.MaxUploadRows {
		return nil, NewBusinessErrorf("RATE_SHEET_TOO_LARGE", "Rate sheet has %d rows, the limit is %d",
			fmt.Errorf("%w: %w", ErrValidation, ErrSheetTooLarge), len(req.Rows), s.cfg.MaxUploadRows)
	}

	batch := &models.ImportBatch{
		ID:           ulid.Make().String(),
		CustomerID:   req.CustomerID,
		Type:         rateType,
		Status:       models.ImportBatchStatusPending,
		SkidByWeight: req.SkidByWeight,
		Atomic:       s.cfg.AtomicBatches,
		SourceName:   req.SourceName,
		RowCount:     len(req.Rows),
	}
	if err := s.batchRepo.Save(ctx, batch); err != nil {
		return nil, storageError("IMPORT_BATCH_CREATE_FAILED", "Failed to create import batch", err)
	}

	result := &ImportResult{BatchID: batch.ID, RowCount: len(req.Rows)}

	var importErr error
	if s.cfg.AtomicBatches {
		importErr = s.importAtomic(ctx, req, batch.ID, result)
	} else {
		s.importPerRow(ctx, req, batch.ID, result)
	}

	// The batch must reach a final status even if the caller went away.
	finalCtx := context.WithoutCancel(ctx)
	if importErr != nil {
		s.fail(finalCtx, batch, result, importErr)
		return nil, importErr
	}
	if err := s.complete(finalCtx, batch, result); err != nil {
		return nil, err
	}
	return result, nil
}

// ImportFile reads an uploaded spreadsheet and imports its rows.
func (s *RateSheetImportFlowImpl) ImportFile(ctx context.Context, customerID uint, rateType string, skidByWeight bool, filename string, r io.Reader) (*ImportResult, error) {
	sheet, err := ReadRateSheet(filename, r, s.cfg.MaxUploadRows)
	if err != nil {
		if isSheetError(err) && !errors.Is(err, ErrValidation) {
			err = NewBusinessError(ErrorCode(err), "Invalid rate sheet", fmt.Errorf("%w: %w", ErrValidation, err))
		}
		return nil, err
	}
	return s.ImportBatch(ctx, ImportRequest{
		CustomerID:   customerID,
		Type:         rateType,
		SkidByWeight: skidByWeight,
		Rows:         sheet.Rows,
		SourceName:   filename,
		SourceLines:  sheet.Lines,
	})
}

func (s *RateSheetImportFlowImpl) importPerRow(ctx context.Context, req ImportRequest, batchID string, result *ImportResult) {
	for i, row := range req.Rows {
		if ctx.Err() != nil {
			result.Cancelled = true
			return
		}

		attrs, err := s.importRow(ctx, req, batchID, row)
		if err != nil {
			result.Errors = append(result.Errors, models.ImportRowError{Row: req.rowNumber(i), Error: err.Error()})
			rateSheetRows.WithLabelValues("failed").Inc()
			continue
		}
		result.RecordCount++
		result.AttributeCount += attrs
		rateSheetRows.WithLabelValues("imported").Inc()
	}
}

func (s *RateSheetImportFlowImpl) importAtomic(ctx context.Context, req ImportRequest, batchID string, result *ImportResult) error {
	var records, attributes int
	var rowErrors []models.ImportRowError

	err := s.inTx(ctx, func(txCtx context.Context) error {
		for i, row := range req.Rows {
			if err := txCtx.Err(); err != nil {
				result.Cancelled = true
				return err
			}

			attrs, err := s.importRow(txCtx, req, batchID, row)
			if IsValidation(err) {
				rowErrors = append(rowErrors, models.ImportRowError{Row: req.rowNumber(i), Error: err.Error()})
				continue
			}
			if err != nil {
				return NewBusinessErrorf("RATE_SHEET_ROW_FAILED", "Failed to import row %d", err, req.rowNumber(i))
			}
			records++
			attributes += attrs
		}
		return nil
	})

	if result.Cancelled {
		return nil
	}
	if err != nil {
		rateSheetRows.WithLabelValues("failed").Add(float64(len(req.Rows)))
		return err
	}

	result.RecordCount = records
	result.AttributeCount = attributes
	result.Errors = rowErrors
	rateSheetRows.WithLabelValues("imported").Add(float64(records))
	rateSheetRows.WithLabelValues("failed").Add(float64(len(rowErrors)))
	return nil
}

// importRow persists the record first and then its attributes, inside one
// transaction so a row is written completely or not at all.
func (s *RateSheetImportFlowImpl) importRow(ctx context.Context, req ImportRequest, batchID string, row RateRow) (int, error) {
	if rowIsBlank(row) {
		return 0, validationError("RATE_SHEET_ROW_EMPTY", "Row has no data")
	}

	record, leftovers := NormalizeRateRow(row, req.CustomerID, req.Type, req.SkidByWeight, batchID)
	record.IsActive = false

	names := make([]string, 0, len(leftovers))
	for name := range leftovers {
		names = append(names, name)
	}
	sort.Strings(names)

	err := s.inTx(ctx, func(txCtx context.Context) error {
		if err := s.storage.CreateRecord(txCtx, &record); err != nil {
			return storageError("RATE_RECORD_CREATE_FAILED", "Failed to save rate record", err)
		}

		attrs := make([]*models.RateAttribute, 0, len(names))
		for _, name := range names {
			attrs = append(attrs, &models.RateAttribute{
				RateRecordID: record.ID,
				Name:         name,
				Value:        leftovers[name],
			})
		}
		if err := s.storage.CreateAttributes(txCtx, attrs); err != nil {
			return storageError("RATE_ATTRIBUTE_CREATE_FAILED", "Failed to save rate attributes", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(names), nil
}

// complete activates the batch, supersedes the previous one and drops the
// cached rates for the key. A batch that wrote nothing is marked failed.
func (s *RateSheetImportFlowImpl) complete(ctx context.Context, batch *models.ImportBatch, result *ImportResult) error {
	batch.RecordCount = result.RecordCount
	batch.AttributeCount = result.AttributeCount
	batch.FailedRows = len(result.Errors)
	batch.CompletedAt = utils.UTCNowPtr()
	if err := batch.SetRowErrors(result.Errors); err != nil {
		return NewBusinessError("IMPORT_BATCH_ERRORS_ENCODE_FAILED", "Failed to encode row errors", err)
	}

	if result.RecordCount == 0 {
		batch.Status = models.ImportBatchStatusFailed
		result.Status = batch.Status
		if err := s.batchRepo.Update(ctx, batch); err != nil {
			return storageError("IMPORT_BATCH_UPDATE_FAILED", "Failed to update import batch", err)
		}
		s.audit.record(ctx, models.AuditActionRateSheetImportFailed, batch.CustomerID, false,
			fmt.Sprintf("Rate sheet import %s wrote no records", batch.ID), s.batchMetadata(batch, result), nil)
		s.logger.Warn("rate sheet import wrote no records",
			zap.String("batch_id", batch.ID),
			zap.Int("rows", result.RowCount),
			zap.Int("failed_rows", batch.FailedRows),
			zap.Bool("cancelled", result.Cancelled))
		return nil
	}

	var superseded []string
	err := s.inTx(ctx, func(txCtx context.Context) error {
		active, err := s.batchRepo.ActiveByKey(txCtx, batch.CustomerID, batch.Type)
		if err != nil {
			return err
		}
		for _, old := range active {
			if old.ID == batch.ID {
				continue
			}
			old.Status = models.ImportBatchStatusSuperseded
			if err := s.batchRepo.Update(txCtx, old); err != nil {
				return err
			}
			if _, err := s.recordRepo.SetActiveByBatch(txCtx, old.ID, false); err != nil {
				return err
			}
			superseded = append(superseded, old.ID)
		}

		if _, err := s.recordRepo.SetActiveByBatch(txCtx, batch.ID, true); err != nil {
			return err
		}
		batch.Status = models.ImportBatchStatusActive
		return s.batchRepo.Update(txCtx, batch)
	})
	if err != nil {
		return storageError("IMPORT_BATCH_ACTIVATE_FAILED", "Failed to activate import batch", err)
	}
	result.Status = batch.Status

	s.invalidate(ctx, batch.CustomerID, batch.Type)

	meta := s.batchMetadata(batch, result)
	if len(superseded) > 0 {
		meta["superseded"] = superseded
	}
	s.audit.record(ctx, models.AuditActionRateSheetImported, batch.CustomerID, true,
		fmt.Sprintf("Rate sheet imported as batch %s", batch.ID), meta, nil)

	s.logger.Info("rate sheet imported",
		zap.String("batch_id", batch.ID),
		zap.Uint("customer_id", batch.CustomerID),
		zap.String("type", batch.Type),
		zap.Int("records", batch.RecordCount),
		zap.Int("attributes", batch.AttributeCount),
		zap.Int("failed_rows", batch.FailedRows),
		zap.Strings("superseded", superseded),
		zap.Bool("cancelled", result.Cancelled))
	return nil
}

func (s *RateSheetImportFlowImpl) fail(ctx context.Context, batch *models.ImportBatch, result *ImportResult, cause error) {
	batch.Status = models.ImportBatchStatusFailed
	batch.CompletedAt = utils.UTCNowPtr()
	result.Status = batch.Status
	if err := s.batchRepo.Update(ctx, batch); err != nil {
		s.logger.Error("failed to mark import batch failed", zap.String("batch_id", batch.ID), zap.Error(err))
	}

	s.audit.record(ctx, models.AuditActionRateSheetImportFailed, batch.CustomerID, false,
		fmt.Sprintf("Rate sheet import %s rolled back", batch.ID), s.batchMetadata(batch, result), cause)
	s.logger.Error("rate sheet import rolled back",
		zap.String("batch_id", batch.ID),
		zap.Uint("customer_id", batch.CustomerID),
		zap.String("type", batch.Type),
		zap.Error(cause))
}

func (s *RateSheetImportFlowImpl) batchMetadata(batch *models.ImportBatch, result *ImportResult) map[string]any {
	return map[string]any{
		"batch_id":    batch.ID,
		"type":        batch.Type,
		"source":      batch.SourceName,
		"rows":        result.RowCount,
		"records":     result.RecordCount,
		"attributes":  result.AttributeCount,
		"failed_rows": len(result.Errors),
		"cancelled":   result.Cancelled,
	}
}

// ListBatches returns the batches for a customer, newest first. An empty
// type lists every type.
func (s *RateSheetImportFlowImpl) ListBatches(ctx context.Context, customerID uint, rateType string, limit, offset int) ([]*models.ImportBatch, error) {
	if customerID == 0 {
		return nil, validationError("CUSTOMER_ID_REQUIRED", "Customer ID is required")
	}

	filter := models.ImportBatchFilter{CustomerID: &customerID}
	if t := NormalizeRateType(rateType); t != "" {
		filter.Type = &t
	}

	batches, err := s.batchRepo.ByFilter(ctx, filter, "", limit, offset)
	if err != nil {
		return nil, storageError("IMPORT_BATCH_LIST_FAILED", "Failed to list import batches", err)
	}
	return batches, nil
}

// RollbackBatch retires the active batch and brings back the most recently
// superseded one for the same customer and type, if there is one.
func (s *RateSheetImportFlowImpl) RollbackBatch(ctx context.Context, batchID string) (*models.ImportBatch, error) {
	batchID = strings.TrimSpace(batchID)
	if batchID == "" {
		return nil, validationError("IMPORT_BATCH_ID_REQUIRED", "Import batch ID is required")
	}

	batch, err := s.batchRepo.ByBatchID(ctx, batchID)
	if err != nil {
		return nil, storageError("IMPORT_BATCH_LOOKUP_FAILED", "Failed to look up import batch", err)
	}
	if batch == nil {
		return nil, NewBusinessErrorf("IMPORT_BATCH_NOT_FOUND", "Import batch %s not found", ErrImportBatchNotFound, batchID)
	}
	if batch.Status != models.ImportBatchStatusActive {
		return nil, NewBusinessErrorf("IMPORT_BATCH_NOT_ACTIVE", "Import batch %s is %s", ErrImportBatchNotActive, batchID, batch.Status)
	}

	var restored *models.ImportBatch
	err = s.inTx(ctx, func(txCtx context.Context) error {
		batch.Status = models.ImportBatchStatusRolledBack
		if err := s.batchRepo.Update(txCtx, batch); err != nil {
			return err
		}
		if _, err := s.recordRepo.SetActiveByBatch(txCtx, batch.ID, false); err != nil {
			return err
		}

		prev, err := s.batchRepo.LatestSupersededByKey(txCtx, batch.CustomerID, batch.Type)
		if err != nil || prev == nil {
			return err
		}
		prev.Status = models.ImportBatchStatusActive
		if err := s.batchRepo.Update(txCtx, prev); err != nil {
			return err
		}
		if _, err := s.recordRepo.SetActiveByBatch(txCtx, prev.ID, true); err != nil {
			return err
		}
		restored = prev
		return nil
	})
	if err != nil {
		return nil, storageError("IMPORT_BATCH_ROLLBACK_FAILED", "Failed to roll back import batch", err)
	}

	s.invalidate(ctx, batch.CustomerID, batch.Type)

	meta := map[string]any{"batch_id": batch.ID, "type": batch.Type}
	if restored != nil {
		meta["restored"] = restored.ID
	}
	s.audit.record(ctx, models.AuditActionImportBatchRolledBack, batch.CustomerID, true,
		fmt.Sprintf("Import batch %s rolled back", batch.ID), meta, nil)

	s.logger.Info("import batch rolled back",
		zap.String("batch_id", batch.ID),
		zap.Uint("customer_id", batch.CustomerID),
		zap.String("type", batch.Type),
		zap.Bool("restored_previous", restored != nil))
	return batch, nil
}

// ListRecords returns records for the admin listing.
func (s *RateSheetImportFlowImpl) ListRecords(ctx context.Context, q RecordQuery) ([]*models.RateRecord, error) {
	if q.CustomerID == 0 {
		return nil, validationError("CUSTOMER_ID_REQUIRED", "Customer ID is required")
	}

	filter := models.RateRecordFilter{CustomerID: &q.CustomerID}
	if q.BatchID != "" {
		filter.ImportBatchID = &q.BatchID
	}
	// Narrow in SQL so limit and offset page over the tab, not over every type.
	if tab := NormalizeRateType(q.Tab); tab != "" && tab != "ALL" {
		filter.Type = &tab
	}
	if q.ActiveOnly {
		active := true
		filter.IsActive = &active
	}

	records, err := s.recordRepo.ByFilter(ctx, filter, "", q.Limit, q.Offset)
	if err != nil {
		return nil, storageError("RATE_RECORD_LIST_FAILED", "Failed to list rate records", err)
	}

	preds := []models.RateRecordPredicate{models.RateTypeTab(q.Tab)}
	if q.ActiveOnly {
		preds = append(preds, models.ActiveRecords)
	}
	return models.FilterRateRecords(records, preds...), nil
}

// InvalidateCache drops the cached rates for a key on operator request.
func (s *RateSheetImportFlowImpl) InvalidateCache(ctx context.Context, customerID uint, rateType string) error {
	if customerID == 0 {
		return validationError("CUSTOMER_ID_REQUIRED", "Customer ID is required")
	}
	rateType = NormalizeRateType(rateType)
	if rateType == "" {
		return validationError("RATE_TYPE_REQUIRED", "Rate type is required")
	}
	if s.cache == nil {
		return nil
	}

	err := s.cache.Invalidate(ctx, customerID, rateType)
	s.audit.record(ctx, models.AuditActionRateCacheInvalidated, customerID, err == nil,
		fmt.Sprintf("Rate cache invalidated for %s", rateType), map[string]any{"type": rateType}, err)
	return err
}

func (s *RateSheetImportFlowImpl) invalidate(ctx context.Context, customerID uint, rateType string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, customerID, rateType); err != nil {
		s.logger.Warn("failed to invalidate rate cache after batch change",
			zap.Uint("customer_id", customerID),
			zap.String("type", rateType),
			zap.Error(err))
	}
}

func (s *RateSheetImportFlowImpl) inTx(ctx context.Context, fn func(context.Context) error) error {
	if s.db == nil {
		return fn(ctx)
	}
	return repository.WithTransaction(ctx, s.db, fn)
}
