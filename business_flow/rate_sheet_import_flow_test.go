package businessflow

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/amirphl/freightdesk/models"
	"github.com/amirphl/freightdesk/repository"
	testingutil "github.com/amirphl/freightdesk/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupImportDB(t *testing.T) *gorm.DB {
	t.Helper()
	testDB, err := testingutil.SetupTestDB()
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := testDB.TeardownTestDB(); err != nil {
			t.Logf("failed to cleanup test database: %v", err)
		}
	})
	return testDB.DB
}

type importHarness struct {
	flow       RateSheetImportFlow
	cache      *RateLookupCache
	recordRepo repository.RateRecordRepository
	batchRepo  repository.ImportBatchRepository
	auditRepo  repository.AuditLogRepository
}

func newImportHarness(t *testing.T, db *gorm.DB, cfg *EngineConfig, wrap func(RateStorage) RateStorage) *importHarness {
	t.Helper()
	recordRepo := repository.NewRateRecordRepository(db)
	attributeRepo := repository.NewRateAttributeRepository(db)
	batchRepo := repository.NewImportBatchRepository(db)
	auditRepo := repository.NewAuditLogRepository(db)

	storage := NewRepositoryRateStorage(recordRepo, attributeRepo)
	if wrap != nil {
		storage = wrap(storage)
	}
	cache := NewRateLookupCache(storage, cfg, nil)

	return &importHarness{
		flow:       NewRateSheetImportFlow(storage, recordRepo, batchRepo, auditRepo, cache, db, cfg, nil),
		cache:      cache,
		recordRepo: recordRepo,
		batchRepo:  batchRepo,
		auditRepo:  auditRepo,
	}
}

func rows(specs ...map[string]string) []RateRow {
	out := make([]RateRow, 0, len(specs))
	for _, spec := range specs {
		row := make(RateRow, len(spec))
		for k, v := range spec {
			row[k] = cell(v)
		}
		out = append(out, row)
	}
	return out
}

// failingStorage rejects the n-th CreateRecord call.
type failingStorage struct {
	RateStorage
	failOn int
	calls  int
}

func (s *failingStorage) CreateRecord(ctx context.Context, record *models.RateRecord) error {
	s.calls++
	if s.calls == s.failOn {
		return errors.New("disk full")
	}
	return s.RateStorage.CreateRecord(ctx, record)
}

// stopAfterFirstRow reports cancellation once one row has been written.
type stopAfterFirstRow struct {
	RateStorage
	stopped *atomic.Bool
}

func (s *stopAfterFirstRow) CreateAttributes(ctx context.Context, attrs []*models.RateAttribute) error {
	err := s.RateStorage.CreateAttributes(ctx, attrs)
	s.stopped.Store(true)
	return err
}

// stoppableContext is cancelled as soon as stopped is set. Done stays nil so
// the database driver never aborts the row being written.
type stoppableContext struct {
	context.Context
	stopped *atomic.Bool
}

func (c stoppableContext) Err() error {
	if c.stopped.Load() {
		return context.Canceled
	}
	return nil
}

func TestRateSheetImportFlowImportBatch(t *testing.T) {
	ctx := testingutil.CreateTestContext()

	t.Run("RowBecomesRecordAndAttribute", func(t *testing.T) {
		db := setupImportDB(t)
		h := newImportHarness(t, db, testEngineConfig(), nil)

		result, err := h.flow.ImportBatch(ctx, ImportRequest{
			CustomerID: 1,
			Type:       "LTL",
			Rows:       rows(map[string]string{"destination_city": "Toronto", "min": "50", "extra_col": "X9"}),
			SourceName: "toronto.csv",
		})
		require.NoError(t, err)
		assert.Len(t, result.BatchID, 26)
		assert.Equal(t, models.ImportBatchStatusActive, result.Status)
		assert.Equal(t, 1, result.RowCount)
		assert.Equal(t, 1, result.RecordCount)
		assert.Equal(t, 1, result.AttributeCount)
		assert.Empty(t, result.Errors)
		assert.False(t, result.Cancelled)

		records, err := h.recordRepo.ListActive(ctx, 1, "LTL")
		require.NoError(t, err)
		require.Len(t, records, 1)

		rec := records[0]
		require.NotNil(t, rec.DestinationCity)
		assert.Equal(t, "Toronto", *rec.DestinationCity)
		require.True(t, rec.MinRate.Valid)
		assert.Equal(t, "50", rec.MinRate.Decimal.String())
		assert.Equal(t, models.ExternalInternal, rec.External)
		assert.Equal(t, 0, rec.PrioritySequence)
		assert.Equal(t, result.BatchID, rec.ImportBatchID)

		require.Len(t, rec.Attributes, 1)
		assert.Equal(t, "extra_col", rec.Attributes[0].Name)
		assert.Equal(t, "X9", rec.Attributes[0].Value)
		assert.Equal(t, rec.ID, rec.Attributes[0].RateRecordID)

		batch, err := h.batchRepo.ByBatchID(ctx, result.BatchID)
		require.NoError(t, err)
		require.NotNil(t, batch)
		assert.Equal(t, models.ImportBatchStatusActive, batch.Status)
		assert.Equal(t, "toronto.csv", batch.SourceName)
		assert.NotNil(t, batch.CompletedAt)

		logs, err := h.auditRepo.ListByAction(ctx, models.AuditActionRateSheetImported, 10, 0)
		require.NoError(t, err)
		assert.Len(t, logs, 1)
	})

	t.Run("EmptyLeftoverNotStored", func(t *testing.T) {
		db := setupImportDB(t)
		h := newImportHarness(t, db, testEngineConfig(), nil)

		result, err := h.flow.ImportBatch(ctx, ImportRequest{
			CustomerID: 1,
			Type:       "LTL",
			Rows:       rows(map[string]string{"destination_city": "Toronto", "min": "50", "extra_col": ""}),
		})
		require.NoError(t, err)
		assert.Equal(t, 0, result.AttributeCount)

		records, err := h.recordRepo.ListActive(ctx, 1, "LTL")
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Empty(t, records[0].Attributes)
	})

	t.Run("RoundTripThroughCache", func(t *testing.T) {
		db := setupImportDB(t)
		h := newImportHarness(t, db, testEngineConfig(), nil)

		before, err := h.cache.Get(ctx, 3, "FTL")
		require.NoError(t, err)
		assert.Empty(t, before)

		result, err := h.flow.ImportBatch(ctx, ImportRequest{
			CustomerID: 3,
			Type:       "ftl",
			Rows: rows(
				map[string]string{"destination_city": "Calgary", "priority_sequence": "2", "1000": "12.5", "zone": "W"},
				map[string]string{"destination_city": "Edmonton", "priority_sequence": "1", "ltl": "80"},
			),
		})
		require.NoError(t, err)
		assert.Equal(t, 2, result.RecordCount)
		assert.Equal(t, 2, result.AttributeCount)

		after, err := h.cache.Get(ctx, 3, "FTL")
		require.NoError(t, err)
		require.Len(t, after, 2)
		assert.Equal(t, "Edmonton", *after[0].DestinationCity)
		assert.Equal(t, "Calgary", *after[1].DestinationCity)
		assert.Equal(t, []string{"12.5"}, after[1].AttributeValues("1000"))
		assert.Equal(t, []string{"W"}, after[1].AttributeValues("zone"))
	})

	t.Run("BlankRowsAreRowErrors", func(t *testing.T) {
		db := setupImportDB(t)
		h := newImportHarness(t, db, testEngineConfig(), nil)

		result, err := h.flow.ImportBatch(ctx, ImportRequest{
			CustomerID: 1,
			Type:       "LTL",
			Rows: rows(
				map[string]string{"destination_city": " ", "min": ""},
				map[string]string{"destination_city": "Toronto"},
			),
		})
		require.NoError(t, err)
		assert.Equal(t, 1, result.RecordCount)
		require.Len(t, result.Errors, 1)
		assert.Equal(t, 1, result.Errors[0].Row)

		batch, err := h.batchRepo.ByBatchID(ctx, result.BatchID)
		require.NoError(t, err)
		assert.Equal(t, 1, batch.FailedRows)
		rowErrs, err := batch.RowErrors()
		require.NoError(t, err)
		assert.Equal(t, result.Errors, rowErrs)
	})

	t.Run("NothingWrittenMarksBatchFailed", func(t *testing.T) {
		db := setupImportDB(t)
		h := newImportHarness(t, db, testEngineConfig(), nil)

		result, err := h.flow.ImportBatch(ctx, ImportRequest{CustomerID: 1, Type: "LTL"})
		require.NoError(t, err)
		assert.Equal(t, models.ImportBatchStatusFailed, result.Status)

		logs, err := h.auditRepo.ListByAction(ctx, models.AuditActionRateSheetImportFailed, 10, 0)
		require.NoError(t, err)
		assert.Len(t, logs, 1)
	})

	t.Run("Validation", func(t *testing.T) {
		db := setupImportDB(t)
		cfg := testEngineConfig()
		cfg.MaxUploadRows = 1
		h := newImportHarness(t, db, cfg, nil)

		_, err := h.flow.ImportBatch(ctx, ImportRequest{Type: "LTL"})
		assert.True(t, IsValidation(err))

		_, err = h.flow.ImportBatch(ctx, ImportRequest{CustomerID: 1})
		assert.True(t, IsValidation(err))

		_, err = h.flow.ImportBatch(ctx, ImportRequest{
			CustomerID: 1,
			Type:       "LTL",
			Rows:       rows(map[string]string{"min": "1"}, map[string]string{"min": "2"}),
		})
		assert.True(t, IsValidation(err))
		assert.True(t, IsSheetTooLarge(err))
	})

	t.Run("PerRowFailureContinues", func(t *testing.T) {
		db := setupImportDB(t)
		h := newImportHarness(t, db, testEngineConfig(), func(s RateStorage) RateStorage {
			return &failingStorage{RateStorage: s, failOn: 2}
		})

		result, err := h.flow.ImportBatch(ctx, ImportRequest{
			CustomerID: 1,
			Type:       "LTL",
			Rows: rows(
				map[string]string{"destination_city": "A"},
				map[string]string{"destination_city": "B"},
				map[string]string{"destination_city": "C"},
			),
		})
		require.NoError(t, err)
		assert.Equal(t, 2, result.RecordCount)
		require.Len(t, result.Errors, 1)
		assert.Equal(t, 2, result.Errors[0].Row)
		assert.Contains(t, result.Errors[0].Error, "disk full")
	})

	t.Run("AtomicFailureRollsBackBatch", func(t *testing.T) {
		db := setupImportDB(t)
		cfg := testEngineConfig()
		cfg.AtomicBatches = true
		h := newImportHarness(t, db, cfg, func(s RateStorage) RateStorage {
			return &failingStorage{RateStorage: s, failOn: 2}
		})

		_, err := h.flow.ImportBatch(ctx, ImportRequest{
			CustomerID: 1,
			Type:       "LTL",
			Rows: rows(
				map[string]string{"destination_city": "A"},
				map[string]string{"destination_city": "B"},
			),
		})
		require.Error(t, err)
		assert.True(t, IsStorageFailure(err))
		assert.Equal(t, "RATE_SHEET_ROW_FAILED", ErrorCode(err))
		assert.Contains(t, err.Error(), "row 2")

		count, err := h.recordRepo.Count(ctx, models.RateRecordFilter{})
		require.NoError(t, err)
		assert.Zero(t, count)

		batches, err := h.flow.ListBatches(ctx, 1, "LTL", 0, 0)
		require.NoError(t, err)
		require.Len(t, batches, 1)
		assert.Equal(t, models.ImportBatchStatusFailed, batches[0].Status)
		assert.True(t, batches[0].Atomic)
	})

	t.Run("AtomicSuccess", func(t *testing.T) {
		db := setupImportDB(t)
		cfg := testEngineConfig()
		cfg.AtomicBatches = true
		h := newImportHarness(t, db, cfg, nil)

		result, err := h.flow.ImportBatch(ctx, ImportRequest{
			CustomerID: 1,
			Type:       "LTL",
			Rows: rows(
				map[string]string{"destination_city": "A", "zone": "1"},
				map[string]string{},
				map[string]string{"destination_city": "B"},
			),
		})
		require.NoError(t, err)
		assert.Equal(t, 2, result.RecordCount)
		assert.Equal(t, 1, result.AttributeCount)
		assert.Len(t, result.Errors, 1)

		records, err := h.recordRepo.ListActive(ctx, 1, "LTL")
		require.NoError(t, err)
		assert.Len(t, records, 2)
	})

	t.Run("CancellationKeepsCommittedRows", func(t *testing.T) {
		db := setupImportDB(t)
		stopped := &atomic.Bool{}
		h := newImportHarness(t, db, testEngineConfig(), func(s RateStorage) RateStorage {
			return &stopAfterFirstRow{RateStorage: s, stopped: stopped}
		})

		result, err := h.flow.ImportBatch(stoppableContext{Context: ctx, stopped: stopped}, ImportRequest{
			CustomerID: 1,
			Type:       "LTL",
			Rows: rows(
				map[string]string{"destination_city": "A"},
				map[string]string{"destination_city": "B"},
				map[string]string{"destination_city": "C"},
			),
		})
		require.NoError(t, err)
		assert.True(t, result.Cancelled)
		assert.Equal(t, 1, result.RecordCount)

		records, err := h.recordRepo.ListActive(ctx, 1, "LTL")
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, "A", *records[0].DestinationCity)
	})
}

func TestRateSheetImportFlowImportFile(t *testing.T) {
	ctx := testingutil.CreateTestContext()
	db := setupImportDB(t)
	h := newImportHarness(t, db, testEngineConfig(), nil)

	csv := "Destination City,Province,Min,LTL,Zone\nToronto,ON,45,38.50,A\nOttawa,ON,,41,B\n"
	result, err := h.flow.ImportFile(ctx, 5, "LTL", false, "carrier.csv", strings.NewReader(csv))
	require.NoError(t, err)
	assert.Equal(t, 2, result.RecordCount)
	assert.Equal(t, 2, result.AttributeCount)

	_, err = h.flow.ImportFile(ctx, 5, "LTL", false, "carrier.pdf", strings.NewReader(csv))
	require.Error(t, err)
	assert.True(t, IsValidation(err))
	assert.True(t, IsUnsupportedSheetFormat(err))
}

func TestRateSheetImportFlowImportFileRowErrorsUseFileLines(t *testing.T) {
	ctx := testingutil.CreateTestContext()
	db := setupImportDB(t)
	h := newImportHarness(t, db, testEngineConfig(), func(s RateStorage) RateStorage {
		return &failingStorage{RateStorage: s, failOn: 2}
	})

	csv := "Destination City,LTL\nToronto,38\n\n,\nOttawa,41\n"
	result, err := h.flow.ImportFile(ctx, 5, "LTL", false, "carrier.csv", strings.NewReader(csv))
	require.NoError(t, err)
	assert.Equal(t, 1, result.RecordCount)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, 5, result.Errors[0].Row)
}

func TestRateSheetImportFlowBatches(t *testing.T) {
	ctx := testingutil.CreateTestContext()
	db := setupImportDB(t)
	h := newImportHarness(t, db, testEngineConfig(), nil)

	importOne := func(city string) *ImportResult {
		t.Helper()
		result, err := h.flow.ImportBatch(ctx, ImportRequest{
			CustomerID: 1,
			Type:       "LTL",
			Rows:       rows(map[string]string{"destination_city": city, "ltl": "10"}),
		})
		require.NoError(t, err)
		return result
	}

	activeCities := func() []string {
		t.Helper()
		records, err := h.cache.Get(ctx, 1, "LTL")
		require.NoError(t, err)
		var out []string
		for _, r := range records {
			out = append(out, *r.DestinationCity)
		}
		return out
	}

	first := importOne("Toronto")
	second := importOne("Ottawa")

	t.Run("NewBatchSupersedesOld", func(t *testing.T) {
		assert.Equal(t, []string{"Ottawa"}, activeCities())

		old, err := h.batchRepo.ByBatchID(ctx, first.BatchID)
		require.NoError(t, err)
		assert.Equal(t, models.ImportBatchStatusSuperseded, old.Status)

		batches, err := h.flow.ListBatches(ctx, 1, "ltl", 0, 0)
		require.NoError(t, err)
		require.Len(t, batches, 2)
		assert.Equal(t, second.BatchID, batches[0].ID)
	})

	t.Run("ListRecords", func(t *testing.T) {
		all, err := h.flow.ListRecords(ctx, RecordQuery{CustomerID: 1, Tab: "all"})
		require.NoError(t, err)
		assert.Len(t, all, 2)

		active, err := h.flow.ListRecords(ctx, RecordQuery{CustomerID: 1, Tab: "ltl", ActiveOnly: true})
		require.NoError(t, err)
		require.Len(t, active, 1)
		assert.Equal(t, second.BatchID, active[0].ImportBatchID)

		ftl, err := h.flow.ListRecords(ctx, RecordQuery{CustomerID: 1, Tab: "FTL"})
		require.NoError(t, err)
		assert.Empty(t, ftl)
	})

	t.Run("RollbackRestoresPrevious", func(t *testing.T) {
		batch, err := h.flow.RollbackBatch(ctx, second.BatchID)
		require.NoError(t, err)
		assert.Equal(t, models.ImportBatchStatusRolledBack, batch.Status)

		assert.Equal(t, []string{"Toronto"}, activeCities())

		restored, err := h.batchRepo.ByBatchID(ctx, first.BatchID)
		require.NoError(t, err)
		assert.Equal(t, models.ImportBatchStatusActive, restored.Status)

		logs, err := h.auditRepo.ListByAction(ctx, models.AuditActionImportBatchRolledBack, 10, 0)
		require.NoError(t, err)
		assert.Len(t, logs, 1)
	})

	t.Run("RollbackErrors", func(t *testing.T) {
		_, err := h.flow.RollbackBatch(ctx, second.BatchID)
		assert.True(t, IsImportBatchNotActive(err))

		_, err = h.flow.RollbackBatch(ctx, "01HZZZZZZZZZZZZZZZZZZZZZZZ")
		assert.True(t, IsImportBatchNotFound(err))

		_, err = h.flow.RollbackBatch(ctx, " ")
		assert.True(t, IsValidation(err))
	})

	t.Run("InvalidateCache", func(t *testing.T) {
		require.NoError(t, h.flow.InvalidateCache(ctx, 1, "ltl"))
		assert.True(t, IsValidation(h.flow.InvalidateCache(ctx, 0, "LTL")))

		logs, err := h.auditRepo.ListByAction(ctx, models.AuditActionRateCacheInvalidated, 10, 0)
		require.NoError(t, err)
		assert.Len(t, logs, 1)
	})
}

func TestRateSheetImportFlowListRecordsPagesWithinTab(t *testing.T) {
	ctx := testingutil.CreateTestContext()
	db := setupImportDB(t)
	h := newImportHarness(t, db, testEngineConfig(), nil)

	_, err := h.flow.ImportBatch(ctx, ImportRequest{
		CustomerID: 7,
		Type:       "FTL",
		Rows: rows(
			map[string]string{"destination_city": "Calgary", "ltl": "10", "priority_sequence": "0"},
			map[string]string{"destination_city": "Regina", "ltl": "11", "priority_sequence": "0"},
			map[string]string{"destination_city": "Winnipeg", "ltl": "12", "priority_sequence": "0"},
		),
	})
	require.NoError(t, err)
	_, err = h.flow.ImportBatch(ctx, ImportRequest{
		CustomerID: 7,
		Type:       "LTL",
		Rows: rows(
			map[string]string{"destination_city": "Toronto", "ltl": "20", "priority_sequence": "5"},
			map[string]string{"destination_city": "Ottawa", "ltl": "21", "priority_sequence": "5"},
		),
	})
	require.NoError(t, err)

	page, err := h.flow.ListRecords(ctx, RecordQuery{CustomerID: 7, Tab: "LTL", ActiveOnly: true, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	for _, r := range page {
		assert.Equal(t, "LTL", r.Type)
	}

	next, err := h.flow.ListRecords(ctx, RecordQuery{CustomerID: 7, Tab: "ftl", Limit: 2, Offset: 2})
	require.NoError(t, err)
	require.Len(t, next, 1)
	assert.Equal(t, "FTL", next[0].Type)

	all, err := h.flow.ListRecords(ctx, RecordQuery{CustomerID: 7, Tab: "all", Limit: 4})
	require.NoError(t, err)
	assert.Len(t, all, 4)
}
