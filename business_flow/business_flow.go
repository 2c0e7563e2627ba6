package businessflow

import (
	"context"
	"encoding/json"

	"github.com/amirphl/freightdesk/config"
	"github.com/amirphl/freightdesk/models"
	"github.com/amirphl/freightdesk/repository"
	"github.com/amirphl/freightdesk/utils"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// EngineConfig is the rate engine configuration handed to the importer,
// cache and resolver. It is built once at start-up and passed by pointer.
type EngineConfig struct {
	config.RateEngineConfig

	LogCacheBuilds      bool
	LogRateCalculations bool
}

// NewEngineConfig picks the engine section and its logging switches out of
// the process configuration.
func NewEngineConfig(cfg *config.ProductionConfig) *EngineConfig {
	return &EngineConfig{
		RateEngineConfig:    cfg.RateEngine,
		LogCacheBuilds:      cfg.Logging.LogCacheBuilds,
		LogRateCalculations: cfg.Logging.LogRateCalculations,
	}
}

// DefaultEngineConfig is the engine configuration with nothing overridden.
func DefaultEngineConfig() *EngineConfig {
	return &EngineConfig{RateEngineConfig: config.DefaultRateEngineConfig()}
}

// auditRecorder writes audit log entries for rate sheet changes. A nil
// repository turns it into a no-op.
type auditRecorder struct {
	repo   repository.AuditLogRepository
	logger *zap.Logger
}

func (a auditRecorder) record(ctx context.Context, action string, customerID uint, success bool, description string, metadata map[string]any, cause error) {
	if a.repo == nil {
		return
	}

	entry := &models.AuditLog{
		Action:      action,
		Description: utils.ToPtr(description),
		Success:     utils.ToPtr(success),
		CreatedAt:   utils.UTCNow(),
	}
	if customerID != 0 {
		entry.CustomerID = utils.ToPtr(customerID)
	}
	if v := utils.StringFromContext(ctx, utils.RequestIDKey); v != "" {
		entry.RequestID = utils.ToPtr(v)
	}
	if v := utils.StringFromContext(ctx, utils.IPAddressKey); v != "" {
		entry.IPAddress = utils.ToPtr(v)
	}
	if v := utils.StringFromContext(ctx, utils.UserAgentKey); v != "" {
		entry.UserAgent = utils.ToPtr(v)
	}
	if cause != nil {
		entry.ErrorMessage = utils.ToPtr(cause.Error())
	}
	if len(metadata) > 0 {
		if raw, err := json.Marshal(metadata); err == nil {
			entry.Metadata = datatypes.JSON(raw)
		}
	}

	// Audit failures must not undo the change they describe.
	if err := a.repo.Save(context.WithoutCancel(ctx), entry); err != nil {
		a.logger.Warn("failed to write audit log", zap.String("action", action), zap.Error(err))
	}
}
