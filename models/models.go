package models

// All returns every persisted model in dependency order, for gorm AutoMigrate.
func All() []any {
	return []any{
		&ImportBatch{},
		&RateRecord{},
		&RateAttribute{},
		&AuditLog{},
	}
}
