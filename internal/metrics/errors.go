package metrics

import "codeberg.org/mutker/pmtablemon/internal/errors"

const (
	// Configuration Errors
	ErrInvalidConfig = errors.ErrInvalidConfig
	ErrInvalidDBPath = errors.ErrorCode("metrics_invalid_db_path")

	// Schema Errors
	ErrSchemaInitFailed       = errors.ErrorCode("metrics_schema_init_failed")
	ErrSchemaValidationFailed = errors.ErrorCode("metrics_schema_validation_failed")
	ErrSchemaMigrationFailed  = errors.ErrorCode("metrics_schema_migration_failed")
	ErrTransactionFailed      = errors.ErrorCode("metrics_transaction_failed")

	// Storage Errors
	ErrStorageAccess = errors.ErrorCode("metrics_storage_access_failed")
	ErrStorageInit   = errors.ErrInitFailed
	ErrStorageClose  = errors.ErrShutdownFailed

	// Collection Errors
	ErrRecordFailed  = errors.ErrorCode("metrics_record_failed")
	ErrInvalidRecord = errors.ErrorCode("metrics_invalid_record")

	// Operation Errors
	ErrOperationTimeout = errors.ErrTimeout
)

func init() {
	errors.RegisterMessages(map[errors.ErrorCode]string{
		ErrInvalidDBPath:          "Invalid telemetry database path",
		ErrSchemaInitFailed:       "Failed to initialize telemetry database schema",
		ErrSchemaValidationFailed: "Failed to validate telemetry database schema",
		ErrSchemaMigrationFailed:  "Failed to migrate telemetry database schema",
		ErrTransactionFailed:      "Telemetry database transaction failed",
		ErrStorageAccess:          "Failed to access telemetry database",
		ErrRecordFailed:           "Failed to record decoded sample",
		ErrInvalidRecord:          "Invalid decoded sample",
	})
}
