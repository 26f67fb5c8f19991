package quarantine

import "codeberg.org/mutker/datafilter/internal/errors"

const (
	ErrInvalidConfig = errors.ErrInvalidConfig
	ErrInvalidDBPath = errors.ErrorCode("quarantine_invalid_db_path")
	ErrInvalidEntry  = errors.ErrorCode("quarantine_invalid_entry")

	ErrStorageAccess    = errors.ErrorCode("quarantine_storage_access_failed")
	ErrStorageInit      = errors.ErrorCode("quarantine_storage_init_failed")
	ErrStorageClose     = errors.ErrorCode("quarantine_storage_close_failed")
	ErrSchemaInitFailed = errors.ErrorCode("quarantine_schema_init_failed")
)
