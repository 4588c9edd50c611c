package store

import "errors"

var (
	ErrFailedToParseConfig = errors.New("store: failed to parse database configuration")
	ErrFailedToConnect     = errors.New("store: failed to open database connection")
	ErrHealthcheckFailed   = errors.New("store: healthcheck failed")
	ErrSetDialect          = errors.New("store migrator: failed to set dialect")
	ErrApplyMigrations     = errors.New("store migrator: failed to apply migrations")
	ErrNotFound            = errors.New("store: template not found")
	ErrInvalidRecord       = errors.New("store: invalid template record")
)
