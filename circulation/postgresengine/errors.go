package postgresengine

import "errors"

var (
	ErrNilDatabaseConnection = errors.New("database connection must not be nil")
	ErrInvalidWriteTimeout   = errors.New("write timeout must be positive")

	ErrBuildingQueryFailed   = errors.New("building the sql query failed")
	ErrQueryingFailed        = errors.New("querying the database failed")
	ErrScanningDBRowFailed   = errors.New("scanning a database row failed")
	ErrBeginTxFailed         = errors.New("beginning the database transaction failed")
	ErrLockingBookFailed     = errors.New("locking the book inventory row failed")
	ErrWritingFailed         = errors.New("writing to the database failed")
	ErrCommitFailed          = errors.New("committing the database transaction failed")
	ErrInventoryRowNotLocked = errors.New("inventory update did not affect the locked row")
)
