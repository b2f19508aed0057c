package postgresengine

import (
	"math"
	"time"
)

const (
	// MetricLockWaitDuration records how long Transact waited for the book's row lock (labels: status).
	MetricLockWaitDuration = "circulation_store_lock_wait_seconds"

	// MetricTransactionsTotal counts Transact outcomes (labels: outcome).
	MetricTransactionsTotal = "circulation_store_transactions_total"

	labelStatus  = "status"
	labelOutcome = "outcome"

	statusSuccess = "success"
	statusError   = "error"

	outcomeCommitted  = "committed"
	outcomeRolledBack = "rolled_back"
	outcomeAbandoned  = "abandoned"
	outcomeFailed     = "failed"

	logMsgSQLExecuted     = "executed sql for: "
	logMsgDBQueryFailed   = "database query execution failed"
	logMsgDBExecFailed    = "database execution failed"
	logMsgScanRowFailed   = "failed to scan database row"
	logMsgCloseRowsFailed = "failed to close database rows"
	logMsgBeginTxFailed   = "failed to begin database transaction"
	logMsgCommitFailed    = "failed to commit database transaction"
	logMsgRollbackFailed  = "failed to roll back database transaction"
	logAttrError          = "error"
	logAttrQuery          = "query"
	logAttrBookID         = "book_id"
	logAttrDurationMS     = "duration_ms"

	logActionCreateBook       = "create book"
	logActionLock             = "lock inventory"
	logActionLoadLoans        = "load open loans"
	logActionLoadReservations = "load waiting reservations"
	logActionWriteInventory   = "write inventory"
	logActionWriteLoan        = "write loan"
	logActionWriteReservation = "write reservation"
	logActionReadInventory    = "read inventory"
	logActionReadLoans        = "read loans"
	logActionReadReservations = "read reservations"
	logActionReadCatalog      = "read catalog"
	logActionWriteCatalog     = "write catalog"
)

// logQueryWithDuration logs SQL statements with execution time at debug level if the logger is configured.
func (s *Store) logQueryWithDuration(sqlQuery string, action string, duration time.Duration) {
	if s.logger != nil {
		s.logger.Debug(logMsgSQLExecuted+action, logAttrDurationMS, toMilliseconds(duration), logAttrQuery, sqlQuery)
	}
}

func (s *Store) logWarn(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}

func (s *Store) logError(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Error(msg, args...)
	}
}

func (s *Store) recordLockWait(duration time.Duration, err error) {
	if s.metricsCollector == nil {
		return
	}

	status := statusSuccess
	if err != nil {
		status = statusError
	}

	s.metricsCollector.RecordDuration(MetricLockWaitDuration, duration, map[string]string{labelStatus: status})
}

func (s *Store) countTransaction(outcome string) {
	if s.metricsCollector != nil {
		s.metricsCollector.IncrementCounter(MetricTransactionsTotal, map[string]string{labelOutcome: outcome})
	}
}

// toMilliseconds converts a time.Duration to float64 milliseconds with 3 decimal places.
func toMilliseconds(d time.Duration) float64 {
	return math.Round(float64(d.Nanoseconds())/1e6*1000) / 1000
}
