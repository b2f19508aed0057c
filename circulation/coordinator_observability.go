package circulation

import (
	"context"
	"errors"
	"math"
	"strconv"
	"time"
)

const (
	operationBorrow            = "borrow"
	operationReturn            = "return"
	operationReserve           = "reserve"
	operationCancelReservation = "cancel_reservation"
	operationAdjustInventory   = "adjust_inventory"

	spanNamePrefix = "circulation."

	statusSuccess  = "success"
	statusRejected = "rejected"
	statusCanceled = "canceled"
	statusTimeout  = "timeout"
	statusError    = "error"

	// MetricOperationDuration records the duration of every write operation (labels: operation, status).
	MetricOperationDuration = "circulation_operation_duration_seconds"

	// MetricOperationsTotal counts write operations (labels: operation, status).
	MetricOperationsTotal = "circulation_operations_total"

	// MetricBusinessRejections counts business rule rejections (labels: operation, reason).
	MetricBusinessRejections = "circulation_business_rejections_total"

	// MetricCanceledOperations counts write operations the caller canceled before they took effect (labels: operation).
	MetricCanceledOperations = "circulation_canceled_operations_total"

	// MetricTimeoutOperations counts write operations whose caller deadline passed before they took effect (labels: operation).
	MetricTimeoutOperations = "circulation_timeout_operations_total"

	// MetricInvariantViolations counts detected ledger corruption (labels: operation).
	MetricInvariantViolations = "circulation_invariant_violations_total"

	// MetricAvailableCopies records the available copies of a book after a committed operation (labels: book_id).
	MetricAvailableCopies = "circulation_available_copies"

	labelOperation = "operation"
	labelStatus    = "status"
	labelReason    = "reason"
	labelBookID    = "book_id"

	spanAttrOperation   = "circulation.operation"
	spanAttrBookID      = "circulation.book_id"
	spanAttrErrorType   = "error_type"
	spanAttrDurationMS  = "duration_ms"
	spanAttrAvailable   = "circulation.available_copies"
	spanAttrTotalCopies = "circulation.total_copies"

	logMsgOperation      = "circulation operation: "
	logMsgRejected       = "circulation operation rejected: "
	logMsgFailed         = "circulation operation failed: "
	logMsgAbandoned      = "circulation operation abandoned by caller: "
	logMsgCorruption     = "inventory corruption detected, operator attention required"
	logMsgShortfall      = "total copies reduced below lent copies, shortfall recorded"
	logMsgNotifyFailed   = "failed to deliver circulation event"
	logAttrError         = "error"
	logAttrReason        = "reason"
	logAttrBookID        = "book_id"
	logAttrMemberID      = "member_id"
	logAttrLoanID        = "loan_id"
	logAttrReservationID = "reservation_id"
	logAttrEventType     = "event_type"
	logAttrTotalCopies   = "total_copies"
	logAttrAvailable     = "available_copies"
	logAttrShortfall     = "shortfall"
	logAttrPromoted      = "promoted"
	logAttrQueued        = "queued"
	logAttrDurationMS    = "duration_ms"
)

// operationObserver bundles the tracing span, metrics and logging of one write operation.
type operationObserver struct {
	c         *Coordinator
	ctx       context.Context
	operation string
	bookID    BookID
	span      SpanContext
	start     time.Time
	args      []any
}

func (c *Coordinator) startOperation(
	ctx context.Context,
	operation string,
	bookID BookID,
	args ...any,
) (*operationObserver, context.Context) {

	obs := &operationObserver{
		c:         c,
		operation: operation,
		bookID:    bookID,
		start:     time.Now(),
		args:      args,
	}

	if c.tracingCollector != nil {
		attrs := map[string]string{spanAttrOperation: operation}
		if bookID != "" {
			attrs[spanAttrBookID] = bookID
		}

		ctx, obs.span = c.tracingCollector.StartSpan(ctx, spanNamePrefix+operation, attrs)
	}

	obs.ctx = ctx

	return obs, ctx
}

// finish records the outcome; inv is the committed inventory and nil on failure.
func (o *operationObserver) finish(err error, inv *BookInventory, args ...any) {
	duration := time.Since(o.start)
	status := o.statusOf(err)

	logArgs := make([]any, 0, len(o.args)+len(args)+6)
	if o.bookID != "" {
		logArgs = append(logArgs, logAttrBookID, o.bookID)
	}
	logArgs = append(logArgs, o.args...)
	logArgs = append(logArgs, args...)
	logArgs = append(logArgs, logAttrDurationMS, toMilliseconds(duration))

	switch status {
	case statusSuccess:
		logArgs = append(logArgs, logAttrAvailable, inv.AvailableCopies)
		o.c.logInfo(o.ctx, logMsgOperation+o.operation, logArgs...)

	case statusRejected:
		logArgs = append(logArgs, logAttrReason, errorType(err))
		o.c.logInfo(o.ctx, logMsgRejected+o.operation, logArgs...)
		o.c.incrementCounter(o.ctx, MetricBusinessRejections, map[string]string{
			labelOperation: o.operation,
			labelReason:    errorType(err),
		})

	case statusCanceled, statusTimeout:
		logArgs = append(logArgs, logAttrReason, status)
		o.c.logWarn(o.ctx, logMsgAbandoned+o.operation, logArgs...)

		metric := MetricCanceledOperations
		if status == statusTimeout {
			metric = MetricTimeoutOperations
		}
		o.c.incrementCounter(o.ctx, metric, map[string]string{labelOperation: o.operation})

	default:
		logArgs = append([]any{logAttrError, err.Error()}, logArgs...)

		if errors.Is(err, ErrInventoryCorruption) {
			o.c.logError(o.ctx, logMsgCorruption, logArgs...)
			o.c.incrementCounter(o.ctx, MetricInvariantViolations, map[string]string{labelOperation: o.operation})
		} else {
			o.c.logError(o.ctx, logMsgFailed+o.operation, logArgs...)
		}
	}

	labels := map[string]string{labelOperation: o.operation, labelStatus: status}
	o.c.recordDuration(o.ctx, MetricOperationDuration, duration, labels)
	o.c.incrementCounter(o.ctx, MetricOperationsTotal, map[string]string{labelOperation: o.operation, labelStatus: status})

	if inv != nil {
		o.c.recordValue(o.ctx, MetricAvailableCopies, float64(inv.AvailableCopies), map[string]string{labelBookID: inv.BookID})
	}

	o.finishSpan(status, err, inv, duration)
}

func (o *operationObserver) finishSpan(status string, err error, inv *BookInventory, duration time.Duration) {
	if o.span == nil {
		return
	}

	attrs := map[string]string{
		spanAttrDurationMS: strconv.FormatFloat(toMilliseconds(duration), 'f', 2, 64),
	}

	if o.bookID != "" {
		attrs[spanAttrBookID] = o.bookID
	}

	if err != nil {
		attrs[spanAttrErrorType] = errorType(err)
	}

	if inv != nil {
		attrs[spanAttrAvailable] = strconv.Itoa(inv.AvailableCopies)
		attrs[spanAttrTotalCopies] = strconv.Itoa(inv.TotalCopies)
	}

	o.span.SetStatus(status)
	o.c.tracingCollector.FinishSpan(o.span, status, attrs)
}

// statusOf classifies err. Context errors count as abandonment only while the caller's context is done;
// a driver timeout inside a held transaction stays an error.
func (o *operationObserver) statusOf(err error) string {
	switch {
	case err == nil:
		return statusSuccess
	case IsBusinessRejection(err):
		return statusRejected
	case o.ctx.Err() != nil && errors.Is(err, context.Canceled):
		return statusCanceled
	case o.ctx.Err() != nil && errors.Is(err, context.DeadlineExceeded):
		return statusTimeout
	default:
		return statusError
	}
}

// toMilliseconds converts a time.Duration to float64 milliseconds with 3 decimal places.
func toMilliseconds(d time.Duration) float64 {
	return math.Round(float64(d.Nanoseconds())/1e6*1000) / 1000
}

func (c *Coordinator) logInfo(ctx context.Context, msg string, args ...any) {
	switch {
	case c.contextualLogger != nil:
		c.contextualLogger.InfoContext(ctx, msg, args...)
	case c.logger != nil:
		c.logger.Info(msg, args...)
	}
}

func (c *Coordinator) logWarn(ctx context.Context, msg string, args ...any) {
	switch {
	case c.contextualLogger != nil:
		c.contextualLogger.WarnContext(ctx, msg, args...)
	case c.logger != nil:
		c.logger.Warn(msg, args...)
	}
}

func (c *Coordinator) logError(ctx context.Context, msg string, args ...any) {
	switch {
	case c.contextualLogger != nil:
		c.contextualLogger.ErrorContext(ctx, msg, args...)
	case c.logger != nil:
		c.logger.Error(msg, args...)
	}
}

func (c *Coordinator) recordDuration(ctx context.Context, metric string, d time.Duration, labels map[string]string) {
	if c.metricsCollector == nil {
		return
	}

	if contextual, ok := c.metricsCollector.(ContextualMetricsCollector); ok {
		contextual.RecordDurationContext(ctx, metric, d, labels)
		return
	}

	c.metricsCollector.RecordDuration(metric, d, labels)
}

func (c *Coordinator) incrementCounter(ctx context.Context, metric string, labels map[string]string) {
	if c.metricsCollector == nil {
		return
	}

	if contextual, ok := c.metricsCollector.(ContextualMetricsCollector); ok {
		contextual.IncrementCounterContext(ctx, metric, labels)
		return
	}

	c.metricsCollector.IncrementCounter(metric, labels)
}

func (c *Coordinator) recordValue(ctx context.Context, metric string, value float64, labels map[string]string) {
	if c.metricsCollector == nil {
		return
	}

	if contextual, ok := c.metricsCollector.(ContextualMetricsCollector); ok {
		contextual.RecordValueContext(ctx, metric, value, labels)
		return
	}

	c.metricsCollector.RecordValue(metric, value, labels)
}
