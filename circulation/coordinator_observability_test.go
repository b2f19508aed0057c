package circulation_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/AntonStoeckl/library-circulation-go/circulation"
	. "github.com/AntonStoeckl/library-circulation-go/testutil/helper"
	"github.com/AntonStoeckl/library-circulation-go/testutil/observability/testdoubles"
)

func slogLogger(handler slog.Handler) *slog.Logger {
	return slog.New(handler)
}

func Test_Observability_Borrow_Success_Is_Logged_Measured_And_Traced(t *testing.T) {
	// setup
	ctx := context.Background()
	logHandler := testdoubles.NewLogHandlerSpy(false)
	metrics := testdoubles.NewMetricsCollectorSpy()
	tracing := testdoubles.NewTracingCollectorSpy()
	coordinator, _ := givenCoordinator(t,
		WithLogger(slogLogger(logHandler)),
		WithMetrics(metrics),
		WithTracing(tracing))

	// arrange
	bookID := GivenBookWithCopies(t, ctx, coordinator, 2)

	// act
	_, err := coordinator.Borrow(ctx, bookID, GivenUniqueMemberID(t), 0)

	// assert
	require.NoError(t, err)
	assert.True(t, logHandler.HasInfoLogWithMessage("circulation operation: borrow").
		WithDurationMS().
		WithAttribute("book_id", bookID).
		WithAttribute("available_copies", "1").
		Assert())
	assert.True(t, metrics.HasDurationRecordForMetric(MetricOperationDuration).
		WithOperation("borrow").
		WithStatus("success").
		Assert())
	assert.True(t, metrics.HasCounterRecordForMetric(MetricOperationsTotal).
		WithOperation("borrow").
		WithStatus("success").
		Assert())
	assert.True(t, metrics.HasValueRecordForMetric(MetricAvailableCopies).
		WithLabel("book_id", bookID).
		Assert())
	assert.True(t, tracing.HasSpanRecordForName("circulation.borrow").
		WithStartAttribute("circulation.book_id", bookID).
		WithStatus("success").
		WithEndAttribute("circulation.available_copies", "1").
		Assert())
}

func Test_Observability_Business_Rejection_Is_Counted_With_Its_Reason(t *testing.T) {
	// setup
	ctx := context.Background()
	logHandler := testdoubles.NewLogHandlerSpy(false)
	metrics := testdoubles.NewMetricsCollectorSpy()
	tracing := testdoubles.NewTracingCollectorSpy()
	coordinator, _ := givenCoordinator(t,
		WithLogger(slogLogger(logHandler)),
		WithMetrics(metrics),
		WithTracing(tracing))

	// arrange
	bookID := GivenBookWithCopies(t, ctx, coordinator, 0)

	// act
	_, err := coordinator.Borrow(ctx, bookID, GivenUniqueMemberID(t), 0)

	// assert
	assert.ErrorIs(t, err, ErrOutOfStock)
	assert.True(t, logHandler.HasInfoLogWithMessage("circulation operation rejected: borrow").
		WithAttribute("reason", "out_of_stock").
		Assert())
	assert.False(t, logHandler.HasErrorLogWithMessage("circulation operation failed: borrow").Assert(),
		"a business rejection is not an error")
	assert.True(t, metrics.HasCounterRecordForMetric(MetricBusinessRejections).
		WithOperation("borrow").
		WithLabel("reason", "out_of_stock").
		Assert())
	assert.True(t, metrics.HasCounterRecordForMetric(MetricOperationsTotal).
		WithOperation("borrow").
		WithStatus("rejected").
		Assert())
	assert.True(t, tracing.HasSpanRecordForName("circulation.borrow").
		WithStatus("rejected").
		WithEndAttribute("error_type", "out_of_stock").
		Assert())
}

func Test_Observability_Abandoned_Operations_Are_Not_Errors(t *testing.T) {
	// setup
	ctx := context.Background()
	logHandler := testdoubles.NewLogHandlerSpy(false)
	metrics := testdoubles.NewMetricsCollectorSpy()
	coordinator, store := givenCoordinator(t, WithLogger(slogLogger(logHandler)), WithMetrics(metrics))

	// arrange
	bookID := GivenBookWithCopies(t, ctx, coordinator, 1)

	holding := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)

	go func() {
		done <- store.Transact(ctx, bookID, func(BookState) (Changes, error) {
			close(holding)
			<-release

			return Changes{}, nil
		})
	}()
	<-holding

	timeoutCtx, cancelTimeout := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancelTimeout()

	cancelCtx, cancel := context.WithCancel(ctx)
	time.AfterFunc(20*time.Millisecond, cancel)

	// act
	_, timeoutErr := coordinator.Borrow(timeoutCtx, bookID, GivenUniqueMemberID(t), 0)
	_, cancelErr := coordinator.Borrow(cancelCtx, bookID, GivenUniqueMemberID(t), 0)

	close(release)
	require.NoError(t, <-done)

	// assert
	assert.ErrorIs(t, timeoutErr, context.DeadlineExceeded)
	assert.ErrorIs(t, cancelErr, context.Canceled)
	reasons := make([]string, 0, 2)
	for _, record := range logHandler.GetRecords() {
		if record.Level != slog.LevelWarn || record.Message != "circulation operation abandoned by caller: borrow" {
			continue
		}

		record.Attrs(func(attr slog.Attr) bool {
			if attr.Key == "reason" {
				reasons = append(reasons, attr.Value.String())
			}

			return true
		})
	}
	assert.Equal(t, []string{"timeout", "canceled"}, reasons)
	assert.False(t, logHandler.HasErrorLogWithMessage("circulation operation failed: borrow").Assert())
	assert.True(t, metrics.HasCounterRecordForMetric(MetricOperationsTotal).
		WithOperation("borrow").
		WithStatus("timeout").
		Assert())
	assert.True(t, metrics.HasCounterRecordForMetric(MetricOperationsTotal).
		WithOperation("borrow").
		WithStatus("canceled").
		Assert())
	assert.False(t, metrics.HasCounterRecordForMetric(MetricOperationsTotal).
		WithOperation("borrow").
		WithStatus("error").
		Assert())
	assert.Equal(t, 1, metrics.CountCounterRecordsForMetric(MetricTimeoutOperations))
	assert.Equal(t, 1, metrics.CountCounterRecordsForMetric(MetricCanceledOperations))

	inv, err := coordinator.Inventory(ctx, bookID)
	require.NoError(t, err)
	assert.Equal(t, 1, inv.AvailableCopies)
}

func Test_Observability_ContextualLogger_Takes_Precedence(t *testing.T) {
	// setup
	ctx := context.Background()
	logHandler := testdoubles.NewLogHandlerSpy(false)
	contextualLogger := testdoubles.NewContextualLoggerSpy()
	coordinator, _ := givenCoordinator(t,
		WithLogger(slogLogger(logHandler)),
		WithContextualLogger(contextualLogger))

	// act
	GivenBookWithCopies(t, ctx, coordinator, 1)

	// assert
	assert.True(t, contextualLogger.HasLog("info", "circulation operation: adjust_inventory"))
	assert.Equal(t, 0, logHandler.GetRecordCount())
}

func Test_Observability_Return_Span_Carries_The_BookID_Resolved_From_The_Loan(t *testing.T) {
	// setup
	ctx := context.Background()
	tracing := testdoubles.NewTracingCollectorSpy()
	coordinator, _ := givenCoordinator(t, WithTracing(tracing))

	// arrange
	bookID := GivenBookWithCopies(t, ctx, coordinator, 1)
	loan := GivenBookWasBorrowed(t, ctx, coordinator, bookID)

	// act
	_, err := coordinator.Return(ctx, loan.ID)

	// assert
	require.NoError(t, err)
	assert.True(t, tracing.HasSpanRecordForName("circulation.return").
		WithStatus("success").
		WithEndAttribute("circulation.book_id", bookID).
		Assert())
}
