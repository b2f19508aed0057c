package circulation

import (
	"time"

	"github.com/google/uuid"
)

// Option defines a functional option for configuring the Coordinator.
type Option func(*Coordinator) error

// WithLogger sets the logger for the Coordinator.
// The logger will receive messages at different levels based on the logger's configured level:
//
// Info level: Operation outcomes with durations, business rejections (production-safe)
// Warn level: Shortfalls after an inventory reduction, failed notifications
// Error level: Inventory corruption and infrastructure failures.
func WithLogger(logger Logger) Option {
	return func(c *Coordinator) error {
		c.logger = logger
		return nil
	}
}

// WithContextualLogger sets a context-aware logger, which receives trace correlation from the context.
// It takes precedence over a Logger set with WithLogger.
func WithContextualLogger(logger ContextualLogger) Option {
	return func(c *Coordinator) error {
		c.contextualLogger = logger
		return nil
	}
}

// WithMetrics sets the metrics collector for the Coordinator.
func WithMetrics(collector MetricsCollector) Option {
	return func(c *Coordinator) error {
		c.metricsCollector = collector
		return nil
	}
}

// WithTracing sets the tracing collector for the Coordinator. Every write operation gets a span.
func WithTracing(collector TracingCollector) Option {
	return func(c *Coordinator) error {
		c.tracingCollector = collector
		return nil
	}
}

// WithClock replaces the wall clock, mostly for tests.
func WithClock(clock func() time.Time) Option {
	return func(c *Coordinator) error {
		if clock == nil {
			return ErrNilClock
		}

		c.clock = clock

		return nil
	}
}

// WithDefaultLoanPeriod sets the loan period used for promoted reservations, skip-the-queue loans,
// and Borrow calls with a zero period.
func WithDefaultLoanPeriod(period time.Duration) Option {
	return func(c *Coordinator) error {
		if period <= 0 {
			return ErrInvalidLoanPeriod
		}

		c.defaultLoanPeriod = period

		return nil
	}
}

// WithHoldWindow sets how long a reservation may wait before it expires. Zero, the default, never expires.
func WithHoldWindow(window time.Duration) Option {
	return func(c *Coordinator) error {
		if window < 0 {
			return ErrNegativeHoldWindow
		}

		c.holdWindow = window

		return nil
	}
}

// WithFinePolicy sets the policy Fine computes with.
func WithFinePolicy(policy FinePolicy) Option {
	return func(c *Coordinator) error {
		if err := policy.Validate(); err != nil {
			return err
		}

		c.finePolicy = policy

		return nil
	}
}

// WithNotifier sets the receiver of circulation events.
func WithNotifier(notifier Notifier) Option {
	return func(c *Coordinator) error {
		c.notifier = notifier
		return nil
	}
}

// WithCatalog sets the catalog that AdjustInventory validates against and Book reads from.
func WithCatalog(catalog Catalog) Option {
	return func(c *Coordinator) error {
		c.catalog = catalog
		return nil
	}
}

// WithIDGenerator replaces uuid.NewV7 for new loan and reservation ids.
func WithIDGenerator(generator func() (uuid.UUID, error)) Option {
	return func(c *Coordinator) error {
		if generator == nil {
			return ErrNilIDGenerator
		}

		c.newID = generator

		return nil
	}
}
