package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel"

	"github.com/AntonStoeckl/library-circulation-go/circulation"
	"github.com/AntonStoeckl/library-circulation-go/circulation/memengine"
	"github.com/AntonStoeckl/library-circulation-go/circulation/notify"
	"github.com/AntonStoeckl/library-circulation-go/circulation/oteladapters"
	"github.com/AntonStoeckl/library-circulation-go/circulation/postgresengine"
	"github.com/AntonStoeckl/library-circulation-go/config"
	"github.com/AntonStoeckl/library-circulation-go/logging"
)

const instrumentationName = "github.com/AntonStoeckl/library-circulation-go"

var (
	errRequiresPostgres = errors.New("command requires CIRCULATION_STORE=postgres")
	errNoMember         = errors.New("no member id: use --member or set CIRCULATION_MEMBER_ID")
)

// dependencies are the process-level inputs of the CLI, replaced in tests.
// A nil memoryStore gives every invocation its own empty memory store.
type dependencies struct {
	loadConfig  func() (config.Config, error)
	logOutput   io.Writer
	memoryStore *memengine.Store
}

// globalFlags are the persistent flags of the root command.
type globalFlags struct {
	member   string
	events   bool
	otel     bool
	eventual bool
}

// app holds everything one command invocation works with.
type app struct {
	cfg         config.Config
	logger      logging.Logger
	coordinator *circulation.Coordinator
	store       circulation.Store
	catalog     *postgresengine.Catalog
	identity    circulation.Identity
	flags       *globalFlags
	closers     []func()
}

type appOption func(*appSetup)

type appSetup struct {
	notifier circulation.Notifier
	options  []circulation.Option
}

func withNotifier(notifier circulation.Notifier) appOption {
	return func(s *appSetup) { s.notifier = notifier }
}

func withCoordinatorOptions(options ...circulation.Option) appOption {
	return func(s *appSetup) { s.options = append(s.options, options...) }
}

func newApp(ctx context.Context, deps dependencies, flags *globalFlags, out io.Writer, opts ...appOption) (*app, error) {
	cfg, err := deps.loadConfig()
	if err != nil {
		return nil, err
	}

	logOutput := deps.logOutput
	if logOutput == nil {
		logOutput = os.Stderr
	}

	logger, flush, err := logging.New(cfg.LogFormat, cfg.LogLevel, logOutput)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger, flags: flags, closers: []func(){flush}}
	a.identity = circulation.IdentityFunc(a.member)

	setup := appSetup{}
	for _, opt := range opts {
		opt(&setup)
	}

	if flags.otel {
		shutdown, telemetryErr := setupTelemetry(ctx, logger)
		if telemetryErr != nil {
			a.close()
			return nil, telemetryErr
		}

		a.closers = append(a.closers, shutdown)
	}

	options := append(cfg.CoordinatorOptions(), a.observabilityOptions()...)

	if a.store, err = a.openStore(ctx, deps.memoryStore); err != nil {
		a.close()
		return nil, err
	}

	if a.catalog != nil {
		options = append(options, circulation.WithCatalog(a.catalog))
	}

	options = append(options, setup.options...)

	if notifier := a.notifier(out, setup.notifier); notifier != nil {
		options = append(options, circulation.WithNotifier(notifier))
	}

	if a.coordinator, err = circulation.NewCoordinator(a.store, options...); err != nil {
		a.close()
		return nil, err
	}

	return a, nil
}

func (a *app) openStore(ctx context.Context, memoryStore *memengine.Store) (circulation.Store, error) {
	switch a.cfg.Store {
	case config.StorePostgres:
		store, closeStore, err := config.OpenPostgresStore(ctx, a.cfg, postgresengine.WithLogger(a.logger))
		if err != nil {
			return nil, fmt.Errorf("opening postgres store: %w", err)
		}

		a.closers = append(a.closers, closeStore)
		a.catalog = store.Catalog()

		return store, nil

	default:
		if memoryStore != nil {
			return memoryStore, nil
		}

		return memengine.NewStore(), nil
	}
}

func (a *app) observabilityOptions() []circulation.Option {
	if !a.flags.otel {
		return []circulation.Option{circulation.WithContextualLogger(a.logger)}
	}

	return []circulation.Option{
		circulation.WithContextualLogger(oteladapters.NewSlogBridgeLogger(instrumentationName)),
		circulation.WithTracing(oteladapters.NewTracingCollector(otel.Tracer(instrumentationName))),
		circulation.WithMetrics(oteladapters.NewMetricsCollector(otel.Meter(instrumentationName))),
	}
}

// notifier combines the JSON lines output requested with --events and the given extra sink.
func (a *app) notifier(out io.Writer, extra circulation.Notifier) circulation.Notifier {
	var sinks notify.Fanout

	if a.flags.events {
		sinks = append(sinks, notify.NewJSONLinesWriter(out))
	}

	if extra != nil {
		sinks = append(sinks, extra)
	}

	switch len(sinks) {
	case 0:
		return nil
	case 1:
		return sinks[0]
	default:
		return sinks
	}
}

func (a *app) member(context.Context) (circulation.MemberID, error) {
	switch {
	case a.flags.member != "":
		return a.flags.member, nil
	case a.cfg.MemberID != "":
		return a.cfg.MemberID, nil
	default:
		return "", errNoMember
	}
}

// readContext applies the consistency level requested with --eventual.
func (a *app) readContext(ctx context.Context) context.Context {
	if a.flags.eventual {
		return circulation.WithEventualConsistency(ctx)
	}

	return circulation.WithStrongConsistency(ctx)
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}
