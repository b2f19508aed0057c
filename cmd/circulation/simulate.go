package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"golang.org/x/sync/errgroup"

	"github.com/AntonStoeckl/library-circulation-go/circulation"
	"github.com/AntonStoeckl/library-circulation-go/circulation/memengine"
	"github.com/AntonStoeckl/library-circulation-go/circulation/notify"
	"github.com/AntonStoeckl/library-circulation-go/circulation/oteladapters"
)

var errLedgerInconsistent = errors.New("simulation left an inconsistent ledger")

const simulationEventBuffer = 4096

type simulationConfig struct {
	Books      int
	Copies     int
	Members    int
	Operations int
	Workers    int
	Seed       uint64
}

type simulationReport struct {
	borrowed  atomic.Int64
	reserved  atomic.Int64
	returned  atomic.Int64
	cancelled atomic.Int64
	rejected  atomic.Int64

	events     uint64
	dropped    uint64
	operations map[string]int64
}

func newSimulateCommand(deps dependencies, flags *globalFlags) *cobra.Command {
	cfg := simulationConfig{}

	simulate := &cobra.Command{
		Use:   "simulate",
		Short: "Run concurrent members against a set of books and verify the ledger afterwards",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			reader := sdkmetric.NewManualReader()
			provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
			defer func() { _ = provider.Shutdown(context.WithoutCancel(cmd.Context())) }()

			events := notify.NewChannel(simulationEventBuffer)
			catalog := memengine.NewCatalog()

			a, err := newApp(cmd.Context(), deps, flags, cmd.OutOrStdout(),
				withNotifier(events),
				withCoordinatorOptions(
					circulation.WithCatalog(catalog),
					circulation.WithMetrics(oteladapters.NewMetricsCollector(provider.Meter(instrumentationName))),
				),
			)
			if err != nil {
				return err
			}
			defer a.close()

			report, err := runSimulation(cmd.Context(), a, catalog, events, cfg)
			if err != nil {
				return err
			}

			if report.operations, err = operationCounts(cmd.Context(), reader); err != nil {
				return err
			}

			printReport(cmd.OutOrStdout(), report)

			return nil
		},
	}

	simulate.Flags().IntVar(&cfg.Books, "books", 5, "number of books")
	simulate.Flags().IntVar(&cfg.Copies, "copies", 2, "copies per book")
	simulate.Flags().IntVar(&cfg.Members, "members", 20, "number of members")
	simulate.Flags().IntVar(&cfg.Operations, "operations", 500, "number of operations")
	simulate.Flags().IntVar(&cfg.Workers, "workers", 8, "concurrent workers")
	simulate.Flags().Uint64Var(&cfg.Seed, "seed", 1, "random seed of the operation mix")

	return simulate
}

// simulation tracks the open loans and waiting reservations the workers may act on.
type simulation struct {
	coordinator *circulation.Coordinator
	books       []circulation.BookID
	members     []circulation.MemberID
	report      *simulationReport

	mu           sync.Mutex
	loans        []circulation.LoanID
	reservations []circulation.ReservationID
}

func runSimulation(
	ctx context.Context,
	a *app,
	catalog *memengine.Catalog,
	events *notify.Channel,
	cfg simulationConfig,
) (*simulationReport, error) {

	if cfg.Books < 1 || cfg.Members < 1 || cfg.Workers < 1 || cfg.Copies < 0 || cfg.Operations < 0 {
		return nil, fmt.Errorf("invalid simulation size: %+v", cfg)
	}

	runID := uuid.NewString()[:8]
	ctx = notify.WithCorrelationID(ctx, runID)

	sim := &simulation{coordinator: a.coordinator, report: &simulationReport{}}

	for i := range cfg.Members {
		sim.members = append(sim.members, fmt.Sprintf("sim-%s-member-%03d", runID, i))
	}

	for i := range cfg.Books {
		bookID := fmt.Sprintf("sim-%s-book-%03d", runID, i)
		catalog.Put(circulation.CatalogEntry{BookID: bookID, Title: "Simulated " + bookID, TotalCopies: cfg.Copies})

		if _, err := a.coordinator.AdjustInventory(ctx, bookID, cfg.Copies); err != nil {
			return nil, err
		}

		sim.books = append(sim.books, bookID)
	}

	counted := make(chan uint64)
	stop := make(chan struct{})

	go countEvents(events, stop, counted)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)

	for op := range cfg.Operations {
		rng := rand.New(rand.NewPCG(cfg.Seed, uint64(op)))

		g.Go(func() error {
			return sim.step(gctx, rng)
		})
	}

	err := g.Wait()

	close(stop)
	sim.report.events = <-counted
	sim.report.dropped = events.Dropped()

	if err != nil {
		return nil, err
	}

	if err = sim.verify(ctx); err != nil {
		return nil, err
	}

	return sim.report, nil
}

func countEvents(events *notify.Channel, stop <-chan struct{}, counted chan<- uint64) {
	var n uint64

	for {
		select {
		case <-events.Events():
			n++
		case <-stop:
			for {
				select {
				case <-events.Events():
					n++
				default:
					counted <- n
					return
				}
			}
		}
	}
}

func (s *simulation) step(ctx context.Context, rng *rand.Rand) error {
	var err error

	switch choice := rng.IntN(10); {
	case choice < 5:
		err = s.borrowOrReserve(ctx, s.books[rng.IntN(len(s.books))], s.members[rng.IntN(len(s.members))])
	case choice < 8:
		err = s.returnOne(ctx, rng)
	default:
		err = s.cancelOne(ctx, rng)
	}

	if circulation.IsBusinessRejection(err) {
		s.report.rejected.Add(1)
		return nil
	}

	return err
}

func (s *simulation) borrowOrReserve(ctx context.Context, bookID circulation.BookID, memberID circulation.MemberID) error {
	loan, err := s.coordinator.Borrow(ctx, bookID, memberID, 0)
	if err == nil {
		s.report.borrowed.Add(1)
		s.trackLoan(loan.ID)

		return nil
	}

	if !errors.Is(err, circulation.ErrOutOfStock) {
		return err
	}

	result, err := s.coordinator.Reserve(ctx, bookID, memberID)
	if err != nil {
		return err
	}

	if result.Loan != nil {
		s.report.borrowed.Add(1)
		s.trackLoan(result.Loan.ID)

		return nil
	}

	s.report.reserved.Add(1)

	s.mu.Lock()
	s.reservations = append(s.reservations, result.Reservation.ID)
	s.mu.Unlock()

	return nil
}

func (s *simulation) returnOne(ctx context.Context, rng *rand.Rand) error {
	loanID, ok := takeRandom(&s.mu, &s.loans, rng)
	if !ok {
		return nil
	}

	result, err := s.coordinator.Return(ctx, loanID)
	if err != nil {
		return err
	}

	s.report.returned.Add(1)

	if result.Promoted != nil {
		s.trackLoan(result.Promoted.ID)
	}

	return nil
}

func (s *simulation) cancelOne(ctx context.Context, rng *rand.Rand) error {
	reservationID, ok := takeRandom(&s.mu, &s.reservations, rng)
	if !ok {
		return nil
	}

	if _, err := s.coordinator.CancelReservation(ctx, reservationID); err != nil {
		return err
	}

	s.report.cancelled.Add(1)

	return nil
}

func (s *simulation) trackLoan(loanID circulation.LoanID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.loans = append(s.loans, loanID)
}

// verify checks that every book lends out exactly as many copies as there are open loans for it.
func (s *simulation) verify(ctx context.Context) error {
	openLoans := make(map[circulation.BookID]int)

	for _, memberID := range s.members {
		loans, err := s.coordinator.LoansForMember(ctx, memberID)
		if err != nil {
			return err
		}

		for _, loan := range loans {
			if loan.IsOpen() {
				openLoans[loan.BookID]++
			}
		}
	}

	for _, bookID := range s.books {
		inv, err := s.coordinator.Inventory(ctx, bookID)
		if err != nil {
			return err
		}

		if inv.LentCopies() != openLoans[bookID] || inv.AvailableCopies < 0 || inv.AvailableCopies > inv.TotalCopies {
			return fmt.Errorf("%w: book %s lends %d copies with %d open loans",
				errLedgerInconsistent, bookID, inv.LentCopies(), openLoans[bookID])
		}
	}

	return nil
}

func takeRandom[T any](mu *sync.Mutex, items *[]T, rng *rand.Rand) (T, bool) {
	mu.Lock()
	defer mu.Unlock()

	var zero T
	if len(*items) == 0 {
		return zero, false
	}

	i := rng.IntN(len(*items))
	item := (*items)[i]
	*items = slices.Delete(*items, i, i+1)

	return item, true
}

// operationCounts sums circulation_operations_total by operation and status.
func operationCounts(ctx context.Context, reader *sdkmetric.ManualReader) (map[string]int64, error) {
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		return nil, err
	}

	counts := make(map[string]int64)

	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			if m.Name != circulation.MetricOperationsTotal {
				continue
			}

			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}

			for _, dp := range sum.DataPoints {
				operation, _ := dp.Attributes.Value("operation")
				status, _ := dp.Attributes.Value("status")
				counts[operation.AsString()+"/"+status.AsString()] += dp.Value
			}
		}
	}

	return counts, nil
}

func printReport(out io.Writer, report *simulationReport) {
	fmt.Fprintf(out, "borrowed %d, reserved %d, returned %d, cancelled %d, rejected %d\n",
		report.borrowed.Load(), report.reserved.Load(), report.returned.Load(),
		report.cancelled.Load(), report.rejected.Load())
	fmt.Fprintf(out, "events delivered %d, dropped %d\n", report.events, report.dropped)

	keys := make([]string, 0, len(report.operations))
	for key := range report.operations {
		keys = append(keys, key)
	}

	slices.Sort(keys)

	for _, key := range keys {
		fmt.Fprintf(out, "  %-28s %d\n", key, report.operations[key])
	}

	fmt.Fprintln(out, "ledger consistent")
}
