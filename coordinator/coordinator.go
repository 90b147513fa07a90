// Package coordinator drives federated training rounds: it asks the
// strategy for a configuration, dispatches instructions to client proxies
// concurrently, collects results and failures, and hands them back to the
// strategy for aggregation, over a configured number of rounds.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/absmach/flock/pkg/checkpoint"
	"github.com/absmach/flock/pkg/diag"
	"github.com/absmach/flock/strategy"
	"github.com/absmach/flock/wire"
	"golang.org/x/sync/errgroup"
)

// State names the orchestrator's position in the round state machine.
type State string

const (
	StateIdle           State = "idle"
	StateInitializing   State = "initializing"
	StateFitConfigured  State = "fit_configured"
	StateFitCollected   State = "fit_collected"
	StateFitAggregated  State = "fit_aggregated"
	StateEvalConfigured State = "eval_configured"
	StateEvalCollected  State = "eval_collected"
	StateEvalAggregated State = "eval_aggregated"
	StateTerminated     State = "terminated"
)

var (
	ErrNoInitialClients = errors.New("no clients available to provide initial parameters")
	ErrRunInProgress    = errors.New("a run is already in progress")
	errInvalidConfig    = errors.New("invalid coordinator configuration")
)

const (
	defCallTimeout    = time.Minute
	defMaxConcurrency = 8
	defMaxIdleRounds  = 3
)

// Config bounds one run.
type Config struct {
	// Rounds is the number of fit/evaluate cycles to drive.
	Rounds uint64
	// CallTimeout bounds every individual client call. A call exceeding it
	// is recorded as a failure and the round proceeds without it.
	CallTimeout time.Duration
	// MaxWallClock, when positive, terminates the run early once the total
	// elapsed time exceeds it. Checked between rounds.
	MaxWallClock time.Duration
	// MaxConcurrency is the number of execution slots client calls share.
	MaxConcurrency int
	// MaxIdleRounds terminates the run after this many consecutive rounds
	// in which the strategy produced no fit configuration.
	MaxIdleRounds int
}

func (c *Config) validate() error {
	if c.Rounds == 0 {
		return fmt.Errorf("%w: rounds must be positive", errInvalidConfig)
	}
	if c.CallTimeout == 0 {
		c.CallTimeout = defCallTimeout
	}
	if c.MaxConcurrency == 0 {
		c.MaxConcurrency = defMaxConcurrency
	}
	if c.MaxConcurrency < 0 {
		return fmt.Errorf("%w: negative concurrency", errInvalidConfig)
	}
	if c.MaxIdleRounds == 0 {
		c.MaxIdleRounds = defMaxIdleRounds
	}

	return nil
}

// Status is a point-in-time view of a run, served over the HTTP API.
type Status struct {
	State     State     `json:"state"`
	Round     uint64    `json:"round"`
	Rounds    uint64    `json:"rounds"`
	StartedAt time.Time `json:"started_at,omitempty"`
}

type ClientInfo struct {
	ID string `json:"id"`
}

type ClientPage struct {
	Offset  uint64       `json:"offset"`
	Limit   uint64       `json:"limit"`
	Total   uint64       `json:"total"`
	Clients []ClientInfo `json:"clients"`
}

// Service is the coordinator's externally visible surface.
type Service interface {
	// Run drives the configured number of rounds and returns the
	// accumulated history. Per-client failures never abort it; aggregation
	// and configuration errors do.
	Run(ctx context.Context) (History, error)
	Status(ctx context.Context) (Status, error)
	History(ctx context.Context) (History, error)
	ListClients(ctx context.Context, offset, limit uint64) (ClientPage, error)
}

var _ Service = (*Coordinator)(nil)

type Coordinator struct {
	id       string
	strategy strategy.Strategy
	registry *Registry
	cfg      Config
	logger   *slog.Logger
	diag     *diag.Once

	checkpoints *checkpoint.Store

	mu        sync.RWMutex
	running   bool
	state     State
	round     uint64
	startedAt time.Time
	params    wire.Parameters
	history   History
}

type CoordinatorOption func(*Coordinator)

// WithCheckpoints persists round records and parameter versions after every
// aggregated round.
func WithCheckpoints(store *checkpoint.Store) CoordinatorOption {
	return func(c *Coordinator) { c.checkpoints = store }
}

// WithDiagnostics replaces the run-scoped sink, so a strategy constructed
// with the same sink has its once-per-run warnings reset by Run.
func WithDiagnostics(sink *diag.Once) CoordinatorOption {
	return func(c *Coordinator) { c.diag = sink }
}

func New(id string, s strategy.Strategy, registry *Registry, cfg Config, logger *slog.Logger, opts ...CoordinatorOption) (*Coordinator, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	c := &Coordinator{
		id:       id,
		strategy: s,
		registry: registry,
		cfg:      cfg,
		logger:   logger,
		diag:     diag.NewOnce(logger),
		state:    StateIdle,
	}
	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// Diagnostics exposes the run-scoped diagnostics sink so that strategies
// constructed alongside the coordinator can share it.
func (c *Coordinator) Diagnostics() *diag.Once { return c.diag }

func (c *Coordinator) Run(ctx context.Context) (History, error) {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()

		return History{}, ErrRunInProgress
	}
	c.running = true
	c.history = History{}
	c.startedAt = time.Now()
	c.mu.Unlock()
	c.diag.Reset()

	defer func() {
		c.mu.Lock()
		c.running = false
		c.state = StateTerminated
		c.mu.Unlock()
	}()

	start := time.Now()
	c.setState(StateInitializing, 0)

	params, err := c.initialParameters(ctx)
	if err != nil {
		return c.historySnapshot(), err
	}
	c.setParams(params)

	idle := 0
	for round := uint64(1); round <= c.cfg.Rounds; round++ {
		if err := ctx.Err(); err != nil {
			c.finish(start)

			return c.historySnapshot(), err
		}
		if c.cfg.MaxWallClock > 0 && time.Since(start) > c.cfg.MaxWallClock {
			c.logger.Info("wall clock budget elapsed, terminating run",
				slog.Uint64("round", round),
				slog.Duration("budget", c.cfg.MaxWallClock),
			)

			break
		}

		rec, stop, err := c.runRound(ctx, round, &idle)
		c.appendRecord(rec)
		if err != nil {
			c.finish(start)

			return c.historySnapshot(), err
		}
		if stop {
			break
		}
	}

	c.finish(start)
	c.logger.Info("run completed",
		slog.String("run_id", c.id),
		slog.Int("rounds", len(c.historySnapshot().Rounds)),
		slog.Duration("elapsed", time.Since(start)),
	)

	return c.historySnapshot(), nil
}

// runRound drives one full fit/evaluate cycle. A true stop return asks the
// caller to terminate the loop without error.
func (c *Coordinator) runRound(ctx context.Context, round uint64, idle *int) (RoundRecord, bool, error) {
	rec := RoundRecord{Round: round}
	roundStart := time.Now()
	defer func() { rec.Elapsed = time.Since(roundStart) }()

	c.setState(StateFitConfigured, round)
	clients, err := c.registry.Available(ctx)
	if err != nil {
		return rec, false, err
	}

	assignments := c.strategy.ConfigureFit(round, c.parameters(), clients)
	if len(assignments) == 0 {
		*idle++
		c.logger.Warn("strategy produced no fit configuration",
			slog.Uint64("round", round),
			slog.Int("available_clients", len(clients)),
			slog.Int("consecutive_idle_rounds", *idle),
		)
		if *idle >= c.cfg.MaxIdleRounds {
			c.logger.Error("giving up after consecutive rounds without a fit configuration",
				slog.Int("rounds", *idle))

			return rec, true, nil
		}

		return rec, false, nil
	}
	*idle = 0

	results, failures := c.dispatchFit(ctx, round, assignments)
	c.setState(StateFitCollected, round)
	rec.FitResults, rec.FitFailures = len(results), len(failures)
	if err := ctx.Err(); err != nil {
		// Aborted mid-round: bookkeeping above stays intact, the
		// in-progress aggregation is discarded.
		return rec, false, err
	}

	newParams, fitMetrics, err := c.strategy.AggregateFit(round, results, failures)
	if err != nil {
		return rec, false, fmt.Errorf("round %d: %w", round, err)
	}
	c.setState(StateFitAggregated, round)
	if newParams == nil {
		c.logger.Warn("fit aggregation produced no parameters, keeping previous global parameters",
			slog.Uint64("round", round),
			slog.Int("results", len(results)),
			slog.Int("failures", len(failures)),
		)

		return rec, false, nil
	}
	rec.Aggregated = true
	rec.FitMetrics = fitMetrics
	c.setParams(*newParams)
	c.saveCheckpoint(round, rec, *newParams)

	if out, err := c.strategy.Evaluate(round, c.parameters()); err != nil {
		c.logger.Warn("centralized evaluation failed",
			slog.Uint64("round", round), slog.Any("error", err))
	} else if out != nil {
		rec.LossCentralized = &out.Loss
		rec.CentralMetrics = out.Metrics
	}

	c.setState(StateEvalConfigured, round)
	clients, err = c.registry.Available(ctx)
	if err != nil {
		return rec, false, err
	}
	evalAssignments := c.strategy.ConfigureEvaluate(round, c.parameters(), clients)
	if len(evalAssignments) == 0 {
		return rec, false, nil
	}

	evalResults, evalFailures := c.dispatchEvaluate(ctx, round, evalAssignments)
	c.setState(StateEvalCollected, round)
	rec.EvaluateResults, rec.EvaluateFailures = len(evalResults), len(evalFailures)
	if err := ctx.Err(); err != nil {
		return rec, false, err
	}

	loss, evalMetrics, err := c.strategy.AggregateEvaluate(round, evalResults, evalFailures)
	if err != nil {
		return rec, false, fmt.Errorf("round %d: %w", round, err)
	}
	c.setState(StateEvalAggregated, round)
	if loss != nil {
		rec.LossDistributed = loss
		rec.EvaluateMetrics = evalMetrics
	}

	return rec, false, nil
}

func (c *Coordinator) initialParameters(ctx context.Context) (wire.Parameters, error) {
	if p := c.strategy.InitialParameters(); p != nil {
		c.logger.Info("using initial parameters provided by strategy")

		return *p, nil
	}

	clients, err := c.registry.Available(ctx)
	if err != nil {
		return wire.Parameters{}, err
	}
	if len(clients) == 0 {
		return wire.Parameters{}, ErrNoInitialClients
	}

	p := clients[0]
	c.logger.Info("requesting initial parameters from a client",
		slog.String("client_id", p.ID()))

	res, err := p.GetParameters(ctx, 0, wire.GetParametersIns{Config: wire.Config{}}, c.cfg.CallTimeout)
	if err != nil {
		return wire.Parameters{}, fmt.Errorf("initial parameters from %s: %w", p.ID(), err)
	}
	if !res.Status.OK() {
		return wire.Parameters{}, fmt.Errorf("initial parameters from %s: %s: %s", p.ID(), res.Status.Code, res.Status.Message)
	}

	return res.Parameters, nil
}

// dispatchFit runs one client call per assignment, bounded by the execution
// slot pool, and blocks until the full set has completed or timed out.
func (c *Coordinator) dispatchFit(ctx context.Context, round uint64, assignments []strategy.FitAssignment) ([]strategy.FitResult, []strategy.Failure) {
	var mu sync.Mutex
	var results []strategy.FitResult
	var failures []strategy.Failure

	g := new(errgroup.Group)
	g.SetLimit(c.cfg.MaxConcurrency)
	for _, a := range assignments {
		g.Go(func() error {
			res, err := a.Proxy.Fit(ctx, round, a.Ins, c.cfg.CallTimeout)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				failures = append(failures, strategy.Failure{ClientID: a.Proxy.ID(), Err: err})
			case !res.Status.OK():
				failures = append(failures, strategy.Failure{
					ClientID: a.Proxy.ID(),
					Err:      fmt.Errorf("client status %s: %s", res.Status.Code, res.Status.Message),
				})
			default:
				results = append(results, strategy.FitResult{ClientID: a.Proxy.ID(), Res: res})
			}

			return nil
		})
	}
	_ = g.Wait()

	return results, failures
}

func (c *Coordinator) dispatchEvaluate(ctx context.Context, round uint64, assignments []strategy.EvaluateAssignment) ([]strategy.EvaluateResult, []strategy.Failure) {
	var mu sync.Mutex
	var results []strategy.EvaluateResult
	var failures []strategy.Failure

	g := new(errgroup.Group)
	g.SetLimit(c.cfg.MaxConcurrency)
	for _, a := range assignments {
		g.Go(func() error {
			res, err := a.Proxy.Evaluate(ctx, round, a.Ins, c.cfg.CallTimeout)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				failures = append(failures, strategy.Failure{ClientID: a.Proxy.ID(), Err: err})
			case !res.Status.OK():
				failures = append(failures, strategy.Failure{
					ClientID: a.Proxy.ID(),
					Err:      fmt.Errorf("client status %s: %s", res.Status.Code, res.Status.Message),
				})
			default:
				results = append(results, strategy.EvaluateResult{ClientID: a.Proxy.ID(), Res: res})
			}

			return nil
		})
	}
	_ = g.Wait()

	return results, failures
}

func (c *Coordinator) saveCheckpoint(round uint64, rec RoundRecord, params wire.Parameters) {
	if c.checkpoints == nil {
		return
	}

	if err := c.checkpoints.SaveRound(c.id, round, rec); err != nil {
		c.logger.Warn("failed to checkpoint round record",
			slog.Uint64("round", round), slog.Any("error", err))
	}
	if err := c.checkpoints.SaveParameters(round, params); err != nil {
		c.logger.Warn("failed to checkpoint parameters",
			slog.Uint64("round", round), slog.Any("error", err))
	}
}

func (c *Coordinator) Status(_ context.Context) (Status, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Status{
		State:     c.state,
		Round:     c.round,
		Rounds:    c.cfg.Rounds,
		StartedAt: c.startedAt,
	}, nil
}

func (c *Coordinator) History(_ context.Context) (History, error) {
	return c.historySnapshot(), nil
}

func (c *Coordinator) ListClients(ctx context.Context, offset, limit uint64) (ClientPage, error) {
	proxies, err := c.registry.Available(ctx)
	if err != nil {
		return ClientPage{}, err
	}

	total := uint64(len(proxies))
	page := ClientPage{Offset: offset, Limit: limit, Total: total}
	if offset >= total {
		return page, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	for _, p := range proxies[offset:end] {
		page.Clients = append(page.Clients, ClientInfo{ID: p.ID()})
	}

	return page, nil
}

func (c *Coordinator) setState(s State, round uint64) {
	c.mu.Lock()
	c.state = s
	c.round = round
	c.mu.Unlock()
}

func (c *Coordinator) parameters() wire.Parameters {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.params
}

// setParams replaces the global parameters wholesale; they are never
// mutated in place.
func (c *Coordinator) setParams(p wire.Parameters) {
	c.mu.Lock()
	c.params = p
	c.mu.Unlock()
}

func (c *Coordinator) appendRecord(rec RoundRecord) {
	c.mu.Lock()
	c.history.Rounds = append(c.history.Rounds, rec)
	c.mu.Unlock()
}

func (c *Coordinator) finish(start time.Time) {
	c.mu.Lock()
	c.history.Elapsed = time.Since(start)
	c.mu.Unlock()
}

func (c *Coordinator) historySnapshot() History {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.history.clone()
}
