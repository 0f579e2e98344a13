package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/epeers/navgraph/config"
	"github.com/epeers/navgraph/internal/cache"
	"github.com/epeers/navgraph/internal/graph"
	"github.com/epeers/navgraph/internal/id"
	"github.com/epeers/navgraph/internal/metrics"
	"github.com/epeers/navgraph/internal/models"
	"github.com/epeers/navgraph/internal/repository"
	"github.com/epeers/navgraph/internal/util"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// ErrRunUnknown is returned for progress or cancel requests on runs this process never started
var ErrRunUnknown = errors.New("unknown run")

// RunInput is everything one run calculates over
type RunInput struct {
	Periods      []models.PeriodWindow
	Balances     []models.BalanceRecord
	Transactions []models.TransactionRecord
	Reference    models.ReferenceData
	Prior        []models.CalculationRow
}

// RunResult is the outcome of a finished run
type RunResult struct {
	Summary models.RunSummary
	Rows    []models.CalculationRow
	Graph   *graph.Graph
}

type jobKind string

const (
	jobDirect  jobKind = "direct"
	jobVehicle jobKind = "vehicle"
	jobClump   jobKind = "clump"
)

// job is one unit of worker-pool work. Jobs share no cache partitions.
type job struct {
	kind     jobKind
	name     string
	vehicles []string
	clump    graph.Clump
}

type runHandle struct {
	id       string
	flag     *CancelFlag
	progress *ProgressAggregator
	warnings *WarningCollector
	done     chan struct{}

	mu      sync.Mutex
	summary models.RunSummary
}

func (h *runHandle) update(fn func(s *models.RunSummary)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	fn(&h.summary)
}

func (h *runHandle) snapshot() models.RunSummary {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.summary
}

// Orchestrator schedules a run's jobs over a bounded worker pool, aggregates
// their progress, and commits their results through a single writer.
type Orchestrator struct {
	cfg     config.EngineConfig
	store   repository.ResultStore
	metrics *metrics.Collector

	mu   sync.RWMutex
	runs map[string]*runHandle
}

// NewOrchestrator creates an orchestrator. store may be nil to skip persistence.
func NewOrchestrator(cfg config.EngineConfig, store repository.ResultStore, m *metrics.Collector) *Orchestrator {
	return &Orchestrator{
		cfg:     cfg,
		store:   store,
		metrics: m,
		runs:    make(map[string]*runHandle),
	}
}

func (o *Orchestrator) newHandle() *runHandle {
	now := time.Now().UTC()
	h := &runHandle{
		id:       id.NewRunID(now),
		flag:     NewCancelFlag(),
		progress: NewProgressAggregator(),
		done:     make(chan struct{}),
	}
	_, h.warnings = NewWarningContext(context.Background())
	h.summary = models.RunSummary{ID: h.id, Status: models.RunPending, StartedAt: now}

	o.mu.Lock()
	o.runs[h.id] = h
	o.mu.Unlock()
	return h
}

func (o *Orchestrator) handle(runID string) (*runHandle, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	h, ok := o.runs[runID]
	return h, ok
}

// Run executes a run to completion and returns its rows
func (o *Orchestrator) Run(ctx context.Context, in RunInput) (*RunResult, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	return o.execute(ctx, o.newHandle(), in)
}

// Start launches a run in the background and returns its ID. The run outlives
// ctx's cancellation; use Cancel to stop it.
func (o *Orchestrator) Start(ctx context.Context, in RunInput) (string, error) {
	if err := validateInput(in); err != nil {
		return "", err
	}
	h := o.newHandle()
	go func() {
		if _, err := o.execute(context.WithoutCancel(ctx), h, in); err != nil {
			log.WithField("run", h.id).Warnf("run finished with error: %v", err)
		}
	}()
	return h.id, nil
}

// Cancel raises the cancel flag of a running run
func (o *Orchestrator) Cancel(runID string) error {
	h, ok := o.handle(runID)
	if !ok {
		return ErrRunUnknown
	}
	h.flag.Raise("cancelled by request")
	return nil
}

// Done returns a channel closed when the run finishes
func (o *Orchestrator) Done(runID string) (<-chan struct{}, bool) {
	h, ok := o.handle(runID)
	if !ok {
		return nil, false
	}
	return h.done, true
}

// Progress returns a snapshot of a run started by this orchestrator
func (o *Orchestrator) Progress(runID string) (models.ProgressResponse, bool) {
	h, ok := o.handle(runID)
	if !ok {
		return models.ProgressResponse{}, false
	}
	summary := h.snapshot()
	snap := h.progress.Snapshot()
	resp := models.ProgressResponse{
		RunID:         runID,
		Status:        summary.Status,
		PercentDone:   snap.PercentDone,
		TimeRemaining: snap.TimeRemaining,
		Vehicles:      snap.Vehicles,
		Warnings:      summary.Warnings,
	}
	if summary.Status == models.RunRunning {
		resp.Warnings = h.warnings.GetWarnings()
	}
	return resp, true
}

func validateInput(in RunInput) error {
	if len(in.Periods) == 0 {
		return fmt.Errorf("%w: no periods", models.ErrInvalidPeriods)
	}
	return models.ValidatePeriods(in.Periods)
}

func (o *Orchestrator) execute(ctx context.Context, h *runHandle, in RunInput) (*RunResult, error) {
	defer close(h.done)
	defer util.TrackTime("Orchestrator.execute", time.Now(), log.Fields{"run": h.id, "periods": len(in.Periods)})

	ctx = withWarnings(ctx, h.warnings)
	wc := h.warnings
	entry := log.WithField("run", h.id)
	o.metrics.RunStarted()
	h.update(func(s *models.RunSummary) {
		s.Status = models.RunRunning
		s.Periods = len(in.Periods)
	})

	g, writer, err := o.process(ctx, h, in)

	status := models.RunCompleted
	if err != nil {
		status = models.RunFailed
	}
	var rows []models.CalculationRow
	if status == models.RunCompleted {
		rows = writer.Rows()
	}
	h.update(func(s *models.RunSummary) {
		s.Status = status
		s.FinishedAt = time.Now().UTC()
		s.Rows = len(rows)
		s.Warnings = wc.GetWarnings()
		if g != nil {
			s.Vehicles = len(g.Nodes)
		}
	})

	if cerr := writer.Commit(context.WithoutCancel(ctx), h.snapshot()); cerr != nil {
		entry.Errorf("commit failed: %v", cerr)
		if err == nil {
			err = cerr
			rows = nil
			h.update(func(s *models.RunSummary) {
				s.Status = models.RunFailed
				s.Rows = 0
			})
		}
	}

	summary := h.snapshot()
	o.metrics.RunFinished(summary.Status)
	if err != nil {
		entry.Warnf("run failed: %v", err)
		return &RunResult{Summary: summary, Graph: g}, err
	}
	entry.Infof("run completed: %d periods, %d vehicles, %d rows, %d warnings",
		summary.Periods, summary.Vehicles, summary.Rows, len(summary.Warnings))
	return &RunResult{Summary: summary, Rows: rows, Graph: g}, nil
}

// process builds the graph, partitions the ledger and drives the worker pool.
// The returned writer is never nil, so a failed run can still record its header.
func (o *Orchestrator) process(ctx context.Context, h *runHandle, in RunInput) (*graph.Graph, *Writer, error) {
	g, err := graph.BuildFromRecords(in.Balances, in.Transactions, graph.Options{FailOnCycle: o.cfg.FailOnCycle})
	if err != nil {
		return nil, NewWriter(o.store, nil), fmt.Errorf("failed to build investment graph: %w", err)
	}
	for _, d := range g.Dropped {
		AddWarning(ctx, models.Warning{
			Code:    models.WarnCycleDropped,
			Message: fmt.Sprintf("dropped cyclic vehicles %s", d),
		})
	}

	balances, transactions := acyclicRecords(g, in.Balances, in.Transactions)
	jobs := planJobs(g)
	owners := make([]string, 0, len(g.Nodes))
	for _, j := range jobs {
		owners = append(owners, j.vehicles...)
	}
	arena := cache.Partition(owners, in.Periods, balances, transactions, in.Prior)
	for _, name := range owners {
		h.progress.Expect(name, len(in.Periods))
	}

	progressCh := make(chan models.Progress, 64)
	mutations := make(chan models.Mutation, 16)
	quit := make(chan struct{})

	env := &RunEnv{
		Config:     o.cfg,
		Calculator: NewInvestmentCalculator(o.cfg, in.Reference, g.IsVehicle, o.metrics),
		Flag:       h.flag,
		Metrics:    o.metrics,
		Slots:      semaphore.NewWeighted(int64(max(o.cfg.Workers, 1))),
		Report: func(p models.Progress) {
			select {
			case progressCh <- p:
			case <-quit:
			}
		},
	}

	aggDone := make(chan struct{})
	go func() {
		defer close(aggDone)
		h.progress.Consume(progressCh, quit, o.cfg.ProgressInterval)
	}()
	writer := NewWriter(o.store, mutations)
	go writer.Drain(quit)

	stop := context.AfterFunc(ctx, func() { h.flag.Raise("context cancelled") })
	defer stop()

	eg, egctx := errgroup.WithContext(ctx)
	done := make(chan error, 1)
	go func() {
		for _, j := range jobs {
			if h.flag.Raised() {
				break
			}
			if err := env.Slots.Acquire(egctx, 1); err != nil {
				break
			}
			eg.Go(func() error {
				defer env.Slots.Release(1)
				return o.runJob(egctx, env, g, arena, j, mutations, quit)
			})
		}
		done <- eg.Wait()
	}()

	if err := o.await(done, h.flag); err != nil {
		if errors.Is(err, ErrHardCancel) {
			// workers may still be running; abandon the channels instead of closing them
			close(quit)
			return g, writer, err
		}
		close(progressCh)
		close(mutations)
		<-aggDone
		writer.Wait()
		close(quit)
		return g, writer, err
	}

	close(progressCh)
	close(mutations)
	<-aggDone
	writer.Wait()
	close(quit)

	if h.flag.Raised() {
		return g, writer, fmt.Errorf("%w: %s", ErrCancelled, h.flag.Reason())
	}
	if !h.progress.Completed() {
		return g, writer, errors.New("not every vehicle reported completion")
	}
	return g, writer, nil
}

// await waits for the pool. Once the cancel flag is raised, workers get
// cancel_grace to return before the run is abandoned.
func (o *Orchestrator) await(done <-chan error, flag *CancelFlag) error {
	raised := flag.Done()
	var grace <-chan time.Time
	for {
		select {
		case err := <-done:
			return err
		case <-raised:
			raised = nil
			timer := time.NewTimer(o.cfg.CancelGrace)
			defer timer.Stop()
			grace = timer.C
		case <-grace:
			return fmt.Errorf("%w (%s): %s", ErrHardCancel, o.cfg.CancelGrace, flag.Reason())
		}
	}
}

// runJob executes one job and hands its results to the writer. Any error or
// panic raises the run's cancel flag.
func (o *Orchestrator) runJob(ctx context.Context, env *RunEnv, g *graph.Graph, arena cache.Arena, j job, mutations chan<- models.Mutation, quit <-chan struct{}) (err error) {
	start := time.Now()
	entry := log.WithFields(log.Fields{"job": j.name, "kind": j.kind})
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", j.name, r)
		}
		if err != nil {
			env.Flag.Raise(fmt.Sprintf("%s: %v", j.name, err))
			for _, v := range j.vehicles {
				env.progress(models.Progress{VehicleID: v, Status: models.StatusFailed})
			}
			if !errors.Is(err, ErrCancelled) {
				entry.Errorf("job failed: %v", err)
			}
		}
		o.metrics.ObserveJob(string(j.kind), time.Since(start))
	}()

	if err := checkpoint(ctx, env.Flag); err != nil {
		return err
	}

	var rows []models.CalculationRow
	switch j.kind {
	case jobDirect:
		rows, err = NewDirectHoldings(env, g).Run(ctx, arena[j.name])
	case jobVehicle:
		var results []*VehicleResult
		results, err = runVehicle(ctx, env, arena[j.name])
		rows = rowsOf(results)
	case jobClump:
		rows, err = NewClumpLinker(env, g).Run(ctx, j.clump, arena.Subset(j.vehicles...))
	}
	if err != nil {
		return err
	}

	var corrections []models.BalanceRecord
	for _, v := range j.vehicles {
		corrections = append(corrections, arena[v].Corrections()...)
	}
	batch := []models.Mutation{{Kind: models.MutationInsert, VehicleID: j.name, Rows: rows}}
	if len(corrections) > 0 {
		batch = append(batch, models.Mutation{Kind: models.MutationUpdate, VehicleID: j.name, Balances: corrections})
	}
	for _, m := range batch {
		select {
		case mutations <- m:
		case <-quit:
			return ErrHardCancel
		}
	}

	for _, v := range j.vehicles {
		env.progress(models.Progress{VehicleID: v, Status: models.StatusCompleted})
	}
	entry.Debugf("job produced %d rows", len(rows))
	return nil
}

// planJobs splits the graph into independent units: direct owners, standalone
// vehicles and clumps. Larger clumps are scheduled first.
func planJobs(g *graph.Graph) []job {
	clumps, standalone := g.Clumps()
	sort.SliceStable(clumps, func(i, j int) bool { return len(clumps[i].Vehicles) > len(clumps[j].Vehicles) })

	var jobs []job
	for _, c := range clumps {
		jobs = append(jobs, job{kind: jobClump, name: c.Name(), vehicles: c.Vehicles, clump: c})
	}
	for _, v := range standalone {
		jobs = append(jobs, job{kind: jobVehicle, name: v, vehicles: []string{v}})
	}
	for _, owner := range g.DirectOwners() {
		jobs = append(jobs, job{kind: jobDirect, name: owner, vehicles: []string{owner}})
	}
	return jobs
}

// acyclicRecords drops every record touching a vehicle removed for a cycle
func acyclicRecords(g *graph.Graph, balances []models.BalanceRecord, transactions []models.TransactionRecord) ([]models.BalanceRecord, []models.TransactionRecord) {
	if len(g.Dropped) == 0 {
		return balances, transactions
	}
	keptB := make([]models.BalanceRecord, 0, len(balances))
	for _, b := range balances {
		if !g.IsRemoved(b.Source) && !g.IsRemoved(b.Target) {
			keptB = append(keptB, b)
		}
	}
	keptT := make([]models.TransactionRecord, 0, len(transactions))
	for _, t := range transactions {
		if !g.IsRemoved(t.Source) && !g.IsRemoved(t.Target) {
			keptT = append(keptT, t)
		}
	}
	return keptB, keptT
}
