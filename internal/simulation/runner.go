package simulation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"vendorrisk/internal/config"
	"vendorrisk/internal/engine"
	"vendorrisk/internal/metrics"
	"vendorrisk/internal/model"
	"vendorrisk/internal/publish"
	"vendorrisk/internal/ratings"
	"vendorrisk/internal/timeline"
)

var (
	ErrNoVendors        = errors.New("simulation has no vendors")
	ErrIncidentNotFound = errors.New("incident not found")
	ErrVendorNotFound   = errors.New("vendor not found")
)

// Options wires the optional collaborators of a Runner. Nil members are
// skipped, except Timeline and Ratings which get default-sized stores.
type Options struct {
	Timeline  *timeline.Store
	Ratings   *ratings.Store
	Metrics   *metrics.Collectors
	Publisher publish.Publisher
	Logger    *slog.Logger
	Rand      engine.Rand
	Clock     func() time.Time
	Engine    []engine.Option
}

// Runner owns the simulation state and drives the engine on a ticker. All
// transitions are serialized under one lock.
type Runner struct {
	mu       sync.Mutex
	engine   *engine.Engine
	rnd      engine.Rand
	state    model.State
	seed     []model.Vendor
	interval time.Duration

	timeline  *timeline.Store
	ratings   *ratings.Store
	metrics   *metrics.Collectors
	publisher publish.Publisher
	logger    *slog.Logger
	now       func() time.Time
	engineOps []engine.Option

	pubMu   sync.Mutex
	parent  context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

type Status struct {
	Running       bool      `json:"running"`
	Time          int       `json:"time"`
	Interval      string    `json:"tick_interval"`
	Vendors       int       `json:"vendors"`
	Incidents     int       `json:"incidents"`
	OpenIncidents int       `json:"open_incidents"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func New(cfg *config.Config, vendors []model.Vendor, opts Options) *Runner {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	r := &Runner{
		rnd:       opts.Rand,
		seed:      append([]model.Vendor(nil), vendors...),
		interval:  cfg.Simulation.TickInterval,
		timeline:  opts.Timeline,
		ratings:   opts.Ratings,
		metrics:   opts.Metrics,
		publisher: opts.Publisher,
		logger:    opts.Logger,
		now:       opts.Clock,
		engineOps: opts.Engine,
	}
	if r.rnd == nil {
		seed := cfg.Simulation.Seed
		if seed == 0 {
			seed = uint64(time.Now().UnixNano())
		}
		r.rnd = engine.NewRand(seed)
	}
	if r.timeline == nil {
		r.timeline = timeline.NewStore(cfg.Timeline.StoreLimit)
	}
	if r.ratings == nil {
		r.ratings = ratings.NewStore(cfg.Ratings.StoreLimit, cfg.Ratings.Points)
	}
	if r.now == nil {
		r.now = func() time.Time { return time.Now().UTC() }
	}
	r.engine = r.newEngine(cfg.Simulation)
	r.state = engine.SeedState(r.seed)
	r.ratings.Record(r.state, r.now())
	if r.metrics != nil {
		r.metrics.SetState(r.state)
	}
	return r
}

func paramsFrom(sim config.SimulationConfig) engine.Params {
	return engine.Params{
		IncidentProbability: sim.IncidentProbability,
		ResolveProbability:  sim.ResolveProbability,
		HistoryLimit:        sim.HistoryLimit,
		PenaltyScale:        sim.PenaltyScale,
		Fluctuation:         sim.Fluctuation,
		TriggerPenalty:      sim.TriggerPenalty,
	}
}

func (r *Runner) newEngine(sim config.SimulationConfig) *engine.Engine {
	opts := append([]engine.Option{engine.WithClock(r.now)}, r.engineOps...)
	return engine.New(paramsFrom(sim), r.rnd, opts...)
}

func (r *Runner) Timeline() *timeline.Store {
	return r.timeline
}

func (r *Runner) Ratings() *ratings.Store {
	return r.ratings
}

// Start launches the ticker loop. Starting a running simulation is a no-op.
func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return
	}
	r.startLocked(ctx)
}

func (r *Runner) startLocked(ctx context.Context) {
	r.parent = ctx
	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	r.cancel = cancel
	r.done = done
	r.running = true
	interval := r.interval
	if interval <= 0 {
		interval = 3 * time.Second
	}
	if r.logger != nil {
		r.logger.Info("simulation started", "tick_interval", interval.String(), "tick", r.state.Time)
	}
	go r.loop(loopCtx, interval, done)
}

func (r *Runner) loop(ctx context.Context, interval time.Duration, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Step()
		}
	}
}

// Stop halts the ticker loop and waits for an in-flight tick to finish.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	cancel, done := r.cancel, r.done
	r.running = false
	r.cancel = nil
	r.done = nil
	r.mu.Unlock()

	cancel()
	<-done
	if r.logger != nil {
		r.logger.Info("simulation stopped")
	}
}

func (r *Runner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// Step advances the simulation by one tick.
func (r *Runner) Step() model.TimelineEntry {
	r.mu.Lock()
	prev := r.state
	next := r.engine.Tick(prev)
	entry := model.TimelineEntry{
		At:        r.now(),
		Tick:      next.Time,
		Kind:      model.TimelineTick,
		Generated: generatedIn(prev, next),
		Resolved:  resolvedIn(prev, next),
	}
	snapshot := r.commitLocked(&entry, next)
	r.mu.Unlock()

	if r.logger != nil && entry.Generated != nil {
		r.logger.Info("incident generated",
			"tick", entry.Tick,
			"incident_id", entry.Generated.ID,
			"vendor_id", entry.Generated.VendorID,
			"severity", entry.Generated.Severity)
	}
	r.publish(snapshot)
	return entry
}

// Trigger forces a high severity incident on a random vendor.
func (r *Runner) Trigger() (model.Incident, error) {
	r.mu.Lock()
	next, inc := r.engine.TriggerIncident(r.state)
	if inc == nil {
		r.mu.Unlock()
		return model.Incident{}, ErrNoVendors
	}
	entry := model.TimelineEntry{
		At:        r.now(),
		Tick:      next.Time,
		Kind:      model.TimelineTrigger,
		Generated: inc,
	}
	snapshot := r.commitLocked(&entry, next)
	r.mu.Unlock()

	if r.logger != nil {
		r.logger.Warn("incident triggered", "incident_id", inc.ID, "vendor_id", inc.VendorID, "severity", inc.Severity)
	}
	r.publish(snapshot)
	return *inc, nil
}

// Resolve marks an incident resolved. Resolving an already resolved incident
// succeeds without recording anything.
func (r *Runner) Resolve(id string) (model.Incident, error) {
	r.mu.Lock()
	next, ok := r.engine.ResolveIncident(r.state, id)
	if !ok {
		r.mu.Unlock()
		return model.Incident{}, fmt.Errorf("%w: %s", ErrIncidentNotFound, id)
	}
	inc, _ := findIncident(next.Incidents, id)
	prevInc, _ := findIncident(r.state.Incidents, id)
	if prevInc.Resolved() {
		r.mu.Unlock()
		return inc, nil
	}
	entry := model.TimelineEntry{
		At:       r.now(),
		Tick:     next.Time,
		Kind:     model.TimelineResolve,
		Resolved: []string{id},
	}
	snapshot := r.commitLocked(&entry, next)
	r.mu.Unlock()

	if r.logger != nil {
		r.logger.Info("incident resolved", "incident_id", id, "vendor_id", inc.VendorID)
	}
	r.publish(snapshot)
	return inc, nil
}

// Reset reseeds the simulation at time zero and clears recorded history.
func (r *Runner) Reset() {
	r.mu.Lock()
	r.timeline.Clear()
	r.ratings.Clear()
	next := engine.SeedState(r.seed)
	entry := model.TimelineEntry{At: r.now(), Tick: 0, Kind: model.TimelineReset}
	snapshot := r.commitLocked(&entry, next)
	r.mu.Unlock()

	if r.logger != nil {
		r.logger.Info("simulation reset", "vendors", len(snapshot.Vendors))
	}
	r.publish(snapshot)
}

// Snapshot returns a copy of the current state.
func (r *Runner) Snapshot() model.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return copyState(r.state)
}

func (r *Runner) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	open := 0
	for _, inc := range r.state.Incidents {
		if !inc.Resolved() {
			open++
		}
	}
	var updated time.Time
	if list := r.timeline.List(1); len(list) == 1 {
		updated = list[0].At
	}
	return Status{
		Running:       r.running,
		Time:          r.state.Time,
		Interval:      r.interval.String(),
		Vendors:       len(r.state.Vendors),
		Incidents:     len(r.state.Incidents),
		OpenIncidents: open,
		UpdatedAt:     updated,
	}
}

func (r *Runner) Params() engine.Params {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.engine.Params()
}

// UpdateConfig swaps the engine parameters. A running loop is restarted when
// the tick interval changes.
func (r *Runner) UpdateConfig(cfg *config.Config) {
	if cfg == nil {
		return
	}
	r.mu.Lock()
	r.engine = r.newEngine(cfg.Simulation)
	changed := cfg.Simulation.TickInterval != r.interval
	r.interval = cfg.Simulation.TickInterval
	restart := changed && r.running
	parent := r.parent
	r.mu.Unlock()

	if r.logger != nil {
		r.logger.Info("simulation config updated",
			"incident_probability", cfg.Simulation.IncidentProbability,
			"resolve_probability", cfg.Simulation.ResolveProbability,
			"tick_interval", cfg.Simulation.TickInterval.String())
	}
	if restart {
		r.Stop()
		r.Start(parent)
	}
}

// Residual scores one vendor of the current state with the residual formula.
func (r *Runner) Residual(vendorID string) (engine.ResidualScore, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, v := range r.state.Vendors {
		if v.ID == vendorID {
			return engine.ScoreResidual(v), nil
		}
	}
	return engine.ResidualScore{}, fmt.Errorf("%w: %s", ErrVendorNotFound, vendorID)
}

// commitLocked makes next current, completes entry with the open incident
// count and records it in every sink.
func (r *Runner) commitLocked(entry *model.TimelineEntry, next model.State) model.State {
	r.state = next
	for _, inc := range next.Incidents {
		if !inc.Resolved() {
			entry.OpenIncidents++
		}
	}
	r.timeline.Add(*entry)
	r.ratings.Record(next, entry.At)
	if r.metrics != nil {
		r.metrics.Observe(*entry, next)
	}
	return copyState(next)
}

func (r *Runner) publish(state model.State) {
	if r.publisher == nil {
		return
	}
	r.pubMu.Lock()
	defer r.pubMu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.publisher.Publish(ctx, state); err != nil && r.logger != nil {
		r.logger.Warn("snapshot publish failed", "tick", state.Time, "err", err)
	}
}

// generatedIn returns the incident appended by a tick, if any.
func generatedIn(prev, next model.State) *model.Incident {
	if len(next.Incidents) == 0 {
		return nil
	}
	last := next.Incidents[len(next.Incidents)-1]
	if _, ok := findIncident(prev.Incidents, last.ID); ok {
		return nil
	}
	return &last
}

func resolvedIn(prev, next model.State) []string {
	var out []string
	for _, inc := range next.Incidents {
		if !inc.Resolved() {
			continue
		}
		if before, ok := findIncident(prev.Incidents, inc.ID); ok && !before.Resolved() {
			out = append(out, inc.ID)
		}
	}
	return out
}

func findIncident(list []model.Incident, id string) (model.Incident, bool) {
	for _, inc := range list {
		if inc.ID == id {
			return inc, true
		}
	}
	return model.Incident{}, false
}

func copyState(s model.State) model.State {
	out := model.State{
		Time:      s.Time,
		Vendors:   make([]model.Vendor, len(s.Vendors)),
		Incidents: make([]model.Incident, len(s.Incidents)),
	}
	copy(out.Vendors, s.Vendors)
	copy(out.Incidents, s.Incidents)
	return out
}
