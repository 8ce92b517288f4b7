package simulation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"vendorrisk/internal/config"
	"vendorrisk/internal/engine"
	"vendorrisk/internal/metrics"
	"vendorrisk/internal/model"
)

type recordingPublisher struct {
	mu     sync.Mutex
	states []model.State
}

func (p *recordingPublisher) Publish(_ context.Context, state model.State) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.states = append(p.states, state)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.states)
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Simulation.Seed = 42
	cfg.Simulation.IncidentProbability = 1
	cfg.Simulation.ResolveProbability = 0
	cfg.Simulation.Fluctuation = 0
	cfg.Simulation.TickInterval = 5 * time.Millisecond
	return cfg
}

func newRunnerForTest(t *testing.T, cfg *config.Config, vendors []model.Vendor) (*Runner, *recordingPublisher) {
	t.Helper()
	pub := &recordingPublisher{}
	n := 0
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	r := New(cfg, vendors, Options{
		Metrics:   metrics.New(),
		Publisher: pub,
		Clock: func() time.Time {
			clock = clock.Add(time.Second)
			return clock
		},
		Engine: []engine.Option{engine.WithIDs(func() string {
			n++
			return fmt.Sprintf("inc-%d", n)
		})},
	})
	t.Cleanup(r.Stop)
	return r, pub
}

func vendorByID(t *testing.T, st model.State, id string) model.Vendor {
	t.Helper()
	for _, v := range st.Vendors {
		if v.ID == id {
			return v
		}
	}
	t.Fatalf("vendor %s not in state", id)
	return model.Vendor{}
}

func TestStepRecordsEverySink(t *testing.T) {
	r, pub := newRunnerForTest(t, testConfig(), engine.DefaultVendors())

	entry := r.Step()
	if entry.Kind != model.TimelineTick || entry.Tick != 1 {
		t.Fatalf("unexpected entry: %+v", entry)
	}
	if entry.Generated == nil || entry.Generated.ID != "inc-1" {
		t.Fatalf("expected generated incident, got %+v", entry.Generated)
	}
	if entry.OpenIncidents != 1 {
		t.Fatalf("expected 1 open incident, got %d", entry.OpenIncidents)
	}
	st := r.Snapshot()
	if st.Time != 1 || len(st.Incidents) != 1 {
		t.Fatalf("unexpected state: time=%d incidents=%d", st.Time, len(st.Incidents))
	}
	if r.Timeline().Len() != 1 {
		t.Fatalf("expected 1 timeline entry, got %d", r.Timeline().Len())
	}
	if stored := r.Timeline().List(1)[0]; stored.OpenIncidents != entry.OpenIncidents {
		t.Fatalf("returned entry disagrees with timeline: %d vs %d", entry.OpenIncidents, stored.OpenIncidents)
	}
	points, _, ok := r.Ratings().Get(st.Incidents[0].VendorID)
	if !ok || len(points) != 2 {
		t.Fatalf("expected seed point plus tick point, got %d", len(points))
	}
	if pub.count() != 1 {
		t.Fatalf("expected 1 publish, got %d", pub.count())
	}
}

func TestStepKeepsHistoryBounded(t *testing.T) {
	r, _ := newRunnerForTest(t, testConfig(), engine.DefaultVendors())
	for i := 0; i < 60; i++ {
		r.Step()
	}
	st := r.Snapshot()
	if st.Time != 60 {
		t.Fatalf("expected time 60, got %d", st.Time)
	}
	if len(st.Incidents) != 50 {
		t.Fatalf("expected history capped at 50, got %d", len(st.Incidents))
	}
	if st.Incidents[0].ID != "inc-11" || st.Incidents[49].ID != "inc-60" {
		t.Fatalf("expected oldest evicted first, got %s..%s", st.Incidents[0].ID, st.Incidents[49].ID)
	}
	for _, v := range st.Vendors {
		if v.SecurityRating < 0 || v.SecurityRating > 100 {
			t.Fatalf("rating out of bounds: %v", v.SecurityRating)
		}
	}
}

func TestTriggerAppliesPenalty(t *testing.T) {
	r, _ := newRunnerForTest(t, testConfig(), engine.DefaultVendors())
	before := r.Snapshot()

	inc, err := r.Trigger()
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}
	if inc.Severity != model.SeverityHigh || inc.Status != model.IncidentOpen {
		t.Fatalf("unexpected incident: %+v", inc)
	}
	after := r.Snapshot()
	if after.Time != before.Time {
		t.Fatalf("trigger must not advance time")
	}
	want := vendorByID(t, before, inc.VendorID).SecurityRating - 15
	if got := vendorByID(t, after, inc.VendorID).SecurityRating; got != want {
		t.Fatalf("expected rating %v, got %v", want, got)
	}
	if last := r.Timeline().List(1); last[0].Kind != model.TimelineTrigger {
		t.Fatalf("expected trigger entry, got %s", last[0].Kind)
	}
}

func TestResolve(t *testing.T) {
	r, pub := newRunnerForTest(t, testConfig(), engine.DefaultVendors())
	id := r.Step().Generated.ID

	inc, err := r.Resolve(id)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !inc.Resolved() || inc.ResolvedAt == nil {
		t.Fatalf("expected resolved incident, got %+v", inc)
	}
	last := r.Timeline().List(1)[0]
	if last.Kind != model.TimelineResolve || len(last.Resolved) != 1 || last.Resolved[0] != id || last.OpenIncidents != 0 {
		t.Fatalf("unexpected resolve entry: %+v", last)
	}

	entries, published := r.Timeline().Len(), pub.count()
	again, err := r.Resolve(id)
	if err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if !again.ResolvedAt.Equal(*inc.ResolvedAt) {
		t.Fatalf("second resolve changed resolved_at")
	}
	if r.Timeline().Len() != entries || pub.count() != published {
		t.Fatalf("second resolve must not record anything")
	}

	if _, err := r.Resolve("missing"); !errors.Is(err, ErrIncidentNotFound) {
		t.Fatalf("expected ErrIncidentNotFound, got %v", err)
	}
}

func TestReset(t *testing.T) {
	r, _ := newRunnerForTest(t, testConfig(), engine.DefaultVendors())
	seed := r.Snapshot()
	for i := 0; i < 5; i++ {
		r.Step()
	}
	if _, err := r.Trigger(); err != nil {
		t.Fatalf("trigger: %v", err)
	}

	r.Reset()
	st := r.Snapshot()
	if st.Time != 0 || len(st.Incidents) != 0 {
		t.Fatalf("expected fresh state, got time=%d incidents=%d", st.Time, len(st.Incidents))
	}
	for _, v := range seed.Vendors {
		if got := vendorByID(t, st, v.ID); got.SecurityRating != v.SecurityRating {
			t.Fatalf("vendor %s rating %v, want %v", v.ID, got.SecurityRating, v.SecurityRating)
		}
	}
	if r.Timeline().Len() != 1 || r.Timeline().List(1)[0].Kind != model.TimelineReset {
		t.Fatalf("expected timeline with only the reset entry")
	}
	if points, _, _ := r.Ratings().Get("sim-1"); len(points) != 1 {
		t.Fatalf("expected rating history restarted, got %d points", len(points))
	}
}

func TestStartStop(t *testing.T) {
	r, _ := newRunnerForTest(t, testConfig(), engine.DefaultVendors())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r.Start(ctx)
	r.Start(ctx)
	if !r.Running() {
		t.Fatalf("expected running")
	}
	deadline := time.Now().Add(2 * time.Second)
	for r.Snapshot().Time < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("ticker did not advance the simulation")
		}
		time.Sleep(5 * time.Millisecond)
	}
	r.Stop()
	if r.Running() {
		t.Fatalf("expected stopped")
	}
	stopped := r.Snapshot().Time
	time.Sleep(30 * time.Millisecond)
	if r.Snapshot().Time != stopped {
		t.Fatalf("simulation advanced after stop")
	}
	r.Stop()
}

func TestUpdateConfigSwapsParameters(t *testing.T) {
	cfg := testConfig()
	r, _ := newRunnerForTest(t, cfg, engine.DefaultVendors())
	next := testConfig()
	next.Simulation.IncidentProbability = 0
	next.Simulation.TriggerPenalty = 30
	r.UpdateConfig(next)

	if entry := r.Step(); entry.Generated != nil {
		t.Fatalf("expected no incident at probability 0")
	}
	if r.Params().TriggerPenalty != 30 {
		t.Fatalf("expected trigger penalty 30, got %v", r.Params().TriggerPenalty)
	}
}

func TestUpdateConfigRestartsLoopOnIntervalChange(t *testing.T) {
	r, _ := newRunnerForTest(t, testConfig(), engine.DefaultVendors())
	r.Start(context.Background())
	next := testConfig()
	next.Simulation.TickInterval = 10 * time.Millisecond
	r.UpdateConfig(next)
	if !r.Running() {
		t.Fatalf("expected loop running after interval change")
	}
	if got := r.Status().Interval; got != "10ms" {
		t.Fatalf("expected 10ms interval, got %s", got)
	}
}

func TestResidualUsesCurrentState(t *testing.T) {
	r, _ := newRunnerForTest(t, testConfig(), engine.DefaultVendors())
	score, err := r.Residual("sim-3")
	if err != nil {
		t.Fatalf("residual: %v", err)
	}
	if score.Residual != engine.ResidualRisk(vendorByID(t, r.Snapshot(), "sim-3")) {
		t.Fatalf("unexpected residual %+v", score)
	}
	if _, err := r.Residual("nope"); !errors.Is(err, ErrVendorNotFound) {
		t.Fatalf("expected ErrVendorNotFound, got %v", err)
	}
}

func TestRunnerWithoutVendors(t *testing.T) {
	r, _ := newRunnerForTest(t, testConfig(), nil)
	if _, err := r.Trigger(); !errors.Is(err, ErrNoVendors) {
		t.Fatalf("expected ErrNoVendors, got %v", err)
	}
	entry := r.Step()
	if entry.Tick != 1 || entry.Generated != nil {
		t.Fatalf("expected time-only tick, got %+v", entry)
	}
	if st := r.Status(); st.Time != 1 || st.Vendors != 0 {
		t.Fatalf("unexpected status: %+v", st)
	}
}
