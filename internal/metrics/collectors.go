package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"vendorrisk/internal/model"
)

const namespace = "vendorrisk"

// Collectors exposes simulation progress on a private registry.
type Collectors struct {
	registry  *prometheus.Registry
	ticks     prometheus.Counter
	generated *prometheus.CounterVec
	resolved  prometheus.Counter
	triggers  prometheus.Counter
	open      prometheus.Gauge
	simTime   prometheus.Gauge
	rating    *prometheus.GaugeVec
}

func New() *Collectors {
	c := &Collectors{
		registry: prometheus.NewRegistry(),
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Simulation ticks executed.",
		}),
		generated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "incidents_generated_total",
			Help:      "Incidents produced by the generator, by severity.",
		}, []string{"severity"}),
		resolved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "incidents_resolved_total",
			Help:      "Incidents resolved by sampling or by request.",
		}),
		triggers: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "incidents_triggered_total",
			Help:      "Incidents forced through the trigger operation.",
		}),
		open: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "open_incidents",
			Help:      "Open incidents in the bounded history.",
		}),
		simTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "simulation_time",
			Help:      "Current simulation tick counter.",
		}),
		rating: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "vendor_security_rating",
			Help:      "Current security rating per vendor.",
		}, []string{"vendor_id"}),
	}
	c.registry.MustRegister(
		c.ticks, c.generated, c.resolved, c.triggers, c.open, c.simTime, c.rating,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

func (c *Collectors) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collectors) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Observe records one timeline entry and the state it produced.
func (c *Collectors) Observe(entry model.TimelineEntry, state model.State) {
	switch entry.Kind {
	case model.TimelineTick:
		c.ticks.Inc()
		if entry.Generated != nil {
			c.generated.WithLabelValues(string(entry.Generated.Severity)).Inc()
		}
	case model.TimelineTrigger:
		c.triggers.Inc()
	case model.TimelineReset:
		c.rating.Reset()
	}
	c.resolved.Add(float64(len(entry.Resolved)))
	c.SetState(state)
}

func (c *Collectors) SetState(state model.State) {
	open := 0
	for _, inc := range state.Incidents {
		if !inc.Resolved() {
			open++
		}
	}
	c.open.Set(float64(open))
	c.simTime.Set(float64(state.Time))
	for _, v := range state.Vendors {
		c.rating.WithLabelValues(v.ID).Set(v.SecurityRating)
	}
}
