package metrics

import (
	"context"

	"coinduel/events"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector exposes the service's core counters.
type Collector struct {
	RoomsCreated  prometheus.Counter
	GamesStarted  prometheus.Counter
	GamesFinished prometheus.Counter
	GamesCanceled prometheus.Counter
	LedgerWrites  *prometheus.CounterVec
}

// NewCollector registers the counters on the default registry.
func NewCollector() *Collector {
	return &Collector{
		RoomsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "coinduel_rooms_created_total",
			Help: "Number of rooms created",
		}),
		GamesStarted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "coinduel_games_started_total",
			Help: "Number of games that took bets and started",
		}),
		GamesFinished: promauto.NewCounter(prometheus.CounterOpts{
			Name: "coinduel_games_finished_total",
			Help: "Number of games resolved with a payout",
		}),
		GamesCanceled: promauto.NewCounter(prometheus.CounterOpts{
			Name: "coinduel_games_canceled_total",
			Help: "Number of games canceled before funds moved",
		}),
		LedgerWrites: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "coinduel_ledger_entries_total",
			Help: "Number of ledger entries written, by kind",
		}, []string{"kind"}),
	}
}

// Bind increments counters from bus events; the domain services stay free of
// instrumentation concerns.
func (c *Collector) Bind(bus *events.Bus) {
	bus.Subscribe(events.EventTypeRoomCreated, func(ctx context.Context, event events.Event) {
		c.RoomsCreated.Inc()
	})
	bus.Subscribe(events.EventTypeGameStart, func(ctx context.Context, event events.Event) {
		c.GamesStarted.Inc()
	})
	bus.Subscribe(events.EventTypeGameEnd, func(ctx context.Context, event events.Event) {
		c.GamesFinished.Inc()
	})
	bus.Subscribe(events.EventTypeGameCanceled, func(ctx context.Context, event events.Event) {
		c.GamesCanceled.Inc()
	})
	bus.Subscribe(events.EventTypeBalanceChange, func(ctx context.Context, event events.Event) {
		e := event.(events.BalanceChangeEvent)
		c.LedgerWrites.WithLabelValues(string(e.Kind)).Inc()
	})
}
