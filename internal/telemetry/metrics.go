package telemetry

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/victornm/livequiz/internal/domain"
	"github.com/victornm/livequiz/internal/event"
)

// Metrics counts room activity from bus events.
type Metrics struct {
	Rooms       prometheus.Gauge
	Connections prometheus.Gauge
	Answers     *prometheus.CounterVec
	Questions   *prometheus.CounterVec
	Quizzes     prometheus.Counter

	subs []*event.Subscription
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		Rooms: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "livequiz",
			Name:      "rooms",
			Help:      "Number of live rooms.",
		}),
		Connections: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "livequiz",
			Name:      "room_connections",
			Help:      "Number of connections that joined a room.",
		}),
		Answers: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "livequiz",
			Name:      "answers_total",
			Help:      "Submitted answers by outcome.",
		}, []string{"outcome"}),
		Questions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "livequiz",
			Name:      "questions_closed_total",
			Help:      "Closed questions by reason.",
		}, []string{"reason"}),
		Quizzes: f.NewCounter(prometheus.CounterOpts{
			Namespace: "livequiz",
			Name:      "quizzes_ended_total",
			Help:      "Quizzes played to the end.",
		}),
	}
}

// Observe subscribes the metrics to the bus.
func (m *Metrics) Observe(eb *event.Bus) {
	on := func(name string, f func(e event.Event)) {
		m.subs = append(m.subs, eb.Subscribe(name, func(_ context.Context, e event.Event) error {
			f(e)
			return nil
		}))
	}

	on(domain.EventNameRoomCreated, func(event.Event) { m.Rooms.Inc() })
	on(domain.EventNameRoomDestroyed, func(event.Event) { m.Rooms.Dec() })
	on(domain.EventNameConnectionJoined, func(event.Event) { m.Connections.Inc() })
	on(domain.EventNameConnectionLeft, func(event.Event) { m.Connections.Dec() })
	on(domain.EventNameAnswerSubmitted, func(e event.Event) {
		m.Answers.WithLabelValues(e.(domain.EventAnswerSubmitted).Outcome).Inc()
	})
	on(domain.EventNameQuestionClosed, func(e event.Event) {
		m.Questions.WithLabelValues(string(e.(domain.EventQuestionClosed).Reason)).Inc()
	})
	on(domain.EventNameQuizEnded, func(event.Event) { m.Quizzes.Inc() })
}

// Close unsubscribes the metrics from the bus.
func (m *Metrics) Close() {
	for _, s := range m.subs {
		s.Close()
	}
	m.subs = nil
}
