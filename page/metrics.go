package page

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	triggerInitial = "initial"
	triggerNotify  = "notify"
	triggerUser    = "user"
)

var (
	connectsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "greetboard",
		Name:      "connects_total",
		Help:      "Wallet connect attempts by result.",
	}, []string{"result"})

	submissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "greetboard",
		Name:      "submissions_total",
		Help:      "Greeting submissions by result.",
	}, []string{"result"})

	refreshesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "greetboard",
		Name:      "refreshes_total",
		Help:      "Feed refreshes by trigger and result.",
	}, []string{"trigger", "result"})

	notificationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "greetboard",
		Name:      "notifications_total",
		Help:      "Greeted events received.",
	})
)

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
