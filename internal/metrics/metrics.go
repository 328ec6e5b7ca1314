package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 引擎计数器
var (
	Submissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pledge_engine",
		Name:      "submissions_total",
		Help:      "Ledger submissions by operation.",
	}, []string{"operation"})

	Reconciliations = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pledge_engine",
		Name:      "reconciliations_total",
		Help:      "Optimistic writes finalized against mined ledger state.",
	})

	Rollbacks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pledge_engine",
		Name:      "rollbacks_total",
		Help:      "Optimistic writes rolled back after a failed submission.",
	})

	Conflicts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pledge_engine",
		Name:      "conflicts_total",
		Help:      "Local pending writes superseded by external ledger events.",
	})

	Sweeps = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pledge_engine",
		Name:      "commit_window_sweeps_total",
		Help:      "Commit-window sweep runs.",
	})

	AutoCommits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pledge_engine",
		Name:      "auto_commits_total",
		Help:      "Delegations auto-committed after the commit window elapsed.",
	})
)
