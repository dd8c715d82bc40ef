package maintenance

import "github.com/prometheus/client_golang/prometheus"

var (
	retentionRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querymind_history_retention_runs_total",
			Help: "Total number of history retention runs by status.",
		},
		[]string{"status"},
	)
	historyEntriesPrunedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "querymind_history_entries_pruned_total",
			Help: "Total number of history entries deleted by retention runs.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		retentionRunsTotal,
		historyEntriesPrunedTotal,
	)
}
