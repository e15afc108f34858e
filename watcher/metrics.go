package watcher

import (
	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
)

var (
	metricCycles      = stats.Int64("watcher/cycles", "reconciliation cycles run", stats.UnitDimensionless)
	metricCycleMs     = stats.Float64("watcher/cycle_ms", "cycle duration", stats.UnitMilliseconds)
	metricCandidates  = stats.Int64("watcher/candidates", "candidate deals per cycle", stats.UnitDimensionless)
	metricMatches     = stats.Int64("watcher/matches", "transfers matched to deals", stats.UnitDimensionless)
	metricCompletions = stats.Int64("watcher/completions", "deals settled", stats.UnitDimensionless)
	metricRaceNoops   = stats.Int64("watcher/race_noops", "completions lost to a concurrent transition", stats.UnitDimensionless)
)

func init() {
	err := view.Register(
		&view.View{Name: "watcher/cycles", Measure: metricCycles, Aggregation: view.Count()},
		&view.View{Name: "watcher/cycle_ms", Measure: metricCycleMs, Aggregation: view.Distribution(10, 50, 100, 500, 1000, 5000, 20000)},
		&view.View{Name: "watcher/candidates", Measure: metricCandidates, Aggregation: view.Sum()},
		&view.View{Name: "watcher/matches", Measure: metricMatches, Aggregation: view.Sum()},
		&view.View{Name: "watcher/completions", Measure: metricCompletions, Aggregation: view.Sum()},
		&view.View{Name: "watcher/race_noops", Measure: metricRaceNoops, Aggregation: view.Sum()},
	)
	if err != nil {
		log.Errorf("register views failed:%v", err)
	}
}
