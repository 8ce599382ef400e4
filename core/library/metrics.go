package library

import "expvar"

// Repair counters, exposed under /debug/vars.
var (
	metricDriftDetected  = expvar.NewInt("library.drift_detected")
	metricBooksRepaired  = expvar.NewInt("library.books_repaired")
	metricOrphansRemoved = expvar.NewInt("library.orphans_removed")
	metricLoansFlagged   = expvar.NewInt("library.loans_flagged")
	metricRepairFailures = expvar.NewInt("library.repair_failures")
)
