package metrics

import "expvar"

var (
	OrdersSubmitted     = expvar.NewInt("orders_submitted")
	OrdersRejected      = expvar.NewInt("orders_rejected")
	OrdersErrored       = expvar.NewInt("orders_errored")
	OrderStatusSyncs    = expvar.NewInt("order_status_syncs")
	LargeOrdersRecorded = expvar.NewInt("large_orders_recorded")
	StrategyPasses      = expvar.NewInt("strategy_passes")
	StrategyPassErrors  = expvar.NewInt("strategy_pass_errors")
	EventsHandled       = expvar.NewInt("events_handled")
	EventsRecorded      = expvar.NewInt("events_recorded")
	PersistenceErrors   = expvar.NewInt("persistence_errors")
	AlertsRaised        = expvar.NewInt("alerts_raised")
)

// Snapshot 当前计数器取值
func Snapshot() map[string]int64 {
	return map[string]int64{
		"orders_submitted":      OrdersSubmitted.Value(),
		"orders_rejected":       OrdersRejected.Value(),
		"orders_errored":        OrdersErrored.Value(),
		"order_status_syncs":    OrderStatusSyncs.Value(),
		"large_orders_recorded": LargeOrdersRecorded.Value(),
		"strategy_passes":       StrategyPasses.Value(),
		"strategy_pass_errors":  StrategyPassErrors.Value(),
		"events_handled":        EventsHandled.Value(),
		"events_recorded":       EventsRecorded.Value(),
		"persistence_errors":    PersistenceErrors.Value(),
		"alerts_raised":         AlertsRaised.Value(),
	}
}
